package jdi

// EventKind identifies the kind of a raised event.
type EventKind uint8

const (
	KindSingleStep   = EventKind(1)
	KindBreakpoint   = EventKind(2)
	KindException    = EventKind(4)
	KindThreadStart  = EventKind(6)
	KindThreadDeath  = EventKind(7)
	KindClassPrepare = EventKind(8)
	KindClassUnload  = EventKind(9)
	KindFieldAccess  = EventKind(20)
	KindMethodEntry  = EventKind(40)
	KindMethodExit   = EventKind(41)
	KindVMStart      = EventKind(90)
	KindVMDeath      = EventKind(99)
	// KindVMDisconnect is synthesized locally when the connection drops;
	// it never travels on the wire.
	KindVMDisconnect = EventKind(100)
)

// Event is the interface implemented by all events raised by the target VM.
type Event interface {
	Kind() EventKind
}

// VMStartEvent is raised once when the target VM initializes.
type VMStartEvent struct {
	Thread ThreadID
}

// VMDeathEvent is raised when the target VM terminates.
type VMDeathEvent struct{}

// VMDisconnectEvent is synthesized when the debug connection is lost.
type VMDisconnectEvent struct{}

// StepEvent is raised when a requested step completes.
type StepEvent struct {
	Thread   ThreadReference
	Location Location
}

// BreakpointEvent is raised when a breakpoint is hit.
type BreakpointEvent struct {
	Thread   ThreadReference
	Location Location
}

// ExceptionEvent is raised when an exception matching an exception request
// is thrown. CatchLocation is nil for uncaught exceptions.
type ExceptionEvent struct {
	Thread        ThreadReference
	Exception     ObjectReference
	CatchLocation *Location
}

// ThreadStartEvent is raised when a thread starts.
type ThreadStartEvent struct {
	Thread ThreadReference
}

// ThreadDeathEvent is raised when a thread dies.
type ThreadDeathEvent struct {
	Thread ThreadReference
}

// ClassPrepareEvent is raised when a class enters the prepared state.
type ClassPrepareEvent struct {
	Thread ThreadID
	Type   ReferenceType
}

// ClassUnloadEvent is raised when a class is unloaded.
type ClassUnloadEvent struct {
	Signature string
}

// MethodEntryEvent is raised when a watched method is entered.
type MethodEntryEvent struct {
	Thread   ThreadReference
	Location Location
}

// MethodExitEvent is raised when a watched method returns.
type MethodExitEvent struct {
	Thread   ThreadReference
	Location Location
}

// FieldAccessEvent is raised when a watched field is read.
type FieldAccessEvent struct {
	Thread   ThreadReference
	Location Location
}

func (VMStartEvent) Kind() EventKind      { return KindVMStart }
func (VMDeathEvent) Kind() EventKind      { return KindVMDeath }
func (VMDisconnectEvent) Kind() EventKind { return KindVMDisconnect }
func (StepEvent) Kind() EventKind         { return KindSingleStep }
func (BreakpointEvent) Kind() EventKind   { return KindBreakpoint }
func (ExceptionEvent) Kind() EventKind    { return KindException }
func (ThreadStartEvent) Kind() EventKind  { return KindThreadStart }
func (ThreadDeathEvent) Kind() EventKind  { return KindThreadDeath }
func (ClassPrepareEvent) Kind() EventKind { return KindClassPrepare }
func (ClassUnloadEvent) Kind() EventKind  { return KindClassUnload }
func (MethodEntryEvent) Kind() EventKind  { return KindMethodEntry }
func (MethodExitEvent) Kind() EventKind   { return KindMethodExit }
func (FieldAccessEvent) Kind() EventKind  { return KindFieldAccess }
