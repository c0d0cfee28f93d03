// Package jdi defines the typed debug-wire API the controller consumes.
//
// The interfaces mirror the capability surface of the Java Debug Wire
// Protocol: a connector that establishes a session, a virtual-machine
// handle, an event queue, an event-request manager, and mirrors for
// reference types, threads, stack frames and values. The concrete
// implementation lives in internal/jdwp; tests drive the controller with
// in-memory fakes of these interfaces.
package jdi

import (
	"context"
	"errors"
	"io"
)

// ThreadID is a thread instance identifier minted by the target VM.
// Stable for the thread's lifetime within one session.
type ThreadID uint64

// ObjectID is an object instance identifier minted by the target VM.
// Only meaningful within the session that produced it.
type ObjectID uint64

// ReferenceTypeID is a loaded reference type identifier.
type ReferenceTypeID uint64

// MethodID identifies a single method of a reference type.
type MethodID uint64

// FieldID identifies a single field of a reference type.
type FieldID uint64

// FrameID identifies a stack frame while its thread is suspended.
type FrameID uint64

// EventRequestID identifies an installed event request.
type EventRequestID int32

// SuspendPolicy controls which threads pause when a requested event fires.
type SuspendPolicy uint8

const (
	SuspendNone        = SuspendPolicy(0)
	SuspendEventThread = SuspendPolicy(1)
	SuspendAll         = SuspendPolicy(2)
)

// StepSize selects the granularity of a step request.
type StepSize int32

const (
	StepMin  = StepSize(0)
	StepLine = StepSize(1)
)

// StepDepth selects the call-depth behavior of a step request.
type StepDepth int32

const (
	StepInto = StepDepth(0)
	StepOver = StepDepth(1)
	StepOut  = StepDepth(2)
)

// InvokeOptions is a bitset of method-invocation flags.
type InvokeOptions int32

// InvokeSingleThreaded resumes only the invoking thread for the duration of
// the call; all other threads stay suspended.
const InvokeSingleThreaded = InvokeOptions(1)

// ErrDisconnected is returned (possibly wrapped) by any operation performed
// after the target VM has died or the connection dropped.
var ErrDisconnected = errors.New("target VM disconnected")

// ErrAbsentInformation is returned when the target class was compiled
// without the requested debug information (line tables, variable tables,
// source names).
var ErrAbsentInformation = errors.New("absent debug information")

// IsDisconnected reports whether err indicates a dead target connection.
func IsDisconnected(err error) bool {
	return errors.Is(err, ErrDisconnected)
}

// ModBits are the access and property modifiers of a field or method.
type ModBits int32

const (
	ModPublic    = ModBits(0x0001)
	ModPrivate   = ModBits(0x0002)
	ModProtected = ModBits(0x0004)
	ModStatic    = ModBits(0x0008)
	ModFinal     = ModBits(0x0010)
)

// Location is a concrete code position inside a loaded class at which a
// breakpoint can be installed or at which an event occurred.
type Location struct {
	Class      ReferenceTypeID
	Method     MethodID
	Index      uint64 // code index within the method
	Line       int
	SourceName string // unqualified file name, "" when unknown
	SourcePath string // full source path if the VM reports one, often ""
	ClassName  string
	MethodName string
}

// SameSpot reports whether two locations denote the same source position.
func (l Location) SameSpot(o Location) bool {
	return l.SourcePath == o.SourcePath && l.SourceName == o.SourceName && l.Line == o.Line
}

// Field describes a single field of a reference type.
type Field struct {
	ID            FieldID
	DeclaringType ReferenceTypeID
	Name          string
	Signature     string
	Mod           ModBits
}

// IsStatic reports whether the field is a static field.
func (f Field) IsStatic() bool { return f.Mod&ModStatic != 0 }

// Method describes a single method of a reference type.
type Method struct {
	ID            MethodID
	DeclaringType ReferenceTypeID
	Name          string
	Signature     string
	Mod           ModBits
}

// LaunchOptions configures a launching connector.
type LaunchOptions struct {
	Command   []string // main class followed by program arguments
	Classpath []string
	VMArgs    []string
	Suspend   bool // start the target suspended so requests can be installed first
}

// Connector establishes debug sessions with a target VM.
type Connector interface {
	// Launch starts a new target process and returns once the debug
	// connection is established. The returned VM has a non-nil Process.
	Launch(ctx context.Context, opts LaunchOptions) (VirtualMachine, error)

	// Attach connects to an already-running target VM. The returned VM has
	// a nil Process.
	Attach(ctx context.Context, host string, port int) (VirtualMachine, error)
}

// Process exposes the standard streams of a launched target process.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Pid() int
	Kill() error
}

// VirtualMachine is the live connection to a target VM.
type VirtualMachine interface {
	// Dispose releases the connection. Safe to call on an already-dead VM.
	Dispose() error
	// Resume resumes all threads.
	Resume() error
	// CanBeModified reports whether the target accepts mutating operations
	// such as method invocation and value writes.
	CanBeModified() bool
	// Process returns the launched target process, or nil for attach mode.
	Process() Process
	AllClasses() ([]ReferenceType, error)
	AllThreads() ([]ThreadReference, error)
	// MirrorOfString creates a new string in the target VM.
	MirrorOfString(s string) (StringReference, error)
	EventQueue() EventQueue
	EventRequests() EventRequestManager
}

// EventQueue delivers event sets raised by the target VM.
type EventQueue interface {
	// Remove blocks until the next event set is available. Returns an error
	// wrapping ErrDisconnected once the connection is gone.
	Remove() (EventSet, error)
}

// EventSet is a group of events delivered together, sharing one suspend
// policy. The set must be resumed when its policy suspended any threads.
type EventSet interface {
	SuspendPolicy() SuspendPolicy
	Events() []Event
	Resume() error
}

// EventRequest is an installed request for a kind of event.
type EventRequest interface {
	ID() EventRequestID
	Enable() error
	Disable() error
	Enabled() bool
}

// BreakpointRequest is an event request pinned to a code location.
type BreakpointRequest interface {
	EventRequest
	Location() Location
}

// EventRequestManager creates and deletes event requests on the target.
type EventRequestManager interface {
	CreateClassPrepareRequest(policy SuspendPolicy) (EventRequest, error)
	CreateThreadStartRequest(policy SuspendPolicy) (EventRequest, error)
	CreateThreadDeathRequest(policy SuspendPolicy) (EventRequest, error)
	// CreateExceptionRequest filters on caught/uncaught exception delivery.
	CreateExceptionRequest(caught, uncaught bool, policy SuspendPolicy) (EventRequest, error)
	CreateBreakpointRequest(loc Location, policy SuspendPolicy) (BreakpointRequest, error)
	// CreateStepRequest bounds the request with an event count filter so it
	// auto-expires after count events.
	CreateStepRequest(thread ThreadID, size StepSize, depth StepDepth, policy SuspendPolicy, count int) (EventRequest, error)
	BreakpointRequests() []BreakpointRequest
	StepRequests() []EventRequest
	Delete(req EventRequest) error
	// ClearAllBreakpoints removes every breakpoint request in the target.
	ClearAllBreakpoints() error
}

// ReferenceType mirrors a loaded class, interface or array type.
type ReferenceType interface {
	TypeID() ReferenceTypeID
	// Name is the dotted type name, e.g. "pkg.Foo" or "int[]".
	Name() string
	Signature() string
	// SourceName returns the unqualified name of the file the type was
	// compiled from. ErrAbsentInformation when not compiled with -g.
	SourceName() (string, error)
	Fields() ([]Field, error)
	Methods() ([]Method, error)
	// LocationsOfLine collects code locations on the given source line
	// across all of the type's methods. Methods without line information
	// are skipped silently.
	LocationsOfLine(line int) ([]Location, error)
	// Superclass returns the direct superclass, or nil when the type is not
	// a class or is java.lang.Object.
	Superclass() (ReferenceType, error)
	// GetValue reads a static field of this type.
	GetValue(f Field) (Value, error)
}

// ThreadReference mirrors a thread in the target VM.
type ThreadReference interface {
	UniqueID() ThreadID
	Name() (string, error)
	FrameCount() (int, error)
	// Frames returns count frames starting at index start, topmost first.
	// count = -1 means all remaining frames.
	Frames(start, count int) ([]StackFrame, error)
}

// Variable is one entry of a method's variable table, visible in a frame.
type Variable struct {
	Name      string
	Signature string
	Slot      int
	Argument  bool
}

// StackFrame mirrors one frame of a suspended thread.
type StackFrame interface {
	Location() Location
	// ThisObject returns the frame's this object, or nil for static frames.
	ThisObject() (ObjectReference, error)
	VisibleVariables() ([]Variable, error)
	GetValue(v Variable) (Value, error)
	SetValue(v Variable, val Value) error
	ArgumentValues() ([]Value, error)
}
