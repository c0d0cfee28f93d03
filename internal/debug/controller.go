package debug

import (
	"context"
	"fmt"
	"log"

	"github.com/ctagard/jdb-mcp/internal/config"
	"github.com/ctagard/jdb-mcp/internal/jdi"
	"github.com/ctagard/jdb-mcp/pkg/types"
)

// Controller orchestrates the debug session. It is a single-consumer
// mailbox processor: client requests and target events are enqueued as
// tasks and executed one at a time on the controller goroutine, which owns
// the breakpoint registry, the session slot and all state transitions.
//
// The controller is in one of two states: NoSession (session == nil) or
// Active. Requests that need a live target reply false in NoSession.
type Controller struct {
	cfg       *config.Config
	connector jdi.Connector
	sink      EventSink

	sources *SourceMap
	bps     *BreakpointRegistry
	session *Session

	mailbox  chan task
	stopped  chan struct{}
	quitting bool
}

type task struct {
	fn   func()
	done chan struct{}
}

// NewController builds a controller over the given connector and event sink
// and starts its mailbox goroutine.
func NewController(cfg *config.Config, connector jdi.Connector, sink EventSink) *Controller {
	c := &Controller{
		cfg:       cfg,
		connector: connector,
		sink:      sink,
		sources:   NewSourceMap(cfg),
		bps:       NewBreakpointRegistry(),
		mailbox:   make(chan task, 64),
		stopped:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.stopped)
	for t := range c.mailbox {
		t.fn()
		if t.done != nil {
			close(t.done)
		}
		if c.quitting {
			return
		}
	}
}

// do runs fn on the controller goroutine and waits for it. After Shutdown
// the call returns without running fn, leaving reply values at their zero
// defaults.
func (c *Controller) do(fn func()) {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case c.mailbox <- t:
		select {
		case <-t.done:
		case <-c.stopped:
		}
	case <-c.stopped:
	}
}

// post enqueues fn without waiting. Used by the background workers, which
// only ever send messages to the controller.
func (c *Controller) post(fn func()) {
	select {
	case c.mailbox <- task{fn: fn}:
	case <-c.stopped:
	}
}

// Shutdown disposes any session and stops the controller. Requests pending
// behind the shutdown receive no reply.
func (c *Controller) Shutdown() {
	c.do(func() {
		if c.session != nil {
			c.session.dispose()
			c.session = nil
		}
		c.quitting = true
	})
}

// Done is closed once the controller has stopped.
func (c *Controller) Done() <-chan struct{} { return c.stopped }

// --- session lifecycle ---

// Start launches a new target VM running the given command (main class and
// arguments). A nil classpath or vmArgs falls back to the configuration
// snapshot. An existing session is disposed first.
func (c *Controller) Start(ctx context.Context, command, classpath, vmArgs []string) (types.SessionInfo, error) {
	var info types.SessionInfo
	var err error
	c.do(func() { info, err = c.startSession(ctx, command, classpath, vmArgs) })
	return info, err
}

func (c *Controller) startSession(ctx context.Context, command, classpath, vmArgs []string) (types.SessionInfo, error) {
	c.replaceSession()
	if len(classpath) == 0 {
		classpath = c.cfg.Classpath
	}
	if vmArgs == nil {
		vmArgs = c.cfg.VMArgs
	}
	s, err := launchSession(ctx, c.connector, command, classpath, vmArgs)
	if err != nil {
		return types.SessionInfo{}, err
	}
	c.session = s
	c.startWorkers(s)
	return s.Info(types.SessionStatusLaunching), nil
}

// Attach connects to a target VM that is already running. An existing
// session is disposed first.
func (c *Controller) Attach(ctx context.Context, host string, port int) (types.SessionInfo, error) {
	var info types.SessionInfo
	var err error
	c.do(func() { info, err = c.attachSession(ctx, host, port) })
	return info, err
}

func (c *Controller) attachSession(ctx context.Context, host string, port int) (types.SessionInfo, error) {
	c.replaceSession()
	s, err := attachSession(ctx, c.connector, host, port)
	if err != nil {
		return types.SessionInfo{}, err
	}
	c.session = s
	c.startWorkers(s)
	// An attached VM has already loaded its classes, so build the location
	// map now and install whatever pending breakpoints it can satisfy.
	if err := s.initLocationMap(); err != nil {
		c.checkDisconnect(err)
	} else {
		c.retryAllPending()
	}
	return s.Info(types.SessionStatusAttached), nil
}

// replaceSession disposes the current session, if any, keeping its active
// breakpoints as pending so the next session re-installs them.
func (c *Controller) replaceSession() {
	if c.session == nil {
		return
	}
	s := c.session
	c.session = nil
	c.bps.DemoteAllToPending()
	s.dispose()
}

func (c *Controller) startWorkers(s *Session) {
	queue := s.vm.EventQueue()
	go runEventPump(queue, func(set jdi.EventSet, disconnected bool) {
		c.post(func() { c.handlePumpMessage(s, set, disconnected) })
	})
	if s.Mode == types.ModeLaunch {
		if p := s.vm.Process(); p != nil {
			go relayOutput("stdout", p.Stdout(), func(text string) {
				c.post(func() { c.sink.Emit(types.DebugEvent{Kind: types.EventOutput, Text: text}) })
			})
			go relayOutput("stderr", p.Stderr(), func(text string) {
				c.post(func() { c.sink.Emit(types.DebugEvent{Kind: types.EventOutput, Text: text}) })
			})
		}
	}
}

// Stop disposes the active session. Active breakpoints are kept as pending
// for a later session.
func (c *Controller) Stop() bool {
	ok := false
	c.do(func() {
		if c.session == nil {
			return
		}
		c.handleDisconnect()
		ok = true
	})
	return ok
}

// ActiveVM reports whether a session is active.
func (c *Controller) ActiveVM() bool {
	ok := false
	c.do(func() { ok = c.session != nil })
	return ok
}

// CanModifyTarget reports whether the active target VM accepts mutating
// operations such as method invocation and value writes. False in
// NoSession.
func (c *Controller) CanModifyTarget() bool {
	ok := false
	c.do(func() { ok = c.session != nil && c.session.canBeModified() })
	return ok
}

// SessionInfo returns the active session description.
func (c *Controller) SessionInfo() (types.SessionInfo, bool) {
	var info types.SessionInfo
	ok := false
	c.do(func() {
		if c.session != nil {
			info = c.session.Info(types.SessionStatusRunning)
			ok = true
		}
	})
	return info, ok
}

// --- disconnect handling ---

// handleDisconnect performs the Active -> NoSession transition: demote all
// active breakpoints to pending, dispose the session, and emit the
// disconnect event. Idempotent once in NoSession.
func (c *Controller) handleDisconnect() {
	if c.session == nil {
		return
	}
	s := c.session
	c.session = nil
	c.bps.DemoteAllToPending()
	s.dispose()
	c.sink.Emit(types.DebugEvent{Kind: types.EventDisconnect})
}

// checkDisconnect triggers the disconnect transition when err indicates a
// dead target. Returns true when it did.
func (c *Controller) checkDisconnect(err error) bool {
	if err == nil || !jdi.IsDisconnected(err) {
		return false
	}
	c.handleDisconnect()
	return true
}

// --- target event handling ---

func (c *Controller) handlePumpMessage(s *Session, set jdi.EventSet, disconnected bool) {
	if c.session != s {
		return // stale session
	}
	if disconnected {
		c.handleDisconnect()
		return
	}
	c.handleEventSet(s, set)
}

func (c *Controller) handleEventSet(s *Session, set jdi.EventSet) {
	resumeSet := false
	stopSet := false
	for _, ev := range set.Events() {
		switch ev := ev.(type) {
		case jdi.VMStartEvent:
			c.handleVMStart(s)
		case jdi.ClassPrepareEvent:
			c.handleClassPrepare(s, ev)
			resumeSet = true
		case jdi.BreakpointEvent:
			stopSet = true
			c.emitStop(types.EventBreak, ev.Thread, ev.Location)
		case jdi.StepEvent:
			stopSet = true
			c.emitStop(types.EventStep, ev.Thread, ev.Location)
		case jdi.ExceptionEvent:
			stopSet = true
			c.handleException(s, ev)
		case jdi.ThreadStartEvent:
			c.sink.Emit(types.DebugEvent{Kind: types.EventThreadStart, ThreadID: uint64(ev.Thread.UniqueID())})
		case jdi.ThreadDeathEvent:
			c.sink.Emit(types.DebugEvent{Kind: types.EventThreadDeath, ThreadID: uint64(ev.Thread.UniqueID())})
		case jdi.VMDeathEvent, jdi.VMDisconnectEvent:
			c.handleDisconnect()
			return
		default:
			// Unsubscribed kinds (method entry/exit, field access, class
			// unload). Resume their set so a suspend-all request from an
			// earlier incarnation cannot leave the VM paused.
			if set.SuspendPolicy() != jdi.SuspendNone {
				resumeSet = true
			}
		}
	}
	if resumeSet && !stopSet && c.session == s {
		if err := set.Resume(); err != nil {
			c.checkDisconnect(err)
		}
	}
}

// handleVMStart builds the initial location map, installs whatever pending
// breakpoints already resolve, resumes the target, and announces the start.
func (c *Controller) handleVMStart(s *Session) {
	if err := s.initLocationMap(); err != nil {
		if c.checkDisconnect(err) {
			return
		}
		log.Printf("init location map: %v", err)
	}
	c.retryAllPending()
	if c.session != s {
		return
	}
	if err := s.resume(); err != nil {
		if c.checkDisconnect(err) {
			return
		}
		log.Printf("resume after VM start: %v", err)
	}
	c.sink.Emit(types.DebugEvent{Kind: types.EventVMStart})
}

// handleClassPrepare registers the prepared class with the location
// resolver and retries the pending breakpoints recorded under the class's
// source file key. The event set itself is resumed by the caller.
func (c *Controller) handleClassPrepare(s *Session, ev jdi.ClassPrepareEvent) {
	key, ok := s.registerClass(ev.Type)
	if !ok {
		return
	}
	c.retryPendingForKey(s, key)
}

func (c *Controller) retryPendingForKey(s *Session, key string) {
	for _, bp := range c.bps.PendingForKey(key) {
		installed, err := s.setBreakpoint(bp.File, bp.Line)
		if err != nil {
			c.checkDisconnect(err)
			return
		}
		if installed {
			c.bps.AddActive(bp)
			log.Printf("pending breakpoint %s:%d is now active", bp.File, bp.Line)
		}
	}
}

func (c *Controller) retryAllPending() {
	s := c.session
	if s == nil {
		return
	}
	for _, bp := range c.bps.List().Pending {
		installed, err := s.setBreakpoint(bp.File, bp.Line)
		if err != nil {
			c.checkDisconnect(err)
			return
		}
		if installed {
			c.bps.AddActive(bp)
		}
	}
}

// emitStop translates a breakpoint or step event into a client event. When
// the position does not resolve the event is dropped with a warning.
func (c *Controller) emitStop(kind types.EventKind, thread jdi.ThreadReference, loc jdi.Location) {
	file, ok := c.resolvePosition(loc)
	if !ok {
		log.Printf("dropping %s event: no source position for %s.%s", kind, loc.ClassName, loc.MethodName)
		return
	}
	c.sink.Emit(types.DebugEvent{
		Kind:       kind,
		ThreadID:   uint64(thread.UniqueID()),
		ThreadName: threadName(thread),
		File:       file,
		Line:       loc.Line,
	})
}

func (c *Controller) handleException(s *Session, ev jdi.ExceptionEvent) {
	exc := s.cache.Remember(ev.Exception)
	out := types.DebugEvent{
		Kind:       types.EventException,
		ThreadID:   uint64(ev.Thread.UniqueID()),
		ThreadName: threadName(ev.Thread),
	}
	if exc != nil {
		out.ExceptionID = uint64(exc.UniqueID())
	}
	if ev.CatchLocation != nil {
		if file, ok := c.resolvePosition(*ev.CatchLocation); ok {
			out.Caught = true
			out.File = file
			out.Line = ev.CatchLocation.Line
		}
	}
	c.sink.Emit(out)
}

// resolvePosition maps an event location to a project file. An ambiguous
// short name uses the first mapping; a short name with no mapping is passed
// through unresolved; a location with no source information fails.
func (c *Controller) resolvePosition(loc jdi.Location) (string, bool) {
	if loc.SourceName == "" {
		if loc.SourcePath != "" {
			return loc.SourcePath, true
		}
		return "", false
	}
	paths := c.sources.Lookup(loc.SourceName)
	if len(paths) == 0 {
		if loc.SourcePath != "" {
			return loc.SourcePath, true
		}
		return loc.SourceName, true
	}
	if len(paths) > 1 {
		log.Printf("source name %s is ambiguous (%d files), using %s", loc.SourceName, len(paths), paths[0])
	}
	return paths[0], true
}

func threadName(t jdi.ThreadReference) string {
	name, err := t.Name()
	if err != nil {
		return ""
	}
	return name
}

// RebuildSources rebuilds the source map from a fresh configuration
// snapshot, picking up files added to the project since startup.
func (c *Controller) RebuildSources(cfg *config.Config) {
	c.do(func() { c.sources.Rebuild(cfg) })
}

// --- breakpoints ---

// SetBreakpoint installs a breakpoint when its class is loaded, otherwise
// records it as pending. Returns true when the breakpoint went active.
func (c *Controller) SetBreakpoint(file string, line int) bool {
	active := false
	c.do(func() { active = c.setBreak(file, line) })
	return active
}

func (c *Controller) setBreak(file string, line int) bool {
	resolved, ambiguous := c.sources.Resolve(file)
	if ambiguous {
		log.Printf("file name %s is ambiguous, using %s", file, resolved)
		c.sink.Emit(types.DebugEvent{
			Kind: types.EventBackground,
			Text: fmt.Sprintf("File name %s is ambiguous, using %s.", file, resolved),
		})
	}
	bp := types.Breakpoint{File: resolved, Line: line}
	if c.session != nil {
		installed, err := c.session.setBreakpoint(resolved, line)
		if err != nil {
			c.checkDisconnect(err)
		}
		if installed {
			c.bps.AddActive(bp)
			return true
		}
	}
	c.bps.AddPending(bp)
	c.sink.Emit(types.DebugEvent{
		Kind: types.EventBackground,
		Text: "Location not loaded. Set pending breakpoint.",
	})
	return false
}

// ClearBreakpoint removes the breakpoint from both the active and pending
// sets and uninstalls it from the target.
func (c *Controller) ClearBreakpoint(file string, line int) {
	c.do(func() {
		resolved, _ := c.sources.Resolve(file)
		bp := types.Breakpoint{File: resolved, Line: line}
		if c.session != nil {
			if err := c.session.clearBreakpoints([]types.Breakpoint{bp}); err != nil {
				c.checkDisconnect(err)
			}
		}
		c.bps.Remove(bp)
	})
}

// ClearAllBreakpoints empties both sets and clears every breakpoint in the
// target.
func (c *Controller) ClearAllBreakpoints() {
	c.do(func() {
		c.bps.ClearAll()
		if c.session != nil {
			if err := c.session.clearAllBreakpoints(); err != nil {
				c.checkDisconnect(err)
			}
		}
	})
}

// ListBreakpoints returns the active and pending breakpoint sets.
func (c *Controller) ListBreakpoints() types.BreakpointList {
	var list types.BreakpointList
	c.do(func() { list = c.bps.List() })
	return list
}

// --- execution control ---

// Run resumes the whole target VM.
func (c *Controller) Run() bool {
	return c.resumeVM()
}

// Continue resumes the whole target VM. There is no per-thread resume
// primitive; callers must not rely on other threads staying suspended.
func (c *Controller) Continue(threadID uint64) bool {
	_ = threadID
	return c.resumeVM()
}

func (c *Controller) resumeVM() bool {
	ok := false
	c.do(func() {
		if c.session == nil {
			return
		}
		if err := c.session.resume(); err != nil {
			c.checkDisconnect(err)
			return
		}
		ok = true
	})
	return ok
}

// Next line-steps over calls in the given thread.
func (c *Controller) Next(threadID uint64) bool {
	return c.step(threadID, jdi.StepOver)
}

// Step line-steps into calls in the given thread.
func (c *Controller) Step(threadID uint64) bool {
	return c.step(threadID, jdi.StepInto)
}

// StepOut runs until the current frame of the given thread returns.
func (c *Controller) StepOut(threadID uint64) bool {
	return c.step(threadID, jdi.StepOut)
}

func (c *Controller) step(threadID uint64, depth jdi.StepDepth) bool {
	ok := false
	c.do(func() {
		if c.session == nil {
			return
		}
		thr, err := c.session.threadByID(jdi.ThreadID(threadID))
		if err != nil {
			c.checkDisconnect(err)
			return
		}
		if thr == nil {
			log.Printf("step: unknown thread %d", threadID)
			return
		}
		if err := c.session.newStepRequest(jdi.ThreadID(threadID), jdi.StepLine, depth); err != nil {
			c.checkDisconnect(err)
			return
		}
		ok = true
	})
	return ok
}

// --- inspection ---

// Threads lists the live threads of the target VM.
func (c *Controller) Threads() ([]types.ThreadInfo, bool) {
	var out []types.ThreadInfo
	ok := false
	c.do(func() {
		if c.session == nil {
			return
		}
		c.session.vmMu.Lock()
		threads, err := c.session.vm.AllThreads()
		c.session.vmMu.Unlock()
		if err != nil {
			c.checkDisconnect(err)
			return
		}
		for _, t := range threads {
			out = append(out, types.ThreadInfo{ID: uint64(t.UniqueID()), Name: threadName(t)})
		}
		ok = true
	})
	return out, ok
}

// LocateName finds a name in the scope of a suspended thread: "this", then
// visible locals from the top frame downward, then the fields of the top
// frame's this object.
func (c *Controller) LocateName(threadID uint64, name string) (types.DebugLocation, bool) {
	var loc types.DebugLocation
	ok := false
	c.do(func() { loc, ok = c.locateName(threadID, name) })
	return loc, ok
}

func (c *Controller) locateName(threadID uint64, name string) (types.DebugLocation, bool) {
	if c.session == nil {
		return types.DebugLocation{}, false
	}
	thr, err := c.session.threadByID(jdi.ThreadID(threadID))
	if err != nil || thr == nil {
		c.checkDisconnect(err)
		return types.DebugLocation{}, false
	}
	frames, err := thr.Frames(0, -1)
	if err != nil || len(frames) == 0 {
		c.checkDisconnect(err)
		return types.DebugLocation{}, false
	}

	if name == "this" {
		obj, err := frames[0].ThisObject()
		if err != nil || obj == nil {
			c.checkDisconnect(err)
			return types.DebugLocation{}, false
		}
		obj = c.session.cache.Remember(obj)
		return types.ObjectReference(uint64(obj.UniqueID())), true
	}

	for i, f := range frames {
		vars, err := f.VisibleVariables()
		if err != nil {
			if c.checkDisconnect(err) {
				return types.DebugLocation{}, false
			}
			continue
		}
		for _, v := range vars {
			if v.Name == name {
				return types.StackSlot(threadID, i, v.Slot), true
			}
		}
	}

	obj, err := frames[0].ThisObject()
	if err != nil || obj == nil {
		c.checkDisconnect(err)
		return types.DebugLocation{}, false
	}
	if _, _, found := c.findField(obj, name); found {
		obj = c.session.cache.Remember(obj)
		return types.ObjectField(uint64(obj.UniqueID()), name), true
	}
	return types.DebugLocation{}, false
}

// findField locates a field by name walking the superclass chain of obj's
// type.
func (c *Controller) findField(obj jdi.ObjectReference, name string) (jdi.Field, jdi.ReferenceType, bool) {
	rt, err := obj.ReferenceType()
	if err != nil {
		c.checkDisconnect(err)
		return jdi.Field{}, nil, false
	}
	for rt != nil {
		fields, err := rt.Fields()
		if err != nil {
			c.checkDisconnect(err)
			return jdi.Field{}, nil, false
		}
		for _, f := range fields {
			if f.Name == name {
				return f, rt, true
			}
		}
		super, err := rt.Superclass()
		if err != nil {
			c.checkDisconnect(err)
			return jdi.Field{}, nil, false
		}
		rt = super
	}
	return jdi.Field{}, nil, false
}

// Value dereferences a debug location and marshals the result. Every
// object read this way is remembered in the identity cache.
func (c *Controller) Value(loc types.DebugLocation) (types.DebugValue, bool) {
	var val types.DebugValue
	ok := false
	c.do(func() {
		if c.session == nil {
			return
		}
		raw, found := c.rawValue(loc)
		if !found {
			return
		}
		m := newValueMarshaler(c.session.cache)
		val, ok = m.marshal(raw)
	})
	return val, ok
}

// rawValue resolves a debug location to the live target value. Any
// resolution failure yields false.
func (c *Controller) rawValue(loc types.DebugLocation) (jdi.Value, bool) {
	s := c.session
	switch loc.Kind {
	case types.LocObjectRef:
		obj, ok := s.cache.Lookup(jdi.ObjectID(loc.ObjectID))
		return obj, ok

	case types.LocObjectField:
		obj, ok := s.cache.Lookup(jdi.ObjectID(loc.ObjectID))
		if !ok {
			return nil, false
		}
		f, rt, found := c.findField(obj, loc.Field)
		if !found {
			return nil, false
		}
		var v jdi.Value
		var err error
		if f.IsStatic() {
			v, err = rt.GetValue(f)
		} else {
			v, err = obj.GetValue(f)
		}
		if err != nil {
			c.checkDisconnect(err)
			return nil, false
		}
		return v, true

	case types.LocArrayElement:
		obj, ok := s.cache.Lookup(jdi.ObjectID(loc.ObjectID))
		if !ok {
			return nil, false
		}
		arr, ok := obj.(jdi.ArrayReference)
		if !ok || loc.Index < 0 {
			return nil, false
		}
		vals, err := arr.Values(loc.Index, 1)
		if err != nil || len(vals) == 0 {
			c.checkDisconnect(err)
			return nil, false
		}
		return vals[0], true

	case types.LocStackSlot:
		f, v, ok := c.slotVariable(loc)
		if !ok {
			return nil, false
		}
		val, err := f.GetValue(v)
		if err != nil {
			c.checkDisconnect(err)
			return nil, false
		}
		return val, true
	}
	return nil, false
}

// slotVariable resolves a stack-slot location to its frame and variable.
func (c *Controller) slotVariable(loc types.DebugLocation) (jdi.StackFrame, jdi.Variable, bool) {
	thr, err := c.session.threadByID(jdi.ThreadID(loc.ThreadID))
	if err != nil || thr == nil {
		c.checkDisconnect(err)
		return nil, jdi.Variable{}, false
	}
	if loc.Frame < 0 || loc.Offset < 0 {
		return nil, jdi.Variable{}, false
	}
	frames, err := thr.Frames(loc.Frame, 1)
	if err != nil || len(frames) == 0 {
		c.checkDisconnect(err)
		return nil, jdi.Variable{}, false
	}
	vars, err := frames[0].VisibleVariables()
	if err != nil {
		c.checkDisconnect(err)
		return nil, jdi.Variable{}, false
	}
	for _, v := range vars {
		if v.Slot == loc.Offset {
			return frames[0], v, true
		}
	}
	return nil, jdi.Variable{}, false
}

// ToString renders a value the way the target would print it: arrays as a
// synthetic length summary, strings as their text, objects via the
// target's toString() invoked in the given thread, everything else via the
// summary rules.
func (c *Controller) ToString(threadID uint64, loc types.DebugLocation) (string, bool) {
	var out string
	ok := false
	c.do(func() { out, ok = c.toString(threadID, loc) })
	return out, ok
}

func (c *Controller) toString(threadID uint64, loc types.DebugLocation) (string, bool) {
	if c.session == nil {
		return "", false
	}
	raw, found := c.rawValue(loc)
	if !found {
		return "", false
	}
	switch v := raw.(type) {
	case jdi.StringReference:
		text, err := v.Text()
		if err != nil {
			c.checkDisconnect(err)
			return "", false
		}
		return text, true

	case jdi.ArrayReference:
		n, err := v.Length()
		if err != nil {
			c.checkDisconnect(err)
			return "", false
		}
		plural := "s"
		if n == 1 {
			plural = ""
		}
		return fmt.Sprintf("<array of %d element%s>", n, plural), true

	case jdi.ObjectReference:
		return c.invokeToString(threadID, v)

	default:
		m := newValueMarshaler(c.session.cache)
		return m.summary(raw, 0), true
	}
}

// invokeToString calls the target's toString() on obj in the given thread
// using single-threaded invocation semantics.
func (c *Controller) invokeToString(threadID uint64, obj jdi.ObjectReference) (string, bool) {
	s := c.session
	if !s.canBeModified() {
		log.Printf("toString: target VM is read-only")
		return "", false
	}
	thr, err := s.threadByID(jdi.ThreadID(threadID))
	if err != nil || thr == nil {
		c.checkDisconnect(err)
		return "", false
	}
	m, found := c.findToString(obj)
	if !found {
		return "", false
	}
	result, err := obj.InvokeMethod(jdi.ThreadID(threadID), m, nil, jdi.InvokeSingleThreaded)
	if err != nil {
		c.checkDisconnect(err)
		log.Printf("toString invocation failed: %v", err)
		return "", false
	}
	if str, ok := result.(jdi.StringReference); ok {
		text, err := str.Text()
		if err != nil {
			c.checkDisconnect(err)
			return "", false
		}
		return text, true
	}
	return "", false
}

func (c *Controller) findToString(obj jdi.ObjectReference) (jdi.Method, bool) {
	rt, err := obj.ReferenceType()
	if err != nil {
		c.checkDisconnect(err)
		return jdi.Method{}, false
	}
	for rt != nil {
		methods, err := rt.Methods()
		if err != nil {
			c.checkDisconnect(err)
			return jdi.Method{}, false
		}
		for _, m := range methods {
			if m.Name == "toString" && m.Signature == "()Ljava/lang/String;" {
				return m, true
			}
		}
		super, err := rt.Superclass()
		if err != nil {
			c.checkDisconnect(err)
			return jdi.Method{}, false
		}
		rt = super
	}
	return jdi.Method{}, false
}

// SetValue parses text and writes it into a stack slot. Only stack slots
// support writes; every other location kind replies false.
func (c *Controller) SetValue(loc types.DebugLocation, text string) bool {
	ok := false
	c.do(func() { ok = c.setValue(loc, text) })
	return ok
}

func (c *Controller) setValue(loc types.DebugLocation, text string) bool {
	if loc.Kind != types.LocStackSlot {
		log.Printf("set value: unsupported location kind %s", loc.Kind)
		return false
	}
	if c.session == nil {
		return false
	}
	frame, v, ok := c.slotVariable(loc)
	if !ok {
		return false
	}
	val, ok := stringToValue(c.session.vm, text, v.Signature)
	if !ok {
		return false
	}
	if err := frame.SetValue(v, val); err != nil {
		c.checkDisconnect(err)
		return false
	}
	return true
}

// Backtrace renders frames [start, start+count) of the given thread;
// count = -1 means to the end. Per-field failures substitute sentinels so a
// partially readable frame still renders.
func (c *Controller) Backtrace(threadID uint64, start, count int) (types.Backtrace, bool) {
	var bt types.Backtrace
	ok := false
	c.do(func() { bt, ok = c.backtrace(threadID, start, count) })
	return bt, ok
}

func (c *Controller) backtrace(threadID uint64, start, count int) (types.Backtrace, bool) {
	if c.session == nil {
		return types.Backtrace{}, false
	}
	thr, err := c.session.threadByID(jdi.ThreadID(threadID))
	if err != nil || thr == nil {
		c.checkDisconnect(err)
		return types.Backtrace{}, false
	}
	total, err := thr.FrameCount()
	if err != nil {
		c.checkDisconnect(err)
		return types.Backtrace{}, false
	}
	if start < 0 {
		start = 0
	}
	end := total
	if count >= 0 && start+count < total {
		end = start + count
	}
	if start > end {
		start = end
	}
	frames, err := thr.Frames(start, end-start)
	if err != nil {
		c.checkDisconnect(err)
		return types.Backtrace{}, false
	}

	m := newValueMarshaler(c.session.cache)
	out := types.Backtrace{
		ThreadID:   threadID,
		ThreadName: threadName(thr),
		Frames:     make([]types.StackFrame, 0, len(frames)),
	}
	for i, f := range frames {
		rendered, ok := c.renderFrame(m, f, start+i)
		if !ok {
			return types.Backtrace{}, false
		}
		out.Frames = append(out.Frames, rendered)
	}
	return out, true
}

// renderFrame renders a single frame with best-effort semantics: any
// per-field failure substitutes a sentinel rather than failing the frame.
// Only a disconnect aborts, reporting ok=false.
func (c *Controller) renderFrame(m *valueMarshaler, f jdi.StackFrame, index int) (types.StackFrame, bool) {
	loc := f.Location()
	out := types.StackFrame{
		Index:        index,
		ClassName:    loc.ClassName,
		MethodName:   loc.MethodName,
		Line:         loc.Line,
		ThisObjectID: -1,
		Locals:       []types.LocalVariable{},
	}
	if out.ClassName == "" {
		out.ClassName = "Class"
	}
	if out.MethodName == "" {
		out.MethodName = "Method"
	}
	if file, ok := c.resolvePosition(loc); ok {
		out.File = file
	}

	vars, err := f.VisibleVariables()
	if err != nil {
		if c.checkDisconnect(err) {
			return types.StackFrame{}, false
		}
	} else {
		for _, v := range vars {
			summary := missingValue
			val, err := f.GetValue(v)
			if err != nil {
				if c.checkDisconnect(err) {
					return types.StackFrame{}, false
				}
			} else {
				summary = m.summary(val, 1)
			}
			out.Locals = append(out.Locals, types.LocalVariable{Slot: v.Slot, Name: v.Name, Summary: summary})
		}
	}

	args, err := f.ArgumentValues()
	if err != nil {
		if c.checkDisconnect(err) {
			return types.StackFrame{}, false
		}
		for _, v := range vars {
			if v.Argument {
				out.NumArgs++
			}
		}
	} else {
		out.NumArgs = len(args)
	}

	this, err := f.ThisObject()
	if err != nil {
		if c.checkDisconnect(err) {
			return types.StackFrame{}, false
		}
	} else if this != nil {
		this = c.session.cache.Remember(this)
		out.ThisObjectID = int64(this.UniqueID())
	}
	return out, true
}
