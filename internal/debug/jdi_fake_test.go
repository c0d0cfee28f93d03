package debug

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ctagard/jdb-mcp/internal/jdi"
	"github.com/ctagard/jdb-mcp/pkg/types"
)

// In-memory implementation of the jdi interfaces, scriptable from tests.

type fakeConnector struct {
	vm        *fakeVM
	launchErr error
	attachErr error
}

func (f *fakeConnector) Launch(_ context.Context, opts jdi.LaunchOptions) (jdi.VirtualMachine, error) {
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	f.vm.launchOpts = opts
	return f.vm, nil
}

func (f *fakeConnector) Attach(_ context.Context, host string, port int) (jdi.VirtualMachine, error) {
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	return f.vm, nil
}

type fakeVM struct {
	mu         sync.Mutex
	classes    []*fakeClass
	threads    []*fakeThread
	erm        *fakeERM
	queue      chan jdi.EventSet
	queueOnce  sync.Once
	canModify  bool
	disposed   bool
	resumes    int
	launchOpts jdi.LaunchOptions
	nextID     jdi.ObjectID
}

func newFakeVM() *fakeVM {
	return &fakeVM{
		erm:       &fakeERM{},
		queue:     make(chan jdi.EventSet, 16),
		canModify: true,
		nextID:    1000,
	}
}

func (v *fakeVM) Dispose() error {
	v.mu.Lock()
	v.disposed = true
	v.mu.Unlock()
	v.queueOnce.Do(func() { close(v.queue) })
	return nil
}

func (v *fakeVM) Resume() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return fmt.Errorf("resume: %w", jdi.ErrDisconnected)
	}
	v.resumes++
	return nil
}

func (v *fakeVM) CanBeModified() bool { return v.canModify }
func (v *fakeVM) Process() jdi.Process {
	return nil
}

func (v *fakeVM) AllClasses() ([]jdi.ReferenceType, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]jdi.ReferenceType, 0, len(v.classes))
	for _, c := range v.classes {
		out = append(out, c)
	}
	return out, nil
}

func (v *fakeVM) AllThreads() ([]jdi.ThreadReference, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return nil, fmt.Errorf("all threads: %w", jdi.ErrDisconnected)
	}
	out := make([]jdi.ThreadReference, 0, len(v.threads))
	for _, t := range v.threads {
		out = append(out, t)
	}
	return out, nil
}

func (v *fakeVM) MirrorOfString(s string) (jdi.StringReference, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	return &fakeString{fakeObject: fakeObject{id: v.nextID}, text: s}, nil
}

func (v *fakeVM) EventQueue() jdi.EventQueue             { return &fakeQueue{ch: v.queue} }
func (v *fakeVM) EventRequests() jdi.EventRequestManager { return v.erm }
func (v *fakeVM) addClass(c *fakeClass)                  { v.mu.Lock(); v.classes = append(v.classes, c); v.mu.Unlock() }
func (v *fakeVM) addThread(t *fakeThread) {
	v.mu.Lock()
	v.threads = append(v.threads, t)
	v.mu.Unlock()
}
func (v *fakeVM) push(policy jdi.SuspendPolicy, evs ...jdi.Event) *fakeSet {
	set := &fakeSet{policy: policy, events: evs}
	v.queue <- set
	return set
}

type fakeQueue struct {
	ch chan jdi.EventSet
}

func (q *fakeQueue) Remove() (jdi.EventSet, error) {
	set, ok := <-q.ch
	if !ok {
		return nil, fmt.Errorf("event queue: %w", jdi.ErrDisconnected)
	}
	return set, nil
}

type fakeSet struct {
	policy  jdi.SuspendPolicy
	events  []jdi.Event
	mu      sync.Mutex
	resumed int
}

func (s *fakeSet) SuspendPolicy() jdi.SuspendPolicy { return s.policy }
func (s *fakeSet) Events() []jdi.Event              { return s.events }
func (s *fakeSet) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed++
	return nil
}

func (s *fakeSet) resumeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumed
}

// --- event requests ---

type fakeERM struct {
	mu       sync.Mutex
	nextID   jdi.EventRequestID
	bps      []*fakeBpRequest
	steps    []*fakeStepRequest
	standing []*fakeRequest
}

type fakeRequest struct {
	id      jdi.EventRequestID
	kind    jdi.EventKind
	enabled bool
}

func (r *fakeRequest) ID() jdi.EventRequestID { return r.id }
func (r *fakeRequest) Enable() error          { r.enabled = true; return nil }
func (r *fakeRequest) Disable() error         { r.enabled = false; return nil }
func (r *fakeRequest) Enabled() bool          { return r.enabled }

type fakeBpRequest struct {
	fakeRequest
	loc jdi.Location
}

func (r *fakeBpRequest) Location() jdi.Location { return r.loc }

type fakeStepRequest struct {
	fakeRequest
	thread jdi.ThreadID
	depth  jdi.StepDepth
}

func (m *fakeERM) newID() jdi.EventRequestID {
	m.nextID++
	return m.nextID
}

func (m *fakeERM) create(kind jdi.EventKind) (jdi.EventRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &fakeRequest{id: m.newID(), kind: kind}
	m.standing = append(m.standing, r)
	return r, nil
}

func (m *fakeERM) CreateClassPrepareRequest(jdi.SuspendPolicy) (jdi.EventRequest, error) {
	return m.create(jdi.KindClassPrepare)
}

func (m *fakeERM) CreateThreadStartRequest(jdi.SuspendPolicy) (jdi.EventRequest, error) {
	return m.create(jdi.KindThreadStart)
}

func (m *fakeERM) CreateThreadDeathRequest(jdi.SuspendPolicy) (jdi.EventRequest, error) {
	return m.create(jdi.KindThreadDeath)
}

func (m *fakeERM) CreateExceptionRequest(caught, uncaught bool, _ jdi.SuspendPolicy) (jdi.EventRequest, error) {
	return m.create(jdi.KindException)
}

func (m *fakeERM) CreateBreakpointRequest(loc jdi.Location, _ jdi.SuspendPolicy) (jdi.BreakpointRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &fakeBpRequest{fakeRequest: fakeRequest{id: m.newID(), kind: jdi.KindBreakpoint}, loc: loc}
	m.bps = append(m.bps, r)
	return r, nil
}

func (m *fakeERM) CreateStepRequest(thread jdi.ThreadID, _ jdi.StepSize, depth jdi.StepDepth, _ jdi.SuspendPolicy, _ int) (jdi.EventRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &fakeStepRequest{fakeRequest: fakeRequest{id: m.newID(), kind: jdi.KindSingleStep}, thread: thread, depth: depth}
	m.steps = append(m.steps, r)
	return r, nil
}

func (m *fakeERM) BreakpointRequests() []jdi.BreakpointRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]jdi.BreakpointRequest, 0, len(m.bps))
	for _, r := range m.bps {
		out = append(out, r)
	}
	return out
}

func (m *fakeERM) StepRequests() []jdi.EventRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]jdi.EventRequest, 0, len(m.steps))
	for _, r := range m.steps {
		out = append(out, r)
	}
	return out
}

func (m *fakeERM) Delete(req jdi.EventRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := req.ID()
	for i, r := range m.bps {
		if r.id == id {
			m.bps = append(m.bps[:i], m.bps[i+1:]...)
			return nil
		}
	}
	for i, r := range m.steps {
		if r.id == id {
			m.steps = append(m.steps[:i], m.steps[i+1:]...)
			return nil
		}
	}
	for i, r := range m.standing {
		if r.id == id {
			m.standing = append(m.standing[:i], m.standing[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *fakeERM) ClearAllBreakpoints() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bps = nil
	return nil
}

func (m *fakeERM) activeBreakpoints() []*fakeBpRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fakeBpRequest{}, m.bps...)
}

// --- reference types ---

type fakeClass struct {
	typeID     jdi.ReferenceTypeID
	name       string
	source     string
	sourceErr  error
	fields     []jdi.Field
	methods    []jdi.Method
	lines      map[int][]jdi.Location
	super      *fakeClass
	statics    map[jdi.FieldID]jdi.Value
	locLineErr error
}

func (c *fakeClass) TypeID() jdi.ReferenceTypeID { return c.typeID }
func (c *fakeClass) Name() string                { return c.name }
func (c *fakeClass) Signature() string           { return "L" + c.name + ";" }

func (c *fakeClass) SourceName() (string, error) {
	if c.sourceErr != nil {
		return "", c.sourceErr
	}
	return c.source, nil
}

func (c *fakeClass) Fields() ([]jdi.Field, error)   { return c.fields, nil }
func (c *fakeClass) Methods() ([]jdi.Method, error) { return c.methods, nil }

func (c *fakeClass) LocationsOfLine(line int) ([]jdi.Location, error) {
	if c.locLineErr != nil {
		return nil, c.locLineErr
	}
	return c.lines[line], nil
}

func (c *fakeClass) Superclass() (jdi.ReferenceType, error) {
	if c.super == nil {
		return nil, nil
	}
	return c.super, nil
}

func (c *fakeClass) GetValue(f jdi.Field) (jdi.Value, error) {
	if v, ok := c.statics[f.ID]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no static value for %s", f.Name)
}

// --- threads and frames ---

type fakeThread struct {
	id            jdi.ThreadID
	name          string
	frames        []*fakeFrame
	frameCountErr error
	framesErr     error
}

func (t *fakeThread) UniqueID() jdi.ThreadID { return t.id }
func (t *fakeThread) Name() (string, error)  { return t.name, nil }

func (t *fakeThread) FrameCount() (int, error) {
	if t.frameCountErr != nil {
		return 0, t.frameCountErr
	}
	return len(t.frames), nil
}

func (t *fakeThread) Frames(start, count int) ([]jdi.StackFrame, error) {
	if t.framesErr != nil {
		return nil, t.framesErr
	}
	if start < 0 || start > len(t.frames) {
		return nil, fmt.Errorf("frame index %d out of range", start)
	}
	end := len(t.frames)
	if count >= 0 && start+count < end {
		end = start + count
	}
	out := make([]jdi.StackFrame, 0, end-start)
	for _, f := range t.frames[start:end] {
		out = append(out, f)
	}
	return out, nil
}

type fakeFrame struct {
	loc      jdi.Location
	this     jdi.ObjectReference
	vars     []jdi.Variable
	values   map[int]jdi.Value
	written  map[int]jdi.Value
	args     []jdi.Value
	varsErr  error
	valueErr error
	setErr   error
}

func (f *fakeFrame) Location() jdi.Location { return f.loc }

func (f *fakeFrame) ThisObject() (jdi.ObjectReference, error) {
	return f.this, nil
}

func (f *fakeFrame) VisibleVariables() ([]jdi.Variable, error) {
	if f.varsErr != nil {
		return nil, f.varsErr
	}
	return f.vars, nil
}

func (f *fakeFrame) GetValue(v jdi.Variable) (jdi.Value, error) {
	if f.valueErr != nil {
		return nil, f.valueErr
	}
	val, ok := f.values[v.Slot]
	if !ok {
		return nil, fmt.Errorf("no value in slot %d", v.Slot)
	}
	return val, nil
}

func (f *fakeFrame) SetValue(v jdi.Variable, val jdi.Value) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.written == nil {
		f.written = make(map[int]jdi.Value)
	}
	f.written[v.Slot] = val
	return nil
}

func (f *fakeFrame) ArgumentValues() ([]jdi.Value, error) {
	return f.args, nil
}

// --- objects ---

type fakeObject struct {
	id           jdi.ObjectID
	class        *fakeClass
	fieldVals    map[jdi.FieldID]jdi.Value
	invokeResult jdi.Value
	invokeErr    error
	invoked      int
}

func (o *fakeObject) IsValue()               {}
func (o *fakeObject) UniqueID() jdi.ObjectID { return o.id }

func (o *fakeObject) ReferenceType() (jdi.ReferenceType, error) {
	if o.class == nil {
		return nil, fmt.Errorf("object %d has no class", o.id)
	}
	return o.class, nil
}

func (o *fakeObject) GetValue(f jdi.Field) (jdi.Value, error) {
	if v, ok := o.fieldVals[f.ID]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no value for field %s", f.Name)
}

func (o *fakeObject) InvokeMethod(_ jdi.ThreadID, _ jdi.Method, _ []jdi.Value, _ jdi.InvokeOptions) (jdi.Value, error) {
	o.invoked++
	if o.invokeErr != nil {
		return nil, o.invokeErr
	}
	return o.invokeResult, nil
}

type fakeString struct {
	fakeObject
	text string
}

func (s *fakeString) Text() (string, error) { return s.text, nil }

type fakeArray struct {
	fakeObject
	elems []jdi.Value
}

func (a *fakeArray) Length() (int, error) { return len(a.elems), nil }

func (a *fakeArray) Values(first, length int) ([]jdi.Value, error) {
	if first < 0 || first+length > len(a.elems) {
		return nil, fmt.Errorf("array range [%d,%d) out of bounds", first, first+length)
	}
	return a.elems[first : first+length], nil
}

// --- event sink ---

type recordingSink struct {
	mu     sync.Mutex
	events []types.DebugEvent
}

func (s *recordingSink) Emit(ev types.DebugEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []types.DebugEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.DebugEvent{}, s.events...)
}

// waitFor polls until an event of the given kind arrives or the deadline
// passes.
func (s *recordingSink) waitFor(kind types.EventKind, timeout time.Duration) (types.DebugEvent, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, ev := range s.all() {
			if ev.Kind == kind {
				return ev, true
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	return types.DebugEvent{}, false
}

// eventually polls cond until it holds or the deadline passes.
func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}
