package debug

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ctagard/jdb-mcp/internal/config"
	"github.com/ctagard/jdb-mcp/internal/jdi"
	"github.com/ctagard/jdb-mcp/pkg/types"
)

const testTimeout = 2 * time.Second

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.SourceFiles = []string{
		"/proj/src/Foo.scala",
		"/proj/src/Bar.scala",
		"/proj/a/Util.scala",
		"/proj/b/Util.scala",
	}
	return cfg
}

func newTestController(t *testing.T) (*Controller, *fakeVM, *recordingSink) {
	t.Helper()
	vm := newFakeVM()
	conn := &fakeConnector{vm: vm}
	sink := &recordingSink{}
	c := NewController(testConfig(), conn, sink)
	t.Cleanup(c.Shutdown)
	return c, vm, sink
}

// startSession launches a session and drives it past VM start.
func startSession(t *testing.T, c *Controller, vm *fakeVM, sink *recordingSink) {
	t.Helper()
	if _, err := c.Start(context.Background(), []string{"pkg.Main"}, nil, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	vm.push(jdi.SuspendAll, jdi.VMStartEvent{})
	if _, ok := sink.waitFor(types.EventVMStart, testTimeout); !ok {
		t.Fatalf("no VMStart event emitted")
	}
}

func fooClass() *fakeClass {
	return &fakeClass{
		typeID: 1,
		name:   "pkg.Foo",
		source: "Foo.scala",
		lines: map[int][]jdi.Location{
			10: {{Class: 1, Method: 1, Line: 10, SourceName: "Foo.scala", ClassName: "pkg.Foo", MethodName: "run"}},
		},
	}
}

func TestPendingBreakpointPromotedOnClassPrepare(t *testing.T) {
	c, vm, sink := newTestController(t)

	// Breakpoint requested before any session exists: recorded as pending.
	if active := c.SetBreakpoint("Foo.scala", 10); active {
		t.Fatalf("breakpoint went active with no session")
	}
	list := c.ListBreakpoints()
	if len(list.Pending) != 1 || len(list.Active) != 0 {
		t.Fatalf("expected 1 pending, 0 active, got %+v", list)
	}
	if list.Pending[0].File != "/proj/src/Foo.scala" || list.Pending[0].Line != 10 {
		t.Errorf("pending breakpoint resolved wrong: %+v", list.Pending[0])
	}

	startSession(t, c, vm, sink)

	// The class prepares, declaring source name Foo.scala with line 10.
	cls := fooClass()
	set := vm.push(jdi.SuspendAll, jdi.ClassPrepareEvent{Thread: 1, Type: cls})

	if !eventually(testTimeout, func() bool {
		l := c.ListBreakpoints()
		return len(l.Active) == 1 && len(l.Pending) == 0
	}) {
		t.Fatalf("pending breakpoint was not promoted: %+v", c.ListBreakpoints())
	}
	if got := vm.erm.activeBreakpoints(); len(got) != 1 || got[0].loc.Line != 10 {
		t.Errorf("expected one installed breakpoint request at line 10, got %d", len(got))
	}
	if set.resumeCount() != 1 {
		t.Errorf("class-prepare event set resumed %d times, want 1", set.resumeCount())
	}
}

func TestAmbiguousSourceName(t *testing.T) {
	c, _, sink := newTestController(t)

	c.SetBreakpoint("Util.scala", 3)

	list := c.ListBreakpoints()
	if len(list.Pending) != 1 {
		t.Fatalf("expected exactly one recorded breakpoint, got %+v", list)
	}
	if list.Pending[0].File != "/proj/a/Util.scala" {
		t.Errorf("expected deterministic first choice /proj/a/Util.scala, got %s", list.Pending[0].File)
	}

	warned := false
	for _, ev := range sink.all() {
		if ev.Kind == types.EventBackground && strings.Contains(ev.Text, "ambiguous") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("no ambiguity warning emitted: %+v", sink.all())
	}
}

func TestStepEmitsPosition(t *testing.T) {
	c, vm, sink := newTestController(t)
	startSession(t, c, vm, sink)

	thr := &fakeThread{id: 7, name: "main", frames: []*fakeFrame{{}}}
	vm.addThread(thr)

	if !c.Step(7) {
		t.Fatalf("Step replied false for a known thread")
	}
	if steps := vm.erm.StepRequests(); len(steps) != 1 {
		t.Fatalf("expected one step request, got %d", len(steps))
	}

	// A second step replaces the first: only one step request ever pends.
	if !c.Next(7) {
		t.Fatalf("Next replied false")
	}
	if steps := vm.erm.StepRequests(); len(steps) != 1 {
		t.Errorf("expected step requests to be replaced, got %d", len(steps))
	}

	vm.push(jdi.SuspendAll, jdi.StepEvent{
		Thread:   thr,
		Location: jdi.Location{Line: 43, SourceName: "Bar.scala", ClassName: "pkg.Bar", MethodName: "next"},
	})

	ev, ok := sink.waitFor(types.EventStep, testTimeout)
	if !ok {
		t.Fatalf("no step event emitted")
	}
	if ev.File != "/proj/src/Bar.scala" || ev.Line != 43 {
		t.Errorf("step position = %s:%d, want /proj/src/Bar.scala:43", ev.File, ev.Line)
	}
	if ev.ThreadID != 7 || ev.ThreadName != "main" {
		t.Errorf("step thread = %d %q", ev.ThreadID, ev.ThreadName)
	}
}

func TestStepUnknownThread(t *testing.T) {
	c, vm, sink := newTestController(t)
	startSession(t, c, vm, sink)

	if c.Step(99) {
		t.Errorf("Step replied true for an unknown thread")
	}
}

func TestToStringOnArray(t *testing.T) {
	c, vm, sink := newTestController(t)
	startSession(t, c, vm, sink)

	inner5 := &fakeArray{
		fakeObject: fakeObject{id: 501, class: &fakeClass{typeID: 9, name: "int[]"}},
		elems:      []jdi.Value{jdi.IntValue(1), jdi.IntValue(2), jdi.IntValue(3), jdi.IntValue(4), jdi.IntValue(5)},
	}
	inner1 := &fakeArray{
		fakeObject: fakeObject{id: 502, class: &fakeClass{typeID: 9, name: "int[]"}},
		elems:      []jdi.Value{jdi.IntValue(7)},
	}
	outer := &fakeArray{
		fakeObject: fakeObject{id: 500, class: &fakeClass{typeID: 10, name: "int[][]"}},
		elems:      []jdi.Value{inner5, inner1},
	}

	thr := &fakeThread{id: 3, name: "main", frames: []*fakeFrame{{
		vars:   []jdi.Variable{{Name: "xs", Signature: "[[I", Slot: 0}},
		values: map[int]jdi.Value{0: outer},
	}}}
	vm.addThread(thr)

	// Reading the slot marshals the outer array and remembers its ID.
	val, ok := c.Value(types.StackSlot(3, 0, 0))
	if !ok {
		t.Fatalf("Value on slot failed")
	}
	if val.Kind != types.ValArray || val.ObjectID != 500 || val.Length != 2 {
		t.Fatalf("unexpected marshaled array: %+v", val)
	}

	got, ok := c.ToString(3, types.ArrayElement(500, 0))
	if !ok || got != "<array of 5 elements>" {
		t.Errorf("ToString(element 0) = %q, %v; want \"<array of 5 elements>\"", got, ok)
	}
	got, ok = c.ToString(3, types.ArrayElement(500, 1))
	if !ok || got != "<array of 1 element>" {
		t.Errorf("ToString(element 1) = %q, %v; want \"<array of 1 element>\"", got, ok)
	}
}

func TestToStringInvokesTarget(t *testing.T) {
	c, vm, sink := newTestController(t)
	startSession(t, c, vm, sink)

	object := &fakeClass{typeID: 20, name: "java.lang.Object", methods: []jdi.Method{
		{ID: 77, DeclaringType: 20, Name: "toString", Signature: "()Ljava/lang/String;"},
	}}
	cls := &fakeClass{typeID: 21, name: "pkg.Point", super: object}
	obj := &fakeObject{id: 600, class: cls, invokeResult: &fakeString{fakeObject: fakeObject{id: 601}, text: "Point(1,2)"}}

	thr := &fakeThread{id: 4, name: "main", frames: []*fakeFrame{{
		vars:   []jdi.Variable{{Name: "p", Signature: "Lpkg/Point;", Slot: 0}},
		values: map[int]jdi.Value{0: obj},
	}}}
	vm.addThread(thr)

	if _, ok := c.Value(types.StackSlot(4, 0, 0)); !ok {
		t.Fatalf("Value on slot failed")
	}
	got, ok := c.ToString(4, types.ObjectReference(600))
	if !ok || got != "Point(1,2)" {
		t.Fatalf("ToString = %q, %v", got, ok)
	}
	if obj.invoked != 1 {
		t.Errorf("toString invoked %d times, want 1", obj.invoked)
	}

	if !c.CanModifyTarget() {
		t.Errorf("CanModifyTarget false on a writable target")
	}

	// Read-only targets never invoke.
	vm.canModify = false
	if _, ok := c.ToString(4, types.ObjectReference(600)); ok {
		t.Errorf("ToString succeeded on a read-only target")
	}
	if c.CanModifyTarget() {
		t.Errorf("CanModifyTarget true on a read-only target")
	}
}

func TestSetValueOnAbsentSlot(t *testing.T) {
	c, vm, sink := newTestController(t)
	startSession(t, c, vm, sink)

	frame := &fakeFrame{
		vars:   []jdi.Variable{{Name: "n", Signature: "I", Slot: 0}},
		values: map[int]jdi.Value{0: jdi.IntValue(41)},
	}
	thr := &fakeThread{id: 5, name: "main", frames: []*fakeFrame{frame, {}, {}}}
	vm.addThread(thr)

	if c.SetValue(types.StackSlot(5, 99, 0), "1") {
		t.Errorf("SetValue replied true for frame 99 of a 3-frame thread")
	}
	if len(frame.written) != 0 {
		t.Errorf("target was mutated: %+v", frame.written)
	}

	// The happy path writes the parsed value.
	if !c.SetValue(types.StackSlot(5, 0, 0), "42") {
		t.Fatalf("SetValue on a valid slot replied false")
	}
	if got, ok := frame.written[0]; !ok || got != jdi.IntValue(42) {
		t.Errorf("slot 0 = %v, want IntValue(42)", got)
	}

	// Unparseable input writes nothing.
	if c.SetValue(types.StackSlot(5, 0, 0), "forty-two") {
		t.Errorf("SetValue accepted garbage input")
	}

	// Non-slot locations are unsupported by design.
	if c.SetValue(types.ObjectReference(1), "1") {
		t.Errorf("SetValue accepted a non-slot location")
	}
}

func TestDisconnectMidRequest(t *testing.T) {
	c, vm, sink := newTestController(t)

	c.SetBreakpoint("Foo.scala", 10)
	startSession(t, c, vm, sink)

	// Promote the breakpoint so the disconnect demotion is observable.
	vm.addClass(fooClass())
	vm.push(jdi.SuspendAll, jdi.ClassPrepareEvent{Thread: 1, Type: fooClass()})
	if !eventually(testTimeout, func() bool { return len(c.ListBreakpoints().Active) == 1 }) {
		t.Fatalf("breakpoint never went active")
	}

	thr := &fakeThread{id: 6, name: "main"}
	thr.frameCountErr = jdi.ErrDisconnected
	vm.addThread(thr)

	if _, ok := c.Backtrace(6, 0, -1); ok {
		t.Fatalf("Backtrace succeeded across a disconnect")
	}
	if c.ActiveVM() {
		t.Errorf("controller still Active after disconnect")
	}
	list := c.ListBreakpoints()
	if len(list.Active) != 0 || len(list.Pending) != 1 {
		t.Errorf("breakpoints after disconnect = %+v, want all pending", list)
	}
	if _, ok := sink.waitFor(types.EventDisconnect, testTimeout); !ok {
		t.Errorf("no disconnect event emitted")
	}

	// Subsequent requests are NoSession.
	if c.Continue(6) {
		t.Errorf("Continue replied true in NoSession")
	}
	if _, ok := c.Backtrace(6, 0, -1); ok {
		t.Errorf("Backtrace replied true in NoSession")
	}
}

func TestBacktraceRendersFrames(t *testing.T) {
	c, vm, sink := newTestController(t)
	startSession(t, c, vm, sink)

	this := &fakeObject{id: 700, class: &fakeClass{typeID: 30, name: "pkg.Foo"}}
	frames := []*fakeFrame{
		{
			loc: jdi.Location{Line: 10, SourceName: "Foo.scala", ClassName: "pkg.Foo", MethodName: "run"},
			vars: []jdi.Variable{
				{Name: "n", Signature: "I", Slot: 0},
				{Name: "s", Signature: "Ljava/lang/String;", Slot: 1},
			},
			values: map[int]jdi.Value{
				0: jdi.IntValue(3),
				1: &fakeString{fakeObject: fakeObject{id: 701}, text: "hi"},
			},
			args: []jdi.Value{jdi.IntValue(3)},
			this: this,
		},
		{
			loc:     jdi.Location{Line: 5, SourceName: "Bar.scala", ClassName: "pkg.Bar", MethodName: "call"},
			varsErr: jdi.ErrAbsentInformation,
		},
	}
	thr := &fakeThread{id: 8, name: "worker-1", frames: frames}
	vm.addThread(thr)

	bt, ok := c.Backtrace(8, 0, -1)
	if !ok {
		t.Fatalf("Backtrace failed")
	}
	if bt.ThreadID != 8 || bt.ThreadName != "worker-1" || len(bt.Frames) != 2 {
		t.Fatalf("unexpected backtrace shape: %+v", bt)
	}

	f0 := bt.Frames[0]
	if f0.ClassName != "pkg.Foo" || f0.MethodName != "run" || f0.File != "/proj/src/Foo.scala" || f0.Line != 10 {
		t.Errorf("frame 0 position wrong: %+v", f0)
	}
	if len(f0.Locals) != 2 || f0.Locals[0].Summary != "3" || f0.Locals[1].Summary != `"hi"` {
		t.Errorf("frame 0 locals wrong: %+v", f0.Locals)
	}
	if f0.NumArgs != 1 || f0.ThisObjectID != 700 {
		t.Errorf("frame 0 args/this wrong: %+v", f0)
	}

	// The second frame has no variable info but still renders.
	f1 := bt.Frames[1]
	if f1.ClassName != "pkg.Bar" || len(f1.Locals) != 0 || f1.ThisObjectID != -1 {
		t.Errorf("frame 1 sentinel rendering wrong: %+v", f1)
	}

	// The remembered this object can be dereferenced afterwards.
	if _, ok := c.Value(types.ObjectReference(700)); !ok {
		t.Errorf("this object was not remembered in the identity cache")
	}

	// Windowed backtrace.
	bt, ok = c.Backtrace(8, 1, 1)
	if !ok || len(bt.Frames) != 1 || bt.Frames[0].Index != 1 {
		t.Errorf("windowed backtrace wrong: %+v", bt)
	}
}

func TestLocateName(t *testing.T) {
	c, vm, sink := newTestController(t)
	startSession(t, c, vm, sink)

	fieldCls := &fakeClass{
		typeID: 40,
		name:   "pkg.Holder",
		fields: []jdi.Field{{ID: 41, DeclaringType: 40, Name: "count", Signature: "I"}},
	}
	this := &fakeObject{id: 800, class: fieldCls, fieldVals: map[jdi.FieldID]jdi.Value{41: jdi.IntValue(9)}}

	frames := []*fakeFrame{
		{
			vars: []jdi.Variable{{Name: "x", Signature: "I", Slot: 2}},
			this: this,
		},
		{
			vars: []jdi.Variable{{Name: "deep", Signature: "I", Slot: 0}},
		},
	}
	thr := &fakeThread{id: 9, name: "main", frames: frames}
	vm.addThread(thr)

	loc, ok := c.LocateName(9, "this")
	if !ok || loc.Kind != types.LocObjectRef || loc.ObjectID != 800 {
		t.Errorf("LocateName(this) = %+v, %v", loc, ok)
	}

	loc, ok = c.LocateName(9, "x")
	if !ok || loc.Kind != types.LocStackSlot || loc.Frame != 0 || loc.Offset != 2 {
		t.Errorf("LocateName(x) = %+v, %v", loc, ok)
	}

	loc, ok = c.LocateName(9, "deep")
	if !ok || loc.Kind != types.LocStackSlot || loc.Frame != 1 || loc.Offset != 0 {
		t.Errorf("LocateName(deep) = %+v, %v", loc, ok)
	}

	loc, ok = c.LocateName(9, "count")
	if !ok || loc.Kind != types.LocObjectField || loc.ObjectID != 800 || loc.Field != "count" {
		t.Errorf("LocateName(count) = %+v, %v", loc, ok)
	}

	if _, ok := c.LocateName(9, "nope"); ok {
		t.Errorf("LocateName found a name that does not exist")
	}

	// The field location dereferences through the identity cache.
	val, ok := c.Value(loc)
	if !ok || val.Summary != "9" {
		t.Errorf("Value(count) = %+v, %v", val, ok)
	}
}

func TestStopKeepsBreakpointsPending(t *testing.T) {
	c, vm, sink := newTestController(t)
	c.SetBreakpoint("Foo.scala", 10)
	startSession(t, c, vm, sink)

	vm.addClass(fooClass())
	vm.push(jdi.SuspendAll, jdi.ClassPrepareEvent{Thread: 1, Type: fooClass()})
	if !eventually(testTimeout, func() bool { return len(c.ListBreakpoints().Active) == 1 }) {
		t.Fatalf("breakpoint never went active")
	}

	if !c.Stop() {
		t.Fatalf("Stop replied false with an active session")
	}
	if c.ActiveVM() {
		t.Errorf("still active after Stop")
	}
	list := c.ListBreakpoints()
	if len(list.Pending) != 1 || len(list.Active) != 0 {
		t.Errorf("breakpoints after Stop = %+v", list)
	}

	// Stop in NoSession replies false.
	if c.Stop() {
		t.Errorf("Stop replied true in NoSession")
	}
}

func TestClearBreakpoints(t *testing.T) {
	c, vm, sink := newTestController(t)
	startSession(t, c, vm, sink)

	vm.addClass(fooClass())
	vm.push(jdi.SuspendAll, jdi.ClassPrepareEvent{Thread: 1, Type: fooClass()})

	c.SetBreakpoint("Foo.scala", 10)
	if !eventually(testTimeout, func() bool { return len(c.ListBreakpoints().Active) == 1 }) {
		t.Fatalf("breakpoint never installed")
	}

	c.ClearBreakpoint("Foo.scala", 10)
	if got := c.ListBreakpoints(); len(got.Active) != 0 || len(got.Pending) != 0 {
		t.Errorf("breakpoints after clear = %+v", got)
	}
	if got := vm.erm.activeBreakpoints(); len(got) != 0 {
		t.Errorf("wire requests remain after clear: %d", len(got))
	}

	c.SetBreakpoint("Foo.scala", 10)
	c.SetBreakpoint("Missing.scala", 1)
	c.ClearAllBreakpoints()
	if got := c.ListBreakpoints(); len(got.Active) != 0 || len(got.Pending) != 0 {
		t.Errorf("breakpoints after clear-all = %+v", got)
	}
}

func TestRequestsInNoSession(t *testing.T) {
	c, _, _ := newTestController(t)

	if c.ActiveVM() {
		t.Errorf("ActiveVM true with no session")
	}
	if c.Run() || c.Continue(1) || c.Next(1) || c.Step(1) || c.StepOut(1) {
		t.Errorf("execution control succeeded with no session")
	}
	if _, ok := c.Backtrace(1, 0, -1); ok {
		t.Errorf("Backtrace succeeded with no session")
	}
	if _, ok := c.Value(types.ObjectReference(1)); ok {
		t.Errorf("Value succeeded with no session")
	}
	if c.SetValue(types.StackSlot(1, 0, 0), "1") {
		t.Errorf("SetValue succeeded with no session")
	}
	if c.CanModifyTarget() {
		t.Errorf("CanModifyTarget true with no session")
	}
}

func TestUncaughtExceptionEvent(t *testing.T) {
	c, vm, sink := newTestController(t)
	startSession(t, c, vm, sink)

	thr := &fakeThread{id: 11, name: "main"}
	vm.addThread(thr)
	exc := &fakeObject{id: 900, class: &fakeClass{typeID: 50, name: "java.lang.RuntimeException"}}

	vm.push(jdi.SuspendAll, jdi.ExceptionEvent{Thread: thr, Exception: exc})

	ev, ok := sink.waitFor(types.EventException, testTimeout)
	if !ok {
		t.Fatalf("no exception event emitted")
	}
	if ev.ExceptionID != 900 || ev.ThreadID != 11 || ev.Caught {
		t.Errorf("exception event wrong: %+v", ev)
	}

	// The exception object is dereferenceable afterwards.
	if _, ok := c.Value(types.ObjectReference(900)); !ok {
		t.Errorf("exception object not remembered")
	}
}
