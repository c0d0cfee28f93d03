package jdwp

import (
	"fmt"
	"math"
	"sync"

	"github.com/ctagard/jdb-mcp/internal/jdi"
)

// vm implements jdi.VirtualMachine over a Connection. Class metadata
// (signatures, source names, fields, methods, line and variable tables) is
// cached per reference type; the target never redefines them within a
// session.
type vm struct {
	conn *Connection
	proc *process // nil in attach mode

	erm   *requestManager
	queue *eventQueue

	mu      sync.Mutex
	classes map[uint64]*classData
}

type classData struct {
	tag uint8
	sig string

	sourceDone bool
	source     string
	sourceErr  error

	fieldsDone bool
	fields     []jdi.Field

	methodsDone bool
	methods     []jdi.Method

	superDone bool
	super     uint64

	lines map[uint64][]lineEntry
	vars  map[uint64]*varData
}

type varData struct {
	argCount int32
	slots    []slotEntry
	err      error
}

func newVM(conn *Connection, proc *process) *vm {
	v := &vm{
		conn:    conn,
		proc:    proc,
		classes: make(map[uint64]*classData),
	}
	v.erm = &requestManager{vm: v}
	v.queue = &eventQueue{vm: v}
	return v
}

func (v *vm) Dispose() error {
	err := v.conn.dispose()
	v.conn.Close()
	return err
}

func (v *vm) Resume() error { return v.conn.resumeAll() }

func (v *vm) CanBeModified() bool { return true }

func (v *vm) Process() jdi.Process {
	if v.proc == nil {
		return nil
	}
	return v.proc
}

func (v *vm) AllClasses() ([]jdi.ReferenceType, error) {
	infos, err := v.conn.allClasses()
	if err != nil {
		return nil, err
	}
	out := make([]jdi.ReferenceType, 0, len(infos))
	for _, ci := range infos {
		out = append(out, v.refType(ci.TypeID, ci.Tag, ci.Signature))
	}
	return out, nil
}

func (v *vm) AllThreads() ([]jdi.ThreadReference, error) {
	ids, err := v.conn.allThreads()
	if err != nil {
		return nil, err
	}
	out := make([]jdi.ThreadReference, 0, len(ids))
	for _, id := range ids {
		out = append(out, &threadRef{vm: v, id: id})
	}
	return out, nil
}

func (v *vm) MirrorOfString(s string) (jdi.StringReference, error) {
	id, err := v.conn.createString(s)
	if err != nil {
		return nil, err
	}
	return &stringRef{objectRef{vm: v, id: id, tag: tagString}}, nil
}

func (v *vm) EventQueue() jdi.EventQueue             { return v.queue }
func (v *vm) EventRequests() jdi.EventRequestManager { return v.erm }

// --- class metadata cache ---

func (v *vm) class(id uint64) *classData {
	v.mu.Lock()
	defer v.mu.Unlock()
	cd, ok := v.classes[id]
	if !ok {
		cd = &classData{lines: make(map[uint64][]lineEntry), vars: make(map[uint64]*varData)}
		v.classes[id] = cd
	}
	return cd
}

// refType returns the reference-type mirror for id, recording its signature
// and kind tag.
func (v *vm) refType(id uint64, tag uint8, sig string) *referenceType {
	cd := v.class(id)
	v.mu.Lock()
	if tag != 0 {
		cd.tag = tag
	}
	if sig != "" {
		cd.sig = sig
	}
	v.mu.Unlock()
	return &referenceType{vm: v, id: id}
}

// refTypeByID returns the mirror for id, fetching the signature if unknown.
func (v *vm) refTypeByID(id uint64) (*referenceType, error) {
	cd := v.class(id)
	v.mu.Lock()
	sig := cd.sig
	v.mu.Unlock()
	if sig == "" {
		fetched, err := v.conn.typeSignature(id)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		cd.sig = fetched
		v.mu.Unlock()
	}
	return &referenceType{vm: v, id: id}, nil
}

func (v *vm) classTag(id uint64) uint8 {
	cd := v.class(id)
	v.mu.Lock()
	defer v.mu.Unlock()
	if cd.tag == 0 {
		return 1 // CLASS
	}
	return cd.tag
}

func (v *vm) lineTableCached(typeID, methodID uint64) ([]lineEntry, error) {
	cd := v.class(typeID)
	v.mu.Lock()
	if lt, ok := cd.lines[methodID]; ok {
		v.mu.Unlock()
		return lt, nil
	}
	v.mu.Unlock()
	lt, err := v.conn.lineTable(typeID, methodID)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	cd.lines[methodID] = lt
	v.mu.Unlock()
	return lt, nil
}

func (v *vm) variableTableCached(typeID, methodID uint64) (*varData, error) {
	cd := v.class(typeID)
	v.mu.Lock()
	if vd, ok := cd.vars[methodID]; ok {
		v.mu.Unlock()
		if vd.err != nil {
			return nil, vd.err
		}
		return vd, nil
	}
	v.mu.Unlock()
	argCount, slots, err := v.conn.variableTable(typeID, methodID)
	vd := &varData{argCount: argCount, slots: slots, err: err}
	if err == nil || err == jdi.ErrAbsentInformation {
		v.mu.Lock()
		cd.vars[methodID] = vd
		v.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	return vd, nil
}

// resolveLocation enriches a wire location with line and naming metadata.
// Every enrichment is best effort; the identifiers always survive.
func (v *vm) resolveLocation(wloc wireLocation) jdi.Location {
	loc := jdi.Location{
		Class:  jdi.ReferenceTypeID(wloc.Class),
		Method: jdi.MethodID(wloc.Method),
		Index:  wloc.Index,
	}
	rt, err := v.refTypeByID(wloc.Class)
	if err != nil {
		return loc
	}
	loc.ClassName = rt.Name()
	if src, err := rt.SourceName(); err == nil {
		loc.SourceName = src
	}
	if methods, err := rt.Methods(); err == nil {
		for _, m := range methods {
			if uint64(m.ID) == wloc.Method {
				loc.MethodName = m.Name
				break
			}
		}
	}
	if lt, err := v.lineTableCached(wloc.Class, wloc.Method); err == nil {
		// The line owning a code index is the entry with the greatest
		// index not beyond it.
		best := -1
		var bestIdx uint64
		for i, entry := range lt {
			if entry.Index <= wloc.Index && (best < 0 || entry.Index >= bestIdx) {
				best, bestIdx = i, entry.Index
			}
		}
		if best >= 0 {
			loc.Line = int(lt[best].Line)
		}
	}
	return loc
}

// --- value conversion ---

// toJDIValue binds a wire value to this VM.
func (v *vm) toJDIValue(w wireValue) jdi.Value {
	switch w.Tag {
	case tagVoid:
		return jdi.VoidValue{}
	case tagBoolean:
		return jdi.BooleanValue(w.Num != 0)
	case tagByte:
		return jdi.ByteValue(int8(w.Num))
	case tagChar:
		return jdi.CharValue(rune(uint16(w.Num)))
	case tagShort:
		return jdi.ShortValue(int16(w.Num))
	case tagInt:
		return jdi.IntValue(int32(w.Num))
	case tagLong:
		return jdi.LongValue(int64(w.Num))
	case tagFloat:
		return jdi.FloatValue(math.Float32frombits(uint32(w.Num)))
	case tagDouble:
		return jdi.DoubleValue(math.Float64frombits(w.Num))
	default:
		if w.Num == 0 {
			return jdi.NullValue{}
		}
		base := objectRef{vm: v, id: w.Num, tag: w.Tag}
		switch w.Tag {
		case tagString:
			return &stringRef{base}
		case tagArray:
			return &arrayRef{base}
		default:
			return &base
		}
	}
}

// toWireValue unbinds a jdi value for transmission. fallbackTag supplies
// the tag for null references, whose type the value itself cannot name.
func toWireValue(val jdi.Value, fallbackTag uint8) (wireValue, error) {
	switch v := val.(type) {
	case jdi.BooleanValue:
		n := uint64(0)
		if v {
			n = 1
		}
		return wireValue{Tag: tagBoolean, Num: n}, nil
	case jdi.ByteValue:
		return wireValue{Tag: tagByte, Num: uint64(uint8(v))}, nil
	case jdi.CharValue:
		return wireValue{Tag: tagChar, Num: uint64(uint16(v))}, nil
	case jdi.ShortValue:
		return wireValue{Tag: tagShort, Num: uint64(uint16(v))}, nil
	case jdi.IntValue:
		return wireValue{Tag: tagInt, Num: uint64(uint32(v))}, nil
	case jdi.LongValue:
		return wireValue{Tag: tagLong, Num: uint64(v)}, nil
	case jdi.FloatValue:
		return wireValue{Tag: tagFloat, Num: uint64(math.Float32bits(float32(v)))}, nil
	case jdi.DoubleValue:
		return wireValue{Tag: tagDouble, Num: math.Float64bits(float64(v))}, nil
	case jdi.NullValue:
		tag := fallbackTag
		if !isObjectTag(tag) {
			tag = tagObject
		}
		return wireValue{Tag: tag, Num: 0}, nil
	case *stringRef:
		return wireValue{Tag: tagString, Num: v.id}, nil
	case *arrayRef:
		return wireValue{Tag: tagArray, Num: v.id}, nil
	case *objectRef:
		return wireValue{Tag: v.tag, Num: v.id}, nil
	case jdi.ObjectReference:
		return wireValue{Tag: tagObject, Num: uint64(v.UniqueID())}, nil
	default:
		return wireValue{}, fmt.Errorf("unsupported value %T", val)
	}
}

// --- reference types ---

type referenceType struct {
	vm *vm
	id uint64
}

func (r *referenceType) TypeID() jdi.ReferenceTypeID { return jdi.ReferenceTypeID(r.id) }

func (r *referenceType) Signature() string {
	cd := r.vm.class(r.id)
	r.vm.mu.Lock()
	defer r.vm.mu.Unlock()
	return cd.sig
}

func (r *referenceType) Name() string {
	return jdi.TypeNameFromSignature(r.Signature())
}

func (r *referenceType) SourceName() (string, error) {
	cd := r.vm.class(r.id)
	r.vm.mu.Lock()
	if cd.sourceDone {
		src, err := cd.source, cd.sourceErr
		r.vm.mu.Unlock()
		return src, err
	}
	r.vm.mu.Unlock()
	src, err := r.vm.conn.sourceFile(r.id)
	if err == nil || err == jdi.ErrAbsentInformation {
		r.vm.mu.Lock()
		cd.sourceDone, cd.source, cd.sourceErr = true, src, err
		r.vm.mu.Unlock()
	}
	return src, err
}

func (r *referenceType) Fields() ([]jdi.Field, error) {
	cd := r.vm.class(r.id)
	r.vm.mu.Lock()
	if cd.fieldsDone {
		fields := cd.fields
		r.vm.mu.Unlock()
		return fields, nil
	}
	r.vm.mu.Unlock()
	raw, err := r.vm.conn.fieldsOf(r.id)
	if err != nil {
		return nil, err
	}
	fields := make([]jdi.Field, 0, len(raw))
	for _, f := range raw {
		fields = append(fields, jdi.Field{
			ID:            jdi.FieldID(f.ID),
			DeclaringType: jdi.ReferenceTypeID(r.id),
			Name:          f.Name,
			Signature:     f.Signature,
			Mod:           jdi.ModBits(f.Mod),
		})
	}
	r.vm.mu.Lock()
	cd.fieldsDone, cd.fields = true, fields
	r.vm.mu.Unlock()
	return fields, nil
}

func (r *referenceType) Methods() ([]jdi.Method, error) {
	cd := r.vm.class(r.id)
	r.vm.mu.Lock()
	if cd.methodsDone {
		methods := cd.methods
		r.vm.mu.Unlock()
		return methods, nil
	}
	r.vm.mu.Unlock()
	raw, err := r.vm.conn.methodsOf(r.id)
	if err != nil {
		return nil, err
	}
	methods := make([]jdi.Method, 0, len(raw))
	for _, m := range raw {
		methods = append(methods, jdi.Method{
			ID:            jdi.MethodID(m.ID),
			DeclaringType: jdi.ReferenceTypeID(r.id),
			Name:          m.Name,
			Signature:     m.Signature,
			Mod:           jdi.ModBits(m.Mod),
		})
	}
	r.vm.mu.Lock()
	cd.methodsDone, cd.methods = true, methods
	r.vm.mu.Unlock()
	return methods, nil
}

func (r *referenceType) LocationsOfLine(line int) ([]jdi.Location, error) {
	methods, err := r.Methods()
	if err != nil {
		return nil, err
	}
	source, _ := r.SourceName()
	var out []jdi.Location
	for _, m := range methods {
		lt, err := r.vm.lineTableCached(r.id, uint64(m.ID))
		if err != nil {
			if jdi.IsDisconnected(err) {
				return nil, err
			}
			continue // native or line-info-less methods
		}
		for _, entry := range lt {
			if int(entry.Line) != line {
				continue
			}
			out = append(out, jdi.Location{
				Class:      jdi.ReferenceTypeID(r.id),
				Method:     m.ID,
				Index:      entry.Index,
				Line:       line,
				SourceName: source,
				ClassName:  r.Name(),
				MethodName: m.Name,
			})
			break // one location per method per line
		}
	}
	return out, nil
}

func (r *referenceType) Superclass() (jdi.ReferenceType, error) {
	if r.vm.classTag(r.id) != 1 {
		return nil, nil
	}
	cd := r.vm.class(r.id)
	r.vm.mu.Lock()
	done, super := cd.superDone, cd.super
	r.vm.mu.Unlock()
	if !done {
		fetched, err := r.vm.conn.superclass(r.id)
		if err != nil {
			return nil, err
		}
		r.vm.mu.Lock()
		cd.superDone, cd.super = true, fetched
		r.vm.mu.Unlock()
		super = fetched
	}
	if super == 0 {
		return nil, nil
	}
	return r.vm.refTypeByID(super)
}

func (r *referenceType) GetValue(f jdi.Field) (jdi.Value, error) {
	vals, err := r.vm.conn.staticFieldValues(r.id, []uint64{uint64(f.ID)})
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("no value for static field %s", f.Name)
	}
	return r.vm.toJDIValue(vals[0]), nil
}

// --- threads and frames ---

type threadRef struct {
	vm *vm
	id uint64
}

func (t *threadRef) UniqueID() jdi.ThreadID { return jdi.ThreadID(t.id) }

func (t *threadRef) Name() (string, error) {
	return t.vm.conn.threadName(t.id)
}

func (t *threadRef) FrameCount() (int, error) {
	return t.vm.conn.frameCount(t.id)
}

func (t *threadRef) Frames(start, count int) ([]jdi.StackFrame, error) {
	infos, err := t.vm.conn.frames(t.id, start, count)
	if err != nil {
		return nil, err
	}
	out := make([]jdi.StackFrame, 0, len(infos))
	for _, fi := range infos {
		out = append(out, &stackFrame{
			vm:     t.vm,
			thread: t.id,
			id:     fi.Frame,
			wloc:   fi.Location,
			loc:    t.vm.resolveLocation(fi.Location),
		})
	}
	return out, nil
}

type stackFrame struct {
	vm     *vm
	thread uint64
	id     uint64
	wloc   wireLocation
	loc    jdi.Location
}

func (f *stackFrame) Location() jdi.Location { return f.loc }

func (f *stackFrame) ThisObject() (jdi.ObjectReference, error) {
	w, err := f.vm.conn.frameThisObject(f.thread, f.id)
	if err != nil {
		return nil, err
	}
	val := f.vm.toJDIValue(w)
	if obj, ok := val.(jdi.ObjectReference); ok {
		return obj, nil
	}
	return nil, nil
}

func (f *stackFrame) VisibleVariables() ([]jdi.Variable, error) {
	vd, err := f.vm.variableTableCached(f.wloc.Class, f.wloc.Method)
	if err != nil {
		return nil, err
	}
	var out []jdi.Variable
	for _, s := range vd.slots {
		if s.CodeIndex > f.wloc.Index || f.wloc.Index >= s.CodeIndex+uint64(s.Length) {
			continue
		}
		out = append(out, jdi.Variable{
			Name:      s.Name,
			Signature: s.Signature,
			Slot:      int(s.Slot),
			Argument:  s.CodeIndex == 0,
		})
	}
	return out, nil
}

func (f *stackFrame) GetValue(v jdi.Variable) (jdi.Value, error) {
	vals, err := f.vm.conn.frameValues(f.thread, f.id, []slotRequest{{
		Slot: int32(v.Slot),
		Tag:  tagForSignature(v.Signature),
	}})
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("no value in slot %d", v.Slot)
	}
	return f.vm.toJDIValue(vals[0]), nil
}

func (f *stackFrame) SetValue(v jdi.Variable, val jdi.Value) error {
	w, err := toWireValue(val, tagForSignature(v.Signature))
	if err != nil {
		return err
	}
	return f.vm.conn.frameSetValues(f.thread, f.id, []slotAssignment{{
		Slot:  int32(v.Slot),
		Value: w,
	}})
}

func (f *stackFrame) ArgumentValues() ([]jdi.Value, error) {
	vars, err := f.VisibleVariables()
	if err != nil {
		return nil, err
	}
	var reqs []slotRequest
	for _, v := range vars {
		if v.Argument {
			reqs = append(reqs, slotRequest{Slot: int32(v.Slot), Tag: tagForSignature(v.Signature)})
		}
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	vals, err := f.vm.conn.frameValues(f.thread, f.id, reqs)
	if err != nil {
		return nil, err
	}
	out := make([]jdi.Value, 0, len(vals))
	for _, w := range vals {
		out = append(out, f.vm.toJDIValue(w))
	}
	return out, nil
}

// --- object mirrors ---

type objectRef struct {
	vm  *vm
	id  uint64
	tag uint8
}

func (o *objectRef) IsValue()               {}
func (o *objectRef) UniqueID() jdi.ObjectID { return jdi.ObjectID(o.id) }

func (o *objectRef) ReferenceType() (jdi.ReferenceType, error) {
	tag, typeID, err := o.vm.conn.objectRefType(o.id)
	if err != nil {
		return nil, err
	}
	rt, err := o.vm.refTypeByID(typeID)
	if err != nil {
		return nil, err
	}
	o.vm.refType(typeID, tag, "")
	return rt, nil
}

func (o *objectRef) GetValue(f jdi.Field) (jdi.Value, error) {
	vals, err := o.vm.conn.objectFieldValues(o.id, []uint64{uint64(f.ID)})
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("no value for field %s", f.Name)
	}
	return o.vm.toJDIValue(vals[0]), nil
}

func (o *objectRef) InvokeMethod(thread jdi.ThreadID, m jdi.Method, args []jdi.Value, opts jdi.InvokeOptions) (jdi.Value, error) {
	wireArgs := make([]wireValue, 0, len(args))
	for _, a := range args {
		w, err := toWireValue(a, tagObject)
		if err != nil {
			return nil, err
		}
		wireArgs = append(wireArgs, w)
	}
	ret, exc, err := o.vm.conn.invokeMethod(o.id, uint64(thread), uint64(m.DeclaringType), uint64(m.ID), wireArgs, int32(opts))
	if err != nil {
		return nil, err
	}
	if exc.Num != 0 {
		return nil, fmt.Errorf("invocation of %s threw exception object %d", m.Name, exc.Num)
	}
	return o.vm.toJDIValue(ret), nil
}

type stringRef struct {
	objectRef
}

func (s *stringRef) Text() (string, error) {
	return s.vm.conn.stringValue(s.id)
}

type arrayRef struct {
	objectRef
}

func (a *arrayRef) Length() (int, error) {
	return a.vm.conn.arrayLength(a.id)
}

func (a *arrayRef) Values(first, length int) ([]jdi.Value, error) {
	if length == 0 {
		return nil, nil
	}
	vals, err := a.vm.conn.arrayValues(a.id, first, length)
	if err != nil {
		return nil, err
	}
	out := make([]jdi.Value, 0, len(vals))
	for _, w := range vals {
		out = append(out, a.vm.toJDIValue(w))
	}
	return out, nil
}

// --- event queue ---

type eventQueue struct {
	vm *vm
}

func (q *eventQueue) Remove() (jdi.EventSet, error) {
	msg, ok := <-q.vm.conn.Events()
	if !ok {
		return nil, fmt.Errorf("event stream closed: %w", jdi.ErrDisconnected)
	}
	set := &eventSet{vm: q.vm, policy: msg.policy}
	for _, we := range msg.events {
		set.events = append(set.events, q.vm.bindEvent(we))
		if we.Thread != 0 {
			set.thread = we.Thread
		}
	}
	return set, nil
}

// bindEvent converts a decoded wire event into a jdi event bound to this
// VM's mirrors.
func (v *vm) bindEvent(we wireEvent) jdi.Event {
	switch we.Kind {
	case jdi.KindVMStart:
		return jdi.VMStartEvent{Thread: jdi.ThreadID(we.Thread)}
	case jdi.KindVMDeath:
		return jdi.VMDeathEvent{}
	case jdi.KindSingleStep:
		return jdi.StepEvent{Thread: &threadRef{vm: v, id: we.Thread}, Location: v.resolveLocation(we.Location)}
	case jdi.KindBreakpoint:
		return jdi.BreakpointEvent{Thread: &threadRef{vm: v, id: we.Thread}, Location: v.resolveLocation(we.Location)}
	case jdi.KindException:
		ev := jdi.ExceptionEvent{Thread: &threadRef{vm: v, id: we.Thread}}
		if obj, ok := v.toJDIValue(we.Exception).(jdi.ObjectReference); ok {
			ev.Exception = obj
		}
		if we.Catch.Class != 0 {
			loc := v.resolveLocation(we.Catch)
			ev.CatchLocation = &loc
		}
		return ev
	case jdi.KindThreadStart:
		return jdi.ThreadStartEvent{Thread: &threadRef{vm: v, id: we.Thread}}
	case jdi.KindThreadDeath:
		return jdi.ThreadDeathEvent{Thread: &threadRef{vm: v, id: we.Thread}}
	case jdi.KindClassPrepare:
		return jdi.ClassPrepareEvent{
			Thread: jdi.ThreadID(we.Thread),
			Type:   v.refType(we.TypeID, we.ClassTag, we.Signature),
		}
	case jdi.KindClassUnload:
		return jdi.ClassUnloadEvent{Signature: we.Signature}
	case jdi.KindMethodEntry:
		return jdi.MethodEntryEvent{Thread: &threadRef{vm: v, id: we.Thread}, Location: v.resolveLocation(we.Location)}
	case jdi.KindMethodExit:
		return jdi.MethodExitEvent{Thread: &threadRef{vm: v, id: we.Thread}, Location: v.resolveLocation(we.Location)}
	default:
		return jdi.FieldAccessEvent{Thread: &threadRef{vm: v, id: we.Thread}, Location: v.resolveLocation(we.Location)}
	}
}

type eventSet struct {
	vm     *vm
	policy jdi.SuspendPolicy
	events []jdi.Event
	thread uint64
}

func (s *eventSet) SuspendPolicy() jdi.SuspendPolicy { return s.policy }
func (s *eventSet) Events() []jdi.Event              { return s.events }

func (s *eventSet) Resume() error {
	switch s.policy {
	case jdi.SuspendAll:
		return s.vm.conn.resumeAll()
	case jdi.SuspendEventThread:
		if s.thread == 0 {
			return nil
		}
		return s.vm.conn.threadResume(s.thread)
	default:
		return nil
	}
}

// --- event requests ---

type requestManager struct {
	vm    *vm
	mu    sync.Mutex
	bps   []*breakpointRequest
	steps []*eventRequest
}

// eventRequest defers the wire EventRequest.Set to Enable so requests can
// be built, inspected and discarded without target traffic.
type eventRequest struct {
	vm     *vm
	kind   jdi.EventKind
	policy jdi.SuspendPolicy
	mods   []eventModifier

	mu      sync.Mutex
	id      int32
	enabled bool
}

func (r *eventRequest) ID() jdi.EventRequestID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return jdi.EventRequestID(r.id)
}

func (r *eventRequest) Enable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled {
		return nil
	}
	id, err := r.vm.conn.eventRequestSet(r.kind, uint8(r.policy), r.mods...)
	if err != nil {
		return err
	}
	r.id = id
	r.enabled = true
	return nil
}

func (r *eventRequest) Disable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return nil
	}
	r.enabled = false
	return r.vm.conn.eventRequestClear(r.kind, r.id)
}

func (r *eventRequest) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

type breakpointRequest struct {
	eventRequest
	loc jdi.Location
}

func (r *breakpointRequest) Location() jdi.Location { return r.loc }

func (m *requestManager) simple(kind jdi.EventKind, policy jdi.SuspendPolicy, mods ...eventModifier) (jdi.EventRequest, error) {
	return &eventRequest{vm: m.vm, kind: kind, policy: policy, mods: mods}, nil
}

func (m *requestManager) CreateClassPrepareRequest(policy jdi.SuspendPolicy) (jdi.EventRequest, error) {
	return m.simple(jdi.KindClassPrepare, policy)
}

func (m *requestManager) CreateThreadStartRequest(policy jdi.SuspendPolicy) (jdi.EventRequest, error) {
	return m.simple(jdi.KindThreadStart, policy)
}

func (m *requestManager) CreateThreadDeathRequest(policy jdi.SuspendPolicy) (jdi.EventRequest, error) {
	return m.simple(jdi.KindThreadDeath, policy)
}

func (m *requestManager) CreateExceptionRequest(caught, uncaught bool, policy jdi.SuspendPolicy) (jdi.EventRequest, error) {
	return m.simple(jdi.KindException, policy, exceptionModifier(caught, uncaught))
}

func (m *requestManager) CreateBreakpointRequest(loc jdi.Location, policy jdi.SuspendPolicy) (jdi.BreakpointRequest, error) {
	wloc := wireLocation{
		Tag:    m.vm.classTag(uint64(loc.Class)),
		Class:  uint64(loc.Class),
		Method: uint64(loc.Method),
		Index:  loc.Index,
	}
	req := &breakpointRequest{
		eventRequest: eventRequest{
			vm:     m.vm,
			kind:   jdi.KindBreakpoint,
			policy: policy,
			mods:   []eventModifier{locationModifier(wloc)},
		},
		loc: loc,
	}
	m.mu.Lock()
	m.bps = append(m.bps, req)
	m.mu.Unlock()
	return req, nil
}

func (m *requestManager) CreateStepRequest(thread jdi.ThreadID, size jdi.StepSize, depth jdi.StepDepth, policy jdi.SuspendPolicy, count int) (jdi.EventRequest, error) {
	mods := []eventModifier{stepModifier(uint64(thread), int32(size), int32(depth))}
	if count > 0 {
		mods = append(mods, countModifier(count))
	}
	req := &eventRequest{vm: m.vm, kind: jdi.KindSingleStep, policy: policy, mods: mods}
	m.mu.Lock()
	m.steps = append(m.steps, req)
	m.mu.Unlock()
	return req, nil
}

func (m *requestManager) BreakpointRequests() []jdi.BreakpointRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]jdi.BreakpointRequest, 0, len(m.bps))
	for _, r := range m.bps {
		out = append(out, r)
	}
	return out
}

func (m *requestManager) StepRequests() []jdi.EventRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]jdi.EventRequest, 0, len(m.steps))
	for _, r := range m.steps {
		out = append(out, r)
	}
	return out
}

func (m *requestManager) Delete(req jdi.EventRequest) error {
	err := req.Disable()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.bps {
		if jdi.EventRequest(r) == req {
			m.bps = append(m.bps[:i], m.bps[i+1:]...)
			return err
		}
	}
	for i, r := range m.steps {
		if jdi.EventRequest(r) == req {
			m.steps = append(m.steps[:i], m.steps[i+1:]...)
			return err
		}
	}
	return err
}

func (m *requestManager) ClearAllBreakpoints() error {
	err := m.vm.conn.clearAllBreakpoints()
	m.mu.Lock()
	for _, r := range m.bps {
		r.mu.Lock()
		r.enabled = false
		r.mu.Unlock()
	}
	m.bps = nil
	m.mu.Unlock()
	return err
}
