package jdwp

import "github.com/ctagard/jdb-mcp/internal/jdi"

// Typed wrappers for the JDWP command subsets the debug core needs. Each
// wrapper encodes its request with the negotiated ID sizes and decodes the
// reply payload.

// --- VirtualMachine command set (1) ---

// classInfo is one entry of an AllClasses reply.
type classInfo struct {
	Tag       uint8
	TypeID    uint64
	Signature string
	Status    uint32
}

func (c *Connection) idSizes() (IDSizes, error) {
	data, err := c.call(cmdSetVirtualMachine, 7, nil)
	if err != nil {
		return IDSizes{}, err
	}
	r := newRbuf(data, c.sizes)
	sizes := IDSizes{
		FieldID:         int32(r.u32()),
		MethodID:        int32(r.u32()),
		ObjectID:        int32(r.u32()),
		ReferenceTypeID: int32(r.u32()),
		FrameID:         int32(r.u32()),
	}
	return sizes, r.err
}

func (c *Connection) allClasses() ([]classInfo, error) {
	data, err := c.call(cmdSetVirtualMachine, 3, nil)
	if err != nil {
		return nil, err
	}
	r := newRbuf(data, c.sizes)
	count := int(r.u32())
	out := make([]classInfo, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		out = append(out, classInfo{
			Tag:       r.u8(),
			TypeID:    r.refTypeID(),
			Signature: r.str(),
			Status:    r.u32(),
		})
	}
	return out, r.err
}

func (c *Connection) allThreads() ([]uint64, error) {
	data, err := c.call(cmdSetVirtualMachine, 4, nil)
	if err != nil {
		return nil, err
	}
	r := newRbuf(data, c.sizes)
	count := int(r.u32())
	out := make([]uint64, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		out = append(out, r.objectID())
	}
	return out, r.err
}

func (c *Connection) dispose() error {
	_, err := c.call(cmdSetVirtualMachine, 6, nil)
	return err
}

func (c *Connection) resumeAll() error {
	_, err := c.call(cmdSetVirtualMachine, 9, nil)
	return err
}

func (c *Connection) createString(s string) (uint64, error) {
	w := newWbuf(c.sizes)
	w.str(s)
	data, err := c.call(cmdSetVirtualMachine, 11, w.b)
	if err != nil {
		return 0, err
	}
	r := newRbuf(data, c.sizes)
	return r.objectID(), r.err
}

// --- ReferenceType command set (2) ---

func (c *Connection) typeSignature(typeID uint64) (string, error) {
	w := newWbuf(c.sizes)
	w.refTypeID(typeID)
	data, err := c.call(cmdSetReferenceType, 1, w.b)
	if err != nil {
		return "", err
	}
	r := newRbuf(data, c.sizes)
	return r.str(), r.err
}

// wireField is one declared field of a reference type.
type wireField struct {
	ID        uint64
	Name      string
	Signature string
	Mod       uint32
}

func (c *Connection) fieldsOf(typeID uint64) ([]wireField, error) {
	w := newWbuf(c.sizes)
	w.refTypeID(typeID)
	data, err := c.call(cmdSetReferenceType, 4, w.b)
	if err != nil {
		return nil, err
	}
	r := newRbuf(data, c.sizes)
	count := int(r.u32())
	out := make([]wireField, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		out = append(out, wireField{
			ID:        r.fieldID(),
			Name:      r.str(),
			Signature: r.str(),
			Mod:       r.u32(),
		})
	}
	return out, r.err
}

// wireMethod is one declared method of a reference type.
type wireMethod struct {
	ID        uint64
	Name      string
	Signature string
	Mod       uint32
}

func (c *Connection) methodsOf(typeID uint64) ([]wireMethod, error) {
	w := newWbuf(c.sizes)
	w.refTypeID(typeID)
	data, err := c.call(cmdSetReferenceType, 5, w.b)
	if err != nil {
		return nil, err
	}
	r := newRbuf(data, c.sizes)
	count := int(r.u32())
	out := make([]wireMethod, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		out = append(out, wireMethod{
			ID:        r.methodID(),
			Name:      r.str(),
			Signature: r.str(),
			Mod:       r.u32(),
		})
	}
	return out, r.err
}

func (c *Connection) staticFieldValues(typeID uint64, fields []uint64) ([]wireValue, error) {
	w := newWbuf(c.sizes)
	w.refTypeID(typeID)
	w.u32(uint32(len(fields)))
	for _, f := range fields {
		w.fieldID(f)
	}
	data, err := c.call(cmdSetReferenceType, 6, w.b)
	if err != nil {
		return nil, err
	}
	r := newRbuf(data, c.sizes)
	count := int(r.u32())
	out := make([]wireValue, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		out = append(out, r.value())
	}
	return out, r.err
}

func (c *Connection) sourceFile(typeID uint64) (string, error) {
	w := newWbuf(c.sizes)
	w.refTypeID(typeID)
	data, err := c.call(cmdSetReferenceType, 7, w.b)
	if err != nil {
		return "", err
	}
	r := newRbuf(data, c.sizes)
	return r.str(), r.err
}

// --- ClassType command set (3) ---

func (c *Connection) superclass(classID uint64) (uint64, error) {
	w := newWbuf(c.sizes)
	w.refTypeID(classID)
	data, err := c.call(cmdSetClassType, 1, w.b)
	if err != nil {
		return 0, err
	}
	r := newRbuf(data, c.sizes)
	return r.refTypeID(), r.err
}

// --- Method command set (6) ---

// lineEntry maps a code index to a source line.
type lineEntry struct {
	Index uint64
	Line  int32
}

func (c *Connection) lineTable(typeID, methodID uint64) ([]lineEntry, error) {
	w := newWbuf(c.sizes)
	w.refTypeID(typeID)
	w.methodID(methodID)
	data, err := c.call(cmdSetMethod, 1, w.b)
	if err != nil {
		return nil, err
	}
	r := newRbuf(data, c.sizes)
	r.u64() // start
	r.u64() // end
	count := int(r.u32())
	out := make([]lineEntry, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		out = append(out, lineEntry{Index: r.u64(), Line: int32(r.u32())})
	}
	return out, r.err
}

// slotEntry is one variable-table slot.
type slotEntry struct {
	CodeIndex uint64
	Name      string
	Signature string
	Length    uint32
	Slot      uint32
}

func (c *Connection) variableTable(typeID, methodID uint64) (argCount int32, slots []slotEntry, err error) {
	w := newWbuf(c.sizes)
	w.refTypeID(typeID)
	w.methodID(methodID)
	data, err := c.call(cmdSetMethod, 2, w.b)
	if err != nil {
		return 0, nil, err
	}
	r := newRbuf(data, c.sizes)
	argCount = int32(r.u32())
	count := int(r.u32())
	slots = make([]slotEntry, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		slots = append(slots, slotEntry{
			CodeIndex: r.u64(),
			Name:      r.str(),
			Signature: r.str(),
			Length:    r.u32(),
			Slot:      r.u32(),
		})
	}
	return argCount, slots, r.err
}

// --- ObjectReference command set (9) ---

func (c *Connection) objectRefType(objectID uint64) (uint8, uint64, error) {
	w := newWbuf(c.sizes)
	w.objectID(objectID)
	data, err := c.call(cmdSetObjectReference, 1, w.b)
	if err != nil {
		return 0, 0, err
	}
	r := newRbuf(data, c.sizes)
	tag := r.u8()
	typeID := r.refTypeID()
	return tag, typeID, r.err
}

func (c *Connection) objectFieldValues(objectID uint64, fields []uint64) ([]wireValue, error) {
	w := newWbuf(c.sizes)
	w.objectID(objectID)
	w.u32(uint32(len(fields)))
	for _, f := range fields {
		w.fieldID(f)
	}
	data, err := c.call(cmdSetObjectReference, 2, w.b)
	if err != nil {
		return nil, err
	}
	r := newRbuf(data, c.sizes)
	count := int(r.u32())
	out := make([]wireValue, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		out = append(out, r.value())
	}
	return out, r.err
}

// invokeMethod invokes a method on an object. The reply carries the return
// value and the thrown exception, if any.
func (c *Connection) invokeMethod(objectID, threadID, classID, methodID uint64, args []wireValue, options int32) (wireValue, wireValue, error) {
	w := newWbuf(c.sizes)
	w.objectID(objectID)
	w.objectID(threadID)
	w.refTypeID(classID)
	w.methodID(methodID)
	w.u32(uint32(len(args)))
	for _, a := range args {
		w.value(a)
	}
	w.u32(uint32(options))
	data, err := c.call(cmdSetObjectReference, 6, w.b)
	if err != nil {
		return wireValue{}, wireValue{}, err
	}
	r := newRbuf(data, c.sizes)
	ret := r.value()
	exc := r.value()
	return ret, exc, r.err
}

// --- StringReference command set (10) ---

func (c *Connection) stringValue(objectID uint64) (string, error) {
	w := newWbuf(c.sizes)
	w.objectID(objectID)
	data, err := c.call(cmdSetStringReference, 1, w.b)
	if err != nil {
		return "", err
	}
	r := newRbuf(data, c.sizes)
	return r.str(), r.err
}

// --- ThreadReference command set (11) ---

func (c *Connection) threadName(threadID uint64) (string, error) {
	w := newWbuf(c.sizes)
	w.objectID(threadID)
	data, err := c.call(cmdSetThreadReference, 1, w.b)
	if err != nil {
		return "", err
	}
	r := newRbuf(data, c.sizes)
	return r.str(), r.err
}

func (c *Connection) threadResume(threadID uint64) error {
	w := newWbuf(c.sizes)
	w.objectID(threadID)
	_, err := c.call(cmdSetThreadReference, 3, w.b)
	return err
}

// frameInfo is one entry of a Frames reply.
type frameInfo struct {
	Frame    uint64
	Location wireLocation
}

func (c *Connection) frames(threadID uint64, start, count int) ([]frameInfo, error) {
	w := newWbuf(c.sizes)
	w.objectID(threadID)
	w.u32(uint32(start))
	w.u32(uint32(int32(count)))
	data, err := c.call(cmdSetThreadReference, 6, w.b)
	if err != nil {
		return nil, err
	}
	r := newRbuf(data, c.sizes)
	n := int(r.u32())
	out := make([]frameInfo, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, frameInfo{Frame: r.frameID(), Location: r.location()})
	}
	return out, r.err
}

func (c *Connection) frameCount(threadID uint64) (int, error) {
	w := newWbuf(c.sizes)
	w.objectID(threadID)
	data, err := c.call(cmdSetThreadReference, 7, w.b)
	if err != nil {
		return 0, err
	}
	r := newRbuf(data, c.sizes)
	return int(int32(r.u32())), r.err
}

// --- ArrayReference command set (13) ---

func (c *Connection) arrayLength(arrayID uint64) (int, error) {
	w := newWbuf(c.sizes)
	w.objectID(arrayID)
	data, err := c.call(cmdSetArrayReference, 1, w.b)
	if err != nil {
		return 0, err
	}
	r := newRbuf(data, c.sizes)
	return int(int32(r.u32())), r.err
}

func (c *Connection) arrayValues(arrayID uint64, first, length int) ([]wireValue, error) {
	w := newWbuf(c.sizes)
	w.objectID(arrayID)
	w.u32(uint32(first))
	w.u32(uint32(length))
	data, err := c.call(cmdSetArrayReference, 2, w.b)
	if err != nil {
		return nil, err
	}
	r := newRbuf(data, c.sizes)
	out := r.arrayRegion()
	return out, r.err
}

// --- EventRequest command set (15) ---

// eventModifier encodes one request modifier.
type eventModifier func(w *wbuf)

func countModifier(count int) eventModifier {
	return func(w *wbuf) {
		w.u8(1)
		w.u32(uint32(count))
	}
}

func locationModifier(loc wireLocation) eventModifier {
	return func(w *wbuf) {
		w.u8(7)
		w.location(loc)
	}
}

func exceptionModifier(caught, uncaught bool) eventModifier {
	return func(w *wbuf) {
		w.u8(8)
		w.refTypeID(0)
		w.boolean(caught)
		w.boolean(uncaught)
	}
}

func stepModifier(threadID uint64, size, depth int32) eventModifier {
	return func(w *wbuf) {
		w.u8(10)
		w.objectID(threadID)
		w.u32(uint32(size))
		w.u32(uint32(depth))
	}
}

func (c *Connection) eventRequestSet(kind jdi.EventKind, policy uint8, mods ...eventModifier) (int32, error) {
	w := newWbuf(c.sizes)
	w.u8(uint8(kind))
	w.u8(policy)
	w.u32(uint32(len(mods)))
	for _, m := range mods {
		m(w)
	}
	data, err := c.call(cmdSetEventRequest, 1, w.b)
	if err != nil {
		return 0, err
	}
	r := newRbuf(data, c.sizes)
	return int32(r.u32()), r.err
}

func (c *Connection) eventRequestClear(kind jdi.EventKind, requestID int32) error {
	w := newWbuf(c.sizes)
	w.u8(uint8(kind))
	w.u32(uint32(requestID))
	_, err := c.call(cmdSetEventRequest, 2, w.b)
	return err
}

func (c *Connection) clearAllBreakpoints() error {
	_, err := c.call(cmdSetEventRequest, 3, nil)
	return err
}

// --- StackFrame command set (16) ---

// slotRequest names a slot and the tag of the value expected in it.
type slotRequest struct {
	Slot int32
	Tag  uint8
}

func (c *Connection) frameValues(threadID, frameID uint64, slots []slotRequest) ([]wireValue, error) {
	w := newWbuf(c.sizes)
	w.objectID(threadID)
	w.frameID(frameID)
	w.u32(uint32(len(slots)))
	for _, s := range slots {
		w.u32(uint32(s.Slot))
		w.u8(s.Tag)
	}
	data, err := c.call(cmdSetStackFrame, 1, w.b)
	if err != nil {
		return nil, err
	}
	r := newRbuf(data, c.sizes)
	count := int(r.u32())
	out := make([]wireValue, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		out = append(out, r.value())
	}
	return out, r.err
}

// slotAssignment names a slot and the value to store in it.
type slotAssignment struct {
	Slot  int32
	Value wireValue
}

func (c *Connection) frameSetValues(threadID, frameID uint64, slots []slotAssignment) error {
	w := newWbuf(c.sizes)
	w.objectID(threadID)
	w.frameID(frameID)
	w.u32(uint32(len(slots)))
	for _, s := range slots {
		w.u32(uint32(s.Slot))
		w.value(s.Value)
	}
	_, err := c.call(cmdSetStackFrame, 2, w.b)
	return err
}

func (c *Connection) frameThisObject(threadID, frameID uint64) (wireValue, error) {
	w := newWbuf(c.sizes)
	w.objectID(threadID)
	w.frameID(frameID)
	data, err := c.call(cmdSetStackFrame, 3, w.b)
	if err != nil {
		return wireValue{}, err
	}
	r := newRbuf(data, c.sizes)
	return r.value(), r.err
}
