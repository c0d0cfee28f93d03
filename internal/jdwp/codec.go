package jdwp

import (
	"encoding/binary"
	"fmt"

	"github.com/ctagard/jdb-mcp/internal/jdi"
)

// Command sets.
const (
	cmdSetVirtualMachine  = uint8(1)
	cmdSetReferenceType   = uint8(2)
	cmdSetClassType       = uint8(3)
	cmdSetMethod          = uint8(6)
	cmdSetObjectReference = uint8(9)
	cmdSetStringReference = uint8(10)
	cmdSetThreadReference = uint8(11)
	cmdSetArrayReference  = uint8(13)
	cmdSetEventRequest    = uint8(15)
	cmdSetStackFrame      = uint8(16)
	cmdSetEvent           = uint8(64)
)

const cmdCompositeEvent = uint8(100)

// Value tags.
const (
	tagArray       = uint8('[')
	tagByte        = uint8('B')
	tagChar        = uint8('C')
	tagObject      = uint8('L')
	tagFloat       = uint8('F')
	tagDouble      = uint8('D')
	tagInt         = uint8('I')
	tagLong        = uint8('J')
	tagShort       = uint8('S')
	tagVoid        = uint8('V')
	tagBoolean     = uint8('Z')
	tagString      = uint8('s')
	tagThread      = uint8('t')
	tagThreadGroup = uint8('g')
	tagClassLoader = uint8('l')
	tagClassObject = uint8('c')
)

func isObjectTag(tag uint8) bool {
	switch tag {
	case tagArray, tagObject, tagString, tagThread, tagThreadGroup, tagClassLoader, tagClassObject:
		return true
	}
	return false
}

// tagForSignature returns the value tag for a JVM type signature.
func tagForSignature(sig string) uint8 {
	if sig == "" {
		return tagObject
	}
	switch sig[0] {
	case 'L':
		return tagObject
	case '[':
		return tagArray
	default:
		return sig[0]
	}
}

// wireValue is a tagged JDWP value. Primitive payloads are stored as their
// raw bits in Num; object payloads store the object ID.
type wireValue struct {
	Tag uint8
	Num uint64
}

// wireLocation is a code location as it travels on the wire.
type wireLocation struct {
	Tag    uint8
	Class  uint64
	Method uint64
	Index  uint64
}

// --- encoding ---

// wbuf builds a command payload honoring the negotiated ID sizes.
type wbuf struct {
	b     []byte
	sizes IDSizes
}

func newWbuf(sizes IDSizes) *wbuf { return &wbuf{sizes: sizes} }

func (w *wbuf) u8(v uint8) { w.b = append(w.b, v) }
func (w *wbuf) u16(v uint16) {
	w.b = binary.BigEndian.AppendUint16(w.b, v)
}
func (w *wbuf) u32(v uint32) {
	w.b = binary.BigEndian.AppendUint32(w.b, v)
}
func (w *wbuf) u64(v uint64) {
	w.b = binary.BigEndian.AppendUint64(w.b, v)
}

func (w *wbuf) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *wbuf) str(s string) {
	w.u32(uint32(len(s)))
	w.b = append(w.b, s...)
}

func (w *wbuf) sized(size int32, v uint64) {
	for i := size - 1; i >= 0; i-- {
		w.b = append(w.b, byte(v>>(8*uint(i))))
	}
}

func (w *wbuf) objectID(v uint64)  { w.sized(w.sizes.ObjectID, v) }
func (w *wbuf) refTypeID(v uint64) { w.sized(w.sizes.ReferenceTypeID, v) }
func (w *wbuf) methodID(v uint64)  { w.sized(w.sizes.MethodID, v) }
func (w *wbuf) fieldID(v uint64)   { w.sized(w.sizes.FieldID, v) }
func (w *wbuf) frameID(v uint64)   { w.sized(w.sizes.FrameID, v) }

func (w *wbuf) location(loc wireLocation) {
	w.u8(loc.Tag)
	w.refTypeID(loc.Class)
	w.methodID(loc.Method)
	w.u64(loc.Index)
}

// value writes a tagged value.
func (w *wbuf) value(v wireValue) {
	w.u8(v.Tag)
	w.untaggedValue(v)
}

// untaggedValue writes just the payload of v, sized by its tag.
func (w *wbuf) untaggedValue(v wireValue) {
	switch v.Tag {
	case tagVoid:
	case tagBoolean, tagByte:
		w.u8(uint8(v.Num))
	case tagChar, tagShort:
		w.u16(uint16(v.Num))
	case tagInt, tagFloat:
		w.u32(uint32(v.Num))
	case tagLong, tagDouble:
		w.u64(v.Num)
	default:
		w.objectID(v.Num)
	}
}

// --- decoding ---

// rbuf decodes a reply payload. Errors are sticky: after the first
// malformed read every subsequent read returns zero values.
type rbuf struct {
	b     []byte
	off   int
	sizes IDSizes
	err   error
}

func newRbuf(data []byte, sizes IDSizes) *rbuf {
	return &rbuf{b: data, sizes: sizes}
}

func (r *rbuf) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("jdwp: truncated payload at offset %d", r.off)
	}
}

func (r *rbuf) take(n int) []byte {
	if r.err != nil || r.off+n > len(r.b) {
		r.fail()
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *rbuf) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *rbuf) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *rbuf) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *rbuf) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *rbuf) boolean() bool { return r.u8() != 0 }

func (r *rbuf) str() string {
	n := int(r.u32())
	b := r.take(n)
	return string(b)
}

func (r *rbuf) sized(size int32) uint64 {
	b := r.take(int(size))
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func (r *rbuf) objectID() uint64  { return r.sized(r.sizes.ObjectID) }
func (r *rbuf) refTypeID() uint64 { return r.sized(r.sizes.ReferenceTypeID) }
func (r *rbuf) methodID() uint64  { return r.sized(r.sizes.MethodID) }
func (r *rbuf) fieldID() uint64   { return r.sized(r.sizes.FieldID) }
func (r *rbuf) frameID() uint64   { return r.sized(r.sizes.FrameID) }

func (r *rbuf) location() wireLocation {
	return wireLocation{
		Tag:    r.u8(),
		Class:  r.refTypeID(),
		Method: r.methodID(),
		Index:  r.u64(),
	}
}

// value reads a tagged value.
func (r *rbuf) value() wireValue {
	tag := r.u8()
	return r.untaggedValue(tag)
}

// untaggedValue reads a payload sized by tag.
func (r *rbuf) untaggedValue(tag uint8) wireValue {
	v := wireValue{Tag: tag}
	switch tag {
	case tagVoid:
	case tagBoolean, tagByte:
		v.Num = uint64(r.u8())
	case tagChar, tagShort:
		v.Num = uint64(r.u16())
	case tagInt, tagFloat:
		v.Num = uint64(r.u32())
	case tagLong, tagDouble:
		v.Num = r.u64()
	default:
		v.Num = r.objectID()
	}
	return v
}

// arrayRegion reads an ArrayReference.GetValues reply: primitive element
// regions carry untagged values, object regions carry tagged ones.
func (r *rbuf) arrayRegion() []wireValue {
	tag := r.u8()
	count := int(r.u32())
	out := make([]wireValue, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		if isObjectTag(tag) {
			out = append(out, r.value())
		} else {
			out = append(out, r.untaggedValue(tag))
		}
	}
	return out
}

// --- composite events ---

// wireEvent is one event of a composite packet, before it is bound to a
// virtual machine handle.
type wireEvent struct {
	Kind      jdi.EventKind
	Request   int32
	Thread    uint64
	Location  wireLocation
	Exception wireValue    // tagged exception object
	Catch     wireLocation // zero Class when uncaught
	ClassTag  uint8
	TypeID    uint64
	Signature string
}

func decodeComposite(data []byte, sizes IDSizes) (eventSetMsg, error) {
	r := newRbuf(data, sizes)
	msg := eventSetMsg{policy: jdi.SuspendPolicy(r.u8())}
	count := int(r.u32())
	for i := 0; i < count; i++ {
		kind := jdi.EventKind(r.u8())
		ev := wireEvent{Kind: kind, Request: int32(r.u32())}
		switch kind {
		case jdi.KindVMStart, jdi.KindThreadStart, jdi.KindThreadDeath:
			ev.Thread = r.objectID()
		case jdi.KindSingleStep, jdi.KindBreakpoint, jdi.KindMethodEntry, jdi.KindMethodExit:
			ev.Thread = r.objectID()
			ev.Location = r.location()
		case jdi.KindException:
			ev.Thread = r.objectID()
			ev.Location = r.location()
			ev.Exception = r.value()
			ev.Catch = r.location()
		case jdi.KindClassPrepare:
			ev.Thread = r.objectID()
			ev.ClassTag = r.u8()
			ev.TypeID = r.refTypeID()
			ev.Signature = r.str()
			r.u32() // class status
		case jdi.KindClassUnload:
			ev.Signature = r.str()
		case jdi.KindFieldAccess:
			ev.Thread = r.objectID()
			ev.Location = r.location()
			ev.ClassTag = r.u8()
			ev.TypeID = r.refTypeID()
			r.fieldID()
			r.value() // tagged object
		case jdi.KindVMDeath:
			// no payload
		default:
			// Unknown kinds have unknown payloads; the rest of the packet
			// cannot be decoded safely.
			return msg, fmt.Errorf("unknown event kind %d", kind)
		}
		if r.err != nil {
			return msg, r.err
		}
		msg.events = append(msg.events, ev)
	}
	return msg, nil
}
