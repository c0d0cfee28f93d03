package jdi

import "strings"

// Value is the interface implemented by all mirrored target values.
type Value interface {
	IsValue()
}

// BooleanValue mirrors a Java boolean.
type BooleanValue bool

// ByteValue mirrors a Java byte.
type ByteValue int8

// CharValue mirrors a Java char.
type CharValue rune

// ShortValue mirrors a Java short.
type ShortValue int16

// IntValue mirrors a Java int.
type IntValue int32

// LongValue mirrors a Java long.
type LongValue int64

// FloatValue mirrors a Java float.
type FloatValue float32

// DoubleValue mirrors a Java double.
type DoubleValue float64

// VoidValue is the result of invoking a void method.
type VoidValue struct{}

// NullValue mirrors a null reference.
type NullValue struct{}

func (BooleanValue) IsValue() {}
func (ByteValue) IsValue()    {}
func (CharValue) IsValue()    {}
func (ShortValue) IsValue()   {}
func (IntValue) IsValue()     {}
func (LongValue) IsValue()    {}
func (FloatValue) IsValue()   {}
func (DoubleValue) IsValue()  {}
func (VoidValue) IsValue()    {}
func (NullValue) IsValue()    {}

// ObjectReference mirrors an object instance in the target VM.
type ObjectReference interface {
	Value
	UniqueID() ObjectID
	ReferenceType() (ReferenceType, error)
	// GetValue reads an instance field. Static fields are read through the
	// declaring ReferenceType instead.
	GetValue(f Field) (Value, error)
	// InvokeMethod invokes m on this object in the given thread. The thread
	// must be suspended by an event.
	InvokeMethod(thread ThreadID, m Method, args []Value, opts InvokeOptions) (Value, error)
}

// StringReference mirrors a string instance.
type StringReference interface {
	ObjectReference
	Text() (string, error)
}

// ArrayReference mirrors an array instance.
type ArrayReference interface {
	ObjectReference
	Length() (int, error)
	// Values reads length elements starting at index first.
	Values(first, length int) ([]Value, error)
}

// TypeNameFromSignature converts a JVM type signature into a dotted source
// name: "I" becomes "int", "Ljava/lang/String;" becomes "java.lang.String",
// "[[J" becomes "long[][]". Unrecognized signatures are returned verbatim.
func TypeNameFromSignature(sig string) string {
	dims := 0
	for strings.HasPrefix(sig, "[") {
		dims++
		sig = sig[1:]
	}
	var name string
	switch {
	case sig == "Z":
		name = "boolean"
	case sig == "B":
		name = "byte"
	case sig == "C":
		name = "char"
	case sig == "S":
		name = "short"
	case sig == "I":
		name = "int"
	case sig == "J":
		name = "long"
	case sig == "F":
		name = "float"
	case sig == "D":
		name = "double"
	case sig == "V":
		name = "void"
	case strings.HasPrefix(sig, "L") && strings.HasSuffix(sig, ";"):
		name = strings.ReplaceAll(sig[1:len(sig)-1], "/", ".")
	default:
		name = sig
	}
	return name + strings.Repeat("[]", dims)
}
