package debug

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ctagard/jdb-mcp/internal/jdi"
	"github.com/ctagard/jdb-mcp/pkg/types"
)

// missingValue is rendered for fields whose value cannot be read, so a
// partially unreadable object still marshals.
const missingValue = "???"

// summaryElems is the number of array elements shown before eliding.
const summaryElems = 3

// refBoxPattern recognizes single-field mutable reference boxes such as
// scala.runtime.ObjectRef; their summary recurses into the boxed value.
var refBoxPattern = regexp.MustCompile(`\.[A-Z][a-z]+Ref$`)

// valueMarshaler renders target values into client-facing DebugValues and
// parses client text back into target values. Every object that passes
// through it is remembered in the session's identity cache so later
// requests can dereference it.
type valueMarshaler struct {
	cache *IdentityCache
}

func newValueMarshaler(cache *IdentityCache) *valueMarshaler {
	return &valueMarshaler{cache: cache}
}

// marshal converts a target value into its client representation.
func (m *valueMarshaler) marshal(v jdi.Value) (types.DebugValue, bool) {
	switch v := v.(type) {
	case nil, jdi.NullValue:
		return types.DebugValue{Kind: types.ValNull, Summary: "null", TypeName: "null"}, true

	case jdi.StringReference:
		m.cache.Remember(v)
		return types.DebugValue{
			Kind:     types.ValString,
			Summary:  m.summary(v, 0),
			TypeName: typeNameOf(v),
			Fields:   m.fieldsOf(v),
			ObjectID: uint64(v.UniqueID()),
		}, true

	case jdi.ArrayReference:
		m.cache.Remember(v)
		length, err := v.Length()
		if err != nil {
			return types.DebugValue{}, false
		}
		typeName := typeNameOf(v)
		return types.DebugValue{
			Kind:            types.ValArray,
			Summary:         m.summary(v, 0),
			TypeName:        typeName,
			ElementTypeName: strings.TrimSuffix(typeName, "[]"),
			Length:          length,
			ObjectID:        uint64(v.UniqueID()),
		}, true

	case jdi.ObjectReference:
		m.cache.Remember(v)
		return types.DebugValue{
			Kind:     types.ValObject,
			Summary:  m.summary(v, 0),
			TypeName: typeNameOf(v),
			Fields:   m.fieldsOf(v),
			ObjectID: uint64(v.UniqueID()),
		}, true

	default:
		return types.DebugValue{
			Kind:     types.ValPrimitive,
			Summary:  m.summary(v, 0),
			TypeName: primitiveTypeName(v),
		}, true
	}
}

// summary renders the short textual form of a value. depth bounds the
// reference-box recursion.
func (m *valueMarshaler) summary(v jdi.Value, depth int) string {
	switch v := v.(type) {
	case nil, jdi.NullValue:
		return "null"
	case jdi.BooleanValue:
		return strconv.FormatBool(bool(v))
	case jdi.ByteValue:
		return strconv.FormatInt(int64(v), 10)
	case jdi.CharValue:
		return "'" + string(rune(v)) + "'"
	case jdi.ShortValue:
		return strconv.FormatInt(int64(v), 10)
	case jdi.IntValue:
		return strconv.FormatInt(int64(v), 10)
	case jdi.LongValue:
		return strconv.FormatInt(int64(v), 10)
	case jdi.FloatValue:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case jdi.DoubleValue:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case jdi.VoidValue:
		return "void"
	case jdi.StringReference:
		text, err := v.Text()
		if err != nil {
			return missingValue
		}
		return `"` + text + `"`
	case jdi.ArrayReference:
		return m.arraySummary(v, depth)
	case jdi.ObjectReference:
		return m.objectSummary(v, depth)
	default:
		return missingValue
	}
}

func (m *valueMarshaler) arraySummary(arr jdi.ArrayReference, depth int) string {
	length, err := arr.Length()
	if err != nil {
		return missingValue
	}
	n := length
	if n > summaryElems {
		n = summaryElems
	}
	elems := make([]string, 0, n+1)
	if n > 0 {
		vals, err := arr.Values(0, n)
		if err != nil {
			return missingValue
		}
		for _, v := range vals {
			elems = append(elems, m.summary(v, depth+1))
		}
	}
	if length > summaryElems {
		elems = append(elems, "...")
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

func (m *valueMarshaler) objectSummary(obj jdi.ObjectReference, depth int) string {
	rt, err := obj.ReferenceType()
	if err != nil {
		return missingValue
	}
	name := rt.Name()
	if depth < 8 && refBoxPattern.MatchString(name) {
		if boxed, ok := m.boxedValue(obj, rt); ok {
			return m.summary(boxed, depth+1)
		}
	}
	return "Instance of " + lastNameComponent(name)
}

// boxedValue reads the single elem field of a recognized reference box.
func (m *valueMarshaler) boxedValue(obj jdi.ObjectReference, rt jdi.ReferenceType) (jdi.Value, bool) {
	fields, err := rt.Fields()
	if err != nil {
		return nil, false
	}
	for _, f := range fields {
		if f.Name == "elem" && !f.IsStatic() {
			v, err := obj.GetValue(f)
			if err != nil {
				return nil, false
			}
			return v, true
		}
	}
	return nil, false
}

// fieldsOf enumerates the fields of obj walking the declaring-class chain
// upward, assigning each field a stable ordinal in the concatenated list.
// Unreadable values render as the missing sentinel instead of failing the
// whole enumeration.
func (m *valueMarshaler) fieldsOf(obj jdi.ObjectReference) []types.ClassField {
	rt, err := obj.ReferenceType()
	if err != nil {
		return nil
	}
	var out []types.ClassField
	index := 0
	for rt != nil {
		fields, err := rt.Fields()
		if err != nil {
			break
		}
		for _, f := range fields {
			summary := missingValue
			var v jdi.Value
			if f.IsStatic() {
				v, err = rt.GetValue(f)
			} else {
				v, err = obj.GetValue(f)
			}
			if err == nil {
				summary = m.summary(v, 1)
			}
			out = append(out, types.ClassField{
				Index:    index,
				Name:     f.Name,
				TypeName: jdi.TypeNameFromSignature(f.Signature),
				Summary:  summary,
			})
			index++
		}
		super, err := rt.Superclass()
		if err != nil {
			break
		}
		rt = super
	}
	return out
}

// stringToValue parses client text into a target value for the slot
// signature. The vm is needed to mint string mirrors. Unsupported target
// types report ok=false.
func stringToValue(vm jdi.VirtualMachine, text, signature string) (jdi.Value, bool) {
	trimmed := strings.TrimSpace(text)
	switch signature {
	case "Z":
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, false
		}
		return jdi.BooleanValue(b), true
	case "B":
		n, err := strconv.ParseInt(trimmed, 10, 8)
		if err != nil {
			return nil, false
		}
		return jdi.ByteValue(n), true
	case "C":
		runes := []rune(trimmed)
		if len(runes) == 3 && runes[0] == '\'' && runes[2] == '\'' {
			return jdi.CharValue(runes[1]), true
		}
		if len(runes) == 1 {
			return jdi.CharValue(runes[0]), true
		}
		return nil, false
	case "S":
		n, err := strconv.ParseInt(trimmed, 10, 16)
		if err != nil {
			return nil, false
		}
		return jdi.ShortValue(n), true
	case "I":
		n, err := strconv.ParseInt(trimmed, 10, 32)
		if err != nil {
			return nil, false
		}
		return jdi.IntValue(n), true
	case "J":
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, false
		}
		return jdi.LongValue(n), true
	case "F":
		f, err := strconv.ParseFloat(trimmed, 32)
		if err != nil {
			return nil, false
		}
		return jdi.FloatValue(f), true
	case "D":
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, false
		}
		return jdi.DoubleValue(f), true
	case "Ljava/lang/String;":
		if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
			trimmed = trimmed[1 : len(trimmed)-1]
		}
		s, err := vm.MirrorOfString(trimmed)
		if err != nil {
			return nil, false
		}
		return s, true
	default:
		return nil, false
	}
}

func primitiveTypeName(v jdi.Value) string {
	switch v.(type) {
	case jdi.BooleanValue:
		return "boolean"
	case jdi.ByteValue:
		return "byte"
	case jdi.CharValue:
		return "char"
	case jdi.ShortValue:
		return "short"
	case jdi.IntValue:
		return "int"
	case jdi.LongValue:
		return "long"
	case jdi.FloatValue:
		return "float"
	case jdi.DoubleValue:
		return "double"
	case jdi.VoidValue:
		return "void"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func typeNameOf(obj jdi.ObjectReference) string {
	rt, err := obj.ReferenceType()
	if err != nil {
		return ""
	}
	return rt.Name()
}

func lastNameComponent(typeName string) string {
	if i := strings.LastIndex(typeName, "."); i >= 0 {
		return typeName[i+1:]
	}
	return typeName
}
