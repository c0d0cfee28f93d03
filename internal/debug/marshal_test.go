package debug

import (
	"testing"

	"github.com/ctagard/jdb-mcp/internal/jdi"
	"github.com/ctagard/jdb-mcp/pkg/types"
)

func TestPrimitiveSummaries(t *testing.T) {
	m := newValueMarshaler(NewIdentityCache())
	cases := []struct {
		value jdi.Value
		want  string
	}{
		{jdi.BooleanValue(true), "true"},
		{jdi.BooleanValue(false), "false"},
		{jdi.ByteValue(-3), "-3"},
		{jdi.CharValue('q'), "'q'"},
		{jdi.ShortValue(12), "12"},
		{jdi.IntValue(42), "42"},
		{jdi.LongValue(-7), "-7"},
		{jdi.FloatValue(1.5), "1.5"},
		{jdi.DoubleValue(2.25), "2.25"},
		{jdi.NullValue{}, "null"},
	}
	for _, tc := range cases {
		if got := m.summary(tc.value, 0); got != tc.want {
			t.Errorf("summary(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestStringSummaryIsQuoted(t *testing.T) {
	m := newValueMarshaler(NewIdentityCache())
	s := &fakeString{fakeObject: fakeObject{id: 1}, text: "abc"}
	if got := m.summary(s, 0); got != `"abc"` {
		t.Errorf("summary = %q", got)
	}
}

func TestArraySummaryElides(t *testing.T) {
	m := newValueMarshaler(NewIdentityCache())

	short := &fakeArray{
		fakeObject: fakeObject{id: 1},
		elems:      []jdi.Value{jdi.IntValue(1), jdi.IntValue(2), jdi.IntValue(3)},
	}
	if got := m.summary(short, 0); got != "[1, 2, 3]" {
		t.Errorf("short array summary = %q", got)
	}

	long := &fakeArray{
		fakeObject: fakeObject{id: 2},
		elems:      []jdi.Value{jdi.IntValue(1), jdi.IntValue(2), jdi.IntValue(3), jdi.IntValue(4)},
	}
	if got := m.summary(long, 0); got != "[1, 2, 3, ...]" {
		t.Errorf("long array summary = %q", got)
	}

	empty := &fakeArray{fakeObject: fakeObject{id: 3}}
	if got := m.summary(empty, 0); got != "[]" {
		t.Errorf("empty array summary = %q", got)
	}
}

func TestObjectSummary(t *testing.T) {
	m := newValueMarshaler(NewIdentityCache())
	obj := &fakeObject{id: 1, class: &fakeClass{typeID: 1, name: "scala.collection.immutable.Vector"}}
	if got := m.summary(obj, 0); got != "Instance of Vector" {
		t.Errorf("summary = %q", got)
	}
}

func TestRefBoxSummaryRecurses(t *testing.T) {
	m := newValueMarshaler(NewIdentityCache())
	boxCls := &fakeClass{
		typeID: 1,
		name:   "scala.runtime.IntRef",
		fields: []jdi.Field{{ID: 1, DeclaringType: 1, Name: "elem", Signature: "I"}},
	}
	box := &fakeObject{id: 1, class: boxCls, fieldVals: map[jdi.FieldID]jdi.Value{1: jdi.IntValue(5)}}
	if got := m.summary(box, 0); got != "5" {
		t.Errorf("box summary = %q, want the boxed value", got)
	}

	// A type that merely ends in Ref without the pattern is not a box.
	plainCls := &fakeClass{typeID: 2, name: "pkg.XRef"}
	plain := &fakeObject{id: 2, class: plainCls}
	if got := m.summary(plain, 0); got != "Instance of XRef" {
		t.Errorf("non-box summary = %q", got)
	}
}

func TestFieldEnumerationWalksSuperclasses(t *testing.T) {
	m := newValueMarshaler(NewIdentityCache())
	base := &fakeClass{
		typeID:  1,
		name:    "pkg.Base",
		fields:  []jdi.Field{{ID: 11, DeclaringType: 1, Name: "base", Signature: "I"}},
		statics: map[jdi.FieldID]jdi.Value{},
	}
	derived := &fakeClass{
		typeID: 2,
		name:   "pkg.Derived",
		super:  base,
		fields: []jdi.Field{
			{ID: 21, DeclaringType: 2, Name: "count", Signature: "I"},
			{ID: 22, DeclaringType: 2, Name: "capacity", Signature: "J", Mod: jdi.ModStatic},
			{ID: 23, DeclaringType: 2, Name: "broken", Signature: "I"},
		},
	}
	derived.statics = map[jdi.FieldID]jdi.Value{22: jdi.LongValue(64)}
	obj := &fakeObject{id: 1, class: derived, fieldVals: map[jdi.FieldID]jdi.Value{
		21: jdi.IntValue(3),
		11: jdi.IntValue(1),
	}}

	fields := m.fieldsOf(obj)
	if len(fields) != 4 {
		t.Fatalf("fieldsOf returned %d fields, want 4: %+v", len(fields), fields)
	}
	for i, f := range fields {
		if f.Index != i {
			t.Errorf("field %d has ordinal %d", i, f.Index)
		}
	}
	if fields[0].Name != "count" || fields[0].Summary != "3" || fields[0].TypeName != "int" {
		t.Errorf("field 0 = %+v", fields[0])
	}
	if fields[1].Name != "capacity" || fields[1].Summary != "64" {
		t.Errorf("static field = %+v", fields[1])
	}
	// An unreadable field renders the sentinel instead of failing.
	if fields[2].Name != "broken" || fields[2].Summary != missingValue {
		t.Errorf("broken field = %+v", fields[2])
	}
	if fields[3].Name != "base" {
		t.Errorf("superclass field = %+v", fields[3])
	}
}

func TestMarshalRemembersObjects(t *testing.T) {
	cache := NewIdentityCache()
	m := newValueMarshaler(cache)
	obj := &fakeObject{id: 123, class: &fakeClass{typeID: 1, name: "pkg.Foo"}}

	val, ok := m.marshal(obj)
	if !ok || val.Kind != types.ValObject || val.ObjectID != 123 {
		t.Fatalf("marshal = %+v, %v", val, ok)
	}
	if _, found := cache.Lookup(123); !found {
		t.Errorf("marshaled object not remembered in the identity cache")
	}
}

func TestMarshalNull(t *testing.T) {
	m := newValueMarshaler(NewIdentityCache())
	val, ok := m.marshal(jdi.NullValue{})
	if !ok || val.Kind != types.ValNull || val.Summary != "null" {
		t.Errorf("marshal(null) = %+v, %v", val, ok)
	}
}

func TestStringToValue(t *testing.T) {
	vm := newFakeVM()
	cases := []struct {
		text string
		sig  string
		want jdi.Value
	}{
		{"true", "Z", jdi.BooleanValue(true)},
		{" 42 ", "I", jdi.IntValue(42)},
		{"-1", "J", jdi.LongValue(-1)},
		{"7", "B", jdi.ByteValue(7)},
		{"9", "S", jdi.ShortValue(9)},
		{"1.5", "F", jdi.FloatValue(1.5)},
		{"2.5", "D", jdi.DoubleValue(2.5)},
		{"'x'", "C", jdi.CharValue('x')},
		{"y", "C", jdi.CharValue('y')},
	}
	for _, tc := range cases {
		got, ok := stringToValue(vm, tc.text, tc.sig)
		if !ok || got != tc.want {
			t.Errorf("stringToValue(%q, %s) = %v, %v; want %v", tc.text, tc.sig, got, ok, tc.want)
		}
	}

	// Strings strip one pair of surrounding quotes.
	got, ok := stringToValue(vm, `"abc"`, "Ljava/lang/String;")
	if !ok {
		t.Fatalf("string parse failed")
	}
	if text, _ := got.(jdi.StringReference).Text(); text != "abc" {
		t.Errorf("string mirror = %q", text)
	}
	got, ok = stringToValue(vm, `bare`, "Ljava/lang/String;")
	if !ok {
		t.Fatalf("bare string parse failed")
	}
	if text, _ := got.(jdi.StringReference).Text(); text != "bare" {
		t.Errorf("bare string mirror = %q", text)
	}

	// Failures.
	if _, ok := stringToValue(vm, "notanint", "I"); ok {
		t.Errorf("parsed garbage int")
	}
	if _, ok := stringToValue(vm, "xy", "C"); ok {
		t.Errorf("parsed two-rune char")
	}
	if _, ok := stringToValue(vm, "1", "Lpkg/Foo;"); ok {
		t.Errorf("parsed unsupported target type")
	}
}

func TestTypeNameFromSignature(t *testing.T) {
	cases := map[string]string{
		"I":                   "int",
		"Z":                   "boolean",
		"J":                   "long",
		"Ljava/lang/String;":  "java.lang.String",
		"[I":                  "int[]",
		"[[J":                 "long[][]",
		"[Ljava/lang/Object;": "java.lang.Object[]",
	}
	for sig, want := range cases {
		if got := jdi.TypeNameFromSignature(sig); got != want {
			t.Errorf("TypeNameFromSignature(%q) = %q, want %q", sig, got, want)
		}
	}
}
