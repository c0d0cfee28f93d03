package debug

import (
	"testing"

	"github.com/ctagard/jdb-mcp/internal/jdi"
)

func TestLocationResolverAddAndResolve(t *testing.T) {
	r := newLocationResolver()

	outer := &fakeClass{
		typeID: 1,
		name:   "pkg.Foo",
		source: "Foo.scala",
		lines: map[int][]jdi.Location{
			10: {{Class: 1, Method: 1, Line: 10, SourceName: "Foo.scala"}},
		},
	}
	nested := &fakeClass{
		typeID: 2,
		name:   "pkg.Foo$Inner",
		source: "Foo.scala",
		lines: map[int][]jdi.Location{
			10: {{Class: 2, Method: 7, Line: 10, SourceName: "Foo.scala", SourcePath: "pkg/Foo.scala"}},
		},
	}

	if key, ok := r.addClass(outer); !ok || key != "Foo.scala" {
		t.Fatalf("addClass(outer) = %q, %v", key, ok)
	}
	if _, ok := r.addClass(nested); !ok {
		t.Fatalf("addClass(nested) failed")
	}

	locs := r.locations("/proj/src/Foo.scala", 10)
	if len(locs) != 2 {
		t.Fatalf("locations = %+v, want 2 distinct spots", locs)
	}

	if locs := r.locations("/proj/src/Foo.scala", 11); len(locs) != 0 {
		t.Errorf("locations on an empty line = %+v", locs)
	}
	if locs := r.locations("Other.scala", 10); len(locs) != 0 {
		t.Errorf("locations for an unknown file = %+v", locs)
	}
}

func TestLocationResolverDedup(t *testing.T) {
	r := newLocationResolver()
	// Two classes reporting the identical source spot collapse to one.
	for id := jdi.ReferenceTypeID(1); id <= 2; id++ {
		r.addClass(&fakeClass{
			typeID: id,
			name:   "pkg.Foo",
			source: "Foo.scala",
			lines: map[int][]jdi.Location{
				5: {{Class: id, Method: 1, Line: 5, SourceName: "Foo.scala"}},
			},
		})
	}
	if locs := r.locations("Foo.scala", 5); len(locs) != 1 {
		t.Errorf("duplicate spots not collapsed: %+v", locs)
	}
}

func TestLocationResolverSkipsClassesWithoutSource(t *testing.T) {
	r := newLocationResolver()
	cls := &fakeClass{typeID: 1, name: "pkg.Gen", sourceErr: jdi.ErrAbsentInformation}
	if _, ok := r.addClass(cls); ok {
		t.Errorf("class without source information was registered")
	}
}

func TestLocationResolverIgnoresRegistrationDuplicates(t *testing.T) {
	r := newLocationResolver()
	cls := &fakeClass{typeID: 1, name: "pkg.Foo", source: "Foo.scala",
		lines: map[int][]jdi.Location{3: {{Class: 1, Line: 3, SourceName: "Foo.scala"}}}}
	r.addClass(cls)
	r.addClass(cls)
	if locs := r.locations("Foo.scala", 3); len(locs) != 1 {
		t.Errorf("re-registration duplicated locations: %+v", locs)
	}
}
