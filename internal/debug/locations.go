package debug

import (
	"log"
	"path/filepath"

	"github.com/ctagard/jdb-mcp/internal/jdi"
)

// locationResolver maintains the file-key to loaded-class mapping and
// answers "which concrete code locations exist for this file and line".
// Classes are inserted under the source short name they declare, which may
// differ between classes compiled from the same file.
type locationResolver struct {
	classes map[string][]jdi.ReferenceType
}

func newLocationResolver() *locationResolver {
	return &locationResolver{classes: make(map[string][]jdi.ReferenceType)}
}

// addClass registers rt under its declared source name. Types without
// source information are skipped.
func (r *locationResolver) addClass(rt jdi.ReferenceType) (key string, ok bool) {
	key, err := rt.SourceName()
	if err != nil || key == "" {
		return "", false
	}
	for _, existing := range r.classes[key] {
		if existing.TypeID() == rt.TypeID() {
			return key, true
		}
	}
	r.classes[key] = append(r.classes[key], rt)
	return key, true
}

// locations collects the wire locations matching file and line across every
// class registered under the file's short name, deduplicated by
// (sourcePath, sourceName, line). Classes that fail to enumerate are
// skipped with a log line; missing line info is tolerated silently.
func (r *locationResolver) locations(file string, line int) []jdi.Location {
	key := filepath.Base(file)
	type spot struct {
		path, name string
		line       int
	}
	seen := make(map[spot]struct{})
	var out []jdi.Location
	for _, rt := range r.classes[key] {
		locs, err := rt.LocationsOfLine(line)
		if err != nil {
			if !jdi.IsDisconnected(err) {
				log.Printf("locations of line %s:%d in %s: %v", key, line, rt.Name(), err)
			}
			continue
		}
		for _, loc := range locs {
			if loc.Line != line {
				continue
			}
			if loc.SourceName != "" && loc.SourceName != key {
				continue
			}
			s := spot{loc.SourcePath, loc.SourceName, loc.Line}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, loc)
		}
	}
	return out
}
