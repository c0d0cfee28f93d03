// Package debug implements the debug control core: a single-consumer
// controller that drives a target JVM through the typed wire API in
// internal/jdi, reconciles source breakpoints with the target's dynamic
// class loading, and marshals target values for clients.
package debug

import (
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ctagard/jdb-mcp/internal/config"
)

// sourceExtensions are the file suffixes collected when scanning source
// roots.
var sourceExtensions = []string{".java", ".scala", ".kt"}

// SourceMap resolves the short source file names reported by the target VM
// to absolute project file paths. It is built from the configuration
// snapshot and read-only afterwards; Rebuild replaces the content wholesale.
type SourceMap struct {
	byName map[string][]string
}

// NewSourceMap builds a source map from the configuration snapshot.
func NewSourceMap(cfg *config.Config) *SourceMap {
	m := &SourceMap{}
	m.Rebuild(cfg)
	return m
}

// Rebuild replaces the map content from the configuration snapshot.
func (m *SourceMap) Rebuild(cfg *config.Config) {
	byName := make(map[string][]string)

	add := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		key := filepath.Base(abs)
		for _, existing := range byName[key] {
			if existing == abs {
				return
			}
		}
		byName[key] = append(byName[key], abs)
	}

	for _, f := range cfg.SourceFiles {
		add(f)
	}
	for _, root := range cfg.SourceRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable entries are skipped, not fatal
			}
			if d.IsDir() {
				return nil
			}
			for _, ext := range sourceExtensions {
				if strings.HasSuffix(path, ext) {
					add(path)
					break
				}
			}
			return nil
		})
		if err != nil {
			log.Printf("source map: scanning %s: %v", root, err)
		}
	}

	for key := range byName {
		sort.Strings(byName[key])
	}
	m.byName = byName
}

// Lookup returns every absolute path registered under the short name.
// The returned slice is shared and must not be modified.
func (m *SourceMap) Lookup(shortName string) []string {
	return m.byName[shortName]
}

// Resolve maps a client-supplied file (short name or path) to a single
// absolute path. When the short name is ambiguous the lexicographically
// first path is chosen and ambiguous is true so the caller can warn. A name
// with no mapping is returned unresolved.
func (m *SourceMap) Resolve(file string) (path string, ambiguous bool) {
	paths := m.byName[filepath.Base(file)]
	if len(paths) == 0 {
		return file, false
	}
	if filepath.IsAbs(file) {
		for _, p := range paths {
			if p == file {
				return p, false
			}
		}
	}
	return paths[0], len(paths) > 1
}
