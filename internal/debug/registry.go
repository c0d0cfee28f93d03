package debug

import (
	"path/filepath"
	"sort"

	"github.com/ctagard/jdb-mcp/pkg/types"
)

// BreakpointRegistry tracks the breakpoints the user asked for. A
// breakpoint is either active (installed in the live target) or pending
// (recorded, waiting for its class to load); never both. The pending set is
// indexed by short file name so class-load events can find retry candidates
// cheaply.
//
// The registry is owned by the controller and only mutated from its
// mailbox goroutine.
type BreakpointRegistry struct {
	active  map[types.Breakpoint]struct{}
	pending map[string]map[types.Breakpoint]struct{}
}

// NewBreakpointRegistry returns an empty registry.
func NewBreakpointRegistry() *BreakpointRegistry {
	return &BreakpointRegistry{
		active:  make(map[types.Breakpoint]struct{}),
		pending: make(map[string]map[types.Breakpoint]struct{}),
	}
}

func shortName(file string) string { return filepath.Base(file) }

// AddActive records bp as active, removing any pending entry for it.
func (r *BreakpointRegistry) AddActive(bp types.Breakpoint) {
	r.removePending(bp)
	r.active[bp] = struct{}{}
}

// AddPending records bp as pending, removing any active entry for it.
func (r *BreakpointRegistry) AddPending(bp types.Breakpoint) {
	delete(r.active, bp)
	key := shortName(bp.File)
	set, ok := r.pending[key]
	if !ok {
		set = make(map[types.Breakpoint]struct{})
		r.pending[key] = set
	}
	set[bp] = struct{}{}
}

func (r *BreakpointRegistry) removePending(bp types.Breakpoint) {
	key := shortName(bp.File)
	if set, ok := r.pending[key]; ok {
		delete(set, bp)
		if len(set) == 0 {
			delete(r.pending, key)
		}
	}
}

// Remove deletes bp from both sets.
func (r *BreakpointRegistry) Remove(bp types.Breakpoint) {
	delete(r.active, bp)
	r.removePending(bp)
}

// ClearAll empties both sets.
func (r *BreakpointRegistry) ClearAll() {
	r.active = make(map[types.Breakpoint]struct{})
	r.pending = make(map[string]map[types.Breakpoint]struct{})
}

// DemoteAllToPending moves every active breakpoint to pending. Called on
// session disconnect so a later session re-installs them as classes load.
func (r *BreakpointRegistry) DemoteAllToPending() {
	for bp := range r.active {
		r.AddPending(bp)
	}
	r.active = make(map[types.Breakpoint]struct{})
}

// IsActive reports whether bp is currently active.
func (r *BreakpointRegistry) IsActive(bp types.Breakpoint) bool {
	_, ok := r.active[bp]
	return ok
}

// PendingForKey returns the pending breakpoints recorded under the short
// file name key, sorted by file then line.
func (r *BreakpointRegistry) PendingForKey(key string) []types.Breakpoint {
	return sortedBreakpoints(r.pending[key])
}

// List returns the active and pending sets, each sorted by file then line.
func (r *BreakpointRegistry) List() types.BreakpointList {
	merged := make(map[types.Breakpoint]struct{})
	for _, set := range r.pending {
		for bp := range set {
			merged[bp] = struct{}{}
		}
	}
	return types.BreakpointList{
		Active:  sortedBreakpoints(r.active),
		Pending: sortedBreakpoints(merged),
	}
}

func sortedBreakpoints(set map[types.Breakpoint]struct{}) []types.Breakpoint {
	out := make([]types.Breakpoint, 0, len(set))
	for bp := range set {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}
