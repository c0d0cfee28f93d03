package debug

import "github.com/ctagard/jdb-mcp/internal/jdi"

// IdentityCache maps target-minted object IDs to live object handles so
// client requests can re-reference objects seen in earlier replies. Created
// with the session and cleared when it ends; there is no eviction while the
// session lives.
type IdentityCache struct {
	objects map[jdi.ObjectID]jdi.ObjectReference
}

// NewIdentityCache returns an empty cache.
func NewIdentityCache() *IdentityCache {
	return &IdentityCache{objects: make(map[jdi.ObjectID]jdi.ObjectReference)}
}

// Remember stores the handle under its ID and returns the canonical handle
// for that ID. Idempotent: remembering an already-known ID keeps and
// returns the first handle.
func (c *IdentityCache) Remember(obj jdi.ObjectReference) jdi.ObjectReference {
	if obj == nil {
		return nil
	}
	id := obj.UniqueID()
	if existing, ok := c.objects[id]; ok {
		return existing
	}
	c.objects[id] = obj
	return obj
}

// Lookup returns the handle stored under id.
func (c *IdentityCache) Lookup(id jdi.ObjectID) (jdi.ObjectReference, bool) {
	obj, ok := c.objects[id]
	return obj, ok
}

// Clear drops every handle. Called on session end; any client-held object
// ID is invalid afterwards.
func (c *IdentityCache) Clear() {
	c.objects = make(map[jdi.ObjectID]jdi.ObjectReference)
}

// Size returns the number of cached handles.
func (c *IdentityCache) Size() int { return len(c.objects) }
