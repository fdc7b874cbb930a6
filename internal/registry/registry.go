// Package registry holds the process-wide presence table: which nickname is
// reachable through which connection mailbox.
//
// The table is a sharded github.com/orcaman/concurrent-map. Construct one
// with New at startup and pass it to every connection; there is no
// package-level instance.
package registry

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/rickgao/peerlink/internal/mailbox"
)

// Registry maps nicknames to the mailbox of the connection that registered them.
type Registry struct {
	entries cmap.ConcurrentMap[string, *mailbox.Mailbox]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: cmap.New[*mailbox.Mailbox](),
	}
}

// Register binds nickname to mb, replacing any previous binding.
// Returns true if an existing entry was replaced.
func (r *Registry) Register(nickname string, mb *mailbox.Mailbox) (replaced bool) {
	r.entries.Upsert(nickname, mb, func(exists bool, old, newValue *mailbox.Mailbox) *mailbox.Mailbox {
		replaced = exists && old != newValue
		return newValue
	})
	return replaced
}

// Unregister removes nickname. Returns false if it was not registered.
func (r *Registry) Unregister(nickname string) bool {
	_, ok := r.entries.Pop(nickname)
	return ok
}

// UnregisterIfOwner removes nickname only while it is still bound to mb.
// Connection teardown uses this so it never evicts a newer registrant.
func (r *Registry) UnregisterIfOwner(nickname string, mb *mailbox.Mailbox) bool {
	return r.entries.RemoveCb(nickname, func(_ string, v *mailbox.Mailbox, exists bool) bool {
		return exists && v == mb
	})
}

// Lookup returns the mailbox registered under nickname.
func (r *Registry) Lookup(nickname string) (*mailbox.Mailbox, bool) {
	return r.entries.Get(nickname)
}

// List returns every registered nickname except excluding, sorted.
// The result is a best-effort snapshot; concurrent registrations may or may
// not be reflected.
func (r *Registry) List(excluding string) []string {
	keys := r.entries.Keys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == excluding {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered nicknames.
func (r *Registry) Len() int {
	return r.entries.Count()
}
