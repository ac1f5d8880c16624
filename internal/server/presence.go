package server

import (
	"sort"
	"sync"
)

// Presence is the authoritative map of online identities to their current
// connection. All access goes through one mutex.
type Presence struct {
	mu      sync.Mutex
	entries map[string]Peer
}

// NewPresence returns an empty registry.
func NewPresence() *Presence {
	return &Presence{entries: make(map[string]Peer)}
}

// Register binds identity to p, replacing any previous binding. The replaced
// connection is returned so callers can log a re-join.
func (r *Presence) Register(identity string, p Peer) Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.entries[identity]
	r.entries[identity] = p
	return previous
}

// UnregisterByIdentity removes identity and returns the connection it was
// bound to. Absent identities are a no-op.
func (r *Presence) UnregisterByIdentity(identity string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[identity]
	if ok {
		delete(r.entries, identity)
	}
	return p, ok
}

// UnregisterByHandle finds the identity bound to p, removes it and returns it.
func (r *Presence) UnregisterByHandle(p Peer) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for identity, bound := range r.entries {
		if bound == p {
			delete(r.entries, identity)
			return identity, true
		}
	}
	return "", false
}

// Bound reports whether any identity is still bound to p.
func (r *Presence) Bound(p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, bound := range r.entries {
		if bound == p {
			return true
		}
	}
	return false
}

// Lookup returns the connection currently bound to identity.
func (r *Presence) Lookup(identity string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[identity]
	return p, ok
}

// Identities returns the online identities in sorted order.
func (r *Presence) Identities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.entries))
	for identity := range r.entries {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}

// Len reports how many identities are online.
func (r *Presence) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
