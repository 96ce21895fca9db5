package coordinator

import (
	"time"

	"golang.org/x/exp/slices"
)

// DefaultClientTimeout is how long a client stays active without activity.
const DefaultClientTimeout = 20 * time.Second

// ClientEntry is the liveness record of one client identity.
type ClientEntry struct {
	LastSeen time.Time // Last batch request or submission
	ID       string    // Network address of the client
}

// ClientRegistry tracks when each client was last seen and which clients
// ever contributed a result.
//
// Liveness is advisory. It drives the active_clients and total_clients
// figures and nothing else: allocation never consults it.
//
// Not safe for concurrent use; the Coordinator serializes access.
type ClientRegistry struct {
	lastSeen     map[string]time.Time // identity -> last activity
	contributors map[string]struct{}  // identities that submitted at least once
	timeout      time.Duration
}

// NewClientRegistry creates a registry evicting clients idle for timeout.
func NewClientRegistry(timeout time.Duration) *ClientRegistry {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &ClientRegistry{
		lastSeen:     make(map[string]time.Time),
		contributors: make(map[string]struct{}),
		timeout:      timeout,
	}
}

// RecordActivity upserts the last-seen time of id.
func (r *ClientRegistry) RecordActivity(id string, now time.Time) {
	if id == "" {
		return
	}
	r.lastSeen[id] = now
}

// RecordContributor marks id as having submitted results.
// It returns true the first time id is seen.
func (r *ClientRegistry) RecordContributor(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := r.contributors[id]; ok {
		return false
	}
	r.contributors[id] = struct{}{}
	return true
}

// IsContributor reports whether id ever submitted results.
func (r *ClientRegistry) IsContributor(id string) bool {
	_, ok := r.contributors[id]
	return ok
}

// EvictStale removes every client idle for at least the timeout and returns
// their ids in sorted order.
func (r *ClientRegistry) EvictStale(now time.Time) []string {
	var evicted []string
	for id, last := range r.lastSeen {
		// Inclusive: a client last seen at T is gone in a sweep at T+timeout.
		if now.Sub(last) >= r.timeout {
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		delete(r.lastSeen, id)
	}
	slices.Sort(evicted)
	return evicted
}

// Count returns the number of tracked clients.
func (r *ClientRegistry) Count() int {
	return len(r.lastSeen)
}

// Contributors returns how many distinct clients ever submitted results.
func (r *ClientRegistry) Contributors() int {
	return len(r.contributors)
}

// Get returns the entry for id.
func (r *ClientRegistry) Get(id string) (ClientEntry, bool) {
	last, ok := r.lastSeen[id]
	if !ok {
		return ClientEntry{}, false
	}
	return ClientEntry{ID: id, LastSeen: last}, true
}

// Entries returns all tracked clients ordered by id.
func (r *ClientRegistry) Entries() []ClientEntry {
	ids := make([]string, 0, len(r.lastSeen))
	for id := range r.lastSeen {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]ClientEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, ClientEntry{ID: id, LastSeen: r.lastSeen[id]})
	}
	return out
}
