package storage

import (
	"errors"
	"sync"

	"github.com/dreamware/primegrid/internal/cluster"
)

// ErrInjected is a convenience failure for MemoryStore.FailOn in tests.
var ErrInjected = errors.New("injected storage failure")

// Store defines the interface for coordinator persistence.
// All implementations must be thread-safe for concurrent access.
type Store interface {
	// LoadState returns the last saved snapshot.
	// ok is false when nothing was ever saved (cold start).
	LoadState() (state cluster.State, ok bool, err error)

	// SaveState overwrites the snapshot in full.
	SaveState(state cluster.State) error

	// LoadHistory returns the history log, empty when none was saved.
	LoadHistory() ([]cluster.HistoryEntry, error)

	// SaveHistory rewrites the full history log.
	SaveHistory(entries []cluster.HistoryEntry) error

	// AppendPrimes appends primes to the ledger, one line each.
	// The ledger is never rewritten.
	AppendPrimes(primes []uint64) error
}

// Op names a Store write for failure injection and statistics.
type Op string

const (
	OpSaveState    Op = "save_state"
	OpSaveHistory  Op = "save_history"
	OpAppendPrimes Op = "append_primes"
)

// StoreStats counts successful writes per operation.
type StoreStats struct {
	StateWrites   int // Number of SaveState calls that succeeded
	HistoryWrites int // Number of SaveHistory calls that succeeded
	LedgerLines   int // Number of primes appended to the ledger
}

// MemoryStore implements Store in memory.
// Uses sync.RWMutex for thread-safe concurrent access.
type MemoryStore struct {
	failures map[Op]error
	state    *cluster.State
	history  []cluster.HistoryEntry
	primes   []uint64
	stats    StoreStats
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{failures: make(map[Op]error)}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (m *MemoryStore) FailOn(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// LoadState returns a copy of the saved snapshot.
func (m *MemoryStore) LoadState() (cluster.State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return cluster.State{}, false, nil
	}
	out := *m.state
	out.Stats = m.state.Stats.Clone()
	return out, true, nil
}

// SaveState stores a copy of state.
func (m *MemoryStore) SaveState(state cluster.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[OpSaveState]; err != nil {
		return err
	}
	state.Stats = state.Stats.Clone()
	m.state = &state
	m.stats.StateWrites++
	return nil
}

// LoadHistory returns a copy of the saved history.
func (m *MemoryStore) LoadHistory() ([]cluster.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]cluster.HistoryEntry(nil), m.history...), nil
}

// SaveHistory replaces the history with a copy of entries.
func (m *MemoryStore) SaveHistory(entries []cluster.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[OpSaveHistory]; err != nil {
		return err
	}
	m.history = append([]cluster.HistoryEntry(nil), entries...)
	m.stats.HistoryWrites++
	return nil
}

// AppendPrimes appends to the in-memory ledger.
func (m *MemoryStore) AppendPrimes(primes []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[OpAppendPrimes]; err != nil {
		return err
	}
	m.primes = append(m.primes, primes...)
	m.stats.LedgerLines += len(primes)
	return nil
}

// Primes returns a copy of the ledger.
func (m *MemoryStore) Primes() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]uint64(nil), m.primes...)
}

// Stats returns write statistics.
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.stats
}
