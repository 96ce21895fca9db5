// Package storage persists the PrimeGrid coordinator: the {cursor, stats}
// snapshot, the minute-bucketed history log and the append-only primes
// ledger.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            Coordinator              │
//	│   (one save per mutating call)      │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│           Store interface           │
//	│  State · History · Primes ledger    │
//	└─────────────────────────────────────┘
//	          │                  │
//	          ▼                  ▼
//	   ┌────────────┐     ┌────────────┐
//	   │ FileStore  │     │ MemoryStore│
//	   └────────────┘     └────────────┘
//
// # Files
//
// FileStore keeps three files in its data directory:
//
//	server_state.json  {"current_number": N, "stats": {...}}, replaced on every save
//	stats_log.json     [HistoryEntry, ...], rewritten in full, one entry per minute
//	all_primes.txt     one decimal prime per line, append only
//
// State and history are written to a temp file and renamed into place, so an
// interrupted write leaves the previous document readable. The ledger has no
// such guarantee: a crash can truncate its last line, and a retried
// submission can repeat primes.
//
// # Concurrency
//
// Both implementations are safe for concurrent use. In practice the
// coordinator calls them while holding its own lock, so writes arrive
// already totally ordered.
//
// # Testing
//
// MemoryStore records writes (Stats, Primes) and can be told to fail a given
// operation with FailOn, which is how coordinator tests exercise the
// persistence-failure path.
package storage
