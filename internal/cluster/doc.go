// Package cluster holds the wire types shared by the PrimeGrid coordinator,
// its storage layer and the workers, plus a small JSON-over-HTTP client.
//
// # Overview
//
// Workers never talk to each other. Each one loops against the coordinator:
//
//	┌──────────┐  GET /get_batch      ┌──────────────┐
//	│  Worker  │ ───────────────────▶ │ Coordinator  │
//	│          │ ◀─────────────────── │              │
//	│  sieve   │  {range, size}       │ - cursor     │
//	│  [a, b]  │                      │ - stats      │
//	│          │  POST /submit_primes │ - history    │
//	│          │ ───────────────────▶ │              │
//	└──────────┘  [2, 3, 5, ...]      └──────────────┘
//
// # Wire Format
//
// A batch range is encoded as a two element array so the body of
// GET /get_batch reads {"range":[0,99999],"size":100000}. Timestamps use
// TimestampLayout; history entries are bucketed by minute (MinuteBucket).
//
// # Persistence Shapes
//
// State and HistoryEntry double as the on-disk format of the state file
// and the history log; see package storage.
//
// # Client
//
// Client wraps GetJSON/PostJSON with a cookie jar, because the coordinator
// keeps the configured batch size and the logged-in user in a session.
// Non-2xx answers surface as *StatusError.
package cluster
