// Package coordinator implements the control plane of PrimeGrid: it hands out
// disjoint ranges of integers to workers, aggregates their reported primes
// into cumulative statistics and keeps everything durable across restarts.
//
// # Overview
//
// A single Coordinator owns all mutable search state. Workers interact with it
// through two operations:
//
//   - RequestBatch assigns the next contiguous range [cursor, cursor+size-1]
//     and advances the cursor.
//   - ReportResult folds a submission (primes plus batch size) into the
//     counters and appends the primes to the ledger.
//
// # Architecture
//
//	┌──────────────────────────────────────┐
//	│             COORDINATOR              │
//	│               (one mutex)            │
//	├──────────────────────────────────────┤
//	│  BatchAllocator   cursor             │
//	│  ClientRegistry   last-seen, unique  │
//	│  StatsAggregator  cumulative totals  │
//	│  History          one row / minute   │
//	└──────────────┬───────────────────────┘
//	               │ storage.Store
//	     ┌─────────┼──────────┐
//	     ▼         ▼          ▼
//	  snapshot   history    ledger
//
// The components themselves hold no locks. Every logical operation takes the
// coordinator mutex once and runs start to finish under it, including the
// storage writes, so the persisted snapshots form the same total order as the
// in-memory state.
//
// # Persistence
//
// Mutations are applied tentatively, persisted, then committed. If a write
// fails the in-memory state is left as it was and the caller gets the error:
//
//	RequestBatch:  peek range → SaveState(cursor', stats) → advance cursor
//	ReportResult:  compute stats' → AppendPrimes → SaveState → commit stats'
//	               → history sample (best effort) → user progress (best effort)
//
// The ledger is append-only. A submission whose ledger append succeeded but
// whose snapshot write failed leaves its primes in the ledger without being
// counted.
//
// # Liveness
//
// A client is identified by its network address. It counts as active until
// the first eviction sweep at or after last-seen + ClientTimeout. Liveness
// drives the active_clients figure only; a batch issued to a client that
// then disappears is never reassigned.
//
// # Background Loops
//
// Start launches two tickers, the eviction sweep and the periodic history
// sample. Stop cancels them, waits for both to exit and flushes state and
// history a last time.
//
// # Usage Example
//
//	coord, err := coordinator.New(coordinator.Options{
//		Store:  storage.NewMemoryStore(),
//		Logger: logger,
//	})
//	if err != nil {
//		return err
//	}
//	coord.Start(ctx)
//	defer coord.Stop()
//
//	r, err := coord.RequestBatch(ctx, "10.0.0.7", 100000)
//	// ... search r ...
//	err = coord.ReportResult(ctx, coordinator.Submission{
//		ClientID:  "10.0.0.7",
//		Primes:    primes,
//		BatchSize: r.Size(),
//	})
package coordinator
