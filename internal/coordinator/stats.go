package coordinator

import (
	"time"

	"github.com/dreamware/primegrid/internal/cluster"
)

// ApplySubmission returns s with one submission folded in.
//
// The primes are trusted as given: nothing checks that they are prime or
// that they fall inside a batch the caller was issued. highest_prime_found
// only ever grows, and an empty submission leaves it untouched.
func ApplySubmission(s cluster.Stats, primes []uint64, batchSize uint64, now time.Time) cluster.Stats {
	out := s.Clone()
	out.TotalPrimesFound += uint64(len(primes))
	for _, p := range primes {
		if p > out.HighestPrimeFound {
			out.HighestPrimeFound = p
		}
	}
	out.TotalNumbersProcessed += batchSize
	out.TotalBatchesCompleted++
	ts := cluster.FormatTimestamp(now)
	out.LastUpdate = &ts
	return out
}

// StatsAggregator owns the cumulative counters.
// Not safe for concurrent use; the Coordinator serializes access.
type StatsAggregator struct {
	stats cluster.Stats
}

// NewStatsAggregator creates an aggregator starting from initial.
func NewStatsAggregator(initial cluster.Stats) *StatsAggregator {
	return &StatsAggregator{stats: initial.Clone()}
}

// RecordSubmission folds one submission into the counters.
func (a *StatsAggregator) RecordSubmission(primes []uint64, batchSize uint64, now time.Time) {
	a.stats = ApplySubmission(a.stats, primes, batchSize, now)
}

// SetActiveClients stores the derived active-client count.
func (a *StatsAggregator) SetActiveClients(n int) {
	a.stats.ActiveClients = uint32(n)
}

// SetTotalClients stores the derived unique-client count.
func (a *StatsAggregator) SetTotalClients(n int) {
	a.stats.TotalClients = uint64(n)
}

// Snapshot returns a copy of the counters.
func (a *StatsAggregator) Snapshot() cluster.Stats {
	return a.stats.Clone()
}
