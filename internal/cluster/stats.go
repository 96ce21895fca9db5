package cluster

// Stats is the cumulative progress of the whole search. It is served by
// GET /get_stats and persisted inside State.
type Stats struct {
	// LastUpdate is nil until the first submission, then a TimestampLayout string.
	LastUpdate            *string `json:"last_update"`
	TotalPrimesFound      uint64  `json:"total_primes_found"`
	HighestPrimeFound     uint64  `json:"highest_prime_found"`
	TotalBatchesCompleted uint64  `json:"total_batches_completed"`
	TotalClients          uint64  `json:"total_clients"`
	TotalNumbersProcessed uint64  `json:"total_numbers_processed"`
	ActiveClients         uint32  `json:"active_clients"`
}

// Clone returns a deep copy of s.
func (s Stats) Clone() Stats {
	out := s
	if s.LastUpdate != nil {
		ts := *s.LastUpdate
		out.LastUpdate = &ts
	}
	return out
}

// State is the snapshot written after every mutation: the allocation
// cursor and the stats it belongs to, always together.
type State struct {
	Stats         Stats  `json:"stats"`
	CurrentNumber uint64 `json:"current_number"`
}

// HistoryEntry is one minute-bucketed sample of the cumulative counters.
type HistoryEntry struct {
	Timestamp             string `json:"timestamp"`
	TotalPrimesFound      uint64 `json:"total_primes_found"`
	TotalBatchesCompleted uint64 `json:"total_batches_completed"`
	TotalNumbersProcessed uint64 `json:"total_numbers_processed"`
	ActiveClients         uint32 `json:"active_clients"`
}
