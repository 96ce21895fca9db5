package coordinator

import (
	"time"

	"github.com/dreamware/primegrid/internal/cluster"
)

// DefaultHistoryInterval is the period of the safety-net history append.
const DefaultHistoryInterval = 60 * time.Second

// History is the ordered, append-only sequence of minute samples.
// At most one entry exists per minute bucket.
// Not safe for concurrent use; the Coordinator serializes access.
type History struct {
	entries []cluster.HistoryEntry
}

// NewHistory resumes from previously persisted entries.
func NewHistory(entries []cluster.HistoryEntry) *History {
	return &History{entries: append([]cluster.HistoryEntry(nil), entries...)}
}

// Append samples s at now. If the last entry already belongs to the same
// minute bucket nothing happens and Append returns false.
func (h *History) Append(now time.Time, s cluster.Stats) bool {
	if n := len(h.entries); n > 0 && cluster.BucketOf(h.entries[n-1].Timestamp) == cluster.MinuteBucket(now) {
		return false
	}
	h.entries = append(h.entries, cluster.HistoryEntry{
		Timestamp:             cluster.FormatTimestamp(now),
		TotalPrimesFound:      s.TotalPrimesFound,
		TotalBatchesCompleted: s.TotalBatchesCompleted,
		TotalNumbersProcessed: s.TotalNumbersProcessed,
		ActiveClients:         s.ActiveClients,
	})
	return true
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Truncate drops every entry past n. Used to undo an Append whose write failed.
func (h *History) Truncate(n int) {
	if n >= 0 && n < len(h.entries) {
		h.entries = h.entries[:n]
	}
}

// Entries returns a copy of the sequence.
func (h *History) Entries() []cluster.HistoryEntry {
	return append([]cluster.HistoryEntry{}, h.entries...)
}
