package cluster

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the layout of every timestamp the coordinator persists
// or serves (last_update, history entries).
const TimestampLayout = "2006-01-02 15:04:05"

// minuteLayout truncates TimestampLayout to the minute bucket.
const minuteLayout = "2006-01-02 15:04"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// MinuteBucket returns the minute bucket of t ("2006-01-02 15:04").
func MinuteBucket(t time.Time) string {
	return t.Format(minuteLayout)
}

// BucketOf returns the minute bucket of a persisted timestamp string.
// Timestamps shorter than a bucket are returned unchanged.
func BucketOf(ts string) string {
	if len(ts) < len(minuteLayout) {
		return ts
	}
	return ts[:len(minuteLayout)]
}

// Range is a closed interval of integers [Start, End] handed to one worker.
// On the wire it is a two element array: [start, end].
type Range struct {
	Start uint64
	End   uint64
}

// Size returns the number of integers in the range.
func (r Range) Size() uint64 {
	return r.End - r.Start + 1
}

// Contains reports whether n lies inside the range.
func (r Range) Contains(n uint64) bool {
	return n >= r.Start && n <= r.End
}

// MarshalJSON encodes the range as [start, end].
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint64{r.Start, r.End})
}

// UnmarshalJSON decodes a [start, end] pair.
func (r *Range) UnmarshalJSON(data []byte) error {
	var pair []uint64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("range: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("range: want 2 elements, got %d", len(pair))
	}
	if pair[1] < pair[0] {
		return fmt.Errorf("range: end %d before start %d", pair[1], pair[0])
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

// BatchResponse is the body of GET /get_batch.
type BatchResponse struct {
	Range Range  `json:"range"`
	Size  uint64 `json:"size"`
}

// SetBatchSizeRequest is the body of POST /set_batch_size.
type SetBatchSizeRequest struct {
	Size uint64 `json:"size"`
}

// StatusResponse is the generic success or error body.
type StatusResponse struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Credentials is the body of POST /register and POST /login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserProgress is the body of GET /user/progress.
type UserProgress struct {
	TotalPrimesFound      uint64 `json:"total_primes_found"`
	TotalNumbersProcessed uint64 `json:"total_numbers_processed"`
}

// LeaderboardEntry is one row of GET /leaderboard.
type LeaderboardEntry struct {
	Username         string `json:"username"`
	NumbersProcessed uint64 `json:"numbers_processed"`
	PrimesFound      uint64 `json:"primes_found"`
}
