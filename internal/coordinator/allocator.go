package coordinator

import (
	"golang.org/x/exp/slices"

	"github.com/dreamware/primegrid/internal/cluster"
)

// DefaultBatchSize is handed out when a session never configured a size.
const DefaultBatchSize uint64 = 100000

// AllowedBatchSizes is the fixed allow-list a session may choose from.
var AllowedBatchSizes = []uint64{
	100, 500, 1000, 5000, 10000, 50000, 100000, 500000,
	1000000, 1500000, 2000000, 2500000, 3000000, 3500000, 4000000, 4500000, 5000000,
}

// ValidBatchSize reports whether size is on the allow-list.
func ValidBatchSize(size uint64) bool {
	return slices.Contains(AllowedBatchSizes, size)
}

// BatchAllocator owns the cursor: the next integer not yet handed out.
//
// Every range returned by Allocate starts where the previous one ended, so
// the ranges issued so far partition [0, Cursor()) without gaps or overlap.
// A range is never reissued, even if its worker never reports back.
//
// Not safe for concurrent use; the Coordinator serializes access.
type BatchAllocator struct {
	cursor uint64
}

// NewBatchAllocator creates an allocator resuming at cursor.
func NewBatchAllocator(cursor uint64) *BatchAllocator {
	return &BatchAllocator{cursor: cursor}
}

// Cursor returns the next unassigned integer.
func (a *BatchAllocator) Cursor() uint64 {
	return a.cursor
}

// Peek returns the range Allocate(size) would hand out, without advancing.
func (a *BatchAllocator) Peek(size uint64) cluster.Range {
	return cluster.Range{Start: a.cursor, End: a.cursor + size - 1}
}

// Allocate hands out [cursor, cursor+size-1] and advances the cursor by size.
// size must be positive.
func (a *BatchAllocator) Allocate(size uint64) cluster.Range {
	r := a.Peek(size)
	a.cursor += size
	return r
}
