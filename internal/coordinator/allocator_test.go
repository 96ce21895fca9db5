package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamware/primegrid/internal/cluster"
)

func TestValidBatchSize(t *testing.T) {
	tests := []struct {
		size uint64
		want bool
	}{
		{size: 100, want: true},
		{size: 100000, want: true},
		{size: 5000000, want: true},
		{size: 0, want: false},
		{size: 99, want: false},
		{size: 200, want: false},
		{size: 5000001, want: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidBatchSize(tt.size), "size %d", tt.size)
	}
	assert.True(t, ValidBatchSize(DefaultBatchSize))
}

// TestBatchAllocatorContiguous verifies ranges partition [0, cursor) in order.
func TestBatchAllocatorContiguous(t *testing.T) {
	a := NewBatchAllocator(0)

	assert.Equal(t, cluster.Range{Start: 0, End: 99999}, a.Allocate(100000))
	assert.Equal(t, cluster.Range{Start: 100000, End: 199999}, a.Allocate(100000))
	assert.Equal(t, cluster.Range{Start: 200000, End: 200099}, a.Allocate(100))
	assert.Equal(t, uint64(200100), a.Cursor())
}

func TestBatchAllocatorPeekDoesNotAdvance(t *testing.T) {
	a := NewBatchAllocator(500)

	peeked := a.Peek(1000)
	assert.Equal(t, cluster.Range{Start: 500, End: 1499}, peeked)
	assert.Equal(t, uint64(500), a.Cursor())
	assert.Equal(t, peeked, a.Allocate(1000))
	assert.Equal(t, uint64(1500), a.Cursor())
}
