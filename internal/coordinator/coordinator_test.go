package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/primegrid/internal/clock"
	"github.com/dreamware/primegrid/internal/cluster"
	"github.com/dreamware/primegrid/internal/storage"
)

var testStart = time.Date(2024, 5, 17, 14, 3, 5, 0, time.Local)

type recordingProgress struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *recordingProgress) UpdateProgress(_ context.Context, userID string, primes, numbers uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf("%s:%d:%d", userID, primes, numbers))
	return p.err
}

type countingRecorder struct {
	mu          sync.Mutex
	batches     int
	submissions int
	evicted     int
	failures    map[string]int
}

func (r *countingRecorder) BatchIssued(uint64) { r.mu.Lock(); r.batches++; r.mu.Unlock() }
func (r *countingRecorder) SubmissionRecorded(int, uint64) {
	r.mu.Lock()
	r.submissions++
	r.mu.Unlock()
}
func (r *countingRecorder) ActiveClients(int)    {}
func (r *countingRecorder) ClientsEvicted(n int) { r.mu.Lock(); r.evicted += n; r.mu.Unlock() }
func (r *countingRecorder) PersistFailed(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = make(map[string]int)
	}
	r.failures[op]++
}

type fixture struct {
	coord    *Coordinator
	store    *storage.MemoryStore
	clock    *clock.Fake
	progress *recordingProgress
	recorder *countingRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		clock:    clock.NewFake(testStart),
		progress: &recordingProgress{},
		recorder: &countingRecorder{},
	}
	f.coord = f.open(t)
	return f
}

func (f *fixture) open(t *testing.T) *Coordinator {
	t.Helper()
	c, err := New(Options{
		Store:            f.store,
		Clock:            f.clock,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder:         f.recorder,
		Progress:         f.progress,
		ClientTimeout:    20 * time.Second,
		EvictionInterval: time.Hour,
		HistoryInterval:  time.Hour,
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

// TestExampleScenario walks the reference scenario from a cold start.
func TestExampleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coord.RequestBatch(ctx, "10.0.0.1", 0)
	require.NoError(t, err)
	assert.Equal(t, cluster.Range{Start: 0, End: 99999}, first)

	second, err := f.coord.RequestBatch(ctx, "10.0.0.1", DefaultBatchSize)
	require.NoError(t, err)
	assert.Equal(t, cluster.Range{Start: 100000, End: 199999}, second)

	require.NoError(t, f.coord.ReportResult(ctx, Submission{
		ClientID:  "10.0.0.1",
		Primes:    []uint64{2, 3, 5, 7},
		BatchSize: DefaultBatchSize,
	}))

	stats := f.coord.CurrentStats()
	assert.Equal(t, uint64(4), stats.TotalPrimesFound)
	assert.Equal(t, uint64(7), stats.HighestPrimeFound)
	assert.Equal(t, uint64(100000), stats.TotalNumbersProcessed)
	assert.Equal(t, uint64(1), stats.TotalBatchesCompleted)
	assert.Equal(t, uint32(1), stats.ActiveClients)
	assert.Equal(t, uint64(1), stats.TotalClients)
	require.NotNil(t, stats.LastUpdate)
	assert.Equal(t, "2024-05-17 14:03:05", *stats.LastUpdate)

	// Every mutation persisted the cursor and stats together.
	state, ok, err := f.store.LoadState()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(200000), state.CurrentNumber)
	assert.Equal(t, stats, state.Stats)
	assert.Equal(t, []uint64{2, 3, 5, 7}, f.store.Primes())
	assert.Equal(t, 3, f.store.Stats().StateWrites)
}

func TestRequestBatchRejectsInvalidSize(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.RequestBatch(context.Background(), "c", 123)
	assert.True(t, errors.Is(err, ErrInvalidBatchSize))
	assert.Equal(t, uint64(0), f.coord.Cursor())
}

// TestConcurrentBatchesAreDisjoint issues batches from many goroutines with
// mixed sizes and checks that the ranges tile [0, cursor) exactly.
func TestConcurrentBatchesAreDisjoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16
	const perWorker = 25

	var mu sync.Mutex
	var ranges []cluster.Range
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				size := AllowedBatchSizes[(w+i)%len(AllowedBatchSizes)]
				r, err := f.coord.RequestBatch(ctx, fmt.Sprintf("10.0.0.%d", w), size)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, size, r.Size())
				mu.Lock()
				ranges = append(ranges, r)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	require.Len(t, ranges, workers*perWorker)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	next := uint64(0)
	for _, r := range ranges {
		require.Equal(t, next, r.Start, "gap or overlap at %d", next)
		next = r.End + 1
	}
	assert.Equal(t, next, f.coord.Cursor())
	assert.Equal(t, workers*perWorker, f.recorder.batches)
}

// TestConcurrentSubmissionsExact checks counter exactness under contention.
func TestConcurrentSubmissionsExact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			size := AllowedBatchSizes[i%len(AllowedBatchSizes)]
			primes := []uint64{uint64(i*2 + 3), uint64(i*2 + 5)}
			assert.NoError(t, f.coord.ReportResult(ctx, Submission{
				ClientID: fmt.Sprintf("c%d", i%7), Primes: primes, BatchSize: size,
			}))
		}(i)
	}
	wg.Wait()

	var wantNumbers uint64
	for i := 0; i < n; i++ {
		wantNumbers += AllowedBatchSizes[i%len(AllowedBatchSizes)]
	}

	stats := f.coord.CurrentStats()
	assert.Equal(t, uint64(n), stats.TotalBatchesCompleted)
	assert.Equal(t, uint64(2*n), stats.TotalPrimesFound)
	assert.Equal(t, wantNumbers, stats.TotalNumbersProcessed)
	assert.Equal(t, uint64((n-1)*2+5), stats.HighestPrimeFound)
	assert.Equal(t, uint64(7), stats.TotalClients)
	assert.Len(t, f.store.Primes(), 2*n)
}

// TestHistoryBucketingThroughSubmissions: two submissions in the same minute
// produce one entry, the next minute produces a second one.
func TestHistoryBucketingThroughSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coord.ReportResult(ctx, Submission{ClientID: "a", Primes: []uint64{2}, BatchSize: 100}))
	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.coord.ReportResult(ctx, Submission{ClientID: "a", Primes: []uint64{3}, BatchSize: 100}))

	history := f.coord.History()
	require.Len(t, history, 1)
	assert.Equal(t, uint64(1), history[0].TotalBatchesCompleted)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.coord.ReportResult(ctx, Submission{ClientID: "a", Primes: []uint64{5}, BatchSize: 100}))

	history = f.coord.History()
	require.Len(t, history, 2)
	assert.Equal(t, uint64(3), history[1].TotalBatchesCompleted)
	assert.Equal(t, uint64(3), history[1].TotalPrimesFound)
	assert.Equal(t, uint64(300), history[1].TotalNumbersProcessed)

	persisted, err := f.store.LoadHistory()
	require.NoError(t, err)
	assert.Equal(t, history, persisted)
}

func TestRecordHistoryIdempotentWithinMinute(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.coord.RecordHistory())
	require.NoError(t, f.coord.RecordHistory())
	assert.Len(t, f.coord.History(), 1)
	assert.Equal(t, 1, f.store.Stats().HistoryWrites)
}

// TestLivenessEviction: a client seen at T counts as active until the first
// sweep at or after T+20.
func TestLivenessEviction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.RequestBatch(ctx, "10.0.0.1", 100)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)
	_, err = f.coord.RequestBatch(ctx, "10.0.0.2", 100)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), f.coord.CurrentStats().ActiveClients)

	f.clock.Advance(9 * time.Second) // T+19 for the first client
	assert.Empty(t, f.coord.EvictStale())
	assert.Equal(t, uint32(2), f.coord.CurrentStats().ActiveClients)

	f.clock.Advance(time.Second) // T+20
	assert.Equal(t, []string{"10.0.0.1"}, f.coord.EvictStale())
	assert.Equal(t, uint32(1), f.coord.CurrentStats().ActiveClients)

	f.clock.Advance(time.Minute)
	assert.Equal(t, []string{"10.0.0.2"}, f.coord.EvictStale())
	assert.Equal(t, uint32(0), f.coord.CurrentStats().ActiveClients)
	assert.Empty(t, f.coord.Clients())
	assert.Equal(t, 2, f.recorder.evicted)
}

// TestRequestBatchSaveFailure leaves the cursor and client registry untouched
// when the snapshot cannot be written.
func TestRequestBatchSaveFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.FailOn(storage.OpSaveState, storage.ErrInjected)
	_, err := f.coord.RequestBatch(ctx, "ghost", 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrInjected))
	assert.Equal(t, uint64(0), f.coord.Cursor())
	assert.Equal(t, 1, f.recorder.failures[string(storage.OpSaveState)])
	assert.Empty(t, f.coord.Clients(), "a failed request must not register the client")
	assert.Equal(t, uint32(0), f.coord.CurrentStats().ActiveClients)

	f.store.FailOn(storage.OpSaveState, nil)
	r, err := f.coord.RequestBatch(ctx, "c", 100)
	require.NoError(t, err)
	assert.Equal(t, cluster.Range{Start: 0, End: 99}, r)

	assert.Equal(t, uint32(1), f.coord.CurrentStats().ActiveClients)
	state, _, err := f.store.LoadState()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), state.Stats.ActiveClients)
}

// TestRequestBatchActiveCountForKnownClient checks a repeat request from a
// tracked client does not count it twice.
func TestRequestBatchActiveCountForKnownClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.coord.RequestBatch(ctx, "c", 100)
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(1), f.coord.CurrentStats().ActiveClients)
}

func TestReportResultPersistFailures(t *testing.T) {
	tests := []struct {
		name       string
		op         storage.Op
		wantLedger int
	}{
		{name: "ledger append fails", op: storage.OpAppendPrimes, wantLedger: 0},
		{name: "state save fails", op: storage.OpSaveState, wantLedger: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.FailOn(tt.op, storage.ErrInjected)

			ctx := context.Background()
			err := f.coord.ReportResult(ctx, Submission{
				ClientID: "ghost", UserID: "u1", Primes: []uint64{2, 3}, BatchSize: 100,
			})
			require.Error(t, err)

			stats := f.coord.CurrentStats()
			assert.Equal(t, uint64(0), stats.TotalBatchesCompleted)
			assert.Equal(t, uint64(0), stats.TotalPrimesFound)
			assert.Equal(t, uint64(0), stats.TotalClients)
			assert.Equal(t, uint32(0), stats.ActiveClients)
			assert.Nil(t, stats.LastUpdate)
			assert.Empty(t, f.coord.History())
			assert.Empty(t, f.coord.Clients())
			assert.Len(t, f.store.Primes(), tt.wantLedger)
			assert.Empty(t, f.progress.calls, "progress is only credited for durable submissions")

			// The failed client must not leak into the next snapshot.
			f.store.FailOn(tt.op, nil)
			require.NoError(t, f.coord.ReportResult(ctx, Submission{ClientID: "real", Primes: []uint64{5}, BatchSize: 100}))
			stats = f.coord.CurrentStats()
			assert.Equal(t, uint64(1), stats.TotalClients)
			assert.Equal(t, uint32(1), stats.ActiveClients)
			state, _, err := f.store.LoadState()
			require.NoError(t, err)
			assert.Equal(t, uint64(1), state.Stats.TotalClients)
			assert.Equal(t, uint32(1), state.Stats.ActiveClients)
		})
	}
}

// TestHistoryFailureDoesNotFailSubmission: the submission stays committed
// and the failed history sample is retried by the next append.
func TestHistoryFailureDoesNotFailSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.FailOn(storage.OpSaveHistory, storage.ErrInjected)
	require.NoError(t, f.coord.ReportResult(ctx, Submission{ClientID: "c", Primes: []uint64{2}, BatchSize: 100}))
	assert.Equal(t, uint64(1), f.coord.CurrentStats().TotalBatchesCompleted)
	assert.Empty(t, f.coord.History())

	f.store.FailOn(storage.OpSaveHistory, nil)
	require.NoError(t, f.coord.RecordHistory())
	require.Len(t, f.coord.History(), 1)
	assert.Equal(t, uint64(1), f.coord.History()[0].TotalBatchesCompleted)
}

func TestUserProgressForwarding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coord.ReportResult(ctx, Submission{ClientID: "c", Primes: []uint64{2, 3, 5}, BatchSize: 1000}))
	require.NoError(t, f.coord.ReportResult(ctx, Submission{ClientID: "c", UserID: "alice", Primes: []uint64{7}, BatchSize: 500}))

	f.progress.err = errors.New("user store down")
	require.NoError(t, f.coord.ReportResult(ctx, Submission{ClientID: "c", UserID: "bob", BatchSize: 100}))

	assert.Equal(t, []string{"alice:1:500", "bob:0:100"}, f.progress.calls)
	assert.Equal(t, uint64(3), f.coord.CurrentStats().TotalBatchesCompleted)
}

// TestRestartResumes reopens a coordinator on the same store.
func TestRestartResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.RequestBatch(ctx, "a", 1000)
	require.NoError(t, err)
	require.NoError(t, f.coord.ReportResult(ctx, Submission{ClientID: "a", Primes: []uint64{2, 3}, BatchSize: 1000}))
	require.NoError(t, f.coord.Stop())

	f.clock.Advance(time.Hour)
	reopened := f.open(t)

	assert.Equal(t, uint64(1000), reopened.Cursor())
	stats := reopened.CurrentStats()
	assert.Equal(t, uint64(2), stats.TotalPrimesFound)
	assert.Equal(t, uint64(1000), stats.TotalNumbersProcessed)
	assert.Equal(t, uint32(0), stats.ActiveClients)
	assert.Equal(t, uint64(0), stats.TotalClients)
	assert.Len(t, reopened.History(), 1)

	r, err := reopened.RequestBatch(ctx, "b", 100)
	require.NoError(t, err)
	assert.Equal(t, cluster.Range{Start: 1000, End: 1099}, r)
}

func TestLoadErrorsSurface(t *testing.T) {
	_, err := New(Options{Store: brokenStore{storage.NewMemoryStore()}})
	assert.Error(t, err)
}

type brokenStore struct{ *storage.MemoryStore }

func (brokenStore) LoadState() (cluster.State, bool, error) {
	return cluster.State{}, false, errors.New("corrupt")
}

// TestStartStop runs the background loops with short intervals and checks
// the final flush happens after they stop.
func TestStartStop(t *testing.T) {
	store := storage.NewMemoryStore()
	fake := clock.NewFake(testStart)
	c, err := New(Options{
		Store:            store,
		Clock:            fake,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		ClientTimeout:    20 * time.Second,
		EvictionInterval: 10 * time.Millisecond,
		HistoryInterval:  10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = c.RequestBatch(context.Background(), "idle", 100)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	c.Start(ctx)

	fake.Advance(21 * time.Second)
	assert.Eventually(t, func() bool {
		return c.CurrentStats().ActiveClients == 0
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(c.History()) >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop())

	state, ok, err := store.LoadState()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(100), state.CurrentNumber)
	assert.Equal(t, uint32(0), state.Stats.ActiveClients)
}
