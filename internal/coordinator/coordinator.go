package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dreamware/primegrid/internal/clock"
	"github.com/dreamware/primegrid/internal/cluster"
	"github.com/dreamware/primegrid/internal/storage"
)

// DefaultEvictionInterval is the period of the stale-client sweep.
const DefaultEvictionInterval = 60 * time.Second

// ErrInvalidBatchSize is returned for a size outside AllowedBatchSizes.
var ErrInvalidBatchSize = errors.New("invalid batch size")

// Recorder receives coordinator events, typically to export metrics.
type Recorder interface {
	BatchIssued(size uint64)
	SubmissionRecorded(primes int, batchSize uint64)
	ActiveClients(n int)
	ClientsEvicted(n int)
	PersistFailed(op string)
}

// ProgressUpdater credits a logged-in user with a submission.
type ProgressUpdater interface {
	UpdateProgress(ctx context.Context, userID string, primesFound, numbersProcessed uint64) error
}

// Submission is one worker's report for its last batch.
type Submission struct {
	ClientID  string   // Network address of the worker
	UserID    string   // Logged-in user, empty when anonymous
	Primes    []uint64 // Primes claimed to be in the batch
	BatchSize uint64   // Size of the batch being reported, DefaultBatchSize when zero
}

// Options configures a Coordinator. Store is required.
type Options struct {
	Store            storage.Store
	Clock            clock.Clock
	Logger           *slog.Logger
	Recorder         Recorder
	Progress         ProgressUpdater
	ClientTimeout    time.Duration
	EvictionInterval time.Duration
	HistoryInterval  time.Duration
}

// Coordinator is the single owner of the search state: cursor, stats,
// client registry and history. One mutex covers each logical operation,
// so the sequence of cursor values and stats snapshots is exactly the
// order in which callers acquired it.
//
// Two background loops (stale-client eviction and the periodic history
// append) take the same mutex. Stop joins them before the final flush.
type Coordinator struct {
	store    storage.Store
	clock    clock.Clock
	logger   *slog.Logger
	recorder Recorder
	progress ProgressUpdater

	alloc    *BatchAllocator
	registry *ClientRegistry
	stats    *StatsAggregator
	history  *History

	ctx              context.Context
	cancel           context.CancelFunc
	evictionInterval time.Duration
	historyInterval  time.Duration
	mu               sync.Mutex
	wg               sync.WaitGroup
	started          bool
}

// New loads the persisted state from opts.Store and returns a coordinator
// ready to serve. Missing state means a cold start at cursor 0.
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("coordinator: store is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.EvictionInterval <= 0 {
		opts.EvictionInterval = DefaultEvictionInterval
	}
	if opts.HistoryInterval <= 0 {
		opts.HistoryInterval = DefaultHistoryInterval
	}

	state, found, err := opts.Store.LoadState()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	entries, err := opts.Store.LoadHistory()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	// The client registry starts empty, so the client counts derived from it
	// start at zero too.
	state.Stats.ActiveClients = 0
	state.Stats.TotalClients = 0

	if found {
		opts.Logger.Info("resumed coordinator state",
			"cursor", state.CurrentNumber,
			"batches", state.Stats.TotalBatchesCompleted,
			"history_entries", len(entries))
	} else {
		opts.Logger.Info("no saved state, starting from zero")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:            opts.Store,
		clock:            opts.Clock,
		logger:           opts.Logger,
		recorder:         opts.Recorder,
		progress:         opts.Progress,
		alloc:            NewBatchAllocator(state.CurrentNumber),
		registry:         NewClientRegistry(opts.ClientTimeout),
		stats:            NewStatsAggregator(state.Stats),
		history:          NewHistory(entries),
		ctx:              ctx,
		cancel:           cancel,
		evictionInterval: opts.EvictionInterval,
		historyInterval:  opts.HistoryInterval,
	}, nil
}

// RequestBatch hands clientID the next range of size integers.
// A zero size means DefaultBatchSize.
//
// The new cursor is persisted before it becomes visible; if the save fails
// neither the cursor nor the client registry changes and the error is
// returned.
func (c *Coordinator) RequestBatch(ctx context.Context, clientID string, size uint64) (cluster.Range, error) {
	if size == 0 {
		size = DefaultBatchSize
	}
	if !ValidBatchSize(size) {
		return cluster.Range{}, fmt.Errorf("%w: %d", ErrInvalidBatchSize, size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	r := c.alloc.Peek(size)
	pending := NewStatsAggregator(c.stats.Snapshot())
	pending.SetActiveClients(c.activeWith(clientID))
	next := pending.Snapshot()

	if err := c.store.SaveState(cluster.State{CurrentNumber: r.End + 1, Stats: next}); err != nil {
		c.recorder.PersistFailed(string(storage.OpSaveState))
		return cluster.Range{}, fmt.Errorf("save state: %w", err)
	}

	c.alloc.Allocate(size)
	c.registry.RecordActivity(clientID, now)
	c.stats = pending

	c.recorder.BatchIssued(size)
	c.recorder.ActiveClients(c.registry.Count())
	c.logger.DebugContext(ctx, "batch issued", "client", clientID, "start", r.Start, "end", r.End)
	return r, nil
}

// ReportResult folds a submission into the stats, appends its primes to the
// ledger, persists the snapshot and samples the history.
//
// The ledger is written first and the snapshot second; if either fails the
// in-memory stats and client registry stay as they were and the error is
// returned. History and user-progress failures after that point are logged
// only: the submission itself is already durable.
func (c *Coordinator) ReportResult(ctx context.Context, sub Submission) error {
	if sub.BatchSize == 0 {
		sub.BatchSize = DefaultBatchSize
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	pending := NewStatsAggregator(c.stats.Snapshot())
	pending.RecordSubmission(sub.Primes, sub.BatchSize, now)
	pending.SetActiveClients(c.activeWith(sub.ClientID))
	pending.SetTotalClients(c.contributorsWith(sub.ClientID))
	next := pending.Snapshot()

	if err := c.store.AppendPrimes(sub.Primes); err != nil {
		c.recorder.PersistFailed(string(storage.OpAppendPrimes))
		return fmt.Errorf("append primes: %w", err)
	}
	if err := c.store.SaveState(cluster.State{CurrentNumber: c.alloc.Cursor(), Stats: next}); err != nil {
		c.recorder.PersistFailed(string(storage.OpSaveState))
		return fmt.Errorf("save state: %w", err)
	}
	c.registry.RecordActivity(sub.ClientID, now)
	c.registry.RecordContributor(sub.ClientID)
	c.stats = pending

	if err := c.appendHistoryLocked(now); err != nil {
		c.logger.WarnContext(ctx, "history append failed", "error", err)
	}

	if sub.UserID != "" && c.progress != nil {
		if err := c.progress.UpdateProgress(ctx, sub.UserID, uint64(len(sub.Primes)), sub.BatchSize); err != nil {
			c.logger.WarnContext(ctx, "user progress update failed", "user", sub.UserID, "error", err)
		}
	}

	c.recorder.SubmissionRecorded(len(sub.Primes), sub.BatchSize)
	c.recorder.ActiveClients(c.registry.Count())
	c.logger.DebugContext(ctx, "submission recorded",
		"client", sub.ClientID, "primes", len(sub.Primes), "batch_size", sub.BatchSize)
	return nil
}

// activeWith is the active-client count once id has been recorded.
// Caller must hold c.mu.
func (c *Coordinator) activeWith(id string) int {
	n := c.registry.Count()
	if _, ok := c.registry.Get(id); !ok && id != "" {
		n++
	}
	return n
}

// contributorsWith is the contributor count once id has submitted.
// Caller must hold c.mu.
func (c *Coordinator) contributorsWith(id string) int {
	n := c.registry.Contributors()
	if !c.registry.IsContributor(id) && id != "" {
		n++
	}
	return n
}

// CurrentStats returns a copy of the live counters.
func (c *Coordinator) CurrentStats() cluster.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.Snapshot()
}

// History returns a copy of the history sequence.
func (c *Coordinator) History() []cluster.HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Entries()
}

// Cursor returns the next unassigned integer.
func (c *Coordinator) Cursor() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alloc.Cursor()
}

// Clients returns the currently tracked clients.
func (c *Coordinator) Clients() []ClientEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Entries()
}

// EvictStale runs one eviction sweep and returns the evicted client ids.
func (c *Coordinator) EvictStale() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := c.registry.EvictStale(c.clock.Now())
	c.stats.SetActiveClients(c.registry.Count())

	if len(evicted) > 0 {
		c.logger.Info("evicted inactive clients", "count", len(evicted), "active", c.registry.Count())
		c.recorder.ClientsEvicted(len(evicted))
	}
	c.recorder.ActiveClients(c.registry.Count())
	return evicted
}

// RecordHistory appends a history entry for the current minute unless one
// exists already.
func (c *Coordinator) RecordHistory() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendHistoryLocked(c.clock.Now())
}

// appendHistoryLocked appends and persists a sample. A failed write is
// rolled back so the next attempt in the same minute retries it.
// Caller must hold c.mu.
func (c *Coordinator) appendHistoryLocked(now time.Time) error {
	n := c.history.Len()
	if !c.history.Append(now, c.stats.Snapshot()) {
		return nil
	}
	if err := c.store.SaveHistory(c.history.Entries()); err != nil {
		c.history.Truncate(n)
		c.recorder.PersistFailed(string(storage.OpSaveHistory))
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Flush persists the current state and history.
func (c *Coordinator) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := cluster.State{CurrentNumber: c.alloc.Cursor(), Stats: c.stats.Snapshot()}
	if err := c.store.SaveState(state); err != nil {
		c.recorder.PersistFailed(string(storage.OpSaveState))
		return fmt.Errorf("save state: %w", err)
	}
	if err := c.appendHistoryLocked(c.clock.Now()); err != nil {
		return err
	}
	return nil
}

// Start launches the eviction sweep and the periodic history append. Both
// run until ctx or the coordinator is cancelled. Start is a no-op when
// called twice.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	if ctx == nil {
		ctx = c.ctx
	}

	c.wg.Add(2)
	go c.runEvery(ctx, "eviction", c.evictionInterval, func() { c.EvictStale() })
	go c.runEvery(ctx, "history", c.historyInterval, func() {
		if err := c.RecordHistory(); err != nil {
			c.logger.Warn("periodic history append failed", "error", err)
		}
	})
}

// runEvery calls fn once per interval until cancelled, and once right away.
func (c *Coordinator) runEvery(ctx context.Context, name string, interval time.Duration, fn func()) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("background loop started", "loop", name, "interval", interval)
	fn()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			c.logger.Info("background loop stopping due to context cancellation", "loop", name)
			return
		case <-c.ctx.Done():
			c.logger.Info("background loop stopping", "loop", name)
			return
		}
	}
}

// Stop cancels the background loops, waits for them to finish and flushes
// state and history one last time.
func (c *Coordinator) Stop() error {
	c.cancel()
	c.wg.Wait()

	if err := c.Flush(); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	c.logger.Info("coordinator stopped", "cursor", c.Cursor())
	return nil
}

type nopRecorder struct{}

func (nopRecorder) BatchIssued(uint64)             {}
func (nopRecorder) SubmissionRecorded(int, uint64) {}
func (nopRecorder) ActiveClients(int)              {}
func (nopRecorder) ClientsEvicted(int)             {}
func (nopRecorder) PersistFailed(string)           {}
