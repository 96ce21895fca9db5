package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dreamware/primegrid/internal/cluster"
	"github.com/dreamware/primegrid/internal/observability"
	"github.com/dreamware/primegrid/internal/sieve"
)

const (
	defaultPause      = 100 * time.Millisecond
	defaultRetryDelay = 2 * time.Second
	maxConsecutiveErr = 5
)

type runOptions struct {
	batches   int
	batchSize uint64
	username  string
	password  string
	register  bool
	logLevel  string
}

func runCmd(serverURL *string) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process batches until interrupted or --batches is reached",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := observability.NewLogger(os.Stderr, opts.logLevel, observability.FormatText)
			if err != nil {
				return err
			}
			client, err := cluster.NewClient(*serverURL)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := prepareSession(ctx, client, opts); err != nil {
				return err
			}

			w := &worker{client: client, logger: logger, pause: defaultPause, retryDelay: defaultRetryDelay}
			sum, err := w.run(ctx, opts.batches)
			fmt.Fprintf(cmd.OutOrStdout(), "processed %s batches, %s numbers, found %s primes in %s\n",
				humanize.Comma(int64(sum.Batches)),
				humanize.Comma(int64(sum.Numbers)),
				humanize.Comma(int64(sum.Primes)),
				sum.Elapsed.Round(time.Millisecond))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&opts.batches, "batches", "n", 0, "number of batches to process, 0 runs until interrupted")
	cmd.Flags().Uint64VarP(&opts.batchSize, "batch-size", "b", 0, "batch size to request, 0 keeps the server default")
	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "log in so results count towards this user")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "password for --username")
	cmd.Flags().BoolVar(&opts.register, "register", false, "create the account before logging in")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

// prepareSession logs in and configures the batch size on the client's
// session cookie.
func prepareSession(ctx context.Context, c *cluster.Client, opts runOptions) error {
	if opts.username != "" {
		creds := cluster.Credentials{Username: opts.username, Password: opts.password}
		if opts.register {
			if err := c.Register(ctx, creds); err != nil {
				return fmt.Errorf("register: %w", err)
			}
		}
		if err := c.Login(ctx, creds); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	if opts.batchSize != 0 {
		if err := c.SetBatchSize(ctx, opts.batchSize); err != nil {
			return fmt.Errorf("set batch size: %w", err)
		}
	}
	return nil
}

// summary totals what one worker run processed.
type summary struct {
	Batches int
	Numbers uint64
	Primes  uint64
	Elapsed time.Duration
}

type worker struct {
	client     *cluster.Client
	logger     *slog.Logger
	pause      time.Duration
	retryDelay time.Duration
}

// run processes batches until ctx is done, limit batches were submitted
// (limit > 0), or maxConsecutiveErr requests in a row failed.
func (w *worker) run(ctx context.Context, limit int) (summary, error) {
	var sum summary
	start := time.Now()

	failures := 0
	for limit <= 0 || sum.Batches < limit {
		primes, batch, err := w.processOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				sum.Elapsed = time.Since(start)
				return sum, ctx.Err()
			}
			failures++
			w.logger.Warn("batch failed", "error", err, "consecutive_failures", failures)
			if failures >= maxConsecutiveErr {
				sum.Elapsed = time.Since(start)
				return sum, fmt.Errorf("giving up after %d consecutive failures: %w", failures, err)
			}
			if !sleep(ctx, w.retryDelay) {
				sum.Elapsed = time.Since(start)
				return sum, ctx.Err()
			}
			continue
		}
		failures = 0

		sum.Batches++
		sum.Numbers += batch.Size
		sum.Primes += uint64(len(primes))
		w.logger.Info("batch submitted",
			"start", humanize.Comma(int64(batch.Range.Start)),
			"end", humanize.Comma(int64(batch.Range.End)),
			"primes", len(primes),
			"total_numbers", humanize.Comma(int64(sum.Numbers)))

		if !sleep(ctx, w.pause) {
			sum.Elapsed = time.Since(start)
			return sum, ctx.Err()
		}
	}
	sum.Elapsed = time.Since(start)
	return sum, nil
}

func (w *worker) processOne(ctx context.Context) ([]uint64, cluster.BatchResponse, error) {
	batch, err := w.client.GetBatch(ctx)
	if err != nil {
		return nil, batch, fmt.Errorf("get batch: %w", err)
	}
	w.logger.Debug("batch received", "start", batch.Range.Start, "end", batch.Range.End, "size", batch.Size)

	primes := sieve.Primes(batch.Range.Start, batch.Range.End)
	if err := w.client.SubmitPrimes(ctx, primes); err != nil {
		return nil, batch, fmt.Errorf("submit primes: %w", err)
	}
	return primes, batch, nil
}

// sleep waits for d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
