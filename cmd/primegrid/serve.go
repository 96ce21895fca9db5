package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreamware/primegrid/internal/config"
	"github.com/dreamware/primegrid/internal/coordinator"
	"github.com/dreamware/primegrid/internal/observability"
	"github.com/dreamware/primegrid/internal/session"
	"github.com/dreamware/primegrid/internal/storage"
	"github.com/dreamware/primegrid/internal/users"
	"github.com/dreamware/primegrid/internal/version"
)

const serviceName = "primegrid"

func serveCmd(cfgFile *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the batch coordinator HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, os.Stderr, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

// run serves until ctx is cancelled, then shuts the HTTP server down, joins
// the background loops and flushes state. When ready is non-nil the bound
// address is sent on it once the listener is open.
func run(ctx context.Context, cfg *config.Config, logOut io.Writer, ready chan<- string) error {
	logger, err := observability.NewLogger(logOut, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	var traceOut io.Writer
	if cfg.Tracing.Stdout {
		traceOut = os.Stdout
	}
	tracing, err := observability.NewTracing(serviceName, version.Version, traceOut)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()

	metrics := observability.NewMetrics()

	store, err := storage.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	accounts, err := users.Open(ctx, cfg.Users.Dir)
	if err != nil {
		return err
	}

	coord, err := coordinator.New(coordinator.Options{
		Store:            store,
		Logger:           logger,
		Recorder:         metrics,
		Progress:         accounts,
		ClientTimeout:    cfg.Coordinator.ClientTimeout,
		EvictionInterval: cfg.Coordinator.EvictionInterval,
		HistoryInterval:  cfg.Coordinator.HistoryInterval,
	})
	if err != nil {
		return err
	}

	srv := &server{
		coord:            coord,
		sessions:         session.NewManager(cfg.Session.CookieName),
		users:            accounts,
		metrics:          metrics,
		logger:           logger,
		historyPath:      store.HistoryPath(),
		staticDir:        cfg.Server.StaticDir,
		defaultBatchSize: cfg.Coordinator.DefaultBatchSize,
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           observability.HTTPMiddleware(tracing.Tracer, metrics, logger, srv.routes()),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	coord.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening", "addr", ln.Addr().String(), "storage", cfg.Storage.Dir)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	if ready != nil {
		ready <- ln.Addr().String()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("http shutdown: %w", err))
	}
	if err := coord.Stop(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	logger.Info("coordinator stopped")
	return runErr
}
