package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/natikgadzhi/notopress/internal/config"
	"github.com/natikgadzhi/notopress/internal/sync"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run sync on a schedule and serve metrics",
	Long: `Watch runs a sync immediately and then on the cron schedule from
watch.schedule. Prometheus metrics are served on watch.metrics_addr at
/metrics. A scheduled run is skipped while the previous one is still going.`,
	RunE: runWatch,
}

// syncRunner is the part of sync.Engine the watcher drives.
type syncRunner interface {
	Run(ctx context.Context) (*sync.Result, error)
}

// watcher runs syncs one at a time.
type watcher struct {
	engine  syncRunner
	logger  *slog.Logger
	running atomic.Bool
}

// run performs one sync unless another is in progress. It reports whether
// the sync ran.
func (w *watcher) run(ctx context.Context) bool {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Warn("previous sync still running, skipping this tick")
		return false
	}
	defer w.running.Store(false)

	res, err := w.engine.Run(ctx)
	switch {
	case err != nil:
		w.logger.Error("scheduled sync failed", "error", err)
	case res.Failed > 0:
		w.logger.Warn("scheduled sync finished with failures", "failed", res.Failed)
	}
	return true
}

func runWatch(_ *cobra.Command, _ []string) error {
	logger := setupLogger(nil, verbose)

	ctx, cancel := setupSignalHandler(logger)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	w := &watcher{engine: a.newEngine(), logger: logger}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              cfg.Watch.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	c := cron.New(cron.WithLogger(cronLogger{logger}))
	if _, err := c.AddFunc(cfg.Watch.Schedule, func() { w.run(gctx) }); err != nil {
		return fmt.Errorf("scheduling %q: %w", cfg.Watch.Schedule, err)
	}

	g.Go(func() error {
		logger.Info("serving metrics", "addr", cfg.Watch.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		w.run(gctx)
		c.Start()
		logger.Info("watching for changes", "schedule", cfg.Watch.Schedule)

		<-gctx.Done()
		<-c.Stop().Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("watch stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
