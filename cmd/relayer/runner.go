package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marko911/arbitration-relayer/internal/jobs"
	"github.com/marko911/arbitration-relayer/internal/reconcile"
	"github.com/marko911/arbitration-relayer/internal/report"
)

type RunnerConfig struct {
	Interval time.Duration

	MetricsAddr string
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Interval:    time.Minute,
		MetricsAddr: ":9094",
	}
}

// JobStats accumulates the runs of one job.
type JobStats struct {
	Runs       int64                   `json:"runs"`
	Failures   int64                   `json:"failures"`
	Reconciled int64                   `json:"reconciled"`
	Tags       map[reconcile.Tag]int64 `json:"tags"`

	LastRunID    string    `json:"last_run_id,omitempty"`
	LastRunAt    time.Time `json:"last_run_at"`
	LastFailed   bool      `json:"last_failed"`
	LastError    string    `json:"last_error,omitempty"`
	LastScanned  uint64    `json:"last_scanned_block"`
	LastDuration string    `json:"last_duration,omitempty"`
}

// Runner schedules the jobs. All jobs of a tick run concurrently and a tick
// finishes only when every job has.
type Runner struct {
	cfg       RunnerConfig
	logger    *slog.Logger
	jobs      []jobs.Job
	publisher report.Publisher

	mu       sync.RWMutex
	ticks    int64
	lastTick time.Time
	stats    map[string]*JobStats
	checks   map[string]func(context.Context) error

	metricsServer *http.Server
}

func NewRunner(cfg RunnerConfig, js []jobs.Job, publisher report.Publisher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	stats := make(map[string]*JobStats, len(js))
	for _, j := range js {
		stats[j.Name()] = &JobStats{Tags: make(map[reconcile.Tag]int64)}
	}
	return &Runner{
		cfg:       cfg,
		logger:    logger.With("component", "runner"),
		jobs:      js,
		publisher: publisher,
		stats:     stats,
		checks:    make(map[string]func(context.Context) error),
	}
}

// AddHealthCheck registers a dependency checked by /health. A failing check
// makes the relayer unhealthy regardless of job results.
func (r *Runner) AddHealthCheck(name string, check func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// checkDependencies returns the error of every failing dependency by name.
func (r *Runner) checkDependencies(ctx context.Context) map[string]string {
	r.mu.RLock()
	checks := make(map[string]func(context.Context) error, len(r.checks))
	for name, check := range r.checks {
		checks[name] = check
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

// Run ticks until ctx is cancelled. The first tick starts immediately.
func (r *Runner) Run(ctx context.Context) error {
	names := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		names = append(names, j.Name())
	}
	r.logger.Info("starting relayer", "interval", r.cfg.Interval, "jobs", names)

	if r.cfg.MetricsAddr != "" {
		go r.startMetricsServer()
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	if err := r.Tick(ctx); err != nil {
		r.logger.Error("tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Error("tick failed", "error", err)
			}
		}
	}
}

// Tick runs every job once and returns the joined job errors. One job
// failing never cancels the others.
func (r *Runner) Tick(ctx context.Context) error {
	r.mu.Lock()
	r.ticks++
	r.lastTick = time.Now()
	r.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, job := range r.jobs {
		g.Go(func() error {
			if err := r.runJob(ctx, job); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (r *Runner) runJob(ctx context.Context, job jobs.Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: panic: %v", job.Name(), p)
			r.record(job.Name(), nil, err)
		}
	}()

	rep, err := job.Run(ctx)
	r.record(job.Name(), rep, err)

	if rep != nil && r.publisher != nil {
		// Sink failures are logged by the publisher and never fail the run.
		_ = r.publisher.Publish(ctx, rep)
	}
	return err
}

func (r *Runner) record(name string, rep *report.Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[name]
	if !ok {
		s = &JobStats{Tags: make(map[reconcile.Tag]int64)}
		r.stats[name] = s
	}
	s.Runs++
	s.LastRunAt = time.Now()
	s.LastFailed = err != nil
	s.LastError = ""
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
	}
	if rep == nil {
		return
	}

	s.LastRunID = rep.RunID.String()
	s.LastDuration = rep.Duration().String()
	s.Reconciled += int64(rep.Reconciled)
	for tag, n := range rep.Counts {
		s.Tags[tag] += int64(n)
	}
	if rep.Scan != nil {
		s.LastScanned = rep.Scan.ToBlock
	}
}

// Stats returns a copy of the per-job counters.
func (r *Runner) Stats() map[string]JobStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]JobStats, len(r.stats))
	for name, s := range r.stats {
		c := *s
		c.Tags = make(map[reconcile.Tag]int64, len(s.Tags))
		for tag, n := range s.Tags {
			c.Tags[tag] = n
		}
		out[name] = c
	}
	return out
}

// Healthy is false only when every job has run and the last run of each
// failed.
func (r *Runner) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.stats) == 0 {
		return true
	}
	for _, s := range r.stats {
		if s.Runs == 0 || !s.LastFailed {
			return true
		}
	}
	return false
}

func (r *Runner) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		stats := r.Stats()
		failing := make([]string, 0)
		for name, s := range stats {
			if s.LastFailed {
				failing = append(failing, name)
			}
		}
		sort.Strings(failing)
		deps := r.checkDependencies(req.Context())

		status := map[string]interface{}{
			"status":  "healthy",
			"failing": failing,
		}
		if len(deps) > 0 {
			status["dependencies"] = deps
		}
		w.Header().Set("Content-Type", "application/json")
		if !r.Healthy() || len(deps) > 0 {
			status["status"] = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		ticks := r.ticks
		lastTick := r.lastTick
		r.mu.RUnlock()

		metrics := map[string]interface{}{
			"ticks":        ticks,
			"last_tick_at": lastTick,
			"jobs":         r.Stats(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics)
	})

	return mux
}

func (r *Runner) startMetricsServer() {
	r.mu.Lock()
	r.metricsServer = &http.Server{
		Addr:              r.cfg.MetricsAddr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := r.metricsServer
	r.mu.Unlock()

	r.logger.Info("starting metrics server", "addr", r.cfg.MetricsAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		r.logger.Error("metrics server error", "error", err)
	}
}

func (r *Runner) Shutdown(ctx context.Context) error {
	r.logger.Info("shutting down relayer")

	r.mu.RLock()
	srv := r.metricsServer
	r.mu.RUnlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
	}
	return nil
}
