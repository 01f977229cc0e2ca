// Package report describes the outcome of one job run and fans it out to the
// configured sinks.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marko911/arbitration-relayer/internal/reconcile"
)

// Report is the record of one job run. Failed runs carry Error and whatever
// was collected before the failure.
type Report struct {
	RunID      uuid.UUID              `json:"run_id"`
	Job        string                 `json:"job"`
	ChainID    uint64                 `json:"chain_id"`
	Scan       *reconcile.ScanSummary `json:"scan,omitempty"`
	Reconciled int                    `json:"reconciled"`
	Counts     map[reconcile.Tag]int  `json:"counts"`
	Outcomes   reconcile.Outcomes     `json:"outcomes"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

func New(job string, chainID uint64, startedAt time.Time) *Report {
	return &Report{
		RunID:     uuid.New(),
		Job:       job,
		ChainID:   chainID,
		Counts:    make(map[reconcile.Tag]int),
		Outcomes:  make(reconcile.Outcomes),
		StartedAt: startedAt,
	}
}

// SetScan records the scan summary. An empty scan is still recorded so the
// range is visible.
func (r *Report) SetScan(res *reconcile.ScanResult) {
	if res == nil {
		return
	}
	s := res.Summary()
	r.Scan = &s
}

// SetOutcomes records the aggregated reconciliation outcomes.
func (r *Report) SetOutcomes(outcomes reconcile.Outcomes) {
	r.Outcomes = outcomes
	r.Counts = outcomes.Counts()
	r.Reconciled = outcomes.Total()
}

// Finish stamps the end of the run and the run-level error, if any.
func (r *Report) Finish(err error, finishedAt time.Time) {
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = finishedAt
}

func (r *Report) Failed() bool {
	return r.Error != ""
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Key identifies the job and chain; sinks use it for partitioning.
func (r *Report) Key() string {
	return fmt.Sprintf("%s:%d", r.Job, r.ChainID)
}

// Publisher delivers reports to one sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, r *Report) error
}

// Multi publishes to every sink. A failing sink is logged and does not stop
// the others.
type Multi struct {
	sinks  []Publisher
	logger *slog.Logger
}

func NewMulti(logger *slog.Logger, sinks ...Publisher) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{
		sinks:  sinks,
		logger: logger.With("component", "report-publisher"),
	}
}

func (m *Multi) Name() string {
	return "multi"
}

func (m *Multi) Len() int {
	return len(m.sinks)
}

// Publish returns the joined errors of the failed sinks.
func (m *Multi) Publish(ctx context.Context, r *Report) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, r); err != nil {
			m.logger.Warn("report sink failed",
				"sink", sink.Name(),
				"job", r.Job,
				"run_id", r.RunID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
