// Package jobs binds the window scanner and the reconciliation pipeline to
// the home and foreign proxies. Each job scans one event type, then
// reconciles the stored requests it owns against the chain.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marko911/arbitration-relayer/internal/reconcile"
	"github.com/marko911/arbitration-relayer/internal/report"
	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// Job is one scan plus reconcile pass.
type Job interface {
	Name() string
	// Run returns the report even when it fails, with Error set.
	Run(ctx context.Context) (*report.Report, error)
}

// Chain is what every job needs from its chain facade.
type Chain interface {
	ChainID(ctx context.Context) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	StartBlock() uint64
}

// HomeChain is implemented by home.Proxy.
type HomeChain interface {
	Chain
	Lookup(ctx context.Context, stored protov1.Request) (protov1.Request, error)
	GetNotifiedRequests(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error)
	GetRejectedRequests(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error)
	GetRuledRequests(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error)
	HandleNotifiedRequest(ctx context.Context, req protov1.Request) (protov1.Request, error)
	HandleRejectedRequest(ctx context.Context, req protov1.Request) (protov1.Request, error)
	ReportArbitrationAnswer(ctx context.Context, req protov1.Request) (protov1.Request, error)
}

// ForeignChain is implemented by foreign.Proxy.
type ForeignChain interface {
	Chain
	Lookup(ctx context.Context, stored protov1.Request) (protov1.Request, error)
	GetRequestedArbitrations(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error)
	HandleFailedDisputeCreation(ctx context.Context, req protov1.Request) (protov1.Request, error)
}

// Deps are the stores shared by every job.
type Deps struct {
	Checkpoints reconcile.CheckpointStore
	Requests    reconcile.RequestStore
	Logger      *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// reconcileJob is the shared shape of all four jobs.
type reconcileJob struct {
	name  string
	key   string
	chain Chain
	deps  Deps

	fetch  reconcile.EventFetcher
	filter reconcile.StatusFilter
	// load lists the stored requests the job reconciles.
	load func(ctx context.Context, chainID uint64) ([]protov1.Request, error)

	scanner  *reconcile.Scanner
	pipeline *reconcile.Pipeline
	logger   *slog.Logger
}

func newReconcileJob(name, key string, chain Chain, deps Deps, lookup reconcile.Lookup, table reconcile.Table) *reconcileJob {
	deps = deps.withDefaults()
	logger := deps.Logger.With("job", name)
	return &reconcileJob{
		name:     name,
		key:      key,
		chain:    chain,
		deps:     deps,
		scanner:  reconcile.NewScanner(deps.Checkpoints, deps.Requests, logger),
		pipeline: reconcile.NewPipeline(lookup, table, logger),
		logger:   logger,
	}
}

func (j *reconcileJob) Name() string {
	return j.name
}

func (j *reconcileJob) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New(j.name, 0, j.deps.Now())

	fail := func(err error) (*report.Report, error) {
		rep.Finish(err, j.deps.Now())
		j.logger.Error("job failed", "chain_id", rep.ChainID, "error", err)
		return rep, err
	}

	chainID, err := j.chain.ChainID(ctx)
	if err != nil {
		return fail(fmt.Errorf("%s: chain id: %w", j.name, err))
	}
	rep.ChainID = chainID

	scan, err := j.scanner.Scan(ctx, reconcile.ScanSpec{
		Key:    j.key,
		Origin: j.chain.StartBlock(),
		Head:   j.chain,
		Fetch:  j.fetch,
		Filter: j.filter,
	})
	if err != nil {
		return fail(fmt.Errorf("%s: scan: %w", j.name, err))
	}
	rep.SetScan(scan)

	stored, err := j.load(ctx, chainID)
	if err != nil {
		return fail(fmt.Errorf("%s: load stored requests: %w", j.name, err))
	}

	outcomes := reconcile.Aggregate(j.pipeline.Reconcile(ctx, stored))
	rep.SetOutcomes(outcomes)
	rep.Finish(nil, j.deps.Now())

	j.logger.Info("job finished",
		"chain_id", chainID,
		"reconciled", outcomes.Total(),
		"failures", outcomes.Count(reconcile.TagFailure),
		"counts", outcomes.Counts(),
		"duration", rep.Duration(),
	)
	return rep, nil
}
