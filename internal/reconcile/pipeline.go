package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// ErrPanic wraps a panic recovered inside a single request's pipeline.
var ErrPanic = errors.New("reconcile: panic in request pipeline")

// Lookup fetches the live on-chain counterpart of a stored request.
type Lookup func(ctx context.Context, stored protov1.Request) (protov1.Request, error)

// Outcome is the tagged result of the action a request went through.
type Outcome struct {
	Action  Tag             `json:"action"`
	Payload protov1.Request `json:"payload"`
}

// Result is the settled state of one request's pipeline: either an Outcome or
// an error, never both.
type Result struct {
	Request protov1.Request
	Outcome Outcome
	Err     error
}

// Failed reports whether the pipeline for this request returned an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Pipeline reconciles stored requests against the chain with a fixed rule
// table.
type Pipeline struct {
	lookup Lookup
	table  Table
	logger *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(lookup Lookup, table Table, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		lookup: lookup,
		table:  table,
		logger: logger.With("component", "reconcile-pipeline"),
	}
}

// Reconcile runs every stored request through fetch, merge, classify and act
// concurrently and waits for all of them to settle. A failing request never
// affects its siblings. The returned slice has one Result per input, in input
// order.
func (p *Pipeline) Reconcile(ctx context.Context, stored []protov1.Request) []Result {
	results := make([]Result, len(stored))

	var wg sync.WaitGroup
	for i, req := range stored {
		wg.Add(1)
		go func(i int, req protov1.Request) {
			defer wg.Done()
			results[i] = p.reconcileOne(ctx, req)
		}(i, req)
	}
	wg.Wait()

	return results
}

func (p *Pipeline) reconcileOne(ctx context.Context, stored protov1.Request) (res Result) {
	res.Request = stored

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = Outcome{}
			res.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		if res.Err != nil {
			p.logger.Warn("request reconciliation failed",
				"question_id", stored.QuestionID.Hex(),
				"discriminator", stored.Discriminator(),
				"error", res.Err,
			)
		}
	}()

	onChain, err := p.lookup(ctx, stored)
	if err != nil {
		res.Err = fmt.Errorf("fetch on-chain request: %w", err)
		return res
	}

	pair := Pair{OffChain: stored, OnChain: onChain}
	rule := p.table.Classify(pair)
	merged := Merge(stored, onChain)

	payload, err := rule.Then.Do(ctx, merged)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", rule.Then.Tag, err)
		return res
	}

	p.logger.Debug("request reconciled",
		"question_id", stored.QuestionID.Hex(),
		"discriminator", stored.Discriminator(),
		"rule", rule.Name,
		"action", rule.Then.Tag,
		"stored_status", stored.StatusName(),
		"onchain_status", onChain.StatusName(),
	)

	res.Outcome = Outcome{Action: rule.Then.Tag, Payload: payload}
	return res
}
