package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// EventFetcher returns the requests referenced by events in [fromBlock, toBlock].
type EventFetcher func(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error)

// StatusFilter keeps a fetched request when it returns true.
type StatusFilter func(req protov1.Request) bool

// HeadReader reports the current block height of a chain.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// ScanSpec describes one window scan.
type ScanSpec struct {
	// Key names the checkpoint advanced by this scan.
	Key string
	// Origin is the first block to scan when the checkpoint was never set.
	Origin uint64
	Head   HeadReader
	Fetch  EventFetcher
	// Filter is optional; nil keeps everything.
	Filter StatusFilter
}

// ScanResult reports what a scan observed.
type ScanResult struct {
	Key       string
	FromBlock uint64
	ToBlock   uint64
	Fetched   int
	Inserted  []protov1.Request
	// Empty is set when the chain had no new blocks since the last scan.
	Empty bool
}

// ScanSummary is the bounded form of a ScanResult used in reports.
type ScanSummary struct {
	Key         string   `json:"key"`
	FromBlock   uint64   `json:"from_block"`
	ToBlock     uint64   `json:"to_block"`
	Fetched     int      `json:"fetched"`
	Inserted    int      `json:"inserted"`
	QuestionIDs []string `json:"question_ids,omitempty"`
}

// Summary returns the identifiers touched and the range scanned.
func (r *ScanResult) Summary() ScanSummary {
	s := ScanSummary{
		Key:       r.Key,
		FromBlock: r.FromBlock,
		ToBlock:   r.ToBlock,
		Fetched:   r.Fetched,
		Inserted:  len(r.Inserted),
	}
	for _, req := range r.Inserted {
		s.QuestionIDs = append(s.QuestionIDs, req.QuestionID.Hex())
	}
	return s
}

// Scanner advances named checkpoints over chain events and stores what it
// finds.
type Scanner struct {
	checkpoints CheckpointStore
	requests    RequestStore
	logger      *slog.Logger
}

// NewScanner creates a scanner.
func NewScanner(checkpoints CheckpointStore, requests RequestStore, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		checkpoints: checkpoints,
		requests:    requests,
		logger:      logger.With("component", "window-scanner"),
	}
}

// Scan processes [checkpoint, head] for spec. The checkpoint moves to head+1
// only after the matching requests were saved; on any error it is left where
// it was so the same range is scanned again next time.
func (s *Scanner) Scan(ctx context.Context, spec ScanSpec) (*ScanResult, error) {
	fromBlock, found, err := s.checkpoints.Get(ctx, spec.Key)
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", spec.Key, err)
	}
	if !found {
		fromBlock = spec.Origin
	}

	toBlock, err := spec.Head.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get block number: %w", err)
	}

	result := &ScanResult{Key: spec.Key, FromBlock: fromBlock, ToBlock: toBlock}

	if fromBlock > toBlock {
		result.Empty = true
		s.logger.Debug("no new blocks to scan",
			"key", spec.Key,
			"from", fromBlock,
			"head", toBlock,
		)
		return result, nil
	}

	fetched, err := spec.Fetch(ctx, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("fetch events %d-%d: %w", fromBlock, toBlock, err)
	}
	result.Fetched = len(fetched)

	matching := make([]protov1.Request, 0, len(fetched))
	for _, req := range fetched {
		if spec.Filter == nil || spec.Filter(req) {
			matching = append(matching, req)
		}
	}

	if len(matching) > 0 {
		if err := s.requests.Save(ctx, matching); err != nil {
			return nil, fmt.Errorf("save requests: %w", err)
		}
	}
	result.Inserted = matching

	if err := s.checkpoints.Set(ctx, spec.Key, toBlock+1); err != nil {
		return nil, fmt.Errorf("set checkpoint %s: %w", spec.Key, err)
	}

	summary := result.Summary()
	s.logger.Info("window scanned",
		"key", summary.Key,
		"from", summary.FromBlock,
		"to", summary.ToBlock,
		"fetched", summary.Fetched,
		"inserted", summary.Inserted,
		"question_ids", summary.QuestionIDs,
	)

	return result, nil
}
