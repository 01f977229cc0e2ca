package reconcile

import (
	"context"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// RequestStore persists the last known snapshot of every tracked request,
// keyed by chain id, question id and discriminator.
type RequestStore interface {
	FetchByChainID(ctx context.Context, chainID uint64) ([]protov1.Request, error)
	FetchByChainIDAndStatus(ctx context.Context, chainID uint64, status protov1.Status) ([]protov1.Request, error)
	// Save upserts every request. Last write wins per identity.
	Save(ctx context.Context, requests []protov1.Request) error
	Update(ctx context.Context, request protov1.Request) error
	Remove(ctx context.Context, request protov1.Request) error
}

// CheckpointStore maps a scan key to the next block height to scan.
type CheckpointStore interface {
	// Get reports found=false when the key was never set.
	Get(ctx context.Context, key string) (height uint64, found bool, err error)
	// Set must refuse to move a checkpoint backwards.
	Set(ctx context.Context, key string, height uint64) error
}
