package jobs

import (
	"context"

	"github.com/marko911/arbitration-relayer/internal/reconcile"
	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

const (
	NotifiedJobName     = "notified"
	KeyNotifiedRequests = "NOTIFIED_REQUESTS"
	TagNotifiedRemoved  = reconcile.Tag("NOTIFIED_REQUEST_REMOVED")
	TagNotifiedHandled  = reconcile.Tag("NOTIFIED_REQUEST_HANDLED")
)

// NewNotifiedJob forwards notified requests to the foreign chain. It owns
// requests from notification until the ruling lands, so awaiting_ruling rows
// are reconciled here too.
func NewNotifiedJob(chain HomeChain, deps Deps) Job {
	store := deps.Requests
	table := reconcile.NewTable(
		reconcile.Rule{
			Name: "gone-or-finished",
			When: reconcile.OnChainStatusIn(protov1.Status_HOME_NONE, protov1.Status_HOME_FINISHED),
			Then: reconcile.Remove(store, TagNotifiedRemoved),
		},
		reconcile.Rule{
			Name: "still-notified",
			When: reconcile.OnChainStatusIn(protov1.Status_HOME_NOTIFIED),
			Then: reconcile.Handle(TagNotifiedHandled, chain.HandleNotifiedRequest),
		},
		// Ruled and rejected rows are left for the jobs that own those statuses.
		reconcile.Rule{
			Name: "status-changed",
			When: reconcile.StatusChanged,
			Then: reconcile.Update(store),
		},
	)

	j := newReconcileJob(NotifiedJobName, KeyNotifiedRequests, chain, deps, chain.Lookup, table)
	j.fetch = chain.GetNotifiedRequests
	j.filter = statusIs(protov1.Status_HOME_NOTIFIED, protov1.Status_HOME_AWAITING_RULING)
	j.load = byStatus(store, protov1.Status_HOME_NOTIFIED, protov1.Status_HOME_AWAITING_RULING)
	return j
}

func statusIs(statuses ...protov1.Status) reconcile.StatusFilter {
	return func(req protov1.Request) bool {
		for _, s := range statuses {
			if req.Status == s {
				return true
			}
		}
		return false
	}
}

func byStatus(store reconcile.RequestStore, statuses ...protov1.Status) func(context.Context, uint64) ([]protov1.Request, error) {
	return func(ctx context.Context, chainID uint64) ([]protov1.Request, error) {
		var out []protov1.Request
		for _, s := range statuses {
			reqs, err := store.FetchByChainIDAndStatus(ctx, chainID, s)
			if err != nil {
				return nil, err
			}
			out = append(out, reqs...)
		}
		return out, nil
	}
}
