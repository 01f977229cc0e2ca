package jobs

import (
	"github.com/marko911/arbitration-relayer/internal/reconcile"
	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

const (
	RejectedJobName     = "rejected"
	KeyRejectedRequests = "REJECTED_REQUESTS"
	TagRejectedRemoved  = reconcile.Tag("REJECTED_REQUEST_REMOVED")
	TagRejectedHandled  = reconcile.Tag("REJECTED_REQUEST_HANDLED")
)

// NewRejectedJob refunds requests the home proxy rejected.
func NewRejectedJob(chain HomeChain, deps Deps) Job {
	store := deps.Requests
	table := reconcile.NewTable(
		reconcile.Rule{
			Name: "gone-or-finished",
			When: reconcile.OnChainStatusIn(protov1.Status_HOME_NONE, protov1.Status_HOME_FINISHED),
			Then: reconcile.Remove(store, TagRejectedRemoved),
		},
		reconcile.Rule{
			Name: "still-rejected",
			When: reconcile.OnChainStatusIn(protov1.Status_HOME_REJECTED),
			Then: reconcile.Handle(TagRejectedHandled, chain.HandleRejectedRequest),
		},
		// A resubmitted request moves to whichever job owns its new status.
		reconcile.Rule{
			Name: "status-changed",
			When: reconcile.StatusChanged,
			Then: reconcile.Update(store),
		},
	)

	j := newReconcileJob(RejectedJobName, KeyRejectedRequests, chain, deps, chain.Lookup, table)
	j.fetch = chain.GetRejectedRequests
	j.filter = statusIs(protov1.Status_HOME_REJECTED)
	j.load = byStatus(store, protov1.Status_HOME_REJECTED)
	return j
}
