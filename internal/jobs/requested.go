package jobs

import (
	"github.com/marko911/arbitration-relayer/internal/reconcile"
	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

const (
	RequestedJobName         = "requested"
	KeyRequestedArbitrations = "REQUESTED_ARBITRATIONS"
	TagRequestedRemoved      = reconcile.Tag("REQUESTED_ARBITRATION_REMOVED")
	TagFailedDisputeHandled  = reconcile.Tag("FAILED_DISPUTE_CREATION_HANDLED")
)

// NewRequestedArbitrationsJob tracks arbitration requests on the foreign
// chain and refunds those whose dispute creation failed. It reconciles every
// stored request of the foreign chain.
func NewRequestedArbitrationsJob(chain ForeignChain, deps Deps) Job {
	store := deps.Requests
	table := reconcile.NewTable(
		reconcile.Rule{
			Name: "settled",
			When: reconcile.OnChainStatusIn(
				protov1.Status_FOREIGN_NONE,
				protov1.Status_FOREIGN_RULED,
				protov1.Status_FOREIGN_RELAYED,
			),
			Then: reconcile.Remove(store, TagRequestedRemoved),
		},
		reconcile.Rule{
			Name: "dispute-creation-failed",
			When: reconcile.OnChainStatusIn(protov1.Status_FOREIGN_FAILED),
			Then: reconcile.Handle(TagFailedDisputeHandled, chain.HandleFailedDisputeCreation),
		},
		reconcile.Rule{
			Name: "status-changed",
			When: reconcile.StatusChanged,
			Then: reconcile.Update(store),
		},
	)

	j := newReconcileJob(RequestedJobName, KeyRequestedArbitrations, chain, deps, chain.Lookup, table)
	j.fetch = chain.GetRequestedArbitrations
	j.filter = func(req protov1.Request) bool {
		return req.Status != protov1.Status_FOREIGN_NONE
	}
	j.load = store.FetchByChainID
	return j
}
