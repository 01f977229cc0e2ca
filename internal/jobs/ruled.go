package jobs

import (
	"github.com/marko911/arbitration-relayer/internal/reconcile"
	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

const (
	RuledJobName     = "ruled"
	KeyRuledRequests = "RULED_REQUESTS"
	TagRuledRemoved  = reconcile.Tag("RULED_REQUEST_REMOVED")
	TagRuledHandled  = reconcile.Tag("RULED_REQUEST_HANDLED")
)

// NewRuledJob reports arbitrator rulings back to Realitio.
func NewRuledJob(chain HomeChain, deps Deps) Job {
	store := deps.Requests
	table := reconcile.NewTable(
		reconcile.Rule{
			Name: "gone-or-finished",
			When: reconcile.OnChainStatusIn(protov1.Status_HOME_NONE, protov1.Status_HOME_FINISHED),
			Then: reconcile.Remove(store, TagRuledRemoved),
		},
		reconcile.Rule{
			Name: "still-ruled",
			When: reconcile.OnChainStatusIn(protov1.Status_HOME_RULED),
			Then: reconcile.Handle(TagRuledHandled, chain.ReportArbitrationAnswer),
		},
		reconcile.Rule{
			Name: "status-changed",
			When: reconcile.StatusChanged,
			Then: reconcile.Update(store),
		},
	)

	j := newReconcileJob(RuledJobName, KeyRuledRequests, chain, deps, chain.Lookup, table)
	j.fetch = chain.GetRuledRequests
	j.filter = statusIs(protov1.Status_HOME_RULED)
	j.load = byStatus(store, protov1.Status_HOME_RULED)
	return j
}
