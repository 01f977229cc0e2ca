package reconcile

import (
	"github.com/ethereum/go-ethereum/common"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// Merge overlays the on-chain view of a request onto its stored snapshot.
//
// Status always comes from the chain. Payload fields are taken from the chain
// whenever the chain supplied them; identity and bookkeeping fields are kept
// from the stored copy.
func Merge(stored, onChain protov1.Request) protov1.Request {
	merged := stored
	merged.Status = onChain.Status

	if onChain.Requester != (common.Address{}) {
		merged.Requester = onChain.Requester
	}
	if onChain.ContestedAnswer != (common.Hash{}) {
		merged.ContestedAnswer = onChain.ContestedAnswer
	}
	if onChain.ArbitratorAnswer != (common.Hash{}) {
		merged.ArbitratorAnswer = onChain.ArbitratorAnswer
	}
	if onChain.MaxPrevious != nil {
		merged.MaxPrevious = onChain.MaxPrevious
	}
	if onChain.Deposit != nil {
		merged.Deposit = onChain.Deposit
	}
	if onChain.DisputeID != nil {
		merged.DisputeID = onChain.DisputeID
	}
	if onChain.Ruling != nil {
		merged.Ruling = onChain.Ruling
	}

	return merged
}
