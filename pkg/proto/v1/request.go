package protov1

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Side identifies which proxy a request lives on. It also decides the
// discriminator: home requests are keyed by requester, foreign requests by the
// contested answer.
type Side int32

const (
	Side_SIDE_UNSPECIFIED Side = 0
	Side_SIDE_HOME        Side = 1
	Side_SIDE_FOREIGN     Side = 2
)

func (s Side) String() string {
	switch s {
	case Side_SIDE_HOME:
		return "home"
	case Side_SIDE_FOREIGN:
		return "foreign"
	default:
		return "unspecified"
	}
}

// Status is the raw on-chain status enum. Home and foreign proxies use
// different vocabularies, so a Status is only meaningful together with a Side.
type Status int32

const (
	Status_HOME_NONE            Status = 0
	Status_HOME_REJECTED        Status = 1
	Status_HOME_NOTIFIED        Status = 2
	Status_HOME_AWAITING_RULING Status = 3
	Status_HOME_RULED           Status = 4
	Status_HOME_FINISHED        Status = 5
)

const (
	Status_FOREIGN_NONE      Status = 0
	Status_FOREIGN_REQUESTED Status = 1
	Status_FOREIGN_CREATED   Status = 2
	Status_FOREIGN_RULED     Status = 3
	Status_FOREIGN_RELAYED   Status = 4
	Status_FOREIGN_FAILED    Status = 5
)

var homeStatusNames = map[Status]string{
	Status_HOME_NONE:            "none",
	Status_HOME_REJECTED:        "rejected",
	Status_HOME_NOTIFIED:        "notified",
	Status_HOME_AWAITING_RULING: "awaiting_ruling",
	Status_HOME_RULED:           "ruled",
	Status_HOME_FINISHED:        "finished",
}

var foreignStatusNames = map[Status]string{
	Status_FOREIGN_NONE:      "none",
	Status_FOREIGN_REQUESTED: "requested",
	Status_FOREIGN_CREATED:   "created",
	Status_FOREIGN_RULED:     "ruled",
	Status_FOREIGN_RELAYED:   "relayed",
	Status_FOREIGN_FAILED:    "failed",
}

// StatusName renders a status using the vocabulary of the given side.
func StatusName(side Side, status Status) string {
	var names map[Status]string
	switch side {
	case Side_SIDE_HOME:
		names = homeStatusNames
	case Side_SIDE_FOREIGN:
		names = foreignStatusNames
	}
	if name, ok := names[status]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", status)
}

// Request is the reconciled snapshot of one arbitration request.
//
// The first block of fields is read from the chain, the second block is
// bookkeeping that only exists off-chain.
type Request struct {
	Side       Side        `json:"side"`
	ChainID    uint64      `json:"chain_id"`
	QuestionID common.Hash `json:"question_id"`

	Status           Status         `json:"status"`
	Requester        common.Address `json:"requester"`
	ContestedAnswer  common.Hash    `json:"contested_answer"`
	MaxPrevious      *big.Int       `json:"max_previous,omitempty"`
	ArbitratorAnswer common.Hash    `json:"arbitrator_answer"`
	Deposit          *big.Int       `json:"deposit,omitempty"`
	DisputeID        *big.Int       `json:"dispute_id,omitempty"`
	Ruling           *big.Int       `json:"ruling,omitempty"`

	BlockNumber uint64      `json:"block_number"`
	TxHash      common.Hash `json:"tx_hash"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Discriminator returns the secondary key that, together with the chain and
// question id, identifies the request.
func (r Request) Discriminator() string {
	if r.Side == Side_SIDE_FOREIGN {
		return r.ContestedAnswer.Hex()
	}
	return r.Requester.Hex()
}

// Key renders the identity of the request as chain:question:discriminator.
func (r Request) Key() string {
	return fmt.Sprintf("%d:%s:%s", r.ChainID, r.QuestionID.Hex(), r.Discriminator())
}

// StatusName renders the request status in its side's vocabulary.
func (r Request) StatusName() string {
	return StatusName(r.Side, r.Status)
}
