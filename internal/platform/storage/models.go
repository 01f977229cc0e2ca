package storage

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// RequestRecord is the row form of an arbitration request.
type RequestRecord struct {
	ChainID          int64     `db:"chain_id"`
	QuestionID       string    `db:"question_id"`
	Discriminator    string    `db:"discriminator"`
	Side             int16     `db:"side"`
	Status           int16     `db:"status"`
	Requester        string    `db:"requester"`
	ContestedAnswer  string    `db:"contested_answer"`
	ArbitratorAnswer string    `db:"arbitrator_answer"`
	MaxPrevious      *string   `db:"max_previous"`
	Deposit          *string   `db:"deposit"`
	DisputeID        *string   `db:"dispute_id"`
	Ruling           *string   `db:"ruling"`
	BlockNumber      int64     `db:"block_number"`
	TxHash           string    `db:"tx_hash"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// RequestRecordFromProto converts a request into its row form.
func RequestRecordFromProto(req protov1.Request) RequestRecord {
	return RequestRecord{
		ChainID:          int64(req.ChainID),
		QuestionID:       req.QuestionID.Hex(),
		Discriminator:    req.Discriminator(),
		Side:             int16(req.Side),
		Status:           int16(req.Status),
		Requester:        req.Requester.Hex(),
		ContestedAnswer:  req.ContestedAnswer.Hex(),
		ArbitratorAnswer: req.ArbitratorAnswer.Hex(),
		MaxPrevious:      bigToText(req.MaxPrevious),
		Deposit:          bigToText(req.Deposit),
		DisputeID:        bigToText(req.DisputeID),
		Ruling:           bigToText(req.Ruling),
		BlockNumber:      int64(req.BlockNumber),
		TxHash:           req.TxHash.Hex(),
		CreatedAt:        req.CreatedAt,
		UpdatedAt:        req.UpdatedAt,
	}
}

// ToProto converts the row back into a request.
func (r *RequestRecord) ToProto() (protov1.Request, error) {
	req := protov1.Request{
		Side:             protov1.Side(r.Side),
		ChainID:          uint64(r.ChainID),
		QuestionID:       common.HexToHash(r.QuestionID),
		Status:           protov1.Status(r.Status),
		Requester:        common.HexToAddress(r.Requester),
		ContestedAnswer:  common.HexToHash(r.ContestedAnswer),
		ArbitratorAnswer: common.HexToHash(r.ArbitratorAnswer),
		BlockNumber:      uint64(r.BlockNumber),
		TxHash:           common.HexToHash(r.TxHash),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}

	var err error
	if req.MaxPrevious, err = textToBig("max_previous", r.MaxPrevious); err != nil {
		return req, err
	}
	if req.Deposit, err = textToBig("deposit", r.Deposit); err != nil {
		return req, err
	}
	if req.DisputeID, err = textToBig("dispute_id", r.DisputeID); err != nil {
		return req, err
	}
	if req.Ruling, err = textToBig("ruling", r.Ruling); err != nil {
		return req, err
	}
	return req, nil
}

func bigToText(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func textToBig(column string, s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s %q: not a decimal integer", column, *s)
	}
	return v, nil
}
