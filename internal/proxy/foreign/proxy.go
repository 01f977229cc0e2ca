// Package foreign reads and writes the foreign arbitration proxy, the side
// that lives next to the arbitrator.
package foreign

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marko911/arbitration-relayer/internal/proxy"
	"github.com/marko911/arbitration-relayer/internal/txsender"
	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// Proxy is the foreign chain facade. Requests are identified by question id
// and contested answer.
type Proxy struct {
	cfg     proxy.Config
	backend proxy.Backend
	sender  txsender.Sender
	proxy   *proxy.Contract

	mu      sync.Mutex
	chainID uint64
}

func New(cfg proxy.Config, backend proxy.Backend, sender txsender.Sender) *Proxy {
	return &Proxy{
		cfg:     cfg,
		backend: backend,
		sender:  sender,
		proxy:   proxy.NewContract(parsedProxyABI, cfg.Address, backend, cfg.MaxBlockRange),
	}
}

func (p *Proxy) ChainID(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chainID != 0 {
		return p.chainID, nil
	}
	id, err := proxy.ChainID(ctx, p.backend)
	if err != nil {
		return 0, err
	}
	p.chainID = id
	return id, nil
}

func (p *Proxy) BlockNumber(ctx context.Context) (uint64, error) {
	return p.backend.BlockNumber(ctx)
}

func (p *Proxy) StartBlock() uint64 {
	return p.cfg.StartBlock
}

// GetArbitrationRequest reads the current on-chain state of
// (questionID, contestedAnswer).
func (p *Proxy) GetArbitrationRequest(ctx context.Context, questionID, contestedAnswer common.Hash) (protov1.Request, error) {
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return protov1.Request{}, err
	}

	out, err := p.proxy.Call(ctx, "arbitrationRequests", questionID, contestedAnswer)
	if err != nil {
		return protov1.Request{}, err
	}
	if len(out) != 5 {
		return protov1.Request{}, fmt.Errorf("arbitrationRequests: expected 5 outputs, got %d", len(out))
	}

	status, ok := out[0].(uint8)
	if !ok {
		return protov1.Request{}, fmt.Errorf("arbitrationRequests: unexpected status type %T", out[0])
	}
	requester, ok := out[1].(common.Address)
	if !ok {
		return protov1.Request{}, fmt.Errorf("arbitrationRequests: unexpected requester type %T", out[1])
	}
	amounts := make([]*big.Int, 3)
	for i := range amounts {
		v, ok := out[i+2].(*big.Int)
		if !ok {
			return protov1.Request{}, fmt.Errorf("arbitrationRequests: unexpected output %d type %T", i+2, out[i+2])
		}
		amounts[i] = v
	}

	return protov1.Request{
		Side:            protov1.Side_SIDE_FOREIGN,
		ChainID:         chainID,
		QuestionID:      questionID,
		ContestedAnswer: contestedAnswer,
		Status:          protov1.Status(status),
		Requester:       requester,
		Deposit:         amounts[0],
		DisputeID:       amounts[1],
		Ruling:          amounts[2],
	}, nil
}

// Lookup reads the on-chain counterpart of a stored request.
func (p *Proxy) Lookup(ctx context.Context, stored protov1.Request) (protov1.Request, error) {
	return p.GetArbitrationRequest(ctx, stored.QuestionID, stored.ContestedAnswer)
}

// GetRequestedArbitrations returns the current state of every request
// referenced by an ArbitrationRequested event in [fromBlock, toBlock].
func (p *Proxy) GetRequestedArbitrations(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error) {
	logs, err := p.proxy.FilterLogs(ctx, eventArbitrationRequested, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}

	type identity struct {
		questionID      common.Hash
		contestedAnswer common.Hash
	}
	seen := make(map[identity]int)

	var out []protov1.Request
	for _, l := range logs {
		if len(l.Topics) < 3 {
			return nil, fmt.Errorf("%s log %s: expected 3 topics, got %d", eventArbitrationRequested, l.TxHash.Hex(), len(l.Topics))
		}
		values, err := p.proxy.UnpackEvent(eventArbitrationRequested, l)
		if err != nil {
			return nil, err
		}
		contested, ok := values[0].([32]byte)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected contested answer type %T", eventArbitrationRequested, values[0])
		}
		maxPrevious, ok := values[1].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected maxPrevious type %T", eventArbitrationRequested, values[1])
		}

		key := identity{l.Topics[1], common.Hash(contested)}
		if i, ok := seen[key]; ok {
			out[i].MaxPrevious = maxPrevious
			out[i].BlockNumber = l.BlockNumber
			out[i].TxHash = l.TxHash
			continue
		}

		req, err := p.GetArbitrationRequest(ctx, key.questionID, key.contestedAnswer)
		if err != nil {
			return nil, fmt.Errorf("get arbitration request %s: %w", key.questionID.Hex(), err)
		}
		if req.Requester == (common.Address{}) {
			req.Requester = common.BytesToAddress(l.Topics[2].Bytes())
		}
		req.MaxPrevious = maxPrevious
		req.BlockNumber = l.BlockNumber
		req.TxHash = l.TxHash

		seen[key] = len(out)
		out = append(out, req)
	}
	return out, nil
}

// HandleFailedDisputeCreation refunds a request whose dispute could not be
// created on the arbitrator.
func (p *Proxy) HandleFailedDisputeCreation(ctx context.Context, req protov1.Request) (protov1.Request, error) {
	data, err := p.proxy.Pack("handleFailedDisputeCreation", req.QuestionID, req.ContestedAnswer)
	if err != nil {
		return req, err
	}
	if _, err := p.sender.Send(ctx, p.cfg.Address, data); err != nil {
		return req, fmt.Errorf("handleFailedDisputeCreation %s: %w", req.QuestionID.Hex(), err)
	}
	return req, nil
}
