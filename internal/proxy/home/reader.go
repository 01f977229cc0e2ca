// Package home reads and writes the home arbitration proxy, the side that
// lives next to the Realitio oracle.
package home

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/marko911/arbitration-relayer/internal/proxy"
	"github.com/marko911/arbitration-relayer/internal/txsender"
	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// ErrNoAnswerFound is returned when Realitio has no answer for a question, so
// there is no history to report.
var ErrNoAnswerFound = errors.New("home: no answer found for question")

// Config locates the home proxy. Realitio is optional and read from the proxy
// when empty. Answer lookups start at RealitioStartBlock, or at the proxy's
// StartBlock when it is zero.
type Config struct {
	proxy.Config
	Realitio           common.Address
	RealitioStartBlock uint64
}

// Proxy is the home chain facade.
type Proxy struct {
	cfg     Config
	backend proxy.Backend
	sender  txsender.Sender
	proxy   *proxy.Contract

	mu      sync.Mutex
	chainID uint64

	// realitioMu is separate from mu so the one-time Realitio address call
	// never stalls reads that only need the cached chain id.
	realitioMu sync.Mutex
	realitio   *proxy.Contract
}

func New(cfg Config, backend proxy.Backend, sender txsender.Sender) *Proxy {
	return &Proxy{
		cfg:     cfg,
		backend: backend,
		sender:  sender,
		proxy:   proxy.NewContract(parsedProxyABI, cfg.Address, backend, cfg.MaxBlockRange),
	}
}

// ChainID returns the home chain id, cached after the first call.
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

// StartBlock is the first block event scans look at.
func (p *Proxy) StartBlock() uint64 {
	return p.cfg.StartBlock
}

// GetRequest reads the current on-chain state of (questionID, requester). A
// request the proxy does not know comes back with status None.
func (p *Proxy) GetRequest(ctx context.Context, questionID common.Hash, requester common.Address) (protov1.Request, error) {
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return protov1.Request{}, err
	}

	out, err := p.proxy.Call(ctx, "requests", questionID, requester)
	if err != nil {
		return protov1.Request{}, err
	}
	if len(out) != 2 {
		return protov1.Request{}, fmt.Errorf("requests: expected 2 outputs, got %d", len(out))
	}
	status, ok := out[0].(uint8)
	if !ok {
		return protov1.Request{}, fmt.Errorf("requests: unexpected status type %T", out[0])
	}
	answer, ok := out[1].([32]byte)
	if !ok {
		return protov1.Request{}, fmt.Errorf("requests: unexpected answer type %T", out[1])
	}

	return protov1.Request{
		Side:             protov1.Side_SIDE_HOME,
		ChainID:          chainID,
		QuestionID:       questionID,
		Requester:        requester,
		Status:           protov1.Status(status),
		ArbitratorAnswer: common.Hash(answer),
	}, nil
}

// Lookup reads the on-chain counterpart of a stored request.
func (p *Proxy) Lookup(ctx context.Context, stored protov1.Request) (protov1.Request, error) {
	return p.GetRequest(ctx, stored.QuestionID, stored.Requester)
}

// GetNotifiedRequests returns the current state of every request referenced
// by a RequestNotified event in [fromBlock, toBlock].
func (p *Proxy) GetNotifiedRequests(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error) {
	return p.requestsFromEvents(ctx, eventRequestNotified, fromBlock, toBlock)
}

// GetRejectedRequests returns the current state of every request referenced
// by a RequestRejected event in [fromBlock, toBlock].
func (p *Proxy) GetRejectedRequests(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error) {
	return p.requestsFromEvents(ctx, eventRequestRejected, fromBlock, toBlock)
}

// GetRuledRequests returns the current state of every request the
// arbitrator answered in [fromBlock, toBlock]. The event only carries the
// question, so the requester is read from the proxy.
func (p *Proxy) GetRuledRequests(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error) {
	logs, err := p.proxy.FilterLogs(ctx, eventArbitratorAnswered, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}

	seen := make(map[common.Hash]bool)
	var out []protov1.Request
	for _, l := range logs {
		if len(l.Topics) < 2 {
			continue
		}
		questionID := l.Topics[1]
		if seen[questionID] {
			continue
		}
		seen[questionID] = true

		res, err := p.proxy.Call(ctx, "questionIDToRequester", questionID)
		if err != nil {
			return nil, err
		}
		requester, ok := res[0].(common.Address)
		if !ok {
			return nil, fmt.Errorf("questionIDToRequester: unexpected type %T", res[0])
		}

		req, err := p.GetRequest(ctx, questionID, requester)
		if err != nil {
			return nil, fmt.Errorf("get request %s: %w", questionID.Hex(), err)
		}
		req.BlockNumber = l.BlockNumber
		req.TxHash = l.TxHash
		out = append(out, req)
	}
	return out, nil
}

func (p *Proxy) requestsFromEvents(ctx context.Context, event string, fromBlock, toBlock uint64) ([]protov1.Request, error) {
	logs, err := p.proxy.FilterLogs(ctx, event, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}

	type identity struct {
		questionID common.Hash
		requester  common.Address
	}
	seen := make(map[identity]int)

	var out []protov1.Request
	for _, l := range logs {
		id, maxPrevious, err := p.decodeRequestEvent(event, l)
		if err != nil {
			return nil, err
		}
		key := identity{id.QuestionID, id.Requester}

		// Later events win for the event fields; state is read once.
		if i, ok := seen[key]; ok {
			out[i].MaxPrevious = maxPrevious
			out[i].BlockNumber = l.BlockNumber
			out[i].TxHash = l.TxHash
			continue
		}

		req, err := p.GetRequest(ctx, id.QuestionID, id.Requester)
		if err != nil {
			return nil, fmt.Errorf("get request %s: %w", id.QuestionID.Hex(), err)
		}
		req.MaxPrevious = maxPrevious
		req.BlockNumber = l.BlockNumber
		req.TxHash = l.TxHash

		seen[key] = len(out)
		out = append(out, req)
	}
	return out, nil
}

func (p *Proxy) decodeRequestEvent(event string, l types.Log) (protov1.Request, *big.Int, error) {
	if len(l.Topics) < 3 {
		return protov1.Request{}, nil, fmt.Errorf("%s log %s: expected 3 topics, got %d", event, l.TxHash.Hex(), len(l.Topics))
	}
	values, err := p.proxy.UnpackEvent(event, l)
	if err != nil {
		return protov1.Request{}, nil, err
	}
	maxPrevious, ok := values[0].(*big.Int)
	if !ok {
		return protov1.Request{}, nil, fmt.Errorf("%s: unexpected maxPrevious type %T", event, values[0])
	}
	return protov1.Request{
		QuestionID: l.Topics[1],
		Requester:  common.BytesToAddress(l.Topics[2].Bytes()),
	}, maxPrevious, nil
}
