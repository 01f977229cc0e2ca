package jobs

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

var errInjected = errors.New("injected failure")

// fakeChain is the shared state of the home and foreign fakes: a head, a set
// of live requests and per-event logs.
type fakeChain struct {
	mu sync.Mutex

	side    protov1.Side
	chainID uint64
	head    uint64
	start   uint64

	live     map[string]protov1.Request
	events   map[string][]protov1.Request
	failing  map[string]bool
	handled  map[string][]string
	chainErr error
	scanErr  error
}

func newFakeChain(side protov1.Side, chainID, head uint64) *fakeChain {
	return &fakeChain{
		side:    side,
		chainID: chainID,
		head:    head,
		live:    make(map[string]protov1.Request),
		events:  make(map[string][]protov1.Request),
		failing: make(map[string]bool),
		handled: make(map[string][]string),
	}
}

func (c *fakeChain) ChainID(ctx context.Context) (uint64, error) {
	if c.chainErr != nil {
		return 0, c.chainErr
	}
	return c.chainID, nil
}

func (c *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *fakeChain) StartBlock() uint64 {
	return c.start
}

// setLive records the on-chain state of a request.
func (c *fakeChain) setLive(req protov1.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live[req.Key()] = req
}

// emit records an event at the request's block number.
func (c *fakeChain) emit(event string, req protov1.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[event] = append(c.events[event], req)
}

// Lookup mirrors the contracts: unknown requests read back with a zero status.
func (c *fakeChain) Lookup(ctx context.Context, stored protov1.Request) (protov1.Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing[stored.Key()] {
		return protov1.Request{}, errInjected
	}
	if live, ok := c.live[stored.Key()]; ok {
		return live, nil
	}
	return protov1.Request{
		Side:            stored.Side,
		ChainID:         stored.ChainID,
		QuestionID:      stored.QuestionID,
		Requester:       stored.Requester,
		ContestedAnswer: stored.ContestedAnswer,
	}, nil
}

func (c *fakeChain) scan(event string, fromBlock, toBlock uint64) ([]protov1.Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanErr != nil {
		return nil, c.scanErr
	}
	var out []protov1.Request
	for _, req := range c.events[event] {
		if req.BlockNumber >= fromBlock && req.BlockNumber <= toBlock {
			out = append(out, req)
		}
	}
	return out, nil
}

func (c *fakeChain) handle(op string, req protov1.Request) (protov1.Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handled[op] = append(c.handled[op], req.Key())
	return req, nil
}

func (c *fakeChain) handledKeys(op string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.handled[op]...)
}

type fakeHome struct {
	*fakeChain
}

func newFakeHome(head uint64) *fakeHome {
	return &fakeHome{newFakeChain(protov1.Side_SIDE_HOME, 100, head)}
}

func (h *fakeHome) GetNotifiedRequests(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error) {
	return h.scan("RequestNotified", fromBlock, toBlock)
}

func (h *fakeHome) GetRejectedRequests(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error) {
	return h.scan("RequestRejected", fromBlock, toBlock)
}

func (h *fakeHome) GetRuledRequests(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error) {
	return h.scan("ArbitratorAnswered", fromBlock, toBlock)
}

func (h *fakeHome) HandleNotifiedRequest(ctx context.Context, req protov1.Request) (protov1.Request, error) {
	return h.handle("handleNotifiedRequest", req)
}

func (h *fakeHome) HandleRejectedRequest(ctx context.Context, req protov1.Request) (protov1.Request, error) {
	return h.handle("handleRejectedRequest", req)
}

func (h *fakeHome) ReportArbitrationAnswer(ctx context.Context, req protov1.Request) (protov1.Request, error) {
	return h.handle("reportArbitrationAnswer", req)
}

type fakeForeign struct {
	*fakeChain
}

func newFakeForeign(head uint64) *fakeForeign {
	return &fakeForeign{newFakeChain(protov1.Side_SIDE_FOREIGN, 200, head)}
}

func (f *fakeForeign) GetRequestedArbitrations(ctx context.Context, fromBlock, toBlock uint64) ([]protov1.Request, error) {
	return f.scan("ArbitrationRequested", fromBlock, toBlock)
}

func (f *fakeForeign) HandleFailedDisputeCreation(ctx context.Context, req protov1.Request) (protov1.Request, error) {
	return f.handle("handleFailedDisputeCreation", req)
}

func homeRequest(n int64, status protov1.Status) protov1.Request {
	return protov1.Request{
		Side:       protov1.Side_SIDE_HOME,
		ChainID:    100,
		QuestionID: common.BigToHash(big.NewInt(n)),
		Requester:  common.BigToAddress(big.NewInt(1000 + n)),
		Status:     status,
	}
}

func foreignRequest(n int64, status protov1.Status) protov1.Request {
	return protov1.Request{
		Side:            protov1.Side_SIDE_FOREIGN,
		ChainID:         200,
		QuestionID:      common.BigToHash(big.NewInt(n)),
		ContestedAnswer: common.BigToHash(big.NewInt(2000 + n)),
		Requester:       common.BigToAddress(big.NewInt(1000 + n)),
		Status:          status,
	}
}
