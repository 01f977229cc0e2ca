package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

var errInjected = errors.New("injected failure")

// fakeRequestStore is an in-memory RequestStore with failure injection.
type fakeRequestStore struct {
	mu        sync.Mutex
	requests  map[string]protov1.Request
	saveErr   error
	updateErr error
	removeErr error
	saves     int
}

func newFakeRequestStore(reqs ...protov1.Request) *fakeRequestStore {
	s := &fakeRequestStore{requests: make(map[string]protov1.Request)}
	for _, r := range reqs {
		s.requests[r.Key()] = r
	}
	return s
}

func (s *fakeRequestStore) FetchByChainID(ctx context.Context, chainID uint64) ([]protov1.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protov1.Request
	for _, r := range s.requests {
		if r.ChainID == chainID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRequestStore) FetchByChainIDAndStatus(ctx context.Context, chainID uint64, status protov1.Status) ([]protov1.Request, error) {
	all, _ := s.FetchByChainID(ctx, chainID)
	var out []protov1.Request
	for _, r := range all {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRequestStore) Save(ctx context.Context, reqs []protov1.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	for _, r := range reqs {
		s.requests[r.Key()] = r
	}
	return nil
}

func (s *fakeRequestStore) Update(ctx context.Context, req protov1.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.requests[req.Key()] = req
	return nil
}

func (s *fakeRequestStore) Remove(ctx context.Context, req protov1.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.requests, req.Key())
	return nil
}

func (s *fakeRequestStore) get(req protov1.Request) (protov1.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[req.Key()]
	return r, ok
}

func (s *fakeRequestStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// fakeCheckpoints is an in-memory CheckpointStore that records every height set.
type fakeCheckpoints struct {
	mu      sync.Mutex
	heights map[string]uint64
	history []uint64
	getErr  error
	setErr  error
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{heights: make(map[string]uint64)}
}

func (c *fakeCheckpoints) Get(ctx context.Context, key string) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return 0, false, c.getErr
	}
	h, ok := c.heights[key]
	return h, ok, nil
}

func (c *fakeCheckpoints) Set(ctx context.Context, key string, height uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	if cur, ok := c.heights[key]; ok && height < cur {
		return fmt.Errorf("regression %d < %d", height, cur)
	}
	c.heights[key] = height
	c.history = append(c.history, height)
	return nil
}

type fakeHead struct {
	height uint64
	err    error
}

func (h *fakeHead) BlockNumber(ctx context.Context) (uint64, error) {
	return h.height, h.err
}

func homeRequest(n int64, status protov1.Status) protov1.Request {
	return protov1.Request{
		Side:       protov1.Side_SIDE_HOME,
		ChainID:    77,
		QuestionID: common.BigToHash(bigInt(n)),
		Requester:  common.BigToAddress(bigInt(1000 + n)),
		Status:     status,
	}
}
