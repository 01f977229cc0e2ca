package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	protov1 "github.com/marko911/arbitration-relayer/pkg/proto/v1"
)

// MemoryRequestStore is the in-process counterpart of RequestRepository,
// with the same upsert and not-found semantics.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]protov1.Request
	now      func() time.Time
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{
		requests: make(map[string]protov1.Request),
		now:      time.Now,
	}
}

func (s *MemoryRequestStore) FetchByChainID(ctx context.Context, chainID uint64) ([]protov1.Request, error) {
	return s.filter(func(r protov1.Request) bool { return r.ChainID == chainID }), nil
}

func (s *MemoryRequestStore) FetchByChainIDAndStatus(ctx context.Context, chainID uint64, status protov1.Status) ([]protov1.Request, error) {
	return s.filter(func(r protov1.Request) bool {
		return r.ChainID == chainID && r.Status == status
	}), nil
}

func (s *MemoryRequestStore) Save(ctx context.Context, requests []protov1.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, req := range requests {
		key := req.Key()
		if prev, ok := s.requests[key]; ok {
			req.CreatedAt = prev.CreatedAt
		} else {
			req.CreatedAt = now
		}
		req.UpdatedAt = now
		s.requests[key] = req
	}
	return nil
}

func (s *MemoryRequestStore) Update(ctx context.Context, req protov1.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := req.Key()
	prev, ok := s.requests[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, key)
	}
	req.CreatedAt = prev.CreatedAt
	req.UpdatedAt = s.now()
	s.requests[key] = req
	return nil
}

func (s *MemoryRequestStore) Remove(ctx context.Context, req protov1.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, req.Key())
	return nil
}

// Len returns the number of stored requests.
func (s *MemoryRequestStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

func (s *MemoryRequestStore) filter(keep func(protov1.Request) bool) []protov1.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []protov1.Request
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}
