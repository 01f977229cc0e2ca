// Package checkpoint stores the next block height each window scan starts
// from. Every store refuses to move a checkpoint backwards.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCheckpointRegression is returned when Set is called with a height lower
// than the stored one.
var ErrCheckpointRegression = errors.New("checkpoint: height regression")

// Store is implemented by every checkpoint backend.
type Store interface {
	Get(ctx context.Context, key string) (uint64, bool, error)
	Set(ctx context.Context, key string, height uint64) error
}

func regression(key string, current, height uint64) error {
	return fmt.Errorf("%w: %s at %d, refused %d", ErrCheckpointRegression, key, current, height)
}

// MemoryStore keeps checkpoints in process memory. Used with -once runs and
// in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	heights map[string]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{heights: make(map[string]uint64)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.heights[key]
	return h, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.heights[key]; ok && height < cur {
		return regression(key, cur, height)
	}
	s.heights[key] = height
	return nil
}

// Snapshot returns a copy of every stored checkpoint.
func (s *MemoryStore) Snapshot() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]uint64, len(s.heights))
	for k, v := range s.heights {
		out[k] = v
	}
	return out
}
