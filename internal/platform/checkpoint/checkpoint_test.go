package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client, "test:"), mr
}

func stores(t *testing.T) map[string]Store {
	redisStore, _ := newTestRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			h, found, err := s.Get(context.Background(), "NOTIFIED_REQUESTS")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if found || h != 0 {
				t.Errorf("expected missing checkpoint, got %d found=%v", h, found)
			}
		})
	}
}

func TestStore_SetAdvances(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, h := range []uint64{10, 10, 25} {
				if err := s.Set(ctx, "RULED_REQUESTS", h); err != nil {
					t.Fatalf("Set(%d) failed: %v", h, err)
				}
			}
			h, found, err := s.Get(ctx, "RULED_REQUESTS")
			if err != nil || !found {
				t.Fatalf("Get failed: %v found=%v", err, found)
			}
			if h != 25 {
				t.Errorf("expected 25, got %d", h)
			}
		})
	}
}

func TestStore_RejectsRegression(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, "K", 100); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			err := s.Set(ctx, "K", 99)
			if !errors.Is(err, ErrCheckpointRegression) {
				t.Fatalf("expected ErrCheckpointRegression, got %v", err)
			}
			h, _, _ := s.Get(ctx, "K")
			if h != 100 {
				t.Errorf("expected checkpoint to stay at 100, got %d", h)
			}
		})
	}
}

func TestStore_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, "A", 50); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := s.Set(ctx, "B", 5); err != nil {
				t.Fatalf("Set on a different key failed: %v", err)
			}
		})
	}
}

func TestRedisStore_KeyLayout(t *testing.T) {
	s, mr := newTestRedisStore(t)
	if err := s.Set(context.Background(), "REQUESTED_ARBITRATIONS", 42); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := mr.Get("test:checkpoint:REQUESTED_ARBITRATIONS")
	if err != nil {
		t.Fatalf("key not written: %v", err)
	}
	if got != "42" {
		t.Errorf("expected 42, got %s", got)
	}
}

func TestRedisStore_CorruptValue(t *testing.T) {
	s, mr := newTestRedisStore(t)
	mr.Set("test:checkpoint:K", "not-a-number")

	if _, _, err := s.Get(context.Background(), "K"); err == nil {
		t.Error("expected parse error")
	}
}

func TestMemoryStore_Snapshot(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Set(context.Background(), "A", 1)

	snap := s.Snapshot()
	snap["A"] = 99

	h, _, _ := s.Get(context.Background(), "A")
	if h != 1 {
		t.Errorf("snapshot aliased the store: got %d", h)
	}
}
