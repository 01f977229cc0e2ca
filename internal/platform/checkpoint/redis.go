package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyCheckpoint = "checkpoint:"

// setIfNotLower writes ARGV[1] unless the stored height is greater. Returns
// the stored height on refusal and -1 on success.
var setIfNotLower = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return tonumber(cur)
end
redis.call('SET', KEYS[1], ARGV[1])
return -1
`)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	KeyPrefix string
}

// RedisStore keeps checkpoints as plain string keys so several relayer
// instances can share them.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisStore) key(name string) string {
	return s.keyPrefix + keyCheckpoint + name
}

func (s *RedisStore) Get(ctx context.Context, key string) (uint64, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get checkpoint %s: %w", key, err)
	}

	height, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse checkpoint %s: %w", key, err)
	}
	return height, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, height uint64) error {
	res, err := setIfNotLower.Run(ctx, s.client, []string{s.key(key)}, strconv.FormatUint(height, 10)).Int64()
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w", key, err)
	}
	if res >= 0 {
		return regression(key, uint64(res), height)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
