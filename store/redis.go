package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eak1mov/go-tilestream/tile"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// TTL of stored payloads. Zero keeps them forever.
	TTL time.Duration
}

// RedisStore keeps payloads in Redis under "tilestream:{i}:{j}" keys.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and checks the connection with a ping.
func NewRedisStore(ctx context.Context, cfg RedisConfig, opts ...Option) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s, err := NewRedisStoreFromClient(ctx, client, cfg.TTL, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client. The store owns the client
// and closes it on Close.
func NewRedisStoreFromClient(ctx context.Context, client *redis.Client, ttl time.Duration, opts ...Option) (*RedisStore, error) {
	c := newConfig(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl, logger: c.logger}, nil
}

func RedisKey(idx tile.Index) string {
	return fmt.Sprintf("tilestream:%d:%d", idx.I, idx.J)
}

func (s *RedisStore) Get(ctx context.Context, idx tile.Index) ([]byte, error) {
	data, err := s.client.Get(ctx, RedisKey(idx)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, idx)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %v: %w", idx, err)
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, idx tile.Index, data []byte) error {
	if err := s.client.Set(ctx, RedisKey(idx), data, s.ttl).Err(); err != nil {
		s.logger.Error("redis put failed", zap.Stringer("index", idx), zap.Error(err))
		return fmt.Errorf("redis set %v: %w", idx, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
