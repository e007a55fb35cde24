// Package redis implements the checkpoint store and distributed locker on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/errand/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// farFuture is the index score used for checkpoints without a TTL (2100-01-01).
const farFuture = 4102444800

// Store implements ports.CheckpointStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL sets the expiration for checkpoints.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for checkpoints.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "errand:checkpoint:",
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying connection so a Locker can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(taskID string) string {
	return s.prefix + taskID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the checkpoint and indexes it for List.
func (s *Store) Save(ctx context.Context, cp domain.Checkpoint) error {
	now := s.now()
	cp.UpdatedAt = now
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	score := float64(now.Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = farFuture
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(cp.TaskID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: cp.TaskID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the checkpoint from Redis.
func (s *Store) Load(ctx context.Context, taskID string) (domain.Checkpoint, error) {
	val, err := s.client.Get(ctx, s.key(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.Checkpoint{}, domain.ErrCheckpointNotFound
		}
		return domain.Checkpoint{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(val, &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(taskID))
	pipe.ZRem(ctx, s.indexKey(), taskID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns indexed task ids, pruning entries whose TTL has passed.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(s.now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired checkpoints: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
