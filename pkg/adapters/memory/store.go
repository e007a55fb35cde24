// Package memory provides in-process implementations of the storage ports.
// They back tests, the chat REPL, and the per-machine scratch checkpoints.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/errand/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
	now  func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used to stamp checkpoints.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		data: make(map[string][]byte),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save persists the checkpoint in memory. It is serialized so that callers
// see the same value shapes a durable store would give them.
func (s *Store) Save(ctx context.Context, cp domain.Checkpoint) error {
	cp.UpdatedAt = s.now()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[cp.TaskID] = data
	return nil
}

// Load retrieves the checkpoint from memory.
func (s *Store) Load(ctx context.Context, taskID string) (domain.Checkpoint, error) {
	s.mu.RLock()
	data, ok := s.data[taskID]
	s.mu.RUnlock()

	if !ok {
		return domain.Checkpoint{}, domain.ErrCheckpointNotFound
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, taskID)
	return nil
}

// List returns the ids of stored checkpoints.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

// Len reports how many checkpoints are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
