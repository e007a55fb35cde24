package http

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/errand/internal/logging"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/ports"
)

// StreamManager fans task frames out to SSE subscribers. It is an
// EventPublisher so the orchestrator can feed it directly.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan domain.StreamEvent]struct{} // TaskID -> set of channels
	logger      *slog.Logger
}

var _ ports.EventPublisher = (*StreamManager)(nil)

// NewStreamManager creates an empty manager. A nil logger discards.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan domain.StreamEvent]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for taskID. The returned func
// unregisters and closes it.
func (sm *StreamManager) Subscribe(taskID string) (<-chan domain.StreamEvent, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan domain.StreamEvent, 16)
	if _, ok := sm.subscribers[taskID]; !ok {
		sm.subscribers[taskID] = make(map[chan domain.StreamEvent]struct{})
	}
	sm.subscribers[taskID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[taskID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, taskID)
				}
			}
		})
	}
}

// Publish implements ports.EventPublisher. Slow subscribers lose frames
// rather than block the turn.
func (sm *StreamManager) Publish(_ context.Context, evt domain.StreamEvent) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[evt.TaskID] {
		select {
		case ch <- evt:
		default:
			sm.logger.Warn("SSE client buffer full, dropping frame", "task_id", evt.TaskID, "type", evt.Type)
		}
	}
	return nil
}

// Subscribers reports how many clients follow taskID.
func (sm *StreamManager) Subscribers(taskID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[taskID])
}
