package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/google/uuid"
)

// Repository implements ports.TaskRepository in memory.
type Repository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	tasks    map[string]domain.Task
	guests   map[string]domain.Guest
	now      func() time.Time
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		sessions: make(map[string]domain.Session),
		tasks:    make(map[string]domain.Task),
		guests:   make(map[string]domain.Guest),
		now:      time.Now,
	}
}

func (r *Repository) CreateSession(ctx context.Context, userID string) (*domain.Session, error) {
	now := r.now()
	sess := domain.Session{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
	return &sess, nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &sess, nil
}

func (r *Repository) CreateTask(ctx context.Context, sessionID string, taskType domain.TaskType) (*domain.Task, error) {
	now := r.now()
	task := domain.Task{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      taskType,
		Status:    domain.TaskActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return nil, domain.ErrSessionNotFound
	}
	r.tasks[task.ID] = task
	return &task, nil
}

func (r *Repository) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return &task, nil
}

func (r *Repository) FindOpenTask(ctx context.Context, sessionID string, taskType domain.TaskType) (*domain.Task, error) {
	return r.latest(func(t domain.Task) bool {
		return t.SessionID == sessionID && t.Type == taskType && t.Open()
	})
}

func (r *Repository) LatestOpenTask(ctx context.Context, sessionID string) (*domain.Task, error) {
	return r.latest(func(t domain.Task) bool {
		return t.SessionID == sessionID && t.Open()
	})
}

func (r *Repository) latest(match func(domain.Task) bool) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *domain.Task
	for _, t := range r.tasks {
		if !match(t) {
			continue
		}
		if best == nil || t.UpdatedAt.After(best.UpdatedAt) {
			best = &t
		}
	}
	if best == nil {
		return nil, domain.ErrTaskNotFound
	}
	return best, nil
}

func (r *Repository) UpdateTask(ctx context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[task.ID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	existing.Status = task.Status
	existing.AwaitingInput = task.AwaitingInput
	existing.UpdatedAt = r.now()
	r.tasks[task.ID] = existing
	task.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *Repository) CreateGuest(ctx context.Context) (*domain.Guest, error) {
	g := domain.Guest{
		UserID:    "guest-" + uuid.NewString(),
		Token:     uuid.NewString(),
		CreatedAt: r.now(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guests[g.Token] = g
	return &g, nil
}

func (r *Repository) ResolveGuest(ctx context.Context, token string) (*domain.Guest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.guests[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &g, nil
}
