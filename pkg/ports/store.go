package ports

import (
	"context"

	"github.com/aretw0/errand/pkg/domain"
)

// CheckpointStore defines the interface for persisting task checkpoints.
// This is the unit of resumability: a task can be picked up on any turn from
// whatever was last saved.
type CheckpointStore interface {
	// Save persists the checkpoint, replacing any previous one for cp.TaskID.
	Save(ctx context.Context, cp domain.Checkpoint) error

	// Load retrieves the checkpoint for a task.
	// Returns domain.ErrCheckpointNotFound if none exists.
	Load(ctx context.Context, taskID string) (domain.Checkpoint, error)

	// Delete removes the checkpoint for a task.
	Delete(ctx context.Context, taskID string) error

	// List returns the ids of every task with a checkpoint.
	List(ctx context.Context) ([]string, error)
}

// TaskRepository resolves the records that identify who is talking and about what.
type TaskRepository interface {
	// CreateSession starts a new session for userID.
	CreateSession(ctx context.Context, userID string) (*domain.Session, error)

	// GetSession returns domain.ErrSessionNotFound for unknown ids.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// CreateTask opens a new active task in a session.
	CreateTask(ctx context.Context, sessionID string, taskType domain.TaskType) (*domain.Task, error)

	// GetTask returns domain.ErrTaskNotFound for unknown ids.
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// FindOpenTask returns the most recently updated active task of taskType
	// in the session, or domain.ErrTaskNotFound.
	FindOpenTask(ctx context.Context, sessionID string, taskType domain.TaskType) (*domain.Task, error)

	// LatestOpenTask returns the most recently updated active task of any
	// type in the session, or domain.ErrTaskNotFound.
	LatestOpenTask(ctx context.Context, sessionID string) (*domain.Task, error)

	// UpdateTask persists status changes.
	UpdateTask(ctx context.Context, task *domain.Task) error

	// CreateGuest mints an anonymous identity.
	CreateGuest(ctx context.Context) (*domain.Guest, error)

	// ResolveGuest returns domain.ErrSessionNotFound for unknown tokens.
	ResolveGuest(ctx context.Context, token string) (*domain.Guest, error)
}
