package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/google/uuid"
)

// Repository implements ports.TaskRepository.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewRepository wraps an opened and migrated database.
func NewRepository(db *sql.DB, d Dialect) *Repository {
	return &Repository{db: db, dialect: d, now: time.Now}
}

func (r *Repository) CreateSession(ctx context.Context, userID string) (*domain.Session, error) {
	now := r.now()
	sess := domain.Session{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	q := r.dialect.rebind(`INSERT INTO sessions (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, q, sess.ID, sess.UserID, now.UnixNano(), now.UnixNano()); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &sess, nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	q := r.dialect.rebind(`SELECT user_id, created_at, updated_at FROM sessions WHERE id = ?`)
	var (
		userID           string
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx, q, sessionID).Scan(&userID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &domain.Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: time.Unix(0, created),
		UpdatedAt: time.Unix(0, updated),
	}, nil
}

func (r *Repository) CreateTask(ctx context.Context, sessionID string, taskType domain.TaskType) (*domain.Task, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	now := r.now()
	task := domain.Task{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      taskType,
		Status:    domain.TaskActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q := r.dialect.rebind(`
		INSERT INTO tasks (id, session_id, type, status, awaiting_input, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, task.ID, task.SessionID, string(task.Type), string(task.Status), false, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &task, nil
}

const taskColumns = `id, session_id, type, status, awaiting_input, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*domain.Task, error) {
	var (
		t                domain.Task
		typ, status      string
		created, updated int64
	)
	if err := row.Scan(&t.ID, &t.SessionID, &typ, &status, &t.AwaitingInput, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	t.Type = domain.TaskType(typ)
	t.Status = domain.TaskStatus(status)
	t.CreatedAt = time.Unix(0, created)
	t.UpdatedAt = time.Unix(0, updated)
	return &t, nil
}

func (r *Repository) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	q := r.dialect.rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`)
	return scanTask(r.db.QueryRowContext(ctx, q, taskID))
}

func (r *Repository) FindOpenTask(ctx context.Context, sessionID string, taskType domain.TaskType) (*domain.Task, error) {
	q := r.dialect.rebind(`SELECT ` + taskColumns + ` FROM tasks
		WHERE session_id = ? AND type = ? AND status = ?
		ORDER BY updated_at DESC LIMIT 1`)
	return scanTask(r.db.QueryRowContext(ctx, q, sessionID, string(taskType), string(domain.TaskActive)))
}

func (r *Repository) LatestOpenTask(ctx context.Context, sessionID string) (*domain.Task, error) {
	q := r.dialect.rebind(`SELECT ` + taskColumns + ` FROM tasks
		WHERE session_id = ? AND status = ?
		ORDER BY updated_at DESC LIMIT 1`)
	return scanTask(r.db.QueryRowContext(ctx, q, sessionID, string(domain.TaskActive)))
}

func (r *Repository) UpdateTask(ctx context.Context, task *domain.Task) error {
	now := r.now()
	q := r.dialect.rebind(`UPDATE tasks SET status = ?, awaiting_input = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, string(task.Status), task.AwaitingInput, now.UnixNano(), task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrTaskNotFound
	}
	task.UpdatedAt = now
	return nil
}

func (r *Repository) CreateGuest(ctx context.Context) (*domain.Guest, error) {
	g := domain.Guest{UserID: "guest-" + uuid.NewString(), Token: uuid.NewString(), CreatedAt: r.now()}
	q := r.dialect.rebind(`INSERT INTO guests (token, user_id, created_at) VALUES (?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, q, g.Token, g.UserID, g.CreatedAt.UnixNano()); err != nil {
		return nil, fmt.Errorf("failed to create guest: %w", err)
	}
	return &g, nil
}

func (r *Repository) ResolveGuest(ctx context.Context, token string) (*domain.Guest, error) {
	q := r.dialect.rebind(`SELECT user_id, created_at FROM guests WHERE token = ?`)
	var (
		userID  string
		created int64
	)
	err := r.db.QueryRowContext(ctx, q, token).Scan(&userID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve guest: %w", err)
	}
	return &domain.Guest{UserID: userID, Token: token, CreatedAt: time.Unix(0, created)}, nil
}
