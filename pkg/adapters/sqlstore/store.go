package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/errand/pkg/domain"
)

// Store implements ports.CheckpointStore with one row per task.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewStore wraps an opened and migrated database.
func NewStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d, now: time.Now}
}

func (s *Store) Save(ctx context.Context, cp domain.Checkpoint) error {
	info, err := json.Marshal(cp.GatheredInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal gathered info: %w", err)
	}
	plan, err := json.Marshal(cp.ExecutionPlan)
	if err != nil {
		return fmt.Errorf("failed to marshal execution plan: %w", err)
	}

	q := s.dialect.rebind(`
		INSERT INTO checkpoints (task_id, phase, gathered_info, execution_plan, progress, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id) DO UPDATE SET
			phase = excluded.phase,
			gathered_info = excluded.gathered_info,
			execution_plan = excluded.execution_plan,
			progress = excluded.progress,
			updated_at = excluded.updated_at`)
	_, err = s.db.ExecContext(ctx, q, cp.TaskID, string(cp.Phase), string(info), string(plan), cp.Progress, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, taskID string) (domain.Checkpoint, error) {
	q := s.dialect.rebind(`
		SELECT phase, gathered_info, execution_plan, progress, updated_at
		FROM checkpoints WHERE task_id = ?`)

	var (
		phase, info, plan string
		progress          float64
		updated           int64
	)
	err := s.db.QueryRowContext(ctx, q, taskID).Scan(&phase, &info, &plan, &progress, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Checkpoint{}, domain.ErrCheckpointNotFound
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	cp := domain.Checkpoint{
		TaskID:    taskID,
		Phase:     domain.Phase(phase),
		Progress:  progress,
		UpdatedAt: time.Unix(0, updated),
	}
	if err := json.Unmarshal([]byte(info), &cp.GatheredInfo); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to unmarshal gathered info: %w", err)
	}
	if err := json.Unmarshal([]byte(plan), &cp.ExecutionPlan); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("failed to unmarshal execution plan: %w", err)
	}
	return cp, nil
}

func (s *Store) Delete(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM checkpoints WHERE task_id = ?`), taskID)
	return err
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id FROM checkpoints ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
