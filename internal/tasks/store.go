package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sensaygw/internal/models"
)

// Store persists tasks. Every statement is scoped by owner_id; a caller can
// never read or mutate another user's rows, matching the row-level policy of
// the hosted datastore this replaces.
type Store struct {
	db *sql.DB
}

// NewStore constructs a task store on the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListByOwner returns all tasks for the owner, oldest first. The ordering is
// load-bearing: chat commands address tasks by 1-based position in this list.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]models.Task, error) {
	if ownerID == "" {
		return nil, errors.New("owner id required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, text, completed, created_at FROM tasks WHERE owner_id = ? ORDER BY created_at ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Text, &t.Completed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Insert stores a new pending task and returns the record.
func (s *Store) Insert(ctx context.Context, ownerID, text string) (*models.Task, error) {
	if ownerID == "" {
		return nil, errors.New("owner id required")
	}
	if text == "" {
		return nil, errors.New("task text required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (owner_id, text, completed, created_at) VALUES (?, ?, ?, ?)`,
		ownerID, text, false, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	return &models.Task{ID: id, OwnerID: ownerID, Text: text, Completed: false, CreatedAt: now}, nil
}

// SetCompleted updates the completion flag of one task owned by ownerID.
// Returns sql.ErrNoRows when the task does not exist or belongs to someone else.
func (s *Store) SetCompleted(ctx context.Context, ownerID string, id int64, completed bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = ? WHERE id = ? AND owner_id = ?`,
		completed, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes one task owned by ownerID.
// Returns sql.ErrNoRows when the task does not exist or belongs to someone else.
func (s *Store) Delete(ctx context.Context, ownerID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
