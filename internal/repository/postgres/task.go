package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/crewkit/crewkit/internal/domain"
	"github.com/crewkit/crewkit/internal/repository"
)

const taskColumns = `id, title, description, project_id, assigned_to, created_by, status, priority, due_date, tags, created_at, updated_at`

// CreateTask inserts a task.
func (r *Repository) CreateTask(ctx context.Context, task *domain.Task) error {
	const query = `INSERT INTO tasks (id, title, description, project_id, assigned_to, created_by, status, priority, due_date, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.pool.Exec(ctx, query, task.ID, task.Title, task.Description, task.ProjectID, task.AssignedTo,
		task.CreatedBy, task.Status, task.Priority, task.DueDate, task.Tags, task.CreatedAt, task.UpdatedAt)
	return err
}

// GetTaskByID retrieves a task by identifier.
func (r *Repository) GetTaskByID(ctx context.Context, taskID string) (*domain.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return r.scanTask(r.pool.QueryRow(ctx, query, taskID))
}

// ListTasksByProject returns a project's tasks, newest first, optionally
// filtered by status, priority and assignee.
func (r *Repository) ListTasksByProject(ctx context.Context, projectID string, filter repository.TaskFilter) ([]domain.Task, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE project_id = $1`)
	args := []any{projectID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		sb.WriteString(` AND status = $` + strconv.Itoa(len(args)))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		sb.WriteString(` AND priority = $` + strconv.Itoa(len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		sb.WriteString(` AND assigned_to = $` + strconv.Itoa(len(args)))
	}
	sb.WriteString(` ORDER BY created_at DESC`)

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectTasks(rows)
}

// ListTasksByAssignee returns tasks assigned to a user, due soonest first.
func (r *Repository) ListTasksByAssignee(ctx context.Context, userID string) ([]domain.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE assigned_to = $1 ORDER BY due_date ASC NULLS LAST, created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectTasks(rows)
}

// UpdateTask persists task changes.
func (r *Repository) UpdateTask(ctx context.Context, task *domain.Task) error {
	const query = `UPDATE tasks SET title = $2, description = $3, assigned_to = NULLIF($4, ''), status = $5, priority = $6, due_date = $7, tags = $8, updated_at = $9
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, task.ID, task.Title, task.Description, task.AssignedTo,
		task.Status, task.Priority, task.DueDate, task.Tags, task.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteTask removes a task record.
func (r *Repository) DeleteTask(ctx context.Context, taskID string) error {
	const query = `DELETE FROM tasks WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteTasksByProject removes every task belonging to a project.
func (r *Repository) DeleteTasksByProject(ctx context.Context, projectID string) error {
	const query = `DELETE FROM tasks WHERE project_id = $1`
	_, err := r.pool.Exec(ctx, query, projectID)
	return err
}

// CountTasksByStatus aggregates a project's tasks per status.
func (r *Repository) CountTasksByStatus(ctx context.Context, projectID string) (map[domain.TaskStatus]int, error) {
	const query = `SELECT status, COUNT(1) FROM tasks WHERE project_id = $1 GROUP BY status`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var (
			status domain.TaskStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *Repository) scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t        domain.Task
		assignee *string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.ProjectID, &assignee, &t.CreatedBy,
		&t.Status, &t.Priority, &t.DueDate, &t.Tags, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if assignee != nil {
		t.AssignedTo = *assignee
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

func (r *Repository) collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}
