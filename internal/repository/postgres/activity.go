package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/crewkit/crewkit/internal/domain"
	"github.com/crewkit/crewkit/internal/repository"
)

const activityColumns = `id, action, user_id, team_id, project_id, task_id, description, metadata, created_at`

// InsertActivity appends one immutable ledger entry.
func (r *Repository) InsertActivity(ctx context.Context, record *domain.ActivityRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	const query = `INSERT INTO activity_log (id, action, user_id, team_id, project_id, task_id, description, metadata, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)`
	_, err = r.pool.Exec(ctx, query, record.ID, record.Action, record.UserID, record.TeamID,
		record.ProjectID, record.TaskID, record.Description, metadata, record.CreatedAt)
	return err
}

// ListActivityByTeam returns a team's ledger entries, newest first.
func (r *Repository) ListActivityByTeam(ctx context.Context, teamID string, notBefore time.Time, limit int) ([]domain.ActivityRecord, error) {
	const query = `SELECT ` + activityColumns + ` FROM activity_log
		WHERE team_id = $1 AND created_at >= $2
		ORDER BY created_at DESC LIMIT $3`
	return r.queryActivity(ctx, query, teamID, notBefore, limit)
}

// ListActivityByProject returns a project's ledger entries, newest first.
func (r *Repository) ListActivityByProject(ctx context.Context, projectID string, notBefore time.Time, limit int) ([]domain.ActivityRecord, error) {
	const query = `SELECT ` + activityColumns + ` FROM activity_log
		WHERE project_id = $1 AND created_at >= $2
		ORDER BY created_at DESC LIMIT $3`
	return r.queryActivity(ctx, query, projectID, notBefore, limit)
}

// ListActivityByUser returns a user's own ledger entries, newest first.
func (r *Repository) ListActivityByUser(ctx context.Context, userID string, notBefore time.Time, limit int) ([]domain.ActivityRecord, error) {
	const query = `SELECT ` + activityColumns + ` FROM activity_log
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC LIMIT $3`
	return r.queryActivity(ctx, query, userID, notBefore, limit)
}

// ListActivityByTask returns a task's full history, newest first, unbounded.
func (r *Repository) ListActivityByTask(ctx context.Context, taskID string, notBefore time.Time) ([]domain.ActivityRecord, error) {
	const query = `SELECT ` + activityColumns + ` FROM activity_log
		WHERE task_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`
	return r.queryActivity(ctx, query, taskID, notBefore)
}

// ListActivityByDateRange returns entries inside the window. The query
// always narrows to the requesting user in addition to any scope filters.
func (r *Repository) ListActivityByDateRange(ctx context.Context, q repository.ActivityRangeQuery) ([]domain.ActivityRecord, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + activityColumns + ` FROM activity_log WHERE created_at >= $1 AND created_at <= $2 AND user_id = $3`)
	args := []any{q.Start, q.End, q.UserID}
	if q.TeamID != "" {
		args = append(args, q.TeamID)
		sb.WriteString(` AND team_id = $` + strconv.Itoa(len(args)))
	}
	if q.ProjectID != "" {
		args = append(args, q.ProjectID)
		sb.WriteString(` AND project_id = $` + strconv.Itoa(len(args)))
	}
	sb.WriteString(` ORDER BY created_at DESC`)
	return r.queryActivity(ctx, sb.String(), args...)
}

// DeleteActivityByProject removes ledger entries referencing a project.
func (r *Repository) DeleteActivityByProject(ctx context.Context, projectID string) error {
	const query = `DELETE FROM activity_log WHERE project_id = $1`
	_, err := r.pool.Exec(ctx, query, projectID)
	return err
}

// DeleteActivityByTask removes ledger entries referencing a task.
func (r *Repository) DeleteActivityByTask(ctx context.Context, taskID string) error {
	const query = `DELETE FROM activity_log WHERE task_id = $1`
	_, err := r.pool.Exec(ctx, query, taskID)
	return err
}

// DeleteActivityBefore removes entries past the retention horizon and
// reports how many were swept.
func (r *Repository) DeleteActivityBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM activity_log WHERE created_at < $1`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) queryActivity(ctx context.Context, query string, args ...any) ([]domain.ActivityRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ActivityRecord, 0)
	for rows.Next() {
		record, err := r.scanActivity(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func (r *Repository) scanActivity(row pgx.Row) (*domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	var teamID, projID, taskID *string
	var metadata []byte
	if err := row.Scan(&rec.ID, &rec.Action, &rec.UserID, &teamID, &projID, &taskID,
		&rec.Description, &metadata, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if teamID != nil {
		rec.TeamID = *teamID
	}
	if projID != nil {
		rec.ProjectID = *projID
	}
	if taskID != nil {
		rec.TaskID = *taskID
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &rec, nil
}
