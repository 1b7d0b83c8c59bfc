package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/crewkit/crewkit/internal/apperr"
	"github.com/crewkit/crewkit/internal/domain"
	"github.com/crewkit/crewkit/internal/repository"
)

// Recorder appends entries to the audit ledger. The orchestration
// services treat a failed append as a failure of the whole mutation.
type Recorder interface {
	Record(ctx context.Context, record domain.ActivityRecord) error
}

// Service owns the activity ledger: appends, scoped retrieval and the
// retention sweep.
type Service struct {
	records  repository.ActivityRepository
	teams    repository.TeamRepository
	projects repository.ProjectRepository
	tasks    repository.TaskRepository
	logger   *slog.Logger

	retention    time.Duration
	sweepEvery   time.Duration
	defaultLimit int
}

// New constructs a Service.
func New(records repository.ActivityRepository, teams repository.TeamRepository, projects repository.ProjectRepository, tasks repository.TaskRepository, logger *slog.Logger, retention, sweepEvery time.Duration, defaultLimit int) Service {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Hour
	}
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return Service{
		records:      records,
		teams:        teams,
		projects:     projects,
		tasks:        tasks,
		logger:       logger,
		retention:    retention,
		sweepEvery:   sweepEvery,
		defaultLimit: defaultLimit,
	}
}

var _ Recorder = Service{}

// Record appends one immutable ledger entry.
func (s Service) Record(ctx context.Context, record domain.ActivityRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := s.records.InsertActivity(ctx, &record); err != nil {
		s.logger.Error("activity append failed", "action", record.Action, "user_id", record.UserID, "error", err)
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// horizon is the oldest reachable creation time. Entries behind it are
// invisible even if the sweep has not removed them yet.
func (s Service) horizon() time.Time {
	return time.Now().UTC().Add(-s.retention)
}

func (s Service) limitOrDefault(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	return limit
}

// TeamActivity returns a team's ledger, newest first. Caller must be a
// team member.
func (s Service) TeamActivity(ctx context.Context, teamID, userID string, limit int) ([]domain.ActivityRecord, error) {
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "team not found")
		}
		return nil, err
	}
	if !team.IsMember(userID) {
		return nil, apperr.New(apperr.KindForbidden, "you must be a team member to view activity")
	}
	return s.records.ListActivityByTeam(ctx, teamID, s.horizon(), s.limitOrDefault(limit))
}

// ProjectActivity returns a project's ledger, newest first. Caller must
// be a member of the project's team.
func (s Service) ProjectActivity(ctx context.Context, projectID, userID string, limit int) ([]domain.ActivityRecord, error) {
	if _, err := s.authorizeProject(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.records.ListActivityByProject(ctx, projectID, s.horizon(), s.limitOrDefault(limit))
}

// UserActivity returns the caller's own ledger entries. No cross-user
// query exists.
func (s Service) UserActivity(ctx context.Context, userID string, limit int) ([]domain.ActivityRecord, error) {
	return s.records.ListActivityByUser(ctx, userID, s.horizon(), s.limitOrDefault(limit))
}

// TaskHistory returns a task's full audit trail, newest first, with no
// limit. Caller must be a member of the task's team.
func (s Service) TaskHistory(ctx context.Context, taskID, userID string) ([]domain.ActivityRecord, error) {
	task, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "task not found")
		}
		return nil, err
	}
	if _, err := s.authorizeProject(ctx, task.ProjectID, userID); err != nil {
		return nil, err
	}
	return s.records.ListActivityByTask(ctx, taskID, s.horizon())
}

// DateRange returns entries between start and end, optionally narrowed
// by team or project, and always narrowed to the caller's own actions.
func (s Service) DateRange(ctx context.Context, userID string, start, end time.Time, teamID, projectID string) ([]domain.ActivityRecord, error) {
	if end.Before(start) {
		return nil, apperr.New(apperr.KindBadRequest, "end date must not precede start date")
	}
	if teamID != "" {
		team, err := s.teams.GetTeamByID(ctx, teamID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.New(apperr.KindNotFound, "team not found")
			}
			return nil, err
		}
		if !team.IsMember(userID) {
			return nil, apperr.New(apperr.KindForbidden, "you must be a team member to view activity")
		}
	}
	if projectID != "" {
		if _, err := s.authorizeProject(ctx, projectID, userID); err != nil {
			return nil, err
		}
	}
	if start.Before(s.horizon()) {
		start = s.horizon()
	}
	return s.records.ListActivityByDateRange(ctx, repository.ActivityRangeQuery{
		Start:     start,
		End:       end,
		UserID:    userID,
		TeamID:    teamID,
		ProjectID: projectID,
	})
}

// Run sweeps expired entries until the context is cancelled.
func (s Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s Service) sweep(ctx context.Context) {
	removed, err := s.records.DeleteActivityBefore(ctx, s.horizon())
	if err != nil {
		s.logger.Error("activity retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("activity retention sweep", "removed", removed)
	}
}

func (s Service) authorizeProject(ctx context.Context, projectID, userID string) (*domain.Project, error) {
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "project not found")
		}
		return nil, err
	}
	team, err := s.teams.GetTeamByID(ctx, project.TeamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "team not found")
		}
		return nil, err
	}
	if !team.IsMember(userID) {
		return nil, apperr.New(apperr.KindForbidden, "you do not have access to this project")
	}
	return project, nil
}
