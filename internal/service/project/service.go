package project

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/crewkit/crewkit/internal/apperr"
	"github.com/crewkit/crewkit/internal/domain"
	"github.com/crewkit/crewkit/internal/events"
	"github.com/crewkit/crewkit/internal/repository"
	"github.com/crewkit/crewkit/internal/service/activity"
)

// Service handles project workflows.
type Service struct {
	projects   repository.ProjectRepository
	teams      repository.TeamRepository
	tasks      repository.TaskRepository
	activities repository.ActivityRepository
	ledger     activity.Recorder
	emitter    events.Emitter
	logger     *slog.Logger
}

// New constructs a Service.
func New(projects repository.ProjectRepository, teams repository.TeamRepository, tasks repository.TaskRepository, activities repository.ActivityRepository, ledger activity.Recorder, emitter events.Emitter, logger *slog.Logger) Service {
	return Service{
		projects:   projects,
		teams:      teams,
		tasks:      tasks,
		activities: activities,
		ledger:     ledger,
		emitter:    emitter,
		logger:     logger,
	}
}

// CreateInput carries fields for a new project.
type CreateInput struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	TeamID      string               `json:"team_id"`
	Status      domain.ProjectStatus `json:"status"`
	StartDate   *time.Time           `json:"start_date"`
	EndDate     *time.Time           `json:"end_date"`
}

// UpdateInput carries optional project changes.
type UpdateInput struct {
	Name        *string               `json:"name,omitempty"`
	Description *string               `json:"description,omitempty"`
	Status      *domain.ProjectStatus `json:"status,omitempty"`
	StartDate   *time.Time            `json:"start_date,omitempty"`
	EndDate     *time.Time            `json:"end_date,omitempty"`
}

// Stats aggregates a project's task counts.
type Stats struct {
	ProjectID      string               `json:"project_id"`
	ProjectName    string               `json:"project_name"`
	Status         domain.ProjectStatus `json:"status"`
	TotalTasks     int                  `json:"total_tasks"`
	ToDo           int                  `json:"todo"`
	InProgress     int                  `json:"in_progress"`
	Review         int                  `json:"review"`
	Done           int                  `json:"done"`
	CompletionRate int                  `json:"completion_rate"`
}

// Create registers a project under a team the actor belongs to.
func (s Service) Create(ctx context.Context, actorID string, input CreateInput) (*domain.Project, error) {
	name := strings.TrimSpace(input.Name)
	if len(name) < 2 || len(name) > 100 {
		return nil, apperr.New(apperr.KindBadRequest, "project name must be between 2 and 100 characters")
	}
	if len(input.Description) > 1000 {
		return nil, apperr.New(apperr.KindBadRequest, "description cannot exceed 1000 characters")
	}
	team, err := s.getTeam(ctx, input.TeamID)
	if err != nil {
		return nil, err
	}
	if !team.IsMember(actorID) {
		return nil, apperr.New(apperr.KindForbidden, "you must be a team member to create projects")
	}
	status := input.Status
	if status == "" {
		status = domain.ProjectPlanning
	}
	if !status.Valid() {
		return nil, apperr.Newf(apperr.KindBadRequest, "unknown project status %q", status)
	}
	now := time.Now().UTC()
	project := &domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: input.Description,
		TeamID:      team.ID,
		CreatedBy:   actorID,
		Status:      status,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !project.DatesValid() {
		return nil, apperr.New(apperr.KindBadRequest, "end date must not precede start date")
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionProjectCreated,
		UserID:      actorID,
		TeamID:      team.ID,
		ProjectID:   project.ID,
		Description: `Project "` + project.Name + `" created`,
	}); err != nil {
		return nil, err
	}
	s.emitter.ProjectCreated(events.ProjectPayload{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		TeamID:      team.ID,
		ActorID:     actorID,
		Status:      string(project.Status),
		Timestamp:   now,
	})
	s.logger.Info("project created", "project_id", project.ID, "team_id", team.ID, "created_by", actorID)
	return project, nil
}

// ListByTeam returns a team's projects for a member.
func (s Service) ListByTeam(ctx context.Context, teamID, userID string) ([]domain.Project, error) {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.IsMember(userID) {
		return nil, apperr.New(apperr.KindForbidden, "you must be a team member to view projects")
	}
	return s.projects.ListProjectsByTeam(ctx, teamID)
}

// ListForUser returns every project across the user's teams.
func (s Service) ListForUser(ctx context.Context, userID string) ([]domain.Project, error) {
	teams, err := s.teams.ListTeamsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	teamIDs := make([]string, 0, len(teams))
	for _, t := range teams {
		teamIDs = append(teamIDs, t.ID)
	}
	return s.projects.ListProjectsByTeams(ctx, teamIDs)
}

// Get returns a project the caller can access.
func (s Service) Get(ctx context.Context, projectID, userID string) (*domain.Project, error) {
	project, _, err := s.authorize(ctx, projectID, userID)
	return project, err
}

// Update changes project details for a team member.
func (s Service) Update(ctx context.Context, projectID, actorID string, input UpdateInput) (*domain.Project, error) {
	project, team, err := s.authorize(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len(name) < 2 || len(name) > 100 {
			return nil, apperr.New(apperr.KindBadRequest, "project name must be between 2 and 100 characters")
		}
		project.Name = name
	}
	if input.Description != nil {
		if len(*input.Description) > 1000 {
			return nil, apperr.New(apperr.KindBadRequest, "description cannot exceed 1000 characters")
		}
		project.Description = *input.Description
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, apperr.Newf(apperr.KindBadRequest, "unknown project status %q", *input.Status)
		}
		project.Status = *input.Status
	}
	if input.StartDate != nil {
		project.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		project.EndDate = input.EndDate
	}
	if !project.DatesValid() {
		return nil, apperr.New(apperr.KindBadRequest, "end date must not precede start date")
	}
	project.UpdatedAt = time.Now().UTC()
	if err := s.projects.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionProjectUpdated,
		UserID:      actorID,
		TeamID:      team.ID,
		ProjectID:   project.ID,
		Description: `Project "` + project.Name + `" updated`,
	}); err != nil {
		return nil, err
	}
	s.emitter.ProjectUpdated(events.ProjectPayload{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		TeamID:      team.ID,
		ActorID:     actorID,
		Status:      string(project.Status),
		Timestamp:   project.UpdatedAt,
	})
	s.logger.Info("project updated", "project_id", project.ID, "actor_id", actorID)
	return project, nil
}

// Delete removes a project and cascades into its tasks and activity
// records. The cascade is an explicit two-step delete so ordering is
// visible: children first, then the parent, then the audit entry that
// must survive the cascade.
func (s Service) Delete(ctx context.Context, projectID, actorID string) error {
	project, team, err := s.authorize(ctx, projectID, actorID)
	if err != nil {
		return err
	}
	if !team.IsAdmin(actorID) && project.CreatedBy != actorID {
		return apperr.New(apperr.KindForbidden, "only team admins or the project creator can delete projects")
	}
	if err := s.tasks.DeleteTasksByProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.activities.DeleteActivityByProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.projects.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionProjectDeleted,
		UserID:      actorID,
		TeamID:      team.ID,
		Description: `Project "` + project.Name + `" deleted`,
	}); err != nil {
		return err
	}
	s.emitter.ProjectDeleted(events.ProjectPayload{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		TeamID:      team.ID,
		ActorID:     actorID,
		Timestamp:   time.Now().UTC(),
	})
	s.logger.Info("project deleted", "project_id", project.ID, "actor_id", actorID)
	return nil
}

// GetStats aggregates a project's task counts for a member.
func (s Service) GetStats(ctx context.Context, projectID, userID string) (*Stats, error) {
	project, _, err := s.authorize(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	counts, err := s.tasks.CountTasksByStatus(ctx, projectID)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Status:      project.Status,
		ToDo:        counts[domain.TaskToDo],
		InProgress:  counts[domain.TaskInProgress],
		Review:      counts[domain.TaskReview],
		Done:        counts[domain.TaskDone],
	}
	for _, n := range counts {
		stats.TotalTasks += n
	}
	if stats.TotalTasks > 0 {
		stats.CompletionRate = stats.Done * 100 / stats.TotalTasks
	}
	return stats, nil
}

func (s Service) authorize(ctx context.Context, projectID, userID string) (*domain.Project, *domain.Team, error) {
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.New(apperr.KindNotFound, "project not found")
		}
		return nil, nil, err
	}
	team, err := s.getTeam(ctx, project.TeamID)
	if err != nil {
		return nil, nil, err
	}
	if !team.IsMember(userID) {
		return nil, nil, apperr.New(apperr.KindForbidden, "you do not have access to this project")
	}
	return project, team, nil
}

func (s Service) getTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "team not found")
		}
		return nil, err
	}
	return team, nil
}
