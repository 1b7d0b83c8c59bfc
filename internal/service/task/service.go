package task

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

// Service handles task workflows. All status changes go through the
// transition table in the domain package; no other code path mutates a
// task's status.
type Service struct {
	tasks      repository.TaskRepository
	projects   repository.ProjectRepository
	teams      repository.TeamRepository
	users      repository.UserRepository
	activities repository.ActivityRepository
	ledger     activity.Recorder
	emitter    events.Emitter
	logger     *slog.Logger
}

// New constructs a Service.
func New(tasks repository.TaskRepository, projects repository.ProjectRepository, teams repository.TeamRepository, users repository.UserRepository, activities repository.ActivityRepository, ledger activity.Recorder, emitter events.Emitter, logger *slog.Logger) Service {
	return Service{
		tasks:      tasks,
		projects:   projects,
		teams:      teams,
		users:      users,
		activities: activities,
		ledger:     ledger,
		emitter:    emitter,
		logger:     logger,
	}
}

// CreateInput carries fields for a new task.
type CreateInput struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	ProjectID   string              `json:"project_id"`
	AssignedTo  string              `json:"assigned_to"`
	Status      domain.TaskStatus   `json:"status"`
	Priority    domain.TaskPriority `json:"priority"`
	DueDate     *time.Time          `json:"due_date"`
	Tags        []string            `json:"tags"`
}

// UpdateInput carries optional task changes. A status change routes
// through the transition check like the dedicated status operation.
type UpdateInput struct {
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	Status      *domain.TaskStatus   `json:"status,omitempty"`
	Priority    *domain.TaskPriority `json:"priority,omitempty"`
	DueDate     *time.Time           `json:"due_date,omitempty"`
	Tags        *[]string            `json:"tags,omitempty"`
}

// Create registers a task in a project the actor can access.
func (s Service) Create(ctx context.Context, actorID string, input CreateInput) (*domain.Task, error) {
	title := strings.TrimSpace(input.Title)
	if len(title) < 3 || len(title) > 200 {
		return nil, apperr.New(apperr.KindBadRequest, "task title must be between 3 and 200 characters")
	}
	if len(input.Description) > 2000 {
		return nil, apperr.New(apperr.KindBadRequest, "description cannot exceed 2000 characters")
	}
	if len(input.Tags) > domain.MaxTaskTags {
		return nil, apperr.Newf(apperr.KindBadRequest, "cannot have more than %d tags", domain.MaxTaskTags)
	}
	project, team, err := s.authorizeProject(ctx, input.ProjectID, actorID, "you must be a team member to create tasks")
	if err != nil {
		return nil, err
	}
	var assigneeName string
	if input.AssignedTo != "" {
		assignee, err := s.requireTeamMember(ctx, team, input.AssignedTo)
		if err != nil {
			return nil, err
		}
		assigneeName = assignee.Name
	}
	status := input.Status
	if status == "" {
		status = domain.TaskToDo
	}
	if !status.Valid() {
		return nil, apperr.Newf(apperr.KindBadRequest, "unknown task status %q", status)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return nil, apperr.Newf(apperr.KindBadRequest, "unknown task priority %q", priority)
	}
	tags := input.Tags
	if tags == nil {
		tags = []string{}
	}
	now := time.Now().UTC()
	task := &domain.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: input.Description,
		ProjectID:   project.ID,
		AssignedTo:  input.AssignedTo,
		CreatedBy:   actorID,
		Status:      status,
		Priority:    priority,
		DueDate:     input.DueDate,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionTaskCreated,
		UserID:      actorID,
		TeamID:      team.ID,
		ProjectID:   project.ID,
		TaskID:      task.ID,
		Description: `Task "` + task.Title + `" created`,
	}); err != nil {
		return nil, err
	}
	s.emitter.TaskCreated(events.TaskPayload{
		TaskID:       task.ID,
		TaskTitle:    task.Title,
		ProjectID:    project.ID,
		TeamID:       team.ID,
		ActorID:      actorID,
		ActorName:    s.userName(ctx, actorID),
		AssigneeID:   task.AssignedTo,
		AssigneeName: assigneeName,
		Status:       string(task.Status),
		Priority:     string(task.Priority),
		Timestamp:    now,
	})
	s.logger.Info("task created", "task_id", task.ID, "project_id", project.ID, "created_by", actorID)
	return task, nil
}

// ListByProject returns a project's tasks for a member, with optional
// status/priority/assignee filters.
func (s Service) ListByProject(ctx context.Context, projectID, userID string, filter repository.TaskFilter) ([]domain.Task, error) {
	if _, _, err := s.authorizeProject(ctx, projectID, userID, "you do not have access to this project"); err != nil {
		return nil, err
	}
	return s.tasks.ListTasksByProject(ctx, projectID, filter)
}

// ListForAssignee returns the user's own assigned tasks, due soonest first.
func (s Service) ListForAssignee(ctx context.Context, userID string) ([]domain.Task, error) {
	return s.tasks.ListTasksByAssignee(ctx, userID)
}

// Get returns a task the caller can access.
func (s Service) Get(ctx context.Context, taskID, userID string) (*domain.Task, error) {
	task, _, _, err := s.authorizeTask(ctx, taskID, userID)
	return task, err
}

// Update changes task details. A status change is validated against the
// transition table and produces its own ledger entry alongside the
// generic update entry.
func (s Service) Update(ctx context.Context, taskID, actorID string, input UpdateInput) (*domain.Task, error) {
	task, project, team, err := s.authorizeTask(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if len(title) < 3 || len(title) > 200 {
			return nil, apperr.New(apperr.KindBadRequest, "task title must be between 3 and 200 characters")
		}
		task.Title = title
	}
	if input.Description != nil {
		if len(*input.Description) > 2000 {
			return nil, apperr.New(apperr.KindBadRequest, "description cannot exceed 2000 characters")
		}
		task.Description = *input.Description
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, apperr.Newf(apperr.KindBadRequest, "unknown task priority %q", *input.Priority)
		}
		task.Priority = *input.Priority
	}
	if input.DueDate != nil {
		task.DueDate = input.DueDate
	}
	if input.Tags != nil {
		if len(*input.Tags) > domain.MaxTaskTags {
			return nil, apperr.Newf(apperr.KindBadRequest, "cannot have more than %d tags", domain.MaxTaskTags)
		}
		task.Tags = *input.Tags
	}
	var previousStatus domain.TaskStatus
	statusChanged := false
	if input.Status != nil && *input.Status != task.Status {
		if !task.Status.CanTransitionTo(*input.Status) {
			return nil, apperr.Newf(apperr.KindInvalidTransition, "cannot transition from %s to %s", task.Status, *input.Status)
		}
		previousStatus = task.Status
		task.Status = *input.Status
		statusChanged = true
	}
	task.UpdatedAt = time.Now().UTC()
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	if statusChanged {
		if err := s.ledger.Record(ctx, domain.ActivityRecord{
			Action:      domain.ActionTaskStatusChanged,
			UserID:      actorID,
			TeamID:      team.ID,
			ProjectID:   project.ID,
			TaskID:      task.ID,
			Description: `Task "` + task.Title + `" status changed to ` + string(task.Status),
			Metadata:    map[string]any{"old_status": string(previousStatus), "new_status": string(task.Status)},
		}); err != nil {
			return nil, err
		}
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionTaskUpdated,
		UserID:      actorID,
		TeamID:      team.ID,
		ProjectID:   project.ID,
		TaskID:      task.ID,
		Description: `Task "` + task.Title + `" updated`,
	}); err != nil {
		return nil, err
	}
	payload := events.TaskPayload{
		TaskID:     task.ID,
		TaskTitle:  task.Title,
		ProjectID:  project.ID,
		TeamID:     team.ID,
		ActorID:    actorID,
		ActorName:  s.userName(ctx, actorID),
		AssigneeID: task.AssignedTo,
		Status:     string(task.Status),
		Priority:   string(task.Priority),
		Timestamp:  task.UpdatedAt,
	}
	s.emitter.TaskUpdated(payload)
	if statusChanged {
		payload.PreviousStatus = string(previousStatus)
		s.emitter.TaskStatusChanged(payload)
	}
	s.logger.Info("task updated", "task_id", task.ID, "actor_id", actorID, "status_changed", statusChanged)
	return task, nil
}

// UpdateStatus applies a single status transition.
func (s Service) UpdateStatus(ctx context.Context, taskID, actorID string, newStatus domain.TaskStatus) (*domain.Task, error) {
	task, project, team, err := s.authorizeTask(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}
	if !newStatus.Valid() {
		return nil, apperr.Newf(apperr.KindBadRequest, "unknown task status %q", newStatus)
	}
	if !task.Status.CanTransitionTo(newStatus) {
		return nil, apperr.Newf(apperr.KindInvalidTransition, "cannot transition from %s to %s", task.Status, newStatus)
	}
	previous := task.Status
	task.Status = newStatus
	task.UpdatedAt = time.Now().UTC()
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionTaskStatusChanged,
		UserID:      actorID,
		TeamID:      team.ID,
		ProjectID:   project.ID,
		TaskID:      task.ID,
		Description: `Task "` + task.Title + `" status changed from ` + string(previous) + ` to ` + string(newStatus),
		Metadata:    map[string]any{"old_status": string(previous), "new_status": string(newStatus)},
	}); err != nil {
		return nil, err
	}
	s.emitter.TaskStatusChanged(events.TaskPayload{
		TaskID:         task.ID,
		TaskTitle:      task.Title,
		ProjectID:      project.ID,
		TeamID:         team.ID,
		ActorID:        actorID,
		ActorName:      s.userName(ctx, actorID),
		AssigneeID:     task.AssignedTo,
		Status:         string(newStatus),
		PreviousStatus: string(previous),
		Timestamp:      task.UpdatedAt,
	})
	s.logger.Info("task status changed", "task_id", task.ID, "from", previous, "to", newStatus)
	return task, nil
}

// Assign sets the task's assignee to a member of the task's team.
func (s Service) Assign(ctx context.Context, taskID, actorID, assigneeID string) (*domain.Task, error) {
	task, project, team, err := s.authorizeTask(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}
	assignee, err := s.requireTeamMember(ctx, team, assigneeID)
	if err != nil {
		return nil, err
	}
	previousAssignee := task.AssignedTo
	task.AssignedTo = assigneeID
	task.UpdatedAt = time.Now().UTC()
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionTaskAssigned,
		UserID:      actorID,
		TeamID:      team.ID,
		ProjectID:   project.ID,
		TaskID:      task.ID,
		Description: `Task "` + task.Title + `" assigned to ` + assignee.Name,
		Metadata:    map[string]any{"assignee_id": assigneeID, "previous_assignee": previousAssignee},
	}); err != nil {
		return nil, err
	}
	s.emitter.TaskAssigned(events.TaskPayload{
		TaskID:         task.ID,
		TaskTitle:      task.Title,
		ProjectID:      project.ID,
		TeamID:         team.ID,
		ActorID:        actorID,
		ActorName:      s.userName(ctx, actorID),
		AssigneeID:     assigneeID,
		AssigneeName:   assignee.Name,
		PrevAssigneeID: previousAssignee,
		Timestamp:      task.UpdatedAt,
	})
	s.logger.Info("task assigned", "task_id", task.ID, "assignee_id", assigneeID)
	return task, nil
}

// Unassign clears the task's assignee.
func (s Service) Unassign(ctx context.Context, taskID, actorID string) (*domain.Task, error) {
	task, project, team, err := s.authorizeTask(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}
	if task.AssignedTo == "" {
		return nil, apperr.New(apperr.KindBadRequest, "task is not assigned to anyone")
	}
	previousAssignee := task.AssignedTo
	task.AssignedTo = ""
	task.UpdatedAt = time.Now().UTC()
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionTaskUnassigned,
		UserID:      actorID,
		TeamID:      team.ID,
		ProjectID:   project.ID,
		TaskID:      task.ID,
		Description: `Task "` + task.Title + `" unassigned`,
		Metadata:    map[string]any{"previous_assignee": previousAssignee},
	}); err != nil {
		return nil, err
	}
	s.emitter.TaskUnassigned(events.TaskPayload{
		TaskID:         task.ID,
		TaskTitle:      task.Title,
		ProjectID:      project.ID,
		TeamID:         team.ID,
		ActorID:        actorID,
		ActorName:      s.userName(ctx, actorID),
		PrevAssigneeID: previousAssignee,
		Timestamp:      task.UpdatedAt,
	})
	s.logger.Info("task unassigned", "task_id", task.ID, "previous_assignee", previousAssignee)
	return task, nil
}

// Delete removes a task and its activity records. Team admins and the
// task creator may delete.
func (s Service) Delete(ctx context.Context, taskID, actorID string) error {
	task, project, team, err := s.authorizeTask(ctx, taskID, actorID)
	if err != nil {
		return err
	}
	if !team.IsAdmin(actorID) && task.CreatedBy != actorID {
		return apperr.New(apperr.KindForbidden, "only team admins or the task creator can delete tasks")
	}
	if err := s.activities.DeleteActivityByTask(ctx, taskID); err != nil {
		return err
	}
	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionTaskDeleted,
		UserID:      actorID,
		TeamID:      team.ID,
		ProjectID:   project.ID,
		Description: `Task "` + task.Title + `" deleted`,
	}); err != nil {
		return err
	}
	s.emitter.TaskDeleted(events.TaskPayload{
		TaskID:    task.ID,
		TaskTitle: task.Title,
		ProjectID: project.ID,
		TeamID:    team.ID,
		ActorID:   actorID,
		ActorName: s.userName(ctx, actorID),
		Timestamp: time.Now().UTC(),
	})
	s.logger.Info("task deleted", "task_id", task.ID, "actor_id", actorID)
	return nil
}

// authorizeTask loads the task with its project and team and verifies
// the caller's membership.
func (s Service) authorizeTask(ctx context.Context, taskID, userID string) (*domain.Task, *domain.Project, *domain.Team, error) {
	task, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil, apperr.New(apperr.KindNotFound, "task not found")
		}
		return nil, nil, nil, err
	}
	project, team, err := s.authorizeProject(ctx, task.ProjectID, userID, "you do not have access to this task")
	if err != nil {
		return nil, nil, nil, err
	}
	return task, project, team, nil
}

func (s Service) authorizeProject(ctx context.Context, projectID, userID, forbiddenMsg string) (*domain.Project, *domain.Team, error) {
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.New(apperr.KindNotFound, "project not found")
		}
		return nil, nil, err
	}
	team, err := s.teams.GetTeamByID(ctx, project.TeamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.New(apperr.KindNotFound, "team not found")
		}
		return nil, nil, err
	}
	if !team.IsMember(userID) {
		return nil, nil, apperr.New(apperr.KindForbidden, forbiddenMsg)
	}
	return project, team, nil
}

// requireTeamMember verifies the user exists and belongs to the team.
func (s Service) requireTeamMember(ctx context.Context, team *domain.Team, userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "assignee not found")
		}
		return nil, err
	}
	if !team.IsMember(userID) {
		return nil, apperr.New(apperr.KindBadRequest, "can only assign tasks to team members")
	}
	return user, nil
}

func (s Service) userName(ctx context.Context, userID string) string {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Name
}
