package repository

import (
	"context"
	"time"

	"github.com/crewkit/crewkit/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
}

// TeamRepository manages teams and their member documents.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team *domain.Team) error
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error)
	UpdateTeamInfo(ctx context.Context, team *domain.Team) error
	// UpdateTeamMembers replaces the member list if and only if the stored
	// version still equals expectedVersion; returns ErrConflict otherwise.
	UpdateTeamMembers(ctx context.Context, teamID string, members []domain.TeamMember, expectedVersion int64) error
	DeleteTeam(ctx context.Context, teamID string) error
}

// TaskFilter narrows project task listings.
type TaskFilter struct {
	Status     domain.TaskStatus
	Priority   domain.TaskPriority
	AssignedTo string
}

// ProjectRepository persists projects.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
	ListProjectsByTeam(ctx context.Context, teamID string) ([]domain.Project, error)
	ListProjectsByTeams(ctx context.Context, teamIDs []string) ([]domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, projectID string) error
}

// TaskRepository persists tasks.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTaskByID(ctx context.Context, taskID string) (*domain.Task, error)
	ListTasksByProject(ctx context.Context, projectID string, filter TaskFilter) ([]domain.Task, error)
	ListTasksByAssignee(ctx context.Context, userID string) ([]domain.Task, error)
	UpdateTask(ctx context.Context, task *domain.Task) error
	DeleteTask(ctx context.Context, taskID string) error
	DeleteTasksByProject(ctx context.Context, projectID string) error
	CountTasksByStatus(ctx context.Context, projectID string) (map[domain.TaskStatus]int, error)
}

// ActivityRangeQuery selects records inside [Start, End], optionally
// narrowed by team/project, always narrowed to the acting user.
type ActivityRangeQuery struct {
	Start     time.Time
	End       time.Time
	UserID    string
	TeamID    string
	ProjectID string
}

// ActivityRepository is the append-only audit ledger. Entries are never
// updated; deletion happens only through the cascades and the retention
// sweep. Every listing takes a notBefore cutoff so records past the
// retention horizon stay unreachable even before the sweep removes them.
type ActivityRepository interface {
	InsertActivity(ctx context.Context, record *domain.ActivityRecord) error
	ListActivityByTeam(ctx context.Context, teamID string, notBefore time.Time, limit int) ([]domain.ActivityRecord, error)
	ListActivityByProject(ctx context.Context, projectID string, notBefore time.Time, limit int) ([]domain.ActivityRecord, error)
	ListActivityByUser(ctx context.Context, userID string, notBefore time.Time, limit int) ([]domain.ActivityRecord, error)
	ListActivityByTask(ctx context.Context, taskID string, notBefore time.Time) ([]domain.ActivityRecord, error)
	ListActivityByDateRange(ctx context.Context, query ActivityRangeQuery) ([]domain.ActivityRecord, error)
	DeleteActivityByProject(ctx context.Context, projectID string) error
	DeleteActivityByTask(ctx context.Context, taskID string) error
	DeleteActivityBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
