package realtime

import (
	"context"
	"errors"
	"strings"

	"log/slog"

	"github.com/crewkit/crewkit/internal/apperr"
	"github.com/crewkit/crewkit/internal/repository"
	"github.com/crewkit/crewkit/internal/ws"
)

// Service authorizes room subscriptions for live connections. Rooms are
// resolved back to the owning team so a join check is the same membership
// check the read path applies.
type Service struct {
	teams    repository.TeamRepository
	projects repository.ProjectRepository
	tasks    repository.TaskRepository
	logger   *slog.Logger
}

// New constructs a Service.
func New(teams repository.TeamRepository, projects repository.ProjectRepository, tasks repository.TaskRepository, logger *slog.Logger) Service {
	return Service{teams: teams, projects: projects, tasks: tasks, logger: logger}
}

// AuthorizeJoin implements ws.JoinAuthorizer. User rooms admit only their
// owner; every other room requires membership in the team that owns the
// underlying resource.
func (s Service) AuthorizeJoin(ctx context.Context, userID, room string) error {
	kind, id, ok := strings.Cut(room, ":")
	if !ok || id == "" {
		return apperr.New(apperr.KindBadRequest, "malformed room name")
	}
	switch kind {
	case "user":
		if id != userID {
			return apperr.New(apperr.KindForbidden, "cannot join another user's room")
		}
		return nil
	case "team":
		return s.checkTeam(ctx, id, userID)
	case "project":
		project, err := s.projects.GetProjectByID(ctx, id)
		if err != nil {
			return mapNotFound(err, "project not found")
		}
		return s.checkTeam(ctx, project.TeamID, userID)
	case "task":
		task, err := s.tasks.GetTaskByID(ctx, id)
		if err != nil {
			return mapNotFound(err, "task not found")
		}
		project, err := s.projects.GetProjectByID(ctx, task.ProjectID)
		if err != nil {
			return mapNotFound(err, "project not found")
		}
		return s.checkTeam(ctx, project.TeamID, userID)
	default:
		return apperr.Newf(apperr.KindBadRequest, "unknown room kind %q", kind)
	}
}

func (s Service) checkTeam(ctx context.Context, teamID, userID string) error {
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		return mapNotFound(err, "team not found")
	}
	if !team.IsMember(userID) {
		return apperr.New(apperr.KindForbidden, "not a member of this team")
	}
	return nil
}

func mapNotFound(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.KindNotFound, msg)
	}
	return err
}

var _ ws.JoinAuthorizer = Service{}
