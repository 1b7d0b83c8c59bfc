package team

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/crewkit/crewkit/internal/apperr"
	"github.com/crewkit/crewkit/internal/domain"
	"github.com/crewkit/crewkit/internal/events"
	"github.com/crewkit/crewkit/internal/repository"
	"github.com/crewkit/crewkit/internal/service/activity"
)

const (
	memberMutationRetries = 3
	memberRetryDelay      = 25 * time.Millisecond
)

// Service handles team and membership workflows.
type Service struct {
	teams   repository.TeamRepository
	users   repository.UserRepository
	ledger  activity.Recorder
	emitter events.Emitter
	logger  *slog.Logger
}

// New constructs a Service.
func New(teams repository.TeamRepository, users repository.UserRepository, ledger activity.Recorder, emitter events.Emitter, logger *slog.Logger) Service {
	return Service{teams: teams, users: users, ledger: ledger, emitter: emitter, logger: logger}
}

// UpdateInput carries optional team detail changes.
type UpdateInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Create registers a team with the creator as its sole admin member.
func (s Service) Create(ctx context.Context, actorID, name, description string) (*domain.Team, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 100 {
		return nil, apperr.New(apperr.KindBadRequest, "team name must be between 2 and 100 characters")
	}
	if len(description) > 500 {
		return nil, apperr.New(apperr.KindBadRequest, "description cannot exceed 500 characters")
	}
	now := time.Now().UTC()
	team := &domain.Team{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedBy:   actorID,
		Members: []domain.TeamMember{
			{UserID: actorID, Role: domain.RoleAdmin, JoinedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.teams.CreateTeam(ctx, team); err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionTeamCreated,
		UserID:      actorID,
		TeamID:      team.ID,
		Description: `Team "` + team.Name + `" created`,
	}); err != nil {
		return nil, err
	}
	s.emitter.TeamCreated(events.TeamPayload{
		TeamID:    team.ID,
		TeamName:  team.Name,
		ActorID:   actorID,
		ActorName: s.userName(ctx, actorID),
		Timestamp: now,
	})
	s.logger.Info("team created", "team_id", team.ID, "created_by", actorID)
	return team, nil
}

// ListForUser returns every team the user belongs to.
func (s Service) ListForUser(ctx context.Context, userID string) ([]domain.Team, error) {
	return s.teams.ListTeamsByUser(ctx, userID)
}

// Get returns a team the caller is a member of.
func (s Service) Get(ctx context.Context, teamID, userID string) (*domain.Team, error) {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.IsMember(userID) {
		return nil, apperr.New(apperr.KindForbidden, "you do not have access to this team")
	}
	return team, nil
}

// Update changes team details. Admins only.
func (s Service) Update(ctx context.Context, teamID, actorID string, input UpdateInput) (*domain.Team, error) {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.IsAdmin(actorID) {
		return nil, apperr.New(apperr.KindForbidden, "only team admins can update team details")
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len(name) < 2 || len(name) > 100 {
			return nil, apperr.New(apperr.KindBadRequest, "team name must be between 2 and 100 characters")
		}
		team.Name = name
	}
	if input.Description != nil {
		if len(*input.Description) > 500 {
			return nil, apperr.New(apperr.KindBadRequest, "description cannot exceed 500 characters")
		}
		team.Description = *input.Description
	}
	team.UpdatedAt = time.Now().UTC()
	if err := s.teams.UpdateTeamInfo(ctx, team); err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionTeamUpdated,
		UserID:      actorID,
		TeamID:      team.ID,
		Description: `Team "` + team.Name + `" updated`,
	}); err != nil {
		return nil, err
	}
	s.emitter.TeamUpdated(events.TeamPayload{
		TeamID:    team.ID,
		TeamName:  team.Name,
		ActorID:   actorID,
		ActorName: s.userName(ctx, actorID),
		Timestamp: team.UpdatedAt,
	})
	s.logger.Info("team updated", "team_id", team.ID, "actor_id", actorID)
	return team, nil
}

// Delete removes a team. Only the creator may delete, regardless of the
// current admin list.
func (s Service) Delete(ctx context.Context, teamID, actorID string) error {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.CreatedBy != actorID {
		return apperr.New(apperr.KindForbidden, "only the team creator can delete the team")
	}
	actorName := s.userName(ctx, actorID)
	if err := s.teams.DeleteTeam(ctx, teamID); err != nil {
		return err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionTeamDeleted,
		UserID:      actorID,
		TeamID:      team.ID,
		Description: `Team "` + team.Name + `" deleted`,
	}); err != nil {
		return err
	}
	s.emitter.TeamDeleted(events.TeamPayload{
		TeamID:    team.ID,
		TeamName:  team.Name,
		ActorID:   actorID,
		ActorName: actorName,
		Timestamp: time.Now().UTC(),
	})
	s.logger.Info("team deleted", "team_id", team.ID, "actor_id", actorID)
	return nil
}

// AddMember adds a user to the team. Admins only; duplicates conflict.
func (s Service) AddMember(ctx context.Context, teamID, actorID, newMemberID string, role domain.Role) (*domain.Team, error) {
	if role == "" {
		role = domain.RoleMember
	}
	if !role.Valid() {
		return nil, apperr.Newf(apperr.KindBadRequest, "unknown role %q", role)
	}
	newMember, err := s.users.GetUserByID(ctx, newMemberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, err
	}
	team, err := s.mutateMembers(ctx, teamID, func(team *domain.Team) error {
		if !team.IsAdmin(actorID) {
			return apperr.New(apperr.KindForbidden, "only team admins can add members")
		}
		if team.IsMember(newMemberID) {
			return apperr.New(apperr.KindConflict, "user is already a team member")
		}
		team.Members = append(team.Members, domain.TeamMember{
			UserID:   newMemberID,
			Role:     role,
			JoinedAt: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionMemberAdded,
		UserID:      actorID,
		TeamID:      team.ID,
		Description: newMember.Name + ` added to team "` + team.Name + `"`,
		Metadata:    map[string]any{"member_id": newMemberID, "role": string(role)},
	}); err != nil {
		return nil, err
	}
	s.emitter.MemberAdded(events.TeamPayload{
		TeamID:    team.ID,
		TeamName:  team.Name,
		ActorID:   actorID,
		MemberID:  newMemberID,
		Name:      newMember.Name,
		Role:      string(role),
		Timestamp: time.Now().UTC(),
	})
	s.logger.Info("member added", "team_id", team.ID, "member_id", newMemberID, "role", role)
	return team, nil
}

// RemoveMember removes a user from the team. Admins only; the creator
// is immutable and the last admin cannot be removed.
func (s Service) RemoveMember(ctx context.Context, teamID, actorID, memberID string) (*domain.Team, error) {
	team, err := s.mutateMembers(ctx, teamID, func(team *domain.Team) error {
		if !team.IsAdmin(actorID) {
			return apperr.New(apperr.KindForbidden, "only team admins can remove members")
		}
		if team.CreatedBy == memberID {
			return apperr.New(apperr.KindForbidden, "cannot remove the team creator")
		}
		role, ok := team.RoleOf(memberID)
		if !ok {
			return apperr.New(apperr.KindBadRequest, "user is not a team member")
		}
		if role == domain.RoleAdmin && team.AdminCount() <= 1 {
			return apperr.New(apperr.KindConflict, "cannot remove the last admin")
		}
		kept := team.Members[:0]
		for _, m := range team.Members {
			if m.UserID != memberID {
				kept = append(kept, m)
			}
		}
		team.Members = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	removedName := s.userName(ctx, memberID)
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionMemberRemoved,
		UserID:      actorID,
		TeamID:      team.ID,
		Description: removedName + ` removed from team "` + team.Name + `"`,
		Metadata:    map[string]any{"member_id": memberID},
	}); err != nil {
		return nil, err
	}
	s.emitter.MemberRemoved(events.TeamPayload{
		TeamID:    team.ID,
		TeamName:  team.Name,
		ActorID:   actorID,
		MemberID:  memberID,
		Name:      removedName,
		Timestamp: time.Now().UTC(),
	})
	s.logger.Info("member removed", "team_id", team.ID, "member_id", memberID)
	return team, nil
}

// UpdateMemberRole changes a member's role. Admins only; the creator is
// immutable and the last admin cannot be demoted.
func (s Service) UpdateMemberRole(ctx context.Context, teamID, actorID, memberID string, newRole domain.Role) (*domain.Team, error) {
	if !newRole.Valid() {
		return nil, apperr.Newf(apperr.KindBadRequest, "unknown role %q", newRole)
	}
	team, err := s.mutateMembers(ctx, teamID, func(team *domain.Team) error {
		if !team.IsAdmin(actorID) {
			return apperr.New(apperr.KindForbidden, "only team admins can update member roles")
		}
		if team.CreatedBy == memberID {
			return apperr.New(apperr.KindForbidden, "cannot change the team creator's role")
		}
		for i, m := range team.Members {
			if m.UserID != memberID {
				continue
			}
			if m.Role == domain.RoleAdmin && newRole == domain.RoleMember && team.AdminCount() <= 1 {
				return apperr.New(apperr.KindConflict, "cannot demote the last admin")
			}
			team.Members[i].Role = newRole
			return nil
		}
		return apperr.New(apperr.KindBadRequest, "user is not a team member")
	})
	if err != nil {
		return nil, err
	}
	memberName := s.userName(ctx, memberID)
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionMemberRoleChanged,
		UserID:      actorID,
		TeamID:      team.ID,
		Description: memberName + " role changed to " + string(newRole) + ` in team "` + team.Name + `"`,
		Metadata:    map[string]any{"member_id": memberID, "new_role": string(newRole)},
	}); err != nil {
		return nil, err
	}
	s.emitter.MemberRoleChanged(events.TeamPayload{
		TeamID:    team.ID,
		TeamName:  team.Name,
		ActorID:   actorID,
		MemberID:  memberID,
		Name:      memberName,
		Role:      string(newRole),
		Timestamp: time.Now().UTC(),
	})
	s.logger.Info("member role changed", "team_id", team.ID, "member_id", memberID, "role", newRole)
	return team, nil
}

// mutateMembers runs a member-list mutation against a freshly read team
// document and commits it with a version check, retrying when another
// writer raced the update. The mutation closure re-validates all
// invariants on every attempt because the member list may have changed.
func (s Service) mutateMembers(ctx context.Context, teamID string, mutate func(*domain.Team) error) (*domain.Team, error) {
	var updated *domain.Team
	backoff := retry.WithMaxRetries(memberMutationRetries, retry.NewConstant(memberRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		team, err := s.getTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if err := mutate(team); err != nil {
			return err
		}
		if err := s.teams.UpdateTeamMembers(ctx, team.ID, team.Members, team.Version); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				s.logger.Warn("member mutation lost a write race, retrying", "team_id", teamID)
				return retry.RetryableError(err)
			}
			return err
		}
		team.Version++
		updated = team
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Wrap(apperr.KindConflict, "team membership changed concurrently", err)
		}
		return nil, err
	}
	return updated, nil
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

func (s Service) userName(ctx context.Context, userID string) string {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Name
}
