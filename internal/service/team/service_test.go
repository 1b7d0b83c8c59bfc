package team

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/crewkit/crewkit/internal/apperr"
	"github.com/crewkit/crewkit/internal/domain"
	"github.com/crewkit/crewkit/internal/events"
	"github.com/crewkit/crewkit/internal/repository"
)

type fakeTeamRepository struct {
	teams map[string]*domain.Team
	// raceWrites makes UpdateTeamMembers fail that many times, bumping
	// the stored version as a concurrent writer would.
	raceWrites    int
	memberUpdates int
}

func newFakeTeamRepository(teams ...*domain.Team) *fakeTeamRepository {
	repo := &fakeTeamRepository{teams: make(map[string]*domain.Team)}
	for _, team := range teams {
		repo.teams[team.ID] = team
	}
	return repo
}

func copyTeam(t *domain.Team) *domain.Team {
	clone := *t
	clone.Members = append([]domain.TeamMember(nil), t.Members...)
	return &clone
}

func (f *fakeTeamRepository) CreateTeam(ctx context.Context, team *domain.Team) error {
	f.teams[team.ID] = copyTeam(team)
	return nil
}

func (f *fakeTeamRepository) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	team, ok := f.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyTeam(team), nil
}

func (f *fakeTeamRepository) ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	var out []domain.Team
	for _, team := range f.teams {
		if team.IsMember(userID) {
			out = append(out, *copyTeam(team))
		}
	}
	return out, nil
}

func (f *fakeTeamRepository) UpdateTeamInfo(ctx context.Context, team *domain.Team) error {
	stored, ok := f.teams[team.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Name = team.Name
	stored.Description = team.Description
	stored.UpdatedAt = team.UpdatedAt
	return nil
}

func (f *fakeTeamRepository) UpdateTeamMembers(ctx context.Context, teamID string, members []domain.TeamMember, expectedVersion int64) error {
	stored, ok := f.teams[teamID]
	if !ok {
		return repository.ErrNotFound
	}
	f.memberUpdates++
	if f.raceWrites > 0 {
		f.raceWrites--
		stored.Version++
		return repository.ErrConflict
	}
	if stored.Version != expectedVersion {
		return repository.ErrConflict
	}
	stored.Members = append([]domain.TeamMember(nil), members...)
	stored.Version++
	return nil
}

func (f *fakeTeamRepository) DeleteTeam(ctx context.Context, teamID string) error {
	if _, ok := f.teams[teamID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.teams, teamID)
	return nil
}

type fakeUserRepository struct {
	users map[string]*domain.User
}

func newFakeUserRepository(ids ...string) *fakeUserRepository {
	repo := &fakeUserRepository{users: make(map[string]*domain.User)}
	for _, id := range ids {
		repo.users[id] = &domain.User{ID: id, Name: "user " + id, Email: id + "@example.com"}
	}
	return repo
}

func (f *fakeUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepository) UpdateUser(ctx context.Context, user *domain.User) error {
	f.users[user.ID] = user
	return nil
}

type ledgerSpy struct {
	records []domain.ActivityRecord
}

func (l *ledgerSpy) Record(ctx context.Context, record domain.ActivityRecord) error {
	l.records = append(l.records, record)
	return nil
}

func (l *ledgerSpy) lastAction(t *testing.T) domain.ActivityAction {
	t.Helper()
	if len(l.records) == 0 {
		t.Fatal("expected at least one ledger record")
	}
	return l.records[len(l.records)-1].Action
}

type emitterSpy struct {
	events.Noop
	created     []events.TeamPayload
	memberAdded []events.TeamPayload
	deleted     []events.TeamPayload
}

func (e *emitterSpy) TeamCreated(p events.TeamPayload) { e.created = append(e.created, p) }
func (e *emitterSpy) MemberAdded(p events.TeamPayload) { e.memberAdded = append(e.memberAdded, p) }
func (e *emitterSpy) TeamDeleted(p events.TeamPayload) { e.deleted = append(e.deleted, p) }

func newService(teams *fakeTeamRepository, users *fakeUserRepository) (Service, *ledgerSpy, *emitterSpy) {
	ledger := &ledgerSpy{}
	emitter := &emitterSpy{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(teams, users, ledger, emitter, log), ledger, emitter
}

func adminTeam(id, creator string, extra ...domain.TeamMember) *domain.Team {
	members := append([]domain.TeamMember{{UserID: creator, Role: domain.RoleAdmin, JoinedAt: time.Now()}}, extra...)
	return &domain.Team{ID: id, Name: "Core", CreatedBy: creator, Members: members, Version: 1}
}

func TestCreateSeedsCreatorAsSoleAdmin(t *testing.T) {
	repo := newFakeTeamRepository()
	svc, ledger, emitter := newService(repo, newFakeUserRepository("alice"))

	team, err := svc.Create(context.Background(), "alice", "Platform", "infra work")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(team.Members) != 1 {
		t.Fatalf("expected exactly one member, got %d", len(team.Members))
	}
	member := team.Members[0]
	if member.UserID != "alice" || member.Role != domain.RoleAdmin {
		t.Fatalf("creator should be the admin member, got %+v", member)
	}
	if got := ledger.lastAction(t); got != domain.ActionTeamCreated {
		t.Fatalf("expected team_created ledger entry, got %s", got)
	}
	if len(emitter.created) != 1 {
		t.Fatalf("expected one TeamCreated event, got %d", len(emitter.created))
	}
}

func TestCreateRejectsShortName(t *testing.T) {
	svc, _, _ := newService(newFakeTeamRepository(), newFakeUserRepository("alice"))
	_, err := svc.Create(context.Background(), "alice", "x", "")
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestGetRequiresMembership(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice"))
	svc, _, _ := newService(repo, newFakeUserRepository("alice", "mallory"))
	if _, err := svc.Get(context.Background(), "team-1", "mallory"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAddMemberHappyPath(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice"))
	svc, ledger, emitter := newService(repo, newFakeUserRepository("alice", "bob"))

	team, err := svc.AddMember(context.Background(), "team-1", "alice", "bob", "")
	if err != nil {
		t.Fatalf("AddMember returned error: %v", err)
	}
	role, ok := team.RoleOf("bob")
	if !ok || role != domain.RoleMember {
		t.Fatalf("expected bob as member, got %q (ok=%v)", role, ok)
	}
	if got := ledger.lastAction(t); got != domain.ActionMemberAdded {
		t.Fatalf("expected member_added ledger entry, got %s", got)
	}
	if len(emitter.memberAdded) != 1 {
		t.Fatalf("expected one MemberAdded event, got %d", len(emitter.memberAdded))
	}
}

func TestAddMemberRequiresAdmin(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice", domain.TeamMember{UserID: "bob", Role: domain.RoleMember}))
	svc, _, _ := newService(repo, newFakeUserRepository("alice", "bob", "carol"))
	if _, err := svc.AddMember(context.Background(), "team-1", "bob", "carol", ""); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAddMemberDuplicateConflicts(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice", domain.TeamMember{UserID: "bob", Role: domain.RoleMember}))
	svc, _, _ := newService(repo, newFakeUserRepository("alice", "bob"))
	if _, err := svc.AddMember(context.Background(), "team-1", "alice", "bob", ""); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAddMemberUnknownUser(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice"))
	svc, _, _ := newService(repo, newFakeUserRepository("alice"))
	if _, err := svc.AddMember(context.Background(), "team-1", "alice", "ghost", ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveMemberCreatorImmutable(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice", domain.TeamMember{UserID: "dave", Role: domain.RoleAdmin}))
	svc, _, _ := newService(repo, newFakeUserRepository("alice", "dave"))
	if _, err := svc.RemoveMember(context.Background(), "team-1", "dave", "alice"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRemoveMemberNonMemberBadRequest(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice"))
	svc, _, _ := newService(repo, newFakeUserRepository("alice", "mallory"))
	if _, err := svc.RemoveMember(context.Background(), "team-1", "alice", "mallory"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestRemoveLastAdminConflicts(t *testing.T) {
	team := &domain.Team{
		ID:        "team-1",
		Name:      "Orphaned",
		CreatedBy: "gone",
		Members: []domain.TeamMember{
			{UserID: "dave", Role: domain.RoleAdmin},
			{UserID: "bob", Role: domain.RoleMember},
		},
		Version: 1,
	}
	repo := newFakeTeamRepository(team)
	svc, _, _ := newService(repo, newFakeUserRepository("dave", "bob"))
	if _, err := svc.RemoveMember(context.Background(), "team-1", "dave", "dave"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDemoteLastAdminConflicts(t *testing.T) {
	team := &domain.Team{
		ID:        "team-1",
		Name:      "Orphaned",
		CreatedBy: "gone",
		Members: []domain.TeamMember{
			{UserID: "dave", Role: domain.RoleAdmin},
		},
		Version: 1,
	}
	repo := newFakeTeamRepository(team)
	svc, _, _ := newService(repo, newFakeUserRepository("dave"))
	if _, err := svc.UpdateMemberRole(context.Background(), "team-1", "dave", "dave", domain.RoleMember); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDeleteOnlyCreator(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice", domain.TeamMember{UserID: "dave", Role: domain.RoleAdmin}))
	svc, ledger, emitter := newService(repo, newFakeUserRepository("alice", "dave"))

	if err := svc.Delete(context.Background(), "team-1", "dave"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for non-creator admin, got %v", err)
	}
	if err := svc.Delete(context.Background(), "team-1", "alice"); err != nil {
		t.Fatalf("creator delete failed: %v", err)
	}
	if got := ledger.lastAction(t); got != domain.ActionTeamDeleted {
		t.Fatalf("expected team_deleted ledger entry, got %s", got)
	}
	if _, ok := repo.teams["team-1"]; ok {
		t.Fatal("team should be gone after delete")
	}
	if len(emitter.deleted) != 1 {
		t.Fatalf("expected one TeamDeleted event, got %d", len(emitter.deleted))
	}
	if got := emitter.deleted[0].ActorName; got != "user alice" {
		t.Fatalf("expected the actor's name on the event, got %q", got)
	}
}

func TestCreatorRoleImmutable(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice", domain.TeamMember{UserID: "dave", Role: domain.RoleAdmin}))
	svc, _, _ := newService(repo, newFakeUserRepository("alice", "dave"))

	_, err := svc.UpdateMemberRole(context.Background(), "team-1", "dave", "alice", domain.RoleMember)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if got, _ := repo.teams["team-1"].RoleOf("alice"); got != domain.RoleAdmin {
		t.Fatalf("creator's role must be untouched, got %q", got)
	}
}

func TestMemberMutationRetriesLostRace(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice"))
	repo.raceWrites = 1
	svc, _, _ := newService(repo, newFakeUserRepository("alice", "bob"))

	team, err := svc.AddMember(context.Background(), "team-1", "alice", "bob", "")
	if err != nil {
		t.Fatalf("AddMember should succeed after retry, got %v", err)
	}
	if !team.IsMember("bob") {
		t.Fatal("bob should be a member after the retried write")
	}
	if repo.memberUpdates != 2 {
		t.Fatalf("expected 2 write attempts, got %d", repo.memberUpdates)
	}
}

func TestMemberMutationGivesUpAfterRetries(t *testing.T) {
	repo := newFakeTeamRepository(adminTeam("team-1", "alice"))
	repo.raceWrites = 10
	svc, _, _ := newService(repo, newFakeUserRepository("alice", "bob"))

	if _, err := svc.AddMember(context.Background(), "team-1", "alice", "bob", ""); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict after exhausted retries, got %v", err)
	}
}
