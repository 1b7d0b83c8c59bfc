package project

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

type fakeProjectRepository struct {
	projects map[string]*domain.Project
}

func (f *fakeProjectRepository) CreateProject(ctx context.Context, project *domain.Project) error {
	clone := *project
	f.projects[project.ID] = &clone
	return nil
}

func (f *fakeProjectRepository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	project, ok := f.projects[projectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *project
	return &clone, nil
}

func (f *fakeProjectRepository) ListProjectsByTeam(ctx context.Context, teamID string) ([]domain.Project, error) {
	var out []domain.Project
	for _, project := range f.projects {
		if project.TeamID == teamID {
			out = append(out, *project)
		}
	}
	return out, nil
}

func (f *fakeProjectRepository) ListProjectsByTeams(ctx context.Context, teamIDs []string) ([]domain.Project, error) {
	var out []domain.Project
	for _, project := range f.projects {
		for _, teamID := range teamIDs {
			if project.TeamID == teamID {
				out = append(out, *project)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeProjectRepository) UpdateProject(ctx context.Context, project *domain.Project) error {
	if _, ok := f.projects[project.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *project
	f.projects[project.ID] = &clone
	return nil
}

func (f *fakeProjectRepository) DeleteProject(ctx context.Context, projectID string) error {
	if _, ok := f.projects[projectID]; !ok {
		return repository.ErrNotFound
	}
	delete(f.projects, projectID)
	return nil
}

type fakeTeamRepository struct {
	teams map[string]*domain.Team
}

func (f *fakeTeamRepository) CreateTeam(ctx context.Context, team *domain.Team) error { return nil }

func (f *fakeTeamRepository) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	team, ok := f.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return team, nil
}

func (f *fakeTeamRepository) ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	var out []domain.Team
	for _, team := range f.teams {
		if team.IsMember(userID) {
			out = append(out, *team)
		}
	}
	return out, nil
}

func (f *fakeTeamRepository) UpdateTeamInfo(ctx context.Context, team *domain.Team) error { return nil }

func (f *fakeTeamRepository) UpdateTeamMembers(ctx context.Context, teamID string, members []domain.TeamMember, expectedVersion int64) error {
	return nil
}

func (f *fakeTeamRepository) DeleteTeam(ctx context.Context, teamID string) error { return nil }

type cascadeTaskRepository struct {
	tasks           map[string]*domain.Task
	deletedProjects []string
}

func (f *cascadeTaskRepository) CreateTask(ctx context.Context, task *domain.Task) error { return nil }

func (f *cascadeTaskRepository) GetTaskByID(ctx context.Context, taskID string) (*domain.Task, error) {
	return nil, repository.ErrNotFound
}

func (f *cascadeTaskRepository) ListTasksByProject(ctx context.Context, projectID string, filter repository.TaskFilter) ([]domain.Task, error) {
	return nil, nil
}

func (f *cascadeTaskRepository) ListTasksByAssignee(ctx context.Context, userID string) ([]domain.Task, error) {
	return nil, nil
}

func (f *cascadeTaskRepository) UpdateTask(ctx context.Context, task *domain.Task) error { return nil }

func (f *cascadeTaskRepository) DeleteTask(ctx context.Context, taskID string) error { return nil }

func (f *cascadeTaskRepository) DeleteTasksByProject(ctx context.Context, projectID string) error {
	f.deletedProjects = append(f.deletedProjects, projectID)
	for id, task := range f.tasks {
		if task.ProjectID == projectID {
			delete(f.tasks, id)
		}
	}
	return nil
}

func (f *cascadeTaskRepository) CountTasksByStatus(ctx context.Context, projectID string) (map[domain.TaskStatus]int, error) {
	counts := make(map[domain.TaskStatus]int)
	for _, task := range f.tasks {
		if task.ProjectID == projectID {
			counts[task.Status]++
		}
	}
	return counts, nil
}

type cascadeActivityRepository struct {
	deletedProjects []string
}

func (f *cascadeActivityRepository) InsertActivity(ctx context.Context, record *domain.ActivityRecord) error {
	return nil
}

func (f *cascadeActivityRepository) ListActivityByTeam(ctx context.Context, teamID string, notBefore time.Time, limit int) ([]domain.ActivityRecord, error) {
	return nil, nil
}

func (f *cascadeActivityRepository) ListActivityByProject(ctx context.Context, projectID string, notBefore time.Time, limit int) ([]domain.ActivityRecord, error) {
	return nil, nil
}

func (f *cascadeActivityRepository) ListActivityByUser(ctx context.Context, userID string, notBefore time.Time, limit int) ([]domain.ActivityRecord, error) {
	return nil, nil
}

func (f *cascadeActivityRepository) ListActivityByTask(ctx context.Context, taskID string, notBefore time.Time) ([]domain.ActivityRecord, error) {
	return nil, nil
}

func (f *cascadeActivityRepository) ListActivityByDateRange(ctx context.Context, query repository.ActivityRangeQuery) ([]domain.ActivityRecord, error) {
	return nil, nil
}

func (f *cascadeActivityRepository) DeleteActivityByProject(ctx context.Context, projectID string) error {
	f.deletedProjects = append(f.deletedProjects, projectID)
	return nil
}

func (f *cascadeActivityRepository) DeleteActivityByTask(ctx context.Context, taskID string) error {
	return nil
}

func (f *cascadeActivityRepository) DeleteActivityBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type ledgerSpy struct {
	records []domain.ActivityRecord
}

func (l *ledgerSpy) Record(ctx context.Context, record domain.ActivityRecord) error {
	l.records = append(l.records, record)
	return nil
}

type fixture struct {
	svc        Service
	projects   *fakeProjectRepository
	tasks      *cascadeTaskRepository
	activities *cascadeActivityRepository
	ledger     *ledgerSpy
}

func newFixture() *fixture {
	teams := &fakeTeamRepository{teams: map[string]*domain.Team{
		"team-1": {
			ID:        "team-1",
			Name:      "Core",
			CreatedBy: "alice",
			Members: []domain.TeamMember{
				{UserID: "alice", Role: domain.RoleAdmin},
				{UserID: "bob", Role: domain.RoleMember},
			},
		},
	}}
	projects := &fakeProjectRepository{projects: map[string]*domain.Project{
		"proj-1": {ID: "proj-1", Name: "Launch", TeamID: "team-1", CreatedBy: "bob", Status: domain.ProjectActive},
	}}
	tasks := &cascadeTaskRepository{tasks: map[string]*domain.Task{
		"task-1": {ID: "task-1", ProjectID: "proj-1", Status: domain.TaskDone},
		"task-2": {ID: "task-2", ProjectID: "proj-1", Status: domain.TaskToDo},
		"task-3": {ID: "task-3", ProjectID: "proj-1", Status: domain.TaskToDo},
		"task-4": {ID: "task-4", ProjectID: "proj-2", Status: domain.TaskToDo},
	}}
	activities := &cascadeActivityRepository{}
	ledger := &ledgerSpy{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(projects, teams, tasks, activities, ledger, events.Noop{}, log)
	return &fixture{svc: svc, projects: projects, tasks: tasks, activities: activities, ledger: ledger}
}

func TestCreateRequiresMembership(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), "mallory", CreateInput{Name: "Side quest", TeamID: "team-1"})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateDefaultsToPlanning(t *testing.T) {
	f := newFixture()
	project, err := f.svc.Create(context.Background(), "bob", CreateInput{Name: "Side quest", TeamID: "team-1"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if project.Status != domain.ProjectPlanning {
		t.Fatalf("expected Planning, got %s", project.Status)
	}
}

func TestCreateRejectsInvertedDates(t *testing.T) {
	f := newFixture()
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-24 * time.Hour)
	_, err := f.svc.Create(context.Background(), "bob", CreateInput{
		Name:      "Side quest",
		TeamID:    "team-1",
		StartDate: &start,
		EndDate:   &end,
	})
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestCreateRejectsUnknownStatus(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), "bob", CreateInput{
		Name:   "Side quest",
		TeamID: "team-1",
		Status: domain.ProjectStatus("Imaginary"),
	})
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestDeleteCascadesAndRecords(t *testing.T) {
	f := newFixture()
	if err := f.svc.Delete(context.Background(), "proj-1", "bob"); err != nil {
		t.Fatalf("creator delete failed: %v", err)
	}
	if len(f.tasks.deletedProjects) != 1 || f.tasks.deletedProjects[0] != "proj-1" {
		t.Fatalf("tasks should be cascaded, got %+v", f.tasks.deletedProjects)
	}
	if len(f.activities.deletedProjects) != 1 || f.activities.deletedProjects[0] != "proj-1" {
		t.Fatalf("activity should be cascaded, got %+v", f.activities.deletedProjects)
	}
	if _, ok := f.projects.projects["proj-1"]; ok {
		t.Fatal("project should be gone")
	}
	if len(f.ledger.records) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(f.ledger.records))
	}
	entry := f.ledger.records[0]
	if entry.Action != domain.ActionProjectDeleted {
		t.Fatalf("expected project_deleted, got %s", entry.Action)
	}
	if entry.ProjectID != "" {
		t.Fatal("the deletion record must not reference the deleted project")
	}
	if entry.TeamID != "team-1" {
		t.Fatalf("deletion record should stay scoped to the team, got %q", entry.TeamID)
	}
	for id, task := range f.tasks.tasks {
		if task.ProjectID == "proj-1" {
			t.Fatalf("orphaned task remains: %s", id)
		}
	}
}

func TestDeleteForbiddenForPlainMember(t *testing.T) {
	f := newFixture()
	f.projects.projects["proj-1"].CreatedBy = "alice"
	if err := f.svc.Delete(context.Background(), "proj-1", "bob"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestGetStatsComputesCompletionRate(t *testing.T) {
	f := newFixture()
	stats, err := f.svc.GetStats(context.Background(), "proj-1", "bob")
	if err != nil {
		t.Fatalf("GetStats returned error: %v", err)
	}
	if stats.TotalTasks != 3 {
		t.Fatalf("expected 3 tasks, got %d", stats.TotalTasks)
	}
	if stats.Done != 1 || stats.ToDo != 2 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.CompletionRate != 33 {
		t.Fatalf("expected completion rate 33, got %d", stats.CompletionRate)
	}
}

func TestListForUserSpansTeams(t *testing.T) {
	f := newFixture()
	projects, err := f.svc.ListForUser(context.Background(), "bob")
	if err != nil {
		t.Fatalf("ListForUser returned error: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "proj-1" {
		t.Fatalf("unexpected projects: %+v", projects)
	}
}
