package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewkit/crewkit/internal/domain"
	"github.com/crewkit/crewkit/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository     = (*Repository)(nil)
	_ repository.TeamRepository     = (*Repository)(nil)
	_ repository.ProjectRepository  = (*Repository)(nil)
	_ repository.TaskRepository     = (*Repository)(nil)
	_ repository.ActivityRepository = (*Repository)(nil)
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, name, email, password_hash, role, created_at, updated_at FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, name, email, password_hash, role, created_at, updated_at FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// UpdateUser persists profile changes.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users SET name = $2, email = $3, role = $4, updated_at = $5 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.Role, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateTeam creates a team record with its member document.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	members, err := json.Marshal(team.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	const query = `INSERT INTO teams (id, name, description, created_by, members, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.pool.Exec(ctx, query, team.ID, team.Name, team.Description, team.CreatedBy, members, team.Version, team.CreatedAt, team.UpdatedAt)
	return err
}

// GetTeamByID returns a team by identifier.
func (r *Repository) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	const query = `SELECT id, name, description, created_by, members, version, created_at, updated_at FROM teams WHERE id = $1`
	return r.scanTeam(r.pool.QueryRow(ctx, query, teamID))
}

// ListTeamsByUser returns teams the user belongs to, newest first.
func (r *Repository) ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	const query = `SELECT id, name, description, created_by, members, version, created_at, updated_at
		FROM teams
		WHERE members @> jsonb_build_array(jsonb_build_object('user_id', $1::text))
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		team, err := r.scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, *team)
	}
	return teams, rows.Err()
}

// UpdateTeamInfo persists name and description changes.
func (r *Repository) UpdateTeamInfo(ctx context.Context, team *domain.Team) error {
	const query = `UPDATE teams SET name = $2, description = $3, updated_at = $4 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, team.ID, team.Name, team.Description, team.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateTeamMembers replaces the member document only when the stored
// version matches expectedVersion. A mismatch means another writer got
// there first and the caller must re-read and re-validate.
func (r *Repository) UpdateTeamMembers(ctx context.Context, teamID string, members []domain.TeamMember, expectedVersion int64) error {
	encoded, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	const query = `UPDATE teams SET members = $2, version = version + 1, updated_at = $3
		WHERE id = $1 AND version = $4`
	tag, err := r.pool.Exec(ctx, query, teamID, encoded, time.Now().UTC(), expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetTeamByID(ctx, teamID); err != nil {
			return err
		}
		return repository.ErrConflict
	}
	return nil
}

// DeleteTeam removes a team record.
func (r *Repository) DeleteTeam(ctx context.Context, teamID string) error {
	const query = `DELETE FROM teams WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, teamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) scanTeam(row pgx.Row) (*domain.Team, error) {
	var (
		team    domain.Team
		members []byte
	)
	if err := row.Scan(&team.ID, &team.Name, &team.Description, &team.CreatedBy, &members, &team.Version, &team.CreatedAt, &team.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(members, &team.Members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return &team, nil
}
