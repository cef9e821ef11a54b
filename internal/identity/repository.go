package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meshgate/meshgate/internal/rbac"
)

// ErrNotFound indicates that the requested user does not exist.
var ErrNotFound = errors.New("identity: not found")

// ErrOwnerHeld indicates the singleton owner role already has a holder.
var ErrOwnerHeld = errors.New("identity: owner role already held")

const uniqueViolation = "23505"

// Repository defines persistence operations for the identity module.
type Repository interface {
	UpsertUser(ctx context.Context, subject, email, name string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	ReplaceUserRoles(ctx context.Context, userID int64, roles []rbac.RoleName) error
	UserRoles(ctx context.Context, userID int64) ([]rbac.RoleName, error)
	GrantRole(ctx context.Context, userID int64, role rbac.RoleName) error
	RevokeRole(ctx context.Context, userID int64, role rbac.RoleName) error
	GrantOwnerIfAbsent(ctx context.Context, userID int64, owner rbac.RoleName) (bool, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, subject, email, name, COALESCE(password_hash, ''), is_active, last_seen_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Subject, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive, &u.LastSeenAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// UpsertUser inserts or refreshes the user record keyed by the external
// subject identifier. Repeated calls with identical input are idempotent.
func (r *PGRepository) UpsertUser(ctx context.Context, subject, email, name string) (User, error) {
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (subject, email, name, is_active, last_seen_at, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4, $4)
		ON CONFLICT (subject) DO UPDATE
		SET email = EXCLUDED.email,
		    name = EXCLUDED.name,
		    last_seen_at = EXCLUDED.last_seen_at,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		subject, email, name, now)
	user, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("identity: upsert user: %w", err)
	}
	return user, nil
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// ReplaceUserRoles swaps the user's role membership for the given set in one
// transaction.
func (r *PGRepository) ReplaceUserRoles(ctx context.Context, userID int64, roles []rbac.RoleName) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("identity: begin replace roles: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("identity: clear roles: %w", err)
	}
	for _, role := range roles {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_name, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT DO NOTHING`,
			userID, string(role))
		if err != nil {
			return fmt.Errorf("identity: grant %s: %w", role, err)
		}
	}
	return tx.Commit(ctx)
}

// UserRoles returns the role names currently held by the user.
func (r *PGRepository) UserRoles(ctx context.Context, userID int64) ([]rbac.RoleName, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_name FROM user_roles WHERE user_id = $1 ORDER BY role_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []rbac.RoleName
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, rbac.RoleName(name))
	}
	return roles, rows.Err()
}

// GrantRole adds a single role to a user. The conflict target is scoped to
// the membership key so a re-grant stays a no-op while a violation of the
// owner singleton index still surfaces.
func (r *PGRepository) GrantRole(ctx context.Context, userID int64, role rbac.RoleName) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_name, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, role_name) DO NOTHING`,
		userID, string(role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrOwnerHeld
		}
	}
	return err
}

// RevokeRole removes a single role from a user.
func (r *PGRepository) RevokeRole(ctx context.Context, userID int64, role rbac.RoleName) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_name = $2`, userID, string(role))
	return err
}

// GrantOwnerIfAbsent grants the top role to userID only when no holder
// exists, as a single conditional insert. A concurrent winner surfaces as a
// unique violation on the owner singleton index, which is reported as
// granted=false rather than an error.
func (r *PGRepository) GrantOwnerIfAbsent(ctx context.Context, userID int64, owner rbac.RoleName) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_name, created_at)
		SELECT $1, $2, NOW()
		WHERE NOT EXISTS (SELECT 1 FROM user_roles WHERE role_name = $2)`,
		userID, string(owner))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("identity: grant owner: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

var _ Repository = (*PGRepository)(nil)
