package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Seeder persists the validated catalog into Postgres. The stored rows are
// read-mostly configuration; seeding is idempotent and runs at process start.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder constructs a Seeder backed by the provided pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// Seed upserts roles, permissions and role assignments in one transaction.
func (s *Seeder) Seed(ctx context.Context, catalog *Catalog) error {
	if err := catalog.Validate(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("rbac: begin seed: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, role := range catalog.Roles() {
		_, err := tx.Exec(ctx, `
			INSERT INTO roles (name, description, is_system, level)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE
			SET description = EXCLUDED.description,
			    is_system = EXCLUDED.is_system,
			    level = EXCLUDED.level`,
			string(role.Name), role.Description, role.System, role.Level)
		if err != nil {
			return fmt.Errorf("rbac: seed role %s: %w", role.Name, err)
		}
	}
	for _, perm := range catalog.Permissions() {
		_, err := tx.Exec(ctx, `
			INSERT INTO permissions (name, resource, action)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE
			SET resource = EXCLUDED.resource, action = EXCLUDED.action`,
			perm.Name, string(perm.Resource), string(perm.Action))
		if err != nil {
			return fmt.Errorf("rbac: seed permission %s: %w", perm.Name, err)
		}
	}
	for _, role := range catalog.Roles() {
		if err := s.seedAssignments(ctx, tx, catalog, role.Name); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Seeder) seedAssignments(ctx context.Context, tx pgx.Tx, catalog *Catalog, role RoleName) error {
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_name = $1`, string(role)); err != nil {
		return fmt.Errorf("rbac: clear assignments for %s: %w", role, err)
	}
	for _, perm := range catalog.RolePermissions(role) {
		_, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_name, permission_name)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			string(role), perm)
		if err != nil {
			return fmt.Errorf("rbac: assign %s to %s: %w", perm, role, err)
		}
	}
	return nil
}
