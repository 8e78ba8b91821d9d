package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steepleworks/steeple/internal/platform/db"
	"github.com/steepleworks/steeple/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, tenant_id, name, permissions, is_system, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.Permissions, &r.IsSystem, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return r, err
}

// List returns every role of a tenant, system roles first.
func (r *Repository) List(ctx context.Context, tenantID string) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 ORDER BY is_system DESC, name`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// Get loads one role of a tenant.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 AND id = $2`,
		tenantID, id))
}

// Create inserts a role. Duplicate names surface as shared.ErrDuplicate via
// the store-level unique index on (tenant_id, lower(name)).
func (r *Repository) Create(ctx context.Context, role Role) (Role, error) {
	role.ID = uuid.NewString()
	created, err := scanRole(r.pool.QueryRow(ctx,
		`INSERT INTO roles (id, tenant_id, name, permissions, is_system)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+roleColumns,
		role.ID, role.TenantID, role.Name, role.Permissions, role.IsSystem))
	if db.IsUniqueViolation(err) {
		return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrDuplicate, role.Name)
	}
	return created, err
}

// Update rewrites name and permissions.
func (r *Repository) Update(ctx context.Context, role Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET name = $1, permissions = $2, updated_at = NOW()
		 WHERE tenant_id = $3 AND id = $4`,
		role.Name, role.Permissions, role.TenantID, role.ID)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: role %q already exists", shared.ErrDuplicate, role.Name)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a role.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountUsers reports how many users hold the role.
func (r *Repository) CountUsers(ctx context.Context, roleID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

// SeedSystemRoles inserts the four system roles inside the caller's
// transaction and returns the Owner role id.
func SeedSystemRoles(ctx context.Context, tx pgx.Tx, tenantID string) (string, error) {
	var ownerID string
	for _, tpl := range SystemTemplates() {
		id := uuid.NewString()
		if _, err := tx.Exec(ctx,
			`INSERT INTO roles (id, tenant_id, name, permissions, is_system)
			 VALUES ($1, $2, $3, $4, TRUE)`,
			id, tenantID, tpl.Name, tpl.Permissions); err != nil {
			return "", err
		}
		if tpl.Name == RoleOwner {
			ownerID = id
		}
	}
	return ownerID, nil
}
