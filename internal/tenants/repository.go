package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steepleworks/steeple/internal/platform/db"
	"github.com/steepleworks/steeple/internal/roles"
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

const tenantColumns = `id, name, plan, status, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Plan, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, shared.ErrNotFound
	}
	return t, err
}

// List returns all tenants ordered by name.
func (r *Repository) List(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get loads one tenant.
func (r *Repository) Get(ctx context.Context, id string) (Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

// TenantName resolves a tenant's display name. Satisfies the impersonation
// manager's directory port.
func (r *Repository) TenantName(ctx context.Context, tenantID string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM tenants WHERE id = $1`, tenantID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return name, err
}

// Create provisions a tenant in one transaction: the tenant row, the four
// system roles, the default branch and the initial Owner user.
func (r *Repository) Create(ctx context.Context, tenant Tenant, branchName, ownerEmail string) (Tenant, error) {
	tenant.ID = uuid.NewString()
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tenants (id, name, plan, status) VALUES ($1, $2, $3, $4)`,
			tenant.ID, tenant.Name, tenant.Plan, tenant.Status); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: tenant %q already exists", shared.ErrDuplicate, tenant.Name)
			}
			return err
		}

		ownerRoleID, err := roles.SeedSystemRoles(ctx, tx, tenant.ID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO branches (id, tenant_id, name, is_active) VALUES ($1, $2, $3, TRUE)`,
			uuid.NewString(), tenant.ID, branchName); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, tenant_id, email, status, role_id, branch_scope)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), tenant.ID, ownerEmail, shared.StatusInvited, ownerRoleID, shared.ScopeAll); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: user %q already exists", shared.ErrDuplicate, ownerEmail)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Tenant{}, err
	}
	return r.Get(ctx, tenant.ID)
}

// UpdatePlan changes the subscription plan.
func (r *Repository) UpdatePlan(ctx context.Context, id, plan string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET plan = $1, updated_at = NOW() WHERE id = $2`, plan, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateStatus changes the lifecycle status.
func (r *Repository) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
