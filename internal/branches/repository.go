package branches

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

const branchColumns = `id, tenant_id, name, COALESCE(location, ''), is_active, created_at, updated_at`

func scanBranch(row pgx.Row) (Branch, error) {
	var b Branch
	err := row.Scan(&b.ID, &b.TenantID, &b.Name, &b.Location, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Branch{}, shared.ErrNotFound
	}
	return b, err
}

// List returns a tenant's branches, active first.
func (r *Repository) List(ctx context.Context, tenantID string, includeArchived bool) ([]Branch, error) {
	query := `SELECT ` + branchColumns + ` FROM branches WHERE tenant_id = $1`
	if !includeArchived {
		query += ` AND is_active`
	}
	query += ` ORDER BY is_active DESC, name`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Get loads one branch of a tenant.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (Branch, error) {
	return scanBranch(r.pool.QueryRow(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE tenant_id = $1 AND id = $2`,
		tenantID, id))
}

// EnsureInTenant verifies a branch id belongs to the tenant and is active.
// Guessed or foreign ids surface as not found, never as existence hints.
func (r *Repository) EnsureInTenant(ctx context.Context, tenantID, branchID string) error {
	var one int
	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM branches WHERE id = $1 AND tenant_id = $2 AND is_active`,
		branchID, tenantID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: branch not found", shared.ErrNotFound)
	}
	return err
}

// Create inserts an active branch. The partial unique index on
// (tenant_id, lower(name)) where is_active closes the duplicate-name race.
func (r *Repository) Create(ctx context.Context, branch Branch) (Branch, error) {
	branch.ID = uuid.NewString()
	created, err := scanBranch(r.pool.QueryRow(ctx,
		`INSERT INTO branches (id, tenant_id, name, location, is_active)
		 VALUES ($1, $2, $3, NULLIF($4, ''), TRUE)
		 RETURNING `+branchColumns,
		branch.ID, branch.TenantID, branch.Name, branch.Location))
	if db.IsUniqueViolation(err) {
		return Branch{}, fmt.Errorf("%w: active branch %q already exists", shared.ErrDuplicate, branch.Name)
	}
	return created, err
}

// Update rewrites name and location.
func (r *Repository) Update(ctx context.Context, branch Branch) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE branches SET name = $1, location = NULLIF($2, ''), updated_at = NOW()
		 WHERE tenant_id = $3 AND id = $4`,
		branch.Name, branch.Location, branch.TenantID, branch.ID)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: active branch %q already exists", shared.ErrDuplicate, branch.Name)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Archive deactivates a branch inside one transaction. The branch row and
// the tenant's active-branch count are observed under row locks so two
// concurrent archivals cannot both pass the last-branch check. Archival
// removes the branch from every restricted user's grant set.
func (r *Repository) Archive(ctx context.Context, tenantID, id string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var isActive bool
		err := tx.QueryRow(ctx,
			`SELECT is_active FROM branches WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
			tenantID, id).Scan(&isActive)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !isActive {
			return fmt.Errorf("%w: branch is already archived", shared.ErrValidation)
		}

		var activeCount int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM (
			    SELECT id FROM branches WHERE tenant_id = $1 AND is_active FOR UPDATE
			 ) b`,
			tenantID).Scan(&activeCount); err != nil {
			return err
		}
		if activeCount <= 1 {
			return fmt.Errorf("%w: cannot archive the last active branch", shared.ErrValidation)
		}

		var dependents int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM users u
			 WHERE u.tenant_id = $1 AND u.branch_scope = $2
			   AND EXISTS (SELECT 1 FROM user_branch_access g WHERE g.user_id = u.id AND g.branch_id = $3)
			   AND NOT EXISTS (SELECT 1 FROM user_branch_access g WHERE g.user_id = u.id AND g.branch_id <> $3)`,
			tenantID, shared.ScopeRestricted, id).Scan(&dependents); err != nil {
			return err
		}
		if dependents > 0 {
			return fmt.Errorf("%w: %d restricted user(s) have this branch as their only grant", shared.ErrValidation, dependents)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE branches SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM user_branch_access WHERE branch_id = $1`, id)
		return err
	})
}

// Unarchive reactivates a branch. Deleted grants are not restored. A name
// collision with a currently active branch surfaces as a duplicate.
func (r *Repository) Unarchive(ctx context.Context, tenantID, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE branches SET is_active = TRUE, updated_at = NOW()
		 WHERE tenant_id = $1 AND id = $2 AND NOT is_active`,
		tenantID, id)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: an active branch with this name already exists", shared.ErrDuplicate)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
