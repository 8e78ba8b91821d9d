package users

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

const lastOwnerMessage = "cannot remove the last active Owner"

// Repository provides PostgreSQL backed persistence. Owner-retention checks
// run inside the same transaction as the mutation, with the affected rows
// locked, so two concurrent demotions cannot both observe a surviving Owner.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `u.id, u.tenant_id, u.email, u.status, u.role_id, r.name,
	u.branch_scope, COALESCE(u.default_branch_id::text, ''), u.created_at, u.updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Status, &u.RoleID, &u.RoleName,
		&u.BranchScope, &u.DefaultBranchID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return u, err
}

// List returns a tenant's users with their branch grants.
func (r *Repository) List(ctx context.Context, tenantID string) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id
		 WHERE u.tenant_id = $1 ORDER BY u.email`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		grants, err := r.grants(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].BranchGrants = grants
	}
	return out, nil
}

// Get loads one user of a tenant including branch grants.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id
		 WHERE u.tenant_id = $1 AND u.id = $2`,
		tenantID, id))
	if err != nil {
		return User{}, err
	}
	u.BranchGrants, err = r.grants(ctx, u.ID)
	return u, err
}

func (r *Repository) grants(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT branch_id FROM user_branch_access WHERE user_id = $1 ORDER BY created_at, branch_id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var branchID string
		if err := rows.Scan(&branchID); err != nil {
			return nil, err
		}
		out = append(out, branchID)
	}
	return out, rows.Err()
}

// Invite inserts an invited user with their scope and grants in one
// transaction. The role must belong to the inviting tenant; duplicate
// emails surface as shared.ErrDuplicate.
func (r *Repository) Invite(ctx context.Context, user User, inviteTokenHash string) (User, error) {
	user.ID = uuid.NewString()
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var roleName string
		err := tx.QueryRow(ctx,
			`SELECT name FROM roles WHERE tenant_id = $1 AND id = $2`,
			user.TenantID, user.RoleID).Scan(&roleName)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: role not found", shared.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, tenant_id, email, status, role_id, branch_scope, default_branch_id, invite_token_hash)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::uuid, $8)`,
			user.ID, user.TenantID, user.Email, shared.StatusInvited,
			user.RoleID, user.BranchScope, user.DefaultBranchID, inviteTokenHash); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: a user with this email already exists", shared.ErrDuplicate)
			}
			return err
		}
		return insertGrants(ctx, tx, user.ID, user.BranchGrants)
	})
	if err != nil {
		return User{}, err
	}
	return r.Get(ctx, user.TenantID, user.ID)
}

func insertGrants(ctx context.Context, tx pgx.Tx, userID string, grants []string) error {
	for _, branchID := range grants {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_branch_access (user_id, branch_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			userID, branchID); err != nil {
			return err
		}
	}
	return nil
}

// lockAndCountOwners locks the tenant's non-suspended Owner users and
// returns their count. Callers mutate the locked rows before commit.
func lockAndCountOwners(ctx context.Context, tx pgx.Tx, tenantID string) (int, error) {
	rows, err := tx.Query(ctx,
		`SELECT u.id FROM users u JOIN roles r ON r.id = u.role_id
		 WHERE u.tenant_id = $1 AND u.status <> $2 AND r.name = 'Owner' AND r.is_system
		 FOR UPDATE OF u`,
		tenantID, shared.StatusSuspended)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		count++
	}
	return count, rows.Err()
}

// userForUpdate locks one user row and returns its status and role name.
func userForUpdate(ctx context.Context, tx pgx.Tx, tenantID, id string) (shared.UserStatus, string, error) {
	var status shared.UserStatus
	var roleName string
	err := tx.QueryRow(ctx,
		`SELECT u.status, r.name FROM users u JOIN roles r ON r.id = u.role_id
		 WHERE u.tenant_id = $1 AND u.id = $2 FOR UPDATE OF u`,
		tenantID, id).Scan(&status, &roleName)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", shared.ErrNotFound
	}
	return status, roleName, err
}

// SetStatus changes a user's status. Suspending the last non-suspended
// Owner is rejected inside the transaction. Runs at ReadCommitted: the
// row locks serialize concurrent demotions, and the loser must re-read
// the winner's committed owner count rather than fail on serialization.
func (r *Repository) SetStatus(ctx context.Context, tenantID, id string, status shared.UserStatus) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		current, roleName, err := userForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if status == shared.StatusSuspended && current != shared.StatusSuspended && roleName == "Owner" {
			owners, err := lockAndCountOwners(ctx, tx, tenantID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return fmt.Errorf("%w: %s", shared.ErrValidation, lastOwnerMessage)
			}
		}
		_, err = tx.Exec(ctx,
			`UPDATE users SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
		return err
	})
}

// SetRole changes a user's role. Moving the last non-suspended Owner off
// the Owner role is rejected inside the transaction. ReadCommitted for the
// same reason as SetStatus.
func (r *Repository) SetRole(ctx context.Context, tenantID, id, roleID string) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		current, roleName, err := userForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}

		var newRoleName string
		err = tx.QueryRow(ctx,
			`SELECT name FROM roles WHERE tenant_id = $1 AND id = $2`, tenantID, roleID).Scan(&newRoleName)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: role not found", shared.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if roleName == "Owner" && newRoleName != "Owner" && current != shared.StatusSuspended {
			owners, err := lockAndCountOwners(ctx, tx, tenantID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return fmt.Errorf("%w: %s", shared.ErrValidation, lastOwnerMessage)
			}
		}
		_, err = tx.Exec(ctx,
			`UPDATE users SET role_id = $1, updated_at = NOW() WHERE id = $2`, roleID, id)
		return err
	})
}

// SetScope replaces a user's branch scope mode, default branch and grant
// set atomically.
func (r *Repository) SetScope(ctx context.Context, tenantID, id string, mode shared.BranchScopeMode, defaultBranchID string, grants []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, _, err := userForUpdate(ctx, tx, tenantID, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET branch_scope = $1, default_branch_id = NULLIF($2, '')::uuid, updated_at = NOW()
			 WHERE id = $3`,
			mode, defaultBranchID, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_branch_access WHERE user_id = $1`, id); err != nil {
			return err
		}
		if mode == shared.ScopeRestricted {
			return insertGrants(ctx, tx, id, grants)
		}
		return nil
	})
}
