package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steepleworks/steeple/internal/shared"
)

// LinkedUser is everything the resolver needs about a tenant member, loaded
// in one shot: the user row, its role, its tenant and its branch grants.
type LinkedUser struct {
	UserID          string
	Email           string
	TenantID        string
	TenantName      string
	RoleID          string
	RoleName        string
	Permissions     []string
	Status          shared.UserStatus
	BranchScope     shared.BranchScopeMode
	DefaultBranchID string
	BranchGrants    []string
}

// Repository loads linked users for session resolution.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*LinkedUser, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*LinkedUser, error) {
	const query = `
		SELECT u.id, u.email, u.tenant_id, t.name, u.role_id, r.name, r.permissions,
		       u.status, u.branch_scope, COALESCE(u.default_branch_id::text, '')
		FROM users u
		JOIN tenants t ON t.id = u.tenant_id
		JOIN roles r ON r.id = u.role_id
		WHERE lower(u.email) = lower($1)`

	var lu LinkedUser
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&lu.UserID, &lu.Email, &lu.TenantID, &lu.TenantName,
		&lu.RoleID, &lu.RoleName, &lu.Permissions,
		&lu.Status, &lu.BranchScope, &lu.DefaultBranchID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT branch_id FROM user_branch_access WHERE user_id = $1 ORDER BY created_at, branch_id`,
		lu.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var branchID string
		if err := rows.Scan(&branchID); err != nil {
			return nil, err
		}
		lu.BranchGrants = append(lu.BranchGrants, branchID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &lu, nil
}
