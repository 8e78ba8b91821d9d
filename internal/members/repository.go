package members

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steepleworks/steeple/internal/scope"
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

const memberColumns = `id, tenant_id, branch_id, first_name, last_name,
	COALESCE(email, ''), COALESCE(phone, ''), created_at, updated_at`

func scanMember(row pgx.Row) (Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.TenantID, &m.BranchID, &m.FirstName, &m.LastName,
		&m.Email, &m.Phone, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, shared.ErrNotFound
	}
	return m, err
}

// List returns members visible through the resolved branch scope.
func (r *Repository) List(ctx context.Context, tenantID string, sc scope.Scope) ([]Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE tenant_id = $1`
	args := []any{tenantID}
	argCount := 1

	switch {
	case sc.BranchID != "":
		argCount++
		query += ` AND branch_id = $` + strconv.Itoa(argCount)
		args = append(args, sc.BranchID)
	case len(sc.AllowedBranchIDs) > 0:
		argCount++
		query += ` AND branch_id = ANY($` + strconv.Itoa(argCount) + `)`
		args = append(args, sc.AllowedBranchIDs)
	}
	query += ` ORDER BY last_name, first_name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get loads one member. The scope filter applies here too, so a restricted
// user cannot fetch an out-of-scope member by id.
func (r *Repository) Get(ctx context.Context, tenantID, id string, sc scope.Scope) (Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE tenant_id = $1 AND id = $2`
	args := []any{tenantID, id}

	switch {
	case sc.BranchID != "":
		query += ` AND branch_id = $3`
		args = append(args, sc.BranchID)
	case len(sc.AllowedBranchIDs) > 0:
		query += ` AND branch_id = ANY($3)`
		args = append(args, sc.AllowedBranchIDs)
	}
	return scanMember(r.pool.QueryRow(ctx, query, args...))
}

// Create inserts a member.
func (r *Repository) Create(ctx context.Context, m Member) (Member, error) {
	m.ID = uuid.NewString()
	return scanMember(r.pool.QueryRow(ctx,
		`INSERT INTO members (id, tenant_id, branch_id, first_name, last_name, email, phone)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		 RETURNING `+memberColumns,
		m.ID, m.TenantID, m.BranchID, m.FirstName, m.LastName, m.Email, m.Phone))
}

// Update rewrites a member's personal fields and branch.
func (r *Repository) Update(ctx context.Context, m Member) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE members SET branch_id = $1, first_name = $2, last_name = $3,
		        email = NULLIF($4, ''), phone = NULLIF($5, ''), updated_at = NOW()
		 WHERE tenant_id = $6 AND id = $7`,
		m.BranchID, m.FirstName, m.LastName, m.Email, m.Phone, m.TenantID, m.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a member.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM members WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
