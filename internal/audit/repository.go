package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed timeline repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	query := `SELECT id, COALESCE(tenant_id::text, ''), action, resource, details, actor_email, created_at
		FROM audit_log WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.TenantID != "" {
		argCount++
		query += ` AND tenant_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.TenantID)
	}
	if v := strings.TrimSpace(filters.Actor); v != "" {
		argCount++
		query += ` AND actor_email = $` + strconv.Itoa(argCount)
		args = append(args, v)
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		argCount++
		query += ` AND action = $` + strconv.Itoa(argCount)
		args = append(args, v)
	}
	if v := strings.TrimSpace(filters.Resource); v != "" {
		argCount++
		query += ` AND resource = $` + strconv.Itoa(argCount)
		args = append(args, v)
	}
	if !filters.From.IsZero() {
		argCount++
		query += ` AND created_at >= $` + strconv.Itoa(argCount)
		args = append(args, filters.From)
	}
	if !filters.To.IsZero() {
		argCount++
		query += ` AND created_at <= $` + strconv.Itoa(argCount)
		args = append(args, filters.To)
	}

	query += ` ORDER BY created_at DESC`

	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var details []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Action, &e.Resource, &details, &e.ActorEmail, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
