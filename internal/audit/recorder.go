package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder writes entries into audit_log.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *Recorder {
	return &Recorder{pool: pool, logger: logger}
}

// Record persists the entry. Callers for whom the audit write is part of the
// feature contract (impersonation start/stop) must propagate the error.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if r == nil || r.pool == nil {
		return errors.New("audit recorder not initialised")
	}
	if e.Action == "" || e.Resource == "" || e.ActorEmail == "" {
		return errors.New("audit entry requires action, resource and actor")
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	var tenantID any
	if e.TenantID != "" {
		tenantID = e.TenantID
	}
	at := e.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_log (id, tenant_id, action, resource, details, actor_email, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), tenantID, e.Action, e.Resource, details, e.ActorEmail, at.UTC())
	return err
}

// Observe records best-effort: a failed audit write is logged but never
// aborts the business mutation it trails.
func (r *Recorder) Observe(ctx context.Context, e Entry) {
	if err := r.Record(ctx, e); err != nil && r.logger != nil {
		r.logger.Error("audit write failed",
			slog.String("action", e.Action),
			slog.String("resource", e.Resource),
			slog.Any("error", err))
	}
}

// Diff builds a before/after detail map sufficient to reconstruct a change.
func Diff(before, after map[string]any) map[string]any {
	return map[string]any{"before": before, "after": after}
}
