package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/steepleworks/steeple/internal/jobs"
)

// DefaultAuditRetention keeps two years of audit history.
const DefaultAuditRetention = 730 * 24 * time.Hour

// AuditRetentionJob prunes audit entries past the retention window.
type AuditRetentionJob struct {
	Pool      *pgxpool.Pool
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Retention time.Duration
	clock     func() time.Time
}

// NewAuditRetentionJob wires dependencies for the retention handler.
func NewAuditRetentionJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics, retention time.Duration) *AuditRetentionJob {
	if retention <= 0 {
		retention = DefaultAuditRetention
	}
	return &AuditRetentionJob{
		Pool:      pool,
		Logger:    logger,
		Metrics:   metrics,
		Retention: retention,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskTypeAuditRetention tasks.
func (j *AuditRetentionJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.Metrics.Track("audit_retention")
	cutoff := j.clock().Add(-j.Retention)
	tag, err := j.Pool.Exec(ctx, `DELETE FROM audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		j.Logger.Error("audit retention sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Logger.Info("audit retention sweep",
		slog.Int64("deleted", tag.RowsAffected()),
		slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}
