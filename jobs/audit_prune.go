package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examdesk/examdesk/internal/observability"
)

// auditPruneQuery matches the columns written by shared.AuditLogger.Record.
const auditPruneQuery = `DELETE FROM audit_logs WHERE occurred_at < $1`

// AuditPruneJob deletes audit log rows older than the retention window.
type AuditPruneJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *observability.Metrics
	clock   func() time.Time
	exec    func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewAuditPruneJob wires dependencies for the prune handler.
func NewAuditPruneJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *AuditPruneJob {
	return &AuditPruneJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes audit prune tasks.
func (j *AuditPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("audit prune: handler not configured")
	}
	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = 90
	}

	exec := j.exec
	if exec == nil {
		if j.Pool == nil {
			return errors.New("audit prune: pool not configured")
		}
		exec = j.Pool.Exec
	}

	cutoff := j.now().AddDate(0, 0, -payload.RetentionDays)
	tag, err := exec(ctx, auditPruneQuery, cutoff)
	if err != nil {
		j.Metrics.ObserveJob(TaskTypeAuditPrune, "error")
		j.logger().Error("prune failed", slog.Any("error", err))
		return err
	}

	j.Metrics.ObserveJob(TaskTypeAuditPrune, "ok")
	j.logger().Info("audit logs pruned",
		slog.Int("retention_days", payload.RetentionDays),
		slog.Int64("deleted", tag.RowsAffected()),
	)
	return nil
}

func (j *AuditPruneJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeAuditPrune))
	}
	return slog.Default().With(slog.String("job", TaskTypeAuditPrune))
}

func (j *AuditPruneJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
