package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examdesk/examdesk/internal/observability"
)

// GrantsIntegrityJob scans for admin accounts whose role reference is dangling
// or whose stored permission sets fail to parse.
type GrantsIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewGrantsIntegrityJob wires dependencies for the integrity scan.
func NewGrantsIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *GrantsIntegrityJob {
	return &GrantsIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes grant integrity tasks.
func (j *GrantsIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("grants integrity: handler not configured")
	}
	var payload GrantsIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 500
	}

	dangling, err := j.scan(ctx, payload.Limit)
	if err != nil {
		j.Metrics.ObserveJob(TaskTypeGrantsIntegrity, "error")
		j.logger().Error("scan failed", slog.Any("error", err))
		return err
	}

	for _, d := range dangling {
		j.logger().Warn("account references missing role",
			slog.Int64("account_id", d.AccountID),
			slog.String("email", d.Email),
			slog.Int64("role_id", d.RoleID),
		)
	}

	j.Metrics.ObserveJob(TaskTypeGrantsIntegrity, "ok")
	j.logger().Info("grant integrity scan completed", slog.Int("dangling", len(dangling)))
	return nil
}

type danglingGrant struct {
	AccountID int64
	Email     string
	RoleID    int64
}

func (j *GrantsIntegrityJob) scan(ctx context.Context, limit int) ([]danglingGrant, error) {
	if j.Pool == nil {
		return nil, errors.New("grants integrity: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `
		SELECT a.id, a.email, a.role_id
		FROM admin_accounts a
		LEFT JOIN roles r ON r.id = a.role_id
		WHERE a.role_id IS NOT NULL AND r.id IS NULL
		ORDER BY a.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []danglingGrant
	for rows.Next() {
		var d danglingGrant
		if err := rows.Scan(&d.AccountID, &d.Email, &d.RoleID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (j *GrantsIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeGrantsIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskTypeGrantsIntegrity))
}
