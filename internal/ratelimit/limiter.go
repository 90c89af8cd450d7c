// Package ratelimit gates alert emission with a per-(group,user) cooldown.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Limiter enforces the per-user alert cooldown. The gate stamps the
// last-alert time whenever it allows and on the very first check, so the
// cooldown window always opens from the earliest reference point.
type Limiter struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLimiter creates a cooldown limiter over the given pool.
func NewLimiter(log *slog.Logger, pool *pgxpool.Pool) *Limiter {
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{
		pool:   pool,
		logger: log.With(slog.String("service", "ratelimit")),
	}
}

// Allow reports whether an alert for (groupID, userID) may be sent at now
// under the given cooldown. A single statement inserts the first stamp or
// advances it when the cooldown has elapsed, so concurrent checks cannot
// both pass.
func (l *Limiter) Allow(ctx context.Context, groupID, userID int64, cooldown time.Duration, now time.Time) (bool, error) {
	tag, err := l.pool.Exec(ctx, `INSERT INTO alert_limits (group_id, user_id, last_alert_at)
VALUES ($1, $2, $3)
ON CONFLICT (group_id, user_id) DO UPDATE SET last_alert_at = EXCLUDED.last_alert_at
WHERE alert_limits.last_alert_at <= EXCLUDED.last_alert_at - make_interval(secs => $4)`,
		groupID, userID, now, cooldown.Seconds())
	if err != nil {
		return false, fmt.Errorf("stamp alert limit: %w", err)
	}
	allowed := tag.RowsAffected() > 0
	if !allowed {
		l.logger.Debug("alert suppressed by cooldown",
			slog.Int64("group_id", groupID), slog.Int64("user_id", userID))
	}
	return allowed, nil
}

// allowAt is the pure cooldown decision: hasPrior reports whether a stamp
// exists, last is that stamp. Kept separate so the policy itself is testable
// without a database.
func allowAt(hasPrior bool, last time.Time, cooldown time.Duration, now time.Time) bool {
	if !hasPrior {
		return true
	}
	return now.Sub(last) >= cooldown
}
