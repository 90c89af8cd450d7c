package ratelimit_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftwatch/driftwatch/internal/ratelimit"
)

func setupLimiterIntegrationTest(t *testing.T) (*ratelimit.Limiter, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ratelimit.NewLimiter(logger, pool), pool
}

func TestAllowEnforcesCooldown(t *testing.T) {
	limiter, pool := setupLimiterIntegrationTest(t)
	ctx := context.Background()

	groupID := time.Now().UnixNano()
	defer func() {
		_, _ = pool.Exec(ctx, "DELETE FROM alert_limits WHERE group_id = $1", groupID)
	}()

	base := time.Now().UTC()
	cooldown := 15 * time.Second

	ok, err := limiter.Allow(ctx, groupID, 1, cooldown, base)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected first alert to be allowed")
	}

	ok, err = limiter.Allow(ctx, groupID, 1, cooldown, base.Add(10*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected alert at t=10 to be suppressed")
	}

	ok, err = limiter.Allow(ctx, groupID, 1, cooldown, base.Add(16*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected alert at t=16 to be allowed")
	}
}
