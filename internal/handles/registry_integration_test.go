package handles_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftwatch/driftwatch/internal/handles"
)

func setupRegistryIntegrationTest(t *testing.T) (*handles.Registry, *pgxpool.Pool) {
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
	return handles.NewRegistry(logger, pool), pool
}

func TestClaimReassignment(t *testing.T) {
	registry, pool := setupRegistryIntegrationTest(t)
	ctx := context.Background()

	groupID := time.Now().UnixNano()
	defer func() {
		_, _ = pool.Exec(ctx, "DELETE FROM handle_claims WHERE group_id = $1", groupID)
	}()
	now := time.Now().UTC()

	// first claim: no reassignment
	re, err := registry.Claim(ctx, groupID, "Alice", 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if re != nil {
		t.Fatalf("expected nil on first claim, got %+v", re)
	}

	// same owner again: still nothing
	re, err = registry.Claim(ctx, groupID, "alice", 1, now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if re != nil {
		t.Fatalf("expected nil for same owner, got %+v", re)
	}

	// different owner: reassignment (handle case-folded)
	re, err = registry.Claim(ctx, groupID, "ALICE", 2, now.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if re == nil {
		t.Fatal("expected reassignment")
	}
	if re.Handle != "alice" || re.PreviousOwner != 1 || re.NewOwner != 2 {
		t.Errorf("unexpected reassignment: %+v", re)
	}
}

func TestClaimEmptyHandleIsNoop(t *testing.T) {
	registry, _ := setupRegistryIntegrationTest(t)

	re, err := registry.Claim(context.Background(), 1, "  ", 1, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if re != nil {
		t.Fatalf("expected nil for empty handle, got %+v", re)
	}
}
