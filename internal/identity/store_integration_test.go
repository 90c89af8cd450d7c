package identity_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftwatch/driftwatch/internal/identity"
)

func setupStoreIntegrationTest(t *testing.T) (*identity.Store, *pgxpool.Pool) {
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
	return identity.NewStore(logger, pool), pool
}

func TestObserveFirstIsBaseline(t *testing.T) {
	store, pool := setupStoreIntegrationTest(t)
	ctx := context.Background()

	groupID := time.Now().UnixNano()
	defer func() {
		_, _ = pool.Exec(ctx, "DELETE FROM identity_records WHERE group_id = $1", groupID)
	}()

	changes, err := store.Observe(ctx, groupID, 100, identity.Snapshot{DisplayName: "Jane"}, true, time.Now().UTC())
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("first observation must be a baseline, got %v", changes)
	}

	rec, err := store.Get(ctx, groupID, 100)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.DisplayName != "Jane" || len(rec.Names) != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestObserveDetectsAndPersistsChanges(t *testing.T) {
	store, pool := setupStoreIntegrationTest(t)
	ctx := context.Background()

	groupID := time.Now().UnixNano()
	defer func() {
		_, _ = pool.Exec(ctx, "DELETE FROM identity_records WHERE group_id = $1", groupID)
	}()

	now := time.Now().UTC()
	if _, err := store.Observe(ctx, groupID, 7, identity.Snapshot{DisplayName: "Jane", Handle: "jane"}, true, now); err != nil {
		t.Fatal(err)
	}

	changes, err := store.Observe(ctx, groupID, 7, identity.Snapshot{DisplayName: "Janet", Handle: "jane"}, true, now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].Kind != identity.ChangeName {
		t.Fatalf("expected one name change, got %v", changes)
	}

	// idempotence: same snapshot again yields no changes
	changes, err = store.Observe(ctx, groupID, 7, identity.Snapshot{DisplayName: "Janet", Handle: "jane"}, true, now.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected idempotent observation, got %v", changes)
	}

	rec, err := store.Get(ctx, groupID, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Names) != 2 {
		t.Errorf("expected two names in history, got %v", rec.Names)
	}
	if !rec.LastSeen.After(rec.FirstSeen) {
		t.Errorf("last_seen not advanced: %+v", rec)
	}
}

func TestObserveConcurrentFirstObservations(t *testing.T) {
	store, pool := setupStoreIntegrationTest(t)
	ctx := context.Background()

	groupID := time.Now().UnixNano()
	defer func() {
		_, _ = pool.Exec(ctx, "DELETE FROM identity_records WHERE group_id = $1", groupID)
	}()

	// two racing first observations of the same user: the losing insert hits
	// a unique violation and must retry against the fresh row, not fail
	now := time.Now().UTC()
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := store.Observe(ctx, groupID, 3, identity.Snapshot{DisplayName: "Jane", Handle: "jane"}, true, now)
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent first observation failed: %v", err)
		}
	}

	rec, err := store.Get(ctx, groupID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if rec.DisplayName != "Jane" || len(rec.Names) != 1 {
		t.Errorf("unexpected record after concurrent seed: %+v", rec)
	}
}
