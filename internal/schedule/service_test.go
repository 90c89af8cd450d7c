package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLister struct {
	ids []int64
	err error
}

func (f *fakeLister) ListEnabled(ctx context.Context) ([]int64, error) {
	return f.ids, f.err
}

type fakeWarmer struct {
	warmed [][]int64
}

func (f *fakeWarmer) WarmAdminCaches(ctx context.Context, groupIDs []int64) {
	f.warmed = append(f.warmed, groupIDs)
}

type ctxRecordingLister struct {
	ids  []int64
	seen chan error
}

func (f *ctxRecordingLister) ListEnabled(ctx context.Context) ([]int64, error) {
	select {
	case f.seen <- ctx.Err():
	default:
	}
	return f.ids, nil
}

type noopWarmer struct{}

func (noopWarmer) WarmAdminCaches(context.Context, []int64) {}

func TestWarmupOutlivesStartContext(t *testing.T) {
	lister := &ctxRecordingLister{ids: []int64{-1}, seen: make(chan error, 1)}
	s := NewService(nil, lister, noopWarmer{}, "@every 10ms")

	startCtx, cancel := context.WithCancel(context.Background())
	if err := s.Start(startCtx); err != nil {
		t.Fatal(err)
	}
	cancel()
	defer func() { _ = s.Stop(context.Background()) }()

	select {
	case err := <-lister.seen:
		if err != nil {
			t.Fatalf("warmup job context error = %v, want nil after start context cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warmup job never fired")
	}
}

func TestStopCancelsJobContext(t *testing.T) {
	s := NewService(nil, &fakeLister{}, noopWarmer{}, "")
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.jobCtx.Err() == nil {
		t.Error("expected job context to be cancelled after Stop")
	}
}

func TestWarmupPassesEnabledGroups(t *testing.T) {
	lister := &fakeLister{ids: []int64{-100, -200}}
	warmer := &fakeWarmer{}
	s := NewService(nil, lister, warmer, "")

	s.warmup(context.Background())

	if len(warmer.warmed) != 1 {
		t.Fatalf("warm calls = %d, want 1", len(warmer.warmed))
	}
	if got := warmer.warmed[0]; len(got) != 2 || got[0] != -100 || got[1] != -200 {
		t.Errorf("warmed groups = %v, want [-100 -200]", got)
	}
}

func TestWarmupSkipsOnListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	warmer := &fakeWarmer{}
	s := NewService(nil, lister, warmer, "")

	s.warmup(context.Background())

	if len(warmer.warmed) != 0 {
		t.Errorf("warm calls = %d, want 0 on list failure", len(warmer.warmed))
	}
}

func TestWarmupSkipsWhenNoGroups(t *testing.T) {
	warmer := &fakeWarmer{}
	s := NewService(nil, &fakeLister{}, warmer, "")

	s.warmup(context.Background())

	if len(warmer.warmed) != 0 {
		t.Errorf("warm calls = %d, want 0 with no enabled groups", len(warmer.warmed))
	}
}
