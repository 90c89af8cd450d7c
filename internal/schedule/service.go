// Package schedule runs the periodic background jobs: admin cache warmup for
// enabled groups, so alert bursts do not pay the refresh round-trip.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// GroupLister lists the groups whose caches should be kept warm.
type GroupLister interface {
	ListEnabled(ctx context.Context) ([]int64, error)
}

// Warmer pre-refreshes the admin caches for the given groups.
type Warmer interface {
	WarmAdminCaches(ctx context.Context, groupIDs []int64)
}

// Service owns the cron runner for background jobs.
type Service struct {
	cron      *cron.Cron
	lister    GroupLister
	warmer    Warmer
	pattern   string
	logger    *slog.Logger
	jobCtx    context.Context
	jobCancel context.CancelFunc
}

// NewService creates the job runner. pattern is a cron expression or
// descriptor (e.g. "@every 30m") controlling the warmup cadence.
func NewService(log *slog.Logger, lister GroupLister, warmer Warmer, pattern string) *Service {
	if log == nil {
		log = slog.Default()
	}
	if pattern == "" {
		pattern = "@every 30m"
	}
	return &Service{
		cron:    cron.New(),
		lister:  lister,
		warmer:  warmer,
		pattern: pattern,
		logger:  log.With(slog.String("service", "schedule")),
	}
}

// Start registers the warmup job and starts the runner. Jobs run on a
// service-owned context, not the startup context, which is cancelled as soon
// as startup completes.
func (s *Service) Start(_ context.Context) error {
	s.jobCtx, s.jobCancel = context.WithCancel(context.Background())
	_, err := s.cron.AddFunc(s.pattern, func() { s.warmup(s.jobCtx) })
	if err != nil {
		return fmt.Errorf("schedule warmup job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("warmup job scheduled", slog.String("pattern", s.pattern))
	return nil
}

// Stop halts the runner and waits for a running job to finish.
func (s *Service) Stop(ctx context.Context) error {
	if s.jobCancel != nil {
		s.jobCancel()
	}
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) warmup(ctx context.Context) {
	ids, err := s.lister.ListEnabled(ctx)
	if err != nil {
		s.logger.Warn("list enabled groups failed", slog.Any("error", err))
		return
	}
	if len(ids) == 0 {
		return
	}
	s.warmer.WarmAdminCaches(ctx, ids)
	s.logger.Debug("admin caches warmed", slog.Int("groups", len(ids)))
}
