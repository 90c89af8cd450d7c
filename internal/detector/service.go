// Package detector orchestrates the identity drift pipeline: observation,
// change detection, cooldown gating, impersonation scoring, and alert
// dispatch. No state lives here between observations; every run re-derives
// its decisions from store reads.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/driftwatch/driftwatch/internal/fingerprint"
	"github.com/driftwatch/driftwatch/internal/identity"
)

// Service is the per-observation orchestrator. Collaborators are injected;
// the service itself is stateless and safe for concurrent observations.
type Service struct {
	groups  GroupConfigs
	store   IdentityStore
	handles HandleRegistry
	gate    CooldownGate
	admins  AdminDirectory
	photos  PhotoFetcher
	sink    AlertSink
	logger  *slog.Logger
	clock   func() time.Time
}

// NewService wires the detector pipeline.
func NewService(log *slog.Logger, groupConfigs GroupConfigs, store IdentityStore, handleRegistry HandleRegistry, gate CooldownGate, admins AdminDirectory, photos PhotoFetcher, sink AlertSink) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		groups:  groupConfigs,
		store:   store,
		handles: handleRegistry,
		gate:    gate,
		admins:  admins,
		photos:  photos,
		sink:    sink,
		logger:  log.With(slog.String("service", "detector")),
		clock:   time.Now,
	}
}

// Observe runs one identity observation through the pipeline and returns the
// dispatched alert, or nil when the observation terminated without one
// (no change, group disabled, or suppressed by cooldown).
func (s *Service) Observe(ctx context.Context, obs Observation) (*Alert, error) {
	now := s.clock().UTC()

	cfg, err := s.groups.Ensure(ctx, obs.GroupID)
	if err != nil {
		return nil, fmt.Errorf("ensure group config: %w", err)
	}

	snap := identity.Snapshot{
		DisplayName: strings.TrimSpace(obs.DisplayName),
		Handle:      strings.ToLower(strings.TrimSpace(obs.Handle)),
	}
	if cfg.CheckPhoto && s.photos != nil {
		snap.PhotoHash = s.observedFingerprint(ctx, obs.UserID)
	}

	changes, err := s.store.Observe(ctx, obs.GroupID, obs.UserID, snap, cfg.CheckPhoto, now)
	if err != nil {
		return nil, fmt.Errorf("observe identity: %w", err)
	}
	if len(changes) == 0 {
		return nil, nil
	}
	if !cfg.Enabled {
		return nil, nil
	}

	allowed, err := s.gate.Allow(ctx, obs.GroupID, obs.UserID, time.Duration(cfg.CooldownSeconds)*time.Second, now)
	if err != nil {
		return nil, fmt.Errorf("cooldown gate: %w", err)
	}
	if !allowed {
		s.logger.Debug("alert suppressed",
			slog.Int64("group_id", obs.GroupID), slog.Int64("user_id", obs.UserID))
		return nil, nil
	}

	entries, err := s.admins.Entries(ctx, obs.GroupID)
	if err != nil {
		// a missing admin list degrades scoring, not the pipeline
		s.logger.Warn("admin entries unavailable",
			slog.Int64("group_id", obs.GroupID), slog.Any("error", err))
		entries = nil
	}
	result := s.score(ctx, cfg, changes, snap, entries)

	alert := Alert{
		ID:          uuid.NewString(),
		GroupID:     obs.GroupID,
		UserID:      obs.UserID,
		DisplayName: snap.DisplayName,
		Handle:      snap.Handle,
		Changes:     changes,
		Hits:        result.Hits,
		BestScore:   result.BestNameScore,
		At:          now,
	}
	if snap.Handle != "" {
		re, err := s.handles.Claim(ctx, obs.GroupID, snap.Handle, obs.UserID, now)
		if err != nil {
			s.logger.Warn("handle claim failed",
				slog.Int64("group_id", obs.GroupID), slog.Any("error", err))
		} else {
			alert.Reassignment = re
		}
	}

	if err := s.sink.Dispatch(ctx, alert); err != nil {
		return nil, fmt.Errorf("dispatch alert: %w", err)
	}
	s.logger.Info("alert dispatched",
		slog.Int64("group_id", obs.GroupID),
		slog.Int64("user_id", obs.UserID),
		slog.Int("changes", len(changes)),
		slog.Int("hits", len(result.Hits)),
	)
	return &alert, nil
}

// WarmAdminCaches pre-refreshes the admin cache for the given groups; used by
// the periodic warmup job so message bursts do not pay the refresh cost.
func (s *Service) WarmAdminCaches(ctx context.Context, groupIDs []int64) {
	for _, groupID := range groupIDs {
		if _, err := s.admins.Entries(ctx, groupID); err != nil {
			s.logger.Warn("admin cache warmup failed",
				slog.Int64("group_id", groupID), slog.Any("error", err))
		}
	}
}

func (s *Service) observedFingerprint(ctx context.Context, userID int64) string {
	data, err := s.photos.FetchPhoto(ctx, userID)
	if err != nil {
		s.logger.Debug("photo fetch failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return ""
	}
	if len(data) == 0 {
		return ""
	}
	fp, err := fingerprint.FromImage(data)
	if err != nil {
		s.logger.Debug("photo hash failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return ""
	}
	return fp
}
