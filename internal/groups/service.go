// Package groups stores per-group monitoring configuration.
package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftwatch/driftwatch/internal/db"
)

var (
	ErrNotFound = errors.New("group not found")

	// Validation errors; out-of-range input is rejected and the stored
	// value retained.
	ErrThresholdRange = fmt.Errorf("name threshold must be between %.2f and %.2f", MinNameThreshold, MaxNameThreshold)
	ErrCooldownRange  = fmt.Errorf("cooldown must be at least %d seconds", MinCooldown)
	ErrDistanceRange  = fmt.Errorf("photo distance must be between %d and %d", MinPhotoDistance, MaxPhotoDistance)
)

// Service provides group configuration lifecycle operations.
type Service struct {
	pool     *pgxpool.Pool
	defaults Defaults
	logger   *slog.Logger
}

// NewService creates a group config service; defaults seed rows created by Ensure.
func NewService(log *slog.Logger, pool *pgxpool.Pool, defaults Defaults) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:     pool,
		defaults: defaults.Clamped(),
		logger:   log.With(slog.String("service", "groups")),
	}
}

const selectConfig = `SELECT group_id, enabled, name_threshold, check_photo, alert_cooldown_seconds, photo_distance, created_at, updated_at
FROM group_configs WHERE group_id = $1`

// Ensure returns the config for groupID, creating it with defaults on first observation.
func (s *Service) Ensure(ctx context.Context, groupID int64) (GroupConfig, error) {
	row := s.pool.QueryRow(ctx, `INSERT INTO group_configs (group_id, enabled, name_threshold, check_photo, alert_cooldown_seconds, photo_distance)
VALUES ($1, TRUE, $2, $3, $4, $5)
ON CONFLICT (group_id) DO UPDATE SET updated_at = group_configs.updated_at
RETURNING group_id, enabled, name_threshold, check_photo, alert_cooldown_seconds, photo_distance, created_at, updated_at`,
		groupID, s.defaults.NameThreshold, s.defaults.CheckPhoto, s.defaults.CooldownSeconds, s.defaults.PhotoDistance)
	cfg, err := scanConfig(row)
	if err != nil {
		return GroupConfig{}, fmt.Errorf("ensure group %d: %w", groupID, err)
	}
	return cfg, nil
}

// Get returns the config for groupID or ErrNotFound.
func (s *Service) Get(ctx context.Context, groupID int64) (GroupConfig, error) {
	cfg, err := scanConfig(s.pool.QueryRow(ctx, selectConfig, groupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GroupConfig{}, ErrNotFound
		}
		return GroupConfig{}, err
	}
	return cfg, nil
}

// ListEnabled returns the ids of all groups with alerting on.
func (s *Service) ListEnabled(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT group_id FROM group_configs WHERE enabled ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled groups: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetEnabled toggles alerting for the group.
func (s *Service) SetEnabled(ctx context.Context, groupID int64, enabled bool) (GroupConfig, error) {
	return s.update(ctx, groupID, "enabled", enabled)
}

// SetNameThreshold sets the admin name-similarity threshold (0.70..0.98).
func (s *Service) SetNameThreshold(ctx context.Context, groupID int64, threshold float64) (GroupConfig, error) {
	if threshold < MinNameThreshold || threshold > MaxNameThreshold {
		return GroupConfig{}, ErrThresholdRange
	}
	return s.update(ctx, groupID, "name_threshold", threshold)
}

// SetCheckPhoto toggles profile-photo fingerprint checking.
func (s *Service) SetCheckPhoto(ctx context.Context, groupID int64, check bool) (GroupConfig, error) {
	return s.update(ctx, groupID, "check_photo", check)
}

// SetCooldown sets the per-user alert cooldown in seconds (>= 5).
func (s *Service) SetCooldown(ctx context.Context, groupID int64, seconds int) (GroupConfig, error) {
	if seconds < MinCooldown {
		return GroupConfig{}, ErrCooldownRange
	}
	return s.update(ctx, groupID, "alert_cooldown_seconds", seconds)
}

// SetPhotoDistance sets the admin-photo Hamming distance threshold (0..64).
func (s *Service) SetPhotoDistance(ctx context.Context, groupID int64, distance int) (GroupConfig, error) {
	if distance < MinPhotoDistance || distance > MaxPhotoDistance {
		return GroupConfig{}, ErrDistanceRange
	}
	return s.update(ctx, groupID, "photo_distance", distance)
}

func (s *Service) update(ctx context.Context, groupID int64, column string, value any) (GroupConfig, error) {
	query := fmt.Sprintf(`UPDATE group_configs SET %s = $2, updated_at = now() WHERE group_id = $1
RETURNING group_id, enabled, name_threshold, check_photo, alert_cooldown_seconds, photo_distance, created_at, updated_at`, column)
	cfg, err := scanConfig(s.pool.QueryRow(ctx, query, groupID, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GroupConfig{}, ErrNotFound
		}
		return GroupConfig{}, fmt.Errorf("update group %d %s: %w", groupID, column, err)
	}
	s.logger.Info("group config updated", slog.Int64("group_id", groupID), slog.String("field", column))
	return cfg, nil
}

func scanConfig(row pgx.Row) (GroupConfig, error) {
	var (
		cfg                  GroupConfig
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&cfg.GroupID,
		&cfg.Enabled,
		&cfg.NameThreshold,
		&cfg.CheckPhoto,
		&cfg.CooldownSeconds,
		&cfg.PhotoDistance,
		&createdAt,
		&updatedAt,
	)
	cfg.CreatedAt = db.TimeFromPg(createdAt)
	cfg.UpdatedAt = db.TimeFromPg(updatedAt)
	return cfg, err
}
