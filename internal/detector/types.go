package detector

import (
	"context"
	"time"

	"github.com/driftwatch/driftwatch/internal/admincache"
	"github.com/driftwatch/driftwatch/internal/groups"
	"github.com/driftwatch/driftwatch/internal/handles"
	"github.com/driftwatch/driftwatch/internal/identity"
)

// Observation is one inbound identity sighting from the platform boundary,
// produced by a message or a membership update.
type Observation struct {
	GroupID     int64
	UserID      int64
	DisplayName string
	Handle      string
}

// HitKind tags how an identity matched an admin reference.
type HitKind string

const (
	HitHandle HitKind = "handle"
	HitName   HitKind = "name"
	HitPhoto  HitKind = "photo"
)

// Hit is one impersonation signal against a specific admin.
type Hit struct {
	Kind        HitKind `json:"kind"`
	AdminID     int64   `json:"admin_id"`
	AdminName   string  `json:"admin_name,omitempty"`
	AdminHandle string  `json:"admin_handle,omitempty"`
	Score       float64 `json:"score,omitempty"`
	Distance    int     `json:"distance,omitempty"`
}

// ScoreResult is the scorer outcome: the hits found and the best name score
// seen, reported even when no name hit qualified.
type ScoreResult struct {
	Hits          []Hit
	BestNameScore float64
}

// Alert is the composed payload handed to the alert boundary.
type Alert struct {
	ID           string                `json:"id"`
	GroupID      int64                 `json:"group_id"`
	UserID       int64                 `json:"user_id"`
	DisplayName  string                `json:"display_name,omitempty"`
	Handle       string                `json:"handle,omitempty"`
	Changes      identity.ChangeSet    `json:"changes"`
	Hits         []Hit                 `json:"hits,omitempty"`
	BestScore    float64               `json:"best_score,omitempty"`
	Reassignment *handles.Reassignment `json:"reassignment,omitempty"`
	At           time.Time             `json:"at"`
}

// GroupConfigs supplies per-group configuration, creating groups on first
// observation.
type GroupConfigs interface {
	Ensure(ctx context.Context, groupID int64) (groups.GroupConfig, error)
}

// IdentityStore records observations and returns detected changes.
type IdentityStore interface {
	Observe(ctx context.Context, groupID, userID int64, snap identity.Snapshot, checkPhoto bool, now time.Time) (identity.ChangeSet, error)
}

// HandleRegistry claims handles and reports reassignments.
type HandleRegistry interface {
	Claim(ctx context.Context, groupID int64, handle string, userID int64, now time.Time) (*handles.Reassignment, error)
}

// CooldownGate enforces the per-user alert cooldown.
type CooldownGate interface {
	Allow(ctx context.Context, groupID, userID int64, cooldown time.Duration, now time.Time) (bool, error)
}

// AdminDirectory serves cached admin reference entries and their lazily
// computed photo fingerprints.
type AdminDirectory interface {
	Entries(ctx context.Context, groupID int64) ([]admincache.Entry, error)
	EnsureFingerprint(ctx context.Context, groupID, adminID int64) string
}

// PhotoFetcher retrieves the observed user's current profile photo bytes.
type PhotoFetcher interface {
	FetchPhoto(ctx context.Context, userID int64) ([]byte, error)
}

// AlertSink receives composed alerts for rendering and delivery.
type AlertSink interface {
	Dispatch(ctx context.Context, alert Alert) error
}
