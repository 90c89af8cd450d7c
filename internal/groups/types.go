package groups

import "time"

// GroupConfig is the per-group monitoring configuration. Groups are created
// on first observation with defaults and never deleted; disabling happens via
// Enabled=false.
type GroupConfig struct {
	GroupID         int64     `json:"group_id"`
	Enabled         bool      `json:"enabled"`
	NameThreshold   float64   `json:"name_threshold"`
	CheckPhoto      bool      `json:"check_photo"`
	CooldownSeconds int       `json:"cooldown_seconds"`
	PhotoDistance   int       `json:"photo_distance"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Defaults seed new group rows; values are clamped to the valid domains
// before use.
type Defaults struct {
	NameThreshold   float64
	CheckPhoto      bool
	CooldownSeconds int
	PhotoDistance   int
}

// Bounds for configurable values.
const (
	MinNameThreshold = 0.70
	MaxNameThreshold = 0.98
	MinCooldown      = 5
	MinPhotoDistance = 0
	MaxPhotoDistance = 64
)

// Clamped returns a copy with every field forced into its valid domain.
func (d Defaults) Clamped() Defaults {
	if d.NameThreshold < MinNameThreshold {
		d.NameThreshold = MinNameThreshold
	}
	if d.NameThreshold > MaxNameThreshold {
		d.NameThreshold = MaxNameThreshold
	}
	if d.CooldownSeconds < MinCooldown {
		d.CooldownSeconds = MinCooldown
	}
	if d.PhotoDistance < MinPhotoDistance {
		d.PhotoDistance = MinPhotoDistance
	}
	if d.PhotoDistance > MaxPhotoDistance {
		d.PhotoDistance = MaxPhotoDistance
	}
	return d
}
