package identity

import "time"

// ChangeKind tags a detected identity change.
type ChangeKind string

const (
	ChangeName   ChangeKind = "name"
	ChangeHandle ChangeKind = "handle"
	ChangePhoto  ChangeKind = "photo"
)

// Snapshot is one observed identity. Handle and PhotoHash use "" for
// "not provided by this event"; an omitted field is unknown, not a change
// to null, so known-to-unknown transitions are never reported.
type Snapshot struct {
	DisplayName string
	Handle      string
	PhotoHash   string
}

// Change is one detected difference between a snapshot and the stored record.
// Distance is set for photo changes when a prior fingerprint existed.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	From     string     `json:"from,omitempty"`
	To       string     `json:"to,omitempty"`
	Distance *int       `json:"distance,omitempty"`
}

// ChangeSet is the set of detected differences for one observation.
type ChangeSet []Change

// Photo returns the photo change, if present.
func (cs ChangeSet) Photo() (Change, bool) {
	for _, c := range cs {
		if c.Kind == ChangePhoto {
			return c, true
		}
	}
	return Change{}, false
}

// Record is the durable per-(group,user) identity record. The last-known
// fields are always members of the corresponding history sequence once
// non-empty; histories are append-only and deduplicated.
type Record struct {
	GroupID     int64     `json:"group_id"`
	UserID      int64     `json:"user_id"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	DisplayName string    `json:"display_name,omitempty"`
	Handle      string    `json:"handle,omitempty"`
	PhotoHash   string    `json:"photo_hash,omitempty"`
	Names       []string  `json:"names"`
	Handles     []string  `json:"handles"`
	PhotoHashes []string  `json:"photo_hashes"`
}
