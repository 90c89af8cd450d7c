package identity

import (
	"time"

	"github.com/driftwatch/driftwatch/internal/fingerprint"
)

// diff compares a stored record against an observed snapshot and returns the
// resulting change set together with the updated record. Photo values are
// compared only when checkPhoto is set and the snapshot carries a
// fingerprint. The first observation never goes through here; it seeds the
// baseline instead.
func diff(rec Record, snap Snapshot, checkPhoto bool, now time.Time) (ChangeSet, Record) {
	var changes ChangeSet

	if snap.DisplayName != "" && snap.DisplayName != rec.DisplayName {
		changes = append(changes, Change{Kind: ChangeName, From: rec.DisplayName, To: snap.DisplayName})
		rec.Names = appendUnique(rec.Names, snap.DisplayName)
		rec.DisplayName = snap.DisplayName
	}

	if snap.Handle != "" && snap.Handle != rec.Handle {
		changes = append(changes, Change{Kind: ChangeHandle, From: rec.Handle, To: snap.Handle})
		rec.Handles = appendUnique(rec.Handles, snap.Handle)
		rec.Handle = snap.Handle
	}

	if checkPhoto && snap.PhotoHash != "" && snap.PhotoHash != rec.PhotoHash {
		change := Change{Kind: ChangePhoto, From: rec.PhotoHash, To: snap.PhotoHash}
		if rec.PhotoHash != "" {
			d := fingerprint.Distance(snap.PhotoHash, rec.PhotoHash)
			change.Distance = &d
		}
		changes = append(changes, change)
		rec.PhotoHashes = appendUnique(rec.PhotoHashes, snap.PhotoHash)
		rec.PhotoHash = snap.PhotoHash
	}

	rec.LastSeen = now
	return changes, rec
}

// seed builds the baseline record for a first observation.
func seed(groupID, userID int64, snap Snapshot, now time.Time) Record {
	rec := Record{
		GroupID:     groupID,
		UserID:      userID,
		FirstSeen:   now,
		LastSeen:    now,
		DisplayName: snap.DisplayName,
		Handle:      snap.Handle,
		PhotoHash:   snap.PhotoHash,
		Names:       []string{},
		Handles:     []string{},
		PhotoHashes: []string{},
	}
	if snap.DisplayName != "" {
		rec.Names = append(rec.Names, snap.DisplayName)
	}
	if snap.Handle != "" {
		rec.Handles = append(rec.Handles, snap.Handle)
	}
	if snap.PhotoHash != "" {
		rec.PhotoHashes = append(rec.PhotoHashes, snap.PhotoHash)
	}
	return rec
}

func appendUnique(values []string, value string) []string {
	if value == "" {
		return values
	}
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}
