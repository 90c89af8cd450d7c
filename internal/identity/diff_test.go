package identity

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSeedBaseline(t *testing.T) {
	rec := seed(1, 2, Snapshot{DisplayName: "Jane Adm1n"}, t0)

	if rec.FirstSeen != t0 || rec.LastSeen != t0 {
		t.Errorf("unexpected timestamps: %+v", rec)
	}
	if rec.DisplayName != "Jane Adm1n" {
		t.Errorf("unexpected display name: %q", rec.DisplayName)
	}
	if len(rec.Names) != 1 || rec.Names[0] != "Jane Adm1n" {
		t.Errorf("expected names seeded, got %v", rec.Names)
	}
	if len(rec.Handles) != 0 || len(rec.PhotoHashes) != 0 {
		t.Errorf("expected empty handle/photo history, got %v / %v", rec.Handles, rec.PhotoHashes)
	}
}

func TestDiffIdempotent(t *testing.T) {
	rec := seed(1, 2, Snapshot{DisplayName: "Jane", Handle: "jane", PhotoHash: "00000000000000ff"}, t0)

	changes, updated := diff(rec, Snapshot{DisplayName: "Jane", Handle: "jane", PhotoHash: "00000000000000ff"}, true, t0.Add(time.Minute))
	if len(changes) != 0 {
		t.Fatalf("expected no changes for identical snapshot, got %v", changes)
	}
	if !updated.LastSeen.Equal(t0.Add(time.Minute)) {
		t.Error("expected last_seen bumped even without changes")
	}
}

func TestDiffNameChange(t *testing.T) {
	rec := seed(1, 2, Snapshot{DisplayName: "Jane Adm1n"}, t0)

	changes, updated := diff(rec, Snapshot{DisplayName: "Jane Admln"}, true, t0.Add(time.Hour))
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %v", changes)
	}
	c := changes[0]
	if c.Kind != ChangeName || c.From != "Jane Adm1n" || c.To != "Jane Admln" {
		t.Errorf("unexpected change: %+v", c)
	}
	if updated.DisplayName != "Jane Admln" {
		t.Errorf("last known name not updated: %q", updated.DisplayName)
	}
	if len(updated.Names) != 2 {
		t.Errorf("expected both names in history, got %v", updated.Names)
	}
}

func TestDiffNullToKnownHandle(t *testing.T) {
	rec := seed(1, 2, Snapshot{DisplayName: "Jane"}, t0)

	changes, updated := diff(rec, Snapshot{DisplayName: "Jane", Handle: "janea"}, true, t0.Add(time.Hour))
	if len(changes) != 1 || changes[0].Kind != ChangeHandle {
		t.Fatalf("expected handle change, got %v", changes)
	}
	if changes[0].From != "" || changes[0].To != "janea" {
		t.Errorf("unexpected transition: %+v", changes[0])
	}
	if updated.Handle != "janea" || len(updated.Handles) != 1 {
		t.Errorf("handle not recorded: %+v", updated)
	}
}

func TestDiffKnownToUnknownNotReported(t *testing.T) {
	rec := seed(1, 2, Snapshot{DisplayName: "Jane", Handle: "janea", PhotoHash: "00000000000000ff"}, t0)

	// the platform omitted handle and photo on this event
	changes, updated := diff(rec, Snapshot{DisplayName: "Jane"}, true, t0.Add(time.Hour))
	if len(changes) != 0 {
		t.Fatalf("expected no changes when fields are omitted, got %v", changes)
	}
	if updated.Handle != "janea" || updated.PhotoHash != "00000000000000ff" {
		t.Errorf("last known values must survive omitted fields: %+v", updated)
	}
}

func TestDiffPhotoChangeCarriesDistance(t *testing.T) {
	rec := seed(1, 2, Snapshot{DisplayName: "Jane", PhotoHash: "0000000000000000"}, t0)

	changes, updated := diff(rec, Snapshot{DisplayName: "Jane", PhotoHash: "00000000000000ff"}, true, t0.Add(time.Hour))
	if len(changes) != 1 || changes[0].Kind != ChangePhoto {
		t.Fatalf("expected photo change, got %v", changes)
	}
	if changes[0].Distance == nil || *changes[0].Distance != 8 {
		t.Errorf("expected distance 8, got %v", changes[0].Distance)
	}
	if len(updated.PhotoHashes) != 2 {
		t.Errorf("expected both fingerprints in history, got %v", updated.PhotoHashes)
	}
}

func TestDiffPhotoFirstFingerprintHasNoDistance(t *testing.T) {
	rec := seed(1, 2, Snapshot{DisplayName: "Jane"}, t0)

	changes, _ := diff(rec, Snapshot{DisplayName: "Jane", PhotoHash: "00000000000000ff"}, true, t0.Add(time.Hour))
	if len(changes) != 1 || changes[0].Kind != ChangePhoto {
		t.Fatalf("expected photo change, got %v", changes)
	}
	if changes[0].Distance != nil {
		t.Errorf("expected nil distance without prior fingerprint, got %v", *changes[0].Distance)
	}
}

func TestDiffPhotoIgnoredWhenCheckingDisabled(t *testing.T) {
	rec := seed(1, 2, Snapshot{DisplayName: "Jane", PhotoHash: "0000000000000000"}, t0)

	changes, _ := diff(rec, Snapshot{DisplayName: "Jane", PhotoHash: "00000000000000ff"}, false, t0.Add(time.Hour))
	if len(changes) != 0 {
		t.Fatalf("expected no photo change when disabled, got %v", changes)
	}
}

func TestHistoryMonotonicAndDeduplicated(t *testing.T) {
	rec := seed(1, 2, Snapshot{DisplayName: "A"}, t0)

	names := []string{"B", "A", "C", "B", "A"}
	for i, n := range names {
		var changes ChangeSet
		changes, rec = diff(rec, Snapshot{DisplayName: n}, true, t0.Add(time.Duration(i)*time.Minute))
		_ = changes
	}

	want := []string{"A", "B", "C"}
	if len(rec.Names) != len(want) {
		t.Fatalf("expected deduplicated history %v, got %v", want, rec.Names)
	}
	for i, n := range want {
		if rec.Names[i] != n {
			t.Errorf("history[%d] = %q, want %q (insertion order)", i, rec.Names[i], n)
		}
	}
	// last known value is always present in the history
	found := false
	for _, n := range rec.Names {
		if n == rec.DisplayName {
			found = true
		}
	}
	if !found {
		t.Errorf("last known name %q missing from history %v", rec.DisplayName, rec.Names)
	}
}

func TestAppendUnique(t *testing.T) {
	got := appendUnique([]string{"a"}, "b")
	got = appendUnique(got, "a")
	got = appendUnique(got, "")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("appendUnique = %v", got)
	}
}
