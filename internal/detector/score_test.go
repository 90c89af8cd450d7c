package detector

import (
	"context"
	"testing"
	"time"

	"github.com/driftwatch/driftwatch/internal/admincache"
	"github.com/driftwatch/driftwatch/internal/groups"
	"github.com/driftwatch/driftwatch/internal/identity"
)

type countingAdmins struct {
	entries          []admincache.Entry
	fingerprints     map[int64]string
	fingerprintCalls int
}

func (c *countingAdmins) Entries(ctx context.Context, groupID int64) ([]admincache.Entry, error) {
	return c.entries, nil
}

func (c *countingAdmins) EnsureFingerprint(ctx context.Context, groupID, adminID int64) string {
	c.fingerprintCalls++
	return c.fingerprints[adminID]
}

func scoringService(admins *countingAdmins) *Service {
	return &Service{admins: admins, clock: time.Now}
}

func testConfig() groups.GroupConfig {
	return groups.GroupConfig{
		GroupID:       -100,
		Enabled:       true,
		NameThreshold: 0.85,
		CheckPhoto:    true,
		PhotoDistance: 12,
	}
}

func nameChange(to string) identity.ChangeSet {
	return identity.ChangeSet{{Kind: identity.ChangeName, From: "old", To: to}}
}

func TestScoreHandleMatch(t *testing.T) {
	admins := &countingAdmins{entries: []admincache.Entry{
		{UserID: 7, Name: "Jane Admin", Handle: "janea"},
	}}
	s := scoringService(admins)

	snap := identity.Snapshot{DisplayName: "Totally Different", Handle: "janea"}
	result := s.score(context.Background(), testConfig(), nameChange("Totally Different"), snap, admins.entries)

	if len(result.Hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(result.Hits))
	}
	hit := result.Hits[0]
	if hit.Kind != HitHandle || hit.AdminID != 7 || hit.Score != 1 {
		t.Errorf("hit = %+v, want handle hit on admin 7 with score 1", hit)
	}
	if result.BestNameScore != 1 {
		t.Errorf("BestNameScore = %v, want 1", result.BestNameScore)
	}
}

func TestScoreNameMatch(t *testing.T) {
	admins := &countingAdmins{entries: []admincache.Entry{
		{UserID: 7, Name: "Jane Admin", Handle: "janea"},
		{UserID: 8, Name: "Bob Mod", Handle: "bobm"},
	}}
	s := scoringService(admins)

	snap := identity.Snapshot{DisplayName: "Jane Admin ✅", Handle: "janeadm1n"}
	result := s.score(context.Background(), testConfig(), nameChange("Jane Admin ✅"), snap, admins.entries)

	if len(result.Hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(result.Hits))
	}
	hit := result.Hits[0]
	if hit.Kind != HitName || hit.AdminID != 7 {
		t.Errorf("hit = %+v, want name hit on admin 7", hit)
	}
	if hit.Score < 0.85 {
		t.Errorf("score = %v, want >= threshold", hit.Score)
	}
}

func TestScoreBelowThreshold(t *testing.T) {
	admins := &countingAdmins{entries: []admincache.Entry{
		{UserID: 7, Name: "Jane Admin", Handle: "janea"},
	}}
	s := scoringService(admins)

	snap := identity.Snapshot{DisplayName: "Random Person", Handle: "rando"}
	result := s.score(context.Background(), testConfig(), nameChange("Random Person"), snap, admins.entries)

	if len(result.Hits) != 0 {
		t.Fatalf("hits = %v, want none", result.Hits)
	}
	if result.BestNameScore >= 0.85 {
		t.Errorf("BestNameScore = %v, want below threshold", result.BestNameScore)
	}
}

func TestScoreNoCandidatesSkipsFingerprints(t *testing.T) {
	admins := &countingAdmins{entries: []admincache.Entry{
		{UserID: 7, Name: "Jane Admin", Handle: "janea"},
	}}
	s := scoringService(admins)

	changes := identity.ChangeSet{
		{Kind: identity.ChangeName, From: "old", To: "Random Person"},
		{Kind: identity.ChangePhoto, From: "aaaaaaaaaaaaaaaa", To: "bbbbbbbbbbbbbbbb"},
	}
	snap := identity.Snapshot{DisplayName: "Random Person", Handle: "rando", PhotoHash: "bbbbbbbbbbbbbbbb"}
	result := s.score(context.Background(), testConfig(), changes, snap, admins.entries)

	if len(result.Hits) != 0 {
		t.Fatalf("hits = %v, want none", result.Hits)
	}
	if admins.fingerprintCalls != 0 {
		t.Errorf("fingerprint calls = %d, want 0 without tier-1 candidates", admins.fingerprintCalls)
	}
}

func TestScorePhotoTier(t *testing.T) {
	admins := &countingAdmins{
		entries: []admincache.Entry{
			{UserID: 7, Name: "Jane Admin", Handle: "janea"},
		},
		fingerprints: map[int64]string{7: "00000000000000ff"},
	}
	s := scoringService(admins)

	changes := identity.ChangeSet{
		{Kind: identity.ChangeName, From: "old", To: "Jane Admin"},
		{Kind: identity.ChangePhoto, From: "", To: "00000000000000fe"},
	}
	snap := identity.Snapshot{DisplayName: "Jane Admin", Handle: "fake", PhotoHash: "00000000000000fe"}
	result := s.score(context.Background(), testConfig(), changes, snap, admins.entries)

	if admins.fingerprintCalls != 1 {
		t.Fatalf("fingerprint calls = %d, want 1", admins.fingerprintCalls)
	}
	if len(result.Hits) != 2 {
		t.Fatalf("hits = %d, want name + photo", len(result.Hits))
	}
	photo := result.Hits[1]
	if photo.Kind != HitPhoto || photo.Distance != 1 {
		t.Errorf("photo hit = %+v, want distance 1", photo)
	}
}

func TestScorePhotoTierDisabled(t *testing.T) {
	admins := &countingAdmins{
		entries: []admincache.Entry{
			{UserID: 7, Name: "Jane Admin", Handle: "janea"},
		},
		fingerprints: map[int64]string{7: "00000000000000ff"},
	}
	s := scoringService(admins)

	cfg := testConfig()
	cfg.CheckPhoto = false
	changes := identity.ChangeSet{
		{Kind: identity.ChangeName, From: "old", To: "Jane Admin"},
		{Kind: identity.ChangePhoto, From: "", To: "00000000000000fe"},
	}
	snap := identity.Snapshot{DisplayName: "Jane Admin", Handle: "fake", PhotoHash: "00000000000000fe"}
	result := s.score(context.Background(), cfg, changes, snap, admins.entries)

	if admins.fingerprintCalls != 0 {
		t.Errorf("fingerprint calls = %d, want 0 when photo checks are off", admins.fingerprintCalls)
	}
	if len(result.Hits) != 1 {
		t.Errorf("hits = %d, want name only", len(result.Hits))
	}
}
