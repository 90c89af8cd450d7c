package detector

import (
	"context"
	"strings"

	"github.com/driftwatch/driftwatch/internal/admincache"
	"github.com/driftwatch/driftwatch/internal/fingerprint"
	"github.com/driftwatch/driftwatch/internal/groups"
	"github.com/driftwatch/driftwatch/internal/identity"
)

// score evaluates a changed identity against the admin reference entries in
// two tiers. The cheap tier (handle equality, name similarity) always runs;
// the expensive tier (photo fingerprint distance) runs only for tier-1
// candidates, only when the change set contains a photo change and photo
// checking is enabled. Admins that produced no cheap-tier hit never incur a
// fingerprint fetch.
func (s *Service) score(ctx context.Context, cfg groups.GroupConfig, changes identity.ChangeSet, snap identity.Snapshot, entries []admincache.Entry) ScoreResult {
	result := ScoreResult{}
	if len(entries) == 0 {
		return result
	}

	observedName := fingerprint.Normalize(snap.DisplayName)
	observedHandle := strings.ToLower(strings.TrimSpace(snap.Handle))

	nameHitFound := false
	candidates := make([]admincache.Entry, 0, 2)
	for _, admin := range entries {
		if observedHandle != "" && admin.Handle != "" && admin.Handle == observedHandle {
			// identical handle is a maximal-confidence hit; no name scan
			// needed for this admin
			result.Hits = append(result.Hits, Hit{
				Kind:        HitHandle,
				AdminID:     admin.UserID,
				AdminName:   admin.Name,
				AdminHandle: admin.Handle,
				Score:       1,
			})
			result.BestNameScore = 1
			candidates = append(candidates, admin)
			continue
		}
		if nameHitFound || observedName == "" {
			continue
		}
		adminName := fingerprint.Normalize(admin.Name)
		if adminName == "" {
			continue
		}
		score := fingerprint.Similarity(adminName, observedName)
		if score > result.BestNameScore {
			result.BestNameScore = score
		}
		if score >= cfg.NameThreshold {
			result.Hits = append(result.Hits, Hit{
				Kind:        HitName,
				AdminID:     admin.UserID,
				AdminName:   admin.Name,
				AdminHandle: admin.Handle,
				Score:       score,
			})
			candidates = append(candidates, admin)
			nameHitFound = true
		}
	}

	photoChange, changed := changes.Photo()
	if !changed || !cfg.CheckPhoto || len(candidates) == 0 || photoChange.To == "" {
		return result
	}

	for _, admin := range candidates {
		fp := s.admins.EnsureFingerprint(ctx, cfg.GroupID, admin.UserID)
		if fp == "" {
			continue
		}
		distance := fingerprint.Distance(photoChange.To, fp)
		if distance <= cfg.PhotoDistance {
			result.Hits = append(result.Hits, Hit{
				Kind:        HitPhoto,
				AdminID:     admin.UserID,
				AdminName:   admin.Name,
				AdminHandle: admin.Handle,
				Distance:    distance,
			})
		}
	}
	return result
}
