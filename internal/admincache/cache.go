// Package admincache maintains a per-group, time-bounded projection of the
// privileged members' normalized identities. The cache is derived state: it
// can be rebuilt from the admin-list source at any time, and photo
// fingerprints are computed lazily per entry because fetching an image per
// admin on every refresh is the costliest operation in the system.
package admincache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/driftwatch/driftwatch/internal/fingerprint"
)

// AdminProfile is one privileged member as reported by the admin-list source.
type AdminProfile struct {
	UserID      int64
	DisplayName string
	Handle      string
}

// Entry is one cached admin reference identity. Name is normalized, Handle is
// case-folded. Fingerprint is tri-state: nil means not yet computed, a
// pointer to "" means computed but absent, otherwise the hex fingerprint.
type Entry struct {
	UserID      int64
	Name        string
	Handle      string
	Fingerprint *string
}

// AdminSource lists the privileged members of a group.
type AdminSource interface {
	ListAdmins(ctx context.Context, groupID int64) ([]AdminProfile, error)
}

// PhotoFetcher retrieves a user's current profile photo bytes, or nil when
// the user has none. Implementations must bound their own timeouts.
type PhotoFetcher interface {
	FetchPhoto(ctx context.Context, userID int64) ([]byte, error)
}

type groupSnapshot struct {
	fetchedAt time.Time
	gen       uint64
	entries   []Entry
}

// Cache is the admin reference cache. Constructed once at process start and
// injected into the detector; refreshes race benignly (idempotent overwrite)
// and entry fingerprints are replaced copy-on-write.
type Cache struct {
	source  AdminSource
	photos  PhotoFetcher
	ttl     time.Duration
	logger  *slog.Logger
	clock   func() time.Time
	mu      sync.RWMutex
	groups  map[int64]*groupSnapshot
	nextGen uint64
}

// New creates an admin reference cache with the given TTL.
func New(log *slog.Logger, source AdminSource, photos PhotoFetcher, ttl time.Duration) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		source: source,
		photos: photos,
		ttl:    ttl,
		logger: log.With(slog.String("service", "admincache")),
		clock:  time.Now,
		groups: map[int64]*groupSnapshot{},
	}
}

// Entries returns the cached admin entries for the group, refreshing from the
// admin-list source when the snapshot is older than the TTL. The returned
// slice is a copy. The external fetch runs without holding the lock, so two
// racing refreshes cost at most one redundant fetch.
func (c *Cache) Entries(ctx context.Context, groupID int64) ([]Entry, error) {
	now := c.clock()

	c.mu.RLock()
	snap, ok := c.groups[groupID]
	if ok && now.Sub(snap.fetchedAt) < c.ttl {
		entries := copyEntries(snap.entries)
		c.mu.RUnlock()
		return entries, nil
	}
	c.mu.RUnlock()

	return c.refresh(ctx, groupID, now)
}

// Invalidate drops the group's snapshot so the next Entries call refreshes.
func (c *Cache) Invalidate(groupID int64) {
	c.mu.Lock()
	delete(c.groups, groupID)
	c.mu.Unlock()
}

// EnsureFingerprint returns the admin entry's photo fingerprint, computing
// and memoizing it on first need within the snapshot's lifetime. A fetch or
// hash failure degrades to computed-absent (""). The memoized entry is
// replaced copy-on-write; concurrent calls may duplicate the computation but
// never corrupt the cache.
func (c *Cache) EnsureFingerprint(ctx context.Context, groupID, adminID int64) string {
	c.mu.RLock()
	snap, ok := c.groups[groupID]
	var (
		gen   uint64
		found *Entry
	)
	if ok {
		gen = snap.gen
		for i := range snap.entries {
			if snap.entries[i].UserID == adminID {
				e := snap.entries[i]
				found = &e
				break
			}
		}
	}
	c.mu.RUnlock()

	if found == nil {
		return ""
	}
	if found.Fingerprint != nil {
		return *found.Fingerprint
	}

	fp := c.computeFingerprint(ctx, adminID)
	c.memoize(groupID, adminID, gen, fp)
	return fp
}

func (c *Cache) computeFingerprint(ctx context.Context, adminID int64) string {
	data, err := c.photos.FetchPhoto(ctx, adminID)
	if err != nil {
		c.logger.Warn("admin photo fetch failed", slog.Int64("admin_id", adminID), slog.Any("error", err))
		return ""
	}
	if len(data) == 0 {
		return ""
	}
	fp, err := fingerprint.FromImage(data)
	if err != nil {
		c.logger.Warn("admin photo hash failed", slog.Int64("admin_id", adminID), slog.Any("error", err))
		return ""
	}
	return fp
}

func (c *Cache) memoize(groupID, adminID int64, gen uint64, fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.groups[groupID]
	if !ok || snap.gen != gen {
		// snapshot was refreshed meanwhile; the new one recomputes lazily
		return
	}
	entries := copyEntries(snap.entries)
	for i := range entries {
		if entries[i].UserID == adminID {
			value := fp
			entries[i].Fingerprint = &value
		}
	}
	c.groups[groupID] = &groupSnapshot{fetchedAt: snap.fetchedAt, gen: snap.gen, entries: entries}
}

func (c *Cache) refresh(ctx context.Context, groupID int64, now time.Time) ([]Entry, error) {
	admins, err := c.source.ListAdmins(ctx, groupID)
	if err != nil {
		// degrade to the stale snapshot when one exists
		c.mu.RLock()
		snap, ok := c.groups[groupID]
		var entries []Entry
		if ok {
			entries = copyEntries(snap.entries)
		}
		c.mu.RUnlock()
		if ok {
			c.logger.Warn("admin list refresh failed, serving stale entries",
				slog.Int64("group_id", groupID), slog.Any("error", err))
			return entries, nil
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(admins))
	for _, a := range admins {
		entries = append(entries, Entry{
			UserID: a.UserID,
			Name:   fingerprint.Normalize(a.DisplayName),
			Handle: strings.ToLower(strings.TrimSpace(a.Handle)),
		})
	}

	c.mu.Lock()
	c.nextGen++
	c.groups[groupID] = &groupSnapshot{fetchedAt: now, gen: c.nextGen, entries: entries}
	c.mu.Unlock()

	c.logger.Debug("admin cache refreshed", slog.Int64("group_id", groupID), slog.Int("admins", len(entries)))
	return copyEntries(entries), nil
}

func copyEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
