// Package handles maintains the per-group map from public handle to its most
// recent owner and surfaces handle reassignments between accounts.
package handles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reassignment signals that a handle moved from one account to another.
type Reassignment struct {
	Handle        string `json:"handle"`
	PreviousOwner int64  `json:"previous_owner"`
	NewOwner      int64  `json:"new_owner"`
}

// Registry provides the atomic claim-and-overwrite handle mapping.
type Registry struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRegistry creates a handle registry over the given pool.
func NewRegistry(log *slog.Logger, pool *pgxpool.Pool) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		pool:   pool,
		logger: log.With(slog.String("service", "handles")),
	}
}

// Claim records userID as the current owner of handle within the group and
// returns a Reassignment when the handle previously belonged to a different
// account. The handle is case-folded; the check-and-overwrite is atomic per
// (group, handle).
func (r *Registry) Claim(ctx context.Context, groupID int64, handle string, userID int64, now time.Time) (*Reassignment, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return nil, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var previousOwner int64
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM handle_claims WHERE group_id = $1 AND handle = $2 FOR UPDATE`,
		groupID, handle,
	).Scan(&previousOwner)
	known := true
	if errors.Is(err, pgx.ErrNoRows) {
		known = false
	} else if err != nil {
		return nil, fmt.Errorf("read handle claim: %w", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO handle_claims (group_id, handle, user_id, last_seen)
VALUES ($1, $2, $3, $4)
ON CONFLICT (group_id, handle) DO UPDATE SET user_id = EXCLUDED.user_id, last_seen = EXCLUDED.last_seen`,
		groupID, handle, userID, now)
	if err != nil {
		return nil, fmt.Errorf("upsert handle claim: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	if known && previousOwner != userID {
		r.logger.Info("handle reassigned",
			slog.Int64("group_id", groupID),
			slog.String("handle", handle),
			slog.Int64("previous_owner", previousOwner),
			slog.Int64("new_owner", userID),
		)
		return &Reassignment{Handle: handle, PreviousOwner: previousOwner, NewOwner: userID}, nil
	}
	return nil, nil
}

// ErrHandleUnknown is returned by Owner for handles with no recorded claim.
var ErrHandleUnknown = errors.New("handles: unknown handle")

// Owner returns the most recent claimed owner of handle within the group.
func (r *Registry) Owner(ctx context.Context, groupID int64, handle string) (int64, error) {
	handle = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	if handle == "" {
		return 0, ErrHandleUnknown
	}
	var userID int64
	err := r.pool.QueryRow(ctx,
		`SELECT user_id FROM handle_claims WHERE group_id = $1 AND handle = $2`,
		groupID, handle,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrHandleUnknown
	}
	if err != nil {
		return 0, fmt.Errorf("read handle owner: %w", err)
	}
	return userID, nil
}
