// Package identity maintains the durable per-(group,user) identity records
// and computes the change set between an observed snapshot and stored state.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftwatch/driftwatch/internal/db"
)

var ErrRecordNotFound = errors.New("identity record not found")

// Store provides identity record observation and lookup.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates an identity store over the given pool.
func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "identity")),
	}
}

// Observe records one identity snapshot for (groupID, userID) and returns
// the detected changes. The first observation seeds the baseline and returns
// an empty change set. The read-modify-write runs in a single transaction
// with a row lock so concurrent observations of the same user cannot lose
// updates; a conflicting write is retried once, then the observation's write
// is dropped and the computed changes are still returned for scoring.
func (s *Store) Observe(ctx context.Context, groupID, userID int64, snap Snapshot, checkPhoto bool, now time.Time) (ChangeSet, error) {
	changes, err := s.observeTx(ctx, groupID, userID, snap, checkPhoto, now)
	if err == nil || !retryableConflict(err) {
		return changes, err
	}

	s.logger.Warn("observe write conflict, retrying",
		slog.Int64("group_id", groupID), slog.Int64("user_id", userID))
	changes, err = s.observeTx(ctx, groupID, userID, snap, checkPhoto, now)
	if err == nil || !retryableConflict(err) {
		return changes, err
	}

	// The last-seen update is not safety critical; keep the pipeline moving
	// with the pre-conflict change set.
	s.logger.Warn("observe write dropped after repeated conflict",
		slog.Int64("group_id", groupID), slog.Int64("user_id", userID))
	return changes, nil
}

// retryableConflict reports whether an observe transaction lost a race worth
// one retry. At read committed the realistic conflict is two concurrent first
// observations of the same user: both see no row, the loser's insert fails
// with a unique violation, and the retry finds the fresh row to diff against.
func retryableConflict(err error) bool {
	return db.IsSerializationFailure(err) || db.IsUniqueViolation(err)
}

func (s *Store) observeTx(ctx context.Context, groupID, userID int64, snap Snapshot, checkPhoto bool, now time.Time) (ChangeSet, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin observe tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := scanRecord(tx.QueryRow(ctx, selectRecord+" FOR UPDATE", groupID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		rec = seed(groupID, userID, snap, now)
		if err := insertRecord(ctx, tx, rec); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit observe tx: %w", err)
		}
		return ChangeSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read identity record: %w", err)
	}

	changes, updated := diff(rec, snap, checkPhoto, now)
	if err := updateRecord(ctx, tx, updated); err != nil {
		return changes, err
	}
	if err := tx.Commit(ctx); err != nil {
		return changes, fmt.Errorf("commit observe tx: %w", err)
	}
	return changes, nil
}

// Get returns the identity record for (groupID, userID) or ErrRecordNotFound.
func (s *Store) Get(ctx context.Context, groupID, userID int64) (Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, selectRecord, groupID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("read identity record: %w", err)
	}
	return rec, nil
}

const selectRecord = `SELECT group_id, user_id, first_seen, last_seen, display_name, handle, photo_hash, names, handles, photo_hashes
FROM identity_records WHERE group_id = $1 AND user_id = $2`

func insertRecord(ctx context.Context, tx pgx.Tx, rec Record) error {
	names, handles, photos, err := marshalHistories(rec)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO identity_records (group_id, user_id, first_seen, last_seen, display_name, handle, photo_hash, names, handles, photo_hashes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.GroupID, rec.UserID, rec.FirstSeen, rec.LastSeen,
		db.ToPgText(rec.DisplayName), db.ToPgText(rec.Handle), db.ToPgText(rec.PhotoHash),
		names, handles, photos)
	if err != nil {
		return fmt.Errorf("insert identity record: %w", err)
	}
	return nil
}

func updateRecord(ctx context.Context, tx pgx.Tx, rec Record) error {
	names, handles, photos, err := marshalHistories(rec)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE identity_records
SET last_seen = $3, display_name = $4, handle = $5, photo_hash = $6, names = $7, handles = $8, photo_hashes = $9
WHERE group_id = $1 AND user_id = $2`,
		rec.GroupID, rec.UserID, rec.LastSeen,
		db.ToPgText(rec.DisplayName), db.ToPgText(rec.Handle), db.ToPgText(rec.PhotoHash),
		names, handles, photos)
	if err != nil {
		return fmt.Errorf("update identity record: %w", err)
	}
	return nil
}

func marshalHistories(rec Record) ([]byte, []byte, []byte, error) {
	names, err := json.Marshal(rec.Names)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal names: %w", err)
	}
	handles, err := json.Marshal(rec.Handles)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal handles: %w", err)
	}
	photos, err := json.Marshal(rec.PhotoHashes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal photo hashes: %w", err)
	}
	return names, handles, photos, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec                       Record
		displayName, handle, hash pgtype.Text
		names, handles, photos    []byte
	)
	err := row.Scan(
		&rec.GroupID, &rec.UserID, &rec.FirstSeen, &rec.LastSeen,
		&displayName, &handle, &hash,
		&names, &handles, &photos,
	)
	if err != nil {
		return Record{}, err
	}
	rec.DisplayName = db.TextToString(displayName)
	rec.Handle = db.TextToString(handle)
	rec.PhotoHash = db.TextToString(hash)
	if err := json.Unmarshal(names, &rec.Names); err != nil {
		return Record{}, fmt.Errorf("unmarshal names: %w", err)
	}
	if err := json.Unmarshal(handles, &rec.Handles); err != nil {
		return Record{}, fmt.Errorf("unmarshal handles: %w", err)
	}
	if err := json.Unmarshal(photos, &rec.PhotoHashes); err != nil {
		return Record{}, fmt.Errorf("unmarshal photo hashes: %w", err)
	}
	return rec, nil
}
