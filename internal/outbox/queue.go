// Package outbox is the kiosk's durable FIFO of ledger changes that have
// not reached the server yet. Entries are flagged synced and kept forever.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

// Queue is backed by the queued_transactions table of the kiosk database.
type Queue struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

const columns = `id, event_id, kind, COALESCE(user_card_id, ''), COALESCE(user_first_name, ''),
	COALESCE(user_last_name, ''), asset_code, COALESCE(asset_name, ''), COALESCE(asset_category, ''),
	COALESCE(asset_location, ''), occurred_at, kiosk_id, synced, synced_at, attempts,
	COALESCE(last_error, ''), created_at`

func scanEntry(row interface{ Scan(...any) error }) (models.QueuedTransaction, error) {
	var e models.QueuedTransaction
	var kind, occurred, created string
	var syncedAt sql.NullString
	err := row.Scan(&e.ID, &e.EventID, &kind, &e.UserCardID, &e.UserFirstName,
		&e.UserLastName, &e.AssetCode, &e.AssetName, &e.AssetCategory,
		&e.AssetLocation, &occurred, &e.KioskID, &e.Synced, &syncedAt, &e.Attempts,
		&e.LastError, &created)
	if err != nil {
		return e, err
	}
	e.Kind = models.TransactionKind(kind)
	if e.OccurredAt, err = timeutil.Load(occurred); err != nil {
		return e, fmt.Errorf("entry %d occurred_at: %w", e.ID, err)
	}
	e.CreatedAt, _ = timeutil.Load(created)
	if syncedAt.Valid {
		t, _ := timeutil.Load(syncedAt.String)
		e.SyncedAt = &t
	}
	return e, nil
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Enqueue appends entries in one transaction, in the order given, and
// returns how many entries are pending afterwards.
func (q *Queue) Enqueue(ctx context.Context, entries ...models.QueuedTransaction) (int, error) {
	if len(entries) == 0 {
		return q.PendingCount(ctx)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	pending, err := Append(ctx, tx, q.now(), entries...)
	if err != nil {
		return 0, err
	}
	return pending, tx.Commit()
}

// Append inserts entries inside tx, so a caller can queue a change in the
// same transaction that records it locally. Each entry keeps the OccurredAt
// it was built with; a missing EventID is generated. It returns the pending
// count as seen by tx.
func Append(ctx context.Context, tx *sql.Tx, now time.Time, entries ...models.QueuedTransaction) (int, error) {
	created := timeutil.Store(now)
	for _, e := range entries {
		if e.Kind != models.KindCheckout && e.Kind != models.KindCheckin {
			return 0, fmt.Errorf("enqueue: unknown kind %q", e.Kind)
		}
		if e.OccurredAt.IsZero() {
			return 0, errors.New("enqueue: occurred_at is required")
		}
		if e.EventID == "" {
			e.EventID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queued_transactions (event_id, kind, user_card_id, user_first_name, user_last_name,
			 asset_code, asset_name, asset_category, asset_location, occurred_at, kiosk_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EventID, string(e.Kind), nullText(e.UserCardID), nullText(e.UserFirstName), nullText(e.UserLastName),
			e.AssetCode, nullText(e.AssetName), nullText(e.AssetCategory), nullText(e.AssetLocation),
			timeutil.Store(e.OccurredAt), e.KioskID, created,
		); err != nil {
			return 0, fmt.Errorf("enqueue %s %s: %w", e.Kind, e.AssetCode, err)
		}
	}

	var pending int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_transactions WHERE synced = 0`).Scan(&pending); err != nil {
		return 0, err
	}
	return pending, nil
}

// Pending returns unsynced entries in append order.
func (q *Queue) Pending(ctx context.Context) ([]models.QueuedTransaction, error) {
	return q.query(ctx, `SELECT `+columns+` FROM queued_transactions WHERE synced = 0 ORDER BY id`)
}

// List returns the newest entries first, optionally including synced ones.
// A limit of zero or less means no limit.
func (q *Queue) List(ctx context.Context, includeSynced bool, limit int) ([]models.QueuedTransaction, error) {
	query := `SELECT ` + columns + ` FROM queued_transactions`
	if !includeSynced {
		query += ` WHERE synced = 0`
	}
	query += ` ORDER BY id DESC LIMIT ?`
	if limit <= 0 {
		limit = -1
	}
	return q.query(ctx, query, limit)
}

func (q *Queue) query(ctx context.Context, query string, args ...any) ([]models.QueuedTransaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.QueuedTransaction
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PendingCount is the number of unsynced entries.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_transactions WHERE synced = 0`).Scan(&n)
	return n, err
}

// MarkSynced flags entry id as delivered.
func (q *Queue) MarkSynced(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE queued_transactions SET synced = 1, synced_at = ?, last_error = NULL WHERE id = ?`,
		timeutil.Store(q.now()), id)
	if err != nil {
		return fmt.Errorf("mark synced %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark synced %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// RecordFailure counts a failed delivery attempt. The entry stays pending.
// It returns the attempt count after the update.
func (q *Queue) RecordFailure(ctx context.Context, id int64, cause error) (int, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	var attempts int
	err := q.db.QueryRowContext(ctx,
		`UPDATE queued_transactions SET attempts = attempts + 1, last_error = ?
		 WHERE id = ? RETURNING attempts`,
		msg, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("record failure %d: %w", id, err)
	}
	return attempts, nil
}
