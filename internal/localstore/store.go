// Package localstore is the kiosk's SQLite copy of the ledger. It holds a
// mirror of the server's users, assets, open checkouts and reservations,
// plus every change made at this kiosk since the last refresh.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/outbox"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

var (
	// ErrNotFound is returned when an identifier is not in the local ledger.
	ErrNotFound = errors.New("not found locally")
	// ErrConflict is returned when an identifier belongs to another row.
	ErrConflict = errors.New("identifier already registered")
)

// Store reads and writes the local ledger. The underlying *sql.DB must be
// limited to one connection; see db.OpenLocal.
type Store struct {
	db      *sql.DB
	kioskID string
	now     func() time.Time
}

func New(db *sql.DB, kioskID string) *Store {
	return &Store{db: db, kioskID: kioskID, now: time.Now}
}

// DB exposes the handle for maintenance jobs.
func (s *Store) DB() *sql.DB { return s.db }

// Version is the local ledger's write sequence. ApplySnapshot takes the
// value read before the snapshot was fetched.
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM ledger_version WHERE id = 1`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("reading ledger version: %w", err)
	}
	return v, nil
}

// write runs fn in a transaction that also bumps the ledger version and
// appends queue to the outbox. It returns the pending count, which is zero
// when queue is empty.
func (s *Store) write(ctx context.Context, queue []models.QueuedTransaction, fn func(tx *sql.Tx) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_version SET seq = seq + 1 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("bumping ledger version: %w", err)
	}
	pending := 0
	if len(queue) > 0 {
		if pending, err = outbox.Append(ctx, tx, s.now(), queue...); err != nil {
			return 0, err
		}
	}
	return pending, tx.Commit()
}

type scanner interface{ Scan(...any) error }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func loadTime(raw string) time.Time {
	t, err := timeutil.Load(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ---- users ----

const userColumns = `id, card_id, first_name, last_name, active, registered_at`

func scanUser(row scanner) (models.User, error) {
	var u models.User
	var registered string
	if err := row.Scan(&u.ID, &u.CardID, &u.FirstName, &u.LastName, &u.Active, &registered); err != nil {
		return models.User{}, err
	}
	u.RegisteredAt = loadTime(registered)
	return u, nil
}

// UserByCard matches card case-insensitively.
func (s *Store) UserByCard(ctx context.Context, card string) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE card_id = ?`, card))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("looking up card %q: %w", card, err)
	}
	return u, nil
}

func (s *Store) RegisterUser(ctx context.Context, card string, d models.UserDetails) (models.User, error) {
	var u models.User
	_, err := s.write(ctx, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (card_id, first_name, last_name, registered_at) VALUES (?, ?, ?, ?)`,
			card, strings.TrimSpace(d.FirstName), strings.TrimSpace(d.LastName), timeutil.Store(s.now()))
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("registering user: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		u, err = scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
		return err
	})
	return u, err
}

// ReplaceCard moves user id onto a new card. A card held by anyone else is
// ErrConflict and nothing changes.
func (s *Store) ReplaceCard(ctx context.Context, userID int, card string) (models.User, error) {
	var u models.User
	_, err := s.write(ctx, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE users SET card_id = ? WHERE id = ?`, card, userID)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("replacing card: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		u, err = scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
		return err
	})
	return u, err
}

// ---- assets ----

const assetColumns = `id, code, name, category, location, active, registered_at`

func scanAsset(row scanner) (models.Asset, error) {
	var a models.Asset
	var registered string
	if err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Category, &a.Location, &a.Active, &registered); err != nil {
		return models.Asset{}, err
	}
	a.RegisteredAt = loadTime(registered)
	return a, nil
}

// AssetByCode matches code case-insensitively.
func (s *Store) AssetByCode(ctx context.Context, code string) (models.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, ErrNotFound
	}
	if err != nil {
		return models.Asset{}, fmt.Errorf("looking up asset %q: %w", code, err)
	}
	return a, nil
}

func (s *Store) RegisterAsset(ctx context.Context, code string, d models.AssetDetails) (models.Asset, error) {
	d = d.Normalize()
	var a models.Asset
	_, err := s.write(ctx, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO assets (code, name, category, location, registered_at) VALUES (?, ?, ?, ?, ?)`,
			code, strings.TrimSpace(d.Name), d.Category, d.Location, timeutil.Store(s.now()))
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("registering asset: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		a, err = scanAsset(tx.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id))
		return err
	})
	return a, err
}

// ---- checkouts ----

const checkoutSelect = `SELECT c.id, c.asset_id, c.user_id, c.checked_out_at, c.checked_in_at,
	c.kiosk_id, COALESCE(c.checked_in_kiosk_id, ''), c.source,
	a.code, a.name, u.card_id, TRIM(u.first_name || ' ' || u.last_name)
	FROM checkouts c
	JOIN assets a ON a.id = c.asset_id
	JOIN users u ON u.id = c.user_id`

func scanCheckout(row scanner) (models.CheckoutRecord, error) {
	var c models.CheckoutRecord
	var out string
	var in sql.NullString
	if err := row.Scan(&c.ID, &c.AssetID, &c.UserID, &out, &in,
		&c.KioskID, &c.CheckedInKioskID, &c.Source,
		&c.AssetCode, &c.AssetName, &c.UserCard, &c.UserName); err != nil {
		return models.CheckoutRecord{}, err
	}
	c.CheckedOutAt = loadTime(out)
	if in.Valid {
		t := loadTime(in.String)
		c.CheckedInAt = &t
	}
	return c, nil
}

// OpenCheckout returns the record under which assetID is held, or nil.
func (s *Store) OpenCheckout(ctx context.Context, assetID int) (*models.CheckoutRecord, error) {
	c, err := scanCheckout(s.db.QueryRowContext(ctx,
		checkoutSelect+` WHERE c.asset_id = ? AND c.checked_in_at IS NULL`, assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading open checkout: %w", err)
	}
	return &c, nil
}

// OpenCheckouts lists every held asset, oldest checkout first.
func (s *Store) OpenCheckouts(ctx context.Context) ([]models.CheckoutRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		checkoutSelect+` WHERE c.checked_in_at IS NULL ORDER BY c.checked_out_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CheckoutRecord
	for rows.Next() {
		c, err := scanCheckout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Checkout records userID taking assetID at at. An open record held by
// someone else is closed in the same transaction. Entries in queue are
// appended to the outbox in that transaction too; the pending count after
// the append is returned.
func (s *Store) Checkout(ctx context.Context, assetID, userID int, at time.Time, queue ...models.QueuedTransaction) (int, error) {
	return s.write(ctx, queue, func(tx *sql.Tx) error {
		stamp := timeutil.Store(at)
		if _, err := tx.ExecContext(ctx,
			`UPDATE checkouts SET checked_in_at = MAX(checked_out_at, ?), checked_in_kiosk_id = ?
			 WHERE asset_id = ? AND checked_in_at IS NULL`,
			stamp, s.kioskID, assetID); err != nil {
			return fmt.Errorf("closing open checkout: %w", err)
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO checkouts (asset_id, user_id, checked_out_at, kiosk_id, source) VALUES (?, ?, ?, ?, ?)`,
			assetID, userID, stamp, s.kioskID, models.SourceLive)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("inserting checkout: %w", err)
		}
		return nil
	})
}

// Checkin closes the open record of assetID, appending queue to the outbox
// in the same transaction. An asset nobody holds is left as it is.
func (s *Store) Checkin(ctx context.Context, assetID int, at time.Time, queue ...models.QueuedTransaction) (int, error) {
	return s.write(ctx, queue, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE checkouts SET checked_in_at = MAX(checked_out_at, ?), checked_in_kiosk_id = ?
			 WHERE asset_id = ? AND checked_in_at IS NULL`,
			timeutil.Store(at), s.kioskID, assetID); err != nil {
			return fmt.Errorf("closing checkout: %w", err)
		}
		return nil
	})
}

// ---- reservations ----

const reservationSelect = `SELECT r.id, COALESCE(a.id, 0), r.asset_code, COALESCE(r.user_card_id, ''),
	COALESCE(r.user_name, ''), COALESCE(r.reserved_for_name, ''), r.reserved_at, r.lead_hours,
	COALESCE(r.reason, ''), COALESCE(r.created_by, '')
	FROM reservations r
	LEFT JOIN assets a ON a.code = r.asset_code`

func scanReservation(row scanner) (models.Reservation, error) {
	var r models.Reservation
	var at string
	if err := row.Scan(&r.ID, &r.AssetID, &r.AssetCode, &r.UserCard, &r.UserName,
		&r.ReservedForName, &at, &r.LeadHours, &r.Reason, &r.CreatedBy); err != nil {
		return models.Reservation{}, err
	}
	r.ReservedAt = loadTime(at)
	return r, nil
}

// Reservations lists the mirrored reservations of assetID in target order.
func (s *Store) Reservations(ctx context.Context, assetID int) ([]models.Reservation, error) {
	return s.reservations(ctx, ` WHERE a.id = ? ORDER BY r.reserved_at, r.id`, assetID)
}

// AllReservations lists every mirrored reservation in target order.
func (s *Store) AllReservations(ctx context.Context) ([]models.Reservation, error) {
	return s.reservations(ctx, ` ORDER BY r.reserved_at, r.id`)
}

func (s *Store) reservations(ctx context.Context, tail string, args ...any) ([]models.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, reservationSelect+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
