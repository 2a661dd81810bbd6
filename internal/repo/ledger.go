package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crucial707/keykiosk/internal/models"
)

// ========================
// LEDGER REPOSITORY
// ========================

// LedgerRepo applies checkouts and checkins to the authoritative ledger.
// Every write locks the asset row so concurrent kiosks serialize per asset.
type LedgerRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{DB: db, now: time.Now}
}

const checkoutColumns = `c.id, c.asset_id, c.user_id, c.checked_out_at, c.checked_in_at,
	c.kiosk_id, COALESCE(c.checked_in_kiosk_id, ''), c.source,
	a.code, a.name, u.card_id, u.first_name || ' ' || u.last_name`

const checkoutJoins = ` FROM checkouts c
	JOIN assets a ON a.id = c.asset_id
	JOIN users u ON u.id = c.user_id`

func scanCheckout(row interface{ Scan(...any) error }) (models.CheckoutRecord, error) {
	var c models.CheckoutRecord
	var in sql.NullTime
	err := row.Scan(&c.ID, &c.AssetID, &c.UserID, &c.CheckedOutAt, &in,
		&c.KioskID, &c.CheckedInKioskID, &c.Source,
		&c.AssetCode, &c.AssetName, &c.UserCard, &c.UserName)
	if in.Valid {
		t := in.Time
		c.CheckedInAt = &t
	}
	return c, err
}

// ========================
// CHECKOUT
// ========================

// Checkout gives the asset to the card holder. Any open record of another
// holder is closed in the same transaction, so a handoff is one call. When
// the card already holds the asset nothing changes.
//
// Offline writes carry their own timestamp and are deduplicated on
// (kind, asset code, timestamp, kiosk). Any write carrying an event id is
// also deduplicated on it, so a live write whose response was lost is not
// applied again when the kiosk replays it from its outbox.
func (r *LedgerRepo) Checkout(ctx context.Context, req models.OfflineCheckout, source string) (models.ApplyResult, error) {
	at := r.now()
	if req.OccurredAt != nil {
		at = *req.OccurredAt
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.ApplyResult{}, err
	}
	defer tx.Rollback()

	if source == models.SourceOffline || req.EventID != "" {
		fresh, err := recordReceipt(ctx, tx, models.KindCheckout, req.AssetCode, at, req.KioskID, req.EventID)
		if err != nil {
			return models.ApplyResult{}, err
		}
		if !fresh {
			return models.ApplyResult{}, tx.Commit()
		}
	}
	if req.ReleasesEventID != "" {
		// The implied checkin is part of this write; a later replay of it
		// must not close the new holder's record.
		if _, err := recordReceipt(ctx, tx, models.KindCheckin, req.AssetCode, at, req.KioskID, req.ReleasesEventID); err != nil {
			return models.ApplyResult{}, err
		}
	}

	user, err := findOrCreateUser(ctx, tx, req.UserCardID, req.UserFirstName, req.UserLastName)
	if err != nil {
		return models.ApplyResult{}, err
	}

	asset, err := assetByCode(ctx, tx, req.AssetCode, true)
	if errors.Is(err, ErrNotFound) && req.AssetName != "" {
		asset, err = createAsset(ctx, tx, req.AssetCode, models.AssetDetails{
			Name:     req.AssetName,
			Category: req.AssetCategory,
			Location: req.AssetLocation,
		})
	}
	if err != nil {
		return models.ApplyResult{}, err
	}

	var openID, holderID int
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id FROM checkouts WHERE asset_id = $1 AND checked_in_at IS NULL`,
		asset.ID,
	).Scan(&openID, &holderID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return models.ApplyResult{}, fmt.Errorf("reading open checkout: %w", err)
	case holderID == user.ID:
		return models.ApplyResult{RecordID: openID}, tx.Commit()
	default:
		// A checkin can never precede its own checkout.
		if _, err := tx.ExecContext(ctx,
			`UPDATE checkouts
			 SET checked_in_at = GREATEST(checked_out_at, $1), checked_in_kiosk_id = $2
			 WHERE id = $3`,
			at, req.KioskID, openID,
		); err != nil {
			return models.ApplyResult{}, fmt.Errorf("closing checkout %d: %w", openID, err)
		}
	}

	var id int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO checkouts (asset_id, user_id, checked_out_at, kiosk_id, source, event_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		asset.ID, user.ID, at, req.KioskID, source, nullString(req.EventID),
	).Scan(&id)
	if isUniqueViolation(err) {
		return models.ApplyResult{}, ErrConflict
	}
	if err != nil {
		return models.ApplyResult{}, fmt.Errorf("inserting checkout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.ApplyResult{}, err
	}
	return models.ApplyResult{Applied: true, RecordID: id}, nil
}

// ========================
// CHECKIN
// ========================

// Checkin closes the newest open record of the asset. Checking in an asset
// nobody holds succeeds without effect. An unknown asset is ErrNotFound for
// live writes; offline it is acknowledged so replay can move on.
func (r *LedgerRepo) Checkin(ctx context.Context, req models.OfflineCheckin, source string) (models.ApplyResult, error) {
	at := r.now()
	if req.OccurredAt != nil {
		at = *req.OccurredAt
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.ApplyResult{}, err
	}
	defer tx.Rollback()

	if source == models.SourceOffline || req.EventID != "" {
		fresh, err := recordReceipt(ctx, tx, models.KindCheckin, req.AssetCode, at, req.KioskID, req.EventID)
		if err != nil {
			return models.ApplyResult{}, err
		}
		if !fresh {
			return models.ApplyResult{}, tx.Commit()
		}
	}

	asset, err := assetByCode(ctx, tx, req.AssetCode, true)
	if errors.Is(err, ErrNotFound) && source == models.SourceOffline {
		return models.ApplyResult{}, tx.Commit()
	}
	if err != nil {
		return models.ApplyResult{}, err
	}

	var id int
	err = tx.QueryRowContext(ctx,
		`UPDATE checkouts
		 SET checked_in_at = GREATEST(checked_out_at, $1), checked_in_kiosk_id = $2
		 WHERE id = (
		     SELECT id FROM checkouts
		     WHERE asset_id = $3 AND checked_in_at IS NULL
		     ORDER BY checked_out_at DESC LIMIT 1
		 )
		 RETURNING id`,
		at, req.KioskID, asset.ID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ApplyResult{}, tx.Commit()
	}
	if err != nil {
		return models.ApplyResult{}, fmt.Errorf("closing checkout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.ApplyResult{}, err
	}
	return models.ApplyResult{Applied: true, RecordID: id}, nil
}

// recordReceipt stores the dedup keys of a transaction. It reports false
// when either the natural key or the event id was already present.
func recordReceipt(ctx context.Context, q querier, kind models.TransactionKind, code string, at time.Time, kioskID, eventID string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO offline_receipts (kind, asset_code, occurred_at, kiosk_id, event_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT DO NOTHING`,
		string(kind), strings.ToLower(code), at.UTC(), kioskID, nullString(eventID),
	)
	if err != nil {
		return false, fmt.Errorf("recording receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ========================
// QUERIES
// ========================

// Open lists every asset currently held.
func (r *LedgerRepo) Open(ctx context.Context) ([]models.CheckoutRecord, error) {
	return r.list(ctx,
		`SELECT `+checkoutColumns+checkoutJoins+`
		 WHERE c.checked_in_at IS NULL
		 ORDER BY c.checked_out_at`)
}

// History lists records newest first, optionally for one asset code.
func (r *LedgerRepo) History(ctx context.Context, assetCode string, limit, offset int) ([]models.CheckoutRecord, error) {
	if assetCode == "" {
		return r.list(ctx,
			`SELECT `+checkoutColumns+checkoutJoins+`
			 ORDER BY c.checked_out_at DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	return r.list(ctx,
		`SELECT `+checkoutColumns+checkoutJoins+`
		 WHERE LOWER(a.code) = LOWER($1)
		 ORDER BY c.checked_out_at DESC LIMIT $2 OFFSET $3`,
		assetCode, limit, offset)
}

func (r *LedgerRepo) list(ctx context.Context, query string, args ...any) ([]models.CheckoutRecord, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.CheckoutRecord
	for rows.Next() {
		c, err := scanCheckout(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, c)
	}
	return records, rows.Err()
}
