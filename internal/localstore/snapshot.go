package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/reservation"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

var (
	// ErrUnsyncedChanges is returned by ApplySnapshot while the outbox holds
	// changes the snapshot cannot contain yet.
	ErrUnsyncedChanges = errors.New("outbox has unsynced transactions")
	// ErrStaleSnapshot is returned by ApplySnapshot when the local ledger
	// changed after the snapshot was requested.
	ErrStaleSnapshot = errors.New("local ledger changed since snapshot was requested")
)

// ApplySnapshot replaces the mirrored tables with the server's state in one
// transaction. version is what Version returned before the snapshot was
// fetched. It refuses while anything is queued or when a local write landed
// after version, since either change could be missing from the snapshot.
func (s *Store) ApplySnapshot(ctx context.Context, snap models.Snapshot, version int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pending int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_transactions WHERE synced = 0`).Scan(&pending); err != nil {
		return err
	}
	if pending > 0 {
		return ErrUnsyncedChanges
	}
	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT seq FROM ledger_version WHERE id = 1`).Scan(&current); err != nil {
		return fmt.Errorf("reading ledger version: %w", err)
	}
	if current != version {
		return ErrStaleSnapshot
	}

	for _, table := range []string{"checkouts", "reservations", "users", "assets"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for _, u := range snap.Users {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, card_id, first_name, last_name, active, registered_at) VALUES (?, ?, ?, ?, ?, ?)`,
			u.ID, u.CardID, u.FirstName, u.LastName, u.Active, timeutil.Store(u.RegisteredAt)); err != nil {
			return fmt.Errorf("mirroring user %q: %w", u.CardID, err)
		}
	}
	for _, a := range snap.Assets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO assets (id, code, name, category, location, active, registered_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Code, a.Name, a.Category, a.Location, a.Active, timeutil.Store(a.RegisteredAt)); err != nil {
			return fmt.Errorf("mirroring asset %q: %w", a.Code, err)
		}
	}
	for _, c := range snap.OpenCheckouts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checkouts (id, asset_id, user_id, checked_out_at, kiosk_id, source) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.AssetID, c.UserID, timeutil.Store(c.CheckedOutAt), c.KioskID, c.Source); err != nil {
			return fmt.Errorf("mirroring checkout %d: %w", c.ID, err)
		}
	}
	for _, r := range snap.Reservations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reservations (server_id, asset_code, user_card_id, user_name, reserved_for_name,
			 reserved_at, lead_hours, reason, created_by) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.AssetCode, nullText(r.UserCard), nullText(r.UserName), nullText(r.ReservedForName),
			timeutil.Store(r.ReservedAt), r.LeadHours, nullText(r.Reason), nullText(r.CreatedBy)); err != nil {
			return fmt.Errorf("mirroring reservation %d: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Statuses lists active assets with their holder and the reservation in
// force at now, sorted for display.
func (s *Store) Statuses(ctx context.Context, now time.Time) ([]models.AssetStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE active = 1`)
	if err != nil {
		return nil, err
	}
	var assets []models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		assets = append(assets, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	open, err := s.OpenCheckouts(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.AllReservations(ctx)
	if err != nil {
		return nil, err
	}
	return reservation.Statuses(assets, open, all, now), nil
}
