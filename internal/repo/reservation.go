package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crucial707/keykiosk/internal/models"
)

// ========================
// RESERVATION REPOSITORY
// ========================

type ReservationRepo struct {
	DB *sql.DB
}

func NewReservationRepo(db *sql.DB) *ReservationRepo {
	return &ReservationRepo{DB: db}
}

const reservationColumns = `r.id, r.asset_id, a.code, r.user_id, COALESCE(u.card_id, ''),
	COALESCE(u.first_name || ' ' || u.last_name, ''), COALESCE(r.reserved_for_name, ''),
	r.reserved_at, r.lead_hours, COALESCE(r.reason, ''), COALESCE(r.created_by, ''), r.created_at`

const reservationJoins = ` FROM reservations r
	JOIN assets a ON a.id = r.asset_id
	LEFT JOIN users u ON u.id = r.user_id`

func scanReservation(row interface{ Scan(...any) error }) (models.Reservation, error) {
	var res models.Reservation
	var userID sql.NullInt64
	err := row.Scan(&res.ID, &res.AssetID, &res.AssetCode, &userID, &res.UserCard,
		&res.UserName, &res.ReservedForName,
		&res.ReservedAt, &res.LeadHours, &res.Reason, &res.CreatedBy, &res.CreatedAt)
	if userID.Valid {
		id := int(userID.Int64)
		res.UserID = &id
	}
	return res, err
}

// ========================
// CREATE RESERVATION
// ========================

// Create resolves the asset code and optional card, then stores the
// reservation. Unknown identifiers are ErrNotFound.
func (r *ReservationRepo) Create(ctx context.Context, req models.ReservationRequest, createdBy string) (models.Reservation, error) {
	lead := models.DefaultLeadHours
	if req.LeadHours != nil {
		lead = *req.LeadHours
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Reservation{}, err
	}
	defer tx.Rollback()

	asset, err := assetByCode(ctx, tx, req.AssetCode, false)
	if err != nil {
		return models.Reservation{}, err
	}

	var userID any
	if req.UserCardID != "" {
		u, err := userByCard(ctx, tx, req.UserCardID)
		if err != nil {
			return models.Reservation{}, err
		}
		userID = u.ID
	}

	var id int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO reservations (asset_id, user_id, reserved_for_name, reserved_at, lead_hours, reason, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		asset.ID, userID, nullString(req.ReservedForName), req.ReservedAt, lead,
		nullString(req.Reason), nullString(createdBy),
	).Scan(&id)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("inserting reservation: %w", err)
	}

	res, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+reservationJoins+` WHERE r.id = $1`, id))
	if err != nil {
		return models.Reservation{}, err
	}
	return res, tx.Commit()
}

// ========================
// DELETE RESERVATION
// ========================

func (r *ReservationRepo) Delete(ctx context.Context, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ========================
// GET / LIST RESERVATIONS
// ========================

func (r *ReservationRepo) GetByID(ctx context.Context, id int) (models.Reservation, error) {
	res, err := scanReservation(r.DB.QueryRowContext(ctx,
		`SELECT `+reservationColumns+reservationJoins+` WHERE r.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reservation{}, ErrNotFound
	}
	return res, err
}

// List returns every reservation ordered by target instant.
func (r *ReservationRepo) List(ctx context.Context) ([]models.Reservation, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+reservationColumns+reservationJoins+` ORDER BY r.reserved_at, r.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, res)
	}
	return list, rows.Err()
}
