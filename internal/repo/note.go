package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/crucial707/keykiosk/internal/models"
)

// ========================
// NOTE REPOSITORY
// ========================

type NoteRepo struct {
	DB *sql.DB
}

func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{DB: db}
}

const noteColumns = `asset_id, note, updated_by, updated_at`

func scanNote(row interface{ Scan(...any) error }) (models.Note, error) {
	var n models.Note
	err := row.Scan(&n.AssetID, &n.Note, &n.UpdatedBy, &n.UpdatedAt)
	return n, err
}

// Set replaces the asset's note. An unknown asset is ErrNotFound.
func (r *NoteRepo) Set(ctx context.Context, assetID int, note, by string) (models.Note, error) {
	n, err := scanNote(r.DB.QueryRowContext(ctx,
		`INSERT INTO asset_notes (asset_id, note, updated_by)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (asset_id) DO UPDATE
		 SET note = EXCLUDED.note, updated_by = EXCLUDED.updated_by, updated_at = NOW()
		 RETURNING `+noteColumns,
		assetID, note, by,
	))
	if isForeignKeyViolation(err) {
		return models.Note{}, ErrNotFound
	}
	if err != nil {
		return models.Note{}, fmt.Errorf("setting note on asset %d: %w", assetID, err)
	}
	return n, nil
}

// Delete clears the asset's note. Clearing a missing note is ErrNotFound.
func (r *NoteRepo) Delete(ctx context.Context, assetID int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM asset_notes WHERE asset_id = $1`, assetID)
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

// ByAsset returns every note keyed by asset id.
func (r *NoteRepo) ByAsset(ctx context.Context) (map[int]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+noteColumns+` FROM asset_notes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make(map[int]string)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes[n.AssetID] = n.Note
	}
	return notes, rows.Err()
}
