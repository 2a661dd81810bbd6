package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crucial707/keykiosk/internal/models"
)

// ========================
// REPOSITORY STRUCT
// ========================

type AssetRepo struct {
	DB *sql.DB
}

func NewAssetRepo(db *sql.DB) *AssetRepo {
	return &AssetRepo{DB: db}
}

const assetColumns = `id, code, name, category, location, active, registered_at`

func scanAsset(row interface{ Scan(...any) error }) (models.Asset, error) {
	var a models.Asset
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Category, &a.Location, &a.Active, &a.RegisteredAt)
	return a, err
}

// ========================
// CREATE ASSET
// ========================

func (r *AssetRepo) Create(ctx context.Context, code string, d models.AssetDetails) (models.Asset, error) {
	return createAsset(ctx, r.DB, code, d)
}

func createAsset(ctx context.Context, q querier, code string, d models.AssetDetails) (models.Asset, error) {
	d = d.Normalize()
	a, err := scanAsset(q.QueryRowContext(ctx,
		`INSERT INTO assets (code, name, category, location)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+assetColumns,
		code, d.Name, d.Category, d.Location,
	))
	if isUniqueViolation(err) {
		return models.Asset{}, ErrConflict
	}
	if err != nil {
		return models.Asset{}, fmt.Errorf("creating asset: %w", err)
	}
	return a, nil
}

// ========================
// GET ASSET
// ========================

func (r *AssetRepo) GetByID(ctx context.Context, id int) (models.Asset, error) {
	a, err := scanAsset(r.DB.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, ErrNotFound
	}
	return a, err
}

// GetByCode matches the scanned code case-insensitively.
func (r *AssetRepo) GetByCode(ctx context.Context, code string) (models.Asset, error) {
	return assetByCode(ctx, r.DB, code, false)
}

func assetByCode(ctx context.Context, q querier, code string, forUpdate bool) (models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE LOWER(code) = LOWER($1)`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanAsset(q.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, ErrNotFound
	}
	if err != nil {
		return models.Asset{}, fmt.Errorf("getting asset %q: %w", code, err)
	}
	return a, nil
}

// ========================
// ACTIVATE / DEACTIVATE
// ========================

// SetActive flips the active flag. Assets are never hard-deleted.
func (r *AssetRepo) SetActive(ctx context.Context, id int, active bool) (models.Asset, error) {
	a, err := scanAsset(r.DB.QueryRowContext(ctx,
		`UPDATE assets SET active = $1 WHERE id = $2 RETURNING `+assetColumns,
		active, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, ErrNotFound
	}
	return a, err
}

// ========================
// UPDATE DETAILS
// ========================

// UpdateDetails renames an asset and moves it between categories and
// locations. Empty category or location fall back to the defaults.
func (r *AssetRepo) UpdateDetails(ctx context.Context, id int, d models.AssetDetails) (models.Asset, error) {
	d = d.Normalize()
	a, err := scanAsset(r.DB.QueryRowContext(ctx,
		`UPDATE assets SET name = $1, category = $2, location = $3 WHERE id = $4 RETURNING `+assetColumns,
		d.Name, d.Category, d.Location, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, ErrNotFound
	}
	return a, err
}

// ========================
// REPLACE CODE
// ========================

// ReplaceCode assigns a new external code, keeping the asset's history.
func (r *AssetRepo) ReplaceCode(ctx context.Context, id int, code string) (models.Asset, error) {
	a, err := scanAsset(r.DB.QueryRowContext(ctx,
		`UPDATE assets SET code = $1 WHERE id = $2 RETURNING `+assetColumns,
		code, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return models.Asset{}, ErrConflict
	}
	return a, err
}

// ========================
// LIST ASSETS
// ========================

func (r *AssetRepo) List(ctx context.Context, includeInactive bool) ([]models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets`
	if !includeInactive {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY category, name`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}
