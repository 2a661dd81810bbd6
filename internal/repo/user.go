package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crucial707/keykiosk/internal/models"
)

// ==========================
// UserRepo
// ==========================
type UserRepo struct {
	DB *sql.DB
}

// ==========================
// Constructor
// ==========================
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

const userColumns = `id, card_id, first_name, last_name, active, registered_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CardID, &u.FirstName, &u.LastName, &u.Active, &u.RegisteredAt)
	return u, err
}

// ==========================
// Create User
// ==========================
func (r *UserRepo) Create(ctx context.Context, cardID string, d models.UserDetails) (models.User, error) {
	return createUser(ctx, r.DB, cardID, d)
}

func createUser(ctx context.Context, q querier, cardID string, d models.UserDetails) (models.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`INSERT INTO users (card_id, first_name, last_name)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		cardID, d.FirstName, d.LastName,
	))
	if isUniqueViolation(err) {
		return models.User{}, ErrConflict
	}
	if err != nil {
		return models.User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// ==========================
// Get By ID
// ==========================
func (r *UserRepo) GetByID(ctx context.Context, id int) (models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

// ==========================
// Get By Card
// ==========================
func (r *UserRepo) GetByCard(ctx context.Context, cardID string) (models.User, error) {
	return userByCard(ctx, r.DB, cardID)
}

func userByCard(ctx context.Context, q querier, cardID string) (models.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(card_id) = LOWER($1)`, cardID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("getting user %q: %w", cardID, err)
	}
	return u, nil
}

// findOrCreateUser resolves a card, registering it when names are supplied.
func findOrCreateUser(ctx context.Context, q querier, cardID, first, last string) (models.User, error) {
	u, err := userByCard(ctx, q, cardID)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return u, err
	}
	if first == "" && last == "" {
		return models.User{}, fmt.Errorf("user %q: %w", cardID, ErrNotFound)
	}
	return createUser(ctx, q, cardID, models.UserDetails{FirstName: first, LastName: last})
}

// ==========================
// Activate / Deactivate
// ==========================
func (r *UserRepo) SetActive(ctx context.Context, id int, active bool) (models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`UPDATE users SET active = $1 WHERE id = $2 RETURNING `+userColumns,
		active, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

// ==========================
// Update Name
// ==========================
func (r *UserRepo) UpdateName(ctx context.Context, id int, d models.UserDetails) (models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`UPDATE users SET first_name = $1, last_name = $2 WHERE id = $3 RETURNING `+userColumns,
		d.FirstName, d.LastName, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

// ==========================
// Replace Card
// ==========================
func (r *UserRepo) ReplaceCard(ctx context.Context, id int, cardID string) (models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`UPDATE users SET card_id = $1 WHERE id = $2 RETURNING `+userColumns,
		cardID, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return models.User{}, ErrConflict
	}
	return u, err
}

// ==========================
// List Users
// ==========================
func (r *UserRepo) List(ctx context.Context, includeInactive bool) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if !includeInactive {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY last_name, first_name`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}
