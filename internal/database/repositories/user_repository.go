package repositories

import (
	"context"
	"database/sql"
	"errors"

	"match-connect/internal/database"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("record not found")

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, role,
               company_name, is_active, last_login, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user *database.User) error {
	query := `
        INSERT INTO users (email, password_hash, first_name, last_name, role, company_name)
        VALUES (?, ?, ?, ?, ?, ?)
    `
	id, err := r.db.InsertReturningID(ctx, query, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Role, user.CompanyName)
	if err != nil {
		return err
	}

	user.ID = id
	user.IsActive = true
	return nil
}

// GetByEmail retrieves an active user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*database.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ? AND is_active = true`)
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*database.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID int64) error {
	query := r.db.Rebind(`
        UPDATE users
        SET last_login = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
        WHERE id = ?
    `)
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// DeactivateUser deactivates a user
func (r *UserRepository) DeactivateUser(ctx context.Context, userID int64) error {
	query := r.db.Rebind(`UPDATE users SET is_active = false, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

func (r *UserRepository) scanOne(row *sql.Row) (*database.User, error) {
	var user database.User
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.Role, &user.CompanyName, &user.IsActive, &user.LastLogin,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}
