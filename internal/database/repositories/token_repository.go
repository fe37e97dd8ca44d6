package repositories

import (
	"context"
	"time"

	"match-connect/internal/database"
)

// RevokedTokenRepository remembers rotated refresh tokens so they cannot be
// exchanged twice.
type RevokedTokenRepository struct {
	db *database.DB
}

func NewRevokedTokenRepository(db *database.DB) *RevokedTokenRepository {
	return &RevokedTokenRepository{db: db}
}

// Revoke marks a token id as used. Revoking twice returns revoked=false
// for the second caller.
func (r *RevokedTokenRepository) Revoke(ctx context.Context, jti string, userID int64, expiresAt time.Time) (bool, error) {
	query := r.db.Rebind(`
        INSERT INTO revoked_tokens (jti, user_id, expires_at)
        VALUES (?, ?, ?)
        ON CONFLICT (jti) DO NOTHING
    `)
	result, err := r.db.ExecContext(ctx, query, jti, userID, expiresAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PurgeExpired deletes entries whose token would be rejected anyway
func (r *RevokedTokenRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := r.db.Rebind(`DELETE FROM revoked_tokens WHERE expires_at < ?`)
	result, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
