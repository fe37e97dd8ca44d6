package interfaces

import (
	"context"
	"errors"
	"time"

	"match-connect/internal/database"
)

// Token types carried in the typ claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims represents validated JWT token claims
type Claims struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	TokenType string    `json:"token_type"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenPair is a freshly issued access and refresh token
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type AuthServiceInterface interface {
	// ValidateToken verifies an access token
	ValidateToken(token string) (*Claims, error)
	// Authenticate checks credentials and returns the active user
	Authenticate(ctx context.Context, email, password string) (*database.User, error)
	// IssueTokens signs a new pair for user
	IssueTokens(user *database.User) (*TokenPair, error)
	// RotateRefreshToken revokes refresh and issues a new pair. A refresh
	// token is accepted only once.
	RotateRefreshToken(ctx context.Context, refresh string) (*TokenPair, *database.User, error)
	// HashPassword hashes a password for storage
	HashPassword(password string) (string, error)
}

// Errors returned by the auth service
var (
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInvalidToken       = errors.New("could not validate credentials")
	ErrTokenRevoked       = errors.New("refresh token has already been used")
)
