package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what the access token claims about its bearer. It is decoded
// without verifying the signature and is only good for routing decisions.
type Identity struct {
	Subject   string
	Email     string
	Role      string
	FirstName string
	LastName  string
	ExpiresAt time.Time
}

type identityClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	jwt.RegisteredClaims
}

// DecodeIdentity reads the claims of token. It returns nil when the token is
// malformed, carries no expiry or is expired at now.
func DecodeIdentity(token string, now time.Time) *Identity {
	if token == "" {
		return nil
	}

	var claims identityClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}

	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(now) {
		return nil
	}

	return &Identity{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		ExpiresAt: claims.ExpiresAt.Time,
	}
}
