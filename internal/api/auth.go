package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"match-connect/internal/api/interfaces"
	"match-connect/internal/database"
	"match-connect/internal/database/repositories"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// tokenClaims is the JWT payload of both token types
type tokenClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// HashPassword implements the AuthServiceInterface
func (s *Services) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate implements the AuthServiceInterface
func (s *Services) Authenticate(ctx context.Context, email, password string) (*database.User, error) {
	user, err := s.userRepository.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, interfaces.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, interfaces.ErrInvalidCredentials
	}

	if err := s.userRepository.UpdateLastLogin(ctx, user.ID); err != nil {
		s.Logger.Warning("Failed to update last login: %v", err)
	}
	return user, nil
}

// IssueTokens implements the AuthServiceInterface
func (s *Services) IssueTokens(user *database.User) (*interfaces.TokenPair, error) {
	now := time.Now()
	accessTTL := s.Config.Security.AccessTokenTTL
	refreshTTL := s.Config.Security.RefreshTokenTTL

	access, err := s.signToken(user, interfaces.TokenTypeAccess, now, accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signToken(user, interfaces.TokenTypeRefresh, now, refreshTTL)
	if err != nil {
		return nil, err
	}

	return &interfaces.TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: accessTTL}, nil
}

func (s *Services) signToken(user *database.User, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	secret := s.Config.Security.JWTSecret
	if secret == "" {
		return "", errors.New("JWT secret key not configured")
	}

	claims := tokenClaims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	// The refresh token only identifies the account; profile claims travel
	// with the access token.
	if tokenType == interfaces.TokenTypeAccess {
		claims.Email = user.Email
		claims.Role = user.Role
		claims.FirstName = user.FirstName
		claims.LastName = user.LastName
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken implements the AuthServiceInterface
func (s *Services) ValidateToken(token string) (*interfaces.Claims, error) {
	claims, err := s.parseToken(token, interfaces.TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RotateRefreshToken implements the AuthServiceInterface
func (s *Services) RotateRefreshToken(ctx context.Context, refresh string) (*interfaces.TokenPair, *database.User, error) {
	claims, err := s.parseToken(refresh, interfaces.TokenTypeRefresh)
	if err != nil {
		return nil, nil, err
	}

	first, err := s.revokedTokens.Revoke(ctx, claims.TokenID, claims.UserID, claims.ExpiresAt)
	if err != nil {
		return nil, nil, err
	}
	if !first {
		s.Logger.SecurityLogger("refresh_token_reused", strconv.FormatInt(claims.UserID, 10), claims.TokenID)
		return nil, nil, interfaces.ErrTokenRevoked
	}

	user, err := s.userRepository.GetByID(ctx, claims.UserID)
	if errors.Is(err, repositories.ErrNotFound) || (err == nil && !user.IsActive) {
		return nil, nil, interfaces.ErrInvalidToken
	}
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.IssueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// parseToken verifies signature, expiry and token type
func (s *Services) parseToken(token, wantType string) (*interfaces.Claims, error) {
	token = strings.TrimPrefix(token, "Bearer ")

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		secretKey := s.Config.Security.JWTSecret
		if secretKey == "" {
			return nil, errors.New("JWT secret key not configured")
		}
		return []byte(secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		s.Logger.Debug("Token parsing failed: %v", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, interfaces.ErrInvalidToken
	}

	if claims.Type != wantType {
		return nil, fmt.Errorf("%w: expected %s token", interfaces.ErrInvalidToken, wantType)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", interfaces.ErrInvalidToken)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing token id", interfaces.ErrInvalidToken)
	}

	return &interfaces.Claims{
		UserID:    userID,
		Email:     claims.Email,
		Role:      claims.Role,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		TokenType: claims.Type,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
