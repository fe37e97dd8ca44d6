package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"match-connect/internal/api/interfaces"
	"match-connect/internal/api/models"
	"match-connect/internal/database"
	"match-connect/internal/database/repositories"

	"github.com/gin-gonic/gin"
)

func tokenResponse(pair *interfaces.TokenPair) models.TokenResponse {
	return models.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
	}
}

// Login exchanges the password form for a token pair
func Login(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form models.LoginForm
		if err := c.ShouldBind(&form); err != nil {
			respondError(c, bindingError(err))
			return
		}

		clientIP := getClientIP(c)
		user, err := services.AuthService().Authenticate(c.Request.Context(), form.Username, form.Password)
		if errors.Is(err, interfaces.ErrInvalidCredentials) {
			services.GetLogger().SecurityLogger("login_failed", form.Username, "ip: "+clientIP)
			createAuditLog(c.Request.Context(), services, "login_failed", form.Username, "invalid credentials", clientIP)
			c.Header("WWW-Authenticate", "Bearer")
			respondError(c, models.Unauthorized(models.ErrCodeInvalidCredentials, "Incorrect email or password"))
			return
		}
		if err != nil {
			respondInternal(c, services, "Failed to authenticate", err)
			return
		}

		pair, err := services.AuthService().IssueTokens(user)
		if err != nil {
			respondInternal(c, services, "Failed to issue tokens", err)
			return
		}

		userID := strconv.FormatInt(user.ID, 10)
		createAuditLog(c.Request.Context(), services, "login_succeeded", userID, user.Email, clientIP)
		c.JSON(http.StatusOK, tokenResponse(pair))
	}
}

// RefreshToken rotates a refresh token. Each refresh token works once.
func RefreshToken(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindingError(err))
			return
		}

		pair, user, err := services.AuthService().RotateRefreshToken(c.Request.Context(), req.Refresh)
		switch {
		case errors.Is(err, interfaces.ErrTokenRevoked):
			createAuditLog(c.Request.Context(), services, "refresh_reused", "", "revoked refresh token presented", getClientIP(c))
			respondError(c, models.Unauthorized(models.ErrCodeTokenRevoked, "Refresh token has been revoked"))
			return
		case errors.Is(err, interfaces.ErrInvalidToken):
			respondError(c, models.Unauthorized(models.ErrCodeInvalidToken, "Invalid refresh token"))
			return
		case err != nil:
			respondInternal(c, services, "Failed to refresh token", err)
			return
		}

		services.GetLogger().Debug("Refresh token rotated", "user_id", user.ID)
		c.JSON(http.StatusOK, tokenResponse(pair))
	}
}

// Register creates a candidate or recruiter account
func Register(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindingError(err))
			return
		}

		ctx := c.Request.Context()
		email := strings.ToLower(strings.TrimSpace(req.Email))

		_, err := services.UserRepository().GetByEmail(ctx, email)
		if err == nil {
			respondError(c, models.NewAPIError(models.ErrCodeAccountExists, "Email already registered", http.StatusConflict))
			return
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			respondInternal(c, services, "Failed to register user", err)
			return
		}

		hash, err := services.AuthService().HashPassword(req.Password)
		if err != nil {
			respondInternal(c, services, "Failed to register user", err)
			return
		}

		user := &database.User{
			Email:        email,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         req.Role,
			CompanyName:  req.CompanyName,
		}
		if err := services.UserRepository().Create(ctx, user); err != nil {
			respondInternal(c, services, "Failed to register user", err)
			return
		}

		userID := strconv.FormatInt(user.ID, 10)
		services.GetLogger().AuditLogger("user_registered", userID, "users", user.Role)
		createAuditLog(ctx, services, "user_registered", userID, user.Email, getClientIP(c))

		stored, err := services.UserRepository().GetByID(ctx, user.ID)
		if err != nil {
			respondInternal(c, services, "Failed to load user", err)
			return
		}
		c.JSON(http.StatusCreated, userResponse(stored))
	}
}

// GetCurrentUser returns the profile of the token's bearer
func GetCurrentUser(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := currentClaims(c)

		user, err := services.UserRepository().GetByID(c.Request.Context(), claims.UserID)
		if errors.Is(err, repositories.ErrNotFound) || (err == nil && !user.IsActive) {
			respondError(c, models.Unauthorized(models.ErrCodeInvalidToken, "User not found or inactive"))
			return
		}
		if err != nil {
			respondInternal(c, services, "Failed to load user", err)
			return
		}

		c.JSON(http.StatusOK, userResponse(user))
	}
}
