package middlewares

import (
	"errors"
	"strconv"
	"strings"

	"match-connect/internal/api/interfaces"
	"match-connect/internal/api/models"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key of the validated *interfaces.Claims
const ClaimsKey = "claims"

// AuthRequired middleware validates bearer access tokens
func AuthRequired(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abort(c, models.Unauthorized(models.ErrCodeUnauthorized, "Not authenticated"))
			return
		}

		claims, err := services.AuthService().ValidateToken(token)
		if err != nil {
			code := models.ErrCodeInvalidToken
			if strings.Contains(err.Error(), "expired") {
				code = models.ErrCodeTokenExpired
			}
			apiErr := models.Unauthorized(code, "Could not validate credentials")
			if !errors.Is(err, interfaces.ErrInvalidToken) {
				apiErr = apiErr.WithDetails(err.Error())
			}
			c.Header("WWW-Authenticate", "Bearer")
			abort(c, apiErr)
			return
		}

		// Set user context from validated claims
		c.Set(ClaimsKey, claims)
		c.Set("user_id", strconv.FormatInt(claims.UserID, 10))
		c.Set("user_role", claims.Role)

		c.Next()
	}
}

// RoleRequired middleware lets only the given roles through. It must run
// after AuthRequired.
func RoleRequired(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("user_role")
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		abort(c, models.Forbidden("Requires role: "+strings.Join(roles, " or ")))
	}
}

// AdminRequired middleware ensures user has admin role
func AdminRequired() gin.HandlerFunc {
	return RoleRequired("admin")
}

// Claims returns the validated claims of the request
func Claims(c *gin.Context) *interfaces.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*interfaces.Claims); ok {
			return claims
		}
	}
	return nil
}

// extractToken extracts JWT token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func abort(c *gin.Context, err *models.APIError) {
	c.AbortWithStatusJSON(err.StatusCode, models.ErrorResponse(err, c.GetString("request_id")))
}
