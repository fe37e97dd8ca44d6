package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"match-connect/internal/api/interfaces"
	"match-connect/internal/api/middlewares"
	"match-connect/internal/api/models"
	"match-connect/internal/database"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Helper functions
func getClientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.ClientIP()
}

func createAuditLog(ctx context.Context, services interfaces.Services, action, userID, details, clientIP string) {
	auditLog := &database.AuditLog{
		Action:    action,
		UserID:    userID,
		Details:   details,
		IPAddress: clientIP,
	}

	if err := services.AuditLogRepository().InsertAuditLog(ctx, auditLog); err != nil {
		services.GetLogger().Error("Failed to create audit log: %v", err)
	}
}

func respondError(c *gin.Context, err *models.APIError) {
	c.JSON(err.StatusCode, models.ErrorResponse(err, c.GetString("request_id")))
}

// respondInternal logs err and answers 500 with message
func respondInternal(c *gin.Context, services interfaces.Services, message string, err error) {
	services.GetLogger().WithError(err).Error(message)
	respondError(c, models.Internal(message))
}

// bindingError turns a gin binding failure into a 422 listing the fields
func bindingError(err error) *models.APIError {
	apiErr := models.NewAPIError(models.ErrCodeInvalidRequest, "Invalid request", 422)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apiErr.WithDetails(err.Error())
	}

	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		apiErr.WithField(fe.Field(), fe.Tag())
		names = append(names, fe.Field())
	}
	apiErr.Message = fmt.Sprintf("Invalid value for %s", strings.Join(names, ", "))
	return apiErr
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, models.BadRequest("Invalid "+name))
		return 0, false
	}
	return id, true
}

func currentClaims(c *gin.Context) *interfaces.Claims {
	return middlewares.Claims(c)
}

func userResponse(u *database.User) models.UserResponse {
	return models.UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		CompanyName: u.CompanyName,
		IsActive:    u.IsActive,
		LastLogin:   u.LastLogin,
		CreatedAt:   u.CreatedAt,
	}
}
