package models

import "time"

// BaseResponse represents the base API response structure. Error responses
// repeat the message in Detail, the field HTTP clients of the marketplace read.
type BaseResponse struct {
	Success   bool        `json:"success" example:"true"`
	Message   string      `json:"message,omitempty" example:"Operation completed successfully"`
	Data      interface{} `json:"data,omitempty"`
	Detail    string      `json:"detail,omitempty" example:"Job posting not found"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp" example:"1640995200"`
	RequestID string      `json:"request_id,omitempty" example:"4f1c2a9e-5d6b-4c1e-9a53-1f2e3d4c5b6a"`
}

// ErrorInfo represents error information
type ErrorInfo struct {
	Code    string            `json:"code" example:"INVALID_REQUEST"`
	Message string            `json:"message" example:"Invalid request parameters"`
	Details string            `json:"details,omitempty" example:"Field 'title' is required"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse builds the envelope for err
func ErrorResponse(err *APIError, requestID string) BaseResponse {
	return BaseResponse{
		Success: false,
		Detail:  err.Message,
		Error: &ErrorInfo{
			Code:    err.Code,
			Message: err.Message,
			Details: err.Details,
			Fields:  err.Fields,
		},
		Timestamp: time.Now().Unix(),
		RequestID: requestID,
	}
}

// TokenResponse is returned by the login and refresh endpoints
type TokenResponse struct {
	AccessToken  string `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	RefreshToken string `json:"refresh_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	TokenType    string `json:"token_type" example:"bearer"`
	ExpiresIn    int64  `json:"expires_in" example:"900"`
}

// UserResponse represents user information
type UserResponse struct {
	ID          int64      `json:"id" example:"7"`
	Email       string     `json:"email" example:"ada@example.com"`
	FirstName   string     `json:"first_name" example:"Ada"`
	LastName    string     `json:"last_name" example:"Lovelace"`
	Role        string     `json:"role" example:"recruiter"`
	CompanyName string     `json:"company_name,omitempty" example:"Analytical Engines"`
	IsActive    bool       `json:"is_active" example:"true"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AuditLogPage is one page of audit entries
type AuditLogPage struct {
	Logs     interface{}    `json:"logs"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
	Count    int            `json:"count"`
	ByAction map[string]int `json:"by_action,omitempty"`
}

// HealthCheckResponse represents health check response
type HealthCheckResponse struct {
	Status    string                 `json:"status" example:"healthy"`
	Timestamp int64                  `json:"timestamp" example:"1640995200"`
	Version   string                 `json:"version" example:"1.0.0"`
	Uptime    int64                  `json:"uptime" example:"86400"`
	Checks    map[string]HealthCheck `json:"checks"`
}

// HealthCheck represents individual health check
type HealthCheck struct {
	Status  string `json:"status" example:"healthy"`
	Message string `json:"message,omitempty" example:"Service is running normally"`
	Latency string `json:"latency,omitempty" example:"5ms"`
}
