package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// User is the profile returned by GET /users/me
type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `json:"role"`
	CompanyName string `json:"company_name,omitempty"`
}

// RegisterRequest is the sign-up payload
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Role        string `json:"role" validate:"required,oneof=candidate recruiter"`
	CompanyName string `json:"company_name,omitempty" validate:"required_if=Role recruiter"`
}

// Login exchanges credentials for a token pair. It does not touch the
// store; pass the result to the session controller.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("both email and password are required")
	}

	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := c.NewRequest(WithoutRefresh(ctx), http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokens TokenResponse
	if err := c.DoJSON(req, &tokens); err != nil {
		c.log.SecurityLogger("login_failed", email, err.Error())
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("login failed: access token not received from server")
	}
	return &tokens, nil
}

// Register creates an account
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*User, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid registration: %w", err)
	}

	var user User
	if err := c.PostJSON(WithoutRefresh(ctx), "/auth/register", in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me fetches the current user. A non-empty token is sent explicitly instead
// of the stored one.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", bearerPrefix+token)
	}

	var user User
	if err := c.DoJSON(req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
