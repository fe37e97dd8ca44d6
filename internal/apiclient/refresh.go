package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"match-connect/internal/tokenstore"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// TokenResponse is the token pair returned by the login and refresh endpoints
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// refreshTokens calls the refresh endpoint directly, outside the
// authenticating transport
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (tokenstore.Pair, error) {
	payload, err := json.Marshal(refreshRequest{Refresh: refreshToken})
	if err != nil {
		return tokenstore.Pair{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(refreshPath), bytes.NewReader(payload))
	if err != nil {
		return tokenstore.Pair{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Info("Refreshing access token")
	resp, err := c.plain.Do(req)
	if err != nil {
		return tokenstore.Pair{}, &RefreshError{Kind: ErrRefreshUnavailable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return tokenstore.Pair{}, &RefreshError{Kind: ErrRefreshUnavailable, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := ErrRefreshRejected
		if resp.StatusCode >= 500 {
			kind = ErrRefreshUnavailable
		}
		return tokenstore.Pair{}, &RefreshError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Detail:     parseDetail(resp.StatusCode, body),
		}
	}

	var tokens TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return tokenstore.Pair{}, &RefreshError{Kind: ErrRefreshRejected, StatusCode: resp.StatusCode, Detail: "malformed refresh response", Err: err}
	}
	if tokens.AccessToken == "" {
		return tokenstore.Pair{}, &RefreshError{Kind: ErrRefreshRejected, StatusCode: resp.StatusCode, Detail: "access token not received"}
	}

	return tokenstore.Pair{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}
