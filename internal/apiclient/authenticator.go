package apiclient

import (
	"fmt"
	"net/http"
	"strings"

	"match-connect/internal/tokenstore"
)

const bearerPrefix = "Bearer "

// Authenticator attaches the stored access token to outgoing requests
type Authenticator struct {
	store tokenstore.Store
}

func NewAuthenticator(store tokenstore.Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate returns the request to send and the access token it carries.
// A request with an explicit Authorization header is left untouched. The
// stored token is read on every call, never cached.
func (a *Authenticator) Authenticate(req *http.Request) (*http.Request, string, error) {
	if header := req.Header.Get("Authorization"); header != "" {
		return req, bearerToken(header), nil
	}

	pair, err := a.store.Get(req.Context())
	if err != nil {
		return nil, "", fmt.Errorf("failed to read access token: %w", err)
	}
	if pair.AccessToken == "" {
		return req, "", nil
	}

	return withBearer(req, pair.AccessToken), pair.AccessToken, nil
}

// withBearer returns a shallow clone of req carrying token
func withBearer(req *http.Request, token string) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", bearerPrefix+token)
	return clone
}

func bearerToken(header string) string {
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return header[len(bearerPrefix):]
	}
	return ""
}
