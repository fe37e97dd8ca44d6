// Package apiclient is the shared HTTP client of the marketplace backend.
// It attaches the stored access token to every request, refreshes it once
// when the backend rejects it and replays the rejected requests.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"match-connect/internal/metrics"
	"match-connect/internal/navigation"
	"match-connect/internal/tokenstore"
	"match-connect/pkg/config"
	"match-connect/pkg/logger"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultLoginRoute = "/auth?type=login"
	defaultAuthPrefix = "/auth"
	refreshPath       = "/auth/token/refresh"
)

// Client is a configured backend client. Construct one per session; it
// carries its own refresh state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	plain      *http.Client
	store      tokenstore.Store
	nav        navigation.Navigator
	loginRoute string
	authPrefix string
	log        *logger.Logger
	metrics    *metrics.Metrics

	coordinator *Coordinator

	hooksMu sync.RWMutex
	hooks   []func(error)
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient uses hc's transport and timeout for backend calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		copied := *hc
		c.plain = &copied
	}
}

// WithTimeout bounds every backend call including the refresh
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.plain.Timeout = d }
}

// WithNavigator sets where the client redirects when the session is lost
func WithNavigator(nav navigation.Navigator) Option {
	return func(c *Client) { c.nav = nav }
}

// WithLoginRoute sets the login route and the prefix of routes that are
// already unauthenticated entry points
func WithLoginRoute(route, authPrefix string) Option {
	return func(c *Client) {
		c.loginRoute = route
		c.authPrefix = authPrefix
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the backend at baseURL backed by store
func New(baseURL string, store tokenstore.Store, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		plain:      &http.Client{Timeout: defaultTimeout},
		store:      store,
		loginRoute: defaultLoginRoute,
		authPrefix: defaultAuthPrefix,
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("apiclient")

	c.coordinator = NewCoordinator(store, c.refreshTokens, c.sessionLost, c.log, c.metrics)
	c.httpClient = &http.Client{
		Timeout:       c.plain.Timeout,
		CheckRedirect: c.plain.CheckRedirect,
		Jar:           c.plain.Jar,
		Transport: &Transport{
			Base:           c.plain.Transport,
			Authenticator:  NewAuthenticator(store),
			Coordinator:    c.coordinator,
			Metrics:        c.metrics,
			OnUnauthorized: c.clearSession,
		},
	}

	return c, nil
}

// NewFromConfig creates a client from the backend and session sections
func NewFromConfig(cfg *config.Config, store tokenstore.Store, nav navigation.Navigator, log *logger.Logger, m *metrics.Metrics) (*Client, error) {
	return New(cfg.Backend.BaseURL, store,
		WithTimeout(cfg.Backend.Timeout),
		WithNavigator(nav),
		WithLoginRoute(cfg.Session.LoginRoute, cfg.Session.AuthPrefix),
		WithLogger(log),
		WithMetrics(m),
	)
}

// HTTPClient returns the authenticating http.Client
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *Client) Store() tokenstore.Store {
	return c.store
}

func (c *Client) Navigator() navigation.Navigator {
	return c.nav
}

// Coordinator exposes the refresh state of this client
func (c *Client) Coordinator() *Coordinator {
	return c.coordinator
}

// LoginRoute returns the route users are sent to when the session ends
func (c *Client) LoginRoute() (route, authPrefix string) {
	return c.loginRoute, c.authPrefix
}

// OnSessionLost registers fn to run after the client cleared the session
// because it could not be recovered
func (c *Client) OnSessionLost(fn func(error)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *Client) clearSession(ctx context.Context, cause error) {
	if err := c.store.Clear(ctx); err != nil {
		c.log.WithError(err).Error("Failed to clear session")
	}
	c.sessionLost(ctx, cause)
}

// sessionLost runs after the store was cleared. It notifies hooks and
// redirects to login.
func (c *Client) sessionLost(ctx context.Context, cause error) {
	c.metrics.RecordSessionLost(sessionLostReason(cause))
	c.log.SessionLogger("session_lost", "", cause.Error())

	c.hooksMu.RLock()
	hooks := make([]func(error), len(c.hooks))
	copy(hooks, c.hooks)
	c.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(cause)
	}

	navigation.RedirectToLogin(c.nav, c.loginRoute, c.authPrefix)
}

func sessionLostReason(err error) string {
	switch {
	case errors.Is(err, ErrNoRefreshToken):
		return "no_refresh_token"
	case errors.Is(err, ErrUnauthorizedAfterRefresh):
		return "unauthorized_after_refresh"
	default:
		return "refresh_failed"
	}
}

// URL resolves a path against the base URL
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// NewRequest builds a request for path relative to the base URL
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do sends req through the authenticating transport
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// DoJSON sends req and decodes a success body into out. Error responses
// become *APIError carrying the backend's detail message.
func (c *Client) DoJSON(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.Do(req)
	if err != nil {
		c.log.Debug("Request failed", "method", req.Method, "path", req.URL.Path, "error", err.Error())
		return err
	}
	defer resp.Body.Close()
	c.log.PerformanceLogger(req.Method+" "+req.URL.Path, time.Since(start), resp.StatusCode < 400)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(resp.StatusCode, body)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetJSON issues a GET and decodes the response into out
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.DoJSON(req, out)
}

// PostJSON issues a POST with in encoded as JSON
func (c *Client) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPost, path, in, out)
}

// PutJSON issues a PUT with in encoded as JSON
func (c *Client) PutJSON(ctx context.Context, path string, in, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPut, path, in, out)
}

// Delete issues a DELETE
func (c *Client) Delete(ctx context.Context, path string) error {
	req, err := c.NewRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return c.DoJSON(req, nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := c.NewRequest(ctx, method, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.DoJSON(req, out)
}
