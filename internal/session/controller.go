// Package session owns the signed-in user of a client and keeps it in step
// with the token store, including changes made by other processes.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"match-connect/internal/apiclient"
	"match-connect/internal/navigation"
	"match-connect/internal/tokenstore"
	"match-connect/pkg/logger"
)

// State is the published view of the session
type State struct {
	IsAuthenticated bool
	User            *apiclient.User
	Role            string
	IsLoading       bool
}

// Controller exposes login and logout and republishes the session whenever
// the stored tokens change.
type Controller struct {
	client     *apiclient.Client
	store      tokenstore.Store
	nav        navigation.Navigator
	loginRoute string
	authPrefix string
	log        *logger.Logger
	now        func() time.Time

	mu        sync.RWMutex
	user      *apiclient.User
	loading   bool
	observers map[int]func(State)
	nextID    int

	// serializes Init so overlapping storage events resolve in order
	initMu sync.Mutex
	// held from a state change until every observer has seen it, so
	// observers receive states in the order they were set
	notifyMu sync.Mutex
}

// NewController creates a controller on top of client. The state is loading
// until the first Init completes.
func NewController(client *apiclient.Client, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNop()
	}
	loginRoute, authPrefix := client.LoginRoute()

	c := &Controller{
		client:     client,
		store:      client.Store(),
		nav:        client.Navigator(),
		loginRoute: loginRoute,
		authPrefix: authPrefix,
		log:        log.WithComponent("session"),
		now:        time.Now,
		loading:    true,
		observers:  make(map[int]func(State)),
	}

	client.OnSessionLost(func(err error) {
		c.log.SessionLogger("session_lost", c.subject(), err.Error())
		c.setUser(nil)
	})

	return c
}

// State returns the current session state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{IsLoading: c.loading}
	if c.user != nil {
		user := *c.user
		s.IsAuthenticated = true
		s.User = &user
		s.Role = user.Role
	}
	return s
}

// Observe registers fn to receive every state change, in order. fn must not
// call Login, Logout or Init. The returned func unregisters it.
func (c *Controller) Observe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Identity decodes the stored access token
func (c *Controller) Identity(ctx context.Context) *Identity {
	pair, err := c.store.Get(ctx)
	if err != nil {
		return nil
	}
	return DecodeIdentity(pair.AccessToken, c.now())
}

// Login stores the tokens and loads the user they belong to. If the profile
// cannot be fetched the session is logged out and the error returned.
func (c *Controller) Login(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return fmt.Errorf("access token is required")
	}
	if err := c.store.Set(ctx, accessToken, refreshToken); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}

	if err := c.loadUser(ctx, accessToken); err != nil {
		c.log.WithError(err).Error("Tokens stored but user details could not be fetched, logging out")
		c.Logout(ctx)
		return fmt.Errorf("failed to fetch user details: %w", err)
	}

	c.log.SessionLogger("login", c.subject(), "")
	return nil
}

// SignIn logs in with credentials and navigates to the landing route of the
// user's role
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	tokens, err := c.client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := c.Login(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil {
		return err
	}

	role := c.State().Role
	if role == "" {
		if id := DecodeIdentity(tokens.AccessToken, c.now()); id != nil {
			role = id.Role
		}
	}
	if c.nav != nil {
		c.nav.Navigate(LandingRoute(role))
	}
	return nil
}

// Logout clears the stored session and redirects to login unless already on
// an auth route
func (c *Controller) Logout(ctx context.Context) {
	subject := c.subject()
	if err := c.store.Clear(ctx); err != nil {
		c.log.WithError(err).Error("Failed to clear session")
	}
	c.setUser(nil)
	c.log.SessionLogger("logout", subject, "")

	navigation.RedirectToLogin(c.nav, c.loginRoute, c.authPrefix)
}

// Init revalidates the stored access token against the backend. While it
// runs the state reports IsLoading. It returns an error only when the store
// cannot be read.
func (c *Controller) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.setLoading(true)
	defer c.setLoading(false)

	pair, err := c.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	if pair.AccessToken == "" {
		c.setUser(nil)
		if err := c.store.SetUser(ctx, nil); err != nil {
			c.log.WithError(err).Warning("Failed to remove cached user")
		}
		return nil
	}

	if err := c.loadUser(ctx, pair.AccessToken); err != nil {
		c.log.WithError(err).Warning("Stored token could not be verified, logging out")
		c.Logout(ctx)
	}
	return nil
}

// Watch re-runs Init whenever a session key changes, until ctx is done or
// events is closed. Bursts of events collapse into one Init.
func (c *Controller) Watch(ctx context.Context, events <-chan tokenstore.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !ev.IsSessionKey() {
				continue
			}
			drain(events)

			c.log.Debug("Storage change detected, re-initializing session", "key", ev.Key, "origin", ev.Origin)
			if err := c.Init(ctx); err != nil {
				c.log.WithError(err).Error("Failed to re-initialize session")
			}
		}
	}
}

func drain(events <-chan tokenstore.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (c *Controller) loadUser(ctx context.Context, token string) error {
	user, err := c.client.Me(ctx, token)
	if err != nil {
		return err
	}

	c.setUser(user)
	if encoded, err := json.Marshal(user); err == nil {
		if err := c.store.SetUser(ctx, encoded); err != nil {
			c.log.WithError(err).Warning("Failed to cache user")
		}
	}
	return nil
}

func (c *Controller) setUser(user *apiclient.User) {
	c.update(func() { c.user = user })
}

func (c *Controller) setLoading(loading bool) {
	c.update(func() { c.loading = loading })
}

// update applies change and delivers the resulting state to observers before
// the next change can be applied
func (c *Controller) update(change func()) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	change()
	state := c.stateLocked()
	observers := make([]func(State), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

func (c *Controller) subject() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return ""
	}
	return c.user.Email
}
