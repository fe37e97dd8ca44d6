package session

import (
	"net/url"
	"strings"

	"match-connect/internal/navigation"
)

// Decision is the outcome of a route check
type Decision struct {
	// Pending is set while the session is still loading; nothing is decided
	Pending  bool
	Redirect string
}

// Allowed reports whether the route may be shown as is
func (d Decision) Allowed() bool {
	return !d.Pending && d.Redirect == ""
}

// Guard keeps signed-out users away from protected routes and signed-in
// users away from the auth pages.
type Guard struct {
	controller *Controller
	protected  []string
	authPrefix string
}

func NewGuard(c *Controller, protected []string, authPrefix string) *Guard {
	return &Guard{controller: c, protected: protected, authPrefix: authPrefix}
}

// Check decides what to do with a visit to path
func (g *Guard) Check(path string) Decision {
	state := g.controller.State()
	if state.IsLoading {
		return Decision{Pending: true}
	}

	if !state.IsAuthenticated && g.isProtected(path) {
		return Decision{Redirect: g.authPrefix + "?redirect=" + url.QueryEscape(path)}
	}

	if state.IsAuthenticated && g.authPrefix != "" && strings.HasPrefix(path, g.authPrefix) {
		return Decision{Redirect: LandingRoute(state.Role)}
	}

	return Decision{}
}

// Enforce checks the navigator's current route and follows any redirect.
// It reports whether the route may stay.
func (g *Guard) Enforce(nav navigation.Navigator) bool {
	d := g.Check(nav.Path())
	if d.Redirect != "" {
		nav.Navigate(d.Redirect)
		return false
	}
	return d.Allowed()
}

func (g *Guard) isProtected(path string) bool {
	for _, prefix := range g.protected {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
