// Package navigation abstracts the current route and route changes so
// session code can redirect without knowing what renders the routes.
package navigation

import (
	"strings"
	"sync"
)

// Navigator reports the current route and moves to another one
type Navigator interface {
	Path() string
	Navigate(path string)
}

// Router is an in-memory Navigator that records its history
type Router struct {
	mu       sync.RWMutex
	current  string
	history  []string
	callback func(path string)
}

// NewRouter creates a router positioned at start
func NewRouter(start string) *Router {
	if start == "" {
		start = "/"
	}
	return &Router{current: start, history: []string{start}}
}

// SetCallback registers a function invoked after every navigation
func (r *Router) SetCallback(fn func(path string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = fn
}

func (r *Router) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pathOnly(r.current)
}

// Location returns the full current route including the query
func (r *Router) Location() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *Router) Navigate(path string) {
	r.mu.Lock()
	r.current = path
	r.history = append(r.history, path)
	cb := r.callback
	r.mu.Unlock()

	if cb != nil {
		cb(path)
	}
}

// History returns every route visited, oldest first
func (r *Router) History() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.history))
	copy(out, r.history)
	return out
}

// RedirectToLogin navigates to loginRoute unless the current path is already
// under authPrefix. It reports whether a navigation happened.
func RedirectToLogin(nav Navigator, loginRoute, authPrefix string) bool {
	if nav == nil {
		return false
	}
	if authPrefix != "" && strings.HasPrefix(nav.Path(), authPrefix) {
		return false
	}
	nav.Navigate(loginRoute)
	return true
}

func pathOnly(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		return route[:i]
	}
	return route
}
