// Package tokenstore persists the session token pair and the cached user
// profile, and reports changes made by other store handles.
package tokenstore

import (
	"context"
	"sync"
	"time"
)

// Storage keys shared by every implementation
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// subscriberBuffer bounds how many undelivered events a subscriber may hold
const subscriberBuffer = 16

// Pair is the current session token pair. Empty strings mean absent.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether neither token is present
func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Event notifies that a key was written or removed by another handle
type Event struct {
	Key    string
	Origin string
	At     time.Time
}

// IsSessionKey reports whether the event touches a key the session depends on
func (e Event) IsSessionKey() bool {
	switch e.Key {
	case KeyAccessToken, KeyRefreshToken, KeyUser:
		return true
	}
	return false
}

// Store is the single source of truth for the token pair.
type Store interface {
	// Get returns the current tokens
	Get(ctx context.Context) (Pair, error)
	// Set persists both tokens. An empty refresh keeps the stored one.
	Set(ctx context.Context, access, refresh string) error
	// Clear removes both tokens and the cached user
	Clear(ctx context.Context) error
	// SetUser caches the serialized user profile
	SetUser(ctx context.Context, user []byte) error
	// User returns the cached profile, or nil
	User(ctx context.Context) ([]byte, error)
	// Subscribe delivers changes made through other handles. The returned
	// func unsubscribes and closes the channel.
	Subscribe() (<-chan Event, func())
}

// Fanout delivers events to subscribers without blocking the writer. A full
// subscriber channel already holds an undelivered change, so dropping the
// new event loses no information the subscriber acts on.
type Fanout struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func NewFanout() *Fanout {
	return &Fanout{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered subscriber
func (f *Fanout) Subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan Event, subscriberBuffer)
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
}

// Publish offers ev to every subscriber
func (f *Fanout) Publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
