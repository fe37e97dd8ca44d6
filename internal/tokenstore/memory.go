package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Shared is an in-process key/value backing shared by several Memory
// handles, the way one origin's storage is shared by its browser tabs.
type Shared struct {
	mu      sync.RWMutex
	values  map[string]string
	handles map[string]*Memory
}

// NewShared creates an empty backing
func NewShared() *Shared {
	return &Shared{
		values:  make(map[string]string),
		handles: make(map[string]*Memory),
	}
}

// Open attaches a new handle with its own origin
func (s *Shared) Open() *Memory {
	m := &Memory{
		shared: s,
		origin: uuid.NewString(),
		fan:    NewFanout(),
	}

	s.mu.Lock()
	s.handles[m.origin] = m
	s.mu.Unlock()

	return m
}

// write applies changes under the lock and notifies every other handle of
// the keys whose value actually changed. A nil value deletes the key.
func (s *Shared) write(origin string, changes map[string]*string) {
	s.mu.Lock()
	changed := make([]string, 0, len(changes))
	for key, value := range changes {
		current, exists := s.values[key]
		if value == nil {
			if !exists {
				continue
			}
			delete(s.values, key)
		} else {
			if exists && current == *value {
				continue
			}
			s.values[key] = *value
		}
		changed = append(changed, key)
	}
	peers := make([]*Memory, 0, len(s.handles))
	for o, h := range s.handles {
		if o != origin {
			peers = append(peers, h)
		}
	}
	s.mu.Unlock()

	now := time.Now()
	for _, peer := range peers {
		for _, key := range changed {
			peer.fan.Publish(Event{Key: key, Origin: origin, At: now})
		}
	}
}

func (s *Shared) read(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Memory is one handle onto a Shared backing
type Memory struct {
	shared *Shared
	origin string
	fan    *Fanout
}

// NewMemory returns a handle onto a fresh private backing
func NewMemory() *Memory {
	return NewShared().Open()
}

// Origin identifies this handle in emitted events
func (m *Memory) Origin() string {
	return m.origin
}

func (m *Memory) Get(ctx context.Context) (Pair, error) {
	m.shared.mu.RLock()
	defer m.shared.mu.RUnlock()

	return Pair{
		AccessToken:  m.shared.values[KeyAccessToken],
		RefreshToken: m.shared.values[KeyRefreshToken],
	}, nil
}

func (m *Memory) Set(ctx context.Context, access, refresh string) error {
	changes := map[string]*string{KeyAccessToken: nullable(access)}
	if refresh != "" {
		changes[KeyRefreshToken] = &refresh
	}
	m.shared.write(m.origin, changes)
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.shared.write(m.origin, map[string]*string{
		KeyAccessToken:  nil,
		KeyRefreshToken: nil,
		KeyUser:         nil,
	})
	return nil
}

func (m *Memory) SetUser(ctx context.Context, user []byte) error {
	var value *string
	if len(user) > 0 {
		s := string(user)
		value = &s
	}
	m.shared.write(m.origin, map[string]*string{KeyUser: value})
	return nil
}

func (m *Memory) User(ctx context.Context) ([]byte, error) {
	if v := m.shared.read(KeyUser); v != "" {
		return []byte(v), nil
	}
	return nil, nil
}

func (m *Memory) Subscribe() (<-chan Event, func()) {
	return m.fan.Subscribe()
}

// Close detaches the handle and closes its subscriptions
func (m *Memory) Close() {
	m.shared.mu.Lock()
	delete(m.shared.handles, m.origin)
	m.shared.mu.Unlock()

	m.fan.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
