package synchub

import (
	"context"
	"errors"
	"sync"
	"time"

	"match-connect/internal/tokenstore"
	"match-connect/pkg/logger"

	"github.com/google/uuid"
)

// Publisher is the transport a Synced store mirrors its writes through.
// Relay implements it.
type Publisher interface {
	Publish(Message) error
	Messages() <-chan Message
}

// Synced decorates a local store: writes are published as snapshots, and
// snapshots from other processes are applied locally and reported to
// subscribers like writes from another handle.
type Synced struct {
	inner  tokenstore.Store
	pub    Publisher
	origin string
	log    *logger.Logger
	fan    *tokenstore.Fanout

	// serializes local writes with their snapshot and remote applies
	mu sync.Mutex
}

var _ tokenstore.Store = (*Synced)(nil)

// NewSynced wraps inner. Call Run to start applying remote snapshots.
func NewSynced(inner tokenstore.Store, pub Publisher, log *logger.Logger) *Synced {
	if log == nil {
		log = logger.NewNop()
	}
	origin := uuid.NewString()
	return &Synced{
		inner:  inner,
		pub:    pub,
		origin: origin,
		log:    log.WithComponent("synced_store").WithField("origin", origin),
		fan:    tokenstore.NewFanout(),
	}
}

// Origin identifies this process in published snapshots
func (s *Synced) Origin() string {
	return s.origin
}

func (s *Synced) Get(ctx context.Context) (tokenstore.Pair, error) {
	return s.inner.Get(ctx)
}

func (s *Synced) User(ctx context.Context) ([]byte, error) {
	return s.inner.User(ctx)
}

func (s *Synced) Set(ctx context.Context, access, refresh string) error {
	return s.write(ctx, func() error { return s.inner.Set(ctx, access, refresh) })
}

func (s *Synced) Clear(ctx context.Context) error {
	return s.write(ctx, func() error { return s.inner.Clear(ctx) })
}

func (s *Synced) SetUser(ctx context.Context, user []byte) error {
	return s.write(ctx, func() error { return s.inner.SetUser(ctx, user) })
}

func (s *Synced) Subscribe() (<-chan tokenstore.Event, func()) {
	return s.fan.Subscribe()
}

// Run forwards events of the inner store and applies remote snapshots until
// ctx is cancelled or the publisher's channel closes.
func (s *Synced) Run(ctx context.Context) {
	local, unsubscribe := s.inner.Subscribe()
	defer unsubscribe()
	defer s.fan.Close()

	remote := s.pub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-local:
			if !ok {
				local = nil
				continue
			}
			s.fan.Publish(ev)
		case msg, ok := <-remote:
			if !ok {
				return
			}
			if msg.Origin == s.origin {
				continue
			}
			if err := s.apply(ctx, msg); err != nil {
				s.log.Error("Failed to apply remote snapshot", "from", msg.Origin, "error", err.Error())
			}
		}
	}
}

// write runs a local mutation and publishes the resulting state. A
// publish failure does not undo the local write.
func (s *Synced) write(ctx context.Context, mutate func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := mutate(); err != nil {
		return err
	}

	msg, err := s.snapshot(ctx)
	if err != nil {
		return err
	}
	if err := s.pub.Publish(msg); err != nil {
		if errors.Is(err, ErrNotConnected) {
			s.log.Debug("Snapshot not published, relay offline")
		} else {
			s.log.Warning("Failed to publish snapshot", "error", err.Error())
		}
	}
	return nil
}

func (s *Synced) snapshot(ctx context.Context) (Message, error) {
	pair, err := s.inner.Get(ctx)
	if err != nil {
		return Message{}, err
	}
	user, err := s.inner.User(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:         TypeSnapshot,
		Origin:       s.origin,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         string(user),
		Timestamp:    time.Now().Unix(),
	}, nil
}

// apply makes the inner store match msg and reports each key that changed
func (s *Synced) apply(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.inner.Get(ctx)
	if err != nil {
		return err
	}
	user, err := s.inner.User(ctx)
	if err != nil {
		return err
	}

	var changed []string
	if current.AccessToken != msg.AccessToken {
		changed = append(changed, tokenstore.KeyAccessToken)
	}
	if current.RefreshToken != msg.RefreshToken {
		changed = append(changed, tokenstore.KeyRefreshToken)
	}
	if string(user) != msg.User {
		changed = append(changed, tokenstore.KeyUser)
	}
	if len(changed) == 0 {
		return nil
	}

	// Set keeps the stored refresh token when given none, so dropping it
	// needs a clear first.
	if (msg.RefreshToken == "" && current.RefreshToken != "") || (msg.User == "" && len(user) > 0) {
		if err := s.inner.Clear(ctx); err != nil {
			return err
		}
	}
	if msg.AccessToken != "" || msg.RefreshToken != "" {
		if err := s.inner.Set(ctx, msg.AccessToken, msg.RefreshToken); err != nil {
			return err
		}
	}
	if msg.User != "" {
		if err := s.inner.SetUser(ctx, []byte(msg.User)); err != nil {
			return err
		}
	}

	at := time.Unix(msg.Timestamp, 0)
	for _, key := range changed {
		s.fan.Publish(tokenstore.Event{Key: key, Origin: msg.Origin, At: at})
	}
	s.log.Debug("Applied remote snapshot", "from", msg.Origin, "keys", len(changed))
	return nil
}
