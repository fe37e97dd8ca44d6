package tokenstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"match-connect/internal/database"
	"match-connect/internal/database/repositories"
	"match-connect/pkg/logger"

	"github.com/google/uuid"
)

const (
	eventBatchSize = 100

	// Event ids are assigned on insert but become visible on commit, so on
	// PostgreSQL a lower id can show up after a higher one. Each poll re-reads
	// this many ids behind the cursor and skips the ones already delivered.
	eventLookback = 64

	defaultEventRetention = 1000
)

// SQL persists the session in a database so several processes sharing it
// observe each other's writes. A watcher polls the change log for events
// written by other origins.
type SQL struct {
	repo      *repositories.StorageRepository
	origin    string
	interval  time.Duration
	retention int
	log       *logger.Logger
	fan       *Fanout

	mutex     sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	doneChan  chan struct{}
	cursor    int64
	delivered map[int64]struct{}
}

// SQLOption configures a SQL store
type SQLOption func(*SQL)

// WithEventRetention sets how many change events the store keeps. Every
// write drops older ones, so watchers lagging further behind miss them.
func WithEventRetention(n int) SQLOption {
	return func(s *SQL) {
		if n > 0 {
			s.retention = n
		}
	}
}

// NewSQL prepares the storage tables and returns a store with a fresh origin.
// Call Start to begin delivering events from other processes.
func NewSQL(db *database.DB, interval time.Duration, log *logger.Logger, opts ...SQLOption) (*SQL, error) {
	if err := database.RunClientMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to migrate session storage: %w", err)
	}
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	origin := uuid.NewString()
	s := &SQL{
		repo:      repositories.NewStorageRepository(db),
		origin:    origin,
		interval:  interval,
		retention: defaultEventRetention,
		log:       log.WithComponent("tokenstore").WithField("origin", origin),
		fan:       NewFanout(),
		delivered: make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Origin identifies this store in the change log
func (s *SQL) Origin() string {
	return s.origin
}

func (s *SQL) Get(ctx context.Context) (Pair, error) {
	values, err := s.repo.GetMany(ctx, KeyAccessToken, KeyRefreshToken)
	if err != nil {
		return Pair{}, fmt.Errorf("failed to read tokens: %w", err)
	}
	return Pair{AccessToken: values[KeyAccessToken], RefreshToken: values[KeyRefreshToken]}, nil
}

func (s *SQL) Set(ctx context.Context, access, refresh string) error {
	if access == "" {
		if err := s.repo.Delete(ctx, s.origin, KeyAccessToken); err != nil {
			return fmt.Errorf("failed to remove access token: %w", err)
		}
		if refresh != "" {
			if err := s.repo.Put(ctx, s.origin, map[string]string{KeyRefreshToken: refresh}); err != nil {
				return fmt.Errorf("failed to store refresh token: %w", err)
			}
		}
		s.prune(ctx)
		return nil
	}

	values := map[string]string{KeyAccessToken: access}
	if refresh != "" {
		values[KeyRefreshToken] = refresh
	}
	if err := s.repo.Put(ctx, s.origin, values); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	s.prune(ctx)
	return nil
}

func (s *SQL) Clear(ctx context.Context) error {
	if err := s.repo.Delete(ctx, s.origin, KeyAccessToken, KeyRefreshToken, KeyUser); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.prune(ctx)
	return nil
}

func (s *SQL) SetUser(ctx context.Context, user []byte) error {
	var err error
	if len(user) == 0 {
		err = s.repo.Delete(ctx, s.origin, KeyUser)
	} else {
		err = s.repo.Put(ctx, s.origin, map[string]string{KeyUser: string(user)})
	}
	if err != nil {
		return err
	}
	s.prune(ctx)
	return nil
}

// prune keeps the change log bounded. A failure only delays it to the next
// write.
func (s *SQL) prune(ctx context.Context) {
	dropped, err := s.repo.PruneEvents(ctx, s.retention)
	if err != nil {
		s.log.WithError(err).Warning("Failed to prune session change log")
		return
	}
	if dropped > 0 {
		s.log.Debug("Pruned session change log", "dropped", dropped)
	}
}

func (s *SQL) User(ctx context.Context) ([]byte, error) {
	value, ok, err := s.repo.Get(ctx, KeyUser)
	if err != nil || !ok {
		return nil, err
	}
	return []byte(value), nil
}

func (s *SQL) Subscribe() (<-chan Event, func()) {
	return s.fan.Subscribe()
}

// Start begins polling the change log. Only changes written after Start are
// delivered.
func (s *SQL) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isRunning {
		return fmt.Errorf("session watcher is already running")
	}

	latest, err := s.repo.LatestEventID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read change log: %w", err)
	}

	s.cursor = latest
	s.delivered = make(map[int64]struct{})
	// events already in the look-back window predate Start
	if _, err := s.scan(ctx, false); err != nil {
		return fmt.Errorf("failed to read change log: %w", err)
	}

	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.isRunning = true
	go s.watchLoop(s.stopChan, s.doneChan)

	s.log.Info("Session watcher started", "interval", s.interval.String())
	return nil
}

// Stop stops polling and waits for the loop to exit
func (s *SQL) Stop() {
	s.mutex.Lock()
	if !s.isRunning {
		s.mutex.Unlock()
		return
	}
	close(s.stopChan)
	done := s.doneChan
	s.isRunning = false
	s.mutex.Unlock()

	<-done
	s.log.Info("Session watcher stopped")
}

// IsRunning returns whether the watcher is polling
func (s *SQL) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.isRunning
}

// Close stops the watcher and closes every subscription
func (s *SQL) Close() {
	s.Stop()
	s.fan.Close()
}

// PollNow delivers pending events immediately and returns how many were seen
func (s *SQL) PollNow(ctx context.Context) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.poll(ctx)
}

func (s *SQL) watchLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mutex.Lock()
			_, err := s.poll(context.Background())
			s.mutex.Unlock()
			if err != nil {
				s.log.WithError(err).Warning("Failed to poll session changes")
			}

		case <-stop:
			return
		}
	}
}

// poll must be called with the mutex held
func (s *SQL) poll(ctx context.Context) (int, error) {
	return s.scan(ctx, true)
}

// scan reads the change log from eventLookback ids behind the cursor, marks
// new events delivered and publishes them when publish is set. It returns
// how many new events it found.
func (s *SQL) scan(ctx context.Context, publish bool) (int, error) {
	after := s.cursor - eventLookback
	if after < 0 {
		after = 0
	}

	total := 0
	for {
		events, err := s.repo.EventsSince(ctx, after, s.origin, eventBatchSize)
		if err != nil {
			return total, err
		}
		for _, ev := range events {
			after = ev.ID
			if _, ok := s.delivered[ev.ID]; ok {
				continue
			}
			s.delivered[ev.ID] = struct{}{}
			if ev.ID > s.cursor {
				s.cursor = ev.ID
			}
			if publish {
				s.fan.Publish(Event{Key: ev.Key, Origin: ev.Origin, At: ev.CreatedAt})
			}
			total++
		}
		if len(events) < eventBatchSize {
			break
		}
	}

	for id := range s.delivered {
		if id <= s.cursor-eventLookback {
			delete(s.delivered, id)
		}
	}
	return total, nil
}
