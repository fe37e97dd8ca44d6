package apiclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"match-connect/internal/metrics"
	"match-connect/internal/tokenstore"
	"match-connect/pkg/logger"
)

// RefreshFunc exchanges a refresh token for a new pair. An empty
// RefreshToken in the result keeps the stored one.
type RefreshFunc func(ctx context.Context, refreshToken string) (tokenstore.Pair, error)

// Recovery says how a rejected request obtained the token to retry with
type Recovery string

const (
	RecoveredByRefresh Recovery = "refreshed"
	RecoveredByQueue   Recovery = "queued"
	RecoveredStale     Recovery = "stale_token"
)

type outcome struct {
	token string
	err   error
}

type pendingEntry struct {
	seq  uint64
	done chan outcome
}

// Coordinator serializes token refreshes. At most one refresh call is in
// flight; requests rejected meanwhile wait in a FIFO queue and are released
// with the refresh outcome in arrival order.
type Coordinator struct {
	store     tokenstore.Store
	refresh   RefreshFunc
	onFailure func(ctx context.Context, err error)
	log       *logger.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	refreshing bool
	queue      []*pendingEntry
	nextSeq    uint64
}

// NewCoordinator creates a coordinator. onFailure runs once per failed
// refresh, after the store was cleared and before waiters are released.
func NewCoordinator(store tokenstore.Store, refresh RefreshFunc, onFailure func(context.Context, error), log *logger.Logger, m *metrics.Metrics) *Coordinator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Coordinator{
		store:     store,
		refresh:   refresh,
		onFailure: onFailure,
		log:       log.WithComponent("refresh"),
		metrics:   m,
	}
}

// Refreshing reports whether a refresh call is outstanding
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending returns the number of requests waiting for the current refresh
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Recover returns the access token to retry a request with after it was
// rejected with 401 while carrying sent. It either reuses a token another
// request already obtained, waits for the refresh in flight, or runs the
// refresh itself.
func (c *Coordinator) Recover(ctx context.Context, sent string) (string, Recovery, error) {
	c.mu.Lock()

	if c.refreshing {
		c.nextSeq++
		entry := &pendingEntry{seq: c.nextSeq, done: make(chan outcome, 1)}
		c.queue = append(c.queue, entry)
		position := len(c.queue)
		c.mu.Unlock()

		c.metrics.RecordQueued()
		c.log.Debug("Refresh in progress, request queued", "position", position)

		select {
		case o := <-entry.done:
			return o.token, RecoveredByQueue, o.err
		case <-ctx.Done():
			return "", RecoveredByQueue, ctx.Err()
		}
	}

	// The store is read under the lock so a refresh settling concurrently
	// is either still flagged or already visible in the store.
	pair, err := c.store.Get(ctx)
	if err != nil {
		c.mu.Unlock()
		return "", "", fmt.Errorf("failed to read tokens: %w", err)
	}

	if pair.AccessToken != "" && pair.AccessToken != sent {
		c.mu.Unlock()
		return pair.AccessToken, RecoveredStale, nil
	}

	if pair.RefreshToken == "" {
		c.mu.Unlock()
		c.log.Warning("No refresh token available, session cleared")
		c.fail(ctx, ErrNoRefreshToken)
		return "", "", ErrNoRefreshToken
	}

	c.refreshing = true
	c.mu.Unlock()

	token, err := c.runRefresh(ctx, pair.RefreshToken)
	return token, RecoveredByRefresh, err
}

func (c *Coordinator) runRefresh(ctx context.Context, refreshToken string) (string, error) {
	// Callers abandoning their request must not abort the refresh others wait on
	refreshCtx := context.WithoutCancel(ctx)

	start := time.Now()
	pair, err := c.refresh(refreshCtx, refreshToken)
	if err == nil && pair.AccessToken == "" {
		err = &RefreshError{Kind: ErrRefreshRejected, Detail: "access token not received"}
	}
	if err == nil {
		if setErr := c.store.Set(refreshCtx, pair.AccessToken, pair.RefreshToken); setErr != nil {
			err = &RefreshError{Kind: ErrRefreshUnavailable, Detail: "failed to store refreshed tokens", Err: setErr}
		}
	}

	if err != nil {
		c.metrics.RecordRefresh(refreshOutcome(err), time.Since(start))
		c.log.WithError(err).Error("Token refresh failed")
		// cleared while still flagged so no new refresh starts from stale tokens
		if clearErr := c.store.Clear(refreshCtx); clearErr != nil {
			c.log.WithError(clearErr).Error("Failed to clear session after refresh failure")
		}
	} else {
		c.metrics.RecordRefresh("success", time.Since(start))
	}

	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.refreshing = false
	c.mu.Unlock()

	if err != nil && c.onFailure != nil {
		c.onFailure(refreshCtx, err)
	}

	order := make([]uint64, len(queue))
	for i, entry := range queue {
		order[i] = entry.seq
	}
	c.log.Debug("Releasing queued requests", "order", order, "success", err == nil)
	for _, entry := range queue {
		entry.done <- outcome{token: pair.AccessToken, err: err}
	}

	c.log.Info("Token refresh settled", "released", len(queue), "success", err == nil)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

func (c *Coordinator) fail(ctx context.Context, err error) {
	if clearErr := c.store.Clear(ctx); clearErr != nil {
		c.log.WithError(clearErr).Error("Failed to clear session")
	}
	if c.onFailure != nil {
		c.onFailure(ctx, err)
	}
}

func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, ErrRefreshRejected):
		return "rejected"
	case errors.Is(err, ErrRefreshUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
