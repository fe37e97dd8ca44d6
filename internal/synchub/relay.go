package synchub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"match-connect/internal/metrics"
	"match-connect/pkg/logger"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Publish while the relay has no connection
var ErrNotConnected = errors.New("storage relay is not connected")

// Relay keeps a connection to the hub open, reconnecting after failures,
// and exposes the snapshots other processes publish.
type Relay struct {
	url     string
	delay   time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
	dialer  *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	incoming chan Message
}

// NewRelay prepares a relay for the hub at hubURL. room scopes which peers
// see this process's snapshots.
func NewRelay(hubURL, room string, delay time.Duration, log *logger.Logger, m *metrics.Metrics) (*Relay, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return nil, fmt.Errorf("invalid hub url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid hub url scheme %q", u.Scheme)
	}
	if room != "" {
		q := u.Query()
		q.Set("room", room)
		u.RawQuery = q.Encode()
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Relay{
		url:      u.String(),
		delay:    delay,
		log:      log.WithComponent("relay"),
		metrics:  m,
		dialer:   &websocket.Dialer{HandshakeTimeout: writeWait},
		incoming: make(chan Message, sendBuffer),
	}, nil
}

// Messages delivers snapshots received from the hub. It is closed when Run
// returns.
func (r *Relay) Messages() <-chan Message {
	return r.incoming
}

// Connected reports whether a hub connection is currently open
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Publish sends msg to the hub
func (r *Relay) Publish(msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return ErrNotConnected
	}
	msg.Type = TypeSnapshot
	r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := r.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	r.metrics.RecordHubMessage("published")
	return nil
}

// Run connects and reads until ctx is cancelled, waiting the reconnect
// delay between attempts.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.incoming)

	for {
		if err := r.session(ctx); err != nil && ctx.Err() == nil {
			r.log.Warning("Storage relay disconnected", "error", err.Error(), "retry_in", r.delay.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.delay):
		}
	}
}

// session runs one connection until it fails or ctx ends
func (r *Relay) session(ctx context.Context) error {
	conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	r.log.Info("Storage relay connected", "url", r.url)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			r.mu.Unlock()
			conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msg.Type != TypeSnapshot {
			continue
		}
		r.metrics.RecordHubMessage("received")

		select {
		case r.incoming <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}
