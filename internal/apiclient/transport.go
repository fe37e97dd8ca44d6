package apiclient

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"match-connect/internal/metrics"
)

type skipRefreshKey struct{}

// WithoutRefresh marks requests made with ctx as exempt from refresh
// handling; a 401 is returned to the caller as is. Credential endpoints use
// it so a wrong password is not mistaken for an expired session.
func WithoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRefreshKey{}, true)
}

func skipRefresh(ctx context.Context) bool {
	skip, _ := ctx.Value(skipRefreshKey{}).(bool)
	return skip
}

// Transport authenticates requests and recovers from expired access tokens.
// A request rejected with 401 is retried at most once.
type Transport struct {
	Base          http.RoundTripper
	Authenticator *Authenticator
	Coordinator   *Coordinator
	Metrics       *metrics.Metrics

	// OnUnauthorized runs when a retried request is rejected again
	OnUnauthorized func(ctx context.Context, err error)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	replay, err := newReplayable(req)
	if err != nil {
		return nil, err
	}

	first, sent, err := t.Authenticator.Authenticate(replay.request())
	if err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || skipRefresh(req.Context()) {
		return resp, err
	}
	drain(resp)

	token, how, err := t.Coordinator.Recover(req.Context(), sent)
	if err != nil {
		return nil, err
	}
	t.Metrics.RecordReplay(string(how))

	resp, err = t.base().RoundTrip(withBearer(replay.request(), token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		if t.OnUnauthorized != nil {
			t.OnUnauthorized(req.Context(), ErrUnauthorizedAfterRefresh)
		}
		return nil, ErrUnauthorizedAfterRefresh
	}
	return resp, nil
}

// replayable lets a request be sent twice. The body is read once and
// served from memory to every attempt.
type replayable struct {
	req  *http.Request
	body []byte
}

func newReplayable(req *http.Request) (*replayable, error) {
	r := &replayable{req: req}
	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}

	defer req.Body.Close()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	r.body = body
	return r, nil
}

func (r *replayable) request() *http.Request {
	clone := r.req.Clone(r.req.Context())
	if r.body == nil {
		return clone
	}

	body := r.body
	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	clone.ContentLength = int64(len(body))
	return clone
}

// drain discards the rest of a response so the connection can be reused
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
