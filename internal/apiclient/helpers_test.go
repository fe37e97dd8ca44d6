package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"match-connect/internal/navigation"
	"match-connect/internal/tokenstore"

	"github.com/stretchr/testify/require"
)

// fakeBackend accepts a set of access tokens and exchanges refresh token
// R1 for the pair A2/R2.
type fakeBackend struct {
	server *httptest.Server

	mu            sync.Mutex
	valid         map[string]bool
	refreshStatus int
	omitAccess    bool
	refreshGate   chan struct{}
	refreshBodies []string

	refreshCalls int32
	dataCalls    int32
}

func newFakeBackend(t *testing.T, valid ...string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{valid: map[string]bool{}}
	for _, token := range valid {
		b.valid[token] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/token/refresh", b.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/token", b.handleLogin)
	mux.HandleFunc("GET /api/v1/users/me", b.authenticated(func(w http.ResponseWriter, r *http.Request, token string) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": 7, "email": "ada@example.com", "first_name": "Ada", "last_name": "Lovelace", "role": "recruiter",
		})
	}))
	mux.HandleFunc("GET /api/v1/data", b.authenticated(func(w http.ResponseWriter, r *http.Request, token string) {
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}))
	mux.HandleFunc("POST /api/v1/echo", b.authenticated(func(w http.ResponseWriter, r *http.Request, token string) {
		body, _ := io.ReadAll(r.Body)
		writeJSON(w, http.StatusOK, map[string]string{"token": token, "body": string(body)})
	}))
	mux.HandleFunc("GET /api/v1/always-401", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
	})
	mux.HandleFunc("GET /api/v1/broken", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": []interface{}{"title is required", map[string]string{"loc": "body"}},
		})
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) authenticated(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.dataCalls, 1)
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		b.mu.Lock()
		ok := b.valid[token]
		b.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		next(w, r, token)
	}
}

func (b *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&b.refreshCalls, 1)

	b.mu.Lock()
	gate := b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	var req struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshBodies = append(b.refreshBodies, req.Refresh)

	if b.refreshStatus != 0 {
		writeJSON(w, b.refreshStatus, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	if req.Refresh != "R1" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	if b.omitAccess {
		writeJSON(w, http.StatusOK, map[string]string{"refresh_token": "R2"})
		return
	}

	b.valid["A2"] = true
	writeJSON(w, http.StatusOK, map[string]string{"access_token": "A2", "refresh_token": "R2"})
}

func (b *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("password") != "secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
		return
	}
	b.mu.Lock()
	b.valid["A1"] = true
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"access_token": "A1", "refresh_token": "R1", "token_type": "bearer"})
}

func (b *fakeBackend) gateRefresh() chan struct{} {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()
	return gate
}

func (b *fakeBackend) setRefreshStatus(status int) {
	b.mu.Lock()
	b.refreshStatus = status
	b.mu.Unlock()
}

func (b *fakeBackend) refreshes() int {
	return int(atomic.LoadInt32(&b.refreshCalls))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type testSession struct {
	backend *fakeBackend
	store   *tokenstore.Memory
	router  *navigation.Router
	client  *Client
}

func newTestSession(t *testing.T, backend *fakeBackend, access, refresh string, opts ...Option) *testSession {
	t.Helper()
	store := tokenstore.NewMemory()
	if access != "" || refresh != "" {
		require.NoError(t, store.Set(context.Background(), access, refresh))
	}
	router := navigation.NewRouter("/dashboard")

	client, err := New(backend.server.URL+"/api/v1", store,
		append([]Option{WithNavigator(router), WithTimeout(5 * time.Second)}, opts...)...,
	)
	require.NoError(t, err)

	return &testSession{backend: backend, store: store, router: router, client: client}
}

func (s *testSession) pair(t *testing.T) tokenstore.Pair {
	t.Helper()
	pair, err := s.store.Get(context.Background())
	require.NoError(t, err)
	return pair
}
