package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"match-connect/internal/apiclient"
	"match-connect/internal/database"
	"match-connect/internal/jobs"
	"match-connect/internal/metrics"
	"match-connect/internal/tokenstore"
	"match-connect/pkg/config"
	"match-connect/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password"
	testPassword  = "password123"
)

type testServer struct {
	services *Services
	server   *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	db, err := database.OpenSQLite(filepath.Join(dir, "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.RunServerMigrations(db))

	cfg := &config.Config{
		Server: config.ServerConfig{RateLimit: 10000, UploadDir: filepath.Join(dir, "uploads")},
		Security: config.SecurityConfig{
			JWTSecret:       "test-secret-that-is-long-enough-for-hs256",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: time.Hour,
			AdminEmail:      adminEmail,
			AdminPassword:   adminPassword,
		},
	}

	registry, m := metrics.NewRegistry()
	services := NewServices(db, logger.NewNop(), cfg, registry, m)
	require.NoError(t, services.Start(context.Background()))
	t.Cleanup(services.Stop)

	router := gin.New()
	stop := SetupRoutes(router, services)
	t.Cleanup(stop)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{services: services, server: server}
}

func (s *testServer) url(path string) string {
	return s.server.URL + "/api/v1" + path
}

// call sends a JSON request and decodes the response into a generic map
func (s *testServer) call(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, s.url(path), reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(t, req)
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (s *testServer) login(t *testing.T, email, password string) (int, map[string]interface{}) {
	t.Helper()
	form := url.Values{"username": {email}, "password": {password}}
	req, err := http.NewRequest(http.MethodPost, s.url("/auth/token"), strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(t, req)
}

// register creates an account and returns its access and refresh tokens
func (s *testServer) register(t *testing.T, email, role string) (string, string) {
	t.Helper()
	body := map[string]interface{}{
		"email": email, "password": testPassword,
		"first_name": "Ada", "last_name": "Lovelace", "role": role,
	}
	if role == "recruiter" {
		body["company_name"] = "Analytical Engines"
	}
	status, resp := s.call(t, http.MethodPost, "/auth/register", "", body)
	require.Equal(t, http.StatusCreated, status, resp)

	status, tokens := s.login(t, email, testPassword)
	require.Equal(t, http.StatusOK, status, tokens)
	return tokens["access_token"].(string), tokens["refresh_token"].(string)
}

func posting(title string) map[string]interface{} {
	return map[string]interface{}{
		"title": title, "location": "Remote", "type": "full-time",
		"experience_level": "senior", "description": "Build things",
		"skills": []string{"go", "sql"},
	}
}

func TestAuth_LoginRefreshAndReuse(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.login(t, "nobody@example.com", "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Incorrect email or password", resp["detail"])

	access, refresh := s.register(t, "ada@example.com", "candidate")

	status, me := s.call(t, http.MethodGet, "/users/me", access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ada@example.com", me["email"])
	assert.Equal(t, "candidate", me["role"])

	// a refresh token is not an access token
	status, _ = s.call(t, http.MethodGet, "/users/me", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, rotated := s.call(t, http.MethodPost, "/auth/token/refresh", "", map[string]string{"refresh": refresh})
	require.Equal(t, http.StatusOK, status, rotated)
	assert.NotEqual(t, refresh, rotated["refresh_token"])
	assert.Equal(t, "bearer", rotated["token_type"])

	status, _ = s.call(t, http.MethodGet, "/users/me", rotated["access_token"].(string), nil)
	assert.Equal(t, http.StatusOK, status)

	// refresh tokens are single use
	status, resp = s.call(t, http.MethodPost, "/auth/token/refresh", "", map[string]string{"refresh": refresh})
	assert.Equal(t, http.StatusUnauthorized, status)
	errInfo := resp["error"].(map[string]interface{})
	assert.Equal(t, "TOKEN_REVOKED", errInfo["code"])
}

func TestAuth_RegisterValidation(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ada@example.com", "recruiter")

	status, resp := s.call(t, http.MethodPost, "/auth/register", "", map[string]interface{}{
		"email": "ada@example.com", "password": testPassword,
		"first_name": "Ada", "last_name": "Lovelace", "role": "candidate",
	})
	assert.Equal(t, http.StatusConflict, status, resp)

	status, resp = s.call(t, http.MethodPost, "/auth/register", "", map[string]interface{}{
		"email": "grace@example.com", "password": testPassword,
		"first_name": "Grace", "last_name": "Hopper", "role": "recruiter",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	fields := resp["error"].(map[string]interface{})["fields"].(map[string]interface{})
	assert.Equal(t, "required_if", fields["CompanyName"])
}

func TestJobPostings_RolesAndOwnership(t *testing.T) {
	s := newTestServer(t)
	owner, _ := s.register(t, "owner@example.com", "recruiter")
	other, _ := s.register(t, "other@example.com", "recruiter")
	candidate, _ := s.register(t, "cand@example.com", "candidate")

	status, _ := s.call(t, http.MethodPost, "/job-postings/", candidate, posting("Go engineer"))
	assert.Equal(t, http.StatusForbidden, status)

	bad := posting("Go engineer")
	bad["type"] = "gig"
	status, resp := s.call(t, http.MethodPost, "/job-postings/", owner, bad)
	assert.Equal(t, http.StatusUnprocessableEntity, status, resp)

	status, created := s.call(t, http.MethodPost, "/job-postings/", owner, posting("Go engineer"))
	require.Equal(t, http.StatusCreated, status, created)
	id := int64(created["id"].(float64))
	path := fmt.Sprintf("/job-postings/%d", id)

	status, got := s.call(t, http.MethodGet, path, candidate, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Go engineer", got["title"])
	assert.Equal(t, []interface{}{"go", "sql"}, got["skills"])

	status, _ = s.call(t, http.MethodPatch, path, other, map[string]string{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, status)

	status, updated := s.call(t, http.MethodPatch, path, owner, map[string]string{"title": "Staff Go engineer"})
	require.Equal(t, http.StatusOK, status, updated)
	assert.Equal(t, "Staff Go engineer", updated["title"])
	assert.Equal(t, "Remote", updated["location"])

	status, _ = s.call(t, http.MethodDelete, path, owner, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, resp = s.call(t, http.MethodGet, path, owner, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Job posting not found", resp["detail"])

	status, _ = s.call(t, http.MethodGet, "/job-postings/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestApplications_Submit(t *testing.T) {
	s := newTestServer(t)
	recruiter, _ := s.register(t, "rec@example.com", "recruiter")
	candidate, _ := s.register(t, "cand@example.com", "candidate")

	_, created := s.call(t, http.MethodPost, "/job-postings/", recruiter, posting("Go engineer"))
	id := created["id"].(float64)

	application := map[string]interface{}{
		"job_posting_id": id, "full_name": "Ada Lovelace",
		"email": "cand@example.com", "cover_letter": "Hello",
	}
	status, resp := s.call(t, http.MethodPost, "/job-applications/", recruiter, application)
	assert.Equal(t, http.StatusForbidden, status, resp)

	status, resp = s.call(t, http.MethodPost, "/job-applications/", candidate, application)
	require.Equal(t, http.StatusCreated, status, resp)
	assert.Equal(t, id, resp["job_posting_id"])

	application["job_posting_id"] = 9999
	status, _ = s.call(t, http.MethodPost, "/job-applications/", candidate, application)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestResumes_Upload(t *testing.T) {
	s := newTestServer(t)
	candidate, _ := s.register(t, "cand@example.com", "candidate")

	upload := func(name string) (int, map[string]interface{}) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		part.Write([]byte("%PDF-1.4 resume"))
		require.NoError(t, w.Close())

		req, err := http.NewRequest(http.MethodPost, s.url("/resumes/"), &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+candidate)
		return s.do(t, req)
	}

	status, resp := upload("cv.exe")
	assert.Equal(t, http.StatusUnprocessableEntity, status, resp)

	status, resp = upload("cv.pdf")
	require.Equal(t, http.StatusCreated, status, resp)
	assert.Equal(t, "cv.pdf", resp["file_name"])
	assert.EqualValues(t, len("%PDF-1.4 resume"), resp["size_bytes"])
	assert.FileExists(t, resp["file_path"].(string))
}

func TestAdmin_AuditLogs(t *testing.T) {
	s := newTestServer(t)
	candidate, _ := s.register(t, "cand@example.com", "candidate")
	s.login(t, "cand@example.com", "wrong-password")

	status, _ := s.call(t, http.MethodGet, "/admin/audit", candidate, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, tokens := s.login(t, adminEmail, adminPassword)
	require.Equal(t, http.StatusOK, status)
	admin := tokens["access_token"].(string)

	status, resp := s.call(t, http.MethodGet, "/admin/audit?action=login_failed", admin, nil)
	require.Equal(t, http.StatusOK, status, resp)
	data := resp["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["count"])
	byAction := data["by_action"].(map[string]interface{})
	assert.EqualValues(t, 1, byAction["login_failed"])
	assert.EqualValues(t, 2, byAction["login_succeeded"])

	status, _ = s.call(t, http.MethodGet, "/admin/audit?start_time=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])

	s.login(t, "nobody@example.com", "wrong")

	resp, err = http.Get(s.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "match_api_auth_requests_total")
}

// The session client recovers from a rejected access token against the
// real backend and keeps the rotated pair.
func TestClient_RefreshesAgainstBackend(t *testing.T) {
	s := newTestServer(t)
	_, refresh := s.register(t, "rec@example.com", "recruiter")

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.Set(ctx, "not-a-jwt", refresh))

	client, err := apiclient.New(s.server.URL+"/api/v1", store)
	require.NoError(t, err)
	postings := jobs.NewPostings(client)

	created, err := postings.Create(ctx, jobs.PostingInput{
		Title: "Go engineer", Location: "Remote", Type: "contract",
		ExperienceLevel: "mid", Description: "Build things", Skills: []string{"go"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Go engineer", created.Title)

	pair, err := store.Get(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "not-a-jwt", pair.AccessToken)
	assert.NotEqual(t, refresh, pair.RefreshToken)

	title := "Senior Go engineer"
	updated, err := postings.Update(ctx, created.ID, jobs.PostingPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	mine, err := postings.ListMine(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	// once both tokens are rejected the session is cleared
	require.NoError(t, store.Set(ctx, "not-a-jwt", refresh))
	_, err = postings.ListAll(ctx, 0, 10)
	require.Error(t, err)
	assert.True(t, apiclient.IsSessionLost(err))
	pair, err = store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())
}
