package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"match-connect/internal/api"
	"match-connect/internal/database"
	"match-connect/internal/metrics"
	"match-connect/pkg/config"
	"match-connect/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBackend(t *testing.T) string {
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
			JWTSecret:       "cli-test-secret-that-is-long-enough",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: time.Hour,
		},
	}
	registry, m := metrics.NewRegistry()
	services := api.NewServices(db, logger.NewNop(), cfg, registry, m)
	require.NoError(t, services.Start(context.Background()))
	t.Cleanup(services.Stop)

	router := gin.New()
	t.Cleanup(api.SetupRoutes(router, services))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server.URL
}

// writeConfig points matchctl at backend with a SQL session store in a temp dir
func writeConfig(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "matchctl.yaml")
	content := fmt.Sprintf(`backend:
  base_url: %s/api/v1
session:
  store: sql
  watch_interval: 20ms
  database:
    type: sqlite
    path: %s
logging:
  level: error
`, backend, filepath.Join(dir, "session.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := ExecuteContext(context.Background(), append([]string{"--config", cfgPath}, args...), &out, &errOut)
	return out.String(), err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSessionAcrossInvocations(t *testing.T) {
	cfgPath := writeConfig(t, startBackend(t))

	out, err := run(t, cfgPath, "register", "--email", "ada@example.com", "--password", "password123",
		"--first-name", "Ada", "--last-name", "Lovelace", "--role", "recruiter", "--company", "Engines")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered ada@example.com as recruiter")

	_, err = run(t, cfgPath, "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)

	out, err = run(t, cfgPath, "login", "--email", "ada@example.com", "--password", "password123")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as ada@example.com (recruiter)")
	assert.Contains(t, out, "Landing route: /recruiter-dashboard")

	out, err = run(t, cfgPath, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada Lovelace <ada@example.com>")
	assert.Contains(t, out, "Role: recruiter")

	out, err = run(t, cfgPath, "jobs", "create", "--title", "Go engineer", "--location", "Remote",
		"--level", "senior", "--description", "Build things", "--skills", "go,sql")
	require.NoError(t, err)
	assert.Contains(t, out, "Created job posting")

	out, err = run(t, cfgPath, "jobs", "list", "--mine")
	require.NoError(t, err)
	assert.Contains(t, out, "Go engineer")
	assert.Contains(t, out, "go, sql")

	out, err = run(t, cfgPath, "open", "/auth?type=login")
	require.NoError(t, err)
	assert.Contains(t, out, "-> /recruiter-dashboard")

	out, err = run(t, cfgPath, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	out, err = run(t, cfgPath, "open", "/dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "-> /auth?redirect=%2Fdashboard")

	_, err = run(t, cfgPath, "jobs", "get", "abc")
	assert.Error(t, err)
}

func TestWatchFollowsOtherProcesses(t *testing.T) {
	cfgPath := writeConfig(t, startBackend(t))

	_, err := run(t, cfgPath, "register", "--email", "cand@example.com", "--password", "password123",
		"--first-name", "Cand", "--last-name", "Idate")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- ExecuteContext(ctx, []string{"--config", cfgPath, "watch"}, &out, &bytes.Buffer{})
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "signed out")
	}, 3*time.Second, 20*time.Millisecond)

	_, err = run(t, cfgPath, "login", "--email", "cand@example.com", "--password", "password123")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "signed in as cand@example.com (candidate)")
	}, 3*time.Second, 20*time.Millisecond)

	_, err = run(t, cfgPath, "logout")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "signed out") == 2
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestLoginPersistsWithDefaultStore(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	cfgPath := filepath.Join(t.TempDir(), "matchctl.yaml")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte(fmt.Sprintf("backend:\n  base_url: %s/api/v1\nlogging:\n  level: error\n", startBackend(t))), 0o600))

	_, err := run(t, cfgPath, "register", "--email", "ada@example.com", "--password", "password123",
		"--first-name", "Ada", "--last-name", "Lovelace")
	require.NoError(t, err)

	_, err = run(t, cfgPath, "login", "--email", "ada@example.com", "--password", "password123")
	require.NoError(t, err)

	out, err := run(t, cfgPath, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada Lovelace <ada@example.com>")
	assert.FileExists(t, filepath.Join(configHome, "matchctl", "session.db"))
}
