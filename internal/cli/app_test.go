package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/errand/internal/config"
	"github.com/aretw0/errand/internal/logging"
	"github.com/aretw0/errand/internal/orchestrator"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generalModel answers every call of a one-step general task.
func generalModel() llm.Client {
	return llm.Func(func(_ context.Context, req llm.Request) (string, error) {
		switch req.Name {
		case "classify":
			return `{"taskType": "general"}`, nil
		case "extract":
			return `{"query": "opening hours of the Lisbon aquarium"}`, nil
		case "completeness":
			return `{"sufficient": true}`, nil
		case "plan":
			return `{"steps": [{"name": "Search", "toolName": "web_search", "toolArgs": {"query": "Lisbon aquarium hours"}}]}`, nil
		case "validate":
			return "VALID", nil
		case "respond":
			return "The aquarium opens at 10:00.", nil
		}
		return "", &llm.Error{Category: llm.CategoryValidation, Err: assert.AnError}
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Tools.Catalog = filepath.Join(t.TempDir(), "tools.yaml")
	return &cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, logging.NewNop(), WithLLM(generalModel()), WithDebugHooks(true))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close()) })
	return app
}

func runTurn(t *testing.T, app *App) domain.Response {
	t.Helper()
	resp, err := app.Orchestrator.Handle(context.Background(), orchestrator.Request{Message: "when does the aquarium open?"})
	require.NoError(t, err)
	require.True(t, resp.IsComplete, resp.Response)
	assert.Equal(t, "The aquarium opens at 10:00.", resp.Response)
	return resp
}

func TestNewApp_MemoryDriverRecordsMetrics(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	resp := runTurn(t, app)

	families, err := app.Metrics.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["errand_node_visits_total"])
	assert.True(t, names["errand_tool_duration_seconds"])
	assert.Equal(t, 1, app.Cache.Len())

	cp, err := app.Store.Load(context.Background(), resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, cp.Phase)
}

func TestNewApp_SQLiteDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = filepath.Join(t.TempDir(), "errand.db")
	app := newTestApp(t, cfg)

	resp := runTurn(t, app)
	ids, err := app.Store.List(context.Background())
	require.NoError(t, err)
	assert.Contains(t, ids, resp.TaskID)

	task, err := app.Repository.GetTask(context.Background(), resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskComplete, task.Status)
}

func TestNewApp_RedisDriverLocksAndReleases(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Store.Driver = "redis"
	cfg.Store.RedisAddr = mr.Addr()
	cfg.Store.LockTTL = 5 * time.Second
	app := newTestApp(t, cfg)

	resp := runTurn(t, app)
	assert.True(t, mr.Exists("errand:checkpoint:"+resp.TaskID))
	for _, k := range mr.Keys() {
		assert.False(t, strings.Contains(k, "lock:"), "lock %s not released", k)
	}
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "redis"
	cfg.Store.RedisAddr = "127.0.0.1:1"

	_, err := NewApp(context.Background(), cfg, logging.NewNop(), WithLLM(generalModel()))
	assert.ErrorContains(t, err, "connect redis")
}

func TestNewApp_EncryptedStoreRoundTrips(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.EncryptionKey = strings.Repeat("ab", 32)
	cfg.Security.PIIKeys = []string{"(?i)phone"}
	app := newTestApp(t, cfg)

	resp := runTurn(t, app)
	cp, err := app.Store.Load(context.Background(), resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "opening hours of the Lisbon aquarium", cp.GatheredInfo.Query)
}

func TestNewApp_BadCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.Catalog = filepath.Join("testdata", "missing-scope.yaml")

	_, err := NewApp(context.Background(), cfg, logging.NewNop(), WithLLM(generalModel()))
	assert.ErrorContains(t, err, "unknown scope")
}

func TestApp_HandlerServesHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	h := app.Handler("1.2.3")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.2.3")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "errand_graph_cache_entries")
}

func TestApp_ServeStopsWithContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.Addr = "127.0.0.1:0"
	app := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, "test") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
