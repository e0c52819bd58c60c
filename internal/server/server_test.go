package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/carteira/internal/config"
	"github.com/aristath/carteira/internal/di"
	"github.com/aristath/carteira/internal/events"
	"github.com/aristath/carteira/internal/httputil"
)

func newTestServer(t *testing.T) (*Server, *di.Container) {
	t.Helper()
	cfg := &config.Config{
		DataDir:     t.TempDir(),
		Port:        8001,
		QuoteAPIURL: "http://127.0.0.1:0",
		Rebalance: config.RebalanceConfig{
			AbsoluteThreshold: 0.05,
			RelativeThreshold: 0.20,
		},
		Scheduler: config.SchedulerConfig{
			SuggestionsSchedule: "0 0 6 * * *",
			MetricsSchedule:     "0 0 * * * *",
			BackupSchedule:      "0 30 3 * * *",
			CleanupSchedule:     "0 15 * * * *",
			MaintenanceSchedule: "0 0 2 * * *",
		},
		R2: config.R2Config{Retention: 14},
	}

	container, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return New(Config{
		Log:       zerolog.Nop(),
		Container: container,
		DataDir:   cfg.DataDir,
		Port:      cfg.Port,
		DevMode:   true,
	}), container
}

func request(t *testing.T, h http.Handler, method, path, owner string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set(httputil.OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := request(t, s.Handler(), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestSystemStatus(t *testing.T) {
	s, _ := newTestServer(t)

	rec := request(t, s.Handler(), http.MethodGet, "/api/system/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data SystemStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Data.Status)
	assert.Len(t, body.Data.Jobs, 4)
	assert.False(t, body.Data.BackupsEnabled)
	assert.NotEmpty(t, body.Data.GoVersion)
}

func TestDatabaseStats(t *testing.T) {
	s, _ := newTestServer(t)

	rec := request(t, s.Handler(), http.MethodGet, "/api/system/database/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ledger"`)
	assert.Contains(t, rec.Body.String(), `"client_data"`)
}

func TestJobs(t *testing.T) {
	s, _ := newTestServer(t)

	rec := request(t, s.Handler(), http.MethodGet, "/api/system/jobs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "generate_suggestions")

	rec = request(t, s.Handler(), http.MethodPost, "/api/system/jobs/cleanup_client_data/run", "", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = request(t, s.Handler(), http.MethodPost, "/api/system/jobs/missing/run", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackups_Disabled(t *testing.T) {
	s, _ := newTestServer(t)

	rec := request(t, s.Handler(), http.MethodGet, "/api/system/backups", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":false`)
}

func TestModuleRoutesMounted(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := request(t, h, http.MethodPost, "/api/portfolios", "alice", map[string]interface{}{
		"name":                 "Dividendos",
		"monthly_contribution": 1000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID
	require.NotEmpty(t, id)

	for _, path := range []string{
		"/api/portfolios/" + id,
		"/api/portfolios/" + id + "/targets",
		"/api/portfolios/" + id + "/transactions",
		"/api/portfolios/" + id + "/timeline",
		"/api/portfolios/" + id + "/holdings",
		"/api/portfolios/" + id + "/closed-positions",
		"/api/portfolios/" + id + "/metrics",
		"/api/portfolios/" + id + "/decisions",
	} {
		rec := request(t, h, http.MethodGet, path, "alice", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec = request(t, h, http.MethodGet, "/api/portfolios/"+id, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = request(t, h, http.MethodGet, "/api/portfolios", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/portfolios", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	req.Header.Set("Access-Control-Request-Headers", httputil.OwnerHeader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
}

func TestEventsWebsocket_ThroughRouter(t *testing.T) {
	s, container := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events/ws?types=backup_completed"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var hello map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	assert.Equal(t, "connected", hello["type"])

	container.EventManager.Emit("reliability", &events.BackupCompletedData{Key: "k", SizeBytes: 10})

	var got map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, string(events.BackupCompleted), got["type"])
	assert.Equal(t, "reliability", got["module"])
}
