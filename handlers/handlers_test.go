package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agora-hq/agora/syncer/db"
	"github.com/agora-hq/agora/syncer/models"
	"github.com/agora-hq/agora/syncer/services"
)

func newTestServer(t *testing.T) (*Server, *db.MemDB) {
	t.Helper()
	database := db.NewMemDB()
	server := NewServer(database, services.NewMetrics(), zerolog.New(io.Discard))
	return server, database
}

func doRequest(t *testing.T, server *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	server.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestListCursors(t *testing.T) {
	server, database := newTestServer(t)
	require.NoError(t, database.AdvanceSyncCursor(context.Background(), "agent_registry", 500))

	w := doRequest(t, server, http.MethodGet, "/api/v1/cursors")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Cursors []*models.SyncCursor `json:"cursors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Cursors, 1)
	assert.Equal(t, uint64(500), body.Cursors[0].LastSyncedBlock)
}

func TestGetCursorNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/v1/cursors/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedLimitValidation(t *testing.T) {
	server, database := newTestServer(t)
	require.NoError(t, database.CreateEconomyEvent(context.Background(), &models.EconomyEvent{
		Type: "agent_registered", Description: "x", TxHash: "0xabc", BlockNumber: 1,
	}))

	w := doRequest(t, server, http.MethodGet, "/api/v1/feed")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, server, http.MethodGet, "/api/v1/feed?limit=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, server, http.MethodGet, "/api/v1/feed?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// oversized limits are capped, not rejected
	w = doRequest(t, server, http.MethodGet, "/api/v1/feed?limit=100000")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetAgent(t *testing.T) {
	server, database := newTestServer(t)
	require.NoError(t, database.CreateAgent(context.Background(), &models.Agent{
		AgentID: 7, Name: "worker-agent", Wallet: "0x01",
		Status: models.AgentStatusActive, TotalRevenue: "0",
	}))

	w := doRequest(t, server, http.MethodGet, "/api/v1/agents/7")
	require.Equal(t, http.StatusOK, w.Code)

	var agent models.Agent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agent))
	assert.Equal(t, "worker-agent", agent.Name)

	w = doRequest(t, server, http.MethodGet, "/api/v1/agents/99")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, server, http.MethodGet, "/api/v1/agents/notanumber")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}
