package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/geo"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/ingest"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/server"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage/badger"
)

type stack struct {
	srv   *httptest.Server
	store storage.Storage
	hub   *ingest.Hub
}

func startStack(t *testing.T, token string) *stack {
	t.Helper()

	store, err := badger.New(badger.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := server.Config{IngestToken: token, IPSalt: "test-salt", Port: "8080"}
	ih, qh, hub := server.InitializeHandlers(store, cfg, geo.Nop{}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := mux.NewRouter()
	server.SetupRoutes(router, server.Routes{Ingest: ih, Query: qh, Backend: server.BackendBadger, Port: cfg.Port})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &stack{srv: srv, store: store, hub: hub}
}

func (s *stack) get(t *testing.T, path string, out any) {
	t.Helper()
	resp, err := http.Get(s.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// TestE2E_SDKToDashboard reports through the SDK and reads the records back
// through the query API.
func TestE2E_SDKToDashboard(t *testing.T) {
	s := startStack(t, "ingest-token")

	client := sdk.New(sdk.Config{
		APIURL:      s.srv.URL + "/v1",
		ClientID:    "tenant-1",
		AccessToken: "ingest-token",
		Environment: "test",
		ServiceName: "checkout",
		RetryDelay:  time.Millisecond,
	})
	defer client.Close(context.Background())
	client.SetUser("user-42")

	ctx := context.Background()
	res := client.CaptureException(ctx, errors.New("payment declined"), sdk.ErrorData{
		ErrorRecord: record.ErrorRecord{Severity: record.SeverityCritical},
		Custom:      map[string]any{"order": 1001},
	}, nil)
	require.True(t, res.Success, res.Message)
	require.NotEmpty(t, res.ID)
	errorID := res.ID

	res = client.ReportLog(ctx, "cart loaded", sdk.LogData{Level: record.LevelInfo})
	require.True(t, res.Success, res.Message)

	var errs struct {
		Data  []record.ErrorRecord `json:"data"`
		Count int                  `json:"count"`
	}
	s.get(t, "/v1/errors?client_id=tenant-1", &errs)
	require.Equal(t, 1, errs.Count)

	got := errs.Data[0]
	assert.Equal(t, errorID, got.ID)
	assert.Equal(t, "payment declined", got.Message)
	assert.Equal(t, record.SeverityCritical, got.Severity)
	assert.Equal(t, "user-42", got.UserID)
	assert.Equal(t, "test", got.Environment)
	assert.Equal(t, record.StatusNew, got.Status)
	assert.JSONEq(t, `{"order":1001}`, got.CustomData)

	var logs struct {
		Data  []record.LogRecord `json:"data"`
		Count int                `json:"count"`
	}
	s.get(t, "/v1/logs?client_id=tenant-1&level=info", &logs)
	require.Equal(t, 1, logs.Count)
	assert.Equal(t, "cart loaded", logs.Data[0].Message)
	assert.Equal(t, client.SessionID(), logs.Data[0].SessionID)

	var users struct {
		Count int `json:"count"`
	}
	s.get(t, "/v1/summary/users?client_id=tenant-1", &users)
	assert.Equal(t, 1, users.Count)

	// Other tenants see nothing
	s.get(t, "/v1/errors?client_id=tenant-2", &errs)
	assert.Zero(t, errs.Count)
}

func TestE2E_WrongTokenFailsDelivery(t *testing.T) {
	s := startStack(t, "ingest-token")

	client := sdk.New(sdk.Config{
		APIURL:      s.srv.URL + "/v1",
		ClientID:    "tenant-1",
		AccessToken: "wrong",
		MaxRetries:  -1,
	})
	defer client.Close(context.Background())

	res := client.ReportError(context.Background(), sdk.ErrorData{ErrorRecord: record.ErrorRecord{Message: "m"}}, nil)
	assert.False(t, res.Success)

	stats, err := s.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalErrors)
}

func TestE2E_RealtimeFeed(t *testing.T) {
	s := startStack(t, "")

	wsURL := "ws" + s.srv.URL[len("http"):] + "/v1/ws?client_id=tenant-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.hub.Subscribers("tenant-1") == 1 }, time.Second, 5*time.Millisecond)

	client := sdk.New(sdk.Config{APIURL: s.srv.URL + "/v1", ClientID: "tenant-1"})
	defer client.Close(context.Background())
	res := client.ReportError(context.Background(), sdk.ErrorData{ErrorRecord: record.ErrorRecord{Message: "live"}}, nil)
	require.True(t, res.Success, res.Message)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev ingest.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, ingest.EventErrorIngested, ev.Type)
	assert.Equal(t, "tenant-1", ev.ClientID)
	assert.Equal(t, res.ID, ev.ID)
}
