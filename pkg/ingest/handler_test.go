package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/geo"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage/memory"
)

type stubGeo map[string]geo.Location

func (s stubGeo) Lookup(_ context.Context, ip string) geo.Location { return s[ip] }

type stubChecker struct {
	used, limit int64
	err         error
}

func (c stubChecker) GetUsage() (int64, error) { return c.used, c.err }
func (c stubChecker) GetLimit() int64          { return c.limit }

type failingStore struct{ *memory.Storage }

func (failingStore) WriteErrors(context.Context, []record.ErrorRecord) error {
	return errors.New("disk on fire")
}

func post(t *testing.T, h http.HandlerFunc, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHandleIngest_AssignsServerFields(t *testing.T) {
	store := memory.New()
	handler := NewHandler(store, Options{
		Geo:        stubGeo{"203.0.113.7": {Country: "NZ", City: "Wellington"}},
		Anonymizer: geo.NewAnonymizer("pepper"),
	})
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	handler.now = func() time.Time { return fixed }

	rr := post(t, handler.HandleIngest,
		`{"client_id":"c1","message":"boom","severity":"high","ip_address":"6.6.6.6","occurrence_count":40}`,
		func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1") })

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode(t, rr)
	assert.Equal(t, true, resp["success"])
	id, _ := resp["id"].(string)
	require.NotEmpty(t, id)

	stored, err := store.QueryErrors(context.Background(), storage.ErrorQuery{ClientID: "c1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	rec := stored[0]
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, fixed, rec.CreatedAt)
	assert.Equal(t, fixed, rec.FirstOccurrence)
	assert.Equal(t, uint32(1), rec.OccurrenceCount)
	assert.Equal(t, record.StatusNew, rec.Status)
	assert.Equal(t, "NZ", rec.Country)
	assert.Equal(t, "Wellington", rec.City)
	assert.Equal(t, geo.NewAnonymizer("pepper").Anonymize("203.0.113.7"), rec.IPAddress)
	assert.NotContains(t, rec.IPAddress, "203.0.113.7")
}

func TestHandleIngest_WithoutAnonymizerDropsIP(t *testing.T) {
	store := memory.New()
	handler := NewHandler(store, Options{})

	rr := post(t, handler.HandleIngest, `{"client_id":"c1","message":"boom","ip_address":"6.6.6.6"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	stored, _ := store.QueryErrors(context.Background(), storage.ErrorQuery{ClientID: "c1"})
	require.Len(t, stored, 1)
	assert.Empty(t, stored[0].IPAddress)
}

func TestHandleIngest_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"invalid json", `{"client_id":`, http.StatusBadRequest, "invalid JSON"},
		{"missing client id", `{"message":"boom"}`, http.StatusBadRequest, "client_id is required"},
		{"missing message", `{"client_id":"c1"}`, http.StatusBadRequest, "message is required"},
		{"unknown severity", `{"client_id":"c1","message":"m","severity":"urgent"}`, http.StatusBadRequest, "invalid enum"},
		{"message too long", `{"client_id":"c1","message":"` + strings.Repeat("x", 2001) + `"}`, http.StatusBadRequest, "too long"},
		{"body too large", `{"client_id":"c1","message":"` + strings.Repeat("x", 1<<20) + `"}`, http.StatusRequestEntityTooLarge, "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			handler := NewHandler(store, Options{})

			rr := post(t, handler.HandleIngest, tt.body)
			require.Equal(t, tt.status, rr.Code)
			resp := decode(t, rr)
			assert.Equal(t, false, resp["success"])
			assert.Contains(t, resp["message"], tt.message)

			stats, _ := store.Stats(context.Background())
			assert.Zero(t, stats.TotalErrors)
		})
	}
}

func TestHandleIngest_Token(t *testing.T) {
	handler := NewHandler(memory.New(), Options{Token: "s3cret"})
	body := `{"client_id":"c1","message":"boom"}`

	rr := post(t, handler.HandleIngest, body)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = post(t, handler.HandleIngest, body, func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") })
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = post(t, handler.HandleIngest, body, func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") })
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleIngest_StorageLimit(t *testing.T) {
	body := `{"client_id":"c1","message":"boom"}`

	full := NewHandler(memory.New(), Options{Storage: stubChecker{used: 100, limit: 100}})
	rr := post(t, full.HandleIngest, body)
	assert.Equal(t, http.StatusInsufficientStorage, rr.Code)

	// Can't measure: don't block
	unknown := NewHandler(memory.New(), Options{Storage: stubChecker{limit: 100, err: errors.New("stat failed")}})
	rr = post(t, unknown.HandleIngest, body)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleIngest_StoreFailure(t *testing.T) {
	handler := NewHandler(failingStore{memory.New()}, Options{})
	rr := post(t, handler.HandleIngest, `{"client_id":"c1","message":"boom"}`)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, false, decode(t, rr)["success"])
}

func TestHandleLog(t *testing.T) {
	store := memory.New()
	handler := NewHandler(store, Options{})

	rr := post(t, handler.HandleLog, `{"client_id":"c1","level":"warn","message":"slow query","context":"{\"ms\":900}"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	logs, err := store.QueryLogs(context.Background(), storage.LogQuery{ClientID: "c1"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, record.LevelWarn, logs[0].Level)
	assert.NotEmpty(t, logs[0].ID)
	assert.False(t, logs[0].CreatedAt.IsZero())

	rr = post(t, handler.HandleLog, `{"client_id":"c1","level":"fatal","message":"m"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.2:1234", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.2:1234", "198.51.100.2"},
		{"remote addr", nil, "198.51.100.3:5555", "198.51.100.3"},
		{"remote addr ipv6", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"remote without port", nil, "198.51.100.4", "198.51.100.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil))
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
