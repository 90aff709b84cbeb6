// Package ingest receives error and log records from the SDKs, assigns the
// server-owned fields, enriches errors with geolocation, persists them and
// notifies live dashboards.
package ingest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/geo"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/httpx"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
)

// Options configures a Handler. Zero values disable the matching feature.
type Options struct {
	// Token, when set, must be presented as a bearer token
	Token string

	// Geo resolves client IPs. Defaults to geo.Nop.
	Geo geo.Lookup

	// Anonymizer replaces the client IP before storage. Without one the IP
	// is not stored at all.
	Anonymizer *geo.Anonymizer

	// Hub receives an event per persisted record
	Hub *Hub

	// Storage rejects writes once the data directory is full
	Storage StorageChecker

	Logger *zap.Logger
}

// Handler handles record ingestion
type Handler struct {
	store   storage.Storage
	token   string
	geo     geo.Lookup
	anon    *geo.Anonymizer
	hub     *Hub
	checker StorageChecker
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandler creates a new ingest handler
func NewHandler(store storage.Storage, opts Options) *Handler {
	h := &Handler{
		store:   store,
		token:   opts.Token,
		geo:     opts.Geo,
		anon:    opts.Anonymizer,
		hub:     opts.Hub,
		checker: opts.Storage,
		logger:  opts.Logger,
		now:     time.Now,
	}
	if h.geo == nil {
		h.geo = geo.Nop{}
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// IngestResponse is the body of a successful ingest
type IngestResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// Realtime event types
const (
	EventErrorIngested = "error_ingested"
	EventLogIngested   = "log_ingested"
)

// HandleIngest handles the /v1/ingest endpoint
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var rec record.ErrorRecord
	if !h.accept(w, r, &rec) {
		return
	}
	if err := rec.Validate(); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	now := h.now().UTC()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.FirstOccurrence = now
	rec.LastOccurrence = now
	rec.OccurrenceCount = 1
	if rec.Status == "" {
		rec.Status = record.StatusNew
	}
	h.locate(r, &rec)

	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	if err := h.store.WriteErrors(ctx, []record.ErrorRecord{rec}); err != nil {
		h.logger.Error("failed to store error", zap.String("client_id", rec.ClientID), zap.Error(err))
		httpx.RespondErrorString(w, http.StatusInternalServerError, "failed to store error")
		return
	}

	h.hub.Publish(rec.ClientID, Event{Type: EventErrorIngested, ClientID: rec.ClientID, ID: rec.ID})
	httpx.RespondJSON(w, http.StatusOK, IngestResponse{Success: true, ID: rec.ID})
}

// HandleLog handles the /v1/log endpoint
func (h *Handler) HandleLog(w http.ResponseWriter, r *http.Request) {
	var rec record.LogRecord
	if !h.accept(w, r, &rec) {
		return
	}
	if err := rec.Validate(); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	rec.ID = uuid.NewString()
	rec.CreatedAt = h.now().UTC()

	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	if err := h.store.WriteLogs(ctx, []record.LogRecord{rec}); err != nil {
		h.logger.Error("failed to store log", zap.String("client_id", rec.ClientID), zap.Error(err))
		httpx.RespondErrorString(w, http.StatusInternalServerError, "failed to store log")
		return
	}

	h.hub.Publish(rec.ClientID, Event{Type: EventLogIngested, ClientID: rec.ClientID, ID: rec.ID})
	httpx.RespondJSON(w, http.StatusOK, IngestResponse{Success: true, ID: rec.ID})
}

// accept runs the checks shared by both endpoints and decodes the body into
// v. It writes the error response itself and reports whether to continue.
func (h *Handler) accept(w http.ResponseWriter, r *http.Request, v any) bool {
	if !h.authorized(r) {
		httpx.RespondError(w, http.StatusUnauthorized, ErrUnauthorized)
		return false
	}
	if err := checkStorage(h.checker); err != nil {
		h.logger.Warn("rejecting ingest", zap.Error(err))
		httpx.RespondError(w, http.StatusInsufficientStorage, err)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, http.StatusRequestEntityTooLarge, ErrBodyTooLarge)
			return false
		}
		httpx.RespondError(w, http.StatusBadRequest, ErrInvalidJSON)
		return false
	}
	return true
}

// authorized checks the bearer token, or the token query parameter for
// websocket upgrades where browsers can't set headers.
func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// locate fills the geo fields from the request's address. The stored
// ip_address is always the anonymized token, never the client's value.
func (h *Handler) locate(r *http.Request, rec *record.ErrorRecord) {
	ip := ClientIP(r)

	ctx, cancel := context.WithTimeout(r.Context(), config.GeoLookupTimeout)
	defer cancel()

	loc := h.geo.Lookup(ctx, ip)
	rec.Country = loc.Country
	rec.Region = loc.Region
	rec.City = loc.City
	rec.Org = loc.Org
	rec.Postal = loc.Postal
	rec.Loc = loc.Loc

	rec.IPAddress = ""
	if h.anon != nil {
		rec.IPAddress = h.anon.Anonymize(ip)
	}
}
