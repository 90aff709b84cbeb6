// Package query serves the dashboard read API over the storage contract.
package query

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/httpx"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/rollup"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
)

// Handler handles dashboard queries
type Handler struct {
	store  storage.Storage
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a new query handler
func NewHandler(store storage.Storage, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger, now: time.Now}
}

// ListResponse wraps every successful read
type ListResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
	Count   int  `json:"count"`
}

func respondList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	httpx.RespondJSON(w, http.StatusOK, ListResponse{Success: true, Data: items, Count: len(items)})
}

// HandleErrors handles GET /v1/errors
func (h *Handler) HandleErrors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID, start, end, limit, ok := h.common(w, r)
	if !ok {
		return
	}

	req := storage.ErrorQuery{
		ClientID:    clientID,
		Start:       start,
		End:         end,
		ErrorType:   record.ErrorType(q.Get("error_type")),
		Severity:    record.Severity(q.Get("severity")),
		Status:      record.Status(q.Get("status")),
		Source:      q.Get("source"),
		Environment: q.Get("environment"),
		UserID:      q.Get("user_id"),
		SessionID:   q.Get("session_id"),
		Search:      q.Get("search"),
		Limit:       limit,
	}
	switch {
	case !req.ErrorType.Valid():
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("invalid error_type %q", req.ErrorType))
		return
	case !req.Severity.Valid():
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("invalid severity %q", req.Severity))
		return
	case !req.Status.Valid():
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", req.Status))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	results, err := h.store.QueryErrors(ctx, req)
	if err != nil {
		h.fail(w, "errors", err)
		return
	}
	respondList(w, results)
}

// HandleLogs handles GET /v1/logs
func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID, start, end, limit, ok := h.common(w, r)
	if !ok {
		return
	}

	req := storage.LogQuery{
		ClientID:  clientID,
		Start:     start,
		End:       end,
		Source:    q.Get("source"),
		UserID:    q.Get("user_id"),
		SessionID: q.Get("session_id"),
		Search:    q.Get("search"),
		Limit:     limit,
	}
	if lvl := q.Get("level"); lvl != "" {
		parsed, err := record.ParseLevel(lvl)
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}
		req.MinLevel = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	results, err := h.store.QueryLogs(ctx, req)
	if err != nil {
		h.fail(w, "logs", err)
		return
	}
	respondList(w, results)
}

// HandleErrorSummary handles GET /v1/summary/errors
func (h *Handler) HandleErrorSummary(w http.ResponseWriter, r *http.Request) {
	req, ok := h.summaryQuery(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	results, err := h.store.ErrorSummary(ctx, req)
	if err != nil {
		h.fail(w, "error summary", err)
		return
	}
	respondList(w, results)
}

// HandleUserSummary handles GET /v1/summary/users
func (h *Handler) HandleUserSummary(w http.ResponseWriter, r *http.Request) {
	req, ok := h.summaryQuery(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	results, err := h.store.UserSummary(ctx, req)
	if err != nil {
		h.fail(w, "user summary", err)
		return
	}
	respondList(w, results)
}

// HandleTrend handles GET /v1/trend
func (h *Handler) HandleTrend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		httpx.RespondError(w, http.StatusBadRequest, ErrMissingClientID)
		return
	}
	start, end, err := parseWindow(q, h.now())
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	step, err := parseStep(q.Get("step"), end.Sub(start))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	group := rollup.GroupBy(q.Get("group_by"))
	if !group.Valid() {
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("invalid group_by %q", group))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	buckets, err := h.store.ErrorTrend(ctx, storage.TrendQuery{
		ClientID: clientID,
		Start:    start,
		End:      end,
		Step:     step,
		GroupBy:  group,
	})
	if err != nil {
		h.fail(w, "trend", err)
		return
	}
	respondList(w, buckets)
}

// HandleStats handles GET /v1/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	stats, err := h.store.Stats(ctx)
	if err != nil {
		h.fail(w, "stats", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, stats)
}

// common parses the parameters every record listing takes
func (h *Handler) common(w http.ResponseWriter, r *http.Request) (string, time.Time, time.Time, int, bool) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		httpx.RespondError(w, http.StatusBadRequest, ErrMissingClientID)
		return "", time.Time{}, time.Time{}, 0, false
	}
	start, end, err := parseWindow(q, h.now())
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return "", time.Time{}, time.Time{}, 0, false
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return "", time.Time{}, time.Time{}, 0, false
	}
	return clientID, start, end, limit, true
}

func (h *Handler) summaryQuery(w http.ResponseWriter, r *http.Request) (storage.SummaryQuery, bool) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		httpx.RespondError(w, http.StatusBadRequest, ErrMissingClientID)
		return storage.SummaryQuery{}, false
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return storage.SummaryQuery{}, false
	}
	return storage.SummaryQuery{ClientID: clientID, Now: h.now(), Limit: limit}, true
}

func (h *Handler) fail(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.RespondErrorString(w, http.StatusGatewayTimeout, what+" query timed out")
		return
	}
	h.logger.Error("query failed", zap.String("query", what), zap.Error(err))
	httpx.RespondErrorString(w, http.StatusInternalServerError, what+" query failed")
}
