package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/httpx"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/ingest"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/query"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/server/monitor"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

var startTime = time.Now()

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string               `json:"status"`
	Version string               `json:"version"`
	Uptime  string               `json:"uptime"`
	Backend string               `json:"backend"`
	Tasks   []monitor.TaskStatus `json:"tasks,omitempty"`
}

// handleHealth returns service health status. Any unhealthy task degrades
// the service.
func handleHealth(backend string, tasks ...*monitor.TaskMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:  "healthy",
			Version: Version,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Backend: backend,
		}
		statusCode := http.StatusOK

		for _, t := range tasks {
			if t == nil {
				continue
			}
			status := t.Status()
			if !status.Healthy {
				response.Status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
			response.Tasks = append(response.Tasks, status)
		}

		httpx.RespondJSON(w, statusCode, response)
	}
}

// handleStorageUsage returns current storage usage.
func handleStorageUsage(sm *monitor.StorageMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sm == nil {
			httpx.RespondErrorString(w, http.StatusNotFound, "storage usage is only tracked for the badger backend")
			return
		}
		usage, err := sm.Usage()
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
		httpx.RespondJSON(w, http.StatusOK, usage)
	}
}

// Routes bundles what SetupRoutes mounts.
type Routes struct {
	Ingest         *ingest.Handler
	Query          *query.Handler
	StorageMonitor *monitor.StorageMonitor
	Retention      *monitor.TaskMonitor
	Backend        string

	// AllowedOrigins may call the dashboard API from a browser. Localhost on
	// Port and 3000 is always allowed.
	AllowedOrigins []string
	Port           string
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(router *mux.Router, rt Routes) {
	router.Use(corsMiddleware(rt.Port, rt.AllowedOrigins))

	api := router.PathPrefix("/v1").Subrouter()

	// SDK ingestion
	api.HandleFunc("/ingest", rt.Ingest.HandleIngest).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/log", rt.Ingest.HandleLog).Methods(http.MethodPost, http.MethodOptions)

	// Dashboard reads
	api.HandleFunc("/errors", rt.Query.HandleErrors).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/logs", rt.Query.HandleLogs).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/summary/errors", rt.Query.HandleErrorSummary).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/summary/users", rt.Query.HandleUserSummary).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/trend", rt.Query.HandleTrend).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/stats", rt.Query.HandleStats).Methods(http.MethodGet, http.MethodOptions)

	// Operations
	api.HandleFunc("/storage", handleStorageUsage(rt.StorageMonitor)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/health", handleHealth(rt.Backend, rt.Retention)).Methods(http.MethodGet, http.MethodOptions)

	// Live dashboard feed
	api.HandleFunc("/ws", rt.Ingest.HandleWebSocket).Methods(http.MethodGet)
}

// corsMiddleware lets any origin post to the ingestion endpoints, since the
// browser SDK runs on customer sites. The rest of the API is restricted to
// localhost and the configured origins.
func corsMiddleware(port string, extra []string) func(http.Handler) http.Handler {
	allowedOrigins := append([]string{
		"http://localhost:" + port,
		"http://127.0.0.1:" + port,
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}, extra...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case isIngestPath(r.URL.Path):
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			case origin != "" && slices.Contains(allowedOrigins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isIngestPath(p string) bool {
	return p == "/v1/ingest" || p == "/v1/log"
}
