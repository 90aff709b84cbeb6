package httpx

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

var (
	numericID = regexp.MustCompile(`/\d+`)
	uuidID    = regexp.MustCompile(`/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
)

// Middleware returns HTTP middleware that reports failed requests.
// It reports:
//   - panics, as critical errors; the client gets a 500
//   - responses with a 5xx status, as high severity errors
//
// Reports are sent in the background through the client's dispatcher, so a
// slow or failing ingest API never delays the response. Client.Close waits
// for pending reports.
//
// Usage:
//
//	client := sdk.New(sdk.Config{...})
//	defer client.Close(ctx)
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", handler)
//	handler := httpx.Middleware(client)(mux)
//	http.ListenAndServe(":8080", handler)
func Middleware(client *sdk.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap ResponseWriter to capture status code
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			defer func() {
				p := recover()
				if p == nil {
					if rw.statusCode >= http.StatusInternalServerError {
						err := fmt.Errorf("%s %s returned %d", r.Method, normalizePath(r.URL.Path), rw.statusCode)
						report(client, r, rw, start, err, sdk.ErrorData{})
					}
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				if !rw.wroteHeader {
					rw.WriteHeader(http.StatusInternalServerError)
				}
				err, ok := p.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", p)
				}
				report(client, r, rw, start, err, sdk.ErrorData{ErrorRecord: record.ErrorRecord{
					Severity: record.SeverityCritical,
					Tags:     []string{"panic"},
				}})
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

func report(client *sdk.Client, r *http.Request, rw *responseWriter, start time.Time, err error, data sdk.ErrorData) {
	sc := sdk.RequestContext(r)
	sc.URL = normalizePath(r.URL.Path)
	sc.StatusCode = rw.statusCode
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	sc.ResponseTimeMs = &elapsed

	if data.Severity == "" {
		data.Severity = sdk.SeverityForStatus(rw.statusCode)
	}
	client.CaptureExceptionAsync(r.Context(), err, data, sc)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// normalizePath normalizes paths so that endpoints group well.
// Examples:
//   - /api/users/123 → /api/users/{id}
//   - /posts/456/comments → /posts/{id}/comments
//   - /api/users/0b7c9a4e-1d2f-4c3b-9a8e-7f6d5c4b3a21 → /api/users/{id}
func normalizePath(path string) string {
	path = uuidID.ReplaceAllString(path, "/{id}")
	return numericID.ReplaceAllString(path, "/{id}")
}
