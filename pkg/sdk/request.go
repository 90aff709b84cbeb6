package sdk

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/enrich"
)

// StatusCoder is implemented by response types that expose a status code.
type StatusCoder interface {
	StatusCode() int
}

// RequestContext extracts server context from a request. req may be an
// *http.Request or a decoded map such as {"method": "POST", "url": "/x",
// "headers": {...}, "user": {"id": "u1"}}. Missing fields stay empty.
func RequestContext(req any) *enrich.ServerContext {
	sc := &enrich.ServerContext{}
	switch r := req.(type) {
	case *http.Request:
		if r == nil {
			return sc
		}
		sc.Method = r.Method
		if r.URL != nil {
			sc.URL = r.URL.RequestURI()
		}
		sc.RequestID = r.Header.Get("X-Request-Id")
		sc.UserAgent = r.UserAgent()
	case map[string]any:
		sc.Method = lookupString(r, "method")
		sc.URL = lookupString(r, "url")
		if sc.URL == "" {
			sc.URL = lookupString(r, "originalUrl")
		}
		sc.RequestID = lookupString(r, "headers", "x-request-id")
		sc.UserAgent = lookupString(r, "headers", "user-agent")
		sc.UserID = lookupString(r, "user", "id")
	}
	return sc
}

// StatusOf extracts a status code from res: an int, a StatusCoder, an
// *http.Response or a map with "statusCode" or "status". Unknown shapes
// give 0.
func StatusOf(res any) int {
	switch r := res.(type) {
	case int:
		return r
	case StatusCoder:
		return r.StatusCode()
	case *http.Response:
		if r == nil {
			return 0
		}
		return r.StatusCode
	case map[string]any:
		if code := lookupInt(r, "statusCode"); code != 0 {
			return code
		}
		return lookupInt(r, "status")
	}
	return 0
}

// lookup walks path through nested maps and headers, returning nil as soon
// as a step is missing.
func lookup(v any, path ...string) any {
	for _, key := range path {
		switch m := v.(type) {
		case map[string]any:
			v = m[key]
		case map[string]string:
			s, ok := m[key]
			if !ok {
				return nil
			}
			v = s
		case http.Header:
			s := m.Get(key)
			if s == "" {
				return nil
			}
			v = s
		default:
			return nil
		}
	}
	return v
}

func lookupString(v any, path ...string) string {
	switch s := lookup(v, path...).(type) {
	case string:
		return s
	case []string:
		return strings.Join(s, ", ")
	}
	return ""
}

func lookupInt(v any, path ...string) int {
	switch n := lookup(v, path...).(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
