// Package enrich produces best-effort snapshots of the runtime an error was
// raised in. Enrichment never performs network I/O and never fails: an
// unavailable field is left null and the rest of the snapshot still fills.
package enrich

import (
	"errors"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// ErrUnavailable is returned by environment accessors for a value the
// runtime does not expose.
var ErrUnavailable = errors.New("value unavailable")

// Enricher fills the environment fields of an error record.
type Enricher interface {
	// Enrich returns the enriched defaults. Callers merge their own fields on
	// top with record.MergeError so explicit input wins.
	Enrich(sc *ServerContext) record.ErrorRecord
}

// ServerContext carries request/response details a server handler knows
// about the failing request. Every field is optional.
type ServerContext struct {
	Method         string
	URL            string
	StatusCode     int
	RequestID      string
	UserID         string
	UserAgent      string
	ResponseTimeMs *float64
}

// get reads one optional value, mapping an error or a panic in read to
// null.
func get[T any](read func() (T, error)) (v T, ok bool) {
	defer func() {
		if recover() != nil {
			var zero T
			v, ok = zero, false
		}
	}()
	v, err := read()
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// getPtr is get for nullable numeric fields.
func getPtr[T any](read func() (T, error)) *T {
	v, ok := get(read)
	if !ok {
		return nil
	}
	return &v
}
