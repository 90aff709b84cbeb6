package storage

import (
	"strings"
	"time"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// The matchers below are shared by the backends that filter in process.

// MatchError reports whether r satisfies q.
func MatchError(r record.ErrorRecord, q ErrorQuery) bool {
	if r.ClientID != q.ClientID || !inRange(r.CreatedAt, q.Start, q.End) {
		return false
	}
	switch {
	case q.ErrorType != "" && r.ErrorType != q.ErrorType,
		q.Severity != "" && r.Severity != q.Severity,
		q.Status != "" && r.Status != q.Status,
		q.Source != "" && r.Source != q.Source,
		q.Environment != "" && r.Environment != q.Environment,
		q.UserID != "" && r.UserID != q.UserID,
		q.SessionID != "" && r.SessionID != q.SessionID:
		return false
	}
	return q.Search == "" || containsFold(r.Message, q.Search)
}

// MatchLog reports whether r satisfies q.
func MatchLog(r record.LogRecord, q LogQuery) bool {
	if r.ClientID != q.ClientID || !inRange(r.CreatedAt, q.Start, q.End) {
		return false
	}
	switch {
	case q.MinLevel != "" && !r.Level.AtLeast(q.MinLevel),
		q.Source != "" && r.Source != q.Source,
		q.UserID != "" && r.UserID != q.UserID,
		q.SessionID != "" && r.SessionID != q.SessionID:
		return false
	}
	return q.Search == "" || containsFold(r.Message, q.Search)
}

// At returns q.Now, or the current time when unset.
func (q SummaryQuery) At() time.Time {
	if q.Now.IsZero() {
		return time.Now()
	}
	return q.Now
}

func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
