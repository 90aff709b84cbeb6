// Package rollup computes the dashboard aggregates from raw records. The
// ClickHouse backend reads the same aggregates from its summary views; the
// other backends compute them here.
package rollup

import (
	"sort"
	"time"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// ErrorKey is the grouping key of an error summary. Null values group as "".
type ErrorKey struct {
	ClientID    string           `json:"client_id"`
	ErrorType   record.ErrorType `json:"error_type"`
	Severity    record.Severity  `json:"severity"`
	ErrorCode   string           `json:"error_code"`
	ErrorName   string           `json:"error_name"`
	Source      string           `json:"source"`
	Environment string           `json:"environment"`
}

// ErrorSummary aggregates every occurrence of one ErrorKey.
type ErrorSummary struct {
	ErrorKey
	TotalOccurrences uint64    `json:"total_occurrences"`
	FirstOccurrence  time.Time `json:"first_occurrence"`
	LastOccurrence   time.Time `json:"last_occurrence"`
	ResolvedCount    uint64    `json:"resolved_count"`
	NewErrors        uint64    `json:"new_errors"`
	Last24h          uint64    `json:"last_24h"`
	Last7d           uint64    `json:"last_7d"`
	Last30d          uint64    `json:"last_30d"`
}

// UserSummary aggregates the errors one user ran into.
type UserSummary struct {
	ClientID    string             `json:"client_id"`
	UserID      string             `json:"user_id"`
	ErrorTypes  []record.ErrorType `json:"error_types"`
	Severities  []record.Severity  `json:"severities"`
	TotalErrors uint64             `json:"total_errors"`
	LastErrorAt time.Time          `json:"last_error_at"`
}

// Rolling windows.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
)

func keyOf(r record.ErrorRecord) ErrorKey {
	return ErrorKey{
		ClientID:    r.ClientID,
		ErrorType:   r.ErrorType,
		Severity:    r.Severity,
		ErrorCode:   r.ErrorCode,
		ErrorName:   r.ErrorName,
		Source:      r.Source,
		Environment: r.Environment,
	}
}

// Errors groups records by ErrorKey. Rolling counts are relative to now.
// The result is ordered by total occurrences, most frequent first.
func Errors(records []record.ErrorRecord, now time.Time) []ErrorSummary {
	groups := make(map[ErrorKey]*ErrorSummary)
	for _, r := range records {
		k := keyOf(r)
		s, ok := groups[k]
		if !ok {
			s = &ErrorSummary{ErrorKey: k, FirstOccurrence: r.CreatedAt, LastOccurrence: r.CreatedAt}
			groups[k] = s
		}
		s.TotalOccurrences++
		if r.CreatedAt.Before(s.FirstOccurrence) {
			s.FirstOccurrence = r.CreatedAt
		}
		if r.CreatedAt.After(s.LastOccurrence) {
			s.LastOccurrence = r.CreatedAt
		}
		switch r.Status {
		case record.StatusResolved:
			s.ResolvedCount++
		case record.StatusNew:
			s.NewErrors++
		}

		age := now.Sub(r.CreatedAt)
		if age <= Day {
			s.Last24h++
		}
		if age <= Week {
			s.Last7d++
		}
		if age <= Month {
			s.Last30d++
		}
	}

	out := make([]ErrorSummary, 0, len(groups))
	for _, s := range groups {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalOccurrences != out[j].TotalOccurrences {
			return out[i].TotalOccurrences > out[j].TotalOccurrences
		}
		return out[i].LastOccurrence.After(out[j].LastOccurrence)
	})
	return out
}

// Users groups records by user. Records without a user id are skipped. The
// result is ordered by last error, most recent first.
func Users(records []record.ErrorRecord) []UserSummary {
	type acc struct {
		sum        UserSummary
		types      map[record.ErrorType]struct{}
		severities map[record.Severity]struct{}
	}
	type userKey struct{ client, user string }

	groups := make(map[userKey]*acc)
	for _, r := range records {
		if r.UserID == "" {
			continue
		}
		k := userKey{r.ClientID, r.UserID}
		a, ok := groups[k]
		if !ok {
			a = &acc{
				sum:        UserSummary{ClientID: r.ClientID, UserID: r.UserID},
				types:      make(map[record.ErrorType]struct{}),
				severities: make(map[record.Severity]struct{}),
			}
			groups[k] = a
		}
		a.sum.TotalErrors++
		if r.CreatedAt.After(a.sum.LastErrorAt) {
			a.sum.LastErrorAt = r.CreatedAt
		}
		if r.ErrorType != "" {
			a.types[r.ErrorType] = struct{}{}
		}
		if r.Severity != "" {
			a.severities[r.Severity] = struct{}{}
		}
	}

	out := make([]UserSummary, 0, len(groups))
	for _, a := range groups {
		s := a.sum
		for t := range a.types {
			s.ErrorTypes = append(s.ErrorTypes, t)
		}
		for sev := range a.severities {
			s.Severities = append(s.Severities, sev)
		}
		sort.Slice(s.ErrorTypes, func(i, j int) bool { return s.ErrorTypes[i] < s.ErrorTypes[j] })
		sort.Slice(s.Severities, func(i, j int) bool { return s.Severities[i] < s.Severities[j] })
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastErrorAt.Equal(out[j].LastErrorAt) {
			return out[i].LastErrorAt.After(out[j].LastErrorAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
