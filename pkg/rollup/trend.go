package rollup

import (
	"sort"
	"time"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// GroupBy selects the series a trend is split into.
type GroupBy string

const (
	GroupNone      GroupBy = ""
	GroupSeverity  GroupBy = "severity"
	GroupErrorType GroupBy = "error_type"
	GroupSource    GroupBy = "source"
)

// Valid reports whether g is a known grouping.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupNone, GroupSeverity, GroupErrorType, GroupSource:
		return true
	}
	return false
}

// Bucket is the number of errors in one time step of one series.
type Bucket struct {
	Start time.Time `json:"start"`
	Group string    `json:"group,omitempty"`
	Count uint64    `json:"count"`
}

// Trend counts records in [start, end) per step. Buckets are aligned to
// multiples of step since the Unix epoch; empty buckets are omitted. The
// result is ordered by time, then group.
func Trend(records []record.ErrorRecord, start, end time.Time, step time.Duration, group GroupBy) []Bucket {
	if step <= 0 {
		return nil
	}
	type key struct {
		start time.Time
		group string
	}
	counts := make(map[key]uint64)
	for _, r := range records {
		if r.CreatedAt.Before(start) || !r.CreatedAt.Before(end) {
			continue
		}
		k := key{start: floor(r.CreatedAt, step), group: groupOf(r, group)}
		counts[k]++
	}

	out := make([]Bucket, 0, len(counts))
	for k, n := range counts {
		out = append(out, Bucket{Start: k.start, Group: k.group, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Group < out[j].Group
	})
	return out
}

// floor aligns t to a multiple of step since the Unix epoch. time.Truncate
// aligns to the zero Time instead, which differs for steps that don't divide
// a day.
func floor(t time.Time, step time.Duration) time.Time {
	n := t.UnixNano()
	rem := n % int64(step)
	if rem < 0 {
		rem += int64(step)
	}
	return time.Unix(0, n-rem).UTC()
}

func groupOf(r record.ErrorRecord, group GroupBy) string {
	switch group {
	case GroupSeverity:
		return string(r.Severity)
	case GroupErrorType:
		return string(r.ErrorType)
	case GroupSource:
		return r.Source
	}
	return ""
}
