package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/rollup"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// ErrMissingClientID is returned by reads that do not name a tenant.
var ErrMissingClientID = errors.New("client_id is required")

// Storage defines the interface for record storage backends.
// Implementations: memory (testing), badger (single node), clickhouse (production)
type Storage interface {
	// WriteErrors stores error records
	WriteErrors(ctx context.Context, records []record.ErrorRecord) error

	// WriteLogs stores log records
	WriteLogs(ctx context.Context, records []record.LogRecord) error

	// QueryErrors retrieves one tenant's error records, newest first
	QueryErrors(ctx context.Context, q ErrorQuery) ([]record.ErrorRecord, error)

	// QueryLogs retrieves one tenant's log records, newest first
	QueryLogs(ctx context.Context, q LogQuery) ([]record.LogRecord, error)

	// ErrorSummary returns per-group error rollups, most frequent first
	ErrorSummary(ctx context.Context, q SummaryQuery) ([]rollup.ErrorSummary, error)

	// UserSummary returns per-user error rollups, most recent first
	UserSummary(ctx context.Context, q SummaryQuery) ([]rollup.UserSummary, error)

	// ErrorTrend counts errors per time step
	ErrorTrend(ctx context.Context, q TrendQuery) ([]rollup.Bucket, error)

	// Delete removes records older than the given time
	Delete(ctx context.Context, before time.Time) error

	// Close cleanly shuts down the storage
	Close() error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)
}

// ErrorQuery specifies which error records to retrieve. Empty filters match
// everything.
type ErrorQuery struct {
	ClientID string

	// Time range on created_at, inclusive
	Start time.Time
	End   time.Time

	ErrorType   record.ErrorType
	Severity    record.Severity
	Status      record.Status
	Source      string
	Environment string
	UserID      string
	SessionID   string

	// Search is a case-insensitive substring of the message
	Search string

	// Limit number of results (0 = no limit)
	Limit int
}

// LogQuery specifies which log records to retrieve.
type LogQuery struct {
	ClientID string

	Start time.Time
	End   time.Time

	// MinLevel keeps records at or above this level
	MinLevel  record.Level
	Source    string
	UserID    string
	SessionID string
	Search    string

	Limit int
}

// SummaryQuery selects the rollups of one tenant.
type SummaryQuery struct {
	ClientID string
	// Now anchors the rolling windows. Zero means time.Now().
	Now   time.Time
	Limit int
}

// TrendQuery specifies a trend series.
type TrendQuery struct {
	ClientID string
	Start    time.Time
	End      time.Time
	Step     time.Duration
	GroupBy  rollup.GroupBy
}

// Stats provides storage health and usage info
type Stats struct {
	TotalErrors uint64 `json:"total_errors"`
	TotalLogs   uint64 `json:"total_logs"`

	// Storage size in bytes, when the backend knows it
	SizeBytes uint64 `json:"size_bytes"`

	Oldest time.Time `json:"oldest"`
	Newest time.Time `json:"newest"`
}
