package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/rollup"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
)

// Storage stores records in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	errors []record.ErrorRecord
	logs   []record.LogRecord
	mu     sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		errors: make([]record.ErrorRecord, 0, 1024),
		logs:   make([]record.LogRecord, 0, 1024),
	}
}

// WriteErrors stores error records in memory
func (s *Storage) WriteErrors(ctx context.Context, records []record.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors = append(s.errors, records...)
	return nil
}

// WriteLogs stores log records in memory
func (s *Storage) WriteLogs(ctx context.Context, records []record.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, records...)
	return nil
}

// QueryErrors retrieves error records matching the query
func (s *Storage) QueryErrors(ctx context.Context, q storage.ErrorQuery) ([]record.ErrorRecord, error) {
	if q.ClientID == "" {
		return nil, storage.ErrMissingClientID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []record.ErrorRecord
	for _, r := range s.errors {
		if storage.MatchError(r, q) {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// QueryLogs retrieves log records matching the query
func (s *Storage) QueryLogs(ctx context.Context, q storage.LogQuery) ([]record.LogRecord, error) {
	if q.ClientID == "" {
		return nil, storage.ErrMissingClientID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []record.LogRecord
	for _, r := range s.logs {
		if storage.MatchLog(r, q) {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// ErrorSummary computes per-group rollups for one tenant
func (s *Storage) ErrorSummary(ctx context.Context, q storage.SummaryQuery) ([]rollup.ErrorSummary, error) {
	tenant, err := s.tenantErrors(q.ClientID)
	if err != nil {
		return nil, err
	}
	out := rollup.Errors(tenant, q.At())
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// UserSummary computes per-user rollups for one tenant
func (s *Storage) UserSummary(ctx context.Context, q storage.SummaryQuery) ([]rollup.UserSummary, error) {
	tenant, err := s.tenantErrors(q.ClientID)
	if err != nil {
		return nil, err
	}
	out := rollup.Users(tenant)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ErrorTrend counts one tenant's errors per step
func (s *Storage) ErrorTrend(ctx context.Context, q storage.TrendQuery) ([]rollup.Bucket, error) {
	tenant, err := s.tenantErrors(q.ClientID)
	if err != nil {
		return nil, err
	}
	return rollup.Trend(tenant, q.Start, q.End, q.Step, q.GroupBy), nil
}

func (s *Storage) tenantErrors(clientID string) ([]record.ErrorRecord, error) {
	if clientID == "" {
		return nil, storage.ErrMissingClientID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []record.ErrorRecord
	for _, r := range s.errors {
		if r.ClientID == clientID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Delete removes records older than the given time
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Filter out old records
	errs := make([]record.ErrorRecord, 0, len(s.errors))
	for _, r := range s.errors {
		if !r.CreatedAt.Before(before) {
			errs = append(errs, r)
		}
	}
	logs := make([]record.LogRecord, 0, len(s.logs))
	for _, r := range s.logs {
		if !r.CreatedAt.Before(before) {
			logs = append(logs, r)
		}
	}

	s.errors = errs
	s.logs = logs
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		TotalErrors: uint64(len(s.errors)),
		TotalLogs:   uint64(len(s.logs)),
	}

	// Track min/max timestamps in single pass
	track := func(ts time.Time) {
		if stats.Oldest.IsZero() || ts.Before(stats.Oldest) {
			stats.Oldest = ts
		}
		if ts.After(stats.Newest) {
			stats.Newest = ts
		}
	}
	for _, r := range s.errors {
		track(r.CreatedAt)
	}
	for _, r := range s.logs {
		track(r.CreatedAt)
	}

	// Rough size estimate (each record ~1 KB)
	stats.SizeBytes = (stats.TotalErrors + stats.TotalLogs) * 1024

	return stats, nil
}
