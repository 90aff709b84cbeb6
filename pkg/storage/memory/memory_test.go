package memory

import (
	"context"
	"testing"
	"time"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/rollup"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
)

func TestMemoryStorage_WriteAndQuery(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	// Write some errors
	testErrors := []record.ErrorRecord{
		{ID: "1", ClientID: "c1", Message: "first", Severity: record.SeverityHigh, CreatedAt: now.Add(-time.Minute)},
		{ID: "2", ClientID: "c1", Message: "second", Severity: record.SeverityLow, CreatedAt: now},
		{ID: "3", ClientID: "c2", Message: "other tenant", CreatedAt: now},
	}

	if err := store.WriteErrors(ctx, testErrors); err != nil {
		t.Fatalf("WriteErrors failed: %v", err)
	}

	results, err := store.QueryErrors(ctx, storage.ErrorQuery{
		ClientID: "c1",
		Start:    now.Add(-1 * time.Hour),
		End:      now.Add(1 * time.Hour),
	})
	if err != nil {
		t.Fatalf("QueryErrors failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(results))
	}
	if results[0].ID != "2" {
		t.Errorf("Expected newest first, got %s", results[0].ID)
	}
}

func TestMemoryStorage_QueryWithFilters(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	store.WriteErrors(ctx, []record.ErrorRecord{
		{ClientID: "c1", Message: "Database timeout", Severity: record.SeverityHigh, UserID: "u1", CreatedAt: now},
		{ClientID: "c1", Message: "render failed", Severity: record.SeverityHigh, CreatedAt: now},
		{ClientID: "c1", Message: "slow page", Severity: record.SeverityLow, CreatedAt: now},
	})

	tests := []struct {
		name  string
		query storage.ErrorQuery
		want  int
	}{
		{"severity", storage.ErrorQuery{ClientID: "c1", Severity: record.SeverityHigh}, 2},
		{"user", storage.ErrorQuery{ClientID: "c1", UserID: "u1"}, 1},
		{"search is case-insensitive", storage.ErrorQuery{ClientID: "c1", Search: "database"}, 1},
		{"limit", storage.ErrorQuery{ClientID: "c1", Limit: 1}, 1},
		{"window excludes", storage.ErrorQuery{ClientID: "c1", Start: now.Add(time.Minute)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.QueryErrors(ctx, tt.query)
			if err != nil {
				t.Fatalf("QueryErrors failed: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("Expected %d errors, got %d", tt.want, len(results))
			}
		})
	}

	if _, err := store.QueryErrors(ctx, storage.ErrorQuery{}); err != storage.ErrMissingClientID {
		t.Errorf("Expected ErrMissingClientID, got %v", err)
	}
}

func TestMemoryStorage_Logs(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	store.WriteLogs(ctx, []record.LogRecord{
		{ClientID: "c1", Level: record.LevelDebug, Message: "cache miss", CreatedAt: now},
		{ClientID: "c1", Level: record.LevelWarn, Message: "slow", CreatedAt: now},
		{ClientID: "c1", Level: record.LevelError, Message: "boom", CreatedAt: now},
	})

	results, err := store.QueryLogs(ctx, storage.LogQuery{ClientID: "c1", MinLevel: record.LevelWarn})
	if err != nil {
		t.Fatalf("QueryLogs failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 logs at warn or above, got %d", len(results))
	}
}

func TestMemoryStorage_Summaries(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	store.WriteErrors(ctx, []record.ErrorRecord{
		{ClientID: "c1", ErrorType: record.ErrorTypeClient, Message: "a", UserID: "u1", Status: record.StatusNew, CreatedAt: now.Add(-time.Hour)},
		{ClientID: "c1", ErrorType: record.ErrorTypeClient, Message: "b", UserID: "u1", Status: record.StatusNew, CreatedAt: now.Add(-2 * time.Hour)},
		{ClientID: "c1", ErrorType: record.ErrorTypeServer, Message: "c", CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{ClientID: "c2", ErrorType: record.ErrorTypeServer, Message: "d", CreatedAt: now},
	})

	summaries, err := store.ErrorSummary(ctx, storage.SummaryQuery{ClientID: "c1", Now: now})
	if err != nil {
		t.Fatalf("ErrorSummary failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(summaries))
	}
	if summaries[0].TotalOccurrences != 2 || summaries[0].Last24h != 2 || summaries[0].NewErrors != 2 {
		t.Errorf("Unexpected top summary: %+v", summaries[0])
	}

	users, err := store.UserSummary(ctx, storage.SummaryQuery{ClientID: "c1"})
	if err != nil {
		t.Fatalf("UserSummary failed: %v", err)
	}
	if len(users) != 1 || users[0].TotalErrors != 2 {
		t.Errorf("Unexpected user summary: %+v", users)
	}

	trend, err := store.ErrorTrend(ctx, storage.TrendQuery{
		ClientID: "c1",
		Start:    now.Add(-24 * time.Hour),
		End:      now,
		Step:     time.Hour,
		GroupBy:  rollup.GroupErrorType,
	})
	if err != nil {
		t.Fatalf("ErrorTrend failed: %v", err)
	}
	var total uint64
	for _, b := range trend {
		total += b.Count
	}
	if total != 2 {
		t.Errorf("Expected 2 errors in trend, got %d", total)
	}
}

func TestMemoryStorage_Delete(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	store.WriteErrors(ctx, []record.ErrorRecord{
		{ClientID: "c1", Message: "old", CreatedAt: now.Add(-2 * time.Hour)},
		{ClientID: "c1", Message: "recent", CreatedAt: now},
	})
	store.WriteLogs(ctx, []record.LogRecord{
		{ClientID: "c1", Level: record.LevelInfo, Message: "old", CreatedAt: now.Add(-2 * time.Hour)},
	})

	// Delete records older than 1 hour
	if err := store.Delete(ctx, now.Add(-1*time.Hour)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	stats, _ := store.Stats(ctx)
	if stats.TotalErrors != 1 || stats.TotalLogs != 0 {
		t.Errorf("Expected 1 error and 0 logs after delete, got %d and %d", stats.TotalErrors, stats.TotalLogs)
	}
	if !stats.Oldest.Equal(now) {
		t.Errorf("Expected oldest to be the recent record, got %v", stats.Oldest)
	}
}
