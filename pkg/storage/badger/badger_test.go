package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/rollup"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	// Use in-memory mode for tests
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStorage_WriteAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	testErrors := []record.ErrorRecord{
		{ID: "a", ClientID: "c1", Message: "older", CreatedAt: now.Add(-time.Minute)},
		{ID: "b", ClientID: "c1", Message: "newer", CreatedAt: now},
		{ID: "c", ClientID: "c2", Message: "other tenant", CreatedAt: now},
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
	if results[0].ID != "b" || results[1].ID != "a" {
		t.Errorf("Expected newest first, got %s then %s", results[0].ID, results[1].ID)
	}
}

func TestBadgerStorage_SameTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// Distinct ids at one instant must not overwrite each other
	var batch []record.ErrorRecord
	for i := 0; i < 10; i++ {
		batch = append(batch, record.ErrorRecord{ID: fmt.Sprintf("id-%d", i), ClientID: "c1", Message: "burst", CreatedAt: now})
	}
	if err := store.WriteErrors(ctx, batch); err != nil {
		t.Fatalf("WriteErrors failed: %v", err)
	}

	results, err := store.QueryErrors(ctx, storage.ErrorQuery{ClientID: "c1"})
	if err != nil {
		t.Fatalf("QueryErrors failed: %v", err)
	}
	if len(results) != 10 {
		t.Errorf("Expected 10 errors, got %d", len(results))
	}
}

func TestBadgerStorage_TimeWindowAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var batch []record.LogRecord
	for i := 0; i < 48; i++ {
		batch = append(batch, record.LogRecord{
			ID:        fmt.Sprintf("log-%d", i),
			ClientID:  "c1",
			Level:     record.LevelInfo,
			Message:   "tick",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	if err := store.WriteLogs(ctx, batch); err != nil {
		t.Fatalf("WriteLogs failed: %v", err)
	}

	results, err := store.QueryLogs(ctx, storage.LogQuery{
		ClientID: "c1",
		Start:    base.Add(10 * time.Hour),
		End:      base.Add(20 * time.Hour),
	})
	if err != nil {
		t.Fatalf("QueryLogs failed: %v", err)
	}
	if len(results) != 11 {
		t.Fatalf("Expected 11 logs in the window, got %d", len(results))
	}
	if !results[0].CreatedAt.Equal(base.Add(20 * time.Hour)) {
		t.Errorf("Expected window to start at the end bound, got %v", results[0].CreatedAt)
	}

	limited, err := store.QueryLogs(ctx, storage.LogQuery{ClientID: "c1", Limit: 5})
	if err != nil {
		t.Fatalf("QueryLogs failed: %v", err)
	}
	if len(limited) != 5 {
		t.Fatalf("Expected 5 logs, got %d", len(limited))
	}
	if limited[0].ID != "log-47" {
		t.Errorf("Expected newest log first, got %s", limited[0].ID)
	}
}

func TestBadgerStorage_Persistence(t *testing.T) {
	// Use temp directory for persistence test
	tmpDir, err := os.MkdirTemp("", "badger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	now := time.Now()

	// Write to first instance
	{
		store, err := New(Config{Path: tmpDir})
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}

		err = store.WriteErrors(ctx, []record.ErrorRecord{
			{ID: "p1", ClientID: "c1", Message: "persistent", CreatedAt: now},
		})
		if err != nil {
			t.Fatalf("WriteErrors failed: %v", err)
		}
		store.Close()
	}

	// Read from second instance
	{
		store, err := New(Config{Path: tmpDir})
		if err != nil {
			t.Fatalf("Failed to reopen storage: %v", err)
		}
		defer store.Close()

		results, err := store.QueryErrors(ctx, storage.ErrorQuery{ClientID: "c1"})
		if err != nil {
			t.Fatalf("QueryErrors failed: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("Expected 1 persisted error, got %d", len(results))
		}
		if results[0].Message != "persistent" {
			t.Errorf("Expected message 'persistent', got %q", results[0].Message)
		}
	}
}

func TestBadgerStorage_SlashInClientIDDoesNotLeak(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	store.WriteErrors(ctx, []record.ErrorRecord{
		{ID: "own", ClientID: "c1", Message: "mine", CreatedAt: now.Add(-time.Minute)},
		{ID: "old", ClientID: "c1/x", Message: "other tenant", CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "new", ClientID: "c1/x", Message: "other tenant", CreatedAt: now},
	})
	store.WriteLogs(ctx, []record.LogRecord{
		{ID: "l1", ClientID: "c1", Message: "mine", CreatedAt: now.Add(-time.Minute)},
		{ID: "l2", ClientID: "c1/x", Message: "other tenant", CreatedAt: now.Add(-48 * time.Hour)},
	})

	// An older record of "c1/x" must not end the scan of "c1" early.
	results, err := store.QueryErrors(ctx, storage.ErrorQuery{ClientID: "c1", Start: now.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("QueryErrors failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "own" {
		t.Fatalf("Expected only c1's record, got %+v", results)
	}

	logs, err := store.QueryLogs(ctx, storage.LogQuery{ClientID: "c1", Start: now.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("QueryLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].ID != "l1" {
		t.Fatalf("Expected only c1's log, got %+v", logs)
	}

	trend, err := store.ErrorTrend(ctx, storage.TrendQuery{
		ClientID: "c1", Start: now.Add(-time.Hour), End: now.Add(time.Hour), Step: time.Hour,
	})
	if err != nil {
		t.Fatalf("ErrorTrend failed: %v", err)
	}
	var total uint64
	for _, b := range trend {
		total += b.Count
	}
	if total != 1 {
		t.Errorf("Expected 1 error in c1's trend, got %d", total)
	}

	other, err := store.QueryErrors(ctx, storage.ErrorQuery{ClientID: "c1/x"})
	if err != nil {
		t.Fatalf("QueryErrors failed: %v", err)
	}
	if len(other) != 2 {
		t.Errorf("Expected 2 records for c1/x, got %d", len(other))
	}
}

func TestBadgerStorage_RejectsOversizedClientID(t *testing.T) {
	store := newTestStore(t)
	long := strings.Repeat("a", MaxClientIDLen+1)

	err := store.WriteErrors(context.Background(), []record.ErrorRecord{{ID: "1", ClientID: long, CreatedAt: time.Now()}})
	if !errors.Is(err, ErrClientIDTooLong) {
		t.Errorf("Expected ErrClientIDTooLong, got %v", err)
	}
}

func TestBadgerStorage_Summaries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	store.WriteErrors(ctx, []record.ErrorRecord{
		{ID: "1", ClientID: "c1", ErrorType: record.ErrorTypeNetwork, Severity: record.SeverityHigh, UserID: "u1", Status: record.StatusResolved, CreatedAt: now.Add(-time.Hour)},
		{ID: "2", ClientID: "c1", ErrorType: record.ErrorTypeNetwork, Severity: record.SeverityHigh, UserID: "u2", CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "3", ClientID: "c1/x", ErrorType: record.ErrorTypeNetwork, Severity: record.SeverityHigh, UserID: "u1", CreatedAt: now},
	})

	summaries, err := store.ErrorSummary(ctx, storage.SummaryQuery{ClientID: "c1", Now: now})
	if err != nil {
		t.Fatalf("ErrorSummary failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(summaries))
	}
	if summaries[0].TotalOccurrences != 2 || summaries[0].ResolvedCount != 1 {
		t.Errorf("Unexpected summary: %+v", summaries[0])
	}

	users, err := store.UserSummary(ctx, storage.SummaryQuery{ClientID: "c1"})
	if err != nil {
		t.Fatalf("UserSummary failed: %v", err)
	}
	if len(users) != 2 || users[0].UserID != "u1" {
		t.Errorf("Expected u1 as most recent user, got %+v", users)
	}

	trend, err := store.ErrorTrend(ctx, storage.TrendQuery{
		ClientID: "c1",
		Start:    now.Add(-6 * time.Hour),
		End:      now,
		Step:     time.Hour,
		GroupBy:  rollup.GroupSeverity,
	})
	if err != nil {
		t.Fatalf("ErrorTrend failed: %v", err)
	}
	if len(trend) != 2 {
		t.Errorf("Expected 2 non-empty buckets, got %d", len(trend))
	}
	for _, b := range trend {
		if b.Group != string(record.SeverityHigh) {
			t.Errorf("Expected severity group, got %q", b.Group)
		}
	}
}

func TestBadgerStorage_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	store.WriteErrors(ctx, []record.ErrorRecord{
		{ID: "old", ClientID: "c1", Message: "old", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "new", ClientID: "c2", Message: "recent", CreatedAt: now},
	})
	store.WriteLogs(ctx, []record.LogRecord{
		{ID: "old-log", ClientID: "c1", Level: record.LevelInfo, Message: "old", CreatedAt: now.Add(-2 * time.Hour)},
	})

	// Delete records older than 1 hour
	if err := store.Delete(ctx, now.Add(-1*time.Hour)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalErrors != 1 || stats.TotalLogs != 0 {
		t.Errorf("Expected 1 error and 0 logs after delete, got %d and %d", stats.TotalErrors, stats.TotalLogs)
	}
}

func TestBadgerStorage_CancelledContext(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.WriteErrors(ctx, []record.ErrorRecord{{ClientID: "c1"}}); err == nil {
		t.Error("Expected error for cancelled context")
	}
	if _, err := store.QueryErrors(ctx, storage.ErrorQuery{ClientID: "c1"}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestBadgerStorage_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	store.WriteErrors(ctx, []record.ErrorRecord{{ID: "1", ClientID: "c1", CreatedAt: now}})
	store.WriteLogs(ctx, []record.LogRecord{{ID: "1", ClientID: "c1", CreatedAt: now.Add(-time.Minute)}})

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalErrors != 1 || stats.TotalLogs != 1 {
		t.Errorf("Expected 1 error and 1 log, got %d and %d", stats.TotalErrors, stats.TotalLogs)
	}
	if !stats.Oldest.Equal(time.Unix(0, now.Add(-time.Minute).UnixNano())) {
		t.Errorf("Unexpected oldest: %v", stats.Oldest)
	}
}
