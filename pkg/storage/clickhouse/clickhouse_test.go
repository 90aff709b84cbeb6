//go:build integration

package clickhouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/rollup"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage/clickhouse"
)

// setupClickHouse starts a ClickHouse container and opens a migrated store.
func setupClickHouse(t *testing.T) *clickhouse.Storage {
	t.Helper()
	ctx := context.Background()

	container, err := tcclickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.8-alpine",
		tcclickhouse.WithUsername("default"),
		tcclickhouse.WithPassword("secret"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	addr, err := container.ConnectionHost(ctx)
	require.NoError(t, err)

	store, err := clickhouse.New(ctx, clickhouse.Config{
		Addr:     addr,
		Database: "better_analytics",
		User:     "default",
		Password: "secret",
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestClickHouseStorage(t *testing.T) {
	store := setupClickHouse(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	errs := []record.ErrorRecord{
		{ID: uuid.NewString(), ClientID: "c1", ErrorType: record.ErrorTypeServer, Severity: record.SeverityHigh, Message: "db timeout", UserID: "u1", Status: record.StatusNew, Tags: []string{"db"}, CreatedAt: now.Add(-time.Hour)},
		{ID: uuid.NewString(), ClientID: "c1", ErrorType: record.ErrorTypeServer, Severity: record.SeverityHigh, Message: "db refused", UserID: "u1", Status: record.StatusResolved, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: uuid.NewString(), ClientID: "c2", ErrorType: record.ErrorTypeClient, Message: "other tenant", CreatedAt: now},
	}
	require.NoError(t, store.WriteErrors(ctx, errs))
	require.NoError(t, store.WriteLogs(ctx, []record.LogRecord{
		{ID: uuid.NewString(), ClientID: "c1", Level: record.LevelInfo, Message: "started", CreatedAt: now},
		{ID: uuid.NewString(), ClientID: "c1", Level: record.LevelError, Message: "crashed", CreatedAt: now},
	}))

	t.Run("query errors", func(t *testing.T) {
		got, err := store.QueryErrors(ctx, storage.ErrorQuery{ClientID: "c1", Search: "DB"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "db timeout", got[0].Message)
		assert.Equal(t, []string{"db"}, got[0].Tags)
		assert.Equal(t, errs[0].ID, got[0].ID)
	})

	t.Run("query logs", func(t *testing.T) {
		got, err := store.QueryLogs(ctx, storage.LogQuery{ClientID: "c1", MinLevel: record.LevelWarn})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "crashed", got[0].Message)
	})

	t.Run("error summary", func(t *testing.T) {
		got, err := store.ErrorSummary(ctx, storage.SummaryQuery{ClientID: "c1"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, uint64(2), got[0].TotalOccurrences)
		assert.Equal(t, uint64(1), got[0].ResolvedCount)
		assert.Equal(t, uint64(1), got[0].NewErrors)
		assert.Equal(t, uint64(2), got[0].Last24h)
	})

	t.Run("user summary", func(t *testing.T) {
		got, err := store.UserSummary(ctx, storage.SummaryQuery{ClientID: "c1"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "u1", got[0].UserID)
		assert.Equal(t, uint64(2), got[0].TotalErrors)
		assert.Equal(t, []record.ErrorType{record.ErrorTypeServer}, got[0].ErrorTypes)
	})

	t.Run("trend", func(t *testing.T) {
		got, err := store.ErrorTrend(ctx, storage.TrendQuery{
			ClientID: "c1",
			Start:    now.Add(-24 * time.Hour),
			End:      now.Add(time.Minute),
			Step:     time.Hour,
			GroupBy:  rollup.GroupSeverity,
		})
		require.NoError(t, err)
		var total uint64
		for _, b := range got {
			total += b.Count
			assert.Equal(t, "high", b.Group)
		}
		assert.Equal(t, uint64(2), total)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), stats.TotalErrors)
		assert.Equal(t, uint64(2), stats.TotalLogs)
	})
}
