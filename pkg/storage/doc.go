/*
Package storage provides the pluggable storage abstraction for error and log
records.

# Storage Interface

Three backends implement the Storage interface:
  - memory: mutex-guarded slices, for tests and development
  - badger: BadgerDB (LSM tree + Snappy compression) for single-node deployments
  - clickhouse: ClickHouse over the native protocol, with server-side rollups

Every read is scoped to one tenant. A query without a ClientID fails with
ErrMissingClientID rather than scanning across tenants.

# Rollups

ErrorSummary, UserSummary and ErrorTrend return the dashboard aggregates.
ClickHouse reads them from the materialized views in pkg/schema. The memory
and badger backends compute them from raw records with pkg/rollup, which
follows the same grouping rules: NULL groups as "", rolling windows are
relative to SummaryQuery.Now, trend buckets are aligned to the epoch and
empty buckets are omitted.

# Usage Example

	store, err := badger.New(badger.Config{Path: "./data"})
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	err = store.WriteErrors(ctx, []record.ErrorRecord{rec})

	recent, err := store.QueryErrors(ctx, storage.ErrorQuery{
	    ClientID: "client-123",
	    Start:    time.Now().Add(-24 * time.Hour),
	    Severity: record.SeverityCritical,
	    Limit:    100,
	})

	trend, err := store.ErrorTrend(ctx, storage.TrendQuery{
	    ClientID: "client-123",
	    Start:    time.Now().Add(-7 * 24 * time.Hour),
	    End:      time.Now(),
	    Step:     time.Hour,
	    GroupBy:  rollup.GroupSeverity,
	})

# Retention

Delete removes records of every tenant created before a cutoff. The server
runs it on a schedule (see pkg/server). On ClickHouse it issues asynchronous
mutations; rows disappear once the mutation completes.

# Best Practices

1. Always call Close() when done to flush pending writes
2. Use context.WithTimeout() to prevent hung queries
3. Bound queries with a time window and Limit
*/
package storage
