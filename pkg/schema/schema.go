// Package schema defines the ClickHouse tables and views that error and log
// records are persisted into, and applies them.
//
// Every dashboard query filters by tenant and time window first, so the raw
// tables are partitioned by month and carry a (client_id, created_at)
// projection or sort key. Categorical columns are enums or LowCardinality
// for cheap grouping. Summary views read pre-aggregated hourly rows.
package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Execer runs one DDL statement. clickhouse-go's driver.Conn satisfies it.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ErrorColumns is the column order of the errors table.
var ErrorColumns = []string{
	"id", "client_id", "error_type", "severity", "error_code", "error_name",
	"message", "stack_trace", "source", "environment",
	"user_agent", "browser_name", "browser_version", "os_name", "os_version",
	"device_type", "viewport_width", "viewport_height",
	"connection_type", "connection_effective_type", "connection_downlink",
	"connection_rtt", "device_memory", "device_cpu_cores",
	"url", "page_title", "referrer",
	"server_name", "service_name", "service_version", "endpoint",
	"http_method", "http_status_code", "request_id",
	"user_id", "session_id",
	"ip_address", "country", "region", "city", "org", "postal", "loc",
	"response_time_ms", "memory_usage_mb", "cpu_usage_percent",
	"first_occurrence", "last_occurrence", "occurrence_count", "status",
	"resolved_at", "resolved_by", "resolution_notes",
	"custom_data", "tags", "created_at", "updated_at",
}

// LogColumns is the column order of the logs table.
var LogColumns = []string{
	"id", "client_id", "level", "message", "context", "source",
	"environment", "user_id", "session_id", "tags", "created_at",
}

const createDatabase = `CREATE DATABASE IF NOT EXISTS {db}`

const createErrors = `CREATE TABLE IF NOT EXISTS {db}.errors (
    id UUID,
    client_id String,
    error_type Nullable(Enum8('client' = 1, 'server' = 2, 'network' = 3, 'database' = 4, 'validation' = 5, 'auth' = 6, 'business' = 7, 'unknown' = 8)),
    severity Nullable(Enum8('low' = 1, 'medium' = 2, 'high' = 3, 'critical' = 4)),
    error_code Nullable(String),
    error_name Nullable(String),
    message String,
    stack_trace String DEFAULT '',
    source LowCardinality(Nullable(String)),
    environment LowCardinality(Nullable(String)),

    user_agent Nullable(String),
    browser_name LowCardinality(Nullable(String)),
    browser_version LowCardinality(Nullable(String)),
    os_name LowCardinality(Nullable(String)),
    os_version LowCardinality(Nullable(String)),
    device_type LowCardinality(Nullable(String)),
    viewport_width Nullable(Int32),
    viewport_height Nullable(Int32),

    connection_type LowCardinality(Nullable(String)),
    connection_effective_type LowCardinality(Nullable(String)),
    connection_downlink Nullable(Float64),
    connection_rtt Nullable(Int32),
    device_memory Nullable(Float64),
    device_cpu_cores Nullable(Int32),

    url Nullable(String),
    page_title Nullable(String),
    referrer Nullable(String),

    server_name LowCardinality(Nullable(String)),
    service_name LowCardinality(Nullable(String)),
    service_version LowCardinality(Nullable(String)),
    endpoint Nullable(String),
    http_method LowCardinality(Nullable(String)),
    http_status_code Nullable(Int32),
    request_id Nullable(String),

    user_id Nullable(String),
    session_id Nullable(String),

    ip_address Nullable(String),
    country LowCardinality(Nullable(String)),
    region LowCardinality(Nullable(String)),
    city Nullable(String),
    org Nullable(String),
    postal Nullable(String),
    loc Nullable(String),

    response_time_ms Nullable(Float64),
    memory_usage_mb Nullable(Float64),
    cpu_usage_percent Nullable(Float64),

    first_occurrence DateTime64(3) DEFAULT now64(3),
    last_occurrence DateTime64(3) DEFAULT now64(3),
    occurrence_count UInt32 DEFAULT 1,
    status Nullable(Enum8('new' = 1, 'investigating' = 2, 'resolved' = 3, 'ignored' = 4, 'recurring' = 5)) DEFAULT 'new',
    resolved_at Nullable(DateTime64(3)),
    resolved_by Nullable(String),
    resolution_notes Nullable(String),

    custom_data Nullable(String),
    tags Array(String),

    created_at DateTime64(3) DEFAULT now64(3),
    updated_at DateTime64(3) DEFAULT now64(3),

    INDEX idx_client_id client_id TYPE bloom_filter(0.01) GRANULARITY 4,
    INDEX idx_user_id user_id TYPE bloom_filter(0.01) GRANULARITY 4,
    INDEX idx_session_id session_id TYPE bloom_filter(0.01) GRANULARITY 4,
    INDEX idx_url url TYPE bloom_filter(0.01) GRANULARITY 4,
    INDEX idx_endpoint endpoint TYPE bloom_filter(0.01) GRANULARITY 4,
    INDEX idx_tags tags TYPE bloom_filter(0.01) GRANULARITY 4,
    INDEX idx_message message TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4,
    INDEX idx_stack_trace stack_trace TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4,

    PROJECTION by_tenant (SELECT * ORDER BY (client_id, created_at))
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (id, error_type, severity, created_at)
SETTINGS allow_nullable_key = 1, index_granularity = 8192`

const createLogs = `CREATE TABLE IF NOT EXISTS {db}.logs (
    id UUID,
    client_id String,
    level Enum8('trace' = 1, 'debug' = 2, 'info' = 3, 'log' = 4, 'warn' = 5, 'error' = 6),
    message String,
    context Nullable(String),
    source LowCardinality(Nullable(String)),
    environment LowCardinality(Nullable(String)),
    user_id Nullable(String),
    session_id Nullable(String),
    tags Array(String),
    created_at DateTime64(3) DEFAULT now64(3),

    INDEX idx_user_id user_id TYPE bloom_filter(0.01) GRANULARITY 4,
    INDEX idx_session_id session_id TYPE bloom_filter(0.01) GRANULARITY 4,
    INDEX idx_tags tags TYPE bloom_filter(0.01) GRANULARITY 4,
    INDEX idx_message message TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (client_id, level, created_at)`

// error_hourly holds one row per group and hour. Merges fold rows with the
// same key using each column's aggregate function.
const createErrorHourly = `CREATE TABLE IF NOT EXISTS {db}.error_hourly (
    client_id String,
    hour DateTime,
    error_type LowCardinality(String),
    severity LowCardinality(String),
    error_code String,
    error_name String,
    source LowCardinality(String),
    environment LowCardinality(String),
    total SimpleAggregateFunction(sum, UInt64),
    resolved SimpleAggregateFunction(sum, UInt64),
    new_count SimpleAggregateFunction(sum, UInt64),
    first_seen SimpleAggregateFunction(min, DateTime64(3)),
    last_seen SimpleAggregateFunction(max, DateTime64(3))
)
ENGINE = AggregatingMergeTree
PARTITION BY toYYYYMM(hour)
ORDER BY (client_id, hour, error_type, severity, error_code, error_name, source, environment)`

const createErrorHourlyMV = `CREATE MATERIALIZED VIEW IF NOT EXISTS {db}.error_hourly_mv TO {db}.error_hourly AS
SELECT
    client_id,
    toStartOfHour(created_at) AS hour,
    et AS error_type,
    sev AS severity,
    code AS error_code,
    name AS error_name,
    src AS source,
    env AS environment,
    count() AS total,
    countIf(status = 'resolved') AS resolved,
    countIf(status = 'new') AS new_count,
    min(created_at) AS first_seen,
    max(created_at) AS last_seen
FROM (
    SELECT
        client_id,
        created_at,
        status,
        ifNull(toString(error_type), '') AS et,
        ifNull(toString(severity), '') AS sev,
        ifNull(error_code, '') AS code,
        ifNull(error_name, '') AS name,
        ifNull(source, '') AS src,
        ifNull(environment, '') AS env
    FROM {db}.errors
)
GROUP BY client_id, hour, et, sev, code, name, src, env`

// error_summary folds the hourly rows per group. Rolling windows have hour
// granularity.
const createErrorSummary = `CREATE VIEW IF NOT EXISTS {db}.error_summary AS
SELECT
    client_id,
    error_type,
    severity,
    error_code,
    error_name,
    source,
    environment,
    sum(total) AS total_occurrences,
    min(first_seen) AS first_occurrence,
    max(last_seen) AS last_occurrence,
    sum(resolved) AS resolved_count,
    sum(new_count) AS new_errors,
    sumIf(total, hour >= now() - INTERVAL 24 HOUR) AS last_24h,
    sumIf(total, hour >= now() - INTERVAL 7 DAY) AS last_7d,
    sumIf(total, hour >= now() - INTERVAL 30 DAY) AS last_30d
FROM {db}.error_hourly
GROUP BY client_id, error_type, severity, error_code, error_name, source, environment`

const createUserSummary = `CREATE TABLE IF NOT EXISTS {db}.user_error_summary (
    client_id String,
    user_id String,
    error_types AggregateFunction(groupUniqArray, String),
    severities AggregateFunction(groupUniqArray, String),
    last_error_at SimpleAggregateFunction(max, DateTime64(3)),
    total SimpleAggregateFunction(sum, UInt64)
)
ENGINE = AggregatingMergeTree
ORDER BY (client_id, user_id)`

const createUserSummaryMV = `CREATE MATERIALIZED VIEW IF NOT EXISTS {db}.user_error_summary_mv TO {db}.user_error_summary AS
SELECT
    client_id,
    uid AS user_id,
    groupUniqArrayState(et) AS error_types,
    groupUniqArrayState(sev) AS severities,
    max(created_at) AS last_error_at,
    count() AS total
FROM (
    SELECT
        client_id,
        created_at,
        ifNull(user_id, '') AS uid,
        ifNull(toString(error_type), '') AS et,
        ifNull(toString(severity), '') AS sev
    FROM {db}.errors
)
WHERE uid != ''
GROUP BY client_id, uid`

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Statements returns the DDL for database in the order it must be applied.
func Statements(database string) ([]string, error) {
	if !identifier.MatchString(database) {
		return nil, fmt.Errorf("invalid database name %q", database)
	}
	templates := []string{
		createDatabase,
		createErrors,
		createLogs,
		createErrorHourly,
		createErrorHourlyMV,
		createErrorSummary,
		createUserSummary,
		createUserSummaryMV,
	}
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = strings.ReplaceAll(t, "{db}", database)
	}
	return out, nil
}

// Migrate applies every statement. All statements are idempotent, so it is
// safe to run on every start.
func Migrate(ctx context.Context, db Execer, database string) error {
	stmts, err := Statements(database)
	if err != nil {
		return err
	}
	for i, stmt := range stmts {
		if err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
