// Package clickhouse stores records in ClickHouse through the native protocol.
// Tables and views come from pkg/schema and are migrated on open.
package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/rollup"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/schema"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
)

// Config holds ClickHouse connection parameters
type Config struct {
	// Addr is host:port of the native protocol endpoint
	Addr     string
	Database string
	User     string
	Password string

	// TLS enables a TLS connection (ClickHouse Cloud)
	TLS bool
}

// Storage implements storage.Storage on ClickHouse
type Storage struct {
	conn driver.Conn
	db   string
}

// New opens a connection, pings it and applies the schema.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	options := &ch.Options{
		Addr: []string{cfg.Addr},
		// The target database may not exist yet; everything below is
		// qualified with it.
		Auth: ch.Auth{
			Database: "default",
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: ch.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      5 * time.Second,
		MaxOpenConns:     5,
		MaxIdleConns:     2,
		ConnMaxLifetime:  5 * time.Minute,
		ConnOpenStrategy: ch.ConnOpenInOrder,
		Compression: &ch.Compression{
			Method: ch.CompressionLZ4,
		},
	}
	if cfg.TLS {
		options.TLS = &tls.Config{}
	}

	conn, err := ch.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	if err := schema.Migrate(ctx, conn, cfg.Database); err != nil {
		conn.Close()
		return nil, err
	}

	return &Storage{conn: conn, db: cfg.Database}, nil
}

func (s *Storage) table(name string) string {
	return s.db + "." + name
}

// WriteErrors inserts error records in one batch
func (s *Storage) WriteErrors(ctx context.Context, records []record.ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, insert(s.table("errors"), schema.ErrorColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Abort()

	for _, r := range records {
		row, err := toErrorRow(r)
		if err != nil {
			return err
		}
		if err := batch.AppendStruct(&row); err != nil {
			return fmt.Errorf("failed to append error: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to write errors: %w", err)
	}
	return nil
}

// WriteLogs inserts log records in one batch
func (s *Storage) WriteLogs(ctx context.Context, records []record.LogRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, insert(s.table("logs"), schema.LogColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Abort()

	for _, r := range records {
		row, err := toLogRow(r)
		if err != nil {
			return err
		}
		if err := batch.AppendStruct(&row); err != nil {
			return fmt.Errorf("failed to append log: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to write logs: %w", err)
	}
	return nil
}

// QueryErrors reads a tenant's error records, newest first
func (s *Storage) QueryErrors(ctx context.Context, q storage.ErrorQuery) ([]record.ErrorRecord, error) {
	if q.ClientID == "" {
		return nil, storage.ErrMissingClientID
	}
	query, args := errorQuery(s.table("errors"), q)

	var rows []errorRow
	if err := s.conn.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	out := make([]record.ErrorRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

// QueryLogs reads a tenant's log records, newest first
func (s *Storage) QueryLogs(ctx context.Context, q storage.LogQuery) ([]record.LogRecord, error) {
	if q.ClientID == "" {
		return nil, storage.ErrMissingClientID
	}
	query, args := logQuery(s.table("logs"), q)

	var rows []logRow
	if err := s.conn.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	out := make([]record.LogRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

// ErrorSummary reads the error_summary view. Rolling windows are computed by
// the server against its own clock, so q.Now is ignored.
func (s *Storage) ErrorSummary(ctx context.Context, q storage.SummaryQuery) ([]rollup.ErrorSummary, error) {
	if q.ClientID == "" {
		return nil, storage.ErrMissingClientID
	}
	query := `SELECT * FROM ` + s.table("error_summary") + `
WHERE client_id = ?
ORDER BY total_occurrences DESC, last_occurrence DESC` + limit(q.Limit)

	var rows []summaryRow
	if err := s.conn.Select(ctx, &rows, query, q.ClientID); err != nil {
		return nil, fmt.Errorf("failed to query error summary: %w", err)
	}
	out := make([]rollup.ErrorSummary, len(rows))
	for i, row := range rows {
		out[i] = row.summary()
	}
	return out, nil
}

// UserSummary merges the per-user aggregate states
func (s *Storage) UserSummary(ctx context.Context, q storage.SummaryQuery) ([]rollup.UserSummary, error) {
	if q.ClientID == "" {
		return nil, storage.ErrMissingClientID
	}
	query := `SELECT
    client_id,
    user_id,
    groupUniqArrayMerge(error_types) AS types,
    groupUniqArrayMerge(severities) AS sevs,
    max(last_error_at) AS last_at,
    sum(total) AS n
FROM ` + s.table("user_error_summary") + `
WHERE client_id = ?
GROUP BY client_id, user_id
ORDER BY last_at DESC, user_id` + limit(q.Limit)

	var rows []userRow
	if err := s.conn.Select(ctx, &rows, query, q.ClientID); err != nil {
		return nil, fmt.Errorf("failed to query user summary: %w", err)
	}
	out := make([]rollup.UserSummary, len(rows))
	for i, row := range rows {
		out[i] = row.summary()
	}
	return out, nil
}

// ErrorTrend counts errors per step over the raw table
func (s *Storage) ErrorTrend(ctx context.Context, q storage.TrendQuery) ([]rollup.Bucket, error) {
	if q.ClientID == "" {
		return nil, storage.ErrMissingClientID
	}
	query, args, err := trendQuery(s.table("errors"), q)
	if err != nil {
		return nil, err
	}

	var rows []bucketRow
	if err := s.conn.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query trend: %w", err)
	}
	out := make([]rollup.Bucket, len(rows))
	for i, row := range rows {
		out[i] = rollup.Bucket{Start: row.Bucket.UTC(), Group: row.Group, Count: row.Count}
	}
	return out, nil
}

// Delete issues mutations removing raw and hourly rows older than the cutoff.
// Mutations run asynchronously on the server.
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	stmts := []string{
		`ALTER TABLE ` + s.table("errors") + ` DELETE WHERE created_at < ?`,
		`ALTER TABLE ` + s.table("logs") + ` DELETE WHERE created_at < ?`,
		`ALTER TABLE ` + s.table("error_hourly") + ` DELETE WHERE hour < ?`,
	}
	for _, stmt := range stmts {
		if err := s.conn.Exec(ctx, stmt, before); err != nil {
			return fmt.Errorf("failed to delete: %w", err)
		}
	}
	return nil
}

// Close closes the connection
func (s *Storage) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Stats returns row counts, time range and on-disk size
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{}
	track := func(table string, total *uint64) error {
		var minTS, maxTS time.Time
		row := s.conn.QueryRow(ctx, `SELECT count(), min(created_at), max(created_at) FROM `+s.table(table))
		if err := row.Scan(total, &minTS, &maxTS); err != nil {
			return fmt.Errorf("failed to stat %s: %w", table, err)
		}
		if *total == 0 {
			return nil
		}
		if stats.Oldest.IsZero() || minTS.Before(stats.Oldest) {
			stats.Oldest = minTS
		}
		if maxTS.After(stats.Newest) {
			stats.Newest = maxTS
		}
		return nil
	}
	if err := track("errors", &stats.TotalErrors); err != nil {
		return nil, err
	}
	if err := track("logs", &stats.TotalLogs); err != nil {
		return nil, err
	}

	row := s.conn.QueryRow(ctx, `SELECT sum(bytes_on_disk) FROM system.parts WHERE database = ? AND active`, s.db)
	if err := row.Scan(&stats.SizeBytes); err != nil {
		return nil, fmt.Errorf("failed to stat parts: %w", err)
	}
	return stats, nil
}

func insert(table string, columns []string) string {
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ")"
}

func limit(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", n)
}

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = ?", value)
	}
}

func (w *where) window(start, end time.Time) {
	if !start.IsZero() {
		w.add("created_at >= ?", start)
	}
	if !end.IsZero() {
		w.add("created_at <= ?", end)
	}
}

func (w *where) String() string {
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func errorQuery(table string, q storage.ErrorQuery) (string, []any) {
	var w where
	w.add("client_id = ?", q.ClientID)
	w.window(q.Start, q.End)
	w.eq("error_type", string(q.ErrorType))
	w.eq("severity", string(q.Severity))
	w.eq("status", string(q.Status))
	w.eq("source", q.Source)
	w.eq("environment", q.Environment)
	w.eq("user_id", q.UserID)
	w.eq("session_id", q.SessionID)
	if q.Search != "" {
		w.add("positionCaseInsensitiveUTF8(message, ?) > 0", q.Search)
	}

	query := "SELECT " + strings.Join(schema.ErrorColumns, ", ") + " FROM " + table +
		w.String() + " ORDER BY created_at DESC" + limit(q.Limit)
	return query, w.args
}

func logQuery(table string, q storage.LogQuery) (string, []any) {
	var w where
	w.add("client_id = ?", q.ClientID)
	w.window(q.Start, q.End)
	// Enum8 values are declared in rank order
	if q.MinLevel != "" {
		w.add("level >= ?", string(q.MinLevel))
	}
	w.eq("source", q.Source)
	w.eq("user_id", q.UserID)
	w.eq("session_id", q.SessionID)
	if q.Search != "" {
		w.add("positionCaseInsensitiveUTF8(message, ?) > 0", q.Search)
	}

	query := "SELECT " + strings.Join(schema.LogColumns, ", ") + " FROM " + table +
		w.String() + " ORDER BY created_at DESC" + limit(q.Limit)
	return query, w.args
}

func trendQuery(table string, q storage.TrendQuery) (string, []any, error) {
	step := int64(q.Step / time.Second)
	if step <= 0 {
		return "", nil, fmt.Errorf("trend step must be at least one second, got %v", q.Step)
	}

	var group string
	switch q.GroupBy {
	case rollup.GroupNone:
		group = "''"
	case rollup.GroupSeverity:
		group = "ifNull(toString(severity), '')"
	case rollup.GroupErrorType:
		group = "ifNull(toString(error_type), '')"
	case rollup.GroupSource:
		group = "ifNull(source, '')"
	default:
		return "", nil, fmt.Errorf("unknown trend grouping %q", q.GroupBy)
	}

	var w where
	w.add("client_id = ?", q.ClientID)
	w.add("created_at >= ?", q.Start)
	w.add("created_at < ?", q.End)

	query := fmt.Sprintf(`SELECT
    toDateTime(toStartOfInterval(created_at, INTERVAL %d SECOND), 'UTC') AS bucket,
    %s AS grp,
    count() AS n
FROM %s%s
GROUP BY bucket, grp
ORDER BY bucket, grp`, step, group, table, w.String())
	return query, w.args, nil
}
