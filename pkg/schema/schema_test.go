package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	stmts  []string
	failAt int
}

func (e *recordingExecer) Exec(_ context.Context, query string, _ ...any) error {
	e.stmts = append(e.stmts, query)
	if e.failAt > 0 && len(e.stmts) == e.failAt {
		return errors.New("syntax error")
	}
	return nil
}

func TestMigrate(t *testing.T) {
	db := &recordingExecer{}
	require.NoError(t, Migrate(context.Background(), db, "analytics"))

	require.Len(t, db.stmts, 8)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS analytics", db.stmts[0])
	for _, stmt := range db.stmts {
		assert.NotContains(t, stmt, "{db}")
	}
	assert.Contains(t, db.stmts[1], "CREATE TABLE IF NOT EXISTS analytics.errors")
	assert.Contains(t, db.stmts[4], "TO analytics.error_hourly")
}

func TestMigrateStopsOnError(t *testing.T) {
	db := &recordingExecer{failAt: 3}
	err := Migrate(context.Background(), db, "analytics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 3")
	assert.Len(t, db.stmts, 3)
}

func TestStatementsRejectsBadDatabase(t *testing.T) {
	for _, name := range []string{"", "a-b", "x; DROP TABLE y", "1abc"} {
		_, err := Statements(name)
		assert.Error(t, err, name)
	}
}

func TestErrorsTableLayout(t *testing.T) {
	stmts, err := Statements("db")
	require.NoError(t, err)
	ddl := stmts[1]

	assert.Contains(t, ddl, "PARTITION BY toYYYYMM(created_at)")
	assert.Contains(t, ddl, "ORDER BY (id, error_type, severity, created_at)")
	assert.Contains(t, ddl, "PROJECTION by_tenant (SELECT * ORDER BY (client_id, created_at))")
	assert.Contains(t, ddl, "error_type Nullable(Enum8(")
	assert.Contains(t, ddl, "source LowCardinality(Nullable(String))")
	for _, col := range []string{"client_id", "user_id", "session_id", "url", "endpoint", "tags", "message", "stack_trace"} {
		assert.Contains(t, ddl, "INDEX idx_"+col+" "+col+" TYPE", col)
	}

	logs := stmts[2]
	assert.Contains(t, logs, "ORDER BY (client_id, level, created_at)")
	assert.Contains(t, logs, "PARTITION BY toYYYYMM(created_at)")
}

func TestColumnsMatchDDL(t *testing.T) {
	stmts, err := Statements("db")
	require.NoError(t, err)

	for _, col := range ErrorColumns {
		assert.Contains(t, stmts[1], "\n    "+col+" ", col)
	}
	for _, col := range LogColumns {
		assert.Contains(t, stmts[2], "\n    "+col+" ", col)
	}
	columnDefs := strings.Split(stmts[1], "INDEX")[0]
	assert.Equal(t, len(ErrorColumns), strings.Count(columnDefs, ",\n"), "one definition per column")
}
