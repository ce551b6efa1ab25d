package test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oagudo/courier/pkg/courier"
	"github.com/oagudo/courier/pkg/outbox"
)

const prefix = "ARQ"

var outboxTable = outbox.TableName(prefix)

// createOutboxTableQuery returns the DDL of the outbox table for dialect.
// Provisioning the schema is left to the application, this one only backs the tests.
func createOutboxTableQuery(dialect outbox.SQLDialect) string {
	text, timestamp, integer := "VARCHAR(255)", "TIMESTAMP", "INT"
	payload := "TEXT"

	switch dialect {
	case outbox.SQLDialectSQLServer:
		text, timestamp, payload = "NVARCHAR(255)", "DATETIME2", "NVARCHAR(MAX)"
	case outbox.SQLDialectOracle:
		text, timestamp, integer, payload = "VARCHAR2(255)", "TIMESTAMP", "NUMBER(10)", "CLOB"
	case outbox.SQLDialectMySQL, outbox.SQLDialectMariaDB:
		timestamp = "DATETIME(6)"
	case outbox.SQLDialectSQLite:
		text, timestamp, integer = "TEXT", "DATETIME", "INTEGER"
	}

	columns := []string{
		fmt.Sprintf("%s %s NOT NULL PRIMARY KEY", quote(dialect, "OUT_ID"), text),
		fmt.Sprintf("%s %s NOT NULL", quote(dialect, "OUT_TOPIC"), text),
		fmt.Sprintf("%s %s NOT NULL", quote(dialect, "OUT_PAYLOAD"), payload),
		fmt.Sprintf("%s %s NOT NULL", quote(dialect, "OUT_SPEC_VERSION"), text),
		fmt.Sprintf("%s %s NOT NULL", quote(dialect, "OUT_SOURCE"), text),
		fmt.Sprintf("%s %s NOT NULL", quote(dialect, "OUT_TYPE"), text),
		fmt.Sprintf("%s %s NOT NULL", quote(dialect, "OUT_TIME"), timestamp),
		fmt.Sprintf("%s %s NOT NULL", quote(dialect, "OUT_DATA_CONTENT_TYPE"), text),
		fmt.Sprintf("%s %s", quote(dialect, "OUT_TRACE_ID"), text),
		fmt.Sprintf("%s %s NOT NULL", quote(dialect, "OUT_CREATED_AT"), timestamp),
		fmt.Sprintf("%s %s", quote(dialect, "OUT_PROCESSED_AT"), timestamp),
		fmt.Sprintf("%s %s NOT NULL", quote(dialect, "OUT_RETRY_COUNT"), integer),
		fmt.Sprintf("%s %s", quote(dialect, "OUT_NEXT_RETRY_AT"), timestamp),
		fmt.Sprintf("%s %s", quote(dialect, "OUT_ERROR"), payload),
		fmt.Sprintf("%s %s NOT NULL", quote(dialect, "OUT_STATUS"), integer),
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteTable(dialect), strings.Join(columns, ", "))
}

func quoteTable(dialect outbox.SQLDialect) string {
	return quote(dialect, outboxTable)
}

// quote matches the store, which quotes every identifier in upper case.
func quote(dialect outbox.SQLDialect, identifier string) string {
	switch dialect {
	case outbox.SQLDialectSQLServer:
		return "[" + identifier + "]"
	case outbox.SQLDialectMySQL, outbox.SQLDialectMariaDB:
		return "`" + identifier + "`"
	default:
		return `"` + identifier + `"`
	}
}

func newStore(t *testing.T, dialect outbox.SQLDialect) *outbox.Store {
	t.Helper()
	store, err := outbox.NewStore(prefix,
		outbox.WithDialect(dialect),
		outbox.WithRetries(3),
		outbox.WithRetryInterval(10*time.Millisecond))
	require.NoError(t, err)
	return store
}

func record(id string) *outbox.Record {
	return &outbox.Record{
		ID:              id,
		Topic:           "orders",
		Payload:         `{"orderId":1}`,
		SpecVersion:     courier.DefaultSpecVersion,
		Source:          "urn:orders",
		Type:            "order.created",
		Time:            time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		DataContentType: string(courier.ContentTypeJSON),
	}
}

type storedRow struct {
	topic  string
	status int
	retry  int
}

func readRow(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, dialect outbox.SQLDialect, id string) (storedRow, error) {
	placeholder := "?"
	switch dialect {
	case outbox.SQLDialectPostgres:
		placeholder = "$1"
	case outbox.SQLDialectOracle:
		placeholder = ":1"
	case outbox.SQLDialectSQLServer:
		placeholder = "@p1"
	}

	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s = %s",
		quote(dialect, "OUT_TOPIC"), quote(dialect, "OUT_STATUS"), quote(dialect, "OUT_RETRY_COUNT"),
		quoteTable(dialect), quote(dialect, "OUT_ID"), placeholder)

	var row storedRow
	err := q.QueryRowContext(ctx, query, id).Scan(&row.topic, &row.status, &row.retry)
	return row, err
}

type fakeProducer struct {
	status courier.DeliveryStatus
	err    error
}

func (p fakeProducer) Send(context.Context, courier.Message) (courier.DeliveryStatus, error) {
	return p.status, p.err
}
