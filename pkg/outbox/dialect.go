package outbox

import (
	"fmt"
	"strings"
)

// SQLDialect represents a SQL database dialect.
type SQLDialect string

// Supported database dialects.
const (
	SQLDialectSQLServer SQLDialect = "sqlserver"
	SQLDialectPostgres  SQLDialect = "postgres"
	SQLDialectMySQL     SQLDialect = "mysql"
	SQLDialectMariaDB   SQLDialect = "mariadb"
	SQLDialectOracle    SQLDialect = "oracle"
	SQLDialectSQLite    SQLDialect = "sqlite"
)

// Outbox table columns, in insert order.
var columns = []string{
	"OUT_ID",
	"OUT_TOPIC",
	"OUT_PAYLOAD",
	"OUT_SPEC_VERSION",
	"OUT_SOURCE",
	"OUT_TYPE",
	"OUT_TIME",
	"OUT_DATA_CONTENT_TYPE",
	"OUT_TRACE_ID",
	"OUT_CREATED_AT",
	"OUT_PROCESSED_AT",
	"OUT_RETRY_COUNT",
	"OUT_NEXT_RETRY_AT",
	"OUT_ERROR",
	"OUT_STATUS",
}

func (d SQLDialect) valid() bool {
	switch d {
	case SQLDialectSQLServer, SQLDialectPostgres, SQLDialectMySQL, SQLDialectMariaDB, SQLDialectOracle, SQLDialectSQLite:
		return true
	default:
		return false
	}
}

// placeholder returns the bind parameter for the given 1-based index.
func (d SQLDialect) placeholder(index int) string {
	switch d {
	case SQLDialectPostgres:
		return fmt.Sprintf("$%d", index)

	case SQLDialectOracle:
		return fmt.Sprintf(":%d", index)

	case SQLDialectSQLServer:
		return fmt.Sprintf("@p%d", index)

	default:
		return "?"
	}
}

// quote wraps an already validated identifier in the dialect's delimiters.
func (d SQLDialect) quote(identifier string) string {
	switch d {
	case SQLDialectSQLServer:
		return "[" + identifier + "]"
	case SQLDialectMySQL, SQLDialectMariaDB:
		return "`" + identifier + "`"
	default:
		return `"` + identifier + `"`
	}
}

func buildInsertQuery(dialect SQLDialect, table string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = dialect.quote(column)
		placeholders[i] = dialect.placeholder(i + 1)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		dialect.quote(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))
}
