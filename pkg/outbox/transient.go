package outbox

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/sijms/go-ora/v2/network"
)

// TransientClassifier reports whether a storage error is worth retrying.
type TransientClassifier func(err error) bool

// https://learn.microsoft.com/en-us/azure/azure-sql/database/troubleshoot-common-errors-issues
var sqlServerTransient = map[int32]struct{}{
	-2:    {}, // timeout
	-1:    {}, // connection broken
	2:     {}, // network error
	20:    {}, // instance not found
	53:    {}, // connection broken
	64:    {}, // connection dropped during login
	233:   {}, // connection initialization error
	1205:  {}, // deadlock victim
	1222:  {}, // lock request timeout
	4060:  {}, // cannot open database
	4221:  {}, // login timeout
	10053: {}, // transport-level error
	10054: {}, // transport-level error, forced close
	10060: {}, // network or instance-specific error
	10061: {}, // network or instance-specific error
	10928: {}, // resource limit reached
	10929: {}, // resource limit reached
	17142: {}, // too many connections
	17197: {}, // login timeout
	18401: {}, // login failed, server in script upgrade mode
	40197: {}, // service error processing request
	40501: {}, // service is busy
	40613: {}, // database unavailable
	49918: {}, // insufficient resources
	49919: {}, // too many create or update operations
	49920: {}, // too many operations
}

var mysqlTransient = map[uint16]struct{}{
	1040: {}, // too many connections
	1205: {}, // lock wait timeout
	1213: {}, // deadlock
	1226: {}, // user resource limit exceeded
	2006: {}, // server has gone away
	2013: {}, // lost connection during query
}

var postgresTransient = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53000": {}, // insufficient_resources
	"53100": {}, // disk_full
	"53200": {}, // out_of_memory
	"53300": {}, // too_many_connections
	"55P03": {}, // lock_not_available
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
}

var oracleTransient = map[int]struct{}{
	51:    {}, // timeout waiting for a resource
	54:    {}, // resource busy
	60:    {}, // deadlock
	1012:  {}, // not logged on
	3113:  {}, // end-of-file on communication channel
	3114:  {}, // not connected
	3135:  {}, // connection lost contact
	12170: {}, // connect timeout
	12514: {}, // listener does not know of service
	12528: {}, // instances blocking new connections
	12537: {}, // connection closed
	12541: {}, // no listener
	12543: {}, // destination host unreachable
}

// IsTransient is the default TransientClassifier. It recognizes the fixed transient
// code sets of SQL Server, MySQL/MariaDB, PostgreSQL (lib/pq and pgx) and Oracle,
// plus driver independent connection and timeout failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var sqlServerErr mssql.Error
	if errors.As(err, &sqlServerErr) {
		_, ok := sqlServerTransient[sqlServerErr.Number]
		return ok
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		_, ok := mysqlTransient[mysqlErr.Number]
		return ok
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isPostgresTransient(string(pqErr.Code))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isPostgresTransient(pgErr.Code)
	}

	var oraErr *network.OracleError
	if errors.As(err, &oraErr) {
		_, ok := oracleTransient[oraErr.ErrCode]
		return ok
	}

	return isConnectionFailure(err)
}

func isPostgresTransient(code string) bool {
	// class 08: connection exception
	if strings.HasPrefix(code, "08") {
		return true
	}
	_, ok := postgresTransient[code]
	return ok
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
