package outbox

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"syscall"
	"testing"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/sijms/go-ora/v2/network"
	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("syntax error"), want: false},

		{name: "sqlserver deadlock", err: mssql.Error{Number: 1205}, want: true},
		{name: "sqlserver lock timeout", err: mssql.Error{Number: 1222}, want: true},
		{name: "sqlserver service busy", err: mssql.Error{Number: 40501}, want: true},
		{name: "sqlserver timeout", err: mssql.Error{Number: -2}, want: true},
		{name: "sqlserver wrapped", err: fmt.Errorf("exec: %w", mssql.Error{Number: 10054}), want: true},
		{name: "sqlserver primary key", err: mssql.Error{Number: 2627}, want: false},
		{name: "sqlserver invalid object", err: mssql.Error{Number: 208}, want: false},

		{name: "mysql deadlock", err: &mysql.MySQLError{Number: 1213}, want: true},
		{name: "mysql lock wait", err: &mysql.MySQLError{Number: 1205}, want: true},
		{name: "mysql duplicate", err: &mysql.MySQLError{Number: 1062}, want: false},
		{name: "mysql invalid conn", err: mysql.ErrInvalidConn, want: true},

		{name: "pq deadlock", err: &pq.Error{Code: "40P01"}, want: true},
		{name: "pq connection failure", err: &pq.Error{Code: "08006"}, want: true},
		{name: "pq unique violation", err: &pq.Error{Code: "23505"}, want: false},
		{name: "pgx serialization", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "pgx undefined table", err: &pgconn.PgError{Code: "42P01"}, want: false},

		{name: "oracle deadlock", err: &network.OracleError{ErrCode: 60}, want: true},
		{name: "oracle connection lost", err: &network.OracleError{ErrCode: 3113}, want: true},
		{name: "oracle unique constraint", err: &network.OracleError{ErrCode: 1}, want: false},

		{name: "bad conn", err: driver.ErrBadConn, want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "connection reset", err: fmt.Errorf("write: %w", syscall.ECONNRESET), want: true},
		{name: "net timeout", err: timeoutError{}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
