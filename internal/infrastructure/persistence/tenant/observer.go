package tenant

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const observerCallback = "tenant:connection_observer"

// registerErrorObserver installs an after-callback on every statement kind that
// reports connection-level failures to onFailure.
func registerErrorObserver(db *gorm.DB, onFailure func(err error)) error {
	observe := func(tx *gorm.DB) {
		if IsConnectionError(tx.Error) {
			onFailure(tx.Error)
		}
	}

	cb := db.Callback()
	registrations := []func(string, func(*gorm.DB)) error{
		cb.Query().After("gorm:query").Register,
		cb.Create().After("gorm:create").Register,
		cb.Update().After("gorm:update").Register,
		cb.Delete().After("gorm:delete").Register,
		cb.Row().After("gorm:row").Register,
		cb.Raw().After("gorm:raw").Register,
	}
	for _, register := range registrations {
		if err := register(observerCallback, observe); err != nil {
			return err
		}
	}
	return nil
}

// IsConnectionError reports whether err means the connection to the database is
// unusable, as opposed to a failure of the statement itself. Context cancellation
// and deadlines belong to the operation and are not connection errors.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception; 57P01-03: admin shutdown, crash shutdown, cannot connect now
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return strings.Contains(err.Error(), "sql: database is closed")
}
