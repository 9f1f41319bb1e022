// Package repository holds the MySQL data access layer.  The sentinel
// errors below let the service layer tell storage outcomes apart without
// inspecting driver errors itself.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrEventNotFound is returned when an event lookup yields no rows.
	ErrEventNotFound = errors.New("event not found")
	// ErrBookingNotFound is returned when a booking lookup yields no rows.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrDuplicateKey is returned when an insert hits a unique key, for
	// bookings the (event_id, seat_id) key.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrLockTimeout is returned when a statement gave up waiting for a row
	// lock or was chosen as a deadlock victim.  The transaction has been
	// rolled back by MySQL and may be retried.
	ErrLockTimeout = errors.New("lock wait timeout")
	// ErrEmailExists is returned when registering an email twice.
	ErrEmailExists = errors.New("email already exists")
)

// MySQL server error numbers the repositories translate.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errLockDeadlock    = 1213
)

// translate maps driver errors onto the package sentinels.  Anything it
// does not recognise is returned unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errLockWaitTimeout, errLockDeadlock:
			return ErrLockTimeout
		case errDupEntry:
			return ErrDuplicateKey
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrLockTimeout
	}
	return err
}

// isNoRows reports whether err means the query matched nothing.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
