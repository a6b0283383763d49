// Package repository implements MySQL and Redis persistence. Domain
// failures are reported with the sentinel errors of the model package;
// the values below cover account-level failures.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrUserNotFound is returned when no user matches.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidRefresh is returned for unknown, revoked or expired refresh
// tokens. Handlers translate it into 401.
var ErrInvalidRefresh = errors.New("invalid refresh token")

const (
	mysqlErrDuplicateEntry = 1062
	mysqlErrLockDeadlock   = 1213
)

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}

func isDeadlock(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrLockDeadlock
}
