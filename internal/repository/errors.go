// Package repository implements the seat catalog, screening inventory and
// reservation ledger on MySQL.  Driver errors are translated here so the
// layers above only ever see model errors: a duplicate key on the active
// claim index becomes a seat conflict, while deadlocks, lock wait timeouts
// and broken connections become model.TransientError and are retried by
// the booking engine.  A failed COMMIT is the exception: its outcome is
// unknown and it surfaces as model.ErrUnavailable without a retry.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/movie-reservation/internal/model"
)

// MySQL server error numbers the repositories care about.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// Unique index names from schema.sql.
const (
	keyActiveClaim = "uk_active_claim"
	keyBookingRef  = "uk_booking_ref"
)

// errClaimRace is returned from inside a hold transaction when the claim
// insert hits uk_active_claim after the locking read saw the seats free.
var errClaimRace = errors.New("active claim inserted concurrently")

// classify maps driver failures onto model errors.  Errors that are already
// model errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return model.Transient(err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errDeadlock || me.Number == errLockWaitTimeout
	}
	return false
}

// isDuplicate reports a 1062 error on the named unique key.  MySQL 8 quotes
// the key as 'table.key'; older servers use the bare name.
func isDuplicate(err error, key string) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != errDupEntry {
		return false
	}
	return strings.Contains(me.Message, "."+key+"'") || strings.Contains(me.Message, "'"+key+"'")
}

// withTx runs fn inside a transaction.  The transaction is rolled back
// unless fn returns nil and the commit succeeds.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return commitFailed(err)
	}
	committed = true
	return nil
}

// commitFailed reports a failed COMMIT.  A broken connection at this point
// may hide a commit the server already applied, so unlike failures inside
// the transaction it is never classified as transient.
func commitFailed(err error) error {
	return fmt.Errorf("%w: %w: %w", model.ErrUnavailable, model.ErrOutcomeUnknown, err)
}

// inClause returns "?, ?, ?" for n ids together with the ids as query args.
func inClause(ids []uint64) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}
