package store

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/hadv/ethaura-passkeys/internal/apierror"
)

// isBusy reports whether err is a SQLITE_BUSY condition that survived the
// driver's internal busy_timeout retries.
func isBusy(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked
}

// isUniqueViolation reports whether err is a SQLite uniqueness/primary-key
// constraint violation.
func isUniqueViolation(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// wrapNotFound converts sql.ErrNoRows into the taxonomy's NotFound error.
func wrapNotFound(what string) *apierror.Error {
	return apierror.New(apierror.CodeNotFound, what+" not found")
}
