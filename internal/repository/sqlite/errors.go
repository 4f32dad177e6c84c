package sqlite

import (
	"database/sql"
	"errors"
	"strings"
)

// The driver surfaces constraint failures as strings rather than typed
// errors, so the repositories classify by message. Unique violations come
// from duplicate usernames, email addresses, and role names; foreign key
// violations from attempts or tokens that reference a deleted account.

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed: UNIQUE")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
