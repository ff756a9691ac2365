package services

import "strings"

// isUniqueConstraintErr reports whether a record save failed on a SQLite
// unique index. Anything else (validation, disk, aborted transaction) must
// stay a plain error so callers do not misread a transient failure as a
// duplicate.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
