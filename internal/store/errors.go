package store

import "strings"

// IsConflict reports whether err is a transient SQLite lock conflict
// (SQLITE_BUSY or "database is locked") that warrants a retry.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
