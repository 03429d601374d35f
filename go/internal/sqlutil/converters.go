package sqlutil

import (
	"database/sql"
	"time"
)

// NullString stores empty strings as NULL
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Seconds reads a nullable integer column holding whole seconds. NULL is zero.
func Seconds(v sql.NullInt32) time.Duration {
	if !v.Valid {
		return 0
	}
	return time.Duration(v.Int32) * time.Second
}

// TimePtr converts a nullable timestamp to a UTC pointer, nil for NULL
func TimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
