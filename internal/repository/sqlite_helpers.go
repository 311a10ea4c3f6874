package repository

import (
	"database/sql"
	"time"
)

// nullTime stores zero times as NULL and everything else as UTC.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return nullTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func utcOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
