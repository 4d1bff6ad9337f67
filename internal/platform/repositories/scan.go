package repositories

import (
	"database/sql"
	"time"
)

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func unixOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func stringOrNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
