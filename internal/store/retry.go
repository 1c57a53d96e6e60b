package store

import (
	"database/sql"
	"log"
	"math/rand"
	"strings"
	"time"
)

// Busy-retry wrapper around database/sql, adapted verbatim in spirit
// from the teacher's internal/database/sqlite_retry.go: sqlite under
// concurrent writers returns SQLITE_BUSY/"database is locked" and the
// caller is expected to back off and retry rather than fail the
// request outright.
const (
	maxRetries = 200
	baseDelay  = 10 * time.Millisecond
	maxDelay   = 50 * time.Millisecond
)

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "database table is locked") ||
		strings.Contains(s, "busy") ||
		strings.Contains(s, "locked")
}

func retryableExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err = db.Exec(query, args...)
		if !isRetryableError(err) {
			return result, err
		}
		if attempt < maxRetries-1 {
			backoff(attempt)
		}
	}
	return result, err
}

func retryableQuery(db *sql.DB, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		rows, err = db.Query(query, args...)
		if !isRetryableError(err) {
			return rows, err
		}
		if attempt < maxRetries-1 {
			backoff(attempt)
		}
	}
	return rows, err
}

func retryableQueryRowScan(db *sql.DB, query string, args []interface{}, dest ...interface{}) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = db.QueryRow(query, args...).Scan(dest...)
		if !isRetryableError(err) {
			return err
		}
		if attempt < maxRetries-1 {
			backoff(attempt)
		}
	}
	return err
}

func backoff(attempt int) {
	delay := time.Duration(attempt+1) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	time.Sleep(delay + jitter)
	log.Printf("Store: retrying after busy sqlite (attempt %d/%d)", attempt+1, maxRetries)
}
