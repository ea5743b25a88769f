package database

import (
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// withRetry runs fn, retrying with exponential backoff (capped at 300ms) while
// SQLite reports the database as locked. The journal file may be read by a
// concurrent history command while the watcher is writing.
func withRetry(fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsDatabaseLocked),
		retry.LastErrorOnly(true),
	)
}

// IsDatabaseLocked returns true if the error indicates a database lock.
func IsDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}
