package sqlite

import (
	"fmt"
	"time"
)

// parseStoredTime converts an updated_at TEXT column back to time.Time.
// Save writes RFC3339Nano, so that is the only layout accepted here.
func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse updated_at %q: %w", s, err)
	}
	return t, nil
}
