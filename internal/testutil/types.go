package testutil

import "time"

// ExecutionRecord is the wall-clock window in which one sleeper step ran.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether both records were running at some common instant.
func (r *ExecutionRecord) Overlaps(other *ExecutionRecord) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}
