package scheduler

import (
	"fmt"
	"time"
)

// ValidationError rejects a schedule request synchronously; nothing is
// persisted when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid schedule: " + e.Reason }

func rejected(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ValidateSchedule checks a candidate publish time against now and returns
// the normalized UTC instant. Pure and deterministic given now; no hidden
// clock access.
func ValidateSchedule(candidate, now time.Time, minLead, maxHorizon time.Duration) (time.Time, error) {
	if candidate.IsZero() {
		return time.Time{}, rejected("publish time is required")
	}
	if minLead <= 0 {
		minLead = DefaultMinLead
	}
	if maxHorizon <= 0 {
		maxHorizon = DefaultMaxHorizon
	}

	c := candidate.UTC()
	if !c.After(now.UTC().Add(minLead)) {
		return time.Time{}, rejected("publish time must be at least %s in the future", minLead)
	}
	if c.After(now.UTC().Add(maxHorizon)) {
		return time.Time{}, rejected("publish time is more than %s ahead", maxHorizon)
	}
	return c, nil
}

// formatWhen renders a publish time for human-readable logs.
func formatWhen(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
