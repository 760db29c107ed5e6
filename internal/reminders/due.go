package reminders

import "time"

// IsDue reports whether a rule's threshold has been reached. It is false once
// the workshop has started and otherwise true whenever the workshop starts
// within OffsetHours of now. The condition stays true on every later check
// until the start, so the ledger is what prevents repeat sends.
func IsDue(now, start time.Time, rule Rule) bool {
	if !start.After(now) {
		return false
	}
	remaining := start.Sub(now).Hours()
	return remaining <= rule.OffsetHours
}
