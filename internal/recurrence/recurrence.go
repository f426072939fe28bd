// Package recurrence computes occurrences of repeating tasks from RFC-5545
// RRULE expressions such as "FREQ=WEEKLY;BYDAY=SA".
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Validate reports whether rule is a parseable recurrence rule.
func Validate(rule string) error {
	if strings.TrimSpace(rule) == "" {
		return fmt.Errorf("recurrence rule is empty")
	}
	if _, err := rrule.StrToROption(rule); err != nil {
		return fmt.Errorf("malformed recurrence rule %q: %w", rule, err)
	}
	return nil
}

// NextAfter returns the first occurrence of rule strictly after the given
// time. dtstart anchors the series (normally the template's due date) and
// its time-of-day carries into every occurrence. The second return value is
// false when the series has ended (COUNT/UNTIL exhausted).
func NextAfter(rule string, dtstart, after time.Time) (time.Time, bool, error) {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed recurrence rule %q: %w", rule, err)
	}
	opt.Dtstart = dtstart.UTC()

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed recurrence rule %q: %w", rule, err)
	}

	next := r.After(after.UTC(), false)
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	return next, true, nil
}
