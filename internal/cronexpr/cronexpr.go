// Package cronexpr translates structured recurrence descriptors into canonical
// six-field cron expressions (seconds included) and computes fire instants in a
// given timezone.
package cronexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression is returned when a cron expression does not parse.
var ErrInvalidExpression = errors.New("invalid cron expression")

// parser accepts the canonical six-field layout: sec min hour dom month dow.
var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Descriptor is the structured recurrence form accepted by the API. Exactly
// one shape wins, checked in order: hourly interval, days of week, days of
// month, then a daily fallback. Unrecognized combinations of the remaining
// fields are ignored.
type Descriptor struct {
	// HourlyInterval fires at Minute every N hours, starting at hour 0.
	HourlyInterval *int
	// DaysOfWeek fires at Hour:Minute on the given days, 1=Monday .. 7=Sunday.
	DaysOfWeek []int
	// DaysOfMonth fires at Hour:Minute on the given days of month.
	DaysOfMonth []int
	// Hour and Minute default to 0 when absent.
	Hour   *int
	Minute *int
}

// Build emits the canonical expression for the descriptor, using `?` for the
// non-constraining field between day-of-month and day-of-week.
func Build(d Descriptor) string {
	hour := 0
	if d.Hour != nil {
		hour = *d.Hour
	}
	minute := 0
	if d.Minute != nil {
		minute = *d.Minute
	}

	if d.HourlyInterval != nil {
		return fmt.Sprintf("0 %d 0/%d * * ?", minute, *d.HourlyInterval)
	}

	if len(d.DaysOfWeek) > 0 {
		return fmt.Sprintf("0 %d %d ? * %s", minute, hour, joinDays(d.DaysOfWeek, true))
	}

	if len(d.DaysOfMonth) > 0 {
		return fmt.Sprintf("0 %d %d %s * ?", minute, hour, joinDays(d.DaysOfMonth, false))
	}

	return fmt.Sprintf("0 %d %d * * ?", minute, hour)
}

// joinDays renders a day list as a comma-separated cron field. Days of week
// arrive as 1=Monday .. 7=Sunday; the parser counts Sunday as 0, so 7 is
// rewritten.
func joinDays(days []int, dow bool) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		if dow && d == 7 {
			d = 0
		}
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

// Validate checks an expression syntactically.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %q: %s", ErrInvalidExpression, expr, err)
	}
	return nil
}

// NextAfter returns the first instant strictly after t that satisfies expr in
// loc, as UTC. The zero time means the expression never fires again.
//
// Evaluation steps wall clock in loc, so daylight saving is honored: a fire
// time that falls in a spring-forward gap is skipped, and a fall-back fire
// happens once, at the earlier offset.
func NextAfter(t time.Time, expr string, loc *time.Location) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %s", ErrInvalidExpression, expr, err)
	}
	local := t.In(loc)
	next := sched.Next(local)
	if next.IsZero() {
		return time.Time{}, nil
	}
	// A fall-back transition repeats an hour of wall clock. When stepping
	// from the first pass the schedule matches the same wall time again at
	// the later offset; that is the occurrence already taken, not a new one.
	if sameWallClock(next, local) {
		next = sched.Next(next)
		if next.IsZero() {
			return time.Time{}, nil
		}
	}
	return next.UTC(), nil
}

// sameWallClock reports whether two times show the same wall clock down to
// the second, date included.
func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second()
}
