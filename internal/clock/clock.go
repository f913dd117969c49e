// Package clock provides the time source and timezone conversions used by the
// scheduler. All internal time math happens on absolute UTC instants; wall-clock
// values exist only at the API and persistence boundaries, always paired with an
// IANA zone.
package clock

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownZone is returned when an IANA zone name does not resolve.
var ErrUnknownZone = errors.New("unknown time zone")

// Clock supplies the current instant. Production code uses System; tests use Fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current instant in UTC.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// System returns a Clock backed by the OS clock.
func System() Clock {
	return systemClock{}
}

// LoadZone resolves an IANA zone name.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty zone name", ErrUnknownZone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	return loc, nil
}

// ToInstant converts a zone-less wall-clock time to the absolute instant it
// denotes in loc. Wall-clock times that do not exist at a spring-forward
// transition resolve to the first valid instant after the gap; ambiguous
// times at fall-back resolve to the earlier offset.
func ToInstant(wall time.Time, loc *time.Location) time.Time {
	t := time.Date(
		wall.Year(), wall.Month(), wall.Day(),
		wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(),
		loc,
	)
	if sameWall(t.In(loc), wall) {
		return t.UTC()
	}
	// The requested wall clock fell into a DST gap; time.Date normalized it
	// to one side of the transition, which side being unspecified.
	// Binary-search for the first instant whose wall clock is at or after
	// the requested one, which is the first instant past the gap.
	lo, hi := t.Add(-3*time.Hour), t.Add(3*time.Hour)
	if wallAtOrAfter(t.In(loc), wall) {
		hi = t
	} else {
		lo = t
	}
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if wallAtOrAfter(mid.In(loc), wall) {
			hi = mid
		} else {
			lo = mid.Add(time.Second)
		}
	}
	return hi.UTC()
}

// ToWall converts an absolute instant to its wall-clock representation in loc.
// The result is normalized to UTC so it round-trips through a zone-less
// timestamp column and formats without an offset suffix.
func ToWall(instant time.Time, loc *time.Location) time.Time {
	local := instant.In(loc)
	return time.Date(
		local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(),
		time.UTC,
	)
}

// sameWall reports whether two times show the same wall clock, ignoring zone.
func sameWall(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second()
}

// wallAtOrAfter reports whether a's wall clock is at or after b's.
func wallAtOrAfter(a, b time.Time) bool {
	aw := time.Date(a.Year(), a.Month(), a.Day(), a.Hour(), a.Minute(), a.Second(), 0, time.UTC)
	bw := time.Date(b.Year(), b.Month(), b.Day(), b.Hour(), b.Minute(), b.Second(), 0, time.UTC)
	return !aw.Before(bw)
}
