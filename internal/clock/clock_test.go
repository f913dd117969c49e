package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadZone(t *testing.T) {
	loc, err := LoadZone("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoadZoneUnknown(t *testing.T) {
	_, err := LoadZone("Mars/Olympus_Mons")
	assert.ErrorIs(t, err, ErrUnknownZone)

	_, err = LoadZone("")
	assert.ErrorIs(t, err, ErrUnknownZone)
}

func TestToInstantPlainTime(t *testing.T) {
	ny, err := LoadZone("America/New_York")
	require.NoError(t, err)

	// 2026-06-15 14:30 EDT = 18:30 UTC
	wall := time.Date(2026, 6, 15, 14, 30, 0, 0, time.UTC)
	instant := ToInstant(wall, ny)
	assert.Equal(t, time.Date(2026, 6, 15, 18, 30, 0, 0, time.UTC), instant)
}

func TestToInstantSpringForwardGap(t *testing.T) {
	ny, err := LoadZone("America/New_York")
	require.NoError(t, err)

	// 02:30 does not exist on 2026-03-08; clocks jump 02:00 -> 03:00.
	// The first valid instant is 03:00 EDT = 07:00 UTC.
	wall := time.Date(2026, 3, 8, 2, 30, 0, 0, time.UTC)
	instant := ToInstant(wall, ny)
	assert.Equal(t, time.Date(2026, 3, 8, 7, 0, 0, 0, time.UTC), instant)
}

func TestToInstantFallBackAmbiguity(t *testing.T) {
	ny, err := LoadZone("America/New_York")
	require.NoError(t, err)

	// 01:30 occurs twice on 2026-11-01; the earlier offset (EDT) wins.
	wall := time.Date(2026, 11, 1, 1, 30, 0, 0, time.UTC)
	instant := ToInstant(wall, ny)
	assert.Equal(t, time.Date(2026, 11, 1, 5, 30, 0, 0, time.UTC), instant)
}

func TestToWall(t *testing.T) {
	ny, err := LoadZone("America/New_York")
	require.NoError(t, err)

	instant := time.Date(2026, 6, 15, 18, 30, 0, 0, time.UTC)
	wall := ToWall(instant, ny)

	assert.Equal(t, time.Date(2026, 6, 15, 14, 30, 0, 0, time.UTC), wall)
	assert.Equal(t, time.UTC, wall.Location())
}

func TestWallRoundTrip(t *testing.T) {
	zones := []string{"UTC", "America/New_York", "Asia/Kolkata", "Australia/Sydney"}
	wall := time.Date(2026, 4, 20, 9, 15, 0, 0, time.UTC)

	for _, name := range zones {
		loc, err := LoadZone(name)
		require.NoError(t, err)

		instant := ToInstant(wall, loc)
		back := ToWall(instant, loc)
		assert.True(t, back.Equal(wall), "round trip through %s: got %v", name, back)
	}
}

func TestSystemNowIsUTC(t *testing.T) {
	now := System().Now()
	assert.Equal(t, time.UTC, now.Location())
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	assert.Equal(t, start, fake.Now())

	fake.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), fake.Now())

	later := start.Add(time.Hour)
	fake.Set(later)
	assert.Equal(t, later, fake.Now())
}
