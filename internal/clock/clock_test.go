package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoposter/internal/clock"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestNextLocalSlot(t *testing.T) {
	loc := newYork(t)
	zone := clock.NewZone(loc, nil)
	hours := []int{11, 15, 19}

	cases := []struct {
		name  string
		start time.Time
		want  time.Time
	}{
		{"afternoon picks evening", time.Date(2025, 3, 10, 16, 0, 0, 0, loc), time.Date(2025, 3, 10, 19, 0, 0, 0, loc)},
		{"late evening rolls to next morning", time.Date(2025, 3, 10, 20, 0, 0, 0, loc), time.Date(2025, 3, 11, 11, 0, 0, 0, loc)},
		{"exact slot is not reused", time.Date(2025, 3, 10, 15, 0, 0, 0, loc), time.Date(2025, 3, 10, 19, 0, 0, 0, loc)},
		{"early morning", time.Date(2025, 3, 10, 6, 30, 0, 0, loc), time.Date(2025, 3, 10, 11, 0, 0, 0, loc)},
		{"month end", time.Date(2025, 1, 31, 22, 0, 0, 0, loc), time.Date(2025, 2, 1, 11, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := zone.NextLocalSlot(hours, tc.start)
			assert.Equal(t, time.UTC, got.Location())
			assert.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got.In(loc))
		})
	}
}

func TestNextLocalSlotSanitizesHours(t *testing.T) {
	loc := newYork(t)
	zone := clock.NewZone(loc, nil)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, loc)

	got := zone.NextLocalSlot([]int{30, 19, -1, 19, 9}, start)
	assert.True(t, time.Date(2025, 6, 1, 19, 0, 0, 0, loc).Equal(got))

	got = zone.NextLocalSlot(nil, start)
	assert.True(t, time.Date(2025, 6, 1, 15, 0, 0, 0, loc).Equal(got))
}

func TestNextLocalSlotUsesReferenceZoneNotServerZone(t *testing.T) {
	loc := newYork(t)
	zone := clock.NewZone(loc, nil)
	// 23:30 UTC is 19:30 in New York (EDT), past the last slot.
	start := time.Date(2025, 7, 1, 23, 30, 0, 0, time.UTC)
	got := zone.NextLocalSlot([]int{11, 15, 19}, start)
	assert.True(t, time.Date(2025, 7, 2, 11, 0, 0, 0, loc).Equal(got), "got %s", got.In(loc))
}

func TestNextDayAt(t *testing.T) {
	loc := newYork(t)
	zone := clock.NewZone(loc, nil)
	got := zone.NextDayAt(11, time.Date(2025, 3, 10, 9, 0, 0, 0, loc))
	assert.True(t, time.Date(2025, 3, 11, 11, 0, 0, 0, loc).Equal(got))
}

func TestNextWeeklySlot(t *testing.T) {
	loc := newYork(t)
	zone := clock.NewZone(loc, nil)
	// 2025-03-10 is a Monday.
	monday := time.Date(2025, 3, 10, 10, 0, 0, 0, loc)

	got := zone.NextWeeklySlot(time.Friday, []int{19}, monday)
	assert.True(t, time.Date(2025, 3, 14, 19, 0, 0, 0, loc).Equal(got))

	got = zone.NextWeeklySlot(time.Monday, []int{19}, monday)
	assert.True(t, time.Date(2025, 3, 10, 19, 0, 0, 0, loc).Equal(got))

	lateMonday := time.Date(2025, 3, 10, 20, 0, 0, 0, loc)
	got = zone.NextWeeklySlot(time.Monday, nil, lateMonday)
	assert.True(t, time.Date(2025, 3, 17, 19, 0, 0, 0, loc).Equal(got))
}

func TestDayBoundsAcrossDST(t *testing.T) {
	loc := newYork(t)
	zone := clock.NewZone(loc, nil)
	// Spring forward: 2025-03-09 has 23 hours in New York.
	start, end := zone.DayBounds(time.Date(2025, 3, 9, 12, 0, 0, 0, loc))
	assert.Equal(t, 23*time.Hour, end.Sub(start))
	assert.True(t, time.Date(2025, 3, 9, 0, 0, 0, 0, loc).Equal(start))
}

func TestTodayFollowsManualClock(t *testing.T) {
	loc := newYork(t)
	manual := clock.NewManual(time.Date(2025, 3, 10, 23, 59, 0, 0, loc))
	zone := clock.NewZone(loc, manual)

	start, _ := zone.Today()
	assert.True(t, time.Date(2025, 3, 10, 0, 0, 0, 0, loc).Equal(start))

	manual.Advance(2 * time.Minute)
	start, _ = zone.Today()
	assert.True(t, time.Date(2025, 3, 11, 0, 0, 0, 0, loc).Equal(start))
	assert.False(t, zone.SameLocalDay(manual.Now(), time.Date(2025, 3, 10, 23, 59, 0, 0, loc)))
}
