// Package clock converts between the operator's reference time zone and the
// UTC timestamps stored on jobs, and computes the next allowed posting slot.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time { return time.Now() }

// Manual is a settable clock for tests and one-shot tools.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock pinned at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the pinned time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

var defaultSlotHours = []int{11, 15, 19}

const defaultWeeklyHour = 19

// Zone binds a clock to the global reference time zone. Every calendar
// computation (slots, quota days) goes through a Zone so all clients share
// one definition of "today".
type Zone struct {
	loc   *time.Location
	clock Clock
}

// NewZone builds a Zone. A nil location means UTC and a nil clock means the system clock.
func NewZone(loc *time.Location, clk Clock) *Zone {
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = System{}
	}
	return &Zone{loc: loc, clock: clk}
}

// Location returns the reference time zone.
func (z *Zone) Location() *time.Location { return z.loc }

// Now returns the current instant in UTC.
func (z *Zone) Now() time.Time { return z.clock.Now().UTC() }

// LocalNow returns the current instant in the reference zone.
func (z *Zone) LocalNow() time.Time { return z.clock.Now().In(z.loc) }

// ToLocal converts a stored timestamp to the reference zone.
func (z *Zone) ToLocal(t time.Time) time.Time { return t.In(z.loc) }

// ToUTC converts a local wall-clock instant to UTC for storage.
func (z *Zone) ToUTC(t time.Time) time.Time { return t.UTC() }

// DayBounds returns the UTC instants of local midnight on the day containing
// t and the following local midnight. The interval is half-open.
func (z *Zone) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(z.loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, z.loc)
	end := time.Date(y, m, d+1, 0, 0, 0, 0, z.loc)
	return start.UTC(), end.UTC()
}

// Today returns the UTC bounds of the current local calendar day.
func (z *Zone) Today() (time.Time, time.Time) {
	return z.DayBounds(z.clock.Now())
}

// SameLocalDay reports whether two instants fall on the same local calendar date.
func (z *Zone) SameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.In(z.loc).Date()
	by, bm, bd := b.In(z.loc).Date()
	return ay == by && am == bm && ad == bd
}

// NextLocalSlot returns, in UTC, the first configured local hour strictly after
// start. When every hour today has passed it returns the earliest hour of the
// following local day. Invalid hours are dropped; an empty set uses 11, 15, 19.
func (z *Zone) NextLocalSlot(hours []int, start time.Time) time.Time {
	hours = sanitize(hours, defaultSlotHours)
	local := start.In(z.loc)
	y, m, d := local.Date()
	for _, h := range hours {
		candidate := time.Date(y, m, d, h, 0, 0, 0, z.loc)
		if candidate.After(local) {
			return candidate.UTC()
		}
	}
	return time.Date(y, m, d+1, hours[0], 0, 0, 0, z.loc).UTC()
}

// NextDayAt returns hour:00 local on the day after start's local date.
func (z *Zone) NextDayAt(hour int, start time.Time) time.Time {
	if hour < 0 || hour > 23 {
		hour = defaultSlotHours[0]
	}
	local := start.In(z.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, hour, 0, 0, 0, z.loc).UTC()
}

// NextWeeklySlot returns the next occurrence of weekday at the earliest of
// hours, strictly after start. An empty hour set uses 19:00.
func (z *Zone) NextWeeklySlot(weekday time.Weekday, hours []int, start time.Time) time.Time {
	hours = sanitize(hours, []int{defaultWeeklyHour})
	local := start.In(z.loc)
	y, m, d := local.Date()
	daysAhead := (int(weekday) - int(local.Weekday()) + 7) % 7
	target := time.Date(y, m, d+daysAhead, hours[0], 0, 0, 0, z.loc)
	if !target.After(local) {
		target = time.Date(y, m, d+daysAhead+7, hours[0], 0, 0, 0, z.loc)
	}
	return target.UTC()
}

func sanitize(hours []int, fallback []int) []int {
	seen := make(map[int]struct{}, len(hours))
	out := make([]int, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	if len(out) == 0 {
		return append([]int(nil), fallback...)
	}
	sort.Ints(out)
	return out
}
