package ptu

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/kilianp07/planboard/core/model"
)

// Calendar maps calendar dates and instants of a time zone to PTUs of a
// fixed duration.
type Calendar struct {
	duration int
	loc      *time.Location
}

// NewCalendar validates the PTU duration and time zone. An empty zone
// selects UTC.
func NewCalendar(durationMinutes int, timeZone string) (*Calendar, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: ptu duration must be positive, got %d", model.ErrConfiguration, durationMinutes)
	}
	if durationMinutes > 24*60 {
		return nil, fmt.Errorf("%w: ptu duration %d exceeds a day", model.ErrConfiguration, durationMinutes)
	}
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: time zone %q: %v", model.ErrConfiguration, timeZone, err)
	}
	return &Calendar{duration: durationMinutes, loc: loc}, nil
}

// MustCalendar is NewCalendar for static configurations known to be valid.
func MustCalendar(durationMinutes int, timeZone string) *Calendar {
	c, err := NewCalendar(durationMinutes, timeZone)
	if err != nil {
		panic(err)
	}
	return c
}

// Duration returns the PTU length in minutes.
func (c *Calendar) Duration() int { return c.duration }

// PtuDuration returns the PTU length as a time.Duration.
func (c *Calendar) PtuDuration() time.Duration { return time.Duration(c.duration) * time.Minute }

// Location returns the calendar time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Midnight returns the local start of the given calendar date.
func (c *Calendar) Midnight(date time.Time) time.Time {
	return midnight(date, c.loc)
}

// Date returns the local calendar date of ts as a period.
func (c *Calendar) Date(ts time.Time) time.Time {
	return model.Day(ts.In(c.loc))
}

// MinutesInDay returns 1380, 1440 or 1500 depending on DST transitions.
func (c *Calendar) MinutesInDay(date time.Time) int {
	return MinutesInDay(date, c.loc)
}

// PtusPerDay returns the number of PTUs of the given date.
func (c *Calendar) PtusPerDay(date time.Time) int {
	n, _ := PtusPerDay(date, c.duration, c.loc)
	return n
}

// Index returns the 1-based PTU index of ts within its local day. Elapsed
// time is measured in real minutes, so indices keep increasing through a
// fall-back transition.
func (c *Calendar) Index(ts time.Time) int {
	return 1 + int(ts.Sub(midnight(ts.In(c.loc), c.loc))/time.Minute)/c.duration
}

// Start returns the instant the given PTU of date begins.
func (c *Calendar) Start(date time.Time, index int) time.Time {
	return c.Midnight(date).Add(time.Duration((index-1)*c.duration) * time.Minute)
}

// End returns the instant the given PTU of date ends.
func (c *Calendar) End(date time.Time, index int) time.Time {
	return c.Start(date, index+1)
}

// CountBetween returns the number of PTUs from (startDate, startIndex) to
// (endDate, endIndex).
func (c *Calendar) CountBetween(startDate, endDate time.Time, startIndex, endIndex int) int {
	minutes := c.Midnight(endDate).Sub(c.Midnight(startDate)) / time.Minute
	whole := int(math.Floor(float64(minutes) / float64(c.duration)))
	return whole - startIndex + endIndex
}

// MinutesInDay returns the length of the local calendar day in minutes.
func MinutesInDay(date time.Time, loc *time.Location) int {
	start := midnight(date, loc)
	y, m, d := date.Date()
	end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return int(end.Sub(start) / time.Minute)
}

// PtusPerDay computes ceil(minutesInDay / durationMinutes).
func PtusPerDay(date time.Time, durationMinutes int, loc *time.Location) (int, error) {
	if durationMinutes <= 0 {
		return 0, fmt.Errorf("%w: ptu duration must be positive, got %d", model.ErrConfiguration, durationMinutes)
	}
	if loc == nil {
		loc = time.UTC
	}
	minutes := MinutesInDay(date, loc)
	return (minutes + durationMinutes - 1) / durationMinutes, nil
}

func midnight(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
