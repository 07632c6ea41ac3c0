package planboard

import (
	"sync"
	"time"

	"github.com/kilianp07/planboard/core/events"
	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/ptu"
)

// Phase is the trading phase of one PTU.
type Phase int

const (
	PhasePlan Phase = iota
	PhaseValidate
	PhaseOperate
)

func (p Phase) String() string {
	switch p {
	case PhaseValidate:
		return "VALIDATE"
	case PhaseOperate:
		return "OPERATE"
	default:
		return "PLAN"
	}
}

// PhaseTracker derives PTU phases from scheduler signals and the clock.
// Signals only ever move boundaries forward; the clock guarantees that a
// PTU which has started is operational even when signals are suspended.
type PhaseTracker struct {
	mu           sync.RWMutex
	cal          *ptu.Calendar
	now          func() time.Time
	intradayPtus int
	dayAhead     map[time.Time]bool
	// PTUs starting before these instants are closed for intraday trading
	// or operational.
	intradayUntil time.Time
	operateUntil  time.Time
}

// NewPhaseTracker creates a tracker. intradayPtus is the number of PTUs
// ahead of the current one that are closed for intraday trading.
func NewPhaseTracker(cal *ptu.Calendar, intradayPtus int, now func() time.Time) *PhaseTracker {
	if now == nil {
		now = time.Now
	}
	if intradayPtus < 0 {
		intradayPtus = 0
	}
	return &PhaseTracker{cal: cal, now: now, intradayPtus: intradayPtus, dayAhead: map[time.Time]bool{}}
}

// Observe advances the boundaries for a scheduler signal.
func (t *PhaseTracker) Observe(sig events.Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch s := sig.(type) {
	case events.DayAheadClosure:
		t.dayAhead[model.Day(s.Period)] = true
	case events.IntradayClosure:
		until := t.cal.End(s.Period, s.PtuIndex+t.intradayPtus)
		if until.After(t.intradayUntil) {
			t.intradayUntil = until
		}
	case events.MoveToOperate:
		until := t.cal.End(s.Period, s.PtuIndex)
		if until.After(t.operateUntil) {
			t.operateUntil = until
		}
	}
}

// Operational reports whether the PTU is in or before the operate boundary.
func (t *PhaseTracker) Operational(period time.Time, index int) bool {
	start := t.cal.Start(period, index)
	if !start.After(t.now()) {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return start.Before(t.operateUntil)
}

// IntradayClosed reports whether the intraday gate of the PTU has closed.
func (t *PhaseTracker) IntradayClosed(period time.Time, index int) bool {
	start := t.cal.Start(period, index)
	now := t.now()
	current := t.cal.Start(t.cal.Date(now), t.cal.Index(now))
	if start.Before(current.Add(time.Duration(t.intradayPtus+1) * t.cal.PtuDuration())) {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return start.Before(t.intradayUntil)
}

// Phase returns the phase of the PTU.
func (t *PhaseTracker) Phase(period time.Time, index int) Phase {
	if t.Operational(period, index) {
		return PhaseOperate
	}
	t.mu.RLock()
	closed := t.dayAhead[model.Day(period)]
	t.mu.RUnlock()
	if closed || t.IntradayClosed(period, index) {
		return PhaseValidate
	}
	return PhasePlan
}

// Negotiable reports whether documents may still change the PTU.
func (t *PhaseTracker) Negotiable(period time.Time, index int) bool {
	return !t.Operational(period, index) && !t.IntradayClosed(period, index)
}

// Forget drops day-ahead state for periods before the given date.
func (t *PhaseTracker) Forget(before time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := model.Day(before)
	for p := range t.dayAhead {
		if p.Before(b) {
			delete(t.dayAhead, p)
		}
	}
}
