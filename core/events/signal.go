package events

import (
	"fmt"
	"time"
)

// Trigger names one of the scheduler's recurring triggers.
type Trigger string

const (
	TriggerDayAhead      Trigger = "day_ahead_closure"
	TriggerIntraday      Trigger = "intraday_closure"
	TriggerMoveToOperate Trigger = "move_to_operate"
)

// Triggers lists every trigger in registration order.
var Triggers = []Trigger{TriggerDayAhead, TriggerIntraday, TriggerMoveToOperate}

// Signal is a value emitted by the scheduler when a trigger fires.
type Signal interface {
	Trigger() Trigger
	// Target returns the period and PTU index the signal applies to. The
	// index is 0 for whole-day signals.
	Target() (time.Time, int)
	String() string
}

// DayAheadClosure closes the day-ahead gate for Period.
type DayAheadClosure struct {
	Period time.Time
}

func (DayAheadClosure) Trigger() Trigger { return TriggerDayAhead }
func (s DayAheadClosure) Target() (time.Time, int) { return s.Period, 0 }
func (s DayAheadClosure) String() string {
	return fmt.Sprintf("%s(%s)", TriggerDayAhead, s.Period.Format(time.DateOnly))
}

// IntradayClosure closes the intraday gate for one PTU of Period.
type IntradayClosure struct {
	Period   time.Time
	PtuIndex int
}

func (IntradayClosure) Trigger() Trigger { return TriggerIntraday }
func (s IntradayClosure) Target() (time.Time, int) { return s.Period, s.PtuIndex }
func (s IntradayClosure) String() string {
	return fmt.Sprintf("%s(%s#%d)", TriggerIntraday, s.Period.Format(time.DateOnly), s.PtuIndex)
}

// MoveToOperate moves one PTU of Period into its operate phase.
type MoveToOperate struct {
	Period   time.Time
	PtuIndex int
}

func (MoveToOperate) Trigger() Trigger { return TriggerMoveToOperate }
func (s MoveToOperate) Target() (time.Time, int) { return s.Period, s.PtuIndex }
func (s MoveToOperate) String() string {
	return fmt.Sprintf("%s(%s#%d)", TriggerMoveToOperate, s.Period.Format(time.DateOnly), s.PtuIndex)
}

// SameSignal reports whether two signals carry the same trigger and target.
func SameSignal(a, b Signal) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Trigger() != b.Trigger() {
		return false
	}
	pa, ia := a.Target()
	pb, ib := b.Target()
	return pa.Equal(pb) && ia == ib
}
