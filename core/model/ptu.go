package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Disposition qualifies the power of a PTU row.
type Disposition int

const (
	DispositionRequested Disposition = iota
	DispositionAvailable
)

func (d Disposition) String() string {
	if d == DispositionAvailable {
		return "AVAILABLE"
	}
	return "REQUESTED"
}

// PtuSlot is one PTU (Duration == 1) or a run of contiguous PTUs sharing the
// same power, price and disposition.
type PtuSlot struct {
	Date        time.Time       `json:"date"`
	Index       int             `json:"index"`
	Duration    int             `json:"duration"`
	Power       decimal.Decimal `json:"power"`
	Price       decimal.Decimal `json:"price"`
	Disposition Disposition     `json:"disposition"`
}

// SameValue reports whether both slots carry identical power, price and
// disposition.
func (s PtuSlot) SameValue(o PtuSlot) bool {
	return s.Power.Equal(o.Power) && s.Price.Equal(o.Price) && s.Disposition == o.Disposition
}

// Day truncates t to its calendar date and returns it as UTC midnight. All
// periods are represented this way.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOf builds a period from its components.
func DateOf(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
