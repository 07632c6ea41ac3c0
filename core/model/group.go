package model

import "time"

// ConnectionGroupKind distinguishes the aggregation units.
type ConnectionGroupKind int

const (
	CongestionPoint ConnectionGroupKind = iota
	BalanceGroup
	AggregatorGroup
)

func (k ConnectionGroupKind) String() string {
	switch k {
	case CongestionPoint:
		return "CONGESTION_POINT"
	case BalanceGroup:
		return "BRP"
	case AggregatorGroup:
		return "AGR"
	default:
		return "UNKNOWN"
	}
}

// ConnectionGroup aggregates connections over a validity range. A zero
// ValidUntil means open ended.
type ConnectionGroup struct {
	ID         string              `json:"id"`
	Kind       ConnectionGroupKind `json:"kind"`
	ValidFrom  time.Time           `json:"valid_from"`
	ValidUntil time.Time           `json:"valid_until"`
}

// ConnectionGroupState is an append-only membership row linking a connection
// to a group for a date range. ValidUntil is exclusive; zero means open ended.
type ConnectionGroupState struct {
	GroupID      string    `json:"group_id"`
	ConnectionID string    `json:"connection_id"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidUntil   time.Time `json:"valid_until"`
}

// Overlaps reports whether the state is valid on at least one day of the
// inclusive date range [from, to].
func (s ConnectionGroupState) Overlaps(from, to time.Time) bool {
	if Day(s.ValidFrom).After(Day(to)) {
		return false
	}
	if !s.ValidUntil.IsZero() && !Day(s.ValidUntil).After(Day(from)) {
		return false
	}
	return true
}
