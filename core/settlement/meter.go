package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kilianp07/planboard/core/model"
)

// MeterRequest asks for the power delivered by a connection group for some
// PTUs of a period.
type MeterRequest struct {
	Order             model.DocumentKey
	ConnectionGroupID string
	Connections       []string
	Period            time.Time
	Indices           []int
	// Baseline holds the latest accepted prognosis power per PTU index, when
	// one exists. Providers deriving delivered flexibility from measured
	// consumption use it as reference.
	Baseline map[int]decimal.Decimal
}

// MeterDataProvider supplies delivered power per PTU index. Providers are
// called once per order with a bounded context.
type MeterDataProvider interface {
	DeliveredPower(ctx context.Context, req MeterRequest) (map[int]decimal.Decimal, error)
}

type meterKey struct {
	group  string
	period time.Time
}

// StaticMeterData serves delivered power from memory. It is used for replays
// and tests.
type StaticMeterData struct {
	mu   sync.RWMutex
	data map[meterKey]map[int]decimal.Decimal
}

// NewStaticMeterData returns an empty provider.
func NewStaticMeterData() *StaticMeterData {
	return &StaticMeterData{data: map[meterKey]map[int]decimal.Decimal{}}
}

// Set stores the delivered power of one PTU.
func (s *StaticMeterData) Set(group string, period time.Time, index int, power decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := meterKey{group: group, period: model.Day(period)}
	if s.data[k] == nil {
		s.data[k] = map[int]decimal.Decimal{}
	}
	s.data[k][index] = power
}

// DeliveredPower returns the known values for the requested indices.
// Unknown indices are left out of the result.
func (s *StaticMeterData) DeliveredPower(ctx context.Context, req MeterRequest) (map[int]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	values, ok := s.data[meterKey{group: req.ConnectionGroupID, period: model.Day(req.Period)}]
	if !ok {
		return nil, fmt.Errorf("no meter data for %s on %s", req.ConnectionGroupID, req.Period.Format(time.DateOnly))
	}
	out := make(map[int]decimal.Decimal, len(req.Indices))
	for _, i := range req.Indices {
		if v, ok := values[i]; ok {
			out[i] = v
		}
	}
	return out, nil
}
