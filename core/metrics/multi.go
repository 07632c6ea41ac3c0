package metrics

import "errors"

// MultiSink fans records out to several sinks. Optional recorders reach only
// the sinks implementing them. A failing sink does not prevent delivery to
// the others; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func forward[R any](sinks []MetricsSink, record func(R) error) error {
	var errs []error
	for _, s := range sinks {
		if rec, ok := s.(R); ok {
			errs = append(errs, record(rec))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordDocumentTransition(ev DocumentTransition) error {
	return forward(m.Sinks, func(r MetricsSink) error { return r.RecordDocumentTransition(ev) })
}

func (m *MultiSink) RecordSignal(ev SignalEvent) error {
	return forward(m.Sinks, func(r SignalRecorder) error { return r.RecordSignal(ev) })
}

func (m *MultiSink) RecordOrderSettlement(ev OrderSettlement) error {
	return forward(m.Sinks, func(r SettlementRecorder) error { return r.RecordOrderSettlement(ev) })
}

func (m *MultiSink) RecordSettlementRun(ev SettlementRun) error {
	return forward(m.Sinks, func(r SettlementRunRecorder) error { return r.RecordSettlementRun(ev) })
}

func (m *MultiSink) RecordMeterFetch(ev MeterFetch) error {
	return forward(m.Sinks, func(r MeterFetchRecorder) error { return r.RecordMeterFetch(ev) })
}
