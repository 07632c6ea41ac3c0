package metrics

import "time"

// DocumentTransition is one document status change.
type DocumentTransition struct {
	DocumentType      string
	ConnectionGroupID string
	From              string
	To                string
	Time              time.Time
}

// MetricsSink records planboard activity for observability purposes.
type MetricsSink interface {
	RecordDocumentTransition(ev DocumentTransition) error
}

// SignalEvent describes one scheduler firing. Suppressed is set when the
// trigger was suspended or the signal repeated the previous one.
type SignalEvent struct {
	Trigger    string
	Period     time.Time
	PtuIndex   int
	Suppressed bool
	Time       time.Time
}

// SignalRecorder records gate-closure signals.
type SignalRecorder interface {
	RecordSignal(ev SignalEvent) error
}

// OrderSettlement summarises the settlement of one flex order.
type OrderSettlement struct {
	OrderSequence     int64
	ParticipantDomain string
	ConnectionGroupID string
	Period            time.Time
	OrderedPower      float64
	DeliveredPower    float64
	Price             float64
	Time              time.Time
}

// SettlementRecorder records settled flex orders.
type SettlementRecorder interface {
	RecordOrderSettlement(ev OrderSettlement) error
}

// SettlementRun summarises one reconciler run.
type SettlementRun struct {
	Year     int
	Month    time.Month
	Settled  int
	Skipped  int
	Failed   int
	Complete bool
	Duration time.Duration
	Time     time.Time
}

// SettlementRunRecorder records reconciler runs.
type SettlementRunRecorder interface {
	RecordSettlementRun(ev SettlementRun) error
}

// MeterFetch captures one call to the metering collaborator.
type MeterFetch struct {
	Latency time.Duration
	Err     bool
}

// MeterFetchRecorder records metering call latency.
type MeterFetchRecorder interface {
	RecordMeterFetch(ev MeterFetch) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDocumentTransition(DocumentTransition) error { return nil }
func (NopSink) RecordSignal(SignalEvent) error                    { return nil }
func (NopSink) RecordOrderSettlement(OrderSettlement) error       { return nil }
func (NopSink) RecordSettlementRun(SettlementRun) error           { return nil }
func (NopSink) RecordMeterFetch(MeterFetch) error                 { return nil }
