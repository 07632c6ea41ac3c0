package metrics

import (
	"errors"
	"strconv"

	coremetrics "github.com/kilianp07/planboard/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records planboard activity in Prometheus metrics.
type PromSink struct {
	transitions *prometheus.CounterVec
	signals     *prometheus.CounterVec
	settled     *prometheus.CounterVec
	price       *prometheus.GaugeVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	meterFetch  *prometheus.HistogramVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_document_transitions_total",
			Help: "Document status transitions",
		}, []string{"document_type", "from", "to"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_gate_signals_total",
			Help: "Gate-closure scheduler firings",
		}, []string{"trigger", "suppressed"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_settled_orders_total",
			Help: "Flex orders settled",
		}, []string{"connection_group"}),
		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planboard_settled_price",
			Help: "Sum of settled flex order prices, may be negative",
		}, []string{"connection_group"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_settlement_runs_total",
			Help: "Settlement runs by completeness",
		}, []string{"complete"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planboard_settlement_run_seconds",
			Help:    "Duration of settlement runs",
			Buckets: prometheus.DefBuckets,
		}),
		meterFetch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planboard_meter_fetch_seconds",
			Help:    "Latency of metering collaborator calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"error"}),
	}
	var err error
	if s.transitions, err = register(reg, s.transitions); err != nil {
		return nil, err
	}
	if s.signals, err = register(reg, s.signals); err != nil {
		return nil, err
	}
	if s.settled, err = register(reg, s.settled); err != nil {
		return nil, err
	}
	if s.price, err = register(reg, s.price); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.runDuration, err = register(reg, s.runDuration); err != nil {
		return nil, err
	}
	if s.meterFetch, err = register(reg, s.meterFetch); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when reg knows c.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDocumentTransition increments the transition counter.
func (s *PromSink) RecordDocumentTransition(ev coremetrics.DocumentTransition) error {
	s.transitions.WithLabelValues(ev.DocumentType, ev.From, ev.To).Inc()
	return nil
}

// RecordSignal counts scheduler firings.
func (s *PromSink) RecordSignal(ev coremetrics.SignalEvent) error {
	s.signals.WithLabelValues(ev.Trigger, strconv.FormatBool(ev.Suppressed)).Inc()
	return nil
}

// RecordOrderSettlement counts settled orders and adds up their price.
func (s *PromSink) RecordOrderSettlement(ev coremetrics.OrderSettlement) error {
	s.settled.WithLabelValues(ev.ConnectionGroupID).Inc()
	s.price.WithLabelValues(ev.ConnectionGroupID).Add(ev.Price)
	return nil
}

// RecordSettlementRun observes the run duration.
func (s *PromSink) RecordSettlementRun(ev coremetrics.SettlementRun) error {
	s.runs.WithLabelValues(strconv.FormatBool(ev.Complete)).Inc()
	s.runDuration.Observe(ev.Duration.Seconds())
	return nil
}

// RecordMeterFetch observes metering latency.
func (s *PromSink) RecordMeterFetch(ev coremetrics.MeterFetch) error {
	s.meterFetch.WithLabelValues(strconv.FormatBool(ev.Err)).Observe(ev.Latency.Seconds())
	return nil
}
