package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/planboard/app/plugins"
	"github.com/kilianp07/planboard/config"
	"github.com/kilianp07/planboard/core/events"
	coremetrics "github.com/kilianp07/planboard/core/metrics"
	coremqtt "github.com/kilianp07/planboard/core/mqtt"
	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/planboard"
	"github.com/kilianp07/planboard/core/ptu"
	"github.com/kilianp07/planboard/core/scheduler"
	"github.com/kilianp07/planboard/core/settlement"
	"github.com/kilianp07/planboard/infra/audit"
	"github.com/kilianp07/planboard/infra/logger"
	"github.com/kilianp07/planboard/infra/metrics"
	"github.com/kilianp07/planboard/infra/mqtt"
	"github.com/kilianp07/planboard/infra/store"
	"github.com/kilianp07/planboard/internal/eventbus"
	"github.com/kilianp07/planboard/jobs/retention"
	jobsettlement "github.com/kilianp07/planboard/jobs/settlement"
)

// Service wires the ledger, the gate-closure scheduler and the settlement
// reconciler of one market participant.
type Service struct {
	Calendar   *ptu.Calendar
	Role       model.Role
	Ledger     *planboard.Ledger
	Scheduler  *scheduler.Scheduler
	Reconciler *settlement.Reconciler
	Meter      settlement.MeterDataProvider

	cfg         *config.Config
	store       planboard.Store
	audit       *audit.Log
	publisher   coremqtt.Publisher
	sink        coremetrics.MetricsSink
	docBus      *eventbus.TypedBus[events.DocumentEvent]
	settleBus   *eventbus.TypedBus[events.SettlementEvent]
	retention   *retention.Job
	unsubscribe []func()
	log         logger.Logger
	closeOnce   sync.Once
}

// Option customises a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	publisher coremqtt.Publisher
	meter     settlement.MeterDataProvider
}

// WithPublisher uses p instead of connecting to the configured broker.
func WithPublisher(p coremqtt.Publisher) Option {
	return func(o *serviceOptions) { o.publisher = p }
}

// WithMeterData replaces the configured metering collaborator.
func WithMeterData(m settlement.MeterDataProvider) Option {
	return func(o *serviceOptions) { o.meter = m }
}

// New creates a Service from the configuration. Components whose section is
// left empty (mqtt broker, audit path, retention) are not started.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	logg := logger.New("service")

	cal, err := cfg.Planboard.Calendar()
	if err != nil {
		return nil, err
	}
	role, err := cfg.Planboard.Role()
	if err != nil {
		return nil, err
	}
	s := &Service{
		Calendar:  cal,
		Role:      role,
		cfg:       cfg,
		docBus:    eventbus.NewTyped[events.DocumentEvent](),
		settleBus: eventbus.NewTyped[events.SettlementEvent](),
		log:       logg,
	}

	s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	s.store, err = store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	ledgerOpts := []planboard.Option{
		planboard.WithLogger(logger.New("planboard")),
		planboard.WithEventBus(s.docBus),
		planboard.WithIntradayClosurePtus(cfg.GateClosure.IntradayClosurePtus),
	}
	if cfg.Audit.Path != "" {
		s.audit, err = audit.New(cfg.Audit)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("audit log: %w", err)
		}
		ledgerOpts = append(ledgerOpts, planboard.WithAudit(s.audit))
	}
	s.Ledger = planboard.New(s.store, cal, ledgerOpts...)

	schedOpts := []scheduler.Option{scheduler.WithLogger(logger.New("scheduler"))}
	if r, ok := s.sink.(coremetrics.SignalRecorder); ok {
		schedOpts = append(schedOpts, scheduler.WithRecorder(r))
	}
	s.Scheduler, err = scheduler.New(cal, role, cfg.GateClosure, schedOpts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.unsubscribe = append(s.unsubscribe, s.Scheduler.Subscribe(s.Ledger.HandleSignal))

	s.publisher = o.publisher
	if s.publisher == nil && cfg.MQTT.Broker != "" {
		p, err := mqtt.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		s.publisher = p
	}
	if s.publisher != nil {
		s.unsubscribe = append(s.unsubscribe,
			s.Scheduler.Subscribe(mqtt.SignalHandler(s.publisher)),
			s.Ledger.Subscribe(mqtt.DocumentHandler(s.publisher)),
		)
	}

	s.Meter = o.meter
	if s.Meter == nil {
		s.Meter, err = plugins.NewMeterData(cfg.MeterData, cal)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("%w: meter data: %v", model.ErrConfiguration, err)
		}
		if _, ok := s.Meter.(*settlement.StaticMeterData); ok {
			logg.Warnf("meter data provider is static and empty, settlement will report every order as missing input")
		}
	}
	recOpts := []settlement.Option{
		settlement.WithLogger(logger.New("settlement")),
		settlement.WithEventBus(s.settleBus),
	}
	if r, ok := s.sink.(settlement.Recorder); ok {
		recOpts = append(recOpts, settlement.WithRecorder(r))
	}
	s.Reconciler, err = settlement.New(s.Ledger, s.Meter, cfg.Settlement, recOpts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	if cfg.Retention.AfterDays > 0 {
		types, _ := cfg.Retention.DocumentTypes()
		keep := time.Duration(cfg.Retention.AfterDays) * 24 * time.Hour
		s.retention, err = retention.New(s.Ledger, types, keep, retention.WithLogger(logger.New("retention")))
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Store returns the document store.
func (s *Service) Store() planboard.Store { return s.store }

// Audit returns the audit trail, nil when disabled.
func (s *Service) Audit() *audit.Log { return s.audit }

// SettlementEvents returns the bus carrying per-order settlement outcomes.
func (s *Service) SettlementEvents() *eventbus.TypedBus[events.SettlementEvent] {
	return s.settleBus
}

// Run starts the scheduler and the background jobs and blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartDocumentCollector(ctx, s.docBus, s.sink)
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, nil); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.retention != nil {
		go s.retention.Run(ctx, s.cfg.Retention.Interval())
	}
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	s.log.Infof("planboard running as %s with %d minute PTUs in %s",
		s.Role, s.Calendar.Duration(), s.Calendar.Location())
	<-ctx.Done()
	s.Scheduler.Stop()
	return nil
}

// SettleMonth settles the month and archives it once complete.
func (s *Service) SettleMonth(ctx context.Context, year int, month time.Month) (jobsettlement.Result, error) {
	return jobsettlement.CloseMonth(ctx, s.Reconciler, s.Ledger, year, month, logger.New("month-close"))
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		for _, u := range s.unsubscribe {
			u()
		}
		if s.Scheduler != nil {
			s.Scheduler.Stop()
		}
		if d, ok := s.publisher.(interface{ Disconnect() }); ok {
			d.Disconnect()
		}
		if c, ok := s.Meter.(interface{ Close() }); ok {
			c.Close()
		}
		if c, ok := s.sink.(interface{ Close() }); ok {
			c.Close()
		}
		if s.audit != nil {
			errs = append(errs, s.audit.Close())
		}
		if s.store != nil {
			errs = append(errs, s.store.Close())
		}
		s.docBus.Close()
		s.settleBus.Close()
	})
	return errors.Join(errs...)
}
