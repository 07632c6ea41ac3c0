package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/kilianp07/planboard/core/events"
	"github.com/kilianp07/planboard/core/logger"
	"github.com/kilianp07/planboard/core/metrics"
	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/ptu"
	"github.com/kilianp07/planboard/internal/eventbus"
	"github.com/kilianp07/planboard/internal/workerpool"
)

// Handler consumes a signal. Errors are logged; they never stop later
// firings.
type Handler = eventbus.Handler[events.Signal]

// Scheduler owns the gate-closure timers.
type Scheduler struct {
	cal      *ptu.Calendar
	role     model.Role
	cfg      Config
	hour     int
	minute   int
	clock    clock.Clock
	log      logger.Logger
	recorder metrics.SignalRecorder

	handlers  *eventbus.Table[events.Signal]
	bus       *eventbus.TypedBus[events.Signal]
	suspended map[events.Trigger]*atomic.Bool

	mu      sync.Mutex
	last    map[events.Trigger]events.Signal
	timers  map[events.Trigger]*clock.Timer
	pool    *workerpool.Pool
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithRecorder records every firing, including suppressed ones.
func WithRecorder(r metrics.SignalRecorder) Option { return func(s *Scheduler) { s.recorder = r } }

// WithBus publishes signals on bus instead of a private one.
func WithBus(bus *eventbus.TypedBus[events.Signal]) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// New validates cfg and creates a stopped scheduler. With cfg.Bypass set
// every trigger starts suspended.
func New(cal *ptu.Calendar, role model.Role, cfg Config, opts ...Option) (*Scheduler, error) {
	if cal == nil {
		return nil, fmt.Errorf("%w: scheduler needs a ptu calendar", model.ErrConfiguration)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h, m, _ := cfg.closureTime()
	s := &Scheduler{
		cal:       cal,
		role:      role,
		cfg:       cfg,
		hour:      h,
		minute:    m,
		clock:     clock.New(),
		handlers:  eventbus.NewTable[events.Signal](),
		suspended: map[events.Trigger]*atomic.Bool{},
		last:      map[events.Trigger]events.Signal{},
		timers:    map[events.Trigger]*clock.Timer{},
	}
	for _, t := range events.Triggers {
		b := &atomic.Bool{}
		b.Store(cfg.Bypass)
		s.suspended[t] = b
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.OrNop(s.log)
	if s.bus == nil {
		s.bus = eventbus.NewTyped[events.Signal]()
	}
	return s, nil
}

// Subscribe registers a callback invoked for every emitted signal. The
// returned function unregisters it.
func (s *Scheduler) Subscribe(h Handler) func() { return s.handlers.Register(h) }

// Signals returns a channel receiving every emitted signal. Slow readers
// miss signals once their buffer is full.
func (s *Scheduler) Signals() <-chan events.Signal { return s.bus.Subscribe() }

// Unsubscribe closes a channel obtained from Signals.
func (s *Scheduler) Unsubscribe(ch <-chan events.Signal) { s.bus.Unsubscribe(ch) }

// Suspend stops a trigger from emitting signals. Its timer keeps running.
func (s *Scheduler) Suspend(t events.Trigger) error {
	b, ok := s.suspended[t]
	if !ok {
		return fmt.Errorf("unknown trigger %s", t)
	}
	b.Store(true)
	s.log.Infof("trigger %s suspended", t)
	return nil
}

// Resume lets a suspended trigger emit signals again.
func (s *Scheduler) Resume(t events.Trigger) error {
	b, ok := s.suspended[t]
	if !ok {
		return fmt.Errorf("unknown trigger %s", t)
	}
	b.Store(false)
	s.log.Infof("trigger %s resumed", t)
	return nil
}

// Suspended reports whether the trigger is suspended.
func (s *Scheduler) Suspended(t events.Trigger) bool {
	b, ok := s.suspended[t]
	return ok && b.Load()
}

// Registered returns the triggers armed by Start.
func (s *Scheduler) Registered() []events.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Trigger
	for _, t := range events.Triggers {
		if _, ok := s.timers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Start arms the timers. The meter data role never bids, so only the
// day-ahead trigger is armed for it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.pool = workerpool.New(s.cfg.Workers, len(events.Triggers)*2)
	s.running = true
	triggers := []events.Trigger{events.TriggerDayAhead}
	if s.role.Bids() {
		triggers = append(triggers, events.TriggerIntraday, events.TriggerMoveToOperate)
	} else {
		s.log.Infof("role %s does not bid, intraday and operate triggers disabled", s.role)
	}
	now := s.clock.Now()
	for _, t := range triggers {
		s.armLocked(t, s.next(t, now))
	}
	return nil
}

// Stop cancels the timers. Firings already running are allowed to finish
// before Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for t, tm := range s.timers {
		tm.Stop()
		delete(s.timers, t)
	}
	pool := s.pool
	cancel := s.cancel
	s.mu.Unlock()
	// Submits blocked on a full queue return before the pool drains.
	cancel()
	pool.Close()
}

func (s *Scheduler) armLocked(t events.Trigger, at time.Time) {
	d := at.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	s.timers[t] = s.clock.AfterFunc(d, func() { s.onTimer(t, at) })
	s.log.Debugw("trigger armed", map[string]any{"trigger": string(t), "at": at.Format(time.RFC3339)})
}

func (s *Scheduler) onTimer(t events.Trigger, nominal time.Time) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.armLocked(t, s.next(t, nominal))
	pool, ctx := s.pool, s.ctx
	s.mu.Unlock()
	if err := pool.Submit(ctx, func() { s.fire(t, nominal) }); err != nil {
		s.log.Warnf("dropping %s firing at %s: %v", t, nominal.Format(time.RFC3339), err)
	}
}

// Fire evaluates trigger t as of the given instant and emits the signal
// unless the trigger is suspended or the signal repeats the previous one.
// It reports whether the signal was emitted.
func (s *Scheduler) Fire(t events.Trigger, at time.Time) (events.Signal, bool) {
	return s.fire(t, at)
}

func (s *Scheduler) fire(t events.Trigger, at time.Time) (events.Signal, bool) {
	sig := s.Evaluate(t, at)
	if sig == nil {
		return nil, false
	}
	suppressed := s.Suspended(t)
	if !suppressed {
		s.mu.Lock()
		if events.SameSignal(s.last[t], sig) {
			suppressed = true
		} else {
			s.last[t] = sig
		}
		s.mu.Unlock()
	}
	if s.recorder != nil {
		period, idx := sig.Target()
		_ = s.recorder.RecordSignal(metrics.SignalEvent{
			Trigger:    string(t),
			Period:     period,
			PtuIndex:   idx,
			Suppressed: suppressed,
			Time:       at,
		})
	}
	if suppressed {
		s.log.Debugf("signal %s suppressed", sig)
		return sig, false
	}
	s.log.Infof("emitting %s", sig)
	s.bus.Publish(sig)
	onPanic := func(r any) { s.log.Errorf("signal handler panic on %s: %v", sig, r) }
	for _, err := range s.handlers.Dispatch(sig, onPanic) {
		s.log.Errorf("signal handler on %s: %v", sig, err)
	}
	return sig, true
}

// Evaluate computes the signal trigger t produces at the given instant.
func (s *Scheduler) Evaluate(t events.Trigger, at time.Time) events.Signal {
	switch t {
	case events.TriggerDayAhead:
		return events.DayAheadClosure{Period: s.DayAheadTarget(at)}
	case events.TriggerIntraday:
		return events.IntradayClosure{Period: s.cal.Date(at), PtuIndex: s.cal.Index(at)}
	case events.TriggerMoveToOperate:
		shifted := at.Add(s.cfg.OperateSkew())
		return events.MoveToOperate{Period: s.cal.Date(shifted), PtuIndex: s.cal.Index(shifted)}
	default:
		return nil
	}
}

// DayAheadTarget returns the period whose day-ahead gate closes when
// evaluated at now: tomorrow, or the day after when now is already past
// today's closure time.
func (s *Scheduler) DayAheadTarget(now time.Time) time.Time {
	today := s.cal.Date(now)
	if now.After(s.closureOn(today)) {
		return today.AddDate(0, 0, 2)
	}
	return today.AddDate(0, 0, 1)
}

func (s *Scheduler) closureOn(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, s.hour, s.minute, 0, 0, s.cal.Location())
}

// next returns the first firing instant of t strictly after the given one.
func (s *Scheduler) next(t events.Trigger, after time.Time) time.Time {
	if t == events.TriggerDayAhead {
		lead := time.Duration(s.cfg.DayAheadClosurePtus) * s.cal.PtuDuration()
		day := s.cal.Date(after).AddDate(0, 0, -1)
		for {
			at := s.closureOn(day).Add(-lead)
			if at.After(after) {
				return at
			}
			day = day.AddDate(0, 0, 1)
		}
	}
	date := s.cal.Date(after)
	next := s.cal.End(date, s.cal.Index(after))
	if midnight := s.cal.Midnight(date.AddDate(0, 0, 1)); next.After(midnight) {
		next = midnight
	}
	return next
}
