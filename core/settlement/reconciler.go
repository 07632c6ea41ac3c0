package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/planboard/core/events"
	"github.com/kilianp07/planboard/core/logger"
	"github.com/kilianp07/planboard/core/metrics"
	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/planboard"
	"github.com/kilianp07/planboard/core/ptu"
	"github.com/kilianp07/planboard/internal/eventbus"
)

// Ledger is the part of the planboard used by the reconciler.
type Ledger interface {
	Calendar() *ptu.Calendar
	Find(ctx context.Context, q planboard.DocumentQuery) ([]model.Document, error)
	ActiveConnectionGroups(ctx context.Context, from, to time.Time) (map[string][]string, error)
	WithLock(ctx context.Context, group string, period time.Time, fn func() error) error
	SaveSettlement(ctx context.Context, s model.FlexOrderSettlement) (bool, error)
	SettlementExists(ctx context.Context, order model.DocumentKey, period time.Time) (bool, error)
}

// Recorder receives settlement metrics.
type Recorder interface {
	metrics.SettlementRecorder
	metrics.SettlementRunRecorder
	metrics.MeterFetchRecorder
}

// settledStatuses are the order statuses that take part in settlement.
// Superseded orders still settle the PTUs they own.
var settledStatuses = []model.DocumentStatus{model.StatusAccepted, model.StatusProcessed, model.StatusArchived}

// Reconciler settles flex orders.
type Reconciler struct {
	ledger   Ledger
	meter    MeterDataProvider
	cfg      Config
	limiter  ratelimit.Limiter
	recorder Recorder
	bus      *eventbus.TypedBus[events.SettlementEvent]
	log      logger.Logger
	now      func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(r *Reconciler) { r.log = l } }

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option { return func(r *Reconciler) { r.recorder = rec } }

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

// WithEventBus publishes one SettlementEvent per handled order.
func WithEventBus(bus *eventbus.TypedBus[events.SettlementEvent]) Option {
	return func(r *Reconciler) { r.bus = bus }
}

// New creates a Reconciler.
func New(ledger Ledger, meter MeterDataProvider, cfg Config, opts ...Option) (*Reconciler, error) {
	if ledger == nil || meter == nil {
		return nil, fmt.Errorf("%w: reconciler needs a ledger and a meter data provider", model.ErrConfiguration)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Reconciler{
		ledger:   ledger,
		meter:    meter,
		cfg:      cfg,
		recorder: metrics.NopSink{},
		now:      time.Now,
	}
	if cfg.MeterRatePerSecond > 0 {
		r.limiter = ratelimit.New(cfg.MeterRatePerSecond)
	} else {
		r.limiter = ratelimit.NewUnlimited()
	}
	for _, o := range opts {
		o(r)
	}
	r.log = logger.OrNop(r.log)
	return r, nil
}

// OrderError reports an order that could not be settled.
type OrderError struct {
	Order model.DocumentKey
	Err   error
}

// Report summarises a run.
type Report struct {
	Settled []model.FlexOrderSettlement
	Skipped []model.DocumentKey
	Failed  []OrderError
}

type job struct {
	order       model.Document
	offer       model.Document
	hasOffer    bool
	connections []string
	baseline    map[int]decimal.Decimal
	applies     map[int]bool
}

// Run settles every flex order whose period lies in the inclusive range.
// Errors of single orders are collected in the report; the returned error
// is set only when the inputs cannot be loaded or ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, from, to time.Time) (Report, error) {
	from, to = model.Day(from), model.Day(to)
	jobs, err := r.prepare(ctx, from, to)
	if err != nil {
		return Report{}, err
	}
	r.log.Infof("settling %d flex orders from %s to %s", len(jobs), from.Format(time.DateOnly), to.Format(time.DateOnly))

	var (
		mu     sync.Mutex
		report Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			s, skipped, err := r.settle(gctx, j)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			r.publish(j.order, s, skipped, err)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				r.log.Errorf("settlement of %s failed: %v", j.order.Key(), err)
				report.Failed = append(report.Failed, OrderError{Order: j.order.Key(), Err: err})
			case skipped:
				report.Skipped = append(report.Skipped, j.order.Key())
			default:
				report.Settled = append(report.Settled, s)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	planboard.SortSettlements(report.Settled)
	sortKeys(report.Skipped)
	sort.Slice(report.Failed, func(i, j int) bool { return keyLess(report.Failed[i].Order, report.Failed[j].Order) })
	return report, nil
}

// RunMonth settles a calendar month and records the outcome.
func (r *Reconciler) RunMonth(ctx context.Context, year int, month time.Month) (Report, error) {
	started := r.now()
	from := model.DateOf(year, month, 1)
	report, err := r.Run(ctx, from, from.AddDate(0, 1, -1))
	if err != nil {
		return report, err
	}
	complete, _, err := r.IsComplete(ctx, year, month)
	if err != nil {
		return report, err
	}
	_ = r.recorder.RecordSettlementRun(metrics.SettlementRun{
		Year:     year,
		Month:    month,
		Settled:  len(report.Settled),
		Skipped:  len(report.Skipped),
		Failed:   len(report.Failed),
		Complete: complete,
		Duration: r.now().Sub(started),
		Time:     r.now(),
	})
	r.log.Infof("settlement of %04d-%02d: %d settled, %d skipped, %d failed, complete=%t",
		year, month, len(report.Settled), len(report.Skipped), len(report.Failed), complete)
	return report, nil
}

// IsComplete reports whether every accepted flex order of the month has a
// settlement. Unsettled orders are returned.
func (r *Reconciler) IsComplete(ctx context.Context, year int, month time.Month) (bool, []model.DocumentKey, error) {
	from := model.DateOf(year, month, 1)
	orders, err := r.ledger.Find(ctx, planboard.DocumentQuery{
		Types:      []model.DocumentType{model.FlexOrder},
		Statuses:   settledStatuses,
		PeriodFrom: from,
		PeriodTo:   from.AddDate(0, 1, -1),
	})
	if err != nil {
		return false, nil, err
	}
	var missing []model.DocumentKey
	for _, o := range orders {
		ok, err := r.ledger.SettlementExists(ctx, o.Key(), o.Period)
		if err != nil {
			return false, nil, err
		}
		if !ok {
			missing = append(missing, o.Key())
		}
	}
	sortKeys(missing)
	return len(missing) == 0, missing, nil
}

func (r *Reconciler) prepare(ctx context.Context, from, to time.Time) ([]job, error) {
	groups, err := r.ledger.ActiveConnectionGroups(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("connection groups: %w", err)
	}
	find := func(t model.DocumentType, statuses ...model.DocumentStatus) ([]model.Document, error) {
		docs, err := r.ledger.Find(ctx, planboard.DocumentQuery{
			Types:      []model.DocumentType{t},
			Statuses:   statuses,
			PeriodFrom: from,
			PeriodTo:   to,
		})
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", t, err)
		}
		return docs, nil
	}
	prognoses, err := find(model.Prognosis, settledStatuses...)
	if err != nil {
		return nil, err
	}
	offers, err := find(model.FlexOffer, settledStatuses...)
	if err != nil {
		return nil, err
	}
	orders, err := find(model.FlexOrder, settledStatuses...)
	if err != nil {
		return nil, err
	}

	baselines := map[orderGroup]model.Document{}
	for _, p := range prognoses {
		k := orderGroup{group: p.ConnectionGroupID, period: model.Day(p.Period)}
		if cur, ok := baselines[k]; ok && cur.Status == model.StatusAccepted && p.Status != model.StatusAccepted {
			continue
		}
		baselines[k] = p
	}
	offerByKey := make(map[model.DocumentKey]model.Document, len(offers))
	for _, o := range offers {
		offerByKey[o.Key()] = o
	}

	applies := resolve(r.ledger.Calendar(), orders)
	jobs := make([]job, 0, len(orders))
	for _, o := range orders {
		j := job{order: o, connections: groups[o.ConnectionGroupID], applies: applies[o.Key()]}
		if o.HasOrigin() {
			j.offer, j.hasOffer = offerByKey[model.DocumentKey{
				Type:              model.FlexOffer,
				SequenceNumber:    o.OriginSequenceNumber,
				ParticipantDomain: o.ParticipantDomain,
			}]
		}
		if p, ok := baselines[orderGroup{group: o.ConnectionGroupID, period: model.Day(o.Period)}]; ok {
			j.baseline = rowPowers(p)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// settle computes and persists the settlement of one order. The boolean is
// true when the order was already settled.
func (r *Reconciler) settle(ctx context.Context, j job) (model.FlexOrderSettlement, bool, error) {
	key := j.order.Key()
	exists, err := r.ledger.SettlementExists(ctx, key, j.order.Period)
	if err != nil {
		return model.FlexOrderSettlement{}, false, err
	}
	if exists {
		return model.FlexOrderSettlement{}, true, nil
	}
	if !j.hasOffer {
		return model.FlexOrderSettlement{}, false, fmt.Errorf("%w: flex order %s has no accepted origin flex offer", model.ErrSettlementInputMissing, key)
	}

	delivered, err := r.delivered(ctx, j)
	if err != nil {
		return model.FlexOrderSettlement{}, false, err
	}

	s := model.FlexOrderSettlement{
		ID:                  uuid.NewString(),
		FlexOrderSequence:   j.order.SequenceNumber,
		FlexOfferSequence:   j.offer.SequenceNumber,
		FlexRequestSequence: j.offer.OriginSequenceNumber,
		ConnectionGroupID:   j.order.ConnectionGroupID,
		ParticipantDomain:   j.order.ParticipantDomain,
		Period:              model.Day(j.order.Period),
		CreatedAt:           r.now(),
	}
	for _, i := range j.order.Indices() {
		row, _ := j.order.Row(i)
		p := model.PtuSettlement{
			Index:          i,
			OrderedPower:   row.Power,
			DeliveredPower: decimal.Zero,
			Price:          decimal.Zero,
		}
		if j.applies[i] {
			offerRow, _ := j.offer.Row(i)
			p.DeliveredPower = delivered[i]
			p.Price = Price(delivered[i], offerRow.Price, offerRow.Power)
		}
		s.Ptus = append(s.Ptus, p)
	}

	var saved bool
	err = r.ledger.WithLock(ctx, s.ConnectionGroupID, s.Period, func() error {
		var err error
		saved, err = r.ledger.SaveSettlement(ctx, s)
		return err
	})
	if err != nil {
		return model.FlexOrderSettlement{}, false, fmt.Errorf("persist settlement of %s: %w", key, err)
	}
	if !saved {
		return model.FlexOrderSettlement{}, true, nil
	}
	r.record(s)
	return s, false, nil
}

// delivered fetches the delivered power of the PTUs the order applies to
// with a single bounded call.
func (r *Reconciler) delivered(ctx context.Context, j job) (map[int]decimal.Decimal, error) {
	var indices []int
	for _, i := range j.order.Indices() {
		if j.applies[i] {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return map[int]decimal.Decimal{}, nil
	}
	r.limiter.Take()
	cctx, cancel := context.WithTimeout(ctx, r.cfg.MeterTimeout())
	defer cancel()
	started := time.Now()
	values, err := r.meter.DeliveredPower(cctx, MeterRequest{
		Order:             j.order.Key(),
		ConnectionGroupID: j.order.ConnectionGroupID,
		Connections:       j.connections,
		Period:            model.Day(j.order.Period),
		Indices:           indices,
		Baseline:          j.baseline,
	})
	_ = r.recorder.RecordMeterFetch(metrics.MeterFetch{Latency: time.Since(started), Err: err != nil})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: meter data for %s: %v", model.ErrSettlementInputMissing, j.order.Key(), err)
	}
	for _, i := range indices {
		if _, ok := values[i]; !ok {
			return nil, fmt.Errorf("%w: no delivered power for %s ptu %d", model.ErrSettlementInputMissing, j.order.Key(), i)
		}
	}
	return values, nil
}

func (r *Reconciler) record(s model.FlexOrderSettlement) {
	ordered, delivered := decimal.Zero, decimal.Zero
	for _, p := range s.Ptus {
		ordered = ordered.Add(p.OrderedPower)
		delivered = delivered.Add(p.DeliveredPower)
	}
	err := r.recorder.RecordOrderSettlement(metrics.OrderSettlement{
		OrderSequence:     s.FlexOrderSequence,
		ParticipantDomain: s.ParticipantDomain,
		ConnectionGroupID: s.ConnectionGroupID,
		Period:            s.Period,
		OrderedPower:      ordered.InexactFloat64(),
		DeliveredPower:    delivered.InexactFloat64(),
		Price:             s.TotalPrice().InexactFloat64(),
		Time:              s.CreatedAt,
	})
	if err != nil {
		r.log.Warnf("record settlement of %s: %v", s.OrderKey(), err)
	}
}

func (r *Reconciler) publish(order model.Document, s model.FlexOrderSettlement, skipped bool, err error) {
	if r.bus == nil {
		return
	}
	ev := events.SettlementEvent{Order: order.Key(), Period: model.Day(order.Period), Skipped: skipped, Err: err}
	if err == nil && !skipped {
		ev.TotalPrice = s.TotalPrice().StringFixed(PriceDecimals)
	}
	r.bus.Publish(ev)
}

func rowPowers(d model.Document) map[int]decimal.Decimal {
	out := map[int]decimal.Decimal{}
	for _, i := range d.Indices() {
		row, _ := d.Row(i)
		out[i] = row.Power
	}
	return out
}

func keyLess(a, b model.DocumentKey) bool {
	if a.ParticipantDomain != b.ParticipantDomain {
		return a.ParticipantDomain < b.ParticipantDomain
	}
	return a.SequenceNumber < b.SequenceNumber
}

func sortKeys(keys []model.DocumentKey) {
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
}

// IsInputMissing reports whether err aborted an order for lack of input.
func IsInputMissing(err error) bool { return errors.Is(err, model.ErrSettlementInputMissing) }
