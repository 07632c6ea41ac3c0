package planboard

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/planboard/core/events"
	"github.com/kilianp07/planboard/core/logger"
	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/ptu"
	"github.com/kilianp07/planboard/internal/eventbus"
)

// AuditLog receives every document event in order of application.
type AuditLog interface {
	Append(ctx context.Context, ev events.DocumentEvent) error
}

// Ledger owns document status and row mutation.
type Ledger struct {
	store    Store
	cal      *ptu.Calendar
	locks    *KeyedLock
	phases   *PhaseTracker
	bus      *eventbus.TypedBus[events.DocumentEvent]
	handlers *eventbus.Table[events.DocumentEvent]
	audit    AuditLog
	log      logger.Logger
	now      func() time.Time

	intradayPtus int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(g *Ledger) { g.log = l } }

// WithAudit appends every document event to a.
func WithAudit(a AuditLog) Option { return func(g *Ledger) { g.audit = a } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(g *Ledger) { g.now = now } }

// WithEventBus publishes document events on bus instead of a private one.
func WithEventBus(bus *eventbus.TypedBus[events.DocumentEvent]) Option {
	return func(g *Ledger) { g.bus = bus }
}

// WithIntradayClosurePtus sets how many PTUs ahead of the current one are
// closed for intraday trading.
func WithIntradayClosurePtus(n int) Option { return func(g *Ledger) { g.intradayPtus = n } }

// New creates a Ledger over store using cal for PTU arithmetic.
func New(store Store, cal *ptu.Calendar, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		cal:      cal,
		locks:    NewKeyedLock(),
		handlers: eventbus.NewTable[events.DocumentEvent](),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.log = logger.OrNop(l.log)
	if l.bus == nil {
		l.bus = eventbus.NewTyped[events.DocumentEvent]()
	}
	l.phases = NewPhaseTracker(cal, l.intradayPtus, l.now)
	return l
}

// Calendar returns the PTU calendar of the ledger.
func (l *Ledger) Calendar() *ptu.Calendar { return l.cal }

// Store returns the underlying store.
func (l *Ledger) Store() Store { return l.store }

// Phases returns the phase tracker fed by HandleSignal.
func (l *Ledger) Phases() *PhaseTracker { return l.phases }

// Events returns the bus carrying every document event.
func (l *Ledger) Events() *eventbus.TypedBus[events.DocumentEvent] { return l.bus }

// Subscribe registers a callback invoked synchronously for every document
// event. The returned function unregisters it.
func (l *Ledger) Subscribe(h eventbus.Handler[events.DocumentEvent]) func() {
	return l.handlers.Register(h)
}

// WithLock runs fn while holding the lock of (group, period).
func (l *Ledger) WithLock(ctx context.Context, group string, period time.Time, fn func() error) error {
	return l.locks.WithLock(ctx, group, period, fn)
}

// Phase returns the trading phase of one PTU.
func (l *Ledger) Phase(period time.Time, index int) Phase { return l.phases.Phase(period, index) }

// Negotiable reports whether documents may still change the PTU.
func (l *Ledger) Negotiable(period time.Time, index int) bool {
	return l.phases.Negotiable(period, index)
}

// HandleSignal consumes a scheduler signal. It matches the scheduler's
// handler signature.
func (l *Ledger) HandleSignal(sig events.Signal) error {
	l.phases.Observe(sig)
	l.log.Debugw("gate signal", map[string]any{"signal": sig.String()})
	if d, ok := sig.(events.DayAheadClosure); ok {
		l.phases.Forget(d.Period.AddDate(0, 0, -7))
	}
	return nil
}

// RecordOutbound stores a document sent by this host with status SENT.
func (l *Ledger) RecordOutbound(ctx context.Context, doc model.Document) (model.Document, error) {
	doc.Direction = model.Outbound
	doc.Status = model.StatusSent
	return l.record(ctx, doc)
}

// RecordInbound stores a received document with status RECEIVED. Responses
// (flex offers and flex orders) are correlated with their origin first.
func (l *Ledger) RecordInbound(ctx context.Context, doc model.Document) (model.Document, error) {
	if _, ok := model.OriginType(doc.Type); ok {
		return l.ReceiveResponse(ctx, doc)
	}
	doc.Direction = model.Inbound
	doc.Status = model.StatusReceived
	return l.record(ctx, doc)
}

// ReceiveResponse stores an inbound response document. A prior outbound
// document of the origin type must exist for the same counterparty and
// conversation, otherwise model.ErrUnknownConversation is returned and
// nothing is stored.
func (l *Ledger) ReceiveResponse(ctx context.Context, doc model.Document) (model.Document, error) {
	originType, ok := model.OriginType(doc.Type)
	if !ok {
		return model.Document{}, fmt.Errorf("%w: %s is not a response", model.ErrInvalidDocument, doc.Type)
	}
	if doc.ConversationID == "" && !doc.HasOrigin() {
		return model.Document{}, fmt.Errorf("%w: %s %d carries no conversation", model.ErrUnknownConversation, doc.Type, doc.SequenceNumber)
	}
	origins, err := l.store.FindDocuments(ctx, DocumentQuery{
		Types:             []model.DocumentType{originType},
		Directions:        []model.Direction{model.Outbound},
		ParticipantDomain: doc.ParticipantDomain,
		ConversationID:    doc.ConversationID,
		SequenceNumber:    doc.OriginSequenceNumber,
	})
	if err != nil {
		return model.Document{}, err
	}
	if len(origins) == 0 {
		return model.Document{}, fmt.Errorf("%w: no %s sent to %s for %s %d", model.ErrUnknownConversation, originType, doc.ParticipantDomain, doc.Type, doc.SequenceNumber)
	}
	origin := origins[len(origins)-1]
	doc.OriginSequenceNumber = origin.SequenceNumber
	if doc.ConnectionGroupID == "" {
		doc.ConnectionGroupID = origin.ConnectionGroupID
	}
	if doc.Period.IsZero() {
		doc.Period = origin.Period
	}
	doc.Direction = model.Inbound
	doc.Status = model.StatusReceived
	return l.record(ctx, doc)
}

func (l *Ledger) record(ctx context.Context, doc model.Document) (model.Document, error) {
	if doc.CreationTime.IsZero() {
		doc.CreationTime = l.now()
	}
	doc.Period = model.Day(doc.Period)
	doc.Rows = ptu.Compact(doc.Rows)
	if err := l.validate(doc); err != nil {
		return model.Document{}, err
	}
	err := l.locks.WithLock(ctx, doc.ConnectionGroupID, doc.Period, func() error {
		return l.store.InsertDocument(ctx, doc)
	})
	if err != nil {
		l.log.Warnf("rejecting %s: %v", doc.Key(), err)
		return model.Document{}, err
	}
	l.emit(ctx, doc, doc.Status, doc.Status, "")
	return doc, nil
}

func (l *Ledger) validate(doc model.Document) error {
	if doc.SequenceNumber <= 0 {
		return fmt.Errorf("%w: sequence number must be positive", model.ErrInvalidDocument)
	}
	if doc.ParticipantDomain == "" {
		return fmt.Errorf("%w: participant domain is required", model.ErrInvalidDocument)
	}
	if doc.ConnectionGroupID == "" {
		return fmt.Errorf("%w: connection group is required", model.ErrInvalidDocument)
	}
	if doc.Period.IsZero() {
		return fmt.Errorf("%w: period is required", model.ErrInvalidDocument)
	}
	n := l.cal.PtusPerDay(doc.Period)
	for _, idx := range doc.Indices() {
		if idx < 1 || idx > n {
			return fmt.Errorf("%w: ptu index %d outside 1..%d of %s", model.ErrInvalidDocument, idx, n, doc.Period.Format(time.DateOnly))
		}
	}
	return nil
}

// emit publishes the event on the bus, the callback table and the audit log.
func (l *Ledger) emit(ctx context.Context, doc model.Document, from, to model.DocumentStatus, reason string) {
	ev := events.DocumentEvent{
		Key:               doc.Key(),
		ConnectionGroupID: doc.ConnectionGroupID,
		Period:            doc.Period,
		From:              from,
		To:                to,
		Reason:            reason,
		At:                l.now(),
	}
	if l.audit != nil {
		if err := l.audit.Append(ctx, ev); err != nil {
			l.log.Errorf("audit %s: %v", ev.Key, err)
		}
	}
	l.bus.Publish(ev)
	for _, err := range l.handlers.Dispatch(ev, func(r any) { l.log.Errorf("document handler panic: %v", r) }) {
		l.log.Warnf("document handler for %s: %v", ev.Key, err)
	}
}
