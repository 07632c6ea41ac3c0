package settlement

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/planboard/core/events"
	"github.com/kilianp07/planboard/core/metrics"
	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/planboard"
	"github.com/kilianp07/planboard/core/ptu"
	"github.com/kilianp07/planboard/internal/eventbus"
)

var testCal = ptu.MustCalendar(15, "Europe/Amsterdam")

type fixtureRow struct {
	Index    int    `yaml:"index"`
	Duration int    `yaml:"duration"`
	Power    string `yaml:"power"`
	Price    string `yaml:"price"`
}

type fixtureDoc struct {
	Sequence int64        `yaml:"sequence"`
	Origin   int64        `yaml:"origin"`
	Status   string       `yaml:"status"`
	Created  string       `yaml:"created"`
	Rows     []fixtureRow `yaml:"rows"`
}

type fixturePtu struct {
	Index     int    `yaml:"index"`
	Ordered   string `yaml:"ordered"`
	Delivered string `yaml:"delivered"`
	Price     string `yaml:"price"`
}

type fixture struct {
	Period      string         `yaml:"period"`
	Group       string         `yaml:"group"`
	Domain      string         `yaml:"domain"`
	Connections []string       `yaml:"connections"`
	Offers      []fixtureDoc   `yaml:"offers"`
	Orders      []fixtureDoc   `yaml:"orders"`
	Delivered   map[int]string `yaml:"delivered"`
	Expect      []struct {
		Order int64        `yaml:"order"`
		Ptus  []fixturePtu `yaml:"ptus"`
	} `yaml:"expect"`
}

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(s)
}

func parseStatus(t *testing.T, s string) model.DocumentStatus {
	t.Helper()
	if s == "" {
		return model.StatusAccepted
	}
	for st := model.StatusSent; st <= model.StatusArchived; st++ {
		if st.String() == s {
			return st
		}
	}
	t.Fatalf("unknown status %q", s)
	return 0
}

func loadFixture(t *testing.T, name string) fixture {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	var f fixture
	require.NoError(t, yaml.Unmarshal(b, &f))
	return f
}

type env struct {
	store  *planboard.MemoryStore
	ledger *planboard.Ledger
	meter  *StaticMeterData
	period time.Time
}

func (e env) insert(t *testing.T, doc model.Document) {
	t.Helper()
	require.NoError(t, e.store.InsertDocument(context.Background(), doc))
}

func setup(t *testing.T, f fixture) env {
	t.Helper()
	day, err := time.Parse(time.DateOnly, f.Period)
	require.NoError(t, err)
	e := env{store: planboard.NewMemoryStore(), meter: NewStaticMeterData(), period: model.Day(day)}
	e.ledger = planboard.New(e.store, testCal)
	ctx := context.Background()
	for _, c := range f.Connections {
		require.NoError(t, e.ledger.RegisterConnection(ctx, model.ConnectionGroupState{
			GroupID: f.Group, ConnectionID: c, ValidFrom: e.period.AddDate(0, -1, 0),
		}))
	}
	build := func(fd fixtureDoc, typ model.DocumentType, dir model.Direction) model.Document {
		created := testCal.Start(e.period, 1).Add(-12 * time.Hour)
		if fd.Created != "" {
			created, err = time.Parse(time.RFC3339, fd.Created)
			require.NoError(t, err)
		}
		doc := model.Document{
			Type:                 typ,
			Direction:            dir,
			SequenceNumber:       fd.Sequence,
			Period:               e.period,
			ConnectionGroupID:    f.Group,
			ParticipantDomain:    f.Domain,
			Status:               parseStatus(t, fd.Status),
			CreationTime:         created,
			OriginSequenceNumber: fd.Origin,
		}
		for _, r := range fd.Rows {
			dur := r.Duration
			if dur == 0 {
				dur = 1
			}
			doc.Rows = append(doc.Rows, model.PtuSlot{
				Date: e.period, Index: r.Index, Duration: dur, Power: dec(r.Power), Price: dec(r.Price),
			})
		}
		return doc
	}
	for _, o := range f.Offers {
		e.insert(t, build(o, model.FlexOffer, model.Inbound))
	}
	for _, o := range f.Orders {
		e.insert(t, build(o, model.FlexOrder, model.Outbound))
	}
	for i, v := range f.Delivered {
		e.meter.Set(f.Group, e.period, i, dec(v))
	}
	return e
}

func newReconciler(t *testing.T, e env, opts ...Option) *Reconciler {
	t.Helper()
	r, err := New(e.ledger, e.meter, Config{Concurrency: 2}, opts...)
	require.NoError(t, err)
	return r
}

func TestFixtures(t *testing.T) {
	for _, name := range []string{"price.yaml", "supersession.yaml"} {
		t.Run(name, func(t *testing.T) {
			f := loadFixture(t, name)
			e := setup(t, f)
			r := newReconciler(t, e)
			ctx := context.Background()

			report, err := r.RunMonth(ctx, e.period.Year(), e.period.Month())
			require.NoError(t, err)
			assert.Empty(t, report.Failed)
			require.Len(t, report.Settled, len(f.Expect))

			stored, err := e.ledger.Settlements(ctx, e.period, e.period)
			require.NoError(t, err)
			bySeq := map[int64]model.FlexOrderSettlement{}
			for _, s := range stored {
				bySeq[s.FlexOrderSequence] = s
			}
			for _, want := range f.Expect {
				s, ok := bySeq[want.Order]
				require.True(t, ok, "order %d not settled", want.Order)
				assert.Equal(t, f.Group, s.ConnectionGroupID)
				assert.Equal(t, f.Domain, s.ParticipantDomain)
				assert.NotEmpty(t, s.ID)
				require.Len(t, s.Ptus, len(want.Ptus))
				for i, p := range want.Ptus {
					got := s.Ptus[i]
					assert.Equal(t, p.Index, got.Index)
					assert.True(t, dec(p.Ordered).Equal(got.OrderedPower), "ordered ptu %d: %s", p.Index, got.OrderedPower)
					assert.True(t, dec(p.Delivered).Equal(got.DeliveredPower), "delivered ptu %d: %s", p.Index, got.DeliveredPower)
					assert.Equal(t, p.Price, got.Price.StringFixed(PriceDecimals), "price ptu %d", p.Index)
				}
			}
		})
	}
}

func TestRunIsIdempotent(t *testing.T) {
	e := setup(t, loadFixture(t, "supersession.yaml"))
	r := newReconciler(t, e)
	ctx := context.Background()

	first, err := r.Run(ctx, e.period, e.period)
	require.NoError(t, err)
	require.Len(t, first.Settled, 2)

	second, err := r.Run(ctx, e.period, e.period)
	require.NoError(t, err)
	assert.Empty(t, second.Settled)
	assert.Len(t, second.Skipped, 2)

	stored, err := e.ledger.Settlements(ctx, e.period, e.period)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	complete, missing, err := r.IsComplete(ctx, e.period.Year(), e.period.Month())
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Empty(t, missing)
}

func TestMissingOfferIsIsolated(t *testing.T) {
	f := loadFixture(t, "price.yaml")
	e := setup(t, f)
	orphan := model.Document{
		Type:                 model.FlexOrder,
		SequenceNumber:       99,
		Period:               e.period,
		ConnectionGroupID:    f.Group,
		ParticipantDomain:    f.Domain,
		Status:               model.StatusAccepted,
		CreationTime:         testCal.Start(e.period, 1).Add(-time.Hour),
		OriginSequenceNumber: 404,
		Rows:                 []model.PtuSlot{{Date: e.period, Index: 10, Duration: 1, Power: dec("1")}},
	}
	e.insert(t, orphan)
	r := newReconciler(t, e)
	ctx := context.Background()

	report, err := r.Run(ctx, e.period, e.period)
	require.NoError(t, err)
	require.Len(t, report.Settled, 1)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, orphan.Key(), report.Failed[0].Order)
	assert.ErrorIs(t, report.Failed[0].Err, model.ErrSettlementInputMissing)
	assert.True(t, IsInputMissing(report.Failed[0].Err))

	complete, missing, err := r.IsComplete(ctx, e.period.Year(), e.period.Month())
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, []model.DocumentKey{orphan.Key()}, missing)
}

func TestMissingMeterData(t *testing.T) {
	f := loadFixture(t, "price.yaml")
	f.Delivered = map[int]string{1: "5", 2: "5"}
	e := setup(t, f)
	r := newReconciler(t, e)

	report, err := r.Run(context.Background(), e.period, e.period)
	require.NoError(t, err)
	assert.Empty(t, report.Settled)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, model.ErrSettlementInputMissing)
}

type failingMeter struct{}

func (failingMeter) DeliveredPower(context.Context, MeterRequest) (map[int]decimal.Decimal, error) {
	return nil, errors.New("meter service unavailable")
}

type captureMeter struct {
	mu   sync.Mutex
	reqs []MeterRequest
	next MeterDataProvider
}

func (c *captureMeter) DeliveredPower(ctx context.Context, req MeterRequest) (map[int]decimal.Decimal, error) {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()
	return c.next.DeliveredPower(ctx, req)
}

func TestMeterRequestCarriesContext(t *testing.T) {
	f := loadFixture(t, "price.yaml")
	e := setup(t, f)
	e.insert(t, model.Document{
		Type:              model.Prognosis,
		SequenceNumber:    5,
		Period:            e.period,
		ConnectionGroupID: f.Group,
		ParticipantDomain: "brp.example.com",
		Status:            model.StatusAccepted,
		CreationTime:      testCal.Start(e.period, 1).Add(-24 * time.Hour),
		Rows:              []model.PtuSlot{{Date: e.period, Index: 1, Duration: 96, Power: dec("42")}},
	})
	meter := &captureMeter{next: e.meter}
	r, err := New(e.ledger, meter, Config{})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), e.period, e.period)
	require.NoError(t, err)
	require.Len(t, meter.reqs, 1)
	req := meter.reqs[0]
	assert.Equal(t, []int{1, 2, 3, 4}, req.Indices)
	assert.Equal(t, f.Connections, req.Connections)
	assert.True(t, dec("42").Equal(req.Baseline[3]))
}

func TestMeterFailureIsInputMissing(t *testing.T) {
	e := setup(t, loadFixture(t, "price.yaml"))
	r, err := New(e.ledger, failingMeter{}, Config{MeterRatePerSecond: 100})
	require.NoError(t, err)
	report, err := r.Run(context.Background(), e.period, e.period)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, model.ErrSettlementInputMissing)
}

type recorder struct {
	metrics.NopSink
	mu      sync.Mutex
	orders  []metrics.OrderSettlement
	runs    []metrics.SettlementRun
	fetches int
}

func (r *recorder) RecordOrderSettlement(ev metrics.OrderSettlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, ev)
	return nil
}

func (r *recorder) RecordSettlementRun(ev metrics.SettlementRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, ev)
	return nil
}

func (r *recorder) RecordMeterFetch(metrics.MeterFetch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	return nil
}

func TestMetricsAndEvents(t *testing.T) {
	e := setup(t, loadFixture(t, "price.yaml"))
	rec := &recorder{}
	bus := eventbus.NewTyped[events.SettlementEvent]()
	ch := bus.Subscribe()
	r := newReconciler(t, e, WithRecorder(rec), WithEventBus(bus))

	_, err := r.RunMonth(context.Background(), 2026, time.June)
	require.NoError(t, err)

	require.Len(t, rec.orders, 1)
	assert.InDelta(t, 20.0, rec.orders[0].Price, 1e-9)
	assert.InDelta(t, 40.0, rec.orders[0].OrderedPower, 1e-9)
	assert.Equal(t, 1, rec.fetches)
	require.Len(t, rec.runs, 1)
	assert.True(t, rec.runs[0].Complete)
	assert.Equal(t, 1, rec.runs[0].Settled)

	select {
	case ev := <-ch:
		assert.Equal(t, int64(20), ev.Order.SequenceNumber)
		assert.Equal(t, "20.0000", ev.TotalPrice)
		assert.False(t, ev.Skipped)
	default:
		t.Fatal("no settlement event")
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, NewStaticMeterData(), Config{})
	assert.ErrorIs(t, err, model.ErrConfiguration)
	e := setup(t, loadFixture(t, "price.yaml"))
	_, err = New(e.ledger, e.meter, Config{MeterRatePerSecond: -1})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestCancelledRun(t *testing.T) {
	e := setup(t, loadFixture(t, "price.yaml"))
	r := newReconciler(t, e)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, e.period, e.period)
	assert.ErrorIs(t, err, context.Canceled)
}
