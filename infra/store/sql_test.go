package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/planboard/core/factory"
	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/planboard"
	"github.com/kilianp07/planboard/core/ptu"
)

var period = model.DateOf(2026, 6, 1)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "planboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func document(seq int64, typ model.DocumentType, created time.Time) model.Document {
	return model.Document{
		Type:              typ,
		Direction:         model.Outbound,
		SequenceNumber:    seq,
		Period:            period,
		ConnectionGroupID: "ean.1",
		ParticipantDomain: "agr.example.com",
		Status:            model.StatusSent,
		CreationTime:      created,
		ConversationID:    "conv",
		Rows: []model.PtuSlot{{
			Date: period, Index: 1, Duration: 4,
			Power: decimal.RequireFromString("12.5"), Price: decimal.RequireFromString("0.31"),
		}},
	}
}

// exerciseStore runs the behaviour shared by every backend.
func exerciseStore(t *testing.T, s planboard.Store) {
	ctx := context.Background()
	base := time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC)

	a := document(1, model.Prognosis, base)
	a.MessageID = "m-1"
	b := document(2, model.Prognosis, base.Add(time.Hour))
	c := document(3, model.FlexOrder, base.Add(30*time.Minute))
	for _, d := range []model.Document{b, a, c} {
		require.NoError(t, s.InsertDocument(ctx, d))
	}

	dup := document(9, model.Prognosis, base)
	dup.MessageID = "m-1"
	assert.ErrorIs(t, s.InsertDocument(ctx, dup), model.ErrDuplicateMessageID)
	assert.ErrorIs(t, s.InsertDocument(ctx, a), model.ErrDuplicateMessageID)

	got, err := s.GetDocument(ctx, a.Key())
	require.NoError(t, err)
	assert.Equal(t, a.ConversationID, got.ConversationID)
	assert.Equal(t, "m-1", got.MessageID)
	assert.True(t, got.CreationTime.Equal(a.CreationTime))
	assert.True(t, got.Period.Equal(period))
	require.Len(t, got.Rows, 1)
	assert.True(t, got.Rows[0].Power.Equal(a.Rows[0].Power))
	assert.Equal(t, 4, got.Rows[0].Duration)

	_, err = s.GetDocument(ctx, model.DocumentKey{Type: model.FlexOffer, SequenceNumber: 1, ParticipantDomain: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	docs, err := s.FindDocuments(ctx, planboard.DocumentQuery{
		Types:             []model.DocumentType{model.Prognosis},
		ConnectionGroupID: "ean.1",
		PeriodFrom:        period,
		PeriodTo:          period,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(1), docs[0].SequenceNumber, "ordered by creation")

	docs, err = s.FindDocuments(ctx, planboard.DocumentQuery{PeriodFrom: period.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Empty(t, docs)

	// all or nothing
	err = s.UpdateStatuses(ctx, []planboard.StatusChange{
		{Key: a.Key(), From: model.StatusSent, To: model.StatusAccepted},
		{Key: b.Key(), From: model.StatusAccepted, To: model.StatusProcessed},
	})
	assert.ErrorIs(t, err, model.ErrInvalidPhaseTransition)
	got, err = s.GetDocument(ctx, a.Key())
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)

	require.NoError(t, s.UpdateStatuses(ctx, []planboard.StatusChange{
		{Key: a.Key(), From: model.StatusSent, To: model.StatusAccepted},
		{Key: b.Key(), From: model.StatusSent, To: model.StatusAccepted},
	}))
	docs, err = s.FindDocuments(ctx, planboard.DocumentQuery{Statuses: []model.DocumentStatus{model.StatusAccepted}})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	missing := planboard.StatusChange{Key: model.DocumentKey{Type: model.FlexOrder, SequenceNumber: 77}, From: model.StatusSent, To: model.StatusAccepted}
	assert.ErrorIs(t, s.UpdateStatuses(ctx, []planboard.StatusChange{missing}), model.ErrNotFound)

	n, err := s.DeleteDocuments(ctx, model.Prognosis, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.GetDocument(ctx, a.Key())
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, s.AppendGroupState(ctx, model.ConnectionGroupState{GroupID: "ean.1", ConnectionID: "c1", ValidFrom: model.DateOf(2026, 1, 1)}))
	require.NoError(t, s.AppendGroupState(ctx, model.ConnectionGroupState{GroupID: "ean.1", ConnectionID: "c0", ValidFrom: model.DateOf(2025, 1, 1), ValidUntil: model.DateOf(2026, 1, 1)}))
	states, err := s.GroupStates(ctx, period, period)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "c1", states[0].ConnectionID)
	assert.True(t, states[0].ValidUntil.IsZero())

	st := model.FlexOrderSettlement{
		ID:                "set-1",
		FlexOrderSequence: c.SequenceNumber,
		FlexOfferSequence: 2,
		ConnectionGroupID: "ean.1",
		ParticipantDomain: c.ParticipantDomain,
		Period:            period,
		CreatedAt:         base,
		Ptus: []model.PtuSettlement{
			{Index: 2, OrderedPower: decimal.NewFromInt(10), DeliveredPower: decimal.NewFromInt(5), Price: decimal.RequireFromString("5.0000")},
			{Index: 1, OrderedPower: decimal.NewFromInt(10), DeliveredPower: decimal.NewFromInt(4), Price: decimal.RequireFromString("4.0000")},
		},
	}
	require.NoError(t, s.InsertSettlement(ctx, st))
	again := st
	again.ID = "set-2"
	assert.ErrorIs(t, s.InsertSettlement(ctx, again), model.ErrAlreadySettled)

	ok, err := s.SettlementExists(ctx, c.Key(), period)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SettlementExists(ctx, c.Key(), period.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	ss, err := s.FindSettlements(ctx, period, period)
	require.NoError(t, err)
	require.Len(t, ss, 1)
	require.Len(t, ss[0].Ptus, 2)
	assert.Equal(t, 1, ss[0].Ptus[0].Index)
	assert.Equal(t, "9", ss[0].TotalPrice().String())
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, openSQLite(t))
}

func TestMemoryStoreMatchesSQL(t *testing.T) {
	exerciseStore(t, planboard.NewMemoryStore())
}

func TestLedgerOnSQLite(t *testing.T) {
	s := openSQLite(t)
	ledger := planboard.New(s, ptu.MustCalendar(15, "Europe/Amsterdam"), planboard.WithClock(func() time.Time {
		return time.Date(2026, 5, 31, 9, 0, 0, 0, time.UTC)
	}))
	ctx := context.Background()
	doc := document(1, model.Prognosis, time.Time{})
	_, err := ledger.RecordOutbound(ctx, doc)
	require.NoError(t, err)
	_, err = ledger.Accept(ctx, doc.Key())
	require.NoError(t, err)

	next := document(2, model.Prognosis, time.Time{})
	_, err = ledger.RecordOutbound(ctx, next)
	require.NoError(t, err)
	_, err = ledger.Accept(ctx, next.Key())
	require.NoError(t, err)

	old, err := ledger.Get(ctx, doc.Key())
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, old.Status)
	last, err := ledger.LastAccepted(ctx, model.Prognosis, "ean.1", period)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last.SequenceNumber)
}

func TestFactory(t *testing.T) {
	assert.Equal(t, []string{"memory", "postgres", "sqlite"}, Types())

	s, err := New(factory.ModuleConfig{})
	require.NoError(t, err)
	assert.IsType(t, &planboard.MemoryStore{}, s)

	s, err = New(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{
		"dsn": filepath.Join(t.TempDir(), "f.db"), "open_timeout": "5s",
	}})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	_, err = New(factory.ModuleConfig{Type: "postgres"})
	assert.ErrorIs(t, err, model.ErrConfiguration)
	_, err = New(factory.ModuleConfig{Type: "mongo"})
	assert.Error(t, err)
	_, err = Open(context.Background(), Dialect("oracle"), "x")
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: Postgres}
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", pg.rebind("a = ? AND b IN (?, ?)"))
	lite := &SQLStore{dialect: SQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
