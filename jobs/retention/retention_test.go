package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/planboard"
	"github.com/kilianp07/planboard/core/ptu"
)

type countingCleaner struct {
	mu      sync.Mutex
	calls   []model.DocumentType
	befores []time.Time
	fail    model.DocumentType
}

func (c *countingCleaner) Cleanup(_ context.Context, t model.DocumentType, before time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, t)
	c.befores = append(c.befores, before)
	if t == c.fail {
		return 0, errors.New("store down")
	}
	return 1, nil
}

func (c *countingCleaner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestRunOnceWithLedger(t *testing.T) {
	ctx := context.Background()
	store := planboard.NewMemoryStore()
	ledger := planboard.New(store, ptu.MustCalendar(15, "Europe/Amsterdam"))
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	for i, created := range []time.Time{now.AddDate(0, 0, -40), now.AddDate(0, 0, -5)} {
		require.NoError(t, store.InsertDocument(ctx, model.Document{
			Type:              model.Prognosis,
			SequenceNumber:    int64(i + 1),
			ParticipantDomain: "brp.example.com",
			ConnectionGroupID: "cg",
			Period:            model.Day(created),
			CreationTime:      created,
		}))
	}
	mock := clock.NewMock()
	mock.Set(now)
	job, err := New(ledger, []model.DocumentType{model.Prognosis}, 30*24*time.Hour, WithClock(mock))
	require.NoError(t, err)

	removed, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed[model.Prognosis])
	left, err := ledger.Find(ctx, planboard.DocumentQuery{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, int64(2), left[0].SequenceNumber)
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	c := &countingCleaner{fail: model.FlexRequest}
	job, err := New(c, nil, time.Hour)
	require.NoError(t, err)
	removed, err := job.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Len(t, c.calls, len(model.DocumentTypes))
	assert.Equal(t, 1, removed[model.FlexOrder])
	_, ok := removed[model.FlexRequest]
	assert.False(t, ok)
}

func TestRunTicks(t *testing.T) {
	c := &countingCleaner{fail: -1}
	mock := clock.NewMock()
	job, err := New(c, []model.DocumentType{model.FlexOffer}, time.Hour, WithClock(mock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx, time.Hour)
		close(done)
	}()
	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mock.Add(time.Hour)
		return c.count() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, nil, time.Hour)
	assert.ErrorIs(t, err, model.ErrConfiguration)
	_, err = New(&countingCleaner{}, nil, 0)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
