package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transitionsOnly implements no optional recorder.
type transitionsOnly struct {
	n   int
	err error
}

func (s *transitionsOnly) RecordDocumentTransition(DocumentTransition) error {
	s.n++
	return s.err
}

type settlementSink struct {
	transitionsOnly
	settled []int64
	runs    int
}

func (s *settlementSink) RecordOrderSettlement(ev OrderSettlement) error {
	s.settled = append(s.settled, ev.OrderSequence)
	return nil
}

func (s *settlementSink) RecordSettlementRun(SettlementRun) error {
	s.runs++
	return nil
}

func TestMultiSinkForwardsOptionalRecorders(t *testing.T) {
	plain := &transitionsOnly{}
	full := &settlementSink{}
	m := NewMultiSink(plain, full)

	require.NoError(t, m.RecordDocumentTransition(DocumentTransition{To: "ACCEPTED"}))
	require.NoError(t, m.RecordOrderSettlement(OrderSettlement{OrderSequence: 3}))
	require.NoError(t, m.RecordSettlementRun(SettlementRun{}))
	require.NoError(t, m.RecordSignal(SignalEvent{}))

	assert.Equal(t, 1, plain.n)
	assert.Equal(t, 1, full.n)
	assert.Equal(t, []int64{3}, full.settled)
	assert.Equal(t, 1, full.runs)
}

func TestMultiSinkKeepsDeliveringAfterFailure(t *testing.T) {
	boom := errors.New("sink down")
	failing := &transitionsOnly{err: boom}
	healthy := &transitionsOnly{}
	err := NewMultiSink(failing, healthy).RecordDocumentTransition(DocumentTransition{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, healthy.n)
}
