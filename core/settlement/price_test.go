package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/planboard/core/model"
)

func TestPrice(t *testing.T) {
	cases := []struct {
		delivered, price, power string
		want                    string
	}{
		{"5", "10", "10", "5.0000"},
		{"5", "10", "0", "0.0000"},
		{"1", "1", "3", "0.3333"},
		{"2", "1", "3", "0.6667"},
		{"0.00005", "1", "1", "0.0001"},
		{"-0.00005", "1", "1", "-0.0001"},
		{"3", "7.5", "2.5", "9.0000"},
	}
	for _, c := range cases {
		got := Price(dec(c.delivered), dec(c.price), dec(c.power))
		assert.Equal(t, c.want, got.StringFixed(PriceDecimals), "%+v", c)
	}
}

func order(seq int64, created time.Time, domain string, first, n int) model.Document {
	period := model.DateOf(2026, 6, 1)
	return model.Document{
		Type:              model.FlexOrder,
		SequenceNumber:    seq,
		Period:            period,
		ConnectionGroupID: "cg",
		ParticipantDomain: domain,
		CreationTime:      created,
		Rows:              []model.PtuSlot{{Date: period, Index: first, Duration: n, Power: dec("1")}},
	}
}

func TestResolve(t *testing.T) {
	period := model.DateOf(2026, 6, 1)
	dayAhead := testCal.Start(period, 1).Add(-10 * time.Hour)
	a := order(1, dayAhead, "agr", 1, 8)
	b := order(2, testCal.Start(period, 5).Add(-time.Minute), "agr", 3, 6)
	// late order created after every PTU it covers started
	c := order(3, testCal.Start(period, 20), "agr", 10, 2)
	other := order(4, dayAhead.Add(time.Hour), "other", 1, 8)

	got := resolve(testCal, []model.Document{a, other, b, c})

	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true, 4: true}, got[a.Key()])
	assert.Equal(t, map[int]bool{5: true, 6: true, 7: true, 8: true}, got[b.Key()])
	assert.Equal(t, map[int]bool{10: true, 11: true}, got[c.Key()])
	require.Len(t, got[other.Key()], 8, "other counterparties never compete")
}
