package settlement

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/ptu"
)

// PriceDecimals is the scale of settled prices.
const PriceDecimals = 4

// Price values delivered power at the offer's unit price:
// delivered × offerPrice ÷ offerPower, rounded half away from zero to four
// decimals. A zero offer power yields zero.
func Price(delivered, offerPrice, offerPower decimal.Decimal) decimal.Decimal {
	if offerPower.IsZero() {
		return decimal.Zero
	}
	return delivered.Mul(offerPrice).Div(offerPower).Round(PriceDecimals)
}

type orderGroup struct {
	group  string
	period time.Time
	domain string
}

// resolve decides, for every PTU index of every order, whether the order is
// the one that applies. Orders compete only with orders of the same
// connection group, period and counterparty. For a PTU the latest order
// created before the PTU started applies; when every order was created
// later the earliest one does. Orders must be sorted by creation time.
func resolve(cal *ptu.Calendar, orders []model.Document) map[model.DocumentKey]map[int]bool {
	groups := map[orderGroup][]model.Document{}
	var keys []orderGroup
	for _, o := range orders {
		k := orderGroup{group: o.ConnectionGroupID, period: model.Day(o.Period), domain: o.ParticipantDomain}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], o)
	}
	out := make(map[model.DocumentKey]map[int]bool, len(orders))
	for _, o := range orders {
		out[o.Key()] = map[int]bool{}
	}
	for _, k := range keys {
		members := groups[k]
		covering := map[int][]model.Document{}
		for _, o := range members {
			for _, i := range o.Indices() {
				covering[i] = append(covering[i], o)
			}
		}
		indices := make([]int, 0, len(covering))
		for i := range covering {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			start := cal.Start(k.period, i)
			cands := covering[i]
			winner := cands[0]
			for _, o := range cands {
				if o.CreationTime.Before(start) {
					winner = o
				}
			}
			out[winner.Key()][i] = true
		}
	}
	return out
}
