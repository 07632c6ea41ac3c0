package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PtuSettlement holds the priced outcome of one PTU of a flex order.
type PtuSettlement struct {
	Index          int             `json:"ptu_index"`
	OrderedPower   decimal.Decimal `json:"ordered_power"`
	DeliveredPower decimal.Decimal `json:"delivered_power"`
	Price          decimal.Decimal `json:"price"`
}

// FlexOrderSettlement is created once per accepted flex order and billing
// period. It is immutable once persisted.
type FlexOrderSettlement struct {
	ID                  string          `json:"id"`
	FlexOrderSequence   int64           `json:"flex_order_sequence"`
	FlexOfferSequence   int64           `json:"flex_offer_sequence"`
	FlexRequestSequence int64           `json:"flex_request_sequence,omitempty"`
	ConnectionGroupID   string          `json:"connection_group_id"`
	ParticipantDomain   string          `json:"participant_domain"`
	Period              time.Time       `json:"period"`
	CreatedAt           time.Time       `json:"created_at"`
	Ptus                []PtuSettlement `json:"ptu_settlements"`
}

// OrderKey returns the key of the settled flex order.
func (s FlexOrderSettlement) OrderKey() DocumentKey {
	return DocumentKey{Type: FlexOrder, SequenceNumber: s.FlexOrderSequence, ParticipantDomain: s.ParticipantDomain}
}

// TotalPrice sums the price of every PTU.
func (s FlexOrderSettlement) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Ptus {
		total = total.Add(p.Price)
	}
	return total
}
