package events

import (
	"time"

	"github.com/kilianp07/planboard/core/model"
)

// DocumentEvent is published for every document stored or transitioned by
// the planboard. From equals To when the document was just recorded.
type DocumentEvent struct {
	Key               model.DocumentKey
	ConnectionGroupID string
	Period            time.Time
	From              model.DocumentStatus
	To                model.DocumentStatus
	Reason            string
	At                time.Time
}

// SettlementEvent is published once per flex order handled by a settlement
// run. Err is set when the order could not be settled.
type SettlementEvent struct {
	Order      model.DocumentKey
	Period     time.Time
	TotalPrice string
	Skipped    bool
	Err        error
}
