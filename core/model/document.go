package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DocumentType is the closed set of market commitments tracked by the planboard.
type DocumentType int

const (
	Prognosis DocumentType = iota
	FlexRequest
	FlexOffer
	FlexOrder
)

// DocumentTypes lists every document type in a stable order.
var DocumentTypes = []DocumentType{Prognosis, FlexRequest, FlexOffer, FlexOrder}

func (t DocumentType) String() string {
	switch t {
	case Prognosis:
		return "PROGNOSIS"
	case FlexRequest:
		return "FLEX_REQUEST"
	case FlexOffer:
		return "FLEX_OFFER"
	case FlexOrder:
		return "FLEX_ORDER"
	default:
		return "UNKNOWN"
	}
}

// ParseDocumentType accepts the upper case names as well as short aliases
// such as "order" or "flex-offer".
func ParseDocumentType(s string) (DocumentType, error) {
	n := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	switch n {
	case "PROGNOSIS":
		return Prognosis, nil
	case "FLEX_REQUEST", "REQUEST":
		return FlexRequest, nil
	case "FLEX_OFFER", "OFFER":
		return FlexOffer, nil
	case "FLEX_ORDER", "ORDER":
		return FlexOrder, nil
	}
	return 0, fmt.Errorf("unknown document type %q", s)
}

// OriginType returns the type of document a response answers to. The second
// value is false for types that never answer another document.
func OriginType(t DocumentType) (DocumentType, bool) {
	switch t {
	case FlexOffer:
		return FlexRequest, true
	case FlexOrder:
		return FlexOffer, true
	default:
		return 0, false
	}
}

// Supersedes reports whether a newly accepted document of type t replaces the
// previously accepted ones of the same connection group and period.
func Supersedes(t DocumentType) bool {
	return t == Prognosis || t == FlexOrder
}

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus int

const (
	StatusSent DocumentStatus = iota
	StatusReceived
	StatusAccepted
	StatusRejected
	StatusDisputed
	StatusProcessed
	StatusRevoked
	StatusArchived
)

func (s DocumentStatus) String() string {
	switch s {
	case StatusSent:
		return "SENT"
	case StatusReceived:
		return "RECEIVED"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusRejected:
		return "REJECTED"
	case StatusDisputed:
		return "DISPUTED"
	case StatusProcessed:
		return "PROCESSED"
	case StatusRevoked:
		return "REVOKED"
	case StatusArchived:
		return "ARCHIVED"
	default:
		return "UNKNOWN"
	}
}

// CanTransition encodes the document state machine:
//
//	SENT/RECEIVED -> ACCEPTED | REJECTED | DISPUTED
//	ACCEPTED      -> PROCESSED | REVOKED | ARCHIVED
//	PROCESSED     -> ARCHIVED
//
// Every other status is terminal.
func CanTransition(from, to DocumentStatus) bool {
	switch from {
	case StatusSent, StatusReceived:
		return to == StatusAccepted || to == StatusRejected || to == StatusDisputed
	case StatusAccepted:
		return to == StatusProcessed || to == StatusRevoked || to == StatusArchived
	case StatusProcessed:
		return to == StatusArchived
	default:
		return false
	}
}

// Direction tells whether a document was sent or received by this host.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "INBOUND"
	}
	return "OUTBOUND"
}

// DocumentKey identifies a document. The (sequence, domain) pair is unique
// within a type.
type DocumentKey struct {
	Type              DocumentType `json:"type"`
	SequenceNumber    int64        `json:"sequence_number"`
	ParticipantDomain string       `json:"participant_domain"`
}

func (k DocumentKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Type, k.ParticipantDomain, k.SequenceNumber)
}

// Document is one market commitment with its PTU rows. ParticipantDomain
// is the counterparty: the recipient of outbound documents and the sender of
// inbound ones.
type Document struct {
	Type                 DocumentType   `json:"type"`
	Direction            Direction      `json:"direction"`
	SequenceNumber       int64          `json:"sequence_number"`
	Period               time.Time      `json:"period"`
	ConnectionGroupID    string         `json:"connection_group_id"`
	ParticipantDomain    string         `json:"participant_domain"`
	Status               DocumentStatus `json:"status"`
	CreationTime         time.Time      `json:"creation_time"`
	OriginSequenceNumber int64          `json:"origin_sequence_number,omitempty"` // 0 when the document answers nothing
	ConversationID       string         `json:"conversation_id,omitempty"`
	MessageID            string         `json:"message_id,omitempty"`
	Rows                 []PtuSlot      `json:"rows"`
}

// Key returns the identifying triple of the document.
func (d Document) Key() DocumentKey {
	return DocumentKey{Type: d.Type, SequenceNumber: d.SequenceNumber, ParticipantDomain: d.ParticipantDomain}
}

// HasOrigin reports whether the document references an origin document.
func (d Document) HasOrigin() bool { return d.OriginSequenceNumber != 0 }

// Row returns the row covering the given PTU index, if any. Rows may be
// compact runs.
func (d Document) Row(index int) (PtuSlot, bool) {
	for _, r := range d.Rows {
		dur := r.Duration
		if dur < 1 {
			dur = 1
		}
		if index >= r.Index && index < r.Index+dur {
			return r, true
		}
	}
	return PtuSlot{}, false
}

// Indices returns the sorted PTU indices covered by the document rows.
func (d Document) Indices() []int {
	seen := map[int]bool{}
	var out []int
	for _, r := range d.Rows {
		dur := r.Duration
		if dur < 1 {
			dur = 1
		}
		for i := r.Index; i < r.Index+dur; i++ {
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	sort.Ints(out)
	return out
}

// FirstIndex returns the lowest PTU index of the document, or 0 without rows.
func (d Document) FirstIndex() int {
	idx := d.Indices()
	if len(idx) == 0 {
		return 0
	}
	return idx[0]
}
