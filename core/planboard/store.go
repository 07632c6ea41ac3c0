package planboard

import (
	"context"
	"sort"
	"time"

	"github.com/kilianp07/planboard/core/model"
)

// Store persists documents, connection group memberships and settlements.
// Implementations must be safe for concurrent use.
type Store interface {
	// InsertDocument stores a new document. A document with the same key or
	// the same non-empty MessageID yields model.ErrDuplicateMessageID.
	InsertDocument(ctx context.Context, doc model.Document) error
	// GetDocument returns model.ErrNotFound for unknown keys.
	GetDocument(ctx context.Context, key model.DocumentKey) (model.Document, error)
	// FindDocuments returns the matching documents ordered by creation time.
	FindDocuments(ctx context.Context, q DocumentQuery) ([]model.Document, error)
	// UpdateStatuses applies every change or none. A change whose From does
	// not match the stored status fails with model.ErrInvalidPhaseTransition.
	UpdateStatuses(ctx context.Context, changes []StatusChange) error
	// DeleteDocuments removes documents of type t created strictly before
	// the boundary and returns how many were removed.
	DeleteDocuments(ctx context.Context, t model.DocumentType, before time.Time) (int, error)

	AppendGroupState(ctx context.Context, s model.ConnectionGroupState) error
	GroupStates(ctx context.Context, from, to time.Time) ([]model.ConnectionGroupState, error)

	// InsertSettlement persists a settlement with all its PTU rows or
	// nothing. An existing settlement of the same order and period yields
	// model.ErrAlreadySettled.
	InsertSettlement(ctx context.Context, s model.FlexOrderSettlement) error
	SettlementExists(ctx context.Context, order model.DocumentKey, period time.Time) (bool, error)
	// FindSettlements returns the settlements whose period lies in the
	// inclusive range.
	FindSettlements(ctx context.Context, from, to time.Time) ([]model.FlexOrderSettlement, error)

	Close() error
}

// StatusChange moves one document from one status to another.
type StatusChange struct {
	Key  model.DocumentKey
	From model.DocumentStatus
	To   model.DocumentStatus
}

// DocumentQuery filters documents. Zero values match everything.
type DocumentQuery struct {
	Types             []model.DocumentType
	Statuses          []model.DocumentStatus
	Directions        []model.Direction
	ConnectionGroupID string
	ParticipantDomain string
	ConversationID    string
	SequenceNumber    int64
	// PeriodFrom and PeriodTo bound the period inclusively.
	PeriodFrom time.Time
	PeriodTo   time.Time
}

// Matches reports whether d satisfies the query.
func (q DocumentQuery) Matches(d model.Document) bool {
	if len(q.Types) > 0 && !contains(q.Types, d.Type) {
		return false
	}
	if len(q.Statuses) > 0 && !contains(q.Statuses, d.Status) {
		return false
	}
	if len(q.Directions) > 0 && !contains(q.Directions, d.Direction) {
		return false
	}
	if q.ConnectionGroupID != "" && q.ConnectionGroupID != d.ConnectionGroupID {
		return false
	}
	if q.ParticipantDomain != "" && q.ParticipantDomain != d.ParticipantDomain {
		return false
	}
	if q.ConversationID != "" && q.ConversationID != d.ConversationID {
		return false
	}
	if q.SequenceNumber != 0 && q.SequenceNumber != d.SequenceNumber {
		return false
	}
	p := model.Day(d.Period)
	if !q.PeriodFrom.IsZero() && p.Before(model.Day(q.PeriodFrom)) {
		return false
	}
	if !q.PeriodTo.IsZero() && p.After(model.Day(q.PeriodTo)) {
		return false
	}
	return true
}

// SortByCreation orders documents by creation time, then sequence number.
func SortByCreation(docs []model.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreationTime.Equal(docs[j].CreationTime) {
			return docs[i].CreationTime.Before(docs[j].CreationTime)
		}
		return docs[i].SequenceNumber < docs[j].SequenceNumber
	})
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// SortSettlements orders settlements by period, connection group and flex
// order sequence.
func SortSettlements(ss []model.FlexOrderSettlement) {
	sort.SliceStable(ss, func(i, j int) bool {
		a, b := ss[i], ss[j]
		if !a.Period.Equal(b.Period) {
			return a.Period.Before(b.Period)
		}
		if a.ConnectionGroupID != b.ConnectionGroupID {
			return a.ConnectionGroupID < b.ConnectionGroupID
		}
		if a.ParticipantDomain != b.ParticipantDomain {
			return a.ParticipantDomain < b.ParticipantDomain
		}
		return a.FlexOrderSequence < b.FlexOrderSequence
	})
}
