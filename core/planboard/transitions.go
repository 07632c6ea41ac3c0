package planboard

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/planboard/core/model"
)

// Result is the outcome carried by a response to an outbound document.
type Result int

const (
	ResultAccepted Result = iota
	ResultRejected
	ResultDisputed
)

// Status maps the result onto the document status it produces.
func (r Result) Status() model.DocumentStatus {
	switch r {
	case ResultRejected:
		return model.StatusRejected
	case ResultDisputed:
		return model.StatusDisputed
	default:
		return model.StatusAccepted
	}
}

// Response answers an outbound document. SequenceNumber may be zero when
// the conversation identifies the document on its own.
type Response struct {
	Type              model.DocumentType
	SequenceNumber    int64
	ParticipantDomain string
	ConversationID    string
	Result            Result
	Reason            string
}

// ApplyResponse accepts, rejects or disputes the outbound document the
// response refers to.
func (l *Ledger) ApplyResponse(ctx context.Context, r Response) (model.Document, error) {
	docs, err := l.store.FindDocuments(ctx, DocumentQuery{
		Types:             []model.DocumentType{r.Type},
		Directions:        []model.Direction{model.Outbound},
		ParticipantDomain: r.ParticipantDomain,
		ConversationID:    r.ConversationID,
		SequenceNumber:    r.SequenceNumber,
	})
	if err != nil {
		return model.Document{}, err
	}
	if len(docs) == 0 || (r.ConversationID == "" && r.SequenceNumber == 0) {
		return model.Document{}, fmt.Errorf("%w: no %s for conversation %q", model.ErrUnknownConversation, r.Type, r.ConversationID)
	}
	return l.transition(ctx, docs[len(docs)-1].Key(), r.Result.Status(), r.Reason)
}

// Accept moves a document to ACCEPTED, superseding older accepted
// documents when its type supersedes.
func (l *Ledger) Accept(ctx context.Context, key model.DocumentKey) (model.Document, error) {
	return l.transition(ctx, key, model.StatusAccepted, "")
}

// Reject moves a document to REJECTED.
func (l *Ledger) Reject(ctx context.Context, key model.DocumentKey, reason string) (model.Document, error) {
	return l.transition(ctx, key, model.StatusRejected, reason)
}

// Dispute moves a document to DISPUTED.
func (l *Ledger) Dispute(ctx context.Context, key model.DocumentKey, reason string) (model.Document, error) {
	return l.transition(ctx, key, model.StatusDisputed, reason)
}

// Revoke cancels an accepted document. It fails with
// model.ErrInvalidPhaseTransition once any of its PTUs is operational.
func (l *Ledger) Revoke(ctx context.Context, key model.DocumentKey, reason string) (model.Document, error) {
	return l.transition(ctx, key, model.StatusRevoked, reason)
}

// Transition applies an arbitrary state machine transition.
func (l *Ledger) Transition(ctx context.Context, key model.DocumentKey, to model.DocumentStatus) (model.Document, error) {
	return l.transition(ctx, key, to, "")
}

func (l *Ledger) transition(ctx context.Context, key model.DocumentKey, to model.DocumentStatus, reason string) (model.Document, error) {
	doc, err := l.store.GetDocument(ctx, key)
	if err != nil {
		return model.Document{}, err
	}
	var (
		changes []StatusChange
		docs    map[model.DocumentKey]model.Document
	)
	err = l.locks.WithLock(ctx, doc.ConnectionGroupID, doc.Period, func() error {
		// reload: the status may have changed while waiting for the lock
		cur, err := l.store.GetDocument(ctx, key)
		if err != nil {
			return err
		}
		changes, docs, err = l.plan(ctx, cur, to)
		if err != nil {
			return err
		}
		return l.store.UpdateStatuses(ctx, changes)
	})
	if err != nil {
		l.log.Warnf("transition %s to %s: %v", key, to, err)
		return model.Document{}, err
	}
	out := docs[key]
	for _, c := range changes {
		r := reason
		switch {
		case c.Key != key:
			r = "superseded by " + key.String()
		case c.To != to:
			r = "superseded by a later document"
		}
		if c.Key == key {
			out.Status = c.To
		}
		l.emit(ctx, docs[c.Key], c.From, c.To, r)
	}
	return out, nil
}

// plan computes the status changes for moving doc to the target status.
func (l *Ledger) plan(ctx context.Context, doc model.Document, to model.DocumentStatus) ([]StatusChange, map[model.DocumentKey]model.Document, error) {
	if !model.CanTransition(doc.Status, to) {
		return nil, nil, fmt.Errorf("%w: %s cannot move from %s to %s", model.ErrInvalidPhaseTransition, doc.Key(), doc.Status, to)
	}
	if to == model.StatusRevoked {
		for _, idx := range doc.Indices() {
			if l.phases.Operational(doc.Period, idx) {
				return nil, nil, fmt.Errorf("%w: ptu %d of %s is operational", model.ErrInvalidPhaseTransition, idx, doc.Period.Format(time.DateOnly))
			}
		}
	}
	docs := map[model.DocumentKey]model.Document{doc.Key(): doc}
	changes := []StatusChange{{Key: doc.Key(), From: doc.Status, To: to}}
	if to != model.StatusAccepted || !model.Supersedes(doc.Type) {
		return changes, docs, nil
	}

	accepted, err := l.store.FindDocuments(ctx, DocumentQuery{
		Types:             []model.DocumentType{doc.Type},
		Statuses:          []model.DocumentStatus{model.StatusAccepted},
		ConnectionGroupID: doc.ConnectionGroupID,
		ParticipantDomain: doc.ParticipantDomain,
		PeriodFrom:        doc.Period,
		PeriodTo:          doc.Period,
	})
	if err != nil {
		return nil, nil, err
	}
	newer := false
	for _, other := range accepted {
		if other.Key() == doc.Key() || other.Direction != doc.Direction {
			continue
		}
		if createdAfter(other, doc) {
			newer = true
			continue
		}
		docs[other.Key()] = other
		changes = append(changes, StatusChange{Key: other.Key(), From: model.StatusAccepted, To: model.StatusProcessed})
	}
	if newer {
		// a later document is already accepted: this one is superseded on arrival
		changes = append(changes, StatusChange{Key: doc.Key(), From: model.StatusAccepted, To: model.StatusProcessed})
	}
	return changes, docs, nil
}

func createdAfter(a, b model.Document) bool {
	if !a.CreationTime.Equal(b.CreationTime) {
		return a.CreationTime.After(b.CreationTime)
	}
	return a.SequenceNumber > b.SequenceNumber
}
