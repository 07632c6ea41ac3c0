package planboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/planboard/core/model"
)

// Find returns the documents matching q ordered by creation time.
func (l *Ledger) Find(ctx context.Context, q DocumentQuery) ([]model.Document, error) {
	return l.store.FindDocuments(ctx, q)
}

// Get returns one document.
func (l *Ledger) Get(ctx context.Context, key model.DocumentKey) (model.Document, error) {
	return l.store.GetDocument(ctx, key)
}

// LastAccepted returns the most recently created ACCEPTED document of the
// given type for the connection group and period. Superseded documents are
// PROCESSED and therefore never returned.
func (l *Ledger) LastAccepted(ctx context.Context, t model.DocumentType, group string, period time.Time) (model.Document, error) {
	docs, err := l.store.FindDocuments(ctx, DocumentQuery{
		Types:             []model.DocumentType{t},
		Statuses:          []model.DocumentStatus{model.StatusAccepted},
		ConnectionGroupID: group,
		PeriodFrom:        period,
		PeriodTo:          period,
	})
	if err != nil {
		return model.Document{}, err
	}
	if len(docs) == 0 {
		return model.Document{}, fmt.Errorf("%w: no accepted %s for %s on %s", model.ErrNotFound, t, group, model.Day(period).Format(time.DateOnly))
	}
	return docs[len(docs)-1], nil
}

// RegisterConnection appends a membership row.
func (l *Ledger) RegisterConnection(ctx context.Context, s model.ConnectionGroupState) error {
	if s.GroupID == "" || s.ConnectionID == "" {
		return fmt.Errorf("%w: group and connection are required", model.ErrInvalidDocument)
	}
	if !s.ValidUntil.IsZero() && !s.ValidUntil.After(s.ValidFrom) {
		return fmt.Errorf("%w: membership of %s ends before it starts", model.ErrInvalidDocument, s.ConnectionID)
	}
	return l.store.AppendGroupState(ctx, s)
}

// ActiveConnectionGroups returns, for the inclusive date range, every
// connection group with the sorted connections that belonged to it.
func (l *Ledger) ActiveConnectionGroups(ctx context.Context, from, to time.Time) (map[string][]string, error) {
	states, err := l.store.GroupStates(ctx, from, to)
	if err != nil {
		return nil, err
	}
	seen := map[string]map[string]bool{}
	for _, s := range states {
		if !s.Overlaps(from, to) {
			continue
		}
		if seen[s.GroupID] == nil {
			seen[s.GroupID] = map[string]bool{}
		}
		seen[s.GroupID][s.ConnectionID] = true
	}
	out := make(map[string][]string, len(seen))
	for g, conns := range seen {
		list := make([]string, 0, len(conns))
		for c := range conns {
			list = append(list, c)
		}
		sort.Strings(list)
		out[g] = list
	}
	return out, nil
}

// Cleanup deletes documents of type t created strictly before the boundary
// and returns how many were removed.
func (l *Ledger) Cleanup(ctx context.Context, t model.DocumentType, before time.Time) (int, error) {
	n, err := l.store.DeleteDocuments(ctx, t, before)
	if err != nil {
		return 0, fmt.Errorf("cleanup %s: %w", t, err)
	}
	l.log.Infof("removed %d %s documents created before %s", n, t, before.Format(time.RFC3339))
	return n, nil
}

// ArchiveMonth moves every ACCEPTED or PROCESSED document of the month to
// ARCHIVED. Documents failing to archive are logged and skipped.
func (l *Ledger) ArchiveMonth(ctx context.Context, year int, month time.Month) (int, error) {
	from := model.DateOf(year, month, 1)
	to := from.AddDate(0, 1, -1)
	docs, err := l.store.FindDocuments(ctx, DocumentQuery{
		Statuses:   []model.DocumentStatus{model.StatusAccepted, model.StatusProcessed},
		PeriodFrom: from,
		PeriodTo:   to,
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range docs {
		if _, err := l.transition(ctx, d.Key(), model.StatusArchived, "month archived"); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return n, err
			}
			continue
		}
		n++
	}
	l.log.Infof("archived %d documents of %s", n, from.Format("2006-01"))
	return n, nil
}

// SaveSettlement persists a settlement. It returns false without error when
// the order is already settled for the period.
func (l *Ledger) SaveSettlement(ctx context.Context, s model.FlexOrderSettlement) (bool, error) {
	if err := l.store.InsertSettlement(ctx, s); err != nil {
		if errors.Is(err, model.ErrAlreadySettled) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SettlementExists reports whether the order is settled for the period.
func (l *Ledger) SettlementExists(ctx context.Context, order model.DocumentKey, period time.Time) (bool, error) {
	return l.store.SettlementExists(ctx, order, period)
}

// Settlements returns the settlements of the inclusive period range.
func (l *Ledger) Settlements(ctx context.Context, from, to time.Time) ([]model.FlexOrderSettlement, error) {
	return l.store.FindSettlements(ctx, from, to)
}
