package planboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/planboard/core/model"
)

type settlementKey struct {
	order  model.DocumentKey
	period time.Time
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	docs        map[model.DocumentKey]model.Document
	messages    map[string]model.DocumentKey
	states      []model.ConnectionGroupState
	settlements map[settlementKey]model.FlexOrderSettlement
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:        map[model.DocumentKey]model.Document{},
		messages:    map[string]model.DocumentKey{},
		settlements: map[settlementKey]model.FlexOrderSettlement{},
	}
}

func (s *MemoryStore) InsertDocument(_ context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := doc.Key()
	if _, ok := s.docs[key]; ok {
		return fmt.Errorf("%w: %s already recorded", model.ErrDuplicateMessageID, key)
	}
	if doc.MessageID != "" {
		if other, ok := s.messages[doc.MessageID]; ok {
			return fmt.Errorf("%w: message %s already recorded as %s", model.ErrDuplicateMessageID, doc.MessageID, other)
		}
		s.messages[doc.MessageID] = key
	}
	doc.Rows = append([]model.PtuSlot(nil), doc.Rows...)
	s.docs[key] = doc
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, key model.DocumentKey) (model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return model.Document{}, fmt.Errorf("%w: %s", model.ErrNotFound, key)
	}
	return doc, nil
}

func (s *MemoryStore) FindDocuments(_ context.Context, q DocumentQuery) ([]model.Document, error) {
	s.mu.RLock()
	var out []model.Document
	for _, d := range s.docs {
		if q.Matches(d) {
			out = append(out, d)
		}
	}
	s.mu.RUnlock()
	SortByCreation(out)
	return out, nil
}

func (s *MemoryStore) UpdateStatuses(_ context.Context, changes []StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := map[model.DocumentKey]model.Document{}
	for _, c := range changes {
		doc, ok := staged[c.Key]
		if !ok {
			if doc, ok = s.docs[c.Key]; !ok {
				return fmt.Errorf("%w: %s", model.ErrNotFound, c.Key)
			}
		}
		if doc.Status != c.From {
			return fmt.Errorf("%w: %s is %s, expected %s", model.ErrInvalidPhaseTransition, c.Key, doc.Status, c.From)
		}
		doc.Status = c.To
		staged[c.Key] = doc
	}
	for k, d := range staged {
		s.docs[k] = d
	}
	return nil
}

func (s *MemoryStore) DeleteDocuments(_ context.Context, t model.DocumentType, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, d := range s.docs {
		if d.Type == t && d.CreationTime.Before(before) {
			delete(s.docs, k)
			if d.MessageID != "" {
				delete(s.messages, d.MessageID)
			}
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AppendGroupState(_ context.Context, st model.ConnectionGroupState) error {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GroupStates(_ context.Context, from, to time.Time) ([]model.ConnectionGroupState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ConnectionGroupState
	for _, st := range s.states {
		if st.Overlaps(from, to) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertSettlement(_ context.Context, st model.FlexOrderSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := settlementKey{order: st.OrderKey(), period: model.Day(st.Period)}
	if _, ok := s.settlements[k]; ok {
		return fmt.Errorf("%w: %s on %s", model.ErrAlreadySettled, k.order, k.period.Format(time.DateOnly))
	}
	st.Ptus = append([]model.PtuSettlement(nil), st.Ptus...)
	sort.Slice(st.Ptus, func(i, j int) bool { return st.Ptus[i].Index < st.Ptus[j].Index })
	s.settlements[k] = st
	return nil
}

func (s *MemoryStore) SettlementExists(_ context.Context, order model.DocumentKey, period time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.settlements[settlementKey{order: order, period: model.Day(period)}]
	return ok, nil
}

func (s *MemoryStore) FindSettlements(_ context.Context, from, to time.Time) ([]model.FlexOrderSettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.FlexOrderSettlement
	for _, st := range s.settlements {
		p := model.Day(st.Period)
		if p.Before(model.Day(from)) || p.After(model.Day(to)) {
			continue
		}
		out = append(out, st)
	}
	SortSettlements(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
