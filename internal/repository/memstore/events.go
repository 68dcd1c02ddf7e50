package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/repository"
)

// Events implements repository.EventStore.
type Events struct {
	mu     sync.RWMutex
	events map[string]model.Event
}

var _ repository.EventStore = (*Events)(nil)

func NewEvents() *Events {
	return &Events{events: make(map[string]model.Event)}
}

func (s *Events) Create(ctx context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return repository.ErrConflict
	}
	s.events[e.ID] = cloneEvent(*e)
	return nil
}

func (s *Events) GetByID(ctx context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := cloneEvent(e)
	return &cp, nil
}

func (s *Events) ListUpcoming(ctx context.Context, f repository.EventFilter, p model.Page) ([]model.Event, int64, error) {
	want := make(map[string]bool, len(f.Domains))
	for _, d := range f.Domains {
		want[d] = true
	}
	list := s.collect(func(e model.Event) bool {
		if e.OccursAt.Before(f.From) {
			return false
		}
		if len(want) == 0 {
			return true
		}
		for _, d := range e.Domains {
			if want[d] {
				return true
			}
		}
		return false
	})
	sort.Slice(list, func(i, j int) bool {
		if !list[i].OccursAt.Equal(list[j].OccursAt) {
			return list[i].OccursAt.Before(list[j].OccursAt)
		}
		return list[i].ID < list[j].ID
	})
	return slicePage(list, p)
}

func (s *Events) ListByOwner(ctx context.Context, ownerID string, p model.Page) ([]model.Event, int64, error) {
	list := s.collect(func(e model.Event) bool { return e.OwnerID == ownerID })
	sort.Slice(list, func(i, j int) bool {
		if !list[i].OccursAt.Equal(list[j].OccursAt) {
			return list[i].OccursAt.After(list[j].OccursAt)
		}
		return list[i].ID > list[j].ID
	})
	return slicePage(list, p)
}

func (s *Events) Update(ctx context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.events[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.OwnerID != e.OwnerID {
		return repository.ErrForbidden
	}
	next := cloneEvent(*e)
	next.CreatedAt = cur.CreatedAt
	s.events[e.ID] = next
	return nil
}

func (s *Events) Delete(ctx context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.OwnerID != ownerID {
		return repository.ErrForbidden
	}
	delete(s.events, id)
	return nil
}

func (s *Events) DeleteBefore(ctx context.Context, cutoff time.Time) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var gone []model.Event
	for id, e := range s.events {
		if e.OccursAt.Before(cutoff) {
			gone = append(gone, e)
			delete(s.events, id)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i].OccursAt.Before(gone[j].OccursAt) })
	return gone, nil
}

func (s *Events) collect(match func(model.Event) bool) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Event
	for _, e := range s.events {
		if match(e) {
			out = append(out, cloneEvent(e))
		}
	}
	return out
}

func slicePage(list []model.Event, p model.Page) ([]model.Event, int64, error) {
	total := int64(len(list))
	start := p.Offset()
	if start < 0 || start >= len(list) {
		return []model.Event{}, total, nil
	}
	end := start + p.Limit
	if end > len(list) {
		end = len(list)
	}
	return list[start:end], total, nil
}

func cloneEvent(e model.Event) model.Event {
	e.Domains = append([]string{}, e.Domains...)
	return e
}
