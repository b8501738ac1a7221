// Package portstest provides in-memory implementations of the ports for tests.
package portstest

import (
	"context"
	"slices"
	"sync"

	"orgwatch/internal/domain"
	"orgwatch/internal/ports"
)

// Store is an in-memory OrganizationStore and SnapshotLocker. It records
// every update it applies.
type Store struct {
	mu      sync.Mutex
	orgs    map[string]domain.Organization
	order   []string
	events  map[string]int
	Updates []Update
	Locks   int
	Err     error
}

type Update struct {
	ID     string
	Update domain.OrganizationUpdate
}

func NewStore(orgs ...domain.Organization) *Store {
	s := &Store{orgs: make(map[string]domain.Organization), events: make(map[string]int)}
	for _, o := range orgs {
		s.Put(o)
	}
	return s
}

func (s *Store) Put(o domain.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[o.ID]; !ok {
		s.order = append(s.order, o.ID)
	}
	s.orgs[o.ID] = o
}

func (s *Store) SetEventCount(orgID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[orgID] = n
}

func (s *Store) GetOrganization(_ context.Context, id string) (domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return domain.Organization{}, s.Err
	}
	o, ok := s.orgs[id]
	if !ok {
		return domain.Organization{}, ports.ErrNotFound
	}
	return o, nil
}

func (s *Store) ListOrganizations(_ context.Context, f ports.OrganizationFilter) ([]domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []domain.Organization
	for _, id := range s.order {
		o := s.orgs[id]
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, o.Status) {
			continue
		}
		if !f.IncludeDuplicates && o.DuplicateFlag {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) UpdateOrganization(_ context.Context, id string, upd domain.OrganizationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	o, ok := s.orgs[id]
	if !ok {
		return ports.ErrNotFound
	}
	o.OrganizationState = upd.Apply(o.OrganizationState)
	if upd.EventsURL != nil {
		o.EventsURL = *upd.EventsURL
	}
	if upd.TouURL != nil {
		o.TouURL = *upd.TouURL
	}
	s.orgs[id] = o
	s.Updates = append(s.Updates, Update{ID: id, Update: upd})
	return nil
}

func (s *Store) GetEventCount(_ context.Context, orgID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[orgID], nil
}

func (s *Store) LockSnapshot(context.Context) (func(), error) {
	s.mu.Lock()
	s.Locks++
	s.mu.Unlock()
	return func() {}, nil
}

// UpdatesFor returns the updates applied to one organization.
func (s *Store) UpdatesFor(id string) []domain.OrganizationUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OrganizationUpdate
	for _, u := range s.Updates {
		if u.ID == id {
			out = append(out, u.Update)
		}
	}
	return out
}
