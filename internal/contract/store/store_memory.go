package store

import (
	"context"
	"sort"
	"sync"

	"pact/internal/contract/models"
	id "pact/pkg/domain"
	"pact/pkg/platform/sentinel"
)

// InMemoryStore keeps contracts in a map. Aggregates are deep-copied on the
// way in and out so callers can never mutate stored state without Save.
type InMemoryStore struct {
	mu        sync.RWMutex
	contracts map[id.ContractID]*models.Contract
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{contracts: make(map[id.ContractID]*models.Contract)}
}

func (s *InMemoryStore) Create(_ context.Context, contract *models.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[contract.ID]; ok {
		return sentinel.ErrConflict
	}
	contract.Version = 1
	s.contracts[contract.ID] = cloneContract(contract)
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, contractID id.ContractID) (*models.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[contractID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneContract(c), nil
}

func (s *InMemoryStore) Save(_ context.Context, contract *models.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.contracts[contract.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != contract.Version {
		return sentinel.ErrConflict
	}
	contract.Version++
	s.contracts[contract.ID] = cloneContract(contract)
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		out = append(out, cloneContract(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneContract(c *models.Contract) *models.Contract {
	out := *c
	out.Clauses = append([]string(nil), c.Clauses...)
	out.Parties = make([]models.Party, len(c.Parties))
	for i, p := range c.Parties {
		if p.SignedAt != nil {
			t := *p.SignedAt
			p.SignedAt = &t
		}
		out.Parties[i] = p
	}
	out.AuditLog = append([]models.AuditEntry(nil), c.AuditLog...)
	if c.Mediator != nil {
		m := *c.Mediator
		out.Mediator = &m
	}
	if c.ChainAnchor != nil {
		a := *c.ChainAnchor
		out.ChainAnchor = &a
	}
	if c.ExpiryDate != nil {
		t := *c.ExpiryDate
		out.ExpiryDate = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		out.CompletedAt = &t
	}
	out.Disputes = make([]models.Dispute, len(c.Disputes))
	for i, d := range c.Disputes {
		dc := d
		dc.Evidence = append([]models.Evidence(nil), d.Evidence...)
		if d.ResolvedAt != nil {
			t := *d.ResolvedAt
			dc.ResolvedAt = &t
		}
		out.Disputes[i] = dc
	}
	return &out
}
