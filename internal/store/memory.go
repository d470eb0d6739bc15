package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/typing-arena/internal/domain"
)

// memory is an in-process Gateway used for tests and for running without DATABASE_URL.
type memory struct {
	mu sync.RWMutex

	competitions map[string]*domain.Competition // id -> doc
	codes        map[string]string              // code -> id

	participants map[string]*domain.Participant // id -> doc
	byName       map[string]string              // competitionID|name -> id
}

func NewMemory() Gateway {
	return &memory{
		competitions: make(map[string]*domain.Competition),
		codes:        make(map[string]string),
		participants: make(map[string]*domain.Participant),
		byName:       make(map[string]string),
	}
}

func (m *memory) CreateCompetition(ctx context.Context, c *domain.Competition) error {
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return ErrNotFound
	}
	code := domain.NormalizeCode(c.Code)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.codes[code]; exists {
		return ErrDuplicateCode
	}
	doc := c.Clone()
	doc.Code = code
	m.competitions[doc.ID] = doc
	m.codes[code] = doc.ID
	return nil
}

func (m *memory) FindCompetitionByCode(ctx context.Context, code string) (*domain.Competition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codes[domain.NormalizeCode(code)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.competitions[id].Clone(), nil
}

func (m *memory) FindCompetitionByID(ctx context.Context, id string) (*domain.Competition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.competitions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *memory) UpdateCompetition(ctx context.Context, c *domain.Competition) error {
	if c == nil {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.competitions[c.ID]; !ok {
		return ErrNotFound
	}
	m.competitions[c.ID] = c.Clone()
	return nil
}

func (m *memory) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	if p == nil {
		return ErrNotFound
	}
	key := m.nameKey(p.CompetitionID, p.Name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byName[key]; exists {
		return ErrDuplicateParticipant
	}
	doc := p.Clone()
	m.participants[doc.ID] = doc
	m.byName[key] = doc.ID
	return nil
}

func (m *memory) FindParticipant(ctx context.Context, competitionID, name string) (*domain.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[m.nameKey(competitionID, name)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.participants[id].Clone(), nil
}

func (m *memory) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	if p == nil {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.participants[p.ID]; !ok {
		return ErrNotFound
	}
	m.participants[p.ID] = p.Clone()
	return nil
}

func (m *memory) DeleteParticipant(ctx context.Context, competitionID, name, connectionID string) (bool, error) {
	key := m.nameKey(competitionID, name)
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byName[key]
	if !ok {
		return false, nil
	}
	if p := m.participants[id]; p == nil || p.ConnectionID != connectionID {
		return false, nil
	}
	delete(m.participants, id)
	delete(m.byName, key)
	return true, nil
}

func (m *memory) ListParticipants(ctx context.Context, competitionID string) ([]*domain.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Participant, 0)
	for _, p := range m.participants {
		if p.CompetitionID == competitionID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memory) nameKey(competitionID, name string) string {
	return strings.TrimSpace(competitionID) + "|" + strings.TrimSpace(name)
}
