package store

// In-memory book.Store, same copy-on-read discipline as Memory.

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/credit-engine/book"
	"github.com/warp/credit-engine/engine"
)

type memberKey struct {
	portfolio engine.PortfolioID
	user      string
}

// MemoryBook implements book.Store.
type MemoryBook struct {
	mu sync.RWMutex

	clients    map[engine.ClientID]*book.Client
	nationalID map[string]engine.ClientID
	portfolios map[engine.PortfolioID]*book.Portfolio
	names      map[string]engine.PortfolioID
	members    map[memberKey]*book.Member
}

func NewMemoryBook() *MemoryBook {
	return &MemoryBook{
		clients:    make(map[engine.ClientID]*book.Client),
		nationalID: make(map[string]engine.ClientID),
		portfolios: make(map[engine.PortfolioID]*book.Portfolio),
		names:      make(map[string]engine.PortfolioID),
		members:    make(map[memberKey]*book.Member),
	}
}

func (m *MemoryBook) CreateClient(_ context.Context, client *book.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.nationalID[client.NationalID]; taken {
		return book.ErrDuplicateNationalID
	}
	cp := *client
	m.clients[client.ID] = &cp
	m.nationalID[client.NationalID] = client.ID
	return nil
}

func (m *MemoryBook) GetClient(_ context.Context, id engine.ClientID) (*book.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[id]
	if !ok {
		return nil, engine.ErrClientNotFound
	}
	cp := *client
	return &cp, nil
}

func (m *MemoryBook) UpdateClient(_ context.Context, client *book.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; !ok {
		return engine.ErrClientNotFound
	}
	cp := *client
	m.clients[client.ID] = &cp
	return nil
}

func (m *MemoryBook) ListClients(_ context.Context) ([]*book.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*book.Client
	for _, client := range m.clients {
		cp := *client
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryBook) CreatePortfolio(_ context.Context, portfolio *book.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.names[portfolio.Name]; taken {
		return book.ErrDuplicatePortfolioName
	}
	cp := *portfolio
	m.portfolios[portfolio.ID] = &cp
	m.names[portfolio.Name] = portfolio.ID
	return nil
}

func (m *MemoryBook) GetPortfolio(_ context.Context, id engine.PortfolioID) (*book.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	portfolio, ok := m.portfolios[id]
	if !ok {
		return nil, engine.ErrPortfolioNotFound
	}
	cp := *portfolio
	return &cp, nil
}

func (m *MemoryBook) ListPortfolios(_ context.Context) ([]*book.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*book.Portfolio
	for _, portfolio := range m.portfolios {
		cp := *portfolio
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryBook) UpsertMember(_ context.Context, member *book.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *member
	m.members[memberKey{member.PortfolioID, member.UserID}] = &cp
	return nil
}

func (m *MemoryBook) RemoveMember(_ context.Context, portfolioID engine.PortfolioID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, memberKey{portfolioID, userID})
	return nil
}

func (m *MemoryBook) Members(_ context.Context, portfolioID engine.PortfolioID) ([]*book.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*book.Member
	for key, member := range m.members {
		if key.portfolio != portfolioID {
			continue
		}
		cp := *member
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}
