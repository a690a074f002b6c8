package book

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/credit-engine/engine"
)

// =============================================================================
// STORE - Persistence interface for party records
// =============================================================================

type Store interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, id engine.ClientID) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
	ListClients(ctx context.Context) ([]*Client, error)

	CreatePortfolio(ctx context.Context, portfolio *Portfolio) error
	GetPortfolio(ctx context.Context, id engine.PortfolioID) (*Portfolio, error)
	ListPortfolios(ctx context.Context) ([]*Portfolio, error)

	// UpsertMember inserts or updates the (portfolio, user) row.
	UpsertMember(ctx context.Context, member *Member) error
	RemoveMember(ctx context.Context, portfolioID engine.PortfolioID, userID string) error
	Members(ctx context.Context, portfolioID engine.PortfolioID) ([]*Member, error)
}

// RateStore is the slice of engine.Store this package needs for rates.
type RateStore interface {
	CreateRate(ctx context.Context, rate *engine.InterestRate) error
	GetRate(ctx context.Context, id engine.RateID) (*engine.InterestRate, error)
	ListRates(ctx context.Context) ([]*engine.InterestRate, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service validates and persists party records, and implements
// engine.Registry for loan creation.
type Service struct {
	store Store
	rates RateStore
}

func NewService(store Store, rates RateStore) *Service {
	return &Service{store: store, rates: rates}
}

// =============================================================================
// CLIENTS
// =============================================================================

// NewClient is the creation contract. Identity fields only; contact fields
// can change later, these cannot.
type NewClient struct {
	Name         string
	NationalID   string
	Phone        string
	Address      string
	WorkAddress  string
	Email        string
	SocialHandle string
	Guarantor    Guarantor
}

func (s *Service) CreateClient(ctx context.Context, in NewClient) (*Client, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &engine.ValidationError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(in.NationalID) == "" {
		return nil, &engine.ValidationError{Field: "national_id", Reason: "is required"}
	}

	client := &Client{
		ID:           engine.NewClientID(),
		Name:         strings.TrimSpace(in.Name),
		NationalID:   strings.TrimSpace(in.NationalID),
		Phone:        in.Phone,
		Address:      in.Address,
		WorkAddress:  in.WorkAddress,
		Email:        in.Email,
		SocialHandle: in.SocialHandle,
		Guarantor:    in.Guarantor,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// ContactUpdate carries the mutable client fields. Nil means "leave as is".
type ContactUpdate struct {
	Phone        *string
	Address      *string
	WorkAddress  *string
	Email        *string
	SocialHandle *string
	Active       *bool
}

func (s *Service) UpdateClientContact(ctx context.Context, id engine.ClientID, in ContactUpdate) (*Client, error) {
	client, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Phone != nil {
		client.Phone = *in.Phone
	}
	if in.Address != nil {
		client.Address = *in.Address
	}
	if in.WorkAddress != nil {
		client.WorkAddress = *in.WorkAddress
	}
	if in.Email != nil {
		client.Email = *in.Email
	}
	if in.SocialHandle != nil {
		client.SocialHandle = *in.SocialHandle
	}
	if in.Active != nil {
		client.Active = *in.Active
	}
	if err := s.store.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Service) GetClient(ctx context.Context, id engine.ClientID) (*Client, error) {
	return s.store.GetClient(ctx, id)
}

func (s *Service) ListClients(ctx context.Context) ([]*Client, error) {
	return s.store.ListClients(ctx)
}

// =============================================================================
// PORTFOLIOS AND MEMBERSHIP
// =============================================================================

func (s *Service) CreatePortfolio(ctx context.Context, name, description string) (*Portfolio, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &engine.ValidationError{Field: "name", Reason: "is required"}
	}
	portfolio := &Portfolio{
		ID:          engine.NewPortfolioID(),
		Name:        strings.TrimSpace(name),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreatePortfolio(ctx, portfolio); err != nil {
		return nil, err
	}
	return portfolio, nil
}

func (s *Service) GetPortfolio(ctx context.Context, id engine.PortfolioID) (*Portfolio, error) {
	return s.store.GetPortfolio(ctx, id)
}

func (s *Service) ListPortfolios(ctx context.Context) ([]*Portfolio, error) {
	return s.store.ListPortfolios(ctx)
}

// AssignMember adds the user to the portfolio, or changes their role if
// already a member.
func (s *Service) AssignMember(ctx context.Context, portfolioID engine.PortfolioID, userID string, role Role) (*Member, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &engine.ValidationError{Field: "user_id", Reason: "is required"}
	}
	if !role.Valid() {
		return nil, &engine.ValidationError{Field: "role", Reason: "must be manager or operator"}
	}
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}

	member := &Member{
		PortfolioID: portfolioID,
		UserID:      strings.TrimSpace(userID),
		Role:        role,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.UpsertMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *Service) RemoveMember(ctx context.Context, portfolioID engine.PortfolioID, userID string) error {
	return s.store.RemoveMember(ctx, portfolioID, userID)
}

func (s *Service) Members(ctx context.Context, portfolioID engine.PortfolioID) ([]*Member, error) {
	return s.store.Members(ctx, portfolioID)
}

// =============================================================================
// INTEREST RATES
// =============================================================================

func (s *Service) CreateRate(ctx context.Context, name string, fraction decimal.Decimal) (*engine.InterestRate, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &engine.ValidationError{Field: "name", Reason: "is required"}
	}
	if fraction.IsNegative() {
		return nil, &engine.ValidationError{Field: "fraction", Reason: "must not be negative"}
	}
	rate := &engine.InterestRate{
		ID:        engine.NewRateID(),
		Name:      strings.TrimSpace(name),
		Fraction:  fraction,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.rates.CreateRate(ctx, rate); err != nil {
		return nil, err
	}
	return rate, nil
}

func (s *Service) GetRate(ctx context.Context, id engine.RateID) (*engine.InterestRate, error) {
	return s.rates.GetRate(ctx, id)
}

func (s *Service) ListRates(ctx context.Context) ([]*engine.InterestRate, error) {
	return s.rates.ListRates(ctx)
}

// =============================================================================
// ENGINE REGISTRY
// =============================================================================

// ClientActive implements engine.Registry.
func (s *Service) ClientActive(ctx context.Context, id engine.ClientID) (bool, error) {
	client, err := s.store.GetClient(ctx, id)
	if err != nil {
		return false, err
	}
	return client.Active, nil
}

// PortfolioExists implements engine.Registry.
func (s *Service) PortfolioExists(ctx context.Context, id engine.PortfolioID) (bool, error) {
	if _, err := s.store.GetPortfolio(ctx, id); err != nil {
		if engine.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
