/*
Package book manages the parties around the loans: clients, portfolios,
portfolio membership, and named interest rates.

PURPOSE:
  The engine moves money; this package keeps the register of who that money
  belongs to. It also answers the engine's referential questions (is this
  client active, does this portfolio exist) via engine.Registry.

AUTHORIZATION:
  Membership records who manages or operates a portfolio. Enforcing that is
  the calling layer's job; nothing in this repo checks "who is asking".

MUTABILITY RULES:
  - Client identity (name, national id, guarantor) is immutable after
    creation; contact fields and the active flag are not. Clients are
    deactivated, never deleted.
  - Portfolios: membership changes freely; the name is fixed.
  - Interest rates: immutable. Changing terms means a new named rate.
*/
package book

import (
	"errors"
	"time"

	"github.com/warp/credit-engine/engine"
)

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
)

func (r Role) Valid() bool { return r == RoleManager || r == RoleOperator }

// =============================================================================
// ENTITIES
// =============================================================================

// Guarantor is embedded contact data for the person backing the client.
type Guarantor struct {
	NationalID string
	Name       string
	Surname    string
	Address    string
	Phone      string
}

type Client struct {
	ID         engine.ClientID
	Name       string
	NationalID string // unique
	Phone      string
	Address    string
	WorkAddress string
	Email       string
	SocialHandle string
	Guarantor   Guarantor
	Active      bool
	CreatedAt   time.Time
}

type Portfolio struct {
	ID          engine.PortfolioID
	Name        string // unique
	Description string
	CreatedAt   time.Time
}

// Member links a user to a portfolio with a role. One row per
// (portfolio, user); assigning again changes the role.
type Member struct {
	PortfolioID engine.PortfolioID
	UserID      string
	Role        Role
	CreatedAt   time.Time
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDuplicateNationalID is returned when a client's national id is taken.
	ErrDuplicateNationalID = errors.New("national id already registered")

	// ErrDuplicatePortfolioName is returned when a portfolio name is taken.
	ErrDuplicatePortfolioName = errors.New("portfolio name already exists")

	// ErrDuplicateRateName is returned when a rate name is taken.
	ErrDuplicateRateName = errors.New("rate name already exists")
)
