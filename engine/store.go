/*
store.go - Persistence interfaces for the loan ledger

PURPOSE:
  Defines the contract between the engine and the database. Two levels:

  Store:   plain reads and writes for loans, installments, payments and
           allocations. No transactional guarantees by itself.
  TxStore: adds WithLoan, which runs a function under the loan's exclusive
           lock inside a storage transaction. Every mutating engine
           operation goes through WithLoan.

LOCKING DISCIPLINE:
  Two payments against the same loan, or a payment racing a delinquency
  sweep, must serialize. WithLoan is the moral equivalent of
  "SELECT ... FOR UPDATE" over the loan's installment set: the lock is held
  across the full allocation loop and the subsequent reconciliation, and is
  released only at commit or rollback. A single-process deployment gets the
  same guarantee from an in-process lock table plus a SQL transaction.

IMMUTABILITY:
  Payments and allocations have Create and read methods only. There is no
  UpdatePayment, no DeleteAllocation. Installments are replaced as a set
  only by schedule (re)generation and updated row-by-row only by the
  allocator and the classifier.

IMPLEMENTATIONS:
  - store/sqlite:       production store (SQLite, database/sql)
  - engine/store:       in-memory store for tests and demos

SEE ALSO:
  - engine.go: how operations compose these calls
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Reads and writes
// =============================================================================

// LoanFilter narrows ListLoans. Zero values mean "no filter".
type LoanFilter struct {
	PortfolioID PortfolioID
	ClientID    ClientID
	State       LoanState
}

type Store interface {
	// Loans
	CreateLoan(ctx context.Context, loan *Loan) error
	GetLoan(ctx context.Context, id LoanID) (*Loan, error)
	UpdateLoan(ctx context.Context, loan *Loan) error
	ListLoans(ctx context.Context, filter LoanFilter) ([]*Loan, error)

	// ListOpenLoanIDs returns ids of loans in a non-terminal state,
	// for the system-wide delinquency sweep.
	ListOpenLoanIDs(ctx context.Context) ([]LoanID, error)

	// Installments. Installments returns the loan's schedule ordered by
	// sequence number ascending. ReplaceInstallments deletes any existing
	// schedule and inserts the new one as a single unit.
	Installments(ctx context.Context, loanID LoanID) ([]*Installment, error)
	ReplaceInstallments(ctx context.Context, loanID LoanID, installments []*Installment) error
	UpdateInstallment(ctx context.Context, installment *Installment) error

	// Payments and allocations (append-only)
	CreatePayment(ctx context.Context, payment *Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	Payments(ctx context.Context, loanID LoanID) ([]*Payment, error)
	CreateAllocation(ctx context.Context, allocation *Allocation) error
	Allocations(ctx context.Context, paymentID PaymentID) ([]*Allocation, error)

	// CollectedByPortfolio sums all allocation amounts (principal, interest)
	// across a portfolio's loans. Reporting only.
	CollectedByPortfolio(ctx context.Context, portfolioID PortfolioID) (principal, interest decimal.Decimal, err error)

	// Interest rates (immutable once created)
	CreateRate(ctx context.Context, rate *InterestRate) error
	GetRate(ctx context.Context, id RateID) (*InterestRate, error)
	ListRates(ctx context.Context) ([]*InterestRate, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Per-loan exclusive sections
// =============================================================================

// TxStore adds exclusive, transactional per-loan sections.
type TxStore interface {
	Store

	// WithLoan acquires the loan's exclusive lock, opens a transaction, and
	// runs fn against a transactional view of the store. If fn returns an
	// error the transaction rolls back and the error is returned unchanged.
	// If the lock cannot be acquired before ctx is done or the store's lock
	// timeout elapses, WithLoan returns ErrLoanLocked without running fn.
	WithLoan(ctx context.Context, id LoanID, fn func(Store) error) error
}

// =============================================================================
// REGISTRY - Referential checks against the party records
// =============================================================================

// Registry answers the referential questions the engine asks at loan
// creation. Party management itself lives in the book package; the engine
// never inspects who is asking for what.
type Registry interface {
	// ClientActive reports whether the client exists and is active.
	// Returns ErrClientNotFound if the client doesn't exist.
	ClientActive(ctx context.Context, id ClientID) (bool, error)

	// PortfolioExists reports whether the portfolio exists.
	PortfolioExists(ctx context.Context, id PortfolioID) (bool, error)
}
