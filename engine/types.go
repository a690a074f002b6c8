/*
Package engine implements the micro-loan ledger core: installment schedule
generation, payment allocation, delinquency classification, and balance
reconciliation.

PURPOSE:
  This package contains the entities and algorithms that keep loan money
  consistent. Everything here is deterministic and auditable: a loan's
  balances and state are always derivable from its installments, and every
  payment leaves an allocation trail explaining where each cent went.

KEY CONCEPTS IN THIS FILE (types.go):
  - Loan:        The central aggregate. Owns installments and payments.
  - Installment: One scheduled obligation (principal + interest portion).
  - Payment:     An inbound payment event. Immutable once recorded.
  - Allocation:  How a payment's amount was split across installments.
  - InterestRate: Named flat rate, applied once to the full principal.

DESIGN PRINCIPLES:
  1. Exact arithmetic: decimal.Decimal everywhere, 2 decimals at rest.
     Binary floats never touch money.
  2. Derived truth: loan balances are caches over installment sums, kept
     consistent by the reconciler. Never trust them without reconciling.
  3. Immutability: payments and allocations are never updated or deleted.
  4. Type safety: every entity has its own ID type.

SEE ALSO:
  - schedule.go:    schedule generation with remainder correction
  - allocate.go:    FIFO interest-first payment allocation
  - delinquency.go: overdue classification
  - reconcile.go:   balance and state reconciliation
*/
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	LoanID        string
	InstallmentID string
	PaymentID     string
	AllocationID  string
	ClientID      string
	PortfolioID   string
	RateID        string
)

func NewLoanID() LoanID               { return LoanID(uuid.NewString()) }
func NewInstallmentID() InstallmentID { return InstallmentID(uuid.NewString()) }
func NewPaymentID() PaymentID         { return PaymentID(uuid.NewString()) }
func NewAllocationID() AllocationID   { return AllocationID(uuid.NewString()) }
func NewClientID() ClientID           { return ClientID(uuid.NewString()) }
func NewPortfolioID() PortfolioID     { return PortfolioID(uuid.NewString()) }
func NewRateID() RateID               { return RateID(uuid.NewString()) }

// =============================================================================
// MONEY HELPERS
// =============================================================================

// Money is an exact base-10 decimal amount, 2 digits of precision at rest.
// Alias rather than wrapper: decimal.Decimal's arithmetic is the API.
type Money = decimal.Decimal

// Zero is the zero amount.
var Zero = decimal.Zero

// Round2 rounds to 2 decimal places, half away from zero. All monetary
// values are non-negative in this system, so this is round-half-up.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// MustDecimal parses a decimal literal. Panics on malformed input, so it is
// only for constants in code and tests.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("engine: bad decimal literal: " + s)
	}
	return d
}

// =============================================================================
// PAYMENT FREQUENCY
// =============================================================================

type Frequency string

const (
	Weekly   Frequency = "weekly"   // next due date = previous + 7 days
	Biweekly Frequency = "biweekly" // next due date = previous + 15 days
	Monthly  Frequency = "monthly"  // next due date = previous + 1 calendar month
)

// Next returns the due date that follows d under this frequency.
// Biweekly steps 15 days, matching quincena collection practice.
func (f Frequency) Next(d Date) Date {
	switch f {
	case Weekly:
		return d.AddDays(7)
	case Biweekly:
		return d.AddDays(15)
	default:
		return d.AddMonths(1)
	}
}

func (f Frequency) Valid() bool {
	return f == Weekly || f == Biweekly || f == Monthly
}

// =============================================================================
// LIFECYCLE STATES
// =============================================================================

// LoanState is a pure function of the loan's installments: Paid when every
// installment is settled, Delinquent when any installment is overdue,
// Pending otherwise. Cancelled is an administrative terminal state that the
// engine never assigns.
type LoanState string

const (
	LoanPending    LoanState = "pending"
	LoanDelinquent LoanState = "mora"
	LoanPaid       LoanState = "paid"
	LoanCancelled  LoanState = "cancelled"
)

// Terminal reports whether the loan can no longer receive payments.
func (s LoanState) Terminal() bool { return s == LoanPaid || s == LoanCancelled }

type InstallmentState string

const (
	InstallmentPending   InstallmentState = "pending"
	InstallmentOverdue   InstallmentState = "mora"
	InstallmentPaid      InstallmentState = "paid"
	InstallmentCancelled InstallmentState = "cancelled"
)

// =============================================================================
// INTEREST RATE - Named flat rate
// =============================================================================

// InterestRate is a named flat rate stored as a decimal fraction
// (0.20 = 20%), applied once to the total principal. Rates are immutable;
// a change in terms means creating a new named rate.
type InterestRate struct {
	ID        RateID
	Name      string
	Fraction  decimal.Decimal
	CreatedAt time.Time
}

// =============================================================================
// LOAN - The central aggregate
// =============================================================================

type Loan struct {
	ID          LoanID
	ClientID    ClientID
	PortfolioID PortfolioID

	Principal        decimal.Decimal
	RateID           RateID
	InstallmentCount int
	Frequency        Frequency
	FirstDueDate     Date
	DisbursedOn      Date

	State LoanState

	// Cached aggregates, maintained by the reconciler. Invariant:
	// OutstandingPrincipal == round2(sum of installment outstanding principal),
	// OutstandingInterest analogous.
	OutstandingPrincipal decimal.Decimal
	OutstandingInterest  decimal.Decimal

	CreatedAt time.Time
}

// TotalOutstanding is the cached principal plus interest still owed.
func (l *Loan) TotalOutstanding() decimal.Decimal {
	return l.OutstandingPrincipal.Add(l.OutstandingInterest)
}

// =============================================================================
// INSTALLMENT - One scheduled obligation
// =============================================================================

type Installment struct {
	ID      InstallmentID
	LoanID  LoanID
	Number  int // 1..N, contiguous, unique per loan
	DueDate Date

	ScheduledPrincipal decimal.Decimal
	ScheduledInterest  decimal.Decimal
	PaidPrincipal      decimal.Decimal
	PaidInterest       decimal.Decimal

	State InstallmentState
}

// OutstandingPrincipal is scheduled minus paid. Never negative; the
// allocator aborts rather than overdraw an installment.
func (i *Installment) OutstandingPrincipal() decimal.Decimal {
	return i.ScheduledPrincipal.Sub(i.PaidPrincipal)
}

func (i *Installment) OutstandingInterest() decimal.Decimal {
	return i.ScheduledInterest.Sub(i.PaidInterest)
}

func (i *Installment) Outstanding() decimal.Decimal {
	return i.OutstandingPrincipal().Add(i.OutstandingInterest())
}

// Settled reports whether both components are fully paid.
func (i *Installment) Settled() bool { return i.Outstanding().IsZero() }

// =============================================================================
// PAYMENT - Inbound payment event
// =============================================================================

// Payment records money received against exactly one loan. The payment row
// itself is immutable; its effect on the ledger is expressed entirely
// through its Allocations.
type Payment struct {
	ID     PaymentID
	LoanID LoanID
	PaidOn Date
	Amount decimal.Decimal

	// Opaque to the engine, carried for the caller.
	Method string
	Note   string

	CreatedAt time.Time
}

// =============================================================================
// ALLOCATION - Audit trail of a payment split
// =============================================================================

// Allocation is one row of the audit trail: the portion of a payment
// applied to one installment, split into principal and interest. Created
// only by the allocator, one row per (payment, installment) pair that
// received a non-zero amount. Immutable.
type Allocation struct {
	ID            AllocationID
	PaymentID     PaymentID
	InstallmentID InstallmentID
	Principal     decimal.Decimal
	Interest      decimal.Decimal
}

func (a *Allocation) Total() decimal.Decimal { return a.Principal.Add(a.Interest) }
