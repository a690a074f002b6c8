/*
errors.go - Centralized error taxonomy for the loan engine

PURPOSE:
  All engine error types in one place. Three categories matter to callers:

  1. Validation errors  - bad input to a contract. Surfaced before any
     mutation; never partially applied. Client's fault.
  2. Consistency violations - an invariant failed (schedule does not sum to
     principal, installment overdrawn). Indicates a bug; the enclosing
     transaction is aborted, never clamped or papered over.
  3. Concurrency conflicts - the per-loan lock could not be acquired.
     The whole operation is safe to retry.

USAGE:
  Callers branch with errors.Is / errors.As, or use the helpers:

    if engine.IsClientError(err) { respond 400 }
    if engine.IsNotFound(err)    { respond 404 }
    if engine.IsRetryable(err)   { respond 409, suggest retry }

SEE ALSO:
  - engine.go: where these are raised
  - api/handlers.go: HTTP status translation
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrLoanNotFound is returned when a referenced loan doesn't exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrClientNotFound is returned when a referenced client doesn't exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrPortfolioNotFound is returned when a referenced portfolio doesn't exist.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrRateNotFound is returned when a referenced interest rate doesn't exist.
	ErrRateNotFound = errors.New("interest rate not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInstallmentNotFound is returned when an installment row vanished
	// under an operation. Should be unreachable under the locking discipline.
	ErrInstallmentNotFound = errors.New("installment not found")

	// ErrInvalidInput is the base of every validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLoanAlreadyPaid is returned when a payment targets a settled loan.
	ErrLoanAlreadyPaid = errors.New("loan is already paid")

	// ErrNoOutstandingBalance is returned when a payment targets a loan with
	// nothing owed, even if its state has not caught up yet.
	ErrNoOutstandingBalance = errors.New("loan has no outstanding balance")

	// ErrOverpayment is returned when a payment exceeds the total outstanding.
	ErrOverpayment = errors.New("payment exceeds outstanding balance")

	// ErrScheduleImmutable is returned when regeneration is requested for a
	// loan that already has payments applied. Rebuilding would orphan the
	// allocation history.
	ErrScheduleImmutable = errors.New("schedule cannot be regenerated after payments")

	// ErrConsistency is the base of every invariant violation. Seeing this
	// means a bug, not bad input.
	ErrConsistency = errors.New("ledger consistency violation")

	// ErrLoanLocked is returned when the per-loan exclusive lock cannot be
	// acquired in time. The operation was not started and can be retried.
	ErrLoanLocked = errors.New("loan is locked by a concurrent operation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which field of a contract was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// OverpaymentError details a rejected overpayment.
type OverpaymentError struct {
	LoanID      LoanID
	Amount      decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment %s exceeds outstanding %s on loan %s",
		e.Amount.StringFixed(2), e.Outstanding.StringFixed(2), e.LoanID)
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// ConsistencyViolation reports a broken ledger invariant. The transaction
// that detected it must roll back.
type ConsistencyViolation struct {
	LoanID LoanID
	Detail string
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("consistency violation on loan %s: %s", e.LoanID, e.Detail)
}

func (e *ConsistencyViolation) Unwrap() error { return ErrConsistency }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the whole operation may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLoanLocked)
}

// IsClientError returns true if the error is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrLoanAlreadyPaid) ||
		errors.Is(err, ErrNoOutstandingBalance) ||
		errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrScheduleImmutable)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrPortfolioNotFound) ||
		errors.Is(err, ErrRateNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrInstallmentNotFound)
}
