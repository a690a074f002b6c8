/*
engine.go - Operation contracts

PURPOSE:
  The Engine is the only write path into the ledger. Each operation:

  1. Validates its input before touching anything.
  2. Acquires the loan's exclusive lock and opens a transaction (WithLoan).
  3. Mutates installments, allocations, and the loan inside that section.
  4. Reconciles the loan before commit.

  Any error rolls the whole transaction back; partial schedules, partial
  allocations, and stale balances are never observable.

OPERATIONS:
  CreateLoan          create + generate schedule + reconcile
  RegenerateSchedule  rebuild the schedule (forbidden once payments exist)
  RecordPayment       classify, allocate FIFO interest-first, reconcile
  AdvanceDelinquency  per-loan overdue classification
  SweepDelinquency    classification across all open loans
  Reconcile           explicit re-derivation of balances and state

WHO IS ASKING:
  Nobody, as far as the engine knows. Authorization happens in the calling
  layer; operations receive already-authorized ids.
*/
package engine

import (
	"context"
	"errors"
	"time"
)

// Engine executes ledger operations against a transactional store.
type Engine struct {
	store    TxStore
	registry Registry // nil disables referential checks (tests)
}

func New(store TxStore, registry Registry) *Engine {
	return &Engine{store: store, registry: registry}
}

// Store exposes the underlying store for read-only callers.
func (e *Engine) Store() Store { return e.store }

// =============================================================================
// CREATE LOAN
// =============================================================================

// NewLoan is the input contract for CreateLoan. Principal and dates are
// already parsed; see factory.Terms for raw input handling.
type NewLoan struct {
	ClientID         ClientID
	PortfolioID      PortfolioID
	Principal        Money
	RateID           RateID
	InstallmentCount int
	Frequency        Frequency
	FirstDueDate     Date
	DisbursedOn      Date // zero means today
}

// CreateLoan persists a new loan with its full installment schedule and
// reconciled balances, atomically.
func (e *Engine) CreateLoan(ctx context.Context, in NewLoan) (*Loan, error) {
	if err := e.checkParties(ctx, in.ClientID, in.PortfolioID); err != nil {
		return nil, err
	}
	rate, err := e.store.GetRate(ctx, in.RateID)
	if err != nil {
		return nil, err
	}

	disbursed := in.DisbursedOn
	if disbursed.IsZero() {
		disbursed = Today()
	}

	loan := &Loan{
		ID:                   NewLoanID(),
		ClientID:             in.ClientID,
		PortfolioID:          in.PortfolioID,
		Principal:            in.Principal,
		RateID:               in.RateID,
		InstallmentCount:     in.InstallmentCount,
		Frequency:            in.Frequency,
		FirstDueDate:         in.FirstDueDate,
		DisbursedOn:          disbursed,
		State:                LoanPending,
		OutstandingPrincipal: Zero,
		OutstandingInterest:  Zero,
		CreatedAt:            time.Now().UTC(),
	}

	// Build before opening the transaction: schedule validation failures
	// should never cost a lock.
	installments, err := BuildSchedule(loan, rate.Fraction)
	if err != nil {
		return nil, err
	}

	err = e.store.WithLoan(ctx, loan.ID, func(s Store) error {
		if err := s.CreateLoan(ctx, loan); err != nil {
			return err
		}
		if err := s.ReplaceInstallments(ctx, loan.ID, installments); err != nil {
			return err
		}
		Reconcile(loan, installments)
		return s.UpdateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (e *Engine) checkParties(ctx context.Context, clientID ClientID, portfolioID PortfolioID) error {
	if e.registry == nil {
		return nil
	}
	active, err := e.registry.ClientActive(ctx, clientID)
	if err != nil {
		return err
	}
	if !active {
		return &ValidationError{Field: "client_id", Reason: "client is inactive"}
	}
	exists, err := e.registry.PortfolioExists(ctx, portfolioID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrPortfolioNotFound
	}
	return nil
}

// =============================================================================
// REGENERATE SCHEDULE
// =============================================================================

// RegenerateSchedule deletes the loan's installments and rebuilds them from
// the loan's terms. Forbidden once any installment carries a paid amount:
// rebuilding would orphan the allocation history.
func (e *Engine) RegenerateSchedule(ctx context.Context, id LoanID) error {
	return e.store.WithLoan(ctx, id, func(s Store) error {
		loan, err := s.GetLoan(ctx, id)
		if err != nil {
			return err
		}
		if loan.State == LoanCancelled {
			return &ValidationError{Field: "loan_id", Reason: "loan is cancelled"}
		}

		existing, err := s.Installments(ctx, id)
		if err != nil {
			return err
		}
		for _, inst := range existing {
			if inst.PaidPrincipal.IsPositive() || inst.PaidInterest.IsPositive() {
				return ErrScheduleImmutable
			}
		}

		rate, err := s.GetRate(ctx, loan.RateID)
		if err != nil {
			return err
		}
		installments, err := BuildSchedule(loan, rate.Fraction)
		if err != nil {
			return err
		}
		if err := s.ReplaceInstallments(ctx, id, installments); err != nil {
			return err
		}
		if Reconcile(loan, installments) {
			return s.UpdateLoan(ctx, loan)
		}
		return nil
	})
}

// =============================================================================
// RECORD PAYMENT
// =============================================================================

// NewPayment is the input contract for RecordPayment.
type NewPayment struct {
	LoanID LoanID
	Amount Money
	PaidOn Date // zero means today
	Method string
	Note   string
}

// RecordPayment validates the payment, brings the loan's delinquency state
// current as of the payment date, allocates the amount FIFO interest-first,
// and reconciles the loan. One transaction under the loan's lock; a
// rejected payment leaves no trace.
func (e *Engine) RecordPayment(ctx context.Context, in NewPayment) (*Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	paidOn := in.PaidOn
	if paidOn.IsZero() {
		paidOn = Today()
	}

	payment := &Payment{
		ID:        NewPaymentID(),
		LoanID:    in.LoanID,
		PaidOn:    paidOn,
		Amount:    Round2(in.Amount),
		Method:    in.Method,
		Note:      in.Note,
		CreatedAt: time.Now().UTC(),
	}

	err := e.store.WithLoan(ctx, in.LoanID, func(s Store) error {
		loan, err := s.GetLoan(ctx, in.LoanID)
		if err != nil {
			return err
		}
		switch loan.State {
		case LoanPaid:
			return ErrLoanAlreadyPaid
		case LoanCancelled:
			return &ValidationError{Field: "loan_id", Reason: "loan is cancelled"}
		}

		installments, err := s.Installments(ctx, in.LoanID)
		if err != nil {
			return err
		}

		// Bring delinquency current so allocation sees today's states.
		marked, _ := classify(installments, paidOn)
		for _, inst := range marked {
			if err := s.UpdateInstallment(ctx, inst); err != nil {
				return err
			}
		}

		open := openInstallments(installments)
		outstanding := Zero
		for _, inst := range open {
			outstanding = outstanding.Add(inst.Outstanding())
		}
		if !outstanding.IsPositive() {
			return ErrNoOutstandingBalance
		}
		if payment.Amount.GreaterThan(outstanding) {
			return &OverpaymentError{LoanID: loan.ID, Amount: payment.Amount, Outstanding: Round2(outstanding)}
		}

		if err := s.CreatePayment(ctx, payment); err != nil {
			return err
		}

		trail, touched, err := allocate(payment, open)
		if err != nil {
			return err
		}
		for _, alloc := range trail {
			if err := s.CreateAllocation(ctx, alloc); err != nil {
				return err
			}
		}
		for _, inst := range touched {
			if err := s.UpdateInstallment(ctx, inst); err != nil {
				return err
			}
		}

		if Reconcile(loan, installments) {
			return s.UpdateLoan(ctx, loan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// =============================================================================
// DELINQUENCY
// =============================================================================

// AdvanceDelinquency classifies the loan's installments as of the given
// date. When any installment is overdue the loan goes to mora directly;
// otherwise the reconciler decides between paid and pending.
func (e *Engine) AdvanceDelinquency(ctx context.Context, id LoanID, asOf Date) error {
	if asOf.IsZero() {
		asOf = Today()
	}
	return e.store.WithLoan(ctx, id, func(s Store) error {
		_, err := e.advanceLocked(ctx, s, id, asOf)
		return err
	})
}

// advanceLocked runs the classification pass inside an existing WithLoan
// section and returns how many installments were newly marked.
func (e *Engine) advanceLocked(ctx context.Context, s Store, id LoanID, asOf Date) (int, error) {
	loan, err := s.GetLoan(ctx, id)
	if err != nil {
		return 0, err
	}
	if loan.State.Terminal() {
		return 0, nil
	}

	installments, err := s.Installments(ctx, id)
	if err != nil {
		return 0, err
	}

	marked, anyOverdue := classify(installments, asOf)
	for _, inst := range marked {
		if err := s.UpdateInstallment(ctx, inst); err != nil {
			return 0, err
		}
	}

	if anyOverdue {
		// Mora takes priority over whatever the reconciler would derive.
		if loan.State != LoanDelinquent {
			loan.State = LoanDelinquent
			if err := s.UpdateLoan(ctx, loan); err != nil {
				return 0, err
			}
		}
		return len(marked), nil
	}
	if Reconcile(loan, installments) {
		if err := s.UpdateLoan(ctx, loan); err != nil {
			return 0, err
		}
	}
	return len(marked), nil
}

// SweepDelinquency runs the classification pass over every open loan. Each
// loan is processed under its own lock; loans locked by concurrent
// operations are skipped and counted, not waited on.
func (e *Engine) SweepDelinquency(ctx context.Context, asOf Date) (SweepResult, error) {
	if asOf.IsZero() {
		asOf = Today()
	}

	var result SweepResult
	ids, err := e.store.ListOpenLoanIDs(ctx)
	if err != nil {
		return result, err
	}

	for _, id := range ids {
		result.LoansExamined++
		var markedHere int
		err := e.store.WithLoan(ctx, id, func(s Store) error {
			n, err := e.advanceLocked(ctx, s, id, asOf)
			markedHere = n
			return err
		})
		if errors.Is(err, ErrLoanLocked) {
			result.LoansSkipped++
			continue
		}
		if err != nil {
			return result, err
		}
		result.InstallmentsOverdue += markedHere

		loan, err := e.store.GetLoan(ctx, id)
		if err != nil {
			return result, err
		}
		if loan.State == LoanDelinquent {
			result.LoansDelinquent++
		}
	}
	return result, nil
}

// =============================================================================
// RECONCILE
// =============================================================================

// ReconcileLoan explicitly re-derives the loan's balances and state from
// its installments. Idempotent.
func (e *Engine) ReconcileLoan(ctx context.Context, id LoanID) error {
	return e.store.WithLoan(ctx, id, func(s Store) error {
		loan, err := s.GetLoan(ctx, id)
		if err != nil {
			return err
		}
		installments, err := s.Installments(ctx, id)
		if err != nil {
			return err
		}
		if Reconcile(loan, installments) {
			return s.UpdateLoan(ctx, loan)
		}
		return nil
	})
}
