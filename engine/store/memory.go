// Package store provides an in-memory engine.TxStore for tests and demos.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/credit-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	loans          map[engine.LoanID]*engine.Loan
	installments   map[engine.LoanID][]*engine.Installment
	payments       map[engine.PaymentID]*engine.Payment
	paymentsByLoan map[engine.LoanID][]engine.PaymentID
	allocations    map[engine.PaymentID][]*engine.Allocation
	rates          map[engine.RateID]*engine.InterestRate

	locks       map[engine.LoanID]chan struct{}
	lockTimeout time.Duration
}

func NewMemory() *Memory {
	return &Memory{
		loans:          make(map[engine.LoanID]*engine.Loan),
		installments:   make(map[engine.LoanID][]*engine.Installment),
		payments:       make(map[engine.PaymentID]*engine.Payment),
		paymentsByLoan: make(map[engine.LoanID][]engine.PaymentID),
		allocations:    make(map[engine.PaymentID][]*engine.Allocation),
		rates:          make(map[engine.RateID]*engine.InterestRate),
		locks:          make(map[engine.LoanID]chan struct{}),
		lockTimeout:    2 * time.Second,
	}
}

// SetLockTimeout overrides how long WithLoan waits for a contended loan.
func (m *Memory) SetLockTimeout(d time.Duration) { m.lockTimeout = d }

// =============================================================================
// LOANS
// =============================================================================

func (m *Memory) CreateLoan(_ context.Context, loan *engine.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *loan
	m.loans[loan.ID] = &cp
	return nil
}

func (m *Memory) GetLoan(_ context.Context, id engine.LoanID) (*engine.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loan, ok := m.loans[id]
	if !ok {
		return nil, engine.ErrLoanNotFound
	}
	cp := *loan
	return &cp, nil
}

func (m *Memory) UpdateLoan(_ context.Context, loan *engine.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[loan.ID]; !ok {
		return engine.ErrLoanNotFound
	}
	cp := *loan
	m.loans[loan.ID] = &cp
	return nil
}

func (m *Memory) ListLoans(_ context.Context, filter engine.LoanFilter) ([]*engine.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*engine.Loan
	for _, loan := range m.loans {
		if filter.PortfolioID != "" && loan.PortfolioID != filter.PortfolioID {
			continue
		}
		if filter.ClientID != "" && loan.ClientID != filter.ClientID {
			continue
		}
		if filter.State != "" && loan.State != filter.State {
			continue
		}
		cp := *loan
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) ListOpenLoanIDs(_ context.Context) ([]engine.LoanID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []engine.LoanID
	for id, loan := range m.loans {
		if !loan.State.Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func (m *Memory) Installments(_ context.Context, loanID engine.LoanID) ([]*engine.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyInstallments(m.installments[loanID]), nil
}

func (m *Memory) ReplaceInstallments(_ context.Context, loanID engine.LoanID, installments []*engine.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copyInstallments(installments)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Number < cp[j].Number })
	m.installments[loanID] = cp
	return nil
}

func (m *Memory) UpdateInstallment(_ context.Context, installment *engine.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.installments[installment.LoanID]
	for i, row := range rows {
		if row.ID == installment.ID {
			cp := *installment
			rows[i] = &cp
			return nil
		}
	}
	return engine.ErrInstallmentNotFound
}

// =============================================================================
// PAYMENTS AND ALLOCATIONS
// =============================================================================

func (m *Memory) CreatePayment(_ context.Context, payment *engine.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *payment
	m.payments[payment.ID] = &cp
	m.paymentsByLoan[payment.LoanID] = append(m.paymentsByLoan[payment.LoanID], payment.ID)
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id engine.PaymentID) (*engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payment, ok := m.payments[id]
	if !ok {
		return nil, engine.ErrPaymentNotFound
	}
	cp := *payment
	return &cp, nil
}

func (m *Memory) Payments(_ context.Context, loanID engine.LoanID) ([]*engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*engine.Payment
	for _, id := range m.paymentsByLoan[loanID] {
		cp := *m.payments[id]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *Memory) CreateAllocation(_ context.Context, allocation *engine.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *allocation
	m.allocations[allocation.PaymentID] = append(m.allocations[allocation.PaymentID], &cp)
	return nil
}

func (m *Memory) Allocations(_ context.Context, paymentID engine.PaymentID) ([]*engine.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyAllocations(m.allocations[paymentID]), nil
}

func (m *Memory) CollectedByPortfolio(_ context.Context, portfolioID engine.PortfolioID) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	principal := decimal.Zero
	interest := decimal.Zero
	for loanID, loan := range m.loans {
		if loan.PortfolioID != portfolioID {
			continue
		}
		for _, paymentID := range m.paymentsByLoan[loanID] {
			for _, alloc := range m.allocations[paymentID] {
				principal = principal.Add(alloc.Principal)
				interest = interest.Add(alloc.Interest)
			}
		}
	}
	return principal, interest, nil
}

// =============================================================================
// RATES
// =============================================================================

func (m *Memory) CreateRate(_ context.Context, rate *engine.InterestRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rate
	m.rates[rate.ID] = &cp
	return nil
}

func (m *Memory) GetRate(_ context.Context, id engine.RateID) (*engine.InterestRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rate, ok := m.rates[id]
	if !ok {
		return nil, engine.ErrRateNotFound
	}
	cp := *rate
	return &cp, nil
}

func (m *Memory) ListRates(_ context.Context) ([]*engine.InterestRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*engine.InterestRate
	for _, rate := range m.rates {
		cp := *rate
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// =============================================================================
// WITHLOAN - Exclusive per-loan sections with rollback
// =============================================================================

// WithLoan serializes mutations per loan and rolls the loan's slice of the
// store back if fn fails. Rollback restores exactly the loan-scoped state
// (loan row, installments, payments, allocations), so concurrent sections
// on other loans are unaffected.
func (m *Memory) WithLoan(ctx context.Context, id engine.LoanID, fn func(engine.Store) error) error {
	release, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	snap := m.snapshot(id)
	if err := fn(m); err != nil {
		m.restore(id, snap)
		return err
	}
	return nil
}

func (m *Memory) acquire(ctx context.Context, id engine.LoanID) (func(), error) {
	m.mu.Lock()
	sem, ok := m.locks[id]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[id] = sem
	}
	timeout := m.lockTimeout
	m.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, engine.ErrLoanLocked
	case <-time.After(timeout):
		return nil, engine.ErrLoanLocked
	}
}

type loanSnapshot struct {
	loan         *engine.Loan // nil if loan did not exist
	installments []*engine.Installment
	paymentIDs   []engine.PaymentID
	allocations  map[engine.PaymentID][]*engine.Allocation
}

func (m *Memory) snapshot(id engine.LoanID) loanSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := loanSnapshot{
		installments: copyInstallments(m.installments[id]),
		paymentIDs:   append([]engine.PaymentID(nil), m.paymentsByLoan[id]...),
		allocations:  make(map[engine.PaymentID][]*engine.Allocation),
	}
	if loan, ok := m.loans[id]; ok {
		cp := *loan
		snap.loan = &cp
	}
	for _, paymentID := range snap.paymentIDs {
		snap.allocations[paymentID] = copyAllocations(m.allocations[paymentID])
	}
	return snap
}

func (m *Memory) restore(id engine.LoanID, snap loanSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.loan == nil {
		delete(m.loans, id)
	} else {
		m.loans[id] = snap.loan
	}
	m.installments[id] = snap.installments

	// Drop payments created inside the failed section.
	kept := make(map[engine.PaymentID]bool, len(snap.paymentIDs))
	for _, paymentID := range snap.paymentIDs {
		kept[paymentID] = true
	}
	for _, paymentID := range m.paymentsByLoan[id] {
		if !kept[paymentID] {
			delete(m.payments, paymentID)
			delete(m.allocations, paymentID)
		}
	}
	m.paymentsByLoan[id] = snap.paymentIDs
	for paymentID, allocs := range snap.allocations {
		m.allocations[paymentID] = allocs
	}
}

// =============================================================================
// COPY HELPERS
// =============================================================================

func copyInstallments(src []*engine.Installment) []*engine.Installment {
	result := make([]*engine.Installment, len(src))
	for i, inst := range src {
		cp := *inst
		result[i] = &cp
	}
	return result
}

func copyAllocations(src []*engine.Allocation) []*engine.Allocation {
	result := make([]*engine.Allocation, len(src))
	for i, alloc := range src {
		cp := *alloc
		result[i] = &cp
	}
	return result
}
