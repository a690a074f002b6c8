package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/credit-engine/engine"
	"github.com/warp/credit-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*engine.Engine, *store.Memory, engine.RateID) {
	t.Helper()
	mem := store.NewMemory()
	eng := engine.New(mem, nil)

	rate := &engine.InterestRate{
		ID:        engine.NewRateID(),
		Name:      "standard-20",
		Fraction:  engine.MustDecimal("0.20"),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, mem.CreateRate(context.Background(), rate))
	return eng, mem, rate.ID
}

func createTestLoan(t *testing.T, eng *engine.Engine, rateID engine.RateID, firstDue engine.Date) *engine.Loan {
	t.Helper()
	loan, err := eng.CreateLoan(context.Background(), engine.NewLoan{
		ClientID:         engine.NewClientID(),
		PortfolioID:      engine.NewPortfolioID(),
		Principal:        engine.MustDecimal("1000.00"),
		RateID:           rateID,
		InstallmentCount: 3,
		Frequency:        engine.Monthly,
		FirstDueDate:     firstDue,
	})
	require.NoError(t, err)
	return loan
}

// =============================================================================
// LOAN CREATION
// =============================================================================

func TestEngine_CreateLoan_PersistsScheduleAndBalances(t *testing.T) {
	// GIVEN: A fresh engine
	// WHEN: Creating 1000.00 at 20% over 3 months
	// THEN: Loan, schedule and reconciled balances are all persisted

	eng, mem, rateID := newTestEngine(t)
	ctx := context.Background()

	loan := createTestLoan(t, eng, rateID, engine.Today().AddMonths(1))

	stored, err := mem.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanPending, stored.State)
	assert.True(t, stored.OutstandingPrincipal.Equal(engine.MustDecimal("1000.00")))
	assert.True(t, stored.OutstandingInterest.Equal(engine.MustDecimal("200.00")))

	installments, err := mem.Installments(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, installments, 3)
	assert.Equal(t, 1, installments[0].Number)
	assert.Equal(t, 3, installments[2].Number)
}

func TestEngine_CreateLoan_UnknownRateRejected(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.CreateLoan(context.Background(), engine.NewLoan{
		ClientID:         engine.NewClientID(),
		PortfolioID:      engine.NewPortfolioID(),
		Principal:        engine.MustDecimal("100.00"),
		RateID:           engine.NewRateID(),
		InstallmentCount: 3,
		Frequency:        engine.Weekly,
		FirstDueDate:     engine.Today().AddDays(7),
	})
	assert.ErrorIs(t, err, engine.ErrRateNotFound)
}

// =============================================================================
// PAYMENT FLOW
// =============================================================================

func TestEngine_PayToCompletion_LoanBecomesPaid(t *testing.T) {
	// GIVEN: A 1000.00 loan owing 1200.00 in total
	// WHEN: Paying 600.00 twice
	// THEN: Loan ends paid with zero outstanding and a full audit trail

	eng, mem, rateID := newTestEngine(t)
	ctx := context.Background()
	loan := createTestLoan(t, eng, rateID, engine.Today().AddMonths(1))

	first, err := eng.RecordPayment(ctx, engine.NewPayment{LoanID: loan.ID, Amount: engine.MustDecimal("600.00")})
	require.NoError(t, err)

	mid, err := mem.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanPending, mid.State)
	assert.True(t, mid.TotalOutstanding().Equal(engine.MustDecimal("600.00")))

	second, err := eng.RecordPayment(ctx, engine.NewPayment{LoanID: loan.ID, Amount: engine.MustDecimal("600.00")})
	require.NoError(t, err)

	final, err := mem.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanPaid, final.State)
	assert.True(t, final.TotalOutstanding().IsZero())

	for _, p := range []*engine.Payment{first, second} {
		allocations, err := mem.Allocations(ctx, p.ID)
		require.NoError(t, err)
		total := engine.Zero
		for _, a := range allocations {
			total = total.Add(a.Total())
		}
		assert.True(t, total.Equal(p.Amount), "allocations must sum to payment amount")
	}
}

func TestEngine_PaymentOnPaidLoanRejected(t *testing.T) {
	eng, _, rateID := newTestEngine(t)
	ctx := context.Background()
	loan := createTestLoan(t, eng, rateID, engine.Today().AddMonths(1))

	_, err := eng.RecordPayment(ctx, engine.NewPayment{LoanID: loan.ID, Amount: engine.MustDecimal("1200.00")})
	require.NoError(t, err)

	_, err = eng.RecordPayment(ctx, engine.NewPayment{LoanID: loan.ID, Amount: engine.MustDecimal("1.00")})
	assert.ErrorIs(t, err, engine.ErrLoanAlreadyPaid)
}

func TestEngine_OverpaymentRejectedWithNoTrace(t *testing.T) {
	// GIVEN: A loan owing 1200.00
	// WHEN: Paying 1200.01
	// THEN: Rejected, and no payment row or allocation survives

	eng, mem, rateID := newTestEngine(t)
	ctx := context.Background()
	loan := createTestLoan(t, eng, rateID, engine.Today().AddMonths(1))

	_, err := eng.RecordPayment(ctx, engine.NewPayment{LoanID: loan.ID, Amount: engine.MustDecimal("1200.01")})
	assert.ErrorIs(t, err, engine.ErrOverpayment)

	payments, err := mem.Payments(ctx, loan.ID)
	require.NoError(t, err)
	assert.Empty(t, payments, "rejected payment must leave no trace")

	stored, err := mem.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalOutstanding().Equal(engine.MustDecimal("1200.00")))
}

func TestEngine_ZeroAmountRejected(t *testing.T) {
	eng, _, rateID := newTestEngine(t)
	loan := createTestLoan(t, eng, rateID, engine.Today().AddMonths(1))

	_, err := eng.RecordPayment(context.Background(), engine.NewPayment{LoanID: loan.ID, Amount: engine.Zero})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestEngine_PaymentClearsMora(t *testing.T) {
	// GIVEN: A loan delinquent on its first installment
	// WHEN: A payment settles that installment
	// THEN: The loan returns to pending

	eng, mem, rateID := newTestEngine(t)
	ctx := context.Background()
	// First installment fell due last month.
	loan := createTestLoan(t, eng, rateID, engine.Today().AddMonths(-1))

	require.NoError(t, eng.AdvanceDelinquency(ctx, loan.ID, engine.Today()))
	delinquent, err := mem.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, engine.LoanDelinquent, delinquent.State)

	// 400.00 covers installment #1 (333.33 + 66.67).
	_, err = eng.RecordPayment(ctx, engine.NewPayment{LoanID: loan.ID, Amount: engine.MustDecimal("400.00")})
	require.NoError(t, err)

	stored, err := mem.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanPending, stored.State)
}

// =============================================================================
// SCHEDULE REGENERATION
// =============================================================================

func TestEngine_RegenerateSchedule_ForbiddenAfterPayment(t *testing.T) {
	eng, _, rateID := newTestEngine(t)
	ctx := context.Background()
	loan := createTestLoan(t, eng, rateID, engine.Today().AddMonths(1))

	_, err := eng.RecordPayment(ctx, engine.NewPayment{LoanID: loan.ID, Amount: engine.MustDecimal("10.00")})
	require.NoError(t, err)

	err = eng.RegenerateSchedule(ctx, loan.ID)
	assert.ErrorIs(t, err, engine.ErrScheduleImmutable)
}

func TestEngine_RegenerateSchedule_RebuildsUnpaidLoan(t *testing.T) {
	eng, mem, rateID := newTestEngine(t)
	ctx := context.Background()
	loan := createTestLoan(t, eng, rateID, engine.Today().AddMonths(1))

	before, err := mem.Installments(ctx, loan.ID)
	require.NoError(t, err)

	require.NoError(t, eng.RegenerateSchedule(ctx, loan.ID))

	after, err := mem.Installments(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))

	// Fresh rows, same amounts.
	assert.NotEqual(t, before[0].ID, after[0].ID)
	assert.True(t, before[0].ScheduledPrincipal.Equal(after[0].ScheduledPrincipal))
}

// =============================================================================
// DELINQUENCY SWEEP
// =============================================================================

func TestEngine_SweepDelinquency_FlagsOverdueLoans(t *testing.T) {
	// GIVEN: One loan past due and one current
	// WHEN: Sweeping as of today
	// THEN: Only the past-due loan lands in mora

	eng, mem, rateID := newTestEngine(t)
	ctx := context.Background()

	overdue := createTestLoan(t, eng, rateID, engine.Today().AddMonths(-2))
	current := createTestLoan(t, eng, rateID, engine.Today().AddMonths(1))

	result, err := eng.SweepDelinquency(ctx, engine.Today())
	require.NoError(t, err)

	assert.Equal(t, 2, result.LoansExamined)
	assert.Equal(t, 1, result.LoansDelinquent)
	assert.Equal(t, 2, result.InstallmentsOverdue, "two of three installments fell due")
	assert.Equal(t, 0, result.LoansSkipped)

	overdueStored, err := mem.GetLoan(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanDelinquent, overdueStored.State)

	currentStored, err := mem.GetLoan(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanPending, currentStored.State)
}

func TestEngine_SweepDelinquency_Idempotent(t *testing.T) {
	eng, _, rateID := newTestEngine(t)
	ctx := context.Background()
	createTestLoan(t, eng, rateID, engine.Today().AddMonths(-2))

	_, err := eng.SweepDelinquency(ctx, engine.Today())
	require.NoError(t, err)

	second, err := eng.SweepDelinquency(ctx, engine.Today())
	require.NoError(t, err)
	assert.Equal(t, 0, second.InstallmentsOverdue, "nothing newly marked")
	assert.Equal(t, 1, second.LoansDelinquent, "still in mora")
}

// =============================================================================
// LOCKING
// =============================================================================

func TestEngine_PaymentAgainstLockedLoanFails(t *testing.T) {
	// GIVEN: Another operation holds the loan's lock
	// WHEN: Recording a payment with a short lock timeout
	// THEN: ErrLoanLocked, and the caller may retry

	eng, mem, rateID := newTestEngine(t)
	ctx := context.Background()
	loan := createTestLoan(t, eng, rateID, engine.Today().AddMonths(1))

	mem.SetLockTimeout(50 * time.Millisecond)

	hold := make(chan struct{})
	held := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mem.WithLoan(ctx, loan.ID, func(engine.Store) error {
			close(held)
			<-hold
			return nil
		})
	}()

	<-held
	_, err := eng.RecordPayment(ctx, engine.NewPayment{LoanID: loan.ID, Amount: engine.MustDecimal("10.00")})
	assert.ErrorIs(t, err, engine.ErrLoanLocked)
	assert.True(t, engine.IsRetryable(err))

	close(hold)
	wg.Wait()
}

func TestEngine_ConcurrentPaymentsSerialize(t *testing.T) {
	// Two concurrent 600.00 payments against a 1200.00 balance: both may
	// succeed in some order, but the ledger must never overdraw.

	eng, mem, rateID := newTestEngine(t)
	ctx := context.Background()
	loan := createTestLoan(t, eng, rateID, engine.Today().AddMonths(1))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.RecordPayment(ctx, engine.NewPayment{
				LoanID: loan.ID,
				Amount: engine.MustDecimal("600.00"),
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	stored, err := mem.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.LoanPaid, stored.State)
	assert.True(t, stored.TotalOutstanding().IsZero())
}
