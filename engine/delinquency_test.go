package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CLASSIFIER TESTS
// =============================================================================

func TestClassify_MarksPastDueUnpaid(t *testing.T) {
	// GIVEN: An unpaid installment due yesterday and one due tomorrow
	// WHEN: Classifying as of today
	// THEN: Only the past-due one is marked overdue

	today := NewDate(2026, time.June, 15)
	past := testInstallment(1, "50.00", "10.00", today.AddDays(-1))
	future := testInstallment(2, "50.00", "10.00", today.AddDays(1))

	changed, anyOverdue := classify([]*Installment{past, future}, today)

	require.Len(t, changed, 1)
	assert.Equal(t, past.ID, changed[0].ID)
	assert.Equal(t, InstallmentOverdue, past.State)
	assert.Equal(t, InstallmentPending, future.State)
	assert.True(t, anyOverdue)
}

func TestClassify_DueTodayIsNotOverdue(t *testing.T) {
	// Strictly before: due today stays pending until tomorrow.
	today := NewDate(2026, time.June, 15)
	inst := testInstallment(1, "50.00", "10.00", today)

	changed, anyOverdue := classify([]*Installment{inst}, today)

	assert.Empty(t, changed)
	assert.False(t, anyOverdue)
	assert.Equal(t, InstallmentPending, inst.State)
}

func TestClassify_PaidInstallmentsNeverFlagged(t *testing.T) {
	today := NewDate(2026, time.June, 15)
	inst := testInstallment(1, "50.00", "10.00", today.AddDays(-30))
	inst.PaidPrincipal = MustDecimal("50.00")
	inst.PaidInterest = MustDecimal("10.00")
	inst.State = InstallmentPaid

	changed, anyOverdue := classify([]*Installment{inst}, today)

	assert.Empty(t, changed)
	assert.False(t, anyOverdue)
	assert.Equal(t, InstallmentPaid, inst.State)
}

func TestClassify_AlreadyOverdueNotReportedAsChanged(t *testing.T) {
	// Idempotent: a second pass reports no changes but still sees mora.
	today := NewDate(2026, time.June, 15)
	inst := testInstallment(1, "50.00", "10.00", today.AddDays(-1))

	changed, _ := classify([]*Installment{inst}, today)
	require.Len(t, changed, 1)

	changed, anyOverdue := classify([]*Installment{inst}, today)
	assert.Empty(t, changed)
	assert.True(t, anyOverdue)
}

func TestClassify_EarlierAsOfNeverDowngrades(t *testing.T) {
	// Monotonic: classifying with an older as-of leaves overdue alone.
	today := NewDate(2026, time.June, 15)
	inst := testInstallment(1, "50.00", "10.00", today.AddDays(-5))
	inst.State = InstallmentOverdue

	changed, anyOverdue := classify([]*Installment{inst}, today.AddDays(-10))
	assert.Empty(t, changed)
	assert.True(t, anyOverdue)
	assert.Equal(t, InstallmentOverdue, inst.State)
}

// =============================================================================
// RECONCILER TESTS
// =============================================================================

func TestReconcile_SumsOutstandingIntoLoan(t *testing.T) {
	loan := testLoan("100.00", 2, Weekly)
	installments := []*Installment{
		testInstallment(1, "50.00", "10.00", NewDate(2026, time.June, 1)),
		testInstallment(2, "50.00", "10.00", NewDate(2026, time.June, 8)),
	}
	installments[0].PaidInterest = MustDecimal("10.00")
	installments[0].PaidPrincipal = MustDecimal("25.00")

	changed := Reconcile(loan, installments)

	assert.True(t, changed)
	assert.True(t, loan.OutstandingPrincipal.Equal(MustDecimal("75.00")))
	assert.True(t, loan.OutstandingInterest.Equal(MustDecimal("10.00")))
	assert.Equal(t, LoanPending, loan.State)
}

func TestReconcile_PaidWhenEverythingSettled(t *testing.T) {
	loan := testLoan("100.00", 1, Weekly)
	inst := testInstallment(1, "100.00", "20.00", NewDate(2026, time.June, 1))
	inst.PaidPrincipal = MustDecimal("100.00")
	inst.PaidInterest = MustDecimal("20.00")
	inst.State = InstallmentPaid

	Reconcile(loan, []*Installment{inst})

	assert.Equal(t, LoanPaid, loan.State)
	assert.True(t, loan.TotalOutstanding().IsZero())
}

func TestReconcile_MoraWhenAnyInstallmentOverdue(t *testing.T) {
	loan := testLoan("100.00", 2, Weekly)
	first := testInstallment(1, "50.00", "10.00", NewDate(2026, time.June, 1))
	first.State = InstallmentOverdue
	second := testInstallment(2, "50.00", "10.00", NewDate(2026, time.June, 8))

	Reconcile(loan, []*Installment{first, second})

	assert.Equal(t, LoanDelinquent, loan.State)
}

func TestReconcile_MoraClearsWhenOverdueSettled(t *testing.T) {
	// Settling the overdue installment flips the loan back from mora.
	loan := testLoan("100.00", 2, Weekly)
	loan.State = LoanDelinquent
	first := testInstallment(1, "50.00", "10.00", NewDate(2026, time.June, 1))
	first.PaidPrincipal = MustDecimal("50.00")
	first.PaidInterest = MustDecimal("10.00")
	first.State = InstallmentPaid
	second := testInstallment(2, "50.00", "10.00", NewDate(2026, time.June, 8))

	Reconcile(loan, []*Installment{first, second})

	assert.Equal(t, LoanPending, loan.State)
}

func TestReconcile_CancelledIsSticky(t *testing.T) {
	// Administrative cancellation is never overwritten by the reconciler.
	loan := testLoan("100.00", 1, Weekly)
	loan.State = LoanCancelled
	inst := testInstallment(1, "100.00", "20.00", NewDate(2026, time.June, 1))

	Reconcile(loan, []*Installment{inst})

	assert.Equal(t, LoanCancelled, loan.State)
	// Balances still reconcile.
	assert.True(t, loan.OutstandingPrincipal.Equal(MustDecimal("100.00")))
}

func TestReconcile_Idempotent(t *testing.T) {
	loan := testLoan("100.00", 2, Weekly)
	installments := []*Installment{
		testInstallment(1, "50.00", "10.00", NewDate(2026, time.June, 1)),
		testInstallment(2, "50.00", "10.00", NewDate(2026, time.June, 8)),
	}

	first := Reconcile(loan, installments)
	second := Reconcile(loan, installments)

	assert.True(t, first)
	assert.False(t, second, "second pass must be a no-op")
}
