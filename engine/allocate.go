/*
allocate.go - Payment allocation across installments

PURPOSE:
  Distributes a payment's amount over the loan's outstanding installments.
  This ordering is a behavioral contract, not an implementation detail:

  1. Installments are consumed strictly FIFO by sequence number. The
     oldest obligation is extinguished before the next one is touched.
     No look-ahead, no even splitting.
  2. Within an installment, interest is satisfied before principal. Under
     partial payments this decides which component the customer's money is
     deemed to pay first, which in turn decides the reported outstanding
     interest versus principal reduction. Standard amortization convention.

AUDIT TRAIL:
  Every (payment, installment) pair that received a non-zero amount gets
  exactly one Allocation row. Summing a payment's allocations always
  reproduces the payment amount; summing an installment's allocations
  always reproduces its paid principal and interest.

STATE AFTER SPLIT:
  An installment touched by the split is re-derived:
    paid     both components settled, regardless of due date
    mora     still outstanding and due before the payment date
    pending  still outstanding, due on or after the payment date
*/
package engine

import "github.com/shopspring/decimal"

// allocate splits amount across the given installments (already filtered to
// pending/overdue and ordered by sequence number ascending). It mutates the
// touched installments in place and returns the allocation rows plus the
// installments that changed.
//
// The caller guarantees amount <= total outstanding; allocate treats any
// leftover after the loop as a broken invariant.
func allocate(payment *Payment, open []*Installment) ([]*Allocation, []*Installment, error) {
	remaining := payment.Amount
	var trail []*Allocation
	var touched []*Installment

	for _, inst := range open {
		if !remaining.IsPositive() {
			break
		}

		interestDue := inst.OutstandingInterest()
		principalDue := inst.OutstandingPrincipal()
		if interestDue.IsNegative() || principalDue.IsNegative() {
			return nil, nil, &ConsistencyViolation{
				LoanID: payment.LoanID,
				Detail: "installment " + string(inst.ID) + " has negative outstanding balance",
			}
		}

		// Interest first, then principal.
		interestApplied := decimal.Min(remaining, interestDue)
		remaining = remaining.Sub(interestApplied)
		principalApplied := decimal.Min(remaining, principalDue)
		remaining = remaining.Sub(principalApplied)

		if interestApplied.IsZero() && principalApplied.IsZero() {
			continue
		}

		trail = append(trail, &Allocation{
			ID:            NewAllocationID(),
			PaymentID:     payment.ID,
			InstallmentID: inst.ID,
			Principal:     Round2(principalApplied),
			Interest:      Round2(interestApplied),
		})

		inst.PaidInterest = Round2(inst.PaidInterest.Add(interestApplied))
		inst.PaidPrincipal = Round2(inst.PaidPrincipal.Add(principalApplied))

		switch {
		case inst.Settled():
			inst.State = InstallmentPaid
		case inst.DueDate.Before(payment.PaidOn):
			inst.State = InstallmentOverdue
		default:
			inst.State = InstallmentPending
		}
		touched = append(touched, inst)
	}

	// The caller verified amount <= outstanding, so the money must be gone.
	if remaining.IsPositive() {
		return nil, nil, &ConsistencyViolation{
			LoanID: payment.LoanID,
			Detail: "unallocated remainder " + remaining.StringFixed(2) + " after consuming all open installments",
		}
	}

	return trail, touched, nil
}

// openInstallments filters to pending/overdue, preserving sequence order.
func openInstallments(installments []*Installment) []*Installment {
	var open []*Installment
	for _, inst := range installments {
		if inst.State == InstallmentPending || inst.State == InstallmentOverdue {
			open = append(open, inst)
		}
	}
	return open
}
