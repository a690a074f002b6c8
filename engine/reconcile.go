/*
reconcile.go - Balance and state reconciliation

PURPOSE:
  Recomputes a loan's cached aggregate balances and lifecycle state from
  its installments. The installments are the ledger of truth; the loan row
  only caches their sums for fast reads. Reconciliation runs after schedule
  generation, after every payment allocation, and after delinquency
  classification, always inside the same transaction.

STATE DERIVATION:
  paid     both outstanding sums are exactly zero
  mora     any installment is overdue
  pending  otherwise

  Cancelled is administrative and is never assigned (or cleared) here.

Reconcile is idempotent: running it twice in a row changes nothing.
*/
package engine

import "github.com/shopspring/decimal"

// Reconcile recomputes loan.OutstandingPrincipal, loan.OutstandingInterest
// and loan.State from the given installments, in place. It returns true if
// anything changed and the loan row needs persisting.
func Reconcile(loan *Loan, installments []*Installment) bool {
	sumPrincipal := decimal.Zero
	sumInterest := decimal.Zero
	anyOverdue := false

	for _, inst := range installments {
		sumPrincipal = sumPrincipal.Add(inst.OutstandingPrincipal())
		sumInterest = sumInterest.Add(inst.OutstandingInterest())
		if inst.State == InstallmentOverdue {
			anyOverdue = true
		}
	}
	sumPrincipal = Round2(sumPrincipal)
	sumInterest = Round2(sumInterest)

	changed := false
	if !loan.OutstandingPrincipal.Equal(sumPrincipal) {
		loan.OutstandingPrincipal = sumPrincipal
		changed = true
	}
	if !loan.OutstandingInterest.Equal(sumInterest) {
		loan.OutstandingInterest = sumInterest
		changed = true
	}

	if loan.State == LoanCancelled {
		return changed
	}

	var next LoanState
	switch {
	case sumPrincipal.IsZero() && sumInterest.IsZero():
		next = LoanPaid
	case anyOverdue:
		next = LoanDelinquent
	default:
		next = LoanPending
	}
	if loan.State != next {
		loan.State = next
		changed = true
	}
	return changed
}
