/*
delinquency.go - Overdue classification

PURPOSE:
  Promotes unpaid installments past their due date into the overdue state,
  and the loan into delinquency when any installment is overdue. This is
  the only place time enters the engine, and it enters explicitly: every
  classification takes an as-of date, so the caller decides what "today"
  means and reads never mutate state as a side effect.

MONOTONICITY:
  Within a pass, overdue never downgrades back to pending. An overdue
  installment leaves that state only by becoming fully paid (see
  allocate.go, which re-derives installment state after each split).
*/
package engine

// classify marks every unpaid installment with a due date strictly before
// asOf as overdue. It returns the installments whose state changed, and
// whether any installment is overdue after the pass (changed or not).
func classify(installments []*Installment, asOf Date) (changed []*Installment, anyOverdue bool) {
	for _, inst := range installments {
		if inst.State == InstallmentPaid || inst.State == InstallmentCancelled {
			continue
		}
		if inst.State == InstallmentOverdue {
			anyOverdue = true
			continue
		}
		if inst.Outstanding().IsPositive() && inst.DueDate.Before(asOf) {
			inst.State = InstallmentOverdue
			changed = append(changed, inst)
			anyOverdue = true
		}
	}
	return changed, anyOverdue
}

// SweepResult summarizes a system-wide delinquency sweep.
type SweepResult struct {
	LoansExamined       int
	InstallmentsOverdue int // newly marked in this sweep
	LoansDelinquent     int // loans in mora after the sweep
	LoansSkipped        int // locked by concurrent operations
}
