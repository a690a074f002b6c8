/*
schedule.go - Installment schedule generation

PURPOSE:
  Builds the full installment schedule for a loan under the flat-rate
  model: total interest is computed once on the original principal, then
  principal and interest are split evenly across N installments.

REMAINDER CORRECTION:
  Even splits don't divide to the penny. Installments 1..N-1 each take the
  per-installment share rounded to 2 decimals; installment N takes whatever
  is left, so that

    sum(scheduled principal) == principal          exactly
    sum(scheduled interest)  == round2(principal * rate)  exactly

  for any N >= 1 and any principal. The rounding drift always lands in the
  last installment, never silently disappears.

EXAMPLE:
  principal 1000.00, rate 0.20, N=3, monthly, first due 2025-01-01:
    total interest = 200.00
    #1 333.33 / 66.67 due 2025-01-01
    #2 333.33 / 66.67 due 2025-02-01
    #3 333.34 / 66.66 due 2025-03-01

SEE ALSO:
  - engine.go: GenerateSchedule, the transactional wrapper
*/
package engine

import "github.com/shopspring/decimal"

// BuildSchedule computes the installment set for a loan at the given flat
// rate. Pure function: same inputs, same schedule. The caller persists the
// result atomically and reconciles the loan afterward.
func BuildSchedule(loan *Loan, rate decimal.Decimal) ([]*Installment, error) {
	if err := validateScheduleInputs(loan, rate); err != nil {
		return nil, err
	}

	n := loan.InstallmentCount
	principal := loan.Principal
	totalInterest := Round2(principal.Mul(rate))

	// Unrounded per-installment shares. Rounding happens per row.
	perPrincipal := principal.Div(decimal.NewFromInt(int64(n)))
	perInterest := totalInterest.Div(decimal.NewFromInt(int64(n)))

	installments := make([]*Installment, 0, n)
	sumPrincipal := decimal.Zero
	sumInterest := decimal.Zero
	due := loan.FirstDueDate

	for number := 1; number <= n; number++ {
		var rowPrincipal, rowInterest decimal.Decimal
		if number < n {
			rowPrincipal = Round2(perPrincipal)
			rowInterest = Round2(perInterest)
		} else {
			// Last installment absorbs the rounding remainder.
			rowPrincipal = Round2(principal.Sub(sumPrincipal))
			rowInterest = Round2(totalInterest.Sub(sumInterest))
		}
		sumPrincipal = sumPrincipal.Add(rowPrincipal)
		sumInterest = sumInterest.Add(rowInterest)

		installments = append(installments, &Installment{
			ID:                 NewInstallmentID(),
			LoanID:             loan.ID,
			Number:             number,
			DueDate:            due,
			ScheduledPrincipal: rowPrincipal,
			ScheduledInterest:  rowInterest,
			PaidPrincipal:      decimal.Zero,
			PaidInterest:       decimal.Zero,
			State:              InstallmentPending,
		})
		due = loan.Frequency.Next(due)
	}

	// The remainder correction makes these impossible to fail. If one does,
	// abort rather than persist a schedule that cannot reconcile.
	if !sumPrincipal.Equal(principal) {
		return nil, &ConsistencyViolation{
			LoanID: loan.ID,
			Detail: "scheduled principal " + sumPrincipal.String() + " != loan principal " + principal.String(),
		}
	}
	if !sumInterest.Equal(totalInterest) {
		return nil, &ConsistencyViolation{
			LoanID: loan.ID,
			Detail: "scheduled interest " + sumInterest.String() + " != total interest " + totalInterest.String(),
		}
	}

	return installments, nil
}

func validateScheduleInputs(loan *Loan, rate decimal.Decimal) error {
	if !loan.Principal.IsPositive() {
		return &ValidationError{Field: "principal", Reason: "must be greater than zero"}
	}
	if loan.InstallmentCount < 1 {
		return &ValidationError{Field: "installment_count", Reason: "must be at least 1"}
	}
	if !loan.Frequency.Valid() {
		return &ValidationError{Field: "frequency", Reason: "must be weekly, biweekly, or monthly"}
	}
	if loan.FirstDueDate.IsZero() {
		return &ValidationError{Field: "first_due_date", Reason: "is required"}
	}
	if rate.IsNegative() {
		return &ValidationError{Field: "rate", Reason: "must not be negative"}
	}
	return nil
}
