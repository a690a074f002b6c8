/*
Package factory converts raw loan parameters into validated engine inputs.

PURPOSE:
  The calling layer receives loan terms as strings (JSON bodies, form
  fields): a principal like "1000.00", a frequency like "monthly", a first
  due date like "2025-01-01". This package parses and validates them once,
  so the engine only ever sees well-typed values and every field error
  names the offending field.

USAGE:
  terms, err := factory.ParseTerms(factory.RawTerms{
      ClientID:         clientID,
      PortfolioID:      portfolioID,
      Principal:        "1000.00",
      RateID:           rateID,
      InstallmentCount: 3,
      Frequency:        "monthly",
      FirstDueDate:     "2025-01-01",
  })
  if err != nil { ... }           // *engine.ValidationError
  loan, err := eng.CreateLoan(ctx, terms.NewLoan())

SEE ALSO:
  - engine/schedule.go: re-validates the semantic invariants it depends on
*/
package factory

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/credit-engine/engine"
)

// RawTerms is loan input as the wire delivers it.
type RawTerms struct {
	ClientID         string
	PortfolioID      string
	Principal        string
	RateID           string
	InstallmentCount int
	Frequency        string
	FirstDueDate     string
	DisbursedOn      string // optional, defaults to today downstream
}

// Terms is the parsed, validated form.
type Terms struct {
	ClientID         engine.ClientID
	PortfolioID      engine.PortfolioID
	Principal        engine.Money
	RateID           engine.RateID
	InstallmentCount int
	Frequency        engine.Frequency
	FirstDueDate     engine.Date
	DisbursedOn      engine.Date
}

// NewLoan converts to the engine's creation contract.
func (t Terms) NewLoan() engine.NewLoan {
	return engine.NewLoan{
		ClientID:         t.ClientID,
		PortfolioID:      t.PortfolioID,
		Principal:        t.Principal,
		RateID:           t.RateID,
		InstallmentCount: t.InstallmentCount,
		Frequency:        t.Frequency,
		FirstDueDate:     t.FirstDueDate,
		DisbursedOn:      t.DisbursedOn,
	}
}

// ParseTerms validates every field and returns the first failure as a
// *engine.ValidationError naming the field.
func ParseTerms(raw RawTerms) (Terms, error) {
	var terms Terms

	if strings.TrimSpace(raw.ClientID) == "" {
		return terms, &engine.ValidationError{Field: "client_id", Reason: "is required"}
	}
	terms.ClientID = engine.ClientID(strings.TrimSpace(raw.ClientID))

	if strings.TrimSpace(raw.PortfolioID) == "" {
		return terms, &engine.ValidationError{Field: "portfolio_id", Reason: "is required"}
	}
	terms.PortfolioID = engine.PortfolioID(strings.TrimSpace(raw.PortfolioID))

	principal, err := decimal.NewFromString(strings.TrimSpace(raw.Principal))
	if err != nil {
		return terms, &engine.ValidationError{Field: "principal", Reason: "must be a decimal amount"}
	}
	if !principal.IsPositive() {
		return terms, &engine.ValidationError{Field: "principal", Reason: "must be greater than zero"}
	}
	if principal.Exponent() < -2 {
		return terms, &engine.ValidationError{Field: "principal", Reason: "must have at most 2 decimal places"}
	}
	terms.Principal = principal

	if strings.TrimSpace(raw.RateID) == "" {
		return terms, &engine.ValidationError{Field: "rate_id", Reason: "is required"}
	}
	terms.RateID = engine.RateID(strings.TrimSpace(raw.RateID))

	if raw.InstallmentCount < 1 {
		return terms, &engine.ValidationError{Field: "installment_count", Reason: "must be at least 1"}
	}
	terms.InstallmentCount = raw.InstallmentCount

	frequency := engine.Frequency(strings.ToLower(strings.TrimSpace(raw.Frequency)))
	if !frequency.Valid() {
		return terms, &engine.ValidationError{Field: "frequency", Reason: "must be weekly, biweekly, or monthly"}
	}
	terms.Frequency = frequency

	firstDue, err := engine.ParseDate(raw.FirstDueDate)
	if err != nil {
		return terms, &engine.ValidationError{Field: "first_due_date", Reason: "must be YYYY-MM-DD"}
	}
	terms.FirstDueDate = firstDue

	if strings.TrimSpace(raw.DisbursedOn) != "" {
		disbursed, err := engine.ParseDate(raw.DisbursedOn)
		if err != nil {
			return terms, &engine.ValidationError{Field: "disbursed_on", Reason: "must be YYYY-MM-DD"}
		}
		terms.DisbursedOn = disbursed
	}

	return terms, nil
}
