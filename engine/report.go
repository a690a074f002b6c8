/*
report.go - Read-only portfolio reporting

Reporting reads reconciled values and never mutates anything. Callers that
want numbers as of "now" run the delinquency sweep first, explicitly.
*/
package engine

import "context"

// PortfolioSummary aggregates a portfolio's collection picture.
type PortfolioSummary struct {
	PortfolioID PortfolioID

	LoanCount    int
	LoansByState map[LoanState]int

	// ActiveClients counts distinct clients holding at least one open loan.
	ActiveClients int

	// Outstanding sums over open loans, from reconciled caches.
	OutstandingPrincipal Money
	OutstandingInterest  Money

	// Collected sums over the full allocation trail.
	CollectedPrincipal Money
	CollectedInterest  Money
}

// ContractualBalance is everything still owed across the portfolio.
func (s *PortfolioSummary) ContractualBalance() Money {
	return s.OutstandingPrincipal.Add(s.OutstandingInterest)
}

// CollectedTotal is everything ever applied from payments.
func (s *PortfolioSummary) CollectedTotal() Money {
	return s.CollectedPrincipal.Add(s.CollectedInterest)
}

// Summarize builds the summary for one portfolio.
func Summarize(ctx context.Context, s Store, id PortfolioID) (*PortfolioSummary, error) {
	loans, err := s.ListLoans(ctx, LoanFilter{PortfolioID: id})
	if err != nil {
		return nil, err
	}

	summary := &PortfolioSummary{
		PortfolioID:          id,
		LoansByState:         make(map[LoanState]int),
		OutstandingPrincipal: Zero,
		OutstandingInterest:  Zero,
	}

	openClients := make(map[ClientID]bool)
	for _, loan := range loans {
		summary.LoanCount++
		summary.LoansByState[loan.State]++
		if !loan.State.Terminal() {
			openClients[loan.ClientID] = true
			summary.OutstandingPrincipal = summary.OutstandingPrincipal.Add(loan.OutstandingPrincipal)
			summary.OutstandingInterest = summary.OutstandingInterest.Add(loan.OutstandingInterest)
		}
	}
	summary.ActiveClients = len(openClients)

	principal, interest, err := s.CollectedByPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	summary.CollectedPrincipal = principal
	summary.CollectedInterest = interest
	return summary, nil
}
