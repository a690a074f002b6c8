/*
scenarios.go - Demo scenario loader for testing and demonstrations

PURPOSE:

	Populates the database with a small realistic book: a portfolio with
	staff, a couple of clients, a named rate, loans on different frequencies
	and a partial payment, so the summary endpoint has something to show.

USAGE VIA API:

	POST /api/scenarios/seed

NOTE:

	Seeding does not reset existing data; it adds on top. Only use in
	development/demo environments.

SEE ALSO:
  - handlers.go: Error translation helpers
  - server.go: Route wiring
*/
package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/credit-engine/book"
	"github.com/warp/credit-engine/engine"
)

// SeedScenario loads the demo book.
func (h *Handler) SeedScenario(w http.ResponseWriter, r *http.Request) {
	summary, err := h.seedDemoBook(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (h *Handler) seedDemoBook(ctx context.Context) (PortfolioSummaryDTO, error) {
	portfolio, err := h.Book.CreatePortfolio(ctx, "Barrio Centro", "Demo portfolio")
	if err != nil {
		return PortfolioSummaryDTO{}, err
	}
	if _, err := h.Book.AssignMember(ctx, portfolio.ID, "demo-manager", book.RoleManager); err != nil {
		return PortfolioSummaryDTO{}, err
	}
	if _, err := h.Book.AssignMember(ctx, portfolio.ID, "demo-collector", book.RoleOperator); err != nil {
		return PortfolioSummaryDTO{}, err
	}

	rate, err := h.Book.CreateRate(ctx, "standard-20", decimal.RequireFromString("0.20"))
	if err != nil {
		return PortfolioSummaryDTO{}, err
	}

	maria, err := h.Book.CreateClient(ctx, book.NewClient{
		Name:       "Maria Fernandez",
		NationalID: "001-1234567-8",
		Phone:      "809-555-0101",
		Address:    "Calle Duarte 12",
		Guarantor: book.Guarantor{
			NationalID: "001-7654321-0",
			Name:       "Pedro",
			Surname:    "Fernandez",
			Phone:      "809-555-0102",
		},
	})
	if err != nil {
		return PortfolioSummaryDTO{}, err
	}

	jose, err := h.Book.CreateClient(ctx, book.NewClient{
		Name:       "Jose Ramirez",
		NationalID: "002-2345678-9",
		Phone:      "809-555-0201",
		Address:    "Av. Independencia 48",
	})
	if err != nil {
		return PortfolioSummaryDTO{}, err
	}

	today := engine.Today()

	weekly, err := h.Engine.CreateLoan(ctx, engine.NewLoan{
		ClientID:         maria.ID,
		PortfolioID:      portfolio.ID,
		Principal:        decimal.RequireFromString("1000.00"),
		RateID:           rate.ID,
		InstallmentCount: 10,
		Frequency:        engine.Weekly,
		FirstDueDate:     today.AddDays(7),
	})
	if err != nil {
		return PortfolioSummaryDTO{}, err
	}

	if _, err := h.Engine.CreateLoan(ctx, engine.NewLoan{
		ClientID:         jose.ID,
		PortfolioID:      portfolio.ID,
		Principal:        decimal.RequireFromString("2500.00"),
		RateID:           rate.ID,
		InstallmentCount: 6,
		Frequency:        engine.Monthly,
		FirstDueDate:     today.AddMonths(1),
	}); err != nil {
		return PortfolioSummaryDTO{}, err
	}

	// One partial payment so allocations show up in the demo.
	if _, err := h.Engine.RecordPayment(ctx, engine.NewPayment{
		LoanID: weekly.ID,
		Amount: decimal.RequireFromString("120.00"),
		Method: "cash",
		Note:   "demo seed",
	}); err != nil {
		return PortfolioSummaryDTO{}, err
	}

	summary, err := engine.Summarize(ctx, h.Engine.Store(), portfolio.ID)
	if err != nil {
		return PortfolioSummaryDTO{}, err
	}
	return toSummaryDTO(summary), nil
}
