/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

MONEY AND DATES ON THE WIRE:
  Money travels as decimal strings ("1000.00"), never JSON numbers; a
  float64 hop would reintroduce the rounding drift the ledger exists to
  prevent. Dates travel as "YYYY-MM-DD".

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and factory.ParseTerms, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/terms.go: RawTerms parsing
*/
package api

import (
	"time"

	"github.com/warp/credit-engine/book"
	"github.com/warp/credit-engine/engine"
)

// =============================================================================
// CLIENTS
// =============================================================================

type GuarantorDTO struct {
	NationalID string `json:"national_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Surname    string `json:"surname,omitempty"`
	Address    string `json:"address,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type ClientDTO struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	NationalID   string       `json:"national_id"`
	Phone        string       `json:"phone,omitempty"`
	Address      string       `json:"address,omitempty"`
	WorkAddress  string       `json:"work_address,omitempty"`
	Email        string       `json:"email,omitempty"`
	SocialHandle string       `json:"social_handle,omitempty"`
	Guarantor    GuarantorDTO `json:"guarantor"`
	Active       bool         `json:"active"`
	CreatedAt    string       `json:"created_at,omitempty"`
}

type CreateClientRequest struct {
	Name         string       `json:"name"`
	NationalID   string       `json:"national_id"`
	Phone        string       `json:"phone"`
	Address      string       `json:"address"`
	WorkAddress  string       `json:"work_address"`
	Email        string       `json:"email"`
	SocialHandle string       `json:"social_handle"`
	Guarantor    GuarantorDTO `json:"guarantor"`
}

// UpdateClientRequest carries only mutable fields; omitted fields are left
// unchanged.
type UpdateClientRequest struct {
	Phone        *string `json:"phone,omitempty"`
	Address      *string `json:"address,omitempty"`
	WorkAddress  *string `json:"work_address,omitempty"`
	Email        *string `json:"email,omitempty"`
	SocialHandle *string `json:"social_handle,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

// =============================================================================
// PORTFOLIOS
// =============================================================================

type PortfolioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type CreatePortfolioRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type MemberDTO struct {
	PortfolioID string `json:"portfolio_id"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
}

type AssignMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type PortfolioSummaryDTO struct {
	PortfolioID          string         `json:"portfolio_id"`
	LoanCount            int            `json:"loan_count"`
	LoansByState         map[string]int `json:"loans_by_state"`
	ActiveClients        int            `json:"active_clients"`
	OutstandingPrincipal string         `json:"outstanding_principal"`
	OutstandingInterest  string         `json:"outstanding_interest"`
	ContractualBalance   string         `json:"contractual_balance"`
	CollectedPrincipal   string         `json:"collected_principal"`
	CollectedInterest    string         `json:"collected_interest"`
	CollectedTotal       string         `json:"collected_total"`
}

// =============================================================================
// RATES
// =============================================================================

type RateDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Fraction  string `json:"fraction"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateRateRequest struct {
	Name     string `json:"name"`
	Fraction string `json:"fraction"`
}

// =============================================================================
// LOANS
// =============================================================================

type LoanDTO struct {
	ID                   string `json:"id"`
	ClientID             string `json:"client_id"`
	PortfolioID          string `json:"portfolio_id"`
	Principal            string `json:"principal"`
	RateID               string `json:"rate_id"`
	InstallmentCount     int    `json:"installment_count"`
	Frequency            string `json:"frequency"`
	FirstDueDate         string `json:"first_due_date"`
	DisbursedOn          string `json:"disbursed_on"`
	State                string `json:"state"`
	OutstandingPrincipal string `json:"outstanding_principal"`
	OutstandingInterest  string `json:"outstanding_interest"`
	TotalOutstanding     string `json:"total_outstanding"`
	CreatedAt            string `json:"created_at,omitempty"`
}

type CreateLoanRequest struct {
	ClientID         string `json:"client_id"`
	PortfolioID      string `json:"portfolio_id"`
	Principal        string `json:"principal"`
	RateID           string `json:"rate_id"`
	InstallmentCount int    `json:"installment_count"`
	Frequency        string `json:"frequency"`
	FirstDueDate     string `json:"first_due_date"`
	DisbursedOn      string `json:"disbursed_on,omitempty"`
}

type InstallmentDTO struct {
	ID                 string `json:"id"`
	Number             int    `json:"number"`
	DueDate            string `json:"due_date"`
	ScheduledPrincipal string `json:"scheduled_principal"`
	ScheduledInterest  string `json:"scheduled_interest"`
	PaidPrincipal      string `json:"paid_principal"`
	PaidInterest       string `json:"paid_interest"`
	Outstanding        string `json:"outstanding"`
	State              string `json:"state"`
}

// LoanDetailDTO is the loan with its full schedule.
type LoanDetailDTO struct {
	Loan         LoanDTO          `json:"loan"`
	Installments []InstallmentDTO `json:"installments"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID          string          `json:"id"`
	LoanID      string          `json:"loan_id"`
	PaidOn      string          `json:"paid_on"`
	Amount      string          `json:"amount"`
	Method      string          `json:"method,omitempty"`
	Note        string          `json:"note,omitempty"`
	Allocations []AllocationDTO `json:"allocations,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

type AllocationDTO struct {
	InstallmentID string `json:"installment_id"`
	Principal     string `json:"principal"`
	Interest      string `json:"interest"`
}

type RecordPaymentRequest struct {
	Amount string `json:"amount"`
	PaidOn string `json:"paid_on,omitempty"`
	Method string `json:"method,omitempty"`
	Note   string `json:"note,omitempty"`
}

// =============================================================================
// ADMIN
// =============================================================================

type SweepRequest struct {
	AsOf string `json:"as_of,omitempty"`
}

type SweepResultDTO struct {
	LoansExamined       int `json:"loans_examined"`
	InstallmentsOverdue int `json:"installments_overdue"`
	LoansDelinquent     int `json:"loans_delinquent"`
	LoansSkipped        int `json:"loans_skipped"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toClientDTO(c *book.Client) ClientDTO {
	return ClientDTO{
		ID:           string(c.ID),
		Name:         c.Name,
		NationalID:   c.NationalID,
		Phone:        c.Phone,
		Address:      c.Address,
		WorkAddress:  c.WorkAddress,
		Email:        c.Email,
		SocialHandle: c.SocialHandle,
		Guarantor: GuarantorDTO{
			NationalID: c.Guarantor.NationalID,
			Name:       c.Guarantor.Name,
			Surname:    c.Guarantor.Surname,
			Address:    c.Guarantor.Address,
			Phone:      c.Guarantor.Phone,
		},
		Active:    c.Active,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toPortfolioDTO(p *book.Portfolio) PortfolioDTO {
	return PortfolioDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

func toRateDTO(r *engine.InterestRate) RateDTO {
	return RateDTO{
		ID:        string(r.ID),
		Name:      r.Name,
		Fraction:  r.Fraction.String(),
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

func toLoanDTO(l *engine.Loan) LoanDTO {
	return LoanDTO{
		ID:                   string(l.ID),
		ClientID:             string(l.ClientID),
		PortfolioID:          string(l.PortfolioID),
		Principal:            l.Principal.String(),
		RateID:               string(l.RateID),
		InstallmentCount:     l.InstallmentCount,
		Frequency:            string(l.Frequency),
		FirstDueDate:         l.FirstDueDate.String(),
		DisbursedOn:          l.DisbursedOn.String(),
		State:                string(l.State),
		OutstandingPrincipal: l.OutstandingPrincipal.String(),
		OutstandingInterest:  l.OutstandingInterest.String(),
		TotalOutstanding:     l.TotalOutstanding().String(),
		CreatedAt:            l.CreatedAt.Format(time.RFC3339),
	}
}

func toInstallmentDTO(i *engine.Installment) InstallmentDTO {
	return InstallmentDTO{
		ID:                 string(i.ID),
		Number:             i.Number,
		DueDate:            i.DueDate.String(),
		ScheduledPrincipal: i.ScheduledPrincipal.String(),
		ScheduledInterest:  i.ScheduledInterest.String(),
		PaidPrincipal:      i.PaidPrincipal.String(),
		PaidInterest:       i.PaidInterest.String(),
		Outstanding:        i.Outstanding().String(),
		State:              string(i.State),
	}
}

func toPaymentDTO(p *engine.Payment, allocations []*engine.Allocation) PaymentDTO {
	dto := PaymentDTO{
		ID:        string(p.ID),
		LoanID:    string(p.LoanID),
		PaidOn:    p.PaidOn.String(),
		Amount:    p.Amount.String(),
		Method:    p.Method,
		Note:      p.Note,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	for _, a := range allocations {
		dto.Allocations = append(dto.Allocations, AllocationDTO{
			InstallmentID: string(a.InstallmentID),
			Principal:     a.Principal.String(),
			Interest:      a.Interest.String(),
		})
	}
	return dto
}

func toSummaryDTO(s *engine.PortfolioSummary) PortfolioSummaryDTO {
	byState := make(map[string]int, len(s.LoansByState))
	for state, n := range s.LoansByState {
		byState[string(state)] = n
	}
	return PortfolioSummaryDTO{
		PortfolioID:          string(s.PortfolioID),
		LoanCount:            s.LoanCount,
		LoansByState:         byState,
		ActiveClients:        s.ActiveClients,
		OutstandingPrincipal: s.OutstandingPrincipal.String(),
		OutstandingInterest:  s.OutstandingInterest.String(),
		ContractualBalance:   s.ContractualBalance().String(),
		CollectedPrincipal:   s.CollectedPrincipal.String(),
		CollectedInterest:    s.CollectedInterest.String(),
		CollectedTotal:       s.CollectedTotal().String(),
	}
}
