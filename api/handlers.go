/*
handlers.go - HTTP API handlers for the credit engine

PURPOSE:
  Exposes the loan ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Clients:
    GET    /api/clients                 List all clients
    POST   /api/clients                 Create client
    GET    /api/clients/{id}            Get client details
    PUT    /api/clients/{id}            Update contact fields
    GET    /api/clients/{id}/loans      Loans held by the client

  Portfolios:
    GET    /api/portfolios              List portfolios
    POST   /api/portfolios              Create portfolio
    GET    /api/portfolios/{id}/summary Aggregated collection picture
    GET    /api/portfolios/{id}/members List members
    POST   /api/portfolios/{id}/members Assign member (upsert role)
    DELETE /api/portfolios/{id}/members/{userID} Remove member

  Rates:
    GET    /api/rates                   List named rates
    POST   /api/rates                   Create named rate

  Loans:
    GET    /api/loans                   List loans (filterable)
    POST   /api/loans                   Create loan with schedule
    GET    /api/loans/{id}              Loan with installments
    POST   /api/loans/{id}/schedule     Regenerate schedule (pre-payment)
    GET    /api/loans/{id}/payments     Payment history with allocations
    POST   /api/loans/{id}/payments     Record payment

  Admin:
    POST   /api/admin/sweep             Delinquency sweep over open loans
    POST   /api/admin/reconcile/{id}    Re-derive one loan's balances

  Scenarios:
    POST   /api/scenarios/seed          Load demo data

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, business rejections
  - 404: Resource not found
  - 409: Conflict (duplicates, loan locked by concurrent operation)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Portfolio membership records who should be allowed in; enforcing it is
  a deployment concern.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loader
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/credit-engine/book"
	"github.com/warp/credit-engine/engine"
	"github.com/warp/credit-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
	Book   *book.Service
}

// NewHandler creates a new handler around the engine and party registry.
func NewHandler(eng *engine.Engine, bk *book.Service) *Handler {
	return &Handler{Engine: eng, Book: bk}
}

// =============================================================================
// CLIENT ENDPOINTS
// =============================================================================

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Book.ListClients(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ClientDTO, 0, len(clients))
	for _, c := range clients {
		dtos = append(dtos, toClientDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	client, err := h.Book.CreateClient(r.Context(), book.NewClient{
		Name:         req.Name,
		NationalID:   req.NationalID,
		Phone:        req.Phone,
		Address:      req.Address,
		WorkAddress:  req.WorkAddress,
		Email:        req.Email,
		SocialHandle: req.SocialHandle,
		Guarantor: book.Guarantor{
			NationalID: req.Guarantor.NationalID,
			Name:       req.Guarantor.Name,
			Surname:    req.Guarantor.Surname,
			Address:    req.Guarantor.Address,
			Phone:      req.Guarantor.Phone,
		},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(client))
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id := engine.ClientID(chi.URLParam(r, "id"))
	client, err := h.Book.GetClient(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(client))
}

func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id := engine.ClientID(chi.URLParam(r, "id"))

	var req UpdateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	client, err := h.Book.UpdateClientContact(r.Context(), id, book.ContactUpdate{
		Phone:        req.Phone,
		Address:      req.Address,
		WorkAddress:  req.WorkAddress,
		Email:        req.Email,
		SocialHandle: req.SocialHandle,
		Active:       req.Active,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(client))
}

func (h *Handler) ListClientLoans(w http.ResponseWriter, r *http.Request) {
	id := engine.ClientID(chi.URLParam(r, "id"))
	if _, err := h.Book.GetClient(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	loans, err := h.Engine.Store().ListLoans(r.Context(), engine.LoanFilter{ClientID: id})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]LoanDTO, 0, len(loans))
	for _, loan := range loans {
		dtos = append(dtos, toLoanDTO(loan))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PORTFOLIO ENDPOINTS
// =============================================================================

func (h *Handler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.Book.ListPortfolios(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PortfolioDTO, 0, len(portfolios))
	for _, p := range portfolios {
		dtos = append(dtos, toPortfolioDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	portfolio, err := h.Book.CreatePortfolio(r.Context(), req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPortfolioDTO(portfolio))
}

func (h *Handler) GetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	id := engine.PortfolioID(chi.URLParam(r, "id"))
	if _, err := h.Book.GetPortfolio(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	summary, err := engine.Summarize(r.Context(), h.Engine.Store(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id := engine.PortfolioID(chi.URLParam(r, "id"))
	members, err := h.Book.Members(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]MemberDTO, 0, len(members))
	for _, m := range members {
		dtos = append(dtos, MemberDTO{
			PortfolioID: string(m.PortfolioID),
			UserID:      m.UserID,
			Role:        string(m.Role),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AssignMember(w http.ResponseWriter, r *http.Request) {
	id := engine.PortfolioID(chi.URLParam(r, "id"))

	var req AssignMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	member, err := h.Book.AssignMember(r.Context(), id, req.UserID, book.Role(strings.ToLower(req.Role)))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, MemberDTO{
		PortfolioID: string(member.PortfolioID),
		UserID:      member.UserID,
		Role:        string(member.Role),
	})
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id := engine.PortfolioID(chi.URLParam(r, "id"))
	userID := chi.URLParam(r, "userID")

	if err := h.Book.RemoveMember(r.Context(), id, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RATE ENDPOINTS
// =============================================================================

func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Book.ListRates(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]RateDTO, 0, len(rates))
	for _, rate := range rates {
		dtos = append(dtos, toRateDTO(rate))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateRate(w http.ResponseWriter, r *http.Request) {
	var req CreateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	fraction, err := decimal.NewFromString(strings.TrimSpace(req.Fraction))
	if err != nil {
		writeError(w, http.StatusBadRequest, "fraction must be a decimal", err)
		return
	}

	rate, err := h.Book.CreateRate(r.Context(), req.Name, fraction)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRateDTO(rate))
}

// =============================================================================
// LOAN ENDPOINTS
// =============================================================================

func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	filter := engine.LoanFilter{
		PortfolioID: engine.PortfolioID(r.URL.Query().Get("portfolio_id")),
		ClientID:    engine.ClientID(r.URL.Query().Get("client_id")),
		State:       engine.LoanState(r.URL.Query().Get("state")),
	}

	loans, err := h.Engine.Store().ListLoans(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]LoanDTO, 0, len(loans))
	for _, loan := range loans {
		dtos = append(dtos, toLoanDTO(loan))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	terms, err := factory.ParseTerms(factory.RawTerms{
		ClientID:         req.ClientID,
		PortfolioID:      req.PortfolioID,
		Principal:        req.Principal,
		RateID:           req.RateID,
		InstallmentCount: req.InstallmentCount,
		Frequency:        req.Frequency,
		FirstDueDate:     req.FirstDueDate,
		DisbursedOn:      req.DisbursedOn,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	loan, err := h.Engine.CreateLoan(r.Context(), terms.NewLoan())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	detail, err := h.loanDetail(r, loan)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := engine.LoanID(chi.URLParam(r, "id"))
	loan, err := h.Engine.Store().GetLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	detail, err := h.loanDetail(r, loan)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) RegenerateSchedule(w http.ResponseWriter, r *http.Request) {
	id := engine.LoanID(chi.URLParam(r, "id"))
	if err := h.Engine.RegenerateSchedule(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	loan, err := h.Engine.Store().GetLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	detail, err := h.loanDetail(r, loan)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) loanDetail(r *http.Request, loan *engine.Loan) (LoanDetailDTO, error) {
	installments, err := h.Engine.Store().Installments(r.Context(), loan.ID)
	if err != nil {
		return LoanDetailDTO{}, err
	}

	detail := LoanDetailDTO{Loan: toLoanDTO(loan), Installments: make([]InstallmentDTO, 0, len(installments))}
	for _, inst := range installments {
		detail.Installments = append(detail.Installments, toInstallmentDTO(inst))
	}
	return detail, nil
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := engine.LoanID(chi.URLParam(r, "id"))
	if _, err := h.Engine.Store().GetLoan(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	payments, err := h.Engine.Store().Payments(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		allocations, err := h.Engine.Store().Allocations(r.Context(), p.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		dtos = append(dtos, toPaymentDTO(p, allocations))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := engine.LoanID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal", err)
		return
	}

	var paidOn engine.Date
	if req.PaidOn != "" {
		if paidOn, err = engine.ParseDate(req.PaidOn); err != nil {
			writeError(w, http.StatusBadRequest, "paid_on must be YYYY-MM-DD", err)
			return
		}
	}

	payment, err := h.Engine.RecordPayment(r.Context(), engine.NewPayment{
		LoanID: id,
		Amount: amount,
		PaidOn: paidOn,
		Method: req.Method,
		Note:   req.Note,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	allocations, err := h.Engine.Store().Allocations(r.Context(), payment.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(payment, allocations))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	asOf := engine.Today()
	if req.AsOf != "" {
		var err error
		if asOf, err = engine.ParseDate(req.AsOf); err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD", err)
			return
		}
	}

	result, err := h.Engine.SweepDelinquency(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResultDTO{
		LoansExamined:       result.LoansExamined,
		InstallmentsOverdue: result.InstallmentsOverdue,
		LoansDelinquent:     result.LoansDelinquent,
		LoansSkipped:        result.LoansSkipped,
	})
}

// AdvanceDelinquency runs the overdue classification for one loan, as of
// today or an explicit as_of date.
func (h *Handler) AdvanceDelinquency(w http.ResponseWriter, r *http.Request) {
	id := engine.LoanID(chi.URLParam(r, "id"))

	var req SweepRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}
	asOf := engine.Today()
	if req.AsOf != "" {
		var err error
		if asOf, err = engine.ParseDate(req.AsOf); err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD", err)
			return
		}
	}

	if err := h.Engine.AdvanceDelinquency(r.Context(), id, asOf); err != nil {
		writeDomainError(w, err)
		return
	}
	loan, err := h.Engine.Store().GetLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(loan))
}

func (h *Handler) ReconcileLoan(w http.ResponseWriter, r *http.Request) {
	id := engine.LoanID(chi.URLParam(r, "id"))
	if err := h.Engine.ReconcileLoan(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	loan, err := h.Engine.Store().GetLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(loan))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "rejected", err)
	case engine.IsRetryable(err):
		writeError(w, http.StatusConflict, "busy, retry", err)
	case isDuplicate(err):
		writeError(w, http.StatusConflict, "duplicate", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, book.ErrDuplicateNationalID) ||
		errors.Is(err, book.ErrDuplicatePortfolioName) ||
		errors.Is(err, book.ErrDuplicateRateName)
}
