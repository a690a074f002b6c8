/*
handlers_test.go - HTTP-level tests for the API surface

Runs the full stack (router, handlers, engine, in-memory stores) through
httptest and checks both payloads and status codes, including the error
translation rules.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/credit-engine/api"
	"github.com/warp/credit-engine/book"
	"github.com/warp/credit-engine/engine"
	"github.com/warp/credit-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	registry := book.NewService(store.NewMemoryBook(), mem)
	eng := engine.New(mem, registry)

	router := api.NewRouter(api.NewHandler(eng, registry))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{server: srv}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), "body: %s", raw)
	return v
}

// seedBook creates a client, portfolio and rate, returning their ids.
func (ts *testServer) seedBook(t *testing.T) (clientID, portfolioID, rateID string) {
	t.Helper()

	resp, raw := ts.do(t, http.MethodPost, "/api/clients", map[string]any{
		"name":        "Maria Fernandez",
		"national_id": "001-1234567-8",
		"phone":       "809-555-0101",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	clientID = decode[api.ClientDTO](t, raw).ID

	resp, raw = ts.do(t, http.MethodPost, "/api/portfolios", map[string]any{
		"name": "Barrio Centro",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	portfolioID = decode[api.PortfolioDTO](t, raw).ID

	resp, raw = ts.do(t, http.MethodPost, "/api/rates", map[string]any{
		"name":     "standard-20",
		"fraction": "0.20",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	rateID = decode[api.RateDTO](t, raw).ID
	return clientID, portfolioID, rateID
}

func (ts *testServer) createLoan(t *testing.T, clientID, portfolioID, rateID string) api.LoanDetailDTO {
	t.Helper()
	resp, raw := ts.do(t, http.MethodPost, "/api/loans", map[string]any{
		"client_id":         clientID,
		"portfolio_id":      portfolioID,
		"principal":         "1000.00",
		"rate_id":           rateID,
		"installment_count": 3,
		"frequency":         "monthly",
		"first_due_date":    engine.Today().AddMonths(1).String(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	return decode[api.LoanDetailDTO](t, raw)
}

// =============================================================================
// LOAN LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_LoanLifecycle(t *testing.T) {
	// GIVEN: A seeded book
	// WHEN: Creating a loan, paying in full, reading it back
	// THEN: Every hop reports consistent decimal strings and states

	ts := newTestServer(t)
	clientID, portfolioID, rateID := ts.seedBook(t)

	detail := ts.createLoan(t, clientID, portfolioID, rateID)
	assert.Equal(t, "pending", detail.Loan.State)
	assert.Equal(t, "1000", detail.Loan.OutstandingPrincipal)
	assert.Equal(t, "200", detail.Loan.OutstandingInterest)
	require.Len(t, detail.Installments, 3)
	assert.Equal(t, "333.33", detail.Installments[0].ScheduledPrincipal)
	assert.Equal(t, "333.34", detail.Installments[2].ScheduledPrincipal)

	// Pay in full.
	resp, raw := ts.do(t, http.MethodPost, "/api/loans/"+detail.Loan.ID+"/payments", map[string]any{
		"amount": "1200.00",
		"method": "cash",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	payment := decode[api.PaymentDTO](t, raw)
	require.Len(t, payment.Allocations, 3)

	resp, raw = ts.do(t, http.MethodGet, "/api/loans/"+detail.Loan.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	final := decode[api.LoanDetailDTO](t, raw)
	assert.Equal(t, "paid", final.Loan.State)
	assert.Equal(t, "0", final.Loan.TotalOutstanding)

	// Payment history carries the allocation trail.
	resp, raw = ts.do(t, http.MethodGet, "/api/loans/"+detail.Loan.ID+"/payments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]api.PaymentDTO](t, raw)
	require.Len(t, history, 1)
	assert.Equal(t, "1200", history[0].Amount)
}

func TestAPI_PortfolioSummary(t *testing.T) {
	ts := newTestServer(t)
	clientID, portfolioID, rateID := ts.seedBook(t)
	detail := ts.createLoan(t, clientID, portfolioID, rateID)

	resp, raw := ts.do(t, http.MethodPost, "/api/loans/"+detail.Loan.ID+"/payments", map[string]any{
		"amount": "120.00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)

	resp, raw = ts.do(t, http.MethodGet, "/api/portfolios/"+portfolioID+"/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[api.PortfolioSummaryDTO](t, raw)

	assert.Equal(t, 1, summary.LoanCount)
	assert.Equal(t, 1, summary.ActiveClients)
	assert.Equal(t, 1, summary.LoansByState["pending"])
	assert.Equal(t, "1080", summary.ContractualBalance)
	assert.Equal(t, "120", summary.CollectedTotal)
}

// =============================================================================
// ERROR TRANSLATION
// =============================================================================

func TestAPI_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	clientID, portfolioID, rateID := ts.seedBook(t)
	detail := ts.createLoan(t, clientID, portfolioID, rateID)

	t.Run("unknown loan is 404", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodGet, "/api/loans/"+string(engine.NewLoanID()), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad principal is 400", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/api/loans", map[string]any{
			"client_id":         clientID,
			"portfolio_id":      portfolioID,
			"principal":         "-5",
			"rate_id":           rateID,
			"installment_count": 3,
			"frequency":         "monthly",
			"first_due_date":    "2026-06-01",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("overpayment is 400", func(t *testing.T) {
		resp, raw := ts.do(t, http.MethodPost, "/api/loans/"+detail.Loan.ID+"/payments", map[string]any{
			"amount": "99999.00",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[api.ErrorResponse](t, raw)
		assert.NotEmpty(t, body.Details)
	})

	t.Run("duplicate national id is 409", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/api/clients", map[string]any{
			"name":        "Other",
			"national_id": "001-1234567-8",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("inactive client cannot borrow", func(t *testing.T) {
		active := false
		resp, _ := ts.do(t, http.MethodPut, "/api/clients/"+clientID, api.UpdateClientRequest{Active: &active})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = ts.do(t, http.MethodPost, "/api/loans", map[string]any{
			"client_id":         clientID,
			"portfolio_id":      portfolioID,
			"principal":         "100.00",
			"rate_id":           rateID,
			"installment_count": 2,
			"frequency":         "weekly",
			"first_due_date":    "2026-06-01",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// =============================================================================
// ADMIN AND MEMBERSHIP
// =============================================================================

func TestAPI_SweepEndpoint(t *testing.T) {
	ts := newTestServer(t)
	clientID, portfolioID, rateID := ts.seedBook(t)

	// Loan already past due: first installment fell due two months ago.
	resp, raw := ts.do(t, http.MethodPost, "/api/loans", map[string]any{
		"client_id":         clientID,
		"portfolio_id":      portfolioID,
		"principal":         "300.00",
		"rate_id":           rateID,
		"installment_count": 3,
		"frequency":         "monthly",
		"first_due_date":    engine.Today().AddMonths(-2).String(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	detail := decode[api.LoanDetailDTO](t, raw)

	resp, raw = ts.do(t, http.MethodPost, "/api/admin/sweep", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[api.SweepResultDTO](t, raw)
	assert.Equal(t, 1, result.LoansExamined)
	assert.Equal(t, 1, result.LoansDelinquent)
	assert.Equal(t, 2, result.InstallmentsOverdue)

	resp, raw = ts.do(t, http.MethodGet, "/api/loans/"+detail.Loan.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	swept := decode[api.LoanDetailDTO](t, raw)
	assert.Equal(t, "mora", swept.Loan.State)
	assert.Equal(t, "mora", swept.Installments[0].State)
}

func TestAPI_Membership(t *testing.T) {
	ts := newTestServer(t)
	_, portfolioID, _ := ts.seedBook(t)

	resp, raw := ts.do(t, http.MethodPost, "/api/portfolios/"+portfolioID+"/members", map[string]any{
		"user_id": "user-1",
		"role":    "Operator",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	member := decode[api.MemberDTO](t, raw)
	assert.Equal(t, "operator", member.Role, "role is normalized")

	resp, raw = ts.do(t, http.MethodGet, "/api/portfolios/"+portfolioID+"/members", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	members := decode[[]api.MemberDTO](t, raw)
	require.Len(t, members, 1)

	resp, _ = ts.do(t, http.MethodDelete, "/api/portfolios/"+portfolioID+"/members/user-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_ScenarioSeed(t *testing.T) {
	ts := newTestServer(t)

	resp, raw := ts.do(t, http.MethodPost, "/api/scenarios/seed", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	summary := decode[api.PortfolioSummaryDTO](t, raw)

	assert.Equal(t, 2, summary.LoanCount)
	assert.Equal(t, 2, summary.ActiveClients)
	assert.Equal(t, "120", summary.CollectedTotal)
}
