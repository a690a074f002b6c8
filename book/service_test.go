package book_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/credit-engine/book"
	"github.com/warp/credit-engine/engine"
	"github.com/warp/credit-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) *book.Service {
	t.Helper()
	return book.NewService(store.NewMemoryBook(), store.NewMemory())
}

func newClient(name, nationalID string) book.NewClient {
	return book.NewClient{Name: name, NationalID: nationalID}
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestService_CreateClient(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	client, err := svc.CreateClient(ctx, book.NewClient{
		Name:       "Maria Fernandez",
		NationalID: "001-1234567-8",
		Phone:      "809-555-0101",
		Guarantor:  book.Guarantor{Name: "Pedro", Surname: "Fernandez"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, client.ID)
	assert.True(t, client.Active, "new clients start active")

	stored, err := svc.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria Fernandez", stored.Name)
	assert.Equal(t, "Pedro", stored.Guarantor.Name)
}

func TestService_CreateClient_RequiresIdentity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateClient(ctx, newClient("", "001"))
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = svc.CreateClient(ctx, newClient("Maria", " "))
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestService_CreateClient_DuplicateNationalID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateClient(ctx, newClient("Maria", "001-1234567-8"))
	require.NoError(t, err)

	_, err = svc.CreateClient(ctx, newClient("Other Maria", "001-1234567-8"))
	assert.ErrorIs(t, err, book.ErrDuplicateNationalID)
}

func TestService_UpdateClientContact_LeavesIdentityAlone(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	client, err := svc.CreateClient(ctx, newClient("Maria", "001"))
	require.NoError(t, err)

	phone := "809-555-0199"
	inactive := false
	updated, err := svc.UpdateClientContact(ctx, client.ID, book.ContactUpdate{
		Phone:  &phone,
		Active: &inactive,
	})
	require.NoError(t, err)

	assert.Equal(t, "809-555-0199", updated.Phone)
	assert.False(t, updated.Active)
	assert.Equal(t, "Maria", updated.Name)
	assert.Equal(t, "001", updated.NationalID)
}

// =============================================================================
// PORTFOLIOS AND MEMBERSHIP
// =============================================================================

func TestService_PortfolioMembership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	portfolio, err := svc.CreatePortfolio(ctx, "Barrio Centro", "")
	require.NoError(t, err)

	_, err = svc.AssignMember(ctx, portfolio.ID, "user-1", book.RoleOperator)
	require.NoError(t, err)

	// Assigning again changes the role, it does not duplicate.
	_, err = svc.AssignMember(ctx, portfolio.ID, "user-1", book.RoleManager)
	require.NoError(t, err)

	members, err := svc.Members(ctx, portfolio.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, book.RoleManager, members[0].Role)

	require.NoError(t, svc.RemoveMember(ctx, portfolio.ID, "user-1"))
	members, err = svc.Members(ctx, portfolio.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestService_AssignMember_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	portfolio, err := svc.CreatePortfolio(ctx, "Barrio Centro", "")
	require.NoError(t, err)

	_, err = svc.AssignMember(ctx, portfolio.ID, "", book.RoleManager)
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = svc.AssignMember(ctx, portfolio.ID, "user-1", book.Role("owner"))
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = svc.AssignMember(ctx, engine.NewPortfolioID(), "user-1", book.RoleManager)
	assert.ErrorIs(t, err, engine.ErrPortfolioNotFound)
}

func TestService_DuplicatePortfolioName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePortfolio(ctx, "Barrio Centro", "")
	require.NoError(t, err)

	_, err = svc.CreatePortfolio(ctx, "Barrio Centro", "second")
	assert.ErrorIs(t, err, book.ErrDuplicatePortfolioName)
}

// =============================================================================
// RATES
// =============================================================================

func TestService_CreateRate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rate, err := svc.CreateRate(ctx, "standard-20", engine.MustDecimal("0.20"))
	require.NoError(t, err)
	assert.True(t, rate.Fraction.Equal(engine.MustDecimal("0.20")))

	_, err = svc.CreateRate(ctx, "", engine.MustDecimal("0.20"))
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = svc.CreateRate(ctx, "negative", engine.MustDecimal("-0.10"))
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

// =============================================================================
// ENGINE REGISTRY
// =============================================================================

func TestService_RegistryAnswers(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	client, err := svc.CreateClient(ctx, newClient("Maria", "001"))
	require.NoError(t, err)
	portfolio, err := svc.CreatePortfolio(ctx, "Barrio Centro", "")
	require.NoError(t, err)

	active, err := svc.ClientActive(ctx, client.ID)
	require.NoError(t, err)
	assert.True(t, active)

	inactive := false
	_, err = svc.UpdateClientContact(ctx, client.ID, book.ContactUpdate{Active: &inactive})
	require.NoError(t, err)

	active, err = svc.ClientActive(ctx, client.ID)
	require.NoError(t, err)
	assert.False(t, active)

	exists, err := svc.PortfolioExists(ctx, portfolio.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.PortfolioExists(ctx, engine.NewPortfolioID())
	require.NoError(t, err)
	assert.False(t, exists)
}
