package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stepperslife/internal/status"
	"stepperslife/models"
)

type MockIntentResolver struct {
	mock.Mock
}

func (m *MockIntentResolver) ResolveByProviderPaymentID(ctx context.Context, provider models.Provider, providerPaymentID string) (*models.PurchaseIntent, error) {
	args := m.Called(ctx, provider, providerPaymentID)
	if intent, ok := args.Get(0).(*models.PurchaseIntent); ok {
		return intent, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockIssuanceStore struct {
	mock.Mock
}

func (m *MockIssuanceStore) TicketsByIntent(ctx context.Context, intentID string) ([]*models.Ticket, error) {
	args := m.Called(ctx, intentID)
	if tickets, ok := args.Get(0).([]*models.Ticket); ok {
		return tickets, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIssuanceStore) EventByID(ctx context.Context, eventID string) (*models.Event, error) {
	args := m.Called(ctx, eventID)
	if event, ok := args.Get(0).(*models.Event); ok {
		return event, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIssuanceStore) IssueAtomically(ctx context.Context, intent *models.PurchaseIntent, confirmation *models.PaymentConfirmation) ([]*models.Ticket, error) {
	args := m.Called(ctx, intent, confirmation)
	if tickets, ok := args.Get(0).([]*models.Ticket); ok {
		return tickets, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIssuanceStore) RecordOrphan(ctx context.Context, confirmation *models.PaymentConfirmation) error {
	args := m.Called(ctx, confirmation)
	return args.Error(0)
}

func (m *MockIssuanceStore) FlagPayment(ctx context.Context, flag *models.FlaggedPayment) error {
	args := m.Called(ctx, flag)
	return args.Error(0)
}

func setupTestEngine() (*IssuanceEngine, *MockIntentResolver, *MockIssuanceStore) {
	db, _ := redismock.NewClientMock()
	intents := &MockIntentResolver{}
	store := &MockIssuanceStore{}

	// The lock is a fast path; the mocked Redis client rejects the SetNX,
	// which exercises the proceed-without-lock branch.
	engine := NewIssuanceEngine(intents, store, db, 30*time.Second)

	return engine, intents, store
}

func testIntent() *models.PurchaseIntent {
	return &models.PurchaseIntent{
		ID:                "intent-1",
		EventID:           "event-1",
		BuyerID:           "buyer-1",
		SellerID:          "seller-1",
		Quantity:          2,
		UnitAmount:        2500,
		Currency:          "USD",
		Provider:          models.ProviderSquare,
		ProviderPaymentID: "sq-payment-1",
		Status:            models.IntentPending,
	}
}

func testConfirmation(amount int64) *models.PaymentConfirmation {
	return &models.PaymentConfirmation{
		Provider:          models.ProviderSquare,
		ProviderPaymentID: "sq-payment-1",
		Amount:            amount,
		Currency:          "USD",
		BuyerEmail:        "buyer@example.com",
		ReceivedAt:        time.Now(),
	}
}

func testTickets() []*models.Ticket {
	return []*models.Ticket{
		{ID: "t1", EventID: "event-1", IntentID: "intent-1", Number: 1, Code: "ABC123", Status: models.TicketValid, Amount: 2500},
		{ID: "t2", EventID: "event-1", IntentID: "intent-1", Number: 2, Code: "DEF456", Status: models.TicketValid, Amount: 2500},
	}
}

func TestIssue_Success(t *testing.T) {
	engine, intents, store := setupTestEngine()
	ctx := context.Background()
	intent := testIntent()
	confirmation := testConfirmation(5000)
	tickets := testTickets()

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(intent, nil)
	store.On("TicketsByIntent", ctx, "intent-1").Return([]*models.Ticket{}, nil)
	store.On("EventByID", ctx, "event-1").Return(&models.Event{ID: "event-1", Capacity: 100, Sold: 10, Status: "published"}, nil)
	store.On("IssueAtomically", ctx, intent, confirmation).Return(tickets, nil)

	result, err := engine.Issue(ctx, confirmation)

	require.NoError(t, err)
	assert.Equal(t, OutcomeIssued, result.Outcome)
	assert.Len(t, result.Tickets, 2)
	store.AssertExpectations(t)
}

func TestIssue_Orphaned(t *testing.T) {
	engine, intents, store := setupTestEngine()
	ctx := context.Background()
	confirmation := testConfirmation(5000)

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(nil, status.ErrIntentNotFound)
	store.On("RecordOrphan", ctx, confirmation).Return(nil)

	result, err := engine.Issue(ctx, confirmation)

	require.NoError(t, err)
	assert.Equal(t, OutcomeOrphaned, result.Outcome)
	assert.Empty(t, result.Tickets)
	store.AssertNotCalled(t, "IssueAtomically", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssue_AlreadyIssued_FastPath(t *testing.T) {
	engine, intents, store := setupTestEngine()
	ctx := context.Background()
	intent := testIntent()
	confirmation := testConfirmation(5000)
	tickets := testTickets()

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(intent, nil)
	store.On("TicketsByIntent", ctx, "intent-1").Return(tickets, nil)

	result, err := engine.Issue(ctx, confirmation)

	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyIssued, result.Outcome)
	assert.Equal(t, tickets, result.Tickets)
	store.AssertNotCalled(t, "IssueAtomically", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssue_AlreadyIssued_LostRace(t *testing.T) {
	engine, intents, store := setupTestEngine()
	ctx := context.Background()
	intent := testIntent()
	confirmation := testConfirmation(5000)
	tickets := testTickets()

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(intent, nil)
	// Nothing issued at check time, but the concurrent delivery lands first.
	store.On("TicketsByIntent", ctx, "intent-1").Return([]*models.Ticket{}, nil).Once()
	store.On("EventByID", ctx, "event-1").Return(&models.Event{ID: "event-1", Capacity: 100, Sold: 10, Status: "published"}, nil)
	store.On("IssueAtomically", ctx, intent, confirmation).Return(nil, status.ErrAlreadyIssued)
	store.On("TicketsByIntent", ctx, "intent-1").Return(tickets, nil).Once()

	result, err := engine.Issue(ctx, confirmation)

	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyIssued, result.Outcome)
	assert.Equal(t, tickets, result.Tickets)
}

func TestIssue_AmountMismatch(t *testing.T) {
	engine, intents, store := setupTestEngine()
	ctx := context.Background()
	intent := testIntent()
	confirmation := testConfirmation(4000) // intent expects 5000

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(intent, nil)
	store.On("TicketsByIntent", ctx, "intent-1").Return([]*models.Ticket{}, nil)
	store.On("FlagPayment", ctx, mock.MatchedBy(func(flag *models.FlaggedPayment) bool {
		return flag.Reason == models.FlagAmountMismatch &&
			flag.ExpectedAmount == 5000 &&
			flag.ReceivedAmount == 4000
	})).Return(nil)

	result, err := engine.Issue(ctx, confirmation)

	require.NoError(t, err)
	assert.Equal(t, OutcomeAmountMismatch, result.Outcome)
	assert.Empty(t, result.Tickets)
	store.AssertNotCalled(t, "IssueAtomically", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssue_CapacityExceeded(t *testing.T) {
	engine, intents, store := setupTestEngine()
	ctx := context.Background()
	intent := testIntent()
	confirmation := testConfirmation(5000)

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(intent, nil)
	store.On("TicketsByIntent", ctx, "intent-1").Return([]*models.Ticket{}, nil)
	store.On("EventByID", ctx, "event-1").Return(&models.Event{ID: "event-1", Capacity: 100, Sold: 99, Status: "published"}, nil)
	store.On("FlagPayment", ctx, mock.MatchedBy(func(flag *models.FlaggedPayment) bool {
		return flag.Reason == models.FlagCapacityExceeded
	})).Return(nil)

	result, err := engine.Issue(ctx, confirmation)

	require.NoError(t, err)
	assert.Equal(t, OutcomeCapacityExceeded, result.Outcome)
	assert.Empty(t, result.Tickets)
	store.AssertNotCalled(t, "IssueAtomically", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssue_CancelledEvent(t *testing.T) {
	engine, intents, store := setupTestEngine()
	ctx := context.Background()
	intent := testIntent()
	confirmation := testConfirmation(5000)

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(intent, nil)
	store.On("TicketsByIntent", ctx, "intent-1").Return([]*models.Ticket{}, nil)
	store.On("EventByID", ctx, "event-1").Return(&models.Event{ID: "event-1", Capacity: 100, Sold: 0, Status: "cancelled"}, nil)
	store.On("FlagPayment", ctx, mock.Anything).Return(nil)

	result, err := engine.Issue(ctx, confirmation)

	require.NoError(t, err)
	assert.Equal(t, OutcomeCapacityExceeded, result.Outcome)
}

func TestIssue_CapacityRaceInsideTransaction(t *testing.T) {
	engine, intents, store := setupTestEngine()
	ctx := context.Background()
	intent := testIntent()
	confirmation := testConfirmation(5000)

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(intent, nil)
	store.On("TicketsByIntent", ctx, "intent-1").Return([]*models.Ticket{}, nil)
	store.On("EventByID", ctx, "event-1").Return(&models.Event{ID: "event-1", Capacity: 100, Sold: 98, Status: "published"}, nil)
	store.On("IssueAtomically", ctx, intent, confirmation).Return(nil, errCapacityRace)
	store.On("FlagPayment", ctx, mock.MatchedBy(func(flag *models.FlaggedPayment) bool {
		return flag.Reason == models.FlagCapacityExceeded
	})).Return(nil)

	result, err := engine.Issue(ctx, confirmation)

	require.NoError(t, err)
	assert.Equal(t, OutcomeCapacityExceeded, result.Outcome)
}

func TestIssue_RepeatedOrphanStaysCheap(t *testing.T) {
	engine, intents, store := setupTestEngine()
	ctx := context.Background()
	confirmation := testConfirmation(5000)

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(nil, status.ErrIntentNotFound)
	store.On("RecordOrphan", ctx, confirmation).Return(nil)

	for i := 0; i < 3; i++ {
		result, err := engine.Issue(ctx, confirmation)
		require.NoError(t, err)
		assert.Equal(t, OutcomeOrphaned, result.Outcome)
	}

	store.AssertNumberOfCalls(t, "RecordOrphan", 3)
	store.AssertNotCalled(t, "IssueAtomically", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssue_GuardConflictWithoutWinnerPropagatesError(t *testing.T) {
	engine, intents, store := setupTestEngine()
	ctx := context.Background()
	intent := testIntent()
	confirmation := testConfirmation(5000)

	// A guard save failure surfaced as the already-issued sentinel, but the
	// re-read finds no winner: the transaction rolled back without issuing.
	// The delivery must fail so the provider retries it, never ack as an
	// idempotent success with zero tickets.
	saveErr := fmt.Errorf("%w: %v", status.ErrAlreadyIssued, "database is locked")

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(intent, nil)
	store.On("TicketsByIntent", ctx, "intent-1").Return([]*models.Ticket{}, nil)
	store.On("EventByID", ctx, "event-1").Return(&models.Event{ID: "event-1", Capacity: 100, Sold: 10, Status: "published"}, nil)
	store.On("IssueAtomically", ctx, intent, confirmation).Return(nil, saveErr)

	result, err := engine.Issue(ctx, confirmation)

	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrAlreadyIssued)
	assert.Nil(t, result)
}
