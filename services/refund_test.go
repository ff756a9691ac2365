package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stepperslife/internal/status"
	"stepperslife/models"
)

type MockRefundTicketStore struct {
	mock.Mock
}

func (m *MockRefundTicketStore) TicketsByIntent(ctx context.Context, intentID string) ([]*models.Ticket, error) {
	args := m.Called(ctx, intentID)
	if tickets, ok := args.Get(0).([]*models.Ticket); ok {
		return tickets, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRefundTicketStore) UpdateTicketStatus(ctx context.Context, ticketID string, statusValue models.TicketStatus) error {
	args := m.Called(ctx, ticketID, statusValue)
	return args.Error(0)
}

type MockRefundLedger struct {
	mock.Mock
}

func (m *MockRefundLedger) MarkRefunded(ctx context.Context, provider models.Provider, providerPaymentID string) error {
	args := m.Called(ctx, provider, providerPaymentID)
	return args.Error(0)
}

func testRefund() *models.RefundConfirmation {
	return &models.RefundConfirmation{
		Provider:          models.ProviderSquare,
		ProviderPaymentID: "sq-payment-1",
		RefundID:          "sq-refund-1",
		Amount:            5000,
		Currency:          "USD",
	}
}

func TestMarkRefunded_FlipsValidAndUsedTickets(t *testing.T) {
	intents := &MockIntentResolver{}
	tickets := &MockRefundTicketStore{}
	ledger := &MockRefundLedger{}
	service := NewRefundService(intents, tickets, ledger)
	ctx := context.Background()

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(testIntent(), nil)
	tickets.On("TicketsByIntent", ctx, "intent-1").Return([]*models.Ticket{
		{ID: "t1", Status: models.TicketValid},
		{ID: "t2", Status: models.TicketUsed},
	}, nil)
	tickets.On("UpdateTicketStatus", ctx, "t1", models.TicketRefunded).Return(nil)
	tickets.On("UpdateTicketStatus", ctx, "t2", models.TicketRefunded).Return(nil)
	ledger.On("MarkRefunded", ctx, models.ProviderSquare, "sq-payment-1").Return(nil)

	err := service.MarkRefunded(ctx, testRefund())

	require.NoError(t, err)
	tickets.AssertExpectations(t)
}

func TestMarkRefunded_IdempotentOnRedelivery(t *testing.T) {
	intents := &MockIntentResolver{}
	tickets := &MockRefundTicketStore{}
	ledger := &MockRefundLedger{}
	service := NewRefundService(intents, tickets, ledger)
	ctx := context.Background()

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(testIntent(), nil)
	tickets.On("TicketsByIntent", ctx, "intent-1").Return([]*models.Ticket{
		{ID: "t1", Status: models.TicketRefunded},
		{ID: "t2", Status: models.TicketRefunded},
	}, nil)
	ledger.On("MarkRefunded", ctx, models.ProviderSquare, "sq-payment-1").Return(nil)

	err := service.MarkRefunded(ctx, testRefund())

	require.NoError(t, err)
	tickets.AssertNotCalled(t, "UpdateTicketStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkRefunded_UnknownPaymentIgnored(t *testing.T) {
	intents := &MockIntentResolver{}
	tickets := &MockRefundTicketStore{}
	ledger := &MockRefundLedger{}
	service := NewRefundService(intents, tickets, ledger)
	ctx := context.Background()

	intents.On("ResolveByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(nil, status.ErrIntentNotFound)

	err := service.MarkRefunded(ctx, testRefund())

	assert.NoError(t, err)
	tickets.AssertNotCalled(t, "TicketsByIntent", mock.Anything, mock.Anything)
	ledger.AssertNotCalled(t, "MarkRefunded", mock.Anything, mock.Anything, mock.Anything)
}
