package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stepperslife/internal/status"
	"stepperslife/models"
)

func TestFeeSchedule_Apply(t *testing.T) {
	tests := []struct {
		name       string
		schedule   FeeSchedule
		gross      int64
		tickets    int
		wantFee    int64
		wantPayout int64
	}{
		{"one percent", FeeSchedule{Bps: 100}, 5000, 2, 50, 4950},
		{"one percent rounds half up", FeeSchedule{Bps: 100}, 4950, 1, 50, 4900},
		{"flat per ticket", FeeSchedule{FlatPerTicket: 30}, 5000, 2, 60, 4940},
		{"combined", FeeSchedule{Bps: 100, FlatPerTicket: 30}, 5000, 2, 110, 4890},
		{"zero gross", FeeSchedule{Bps: 100}, 0, 1, 0, 0},
		{"fee clamped to gross", FeeSchedule{FlatPerTicket: 500}, 100, 1, 100, 0},
		{"no schedule", FeeSchedule{}, 5000, 2, 0, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, payout := tt.schedule.Apply(tt.gross, tt.tickets)

			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantPayout, payout)

			// Reconciliation invariant: split always sums back to gross.
			assert.Equal(t, tt.gross, fee+payout)
		})
	}
}

type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) Create(ctx context.Context, tx *models.PlatformTransaction) (*models.PlatformTransaction, error) {
	args := m.Called(ctx, tx)
	if created, ok := args.Get(0).(*models.PlatformTransaction); ok {
		return created, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerStore) FindByProviderPaymentID(ctx context.Context, provider models.Provider, providerPaymentID string) (*models.PlatformTransaction, error) {
	args := m.Called(ctx, provider, providerPaymentID)
	if tx, ok := args.Get(0).(*models.PlatformTransaction); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestLedgerRecorder_RecordsCompletedTransaction(t *testing.T) {
	store := &MockLedgerStore{}
	recorder := NewLedgerRecorder(store, FeeSchedule{Bps: 100}, 3, time.Millisecond)
	ctx := context.Background()

	intent := testIntent()
	confirmation := testConfirmation(5000)
	tickets := testTickets()

	store.On("FindByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(nil, sql.ErrNoRows)
	store.On("Create", ctx, mock.MatchedBy(func(tx *models.PlatformTransaction) bool {
		return tx.GrossAmount == 5000 &&
			tx.PlatformFee == 50 &&
			tx.SellerPayout == 4950 &&
			tx.PlatformFee+tx.SellerPayout == tx.GrossAmount &&
			tx.Status == models.TransactionCompleted &&
			len(tx.TicketIDs) == 2
	})).Return(&models.PlatformTransaction{ID: "tx-1", GrossAmount: 5000, PlatformFee: 50, SellerPayout: 4950}, nil)

	created, err := recorder.Record(ctx, tickets, confirmation, intent)

	require.NoError(t, err)
	assert.Equal(t, "tx-1", created.ID)
	store.AssertExpectations(t)
}

func TestLedgerRecorder_DedupesOnProviderPaymentID(t *testing.T) {
	store := &MockLedgerStore{}
	recorder := NewLedgerRecorder(store, FeeSchedule{Bps: 100}, 3, time.Millisecond)
	ctx := context.Background()

	existing := &models.PlatformTransaction{ID: "tx-1", ProviderPaymentID: "sq-payment-1"}
	store.On("FindByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(existing, nil)

	created, err := recorder.Record(ctx, testTickets(), testConfirmation(5000), testIntent())

	require.NoError(t, err)
	assert.Equal(t, existing, created)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLedgerRecorder_RetriesTransientFailures(t *testing.T) {
	store := &MockLedgerStore{}
	recorder := NewLedgerRecorder(store, FeeSchedule{Bps: 100}, 3, time.Millisecond)
	ctx := context.Background()

	store.On("FindByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(nil, sql.ErrNoRows)
	store.On("Create", ctx, mock.Anything).Return(nil, errors.New("database locked")).Twice()
	store.On("Create", ctx, mock.Anything).Return(&models.PlatformTransaction{ID: "tx-1"}, nil).Once()

	created, err := recorder.Record(ctx, testTickets(), testConfirmation(5000), testIntent())

	require.NoError(t, err)
	assert.Equal(t, "tx-1", created.ID)
	store.AssertNumberOfCalls(t, "Create", 3)
}

func TestLedgerRecorder_TerminalFailureDoesNotPanic(t *testing.T) {
	store := &MockLedgerStore{}
	recorder := NewLedgerRecorder(store, FeeSchedule{Bps: 100}, 2, time.Millisecond)
	ctx := context.Background()

	store.On("FindByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(nil, sql.ErrNoRows)
	store.On("Create", ctx, mock.Anything).Return(nil, errors.New("database locked"))

	_, err := recorder.Record(ctx, testTickets(), testConfirmation(5000), testIntent())

	assert.ErrorIs(t, err, status.ErrLedgerWriteFailed)
}

func TestLedgerRecorder_RaceLoserReturnsWinnersEntry(t *testing.T) {
	store := &MockLedgerStore{}
	recorder := NewLedgerRecorder(store, FeeSchedule{Bps: 100}, 2, time.Millisecond)
	ctx := context.Background()

	winner := &models.PlatformTransaction{ID: "tx-1", ProviderPaymentID: "sq-payment-1"}

	// Not found at first, the concurrent writer lands it, our creates hit the
	// unique index, and the final re-read returns the winner's entry.
	store.On("FindByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(nil, sql.ErrNoRows).Once()
	store.On("Create", ctx, mock.Anything).Return(nil, errors.New("UNIQUE constraint failed"))
	store.On("FindByProviderPaymentID", ctx, models.ProviderSquare, "sq-payment-1").Return(winner, nil).Once()

	created, err := recorder.Record(ctx, testTickets(), testConfirmation(5000), testIntent())

	require.NoError(t, err)
	assert.Equal(t, winner, created)
}
