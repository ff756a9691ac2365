package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stepperslife/models"
)

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(to, subject, htmlBody string) error {
	args := m.Called(to, subject, htmlBody)
	return args.Error(0)
}

type MockRealtimePublisher struct {
	mock.Mock
}

func (m *MockRealtimePublisher) PublishPaymentSuccess(buyerID, providerPaymentID string, ticketCodes []string) {
	m.Called(buyerID, providerPaymentID, ticketCodes)
}

func testNotification() Notification {
	return Notification{
		IntentID:          "intent-1",
		BuyerID:           "buyer-1",
		BuyerEmail:        "buyer@example.com",
		ProviderPaymentID: "sq-payment-1",
		Event: &models.Event{
			ID:       "event-1",
			Name:     "Chicago Steppers Ball",
			Venue:    "Grand Ballroom",
			StartsAt: time.Date(2026, 9, 12, 19, 0, 0, 0, time.UTC),
		},
		Tickets: testTickets(),
	}
}

func TestDispatcher_DeliversEmailAndRealtime(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	email := &MockEmailSender{}
	realtime := &MockRealtimePublisher{}

	dispatcher := NewNotificationDispatcher(email, realtime, db, 8, time.Hour)

	redisMock.ExpectSetNX("email:sent:intent-1", 1, time.Hour).SetVal(true)
	realtime.On("PublishPaymentSuccess", "buyer-1", "sq-payment-1", []string{"ABC123", "DEF456"}).Return()
	email.On("Send", "buyer@example.com", "Your tickets for Chicago Steppers Ball", mock.MatchedBy(func(body string) bool {
		return len(body) > 0
	})).Return(nil)

	dispatcher.deliver(context.Background(), testNotification())

	email.AssertExpectations(t)
	realtime.AssertExpectations(t)
	require.NoError(t, redisMock.ExpectationsWereMet())
}

func TestDispatcher_DedupesSecondDelivery(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	email := &MockEmailSender{}

	dispatcher := NewNotificationDispatcher(email, nil, db, 8, time.Hour)

	// Marker already present: another delivery already sent this email.
	redisMock.ExpectSetNX("email:sent:intent-1", 1, time.Hour).SetVal(false)

	dispatcher.deliver(context.Background(), testNotification())

	email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_EmailFailureIsSwallowed(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	email := &MockEmailSender{}

	dispatcher := NewNotificationDispatcher(email, nil, db, 8, time.Hour)

	redisMock.ExpectSetNX("email:sent:intent-1", 1, time.Hour).SetVal(true)
	email.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp unavailable"))

	// Must not panic or propagate; issuance already succeeded.
	dispatcher.deliver(context.Background(), testNotification())

	email.AssertExpectations(t)
}

func TestDispatcher_SkipsEmailWithoutAddress(t *testing.T) {
	db, _ := redismock.NewClientMock()
	email := &MockEmailSender{}
	realtime := &MockRealtimePublisher{}

	dispatcher := NewNotificationDispatcher(email, realtime, db, 8, time.Hour)

	notification := testNotification()
	notification.BuyerEmail = ""

	realtime.On("PublishPaymentSuccess", "buyer-1", "sq-payment-1", mock.Anything).Return()

	dispatcher.deliver(context.Background(), notification)

	email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	realtime.AssertExpectations(t)
}

func TestDispatcher_QueueFullDropsInsteadOfBlocking(t *testing.T) {
	db, _ := redismock.NewClientMock()
	dispatcher := NewNotificationDispatcher(&MockEmailSender{}, nil, db, 1, time.Hour)

	// Worker not started; second dispatch must not block.
	done := make(chan struct{})
	go func() {
		dispatcher.Dispatch(testNotification())
		dispatcher.Dispatch(testNotification())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
}

func TestRenderConfirmationEmail(t *testing.T) {
	body, err := renderConfirmationEmail(testNotification())
	require.NoError(t, err)

	assert.Contains(t, body, "Chicago Steppers Ball")
	assert.Contains(t, body, "Grand Ballroom")
	assert.Contains(t, body, "ABC123")
	assert.Contains(t, body, "DEF456")
}
