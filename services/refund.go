package services

import (
	"context"
	"errors"
	"log"

	"stepperslife/internal/status"
	"stepperslife/models"
)

// RefundTicketStore is the slice of the ticket store the refund flow needs.
type RefundTicketStore interface {
	TicketsByIntent(ctx context.Context, intentID string) ([]*models.Ticket, error)
	UpdateTicketStatus(ctx context.Context, ticketID string, statusValue models.TicketStatus) error
}

// RefundLedger flips a payment's ledger entry to refunded.
type RefundLedger interface {
	MarkRefunded(ctx context.Context, provider models.Provider, providerPaymentID string) error
}

// RefundService applies completed provider refunds to issued tickets and the
// revenue ledger. Idempotent: already-refunded tickets are skipped, and a
// refund for an unknown payment is logged and ignored (the provider retries
// refund webhooks too).
type RefundService struct {
	intents IntentResolver
	tickets RefundTicketStore
	ledger  RefundLedger
}

func NewRefundService(intents IntentResolver, tickets RefundTicketStore, ledger RefundLedger) *RefundService {
	return &RefundService{
		intents: intents,
		tickets: tickets,
		ledger:  ledger,
	}
}

// MarkRefunded flips every ticket of the refunded payment to refunded.
// Tickets only move valid|used -> refunded; other states are left alone.
func (s *RefundService) MarkRefunded(ctx context.Context, refund *models.RefundConfirmation) error {
	intent, err := s.intents.ResolveByProviderPaymentID(ctx, refund.Provider, refund.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, status.ErrIntentNotFound) {
			log.Printf("Refund %s for unknown payment %s/%s, ignoring",
				refund.RefundID, refund.Provider, refund.ProviderPaymentID)
			return nil
		}
		return err
	}

	tickets, err := s.tickets.TicketsByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}

	for _, ticket := range tickets {
		if !ticket.CanTransitionTo(models.TicketRefunded) {
			continue
		}
		if err := s.tickets.UpdateTicketStatus(ctx, ticket.ID, models.TicketRefunded); err != nil {
			return err
		}
	}

	return s.ledger.MarkRefunded(ctx, refund.Provider, refund.ProviderPaymentID)
}
