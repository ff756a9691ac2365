package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"stepperslife/internal/status"
	"stepperslife/models"
	"stepperslife/monitoring"
	"stepperslife/utils"
)

type Outcome string

const (
	OutcomeIssued           Outcome = "issued"
	OutcomeAlreadyIssued    Outcome = "already_issued"
	OutcomeOrphaned         Outcome = "orphaned"
	OutcomeAmountMismatch   Outcome = "amount_mismatch"
	OutcomeCapacityExceeded Outcome = "capacity_exceeded"
)

// IssuanceResult is the terminal state of one delivery through the pipeline.
type IssuanceResult struct {
	Outcome Outcome          `json:"outcome"`
	Tickets []*models.Ticket `json:"tickets,omitempty"`
	Intent  *models.PurchaseIntent `json:"-"`
}

// IntentResolver is the slice of the intent store the engine needs.
type IntentResolver interface {
	ResolveByProviderPaymentID(ctx context.Context, provider models.Provider, providerPaymentID string) (*models.PurchaseIntent, error)
}

// IssuanceStore is the transactional ticket store contract. IssueAtomically
// must create the per-intent guard row, the tickets and the intent consume in
// one transaction, and return status.ErrAlreadyIssued when the guard already
// exists.
type IssuanceStore interface {
	TicketsByIntent(ctx context.Context, intentID string) ([]*models.Ticket, error)
	EventByID(ctx context.Context, eventID string) (*models.Event, error)
	IssueAtomically(ctx context.Context, intent *models.PurchaseIntent, confirmation *models.PaymentConfirmation) ([]*models.Ticket, error)
	RecordOrphan(ctx context.Context, confirmation *models.PaymentConfirmation) error
	FlagPayment(ctx context.Context, flag *models.FlaggedPayment) error
}

// releaseLockScript deletes the lock only when it still carries our token.
const releaseLockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// IssuanceEngine turns a verified payment confirmation into tickets, exactly
// once per (provider, provider payment id). The Redis lock is a fast path
// that keeps duplicate deliveries from doing redundant work; correctness
// rests on the store's unique issuance constraint, which survives restarts.
type IssuanceEngine struct {
	intents    IntentResolver
	store      IssuanceStore
	redis      *redis.Client
	lockExpiry time.Duration
}

func NewIssuanceEngine(intents IntentResolver, store IssuanceStore, redisClient *redis.Client, lockExpiry time.Duration) *IssuanceEngine {
	return &IssuanceEngine{
		intents:    intents,
		store:      store,
		redis:      redisClient,
		lockExpiry: lockExpiry,
	}
}

// Issue runs the reconciliation state machine for one confirmation.
func (e *IssuanceEngine) Issue(ctx context.Context, confirmation *models.PaymentConfirmation) (*IssuanceResult, error) {
	start := time.Now()
	result, err := e.issue(ctx, confirmation)
	if err != nil {
		monitoring.ObserveIssuance("error", time.Since(start))
		return nil, err
	}

	monitoring.ObserveIssuance(string(result.Outcome), time.Since(start))
	return result, nil
}

func (e *IssuanceEngine) issue(ctx context.Context, confirmation *models.PaymentConfirmation) (*IssuanceResult, error) {
	intent, err := e.intents.ResolveByProviderPaymentID(ctx, confirmation.Provider, confirmation.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, status.ErrIntentNotFound) {
			if orphanErr := e.store.RecordOrphan(ctx, confirmation); orphanErr != nil {
				log.Printf("Error recording orphaned confirmation %s/%s: %v",
					confirmation.Provider, confirmation.ProviderPaymentID, orphanErr)
			}
			monitoring.TrackOrphan(string(confirmation.Provider))
			return &IssuanceResult{Outcome: OutcomeOrphaned}, nil
		}
		return nil, err
	}

	// Fast-path idempotency check before taking any lock.
	existing, err := e.store.TicketsByIntent(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &IssuanceResult{Outcome: OutcomeAlreadyIssued, Tickets: existing, Intent: intent}, nil
	}

	if confirmation.Amount != intent.ExpectedTotal() {
		flag := &models.FlaggedPayment{
			Provider:          confirmation.Provider,
			ProviderPaymentID: confirmation.ProviderPaymentID,
			IntentID:          intent.ID,
			Reason:            models.FlagAmountMismatch,
			ExpectedAmount:    intent.ExpectedTotal(),
			ReceivedAmount:    confirmation.Amount,
		}
		if err := e.store.FlagPayment(ctx, flag); err != nil {
			return nil, err
		}
		monitoring.TrackFlaggedPayment(string(models.FlagAmountMismatch))
		return &IssuanceResult{Outcome: OutcomeAmountMismatch, Intent: intent}, nil
	}

	event, err := e.store.EventByID(ctx, intent.EventID)
	if err != nil {
		return nil, err
	}

	if event.Status == "cancelled" || event.Remaining() < intent.Quantity {
		flag := &models.FlaggedPayment{
			Provider:          confirmation.Provider,
			ProviderPaymentID: confirmation.ProviderPaymentID,
			IntentID:          intent.ID,
			Reason:            models.FlagCapacityExceeded,
			ExpectedAmount:    intent.ExpectedTotal(),
			ReceivedAmount:    confirmation.Amount,
		}
		if err := e.store.FlagPayment(ctx, flag); err != nil {
			return nil, err
		}
		monitoring.TrackFlaggedPayment(string(models.FlagCapacityExceeded))
		return &IssuanceResult{Outcome: OutcomeCapacityExceeded, Intent: intent}, nil
	}

	lockToken := e.acquireLock(ctx, intent.ID)
	if lockToken != "" {
		defer e.releaseLock(ctx, intent.ID, lockToken)
	}

	tickets, err := e.store.IssueAtomically(ctx, intent, confirmation)
	if err != nil {
		if errors.Is(err, status.ErrAlreadyIssued) {
			// Lost the race; the winner's tickets are the canonical set.
			existing, readErr := e.store.TicketsByIntent(ctx, intent.ID)
			if readErr != nil {
				return nil, readErr
			}
			if len(existing) == 0 {
				// No winner exists, so the guard conflict was not a real
				// race. Propagate so the provider retries the delivery.
				return nil, err
			}
			return &IssuanceResult{Outcome: OutcomeAlreadyIssued, Tickets: existing, Intent: intent}, nil
		}
		if errors.Is(err, errCapacityRace) {
			flag := &models.FlaggedPayment{
				Provider:          confirmation.Provider,
				ProviderPaymentID: confirmation.ProviderPaymentID,
				IntentID:          intent.ID,
				Reason:            models.FlagCapacityExceeded,
				ExpectedAmount:    intent.ExpectedTotal(),
				ReceivedAmount:    confirmation.Amount,
			}
			if flagErr := e.store.FlagPayment(ctx, flag); flagErr != nil {
				return nil, flagErr
			}
			monitoring.TrackFlaggedPayment(string(models.FlagCapacityExceeded))
			return &IssuanceResult{Outcome: OutcomeCapacityExceeded, Intent: intent}, nil
		}
		return nil, err
	}

	monitoring.TrackTicketsIssued(string(confirmation.Provider), len(tickets))
	return &IssuanceResult{Outcome: OutcomeIssued, Tickets: tickets, Intent: intent}, nil
}

// acquireLock takes the per-intent issuance lock. An empty token means the
// lock was unavailable; the caller proceeds anyway and lets the store's
// unique constraint arbitrate.
func (e *IssuanceEngine) acquireLock(ctx context.Context, intentID string) string {
	token, err := utils.GenerateCode(8)
	if err != nil {
		return ""
	}

	key := fmt.Sprintf("lock:issuance:%s", intentID)
	ok, err := e.redis.SetNX(ctx, key, token, e.lockExpiry).Result()
	if err != nil || !ok {
		return ""
	}

	return token
}

func (e *IssuanceEngine) releaseLock(ctx context.Context, intentID, token string) {
	key := fmt.Sprintf("lock:issuance:%s", intentID)
	if err := e.redis.Eval(ctx, releaseLockScript, []string{key}, token).Err(); err != nil {
		log.Printf("Error releasing issuance lock for intent %s: %v", intentID, err)
	}
}
