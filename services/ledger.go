package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"stepperslife/internal/status"
	"stepperslife/models"
	"stepperslife/monitoring"
	"stepperslife/utils"
)

// FeeSchedule is the platform's revenue split, applied with integer
// minor-unit arithmetic. Apply is pure so any ledger entry can be re-derived
// for audit.
type FeeSchedule struct {
	Bps           int64 // basis points of gross
	FlatPerTicket int64 // minor units per issued ticket
}

// Apply splits gross into (platformFee, sellerPayout). The two always sum
// back to gross; the fee is clamped so the payout never goes negative.
func (f FeeSchedule) Apply(gross int64, ticketCount int) (int64, int64) {
	pct := decimal.NewFromInt(gross).
		Mul(decimal.NewFromInt(f.Bps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()

	fee := pct + f.FlatPerTicket*int64(ticketCount)
	if fee > gross {
		fee = gross
	}
	if fee < 0 {
		fee = 0
	}

	return fee, gross - fee
}

// LedgerStore is the platform_transactions persistence contract. Create must
// fail when an entry for the same (provider, provider payment id) exists;
// FindByProviderPaymentID retrieves it for the dedup path.
type LedgerStore interface {
	Create(ctx context.Context, tx *models.PlatformTransaction) (*models.PlatformTransaction, error)
	FindByProviderPaymentID(ctx context.Context, provider models.Provider, providerPaymentID string) (*models.PlatformTransaction, error)
}

// LedgerRecorder appends exactly one immutable platform transaction per
// issuance. Transient write failures are retried with backoff; a terminal
// failure is reported but never unwinds already-issued tickets.
type LedgerRecorder struct {
	store     LedgerStore
	fees      FeeSchedule
	attempts  int
	retryBase time.Duration
}

func NewLedgerRecorder(store LedgerStore, fees FeeSchedule, attempts int, retryBase time.Duration) *LedgerRecorder {
	return &LedgerRecorder{
		store:     store,
		fees:      fees,
		attempts:  attempts,
		retryBase: retryBase,
	}
}

// Record writes the ledger entry for one successful issuance. Re-invocation
// for the same provider payment id returns the existing entry unchanged.
func (r *LedgerRecorder) Record(ctx context.Context, tickets []*models.Ticket, confirmation *models.PaymentConfirmation, intent *models.PurchaseIntent) (*models.PlatformTransaction, error) {
	existing, err := r.store.FindByProviderPaymentID(ctx, confirmation.Provider, confirmation.ProviderPaymentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	fee, payout := r.fees.Apply(confirmation.Amount, len(tickets))

	ticketIDs := make([]string, len(tickets))
	for i, t := range tickets {
		ticketIDs[i] = t.ID
	}

	entry := &models.PlatformTransaction{
		EventID:           intent.EventID,
		IntentID:          intent.ID,
		BuyerID:           intent.BuyerID,
		TicketIDs:         ticketIDs,
		GrossAmount:       confirmation.Amount,
		PlatformFee:       fee,
		SellerPayout:      payout,
		Currency:          confirmation.Currency,
		Provider:          confirmation.Provider,
		ProviderPaymentID: confirmation.ProviderPaymentID,
		Status:            models.TransactionCompleted,
	}

	var created *models.PlatformTransaction
	attempt := 0
	err = utils.RetryWithBackoff(ctx, r.attempts, r.retryBase, func() error {
		if attempt > 0 {
			monitoring.TrackLedgerRetry()
		}
		attempt++

		var createErr error
		created, createErr = r.store.Create(ctx, entry)
		return createErr
	})
	if err != nil {
		// The winner of a concurrent race may have landed the entry while we
		// were retrying; the unique payment id index makes that visible.
		if existing, findErr := r.store.FindByProviderPaymentID(ctx, confirmation.Provider, confirmation.ProviderPaymentID); findErr == nil && existing != nil {
			return existing, nil
		}
		log.Printf("Ledger write failed for %s/%s after %d attempts: %v",
			confirmation.Provider, confirmation.ProviderPaymentID, r.attempts, err)
		return nil, fmt.Errorf("%w: %v", status.ErrLedgerWriteFailed, err)
	}

	return created, nil
}

// PBLedgerStore persists platform transactions as PocketBase records, with a
// unique index on (provider, provider_payment_id).
type PBLedgerStore struct {
	app core.App
}

func NewPBLedgerStore(app core.App) *PBLedgerStore {
	return &PBLedgerStore{app: app}
}

func (s *PBLedgerStore) Create(ctx context.Context, tx *models.PlatformTransaction) (*models.PlatformTransaction, error) {
	collection, err := s.app.FindCollectionByNameOrId("platform_transactions")
	if err != nil {
		return nil, err
	}

	ticketIDs, err := json.Marshal(tx.TicketIDs)
	if err != nil {
		return nil, err
	}

	record := core.NewRecord(collection)
	record.Set("event", tx.EventID)
	record.Set("intent", tx.IntentID)
	record.Set("buyer", tx.BuyerID)
	record.Set("ticket_ids", string(ticketIDs))
	record.Set("gross_amount", tx.GrossAmount)
	record.Set("platform_fee", tx.PlatformFee)
	record.Set("seller_payout", tx.SellerPayout)
	record.Set("currency", tx.Currency)
	record.Set("provider", string(tx.Provider))
	record.Set("provider_payment_id", tx.ProviderPaymentID)
	record.Set("status", string(tx.Status))

	if err := s.app.Save(record); err != nil {
		return nil, err
	}

	return transactionFromRecord(record), nil
}

func (s *PBLedgerStore) FindByProviderPaymentID(ctx context.Context, provider models.Provider, providerPaymentID string) (*models.PlatformTransaction, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"platform_transactions",
		"provider = {:provider} && provider_payment_id = {:paymentId}",
		dbx.Params{
			"provider":  string(provider),
			"paymentId": providerPaymentID,
		},
	)
	if err != nil {
		return nil, err
	}

	return transactionFromRecord(record), nil
}

// MarkRefunded flips the ledger entry for a payment to refunded. A payment
// with no entry (refund raced the issuance, or the write terminally failed) is
// a no-op.
func (s *PBLedgerStore) MarkRefunded(ctx context.Context, provider models.Provider, providerPaymentID string) error {
	record, err := s.app.FindFirstRecordByFilter(
		"platform_transactions",
		"provider = {:provider} && provider_payment_id = {:paymentId}",
		dbx.Params{
			"provider":  string(provider),
			"paymentId": providerPaymentID,
		},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	record.Set("status", string(models.TransactionRefunded))
	return s.app.Save(record)
}

func transactionFromRecord(record *core.Record) *models.PlatformTransaction {
	var ticketIDs []string
	_ = json.Unmarshal([]byte(record.GetString("ticket_ids")), &ticketIDs)

	return &models.PlatformTransaction{
		ID:                record.Id,
		EventID:           record.GetString("event"),
		IntentID:          record.GetString("intent"),
		BuyerID:           record.GetString("buyer"),
		TicketIDs:         ticketIDs,
		GrossAmount:       int64(record.GetFloat("gross_amount")),
		PlatformFee:       int64(record.GetFloat("platform_fee")),
		SellerPayout:      int64(record.GetFloat("seller_payout")),
		Currency:          record.GetString("currency"),
		Provider:          models.Provider(record.GetString("provider")),
		ProviderPaymentID: record.GetString("provider_payment_id"),
		Status:            models.TransactionStatus(record.GetString("status")),
		CreatedAt:         record.GetDateTime("created").Time(),
	}
}
