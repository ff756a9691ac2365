package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/redis/go-redis/v9"

	"stepperslife/internal/status"
	"stepperslife/models"
)

// IntentStore is the durable mapping from a provider payment id to the
// purchase intent created at checkout-link time. PocketBase records are the
// source of truth; Redis carries a TTL-bounded fast path so webhook handling
// avoids a database read in the common case.
type IntentStore struct {
	app    core.App
	redis  *redis.Client
	expiry time.Duration
}

func NewIntentStore(app core.App, redisClient *redis.Client, expiry time.Duration) *IntentStore {
	return &IntentStore{
		app:    app,
		redis:  redisClient,
		expiry: expiry,
	}
}

func intentCacheKey(provider models.Provider, providerPaymentID string) string {
	return fmt.Sprintf("payment:%s:%s", provider, providerPaymentID)
}

// Record stores a new purchase intent. It fails with ErrDuplicateIntent when
// an unconsumed intent already exists for the same (event, buyer, slot).
func (s *IntentStore) Record(ctx context.Context, intent *models.PurchaseIntent) (string, error) {
	existing, err := s.app.FindFirstRecordByFilter(
		"purchase_intents",
		"event = {:event} && buyer = {:buyer} && waiting_list_slot = {:slot} && status = 'pending'",
		dbx.Params{
			"event": intent.EventID,
			"buyer": intent.BuyerID,
			"slot":  intent.WaitingListSlot,
		},
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if existing != nil {
		return "", status.ErrDuplicateIntent
	}

	collection, err := s.app.FindCollectionByNameOrId("purchase_intents")
	if err != nil {
		return "", err
	}

	record := core.NewRecord(collection)
	record.Set("event", intent.EventID)
	record.Set("buyer", intent.BuyerID)
	record.Set("seller", intent.SellerID)
	record.Set("quantity", intent.Quantity)
	record.Set("unit_amount", intent.UnitAmount)
	record.Set("currency", intent.Currency)
	record.Set("referral_code", intent.ReferralCode)
	record.Set("table_label", intent.TableLabel)
	record.Set("waiting_list_slot", intent.WaitingListSlot)
	record.Set("provider", string(intent.Provider))
	record.Set("provider_payment_id", intent.ProviderPaymentID)
	record.Set("status", string(models.IntentPending))
	record.Set("expires_at", intent.ExpiresAt)

	if err := s.app.Save(record); err != nil {
		// Two callers can pass the pending-intent read at the same time; the
		// unique partial index on (event, buyer, waiting_list_slot) is what
		// actually enforces at most one unconsumed intent.
		if isUniqueConstraintErr(err) {
			return "", status.ErrDuplicateIntent
		}
		return "", err
	}

	intent.ID = record.Id
	s.cacheIntent(ctx, intent)

	return record.Id, nil
}

// ResolveByProviderPaymentID bridges "a payment happened" to "what was it
// for". Returns ErrIntentNotFound when no intent is bound to the payment id.
func (s *IntentStore) ResolveByProviderPaymentID(ctx context.Context, provider models.Provider, providerPaymentID string) (*models.PurchaseIntent, error) {
	if intent := s.cachedIntent(ctx, provider, providerPaymentID); intent != nil {
		return intent, nil
	}

	record, err := s.app.FindFirstRecordByFilter(
		"purchase_intents",
		"provider = {:provider} && provider_payment_id = {:paymentId}",
		dbx.Params{
			"provider":  string(provider),
			"paymentId": providerPaymentID,
		},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrIntentNotFound
		}
		return nil, err
	}

	return intentFromRecord(record), nil
}

// Consume marks an intent consumed. Consuming an already-consumed intent is a
// successful no-op, which is what makes re-delivered webhooks safe. The
// caller passes its transaction app so the consume lands atomically with
// ticket creation.
func (s *IntentStore) Consume(txApp core.App, intentID string) error {
	record, err := txApp.FindRecordById("purchase_intents", intentID)
	if err != nil {
		return err
	}

	if record.GetString("status") == string(models.IntentConsumed) {
		return nil
	}

	record.Set("status", string(models.IntentConsumed))
	return txApp.Save(record)
}

// ExpireStale moves pending intents past their expiry to expired. Run from a
// background ticker.
func (s *IntentStore) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	records, err := s.app.FindRecordsByFilter(
		"purchase_intents",
		"status = 'pending' && expires_at != '' && expires_at < {:now}",
		"-created",
		500,
		0,
		dbx.Params{"now": expiryCutoff(now)},
	)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, record := range records {
		record.Set("status", string(models.IntentExpired))
		if err := s.app.Save(record); err != nil {
			log.Printf("Error expiring intent %s: %v", record.Id, err)
			continue
		}
		s.redis.Del(ctx, intentCacheKey(
			models.Provider(record.GetString("provider")),
			record.GetString("provider_payment_id"),
		))
		expired++
	}

	return expired, nil
}

// expiryCutoff renders a time in the layout PocketBase stores datetimes with,
// so the string comparison in the expiry filter is a chronological one.
func expiryCutoff(now time.Time) string {
	return now.UTC().Format(types.DefaultDateLayout)
}

func (s *IntentStore) cacheIntent(ctx context.Context, intent *models.PurchaseIntent) {
	key := intentCacheKey(intent.Provider, intent.ProviderPaymentID)

	fields := map[string]any{
		"id":          intent.ID,
		"event_id":    intent.EventID,
		"buyer_id":    intent.BuyerID,
		"seller_id":   intent.SellerID,
		"quantity":    intent.Quantity,
		"unit_amount": intent.UnitAmount,
		"currency":    intent.Currency,
		"status":      string(intent.Status),
	}

	if err := s.redis.HSet(ctx, key, fields).Err(); err != nil {
		log.Printf("Error caching intent %s: %v", intent.ID, err)
		return
	}

	s.redis.Expire(ctx, key, s.expiry)
}

func (s *IntentStore) cachedIntent(ctx context.Context, provider models.Provider, providerPaymentID string) *models.PurchaseIntent {
	data, err := s.redis.HGetAll(ctx, intentCacheKey(provider, providerPaymentID)).Result()
	if err != nil || len(data) == 0 {
		return nil
	}

	quantity, _ := strconv.Atoi(data["quantity"])
	unitAmount, _ := strconv.ParseInt(data["unit_amount"], 10, 64)

	if data["id"] == "" || quantity <= 0 {
		return nil
	}

	return &models.PurchaseIntent{
		ID:                data["id"],
		EventID:           data["event_id"],
		BuyerID:           data["buyer_id"],
		SellerID:          data["seller_id"],
		Quantity:          quantity,
		UnitAmount:        unitAmount,
		Currency:          data["currency"],
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		Status:            models.IntentStatus(data["status"]),
	}
}

func intentFromRecord(record *core.Record) *models.PurchaseIntent {
	return &models.PurchaseIntent{
		ID:                record.Id,
		EventID:           record.GetString("event"),
		BuyerID:           record.GetString("buyer"),
		SellerID:          record.GetString("seller"),
		Quantity:          record.GetInt("quantity"),
		UnitAmount:        int64(record.GetFloat("unit_amount")),
		Currency:          record.GetString("currency"),
		ReferralCode:      record.GetString("referral_code"),
		TableLabel:        record.GetString("table_label"),
		WaitingListSlot:   record.GetString("waiting_list_slot"),
		Provider:          models.Provider(record.GetString("provider")),
		ProviderPaymentID: record.GetString("provider_payment_id"),
		Status:            models.IntentStatus(record.GetString("status")),
		CreatedAt:         record.GetDateTime("created").Time(),
		ExpiresAt:         record.GetDateTime("expires_at").Time(),
	}
}
