package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"stepperslife/config"
	"stepperslife/internal/gateway"
	"stepperslife/internal/status"
	"stepperslife/models"
	"stepperslife/services"
)

const maxTicketsPerIntent = 10

// CheckoutHandler creates the purchase intent that later binds a provider
// payment back to an event, buyer and price.
type CheckoutHandler struct {
	app      *pocketbase.PocketBase
	intents  *services.IntentStore
	gateways *gateway.Registry
	cfg      *config.Config
}

func NewCheckoutHandler(app *pocketbase.PocketBase, intents *services.IntentStore, gateways *gateway.Registry, cfg *config.Config) *CheckoutHandler {
	return &CheckoutHandler{
		app:      app,
		intents:  intents,
		gateways: gateways,
		cfg:      cfg,
	}
}

// CreateCheckoutLink - POST /api/checkout/link
func (h *CheckoutHandler) CreateCheckoutLink(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Authentication required", nil)
	}

	var req struct {
		EventID           string `json:"event_id"`
		Quantity          int    `json:"quantity"`
		Provider          string `json:"provider"`
		ProviderPaymentID string `json:"provider_payment_id"`
		ReferralCode      string `json:"referral_code"`
		TableLabel        string `json:"table_label"`
		WaitingListSlot   string `json:"waiting_list_slot"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if req.EventID == "" || req.ProviderPaymentID == "" {
		return apis.NewBadRequestError("event_id and provider_payment_id are required", nil)
	}
	if req.Quantity < 1 || req.Quantity > maxTicketsPerIntent {
		return apis.NewBadRequestError("Quantity must be between 1 and 10", nil)
	}

	provider := models.Provider(req.Provider)
	if req.Provider == "" {
		primary, err := h.gateways.Primary()
		if err != nil {
			return apis.NewBadRequestError("No payment provider configured", nil)
		}
		provider = primary.Provider()
	} else if _, err := h.gateways.Get(provider); err != nil {
		return apis.NewBadRequestError("Unknown payment provider", nil)
	}

	eventRecord, err := h.app.FindRecordById("events", req.EventID)
	if err != nil {
		return apis.NewNotFoundError("Event not found", nil)
	}
	if eventRecord.GetString("status") == "cancelled" {
		return apis.NewBadRequestError("Event is cancelled", nil)
	}

	remaining := eventRecord.GetInt("capacity") - eventRecord.GetInt("sold")
	if remaining < req.Quantity {
		return apis.NewApiError(http.StatusConflict, "Not enough tickets remaining", nil)
	}

	intent := &models.PurchaseIntent{
		EventID:           req.EventID,
		BuyerID:           e.Auth.Id,
		SellerID:          eventRecord.GetString("organizer"),
		Quantity:          req.Quantity,
		UnitAmount:        int64(eventRecord.GetFloat("price")),
		Currency:          h.cfg.DefaultCurrency,
		ReferralCode:      req.ReferralCode,
		TableLabel:        req.TableLabel,
		WaitingListSlot:   req.WaitingListSlot,
		Provider:          provider,
		ProviderPaymentID: req.ProviderPaymentID,
		ExpiresAt:         time.Now().UTC().Add(h.cfg.IntentExpiry),
	}

	intentID, err := h.intents.Record(e.Request.Context(), intent)
	if err != nil {
		if errors.Is(err, status.ErrDuplicateIntent) {
			return apis.NewApiError(http.StatusConflict, "A pending purchase already exists for this event", nil)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to create checkout link", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"intent_id":      intentID,
		"expected_total": intent.ExpectedTotal(),
		"currency":       intent.Currency,
		"expires_at":     intent.ExpiresAt,
		"provider":       provider,
	})
}
