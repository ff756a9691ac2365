package handlers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"stepperslife/config"
	"stepperslife/models"
	"stepperslife/security"
	"stepperslife/services"
)

// PurchaseHandler is the direct purchase path for trusted callers (box office,
// test harnesses). It synthesizes a manual-provider confirmation and runs the
// same pipeline the webhooks do, but reports outcomes as user-facing errors
// instead of always answering 200.
type PurchaseHandler struct {
	app        *pocketbase.PocketBase
	engine     *services.IssuanceEngine
	ledger     *services.LedgerRecorder
	dispatcher *services.NotificationDispatcher
	tickets    *services.TicketStore
	cfg        *config.Config
}

func NewPurchaseHandler(
	app *pocketbase.PocketBase,
	engine *services.IssuanceEngine,
	ledger *services.LedgerRecorder,
	dispatcher *services.NotificationDispatcher,
	tickets *services.TicketStore,
	cfg *config.Config,
) *PurchaseHandler {
	return &PurchaseHandler{
		app:        app,
		engine:     engine,
		ledger:     ledger,
		dispatcher: dispatcher,
		tickets:    tickets,
		cfg:        cfg,
	}
}

// DirectPurchase - POST /api/purchase/direct
func (h *PurchaseHandler) DirectPurchase(e *core.RequestEvent) error {
	token, ok := strings.CutPrefix(e.Request.Header.Get("Authorization"), "Bearer ")
	if !ok || !security.VerifyManualToken(token, h.cfg.ManualProviderTokenHash) {
		return apis.NewUnauthorizedError("Invalid purchase token", nil)
	}

	var req struct {
		PaymentReference string `json:"payment_reference"`
		Amount           int64  `json:"amount"`
		Currency         string `json:"currency"`
		BuyerEmail       string `json:"buyer_email"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.PaymentReference == "" || req.Amount <= 0 {
		return apis.NewBadRequestError("payment_reference and a positive amount are required", nil)
	}

	currency := req.Currency
	if currency == "" {
		currency = h.cfg.DefaultCurrency
	}

	confirmation := &models.PaymentConfirmation{
		Provider:          models.ProviderManual,
		ProviderPaymentID: req.PaymentReference,
		Amount:            req.Amount,
		Currency:          currency,
		BuyerEmail:        req.BuyerEmail,
		ReceivedAt:        time.Now().UTC(),
	}

	result, err := h.engine.Issue(e.Request.Context(), confirmation)
	if err != nil {
		log.Printf("Error processing direct purchase %s: %v", req.PaymentReference, err)
		return apis.NewApiError(http.StatusInternalServerError, "Failed to process purchase", nil)
	}

	switch result.Outcome {
	case services.OutcomeOrphaned:
		return apis.NewNotFoundError("Payment could not be verified against a pending purchase", nil)
	case services.OutcomeAmountMismatch:
		return apis.NewApiError(http.StatusConflict, "Payment amount does not match the expected total", nil)
	case services.OutcomeCapacityExceeded:
		return apis.NewApiError(http.StatusConflict, "The event is sold out", nil)
	}

	if result.Outcome == services.OutcomeIssued {
		if _, err := h.ledger.Record(e.Request.Context(), result.Tickets, confirmation, result.Intent); err != nil {
			log.Printf("Error recording ledger entry for direct purchase %s: %v", req.PaymentReference, err)
		}

		if event, err := h.tickets.EventByID(e.Request.Context(), result.Intent.EventID); err == nil {
			h.dispatcher.Dispatch(services.Notification{
				IntentID:          result.Intent.ID,
				BuyerID:           result.Intent.BuyerID,
				BuyerEmail:        req.BuyerEmail,
				ProviderPaymentID: req.PaymentReference,
				Event:             event,
				Tickets:           result.Tickets,
			})
		}
	}

	codes := make([]string, len(result.Tickets))
	for i, t := range result.Tickets {
		codes[i] = t.Code
	}

	return e.JSON(http.StatusOK, map[string]any{
		"outcome":      result.Outcome,
		"ticket_codes": codes,
	})
}
