package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"stepperslife/internal/gateway"
	"stepperslife/internal/status"
	"stepperslife/models"
	"stepperslife/monitoring"
	"stepperslife/services"
)

// WebhookHandler receives provider webhook deliveries and drives them through
// verification, normalization and the issuance pipeline. Every business
// outcome answers 200 so the provider stops redelivering; only a bad signature
// or an unparseable payload propagates a failure status.
type WebhookHandler struct {
	app        *pocketbase.PocketBase
	gateways   *gateway.Registry
	engine     *services.IssuanceEngine
	ledger     *services.LedgerRecorder
	dispatcher *services.NotificationDispatcher
	refunds    *services.RefundService
	tickets    *services.TicketStore
}

func NewWebhookHandler(
	app *pocketbase.PocketBase,
	gateways *gateway.Registry,
	engine *services.IssuanceEngine,
	ledger *services.LedgerRecorder,
	dispatcher *services.NotificationDispatcher,
	refunds *services.RefundService,
	tickets *services.TicketStore,
) *WebhookHandler {
	return &WebhookHandler{
		app:        app,
		gateways:   gateways,
		engine:     engine,
		ledger:     ledger,
		dispatcher: dispatcher,
		refunds:    refunds,
		tickets:    tickets,
	}
}

// HandleWebhook - POST /api/webhooks/{provider}
func (h *WebhookHandler) HandleWebhook(e *core.RequestEvent) error {
	providerName := e.Request.PathValue("provider")

	gw, err := h.gateways.Get(models.Provider(providerName))
	if err != nil {
		return apis.NewNotFoundError("Unknown payment provider", nil)
	}

	rawBody, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Could not read request body", err)
	}

	if !gw.Verify(rawBody, e.Request.Header.Get(gw.SignatureHeader())) {
		monitoring.TrackWebhook(providerName, "signature_rejected")
		return apis.NewUnauthorizedError("Invalid webhook signature", nil)
	}

	ctx := e.Request.Context()

	confirmation, err := gw.Normalize(rawBody)
	if err != nil {
		if errors.Is(err, status.ErrUnrecognizedEvent) {
			return h.handleNonPayment(e, gw, rawBody)
		}
		monitoring.TrackWebhook(providerName, "malformed")
		return apis.NewBadRequestError("Malformed webhook payload", nil)
	}

	result, err := h.engine.Issue(ctx, confirmation)
	if err != nil {
		log.Printf("Error processing %s webhook for payment %s: %v",
			providerName, confirmation.ProviderPaymentID, err)
		monitoring.TrackWebhook(providerName, "error")
		return apis.NewApiError(http.StatusInternalServerError, "Failed to process payment", nil)
	}

	monitoring.TrackWebhook(providerName, string(result.Outcome))

	switch result.Outcome {
	case services.OutcomeIssued:
		h.recordLedger(e, result, confirmation)
		h.notifyBuyer(e, result, confirmation)
	case services.OutcomeAlreadyIssued:
		// A redelivery after a ledger write failure heals here; the recorder
		// dedupes on the provider payment id so this is otherwise a no-op.
		h.recordLedger(e, result, confirmation)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"outcome": result.Outcome,
		"tickets": len(result.Tickets),
	})
}

// handleNonPayment tries the refund interpretation of an event the payment
// normalizer did not recognize; anything else is acknowledged and ignored.
func (h *WebhookHandler) handleNonPayment(e *core.RequestEvent, gw gateway.Gateway, rawBody []byte) error {
	providerName := string(gw.Provider())

	refund, err := gw.NormalizeRefund(rawBody)
	if err != nil {
		monitoring.TrackWebhook(providerName, "ignored")
		return e.JSON(http.StatusOK, map[string]any{"outcome": "ignored"})
	}

	if err := h.refunds.MarkRefunded(e.Request.Context(), refund); err != nil {
		log.Printf("Error applying %s refund %s: %v", providerName, refund.RefundID, err)
		monitoring.TrackWebhook(providerName, "error")
		return apis.NewApiError(http.StatusInternalServerError, "Failed to process refund", nil)
	}

	monitoring.TrackWebhook(providerName, "refunded")
	return e.JSON(http.StatusOK, map[string]any{"outcome": "refunded"})
}

func (h *WebhookHandler) recordLedger(e *core.RequestEvent, result *services.IssuanceResult, confirmation *models.PaymentConfirmation) {
	if _, err := h.ledger.Record(e.Request.Context(), result.Tickets, confirmation, result.Intent); err != nil {
		// Tickets are already issued; the entry is healed on the provider's
		// next redelivery or by manual reconciliation.
		log.Printf("Error recording ledger entry for payment %s/%s: %v",
			confirmation.Provider, confirmation.ProviderPaymentID, err)
	}
}

func (h *WebhookHandler) notifyBuyer(e *core.RequestEvent, result *services.IssuanceResult, confirmation *models.PaymentConfirmation) {
	event, err := h.tickets.EventByID(e.Request.Context(), result.Intent.EventID)
	if err != nil {
		log.Printf("Error loading event %s for notification: %v", result.Intent.EventID, err)
		monitoring.TrackNotificationFailure("event_lookup")
		return
	}

	buyerEmail := confirmation.BuyerEmail
	if buyerEmail == "" {
		if buyer, err := h.app.FindRecordById("users", result.Intent.BuyerID); err == nil {
			buyerEmail = buyer.GetString("email")
		}
	}

	h.dispatcher.Dispatch(services.Notification{
		IntentID:          result.Intent.ID,
		BuyerID:           result.Intent.BuyerID,
		BuyerEmail:        buyerEmail,
		ProviderPaymentID: confirmation.ProviderPaymentID,
		Event:             event,
		Tickets:           result.Tickets,
	})
}
