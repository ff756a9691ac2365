package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"stepperslife/models"
	"stepperslife/services"
)

// AdminHandler is the operator surface for the two alert queues: orphaned
// confirmations waiting for an intent, and flagged payments waiting for a
// refund decision.
type AdminHandler struct {
	app        *pocketbase.PocketBase
	authorizer *services.Authorizer
	engine     *services.IssuanceEngine
	ledger     *services.LedgerRecorder
	dispatcher *services.NotificationDispatcher
	tickets    *services.TicketStore
}

func NewAdminHandler(
	app *pocketbase.PocketBase,
	authorizer *services.Authorizer,
	engine *services.IssuanceEngine,
	ledger *services.LedgerRecorder,
	dispatcher *services.NotificationDispatcher,
	tickets *services.TicketStore,
) *AdminHandler {
	return &AdminHandler{
		app:        app,
		authorizer: authorizer,
		engine:     engine,
		ledger:     ledger,
		dispatcher: dispatcher,
		tickets:    tickets,
	}
}

func (h *AdminHandler) requireAdmin(e *core.RequestEvent) error {
	if !h.authorizer.IsAdmin(e.Auth) {
		return apis.NewForbiddenError("Admin access required", nil)
	}
	return nil
}

// ListOrphans - GET /api/admin/orphans
func (h *AdminHandler) ListOrphans(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	records, err := h.app.FindRecordsByFilter(
		"orphaned_confirmations",
		"id != ''",
		"-created",
		200,
		0,
		nil,
	)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list orphaned confirmations", nil)
	}

	orphans := make([]map[string]any, 0, len(records))
	for _, record := range records {
		orphans = append(orphans, map[string]any{
			"id":                  record.Id,
			"provider":            record.GetString("provider"),
			"provider_payment_id": record.GetString("provider_payment_id"),
			"amount":              record.GetFloat("amount"),
			"currency":            record.GetString("currency"),
			"delivery_count":      record.GetInt("delivery_count"),
			"first_seen_at":       record.GetDateTime("first_seen_at"),
		})
	}

	return e.JSON(http.StatusOK, map[string]any{"orphans": orphans})
}

// ListFlagged - GET /api/admin/flagged
func (h *AdminHandler) ListFlagged(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	records, err := h.app.FindRecordsByFilter(
		"flagged_payments",
		"resolved = false",
		"-created",
		200,
		0,
		nil,
	)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list flagged payments", nil)
	}

	flagged := make([]map[string]any, 0, len(records))
	for _, record := range records {
		flagged = append(flagged, map[string]any{
			"id":                  record.Id,
			"provider":            record.GetString("provider"),
			"provider_payment_id": record.GetString("provider_payment_id"),
			"intent":              record.GetString("intent"),
			"reason":              record.GetString("reason"),
			"expected_amount":     record.GetFloat("expected_amount"),
			"received_amount":     record.GetFloat("received_amount"),
		})
	}

	return e.JSON(http.StatusOK, map[string]any{"flagged": flagged})
}

// ResolveFlag - POST /api/admin/flagged/{flagId}/resolve
func (h *AdminHandler) ResolveFlag(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	record, err := h.app.FindRecordById("flagged_payments", e.Request.PathValue("flagId"))
	if err != nil {
		return apis.NewNotFoundError("Flag not found", nil)
	}

	var req struct {
		Note string `json:"note"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	record.Set("resolved", true)
	record.Set("resolution_note", req.Note)
	record.Set("resolved_by", e.Auth.Id)
	record.Set("resolved_at", time.Now().UTC())
	if err := h.app.Save(record); err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to resolve flag", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Flag resolved"})
}

// Reconcile - POST /api/admin/reconcile/{provider}/{paymentId}
//
// Replays a retained orphaned confirmation through the pipeline, for the case
// where the intent was created after the payment arrived.
func (h *AdminHandler) Reconcile(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	provider := e.Request.PathValue("provider")
	paymentID := e.Request.PathValue("paymentId")

	orphan, err := h.app.FindFirstRecordByFilter(
		"orphaned_confirmations",
		"provider = {:provider} && provider_payment_id = {:paymentId}",
		dbx.Params{"provider": provider, "paymentId": paymentID},
	)
	if err != nil {
		return apis.NewNotFoundError("No orphaned confirmation for that payment", nil)
	}

	confirmation := &models.PaymentConfirmation{
		Provider:          models.Provider(provider),
		ProviderPaymentID: paymentID,
		Amount:            int64(orphan.GetFloat("amount")),
		Currency:          orphan.GetString("currency"),
		RawPayload:        json.RawMessage(orphan.GetString("raw_payload")),
		ReceivedAt:        orphan.GetDateTime("first_seen_at").Time(),
	}

	result, err := h.engine.Issue(e.Request.Context(), confirmation)
	if err != nil {
		log.Printf("Error reconciling orphan %s/%s: %v", provider, paymentID, err)
		return apis.NewApiError(http.StatusInternalServerError, "Reconciliation failed", nil)
	}

	if result.Outcome == services.OutcomeIssued {
		if _, err := h.ledger.Record(e.Request.Context(), result.Tickets, confirmation, result.Intent); err != nil {
			log.Printf("Error recording ledger entry during reconciliation of %s/%s: %v", provider, paymentID, err)
		}

		if event, err := h.tickets.EventByID(e.Request.Context(), result.Intent.EventID); err == nil {
			buyerEmail := ""
			if buyer, err := h.app.FindRecordById("users", result.Intent.BuyerID); err == nil {
				buyerEmail = buyer.GetString("email")
			}
			h.dispatcher.Dispatch(services.Notification{
				IntentID:          result.Intent.ID,
				BuyerID:           result.Intent.BuyerID,
				BuyerEmail:        buyerEmail,
				ProviderPaymentID: paymentID,
				Event:             event,
				Tickets:           result.Tickets,
			})
		}

		// The payment is matched now; keep the queue clean.
		if err := h.app.Delete(orphan); err != nil {
			log.Printf("Error removing reconciled orphan %s/%s: %v", provider, paymentID, err)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"outcome": result.Outcome,
		"tickets": len(result.Tickets),
	})
}
