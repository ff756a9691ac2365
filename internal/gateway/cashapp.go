package gateway

import (
	"encoding/json"
	"time"

	"stepperslife/internal/status"
	"stepperslife/models"
	"stepperslife/security"
)

// CashAppGateway handles Cash App Pay webhooks, which use the same
// HMAC-over-notification-URL scheme as Square.
type CashAppGateway struct {
	signatureKey    string
	notificationURL string
}

func NewCashAppGateway(signatureKey, notificationURL string) *CashAppGateway {
	return &CashAppGateway{
		signatureKey:    signatureKey,
		notificationURL: notificationURL,
	}
}

func (g *CashAppGateway) Provider() models.Provider {
	return models.ProviderCashApp
}

func (g *CashAppGateway) SignatureHeader() string {
	return "X-Signature"
}

func (g *CashAppGateway) Verify(rawBody []byte, signatureHeader string) bool {
	return security.VerifySquareSignature(rawBody, signatureHeader, g.signatureKey, g.notificationURL)
}

type cashAppEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Payment struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Email    string `json:"email"`
			RefundID string `json:"refund_id"`
		} `json:"payment"`
	} `json:"data"`
}

func (g *CashAppGateway) Normalize(rawBody []byte) (*models.PaymentConfirmation, error) {
	var envelope cashAppEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, status.ErrMalformedPayload
	}

	if envelope.Type != "payment.completed" {
		return nil, status.ErrUnrecognizedEvent
	}

	payment := envelope.Data.Payment
	if payment.ID == "" {
		return nil, status.ErrMalformedPayload
	}

	return &models.PaymentConfirmation{
		Provider:          models.ProviderCashApp,
		ProviderPaymentID: payment.ID,
		Amount:            payment.Amount,
		Currency:          payment.Currency,
		BuyerEmail:        payment.Email,
		RawPayload:        json.RawMessage(rawBody),
		ReceivedAt:        time.Now(),
	}, nil
}

func (g *CashAppGateway) NormalizeRefund(rawBody []byte) (*models.RefundConfirmation, error) {
	var envelope cashAppEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, status.ErrMalformedPayload
	}

	if envelope.Type != "refund.completed" {
		return nil, status.ErrUnrecognizedEvent
	}

	payment := envelope.Data.Payment
	if payment.ID == "" || payment.RefundID == "" {
		return nil, status.ErrMalformedPayload
	}

	return &models.RefundConfirmation{
		Provider:          models.ProviderCashApp,
		ProviderPaymentID: payment.ID,
		RefundID:          payment.RefundID,
		Amount:            payment.Amount,
		Currency:          payment.Currency,
	}, nil
}
