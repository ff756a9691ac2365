package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stepperslife/internal/status"
	"stepperslife/models"
	"stepperslife/security"
)

// PayPalGateway handles PayPal capture webhooks. PayPal reports amounts as
// decimal strings ("50.00"), which are converted to minor units here so the
// pipeline only ever sees integers.
type PayPalGateway struct {
	webhookID       string
	notificationURL string
}

func NewPayPalGateway(webhookID, notificationURL string) *PayPalGateway {
	return &PayPalGateway{
		webhookID:       webhookID,
		notificationURL: notificationURL,
	}
}

func (g *PayPalGateway) Provider() models.Provider {
	return models.ProviderPayPal
}

func (g *PayPalGateway) SignatureHeader() string {
	return "Paypal-Transmission-Sig"
}

func (g *PayPalGateway) Verify(rawBody []byte, signatureHeader string) bool {
	return security.VerifySquareSignature(rawBody, signatureHeader, g.webhookID, g.notificationURL)
}

type paypalEnvelope struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Payer  struct {
			EmailAddress string `json:"email_address"`
		} `json:"payer"`
		Amount struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	} `json:"resource"`
}

func (g *PayPalGateway) Normalize(rawBody []byte) (*models.PaymentConfirmation, error) {
	var envelope paypalEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, status.ErrMalformedPayload
	}

	if envelope.EventType != "PAYMENT.CAPTURE.COMPLETED" {
		return nil, status.ErrUnrecognizedEvent
	}

	if envelope.Resource.ID == "" {
		return nil, status.ErrMalformedPayload
	}

	amount, err := toMinorUnits(envelope.Resource.Amount.Value)
	if err != nil {
		return nil, status.ErrMalformedPayload
	}

	return &models.PaymentConfirmation{
		Provider:          models.ProviderPayPal,
		ProviderPaymentID: envelope.Resource.ID,
		Amount:            amount,
		Currency:          strings.ToUpper(envelope.Resource.Amount.CurrencyCode),
		BuyerEmail:        envelope.Resource.Payer.EmailAddress,
		RawPayload:        json.RawMessage(rawBody),
		ReceivedAt:        time.Now(),
	}, nil
}

func (g *PayPalGateway) NormalizeRefund(rawBody []byte) (*models.RefundConfirmation, error) {
	var envelope paypalEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, status.ErrMalformedPayload
	}

	if envelope.EventType != "PAYMENT.CAPTURE.REFUNDED" {
		return nil, status.ErrUnrecognizedEvent
	}

	if envelope.Resource.ID == "" {
		return nil, status.ErrMalformedPayload
	}

	amount, err := toMinorUnits(envelope.Resource.Amount.Value)
	if err != nil {
		return nil, status.ErrMalformedPayload
	}

	return &models.RefundConfirmation{
		Provider:          models.ProviderPayPal,
		ProviderPaymentID: envelope.Resource.ID,
		RefundID:          envelope.Resource.ID,
		Amount:            amount,
		Currency:          strings.ToUpper(envelope.Resource.Amount.CurrencyCode),
	}, nil
}

// toMinorUnits converts a provider decimal string to integer minor units
// without floating point drift.
func toMinorUnits(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
