package gateway

import (
	"encoding/json"
	"time"

	"stepperslife/internal/status"
	"stepperslife/models"
	"stepperslife/security"
)

// StripeGateway handles Stripe webhook events signed with the endpoint's
// whsec_ secret.
type StripeGateway struct {
	webhookSecret string
}

func NewStripeGateway(webhookSecret string) *StripeGateway {
	return &StripeGateway{webhookSecret: webhookSecret}
}

func (g *StripeGateway) Provider() models.Provider {
	return models.ProviderStripe
}

func (g *StripeGateway) SignatureHeader() string {
	return "Stripe-Signature"
}

func (g *StripeGateway) Verify(rawBody []byte, signatureHeader string) bool {
	return security.VerifyStripeSignature(rawBody, signatureHeader, g.webhookSecret, time.Now())
}

type stripeEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripePaymentIntent struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	ReceiptEmail string `json:"receipt_email"`
}

type stripeCharge struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	AmountRefunded int64 `json:"amount_refunded"`
	Currency      string `json:"currency"`
}

func (g *StripeGateway) Normalize(rawBody []byte) (*models.PaymentConfirmation, error) {
	var envelope stripeEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, status.ErrMalformedPayload
	}

	if envelope.Type != "payment_intent.succeeded" {
		return nil, status.ErrUnrecognizedEvent
	}

	var pi stripePaymentIntent
	if err := json.Unmarshal(envelope.Data.Object, &pi); err != nil || pi.ID == "" {
		return nil, status.ErrMalformedPayload
	}

	return &models.PaymentConfirmation{
		Provider:          models.ProviderStripe,
		ProviderPaymentID: pi.ID,
		Amount:            pi.Amount,
		Currency:          pi.Currency,
		BuyerEmail:        pi.ReceiptEmail,
		RawPayload:        json.RawMessage(rawBody),
		ReceivedAt:        time.Now(),
	}, nil
}

func (g *StripeGateway) NormalizeRefund(rawBody []byte) (*models.RefundConfirmation, error) {
	var envelope stripeEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, status.ErrMalformedPayload
	}

	if envelope.Type != "charge.refunded" {
		return nil, status.ErrUnrecognizedEvent
	}

	var charge stripeCharge
	if err := json.Unmarshal(envelope.Data.Object, &charge); err != nil || charge.PaymentIntent == "" {
		return nil, status.ErrMalformedPayload
	}

	return &models.RefundConfirmation{
		Provider:          models.ProviderStripe,
		ProviderPaymentID: charge.PaymentIntent,
		RefundID:          charge.ID,
		Amount:            charge.AmountRefunded,
		Currency:          charge.Currency,
	}, nil
}
