package gateway

import (
	"encoding/json"
	"time"

	"stepperslife/internal/status"
	"stepperslife/models"
	"stepperslife/security"
)

// ManualGateway backs the direct purchase endpoint used for cash, Zelle and
// test payments. There is no provider webhook; a trusted internal caller
// presents a bearer token and asserts the payment happened.
type ManualGateway struct {
	tokenHash string
}

func NewManualGateway(tokenHash string) *ManualGateway {
	return &ManualGateway{tokenHash: tokenHash}
}

func (g *ManualGateway) Provider() models.Provider {
	return models.ProviderManual
}

func (g *ManualGateway) SignatureHeader() string {
	return "Authorization"
}

func (g *ManualGateway) Verify(rawBody []byte, signatureHeader string) bool {
	const prefix = "Bearer "
	if len(signatureHeader) <= len(prefix) || signatureHeader[:len(prefix)] != prefix {
		return false
	}
	return security.VerifyManualToken(signatureHeader[len(prefix):], g.tokenHash)
}

type manualPayment struct {
	PaymentReference string `json:"payment_reference"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	BuyerEmail       string `json:"buyer_email"`
	RefundID         string `json:"refund_id"`
}

func (g *ManualGateway) Normalize(rawBody []byte) (*models.PaymentConfirmation, error) {
	var payment manualPayment
	if err := json.Unmarshal(rawBody, &payment); err != nil {
		return nil, status.ErrMalformedPayload
	}

	if payment.PaymentReference == "" || payment.Amount <= 0 {
		return nil, status.ErrMalformedPayload
	}

	return &models.PaymentConfirmation{
		Provider:          models.ProviderManual,
		ProviderPaymentID: payment.PaymentReference,
		Amount:            payment.Amount,
		Currency:          payment.Currency,
		BuyerEmail:        payment.BuyerEmail,
		RawPayload:        json.RawMessage(rawBody),
		ReceivedAt:        time.Now(),
	}, nil
}

func (g *ManualGateway) NormalizeRefund(rawBody []byte) (*models.RefundConfirmation, error) {
	var payment manualPayment
	if err := json.Unmarshal(rawBody, &payment); err != nil {
		return nil, status.ErrMalformedPayload
	}

	if payment.PaymentReference == "" || payment.RefundID == "" {
		return nil, status.ErrMalformedPayload
	}

	return &models.RefundConfirmation{
		Provider:          models.ProviderManual,
		ProviderPaymentID: payment.PaymentReference,
		RefundID:          payment.RefundID,
		Amount:            payment.Amount,
		Currency:          payment.Currency,
	}, nil
}
