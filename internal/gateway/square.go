package gateway

import (
	"encoding/json"
	"time"

	"stepperslife/internal/status"
	"stepperslife/models"
	"stepperslife/security"
)

// SquareGateway handles Square webhook events. Square signs the notification
// URL concatenated with the raw body using HMAC-SHA256 of the signature key.
type SquareGateway struct {
	signatureKey    string
	notificationURL string
}

func NewSquareGateway(signatureKey, notificationURL string) *SquareGateway {
	return &SquareGateway{
		signatureKey:    signatureKey,
		notificationURL: notificationURL,
	}
}

func (g *SquareGateway) Provider() models.Provider {
	return models.ProviderSquare
}

func (g *SquareGateway) SignatureHeader() string {
	return "X-Square-Hmacsha256-Signature"
}

func (g *SquareGateway) Verify(rawBody []byte, signatureHeader string) bool {
	return security.VerifySquareSignature(rawBody, signatureHeader, g.signatureKey, g.notificationURL)
}

type squareEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			Payment *squarePayment `json:"payment"`
			Refund  *squareRefund  `json:"refund"`
		} `json:"object"`
	} `json:"data"`
}

type squarePayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	OrderID     string `json:"order_id"`
	BuyerEmail  string `json:"buyer_email_address"`
	AmountMoney struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"amount_money"`
}

type squareRefund struct {
	ID          string `json:"id"`
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	AmountMoney struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"amount_money"`
}

func (g *SquareGateway) Normalize(rawBody []byte) (*models.PaymentConfirmation, error) {
	var envelope squareEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, status.ErrMalformedPayload
	}

	if envelope.Type != "payment.created" && envelope.Type != "payment.updated" {
		return nil, status.ErrUnrecognizedEvent
	}

	payment := envelope.Data.Object.Payment
	if payment == nil || payment.ID == "" {
		return nil, status.ErrMalformedPayload
	}

	// payment.created arrives while the payment is still APPROVED or PENDING;
	// only COMPLETED is a confirmation.
	if payment.Status != "COMPLETED" {
		return nil, status.ErrUnrecognizedEvent
	}

	return &models.PaymentConfirmation{
		Provider:          models.ProviderSquare,
		ProviderPaymentID: payment.ID,
		Amount:            payment.AmountMoney.Amount,
		Currency:          payment.AmountMoney.Currency,
		BuyerEmail:        payment.BuyerEmail,
		RawPayload:        json.RawMessage(rawBody),
		ReceivedAt:        time.Now(),
	}, nil
}

func (g *SquareGateway) NormalizeRefund(rawBody []byte) (*models.RefundConfirmation, error) {
	var envelope squareEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, status.ErrMalformedPayload
	}

	if envelope.Type != "refund.created" && envelope.Type != "refund.updated" {
		return nil, status.ErrUnrecognizedEvent
	}

	refund := envelope.Data.Object.Refund
	if refund == nil || refund.ID == "" || refund.PaymentID == "" {
		return nil, status.ErrMalformedPayload
	}

	if refund.Status != "COMPLETED" {
		return nil, status.ErrUnrecognizedEvent
	}

	return &models.RefundConfirmation{
		Provider:          models.ProviderSquare,
		ProviderPaymentID: refund.PaymentID,
		RefundID:          refund.ID,
		Amount:            refund.AmountMoney.Amount,
		Currency:          refund.AmountMoney.Currency,
	}, nil
}
