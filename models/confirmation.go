package models

import (
	"encoding/json"
	"time"
)

type Provider string

const (
	ProviderSquare  Provider = "square"
	ProviderStripe  Provider = "stripe"
	ProviderPayPal  Provider = "paypal"
	ProviderCashApp Provider = "cashapp"
	ProviderManual  Provider = "manual"
)

// PaymentConfirmation is the provider-agnostic result of a completed payment.
// (Provider, ProviderPaymentID) is globally unique and acts as the idempotency
// key for the whole reconciliation pipeline.
type PaymentConfirmation struct {
	Provider          Provider        `json:"provider"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	Amount            int64           `json:"amount"` // minor currency units
	Currency          string          `json:"currency"`
	BuyerEmail        string          `json:"buyer_email,omitempty"`
	RawPayload        json.RawMessage `json:"raw_payload,omitempty"` // retained for audit
	ReceivedAt        time.Time       `json:"received_at"`
}

// RefundConfirmation is the sibling event for a completed provider refund.
type RefundConfirmation struct {
	Provider          Provider `json:"provider"`
	ProviderPaymentID string   `json:"provider_payment_id"`
	RefundID          string   `json:"refund_id"`
	Amount            int64    `json:"amount"`
	Currency          string   `json:"currency"`
}
