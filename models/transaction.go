package models

import (
	"time"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// PlatformTransaction is an immutable ledger entry recording revenue
// attribution for one completed purchase. PlatformFee + SellerPayout always
// equals GrossAmount. Only Status may change after creation: pending to
// completed or failed, and completed to refunded.
type PlatformTransaction struct {
	ID                string            `json:"id"`
	EventID           string            `json:"event_id"`
	IntentID          string            `json:"intent_id"`
	BuyerID           string            `json:"buyer_id"`
	TicketIDs         []string          `json:"ticket_ids"`
	GrossAmount       int64             `json:"gross_amount"`
	PlatformFee       int64             `json:"platform_fee"`
	SellerPayout      int64             `json:"seller_payout"`
	Currency          string            `json:"currency"`
	Provider          Provider          `json:"provider"`
	ProviderPaymentID string            `json:"provider_payment_id"`
	Status            TransactionStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
}

// OrphanedConfirmation retains a payment confirmation that arrived with no
// matching intent, for manual reconciliation later.
type OrphanedConfirmation struct {
	ID                string    `json:"id"`
	Provider          Provider  `json:"provider"`
	ProviderPaymentID string    `json:"provider_payment_id"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	RawPayload        string    `json:"raw_payload"`
	DeliveryCount     int       `json:"delivery_count"`
	FirstSeenAt       time.Time `json:"first_seen_at"`
}

type FlagReason string

const (
	FlagAmountMismatch   FlagReason = "amount_mismatch"
	FlagCapacityExceeded FlagReason = "capacity_exceeded"
)

// FlaggedPayment is the operator alert raised when a verified payment cannot
// be honored and must enter the refund workflow.
type FlaggedPayment struct {
	ID                string     `json:"id"`
	Provider          Provider   `json:"provider"`
	ProviderPaymentID string     `json:"provider_payment_id"`
	IntentID          string     `json:"intent_id,omitempty"`
	Reason            FlagReason `json:"reason"`
	ExpectedAmount    int64      `json:"expected_amount"`
	ReceivedAmount    int64      `json:"received_amount"`
	Resolved          bool       `json:"resolved"`
	CreatedAt         time.Time  `json:"created_at"`
}
