package models

import (
	"time"
)

type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentConsumed  IntentStatus = "consumed"
	IntentExpired   IntentStatus = "expired"
	IntentCancelled IntentStatus = "cancelled"
)

// PurchaseIntent records the expectation that a buyer will complete payment
// for a quantity of tickets at a fixed price. It is created when the checkout
// link is generated, before the provider webhook ever arrives.
type PurchaseIntent struct {
	ID                string       `json:"id"`
	EventID           string       `json:"event_id"`
	BuyerID           string       `json:"buyer_id"`
	SellerID          string       `json:"seller_id"`
	Quantity          int          `json:"quantity"`
	UnitAmount        int64        `json:"unit_amount"` // minor currency units
	Currency          string       `json:"currency"`
	ReferralCode      string       `json:"referral_code,omitempty"`
	TableLabel        string       `json:"table_label,omitempty"`
	WaitingListSlot   string       `json:"waiting_list_slot,omitempty"`
	Provider          Provider     `json:"provider"`
	ProviderPaymentID string       `json:"provider_payment_id"`
	Status            IntentStatus `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
	ExpiresAt         time.Time    `json:"expires_at"`
}

// ExpectedTotal is the amount the provider must confirm, in minor units.
func (i *PurchaseIntent) ExpectedTotal() int64 {
	return i.UnitAmount * int64(i.Quantity)
}
