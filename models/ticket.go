package models

import (
	"time"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketRefunded  TicketStatus = "refunded"
	TicketCancelled TicketStatus = "cancelled"
)

// Ticket is one admitted seat or slot. Number is sequential per event, Code is
// random, platform-unique and ends up in the entry QR.
type Ticket struct {
	ID        string       `json:"id"`
	EventID   string       `json:"event_id"`
	IntentID  string       `json:"intent_id"`
	Number    int          `json:"number"`
	Code      string       `json:"code"`
	Status    TicketStatus `json:"status"`
	Amount    int64        `json:"amount"` // minor units attributed to this ticket
	SeatLabel string       `json:"seat_label,omitempty"`
	IssuedAt  time.Time    `json:"issued_at"`
}

// CanTransitionTo enforces one-directional status movement. Refund is reachable
// from both valid and used.
func (t *Ticket) CanTransitionTo(next TicketStatus) bool {
	switch t.Status {
	case TicketValid:
		return next == TicketUsed || next == TicketRefunded || next == TicketCancelled
	case TicketUsed:
		return next == TicketRefunded
	default:
		return false
	}
}

type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Venue       string    `json:"venue"`
	StartsAt    time.Time `json:"starts_at"`
	Capacity    int       `json:"capacity"`
	Sold        int       `json:"sold"`
	OrganizerID string    `json:"organizer_id"`
	Status      string    `json:"status"` // draft, published, cancelled
}

// Remaining reports how many tickets can still be issued.
func (e *Event) Remaining() int {
	return e.Capacity - e.Sold
}
