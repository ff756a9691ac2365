package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"stepperslife/internal/status"
	"stepperslife/models"
	"stepperslife/utils"
)

// codeRetryBudget bounds regeneration attempts when a freshly drawn ticket
// code collides with an existing one.
const codeRetryBudget = 5

// TicketStore owns the tickets, issuances, events, orphaned_confirmations and
// flagged_payments collections. The issuances collection carries a unique
// index on the intent id; that constraint, not any in-process lock, is what
// serializes concurrent deliveries of the same payment.
type TicketStore struct {
	app     core.App
	intents *IntentStore
}

func NewTicketStore(app core.App, intents *IntentStore) *TicketStore {
	return &TicketStore{
		app:     app,
		intents: intents,
	}
}

// TicketsByIntent returns the tickets already issued for an intent, or an
// empty slice when none exist.
func (s *TicketStore) TicketsByIntent(ctx context.Context, intentID string) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"intent = {:intent}",
		"number",
		0,
		0,
		dbx.Params{"intent": intentID},
	)
	if err != nil {
		return nil, err
	}

	tickets := make([]*models.Ticket, 0, len(records))
	for _, record := range records {
		tickets = append(tickets, ticketFromRecord(record))
	}
	return tickets, nil
}

// EventByID loads the parent event for capacity checks.
func (s *TicketStore) EventByID(ctx context.Context, eventID string) (*models.Event, error) {
	record, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		return nil, err
	}

	return &models.Event{
		ID:          record.Id,
		Name:        record.GetString("name"),
		Venue:       record.GetString("venue"),
		StartsAt:    record.GetDateTime("starts_at").Time(),
		Capacity:    record.GetInt("capacity"),
		Sold:        record.GetInt("sold"),
		OrganizerID: record.GetString("organizer"),
		Status:      record.GetString("status"),
	}, nil
}

// IssueAtomically creates the issuance guard row, the tickets, consumes the
// intent and bumps the event's sold counter in one database transaction.
// A unique-index conflict on the guard means another delivery won the race;
// that surfaces as ErrAlreadyIssued so the caller can return the original
// tickets instead.
func (s *TicketStore) IssueAtomically(ctx context.Context, intent *models.PurchaseIntent, confirmation *models.PaymentConfirmation) ([]*models.Ticket, error) {
	var tickets []*models.Ticket

	err := s.app.RunInTransaction(func(txApp core.App) error {
		// Re-check capacity inside the transaction; the earlier read raced
		// with other sales.
		eventRecord, err := txApp.FindRecordById("events", intent.EventID)
		if err != nil {
			return err
		}

		capacity := eventRecord.GetInt("capacity")
		sold := eventRecord.GetInt("sold")
		if sold+intent.Quantity > capacity {
			return errCapacityRace
		}

		issuanceCollection, err := txApp.FindCollectionByNameOrId("issuances")
		if err != nil {
			return err
		}

		guard := core.NewRecord(issuanceCollection)
		guard.Set("intent", intent.ID)
		guard.Set("provider", string(confirmation.Provider))
		guard.Set("provider_payment_id", confirmation.ProviderPaymentID)
		guard.Set("ticket_count", intent.Quantity)
		if err := txApp.Save(guard); err != nil {
			if isUniqueConstraintErr(err) {
				// Unique index on intent: the other delivery finished first.
				return fmt.Errorf("%w: %v", status.ErrAlreadyIssued, err)
			}
			return err
		}

		nextNumber, err := s.nextTicketNumber(txApp, intent.EventID)
		if err != nil {
			return err
		}

		ticketCollection, err := txApp.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}

		tickets = make([]*models.Ticket, 0, intent.Quantity)
		for i := 0; i < intent.Quantity; i++ {
			ticket, err := s.createTicket(txApp, ticketCollection, intent, nextNumber+i, i)
			if err != nil {
				return err
			}
			tickets = append(tickets, ticket)
		}

		if err := s.intents.Consume(txApp, intent.ID); err != nil {
			return err
		}

		eventRecord.Set("sold", sold+intent.Quantity)
		return txApp.Save(eventRecord)
	})
	if err != nil {
		return nil, err
	}

	return tickets, nil
}

// errCapacityRace signals that the in-transaction capacity re-check failed.
var errCapacityRace = errors.New("tickets: capacity consumed by concurrent sale")

func (s *TicketStore) nextTicketNumber(txApp core.App, eventID string) (int, error) {
	var max sql.NullInt64

	err := txApp.DB().
		NewQuery("SELECT MAX(number) FROM tickets WHERE event = {:event}").
		Bind(dbx.Params{"event": eventID}).
		Row(&max)
	if err != nil {
		return 0, err
	}

	return int(max.Int64) + 1, nil
}

func (s *TicketStore) createTicket(txApp core.App, collection *core.Collection, intent *models.PurchaseIntent, number, seatIndex int) (*models.Ticket, error) {
	seatLabel := ""
	if intent.TableLabel != "" {
		seatLabel = fmt.Sprintf("%s, Seat %d", intent.TableLabel, seatIndex+1)
	}

	for attempt := 0; attempt < codeRetryBudget; attempt++ {
		code, err := utils.GenerateTicketCode()
		if err != nil {
			return nil, err
		}

		record := core.NewRecord(collection)
		record.Set("event", intent.EventID)
		record.Set("intent", intent.ID)
		record.Set("number", number)
		record.Set("code", code)
		record.Set("status", string(models.TicketValid))
		record.Set("amount", intent.UnitAmount)
		record.Set("seat_label", seatLabel)
		record.Set("issued_at", time.Now().UTC())

		if err := txApp.Save(record); err != nil {
			if isUniqueConstraintErr(err) {
				// A 1-in-36^6 collision on the unique code index; redraw.
				continue
			}
			return nil, err
		}

		return ticketFromRecord(record), nil
	}

	return nil, status.ErrCodeExhausted
}

// RecordOrphan retains a confirmation that matched no intent. Re-deliveries
// of the same orphan only bump its delivery counter, keeping repeated lookups
// cheap and side-effect-free.
func (s *TicketStore) RecordOrphan(ctx context.Context, confirmation *models.PaymentConfirmation) error {
	existing, err := s.app.FindFirstRecordByFilter(
		"orphaned_confirmations",
		"provider = {:provider} && provider_payment_id = {:paymentId}",
		dbx.Params{
			"provider":  string(confirmation.Provider),
			"paymentId": confirmation.ProviderPaymentID,
		},
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if existing != nil {
		existing.Set("delivery_count", existing.GetInt("delivery_count")+1)
		return s.app.Save(existing)
	}

	collection, err := s.app.FindCollectionByNameOrId("orphaned_confirmations")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("provider", string(confirmation.Provider))
	record.Set("provider_payment_id", confirmation.ProviderPaymentID)
	record.Set("amount", confirmation.Amount)
	record.Set("currency", confirmation.Currency)
	record.Set("raw_payload", string(confirmation.RawPayload))
	record.Set("delivery_count", 1)
	record.Set("first_seen_at", time.Now().UTC())

	return s.app.Save(record)
}

// FlagPayment raises the operator alert for a payment that cannot be honored
// and must enter the refund workflow.
func (s *TicketStore) FlagPayment(ctx context.Context, flag *models.FlaggedPayment) error {
	existing, err := s.app.FindFirstRecordByFilter(
		"flagged_payments",
		"provider = {:provider} && provider_payment_id = {:paymentId} && resolved = false",
		dbx.Params{
			"provider":  string(flag.Provider),
			"paymentId": flag.ProviderPaymentID,
		},
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if existing != nil {
		return nil
	}

	collection, err := s.app.FindCollectionByNameOrId("flagged_payments")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("provider", string(flag.Provider))
	record.Set("provider_payment_id", flag.ProviderPaymentID)
	record.Set("intent", flag.IntentID)
	record.Set("reason", string(flag.Reason))
	record.Set("expected_amount", flag.ExpectedAmount)
	record.Set("received_amount", flag.ReceivedAmount)
	record.Set("resolved", false)

	return s.app.Save(record)
}

// UpdateTicketStatus moves one ticket to a new status. Transition legality is
// the caller's responsibility.
func (s *TicketStore) UpdateTicketStatus(ctx context.Context, ticketID string, statusValue models.TicketStatus) error {
	record, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return err
	}

	record.Set("status", string(statusValue))
	return s.app.Save(record)
}

func ticketFromRecord(record *core.Record) *models.Ticket {
	return &models.Ticket{
		ID:        record.Id,
		EventID:   record.GetString("event"),
		IntentID:  record.GetString("intent"),
		Number:    record.GetInt("number"),
		Code:      record.GetString("code"),
		Status:    models.TicketStatus(record.GetString("status")),
		Amount:    int64(record.GetFloat("amount")),
		SeatLabel: record.GetString("seat_label"),
		IssuedAt:  record.GetDateTime("issued_at").Time(),
	}
}
