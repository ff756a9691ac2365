package status

import "errors"

var (
	// Intent store
	ErrDuplicateIntent = errors.New("intent: unconsumed intent already exists for this buyer and slot")
	ErrIntentNotFound  = errors.New("intent: no intent for provider payment id")

	// Gateway adapters
	ErrUnrecognizedEvent = errors.New("gateway: event type not handled")
	ErrMalformedPayload  = errors.New("gateway: malformed provider payload")

	// Issuance
	ErrAlreadyIssued = errors.New("issuance: tickets already issued for this intent")
	ErrCodeExhausted = errors.New("issuance: ticket code generation exhausted retry budget")

	// Ledger
	ErrLedgerWriteFailed = errors.New("ledger: transaction write failed")
)
