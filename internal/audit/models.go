package audit

import "time"

// Event is an immutable, append-only record of one webhook payload.
//
// Invariants:
// - Events are never updated or deleted.
// - Events are written before the payload is processed.
// - Logging is best-effort; a failed append never blocks message handling.
type Event struct {
	ID        string    `json:"id" db:"id"`
	Direction Direction `json:"direction" db:"direction"`

	// Kind is the payload category (message, status, verify).
	Kind Kind `json:"kind" db:"kind"`

	// MessageID is the provider message ID the payload refers to, when present.
	MessageID string `json:"message_id,omitempty" db:"message_id"`
	// Phone is the counterparty; stored normalized, logged masked.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Payload is the raw JSON body as received.
	Payload string `json:"payload" db:"payload"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Kind string

const (
	KindMessage Kind = "message"
	KindStatus  Kind = "status"
	KindUnknown Kind = "unknown"
)
