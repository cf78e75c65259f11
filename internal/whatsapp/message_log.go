package whatsapp

import (
	"context"
	"sync"
	"time"
)

// OutboundMessage is one recorded send attempt.
//
// Invariants:
// - ProviderMessageID is empty for sends the provider never accepted.
// - Status moves forward through delivery callbacks; failed is terminal.
type OutboundMessage struct {
	ID                string        `json:"id" db:"id"`
	ProviderMessageID string        `json:"provider_message_id,omitempty" db:"provider_message_id"`
	TrialID           string        `json:"trial_id,omitempty" db:"trial_id"`
	Recipient         string        `json:"recipient" db:"recipient"`
	Kind              MessageKind   `json:"kind" db:"kind"`
	TemplateName      string        `json:"template_name,omitempty" db:"template_name"`
	Status            MessageStatus `json:"status" db:"status"`
	ErrorCode         string        `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage      string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

type MessageKind string

const (
	KindText        MessageKind = "text"
	KindTemplate    MessageKind = "template"
	KindInteractive MessageKind = "interactive"
)

// MessageStatus is the local delivery vocabulary.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// MapProviderStatus maps a provider callback status to the local vocabulary.
// ok is false for statuses the log does not track.
func MapProviderStatus(s string) (MessageStatus, bool) {
	switch s {
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "read":
		return StatusRead, true
	case "failed", "undelivered":
		return StatusFailed, true
	default:
		return "", false
	}
}

// StatusUpdate is a delivery callback applied to a logged message.
type StatusUpdate struct {
	ProviderMessageID string
	Status            MessageStatus
	ErrorCode         string
	ErrorMessage      string
}

// MessageLog persists outbound sends and their delivery status.
type MessageLog interface {
	Record(ctx context.Context, m OutboundMessage) error
	// UpdateStatus returns false when no message with that provider ID was logged.
	UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error)
}

// MemoryLog is an in-memory MessageLog for tests and local runs.
type MemoryLog struct {
	mu       sync.Mutex
	messages []OutboundMessage
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (l *MemoryLog) Record(ctx context.Context, m OutboundMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, m)
	return nil
}

func (l *MemoryLog) UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.messages {
		if l.messages[i].ProviderMessageID != u.ProviderMessageID || u.ProviderMessageID == "" {
			continue
		}
		l.messages[i].Status = u.Status
		if u.ErrorCode != "" {
			l.messages[i].ErrorCode = u.ErrorCode
			l.messages[i].ErrorMessage = u.ErrorMessage
		}
		l.messages[i].UpdatedAt = time.Now().UTC()
		return true, nil
	}
	return false, nil
}

func (l *MemoryLog) Messages() []OutboundMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]OutboundMessage, len(l.messages))
	copy(out, l.messages)
	return out
}
