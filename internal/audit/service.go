package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for webhook events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ByMessageID(ctx context.Context, messageID string) ([]Event, error)
}

// Service records raw webhook traffic for debugging and correlation.
//
// IMPORTANT:
// - Internal-only. Payloads contain phone numbers and message bodies.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Direction == "" || e.Payload == "" {
		return ErrInvalidEvent
	}
	if !json.Valid([]byte(e.Payload)) {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Kind == "" {
		e.Kind = KindUnknown
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogInbound records an inbound webhook body tagged with its correlated message ID.
func (s *Service) LogInbound(ctx context.Context, kind Kind, messageID, phone string, payload []byte) error {
	return s.Append(ctx, Event{
		Direction: DirectionInbound,
		Kind:      kind,
		MessageID: messageID,
		Phone:     phone,
		Payload:   string(payload),
	})
}

// History returns the recorded payloads for one provider message, used to
// trace a delivery status back to the webhook bodies that carried it.
func (s *Service) History(ctx context.Context, messageID string) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if messageID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.ByMessageID(ctx, messageID)
}
