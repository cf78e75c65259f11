package trials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError describes why a trial request was rejected.
// It wraps ErrInvalidArgument so callers can match with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("trials: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// AlbumChecker confirms an album exists and returns its title.
type AlbumChecker interface {
	AlbumTitle(ctx context.Context, albumID string) (string, error)
}

// CreateInput is a buyer's trial request as received from the payments flow.
type CreateInput struct {
	OrderID         string `json:"order_id"`
	AlbumID         string `json:"album_id"`
	BuyerPhone      string `json:"buyer_phone"`
	BuyerName       string `json:"buyer_name"`
	StorytellerName string `json:"storyteller_name"`
	Language        string `json:"language"`
}

// Service creates trials. Conversation progress is owned by the conversation package.
type Service struct {
	repo   Repository
	albums AlbumChecker
	clock  func() time.Time
}

func NewService(repo Repository, albums AlbumChecker) *Service {
	return &Service{repo: repo, albums: albums, clock: time.Now}
}

// Create validates in and persists a new trial in awaiting_initial_contact.
// Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, in CreateInput) (Trial, error) {
	if s.repo == nil {
		return Trial{}, errors.New("trials: repository not configured")
	}

	albumID := strings.TrimSpace(in.AlbumID)
	if albumID == "" {
		return Trial{}, &ValidationError{Field: "album_id", Reason: "required"}
	}
	if _, err := uuid.Parse(albumID); err != nil {
		return Trial{}, &ValidationError{Field: "album_id", Reason: "must be a uuid"}
	}

	buyerPhone := NormalizePhone(in.BuyerPhone)
	if len(buyerPhone) < 8 || len(buyerPhone) > 15 {
		return Trial{}, &ValidationError{Field: "buyer_phone", Reason: "must contain 8 to 15 digits"}
	}

	buyerName := strings.TrimSpace(in.BuyerName)
	if buyerName == "" {
		return Trial{}, &ValidationError{Field: "buyer_name", Reason: "required"}
	}
	storytellerName := strings.TrimSpace(in.StorytellerName)
	if storytellerName == "" {
		return Trial{}, &ValidationError{Field: "storyteller_name", Reason: "required"}
	}

	lang, ok := ParseLanguage(in.Language)
	if !ok {
		return Trial{}, &ValidationError{Field: "language", Reason: "must be en or hn"}
	}

	var title string
	if s.albums != nil {
		t, err := s.albums.AlbumTitle(ctx, albumID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Trial{}, &ValidationError{Field: "album_id", Reason: "unknown album"}
			}
			return Trial{}, fmt.Errorf("trials: album lookup: %w", err)
		}
		title = t
	}

	now := s.clock().UTC()
	t := Trial{
		ID:              uuid.NewString(),
		OrderID:         strings.TrimSpace(in.OrderID),
		BuyerPhone:      buyerPhone,
		BuyerName:       buyerName,
		StorytellerName: storytellerName,
		AlbumID:         albumID,
		AlbumTitle:      title,
		Language:        lang,
		State:           StateAwaitingInitialContact,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return Trial{}, err
	}
	return t, nil
}
