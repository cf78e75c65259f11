package trials

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("trials: not found")
	ErrInvalidArgument = errors.New("trials: invalid argument")
)

// Repository is the Trial Store query surface.
//
// IMPORTANT:
// - Update must never move current_question_index backwards.
// - List methods return rows ordered by created_at ascending unless stated otherwise.
type Repository interface {
	Create(ctx context.Context, t Trial) error
	Get(ctx context.Context, id string) (Trial, error)
	Update(ctx context.Context, id string, u Update) (Trial, error)

	// ListActiveByStoryteller returns in_progress/awaiting_readiness trials for the phone, oldest first.
	ListActiveByStoryteller(ctx context.Context, phone string) ([]Trial, error)
	// ListByPhone returns every trial where the phone is the storyteller or the buyer, newest first.
	ListByPhone(ctx context.Context, phone string) ([]Trial, error)
	ListByBuyer(ctx context.Context, phone string) ([]Trial, error)

	ListDueQuestions(ctx context.Context, now time.Time) ([]Trial, error)
	ListPendingReminders(ctx context.Context, q ReminderQuery) ([]Trial, error)
	ListReadinessRetriesDue(ctx context.Context, now time.Time) ([]Trial, error)
	ListCheckinsDue(ctx context.Context, now time.Time) ([]Trial, error)
}

// ReminderQuery pre-filters reminder candidates. The per-album cap and the
// unanswered check are applied by the caller.
type ReminderQuery struct {
	// QuestionSentBefore: last question sent at or before this instant.
	QuestionSentBefore time.Time
	// MaxReminders: reminder_count strictly below this.
	MaxReminders int
}

// VoiceNoteRepository owns VoiceNote rows.
type VoiceNoteRepository interface {
	// CreateVoiceNote inserts v unless a note already exists for (trial, question index).
	// created is false for the duplicate case; the existing row is left untouched.
	CreateVoiceNote(ctx context.Context, v VoiceNote) (created bool, err error)
	VoiceNoteExists(ctx context.Context, trialID string, questionIndex int) (bool, error)
	UpdateVoiceNoteMedia(ctx context.Context, id string, res MediaResult) error
	ListVoiceNotes(ctx context.Context, trialID string) ([]VoiceNote, error)
}
