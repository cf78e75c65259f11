package trials

import (
	"strings"
	"time"
)

// Trial is one storyteller answering the questions of one album.
//
// Invariants:
// - CurrentQuestionIndex never decreases (enforced by every repository).
// - StorytellerPhone is empty until first contact binds it.
// - At most one scheduling timestamp governs the next scheduler wake; superseded
//   timestamps are cleared in the same update that sets the new one.
type Trial struct {
	ID      string `json:"id" db:"id"`
	OrderID string `json:"order_id,omitempty" db:"order_id"`

	BuyerPhone       string `json:"buyer_phone,omitempty" db:"buyer_phone"`
	BuyerName        string `json:"buyer_name" db:"buyer_name"`
	StorytellerPhone string `json:"storyteller_phone,omitempty" db:"storyteller_phone"`
	StorytellerName  string `json:"storyteller_name" db:"storyteller_name"`

	AlbumID string `json:"album_id" db:"album_id"`
	// AlbumTitle is denormalized for older rows that predate album IDs.
	AlbumTitle string   `json:"album_title" db:"album_title"`
	Language   Language `json:"language" db:"language"`

	State State `json:"state" db:"conversation_state"`

	CurrentQuestionIndex int `json:"current_question_index" db:"current_question_index"`
	ReminderCount        int `json:"reminder_count" db:"reminder_count"`
	ReadinessRetryCount  int `json:"readiness_retry_count" db:"readiness_retry_count"`

	CustomCoverImageURL string `json:"custom_cover_image_url,omitempty" db:"custom_cover_image_url"`

	NextQuestionDueAt       *time.Time `json:"next_question_due_at,omitempty" db:"next_question_due_at"`
	ReminderDueAt           *time.Time `json:"reminder_due_at,omitempty" db:"reminder_due_at"`
	ReadinessRetryDueAt     *time.Time `json:"readiness_retry_due_at,omitempty" db:"readiness_retry_due_at"`
	BuyerCheckinDueAt       *time.Time `json:"buyer_checkin_due_at,omitempty" db:"buyer_checkin_due_at"`
	StorytellerCheckinDueAt *time.Time `json:"storyteller_checkin_due_at,omitempty" db:"storyteller_checkin_due_at"`

	WelcomeSentAt   *time.Time `json:"welcome_sent_at,omitempty" db:"welcome_sent_at"`
	ReadinessSentAt *time.Time `json:"readiness_sent_at,omitempty" db:"readiness_sent_at"`
	QuestionSentAt  *time.Time `json:"question_sent_at,omitempty" db:"question_sent_at"`
	ReminderSentAt  *time.Time `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// State is the conversation state of a trial. Keep values stable; they are persisted.
type State string

const (
	StateAwaitingInitialContact State = "awaiting_initial_contact"
	StateAwaitingReadiness      State = "awaiting_readiness"
	StateInProgress             State = "in_progress"
	StateCompleted              State = "completed"
)

func (s State) Valid() bool {
	switch s {
	case StateAwaitingInitialContact, StateAwaitingReadiness, StateInProgress, StateCompleted:
		return true
	default:
		return false
	}
}

// Active reports whether the storyteller is mid-conversation on this trial.
func (s State) Active() bool {
	return s == StateInProgress || s == StateAwaitingReadiness
}

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hn"
)

func ParseLanguage(v string) (Language, bool) {
	switch Language(strings.ToLower(strings.TrimSpace(v))) {
	case LanguageEnglish, "":
		return LanguageEnglish, true
	case LanguageHindi:
		return LanguageHindi, true
	default:
		return "", false
	}
}

// HasStoryteller reports whether a storyteller phone has been bound.
func (t Trial) HasStoryteller() bool { return t.StorytellerPhone != "" }

// VoiceNote is one recorded answer.
// Unique per (trial_id, question_index); duplicates are rejected, never overwritten.
type VoiceNote struct {
	ID            string `json:"id" db:"id"`
	TrialID       string `json:"trial_id" db:"trial_id"`
	QuestionIndex int    `json:"question_index" db:"question_index"`

	// MediaID is the provider's opaque media reference.
	MediaID  string `json:"media_id" db:"media_id"`
	MimeType string `json:"mime_type,omitempty" db:"mime_type"`

	Status      MediaStatus `json:"status" db:"download_status"`
	URL         string      `json:"url,omitempty" db:"url"`
	ContentHash string      `json:"content_hash,omitempty" db:"content_hash"`
	SizeBytes   int64       `json:"size_bytes" db:"size_bytes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type MediaStatus string

const (
	MediaStatusPending   MediaStatus = "pending"
	MediaStatusCompleted MediaStatus = "completed"
	MediaStatusFailed    MediaStatus = "failed"
)

// MediaResult is the outcome of post-processing a voice note.
type MediaResult struct {
	Status      MediaStatus
	URL         string
	ContentHash string
	SizeBytes   int64
}
