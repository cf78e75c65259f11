package conversation

// Event is an input to Decide: an inbound message or a scheduler wake-up.
type Event interface {
	name() string
}

// MessageType is the provider's inbound message type.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageAudio       MessageType = "audio"
	MessageImage       MessageType = "image"
	MessageButton      MessageType = "button"
	MessageInteractive MessageType = "interactive"
)

// Textual reports whether the message carries a reply the storyteller typed or tapped.
func (t MessageType) Textual() bool {
	return t == MessageText || t == MessageButton || t == MessageInteractive
}

// Inbound is a message from a phone, already resolved to a trial.
type Inbound struct {
	From     string
	Type     MessageType
	Text     string
	MediaID  string
	MimeType string
}

// Answer is inbound audio recorded as a new VoiceNote for the current question.
type Answer struct {
	VoiceNoteID string
	MediaID     string
	MimeType    string
}

// DueQuestion fires when next_question_due_at has passed.
type DueQuestion struct{}

// ReadinessRetry fires when readiness_retry_due_at has passed.
type ReadinessRetry struct{}

// ReminderDue fires for an unanswered question past the reminder interval.
type ReminderDue struct{}

// CheckinDue fires when either post-completion check-in is due.
type CheckinDue struct{}

func (Inbound) name() string        { return "inbound" }
func (Answer) name() string         { return "answer" }
func (DueQuestion) name() string    { return "due_question" }
func (ReadinessRetry) name() string { return "readiness_retry" }
func (ReminderDue) name() string    { return "reminder" }
func (CheckinDue) name() string     { return "checkin" }

// EventName is the metrics label for e.
func EventName(e Event) string { return e.name() }
