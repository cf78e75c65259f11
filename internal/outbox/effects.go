package outbox

import (
	"time"

	"memoir-platform/internal/locale"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
)

// Effect is a deferred side effect produced by a conversation decision.
// Effects are executed in order by a Dispatcher.
type Effect interface {
	effect()
}

// Text sends a localized message.
type Text struct {
	To      string
	Message locale.Message
	Lang    trials.Language
	// BestEffort sends never count as a primary failure.
	BestEffort bool
}

// Template sends a provider template.
type Template struct {
	To         string
	Template   whatsapp.Template
	BestEffort bool
}

// CTA sends an interactive message with a URL button.
type CTA struct {
	To         string
	CTA        whatsapp.CTA
	BestEffort bool
}

// Pause delays the following effects so paired messages arrive in order.
type Pause struct {
	D time.Duration
}

// AudioJob starts voice note post-processing in the background.
type AudioJob struct {
	TrialID     string
	VoiceNoteID string
	MediaID     string
	MimeType    string
}

// CoverJob starts buyer cover photo processing in the background.
type CoverJob struct {
	TrialID  string
	MediaID  string
	MimeType string
	// ReplyTo receives the acknowledgement or the failure message.
	ReplyTo string
	Lang    trials.Language
}

func (Text) effect()     {}
func (Template) effect() {}
func (CTA) effect()      {}
func (Pause) effect()    {}
func (AudioJob) effect() {}
func (CoverJob) effect() {}
