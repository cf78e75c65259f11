package conversation

import (
	"time"

	"memoir-platform/internal/albums"
	"memoir-platform/internal/locale"
	"memoir-platform/internal/outbox"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
)

// Rules holds the timing constants of the conversation.
type Rules struct {
	PairingDelay              time.Duration
	MaybeRetryDelay           time.Duration
	ReadinessRetryDelay       time.Duration
	MaxReadinessRetries       int
	NextQuestionDelay         time.Duration
	DueQuestionRetryDelay     time.Duration
	MaxReminders              int
	MaxConversationalReminder int
	CheckinDelay              time.Duration

	// ReminderAfter is both the silence before the first reminder and the
	// spacing between reminders.
	ReminderAfter time.Duration

	// AlbumURL builds the public album link sent to the buyer on completion.
	AlbumURL func(trialID string) string
}

func DefaultRules() Rules {
	return Rules{
		PairingDelay:              outbox.PairingDelay,
		MaybeRetryDelay:           4 * time.Hour,
		ReadinessRetryDelay:       8 * time.Hour,
		MaxReadinessRetries:       3,
		NextQuestionDelay:         23 * time.Hour,
		DueQuestionRetryDelay:     time.Hour,
		MaxReminders:              3,
		MaxConversationalReminder: 2,
		ReminderAfter:             10 * time.Hour,
		CheckinDelay:              48 * time.Hour,
		AlbumURL:                  func(id string) string { return "/albums/" + id },
	}
}

// Snapshot is everything Decide may read. It is built by the caller after the
// per-trial lock is held.
type Snapshot struct {
	Trial trials.Trial
	Album albums.Album
	Now   time.Time

	// ActiveCount is the number of active trials for the sender when the trial
	// was resolved by active lookup; zero otherwise.
	ActiveCount int
	// OwnReference is true when the message text carried this trial's reference token.
	OwnReference bool
}

// Transition is the decided outcome of one event.
//
// Update is persisted before Effects are dispatched. When a primary send fails and
// OnSendFailure is set, it is persisted afterwards as a compensating update.
type Transition struct {
	Update        trials.Update
	OnSendFailure *trials.Update
	Effects       []outbox.Effect
	// Reason is a short label for logs.
	Reason string
}

// NextState is the state after Update, or the current state when unchanged.
func (t Transition) NextState(current trials.State) trials.State {
	if t.Update.State != nil {
		return *t.Update.State
	}
	return current
}

// Machine maps (snapshot, event) to a transition. It performs no I/O.
type Machine struct {
	rules Rules
}

func NewMachine(rules Rules) *Machine {
	return &Machine{rules: rules}
}

// Decide is the single dispatch point of the conversation.
func (m *Machine) Decide(s Snapshot, e Event) Transition {
	switch e := e.(type) {
	case Inbound:
		return m.inbound(s, e)
	case Answer:
		return m.answer(s, e)
	case DueQuestion:
		return m.dueQuestion(s)
	case ReadinessRetry:
		return m.readinessRetry(s)
	case ReminderDue:
		return m.reminder(s)
	case CheckinDue:
		return m.checkin(s)
	default:
		return Transition{Reason: "unknown event"}
	}
}

func (m *Machine) inbound(s Snapshot, e Inbound) Transition {
	t := s.Trial

	if e.Type == MessageImage && e.MediaID != "" && t.BuyerPhone != "" && e.From == t.BuyerPhone {
		return Transition{
			Reason: "cover photo",
			Effects: []outbox.Effect{outbox.CoverJob{
				TrialID:  t.ID,
				MediaID:  e.MediaID,
				MimeType: e.MimeType,
				ReplyTo:  t.BuyerPhone,
				Lang:     t.Language,
			}},
		}
	}
	if e.From != t.StorytellerPhone {
		return Transition{Reason: "sender is not the storyteller"}
	}

	if t.State == trials.StateAwaitingInitialContact {
		return m.firstContact(s)
	}

	if s.OwnReference && e.Type.Textual() {
		return m.ownReference(s)
	}

	if t.State == trials.StateAwaitingReadiness && e.Type.Textual() {
		switch ClassifyReadiness(e.Text) {
		case ReadinessYes:
			return m.startQuestion(s, "readiness yes")
		case ReadinessMaybe:
			return Transition{
				Reason: "readiness maybe",
				Update: trials.Update{
					ReadinessRetryDueAt: trials.At(s.Now.Add(m.rules.MaybeRetryDelay)),
					ReadinessRetryCount: trials.Ptr(0),
				},
				Effects: []outbox.Effect{m.text(t.StorytellerPhone, locale.ReadinessMaybeAck{}, t.Language)},
			}
		}
	}

	if s.ActiveCount > 1 && e.Type.Textual() && t.State.Active() {
		return m.anotherActive(s)
	}

	if t.State == trials.StateInProgress && e.Type == MessageText && t.NextQuestionDueAt == nil {
		return Transition{
			Reason:  "text while awaiting answer",
			Effects: []outbox.Effect{m.text(t.StorytellerPhone, locale.SendVoiceNote{}, t.Language)},
		}
	}
	return Transition{Reason: "ignored"}
}

func (m *Machine) firstContact(s Snapshot) Transition {
	t := s.Trial
	return Transition{
		Reason: "first contact",
		Update: trials.Update{
			State:           trials.Ptr(trials.StateAwaitingReadiness),
			WelcomeSentAt:   trials.At(s.Now),
			ReadinessSentAt: trials.At(s.Now),
		},
		Effects: []outbox.Effect{
			m.text(t.StorytellerPhone, locale.Onboarding{
				StorytellerName: t.StorytellerName,
				BuyerName:       t.BuyerName,
				AlbumTitle:      albumTitle(s),
			}, t.Language),
			outbox.Pause{D: m.rules.PairingDelay},
			m.readinessPrompt(t),
		},
	}
}

func (m *Machine) ownReference(s Snapshot) Transition {
	t := s.Trial
	found := m.text(t.StorytellerPhone, locale.FoundCollection{AlbumTitle: albumTitle(s)}, t.Language)
	switch t.State {
	case trials.StateAwaitingReadiness:
		return Transition{Reason: "own reference", Effects: []outbox.Effect{found, m.readinessPrompt(t)}}
	case trials.StateInProgress:
		return Transition{Reason: "own reference", Effects: []outbox.Effect{m.text(t.StorytellerPhone, locale.SendVoiceNote{}, t.Language)}}
	default:
		return Transition{Reason: "own reference", Effects: []outbox.Effect{found}}
	}
}

// startQuestion moves the trial to in_progress and sends the question at the current index.
func (m *Machine) startQuestion(s Snapshot, reason string) Transition {
	t := s.Trial
	effects, ok := m.questionEffects(s, t.CurrentQuestionIndex)
	if !ok {
		return m.complete(s, t.CurrentQuestionIndex, nil)
	}
	return Transition{
		Reason: reason,
		Update: trials.Update{
			State:               trials.Ptr(trials.StateInProgress),
			QuestionSentAt:      trials.At(s.Now),
			NextQuestionDueAt:   trials.Clear(),
			ReadinessRetryDueAt: trials.Clear(),
			ReminderSentAt:      trials.Clear(),
			ReminderCount:       trials.Ptr(0),
			ReadinessRetryCount: trials.Ptr(0),
		},
		Effects: effects,
	}
}

func (m *Machine) anotherActive(s Snapshot) Transition {
	t := s.Trial
	effects, ok := m.questionEffects(s, t.CurrentQuestionIndex)
	if !ok {
		return Transition{Reason: "another active story without a pending question"}
	}
	notice := m.text(t.StorytellerPhone, locale.AnotherActiveStory{AlbumTitle: albumTitle(s)}, t.Language)
	return Transition{
		Reason: "another active story",
		Update: trials.Update{
			State:               trials.Ptr(trials.StateInProgress),
			QuestionSentAt:      trials.At(s.Now),
			NextQuestionDueAt:   trials.Clear(),
			ReadinessRetryDueAt: trials.Clear(),
		},
		Effects: append([]outbox.Effect{notice}, effects...),
	}
}

func (m *Machine) answer(s Snapshot, e Answer) Transition {
	t := s.Trial
	if t.State != trials.StateInProgress {
		return Transition{Reason: "answer outside in_progress"}
	}
	idx := t.CurrentQuestionIndex
	next := idx + 1
	total := s.Album.TotalQuestions(t.Language)

	effects := []outbox.Effect{outbox.AudioJob{
		TrialID:     t.ID,
		VoiceNoteID: e.VoiceNoteID,
		MediaID:     e.MediaID,
		MimeType:    e.MimeType,
	}}

	if next >= total {
		return m.complete(s, next, effects)
	}

	if s.Album.IsConversational && idx%albums.BatchSize < albums.BatchSize-1 {
		qs, _ := m.questionEffects(s, next)
		effects = append(effects, m.text(t.StorytellerPhone, locale.IntermediateAck{}, t.Language))
		effects = append(effects, qs...)
		return Transition{
			Reason: "answer, next in batch",
			Update: trials.Update{
				CurrentQuestionIndex: trials.Ptr(next),
				QuestionSentAt:       trials.At(s.Now),
				NextQuestionDueAt:    trials.Clear(),
				ReminderSentAt:       trials.Clear(),
				ReminderCount:        trials.Ptr(0),
			},
			Effects: effects,
		}
	}

	effects = append(effects, m.text(t.StorytellerPhone, locale.AnswerAck{}, t.Language))
	return Transition{
		Reason: "answer, next scheduled",
		Update: trials.Update{
			CurrentQuestionIndex: trials.Ptr(next),
			NextQuestionDueAt:    trials.At(s.Now.Add(m.rules.NextQuestionDelay)),
			ReminderSentAt:       trials.Clear(),
			ReminderCount:        trials.Ptr(0),
		},
		Effects: effects,
	}
}

func (m *Machine) complete(s Snapshot, index int, effects []outbox.Effect) Transition {
	t := s.Trial
	upd := trials.Update{
		State:                   trials.Ptr(trials.StateCompleted),
		CurrentQuestionIndex:    trials.Ptr(index),
		NextQuestionDueAt:       trials.Clear(),
		ReadinessRetryDueAt:     trials.Clear(),
		StorytellerCheckinDueAt: trials.At(s.Now.Add(m.rules.CheckinDelay)),
	}
	effects = append(effects, m.text(t.StorytellerPhone, locale.CompletionStoryteller{StorytellerName: t.StorytellerName}, t.Language))
	if t.BuyerPhone != "" {
		effects = append(effects, m.text(t.BuyerPhone, locale.CompletionBuyer{
			BuyerName:       t.BuyerName,
			StorytellerName: t.StorytellerName,
			AlbumURL:        m.rules.AlbumURL(t.ID),
		}, t.Language))
		upd.BuyerCheckinDueAt = trials.At(s.Now.Add(m.rules.CheckinDelay))
	}
	return Transition{Reason: "completed", Update: upd, Effects: effects}
}

func (m *Machine) dueQuestion(s Snapshot) Transition {
	t := s.Trial
	if !t.HasStoryteller() {
		return Transition{Reason: "no storyteller phone"}
	}
	// The sweep listed the trial before the lock was taken; an inbound message
	// may have rescheduled or cleared the due time since.
	if !due(t.NextQuestionDueAt, s.Now) {
		return Transition{Reason: "due question no longer due"}
	}
	if t.State != trials.StateInProgress {
		return Transition{Reason: "due question outside in_progress", Update: trials.Update{NextQuestionDueAt: trials.Clear()}}
	}
	return Transition{
		Reason: "due question readiness check",
		Update: trials.Update{
			State:               trials.Ptr(trials.StateAwaitingReadiness),
			ReadinessSentAt:     trials.At(s.Now),
			NextQuestionDueAt:   trials.Clear(),
			ReadinessRetryDueAt: trials.At(s.Now.Add(m.rules.ReadinessRetryDelay)),
			ReadinessRetryCount: trials.Ptr(0),
		},
		OnSendFailure: &trials.Update{
			State:               trials.Ptr(trials.StateInProgress),
			NextQuestionDueAt:   trials.At(s.Now.Add(m.rules.DueQuestionRetryDelay)),
			ReadinessRetryDueAt: trials.Clear(),
		},
		Effects: []outbox.Effect{m.readinessPrompt(t)},
	}
}

func (m *Machine) readinessRetry(s Snapshot) Transition {
	t := s.Trial
	if !due(t.ReadinessRetryDueAt, s.Now) {
		return Transition{Reason: "readiness retry no longer due"}
	}
	if t.State != trials.StateAwaitingReadiness || !t.HasStoryteller() {
		return Transition{Reason: "readiness retry not applicable", Update: trials.Update{ReadinessRetryDueAt: trials.Clear()}}
	}
	if t.ReadinessRetryCount >= m.rules.MaxReadinessRetries {
		return Transition{Reason: "readiness retries exhausted", Update: trials.Update{ReadinessRetryDueAt: trials.Clear()}}
	}
	n := t.ReadinessRetryCount + 1
	upd := trials.Update{
		ReadinessRetryCount: trials.Ptr(n),
		ReadinessSentAt:     trials.At(s.Now),
		ReadinessRetryDueAt: trials.Clear(),
	}
	if n < m.rules.MaxReadinessRetries {
		upd.ReadinessRetryDueAt = trials.At(s.Now.Add(m.rules.ReadinessRetryDelay))
	}
	return Transition{
		Reason:  "readiness retry",
		Update:  upd,
		Effects: []outbox.Effect{m.readinessPrompt(t)},
	}
}

func (m *Machine) reminder(s Snapshot) Transition {
	t := s.Trial
	if t.State != trials.StateInProgress || t.NextQuestionDueAt != nil || !t.HasStoryteller() {
		return Transition{Reason: "reminder not applicable"}
	}
	quietSince := s.Now.Add(-m.rules.ReminderAfter)
	if !due(t.QuestionSentAt, quietSince) || (t.ReminderSentAt != nil && !due(t.ReminderSentAt, quietSince)) {
		return Transition{Reason: "reminder not yet due"}
	}
	limit := m.rules.MaxReminders
	if s.Album.IsConversational {
		limit = m.rules.MaxConversationalReminder
	}
	if t.ReminderCount >= limit {
		return Transition{Reason: "reminders exhausted"}
	}
	return Transition{
		Reason: "reminder",
		Update: trials.Update{
			ReminderCount:  trials.Ptr(t.ReminderCount + 1),
			ReminderSentAt: trials.At(s.Now),
		},
		Effects: []outbox.Effect{m.text(t.StorytellerPhone, locale.Reminder{StorytellerName: t.StorytellerName}, t.Language)},
	}
}

func (m *Machine) checkin(s Snapshot) Transition {
	t := s.Trial
	var (
		upd     trials.Update
		effects []outbox.Effect
	)
	if due(t.StorytellerCheckinDueAt, s.Now) {
		upd.StorytellerCheckinDueAt = trials.Clear()
		if t.HasStoryteller() {
			effects = append(effects, m.text(t.StorytellerPhone, locale.CheckinStoryteller{StorytellerName: t.StorytellerName}, t.Language))
		}
	}
	if due(t.BuyerCheckinDueAt, s.Now) {
		upd.BuyerCheckinDueAt = trials.Clear()
		if t.BuyerPhone != "" {
			effects = append(effects, m.text(t.BuyerPhone, locale.CheckinBuyer{BuyerName: t.BuyerName}, t.Language))
		}
	}
	return Transition{Reason: "checkin", Update: upd, Effects: effects}
}

// questionEffects renders the question at idx plus its batch premise and the buyer photo request.
func (m *Machine) questionEffects(s Snapshot, idx int) ([]outbox.Effect, bool) {
	t := s.Trial
	text, ok := s.Album.Question(idx, t.Language)
	if !ok {
		return nil, false
	}
	qlang := s.Album.ResolvedLanguage(t.Language)

	var effects []outbox.Effect
	if title, premise, ok := s.Album.BatchIntro(idx, t.Language); ok {
		effects = append(effects, m.text(t.StorytellerPhone, locale.BatchPremise{Title: title, Premise: premise}, qlang))
	}
	effects = append(effects, m.text(t.StorytellerPhone, locale.Question{
		Number: idx + 1,
		Total:  s.Album.TotalQuestions(t.Language),
		Text:   text,
	}, qlang))

	if t.BuyerPhone != "" && t.CustomCoverImageURL == "" && idx >= 2 {
		effects = append(effects, outbox.Text{
			To:         t.BuyerPhone,
			Message:    locale.PhotoRequest{BuyerName: t.BuyerName, StorytellerName: t.StorytellerName},
			Lang:       t.Language,
			BestEffort: true,
		})
	}
	return effects, true
}

func (m *Machine) readinessPrompt(t trials.Trial) outbox.Effect {
	return outbox.Template{
		To: t.StorytellerPhone,
		Template: whatsapp.Template{
			Name:       locale.TemplateName(locale.TemplateReadinessCheck, t.Language),
			BodyParams: []string{t.StorytellerName},
		},
	}
}

func (m *Machine) text(to string, msg locale.Message, lang trials.Language) outbox.Effect {
	return outbox.Text{To: to, Message: msg, Lang: lang}
}

func albumTitle(s Snapshot) string {
	if s.Album.Title != "" {
		return s.Album.Title
	}
	return s.Trial.AlbumTitle
}

func due(ts *time.Time, now time.Time) bool {
	return ts != nil && !ts.After(now)
}
