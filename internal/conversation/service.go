package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"memoir-platform/internal/albums"
	"memoir-platform/internal/locale"
	"memoir-platform/internal/metrics"
	"memoir-platform/internal/outbox"
	"memoir-platform/internal/resolver"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
	"memoir-platform/pkg/logger"
)

// Store is the persistence the conversation needs.
type Store interface {
	trials.Repository
	trials.VoiceNoteRepository
}

// InboundMessage is one parsed provider message.
type InboundMessage struct {
	ID       string
	From     string
	Type     MessageType
	Text     string
	MediaID  string
	MimeType string
}

// Service runs inbound messages and scheduler wake-ups through the machine.
//
// For every event on a trial, in order:
//  1. take the per-trial lock and reload the trial
//  2. decide the transition
//  3. persist the update
//  4. dispatch the effects
//  5. persist the compensating update if a primary send failed
type Service struct {
	store    Store
	catalog  albums.Catalog
	resolver *resolver.Resolver
	machine  *Machine
	outbox   *outbox.Dispatcher
	locker   Locker
	now      func() time.Time
	l        *slog.Logger
}

func NewService(store Store, catalog albums.Catalog, res *resolver.Resolver, m *Machine, d *outbox.Dispatcher, locker Locker, l *slog.Logger) *Service {
	if l == nil {
		l = slog.Default()
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Service{
		store:    store,
		catalog:  catalog,
		resolver: res,
		machine:  m,
		outbox:   d,
		locker:   locker,
		now:      func() time.Time { return time.Now().UTC() },
		l:        l,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// HandleInbound resolves msg to a trial and applies it. An error means the
// message was not fully processed and may be retried.
func (s *Service) HandleInbound(ctx context.Context, msg InboundMessage) error {
	res, err := s.resolver.Resolve(ctx, resolver.Input{From: msg.From, Text: msg.Text, Type: string(msg.Type)})
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	if res.Handled {
		if res.Found {
			ctx = whatsapp.WithTrialID(ctx, res.Trial.ID)
		}
		s.outbox.Dispatch(ctx, res.Effects)
		return nil
	}
	if !res.Found {
		return nil
	}

	snap := Snapshot{OwnReference: res.OwnReference()}
	if res.Source == resolver.SourceActive {
		snap.ActiveCount = res.ActiveCount
	}
	in := Inbound{
		From:     trials.NormalizePhone(msg.From),
		Type:     msg.Type,
		Text:     msg.Text,
		MediaID:  msg.MediaID,
		MimeType: msg.MimeType,
	}
	return s.withTrial(ctx, res.Trial.ID, func(ctx context.Context, t trials.Trial, a albums.Album) (Event, bool, error) {
		if msg.Type != MessageAudio {
			return in, true, nil
		}
		if in.From != t.StorytellerPhone {
			return nil, false, nil
		}
		return s.recordAnswer(ctx, t, in)
	}, snap)
}

// Resume applies a scheduler event to one trial.
func (s *Service) Resume(ctx context.Context, trialID string, e Event) error {
	return s.withTrial(ctx, trialID, func(context.Context, trials.Trial, albums.Album) (Event, bool, error) {
		return e, true, nil
	}, Snapshot{})
}

// recordAnswer stores the audio as a VoiceNote and decides whether it advances
// the conversation. Duplicates for an answered question are ignored.
func (s *Service) recordAnswer(ctx context.Context, t trials.Trial, in Inbound) (Event, bool, error) {
	l := logger.From(ctx)
	if t.State != trials.StateInProgress {
		l.Info("audio ignored outside in_progress", "state", t.State)
		return nil, false, nil
	}
	idx := t.CurrentQuestionIndex
	if t.NextQuestionDueAt != nil {
		// The current question was already answered; the next one is not sent yet.
		idx--
	}
	if idx < 0 || in.MediaID == "" {
		return nil, false, nil
	}

	note := trials.VoiceNote{
		ID:            uuid.NewString(),
		TrialID:       t.ID,
		QuestionIndex: idx,
		MediaID:       in.MediaID,
		MimeType:      in.MimeType,
		Status:        trials.MediaStatusPending,
	}
	created, err := s.store.CreateVoiceNote(ctx, note)
	if err != nil {
		return nil, false, fmt.Errorf("create voice note: %w", err)
	}
	if !created {
		if idx != t.CurrentQuestionIndex {
			l.Info("duplicate voice note ignored", "question_index", idx)
			return nil, false, nil
		}
		// Every applied answer moves the index past its note, so a note at the
		// current index is an answer whose transition was never persisted.
		stored, err := s.voiceNoteAt(ctx, t.ID, idx)
		if err != nil {
			return nil, false, err
		}
		l.Warn("re-applying stored answer", "question_index", idx, "voice_note_id", stored.ID)
		return Answer{VoiceNoteID: stored.ID, MediaID: stored.MediaID, MimeType: stored.MimeType}, true, nil
	}
	if idx != t.CurrentQuestionIndex {
		s.outbox.Dispatch(ctx, []outbox.Effect{outbox.AudioJob{TrialID: t.ID, VoiceNoteID: note.ID, MediaID: in.MediaID, MimeType: in.MimeType}})
		return nil, false, nil
	}
	return Answer{VoiceNoteID: note.ID, MediaID: in.MediaID, MimeType: in.MimeType}, true, nil
}

func (s *Service) voiceNoteAt(ctx context.Context, trialID string, idx int) (trials.VoiceNote, error) {
	notes, err := s.store.ListVoiceNotes(ctx, trialID)
	if err != nil {
		return trials.VoiceNote{}, fmt.Errorf("list voice notes: %w", err)
	}
	for _, n := range notes {
		if n.QuestionIndex == idx {
			return n, nil
		}
	}
	return trials.VoiceNote{}, fmt.Errorf("voice note for question %d: %w", idx, trials.ErrNotFound)
}

type eventFunc func(ctx context.Context, t trials.Trial, a albums.Album) (Event, bool, error)

func (s *Service) withTrial(ctx context.Context, trialID string, next eventFunc, snap Snapshot) error {
	unlock, err := s.locker.Lock(ctx, trialID)
	if err != nil {
		return fmt.Errorf("lock trial: %w", err)
	}
	defer unlock()

	ctx = whatsapp.WithTrialID(ctx, trialID)
	ctx = logger.With(ctx, s.l.With("trial_id", trialID))

	t, err := s.store.Get(ctx, trialID)
	if err != nil {
		return fmt.Errorf("load trial: %w", err)
	}
	a, err := s.catalog.Get(ctx, t.AlbumID)
	if err != nil {
		if errors.Is(err, albums.ErrNotFound) {
			s.l.Error("trial references unknown album", "trial_id", t.ID, "album_id", t.AlbumID)
			if t.HasStoryteller() {
				s.outbox.Dispatch(ctx, []outbox.Effect{outbox.Text{To: t.StorytellerPhone, Message: locale.Apology{}, Lang: t.Language}})
			}
		}
		return fmt.Errorf("load album %s: %w", t.AlbumID, err)
	}

	e, ok, err := next(ctx, t, a)
	if err != nil || !ok {
		return err
	}

	snap.Trial, snap.Album, snap.Now = t, a, s.now()
	tr := s.machine.Decide(snap, e)
	metrics.Transitions.WithLabelValues(EventName(e), string(tr.NextState(t.State))).Inc()
	logger.From(ctx).Debug("conversation decision", "event", EventName(e), "reason", tr.Reason, "state", t.State, "effects", len(tr.Effects))

	if !tr.Update.IsZero() {
		if _, err := s.store.Update(ctx, t.ID, tr.Update); err != nil {
			return fmt.Errorf("persist transition: %w", err)
		}
	}
	if len(tr.Effects) == 0 {
		return nil
	}
	if s.outbox.Dispatch(ctx, tr.Effects) || tr.OnSendFailure == nil {
		return nil
	}
	s.l.Warn("primary send failed, applying compensating update", "trial_id", t.ID, "reason", tr.Reason)
	if _, err := s.store.Update(ctx, t.ID, *tr.OnSendFailure); err != nil {
		return fmt.Errorf("persist compensating update: %w", err)
	}
	return nil
}
