package conversation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"memoir-platform/internal/albums"
	"memoir-platform/internal/locale"
	"memoir-platform/internal/outbox"
	"memoir-platform/internal/resolver"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
)

const (
	trialID     = "33333333-3333-4333-8333-333333333333"
	storyteller = "911234567890"
	buyer       = "919000000001"
)

type recordingMedia struct {
	mu    sync.Mutex
	audio []outbox.AudioJob
}

func (m *recordingMedia) StartAudio(ctx context.Context, job outbox.AudioJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = append(m.audio, job)
}

func (m *recordingMedia) StartCover(ctx context.Context, job outbox.CoverJob) {}

type harness struct {
	svc   *Service
	repo  *trials.MemoryRepo
	gw    *whatsapp.MemoryGateway
	media *recordingMedia
	clock time.Time
}

func newHarness(t *testing.T, a albums.Album) *harness {
	t.Helper()
	h := &harness{
		repo:  trials.NewMemoryRepo(),
		gw:    whatsapp.NewMemoryGateway(nil),
		media: &recordingMedia{},
		clock: now,
	}
	err := h.repo.Create(context.Background(), trials.Trial{
		ID:              trialID,
		AlbumID:         a.ID,
		BuyerPhone:      buyer,
		BuyerName:       "Asha",
		StorytellerName: "Nani",
		Language:        trials.LanguageEnglish,
		State:           trials.StateAwaitingInitialContact,
		CreatedAt:       now,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d := outbox.NewDispatcher(h.gw, h.media, nil).WithSleep(func(context.Context, time.Duration) error { return nil })
	h.svc = NewService(h.repo, albums.NewMemoryCatalog(a), resolver.New(h.repo, "15550100", nil), NewMachine(DefaultRules()), d, NewLocalLocker(), nil).
		WithClock(func() time.Time { return h.clock })
	return h
}

func (h *harness) send(t *testing.T, msg InboundMessage) {
	t.Helper()
	if msg.From == "" {
		msg.From = storyteller
	}
	if err := h.svc.HandleInbound(context.Background(), msg); err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
}

func (h *harness) trial(t *testing.T) trials.Trial {
	t.Helper()
	tr, err := h.repo.Get(context.Background(), trialID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return tr
}

func childhood() albums.Album {
	return albums.Album{
		ID:        "childhood",
		Title:     "Childhood Memories",
		Questions: []string{"Where were you born?", "Your first school?", "A favourite game?", "Your best friend?", "A festival you loved?"},
	}
}

func TestService_NonConversationalFlow(t *testing.T) {
	h := newHarness(t, childhood())

	// First contact binds the storyteller and sends onboarding + readiness.
	h.send(t, InboundMessage{ID: "m1", From: "+91 12345 67890", Type: MessageText, Text: "Hi! st_" + trialID})
	tr := h.trial(t)
	if tr.StorytellerPhone != storyteller || tr.State != trials.StateAwaitingReadiness {
		t.Fatalf("unexpected trial after first contact %+v", tr)
	}
	if sent := h.gw.Sent(); len(sent) != 2 || sent[1].Template.Name != "readiness_check_en" {
		t.Fatalf("expected onboarding and readiness, got %+v", sent)
	}

	h.gw.Reset()
	h.send(t, InboundMessage{ID: "m2", Type: MessageButton, Text: "Yes, let’s begin"})
	tr = h.trial(t)
	if tr.State != trials.StateInProgress || tr.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected trial after yes %+v", tr)
	}
	if sent := h.gw.Sent(); len(sent) != 1 || sent[0].Kind != whatsapp.KindText {
		t.Fatalf("expected one question, got %+v", sent)
	}

	h.gw.Reset()
	h.send(t, InboundMessage{ID: "m3", Type: MessageAudio, MediaID: "media-0", MimeType: "audio/ogg"})
	tr = h.trial(t)
	if tr.CurrentQuestionIndex != 1 || tr.State != trials.StateInProgress {
		t.Fatalf("unexpected trial after answer %+v", tr)
	}
	if tr.NextQuestionDueAt == nil || !tr.NextQuestionDueAt.Equal(now.Add(23*time.Hour)) {
		t.Fatalf("expected next question in 23h, got %v", tr.NextQuestionDueAt)
	}
	notes, _ := h.repo.ListVoiceNotes(context.Background(), trialID)
	if len(notes) != 1 || notes[0].QuestionIndex != 0 {
		t.Fatalf("expected one voice note at index 0, got %+v", notes)
	}
	if len(h.gw.Sent()) != 1 || len(h.media.audio) != 1 {
		t.Fatalf("expected ack and one audio job")
	}

	// A second recording before the next question is a duplicate for index 0.
	h.gw.Reset()
	h.send(t, InboundMessage{ID: "m4", Type: MessageAudio, MediaID: "media-0b"})
	notes, _ = h.repo.ListVoiceNotes(context.Background(), trialID)
	if len(notes) != 1 || len(h.gw.Sent()) != 0 || h.trial(t).CurrentQuestionIndex != 1 {
		t.Fatalf("duplicate audio must be a silent no-op")
	}
}

func TestService_DueQuestionAndCompletion(t *testing.T) {
	h := newHarness(t, childhood())
	ctx := context.Background()
	due := now.Add(-time.Minute)
	_, _ = h.repo.Update(ctx, trialID, trials.Update{
		State:                trials.Ptr(trials.StateInProgress),
		StorytellerPhone:     trials.Ptr(storyteller),
		CurrentQuestionIndex: trials.Ptr(4),
		NextQuestionDueAt:    trials.At(due),
	})

	if err := h.svc.Resume(ctx, trialID, DueQuestion{}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if tr := h.trial(t); tr.State != trials.StateAwaitingReadiness || tr.NextQuestionDueAt != nil {
		t.Fatalf("expected readiness re-check, got %+v", tr)
	}

	h.send(t, InboundMessage{ID: "m1", Type: MessageText, Text: "yes"})
	h.gw.Reset()
	h.send(t, InboundMessage{ID: "m2", Type: MessageAudio, MediaID: "media-4"})

	tr := h.trial(t)
	if tr.State != trials.StateCompleted || tr.CurrentQuestionIndex != 5 {
		t.Fatalf("expected completion, got %+v", tr)
	}
	sent := h.gw.Sent()
	if len(sent) != 2 || sent[0].To != storyteller || sent[1].To != buyer {
		t.Fatalf("expected storyteller then buyer completion, got %+v", sent)
	}
}

func TestService_DueQuestionSendFailureReschedules(t *testing.T) {
	h := newHarness(t, childhood())
	ctx := context.Background()
	_, _ = h.repo.Update(ctx, trialID, trials.Update{
		State:                trials.Ptr(trials.StateInProgress),
		StorytellerPhone:     trials.Ptr(storyteller),
		CurrentQuestionIndex: trials.Ptr(1),
		NextQuestionDueAt:    trials.At(now.Add(-time.Minute)),
	})
	h.gw.FailFor(storyteller, true)

	if err := h.svc.Resume(ctx, trialID, DueQuestion{}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	tr := h.trial(t)
	if tr.State != trials.StateInProgress || tr.NextQuestionDueAt == nil || !tr.NextQuestionDueAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected reschedule in 1h, got %+v", tr)
	}
	if tr.ReadinessRetryDueAt != nil {
		t.Fatalf("readiness retry must be cleared on reschedule")
	}
}

// failingAdvance fails the first update that moves the question index.
type failingAdvance struct {
	*trials.MemoryRepo
	failed bool
}

func (f *failingAdvance) Update(ctx context.Context, id string, u trials.Update) (trials.Trial, error) {
	if u.CurrentQuestionIndex != nil && !f.failed {
		f.failed = true
		return trials.Trial{}, errors.New("connection reset")
	}
	return f.MemoryRepo.Update(ctx, id, u)
}

func TestService_AnswerRetriedAfterFailedUpdate(t *testing.T) {
	h := newHarness(t, childhood())
	ctx := context.Background()
	_, _ = h.repo.Update(ctx, trialID, trials.Update{
		State:            trials.Ptr(trials.StateInProgress),
		StorytellerPhone: trials.Ptr(storyteller),
	})
	h.svc.store = &failingAdvance{MemoryRepo: h.repo}

	msg := InboundMessage{ID: "wamid.a", From: storyteller, Type: MessageAudio, MediaID: "media-0", MimeType: "audio/ogg"}
	if err := h.svc.HandleInbound(ctx, msg); err == nil {
		t.Fatalf("expected the failed update to surface")
	}
	if tr := h.trial(t); tr.CurrentQuestionIndex != 0 || len(h.gw.Sent()) != 0 {
		t.Fatalf("failed attempt must not advance or reply, got %+v", tr)
	}

	h.send(t, msg)
	tr := h.trial(t)
	if tr.CurrentQuestionIndex != 1 || tr.NextQuestionDueAt == nil || !tr.NextQuestionDueAt.Equal(now.Add(23*time.Hour)) {
		t.Fatalf("retry must apply the stored answer, got %+v", tr)
	}
	notes, _ := h.repo.ListVoiceNotes(ctx, trialID)
	if len(notes) != 1 {
		t.Fatalf("expected one voice note, got %d", len(notes))
	}
	if len(h.gw.Sent()) != 1 || len(h.media.audio) != 1 || h.media.audio[0].VoiceNoteID != notes[0].ID {
		t.Fatalf("expected ack and audio job for the stored note, sent=%+v jobs=%+v", h.gw.Sent(), h.media.audio)
	}
}

func TestService_StaleDueQuestionIsSkipped(t *testing.T) {
	h := newHarness(t, childhood())
	ctx := context.Background()
	_, _ = h.repo.Update(ctx, trialID, trials.Update{
		State:            trials.Ptr(trials.StateInProgress),
		StorytellerPhone: trials.Ptr(storyteller),
		QuestionSentAt:   trials.At(now),
	})

	if err := h.svc.Resume(ctx, trialID, DueQuestion{}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	tr := h.trial(t)
	if tr.State != trials.StateInProgress || tr.CurrentQuestionIndex != 0 || tr.ReadinessRetryDueAt != nil {
		t.Fatalf("trial must be untouched, got %+v", tr)
	}
	if sent := h.gw.Sent(); len(sent) != 0 {
		t.Fatalf("nothing must be sent, got %+v", sent)
	}
}

func TestService_OwnReferenceReplies(t *testing.T) {
	found := locale.FoundCollection{AlbumTitle: "Childhood Memories"}.Render(trials.LanguageEnglish)
	voice := locale.SendVoiceNote{}.Render(trials.LanguageEnglish)

	cases := []struct {
		state trials.State
		want  func(t *testing.T, sent []whatsapp.Sent)
	}{
		{trials.StateAwaitingReadiness, func(t *testing.T, sent []whatsapp.Sent) {
			if len(sent) != 2 || sent[0].Body != found || sent[1].Template.Name != "readiness_check_en" {
				t.Fatalf("expected found collection and readiness prompt, got %+v", sent)
			}
		}},
		{trials.StateInProgress, func(t *testing.T, sent []whatsapp.Sent) {
			if len(sent) != 1 || sent[0].Body != voice {
				t.Fatalf("expected voice note request, got %+v", sent)
			}
		}},
		{trials.StateCompleted, func(t *testing.T, sent []whatsapp.Sent) {
			if len(sent) != 1 || sent[0].Body != found {
				t.Fatalf("expected found collection, got %+v", sent)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			h := newHarness(t, childhood())
			ctx := context.Background()
			before, _ := h.repo.Update(ctx, trialID, trials.Update{
				State:                trials.Ptr(tc.state),
				StorytellerPhone:     trials.Ptr(storyteller),
				CurrentQuestionIndex: trials.Ptr(2),
			})

			h.send(t, InboundMessage{ID: "m", Type: MessageText, Text: "my code is " + trialID})
			tc.want(t, h.gw.Sent())
			after := h.trial(t)
			if after.State != before.State || after.CurrentQuestionIndex != before.CurrentQuestionIndex {
				t.Fatalf("own reference must not change the trial: %+v -> %+v", before, after)
			}
		})
	}
}

func TestService_AnswerLogsCarryTrialIDOnce(t *testing.T) {
	h := newHarness(t, childhood())
	var buf bytes.Buffer
	h.svc.l = slog.New(slog.NewTextHandler(&buf, nil))
	_, _ = h.repo.Update(context.Background(), trialID, trials.Update{
		State:            trials.Ptr(trials.StateAwaitingReadiness),
		StorytellerPhone: trials.Ptr(storyteller),
	})

	h.send(t, InboundMessage{ID: "m", Type: MessageAudio, MediaID: "media"})
	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "audio ignored outside in_progress") {
			line = l
		}
	}
	if line == "" {
		t.Fatalf("expected an ignored-audio log line, got %q", buf.String())
	}
	if n := strings.Count(line, "trial_id="); n != 1 {
		t.Fatalf("expected trial_id once, got %d in %q", n, line)
	}
}

func TestService_ConversationalBatches(t *testing.T) {
	a := conversationalAlbum()
	h := newHarness(t, a)
	ctx := context.Background()
	_, _ = h.repo.Update(ctx, trialID, trials.Update{
		State:            trials.Ptr(trials.StateInProgress),
		StorytellerPhone: trials.Ptr(storyteller),
	})

	for idx := 0; idx < 3; idx++ {
		h.send(t, InboundMessage{ID: "a", Type: MessageAudio, MediaID: "media"})
		tr := h.trial(t)
		if tr.CurrentQuestionIndex != idx+1 {
			t.Fatalf("idx %d: index=%d", idx, tr.CurrentQuestionIndex)
		}
		if idx < 2 && tr.NextQuestionDueAt != nil {
			t.Fatalf("idx %d: next question must be immediate", idx)
		}
		if idx == 2 && (tr.NextQuestionDueAt == nil || !tr.NextQuestionDueAt.Equal(now.Add(23*time.Hour))) {
			t.Fatalf("third answer must schedule the next batch in 23h")
		}
	}
	notes, _ := h.repo.ListVoiceNotes(ctx, trialID)
	if len(notes) != 3 {
		t.Fatalf("expected 3 voice notes, got %d", len(notes))
	}
}

func TestService_UnknownAlbum(t *testing.T) {
	h := newHarness(t, childhood())
	ctx := context.Background()
	_, _ = h.repo.Update(ctx, trialID, trials.Update{StorytellerPhone: trials.Ptr(storyteller)})
	h.svc.catalog = albums.NewMemoryCatalog()

	if err := h.svc.HandleInbound(ctx, InboundMessage{ID: "m", From: storyteller, Type: MessageText, Text: "hello"}); err == nil {
		t.Fatalf("expected error for unknown album")
	}
	if sent := h.gw.Sent(); len(sent) != 1 {
		t.Fatalf("expected an apology, got %+v", sent)
	}
}

func TestLocalLocker_Serializes(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "t1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, "t1"); err == nil {
		t.Fatalf("second lock on the same key must wait")
	}
	other, err := l.Lock(ctx, "t2")
	if err != nil {
		t.Fatalf("other key must not block: %v", err)
	}
	other()
	unlock()
	unlock()

	again, err := l.Lock(ctx, "t1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
	if len(l.locks) != 0 {
		t.Fatalf("expected no lingering entries, got %d", len(l.locks))
	}
}
