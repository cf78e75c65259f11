package trials

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRepo_QuestionIndexNeverDecreases(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	if err := repo.Create(ctx, Trial{ID: "t1", State: StateInProgress, CurrentQuestionIndex: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.Update(ctx, "t1", Update{CurrentQuestionIndex: Ptr(1)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.CurrentQuestionIndex != 3 {
		t.Fatalf("expected index to stay 3, got %d", got.CurrentQuestionIndex)
	}

	got, _ = repo.Update(ctx, "t1", Update{CurrentQuestionIndex: Ptr(4)})
	if got.CurrentQuestionIndex != 4 {
		t.Fatalf("expected index 4, got %d", got.CurrentQuestionIndex)
	}
}

func TestMemoryRepo_UpdateClearsAndSetsTimestamps(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_ = repo.Create(ctx, Trial{ID: "t1", State: StateInProgress, NextQuestionDueAt: &due})

	got, _ := repo.Update(ctx, "t1", Update{
		NextQuestionDueAt:   Clear(),
		ReadinessRetryDueAt: At(due.Add(8 * time.Hour)),
	})
	if got.NextQuestionDueAt != nil {
		t.Fatalf("expected next question due cleared")
	}
	if got.ReadinessRetryDueAt == nil || !got.ReadinessRetryDueAt.Equal(due.Add(8*time.Hour)) {
		t.Fatalf("unexpected readiness retry due: %v", got.ReadinessRetryDueAt)
	}
}

func TestMemoryRepo_ActiveByStorytellerOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = repo.Create(ctx, Trial{ID: "new", StorytellerPhone: "911", State: StateInProgress, CreatedAt: base.Add(time.Hour)})
	_ = repo.Create(ctx, Trial{ID: "old", StorytellerPhone: "911", State: StateAwaitingReadiness, CreatedAt: base})
	_ = repo.Create(ctx, Trial{ID: "done", StorytellerPhone: "911", State: StateCompleted, CreatedAt: base.Add(-time.Hour)})

	got, _ := repo.ListActiveByStoryteller(ctx, "911")
	if len(got) != 2 || got[0].ID != "old" || got[1].ID != "new" {
		t.Fatalf("unexpected order: %+v", got)
	}

	all, _ := repo.ListByPhone(ctx, "911")
	if len(all) != 3 || all[0].ID != "new" {
		t.Fatalf("expected newest first across every state, got %+v", all)
	}
}

func TestMemoryRepo_PendingRemindersSpacing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	sent := now.Add(-11 * time.Hour)
	recent := now.Add(-time.Hour)

	_ = repo.Create(ctx, Trial{ID: "eligible", State: StateInProgress, QuestionSentAt: &sent})
	_ = repo.Create(ctx, Trial{ID: "recent_reminder", State: StateInProgress, QuestionSentAt: &sent, ReminderSentAt: &recent, ReminderCount: 1})
	_ = repo.Create(ctx, Trial{ID: "capped", State: StateInProgress, QuestionSentAt: &sent, ReminderCount: 3})
	_ = repo.Create(ctx, Trial{ID: "scheduled", State: StateInProgress, QuestionSentAt: &sent, NextQuestionDueAt: &now})

	got, _ := repo.ListPendingReminders(ctx, ReminderQuery{QuestionSentBefore: now.Add(-10 * time.Hour), MaxReminders: 3})
	if len(got) != 1 || got[0].ID != "eligible" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestMemoryRepo_VoiceNoteUniquePerQuestion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	created, err := repo.CreateVoiceNote(ctx, VoiceNote{ID: "v1", TrialID: "t1", QuestionIndex: 0, MediaID: "m1"})
	if err != nil || !created {
		t.Fatalf("expected first note created, got %v %v", created, err)
	}
	created, err = repo.CreateVoiceNote(ctx, VoiceNote{ID: "v2", TrialID: "t1", QuestionIndex: 0, MediaID: "m2"})
	if err != nil || created {
		t.Fatalf("expected duplicate to be skipped, got %v %v", created, err)
	}
	notes := repo.VoiceNotes()
	if len(notes) != 1 || notes[0].MediaID != "m1" {
		t.Fatalf("existing note must be left untouched: %+v", notes)
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("911234567890"); got != "********7890" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := NormalizePhone("+91 (123) 456-7890"); got != "911234567890" {
		t.Fatalf("unexpected normalized %q", got)
	}
}
