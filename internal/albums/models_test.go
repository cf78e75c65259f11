package albums

import (
	"context"
	"errors"
	"testing"

	"memoir-platform/internal/trials"
)

func TestQuestionsFor_HindiFallsBackToEnglish(t *testing.T) {
	a := Album{Questions: []string{"q1", "q2"}}
	if got := a.TotalQuestions(trials.LanguageHindi); got != 2 {
		t.Fatalf("expected english fallback with 2 questions, got %d", got)
	}
	if a.ResolvedLanguage(trials.LanguageHindi) != trials.LanguageEnglish {
		t.Fatalf("expected resolved language en")
	}

	a.QuestionsHn = []string{"प्रश्न 1"}
	if got := a.TotalQuestions(trials.LanguageHindi); got != 1 {
		t.Fatalf("expected hindi list length 1, got %d", got)
	}
	if q, ok := a.Question(0, trials.LanguageHindi); !ok || q != "प्रश्न 1" {
		t.Fatalf("unexpected hindi question %q", q)
	}
	if _, ok := a.Question(1, trials.LanguageHindi); ok {
		t.Fatalf("expected out of range")
	}
}

func TestBatchIntro(t *testing.T) {
	a := Album{
		IsConversational: true,
		Questions:        []string{"a", "b", "c", "d", "e", "f"},
		Batches: []Batch{
			{Title: "Early years", Premise: "Let's start at the beginning."},
			{Title: "Work", Premise: "Now your working life.", PremiseHn: "अब काम की बात।"},
		},
		QuestionsHn: []string{"1", "2", "3", "4", "5", "6"},
	}
	if _, _, ok := a.BatchIntro(1, trials.LanguageEnglish); ok {
		t.Fatalf("index inside a batch has no intro")
	}
	title, premise, ok := a.BatchIntro(3, trials.LanguageHindi)
	if !ok || title != "Work" || premise != "अब काम की बात।" {
		t.Fatalf("unexpected intro %q %q %v", title, premise, ok)
	}

	a.IsConversational = false
	if _, _, ok := a.BatchIntro(0, trials.LanguageEnglish); ok {
		t.Fatalf("linear albums have no batch intro")
	}
}

func TestParseYAML(t *testing.T) {
	raw := []byte(`
albums:
  - id: a1
    title: Childhood Memories
    conversational: true
    questions: ["Where were you born?", "Who was your best friend?", "What games did you play?"]
    batches:
      - title: Beginnings
        premise: Let's go back.
`)
	c, err := ParseYAML(raw)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	a, err := c.Get(context.Background(), "a1")
	if err != nil {
		t.Fatalf("expected album, got %v", err)
	}
	if !a.IsConversational || a.TotalQuestions(trials.LanguageEnglish) != 3 || len(a.Batches) != 1 {
		t.Fatalf("unexpected album %+v", a)
	}

	if _, err := ParseYAML([]byte("albums:\n  - id: empty\n")); err == nil {
		t.Fatalf("expected error for album without questions")
	}
}

func TestFallbackCatalogAndTitles(t *testing.T) {
	primary := NewMemoryCatalog()
	secondary := NewMemoryCatalog(Album{ID: "a2", Title: "Love Story", Questions: []string{"q"}})
	c := FallbackCatalog{primary, secondary}

	if _, err := c.Get(context.Background(), "a2"); err != nil {
		t.Fatalf("expected fallback hit, got %v", err)
	}
	_, err := Titles{Catalog: c}.AlbumTitle(context.Background(), "missing")
	if !errors.Is(err, trials.ErrNotFound) {
		t.Fatalf("expected trials.ErrNotFound, got %v", err)
	}
}

func TestComposedViews(t *testing.T) {
	ctx := context.Background()
	repo := trials.NewMemoryRepo()
	_ = repo.Create(ctx, trials.Trial{ID: "t1", AlbumID: "a1", StorytellerName: "Nani", State: trials.StateInProgress, CurrentQuestionIndex: 2})
	v := ComposedViews{Trials: repo, Catalog: NewMemoryCatalog(Album{ID: "a1", Title: "Roots", Questions: []string{"q"}})}

	got, err := v.TrialView(ctx, "t1")
	if err != nil {
		t.Fatalf("expected view, got %v", err)
	}
	if got.Album.Title != "Roots" || got.CurrentQuestionIndex != 2 {
		t.Fatalf("unexpected view %+v", got)
	}
	if _, err := v.TrialView(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
