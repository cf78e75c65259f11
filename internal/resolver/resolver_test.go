package resolver

import (
	"context"
	"testing"
	"time"

	"memoir-platform/internal/locale"
	"memoir-platform/internal/outbox"
	"memoir-platform/internal/trials"
)

const (
	trialA = "11111111-1111-4111-8111-111111111111"
	trialB = "22222222-2222-4222-8222-222222222222"
)

func TestExtractToken_Priority(t *testing.T) {
	text := "st_" + trialB + " and by_" + trialA
	if got := ExtractToken(text); got.Kind != TokenBuyer || got.TrialID != trialA {
		t.Fatalf("buyer token must win, got %+v", got)
	}
	if got := ExtractToken("hello st_" + trialB); got.Kind != TokenStoryteller || got.TrialID != trialB {
		t.Fatalf("unexpected %+v", got)
	}
	upper := "11111111-1111-4111-8111-11111111AAAA"
	if got := ExtractToken("ref " + upper); got.Kind != TokenBare || got.TrialID != "11111111-1111-4111-8111-11111111aaaa" {
		t.Fatalf("unexpected %+v", got)
	}
	if got := ExtractToken("yes please"); got.Kind != TokenNone {
		t.Fatalf("expected no token, got %+v", got)
	}
}

func TestResolve_BindsStorytellerOnce(t *testing.T) {
	ctx := context.Background()
	repo := trials.NewMemoryRepo()
	_ = repo.Create(ctx, trials.Trial{ID: trialA, BuyerPhone: "919000000001", State: trials.StateAwaitingInitialContact})
	r := New(repo, "15550100", nil)

	res, err := r.Resolve(ctx, Input{From: "+91 1234567890", Text: "st_" + trialA, Type: "text"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Found || res.Handled || res.Trial.StorytellerPhone != "911234567890" {
		t.Fatalf("expected bound trial, got %+v", res)
	}
	if !res.OwnReference() {
		t.Fatalf("expected own reference")
	}

	res2, err := r.Resolve(ctx, Input{From: "911234567890", Text: trialA, Type: "text"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res2.Trial.ID != trialA || res2.Trial.StorytellerPhone != "911234567890" {
		t.Fatalf("expected same trial without re-binding, got %+v", res2.Trial)
	}
}

func TestResolve_BuyerTokenResendsOnboarding(t *testing.T) {
	ctx := context.Background()
	repo := trials.NewMemoryRepo()
	_ = repo.Create(ctx, trials.Trial{ID: trialA, BuyerPhone: "919000000001", BuyerName: "Asha"})
	r := New(repo, "15550100", nil)

	res, err := r.Resolve(ctx, Input{From: "440000000000", Text: "by_" + trialA, Type: "text"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Handled || len(res.Effects) != 3 {
		t.Fatalf("expected onboarding effects, got %+v", res)
	}
	got, _ := repo.Get(ctx, trialA)
	if got.StorytellerPhone != "" {
		t.Fatalf("buyer token must not bind a storyteller")
	}
}

func TestResolve_BuyerOpensStorytellerLink(t *testing.T) {
	ctx := context.Background()
	repo := trials.NewMemoryRepo()
	_ = repo.Create(ctx, trials.Trial{ID: trialA, OrderID: "o1", BuyerPhone: "919000000001", StorytellerName: "Nani"})
	_ = repo.Create(ctx, trials.Trial{ID: trialB, OrderID: "o1", BuyerPhone: "919000000001", StorytellerName: "Dada"})
	r := New(repo, "15550100", nil)

	res, err := r.Resolve(ctx, Input{From: "919000000001", Text: "st_" + trialA, Type: "text"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Handled || len(res.Effects) != 1 {
		t.Fatalf("expected guidance, got %+v", res)
	}
	txt := res.Effects[0].(outbox.Text)
	if _, ok := txt.Message.(locale.BuyerLinkGuidance); !ok {
		t.Fatalf("expected BuyerLinkGuidance, got %T", txt.Message)
	}
	got, _ := repo.Get(ctx, trialA)
	if got.StorytellerPhone != "" {
		t.Fatalf("guidance path must not bind the buyer as storyteller")
	}
}

func TestResolve_BuyerAsOwnStoryteller(t *testing.T) {
	ctx := context.Background()
	repo := trials.NewMemoryRepo()
	_ = repo.Create(ctx, trials.Trial{ID: trialA, OrderID: "o1", BuyerPhone: "919000000001", State: trials.StateAwaitingInitialContact})
	r := New(repo, "15550100", nil)

	res, err := r.Resolve(ctx, Input{From: "919000000001", Text: "st_" + trialA, Type: "text"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Handled || !res.Found || !res.OwnReference() {
		t.Fatalf("buyer of the only trial on the order must start it, got %+v", res)
	}
	got, _ := repo.Get(ctx, trialA)
	if got.StorytellerPhone != "919000000001" {
		t.Fatalf("expected buyer bound as storyteller, got %q", got.StorytellerPhone)
	}
}

func TestResolve_OldestActiveWins(t *testing.T) {
	ctx := context.Background()
	repo := trials.NewMemoryRepo()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = repo.Create(ctx, trials.Trial{ID: trialB, StorytellerPhone: "911", State: trials.StateAwaitingReadiness, CreatedAt: base.Add(time.Hour)})
	_ = repo.Create(ctx, trials.Trial{ID: trialA, StorytellerPhone: "911", State: trials.StateInProgress, CreatedAt: base})
	r := New(repo, "", nil)

	res, err := r.Resolve(ctx, Input{From: "911", Text: "hello", Type: "text"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Trial.ID != trialA || res.Source != SourceActive || res.ActiveCount != 2 {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestResolve_FallsBackToAnyTrial(t *testing.T) {
	ctx := context.Background()
	repo := trials.NewMemoryRepo()
	_ = repo.Create(ctx, trials.Trial{ID: trialA, BuyerPhone: "919", State: trials.StateCompleted})
	r := New(repo, "", nil)

	res, err := r.Resolve(ctx, Input{From: "919", Type: "image"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Found || res.Source != SourcePhone {
		t.Fatalf("expected phone fallback, got %+v", res)
	}
}

func TestResolve_NothingFound(t *testing.T) {
	r := New(trials.NewMemoryRepo(), "", nil)

	res, _ := r.Resolve(context.Background(), Input{From: "1", Text: "hi, can you help?", Type: "text"})
	tpl, ok := res.Effects[0].(outbox.Template)
	if !res.Handled || !ok || tpl.Template.Name != "support_fallback_en" {
		t.Fatalf("expected support fallback template, got %+v", res.Effects)
	}

	res, _ = r.Resolve(context.Background(), Input{From: "1", Text: "st_" + trialA, Type: "text"})
	txt, ok := res.Effects[0].(outbox.Text)
	if !ok {
		t.Fatalf("expected text effect, got %T", res.Effects[0])
	}
	if _, ok := txt.Message.(locale.NoTrialFound); !ok {
		t.Fatalf("expected NoTrialFound, got %T", txt.Message)
	}

	res, _ = r.Resolve(context.Background(), Input{From: "1", Type: "audio"})
	if _, ok := res.Effects[0].(outbox.Text); !ok {
		t.Fatalf("non-text messages get the no-trial message")
	}
}
