package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"memoir-platform/internal/locale"
	"memoir-platform/internal/outbox"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
)

// Source records how a trial was resolved.
type Source string

const (
	SourceToken  Source = "token"
	SourceActive Source = "active"
	SourcePhone  Source = "phone"
)

// Input is the part of an inbound message the resolver needs.
type Input struct {
	From string
	Text string
	// Type is the provider message type (text, audio, image, button, interactive, ...).
	Type string
}

// Resolution is the outcome of resolving one inbound message.
//
// When Handled is true the resolver already decided the reply (Effects) and the
// caller must not run the conversation machine.
type Resolution struct {
	Trial       trials.Trial
	Found       bool
	Source      Source
	Token       Token
	ActiveCount int

	Handled bool
	Effects []outbox.Effect
}

// OwnReference reports whether the message carried this trial's own reference.
func (r Resolution) OwnReference() bool {
	return r.Found && r.Token.Kind != TokenNone && r.Token.TrialID == r.Trial.ID
}

// Resolver maps inbound messages to trials.
type Resolver struct {
	repo           trials.Repository
	businessNumber string
	l              *slog.Logger
}

func New(repo trials.Repository, businessNumber string, l *slog.Logger) *Resolver {
	if l == nil {
		l = slog.Default()
	}
	return &Resolver{repo: repo, businessNumber: businessNumber, l: l}
}

// Resolve runs the ordered lookup; the first match wins. Binding the storyteller
// phone to a trial happens here, not in the conversation machine.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Resolution, error) {
	from := trials.NormalizePhone(in.From)
	tok := ExtractToken(in.Text)
	res := Resolution{Token: tok}

	switch tok.Kind {
	case TokenBuyer:
		t, err := r.repo.Get(ctx, tok.TrialID)
		if err == nil {
			if t.BuyerPhone != from {
				r.l.Warn("buyer token from unrecognized number", "trial_id", t.ID, "phone", trials.MaskPhone(from))
			}
			res.Trial, res.Found, res.Source = t, true, SourceToken
			res.Handled = true
			res.Effects = outbox.BuyerOnboarding(t, r.businessNumber)
			return res, nil
		}
		if !errors.Is(err, trials.ErrNotFound) {
			return Resolution{}, fmt.Errorf("resolver: buyer token: %w", err)
		}

	case TokenStoryteller, TokenBare:
		t, err := r.repo.Get(ctx, tok.TrialID)
		if err != nil && !errors.Is(err, trials.ErrNotFound) {
			return Resolution{}, fmt.Errorf("resolver: reference token: %w", err)
		}
		if err == nil {
			if tok.Kind == TokenStoryteller {
				guided, err := r.buyerOpenedStorytellerLink(ctx, from, t)
				if err != nil {
					return Resolution{}, err
				}
				if guided {
					res.Trial, res.Found, res.Source = t, true, SourceToken
					res.Handled = true
					res.Effects = []outbox.Effect{outbox.Text{
						To:      from,
						Message: locale.BuyerLinkGuidance{StorytellerName: t.StorytellerName},
						Lang:    t.Language,
					}}
					return res, nil
				}
			}
			if !t.HasStoryteller() {
				t, err = r.repo.Update(ctx, t.ID, trials.Update{StorytellerPhone: trials.Ptr(from)})
				if err != nil {
					return Resolution{}, fmt.Errorf("resolver: bind storyteller: %w", err)
				}
				r.l.Info("storyteller bound", "trial_id", t.ID, "phone", trials.MaskPhone(from))
			} else if t.StorytellerPhone != from {
				r.l.Warn("reference token from a different storyteller number", "trial_id", t.ID, "phone", trials.MaskPhone(from))
			}
			res.Trial, res.Found, res.Source = t, true, SourceToken
			return res, nil
		}
	}

	active, err := r.repo.ListActiveByStoryteller(ctx, from)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolver: active trials: %w", err)
	}
	if len(active) > 0 {
		res.Trial, res.Found, res.Source = active[0], true, SourceActive
		res.ActiveCount = len(active)
		return res, nil
	}

	byPhone, err := r.repo.ListByPhone(ctx, from)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolver: trials by phone: %w", err)
	}
	if len(byPhone) > 0 {
		res.Trial, res.Found, res.Source = byPhone[0], true, SourcePhone
		return res, nil
	}

	res.Handled = true
	if in.Type == "text" && tok.Kind == TokenNone {
		res.Effects = []outbox.Effect{outbox.Template{
			To:       from,
			Template: whatsapp.Template{Name: locale.TemplateName(locale.TemplateSupportFallback, trials.LanguageEnglish)},
		}}
	} else {
		res.Effects = []outbox.Effect{outbox.Text{To: from, Message: locale.NoTrialFound{}, Lang: trials.LanguageEnglish}}
	}
	return res, nil
}

// buyerOpenedStorytellerLink reports whether from bought another trial on t's
// order. A buyer recording their own stories uses the link like any storyteller.
func (r *Resolver) buyerOpenedStorytellerLink(ctx context.Context, from string, t trials.Trial) (bool, error) {
	if t.StorytellerPhone == from || t.OrderID == "" {
		return false, nil
	}
	bought, err := r.repo.ListByBuyer(ctx, from)
	if err != nil {
		return false, fmt.Errorf("resolver: trials by buyer: %w", err)
	}
	for _, b := range bought {
		if b.ID != t.ID && b.OrderID == t.OrderID {
			return true, nil
		}
	}
	return false, nil
}
