package whatsapp

import (
	"context"
	"errors"
	"strings"
)

// Gateway is the outbound message capability consumed by the conversation core.
//
// Rules:
// - A false return means the send failed after the client's own bounded retry.
// - Callers must not blindly re-send on false; scheduling decides when to try again.
type Gateway interface {
	SendText(ctx context.Context, to, body string) bool
	SendTemplate(ctx context.Context, to string, tpl Template) bool
	SendInteractiveCTA(ctx context.Context, to string, cta CTA) bool
}

// Template is a pre-approved provider message template.
type Template struct {
	Name string
	// Language overrides the code derived from the name suffix.
	Language     string
	BodyParams   []string
	ButtonParams []string
}

// CTA is an interactive message with a single URL button.
type CTA struct {
	Body        string
	ButtonLabel string
	URL         string
}

var (
	// ErrPermanent marks a send failure that must not be retried.
	ErrPermanent = errors.New("whatsapp: permanent failure")
	// ErrTransient marks a 429/5xx failure eligible for retry.
	ErrTransient = errors.New("whatsapp: transient failure")
)

// TemplateLanguage derives the provider language code from a template name.
// Names ending in _hn are Hindi; _en or no suffix is English.
func TemplateLanguage(name string) string {
	if strings.HasSuffix(name, "_hn") {
		return "hi"
	}
	return "en"
}

type ctxKey int

const ctxTrialID ctxKey = iota

// WithTrialID tags outbound sends made with ctx so the message log can correlate them.
func WithTrialID(ctx context.Context, trialID string) context.Context {
	return context.WithValue(ctx, ctxTrialID, trialID)
}

func trialIDFrom(ctx context.Context) string {
	if s, ok := ctx.Value(ctxTrialID).(string); ok {
		return s
	}
	return ""
}
