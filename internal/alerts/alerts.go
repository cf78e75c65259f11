// Package alerts notifies operators out of band. Delivery is fire-and-forget.
package alerts

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

// Alert is one operator notification.
type Alert struct {
	Title  string
	Text   string
	Fields []Field
}

type Field struct {
	Name  string
	Value string
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Nop drops every alert. Used when no Slack destination is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Alert) error { return nil }

// poster is the subset of the Slack client used here.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

const maxRetries = 3

// Slack posts alerts to a channel with a bot token, or to an incoming webhook URL.
type Slack struct {
	client     poster
	channel    string
	webhookURL string
	l          *slog.Logger
}

// NewSlackBot posts through chat.postMessage.
func NewSlackBot(token, channel string, l *slog.Logger) *Slack {
	return &Slack{client: slackapi.New(token), channel: channel, l: l}
}

// NewSlackWebhook posts to an incoming webhook.
func NewSlackWebhook(url string, l *slog.Logger) *Slack {
	return &Slack{webhookURL: url, l: l}
}

func (s *Slack) Notify(ctx context.Context, a Alert) error {
	att := toAttachment(a)
	if s.client != nil {
		return retryOnRateLimit(ctx, func() error {
			_, _, err := s.client.PostMessageContext(ctx, s.channel,
				slackapi.MsgOptionText(a.Title, false),
				slackapi.MsgOptionAttachments(att),
			)
			return err
		})
	}
	if s.webhookURL == "" {
		return errors.New("alerts: no slack destination configured")
	}
	return retryOnRateLimit(ctx, func() error {
		return slackapi.PostWebhookContext(ctx, s.webhookURL, &slackapi.WebhookMessage{
			Text:        a.Title,
			Attachments: []slackapi.Attachment{att},
		})
	})
}

func toAttachment(a Alert) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    a.Title,
		Text:     a.Text,
		Color:    "danger",
		Fallback: a.Title,
	}
	for _, f := range a.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{Title: f.Name, Value: f.Value, Short: true})
	}
	return att
}

// retryOnRateLimit retries fn on Slack rate limiting, honoring RetryAfter.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}
		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Go sends a in the background and logs failures. It never blocks the caller.
func Go(ctx context.Context, n Notifier, l *slog.Logger, a Alert) {
	if n == nil {
		return
	}
	if l == nil {
		l = slog.Default()
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := n.Notify(ctx, a); err != nil {
			l.Warn("operator alert failed", "title", a.Title, "err", err)
		}
	}()
}
