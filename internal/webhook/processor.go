package webhook

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"memoir-platform/internal/alerts"
	"memoir-platform/internal/audit"
	"memoir-platform/internal/conversation"
	"memoir-platform/internal/metrics"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
)

// droppedCodes are provider error codes for messages the provider dropped
// before delivery. They page an operator.
var droppedCodes = map[string]bool{
	"131026": true, // message undeliverable
	"131047": true, // re-engagement window expired
	"131049": true, // not delivered to maintain ecosystem health
}

// InboundHandler applies one inbound message. A nil error means it is done.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg conversation.InboundMessage) error
}

// Processor applies a webhook body after it was acknowledged.
type Processor struct {
	Audit   *audit.Service
	Keys    Store
	Inbound InboundHandler
	Log     whatsapp.MessageLog
	Alerts  alerts.Notifier
	L       *slog.Logger
}

// Process never returns an error: the HTTP response has already been sent.
// Failures are logged and the idempotency key is released for a redelivery.
func (p *Processor) Process(ctx context.Context, raw []byte) {
	l := p.L
	if l == nil {
		l = slog.Default()
	}

	payload, err := Parse(raw)
	if err != nil {
		l.Warn("webhook payload rejected", "err", err)
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		return
	}
	msgs, statuses := payload.Messages(), payload.Statuses()
	p.record(ctx, l, raw, msgs, statuses)

	for _, m := range msgs {
		p.processMessage(ctx, l, m)
	}
	for _, s := range statuses {
		p.processStatus(ctx, l, s)
	}
}

// record appends the raw body to the audit log before anything is processed.
func (p *Processor) record(ctx context.Context, l *slog.Logger, raw []byte, msgs []Message, statuses []Status) {
	if p.Audit == nil {
		return
	}
	kind, id, phone := audit.KindUnknown, "", ""
	switch {
	case len(msgs) > 0:
		kind, id, phone = audit.KindMessage, msgs[0].ID, trials.NormalizePhone(msgs[0].From)
	case len(statuses) > 0:
		kind, id, phone = audit.KindStatus, statuses[0].ID, trials.NormalizePhone(statuses[0].RecipientID)
	}
	if err := p.Audit.LogInbound(ctx, kind, id, phone, raw); err != nil {
		l.Warn("webhook audit append failed", "message_id", id, "err", err)
	}
}

func (p *Processor) processMessage(ctx context.Context, l *slog.Logger, m Message) {
	l = l.With("message_id", m.ID, "type", m.Type)
	if m.ID == "" {
		metrics.WebhookEvents.WithLabelValues("message", "invalid").Inc()
		return
	}
	key := messageKey(m.ID)
	if !p.claim(ctx, l, "message", key) {
		return
	}

	in := m.Inbound()
	if err := p.Inbound.HandleInbound(ctx, in); err != nil {
		l.Error("inbound message failed", "phone", trials.MaskPhone(in.From), "err", err)
		p.release(ctx, l, key)
		metrics.WebhookEvents.WithLabelValues("message", "error").Inc()
		return
	}
	if err := p.Keys.Complete(ctx, key); err != nil {
		l.Error("idempotency complete failed", "err", err)
	}
	metrics.WebhookEvents.WithLabelValues("message", "processed").Inc()
}

func (p *Processor) processStatus(ctx context.Context, l *slog.Logger, s Status) {
	l = l.With("message_id", s.ID, "status", s.Status)
	key := statusKey(s.ID, s.Status)
	if !p.claim(ctx, l, "status", key) {
		return
	}

	code, reason := s.FirstError()
	if droppedCodes[code] {
		deliveries := "unknown"
		if p.Audit != nil {
			if evs, err := p.Audit.History(ctx, s.ID); err == nil {
				deliveries = strconv.Itoa(len(evs))
			}
		}
		alerts.Go(ctx, p.Alerts, l, alerts.Alert{
			Title: "WhatsApp message dropped by provider",
			Text:  reason,
			Fields: []alerts.Field{
				{Name: "code", Value: code},
				{Name: "message_id", Value: s.ID},
				{Name: "recipient", Value: trials.MaskPhone(s.RecipientID)},
				{Name: "webhook_events", Value: deliveries},
			},
		})
	}

	status, ok := whatsapp.MapProviderStatus(s.Status)
	if !ok {
		l.Debug("untracked delivery status")
		if err := p.Keys.Complete(ctx, key); err != nil {
			l.Error("idempotency complete failed", "err", err)
		}
		metrics.WebhookEvents.WithLabelValues("status", "ignored").Inc()
		return
	}
	found, err := p.Log.UpdateStatus(ctx, whatsapp.StatusUpdate{
		ProviderMessageID: s.ID,
		Status:            status,
		ErrorCode:         code,
		ErrorMessage:      reason,
	})
	if err != nil {
		l.Error("status update failed", "err", err)
		p.release(ctx, l, key)
		metrics.WebhookEvents.WithLabelValues("status", "error").Inc()
		return
	}
	if !found {
		l.Debug("status for unknown message")
	}
	if err := p.Keys.Complete(ctx, key); err != nil {
		l.Error("idempotency complete failed", "err", err)
	}
	metrics.WebhookEvents.WithLabelValues("status", "processed").Inc()
}

// claim reserves key for this delivery. Concurrent and later duplicates lose.
func (p *Processor) claim(ctx context.Context, l *slog.Logger, kind, key string) bool {
	ok, err := p.Keys.Claim(ctx, key)
	if err != nil {
		l.Error("idempotency claim failed", "err", err)
		metrics.WebhookEvents.WithLabelValues(kind, "error").Inc()
		return false
	}
	if !ok {
		l.Info("duplicate webhook event skipped")
		metrics.WebhookEvents.WithLabelValues(kind, "duplicate").Inc()
	}
	return ok
}

// release lets a redelivery retry the key. It must outlive a cancelled request.
func (p *Processor) release(ctx context.Context, l *slog.Logger, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.Keys.Release(ctx, key); err != nil {
		l.Error("idempotency release failed", "err", err)
	}
}
