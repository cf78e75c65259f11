package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
)

// MediaRunner executes background media jobs. Implementations must not block.
type MediaRunner interface {
	StartAudio(ctx context.Context, job AudioJob)
	StartCover(ctx context.Context, job CoverJob)
}

// Dispatcher executes effects against the gateway.
//
// Rules:
// - Every effect runs, in order, even after an earlier send failed.
// - Best-effort failures are logged here and never reported to the caller.
type Dispatcher struct {
	gw    whatsapp.Gateway
	media MediaRunner
	sleep func(ctx context.Context, d time.Duration) error
	l     *slog.Logger
}

func NewDispatcher(gw whatsapp.Gateway, media MediaRunner, l *slog.Logger) *Dispatcher {
	if l == nil {
		l = slog.Default()
	}
	return &Dispatcher{gw: gw, media: media, sleep: sleepCtx, l: l}
}

// WithSleep replaces the pause implementation; tests use it to skip real delays.
func (d *Dispatcher) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Dispatcher {
	d.sleep = fn
	return d
}

// Dispatch runs effects and reports whether every primary send succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, effects []Effect) bool {
	ok := true
	for _, e := range effects {
		switch e := e.(type) {
		case Text:
			sent := d.gw.SendText(ctx, e.To, e.Message.Render(e.Lang))
			ok = d.track(sent, e.BestEffort, "text", e.To) && ok
		case Template:
			sent := d.gw.SendTemplate(ctx, e.To, e.Template)
			ok = d.track(sent, e.BestEffort, e.Template.Name, e.To) && ok
		case CTA:
			sent := d.gw.SendInteractiveCTA(ctx, e.To, e.CTA)
			ok = d.track(sent, e.BestEffort, "cta", e.To) && ok
		case Pause:
			if err := d.sleep(ctx, e.D); err != nil {
				d.l.Warn("outbox pause interrupted", "err", err)
				return false
			}
		case AudioJob:
			if d.media == nil {
				d.l.Warn("outbox audio job dropped: no media runner", "trial_id", e.TrialID)
				continue
			}
			d.media.StartAudio(context.WithoutCancel(ctx), e)
		case CoverJob:
			if d.media == nil {
				d.l.Warn("outbox cover job dropped: no media runner", "trial_id", e.TrialID)
				continue
			}
			d.media.StartCover(context.WithoutCancel(ctx), e)
		default:
			d.l.Error("outbox unknown effect", "type", fmt.Sprintf("%T", e))
		}
	}
	return ok
}

// track returns false only for a failed primary send.
func (d *Dispatcher) track(sent, bestEffort bool, what, to string) bool {
	if sent {
		return true
	}
	if bestEffort {
		d.l.Warn("best-effort send failed", "what", what, "to", trials.MaskPhone(to))
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
