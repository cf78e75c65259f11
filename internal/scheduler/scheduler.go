// Package scheduler advances time-based transitions by polling the trial store.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"memoir-platform/internal/conversation"
	"memoir-platform/internal/metrics"
	"memoir-platform/internal/trials"
)

// Resumer applies a scheduler event to one trial under its lock.
type Resumer interface {
	Resume(ctx context.Context, trialID string, e conversation.Event) error
}

// Store is the read side the sweeps need.
type Store interface {
	ListDueQuestions(ctx context.Context, now time.Time) ([]trials.Trial, error)
	ListPendingReminders(ctx context.Context, q trials.ReminderQuery) ([]trials.Trial, error)
	ListReadinessRetriesDue(ctx context.Context, now time.Time) ([]trials.Trial, error)
	ListCheckinsDue(ctx context.Context, now time.Time) ([]trials.Trial, error)
	VoiceNoteExists(ctx context.Context, trialID string, questionIndex int) (bool, error)
}

type Config struct {
	Interval      time.Duration
	ReminderAfter time.Duration
	// MaxReminders pre-filters candidates; the machine applies the per-album cap.
	MaxReminders int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.ReminderAfter <= 0 {
		c.ReminderAfter = 10 * time.Hour
	}
	if c.MaxReminders <= 0 {
		c.MaxReminders = 3
	}
	return c
}

// Scheduler runs one tick at a time. A tick that fires while the previous one
// is still running is skipped, not queued.
type Scheduler struct {
	cfg     Config
	store   Store
	resumer Resumer
	now     func() time.Time
	l       *slog.Logger

	running atomic.Bool
	cron    *cron.Cron
}

func New(cfg Config, store Store, resumer Resumer, l *slog.Logger) *Scheduler {
	if l == nil {
		l = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		store:   store,
		resumer: resumer,
		now:     func() time.Time { return time.Now().UTC() },
		l:       l,
	}
}

// WithClock replaces the time source used for due comparisons.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start registers the tick with cron and starts it. ctx is the parent of every tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("scheduler: register %q: %w", spec, err)
	}
	s.cron.Start()
	s.l.Info("scheduler started", "interval", s.cfg.Interval.String())
	return nil
}

// Stop stops the timer and returns a context that is done when the running tick finishes.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}

// Tick runs every sweep once. It reports false when skipped because another
// tick was in progress.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SchedulerSkippedTicks.Inc()
		s.l.Debug("scheduler tick skipped: previous tick still running")
		return false
	}
	defer s.running.Store(false)

	now := s.now()
	s.sweep(ctx, "due_questions", func() ([]trials.Trial, error) {
		return s.store.ListDueQuestions(ctx, now)
	}, s.dueQuestion)
	s.sweep(ctx, "reminders", func() ([]trials.Trial, error) {
		return s.store.ListPendingReminders(ctx, trials.ReminderQuery{
			QuestionSentBefore: now.Add(-s.cfg.ReminderAfter),
			MaxReminders:       s.cfg.MaxReminders,
		})
	}, s.reminder)
	s.sweep(ctx, "readiness_retries", func() ([]trials.Trial, error) {
		return s.store.ListReadinessRetriesDue(ctx, now)
	}, s.resume(conversation.ReadinessRetry{}))
	s.sweep(ctx, "checkins", func() ([]trials.Trial, error) {
		return s.store.ListCheckinsDue(ctx, now)
	}, s.resume(conversation.CheckinDue{}))
	return true
}

type trialFunc func(ctx context.Context, t trials.Trial) (outcome string, err error)

// sweep processes each trial independently; one failure never aborts the rest.
func (s *Scheduler) sweep(ctx context.Context, name string, list func() ([]trials.Trial, error), fn trialFunc) {
	ts, err := list()
	if err != nil {
		s.l.Error("scheduler sweep query failed", "sweep", name, "err", err)
		metrics.SchedulerSweeps.WithLabelValues(name, "query_error").Inc()
		return
	}
	for _, t := range ts {
		if ctx.Err() != nil {
			return
		}
		outcome, err := s.safeRun(ctx, t, fn)
		if err != nil {
			s.l.Error("scheduler trial failed", "sweep", name, "trial_id", t.ID, "err", err)
			outcome = "error"
		}
		metrics.SchedulerSweeps.WithLabelValues(name, outcome).Inc()
	}
}

func (s *Scheduler) safeRun(ctx context.Context, t trials.Trial, fn trialFunc) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, t)
}

func (s *Scheduler) dueQuestion(ctx context.Context, t trials.Trial) (string, error) {
	if !t.HasStoryteller() {
		return "skipped", nil
	}
	return "resumed", s.resumer.Resume(ctx, t.ID, conversation.DueQuestion{})
}

func (s *Scheduler) reminder(ctx context.Context, t trials.Trial) (string, error) {
	if !t.HasStoryteller() || t.NextQuestionDueAt != nil {
		return "skipped", nil
	}
	answered, err := s.store.VoiceNoteExists(ctx, t.ID, t.CurrentQuestionIndex)
	if err != nil {
		return "", err
	}
	if answered {
		return "skipped", nil
	}
	return "resumed", s.resumer.Resume(ctx, t.ID, conversation.ReminderDue{})
}

func (s *Scheduler) resume(e conversation.Event) trialFunc {
	return func(ctx context.Context, t trials.Trial) (string, error) {
		return "resumed", s.resumer.Resume(ctx, t.ID, e)
	}
}
