package trials

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Trial and VoiceNote store for tests and local runs.
// It is not intended for production use.
type MemoryRepo struct {
	mu     sync.Mutex
	trials map[string]Trial
	notes  map[string]VoiceNote
	clock  func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{trials: map[string]Trial{}, notes: map[string]VoiceNote{}, clock: time.Now}
}

func (r *MemoryRepo) Create(ctx context.Context, t Trial) error {
	if t.ID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trials[t.ID]; ok {
		return ErrInvalidArgument
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.clock().UTC()
	}
	t.UpdatedAt = t.CreatedAt
	r.trials[t.ID] = t
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Trial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trials[id]
	if !ok {
		return Trial{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) Update(ctx context.Context, id string, u Update) (Trial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trials[id]
	if !ok {
		return Trial{}, ErrNotFound
	}
	u.Apply(&t)
	t.UpdatedAt = r.clock().UTC()
	r.trials[id] = t
	return t, nil
}

func (r *MemoryRepo) ListActiveByStoryteller(ctx context.Context, phone string) ([]Trial, error) {
	return r.filter(true, func(t Trial) bool {
		return t.StorytellerPhone == phone && t.State.Active()
	}), nil
}

func (r *MemoryRepo) ListByPhone(ctx context.Context, phone string) ([]Trial, error) {
	out := r.filter(false, func(t Trial) bool {
		return t.StorytellerPhone == phone || t.BuyerPhone == phone
	})
	return out, nil
}

func (r *MemoryRepo) ListByBuyer(ctx context.Context, phone string) ([]Trial, error) {
	return r.filter(true, func(t Trial) bool { return t.BuyerPhone == phone }), nil
}

func (r *MemoryRepo) ListDueQuestions(ctx context.Context, now time.Time) ([]Trial, error) {
	return r.filter(true, func(t Trial) bool {
		return t.State == StateInProgress && due(t.NextQuestionDueAt, now)
	}), nil
}

func (r *MemoryRepo) ListPendingReminders(ctx context.Context, q ReminderQuery) ([]Trial, error) {
	return r.filter(true, func(t Trial) bool {
		return t.State == StateInProgress &&
			t.NextQuestionDueAt == nil &&
			t.ReminderCount < q.MaxReminders &&
			due(t.QuestionSentAt, q.QuestionSentBefore) &&
			(t.ReminderSentAt == nil || due(t.ReminderSentAt, q.QuestionSentBefore))
	}), nil
}

func (r *MemoryRepo) ListReadinessRetriesDue(ctx context.Context, now time.Time) ([]Trial, error) {
	return r.filter(true, func(t Trial) bool {
		return t.State == StateAwaitingReadiness && due(t.ReadinessRetryDueAt, now)
	}), nil
}

func (r *MemoryRepo) ListCheckinsDue(ctx context.Context, now time.Time) ([]Trial, error) {
	return r.filter(true, func(t Trial) bool {
		return t.State == StateCompleted && (due(t.StorytellerCheckinDueAt, now) || due(t.BuyerCheckinDueAt, now))
	}), nil
}

func (r *MemoryRepo) filter(ascending bool, keep func(Trial) bool) []Trial {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Trial, 0)
	for _, t := range r.trials {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func due(ts *time.Time, now time.Time) bool {
	return ts != nil && !ts.After(now)
}

func (r *MemoryRepo) CreateVoiceNote(ctx context.Context, v VoiceNote) (bool, error) {
	if v.ID == "" || v.TrialID == "" {
		return false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notes {
		if n.TrialID == v.TrialID && n.QuestionIndex == v.QuestionIndex {
			return false, nil
		}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.clock().UTC()
	}
	v.UpdatedAt = v.CreatedAt
	r.notes[v.ID] = v
	return true, nil
}

func (r *MemoryRepo) VoiceNoteExists(ctx context.Context, trialID string, questionIndex int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notes {
		if n.TrialID == trialID && n.QuestionIndex == questionIndex {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepo) UpdateVoiceNoteMedia(ctx context.Context, id string, res MediaResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return ErrNotFound
	}
	n.Status = res.Status
	if res.URL != "" {
		n.URL = res.URL
	}
	if res.ContentHash != "" {
		n.ContentHash = res.ContentHash
	}
	if res.SizeBytes > 0 {
		n.SizeBytes = res.SizeBytes
	}
	n.UpdatedAt = r.clock().UTC()
	r.notes[id] = n
	return nil
}

func (r *MemoryRepo) ListVoiceNotes(ctx context.Context, trialID string) ([]VoiceNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]VoiceNote, 0)
	for _, n := range r.notes {
		if n.TrialID == trialID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionIndex < out[j].QuestionIndex })
	return out, nil
}

// VoiceNotes returns a snapshot of every stored note.
func (r *MemoryRepo) VoiceNotes() []VoiceNote {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]VoiceNote, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionIndex < out[j].QuestionIndex })
	return out
}
