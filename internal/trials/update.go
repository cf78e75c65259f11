package trials

import "time"

// Update is a field-level merge applied to one trial row.
// Nil fields are left untouched; concurrent updates to disjoint fields are safe,
// updates to the same field are last-writer-wins.
type Update struct {
	State                *State
	StorytellerPhone     *string
	CurrentQuestionIndex *int
	ReminderCount        *int
	ReadinessRetryCount  *int
	CustomCoverImageURL  *string

	NextQuestionDueAt       Timestamp
	ReminderDueAt           Timestamp
	ReadinessRetryDueAt     Timestamp
	BuyerCheckinDueAt       Timestamp
	StorytellerCheckinDueAt Timestamp

	WelcomeSentAt   Timestamp
	ReadinessSentAt Timestamp
	QuestionSentAt  Timestamp
	ReminderSentAt  Timestamp
}

// Timestamp is an optional write to a nullable time column.
// The zero value means "leave unchanged".
type Timestamp struct {
	Set  bool
	Time *time.Time
}

// At sets the column to t.
func At(t time.Time) Timestamp {
	t = t.UTC()
	return Timestamp{Set: true, Time: &t}
}

// Clear sets the column to NULL.
func Clear() Timestamp { return Timestamp{Set: true} }

func (ts Timestamp) value() any {
	if ts.Time == nil {
		return nil
	}
	return *ts.Time
}

func (ts Timestamp) applyTo(dst **time.Time) {
	if !ts.Set {
		return
	}
	if ts.Time == nil {
		*dst = nil
		return
	}
	v := *ts.Time
	*dst = &v
}

// Ptr is a small helper for building updates.
func Ptr[T any](v T) *T { return &v }

// IsZero reports whether the update changes nothing.
func (u Update) IsZero() bool {
	return u.State == nil && u.StorytellerPhone == nil && u.CurrentQuestionIndex == nil &&
		u.ReminderCount == nil && u.ReadinessRetryCount == nil && u.CustomCoverImageURL == nil &&
		!u.NextQuestionDueAt.Set && !u.ReminderDueAt.Set && !u.ReadinessRetryDueAt.Set &&
		!u.BuyerCheckinDueAt.Set && !u.StorytellerCheckinDueAt.Set &&
		!u.WelcomeSentAt.Set && !u.ReadinessSentAt.Set && !u.QuestionSentAt.Set && !u.ReminderSentAt.Set
}

// Apply merges u into t in memory. The question index only moves forward.
func (u Update) Apply(t *Trial) {
	if u.State != nil {
		t.State = *u.State
	}
	if u.StorytellerPhone != nil {
		t.StorytellerPhone = *u.StorytellerPhone
	}
	if u.CurrentQuestionIndex != nil && *u.CurrentQuestionIndex > t.CurrentQuestionIndex {
		t.CurrentQuestionIndex = *u.CurrentQuestionIndex
	}
	if u.ReminderCount != nil {
		t.ReminderCount = *u.ReminderCount
	}
	if u.ReadinessRetryCount != nil {
		t.ReadinessRetryCount = *u.ReadinessRetryCount
	}
	if u.CustomCoverImageURL != nil {
		t.CustomCoverImageURL = *u.CustomCoverImageURL
	}
	u.NextQuestionDueAt.applyTo(&t.NextQuestionDueAt)
	u.ReminderDueAt.applyTo(&t.ReminderDueAt)
	u.ReadinessRetryDueAt.applyTo(&t.ReadinessRetryDueAt)
	u.BuyerCheckinDueAt.applyTo(&t.BuyerCheckinDueAt)
	u.StorytellerCheckinDueAt.applyTo(&t.StorytellerCheckinDueAt)
	u.WelcomeSentAt.applyTo(&t.WelcomeSentAt)
	u.ReadinessSentAt.applyTo(&t.ReadinessSentAt)
	u.QuestionSentAt.applyTo(&t.QuestionSentAt)
	u.ReminderSentAt.applyTo(&t.ReminderSentAt)
}
