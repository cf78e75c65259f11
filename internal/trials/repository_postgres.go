package trials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NOTE: This repository assumes the tables created by internal/database/migrations:
// - trials
// - voice_notes, with UNIQUE (trial_id, question_index)

// PostgresRepo implements Repository and VoiceNoteRepository over database/sql (pgx stdlib).
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const trialColumns = `
id, COALESCE(order_id, ''), COALESCE(buyer_phone, ''), buyer_name, COALESCE(storyteller_phone, ''), storyteller_name,
album_id, album_title, language, conversation_state,
current_question_index, reminder_count, readiness_retry_count, COALESCE(custom_cover_image_url, ''),
next_question_due_at, reminder_due_at, readiness_retry_due_at, buyer_checkin_due_at, storyteller_checkin_due_at,
welcome_sent_at, readiness_sent_at, question_sent_at, reminder_sent_at,
created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrial(row rowScanner) (Trial, error) {
	var t Trial
	var (
		nextQ, remDue, retryDue, buyerCheckin, stCheckin sql.NullTime
		welcome, readiness, question, reminder           sql.NullTime
	)
	if err := row.Scan(
		&t.ID,
		&t.OrderID,
		&t.BuyerPhone,
		&t.BuyerName,
		&t.StorytellerPhone,
		&t.StorytellerName,
		&t.AlbumID,
		&t.AlbumTitle,
		&t.Language,
		&t.State,
		&t.CurrentQuestionIndex,
		&t.ReminderCount,
		&t.ReadinessRetryCount,
		&t.CustomCoverImageURL,
		&nextQ,
		&remDue,
		&retryDue,
		&buyerCheckin,
		&stCheckin,
		&welcome,
		&readiness,
		&question,
		&reminder,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return Trial{}, err
	}
	t.NextQuestionDueAt = timePtr(nextQ)
	t.ReminderDueAt = timePtr(remDue)
	t.ReadinessRetryDueAt = timePtr(retryDue)
	t.BuyerCheckinDueAt = timePtr(buyerCheckin)
	t.StorytellerCheckinDueAt = timePtr(stCheckin)
	t.WelcomeSentAt = timePtr(welcome)
	t.ReadinessSentAt = timePtr(readiness)
	t.QuestionSentAt = timePtr(question)
	t.ReminderSentAt = timePtr(reminder)
	return t, nil
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *PostgresRepo) Create(ctx context.Context, t Trial) error {
	const q = `
INSERT INTO trials (
  id, order_id, buyer_phone, buyer_name, storyteller_phone, storyteller_name,
  album_id, album_title, language, conversation_state,
  current_question_index, reminder_count, readiness_retry_count, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14
)
`
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.clock().UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		t.ID,
		nullString(t.OrderID),
		nullString(t.BuyerPhone),
		t.BuyerName,
		nullString(t.StorytellerPhone),
		t.StorytellerName,
		t.AlbumID,
		t.AlbumTitle,
		t.Language,
		t.State,
		t.CurrentQuestionIndex,
		t.ReminderCount,
		t.ReadinessRetryCount,
		t.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Trial, error) {
	q := `SELECT ` + trialColumns + ` FROM trials WHERE id = $1`
	t, err := scanTrial(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trial{}, ErrNotFound
		}
		return Trial{}, err
	}
	return t, nil
}

// Update applies a field merge in a single statement. The question index uses
// GREATEST so a stale writer can never move it backwards.
func (r *PostgresRepo) Update(ctx context.Context, id string, u Update) (Trial, error) {
	if u.IsZero() {
		return r.Get(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if u.State != nil {
		add("conversation_state = $%d", *u.State)
	}
	if u.StorytellerPhone != nil {
		add("storyteller_phone = $%d", nullString(*u.StorytellerPhone))
	}
	if u.CurrentQuestionIndex != nil {
		add("current_question_index = GREATEST(current_question_index, $%d)", *u.CurrentQuestionIndex)
	}
	if u.ReminderCount != nil {
		add("reminder_count = $%d", *u.ReminderCount)
	}
	if u.ReadinessRetryCount != nil {
		add("readiness_retry_count = $%d", *u.ReadinessRetryCount)
	}
	if u.CustomCoverImageURL != nil {
		add("custom_cover_image_url = $%d", nullString(*u.CustomCoverImageURL))
	}
	for _, col := range []struct {
		name string
		ts   Timestamp
	}{
		{"next_question_due_at", u.NextQuestionDueAt},
		{"reminder_due_at", u.ReminderDueAt},
		{"readiness_retry_due_at", u.ReadinessRetryDueAt},
		{"buyer_checkin_due_at", u.BuyerCheckinDueAt},
		{"storyteller_checkin_due_at", u.StorytellerCheckinDueAt},
		{"welcome_sent_at", u.WelcomeSentAt},
		{"readiness_sent_at", u.ReadinessSentAt},
		{"question_sent_at", u.QuestionSentAt},
		{"reminder_sent_at", u.ReminderSentAt},
	} {
		if col.ts.Set {
			add(col.name+" = $%d", col.ts.value())
		}
	}
	add("updated_at = $%d", r.clock().UTC())

	args = append(args, id)
	q := `UPDATE trials SET ` + strings.Join(sets, ", ") +
		fmt.Sprintf(` WHERE id = $%d RETURNING `, len(args)) + trialColumns

	t, err := scanTrial(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trial{}, ErrNotFound
		}
		return Trial{}, err
	}
	return t, nil
}

func (r *PostgresRepo) list(ctx context.Context, where string, args ...any) ([]Trial, error) {
	q := `SELECT ` + trialColumns + ` FROM trials WHERE ` + where
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Trial, 0)
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListActiveByStoryteller(ctx context.Context, phone string) ([]Trial, error) {
	return r.list(ctx, `storyteller_phone = $1 AND conversation_state IN ($2, $3) ORDER BY created_at ASC`,
		phone, StateInProgress, StateAwaitingReadiness)
}

func (r *PostgresRepo) ListByPhone(ctx context.Context, phone string) ([]Trial, error) {
	return r.list(ctx, `(storyteller_phone = $1 OR buyer_phone = $1) ORDER BY created_at DESC`, phone)
}

func (r *PostgresRepo) ListByBuyer(ctx context.Context, phone string) ([]Trial, error) {
	return r.list(ctx, `buyer_phone = $1 ORDER BY created_at ASC`, phone)
}

func (r *PostgresRepo) ListDueQuestions(ctx context.Context, now time.Time) ([]Trial, error) {
	return r.list(ctx, `conversation_state = $1 AND next_question_due_at IS NOT NULL AND next_question_due_at <= $2 ORDER BY next_question_due_at ASC`,
		StateInProgress, now.UTC())
}

func (r *PostgresRepo) ListPendingReminders(ctx context.Context, q ReminderQuery) ([]Trial, error) {
	return r.list(ctx, `conversation_state = $1
  AND next_question_due_at IS NULL
  AND question_sent_at IS NOT NULL AND question_sent_at <= $2
  AND (reminder_sent_at IS NULL OR reminder_sent_at <= $2)
  AND reminder_count < $3
ORDER BY created_at ASC`,
		StateInProgress, q.QuestionSentBefore.UTC(), q.MaxReminders)
}

func (r *PostgresRepo) ListReadinessRetriesDue(ctx context.Context, now time.Time) ([]Trial, error) {
	return r.list(ctx, `conversation_state = $1 AND readiness_retry_due_at IS NOT NULL AND readiness_retry_due_at <= $2 ORDER BY readiness_retry_due_at ASC`,
		StateAwaitingReadiness, now.UTC())
}

func (r *PostgresRepo) ListCheckinsDue(ctx context.Context, now time.Time) ([]Trial, error) {
	return r.list(ctx, `conversation_state = $1 AND (
  (storyteller_checkin_due_at IS NOT NULL AND storyteller_checkin_due_at <= $2) OR
  (buyer_checkin_due_at IS NOT NULL AND buyer_checkin_due_at <= $2)
) ORDER BY created_at ASC`,
		StateCompleted, now.UTC())
}

func (r *PostgresRepo) CreateVoiceNote(ctx context.Context, v VoiceNote) (bool, error) {
	const q = `
INSERT INTO voice_notes (
  id, trial_id, question_index, media_id, mime_type, download_status, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$7
)
ON CONFLICT (trial_id, question_index) DO NOTHING
`
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.clock().UTC()
	}
	if v.Status == "" {
		v.Status = MediaStatusPending
	}
	res, err := r.db.ExecContext(ctx, q,
		v.ID,
		v.TrialID,
		v.QuestionIndex,
		v.MediaID,
		v.MimeType,
		v.Status,
		v.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) VoiceNoteExists(ctx context.Context, trialID string, questionIndex int) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM voice_notes WHERE trial_id = $1 AND question_index = $2)`
	var ok bool
	if err := r.db.QueryRowContext(ctx, q, trialID, questionIndex).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *PostgresRepo) UpdateVoiceNoteMedia(ctx context.Context, id string, res MediaResult) error {
	const q = `
UPDATE voice_notes
SET download_status = $2,
    url = COALESCE(NULLIF($3::text, ''), url),
    content_hash = COALESCE(NULLIF($4::text, ''), content_hash),
    size_bytes = CASE WHEN $5::bigint > 0 THEN $5::bigint ELSE size_bytes END,
    updated_at = $6
WHERE id = $1
`
	out, err := r.db.ExecContext(ctx, q, id, res.Status, res.URL, res.ContentHash, res.SizeBytes, r.clock().UTC())
	if err != nil {
		return err
	}
	n, err := out.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListVoiceNotes(ctx context.Context, trialID string) ([]VoiceNote, error) {
	const q = `
SELECT id, trial_id, question_index, media_id, COALESCE(mime_type, ''), download_status,
       COALESCE(url, ''), COALESCE(content_hash, ''), size_bytes, created_at, updated_at
FROM voice_notes
WHERE trial_id = $1
ORDER BY question_index ASC
`
	rows, err := r.db.QueryContext(ctx, q, trialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]VoiceNote, 0)
	for rows.Next() {
		var v VoiceNote
		if err := rows.Scan(
			&v.ID,
			&v.TrialID,
			&v.QuestionIndex,
			&v.MediaID,
			&v.MimeType,
			&v.Status,
			&v.URL,
			&v.ContentHash,
			&v.SizeBytes,
			&v.CreatedAt,
			&v.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
