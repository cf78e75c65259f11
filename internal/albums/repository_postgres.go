package albums

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"memoir-platform/internal/trials"
	"memoir-platform/pkg/utils"
)

// PostgresCatalog reads the albums table. Question lists and batches are JSONB columns.
type PostgresCatalog struct {
	db utils.Querier
}

func NewPostgresCatalog(db utils.Querier) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

const albumColumns = `a.id, a.title, a.questions, COALESCE(a.questions_hn, '[]'::jsonb), a.is_conversational,
COALESCE(a.batches, '[]'::jsonb), COALESCE(a.cover_image_url, '')`

type albumRow struct {
	a                               Album
	questions, questionsHn, batches []byte
}

func (r *albumRow) targets() []any {
	return []any{&r.a.ID, &r.a.Title, &r.questions, &r.questionsHn, &r.a.IsConversational, &r.batches, &r.a.CoverImageURL}
}

func (r *albumRow) decode() (Album, error) {
	if err := json.Unmarshal(r.questions, &r.a.Questions); err != nil {
		return Album{}, fmt.Errorf("albums: decode questions: %w", err)
	}
	if err := json.Unmarshal(r.questionsHn, &r.a.QuestionsHn); err != nil {
		return Album{}, fmt.Errorf("albums: decode questions_hn: %w", err)
	}
	if err := json.Unmarshal(r.batches, &r.a.Batches); err != nil {
		return Album{}, fmt.Errorf("albums: decode batches: %w", err)
	}
	return r.a, nil
}

func (c *PostgresCatalog) Get(ctx context.Context, id string) (Album, error) {
	var row albumRow
	err := c.db.QueryRowContext(ctx, `SELECT `+albumColumns+` FROM albums a WHERE a.id = $1`, id).Scan(row.targets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return Album{}, ErrNotFound
	}
	if err != nil {
		return Album{}, fmt.Errorf("albums: get: %w", err)
	}
	return row.decode()
}

// Upsert writes a catalog entry. Used by the seed command.
func (c *PostgresCatalog) Upsert(ctx context.Context, a Album) error {
	qs, err := json.Marshal(a.Questions)
	if err != nil {
		return err
	}
	hn, err := json.Marshal(a.QuestionsHn)
	if err != nil {
		return err
	}
	batches, err := json.Marshal(a.Batches)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
INSERT INTO albums (id, title, questions, questions_hn, is_conversational, batches, cover_image_url)
VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6::jsonb, NULLIF($7, ''))
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  questions = EXCLUDED.questions,
  questions_hn = EXCLUDED.questions_hn,
  is_conversational = EXCLUDED.is_conversational,
  batches = EXCLUDED.batches,
  cover_image_url = EXCLUDED.cover_image_url,
  updated_at = now()`,
		a.ID, a.Title, string(qs), string(hn), a.IsConversational, string(batches), a.CoverImageURL)
	if err != nil {
		return fmt.Errorf("albums: upsert: %w", err)
	}
	return nil
}

// TrialView loads the trial and its album in a single join for the public album page.
func (c *PostgresCatalog) TrialView(ctx context.Context, trialID string) (TrialView, error) {
	var (
		row  albumRow
		v    TrialView
		lang string
	)
	dest := append([]any{
		&v.TrialID, &v.StorytellerName, &v.BuyerName, &lang, &v.State,
		&v.CurrentQuestionIndex, &v.CustomCoverImageURL,
	}, row.targets()...)

	err := c.db.QueryRowContext(ctx, `
SELECT t.id, t.storyteller_name, t.buyer_name, t.language, t.conversation_state,
       t.current_question_index, COALESCE(t.custom_cover_image_url, ''),
       `+albumColumns+`
FROM trials t
JOIN albums a ON a.id = t.album_id
WHERE t.id = $1`, trialID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return TrialView{}, ErrNotFound
	}
	if err != nil {
		return TrialView{}, fmt.Errorf("albums: trial view: %w", err)
	}
	a, err := row.decode()
	if err != nil {
		return TrialView{}, err
	}
	v.Language = trials.Language(lang)
	v.Album = a
	return v, nil
}
