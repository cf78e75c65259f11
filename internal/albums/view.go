package albums

import (
	"context"
	"errors"

	"memoir-platform/internal/trials"
)

// TrialView is the read model behind the public album page.
type TrialView struct {
	TrialID              string          `json:"trial_id"`
	StorytellerName      string          `json:"storyteller_name"`
	BuyerName            string          `json:"buyer_name"`
	Language             trials.Language `json:"language"`
	State                trials.State    `json:"state"`
	CurrentQuestionIndex int             `json:"current_question_index"`
	CustomCoverImageURL  string          `json:"custom_cover_image_url,omitempty"`
	Album                Album           `json:"album"`
}

// ViewReader loads a TrialView by trial ID.
type ViewReader interface {
	TrialView(ctx context.Context, trialID string) (TrialView, error)
}

// ComposedViews builds TrialViews from a trial repository and a catalog.
// Used where the trial+album join is not available (memory and YAML setups).
type ComposedViews struct {
	Trials  trials.Repository
	Catalog Catalog
}

func (c ComposedViews) TrialView(ctx context.Context, trialID string) (TrialView, error) {
	t, err := c.Trials.Get(ctx, trialID)
	if errors.Is(err, trials.ErrNotFound) {
		return TrialView{}, ErrNotFound
	}
	if err != nil {
		return TrialView{}, err
	}
	a, err := c.Catalog.Get(ctx, t.AlbumID)
	if err != nil {
		return TrialView{}, err
	}
	return TrialView{
		TrialID:              t.ID,
		StorytellerName:      t.StorytellerName,
		BuyerName:            t.BuyerName,
		Language:             t.Language,
		State:                t.State,
		CurrentQuestionIndex: t.CurrentQuestionIndex,
		CustomCoverImageURL:  t.CustomCoverImageURL,
		Album:                a,
	}, nil
}

// Titles adapts a Catalog to trials.AlbumChecker.
type Titles struct {
	Catalog Catalog
}

func (t Titles) AlbumTitle(ctx context.Context, albumID string) (string, error) {
	a, err := t.Catalog.Get(ctx, albumID)
	if errors.Is(err, ErrNotFound) {
		return "", trials.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return a.Title, nil
}
