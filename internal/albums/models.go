package albums

import (
	"errors"

	"memoir-platform/internal/trials"
)

var ErrNotFound = errors.New("albums: not found")

// BatchSize is the number of questions per batch in a conversational album.
const BatchSize = 3

// Album is a catalog entry. It is externally owned; the conversation core only reads it.
//
// Invariant: the length of the question list for the resolved language is the
// total question count used for completion checks. An empty Hindi list falls
// back to English.
type Album struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`

	Questions   []string `json:"questions" yaml:"questions"`
	QuestionsHn []string `json:"questions_hn,omitempty" yaml:"questions_hn"`

	IsConversational bool    `json:"is_conversational_album" yaml:"conversational"`
	Batches          []Batch `json:"batches,omitempty" yaml:"batches"`

	CoverImageURL string `json:"cover_image_url,omitempty" yaml:"cover_image_url"`
}

// Batch carries the intro shown before each group of BatchSize questions.
type Batch struct {
	Title     string `json:"title" yaml:"title"`
	TitleHn   string `json:"title_hn,omitempty" yaml:"title_hn"`
	Premise   string `json:"premise" yaml:"premise"`
	PremiseHn string `json:"premise_hn,omitempty" yaml:"premise_hn"`
}

// QuestionsFor returns the question list for lang, falling back to English.
func (a Album) QuestionsFor(lang trials.Language) []string {
	if lang == trials.LanguageHindi && len(a.QuestionsHn) > 0 {
		return a.QuestionsHn
	}
	return a.Questions
}

// ResolvedLanguage is the language whose question list is actually used.
func (a Album) ResolvedLanguage(lang trials.Language) trials.Language {
	if lang == trials.LanguageHindi && len(a.QuestionsHn) > 0 {
		return trials.LanguageHindi
	}
	return trials.LanguageEnglish
}

func (a Album) TotalQuestions(lang trials.Language) int {
	return len(a.QuestionsFor(lang))
}

// Question returns the question text at index in the trial's language.
func (a Album) Question(index int, lang trials.Language) (string, bool) {
	qs := a.QuestionsFor(lang)
	if index < 0 || index >= len(qs) {
		return "", false
	}
	return qs[index], true
}

// BatchIntro returns the title and premise of the batch starting at index.
// ok is false for non-conversational albums, for indexes inside a batch, and
// for batches without a configured intro.
func (a Album) BatchIntro(index int, lang trials.Language) (title, premise string, ok bool) {
	if !a.IsConversational || index%BatchSize != 0 {
		return "", "", false
	}
	n := index / BatchSize
	if n >= len(a.Batches) {
		return "", "", false
	}
	b := a.Batches[n]
	title, premise = b.Title, b.Premise
	if a.ResolvedLanguage(lang) == trials.LanguageHindi {
		if b.TitleHn != "" {
			title = b.TitleHn
		}
		if b.PremiseHn != "" {
			premise = b.PremiseHn
		}
	}
	return title, premise, premise != "" || title != ""
}
