package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"memoir-platform/internal/albums"
	"memoir-platform/internal/metrics"
	"memoir-platform/internal/outbox"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
	"memoir-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Trials *trials.Service
	Repo   trials.Repository
	Notes  trials.VoiceNoteRepository
	Views  albums.ViewReader
	Outbox *outbox.Dispatcher

	// BusinessNumber is the WhatsApp number embedded in share links.
	BusinessNumber string
}

// --- Trials ---

type createTrialResponse struct {
	Trial          trials.Trial `json:"trial"`
	ShareLink      string       `json:"share_link"`
	OnboardingSent bool         `json:"onboarding_sent"`
}

// CreateTrial creates a trial and sends the buyer onboarding messages.
// RBAC: payments or admin.
func (h Handlers) CreateTrial(c *gin.Context) {
	if h.Trials == nil || h.Outbox == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "trials not configured"})
		return
	}
	var req trials.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	l := logger.FromGin(c)
	t, err := h.Trials.Create(c.Request.Context(), req)
	if err != nil {
		var ve *trials.ValidationError
		if errors.As(err, &ve) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "field": ve.Field, "reason": ve.Reason})
			return
		}
		l.Error("trial create failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "trial create failed"})
		return
	}
	metrics.TrialsCreated.Inc()
	l.Info("trial created", "trial_id", t.ID, "album_id", t.AlbumID, "buyer", trials.MaskPhone(t.BuyerPhone))

	ctx := whatsapp.WithTrialID(c.Request.Context(), t.ID)
	sent := h.Outbox.Dispatch(ctx, outbox.BuyerOnboarding(t, h.BusinessNumber))
	if !sent {
		// The trial stands; support can resend the link.
		l.Warn("buyer onboarding not delivered", "trial_id", t.ID)
	}

	c.JSON(http.StatusCreated, createTrialResponse{
		Trial:          t,
		ShareLink:      outbox.ShareLink(h.BusinessNumber, t.ID),
		OnboardingSent: sent,
	})
}

// GetTrial returns the full trial row.
// RBAC: support, payments or admin.
func (h Handlers) GetTrial(c *gin.Context) {
	if h.Repo == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "trials not configured"})
		return
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "trial not found"})
		return
	}
	t, err := h.Repo.Get(c.Request.Context(), id)
	if errors.Is(err, trials.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "trial not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("trial lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "trial lookup failed"})
		return
	}
	resp := gin.H{"trial": t}
	if h.Notes != nil {
		notes, err := h.Notes.ListVoiceNotes(c.Request.Context(), t.ID)
		if err != nil {
			logger.FromGin(c).Error("voice note lookup failed", "trial_id", t.ID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "trial lookup failed"})
			return
		}
		resp["voice_notes"] = notes
	}
	c.JSON(http.StatusOK, resp)
}

// --- Public album ---

type albumAnswer struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	AudioURL string `json:"audio_url,omitempty"`
}

type albumPage struct {
	TrialID         string          `json:"trial_id"`
	Title           string          `json:"title"`
	StorytellerName string          `json:"storyteller_name"`
	BuyerName       string          `json:"buyer_name"`
	Language        trials.Language `json:"language"`
	State           trials.State    `json:"state"`
	CoverImageURL   string          `json:"cover_image_url,omitempty"`
	TotalQuestions  int             `json:"total_questions"`
	Answers         []albumAnswer   `json:"answers"`
}

// PublicAlbum renders the answered questions of a trial with their recordings.
// Only completed voice notes expose an audio URL.
func (h Handlers) PublicAlbum(c *gin.Context) {
	if h.Views == nil || h.Notes == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "albums not configured"})
		return
	}
	ctx := c.Request.Context()
	id := c.Param("trial_id")
	if _, err := uuid.Parse(id); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "album not found"})
		return
	}
	v, err := h.Views.TrialView(ctx, id)
	if errors.Is(err, albums.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "album not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("album view failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "album lookup failed"})
		return
	}
	notes, err := h.Notes.ListVoiceNotes(ctx, v.TrialID)
	if err != nil {
		logger.FromGin(c).Error("voice note lookup failed", "trial_id", v.TrialID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "album lookup failed"})
		return
	}
	c.JSON(http.StatusOK, buildAlbumPage(v, notes))
}

func buildAlbumPage(v albums.TrialView, notes []trials.VoiceNote) albumPage {
	urls := make(map[int]string, len(notes))
	for _, n := range notes {
		if n.Status == trials.MediaStatusCompleted && n.URL != "" {
			urls[n.QuestionIndex] = n.URL
		}
	}
	questions := v.Album.QuestionsFor(v.Language)
	answered := min(v.CurrentQuestionIndex, len(questions))

	page := albumPage{
		TrialID:         v.TrialID,
		Title:           v.Album.Title,
		StorytellerName: v.StorytellerName,
		BuyerName:       v.BuyerName,
		Language:        v.Album.ResolvedLanguage(v.Language),
		State:           v.State,
		CoverImageURL:   v.CustomCoverImageURL,
		TotalQuestions:  len(questions),
		Answers:         make([]albumAnswer, 0, answered),
	}
	if page.CoverImageURL == "" {
		page.CoverImageURL = v.Album.CoverImageURL
	}
	for i := 0; i < answered; i++ {
		page.Answers = append(page.Answers, albumAnswer{Index: i, Question: questions[i], AudioURL: urls[i]})
	}
	return page
}

// Health reports liveness plus an optional dependency probe.
func Health(probe func(*gin.Context) error, l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if probe != nil {
			if err := probe(c); err != nil {
				l.Warn("health probe failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
