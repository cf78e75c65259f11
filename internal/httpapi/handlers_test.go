package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"memoir-platform/internal/albums"
	"memoir-platform/internal/outbox"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"

	"github.com/gin-gonic/gin"
)

const albumID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

type fixture struct {
	router *gin.Engine
	repo   *trials.MemoryRepo
	gw     *whatsapp.MemoryGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := albums.NewMemoryCatalog(albums.Album{
		ID:            albumID,
		Title:         "Childhood Memories",
		Questions:     []string{"Where were you born?", "Your first school?", "A favourite game?"},
		CoverImageURL: "https://cdn.example/default.webp",
	})
	f := &fixture{repo: trials.NewMemoryRepo(), gw: whatsapp.NewMemoryGateway(nil)}
	d := outbox.NewDispatcher(f.gw, nil, nil).WithSleep(func(context.Context, time.Duration) error { return nil })
	h := Handlers{
		Trials:         trials.NewService(f.repo, albums.Titles{Catalog: catalog}),
		Repo:           f.repo,
		Notes:          f.repo,
		Views:          albums.ComposedViews{Trials: f.repo, Catalog: catalog},
		Outbox:         d,
		BusinessNumber: "+1 555 0100",
	}

	f.router = gin.New()
	f.router.POST("/v1/trials", h.CreateTrial)
	f.router.GET("/v1/trials/:id", h.GetTrial)
	f.router.GET("/public/albums/:trial_id", h.PublicAlbum)
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreateTrial_SendsOnboarding(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/v1/trials", trials.CreateInput{
		AlbumID:         albumID,
		BuyerPhone:      "+91 90000 00001",
		BuyerName:       "Asha",
		StorytellerName: "Nani",
		Language:        "en",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp createTrialResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Trial.State != trials.StateAwaitingInitialContact || !resp.OnboardingSent {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.ShareLink != "https://wa.me/15550100?text=st_"+resp.Trial.ID {
		t.Fatalf("unexpected share link %q", resp.ShareLink)
	}

	sent := f.gw.Sent()
	if len(sent) != 2 || sent[0].Kind != whatsapp.KindTemplate || sent[1].Kind != whatsapp.KindInteractive {
		t.Fatalf("expected template then CTA, got %+v", sent)
	}
	if sent[0].To != "919000000001" || sent[0].Template.Name != "buyer_confirmation_en" {
		t.Fatalf("unexpected confirmation %+v", sent[0])
	}
}

func TestCreateTrial_ValidationError(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/v1/trials", trials.CreateInput{
		AlbumID:         albumID,
		BuyerPhone:      "12",
		BuyerName:       "Asha",
		StorytellerName: "Nani",
		Language:        "en",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["field"] != "buyer_phone" || body["reason"] == "" {
		t.Fatalf("expected field/reason, got %v", body)
	}
	if len(f.gw.Sent()) != 0 {
		t.Fatalf("nothing may be sent on validation failure")
	}
}

func TestGetTrial_NotFound(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodGet, "/v1/trials/missing", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPublicAlbum_ListsAnsweredQuestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := "44444444-4444-4444-8444-444444444444"
	if err := f.repo.Create(ctx, trials.Trial{
		ID:                   id,
		AlbumID:              albumID,
		BuyerName:            "Asha",
		StorytellerName:      "Nani",
		Language:             trials.LanguageHindi,
		State:                trials.StateInProgress,
		CurrentQuestionIndex: 2,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i, status := range []trials.MediaStatus{trials.MediaStatusCompleted, trials.MediaStatusPending} {
		note := trials.VoiceNote{ID: "n" + string(rune('0'+i)), TrialID: id, QuestionIndex: i, MediaID: "m", Status: trials.MediaStatusPending}
		if _, err := f.repo.CreateVoiceNote(ctx, note); err != nil {
			t.Fatalf("note: %v", err)
		}
		if status == trials.MediaStatusCompleted {
			_ = f.repo.UpdateVoiceNoteMedia(ctx, note.ID, trials.MediaResult{Status: status, URL: "https://cdn.example/a.mp3"})
		}
	}

	w := f.do(http.MethodGet, "/public/albums/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var page albumPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.TotalQuestions != 3 || len(page.Answers) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Answers[0].AudioURL == "" || page.Answers[1].AudioURL != "" {
		t.Fatalf("only completed notes expose audio: %+v", page.Answers)
	}
	// No Hindi questions in the album, so the page falls back to English.
	if page.Language != trials.LanguageEnglish || page.CoverImageURL != "https://cdn.example/default.webp" {
		t.Fatalf("unexpected language/cover %s %q", page.Language, page.CoverImageURL)
	}

	if w := f.do(http.MethodGet, "/public/albums/unknown", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
