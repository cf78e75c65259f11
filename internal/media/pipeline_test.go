package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"memoir-platform/internal/outbox"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
)

type fakeFetcher struct {
	data     []byte
	fetchErr error
}

func (f fakeFetcher) FetchMedia(ctx context.Context, mediaID string) (whatsapp.MediaInfo, error) {
	if f.fetchErr != nil {
		return whatsapp.MediaInfo{}, f.fetchErr
	}
	return whatsapp.MediaInfo{ID: mediaID, URL: "https://lookaside/" + mediaID}, nil
}

func (f fakeFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	return f.data, nil
}

type fakeTranscoder struct{ err error }

func (f fakeTranscoder) ToMP3(ctx context.Context, in []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("ID3"), in...), nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return buf.Bytes()
}

func setup(t *testing.T) (*trials.MemoryRepo, *MemoryStorage, *whatsapp.MemoryGateway) {
	t.Helper()
	repo := trials.NewMemoryRepo()
	ctx := context.Background()
	if err := repo.Create(ctx, trials.Trial{ID: "t1", BuyerPhone: "919"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateVoiceNote(ctx, trials.VoiceNote{ID: "v1", TrialID: "t1", MediaID: "m1", Status: trials.MediaStatusPending}); err != nil {
		t.Fatalf("voice note: %v", err)
	}
	return repo, NewMemoryStorage("https://cdn.example"), whatsapp.NewMemoryGateway(nil)
}

func TestRunAudio_Completes(t *testing.T) {
	repo, store, gw := setup(t)
	r := NewRunner(fakeFetcher{data: []byte("ogg")}, fakeTranscoder{}, store, repo, gw, nil)

	if err := r.RunAudio(context.Background(), outbox.AudioJob{TrialID: "t1", VoiceNoteID: "v1", MediaID: "m1"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	notes, _ := repo.ListVoiceNotes(context.Background(), "t1")
	n := notes[0]
	if n.Status != trials.MediaStatusCompleted || n.URL != "https://cdn.example/voice-notes/t1/v1.mp3" || n.SizeBytes != 6 || len(n.ContentHash) != 64 {
		t.Fatalf("unexpected note %+v", n)
	}
	if obj, ok := store.Object("voice-notes/t1/v1.mp3"); !ok || string(obj) != "ID3ogg" {
		t.Fatalf("expected uploaded mp3")
	}
	if len(gw.Sent()) != 0 {
		t.Fatalf("audio pipeline must not message the storyteller")
	}
}

func TestRunAudio_MarksFailed(t *testing.T) {
	cases := map[string]*Runner{}
	repo, store, gw := setup(t)
	cases["fetch"] = NewRunner(fakeFetcher{fetchErr: errors.New("404")}, fakeTranscoder{}, store, repo, gw, nil)
	cases["transcode"] = NewRunner(fakeFetcher{data: []byte("x")}, fakeTranscoder{err: errors.New("bad codec")}, store, repo, gw, nil)
	failing := NewMemoryStorage("")
	failing.Fail = true
	cases["upload"] = NewRunner(fakeFetcher{data: []byte("x")}, fakeTranscoder{}, failing, repo, gw, nil)

	for name, r := range cases {
		if err := r.RunAudio(context.Background(), outbox.AudioJob{TrialID: "t1", VoiceNoteID: "v1"}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
		notes, _ := repo.ListVoiceNotes(context.Background(), "t1")
		if notes[0].Status != trials.MediaStatusFailed {
			t.Fatalf("%s: expected failed status, got %s", name, notes[0].Status)
		}
	}
	if len(gw.Sent()) != 0 {
		t.Fatalf("failures must stay silent")
	}
}

// ctxRepo rejects writes on a finished context like a real database driver.
type ctxRepo struct{ *trials.MemoryRepo }

func (r ctxRepo) UpdateVoiceNoteMedia(ctx context.Context, id string, res trials.MediaResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MemoryRepo.UpdateVoiceNoteMedia(ctx, id, res)
}

func TestRunAudio_MarksFailedAfterDeadline(t *testing.T) {
	repo, store, gw := setup(t)
	r := NewRunner(fakeFetcher{fetchErr: context.DeadlineExceeded}, fakeTranscoder{}, store, ctxRepo{repo}, gw, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if err := r.RunAudio(ctx, outbox.AudioJob{TrialID: "t1", VoiceNoteID: "v1"}); err == nil {
		t.Fatalf("expected error")
	}
	notes, _ := repo.ListVoiceNotes(context.Background(), "t1")
	if notes[0].Status != trials.MediaStatusFailed {
		t.Fatalf("expected failed status despite the expired job deadline, got %s", notes[0].Status)
	}
}

func TestRunCover_SavesAndAcknowledges(t *testing.T) {
	repo, store, gw := setup(t)
	r := NewRunner(fakeFetcher{data: pngBytes(t)}, fakeTranscoder{}, store, repo, gw, nil)

	if err := r.RunCover(context.Background(), outbox.CoverJob{TrialID: "t1", MediaID: "img", ReplyTo: "919", Lang: trials.LanguageEnglish}); err != nil {
		t.Fatalf("run: %v", err)
	}
	tr, _ := repo.Get(context.Background(), "t1")
	if !strings.HasPrefix(tr.CustomCoverImageURL, "https://cdn.example/covers/t1/") || !strings.HasSuffix(tr.CustomCoverImageURL, ".webp") {
		t.Fatalf("unexpected cover url %q", tr.CustomCoverImageURL)
	}
	sent := gw.Sent()
	if len(sent) != 1 || sent[0].To != "919" || !strings.Contains(sent[0].Body, "album cover") {
		t.Fatalf("expected acknowledgement, got %+v", sent)
	}
}

func TestRunCover_ReportsStage(t *testing.T) {
	repo, store, gw := setup(t)
	r := NewRunner(fakeFetcher{data: []byte("not an image")}, fakeTranscoder{}, store, repo, gw, nil)

	if err := r.RunCover(context.Background(), outbox.CoverJob{TrialID: "t1", ReplyTo: "919"}); err == nil {
		t.Fatalf("expected error")
	}
	sent := gw.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Body, "JPEG or PNG") {
		t.Fatalf("expected compress-stage message, got %+v", sent)
	}
	if tr, _ := repo.Get(context.Background(), "t1"); tr.CustomCoverImageURL != "" {
		t.Fatalf("cover must not be set on failure")
	}
}

func TestStartAudio_RunsInBackground(t *testing.T) {
	repo, store, gw := setup(t)
	r := NewRunner(fakeFetcher{data: []byte("ogg")}, fakeTranscoder{}, store, repo, gw, nil)

	r.StartAudio(context.Background(), outbox.AudioJob{TrialID: "t1", VoiceNoteID: "v1", MediaID: "m1"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	notes, _ := repo.ListVoiceNotes(context.Background(), "t1")
	if notes[0].Status != trials.MediaStatusCompleted {
		t.Fatalf("expected completed, got %s", notes[0].Status)
	}
}
