// Package media post-processes inbound voice notes and cover photos.
//
// Both pipelines run in the background after the conversational reply was
// decided. Voice note failures are recorded on the note and never reach the
// storyteller; cover failures are reported to the buyer with a stage-specific
// message.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"memoir-platform/internal/locale"
	"memoir-platform/internal/metrics"
	"memoir-platform/internal/outbox"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
)

const statusWriteTimeout = 5 * time.Second

// Store is the persistence the pipelines write to.
type Store interface {
	Update(ctx context.Context, id string, u trials.Update) (trials.Trial, error)
	UpdateVoiceNoteMedia(ctx context.Context, id string, res trials.MediaResult) error
}

// Runner implements outbox.MediaRunner.
type Runner struct {
	fetch   whatsapp.MediaFetcher
	tx      Transcoder
	storage Storage
	store   Store
	gw      whatsapp.Gateway
	timeout time.Duration
	l       *slog.Logger

	wg sync.WaitGroup
}

func NewRunner(fetch whatsapp.MediaFetcher, tx Transcoder, storage Storage, store Store, gw whatsapp.Gateway, l *slog.Logger) *Runner {
	if l == nil {
		l = slog.Default()
	}
	return &Runner{fetch: fetch, tx: tx, storage: storage, store: store, gw: gw, timeout: 5 * time.Minute, l: l}
}

var _ outbox.MediaRunner = (*Runner)(nil)

func (r *Runner) StartAudio(ctx context.Context, job outbox.AudioJob) {
	r.background(ctx, func(ctx context.Context) { _ = r.RunAudio(ctx, job) })
}

func (r *Runner) StartCover(ctx context.Context, job outbox.CoverJob) {
	r.background(ctx, func(ctx context.Context) { _ = r.RunCover(ctx, job) })
}

func (r *Runner) background(ctx context.Context, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				r.l.Error("media job panicked", "panic", rec)
			}
		}()
		fn(ctx)
	}()
}

// Wait blocks until running jobs finish or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAudio fetches, transcodes, uploads and records one voice note.
func (r *Runner) RunAudio(ctx context.Context, job outbox.AudioJob) error {
	l := r.l.With("trial_id", job.TrialID, "voice_note_id", job.VoiceNoteID)

	res, err := r.processAudio(ctx, job)
	if err != nil {
		l.Warn("voice note processing failed", "err", err)
		metrics.MediaPipeline.WithLabelValues("audio", "failed").Inc()
		// The job deadline is often why processing failed; the status write needs its own.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
		defer cancel()
		if uerr := r.store.UpdateVoiceNoteMedia(sctx, job.VoiceNoteID, trials.MediaResult{Status: trials.MediaStatusFailed}); uerr != nil {
			l.Error("voice note status update failed", "err", uerr)
		}
		return err
	}
	if err := r.store.UpdateVoiceNoteMedia(ctx, job.VoiceNoteID, res); err != nil {
		l.Error("voice note status update failed", "err", err)
		metrics.MediaPipeline.WithLabelValues("audio", "failed").Inc()
		return err
	}
	l.Info("voice note stored", "url", res.URL, "size_bytes", res.SizeBytes)
	metrics.MediaPipeline.WithLabelValues("audio", "completed").Inc()
	return nil
}

func (r *Runner) processAudio(ctx context.Context, job outbox.AudioJob) (trials.MediaResult, error) {
	info, err := r.fetch.FetchMedia(ctx, job.MediaID)
	if err != nil {
		return trials.MediaResult{}, fmt.Errorf("fetch media: %w", err)
	}
	raw, err := r.fetch.Download(ctx, info.URL)
	if err != nil {
		return trials.MediaResult{}, fmt.Errorf("download: %w", err)
	}
	mp3, err := r.tx.ToMP3(ctx, raw)
	if err != nil {
		return trials.MediaResult{}, fmt.Errorf("transcode: %w", err)
	}
	sum := sha256.Sum256(mp3)
	hash := hex.EncodeToString(sum[:])

	key := fmt.Sprintf("voice-notes/%s/%s.mp3", job.TrialID, job.VoiceNoteID)
	url, err := r.storage.Put(ctx, key, "audio/mpeg", mp3)
	if err != nil {
		return trials.MediaResult{}, fmt.Errorf("upload: %w", err)
	}
	return trials.MediaResult{
		Status:      trials.MediaStatusCompleted,
		URL:         url,
		ContentHash: hash,
		SizeBytes:   int64(len(mp3)),
	}, nil
}

// RunCover downloads, compresses and stores a buyer's cover photo, then replies.
func (r *Runner) RunCover(ctx context.Context, job outbox.CoverJob) error {
	l := r.l.With("trial_id", job.TrialID)
	ctx = whatsapp.WithTrialID(ctx, job.TrialID)

	stage, err := r.processCover(ctx, job)
	if err != nil {
		l.Warn("cover photo processing failed", "stage", stage, "err", err)
		metrics.MediaPipeline.WithLabelValues("cover", "failed").Inc()
		r.gw.SendText(ctx, job.ReplyTo, locale.CoverPhotoFailed{Stage: stage}.Render(job.Lang))
		return err
	}
	metrics.MediaPipeline.WithLabelValues("cover", "completed").Inc()
	r.gw.SendText(ctx, job.ReplyTo, locale.CoverPhotoSaved{}.Render(job.Lang))
	return nil
}

func (r *Runner) processCover(ctx context.Context, job outbox.CoverJob) (locale.CoverStage, error) {
	info, err := r.fetch.FetchMedia(ctx, job.MediaID)
	if err != nil {
		return locale.CoverStageDownload, err
	}
	raw, err := r.fetch.Download(ctx, info.URL)
	if err != nil {
		return locale.CoverStageDownload, err
	}
	webpBytes, err := CompressCover(raw)
	if err != nil {
		return locale.CoverStageCompress, err
	}
	key := fmt.Sprintf("covers/%s/%d.webp", job.TrialID, time.Now().UnixNano())
	url, err := r.storage.Put(ctx, key, "image/webp", webpBytes)
	if err != nil {
		return locale.CoverStageUpload, err
	}
	if _, err := r.store.Update(ctx, job.TrialID, trials.Update{CustomCoverImageURL: trials.Ptr(url)}); err != nil {
		return locale.CoverStageSave, err
	}
	return "", nil
}
