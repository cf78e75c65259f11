package outbox

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"memoir-platform/internal/locale"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/whatsapp"
)

type recordingMedia struct {
	mu     sync.Mutex
	audio  []AudioJob
	covers []CoverJob
}

func (m *recordingMedia) StartAudio(ctx context.Context, job AudioJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = append(m.audio, job)
}

func (m *recordingMedia) StartCover(ctx context.Context, job CoverJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.covers = append(m.covers, job)
}

func newDispatcher(gw whatsapp.Gateway, media MediaRunner, slept *[]time.Duration) *Dispatcher {
	return NewDispatcher(gw, media, nil).WithSleep(func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	})
}

func TestDispatch_OrderAndPause(t *testing.T) {
	gw := whatsapp.NewMemoryGateway(nil)
	var slept []time.Duration
	d := newDispatcher(gw, nil, &slept)

	ok := d.Dispatch(context.Background(), []Effect{
		Text{To: "911", Message: locale.SendVoiceNote{}, Lang: trials.LanguageEnglish},
		Pause{D: PairingDelay},
		Template{To: "911", Template: whatsapp.Template{Name: "readiness_check_en"}},
	})
	if !ok {
		t.Fatalf("expected success")
	}
	sent := gw.Sent()
	if len(sent) != 2 || sent[0].Kind != whatsapp.KindText || sent[1].Template.Name != "readiness_check_en" {
		t.Fatalf("unexpected sends %+v", sent)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("expected a 2s pause, got %v", slept)
	}
}

func TestDispatch_BestEffortFailureIsNotPrimary(t *testing.T) {
	gw := whatsapp.NewMemoryGateway(nil)
	gw.FailFor("buyer", true)
	var slept []time.Duration
	d := newDispatcher(gw, nil, &slept)

	ok := d.Dispatch(context.Background(), []Effect{
		Text{To: "storyteller", Message: locale.AnswerAck{}},
		Text{To: "buyer", Message: locale.PhotoRequest{}, BestEffort: true},
	})
	if !ok {
		t.Fatalf("best-effort failure must not fail the dispatch")
	}

	ok = d.Dispatch(context.Background(), []Effect{
		Text{To: "buyer", Message: locale.AnswerAck{}},
		Text{To: "storyteller", Message: locale.AnswerAck{}},
	})
	if ok {
		t.Fatalf("expected primary failure to be reported")
	}
	if got := len(gw.Sent()); got != 2 {
		t.Fatalf("later effects must still run, got %d sends", got)
	}
}

func TestDispatch_MediaJobs(t *testing.T) {
	media := &recordingMedia{}
	var slept []time.Duration
	d := newDispatcher(whatsapp.NewMemoryGateway(nil), media, &slept)

	d.Dispatch(context.Background(), []Effect{
		AudioJob{TrialID: "t1", VoiceNoteID: "v1", MediaID: "m1"},
		CoverJob{TrialID: "t1", MediaID: "m2", ReplyTo: "buyer"},
	})
	if len(media.audio) != 1 || len(media.covers) != 1 {
		t.Fatalf("expected both jobs started, got %+v %+v", media.audio, media.covers)
	}
}

func TestBuyerOnboarding(t *testing.T) {
	tr := trials.Trial{ID: "abc", BuyerPhone: "919", BuyerName: "Asha", StorytellerName: "Nani", AlbumTitle: "Roots", Language: trials.LanguageHindi}
	effects := BuyerOnboarding(tr, "+1 555 0100")
	if len(effects) != 3 {
		t.Fatalf("expected 3 effects, got %d", len(effects))
	}
	tpl := effects[0].(Template)
	if tpl.Template.Name != "buyer_confirmation_hn" {
		t.Fatalf("unexpected template %q", tpl.Template.Name)
	}
	if _, ok := effects[1].(Pause); !ok {
		t.Fatalf("expected pause between confirmation and link")
	}
	cta := effects[2].(CTA)
	if !strings.HasPrefix(cta.CTA.URL, "https://wa.me/15550100?text=st_abc") {
		t.Fatalf("unexpected link %q", cta.CTA.URL)
	}
}
