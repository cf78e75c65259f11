package whatsapp

import (
	"context"
	"log/slog"
	"sync"
)

// Sent is one message captured by MemoryGateway.
type Sent struct {
	To       string
	Kind     MessageKind
	Body     string
	Template Template
	CTA      CTA
}

// MemoryGateway records sends instead of calling the provider.
// Used by tests and by local runs without provider credentials.
type MemoryGateway struct {
	mu   sync.Mutex
	sent []Sent
	// Fail makes every send to the given recipient return false.
	fail map[string]bool
	l    *slog.Logger
}

func NewMemoryGateway(l *slog.Logger) *MemoryGateway {
	return &MemoryGateway{fail: map[string]bool{}, l: l}
}

// FailFor makes sends to phone fail until cleared with ok=false.
func (g *MemoryGateway) FailFor(phone string, fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[phone] = fail
}

func (g *MemoryGateway) SendText(ctx context.Context, to, body string) bool {
	return g.record(Sent{To: to, Kind: KindText, Body: body})
}

func (g *MemoryGateway) SendTemplate(ctx context.Context, to string, tpl Template) bool {
	return g.record(Sent{To: to, Kind: KindTemplate, Template: tpl})
}

func (g *MemoryGateway) SendInteractiveCTA(ctx context.Context, to string, cta CTA) bool {
	return g.record(Sent{To: to, Kind: KindInteractive, Body: cta.Body, CTA: cta})
}

func (g *MemoryGateway) record(s Sent) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail[s.To] {
		return false
	}
	g.sent = append(g.sent, s)
	if g.l != nil {
		g.l.Debug("whatsapp dry-run send", "to", s.To, "kind", s.Kind, "template", s.Template.Name, "body", s.Body)
	}
	return true
}

// Sent returns a copy of every successful send, in order.
func (g *MemoryGateway) Sent() []Sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Sent, len(g.sent))
	copy(out, g.sent)
	return out
}

// Reset drops the captured sends.
func (g *MemoryGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = nil
}
