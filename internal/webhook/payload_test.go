package webhook

import (
	"testing"

	"memoir-platform/internal/conversation"
)

const textPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "messages": [
          {"id": "wamid.text", "from": "911234567890", "type": "text", "text": {"body": "st_33333333-3333-4333-8333-333333333333"}},
          {"id": "wamid.btn", "from": "911234567890", "type": "button", "button": {"text": "Yes, let's begin", "payload": "YES"}},
          {"id": "wamid.list", "from": "911234567890", "type": "interactive", "interactive": {"type": "list_reply", "list_reply": {"id": "1", "title": "Maybe later"}}},
          {"id": "wamid.audio", "from": "911234567890", "type": "audio", "audio": {"id": "media-1", "mime_type": "audio/ogg; codecs=opus", "voice": true}}
        ]
      }
    }]
  }]
}`

func TestParse_Messages(t *testing.T) {
	p, err := Parse([]byte(textPayload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	msgs := p.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}

	in := msgs[0].Inbound()
	if in.Type != conversation.MessageText || in.Text != "st_33333333-3333-4333-8333-333333333333" || in.From != "911234567890" {
		t.Fatalf("unexpected text inbound %+v", in)
	}
	if in := msgs[1].Inbound(); in.Text != "Yes, let's begin" {
		t.Fatalf("button label expected, got %q", in.Text)
	}
	if in := msgs[2].Inbound(); in.Text != "Maybe later" || !in.Type.Textual() {
		t.Fatalf("list reply title expected, got %+v", in)
	}
	if in := msgs[3].Inbound(); in.MediaID != "media-1" || in.Type != conversation.MessageAudio {
		t.Fatalf("audio media expected, got %+v", in)
	}
}

func TestParse_StatusErrors(t *testing.T) {
	raw := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.out","status":"failed","recipient_id":"911","errors":[{"code":131047,"title":"Re-engagement message"}]}]}}]}]}`
	p, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	st := p.Statuses()
	if len(st) != 1 {
		t.Fatalf("expected 1 status")
	}
	code, msg := st[0].FirstError()
	if code != "131047" || msg != "Re-engagement message" {
		t.Fatalf("unexpected error %q %q", code, msg)
	}

	if _, err := Parse([]byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}
