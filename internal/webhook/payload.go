package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"

	"memoir-platform/internal/conversation"
	"memoir-platform/internal/trials"
)

// Payload is the subset of the WhatsApp Cloud API webhook body we read.
// Ref: https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks/payload-examples
//
// Keep it provider-adapter-only; no conversation decisions are made here.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *reply `json:"button_reply,omitempty"`
		ListReply   *reply `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Audio *Media `json:"audio,omitempty"`
	Image *Media `json:"image,omitempty"`
}

type reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

type Status struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	RecipientID string        `json:"recipient_id"`
	Timestamp   string        `json:"timestamp"`
	Errors      []StatusError `json:"errors,omitempty"`
}

type StatusError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func Parse(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("webhook: decode payload: %w", err)
	}
	return p, nil
}

// Messages flattens every inbound message in the payload.
func (p Payload) Messages() []Message {
	var out []Message
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			out = append(out, c.Value.Messages...)
		}
	}
	return out
}

// Statuses flattens every delivery-status callback in the payload.
func (p Payload) Statuses() []Status {
	var out []Status
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			out = append(out, c.Value.Statuses...)
		}
	}
	return out
}

// Inbound converts the message to the conversation input. Replies to buttons
// and lists use the visible label as the text.
func (m Message) Inbound() conversation.InboundMessage {
	in := conversation.InboundMessage{
		ID:   m.ID,
		From: trials.NormalizePhone(m.From),
		Type: conversation.MessageType(m.Type),
	}
	switch {
	case m.Text != nil:
		in.Text = m.Text.Body
	case m.Button != nil:
		in.Text = m.Button.Text
		if in.Text == "" {
			in.Text = m.Button.Payload
		}
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		in.Text = m.Interactive.ButtonReply.Title
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		in.Text = m.Interactive.ListReply.Title
	}
	if m.Audio != nil {
		in.MediaID, in.MimeType = m.Audio.ID, m.Audio.MimeType
	}
	if m.Image != nil {
		in.MediaID, in.MimeType = m.Image.ID, m.Image.MimeType
	}
	return in
}

// FirstError returns the first error code as a string, or "".
func (s Status) FirstError() (code, message string) {
	if len(s.Errors) == 0 {
		return "", ""
	}
	e := s.Errors[0]
	msg := e.Message
	if msg == "" {
		msg = e.Title
	}
	return strconv.Itoa(e.Code), msg
}
