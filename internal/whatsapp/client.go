package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"memoir-platform/internal/metrics"
	"memoir-platform/internal/trials"

	"github.com/google/uuid"
)

// Config configures the Cloud API client.
type Config struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	Retry         RetryPolicy
	Timeout       time.Duration
}

// Client sends messages through the WhatsApp Business Cloud API.
type Client struct {
	cfg   Config
	http  *http.Client
	log   MessageLog
	sleep sleepFunc
	clock func() time.Time
	l     *slog.Logger
}

func NewClient(cfg Config, log MessageLog, l *slog.Logger) *Client {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if l == nil {
		l = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		log:   log,
		sleep: sleepCtx,
		clock: time.Now,
		l:     l,
	}
}

func (c *Client) SendText(ctx context.Context, to, body string) bool {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"preview_url": true, "body": body},
	}
	return c.send(ctx, to, KindText, "", payload)
}

func (c *Client) SendTemplate(ctx context.Context, to string, tpl Template) bool {
	lang := tpl.Language
	if lang == "" {
		lang = TemplateLanguage(tpl.Name)
	}
	var components []map[string]any
	if len(tpl.BodyParams) > 0 {
		components = append(components, map[string]any{
			"type":       "body",
			"parameters": textParams(tpl.BodyParams),
		})
	}
	for i, p := range tpl.ButtonParams {
		components = append(components, map[string]any{
			"type":       "button",
			"sub_type":   "url",
			"index":      fmt.Sprint(i),
			"parameters": textParams([]string{p}),
		})
	}
	template := map[string]any{
		"name":     tpl.Name,
		"language": map[string]any{"code": lang},
	}
	if len(components) > 0 {
		template["components"] = components
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template":          template,
	}
	return c.send(ctx, to, KindTemplate, tpl.Name, payload)
}

func (c *Client) SendInteractiveCTA(ctx context.Context, to string, cta CTA) bool {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "cta_url",
			"body": map[string]any{"text": cta.Body},
			"action": map[string]any{
				"name": "cta_url",
				"parameters": map[string]any{
					"display_text": cta.ButtonLabel,
					"url":          cta.URL,
				},
			},
		},
	}
	return c.send(ctx, to, KindInteractive, "", payload)
}

func textParams(vals []string) []map[string]any {
	out := make([]map[string]any, 0, len(vals))
	for _, v := range vals {
		out = append(out, map[string]any{"type": "text", "text": v})
	}
	return out
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// send posts payload with the bounded retry and records the outcome in the message log.
func (c *Client) send(ctx context.Context, to string, kind MessageKind, templateName string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		c.l.Error("whatsapp payload encode failed", "kind", kind, "err", err)
		return false
	}

	var (
		providerID string
		lastErr    error
	)
	err = c.cfg.Retry.do(ctx, c.sleep, func(attempt int) error {
		id, err := c.post(ctx, body)
		if err != nil {
			lastErr = err
			c.l.Warn("whatsapp send attempt failed", "kind", kind, "attempt", attempt, "to", trials.MaskPhone(to), "err", err)
			return err
		}
		providerID = id
		return nil
	})

	rec := OutboundMessage{
		ID:                uuid.NewString(),
		ProviderMessageID: providerID,
		TrialID:           trialIDFrom(ctx),
		Recipient:         to,
		Kind:              kind,
		TemplateName:      templateName,
		Status:            StatusSent,
		CreatedAt:         c.clock().UTC(),
	}
	if err != nil {
		rec.Status = StatusFailed
		if lastErr != nil {
			rec.ErrorMessage = truncate(lastErr.Error(), 500)
		}
		c.l.Error("whatsapp send failed", "kind", kind, "template", templateName, "to", trials.MaskPhone(to), "err", err)
	}
	metrics.MessagesSent.WithLabelValues(string(kind), string(rec.Status)).Inc()

	if c.log != nil {
		if lerr := c.log.Record(ctx, rec); lerr != nil {
			c.l.Warn("whatsapp message log failed", "provider_message_id", providerID, "err", lerr)
		}
	}
	return err == nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/%s/messages", c.cfg.BaseURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return "", err
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrPermanent, err)
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("%w: response carried no message id", ErrPermanent)
	}
	return out.Messages[0].ID, nil
}

// classifyStatus maps an HTTP status to nil, ErrTransient (429/5xx) or ErrPermanent.
func classifyStatus(code int, raw []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	msg := http.StatusText(code)
	var out sendResponse
	if json.Unmarshal(raw, &out) == nil && out.Error != nil && out.Error.Message != "" {
		msg = fmt.Sprintf("%s (code %d)", out.Error.Message, out.Error.Code)
	}
	if code == http.StatusTooManyRequests || code >= 500 {
		return fmt.Errorf("%w: http %d: %s", ErrTransient, code, msg)
	}
	return fmt.Errorf("%w: http %d: %s", ErrPermanent, code, msg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
