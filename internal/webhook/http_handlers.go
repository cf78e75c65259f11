package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"memoir-platform/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Handler exposes the WhatsApp webhook endpoints.
//
// The POST handler acknowledges immediately and processes in the background;
// provider retries are absorbed by the idempotency store, not by status codes.
type Handler struct {
	Processor   *Processor
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 validation when set.
	AppSecret string

	// base outlives the request; canceled only on shutdown drain timeout.
	base context.Context
	wg   sync.WaitGroup
}

func NewHandler(base context.Context, p *Processor, verifyToken, appSecret string) *Handler {
	return &Handler{Processor: p, VerifyToken: verifyToken, AppSecret: appSecret, base: base}
}

// Verify answers the subscription handshake.
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if mode != "subscribe" || h.VerifyToken == "" || !hmac.Equal([]byte(token), []byte(h.VerifyToken)) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "verification failed"})
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// Receive accepts a webhook body.
func (h *Handler) Receive(c *gin.Context) {
	log := logger.FromGin(c)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Warn("webhook body read failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if h.AppSecret != "" && !ValidSignature(h.AppSecret, body, c.GetHeader("X-Hub-Signature-256")) {
		log.Warn("webhook signature mismatch")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})

	ctx := logger.With(h.base, log)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("webhook processing panicked", "panic", r)
			}
		}()
		h.Processor.Process(ctx, body)
	}()
}

// Wait blocks until in-flight processing finishes or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ValidSignature checks header "sha256=<hex>" against HMAC-SHA256(secret, body).
func ValidSignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
