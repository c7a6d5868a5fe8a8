package voice

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const defaultWebhookSkew = 5 * time.Minute

// WebhookVerifier checks the HMAC-SHA256 signature the voice provider
// attaches to call-outcome webhooks. The signature covers
// "<timestamp>.<raw body>" keyed with the shared webhook secret.
type WebhookVerifier struct {
	secret  string
	maxSkew time.Duration
	now     func() time.Time
}

// NewWebhookVerifier creates a verifier for inbound voice webhooks.
// An empty secret is kept and rejected at verify time so a missing
// VOICE_WEBHOOK_SECRET fails closed instead of letting requests through.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{
		secret:  strings.TrimSpace(secret),
		maxSkew: defaultWebhookSkew,
		now:     time.Now,
	}
}

// Verify checks the timestamp and signature headers against the raw request
// body. Returns nil only when the signature matches and the timestamp is
// within the allowed skew.
func (v *WebhookVerifier) Verify(timestamp, signature string, payload []byte) error {
	if v == nil || v.secret == "" {
		return errors.New("voice: webhook secret not configured")
	}

	ts := strings.TrimSpace(timestamp)
	if ts == "" {
		return errors.New("voice: missing signature timestamp")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("voice: invalid signature timestamp: %w", err)
	}
	sentAt := time.Unix(sec, 0)
	if diff := v.now().Sub(sentAt); diff > v.maxSkew || diff < -v.maxSkew {
		return fmt.Errorf("voice: signature timestamp skew %s exceeds limit", diff)
	}

	unsigned := ts + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(unsigned))
	expected := hex.EncodeToString(mac.Sum(nil))

	actual := strings.ToLower(strings.TrimSpace(signature))
	if actual == "" {
		return errors.New("voice: missing signature header")
	}
	if !hmac.Equal([]byte(expected), []byte(actual)) {
		return errors.New("voice: signature mismatch")
	}
	return nil
}
