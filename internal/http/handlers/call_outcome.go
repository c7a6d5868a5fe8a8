package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/clinicpulse/outreach/internal/observability/metrics"
	"github.com/clinicpulse/outreach/internal/reconcile"
	"github.com/clinicpulse/outreach/pkg/logging"
)

const maxWebhookBody = 1 << 20

type callOutcomeProcessor interface {
	Process(ctx context.Context, payload reconcile.CallOutcomePayload) (reconcile.Outcome, error)
}

type webhookVerifier interface {
	Verify(timestamp, signature string, payload []byte) error
}

// CallOutcomeHandler receives the voice provider's end-of-call webhook.
// The endpoint is public, so every request must carry a valid HMAC
// signature before the payload is even parsed.
type CallOutcomeHandler struct {
	reconciler callOutcomeProcessor
	verifier   webhookVerifier
	metrics    *metrics.OutreachMetrics
	logger     *logging.Logger
}

func NewCallOutcomeHandler(reconciler callOutcomeProcessor, verifier webhookVerifier, m *metrics.OutreachMetrics, logger *logging.Logger) *CallOutcomeHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CallOutcomeHandler{reconciler: reconciler, verifier: verifier, metrics: m, logger: logger}
}

func (h *CallOutcomeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.metrics.ObserveWebhook("invalid", time.Since(start).Seconds())
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.verifier.Verify(r.Header.Get("X-Webhook-Timestamp"), r.Header.Get("X-Webhook-Signature"), body); err != nil {
		h.logger.Warn("invalid call outcome webhook signature", "error", err)
		h.metrics.ObserveWebhook("unauthorized", time.Since(start).Seconds())
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	payload, err := reconcile.ParseCallOutcome(body)
	if err != nil {
		h.logger.Warn("rejected call outcome webhook", "error", err)
		h.metrics.ObserveWebhook("invalid", time.Since(start).Seconds())
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	outcome, err := h.reconciler.Process(r.Context(), payload)
	if err != nil {
		h.logger.Error("call outcome processing failed", "error", err, "call_id", payload.CallID)
		h.metrics.ObserveWebhook("error", time.Since(start).Seconds())
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}

	result := "matched"
	if !outcome.Matched {
		result = "unmatched"
	}
	h.metrics.ObserveWebhook(result, time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, outcome)
}
