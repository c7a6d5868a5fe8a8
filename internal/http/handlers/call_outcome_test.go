package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinicpulse/outreach/internal/channels/voice"
	"github.com/clinicpulse/outreach/internal/reconcile"
	"github.com/clinicpulse/outreach/pkg/logging"
)

const testWebhookSecret = "wh-secret"

type fakeProcessor struct {
	outcome reconcile.Outcome
	err     error
	got     *reconcile.CallOutcomePayload
}

func (f *fakeProcessor) Process(_ context.Context, payload reconcile.CallOutcomePayload) (reconcile.Outcome, error) {
	f.got = &payload
	return f.outcome, f.err
}

// signedOutcomeRequest builds a webhook request carrying a valid HMAC
// signature over "<timestamp>.<body>", the scheme the voice provider uses.
func signedOutcomeRequest(body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/call-outcome", bytes.NewReader(body))
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(ts + "." + string(body)))
	req.Header.Set("X-Webhook-Timestamp", ts)
	req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))
	return req
}

func newOutcomeHandler(proc *fakeProcessor) *CallOutcomeHandler {
	return NewCallOutcomeHandler(proc, voice.NewWebhookVerifier(testWebhookSecret), nil, logging.Default())
}

func TestCallOutcomeRejectsUnsignedRequest(t *testing.T) {
	proc := &fakeProcessor{}
	handler := newOutcomeHandler(proc)

	body := []byte(`{"call_id":"c1","call_status":"answered","to":"+971501112233","transcript":"yes"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/call-outcome", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if proc.got != nil {
		t.Fatalf("processor should not run on an unsigned request")
	}
}

func TestCallOutcomeRejectsWrongSignature(t *testing.T) {
	proc := &fakeProcessor{}
	handler := newOutcomeHandler(proc)

	body := []byte(`{"call_id":"c1","call_status":"answered","to":"+971501112233"}`)
	req := signedOutcomeRequest(body)
	req.Header.Set("X-Webhook-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if proc.got != nil {
		t.Fatalf("processor should not run on a bad signature")
	}
}

func TestCallOutcomeRejectsUnreadablePayload(t *testing.T) {
	proc := &fakeProcessor{}
	handler := newOutcomeHandler(proc)

	req := signedOutcomeRequest([]byte("not json"))
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if proc.got != nil {
		t.Fatalf("processor should not run on an unreadable payload")
	}
}

func TestCallOutcomeProcessingError(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("db down")}
	handler := newOutcomeHandler(proc)

	body := []byte(`{"call_id":"c1","call_status":"answered","to":"+971501112233","transcript":"yes"}`)
	rec := httptest.NewRecorder()
	handler.Handle(rec, signedOutcomeRequest(body))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestCallOutcomeSuccess(t *testing.T) {
	proc := &fakeProcessor{outcome: reconcile.Outcome{
		Success:       true,
		AppointmentID: "a1",
		Intent:        "confirm",
		CallStatus:    "answered",
		Matched:       true,
	}}
	handler := newOutcomeHandler(proc)

	body := []byte(`{"call_id":"c1","call_status":"answered","to":"+971501112233","transcript":"yes I will be there"}`)
	rec := httptest.NewRecorder()
	handler.Handle(rec, signedOutcomeRequest(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if proc.got == nil || proc.got.Phone != "+971501112233" {
		t.Fatalf("processor received wrong payload: %+v", proc.got)
	}

	var resp reconcile.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Intent != "confirm" || resp.AppointmentID != "a1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
