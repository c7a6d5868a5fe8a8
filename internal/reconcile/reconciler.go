package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/outreach/internal/appointments"
	"github.com/clinicpulse/outreach/internal/channels"
	"github.com/clinicpulse/outreach/internal/classify"
	"github.com/clinicpulse/outreach/internal/notify"
	"github.com/clinicpulse/outreach/internal/observability/metrics"
	"github.com/clinicpulse/outreach/internal/requests"
	"github.com/clinicpulse/outreach/pkg/logging"
)

type reconcilerStore interface {
	FindMostRecentActiveByPhone(ctx context.Context, phone string, since time.Time) (*appointments.Appointment, error)
	SetConfirmationStatus(ctx context.Context, id uuid.UUID, status appointments.ConfirmationStatus) error
	StopFollowupsByPhone(ctx context.Context, phone string) (int64, error)
	AttachCallOutcome(ctx context.Context, appointmentID uuid.UUID, outcome appointments.CallOutcome) (bool, error)
	LogCommunication(ctx context.Context, e *appointments.CommLogEntry) error
}

type transcriptClassifier interface {
	Classify(ctx context.Context, transcript string) classify.Result
}

type requestCreator interface {
	Create(ctx context.Context, r *requests.PendingRequest) error
}

// Outcome is what the webhook responds with.
type Outcome struct {
	Success       bool   `json:"success"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Intent        string `json:"intent,omitempty"`
	CallStatus    string `json:"call_status"`
	Matched       bool   `json:"matched"`
}

// Config carries the reconciler's tunables.
type Config struct {
	Location           *time.Location
	DefaultCountryCode string
	ClinicName         string
}

// Reconciler ingests asynchronous call results: match the call to an
// appointment by phone, classify the transcript, apply the state transition
// or raise a pending request, and attach the outcome to the initiated call's
// log entry in place.
type Reconciler struct {
	store      reconcilerStore
	classifier transcriptClassifier
	requests   requestCreator
	messenger  channels.TextMessenger
	alerts     *notify.StaffAlerts
	cfg        Config
	metrics    *metrics.OutreachMetrics
	logger     *logging.Logger
	now        func() time.Time
}

// NewReconciler builds a call-outcome reconciler.
func NewReconciler(store reconcilerStore, classifier transcriptClassifier, reqs requestCreator, messenger channels.TextMessenger, alerts *notify.StaffAlerts, cfg Config, m *metrics.OutreachMetrics, logger *logging.Logger) *Reconciler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "the clinic"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		store:      store,
		classifier: classifier,
		requests:   reqs,
		messenger:  messenger,
		alerts:     alerts,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Process applies one call outcome. An unmatched phone is not an error;
// the call is logged for review and the webhook still succeeds, because
// numbers do not always correlate cleanly (call forwarding, shared phones).
func (r *Reconciler) Process(ctx context.Context, payload CallOutcomePayload) (Outcome, error) {
	outcome := Outcome{CallStatus: payload.CallStatus}

	phone := channels.NormalizeE164(payload.Phone, r.cfg.DefaultCountryCode)
	if phone == "" {
		r.logUnmatched(ctx, payload, "")
		outcome.Success = true
		return outcome, nil
	}

	dayStart := startOfDay(r.now().In(r.cfg.Location), r.cfg.Location)
	appt, err := r.store.FindMostRecentActiveByPhone(ctx, phone, dayStart.UTC())
	if err != nil {
		return outcome, fmt.Errorf("reconcile: match by phone: %w", err)
	}
	if appt == nil {
		r.logUnmatched(ctx, payload, phone)
		r.alerts.HumanReviewNeeded(ctx, phone, "call outcome did not match any upcoming appointment")
		outcome.Success = true
		return outcome, nil
	}
	outcome.Matched = true
	outcome.AppointmentID = appt.ID.String()

	result := classify.Unclear()
	if payload.CallStatus == appointments.CallAnswered && strings.TrimSpace(payload.Transcript) != "" {
		result = r.classifier.Classify(ctx, payload.Transcript)
	}
	outcome.Intent = string(result.Intent)

	if err := r.applyIntent(ctx, appt, phone, payload, result); err != nil {
		return outcome, err
	}

	r.recordOutcome(ctx, appt, phone, payload, result)
	outcome.Success = true
	return outcome, nil
}

func (r *Reconciler) applyIntent(ctx context.Context, appt *appointments.Appointment, phone string, payload CallOutcomePayload, result classify.Result) error {
	switch {
	case result.Intent == classify.IntentConfirm && result.Confidence != classify.ConfidenceLow:
		return r.applyConfirm(ctx, appt, phone)
	case result.Intent == classify.IntentReschedule:
		return r.raiseRequest(ctx, appt, phone, requests.TypeReschedule, appointments.ConfirmCalledResched, result)
	case result.Intent == classify.IntentCancel:
		return r.raiseRequest(ctx, appt, phone, requests.TypeCancellation, appointments.ConfirmCancelled, result)
	}
	// Unclear, low-confidence confirm, no-answer, voicemail: nothing
	// actionable to resolve.
	return r.store.SetConfirmationStatus(ctx, appt.ID, appointments.ConfirmCalledNoAnswer)
}

func (r *Reconciler) applyConfirm(ctx context.Context, appt *appointments.Appointment, phone string) error {
	status := appointments.ConfirmCall
	if appt.ConfirmationStatus == appointments.ConfirmWhatsApp {
		status = appointments.ConfirmDouble
	}
	if err := r.store.SetConfirmationStatus(ctx, appt.ID, status); err != nil {
		return err
	}

	// Confirmation short-circuits every active ladder on this phone, not
	// just the matched appointment's.
	stopped, err := r.store.StopFollowupsByPhone(ctx, phone)
	if err != nil {
		r.logger.Error("failed to stop followups after confirmation", "phone", channels.MaskPhone(phone), "error", err)
	} else if stopped > 0 {
		r.logger.Info("stopped active followups after confirmation", "phone", channels.MaskPhone(phone), "count", stopped)
	}

	local := appt.ScheduledAt.In(r.cfg.Location)
	echo := fmt.Sprintf("Thanks %s! Your %s appointment at %s on %s at %s is confirmed. See you then.",
		appt.PatientName, appt.Service, r.cfg.ClinicName, local.Format("Monday 2 January"), local.Format("15:04"))
	if _, err := r.messenger.SendText(ctx, phone, echo); err != nil {
		// The confirmation already stands; the echo is best effort.
		r.logger.Error("confirmation echo failed", "appointment_id", appt.ID, "error", err)
	}
	return nil
}

func (r *Reconciler) raiseRequest(ctx context.Context, appt *appointments.Appointment, phone string, kind requests.Type, status appointments.ConfirmationStatus, result classify.Result) error {
	req := &requests.PendingRequest{
		AppointmentID: appt.ID,
		Phone:         phone,
		PatientName:   appt.PatientName,
		Type:          kind,
		RequestedDate: result.NewDate,
		RequestedTime: result.NewTime,
		Notes:         result.Notes,
		Confidence:    string(result.Confidence),
	}
	if err := r.requests.Create(ctx, req); err != nil {
		return fmt.Errorf("reconcile: raise %s request: %w", kind, err)
	}
	r.metrics.ObservePendingRequest()

	if err := r.store.SetConfirmationStatus(ctx, appt.ID, status); err != nil {
		return err
	}
	r.alerts.PendingRequestRaised(ctx, req)
	return nil
}

// recordOutcome attaches the result to the initiated call entry, or appends
// a fresh inbound entry when no initiated call is on record. Re-delivered
// webhooks keep updating the same entry.
func (r *Reconciler) recordOutcome(ctx context.Context, appt *appointments.Appointment, phone string, payload CallOutcomePayload, result classify.Result) {
	summary := result.Summary
	if summary == "" {
		summary = fmt.Sprintf("call %s (%.0fs), intent %s/%s", payload.CallStatus, payload.Duration, result.Intent, result.Confidence)
	}
	needsReview := result.Intent == classify.IntentUnclear && payload.CallStatus == appointments.CallAnswered

	attached, err := r.store.AttachCallOutcome(ctx, appt.ID, appointments.CallOutcome{
		CallStatus:       payload.CallStatus,
		Summary:          summary,
		ProviderResponse: payload.Raw,
		NeedsHumanReview: needsReview,
	})
	if err != nil {
		r.logger.Error("failed to attach call outcome", "appointment_id", appt.ID, "error", err)
		return
	}
	if attached {
		return
	}

	entry := &appointments.CommLogEntry{
		AppointmentID:    &appt.ID,
		Phone:            phone,
		Channel:          appointments.ChannelVoice,
		Direction:        appointments.DirectionInbound,
		Content:          summary,
		CallStatus:       payload.CallStatus,
		ProviderResponse: payload.Raw,
		NeedsHumanReview: needsReview,
	}
	if err := r.store.LogCommunication(ctx, entry); err != nil {
		r.logger.Error("failed to log call outcome", "appointment_id", appt.ID, "error", err)
	}
}

func (r *Reconciler) logUnmatched(ctx context.Context, payload CallOutcomePayload, phone string) {
	entry := &appointments.CommLogEntry{
		Phone:            phone,
		Channel:          appointments.ChannelVoice,
		Direction:        appointments.DirectionInbound,
		Content:          fmt.Sprintf("unmatched call outcome (call id %s)", payload.CallID),
		CallStatus:       payload.CallStatus,
		ProviderResponse: payload.Raw,
		NeedsHumanReview: true,
	}
	if err := r.store.LogCommunication(ctx, entry); err != nil {
		r.logger.Error("failed to log unmatched call outcome", "call_id", payload.CallID, "error", err)
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
