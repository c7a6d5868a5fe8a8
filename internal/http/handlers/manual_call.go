package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/outreach/internal/appointments"
	"github.com/clinicpulse/outreach/internal/channels"
	"github.com/clinicpulse/outreach/internal/observability/metrics"
	"github.com/clinicpulse/outreach/pkg/logging"
)

type callAppointmentStore interface {
	Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	LogCommunication(ctx context.Context, e *appointments.CommLogEntry) error
}

// ManualCallConfig carries the clinic identity used in the call script.
type ManualCallConfig struct {
	ClinicName         string
	DefaultCountryCode string
	Location           *time.Location
}

// ManualCallHandler lets staff trigger an immediate confirmation call for
// one appointment.
type ManualCallHandler struct {
	store   callAppointmentStore
	caller  channels.CallPlacer
	cfg     ManualCallConfig
	metrics *metrics.OutreachMetrics
	logger  *logging.Logger
}

func NewManualCallHandler(store callAppointmentStore, caller channels.CallPlacer, cfg ManualCallConfig, m *metrics.OutreachMetrics, logger *logging.Logger) *ManualCallHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ManualCallHandler{store: store, caller: caller, cfg: cfg, metrics: m, logger: logger}
}

type manualCallRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *ManualCallHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req manualCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	apptID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		http.Error(w, "invalid appointment_id", http.StatusBadRequest)
		return
	}
	if h.caller == nil {
		http.Error(w, "voice channel not configured", http.StatusServiceUnavailable)
		return
	}

	appt, err := h.store.Get(r.Context(), apptID)
	if err != nil {
		h.logger.Error("failed to load appointment", "error", err, "appointment_id", apptID)
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	if appt == nil {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}

	phone := channels.NormalizeE164(appt.Phone, h.cfg.DefaultCountryCode)
	if phone == "" {
		http.Error(w, "appointment has no usable phone number", http.StatusBadRequest)
		return
	}

	local := appt.ScheduledAt.In(h.cfg.Location)
	opening := fmt.Sprintf("Hi %s, this is %s calling to confirm your %s appointment on %s at %s. Does that still work for you?",
		appt.PatientName, h.cfg.ClinicName, appt.Service, local.Format("Monday, January 2"), local.Format("3:04 PM"))
	brief := fmt.Sprintf("Confirm the %s appointment scheduled for %s. If the patient wants a different slot, note the requested date and time.",
		appt.Service, local.Format("2006-01-02 15:04"))

	handle, err := h.caller.PlaceCall(r.Context(), phone, opening, brief)
	if err != nil {
		h.logger.Error("failed to place confirmation call", "error", err, "appointment_id", apptID)
		h.metrics.ObserveOutbound("voice", "failed", false)
		http.Error(w, "failed to place call", http.StatusBadGateway)
		return
	}
	h.metrics.ObserveOutbound("voice", "initiated", handle.Suppressed)

	entry := &appointments.CommLogEntry{
		AppointmentID: &appt.ID,
		Phone:         phone,
		Channel:       appointments.ChannelVoice,
		Direction:     appointments.DirectionOutbound,
		Content:       opening,
		CallStatus:    appointments.CallInitiated,
	}
	if len(handle.Raw) > 0 {
		entry.ProviderResponse = handle.Raw
	}
	if err := h.store.LogCommunication(r.Context(), entry); err != nil {
		h.logger.Error("failed to log confirmation call", "error", err, "appointment_id", apptID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"call_id":  handle.CallID,
		"provider": handle.Provider,
		"status":   handle.Status,
	})
}
