package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/outreach/internal/appointments"
	"github.com/clinicpulse/outreach/internal/channels"
	"github.com/clinicpulse/outreach/internal/jobs"
	"github.com/clinicpulse/outreach/internal/observability/metrics"
	"github.com/clinicpulse/outreach/pkg/logging"
)

type sequencerStore interface {
	ListActiveFollowups(ctx context.Context) ([]appointments.Appointment, error)
	AdvanceFollowupStep(ctx context.Context, id uuid.UUID, step int) (bool, error)
	CompleteFollowup(ctx context.Context, id uuid.UUID, step int) (bool, error)
	LogCommunication(ctx context.Context, e *appointments.CommLogEntry) error
}

// SequencerConfig carries the follow-up sequencer's tunables.
type SequencerConfig struct {
	Location           *time.Location
	ClinicName         string
	DefaultCountryCode string
}

// Sequencer walks every active no-show ladder and fires at most one rung per
// appointment per run. The monotonic step write in the store is the guard;
// the rung is claimed before any send so a duplicate invocation cannot
// message the patient twice.
type Sequencer struct {
	store     sequencerStore
	messenger channels.TextMessenger
	caller    channels.CallPlacer
	cfg       SequencerConfig
	metrics   *metrics.OutreachMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewSequencer builds a follow-up sequencer.
func NewSequencer(store sequencerStore, messenger channels.TextMessenger, caller channels.CallPlacer, cfg SequencerConfig, m *metrics.OutreachMetrics, logger *logging.Logger) *Sequencer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "the clinic"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sequencer{store: store, messenger: messenger, caller: caller, cfg: cfg, metrics: m, logger: logger, now: time.Now}
}

// Run advances every active ladder that has a rung due.
func (s *Sequencer) Run(ctx context.Context) (jobs.RunResult, error) {
	active, err := s.store.ListActiveFollowups(ctx)
	if err != nil {
		return jobs.RunResult{}, fmt.Errorf("followup: sequencer scan: %w", err)
	}

	result := jobs.RunResult{Results: make([]jobs.ItemResult, 0, len(active))}
	for _, appt := range active {
		result.Append(s.advance(ctx, appt))
	}
	s.metrics.ObserveJob("followup", result.Processed, result.Failures())
	s.logger.Info("follow-up job finished", "processed", result.Processed, "failures", result.Failures())
	return result, nil
}

func (s *Sequencer) advance(ctx context.Context, appt appointments.Appointment) jobs.ItemResult {
	item := jobs.ItemResult{AppointmentID: appt.ID, Phone: channels.MaskPhone(appt.Phone)}

	if appt.NoShowAt == nil {
		item.Skipped = "no no-show timestamp"
		return item
	}
	days := daysSince(*appt.NoShowAt, s.now(), s.cfg.Location)
	step, due := NextStep(appt.IsNewPatient, days, appt.FollowupStep)
	if !due {
		item.Skipped = fmt.Sprintf("no step due (day %d, step %d)", days, appt.FollowupStep)
		return item
	}
	item.Action = fmt.Sprintf("step_%d", step.Number)

	var claimed bool
	var err error
	if step.Complete {
		claimed, err = s.store.CompleteFollowup(ctx, appt.ID, step.Number)
	} else {
		claimed, err = s.store.AdvanceFollowupStep(ctx, appt.ID, step.Number)
	}
	if err != nil {
		item.Error = err.Error()
		return item
	}
	if !claimed {
		// A concurrent run advanced the ladder, or the webhook stopped it.
		item.Skipped = "ladder already advanced or stopped"
		return item
	}

	if !step.SendMessage && !step.PlaceCall {
		item.Sent = false
		return item
	}

	phone := channels.NormalizeE164(appt.Phone, s.cfg.DefaultCountryCode)
	if phone == "" {
		item.Error = "unusable phone number"
		return item
	}

	if step.SendMessage {
		if err := s.sendStepMessage(ctx, appt, phone, step); err != nil {
			item.Error = err.Error()
			return item
		}
	}
	if step.PlaceCall {
		if err := s.placeStepCall(ctx, appt, phone, step); err != nil {
			if item.Error == "" {
				item.Error = err.Error()
			}
			return item
		}
	}
	item.Sent = true
	return item
}

func (s *Sequencer) sendStepMessage(ctx context.Context, appt appointments.Appointment, phone string, step Step) error {
	body := s.composeMessage(step.MessageKind, appt)
	delivery, err := s.messenger.SendText(ctx, phone, body)
	if err != nil {
		s.metrics.ObserveOutbound("text", "failed", false)
		s.logger.Error("follow-up message failed", "appointment_id", appt.ID, "step", step.Number, "error", err)
		return fmt.Errorf("step %d message: %w", step.Number, err)
	}
	s.metrics.ObserveOutbound("text", delivery.Status, delivery.Suppressed)

	entry := &appointments.CommLogEntry{
		AppointmentID:    &appt.ID,
		Phone:            phone,
		Channel:          appointments.ChannelText,
		Direction:        appointments.DirectionOutbound,
		Content:          fmt.Sprintf("follow-up step %d (%s): %s", step.Number, step.MessageKind, body),
		ProviderResponse: delivery.Raw,
	}
	if err := s.store.LogCommunication(ctx, entry); err != nil {
		s.logger.Error("failed to log follow-up message", "appointment_id", appt.ID, "error", err)
	}
	return nil
}

func (s *Sequencer) placeStepCall(ctx context.Context, appt appointments.Appointment, phone string, step Step) error {
	if s.caller == nil {
		return fmt.Errorf("step %d call: no voice channel configured", step.Number)
	}
	opening := fmt.Sprintf("Hi %s, this is %s calling about the %s appointment you missed. Do you have a moment?",
		appt.PatientName, s.cfg.ClinicName, appt.Service)
	brief := fmt.Sprintf("The patient %s missed a %s appointment and has not rebooked. Offer to reserve a new slot and capture the preferred date and time.",
		appt.PatientName, appt.Service)

	handle, err := s.caller.PlaceCall(ctx, phone, opening, brief)
	if err != nil {
		s.metrics.ObserveOutbound("voice", "failed", false)
		s.logger.Error("follow-up call failed", "appointment_id", appt.ID, "step", step.Number, "error", err)
		return fmt.Errorf("step %d call: %w", step.Number, err)
	}
	s.metrics.ObserveOutbound("voice", handle.Status, handle.Suppressed)

	entry := &appointments.CommLogEntry{
		AppointmentID:    &appt.ID,
		Phone:            phone,
		Channel:          appointments.ChannelVoice,
		Direction:        appointments.DirectionOutbound,
		Content:          fmt.Sprintf("follow-up step %d call placed (call id %s)", step.Number, handle.CallID),
		CallStatus:       appointments.CallInitiated,
		ProviderResponse: handle.Raw,
	}
	if err := s.store.LogCommunication(ctx, entry); err != nil {
		s.logger.Error("failed to log follow-up call", "appointment_id", appt.ID, "error", err)
	}
	return nil
}

func (s *Sequencer) composeMessage(kind string, appt appointments.Appointment) string {
	switch kind {
	case MsgSocialProof:
		return fmt.Sprintf("Hi %s, patients tell us %s made a real difference for them. We'd love to get you back on the calendar, just reply with a day that suits you.",
			appt.PatientName, appt.Service)
	case MsgReserveSpot:
		return fmt.Sprintf("Hi %s, we're holding a spot for your %s this week at %s. Shall we reserve it for you?",
			appt.PatientName, appt.Service, s.cfg.ClinicName)
	case MsgGentleReminder:
		return fmt.Sprintf("Hi %s, whenever you're ready to rebook your %s, just reply here and %s will sort it out.",
			appt.PatientName, appt.Service, s.cfg.ClinicName)
	default:
		return fmt.Sprintf("Hi %s, we missed you at %s. Would you like to pick a new time for your %s?",
			appt.PatientName, s.cfg.ClinicName, appt.Service)
	}
}
