package reminders

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

type appointmentStore interface {
	ListDueReminder24(ctx context.Context, from, to time.Time) ([]appointments.Appointment, error)
	ListDueReminder2(ctx context.Context, from, to time.Time) ([]appointments.Appointment, error)
	MarkReminder24Sent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkReminder2Sent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkConfirmationMessageSent(ctx context.Context, id uuid.UUID) (bool, error)
	LogCommunication(ctx context.Context, e *appointments.CommLogEntry) error
}

// Config carries the scheduler's tunables.
type Config struct {
	Location           *time.Location
	DefaultCountryCode string
	ClinicName         string
	Template24Hour     string
	Template2Hour      string
	// The 2-hour job only fires while time-to-slot sits inside
	// [WindowMin, WindowMax], which tolerates trigger jitter without
	// blasting reminders retroactively once the window has passed.
	WindowMin time.Duration
	WindowMax time.Duration
}

// Scheduler drives the two reminder jobs. Each run is a stateless batch
// pass; the sent flags in the store are the only coordination state.
type Scheduler struct {
	store     appointmentStore
	messenger channels.TextMessenger
	cfg       Config
	metrics   *metrics.OutreachMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewScheduler builds a reminder scheduler.
func NewScheduler(store appointmentStore, messenger channels.TextMessenger, cfg Config, m *metrics.OutreachMetrics, logger *logging.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "the clinic"
	}
	if cfg.WindowMin <= 0 {
		cfg.WindowMin = 90 * time.Minute
	}
	if cfg.WindowMax <= cfg.WindowMin {
		cfg.WindowMax = 150 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		store:     store,
		messenger: messenger,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Run24Hour sends the day-before reminder to every appointment scheduled
// tomorrow (clinic-local) that has not been reminded yet. Safe to re-run.
func (s *Scheduler) Run24Hour(ctx context.Context) (jobs.RunResult, error) {
	now := s.now().In(s.cfg.Location)
	from, to := dayBounds(now.AddDate(0, 0, 1), s.cfg.Location)

	due, err := s.store.ListDueReminder24(ctx, from.UTC(), to.UTC())
	if err != nil {
		return jobs.RunResult{}, fmt.Errorf("reminders: 24hr scan: %w", err)
	}

	result := jobs.RunResult{Results: make([]jobs.ItemResult, 0, len(due))}
	for _, appt := range due {
		result.Append(s.sendReminder(ctx, appt, "reminder_24hr", s.cfg.Template24Hour, s.store.MarkReminder24Sent))
	}
	s.metrics.ObserveJob("reminder_24hr", result.Processed, result.Failures())
	s.logger.Info("24hr reminder job finished", "processed", result.Processed, "failures", result.Failures())
	return result, nil
}

// Run2Hour sends the same-day reminder to appointments whose slot is between
// WindowMin and WindowMax away. Appointments outside the window are skipped,
// not failed; a later run picks them up if they enter the window.
func (s *Scheduler) Run2Hour(ctx context.Context) (jobs.RunResult, error) {
	now := s.now().In(s.cfg.Location)
	from, to := dayBounds(now, s.cfg.Location)

	due, err := s.store.ListDueReminder2(ctx, from.UTC(), to.UTC())
	if err != nil {
		return jobs.RunResult{}, fmt.Errorf("reminders: 2hr scan: %w", err)
	}

	result := jobs.RunResult{Results: make([]jobs.ItemResult, 0, len(due))}
	for _, appt := range due {
		remaining := appt.ScheduledAt.Sub(now)
		if !inWindow(remaining, s.cfg.WindowMin, s.cfg.WindowMax) {
			result.Append(jobs.ItemResult{
				AppointmentID: appt.ID,
				Phone:         channels.MaskPhone(appt.Phone),
				Skipped:       fmt.Sprintf("outside send window (%s to slot)", remaining.Round(time.Minute)),
			})
			continue
		}
		result.Append(s.sendReminder(ctx, appt, "reminder_2hr", s.cfg.Template2Hour, s.store.MarkReminder2Sent))
	}
	s.metrics.ObserveJob("reminder_2hr", result.Processed, result.Failures())
	s.logger.Info("2hr reminder job finished", "processed", result.Processed, "failures", result.Failures())
	return result, nil
}

type claimFunc func(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

// sendReminder performs one send-log-flag pass for an appointment. The send
// happens before the flag write, so a crash in between can repeat the send
// on the next run. That at-least-once window is accepted; the conditional
// flag update still closes the race between two live overlapping runs.
func (s *Scheduler) sendReminder(ctx context.Context, appt appointments.Appointment, job, templateID string, claim claimFunc) jobs.ItemResult {
	item := jobs.ItemResult{AppointmentID: appt.ID, Phone: channels.MaskPhone(appt.Phone)}

	phone := channels.NormalizeE164(appt.Phone, s.cfg.DefaultCountryCode)
	if phone == "" {
		item.Error = "unusable phone number"
		s.metrics.ObserveOutbound("text", "invalid_recipient", false)
		return item
	}

	local := appt.ScheduledAt.In(s.cfg.Location)
	body := fmt.Sprintf("Hi %s, a reminder about your %s appointment at %s on %s at %s. Reply YES to confirm.",
		appt.PatientName, appt.Service, s.cfg.ClinicName, local.Format("Monday 2 January"), local.Format("15:04"))

	var delivery *channels.DeliveryResult
	var err error
	if templateID != "" {
		params := []string{appt.PatientName, appt.Service, local.Format("2006-01-02"), local.Format("15:04")}
		key := fmt.Sprintf("%s-%s-%s", job, appt.ID, local.Format("20060102"))
		delivery, err = s.messenger.SendTemplate(ctx, phone, templateID, params, key)
	} else {
		delivery, err = s.messenger.SendText(ctx, phone, body)
	}
	if err != nil {
		item.Error = err.Error()
		s.metrics.ObserveOutbound("text", "failed", false)
		s.logger.Error("reminder send failed", "job", job, "appointment_id", appt.ID, "phone", item.Phone, "error", err)
		return item
	}
	s.metrics.ObserveOutbound("text", delivery.Status, delivery.Suppressed)

	entry := &appointments.CommLogEntry{
		AppointmentID:    &appt.ID,
		Phone:            phone,
		Channel:          appointments.ChannelText,
		Direction:        appointments.DirectionOutbound,
		Content:          fmt.Sprintf("%s reminder: %s", job, body),
		ProviderResponse: delivery.Raw,
	}
	if err := s.store.LogCommunication(ctx, entry); err != nil {
		s.logger.Error("failed to log reminder", "job", job, "appointment_id", appt.ID, "error", err)
	}

	claimed, err := claim(ctx, appt.ID, s.now())
	if err != nil {
		item.Error = fmt.Sprintf("sent but flag write failed: %v", err)
		return item
	}
	if !claimed {
		// A concurrent run got here first; its send already went out.
		s.logger.Warn("reminder flag already claimed", "job", job, "appointment_id", appt.ID)
	}
	if _, err := s.store.MarkConfirmationMessageSent(ctx, appt.ID); err != nil {
		s.logger.Error("failed to record message_sent status", "job", job, "appointment_id", appt.ID, "error", err)
	}
	item.Sent = true
	return item
}

// inWindow reports whether the time remaining to the slot falls inside the
// send window.
func inWindow(remaining, min, max time.Duration) bool {
	return remaining >= min && remaining <= max
}

// dayBounds returns the clinic-local [start, end) of the calendar day
// containing t.
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
