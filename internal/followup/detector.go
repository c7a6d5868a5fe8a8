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

type detectorStore interface {
	ListNoShowCandidates(ctx context.Context, dayStart, cutoff time.Time) ([]appointments.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	LogCommunication(ctx context.Context, e *appointments.CommLogEntry) error
}

// DetectorConfig carries the no-show detector's tunables.
type DetectorConfig struct {
	Location           *time.Location
	GracePeriod        time.Duration
	ClinicName         string
	DefaultCountryCode string
	NoShowTemplateID   string
}

// Detector transitions overdue upcoming appointments to no_show and sends
// the first outreach message. The upcoming guard in the store makes the
// transition one-shot per occurrence.
type Detector struct {
	store     detectorStore
	messenger channels.TextMessenger
	cfg       DetectorConfig
	metrics   *metrics.OutreachMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewDetector builds a no-show detector.
func NewDetector(store detectorStore, messenger channels.TextMessenger, cfg DetectorConfig, m *metrics.OutreachMetrics, logger *logging.Logger) *Detector {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 2 * time.Hour
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "the clinic"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{store: store, messenger: messenger, cfg: cfg, metrics: m, logger: logger, now: time.Now}
}

// Run scans today's appointments still upcoming whose slot passed more than
// the grace period ago. Safe to re-run.
func (d *Detector) Run(ctx context.Context) (jobs.RunResult, error) {
	now := d.now().In(d.cfg.Location)
	dayStart, _ := dayBounds(now, d.cfg.Location)
	cutoff := now.Add(-d.cfg.GracePeriod)

	candidates, err := d.store.ListNoShowCandidates(ctx, dayStart.UTC(), cutoff.UTC())
	if err != nil {
		return jobs.RunResult{}, fmt.Errorf("followup: no-show scan: %w", err)
	}

	result := jobs.RunResult{Results: make([]jobs.ItemResult, 0, len(candidates))}
	for _, appt := range candidates {
		result.Append(d.handle(ctx, appt))
	}
	d.metrics.ObserveJob("no_show", result.Processed, result.Failures())
	d.logger.Info("no-show job finished", "processed", result.Processed, "failures", result.Failures())
	return result, nil
}

func (d *Detector) handle(ctx context.Context, appt appointments.Appointment) jobs.ItemResult {
	item := jobs.ItemResult{AppointmentID: appt.ID, Phone: channels.MaskPhone(appt.Phone), Action: "no_show"}

	flipped, err := d.store.MarkNoShow(ctx, appt.ID, d.now())
	if err != nil {
		item.Error = err.Error()
		return item
	}
	if !flipped {
		item.Skipped = "already left upcoming"
		return item
	}

	phone := channels.NormalizeE164(appt.Phone, d.cfg.DefaultCountryCode)
	if phone == "" {
		item.Error = "unusable phone number"
		return item
	}

	body := fmt.Sprintf("Hi %s, we missed you at your %s appointment today at %s. Is everything okay? Reply here and we'll find you a new time.",
		appt.PatientName, appt.Service, d.cfg.ClinicName)

	var delivery *channels.DeliveryResult
	if d.cfg.NoShowTemplateID != "" {
		params := []string{appt.PatientName, appt.Service}
		key := fmt.Sprintf("no-show-%s-%s", appt.ID, d.now().In(d.cfg.Location).Format("20060102"))
		delivery, err = d.messenger.SendTemplate(ctx, phone, d.cfg.NoShowTemplateID, params, key)
	} else {
		delivery, err = d.messenger.SendText(ctx, phone, body)
	}
	if err != nil {
		// The status transition stands; the ladder retries outreach.
		item.Error = fmt.Sprintf("marked no-show but outreach failed: %v", err)
		d.metrics.ObserveOutbound("text", "failed", false)
		d.logger.Error("no-show outreach failed", "appointment_id", appt.ID, "phone", item.Phone, "error", err)
		return item
	}
	d.metrics.ObserveOutbound("text", delivery.Status, delivery.Suppressed)

	entry := &appointments.CommLogEntry{
		AppointmentID:    &appt.ID,
		Phone:            phone,
		Channel:          appointments.ChannelText,
		Direction:        appointments.DirectionOutbound,
		Content:          "no-show outreach: " + body,
		ProviderResponse: delivery.Raw,
	}
	if err := d.store.LogCommunication(ctx, entry); err != nil {
		d.logger.Error("failed to log no-show outreach", "appointment_id", appt.ID, "error", err)
	}

	item.Sent = true
	return item
}

// dayBounds returns the clinic-local [start, end) of the calendar day
// containing t.
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// daysSince counts whole clinic-local calendar days between then and now.
func daysSince(then, now time.Time, loc *time.Location) int {
	thenStart, _ := dayBounds(then.In(loc), loc)
	nowStart, _ := dayBounds(now.In(loc), loc)
	return int(nowStart.Sub(thenStart) / (24 * time.Hour))
}
