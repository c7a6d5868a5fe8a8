package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicpulse/outreach/internal/appointments"
	"github.com/clinicpulse/outreach/internal/channels"
	"github.com/clinicpulse/outreach/pkg/logging"
)

// Staff actions accepted by the resolver.
const (
	ActionApprove            = "approve"
	ActionSuggestAlternative = "suggest_alternative"
	ActionReply              = "reply"
	ActionDecline            = "decline"
)

var (
	ErrNotFound       = errors.New("requests: pending request not found")
	ErrAlreadyHandled = errors.New("requests: pending request already handled")
	ErrValidation     = errors.New("requests: invalid decision")
)

// Decision is one staff action against a pending request.
type Decision struct {
	Action    string
	RequestID uuid.UUID
	StaffName string
	NewDate   string
	NewTime   string
	Message   string
}

type appointmentDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	Create(ctx context.Context, a *appointments.Appointment) error
	MarkRescheduled(ctx context.Context, id uuid.UUID) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	LogCommunication(ctx context.Context, e *appointments.CommLogEntry) error
}

type requestStore interface {
	Get(ctx context.Context, id uuid.UUID) (*PendingRequest, error)
	MarkHandled(ctx context.Context, id uuid.UUID, resolution, staffName string) (bool, error)
}

// Resolver applies staff decisions to pending requests. Terminating actions
// claim the request first through the one-shot handled transition, so a
// double-submitted decision cannot apply twice.
type Resolver struct {
	requests   requestStore
	appts      appointmentDirectory
	messenger  channels.TextMessenger
	clinicName string
	location   *time.Location
	logger     *logging.Logger
}

// NewResolver builds a resolver. location is the clinic-local timezone used
// to interpret staff-supplied reschedule slots.
func NewResolver(reqs requestStore, appts appointmentDirectory, messenger channels.TextMessenger, clinicName string, location *time.Location, logger *logging.Logger) *Resolver {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	if clinicName == "" {
		clinicName = "the clinic"
	}
	return &Resolver{
		requests:   reqs,
		appts:      appts,
		messenger:  messenger,
		clinicName: clinicName,
		location:   location,
		logger:     logger,
	}
}

// Resolve applies one staff decision. Validation and not-found failures have
// no side effects.
func (r *Resolver) Resolve(ctx context.Context, d Decision) error {
	if err := r.validate(d); err != nil {
		return err
	}

	req, err := r.requests.Get(ctx, d.RequestID)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrNotFound
	}

	switch d.Action {
	case ActionApprove:
		return r.approve(ctx, req, d)
	case ActionDecline:
		return r.decline(ctx, req, d)
	case ActionSuggestAlternative:
		return r.suggestAlternative(ctx, req, d)
	case ActionReply:
		return r.reply(ctx, req, d)
	}
	return fmt.Errorf("%w: unknown action %q", ErrValidation, d.Action)
}

func (r *Resolver) validate(d Decision) error {
	switch d.Action {
	case ActionApprove, ActionSuggestAlternative, ActionReply, ActionDecline:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrValidation, d.Action)
	}
	if d.RequestID == uuid.Nil {
		return fmt.Errorf("%w: request_id is required", ErrValidation)
	}
	if strings.TrimSpace(d.StaffName) == "" {
		return fmt.Errorf("%w: staff_name is required", ErrValidation)
	}
	if d.Action == ActionReply && strings.TrimSpace(d.Message) == "" {
		return fmt.Errorf("%w: message is required for reply", ErrValidation)
	}
	return nil
}

func (r *Resolver) approve(ctx context.Context, req *PendingRequest, d Decision) error {
	switch req.Type {
	case TypeReschedule:
		return r.approveReschedule(ctx, req, d)
	case TypeCancellation:
		return r.approveCancellation(ctx, req, d)
	}
	return fmt.Errorf("%w: unknown request type %q", ErrValidation, req.Type)
}

func (r *Resolver) approveReschedule(ctx context.Context, req *PendingRequest, d Decision) error {
	newDate := firstNonEmpty(d.NewDate, req.RequestedDate)
	newTime := firstNonEmpty(d.NewTime, req.RequestedTime)
	slot, err := r.parseSlot(newDate, newTime)
	if err != nil {
		return err
	}

	old, err := r.appts.Get(ctx, req.AppointmentID)
	if err != nil {
		return err
	}
	if old == nil {
		return ErrNotFound
	}

	claimed, err := r.requests.MarkHandled(ctx, req.ID, "approved by "+d.StaffName, d.StaffName)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrAlreadyHandled
	}

	if _, err := r.appts.MarkRescheduled(ctx, old.ID); err != nil {
		return err
	}
	replacement := &appointments.Appointment{
		PatientName:  old.PatientName,
		Phone:        old.Phone,
		Service:      old.Service,
		ScheduledAt:  slot,
		IsNewPatient: old.IsNewPatient,
	}
	if err := r.appts.Create(ctx, replacement); err != nil {
		return err
	}

	body := fmt.Sprintf("Hi %s, your %s appointment at %s has been moved to %s at %s. See you then!",
		req.PatientName, old.Service, r.clinicName, newDate, newTime)
	return r.sendAndLog(ctx, req, replacement.ID, body, "approved reschedule")
}

func (r *Resolver) approveCancellation(ctx context.Context, req *PendingRequest, d Decision) error {
	claimed, err := r.requests.MarkHandled(ctx, req.ID, "approved by "+d.StaffName, d.StaffName)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrAlreadyHandled
	}

	if _, err := r.appts.Cancel(ctx, req.AppointmentID); err != nil {
		return err
	}

	body := fmt.Sprintf("Hi %s, your appointment at %s has been cancelled as requested. We hope to see you again soon.",
		req.PatientName, r.clinicName)
	return r.sendAndLog(ctx, req, req.AppointmentID, body, "approved cancellation")
}

func (r *Resolver) decline(ctx context.Context, req *PendingRequest, d Decision) error {
	claimed, err := r.requests.MarkHandled(ctx, req.ID, "declined by "+d.StaffName, d.StaffName)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrAlreadyHandled
	}

	body := d.Message
	if strings.TrimSpace(body) == "" {
		body = fmt.Sprintf("Hi %s, unfortunately we cannot accommodate that request. Please call %s to discuss other options.",
			req.PatientName, r.clinicName)
	}
	return r.sendAndLog(ctx, req, req.AppointmentID, body, "declined request")
}

func (r *Resolver) suggestAlternative(ctx context.Context, req *PendingRequest, d Decision) error {
	if req.Status != StatusPending {
		return ErrAlreadyHandled
	}

	body := d.Message
	if strings.TrimSpace(body) == "" {
		if d.NewDate == "" || d.NewTime == "" {
			return fmt.Errorf("%w: suggest_alternative needs a message or a new date and time", ErrValidation)
		}
		body = fmt.Sprintf("Hi %s, that slot is not available, but we could see you on %s at %s instead. Does that work for you?",
			req.PatientName, d.NewDate, d.NewTime)
	}
	// The request stays open until staff approve or decline.
	return r.sendAndLog(ctx, req, req.AppointmentID, body, "suggested alternative")
}

func (r *Resolver) reply(ctx context.Context, req *PendingRequest, d Decision) error {
	if req.Status != StatusPending {
		return ErrAlreadyHandled
	}
	return r.sendAndLog(ctx, req, req.AppointmentID, d.Message, "staff reply")
}

// sendAndLog sends the message and appends a communication log entry. The
// log entry is written on both send success and send failure so the audit
// trail never loses a staff action.
func (r *Resolver) sendAndLog(ctx context.Context, req *PendingRequest, appointmentID uuid.UUID, body, action string) error {
	result, sendErr := r.messenger.SendText(ctx, req.Phone, body)

	entry := &appointments.CommLogEntry{
		AppointmentID: &appointmentID,
		Phone:         req.Phone,
		Channel:       appointments.ChannelText,
		Direction:     appointments.DirectionOutbound,
		Content:       action + ": " + body,
	}
	if sendErr != nil {
		entry.Content = action + " (send failed): " + body
		entry.NeedsHumanReview = true
	} else if result != nil {
		entry.ProviderResponse = result.Raw
	}
	if logErr := r.appts.LogCommunication(ctx, entry); logErr != nil {
		r.logger.Error("failed to log staff action", "request_id", req.ID, "error", logErr)
	}

	if sendErr != nil {
		return fmt.Errorf("requests: send for %s: %w", action, sendErr)
	}
	return nil
}

func (r *Resolver) parseSlot(date, timeOfDay string) (time.Time, error) {
	if strings.TrimSpace(date) == "" || strings.TrimSpace(timeOfDay) == "" {
		return time.Time{}, fmt.Errorf("%w: approve reschedule needs new_date and new_time", ErrValidation)
	}
	slot, err := time.ParseInLocation("2006-01-02 15:04", date+" "+timeOfDay, r.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cannot parse slot %q %q", ErrValidation, date, timeOfDay)
	}
	return slot, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
