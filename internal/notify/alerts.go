package notify

import (
	"context"
	"fmt"

	"github.com/clinicpulse/outreach/internal/channels"
	"github.com/clinicpulse/outreach/internal/requests"
	"github.com/clinicpulse/outreach/pkg/logging"
)

// StaffAlerts emails the front desk when the engine needs a human. Alerts
// are best effort: failures are logged, never propagated, because the state
// transition that triggered the alert has already been committed.
type StaffAlerts struct {
	sender     EmailSender
	staffEmail string
	clinicName string
	logger     *logging.Logger
}

// NewStaffAlerts builds the alert service. A nil sender or empty staff email
// disables alerting; all methods become no-ops.
func NewStaffAlerts(sender EmailSender, staffEmail, clinicName string, logger *logging.Logger) *StaffAlerts {
	if sender == nil || staffEmail == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if clinicName == "" {
		clinicName = "the clinic"
	}
	return &StaffAlerts{sender: sender, staffEmail: staffEmail, clinicName: clinicName, logger: logger}
}

// PendingRequestRaised notifies staff that a patient intent is waiting for a
// decision.
func (a *StaffAlerts) PendingRequestRaised(ctx context.Context, req *requests.PendingRequest) {
	if a == nil || req == nil {
		return
	}
	subject := fmt.Sprintf("[%s] %s request from %s needs review", a.clinicName, req.Type, req.PatientName)
	body := fmt.Sprintf(
		"A patient call produced a %s request that needs a staff decision.\n\n"+
			"Patient: %s (%s)\n"+
			"Requested date: %s\n"+
			"Requested time: %s\n"+
			"Confidence: %s\n"+
			"Notes: %s\n\n"+
			"Request id: %s\n",
		req.Type, req.PatientName, channels.MaskPhone(req.Phone),
		orDash(req.RequestedDate), orDash(req.RequestedTime),
		orDash(req.Confidence), orDash(req.Notes), req.ID,
	)
	a.deliver(ctx, subject, body)
}

// HumanReviewNeeded notifies staff about a call the engine could not act on.
func (a *StaffAlerts) HumanReviewNeeded(ctx context.Context, phone, reason string) {
	if a == nil {
		return
	}
	subject := fmt.Sprintf("[%s] call needs human review", a.clinicName)
	body := fmt.Sprintf("A call outcome could not be handled automatically.\n\nPhone: %s\nReason: %s\n",
		channels.MaskPhone(phone), reason)
	a.deliver(ctx, subject, body)
}

func (a *StaffAlerts) deliver(ctx context.Context, subject, body string) {
	msg := EmailMessage{
		To:      a.staffEmail,
		ToName:  "Front Desk",
		Subject: subject,
		Body:    body,
	}
	if err := a.sender.Send(ctx, msg); err != nil {
		a.logger.Error("staff alert email failed", "subject", subject, "error", err)
	}
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
