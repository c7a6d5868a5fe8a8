package requests

import (
	"time"

	"github.com/google/uuid"
)

// Type of patient intent awaiting staff review.
type Type string

const (
	TypeReschedule   Type = "reschedule"
	TypeCancellation Type = "cancellation"
)

// RequestStatus is the pending-request lifecycle. A request is terminated
// exactly once.
type RequestStatus string

const (
	StatusPending RequestStatus = "pending"
	StatusHandled RequestStatus = "handled"
)

// PendingRequest is an ambiguous or high-stakes patient intent raised by the
// call-outcome reconciler and resolved by staff.
type PendingRequest struct {
	ID            uuid.UUID     `json:"id"`
	AppointmentID uuid.UUID     `json:"appointment_id"`
	Phone         string        `json:"phone"`
	PatientName   string        `json:"patient_name"`
	Type          Type          `json:"type"`
	RequestedDate string        `json:"requested_date,omitempty"`
	RequestedTime string        `json:"requested_time,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Confidence    string        `json:"confidence,omitempty"`
	Status        RequestStatus `json:"status"`
	Resolution    string        `json:"resolution,omitempty"`
	ResolvedBy    string        `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
