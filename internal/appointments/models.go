package appointments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusUpcoming    Status = "upcoming"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

// ConfirmationStatus records how confirmation was obtained. It is an
// independent axis from Status.
type ConfirmationStatus string

const (
	ConfirmUnconfirmed    ConfirmationStatus = "unconfirmed"
	ConfirmMessageSent    ConfirmationStatus = "message_sent"
	ConfirmWhatsApp       ConfirmationStatus = "confirmed_whatsapp"
	ConfirmCall           ConfirmationStatus = "confirmed_call"
	ConfirmDouble         ConfirmationStatus = "double_confirmed"
	ConfirmCalledNoAnswer ConfirmationStatus = "called_no_answer"
	ConfirmCalledResched  ConfirmationStatus = "called_reschedule"
	ConfirmCancelled      ConfirmationStatus = "cancelled"
)

// FollowupStatus tracks the no-show re-engagement ladder for an appointment.
// Transitions only move none -> active -> {stopped|completed}.
type FollowupStatus string

const (
	FollowupNone      FollowupStatus = "none"
	FollowupActive    FollowupStatus = "active"
	FollowupStopped   FollowupStatus = "stopped"
	FollowupCompleted FollowupStatus = "completed"
)

// Appointment is one scheduled patient visit.
type Appointment struct {
	ID                 uuid.UUID
	PatientName        string
	Phone              string
	Service            string
	ScheduledAt        time.Time
	Status             Status
	ConfirmationStatus ConfirmationStatus

	Reminder24Sent   bool
	Reminder24SentAt *time.Time
	Reminder2Sent    bool
	Reminder2SentAt  *time.Time

	FollowupStatus FollowupStatus
	FollowupStep   int
	IsNewPatient   bool
	NoShowCount    int
	NoShowAt       *time.Time

	RemindersPaused bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel identifies the communication medium of a log entry.
type Channel string

const (
	ChannelText  Channel = "text"
	ChannelVoice Channel = "voice"
)

// Direction of a communication relative to the clinic.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Call statuses recorded on voice log entries.
const (
	CallInitiated = "initiated"
	CallAnswered  = "answered"
	CallNoAnswer  = "no_answer"
	CallVoicemail = "voicemail"
)

// CommLogEntry is an append-only audit record of one interaction. The only
// permitted mutation is attaching a deferred outcome to an initiated call.
type CommLogEntry struct {
	ID               uuid.UUID
	AppointmentID    *uuid.UUID
	Phone            string
	Channel          Channel
	Direction        Direction
	Content          string
	CallStatus       string
	ProviderResponse json.RawMessage
	NeedsHumanReview bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CallOutcome is the deferred result attached to an initiated voice entry
// once the provider's webhook arrives.
type CallOutcome struct {
	CallStatus       string
	Summary          string
	ProviderResponse json.RawMessage
	NeedsHumanReview bool
}
