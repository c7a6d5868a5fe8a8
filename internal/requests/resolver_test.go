package requests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicpulse/outreach/internal/appointments"
	"github.com/clinicpulse/outreach/internal/channels"
)

type stubRequestStore struct {
	request      *PendingRequest
	handled      bool
	handledWith  string
	claimRefused bool
}

func (s *stubRequestStore) Get(ctx context.Context, id uuid.UUID) (*PendingRequest, error) {
	if s.request == nil || s.request.ID != id {
		return nil, nil
	}
	clone := *s.request
	return &clone, nil
}

func (s *stubRequestStore) MarkHandled(ctx context.Context, id uuid.UUID, resolution, staffName string) (bool, error) {
	if s.claimRefused {
		return false, nil
	}
	s.handled = true
	s.handledWith = resolution
	return true, nil
}

type stubDirectory struct {
	appointment *appointments.Appointment
	created     []*appointments.Appointment
	rescheduled []uuid.UUID
	cancelled   []uuid.UUID
	logged      []*appointments.CommLogEntry
}

func (s *stubDirectory) Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	if s.appointment == nil || s.appointment.ID != id {
		return nil, nil
	}
	clone := *s.appointment
	return &clone, nil
}

func (s *stubDirectory) Create(ctx context.Context, a *appointments.Appointment) error {
	a.ID = uuid.New()
	s.created = append(s.created, a)
	return nil
}

func (s *stubDirectory) MarkRescheduled(ctx context.Context, id uuid.UUID) (bool, error) {
	s.rescheduled = append(s.rescheduled, id)
	return true, nil
}

func (s *stubDirectory) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	s.cancelled = append(s.cancelled, id)
	return true, nil
}

func (s *stubDirectory) LogCommunication(ctx context.Context, e *appointments.CommLogEntry) error {
	s.logged = append(s.logged, e)
	return nil
}

type recordingMessenger struct {
	sent []string
	to   []string
	err  error
}

func (m *recordingMessenger) SendText(ctx context.Context, phone, body string) (*channels.DeliveryResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.to = append(m.to, phone)
	m.sent = append(m.sent, body)
	return &channels.DeliveryResult{Provider: "stub", MessageID: "m1", Status: "sent"}, nil
}

func (m *recordingMessenger) SendTemplate(ctx context.Context, phone, templateID string, params []string, broadcastKey string) (*channels.DeliveryResult, error) {
	return m.SendText(ctx, phone, templateID)
}

func fixtures() (*stubRequestStore, *stubDirectory, *recordingMessenger, *Resolver) {
	appt := &appointments.Appointment{
		ID:          uuid.New(),
		PatientName: "Huda K",
		Phone:       "+971501112233",
		Service:     "Dental cleaning",
		ScheduledAt: time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC),
		Status:      appointments.StatusUpcoming,
	}
	req := &PendingRequest{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Phone:         appt.Phone,
		PatientName:   appt.PatientName,
		Type:          TypeReschedule,
		RequestedDate: "2026-09-05",
		RequestedTime: "11:00",
		Status:        StatusPending,
	}
	reqStore := &stubRequestStore{request: req}
	dir := &stubDirectory{appointment: appt}
	messenger := &recordingMessenger{}
	resolver := NewResolver(reqStore, dir, messenger, "ClinicPulse", time.UTC, nil)
	return reqStore, dir, messenger, resolver
}

func TestApproveRescheduleCreatesReplacement(t *testing.T) {
	reqStore, dir, messenger, resolver := fixtures()

	err := resolver.Resolve(context.Background(), Decision{
		Action:    ActionApprove,
		RequestID: reqStore.request.ID,
		StaffName: "Amal",
	})
	require.NoError(t, err)

	assert.True(t, reqStore.handled)
	assert.Equal(t, "approved by Amal", reqStore.handledWith)
	require.Len(t, dir.rescheduled, 1)
	assert.Equal(t, dir.appointment.ID, dir.rescheduled[0])
	require.Len(t, dir.created, 1)
	created := dir.created[0]
	assert.Equal(t, "Huda K", created.PatientName)
	assert.Equal(t, time.Date(2026, 9, 5, 11, 0, 0, 0, time.UTC), created.ScheduledAt)
	require.Len(t, messenger.sent, 1)
	assert.Contains(t, messenger.sent[0], "2026-09-05")
	require.Len(t, dir.logged, 1)
	assert.Equal(t, appointments.DirectionOutbound, dir.logged[0].Direction)
}

func TestApproveRescheduleStaffOverridesSlot(t *testing.T) {
	reqStore, dir, _, resolver := fixtures()

	err := resolver.Resolve(context.Background(), Decision{
		Action:    ActionApprove,
		RequestID: reqStore.request.ID,
		StaffName: "Amal",
		NewDate:   "2026-09-10",
		NewTime:   "09:30",
	})
	require.NoError(t, err)
	require.Len(t, dir.created, 1)
	assert.Equal(t, time.Date(2026, 9, 10, 9, 30, 0, 0, time.UTC), dir.created[0].ScheduledAt)
}

func TestApproveCancellation(t *testing.T) {
	reqStore, dir, messenger, resolver := fixtures()
	reqStore.request.Type = TypeCancellation

	err := resolver.Resolve(context.Background(), Decision{
		Action:    ActionApprove,
		RequestID: reqStore.request.ID,
		StaffName: "Amal",
	})
	require.NoError(t, err)
	require.Len(t, dir.cancelled, 1)
	assert.Empty(t, dir.created)
	require.Len(t, messenger.sent, 1)
	assert.Contains(t, messenger.sent[0], "cancelled")
}

func TestDoubleApproveRefused(t *testing.T) {
	reqStore, dir, _, resolver := fixtures()
	reqStore.claimRefused = true

	err := resolver.Resolve(context.Background(), Decision{
		Action:    ActionApprove,
		RequestID: reqStore.request.ID,
		StaffName: "Amal",
	})
	assert.ErrorIs(t, err, ErrAlreadyHandled)
	assert.Empty(t, dir.rescheduled)
	assert.Empty(t, dir.created)
}

func TestSuggestAlternativeKeepsRequestOpen(t *testing.T) {
	reqStore, dir, messenger, resolver := fixtures()

	err := resolver.Resolve(context.Background(), Decision{
		Action:    ActionSuggestAlternative,
		RequestID: reqStore.request.ID,
		StaffName: "Amal",
		NewDate:   "2026-09-06",
		NewTime:   "16:00",
	})
	require.NoError(t, err)
	assert.False(t, reqStore.handled)
	require.Len(t, messenger.sent, 1)
	assert.Contains(t, messenger.sent[0], "2026-09-06")
	require.Len(t, dir.logged, 1)
}

func TestReplyRequiresMessage(t *testing.T) {
	reqStore, _, messenger, resolver := fixtures()

	err := resolver.Resolve(context.Background(), Decision{
		Action:    ActionReply,
		RequestID: reqStore.request.ID,
		StaffName: "Amal",
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, messenger.sent)
}

func TestDeclineClosesRequest(t *testing.T) {
	reqStore, _, messenger, resolver := fixtures()

	err := resolver.Resolve(context.Background(), Decision{
		Action:    ActionDecline,
		RequestID: reqStore.request.ID,
		StaffName: "Amal",
	})
	require.NoError(t, err)
	assert.True(t, reqStore.handled)
	require.Len(t, messenger.sent, 1)
}

func TestUnknownRequestIs404(t *testing.T) {
	_, _, _, resolver := fixtures()

	err := resolver.Resolve(context.Background(), Decision{
		Action:    ActionDecline,
		RequestID: uuid.New(),
		StaffName: "Amal",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendFailureStillLogs(t *testing.T) {
	reqStore, dir, messenger, resolver := fixtures()
	messenger.err = errors.New("gateway down")

	err := resolver.Resolve(context.Background(), Decision{
		Action:    ActionDecline,
		RequestID: reqStore.request.ID,
		StaffName: "Amal",
	})
	require.Error(t, err)
	require.Len(t, dir.logged, 1)
	assert.True(t, dir.logged[0].NeedsHumanReview)
	assert.Contains(t, dir.logged[0].Content, "send failed")
}
