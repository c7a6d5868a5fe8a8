package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewStore(mock)
}

func appointmentRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "patient_name", "phone", "service", "scheduled_at", "status", "confirmation_status",
		"reminder_24hr_sent", "reminder_24hr_sent_at", "reminder_2hr_sent", "reminder_2hr_sent_at",
		"followup_status", "followup_step", "is_new_patient", "no_show_count", "no_show_at",
		"reminders_paused", "created_at", "updated_at",
	})
}

func addAppointmentRow(rows *pgxmock.Rows, a Appointment) *pgxmock.Rows {
	return rows.AddRow(
		a.ID, a.PatientName, a.Phone, a.Service, a.ScheduledAt, string(a.Status), string(a.ConfirmationStatus),
		a.Reminder24Sent, a.Reminder24SentAt, a.Reminder2Sent, a.Reminder2SentAt,
		string(a.FollowupStatus), a.FollowupStep, a.IsNewPatient, a.NoShowCount, a.NoShowAt,
		a.RemindersPaused, a.CreatedAt, a.UpdatedAt,
	)
}

func sampleAppointment() Appointment {
	return Appointment{
		ID:                 uuid.New(),
		PatientName:        "Huda K",
		Phone:              "+971501112233",
		Service:            "Dental cleaning",
		ScheduledAt:        time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC),
		Status:             StatusUpcoming,
		ConfirmationStatus: ConfirmMessageSent,
		FollowupStatus:     FollowupNone,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
}

func TestCreateAppointmentDefaults(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "Huda K", "+971501112233", "Dental cleaning", pgxmock.AnyArg(),
			"upcoming", "unconfirmed", false, pgxmock.AnyArg(), false, pgxmock.AnyArg(),
			"none", 0, true, 0, pgxmock.AnyArg(), false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &Appointment{
		PatientName:  "Huda K",
		Phone:        "+971501112233",
		Service:      "Dental cleaning",
		ScheduledAt:  time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC),
		IsNewPatient: true,
	}
	require.NoError(t, store.Create(context.Background(), a))
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, StatusUpcoming, a.Status)
	assert.Equal(t, FollowupNone, a.FollowupStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReminder24SentClaimsOnce(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE appointments SET reminder_24hr_sent = TRUE").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	claimed, err := store.MarkReminder24Sent(context.Background(), id, at)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second claim matches zero rows: the flag already flipped.
	mock.ExpectExec("UPDATE appointments SET reminder_24hr_sent = TRUE").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	claimed, err = store.MarkReminder24Sent(context.Background(), id, at)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConfirmationMessageSentOnlyUpgradesUnconfirmed(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments SET confirmation_status = 'message_sent'").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	moved, err := store.MarkConfirmationMessageSent(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, moved)

	// A confirmed or already-notified appointment matches zero rows.
	mock.ExpectExec("UPDATE appointments SET confirmation_status = 'message_sent'").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	moved, err = store.MarkConfirmationMessageSent(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, moved)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNoShowIsOneShot(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("SET status = 'no_show'").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	flipped, err := store.MarkNoShow(context.Background(), id, time.Now())
	require.NoError(t, err)
	assert.True(t, flipped)

	mock.ExpectExec("SET status = 'no_show'").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	flipped, err = store.MarkNoShow(context.Background(), id, time.Now())
	require.NoError(t, err)
	assert.False(t, flipped)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceFollowupStepMonotonic(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("SET followup_step = \\$1").
		WithArgs(3, pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	advanced, err := store.AdvanceFollowupStep(context.Background(), id, 3)
	require.NoError(t, err)
	assert.True(t, advanced)

	// A lower or equal step matches zero rows.
	mock.ExpectExec("SET followup_step = \\$1").
		WithArgs(2, pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	advanced, err = store.AdvanceFollowupStep(context.Background(), id, 2)
	require.NoError(t, err)
	assert.False(t, advanced)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStopFollowupsByPhone(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectExec("SET followup_status = 'stopped'").
		WithArgs(pgxmock.AnyArg(), "+971501112233").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	stopped, err := store.StopFollowupsByPhone(context.Background(), "+971501112233")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stopped)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMostRecentActiveByPhone(t *testing.T) {
	mock, store := newMockStore(t)
	a := sampleAppointment()
	since := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM appointments").
		WithArgs(a.Phone, since).
		WillReturnRows(addAppointmentRow(appointmentRows(), a))

	found, err := store.FindMostRecentActiveByPhone(context.Background(), a.Phone, since)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.ID)
	assert.Equal(t, StatusUpcoming, found.Status)
	assert.Equal(t, ConfirmMessageSent, found.ConfirmationStatus)

	mock.ExpectQuery("FROM appointments").
		WithArgs("+971500000000", since).
		WillReturnRows(appointmentRows())
	found, err = store.FindMostRecentActiveByPhone(context.Background(), "+971500000000", since)
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueReminder24FiltersInStore(t *testing.T) {
	mock, store := newMockStore(t)
	a := sampleAppointment()
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery("reminder_24hr_sent = FALSE").
		WithArgs(from, to).
		WillReturnRows(addAppointmentRow(appointmentRows(), a))

	due, err := store.ListDueReminder24(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, a.Phone, due[0].Phone)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachCallOutcomeUpdatesInPlace(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()
	outcome := CallOutcome{
		CallStatus: CallAnswered,
		Summary:    "Patient confirmed the visit.",
	}

	mock.ExpectExec("UPDATE communication_log").
		WithArgs(CallAnswered, outcome.Summary, pgxmock.AnyArg(), false, pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	attached, err := store.AttachCallOutcome(context.Background(), id, outcome)
	require.NoError(t, err)
	assert.True(t, attached)

	// No initiated voice entry to update: the caller inserts fresh instead.
	mock.ExpectExec("UPDATE communication_log").
		WithArgs(CallAnswered, outcome.Summary, pgxmock.AnyArg(), false, pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	attached, err = store.AttachCallOutcome(context.Background(), id, outcome)
	require.NoError(t, err)
	assert.False(t, attached)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogCommunicationAssignsIdentity(t *testing.T) {
	mock, store := newMockStore(t)
	apptID := uuid.New()

	mock.ExpectExec("INSERT INTO communication_log").
		WithArgs(pgxmock.AnyArg(), &apptID, "+971501112233", "text", "outbound",
			"Reminder sent", "", pgxmock.AnyArg(), false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := &CommLogEntry{
		AppointmentID: &apptID,
		Phone:         "+971501112233",
		Channel:       ChannelText,
		Direction:     DirectionOutbound,
		Content:       "Reminder sent",
	}
	require.NoError(t, store.LogCommunication(context.Background(), entry))
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	require.NoError(t, mock.ExpectationsWereMet())
}
