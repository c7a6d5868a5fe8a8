package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns all mutation of appointment and communication log rows. Every
// conditional transition is expressed as an atomic UPDATE so overlapping job
// runs cannot double-fire.
type Store struct {
	db DB
}

// NewStore creates a new appointment store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const appointmentColumns = `id, patient_name, phone, service, scheduled_at, status, confirmation_status,
	reminder_24hr_sent, reminder_24hr_sent_at, reminder_2hr_sent, reminder_2hr_sent_at,
	followup_status, followup_step, is_new_patient, no_show_count, no_show_at,
	reminders_paused, created_at, updated_at`

// Create inserts a new appointment.
func (s *Store) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusUpcoming
	}
	if a.ConfirmationStatus == "" {
		a.ConfirmationStatus = ConfirmUnconfirmed
	}
	if a.FollowupStatus == "" {
		a.FollowupStatus = FollowupNone
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, patient_name, phone, service, scheduled_at, status, confirmation_status,
			reminder_24hr_sent, reminder_24hr_sent_at, reminder_2hr_sent, reminder_2hr_sent_at,
			followup_status, followup_step, is_new_patient, no_show_count, no_show_at,
			reminders_paused, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		a.ID, a.PatientName, a.Phone, a.Service, a.ScheduledAt, string(a.Status), string(a.ConfirmationStatus),
		a.Reminder24Sent, a.Reminder24SentAt, a.Reminder2Sent, a.Reminder2SentAt,
		string(a.FollowupStatus), a.FollowupStep, a.IsNewPatient, a.NoShowCount, a.NoShowAt,
		a.RemindersPaused, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// Get fetches one appointment by id. Returns (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return a, nil
}

// ListDueReminder24 returns appointments scheduled inside [from, to) that
// still need the 24-hour reminder.
func (s *Store) ListDueReminder24(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_at >= $1 AND scheduled_at < $2
		  AND reminder_24hr_sent = FALSE
		  AND reminders_paused = FALSE
		  AND status <> 'cancelled'
		ORDER BY scheduled_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list due 24hr: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListDueReminder2 returns appointments scheduled inside [from, to) that
// still need the 2-hour reminder. Window math stays with the caller; the
// store only guards the flags.
func (s *Store) ListDueReminder2(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_at >= $1 AND scheduled_at < $2
		  AND reminder_2hr_sent = FALSE
		  AND reminders_paused = FALSE
		  AND status <> 'cancelled'
		ORDER BY scheduled_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list due 2hr: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// MarkReminder24Sent flips the 24-hour flag false -> true. Returns false
// when another run already claimed it.
func (s *Store) MarkReminder24Sent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET reminder_24hr_sent = TRUE, reminder_24hr_sent_at = $1, updated_at = $1
		WHERE id = $2 AND reminder_24hr_sent = FALSE`, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark 24hr reminder sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkReminder2Sent flips the 2-hour flag false -> true. Returns false when
// another run already claimed it.
func (s *Store) MarkReminder2Sent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET reminder_2hr_sent = TRUE, reminder_2hr_sent_at = $1, updated_at = $1
		WHERE id = $2 AND reminder_2hr_sent = FALSE`, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark 2hr reminder sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkConfirmationMessageSent moves a fresh appointment to message_sent once
// a reminder goes out. The guard keeps a reply the patient already gave from
// being downgraded by a later reminder.
func (s *Store) MarkConfirmationMessageSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET confirmation_status = 'message_sent', updated_at = $1
		WHERE id = $2 AND confirmation_status = 'unconfirmed'`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark confirmation message sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListNoShowCandidates returns today's appointments still upcoming whose
// slot passed before the cutoff.
func (s *Store) ListNoShowCandidates(ctx context.Context, dayStart, cutoff time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'upcoming'
		  AND scheduled_at >= $1 AND scheduled_at <= $2
		  AND reminders_paused = FALSE
		ORDER BY scheduled_at ASC`, dayStart, cutoff)
	if err != nil {
		return nil, fmt.Errorf("appointments: list no-show candidates: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// MarkNoShow transitions upcoming -> no_show and arms the follow-up ladder.
// The status guard makes the transition one-shot per occurrence.
func (s *Store) MarkNoShow(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'no_show', followup_status = 'active', followup_step = 0,
		    no_show_count = no_show_count + 1, no_show_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'upcoming'`, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark no-show: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListActiveFollowups returns no-show appointments with the ladder still
// running.
func (s *Store) ListActiveFollowups(ctx context.Context) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'no_show'
		  AND followup_status = 'active'
		  AND reminders_paused = FALSE
		ORDER BY no_show_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("appointments: list active followups: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// AdvanceFollowupStep raises followup_step to step. The strict inequality
// keeps the step monotonic across overlapping runs.
func (s *Store) AdvanceFollowupStep(ctx context.Context, id uuid.UUID, step int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET followup_step = $1, updated_at = $2
		WHERE id = $3 AND followup_status = 'active' AND followup_step < $1`,
		step, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: advance followup step: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteFollowup closes out the ladder: active -> completed.
func (s *Store) CompleteFollowup(ctx context.Context, id uuid.UUID, step int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET followup_status = 'completed', followup_step = $1, updated_at = $2
		WHERE id = $3 AND followup_status = 'active' AND followup_step < $1`,
		step, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: complete followup: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// StopFollowupsByPhone halts every active ladder for a phone number. A
// patient may carry stale follow-ups on other appointments; a confirmation
// stops all of them.
func (s *Store) StopFollowupsByPhone(ctx context.Context, phone string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET followup_status = 'stopped', updated_at = $1
		WHERE phone = $2 AND followup_status = 'active'`, time.Now().UTC(), phone)
	if err != nil {
		return 0, fmt.Errorf("appointments: stop followups by phone: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetConfirmationStatus records how the patient confirmed (or declined).
func (s *Store) SetConfirmationStatus(ctx context.Context, id uuid.UUID, status ConfirmationStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET confirmation_status = $1, updated_at = $2
		WHERE id = $3`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: set confirmation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments: set confirmation status: no appointment with id %s", id)
	}
	return nil
}

// MarkRescheduled closes out an appointment whose slot moved elsewhere.
func (s *Store) MarkRescheduled(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'rescheduled', updated_at = $1
		WHERE id = $2 AND status NOT IN ('cancelled', 'rescheduled')`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark rescheduled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Cancel sets both lifecycle and confirmation status to cancelled.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'cancelled', confirmation_status = 'cancelled', updated_at = $1
		WHERE id = $2 AND status <> 'cancelled'`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: cancel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindMostRecentActiveByPhone returns the latest non-cancelled appointment
// for a phone scheduled at or after the given instant, or (nil, nil) when
// none matches.
func (s *Store) FindMostRecentActiveByPhone(ctx context.Context, phone string, since time.Time) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE phone = $1 AND status <> 'cancelled' AND scheduled_at >= $2
		ORDER BY scheduled_at DESC LIMIT 1`, phone, since)
	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: find by phone: %w", err)
	}
	return a, nil
}

// LogCommunication appends one entry to the communication log.
func (s *Store) LogCommunication(ctx context.Context, e *CommLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO communication_log (id, appointment_id, phone, channel, direction, content,
			call_status, provider_response, needs_human_review, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.AppointmentID, e.Phone, string(e.Channel), string(e.Direction), e.Content,
		e.CallStatus, e.ProviderResponse, e.NeedsHumanReview, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: log communication: %w", err)
	}
	return nil
}

// AttachCallOutcome updates the most recent initiated voice entry for an
// appointment in place. Returns false when no initiated entry exists, in
// which case the caller should append a fresh entry instead. Repeated
// webhook deliveries keep hitting the same row, never duplicating it.
func (s *Store) AttachCallOutcome(ctx context.Context, appointmentID uuid.UUID, outcome CallOutcome) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE communication_log
		SET call_status = $1, content = $2, provider_response = $3, needs_human_review = $4, updated_at = $5
		WHERE id = (
			SELECT id FROM communication_log
			WHERE appointment_id = $6 AND channel = 'voice' AND call_status IN ('initiated', $1)
			ORDER BY created_at DESC LIMIT 1
		)`,
		outcome.CallStatus, outcome.Summary, outcome.ProviderResponse, outcome.NeedsHumanReview,
		time.Now().UTC(), appointmentID)
	if err != nil {
		return false, fmt.Errorf("appointments: attach call outcome: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*Appointment, error) {
	var a Appointment
	var status, confirmation, followup string
	err := row.Scan(
		&a.ID, &a.PatientName, &a.Phone, &a.Service, &a.ScheduledAt, &status, &confirmation,
		&a.Reminder24Sent, &a.Reminder24SentAt, &a.Reminder2Sent, &a.Reminder2SentAt,
		&followup, &a.FollowupStep, &a.IsNewPatient, &a.NoShowCount, &a.NoShowAt,
		&a.RemindersPaused, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.ConfirmationStatus = ConfirmationStatus(confirmation)
	a.FollowupStatus = FollowupStatus(followup)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan row: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate rows: %w", err)
	}
	return out, nil
}
