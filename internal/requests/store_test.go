package requests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func requestRow(r PendingRequest) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "appointment_id", "phone", "patient_name", "type", "requested_date", "requested_time",
		"notes", "confidence", "status", "resolution", "resolved_by", "resolved_at", "created_at", "updated_at",
	}).AddRow(
		r.ID, r.AppointmentID, r.Phone, r.PatientName, string(r.Type), r.RequestedDate, r.RequestedTime,
		r.Notes, r.Confidence, string(r.Status), r.Resolution, r.ResolvedBy, r.ResolvedAt, r.CreatedAt, r.UpdatedAt,
	)
}

func sampleRequest() PendingRequest {
	now := time.Now().UTC().Truncate(time.Second)
	return PendingRequest{
		ID:            uuid.New(),
		AppointmentID: uuid.New(),
		Phone:         "+971501112233",
		PatientName:   "Fatima",
		Type:          TypeReschedule,
		RequestedDate: "2026-09-03",
		RequestedTime: "16:30",
		Notes:         "prefers afternoons",
		Confidence:    "high",
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestCreateDefaultsIDAndStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	req := sampleRequest()
	req.ID = uuid.Nil
	req.Status = ""

	mock.ExpectExec("INSERT INTO pending_requests").
		WithArgs(pgxmock.AnyArg(), req.AppointmentID, req.Phone, req.PatientName, string(TypeReschedule),
			req.RequestedDate, req.RequestedTime, req.Notes, req.Confidence, string(StatusPending),
			"", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), &req))
	require.NotEqual(t, uuid.Nil, req.ID)
	require.Equal(t, StatusPending, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingReturnsNil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM pending_requests WHERE id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPendingDefaultsLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	req := sampleRequest()
	mock.ExpectQuery("SELECT (.+) FROM pending_requests").
		WithArgs(50).
		WillReturnRows(requestRow(req))

	got, err := store.ListPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, req.ID, got[0].ID)
	require.Equal(t, TypeReschedule, got[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkHandledIsOneShot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE pending_requests").
		WithArgs("approved by Aisha", "Aisha", pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE pending_requests").
		WithArgs("approved by Aisha", "Aisha", pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	claimed, err := store.MarkHandled(context.Background(), id, "approved by Aisha", "Aisha")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = store.MarkHandled(context.Background(), id, "approved by Aisha", "Aisha")
	require.NoError(t, err)
	require.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}
