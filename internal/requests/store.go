package requests

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

// Store provides CRUD operations for pending_requests.
type Store struct {
	db DB
}

// NewStore creates a new pending-request store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const requestColumns = `id, appointment_id, phone, patient_name, type, requested_date, requested_time,
	notes, confidence, status, resolution, resolved_by, resolved_at, created_at, updated_at`

// Create inserts a new pending request.
func (s *Store) Create(ctx context.Context, r *PendingRequest) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusPending
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO pending_requests (id, appointment_id, phone, patient_name, type, requested_date, requested_time,
			notes, confidence, status, resolution, resolved_by, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID, r.AppointmentID, r.Phone, r.PatientName, string(r.Type), r.RequestedDate, r.RequestedTime,
		r.Notes, r.Confidence, string(r.Status), r.Resolution, r.ResolvedBy, r.ResolvedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("requests: create: %w", err)
	}
	return nil
}

// Get fetches one request by id. Returns (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*PendingRequest, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM pending_requests WHERE id = $1`, id)
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("requests: get: %w", err)
	}
	return r, nil
}

// ListPending returns open requests, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]PendingRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM pending_requests
		WHERE status = 'pending'
		ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("requests: list pending: %w", err)
	}
	defer rows.Close()

	var out []PendingRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("requests: scan row: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("requests: iterate rows: %w", err)
	}
	return out, nil
}

// MarkHandled terminates a request: pending -> handled. The status guard
// makes the termination one-shot. Returns false when the request was already
// handled or does not exist.
func (s *Store) MarkHandled(ctx context.Context, id uuid.UUID, resolution, staffName string) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE pending_requests
		SET status = 'handled', resolution = $1, resolved_by = $2, resolved_at = $3, updated_at = $3
		WHERE id = $4 AND status = 'pending'`, resolution, staffName, now, id)
	if err != nil {
		return false, fmt.Errorf("requests: mark handled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*PendingRequest, error) {
	var r PendingRequest
	var typ, status string
	err := row.Scan(
		&r.ID, &r.AppointmentID, &r.Phone, &r.PatientName, &typ, &r.RequestedDate, &r.RequestedTime,
		&r.Notes, &r.Confidence, &status, &r.Resolution, &r.ResolvedBy, &r.ResolvedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Type = Type(typ)
	r.Status = RequestStatus(status)
	return &r, nil
}
