package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no confirmation matches.
var ErrNotFound = errors.New("bookings: confirmation not found")

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is one confirmed appointment in the local ledger.
type Record struct {
	ID              uuid.UUID
	SessionID       string
	AppointmentID   string
	// DedupeKey is the Medos appointment id, or a session and slot key when
	// the API returned none. It is unique per workspace.
	DedupeKey       string
	WorkspaceID     int64
	AddressID       int64
	DoctorID        int64
	BookingType     string
	Status          string
	AppointmentDate string
	FromTime        string
	ToTime          string
	PatientName     string
	PatientEmail    string
	PatientPhone    string
	PackageName     string
	NotifiedAt      *time.Time
	CreatedAt       time.Time
}

// Repository provides persistence helpers for booking confirmations.
type Repository struct {
	pool rowQuerier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithExec(exec rowQuerier) *Repository {
	if exec == nil {
		panic("bookings: exec required")
	}
	return &Repository{pool: exec}
}

// Insert stores rec, returning false when its dedupe key is already recorded.
func (r *Repository) Insert(ctx context.Context, rec Record) (bool, error) {
	if rec.DedupeKey == "" {
		return false, errors.New("bookings: dedupe key is required")
	}
	query := `
		INSERT INTO booking_confirmations (
			id, session_id, appointment_id, dedupe_key, workspace_id, address_id, doctor_id,
			booking_type, status, appointment_date, from_time, to_time,
			patient_name, patient_email, patient_phone, package_name
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (workspace_id, dedupe_key) DO NOTHING
	`
	ct, err := r.pool.Exec(ctx, query,
		toPGUUID(rec.ID), rec.SessionID, rec.AppointmentID, rec.DedupeKey, rec.WorkspaceID, rec.AddressID, rec.DoctorID,
		rec.BookingType, rec.Status, rec.AppointmentDate, rec.FromTime, rec.ToTime,
		rec.PatientName, rec.PatientEmail, rec.PatientPhone, rec.PackageName,
	)
	if err != nil {
		return false, fmt.Errorf("bookings: insert confirmation: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// GetByDedupeKey loads the confirmation recorded under key.
func (r *Repository) GetByDedupeKey(ctx context.Context, workspaceID int64, key string) (*Record, error) {
	query := `
		SELECT id::text, session_id, appointment_id, dedupe_key, workspace_id, address_id, doctor_id,
			booking_type, status, appointment_date, from_time, to_time,
			patient_name, patient_email, patient_phone, package_name, notified_at, created_at
		FROM booking_confirmations
		WHERE workspace_id = $1 AND dedupe_key = $2
	`
	var (
		rec      Record
		id       string
		notified pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, query, workspaceID, key).Scan(
		&id, &rec.SessionID, &rec.AppointmentID, &rec.DedupeKey, &rec.WorkspaceID, &rec.AddressID, &rec.DoctorID,
		&rec.BookingType, &rec.Status, &rec.AppointmentDate, &rec.FromTime, &rec.ToTime,
		&rec.PatientName, &rec.PatientEmail, &rec.PatientPhone, &rec.PackageName, &notified, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: load confirmation: %w", err)
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bookings: invalid confirmation id %q: %w", id, err)
	}
	if notified.Valid {
		t := notified.Time
		rec.NotifiedAt = &t
	}
	return &rec, nil
}

// MarkNotified records when the patient was emailed.
func (r *Repository) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE booking_confirmations SET notified_at = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, toPGUUID(id), toPGTime(at)); err != nil {
		return fmt.Errorf("bookings: mark notified: %w", err)
	}
	return nil
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{
		Bytes: [16]byte(id),
		Valid: true,
	}
}

func toPGTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t,
		Valid: true,
	}
}
