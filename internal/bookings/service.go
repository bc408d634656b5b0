package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medos-booking/internal/wizard"
	"github.com/wolfman30/medos-booking/pkg/logging"
)

var bookingsTracer = otel.Tracer("medos.internal.bookings")

// Notifier tells the patient about a confirmed appointment.
type Notifier interface {
	NotifyConfirmation(ctx context.Context, rec Record) error
}

// Service records confirmed bookings and notifies patients.
type Service struct {
	repo     *Repository
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

// NewService constructs a bookings service. repo and notifier may be nil when
// no database or email provider is configured.
func NewService(repo *Repository, notifier Notifier, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

// ConfirmBooking stores the confirmation once and emails the patient the
// first time it is seen.
func (s *Service) ConfirmBooking(ctx context.Context, session wizard.Session, conf wizard.Confirmation) (*Record, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("medos.session_id", session.ID),
		attribute.String("medos.appointment_id", conf.AppointmentID),
		attribute.String("medos.booking_type", string(conf.BookingType)),
	)

	rec := RecordFrom(session, conf)
	if rec.AppointmentID == "" {
		s.logger.Warn("booking confirmed without an appointment id", "session_id", rec.SessionID, "dedupe_key", rec.DedupeKey)
	}
	if s.repo != nil {
		inserted, err := s.repo.Insert(ctx, rec)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !inserted {
			s.logger.Info("booking already recorded", "dedupe_key", rec.DedupeKey, "session_id", rec.SessionID)
			existing, err := s.repo.GetByDedupeKey(ctx, rec.WorkspaceID, rec.DedupeKey)
			if err != nil {
				span.RecordError(err)
				s.logger.Warn("load recorded booking failed", "error", err, "dedupe_key", rec.DedupeKey)
				return &rec, nil
			}
			return existing, nil
		}
	}
	s.logger.Info("booking confirmed",
		"booking_id", rec.ID.String(),
		"appointment_id", rec.AppointmentID,
		"session_id", rec.SessionID,
		"booking_type", rec.BookingType,
	)

	if s.notifier == nil || rec.PatientEmail == "" {
		return &rec, nil
	}
	if err := s.notifier.NotifyConfirmation(ctx, rec); err != nil {
		span.RecordError(err)
		s.logger.Warn("confirmation email failed", "error", err, "appointment_id", rec.AppointmentID)
		return &rec, nil
	}
	now := s.now().UTC()
	rec.NotifiedAt = &now
	if s.repo != nil {
		if err := s.repo.MarkNotified(ctx, rec.ID, now); err != nil {
			span.RecordError(err)
			s.logger.Warn("mark notified failed", "error", err, "booking_id", rec.ID.String())
		}
	}
	return &rec, nil
}

// RecordFrom flattens a session and its confirmation into a ledger row.
func RecordFrom(session wizard.Session, conf wizard.Confirmation) Record {
	return Record{
		ID:              uuid.New(),
		SessionID:       session.ID,
		AppointmentID:   strings.TrimSpace(conf.AppointmentID),
		DedupeKey:       DedupeKey(session, conf),
		WorkspaceID:     session.WorkspaceID,
		AddressID:       session.SelectedAddress,
		DoctorID:        session.SelectedDoctor,
		BookingType:     string(conf.BookingType),
		Status:          conf.Status,
		AppointmentDate: conf.Date,
		FromTime:        conf.FromTime,
		ToTime:          conf.ToTime,
		PatientName:     conf.PatientName,
		PatientEmail:    conf.PatientEmail,
		PatientPhone:    conf.PatientPhone,
		PackageName:     conf.PackageName,
	}
}

// DedupeKey identifies a booking in the ledger. Without an appointment id
// the session and slot stand in, so distinct bookings never collide.
func DedupeKey(session wizard.Session, conf wizard.Confirmation) string {
	if id := strings.TrimSpace(conf.AppointmentID); id != "" {
		return id
	}
	return fmt.Sprintf("session:%s:%s:%s-%s", session.ID, conf.Date, conf.FromTime, conf.ToTime)
}
