package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/medos-booking/internal/bookings"
	"github.com/wolfman30/medos-booking/pkg/logging"
)

// Service emails patients about confirmed appointments.
type Service struct {
	email      EmailSender
	clinicName string
	logger     *logging.Logger
}

// NewService creates a notification service. A nil sender disables email.
func NewService(email EmailSender, clinicName string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(clinicName) == "" {
		clinicName = defaultFromName
	}
	return &Service{email: email, clinicName: clinicName, logger: logger}
}

// NotifyConfirmation sends the booking confirmation to the patient.
func (s *Service) NotifyConfirmation(ctx context.Context, rec bookings.Record) error {
	if s.email == nil {
		s.logger.Debug("notify: email not configured, skipping confirmation", "appointment_id", rec.AppointmentID)
		return nil
	}
	to := strings.TrimSpace(rec.PatientEmail)
	if to == "" {
		return nil
	}

	msg := EmailMessage{
		To:      to,
		ToName:  rec.PatientName,
		Subject: fmt.Sprintf("Your appointment at %s is booked", s.clinicName),
		Body:    s.confirmationText(rec),
		HTML:    s.confirmationHTML(rec),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send confirmation: %w", err)
	}
	return nil
}

func (s *Service) confirmationText(rec bookings.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", greetingName(rec.PatientName))
	fmt.Fprintf(&b, "Your appointment at %s is confirmed.\n\n", s.clinicName)
	fmt.Fprintf(&b, "Date: %s\n", formatDate(rec.AppointmentDate))
	fmt.Fprintf(&b, "Time: %s - %s\n", rec.FromTime, rec.ToTime)
	if rec.PackageName != "" {
		fmt.Fprintf(&b, "Package: %s\n", rec.PackageName)
	}
	fmt.Fprintf(&b, "Reference: %s\n", rec.AppointmentID)
	b.WriteString("\nPlease arrive 10 minutes early.\n")
	return b.String()
}

func (s *Service) confirmationHTML(rec bookings.Record) string {
	packageRow := ""
	if rec.PackageName != "" {
		packageRow = fmt.Sprintf("<tr><td><strong>Package</strong></td><td>%s</td></tr>", html.EscapeString(rec.PackageName))
	}
	return fmt.Sprintf(`<p>Hi %s,</p>
<p>Your appointment at %s is confirmed.</p>
<table>
<tr><td><strong>Date</strong></td><td>%s</td></tr>
<tr><td><strong>Time</strong></td><td>%s - %s</td></tr>
%s
<tr><td><strong>Reference</strong></td><td>%s</td></tr>
</table>
<p>Please arrive 10 minutes early.</p>`,
		html.EscapeString(greetingName(rec.PatientName)),
		html.EscapeString(s.clinicName),
		html.EscapeString(formatDate(rec.AppointmentDate)),
		html.EscapeString(rec.FromTime), html.EscapeString(rec.ToTime),
		packageRow,
		html.EscapeString(rec.AppointmentID),
	)
}

func greetingName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

// formatDate renders YYYY-MM-DD as "Tuesday, March 10, 2026"; other inputs pass through.
func formatDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("Monday, January 2, 2006")
}

var _ bookings.Notifier = (*Service)(nil)
