package wizard

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medos-booking/internal/medos"
)

const msgSubmitFailed = "Failed to book appointment. Please try again."

// Submit books the appointment from the summary step. Validation failures
// never reach the network.
func (w *Wizard) Submit(ctx context.Context) error {
	w.mu.Lock()
	if w.s.Step != StepSummary {
		w.mu.Unlock()
		return ErrTransitionBlocked
	}
	if w.s.Loading {
		w.mu.Unlock()
		return ErrBusy
	}
	w.s.Error = ""
	bookingType := string(w.s.BookingType)
	req, err := BuildAppointmentRequest(w.s, w.loc)
	if err != nil {
		err = w.setError(err)
		w.mu.Unlock()
		w.observer.ObserveSubmission(bookingType, "invalid")
		return err
	}
	snapshot := w.s
	w.acquire()
	w.mu.Unlock()

	ctx, span := w.tracer.Start(ctx, "wizard.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("medos.booking_type", req.Type),
		attribute.Int64("medos.doctor_id", req.DoctorID),
		attribute.String("medos.appointment_date", req.AppointmentDate),
	)

	resp, err := w.svc.Appointments.CreateAppointment(ctx, req)

	w.mu.Lock()
	w.release()
	if err != nil {
		span.RecordError(err)
		w.s.Error = userMessage(err, msgSubmitFailed)
		w.mu.Unlock()
		w.observer.ObserveSubmission(bookingType, "error")
		w.logger.Error("appointment booking failed", "error", err, "booking_type", bookingType)
		w.reportError(err)
		return err
	}
	conf := confirmationFor(snapshot, req, resp)
	w.s.Appointment = &conf
	w.s.Step = StepSuccess
	final := w.s
	w.mu.Unlock()

	w.observer.ObserveSubmission(bookingType, "ok")
	w.observer.ObserveStep(StepSummary.String(), StepSuccess.String())
	w.logger.Info("appointment booked",
		"appointment_id", conf.AppointmentID,
		"booking_type", bookingType,
		"doctor_id", req.DoctorID,
		"date", req.AppointmentDate,
	)
	if w.onSuccess != nil {
		w.onSuccess(final, conf)
	}
	return nil
}

// BuildAppointmentRequest validates s and assembles the create-appointment
// payload. Missing fields are reported together.
func BuildAppointmentRequest(s Session, loc *time.Location) (medos.AppointmentRequest, error) {
	if loc == nil {
		loc = time.UTC
	}
	if missing := missingForSubmission(s); len(missing) > 0 {
		return medos.AppointmentRequest{}, invalid("", "Please complete the following before booking: %s.", strings.Join(missing, ", "))
	}
	if err := validatePatientValues(s.Patient); err != nil {
		return medos.AppointmentRequest{}, err
	}
	if s.slotIndex(*s.SelectedSlot) < 0 {
		return medos.AppointmentRequest{}, invalid("selectedSlot", "The selected time slot is no longer available. Please choose another.")
	}
	if err := modeAllowed(s, s.ConsultationMode); err != nil {
		return medos.AppointmentRequest{}, err
	}
	if s.BookingType == BookingUseActivePackage {
		pack, ok := s.sessionPack(s.SelectedSessionPack)
		if !ok {
			return medos.AppointmentRequest{}, invalid("selectedSessionPack", "Please select a session pack.")
		}
		if pack.TotalSessions > 0 && pack.RemainingSessions <= 0 {
			return medos.AppointmentRequest{}, invalid("selectedSessionPack", "This session pack has no remaining sessions.")
		}
	}

	age := 0
	if strings.TrimSpace(s.Patient.Age) != "" {
		age, _ = parseAge(s.Patient.Age)
	}
	bloodGroup, _ := BloodGroupEnum(s.Patient.BloodGroup)
	first, last := splitName(s.Patient.Name)
	slot := *s.SelectedSlot

	req := medos.AppointmentRequest{
		WorkspaceID:        s.WorkspaceID,
		WorkspaceAddressID: s.SelectedAddress,
		DoctorID:           s.SelectedDoctor,
		AppointmentDate:    s.SelectedDate,
		FromTime:           slot.Start.In(loc).Format("15:04"),
		ToTime:             slot.End.In(loc).Format("15:04"),
		SlotID:             slot.ID,
		Mode:               string(s.ConsultationMode),
		Type:               string(s.BookingType),
		PaymentMode:        string(s.PaymentMode),
		ConsultationCharge: s.ConsultationCharge,
		PatientID:          s.SelectedPatientID,
		Patient: medos.PatientPayload{
			FirstName:   first,
			LastName:    last,
			Email:       strings.TrimSpace(s.Patient.Email),
			CountryCode: s.CountryCode,
			PhoneNumber: NormalizePhone(s.Phone),
			Age:         age,
			Gender:      normalizeGender(s.Patient.Gender),
			BloodGroup:  bloodGroup,
		},
		PatientAddress: medos.AddressPayload{
			AddressLine1: strings.TrimSpace(s.Patient.Address),
			City:         strings.TrimSpace(s.Patient.City),
			State:        strings.TrimSpace(s.Patient.State),
			Country:      strings.TrimSpace(s.Patient.Country),
			Zipcode:      strings.TrimSpace(s.Patient.Zipcode),
			Landmark:     strings.TrimSpace(s.Patient.Landmark),
		},
	}
	switch s.BookingType {
	case BookingUseActivePackage:
		req.SessionPackID = s.SelectedSessionPack
	case BookingPackagePurchase:
		req.PackageID = s.SelectedNewPackage
		req.ConsultationCharge = 0
	}
	return req, nil
}

func missingForSubmission(s Session) []string {
	var missing []string
	add := func(ok bool, label string) {
		if !ok {
			missing = append(missing, label)
		}
	}
	add(s.OTPVerified, "phone verification")
	add(s.WorkspaceID != 0, "workspace")
	add(s.SelectedAddress != 0, "location")
	add(s.SelectedDoctor != 0, "doctor")
	add(s.SelectedDate != "", "date")
	add(s.SelectedSlot != nil, "time slot")

	if s.SelectedPatientID != 0 {
		add(strings.TrimSpace(s.Patient.Name) != "", "name")
	} else {
		missing = append(missing, missingLabels(patientFormRequired(s.Patient))...)
	}

	switch s.BookingType {
	case BookingUseActivePackage:
		add(s.SelectedSessionPack != 0, "session pack")
	case BookingPackagePurchase:
		add(s.SelectedNewPackage != 0, "package")
	}
	return missing
}

// splitName takes the first word as the first name and the rest as the last name.
func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func confirmationFor(s Session, req medos.AppointmentRequest, resp *medos.AppointmentConfirmation) Confirmation {
	conf := Confirmation{
		BookingType:  s.BookingType,
		Date:         req.AppointmentDate,
		FromTime:     req.FromTime,
		ToTime:       req.ToTime,
		SlotStart:    s.SelectedSlot.Start,
		SlotEnd:      s.SelectedSlot.End,
		PatientName:  strings.TrimSpace(s.Patient.Name),
		PatientEmail: req.Patient.Email,
		PatientPhone: req.Patient.CountryCode + req.Patient.PhoneNumber,
	}
	if resp != nil {
		conf.AppointmentID = string(resp.ID)
		conf.Status = resp.Status
		conf.Date = firstNonEmpty(resp.AppointmentDate, conf.Date)
		conf.FromTime = firstNonEmpty(resp.FromTime, conf.FromTime)
		conf.ToTime = firstNonEmpty(resp.ToTime, conf.ToTime)
	}
	if conf.Status == "" {
		conf.Status = "BOOKED"
	}
	if d, ok := s.doctor(s.SelectedDoctor); ok {
		conf.DoctorName = d.Name
	}
	if a, ok := s.address(s.SelectedAddress); ok {
		conf.AddressLabel = a.Label
	}
	switch s.BookingType {
	case BookingUseActivePackage:
		if p, ok := s.sessionPack(s.SelectedSessionPack); ok {
			conf.PackageName = p.Name
		}
	case BookingPackagePurchase:
		if p, ok := s.newPackage(s.SelectedNewPackage); ok {
			conf.PackageName = p.Name
		}
	}
	return conf
}
