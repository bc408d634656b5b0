package wizard

import (
	"strings"

	"github.com/wolfman30/medos-booking/internal/medos"
)

const (
	msgNoAddresses        = "No clinic locations are available for booking right now."
	msgNoDoctorsAtAddress = "No doctors are available at this location. Please choose a different location."
	msgNoDoctors          = "No doctors are available for booking right now."
)

// applyCatalogue replaces the address and doctor catalogue with resp and
// auto-selects a lone address and a lone doctor. It returns the message to
// surface when nothing is bookable.
func applyCatalogue(s *Session, resp *medos.AddressesResponse) string {
	s.WorkspaceID = int64(resp.WorkspaceID)
	s.Addresses = make([]Address, 0, len(resp.Addresses))
	s.AddressDoctors = make(map[int64][]Doctor, len(resp.Addresses))
	s.Doctors = nil
	s.SelectedAddress = 0
	s.SelectedDoctor = 0
	s.ConsultationCharge = 0

	total := 0
	for _, a := range resp.Addresses {
		id := int64(a.ID)
		s.Addresses = append(s.Addresses, Address{
			ID:     id,
			Label:  addressLabel(a),
			Detail: joinNonEmpty(", ", a.Address, a.City),
		})
		doctors := make([]Doctor, 0, len(a.Doctors))
		for _, d := range a.Doctors {
			doctors = append(doctors, Doctor{
				ID:                 int64(d.ID),
				Name:               d.Name,
				Specialization:     d.Specialization,
				ConsultationCharge: float64(d.ConsultationCharge),
			})
		}
		s.AddressDoctors[id] = doctors
		total += len(doctors)
	}

	switch {
	case len(s.Addresses) == 0:
		return msgNoAddresses
	case total == 0:
		return msgNoDoctors
	case len(s.Addresses) == 1:
		if err := applyAddress(s, s.Addresses[0].ID); err != nil {
			return err.Error()
		}
	}
	return ""
}

// applyAddress selects an address, clears the dependent doctor, slot and
// charge, and auto-selects a lone doctor.
func applyAddress(s *Session, id int64) error {
	if _, ok := s.address(id); !ok {
		return invalid("selectedAddress", "Please select a valid location.")
	}
	s.SelectedAddress = id
	s.Doctors = append([]Doctor(nil), s.AddressDoctors[id]...)
	s.SelectedDoctor = 0
	s.ConsultationCharge = 0
	s.Slots = nil
	s.SelectedSlot = nil

	switch len(s.Doctors) {
	case 0:
		return invalid("selectedDoctor", msgNoDoctorsAtAddress)
	case 1:
		return applyDoctor(s, s.Doctors[0].ID)
	}
	return nil
}

// applyDoctor selects a doctor at the current address and takes over the
// doctor's consultation charge.
func applyDoctor(s *Session, id int64) error {
	d, ok := s.doctor(id)
	if !ok {
		return invalid("selectedDoctor", "Please select a valid doctor.")
	}
	if s.SelectedDoctor != id {
		s.Slots = nil
		s.SelectedSlot = nil
	}
	s.SelectedDoctor = id
	s.ConsultationCharge = chargeFor(*s, d)
	return nil
}

// refreshCharge re-derives the charge after the booking type changed under
// an already selected doctor.
func refreshCharge(s *Session) {
	d, ok := s.doctor(s.SelectedDoctor)
	if !ok {
		s.ConsultationCharge = 0
		return
	}
	s.ConsultationCharge = chargeFor(*s, d)
}

// chargeFor is zero for package purchases; the package price covers the visit.
func chargeFor(s Session, d Doctor) float64 {
	if s.BookingType == BookingPackagePurchase {
		return 0
	}
	return d.ConsultationCharge
}

func addressLabel(a medos.Address) string {
	if label := strings.TrimSpace(a.Label); label != "" {
		return label
	}
	if detail := joinNonEmpty(", ", a.Address, a.City); detail != "" {
		return detail
	}
	return "Clinic"
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
