package wizard

import (
	"errors"
	"fmt"
)

// ErrTransitionBlocked is returned when a transition is not allowed from the
// current step. It is never surfaced to the user.
var ErrTransitionBlocked = errors.New("wizard: transition blocked")

// ValidationError is a guard failure that should be shown to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Effect is work the caller must perform after a transition.
type Effect int

const (
	// EffectLoadSlots asks for slots of the selected doctor, address and date.
	EffectLoadSlots Effect = iota + 1
)

type transition struct {
	guard   func(Session) error
	advance func(Session) (Session, []Effect)
	back    func(Session) (Session, error)
}

var transitions map[Step]transition

func init() {
	transitions = map[Step]transition{
		StepPhoneVerification: {
			guard:   guardVerified,
			advance: advanceFromVerification,
			back:    blockedBack,
		},
		StepBookingOption: {
			guard:   guardBookingOption,
			advance: advanceFromBookingOption,
			back:    moveBack(StepPhoneVerification),
		},
		StepLocationDoctor: {
			guard:   guardLocationDoctor,
			advance: advanceFromLocationDoctor,
			back:    backFromLocationDoctor,
		},
		StepDateSlot: {
			guard:   guardSlot,
			advance: moveTo(StepPatientSelection),
			back:    moveBack(StepLocationDoctor),
		},
		StepPatientSelection: {
			advance: advanceFromPatientSelection,
			back:    moveBack(StepDateSlot),
		},
		StepPatientDetails: {
			guard:   func(s Session) error { return validatePatientForm(s.Patient) },
			advance: moveTo(StepSummary),
			back:    moveBack(StepPatientSelection),
		},
		StepSummary: {
			back: backFromSummary,
		},
		StepSuccess: {
			back: blockedBack,
		},
	}
}

// Next computes the forward transition from s. On a guard failure s is
// returned unchanged together with the error.
func Next(s Session) (Session, []Effect, error) {
	t, ok := transitions[s.Step]
	if !ok || t.advance == nil {
		return s, nil, ErrTransitionBlocked
	}
	if t.guard != nil {
		if err := t.guard(s); err != nil {
			return s, nil, err
		}
	}
	next, effects := t.advance(s)
	return next, effects, nil
}

// Back computes the backward transition from s.
func Back(s Session) (Session, error) {
	t, ok := transitions[s.Step]
	if !ok || t.back == nil {
		return s, ErrTransitionBlocked
	}
	return t.back(s)
}

func moveTo(step Step) func(Session) (Session, []Effect) {
	return func(s Session) (Session, []Effect) {
		s.Step = step
		return s, nil
	}
}

func moveBack(step Step) func(Session) (Session, error) {
	return func(s Session) (Session, error) {
		s.Step = step
		return s, nil
	}
}

func blockedBack(s Session) (Session, error) {
	return s, ErrTransitionBlocked
}

func guardVerified(s Session) error {
	if !s.OTPVerified {
		return ErrTransitionBlocked
	}
	return nil
}

func advanceFromVerification(s Session) (Session, []Effect) {
	if s.hasPackages() {
		s.Step = StepBookingOption
		return s, nil
	}
	s.BookingOption = OptionNewAppointment
	s.BookingType = BookingOneTime
	s.Step = StepLocationDoctor
	return s, nil
}

func guardBookingOption(s Session) error {
	switch s.BookingOption {
	case OptionNewAppointment:
		return nil
	case OptionExplorePackages:
		if !s.hasPackages() {
			return invalid("bookingOptionType", "No packages are available right now.")
		}
		return nil
	case OptionSessionPack:
		switch {
		case len(s.UserSessionPacks) == 0:
			return invalid("selectedSessionPack", "You have no active session packs.")
		case s.SelectedSessionPack == 0 && len(s.UserSessionPacks) > 1:
			return invalid("selectedSessionPack", "Please select a session pack.")
		case s.SelectedSessionPack != 0:
			if _, ok := s.sessionPack(s.SelectedSessionPack); !ok {
				return invalid("selectedSessionPack", "Please select a session pack.")
			}
		}
		return nil
	default:
		return invalid("bookingOptionType", "Please choose how you would like to book.")
	}
}

func advanceFromBookingOption(s Session) (Session, []Effect) {
	s.Step = StepLocationDoctor
	switch s.BookingOption {
	case OptionExplorePackages:
		s.ShowPackageExplorer = true
		s.SelectedSessionPack = 0
	case OptionSessionPack:
		if s.SelectedSessionPack == 0 {
			s.SelectedSessionPack = s.UserSessionPacks[0].ID
		}
		s.BookingType = BookingUseActivePackage
		s.SelectedNewPackage = 0
		s.ShowPackageExplorer = false
		refreshCharge(&s)
	default:
		s.BookingType = BookingOneTime
		s.SelectedSessionPack = 0
		s.SelectedNewPackage = 0
		s.ShowPackageExplorer = false
		refreshCharge(&s)
	}
	return s, nil
}

func guardLocationDoctor(s Session) error {
	if s.ShowPackageExplorer {
		if s.SelectedNewPackage == 0 {
			return invalid("selectedNewPackage", "Please select a package to continue.")
		}
		if _, ok := s.newPackage(s.SelectedNewPackage); !ok {
			return invalid("selectedNewPackage", "Please select a package to continue.")
		}
		return nil
	}

	switch {
	case len(s.Addresses) == 0:
		return invalid("selectedAddress", msgNoAddresses)
	case len(s.Addresses) > 1 && s.SelectedAddress == 0:
		return invalid("selectedAddress", "Please select a location.")
	}
	doctors := s.Doctors
	if s.SelectedAddress == 0 {
		doctors = s.AddressDoctors[s.Addresses[0].ID]
	}
	switch {
	case len(doctors) == 0:
		return invalid("selectedDoctor", msgNoDoctorsAtAddress)
	case len(doctors) > 1 && s.SelectedDoctor == 0:
		return invalid("selectedDoctor", "Please select a doctor.")
	}

	if s.BookingType == BookingUseActivePackage {
		pack, ok := s.sessionPack(s.SelectedSessionPack)
		doctorID := s.SelectedDoctor
		if doctorID == 0 {
			doctorID = doctors[0].ID
		}
		if ok && pack.DoctorID != 0 && pack.DoctorID != doctorID {
			name := pack.DoctorName
			if name == "" {
				name = "the doctor it was purchased for"
			}
			return invalid("selectedDoctor", "This session pack can only be used with %s.", name)
		}
	}
	return nil
}

func advanceFromLocationDoctor(s Session) (Session, []Effect) {
	if s.ShowPackageExplorer {
		s.ShowPackageExplorer = false
		s.BookingType = BookingPackagePurchase
		s.ConsultationCharge = 0
		return s, nil
	}

	if s.SelectedAddress == 0 {
		_ = applyAddress(&s, s.Addresses[0].ID)
	}
	if s.SelectedDoctor == 0 && len(s.Doctors) > 0 {
		_ = applyDoctor(&s, s.Doctors[0].ID)
	}
	s.Step = StepDateSlot
	if s.SelectedDate != "" {
		return s, []Effect{EffectLoadSlots}
	}
	return s, nil
}

func backFromLocationDoctor(s Session) (Session, error) {
	if s.ShowPackageExplorer {
		s.ShowPackageExplorer = false
		s.SelectedNewPackage = 0
		s.Step = StepBookingOption
		return s, nil
	}
	if s.BookingType == BookingPackagePurchase {
		// Leaving a finished package choice; the booking option step decides again.
		s.BookingType = BookingOneTime
		s.SelectedNewPackage = 0
		refreshCharge(&s)
	}
	if s.hasPackages() {
		s.Step = StepBookingOption
	} else {
		s.Step = StepPhoneVerification
	}
	return s, nil
}

func guardSlot(s Session) error {
	if s.SelectedSlot == nil || s.slotIndex(*s.SelectedSlot) < 0 {
		return invalid("selectedSlot", "Please select a time slot.")
	}
	return nil
}

func advanceFromPatientSelection(s Session) (Session, []Effect) {
	if s.SelectedPatientID != 0 {
		s.Step = StepSummary
	} else {
		s.Step = StepPatientDetails
	}
	return s, nil
}

func backFromSummary(s Session) (Session, error) {
	if s.SelectedPatientID != 0 {
		s.Step = StepPatientSelection
	} else {
		s.Step = StepPatientDetails
	}
	return s, nil
}
