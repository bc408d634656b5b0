// Package wizard implements the multi-step appointment booking flow: a single
// booking session record, the transition table that moves it between steps,
// input validation, and orchestration of the Medos services.
package wizard

import (
	"time"

	"github.com/wolfman30/medos-booking/internal/medos"
)

// Step is the wizard position.
type Step int

const (
	StepPhoneVerification Step = iota
	StepBookingOption
	StepLocationDoctor
	StepDateSlot
	StepPatientSelection
	StepPatientDetails
	StepSummary
	StepSuccess
)

var stepNames = [...]string{
	"phone_verification",
	"booking_option",
	"location_doctor",
	"date_slot",
	"patient_selection",
	"patient_details",
	"summary",
	"success",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[s]
}

// BookingOption is the choice made on the booking-option step.
type BookingOption string

const (
	OptionSessionPack     BookingOption = "session-pack"
	OptionNewAppointment  BookingOption = "new-appointment"
	OptionExplorePackages BookingOption = "explore-packages"
)

// BookingType is sent to the API and decides which package ids travel with the payload.
type BookingType string

const (
	BookingOneTime          BookingType = "ONE_TIME_APPOINTMENT"
	BookingPackagePurchase  BookingType = "PACKAGE_PURCHASE"
	BookingUseActivePackage BookingType = "USE_ACTIVE_PACKAGE"
)

// ConsultationMode is where the consultation happens.
type ConsultationMode string

const (
	ModeOnline  ConsultationMode = "ONLINE"
	ModeOffline ConsultationMode = "OFFLINE"
)

// PaymentMode is how a one-time appointment is paid.
type PaymentMode string

const (
	PaymentCash   PaymentMode = "CASH"
	PaymentOnline PaymentMode = "ONLINE"
)

// OTPState is derived from the OTP flags on the session.
type OTPState string

const (
	OTPNotSent   OTPState = "NOT_SENT"
	OTPSending   OTPState = "SENDING"
	OTPSent      OTPState = "SENT"
	OTPVerifying OTPState = "VERIFYING"
	OTPVerified  OTPState = "VERIFIED"
)

// Slot is a bookable interval.
type Slot = medos.Slot

// Address is a clinic location.
type Address struct {
	ID     int64  `json:"id"`
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
}

// Doctor is a practitioner at an address.
type Doctor struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Specialization     string  `json:"specialization,omitempty"`
	ConsultationCharge float64 `json:"consultationCharge"`
}

// Patient is a patient already associated with the verified phone number.
type Patient struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Age         int    `json:"age,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Email       string `json:"email,omitempty"`
	BloodGroup  string `json:"bloodGroup,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country,omitempty"`
	Zipcode     string `json:"zipcode,omitempty"`
	Landmark    string `json:"landmark,omitempty"`
}

// SessionPack is a prepaid bundle the patient already owns.
type SessionPack struct {
	ID                       int64    `json:"id"`
	Name                     string   `json:"name"`
	TotalSessions            int      `json:"totalSessions"`
	RemainingSessions        int      `json:"remainingSessions"`
	ExpiryDate               string   `json:"expiryDate,omitempty"`
	DoctorID                 int64    `json:"doctorId,omitempty"`
	DoctorName               string   `json:"doctorName,omitempty"`
	AllowedConsultationModes []string `json:"allowedConsultationModes"`
}

// Package is a purchasable bundle.
type Package struct {
	ID                       int64    `json:"id"`
	Name                     string   `json:"name"`
	TotalSessions            int      `json:"totalSessions"`
	Price                    float64  `json:"price"`
	ValidityDays             int      `json:"validityDays,omitempty"`
	Description              string   `json:"description,omitempty"`
	DoctorID                 int64    `json:"doctorId,omitempty"`
	DoctorName               string   `json:"doctorName,omitempty"`
	AllowedConsultationModes []string `json:"allowedConsultationModes"`
	ApplicableOnline         bool     `json:"applicableOnline"`
	ApplicableOffline        bool     `json:"applicableOffline"`
}

// PatientForm holds the demographic fields typed on the patient details step.
type PatientForm struct {
	Name       string `json:"patientName"`
	Age        string `json:"patientAge"`
	Gender     string `json:"patientGender"`
	BloodGroup string `json:"bloodGroup"`
	Email      string `json:"patientEmail"`
	Address    string `json:"patientAddress"`
	City       string `json:"patientCity"`
	State      string `json:"patientState"`
	Country    string `json:"patientCountry"`
	Zipcode    string `json:"patientZipcode"`
	Landmark   string `json:"patientLandmark"`
}

// Confirmation describes a booked appointment.
type Confirmation struct {
	AppointmentID string      `json:"appointmentId"`
	Status        string      `json:"status"`
	BookingType   BookingType `json:"bookingType"`
	DoctorName    string      `json:"doctorName"`
	AddressLabel  string      `json:"addressLabel"`
	Date          string      `json:"date"`
	FromTime      string      `json:"fromTime"`
	ToTime        string      `json:"toTime"`
	SlotStart     time.Time   `json:"slotStart"`
	SlotEnd       time.Time   `json:"slotEnd"`
	PatientName   string      `json:"patientName"`
	PatientEmail  string      `json:"patientEmail"`
	PatientPhone  string      `json:"patientPhone"`
	PackageName   string      `json:"packageName,omitempty"`
}

// Session is the booking session record. Ids are 0 when unset.
type Session struct {
	ID   string `json:"id"`
	Step Step   `json:"step"`

	WorkspaceID     int64              `json:"workspaceId"`
	SelectedAddress int64              `json:"selectedAddress"`
	SelectedDoctor  int64              `json:"selectedDoctor"`
	Addresses       []Address          `json:"addresses"`
	AddressDoctors  map[int64][]Doctor `json:"addressDoctorsMap"`
	Doctors         []Doctor           `json:"doctors"`

	SelectedDate string `json:"selectedDate"`
	Slots        []Slot `json:"slots"`
	SelectedSlot *Slot  `json:"selectedSlot,omitempty"`

	CountryCode       string      `json:"countryCode"`
	Phone             string      `json:"patientPhone"`
	Patient           PatientForm `json:"patient"`
	SelectedPatientID int64       `json:"selectedPatientId"`

	OTPCode      string `json:"otpCode"`
	OTPSent      bool   `json:"otpSent"`
	OTPVerified  bool   `json:"otpVerified"`
	OTPSending   bool   `json:"otpSending"`
	OTPVerifying bool   `json:"otpVerifying"`

	VerifiedPatients    []Patient     `json:"verifiedPatients"`
	UserSessionPacks    []SessionPack `json:"userSessionPacks"`
	AvailablePackages   []Package     `json:"availablePackages"`
	SelectedSessionPack int64         `json:"selectedSessionPack"`
	SelectedNewPackage  int64         `json:"selectedNewPackage"`
	BookingOption       BookingOption `json:"bookingOptionType"`
	ShowPackageExplorer bool          `json:"showPackageExplorer"`

	BookingType        BookingType      `json:"bookingType"`
	PaymentMode        PaymentMode      `json:"paymentMode"`
	ConsultationMode   ConsultationMode `json:"consultationMode"`
	ConsultationCharge float64          `json:"consultationCharge"`

	Loading     bool          `json:"loading"`
	Error       string        `json:"error,omitempty"`
	Appointment *Confirmation `json:"appointment,omitempty"`

	inflight int
}

// NewSession returns a session with initial defaults.
func NewSession() Session {
	return Session{
		Step:             StepPhoneVerification,
		AddressDoctors:   map[int64][]Doctor{},
		CountryCode:      "+91",
		BookingType:      BookingOneTime,
		PaymentMode:      PaymentCash,
		ConsultationMode: ModeOffline,
	}
}

// OTPState derives the OTP sub-machine state from the flags.
func (s Session) OTPState() OTPState {
	switch {
	case s.OTPVerified:
		return OTPVerified
	case s.OTPVerifying:
		return OTPVerifying
	case s.OTPSending:
		return OTPSending
	case s.OTPSent:
		return OTPSent
	default:
		return OTPNotSent
	}
}

func (s Session) hasPackages() bool {
	return len(s.AvailablePackages) > 0
}

func (s Session) address(id int64) (Address, bool) {
	for _, a := range s.Addresses {
		if a.ID == id {
			return a, true
		}
	}
	return Address{}, false
}

func (s Session) doctor(id int64) (Doctor, bool) {
	for _, d := range s.Doctors {
		if d.ID == id {
			return d, true
		}
	}
	return Doctor{}, false
}

func (s Session) sessionPack(id int64) (SessionPack, bool) {
	for _, p := range s.UserSessionPacks {
		if p.ID == id {
			return p, true
		}
	}
	return SessionPack{}, false
}

func (s Session) newPackage(id int64) (Package, bool) {
	for _, p := range s.AvailablePackages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

func (s Session) verifiedPatient(id int64) (Patient, bool) {
	for _, p := range s.VerifiedPatients {
		if p.ID == id {
			return p, true
		}
	}
	return Patient{}, false
}

// slotIndex returns the position of a slot with the same interval, or -1.
func (s Session) slotIndex(slot Slot) int {
	for i, candidate := range s.Slots {
		if candidate.SameInterval(slot) {
			return i
		}
	}
	return -1
}
