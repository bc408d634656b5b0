package wizard

import (
	"strconv"
	"time"
)

var stepTitles = [...]string{
	"Verify Phone",
	"Booking Option",
	"Location & Doctor",
	"Date & Time",
	"Select Patient",
	"Patient Details",
	"Review & Confirm",
	"Booked",
}

// StepStatus marks a step in the progress indicator.
type StepStatus string

const (
	StepComplete StepStatus = "complete"
	StepCurrent  StepStatus = "current"
	StepUpcoming StepStatus = "upcoming"
)

// View is a render-ready projection of a session.
type View struct {
	Step     Step          `json:"step"`
	StepName string        `json:"stepName"`
	Title    string        `json:"title"`
	Progress []ProgressRow `json:"progress"`
	OTPState OTPState      `json:"otpState"`
	Loading  bool          `json:"loading"`
	Error    string        `json:"error,omitempty"`

	CanGoNext bool `json:"canGoNext"`
	CanGoBack bool `json:"canGoBack"`

	CountryCode string `json:"countryCode"`
	Phone       string `json:"patientPhone"`

	BookingOptions      []BookingOption `json:"bookingOptions,omitempty"`
	BookingOption       BookingOption   `json:"bookingOptionType,omitempty"`
	BookingType         BookingType     `json:"bookingType"`
	ShowPackageExplorer bool            `json:"showPackageExplorer"`
	SessionPacks        []SessionPack   `json:"sessionPacks,omitempty"`
	SelectedSessionPack int64           `json:"selectedSessionPack,omitempty"`
	Packages            []Package       `json:"packages,omitempty"`
	SelectedNewPackage  int64           `json:"selectedNewPackage,omitempty"`

	Addresses         []Address `json:"addresses,omitempty"`
	SelectedAddress   int64     `json:"selectedAddress,omitempty"`
	ShowAddressPicker bool      `json:"showAddressPicker"`
	Doctors           []Doctor  `json:"doctors,omitempty"`
	SelectedDoctor    int64     `json:"selectedDoctor,omitempty"`
	ShowDoctorPicker  bool      `json:"showDoctorPicker"`

	SelectedDate string          `json:"selectedDate,omitempty"`
	SlotGroups   []SlotGroupView `json:"slotGroups,omitempty"`

	Patients          []Patient   `json:"patients,omitempty"`
	SelectedPatientID int64       `json:"selectedPatientId,omitempty"`
	Patient           PatientForm `json:"patient"`
	BloodGroups       []string    `json:"bloodGroups"`
	Genders           []string    `json:"genders"`

	ConsultationMode ConsultationMode `json:"consultationMode"`
	PaymentMode      PaymentMode      `json:"paymentMode"`

	Summary     *Summary      `json:"summary,omitempty"`
	Appointment *Confirmation `json:"appointment,omitempty"`
}

// ProgressRow is one entry of the progress indicator.
type ProgressRow struct {
	Step   Step       `json:"step"`
	Title  string     `json:"title"`
	Status StepStatus `json:"status"`
}

// SlotGroupView is a period of slots formatted in clinic-local time.
type SlotGroupView struct {
	Period SlotPeriod `json:"period"`
	Slots  []SlotView `json:"slots"`
}

// SlotView is a slot formatted for display.
type SlotView struct {
	ID       string `json:"id"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Selected bool   `json:"selected"`
}

// Summary is shown on the review step.
type Summary struct {
	DoctorName       string           `json:"doctorName"`
	AddressLabel     string           `json:"addressLabel"`
	Date             string           `json:"date"`
	Time             string           `json:"time"`
	PatientName      string           `json:"patientName"`
	PatientPhone     string           `json:"patientPhone"`
	ConsultationMode ConsultationMode `json:"consultationMode"`
	PaymentMode      PaymentMode      `json:"paymentMode"`
	BookingType      BookingType      `json:"bookingType"`
	PackageName      string           `json:"packageName,omitempty"`
	Charge           string           `json:"charge"`
}

// Project derives the view for s. It has no side effects.
func Project(s Session, loc *time.Location) View {
	if loc == nil {
		loc = time.UTC
	}
	_, _, nextErr := Next(s)
	_, backErr := Back(s)

	v := View{
		Step:                s.Step,
		StepName:            s.Step.String(),
		Title:               stepTitle(s),
		Progress:            progress(s.Step),
		OTPState:            s.OTPState(),
		Loading:             s.Loading,
		Error:               s.Error,
		CanGoNext:           nextErr == nil && !s.Loading,
		CanGoBack:           backErr == nil,
		CountryCode:         s.CountryCode,
		Phone:               s.Phone,
		BookingOption:       s.BookingOption,
		BookingType:         s.BookingType,
		ShowPackageExplorer: s.ShowPackageExplorer,
		SessionPacks:        s.UserSessionPacks,
		SelectedSessionPack: s.SelectedSessionPack,
		Packages:            s.AvailablePackages,
		SelectedNewPackage:  s.SelectedNewPackage,
		Addresses:           s.Addresses,
		SelectedAddress:     s.SelectedAddress,
		ShowAddressPicker:   len(s.Addresses) > 1,
		Doctors:             s.Doctors,
		SelectedDoctor:      s.SelectedDoctor,
		ShowDoctorPicker:    len(s.Doctors) > 1,
		SelectedDate:        s.SelectedDate,
		Patients:            s.VerifiedPatients,
		SelectedPatientID:   s.SelectedPatientID,
		Patient:             s.Patient,
		BloodGroups:         BloodGroups,
		Genders:             Genders,
		ConsultationMode:    s.ConsultationMode,
		PaymentMode:         s.PaymentMode,
		Appointment:         s.Appointment,
	}

	if len(s.UserSessionPacks) > 0 {
		v.BookingOptions = append(v.BookingOptions, OptionSessionPack)
	}
	v.BookingOptions = append(v.BookingOptions, OptionNewAppointment)
	if s.hasPackages() {
		v.BookingOptions = append(v.BookingOptions, OptionExplorePackages)
	}

	for _, g := range GroupSlots(s.Slots, loc) {
		gv := SlotGroupView{Period: g.Period}
		for _, slot := range g.Slots {
			gv.Slots = append(gv.Slots, SlotView{
				ID:       slot.ID,
				Start:    slot.Start.In(loc).Format("15:04"),
				End:      slot.End.In(loc).Format("15:04"),
				Selected: s.SelectedSlot != nil && slot.SameInterval(*s.SelectedSlot),
			})
		}
		v.SlotGroups = append(v.SlotGroups, gv)
	}

	if s.Step == StepSummary {
		v.Summary = summarize(s, loc)
	}
	return v
}

func stepTitle(s Session) string {
	if s.Step == StepLocationDoctor && s.ShowPackageExplorer {
		return "Explore Packages"
	}
	if s.Step < 0 || int(s.Step) >= len(stepTitles) {
		return ""
	}
	return stepTitles[s.Step]
}

func progress(current Step) []ProgressRow {
	rows := make([]ProgressRow, 0, len(stepTitles))
	for i, title := range stepTitles {
		step := Step(i)
		status := StepUpcoming
		switch {
		case step < current:
			status = StepComplete
		case step == current:
			status = StepCurrent
		}
		rows = append(rows, ProgressRow{Step: step, Title: title, Status: status})
	}
	return rows
}

func summarize(s Session, loc *time.Location) *Summary {
	sum := &Summary{
		Date:             s.SelectedDate,
		PatientName:      s.Patient.Name,
		PatientPhone:     s.CountryCode + " " + NormalizePhone(s.Phone),
		ConsultationMode: s.ConsultationMode,
		PaymentMode:      s.PaymentMode,
		BookingType:      s.BookingType,
	}
	if d, ok := s.doctor(s.SelectedDoctor); ok {
		sum.DoctorName = d.Name
	}
	if a, ok := s.address(s.SelectedAddress); ok {
		sum.AddressLabel = a.Label
	}
	if s.SelectedSlot != nil {
		sum.Time = s.SelectedSlot.Start.In(loc).Format("15:04") + " - " + s.SelectedSlot.End.In(loc).Format("15:04")
	}

	charge := s.ConsultationCharge
	switch s.BookingType {
	case BookingUseActivePackage:
		if p, ok := s.sessionPack(s.SelectedSessionPack); ok {
			sum.PackageName = p.Name
		}
	case BookingPackagePurchase:
		charge = 0
		if p, ok := s.newPackage(s.SelectedNewPackage); ok {
			sum.PackageName = p.Name
			charge = p.Price
		}
	}
	sum.Charge = strconv.FormatFloat(charge, 'f', 2, 64)
	return sum
}
