package wizard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/medos-booking/internal/medos"
)

const unknownPackageName = "Unknown Package"

// Verification is the normalized outcome of a successful OTP verification.
type Verification struct {
	Patients     []Patient
	SessionPacks []SessionPack
	Packages     []Package
}

type verificationBody struct {
	SessionPacksDetails *struct {
		AssociatedPatients         []rawPatient     `json:"associatedPatients"`
		ActiveSessionPackResponses []rawSessionPack `json:"activeSessionPackResponses"`
		AllSessionPackResponses    []rawPackage     `json:"allSessionPackResponses"`
	} `json:"sessionPacksDetails"`
	AssociatedPatients []rawPatient `json:"associatedPatients"`
	Patients           []rawPatient `json:"patients"`
}

type rawPatient struct {
	ID          medos.FlexInt   `json:"id"`
	PatientID   medos.FlexInt   `json:"patientId"`
	Name        string          `json:"name"`
	FirstName   string          `json:"firstName"`
	LastName    string          `json:"lastName"`
	Age         medos.FlexInt   `json:"age"`
	Gender      string          `json:"gender"`
	Email       string          `json:"email"`
	BloodGroup  string          `json:"bloodGroup"`
	CountryCode string          `json:"countryCode"`
	PhoneNumber string          `json:"phoneNumber"`
	Address     json.RawMessage `json:"address"`
	City        string          `json:"city"`
	State       string          `json:"state"`
	Country     string          `json:"country"`
	Zipcode     string          `json:"zipcode"`
	Landmark    string          `json:"landmark"`
}

type rawPatientAddress struct {
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	Zipcode      string `json:"zipcode"`
	Landmark     string `json:"landmark"`
}

type rawSessionPack struct {
	ID                       medos.FlexInt `json:"id"`
	SessionPackID            medos.FlexInt `json:"sessionPackId"`
	Name                     string        `json:"name"`
	PackageName              string        `json:"packageName"`
	TotalSessions            medos.FlexInt `json:"totalSessions"`
	RemainingSessions        medos.FlexInt `json:"remainingSessions"`
	ExpiryDate               string        `json:"expiryDate"`
	DoctorID                 medos.FlexInt `json:"doctorId"`
	DoctorName               string        `json:"doctorName"`
	AllowedConsultationModes []string      `json:"allowedConsultationModes"`
}

type rawPackage struct {
	ID                       medos.FlexInt   `json:"id"`
	Name                     string          `json:"name"`
	PackageName              string          `json:"packageName"`
	TotalSessions            medos.FlexInt   `json:"totalSessions"`
	Price                    medos.FlexFloat `json:"price"`
	ValidityDays             medos.FlexInt   `json:"validityDays"`
	Description              string          `json:"description"`
	DoctorID                 medos.FlexInt   `json:"doctorId"`
	DoctorName               string          `json:"doctorName"`
	AllowedConsultationModes []string        `json:"allowedConsultationModes"`
}

// NormalizeVerification decodes the verify-otp response.
//
// Patients are read from the first non-empty of
// sessionPacksDetails.associatedPatients, associatedPatients and patients.
// Owned packs come from sessionPacksDetails.activeSessionPackResponses and
// purchasable packages from sessionPacksDetails.allSessionPackResponses.
// Missing names become "Unknown Package". An empty body yields empty lists.
func NormalizeVerification(raw json.RawMessage) (Verification, error) {
	out := Verification{
		Patients:     []Patient{},
		SessionPacks: []SessionPack{},
		Packages:     []Package{},
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if raw[0] != '{' {
		return out, fmt.Errorf("normalize verification: expected object, got %.20s", string(raw))
	}

	var body verificationBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return out, fmt.Errorf("normalize verification: %w", err)
	}

	var patients []rawPatient
	switch {
	case body.SessionPacksDetails != nil && len(body.SessionPacksDetails.AssociatedPatients) > 0:
		patients = body.SessionPacksDetails.AssociatedPatients
	case len(body.AssociatedPatients) > 0:
		patients = body.AssociatedPatients
	default:
		patients = body.Patients
	}
	for _, p := range patients {
		out.Patients = append(out.Patients, p.normalize())
	}

	if body.SessionPacksDetails != nil {
		for _, sp := range body.SessionPacksDetails.ActiveSessionPackResponses {
			out.SessionPacks = append(out.SessionPacks, sp.normalize())
		}
		for _, pkg := range body.SessionPacksDetails.AllSessionPackResponses {
			out.Packages = append(out.Packages, pkg.normalize())
		}
	}
	return out, nil
}

func (p rawPatient) normalize() Patient {
	id := int64(p.ID)
	if id == 0 {
		id = int64(p.PatientID)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = joinNonEmpty(" ", p.FirstName, p.LastName)
	}
	out := Patient{
		ID:          id,
		Name:        name,
		Age:         int(p.Age),
		Gender:      normalizeGender(p.Gender),
		Email:       strings.TrimSpace(p.Email),
		BloodGroup:  bloodGroupLabel(p.BloodGroup),
		CountryCode: p.CountryCode,
		PhoneNumber: p.PhoneNumber,
		City:        p.City,
		State:       p.State,
		Country:     p.Country,
		Zipcode:     p.Zipcode,
		Landmark:    p.Landmark,
	}

	addr := bytes.TrimSpace(p.Address)
	switch {
	case len(addr) == 0 || string(addr) == "null":
	case addr[0] == '"':
		_ = json.Unmarshal(addr, &out.Address)
	case addr[0] == '{':
		var nested rawPatientAddress
		if err := json.Unmarshal(addr, &nested); err == nil {
			out.Address = nested.AddressLine1
			out.City = firstNonEmpty(out.City, nested.City)
			out.State = firstNonEmpty(out.State, nested.State)
			out.Country = firstNonEmpty(out.Country, nested.Country)
			out.Zipcode = firstNonEmpty(out.Zipcode, nested.Zipcode)
			out.Landmark = firstNonEmpty(out.Landmark, nested.Landmark)
		}
	}
	return out
}

func (sp rawSessionPack) normalize() SessionPack {
	id := int64(sp.ID)
	if id == 0 {
		id = int64(sp.SessionPackID)
	}
	return SessionPack{
		ID:                       id,
		Name:                     packageName(sp.Name, sp.PackageName),
		TotalSessions:            int(sp.TotalSessions),
		RemainingSessions:        int(sp.RemainingSessions),
		ExpiryDate:               sp.ExpiryDate,
		DoctorID:                 int64(sp.DoctorID),
		DoctorName:               sp.DoctorName,
		AllowedConsultationModes: normalizeModes(sp.AllowedConsultationModes),
	}
}

func (p rawPackage) normalize() Package {
	modes := normalizeModes(p.AllowedConsultationModes)
	return Package{
		ID:                       int64(p.ID),
		Name:                     packageName(p.Name, p.PackageName),
		TotalSessions:            int(p.TotalSessions),
		Price:                    float64(p.Price),
		ValidityDays:             int(p.ValidityDays),
		Description:              p.Description,
		DoctorID:                 int64(p.DoctorID),
		DoctorName:               p.DoctorName,
		AllowedConsultationModes: modes,
		ApplicableOnline:         containsMode(modes, ModeOnline),
		ApplicableOffline:        containsMode(modes, ModeOffline),
	}
}

func packageName(names ...string) string {
	if name := firstNonEmpty(names...); name != "" {
		return name
	}
	return unknownPackageName
}

func normalizeModes(modes []string) []string {
	out := make([]string, 0, len(modes))
	for _, m := range modes {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func containsMode(modes []string, mode ConsultationMode) bool {
	for _, m := range modes {
		if m == string(mode) {
			return true
		}
	}
	return false
}

// allowsMode treats an empty list as unrestricted.
func allowsMode(modes []string, mode ConsultationMode) bool {
	return len(modes) == 0 || containsMode(modes, mode)
}

// bloodGroupLabel turns either "A+" or "A_POSITIVE" into the display form.
func bloodGroupLabel(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if _, ok := bloodGroupEnums[v]; ok {
		return v
	}
	for label, enum := range bloodGroupEnums {
		if enum == v {
			return label
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
