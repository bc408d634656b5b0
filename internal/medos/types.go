package medos

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Workspace is the clinic account the API key belongs to.
type Workspace struct {
	ID   FlexInt `json:"id"`
	Name string  `json:"name"`
}

// Doctor is a practitioner bookable at an address.
type Doctor struct {
	ID                 FlexInt   `json:"id"`
	Name               string    `json:"name"`
	Specialization     string    `json:"specialization,omitempty"`
	ConsultationCharge FlexFloat `json:"consultationCharge"`
}

// Address is a clinic location together with the doctors practising there.
type Address struct {
	ID      FlexInt  `json:"id"`
	Label   string   `json:"label"`
	Address string   `json:"address,omitempty"`
	City    string   `json:"city,omitempty"`
	Doctors []Doctor `json:"doctors"`
}

// AddressesResponse is returned by AppointmentService.GetAddresses.
type AddressesResponse struct {
	WorkspaceID FlexInt   `json:"workspaceId"`
	Addresses   []Address `json:"addresses"`
}

// Slot is a bookable interval for one doctor, address and date.
type Slot struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SameInterval reports whether two slots cover the same {start,end} pair.
func (s Slot) SameInterval(o Slot) bool {
	return s.Start.Equal(o.Start) && s.End.Equal(o.End)
}

// OTPRequest starts phone verification.
type OTPRequest struct {
	CountryCode string `json:"countryCode"`
	PhoneNumber string `json:"phoneNumber"`
}

// VerifyOTPRequest completes phone verification.
type VerifyOTPRequest struct {
	CountryCode string `json:"countryCode"`
	PhoneNumber string `json:"phoneNumber"`
	OTPCode     string `json:"otpCode"`
}

// PatientPayload carries demographic details for the appointment.
type PatientPayload struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	CountryCode string `json:"countryCode"`
	PhoneNumber string `json:"phoneNumber"`
	Age         int    `json:"age"`
	Gender      string `json:"gender"`
	BloodGroup  string `json:"bloodGroup,omitempty"`
}

// AddressPayload is the patient's postal address.
type AddressPayload struct {
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	Zipcode      string `json:"zipcode"`
	Landmark     string `json:"landmark,omitempty"`
}

// AppointmentRequest is the body of POST /appointments.
type AppointmentRequest struct {
	WorkspaceID        int64          `json:"workspaceId"`
	WorkspaceAddressID int64          `json:"workspaceAddressId"`
	DoctorID           int64          `json:"doctorId"`
	AppointmentDate    string         `json:"appointmentDate"`
	FromTime           string         `json:"fromTime"`
	ToTime             string         `json:"toTime"`
	SlotID             string         `json:"slotId,omitempty"`
	Mode               string         `json:"mode"`
	Type               string         `json:"type"`
	PaymentMode        string         `json:"paymentMode"`
	ConsultationCharge float64        `json:"consultationCharge"`
	PatientID          int64          `json:"patientId,omitempty"`
	Patient            PatientPayload `json:"patientPayload"`
	PatientAddress     AddressPayload `json:"patientAddress"`
	SessionPackID      int64          `json:"sessionPackId,omitempty"`
	PackageID          int64          `json:"packageId,omitempty"`
}

// AppointmentConfirmation is what the API returns for a created appointment.
type AppointmentConfirmation struct {
	ID              FlexString `json:"id"`
	Status          string     `json:"status"`
	AppointmentDate string     `json:"appointmentDate"`
	FromTime        string     `json:"fromTime"`
	ToTime          string     `json:"toTime"`
}

// FlexInt decodes integers sent as numbers, numeric strings, empty strings or null.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*f = 0
			return nil
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("medos: invalid integer %s", string(data))
	}
	*f = FlexInt(int64(v))
	return nil
}

// FlexFloat decodes decimals sent as numbers, numeric strings, empty strings or null.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("medos: invalid number %s", string(data))
	}
	*f = FlexFloat(v)
	return nil
}

// FlexString decodes identifiers sent either as strings or as numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("medos: invalid identifier %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}
