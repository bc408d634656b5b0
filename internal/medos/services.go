package medos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WorkspaceService reads workspace details.
type WorkspaceService struct {
	client *Client
}

// NewWorkspaceService wraps client.
func NewWorkspaceService(client *Client) *WorkspaceService {
	return &WorkspaceService{client: client}
}

// Current returns the workspace the session belongs to.
func (s *WorkspaceService) Current(ctx context.Context) (*Workspace, error) {
	var ws Workspace
	if err := s.client.Get(ctx, "/workspaces/current", nil, &ws); err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return &ws, nil
}

// AppointmentService covers addresses, slots and appointment creation.
type AppointmentService struct {
	client *Client
	loc    *time.Location
}

// NewAppointmentService wraps client. Slot times without a zone are read in loc.
func NewAppointmentService(client *Client, loc *time.Location) *AppointmentService {
	if loc == nil {
		loc = time.UTC
	}
	return &AppointmentService{client: client, loc: loc}
}

// GetAddresses lists clinic addresses with their doctors.
func (s *AppointmentService) GetAddresses(ctx context.Context) (*AddressesResponse, error) {
	var resp AddressesResponse
	if err := s.client.Get(ctx, "/appointments/addresses", nil, &resp); err != nil {
		return nil, fmt.Errorf("get addresses: %w", err)
	}
	return &resp, nil
}

type rawSlot struct {
	ID    FlexString      `json:"id"`
	Start json.RawMessage `json:"start"`
	End   json.RawMessage `json:"end"`
}

// FetchSlots lists free slots for a doctor at an address on date (YYYY-MM-DD).
func (s *AppointmentService) FetchSlots(ctx context.Context, workspaceID, addressID, doctorID int64, date string) ([]Slot, error) {
	day, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("fetch slots: invalid date %q: %w", date, err)
	}

	q := url.Values{}
	q.Set("workspaceId", strconv.FormatInt(workspaceID, 10))
	q.Set("addressId", strconv.FormatInt(addressID, 10))
	q.Set("doctorId", strconv.FormatInt(doctorID, 10))
	q.Set("date", date)

	var raw json.RawMessage
	if err := s.client.Get(ctx, "/appointments/slots", q, &raw); err != nil {
		return nil, fmt.Errorf("fetch slots: %w", err)
	}

	var rawSlots []rawSlot
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &rawSlots); err != nil {
			return nil, fmt.Errorf("fetch slots: decode: %w", err)
		}
	} else if len(raw) > 0 && string(raw) != "null" {
		var wrapped struct {
			Slots []rawSlot `json:"slots"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("fetch slots: decode: %w", err)
		}
		rawSlots = wrapped.Slots
	}

	slots := make([]Slot, 0, len(rawSlots))
	for _, rs := range rawSlots {
		start, err := parseSlotTime(rs.Start, day, s.loc)
		if err != nil {
			return nil, fmt.Errorf("fetch slots: start: %w", err)
		}
		end, err := parseSlotTime(rs.End, day, s.loc)
		if err != nil {
			return nil, fmt.Errorf("fetch slots: end: %w", err)
		}
		id := string(rs.ID)
		if id == "" {
			id = start.Format("15:04") + "-" + end.Format("15:04")
		}
		slots = append(slots, Slot{ID: id, Start: start, End: end})
	}
	return slots, nil
}

// CreateAppointment books the appointment described by req.
func (s *AppointmentService) CreateAppointment(ctx context.Context, req AppointmentRequest) (*AppointmentConfirmation, error) {
	var resp AppointmentConfirmation
	if err := s.client.Post(ctx, "/appointments", req, &resp); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &resp, nil
}

// PatientService covers phone verification.
type PatientService struct {
	client *Client
}

// NewPatientService wraps client.
func NewPatientService(client *Client) *PatientService {
	return &PatientService{client: client}
}

// SendPhoneVerificationOTP asks the API to text a one-time passcode.
func (s *PatientService) SendPhoneVerificationOTP(ctx context.Context, req OTPRequest) error {
	if err := s.client.Post(ctx, "/patients/phone-verification/send-otp", req, nil); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

// VerifyPhoneVerificationOTP checks the passcode. The response shape varies
// by account, so it is returned undecoded.
func (s *PatientService) VerifyPhoneVerificationOTP(ctx context.Context, req VerifyOTPRequest) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := s.client.Post(ctx, "/patients/phone-verification/verify-otp", req, &raw); err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	return raw, nil
}

var slotLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseSlotTime accepts RFC3339, zone-less datetimes (read in loc), bare
// clock times on day, and epoch milliseconds.
func parseSlotTime(raw json.RawMessage, day time.Time, loc *time.Location) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, errors.New("missing time")
	}
	if raw[0] != '"' {
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid epoch %s", string(raw))
		}
		return time.UnixMilli(ms).In(loc), nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return time.Time{}, err
	}
	text = strings.TrimSpace(text)
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	for _, layout := range slotLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range []string{"15:04:05", "15:04", "3:04 PM", "03:04 PM"} {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", text)
}
