package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/medos-booking/internal/medos"
	"github.com/wolfman30/medos-booking/pkg/logging"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// fixedNow is the day before testDate, mid-morning clinic time.
var fixedNow = time.Date(2026, 3, 9, 10, 0, 0, 0, ist)

const testDate = "2026-03-10"

func slotAt(hour, minute int) medos.Slot {
	start := time.Date(2026, 3, 10, hour, minute, 0, 0, ist)
	return medos.Slot{
		ID:    fmt.Sprintf("s%02d%02d", hour, minute),
		Start: start,
		End:   start.Add(30 * time.Minute),
	}
}

func twoAddressCatalogue() *medos.AddressesResponse {
	return &medos.AddressesResponse{
		WorkspaceID: 11,
		Addresses: []medos.Address{
			{ID: 1, Label: "Downtown", Doctors: []medos.Doctor{
				{ID: 10, Name: "Dr. Mehta", ConsultationCharge: 500},
				{ID: 11, Name: "Dr. Rao", ConsultationCharge: 700},
			}},
			{ID: 2, Label: "Uptown", Doctors: []medos.Doctor{
				{ID: 20, Name: "Dr. Iyer", ConsultationCharge: 650},
			}},
			{ID: 3, Label: "Closed Wing"},
		},
	}
}

type slotCall struct {
	workspace, address, doctor int64
	date                       string
}

type fakeAppointments struct {
	mu sync.Mutex

	addresses    *medos.AddressesResponse
	addressesErr error

	slots     map[string][]medos.Slot
	slotsErr  error
	slotCalls []slotCall
	onFetch   func()

	created      []medos.AppointmentRequest
	confirmation *medos.AppointmentConfirmation
	createErr    error
	onCreate     func()
}

func (f *fakeAppointments) GetAddresses(ctx context.Context) (*medos.AddressesResponse, error) {
	if f.addressesErr != nil {
		return nil, f.addressesErr
	}
	resp := *f.addresses
	return &resp, nil
}

func (f *fakeAppointments) FetchSlots(ctx context.Context, workspaceID, addressID, doctorID int64, date string) ([]medos.Slot, error) {
	f.mu.Lock()
	f.slotCalls = append(f.slotCalls, slotCall{workspaceID, addressID, doctorID, date})
	hook := f.onFetch
	f.onFetch = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.slotsErr != nil {
		return nil, f.slotsErr
	}
	return f.slots[date], nil
}

func (f *fakeAppointments) CreateAppointment(ctx context.Context, req medos.AppointmentRequest) (*medos.AppointmentConfirmation, error) {
	f.mu.Lock()
	f.created = append(f.created, req)
	hook := f.onCreate
	f.onCreate = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.confirmation != nil {
		return f.confirmation, nil
	}
	return &medos.AppointmentConfirmation{ID: "apt-1", Status: "CONFIRMED"}, nil
}

func (f *fakeAppointments) slotCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.slotCalls)
}

type fakePatients struct {
	sent      []medos.OTPRequest
	sendErr   error
	verified  []medos.VerifyOTPRequest
	verifyRaw json.RawMessage
	verifyErr error
}

func (f *fakePatients) SendPhoneVerificationOTP(ctx context.Context, req medos.OTPRequest) error {
	f.sent = append(f.sent, req)
	return f.sendErr
}

func (f *fakePatients) VerifyPhoneVerificationOTP(ctx context.Context, req medos.VerifyOTPRequest) (json.RawMessage, error) {
	f.verified = append(f.verified, req)
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verifyRaw, nil
}

type fakeWorkspace struct {
	id    int64
	calls int
}

func (f *fakeWorkspace) Current(ctx context.Context) (*medos.Workspace, error) {
	f.calls++
	return &medos.Workspace{ID: medos.FlexInt(f.id), Name: "Clinic"}, nil
}

type recordingObserver struct {
	mu          sync.Mutex
	steps       []string
	otp         []string
	submissions []string
}

func (o *recordingObserver) ObserveStep(from, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, from+">"+to)
}

func (o *recordingObserver) ObserveOTP(operation, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.otp = append(o.otp, operation+":"+outcome)
}

func (o *recordingObserver) ObserveSubmission(bookingType, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submissions = append(o.submissions, bookingType+":"+outcome)
}

type harness struct {
	w            *Wizard
	appointments *fakeAppointments
	patients     *fakePatients
	observer     *recordingObserver
	successes    []Confirmation
	errors       []error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		appointments: &fakeAppointments{
			addresses: twoAddressCatalogue(),
			slots: map[string][]medos.Slot{
				testDate: {slotAt(9, 0), slotAt(14, 0), slotAt(18, 30)},
			},
		},
		patients: &fakePatients{verifyRaw: json.RawMessage(`{}`)},
		observer: &recordingObserver{},
	}
	h.w = New(Services{Appointments: h.appointments, Patients: h.patients}, Options{
		Logger:    logging.Discard(),
		Location:  ist,
		Now:       func() time.Time { return fixedNow },
		Observer:  h.observer,
		OnSuccess: func(_ Session, c Confirmation) { h.successes = append(h.successes, c) },
		OnError:   func(err error) { h.errors = append(h.errors, err) },
	})
	return h
}

// verify loads the catalogue and verifies the phone number.
func (h *harness) verify(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := h.w.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := h.w.SetPhone("+91", "98765 43210"); err != nil {
		t.Fatalf("SetPhone() error = %v", err)
	}
	if err := h.w.SendOTP(ctx); err != nil {
		t.Fatalf("SendOTP() error = %v", err)
	}
	h.w.SetOTPCode("123456")
	if err := h.w.VerifyOTP(ctx); err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
}

func strPtr(s string) *string { return &s }

func fullPatientPatch() PatientPatch {
	return PatientPatch{
		Name:       strPtr("Asha Devi Rao"),
		Age:        strPtr("34"),
		Gender:     strPtr("female"),
		BloodGroup: strPtr("AB-"),
		Email:      strPtr("asha@example.com"),
		Address:    strPtr("12 MG Road"),
		City:       strPtr("Bengaluru"),
		State:      strPtr("Karnataka"),
		Country:    strPtr("India"),
		Zipcode:    strPtr("560001"),
	}
}

// driveToSummary books as a new patient with Dr. Mehta at 09:00.
func (h *harness) driveToSummary(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	h.verify(t)
	steps := []func() error{
		func() error { return h.w.SelectAddress(1) },
		func() error { return h.w.SelectDoctor(10) },
		func() error { return h.w.Next(ctx) },
		func() error { return h.w.SetDate(ctx, testDate) },
		func() error { return h.w.SelectSlot("s0900") },
		func() error { return h.w.Next(ctx) },
		func() error { return h.w.Next(ctx) },
		func() error { h.w.UpdatePatient(fullPatientPatch()); return nil },
		func() error { return h.w.Next(ctx) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v (state error %q)", i, err, h.w.State().Error)
		}
	}
	if got := h.w.State().Step; got != StepSummary {
		t.Fatalf("step = %v, want summary", got)
	}
}
