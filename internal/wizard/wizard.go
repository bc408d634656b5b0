package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medos-booking/internal/medos"
	"github.com/wolfman30/medos-booking/pkg/logging"
)

// ErrBusy is returned when another operation on the session is in flight.
var ErrBusy = errors.New("wizard: operation in progress")

// WorkspaceAPI resolves the workspace when the address listing omits it.
type WorkspaceAPI interface {
	Current(ctx context.Context) (*medos.Workspace, error)
}

// AppointmentAPI is the subset of the appointment service the wizard drives.
type AppointmentAPI interface {
	GetAddresses(ctx context.Context) (*medos.AddressesResponse, error)
	FetchSlots(ctx context.Context, workspaceID, addressID, doctorID int64, date string) ([]medos.Slot, error)
	CreateAppointment(ctx context.Context, req medos.AppointmentRequest) (*medos.AppointmentConfirmation, error)
}

// PatientAPI is the subset of the patient service the wizard drives.
type PatientAPI interface {
	SendPhoneVerificationOTP(ctx context.Context, req medos.OTPRequest) error
	VerifyPhoneVerificationOTP(ctx context.Context, req medos.VerifyOTPRequest) (json.RawMessage, error)
}

// Services bundles the Medos services. Workspace may be nil.
type Services struct {
	Workspace    WorkspaceAPI
	Appointments AppointmentAPI
	Patients     PatientAPI
}

// Observer receives wizard events.
type Observer interface {
	ObserveStep(from, to string)
	ObserveOTP(operation, outcome string)
	ObserveSubmission(bookingType, outcome string)
}

type noopObserver struct{}

func (noopObserver) ObserveStep(string, string)       {}
func (noopObserver) ObserveOTP(string, string)        {}
func (noopObserver) ObserveSubmission(string, string) {}

// Options configures a Wizard.
type Options struct {
	Logger   *logging.Logger
	Location *time.Location
	Now      func() time.Time
	Observer Observer

	// PaymentMode seeds new sessions. Defaults to CASH.
	PaymentMode PaymentMode

	OnSuccess func(Session, Confirmation)
	OnError   func(error)
}

// Wizard drives one booking session. Methods are safe for concurrent use;
// the lock is released while Medos calls are in flight and results that no
// longer match the session are discarded.
type Wizard struct {
	mu sync.Mutex
	s  Session

	svc       Services
	logger    *logging.Logger
	loc       *time.Location
	now       func() time.Time
	observer  Observer
	payment   PaymentMode
	onSuccess func(Session, Confirmation)
	onError   func(error)
	tracer    trace.Tracer
}

// New starts a fresh session.
func New(svc Services, opts Options) *Wizard {
	s := NewSession()
	if opts.PaymentMode != "" {
		s.PaymentMode = opts.PaymentMode
	}
	return Restore(svc, s, opts)
}

// Restore resumes a previously stored session. In-flight markers are cleared
// because no request survives a restore.
func Restore(svc Services, s Session, opts Options) *Wizard {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.PaymentMode == "" {
		opts.PaymentMode = PaymentCash
	}
	if s.AddressDoctors == nil {
		s.AddressDoctors = map[int64][]Doctor{}
	}
	s.Loading = false
	s.OTPSending = false
	s.OTPVerifying = false
	s.inflight = 0

	return &Wizard{
		s:         s,
		svc:       svc,
		logger:    opts.Logger,
		loc:       opts.Location,
		now:       opts.Now,
		observer:  opts.Observer,
		payment:   opts.PaymentMode,
		onSuccess: opts.OnSuccess,
		onError:   opts.OnError,
		tracer:    otel.Tracer("medos.internal.wizard"),
	}
}

// State returns a snapshot of the session. Slices are shared and must not be mutated.
func (w *Wizard) State() Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.s
}

// View projects the current session for rendering.
func (w *Wizard) View() View {
	return Project(w.State(), w.loc)
}

// acquire and release must be called with mu held.
func (w *Wizard) acquire() {
	w.s.inflight++
	w.s.Loading = true
}

func (w *Wizard) release() {
	if w.s.inflight > 0 {
		w.s.inflight--
	}
	w.s.Loading = w.s.inflight > 0
}

func (w *Wizard) reportError(err error) {
	if w.onError != nil && err != nil {
		w.onError(err)
	}
}

// setError records err on the session and returns it. Callers hold mu.
func (w *Wizard) setError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		w.s.Error = ve.Message
	}
	return err
}

func userMessage(err error, fallback string) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	if msg := medos.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}

// Load fetches the address and doctor catalogue.
func (w *Wizard) Load(ctx context.Context) error {
	w.mu.Lock()
	if w.s.Loading {
		w.mu.Unlock()
		return ErrBusy
	}
	w.acquire()
	w.s.Error = ""
	w.mu.Unlock()

	resp, err := w.svc.Appointments.GetAddresses(ctx)
	if err == nil && resp.WorkspaceID == 0 && w.svc.Workspace != nil {
		ws, wsErr := w.svc.Workspace.Current(ctx)
		if wsErr != nil {
			w.logger.Warn("workspace lookup failed", "error", wsErr)
		} else {
			resp.WorkspaceID = ws.ID
		}
	}

	w.mu.Lock()
	w.release()
	if err != nil {
		w.s.Error = userMessage(err, "Failed to load clinic locations. Please try again.")
		w.mu.Unlock()
		w.logger.Error("load addresses failed", "error", err)
		w.reportError(err)
		return err
	}
	msg := applyCatalogue(&w.s, resp)
	w.s.Error = msg
	addresses := len(w.s.Addresses)
	w.mu.Unlock()

	w.logger.Info("booking catalogue loaded", "workspace_id", int64(resp.WorkspaceID), "addresses", addresses)
	if msg != "" {
		return invalid("selectedAddress", "%s", msg)
	}
	return nil
}

// SelectAddress picks a clinic location. A lone doctor there is auto-selected.
func (w *Wizard) SelectAddress(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.s.Error = ""
	return w.setError(applyAddress(&w.s, id))
}

// SelectDoctor picks a doctor at the selected address.
func (w *Wizard) SelectDoctor(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.s.Error = ""
	return w.setError(applyDoctor(&w.s, id))
}

// SetDate chooses the appointment date and reloads slots.
func (w *Wizard) SetDate(ctx context.Context, date string) error {
	date = strings.TrimSpace(date)
	w.mu.Lock()
	if !validDate(date, w.now(), w.loc) {
		err := w.setError(invalid("selectedDate", "Please choose today or a later date."))
		w.mu.Unlock()
		return err
	}
	w.s.Error = ""
	w.s.SelectedDate = date
	w.s.Slots = nil
	w.s.SelectedSlot = nil
	w.mu.Unlock()
	return w.loadSlots(ctx)
}

// SelectSlot picks one of the loaded slots by id.
func (w *Wizard) SelectSlot(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, slot := range w.s.Slots {
		if slot.ID == id {
			selected := slot
			w.s.SelectedSlot = &selected
			w.s.Error = ""
			return nil
		}
	}
	return w.setError(invalid("selectedSlot", "Please select a valid time slot."))
}

type slotQuery struct {
	workspace, address, doctor int64
	date                       string
}

func (s Session) currentSlotQuery() slotQuery {
	return slotQuery{workspace: s.WorkspaceID, address: s.SelectedAddress, doctor: s.SelectedDoctor, date: s.SelectedDate}
}

func (w *Wizard) loadSlots(ctx context.Context) error {
	w.mu.Lock()
	q := w.s.currentSlotQuery()
	if q.workspace == 0 || q.address == 0 || q.doctor == 0 || q.date == "" {
		w.s.Slots = nil
		w.s.SelectedSlot = nil
		w.mu.Unlock()
		return nil
	}
	w.acquire()
	w.mu.Unlock()

	slots, err := w.svc.Appointments.FetchSlots(ctx, q.workspace, q.address, q.doctor, q.date)

	w.mu.Lock()
	w.release()
	if w.s.currentSlotQuery() != q {
		w.mu.Unlock()
		w.logger.Debug("discarding stale slots", "date", q.date, "doctor_id", q.doctor)
		return nil
	}
	if err != nil {
		w.s.Slots = nil
		w.s.SelectedSlot = nil
		w.s.Error = userMessage(err, "Failed to load available slots. Please try again.")
		w.mu.Unlock()
		w.logger.Error("load slots failed", "error", err, "date", q.date, "doctor_id", q.doctor)
		w.reportError(err)
		return err
	}
	w.s.Slots = slots
	if w.s.SelectedSlot != nil {
		if i := w.s.slotIndex(*w.s.SelectedSlot); i >= 0 {
			selected := slots[i]
			w.s.SelectedSlot = &selected
		} else {
			w.s.SelectedSlot = nil
		}
	}
	w.mu.Unlock()
	return nil
}

// SetBookingOption records the booking-option choice.
func (w *Wizard) SetBookingOption(opt BookingOption) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch opt {
	case OptionSessionPack, OptionNewAppointment, OptionExplorePackages:
	default:
		return w.setError(invalid("bookingOptionType", "Please choose how you would like to book."))
	}
	w.s.BookingOption = opt
	w.s.Error = ""
	return nil
}

// SelectSessionPack picks an owned session pack.
func (w *Wizard) SelectSessionPack(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	pack, ok := w.s.sessionPack(id)
	if !ok {
		return w.setError(invalid("selectedSessionPack", "Please select a session pack."))
	}
	w.s.SelectedSessionPack = id
	w.s.BookingOption = OptionSessionPack
	w.s.Error = ""
	if !allowsMode(pack.AllowedConsultationModes, w.s.ConsultationMode) {
		w.s.ConsultationMode = ConsultationMode(pack.AllowedConsultationModes[0])
	}
	return nil
}

// SelectNewPackage picks a package to purchase from the explorer.
func (w *Wizard) SelectNewPackage(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	pkg, ok := w.s.newPackage(id)
	if !ok {
		return w.setError(invalid("selectedNewPackage", "Please select a package to continue."))
	}
	w.s.SelectedNewPackage = id
	w.s.Error = ""
	if !allowsMode(pkg.AllowedConsultationModes, w.s.ConsultationMode) {
		w.s.ConsultationMode = ConsultationMode(pkg.AllowedConsultationModes[0])
	}
	return nil
}

// SelectPatient picks an associated patient and copies their details into
// the form. An id of 0 switches to booking for a new patient.
func (w *Wizard) SelectPatient(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id == 0 {
		w.s.SelectedPatientID = 0
		w.s.Error = ""
		return nil
	}
	p, ok := w.s.verifiedPatient(id)
	if !ok {
		return w.setError(invalid("selectedPatientId", "Please select a valid patient."))
	}
	w.s.SelectedPatientID = id
	w.s.Patient = formFromPatient(p)
	w.s.Error = ""
	return nil
}

// PatientPatch carries the form fields to overwrite. Nil fields are left alone.
type PatientPatch struct {
	Name       *string `json:"patientName"`
	Age        *string `json:"patientAge"`
	Gender     *string `json:"patientGender"`
	BloodGroup *string `json:"bloodGroup"`
	Email      *string `json:"patientEmail"`
	Address    *string `json:"patientAddress"`
	City       *string `json:"patientCity"`
	State      *string `json:"patientState"`
	Country    *string `json:"patientCountry"`
	Zipcode    *string `json:"patientZipcode"`
	Landmark   *string `json:"patientLandmark"`
}

// UpdatePatient edits the patient form.
func (w *Wizard) UpdatePatient(patch PatientPatch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := &w.s.Patient
	for _, f := range []struct {
		dst *string
		src *string
	}{
		{&p.Name, patch.Name},
		{&p.Age, patch.Age},
		{&p.Gender, patch.Gender},
		{&p.BloodGroup, patch.BloodGroup},
		{&p.Email, patch.Email},
		{&p.Address, patch.Address},
		{&p.City, patch.City},
		{&p.State, patch.State},
		{&p.Country, patch.Country},
		{&p.Zipcode, patch.Zipcode},
		{&p.Landmark, patch.Landmark},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
}

// SetConsultationMode chooses online or offline, honouring the modes allowed
// by the pack or package in use.
func (w *Wizard) SetConsultationMode(mode ConsultationMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	mode = ConsultationMode(strings.ToUpper(string(mode)))
	if mode != ModeOnline && mode != ModeOffline {
		return w.setError(invalid("consultationMode", "Please choose online or offline."))
	}
	if err := modeAllowed(w.s, mode); err != nil {
		return w.setError(err)
	}
	w.s.ConsultationMode = mode
	w.s.Error = ""
	return nil
}

// SetPaymentMode chooses how a one-time appointment is paid.
func (w *Wizard) SetPaymentMode(mode PaymentMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	mode = PaymentMode(strings.ToUpper(string(mode)))
	if mode != PaymentCash && mode != PaymentOnline {
		return w.setError(invalid("paymentMode", "Please choose a valid payment mode."))
	}
	w.s.PaymentMode = mode
	w.s.Error = ""
	return nil
}

// Next moves forward. Guard failures that carry a message are recorded on
// the session; blocked transitions leave it untouched.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	if w.s.Loading {
		w.mu.Unlock()
		return ErrBusy
	}
	from := w.s.Step
	next, effects, err := Next(w.s)
	if err != nil {
		err = w.setError(err)
		w.mu.Unlock()
		return err
	}
	next.Error = ""
	w.s = next
	to := next.Step
	w.mu.Unlock()

	w.observer.ObserveStep(from.String(), to.String())
	return w.runEffects(ctx, effects)
}

// Back moves to the previous step. It is refused while a request is in
// flight so a late response cannot land on a step the user has left.
func (w *Wizard) Back() error {
	w.mu.Lock()
	if w.s.Loading {
		w.mu.Unlock()
		return ErrBusy
	}
	from := w.s.Step
	prev, err := Back(w.s)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	prev.Error = ""
	w.s = prev
	to := prev.Step
	w.mu.Unlock()

	w.observer.ObserveStep(from.String(), to.String())
	return nil
}

// Reset starts over with a fresh session and reloads the catalogue.
func (w *Wizard) Reset(ctx context.Context) error {
	w.mu.Lock()
	if w.s.Loading {
		w.mu.Unlock()
		return ErrBusy
	}
	fresh := NewSession()
	fresh.ID = w.s.ID
	fresh.PaymentMode = w.payment
	w.s = fresh
	w.mu.Unlock()
	return w.Load(ctx)
}

func (w *Wizard) runEffects(ctx context.Context, effects []Effect) error {
	for _, e := range effects {
		switch e {
		case EffectLoadSlots:
			if err := w.loadSlots(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func modeAllowed(s Session, mode ConsultationMode) error {
	switch s.BookingType {
	case BookingUseActivePackage:
		if pack, ok := s.sessionPack(s.SelectedSessionPack); ok && !allowsMode(pack.AllowedConsultationModes, mode) {
			return invalid("consultationMode", "This session pack is not available for %s consultations.", strings.ToLower(string(mode)))
		}
	case BookingPackagePurchase:
		if pkg, ok := s.newPackage(s.SelectedNewPackage); ok && !allowsMode(pkg.AllowedConsultationModes, mode) {
			return invalid("consultationMode", "This package is not available for %s consultations.", strings.ToLower(string(mode)))
		}
	}
	return nil
}

func formFromPatient(p Patient) PatientForm {
	form := PatientForm{
		Name:       p.Name,
		Gender:     p.Gender,
		BloodGroup: p.BloodGroup,
		Email:      p.Email,
		Address:    p.Address,
		City:       p.City,
		State:      p.State,
		Country:    p.Country,
		Zipcode:    p.Zipcode,
		Landmark:   p.Landmark,
	}
	if p.Age > 0 {
		form.Age = strconv.Itoa(p.Age)
	}
	return form
}
