package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medos-booking/internal/bookings"
	"github.com/wolfman30/medos-booking/internal/medos"
	"github.com/wolfman30/medos-booking/internal/sessions"
	"github.com/wolfman30/medos-booking/internal/wizard"
	"github.com/wolfman30/medos-booking/pkg/logging"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func slotAt(hour, minute int) medos.Slot {
	start := time.Date(2026, 3, 10, hour, minute, 0, 0, ist)
	return medos.Slot{ID: fmt.Sprintf("s%02d%02d", hour, minute), Start: start, End: start.Add(30 * time.Minute)}
}

type stubAppointments struct {
	mu        sync.Mutex
	created   []medos.AppointmentRequest
	slotDelay time.Duration
}

func (s *stubAppointments) GetAddresses(ctx context.Context) (*medos.AddressesResponse, error) {
	return &medos.AddressesResponse{
		WorkspaceID: 11,
		Addresses: []medos.Address{
			{ID: 1, Label: "Downtown", Doctors: []medos.Doctor{
				{ID: 10, Name: "Dr. Mehta", ConsultationCharge: 500},
				{ID: 11, Name: "Dr. Rao", ConsultationCharge: 700},
			}},
			{ID: 2, Label: "Uptown", Doctors: []medos.Doctor{{ID: 20, Name: "Dr. Iyer"}}},
		},
	}, nil
}

func (s *stubAppointments) FetchSlots(ctx context.Context, workspaceID, addressID, doctorID int64, date string) ([]medos.Slot, error) {
	time.Sleep(s.slotDelay)
	return []medos.Slot{slotAt(9, 0), slotAt(14, 0)}, nil
}

func (s *stubAppointments) CreateAppointment(ctx context.Context, req medos.AppointmentRequest) (*medos.AppointmentConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, req)
	return &medos.AppointmentConfirmation{ID: "5501", Status: "CONFIRMED"}, nil
}

type stubPatients struct{}

func (stubPatients) SendPhoneVerificationOTP(ctx context.Context, req medos.OTPRequest) error {
	return nil
}

func (stubPatients) VerifyPhoneVerificationOTP(ctx context.Context, req medos.VerifyOTPRequest) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type stubRecorder struct {
	mu    sync.Mutex
	calls []wizard.Confirmation
}

func (r *stubRecorder) ConfirmBooking(ctx context.Context, s wizard.Session, conf wizard.Confirmation) (*bookings.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, conf)
	rec := bookings.RecordFrom(s, conf)
	return &rec, nil
}

type widgetFixture struct {
	server       *httptest.Server
	store        sessions.Store
	appointments *stubAppointments
	recorder     *stubRecorder
}

func newWidgetFixture(t *testing.T, store sessions.Store, opts ...func(*WidgetConfig)) *widgetFixture {
	t.Helper()
	f := &widgetFixture{store: store, appointments: &stubAppointments{}, recorder: &stubRecorder{}}
	cfg := WidgetConfig{
		Store:    store,
		Services: wizard.Services{Appointments: f.appointments, Patients: stubPatients{}},
		Recorder: f.recorder,
		Location: ist,
		Now:      func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, ist) },
		Logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h := NewWidgetHandler(cfg)
	f.server = httptest.NewServer(h.Routes())
	t.Cleanup(f.server.Close)
	return f
}

func (f *widgetFixture) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	resp, err := http.Post(f.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (f *widgetFixture) create(t *testing.T) string {
	t.Helper()
	status, out := f.post(t, "/sessions", nil)
	require.Equal(t, http.StatusCreated, status)
	id, _ := out["sessionId"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestWidget_CreateLoadsCatalogue(t *testing.T) {
	f := newWidgetFixture(t, sessions.NewMemoryStore(time.Minute))
	status, out := f.post(t, "/sessions", nil)

	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "phone_verification", out["stepName"])
	addresses, _ := out["addresses"].([]any)
	assert.Len(t, addresses, 2)

	id := out["sessionId"].(string)
	s, err := f.store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(11), s.WorkspaceID)
}

func TestWidget_FullBooking(t *testing.T) {
	f := newWidgetFixture(t, sessions.NewMemoryStore(time.Minute))
	id := f.create(t)
	base := "/sessions/" + id

	steps := []struct {
		path string
		body any
	}{
		{"/otp/send", map[string]string{"countryCode": "+91", "phoneNumber": "9876543210"}},
		{"/otp/verify", map[string]string{"otpCode": "123456"}},
		{"/address", map[string]any{"addressId": 1}},
		{"/doctor", map[string]any{"doctorId": "10"}},
		{"/next", nil},
		{"/date", map[string]string{"date": "2026-03-10"}},
		{"/slot", map[string]string{"slotId": "s0900"}},
		{"/next", nil},
		{"/next", nil},
		{"/patient", map[string]string{
			"patientName": "Asha Devi Rao", "patientAge": "34", "patientGender": "female",
			"patientEmail": "asha@example.com", "patientAddress": "12 MG Road", "patientCity": "Bengaluru",
			"patientState": "Karnataka", "patientCountry": "India", "patientZipcode": "560001",
		}},
		{"/next", nil},
	}
	for _, step := range steps {
		status, out := f.post(t, base+step.path, step.body)
		require.Equal(t, http.StatusOK, status, step.path)
		require.Empty(t, out["error"], "%s: %v", step.path, out["error"])
	}

	status, out := f.post(t, base+"/submit", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", out["stepName"])
	appointment, _ := out["appointment"].(map[string]any)
	assert.Equal(t, "5501", appointment["appointmentId"])

	require.Len(t, f.recorder.calls, 1)
	assert.Equal(t, "09:00", f.recorder.calls[0].FromTime)
	require.Len(t, f.appointments.created, 1)
}

func TestWidget_ValidationErrorsTravelInView(t *testing.T) {
	f := newWidgetFixture(t, sessions.NewMemoryStore(time.Minute))
	id := f.create(t)

	status, out := f.post(t, "/sessions/"+id+"/otp/send", map[string]string{"countryCode": "91", "phoneNumber": "98765"})
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, out["error"])
	assert.Equal(t, "phone_verification", out["stepName"])
}

func TestWidget_BlockedNextIsNotAnError(t *testing.T) {
	f := newWidgetFixture(t, sessions.NewMemoryStore(time.Minute))
	id := f.create(t)

	status, out := f.post(t, "/sessions/"+id+"/next", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, out["canGoNext"])
	assert.Equal(t, "phone_verification", out["stepName"])
}

func TestWidget_UnknownSession(t *testing.T) {
	f := newWidgetFixture(t, sessions.NewMemoryStore(time.Minute))

	status, _ := f.post(t, "/sessions/missing/next", nil)
	assert.Equal(t, http.StatusNotFound, status)

	resp, err := http.Get(f.server.URL + "/sessions/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWidget_BadJSON(t *testing.T) {
	f := newWidgetFixture(t, sessions.NewMemoryStore(time.Minute))
	id := f.create(t)

	status, out := f.post(t, "/sessions/"+id+"/address", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid JSON body", out["error"])
}

func TestWidget_ConcurrentEventRejected(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := sessions.NewRedisStore(client, time.Minute, 5*time.Second)

	f := newWidgetFixture(t, store)
	id := f.create(t)

	token, err := store.Lock(context.Background(), id)
	require.NoError(t, err)

	status, _ := f.post(t, "/sessions/"+id+"/next", nil)
	assert.Equal(t, http.StatusConflict, status)

	require.NoError(t, store.Unlock(context.Background(), id, token))
	status, _ = f.post(t, "/sessions/"+id+"/next", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, mr.Exists("booking_session_lock:"+id), "lock must be released after the event")
}

// expiringStore counts lock refreshes and can pretend the lock expired.
type expiringStore struct {
	*sessions.MemoryStore
	mu        sync.Mutex
	refreshes int
	lost      bool
}

func (s *expiringStore) Refresh(ctx context.Context, id, token string) error {
	s.mu.Lock()
	s.refreshes++
	lost := s.lost
	s.mu.Unlock()
	if lost {
		return sessions.ErrLockLost
	}
	return s.MemoryStore.Refresh(ctx, id, token)
}

func (s *expiringStore) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func TestWidget_LostLockDiscardsEvent(t *testing.T) {
	store := &expiringStore{MemoryStore: sessions.NewMemoryStore(time.Minute)}
	f := newWidgetFixture(t, store)
	id := f.create(t)

	store.mu.Lock()
	store.lost = true
	store.mu.Unlock()
	status, out := f.post(t, "/sessions/"+id+"/otp/send", map[string]string{"countryCode": "+91", "phoneNumber": "9876543210"})
	assert.Equal(t, http.StatusConflict, status)
	assert.NotEmpty(t, out["error"])

	s, err := f.store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, s.Phone, "state from a request that lost its lock is not saved")
	assert.False(t, s.OTPSent)
}

func TestWidget_LockHeldDuringSlowCalls(t *testing.T) {
	store := &expiringStore{MemoryStore: sessions.NewMemoryStore(time.Minute)}
	f := newWidgetFixture(t, store, func(cfg *WidgetConfig) { cfg.LockRefresh = 5 * time.Millisecond })
	f.appointments.slotDelay = 60 * time.Millisecond
	id := f.create(t)

	for _, step := range []struct {
		path string
		body any
	}{
		{"/otp/send", map[string]string{"countryCode": "+91", "phoneNumber": "9876543210"}},
		{"/otp/verify", map[string]string{"otpCode": "123456"}},
		{"/address", map[string]any{"addressId": 2}},
	} {
		status, _ := f.post(t, "/sessions/"+id+step.path, step.body)
		require.Equal(t, http.StatusOK, status, step.path)
	}

	before := store.refreshCount()
	status, out := f.post(t, "/sessions/"+id+"/date", map[string]string{"date": "2026-03-10"})
	require.Equal(t, http.StatusOK, status)
	slots, _ := out["slotGroups"].([]any)
	assert.NotEmpty(t, slots)
	assert.Greater(t, store.refreshCount()-before, 2, "lock is extended while slots load")
}

func TestWidget_DeleteSession(t *testing.T) {
	f := newWidgetFixture(t, sessions.NewMemoryStore(time.Minute))
	id := f.create(t)

	req, err := http.NewRequest(http.MethodDelete, f.server.URL+"/sessions/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = f.store.Load(context.Background(), id)
	assert.True(t, errors.Is(err, sessions.ErrNotFound))
}
