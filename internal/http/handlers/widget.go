package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/medos-booking/internal/bookings"
	"github.com/wolfman30/medos-booking/internal/sessions"
	"github.com/wolfman30/medos-booking/internal/wizard"
	"github.com/wolfman30/medos-booking/pkg/logging"
)

const maxBodyBytes = 64 << 10

// BookingRecorder persists confirmed bookings and notifies patients.
type BookingRecorder interface {
	ConfirmBooking(ctx context.Context, session wizard.Session, conf wizard.Confirmation) (*bookings.Record, error)
}

// HTTPObserver times widget requests.
type HTTPObserver interface {
	ObserveHTTP(route string, status int, seconds float64)
}

// WidgetConfig wires a WidgetHandler.
type WidgetConfig struct {
	Store    sessions.Store
	Services wizard.Services
	Recorder BookingRecorder
	Observer wizard.Observer
	HTTP     HTTPObserver
	Location *time.Location
	Now      func() time.Time
	Payment  wizard.PaymentMode
	Logger   *logging.Logger

	// LockRefresh is how often a held session lock is extended while an
	// event runs. Zero disables the keepalive.
	LockRefresh time.Duration
}

// WidgetHandler exposes the booking wizard as JSON endpoints. Each request
// restores the session, applies one event and stores the result.
type WidgetHandler struct {
	store    sessions.Store
	services wizard.Services
	recorder BookingRecorder
	observer wizard.Observer
	http     HTTPObserver
	loc      *time.Location
	now      func() time.Time
	payment  wizard.PaymentMode
	logger   *logging.Logger

	lockRefresh time.Duration
}

// NewWidgetHandler panics without a store.
func NewWidgetHandler(cfg WidgetConfig) *WidgetHandler {
	if cfg.Store == nil {
		panic("handlers: session store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &WidgetHandler{
		store:    cfg.Store,
		services: cfg.Services,
		recorder: cfg.Recorder,
		observer: cfg.Observer,
		http:     cfg.HTTP,
		loc:      cfg.Location,
		now:      cfg.Now,
		payment:  cfg.Payment,
		logger:   cfg.Logger,

		lockRefresh: cfg.LockRefresh,
	}
}

// Routes mounts the widget API.
func (h *WidgetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)

		r.Post("/next", h.event(h.next))
		r.Post("/back", h.event(h.back))
		r.Post("/reset", h.event(h.reset))

		r.Post("/otp/send", h.event(h.sendOTP))
		r.Post("/otp/resend", h.event(h.resendOTP))
		r.Post("/otp/verify", h.event(h.verifyOTP))
		r.Post("/otp/change-phone", h.event(h.changePhone))

		r.Post("/address", h.event(h.selectAddress))
		r.Post("/doctor", h.event(h.selectDoctor))
		r.Post("/date", h.event(h.setDate))
		r.Post("/slot", h.event(h.selectSlot))
		r.Post("/booking-option", h.event(h.setBookingOption))
		r.Post("/session-pack", h.event(h.selectSessionPack))
		r.Post("/package", h.event(h.selectPackage))
		r.Post("/patient", h.event(h.updatePatient))
		r.Post("/patient/select", h.event(h.selectPatient))
		r.Post("/consultation-mode", h.event(h.setConsultationMode))
		r.Post("/payment-mode", h.event(h.setPaymentMode))
		r.Post("/submit", h.event(h.submit))
	})
	return r
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	wizard.View
}

type errorResponse struct {
	Error string `json:"error"`
}

// errBadRequest marks a body that could not be decoded.
var errBadRequest = errors.New("handlers: invalid request body")

// eventFunc applies one event. Returned errors other than errBadRequest are
// wizard outcomes already reflected in the session.
type eventFunc func(ctx context.Context, w *wizard.Wizard, body []byte) error

// CreateSession starts a session and loads the clinic catalogue.
func (h *WidgetHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	s := wizard.NewSession()
	s.ID = uuid.NewString()
	if h.payment != "" {
		s.PaymentMode = h.payment
	}
	wz := wizard.Restore(h.services, s, h.wizardOptions(ctx))
	if err := wz.Load(ctx); err != nil {
		h.logger.Warn("catalogue load failed for new session", "session_id", s.ID, "error", err)
	}

	state := wz.State()
	if err := h.store.Save(ctx, state); err != nil {
		h.logger.Error("failed to save session", "session_id", s.ID, "error", err)
		h.respond(w, r, start, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	h.logger.Info("booking session created", "session_id", s.ID)
	h.respond(w, r, start, http.StatusCreated, sessionResponse{SessionID: s.ID, View: wz.View()})
}

// GetSession returns the current view without changing the session.
func (h *WidgetHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "sessionID")
	s, err := h.store.Load(r.Context(), id)
	if err != nil {
		h.storeError(w, r, start, id, err)
		return
	}
	h.respond(w, r, start, http.StatusOK, sessionResponse{SessionID: id, View: wizard.Project(s, h.loc)})
}

// DeleteSession discards a session.
func (h *WidgetHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "sessionID")
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storeError(w, r, start, id, err)
		return
	}
	h.record(r, start, http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

// event wraps fn with the lock, load, apply, save cycle. The lock is released
// before the response is written.
func (h *WidgetHandler) event(fn eventFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := chi.URLParam(r, "sessionID")

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			h.respond(w, r, start, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		view, err := h.apply(r, id, fn, body)
		switch {
		case errors.Is(err, errBadRequest):
			h.respond(w, r, start, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		case err != nil:
			h.storeError(w, r, start, id, err)
		default:
			h.respond(w, r, start, http.StatusOK, sessionResponse{SessionID: id, View: view})
		}
	}
}

func (h *WidgetHandler) apply(r *http.Request, id string, fn eventFunc, body []byte) (wizard.View, error) {
	ctx := r.Context()
	token, err := h.store.Lock(ctx, id)
	if err != nil {
		return wizard.View{}, err
	}
	defer func() {
		if err := h.store.Unlock(context.WithoutCancel(ctx), id, token); err != nil {
			h.logger.Warn("failed to release session lock", "session_id", id, "error", err)
		}
	}()
	stop := h.holdLock(ctx, id, token)
	defer stop()

	s, err := h.store.Load(ctx, id)
	if err != nil {
		return wizard.View{}, err
	}

	wz := wizard.Restore(h.services, s, h.wizardOptions(ctx))
	if err := fn(ctx, wz, body); err != nil {
		if errors.Is(err, errBadRequest) {
			return wizard.View{}, err
		}
		if !errors.Is(err, wizard.ErrTransitionBlocked) {
			h.logger.Debug("wizard event rejected", "session_id", id, "path", r.URL.Path, "error", err)
		}
	}

	// Another request may own the session once our lock has expired.
	if err := h.store.Refresh(ctx, id, token); err != nil {
		h.logger.Error("session lock lost before save", "session_id", id, "path", r.URL.Path, "error", err)
		return wizard.View{}, err
	}
	if err := h.store.Save(ctx, wz.State()); err != nil {
		return wizard.View{}, err
	}
	return wz.View(), nil
}

// holdLock extends the session lock until the returned stop func is called.
func (h *WidgetHandler) holdLock(ctx context.Context, id, token string) func() {
	if h.lockRefresh <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(h.lockRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.store.Refresh(ctx, id, token); err != nil {
					if ctx.Err() == nil {
						h.logger.Warn("failed to extend session lock", "session_id", id, "error", err)
					}
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (h *WidgetHandler) wizardOptions(ctx context.Context) wizard.Options {
	// Callbacks may outlive the request's cancellation but keep its values.
	cbCtx := context.WithoutCancel(ctx)
	return wizard.Options{
		Logger:      h.logger,
		Location:    h.loc,
		Now:         h.now,
		Observer:    h.observer,
		PaymentMode: h.payment,
		OnSuccess: func(s wizard.Session, conf wizard.Confirmation) {
			if h.recorder == nil {
				return
			}
			if _, err := h.recorder.ConfirmBooking(cbCtx, s, conf); err != nil {
				h.logger.Error("failed to record booking", "session_id", s.ID, "appointment_id", conf.AppointmentID, "error", err)
			}
		},
		OnError: func(err error) {
			h.logger.Warn("booking widget error", "error", err)
		},
	}
}

func (h *WidgetHandler) storeError(w http.ResponseWriter, r *http.Request, start time.Time, id string, err error) {
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		h.respond(w, r, start, http.StatusNotFound, errorResponse{Error: "session not found"})
	case errors.Is(err, sessions.ErrLocked):
		h.respond(w, r, start, http.StatusConflict, errorResponse{Error: "session is busy, retry shortly"})
	case errors.Is(err, sessions.ErrLockLost):
		h.respond(w, r, start, http.StatusConflict, errorResponse{Error: "session changed by another request, reload it"})
	default:
		h.logger.Error("session store failure", "session_id", id, "error", err)
		h.respond(w, r, start, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *WidgetHandler) respond(w http.ResponseWriter, r *http.Request, start time.Time, status int, payload any) {
	h.record(r, start, status)
	writeJSON(w, status, payload)
}

func (h *WidgetHandler) record(r *http.Request, start time.Time, status int) {
	if h.http == nil {
		return
	}
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	h.http.ObserveHTTP(route, status, time.Since(start).Seconds())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decode unmarshals body into v. An empty body leaves v untouched.
func decode(body []byte, v any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errBadRequest
	}
	return nil
}
