package wizard

import (
	"context"
	"strings"

	"github.com/wolfman30/medos-booking/internal/medos"
)

const (
	msgOTPSendFailed   = "Failed to send OTP. Please try again."
	msgOTPVerifyFailed = "Invalid OTP. Please try again."
)

// SetPhone records the number to verify. It is rejected once a code has been
// sent; ChangePhoneNumber starts over.
func (w *Wizard) SetPhone(countryCode, phone string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.s.OTPSent || w.s.OTPVerified || w.s.OTPSending {
		return ErrTransitionBlocked
	}
	w.s.CountryCode = strings.TrimSpace(countryCode)
	w.s.Phone = strings.TrimSpace(phone)
	return nil
}

// SetOTPCode records the code typed by the user.
func (w *Wizard) SetOTPCode(code string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.s.OTPCode = strings.TrimSpace(code)
}

// SendOTP requests a passcode for the current number.
func (w *Wizard) SendOTP(ctx context.Context) error {
	return w.sendOTP(ctx, "send")
}

// ResendOTP clears the typed code and requests a new passcode.
func (w *Wizard) ResendOTP(ctx context.Context) error {
	w.mu.Lock()
	if !w.s.OTPSent || w.s.OTPVerified {
		w.mu.Unlock()
		return ErrTransitionBlocked
	}
	w.s.OTPCode = ""
	w.mu.Unlock()
	return w.sendOTP(ctx, "resend")
}

func (w *Wizard) sendOTP(ctx context.Context, op string) error {
	w.mu.Lock()
	if w.s.OTPSending || w.s.OTPVerifying || w.s.OTPVerified {
		w.mu.Unlock()
		return ErrBusy
	}
	if err := ValidateCountryCode(w.s.CountryCode); err != nil {
		err = w.setError(err)
		w.mu.Unlock()
		return err
	}
	if err := ValidatePhone(w.s.Phone); err != nil {
		err = w.setError(err)
		w.mu.Unlock()
		return err
	}
	req := medos.OTPRequest{CountryCode: w.s.CountryCode, PhoneNumber: NormalizePhone(w.s.Phone)}
	w.s.OTPSending = true
	w.s.Error = ""
	w.acquire()
	w.mu.Unlock()

	err := w.svc.Patients.SendPhoneVerificationOTP(ctx, req)

	w.mu.Lock()
	w.release()
	w.s.OTPSending = false
	if !w.samePhone(req.CountryCode, req.PhoneNumber) {
		w.mu.Unlock()
		w.logger.Debug("discarding otp send for replaced number")
		return nil
	}
	if err != nil {
		w.s.Error = userMessage(err, msgOTPSendFailed)
		w.mu.Unlock()
		w.observer.ObserveOTP(op, "error")
		w.logger.Warn("otp send failed", "error", err)
		w.reportError(err)
		return err
	}
	w.s.OTPSent = true
	w.mu.Unlock()

	w.observer.ObserveOTP(op, "ok")
	return nil
}

// VerifyOTP checks the typed code. On success the associated patients, owned
// packs and purchasable packages are stored and the wizard advances.
func (w *Wizard) VerifyOTP(ctx context.Context) error {
	w.mu.Lock()
	if !w.s.OTPSent || w.s.OTPVerified {
		w.mu.Unlock()
		return ErrTransitionBlocked
	}
	if w.s.OTPVerifying || w.s.OTPSending {
		w.mu.Unlock()
		return ErrBusy
	}
	if err := ValidateOTPCode(w.s.OTPCode); err != nil {
		err = w.setError(err)
		w.mu.Unlock()
		return err
	}
	req := medos.VerifyOTPRequest{
		CountryCode: w.s.CountryCode,
		PhoneNumber: NormalizePhone(w.s.Phone),
		OTPCode:     w.s.OTPCode,
	}
	w.s.OTPVerifying = true
	w.s.Error = ""
	w.acquire()
	w.mu.Unlock()

	raw, err := w.svc.Patients.VerifyPhoneVerificationOTP(ctx, req)

	w.mu.Lock()
	w.release()
	w.s.OTPVerifying = false
	if !w.s.OTPSent || !w.samePhone(req.CountryCode, req.PhoneNumber) {
		w.mu.Unlock()
		w.logger.Debug("discarding otp verification for replaced number")
		return nil
	}
	if err != nil {
		w.s.Error = userMessage(err, msgOTPVerifyFailed)
		w.mu.Unlock()
		w.observer.ObserveOTP("verify", "error")
		w.logger.Warn("otp verification failed", "error", err)
		w.reportError(err)
		return err
	}

	v, nerr := NormalizeVerification(raw)
	if nerr != nil {
		w.logger.Warn("unrecognised verification response", "error", nerr)
	}
	w.s.OTPVerified = true
	w.s.VerifiedPatients = v.Patients
	w.s.UserSessionPacks = v.SessionPacks
	w.s.AvailablePackages = v.Packages

	from := w.s.Step
	next, effects, terr := Next(w.s)
	if terr == nil {
		w.s = next
	}
	to := w.s.Step
	w.mu.Unlock()

	w.observer.ObserveOTP("verify", "ok")
	w.logger.Info("phone verified",
		"patients", len(v.Patients),
		"session_packs", len(v.SessionPacks),
		"packages", len(v.Packages),
	)
	if terr != nil {
		return nil
	}
	w.observer.ObserveStep(from.String(), to.String())
	return w.runEffects(ctx, effects)
}

// ChangePhoneNumber discards the verification and everything derived from it.
func (w *Wizard) ChangePhoneNumber() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.s.OTPCode = ""
	w.s.OTPSent = false
	w.s.OTPVerified = false
	w.s.OTPSending = false
	w.s.OTPVerifying = false
	w.s.VerifiedPatients = nil
	w.s.UserSessionPacks = nil
	w.s.AvailablePackages = nil
	w.s.SelectedPatientID = 0
	w.s.SelectedSessionPack = 0
	w.s.SelectedNewPackage = 0
	w.s.BookingOption = ""
	w.s.ShowPackageExplorer = false
	w.s.BookingType = BookingOneTime
	w.s.Step = StepPhoneVerification
	w.s.Error = ""
}

func (w *Wizard) samePhone(countryCode, digits string) bool {
	return w.s.CountryCode == countryCode && NormalizePhone(w.s.Phone) == digits
}
