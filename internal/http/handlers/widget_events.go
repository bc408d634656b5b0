package handlers

import (
	"context"

	"github.com/wolfman30/medos-booking/internal/medos"
	"github.com/wolfman30/medos-booking/internal/wizard"
)

func (h *WidgetHandler) next(ctx context.Context, w *wizard.Wizard, _ []byte) error {
	return w.Next(ctx)
}

func (h *WidgetHandler) back(_ context.Context, w *wizard.Wizard, _ []byte) error {
	return w.Back()
}

func (h *WidgetHandler) reset(ctx context.Context, w *wizard.Wizard, _ []byte) error {
	return w.Reset(ctx)
}

type phoneRequest struct {
	CountryCode *string `json:"countryCode"`
	PhoneNumber *string `json:"phoneNumber"`
}

func (h *WidgetHandler) sendOTP(ctx context.Context, w *wizard.Wizard, body []byte) error {
	var req phoneRequest
	if err := decode(body, &req); err != nil {
		return err
	}
	if req.CountryCode != nil || req.PhoneNumber != nil {
		s := w.State()
		cc, phone := s.CountryCode, s.Phone
		if req.CountryCode != nil {
			cc = *req.CountryCode
		}
		if req.PhoneNumber != nil {
			phone = *req.PhoneNumber
		}
		if err := w.SetPhone(cc, phone); err != nil {
			return err
		}
	}
	return w.SendOTP(ctx)
}

func (h *WidgetHandler) resendOTP(ctx context.Context, w *wizard.Wizard, _ []byte) error {
	return w.ResendOTP(ctx)
}

func (h *WidgetHandler) verifyOTP(ctx context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		OTPCode string `json:"otpCode"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	if req.OTPCode != "" {
		w.SetOTPCode(req.OTPCode)
	}
	return w.VerifyOTP(ctx)
}

func (h *WidgetHandler) changePhone(_ context.Context, w *wizard.Wizard, _ []byte) error {
	w.ChangePhoneNumber()
	return nil
}

func (h *WidgetHandler) selectAddress(_ context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		AddressID medos.FlexInt `json:"addressId"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	return w.SelectAddress(int64(req.AddressID))
}

func (h *WidgetHandler) selectDoctor(_ context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		DoctorID medos.FlexInt `json:"doctorId"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	return w.SelectDoctor(int64(req.DoctorID))
}

func (h *WidgetHandler) setDate(ctx context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		Date string `json:"date"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	return w.SetDate(ctx, req.Date)
}

func (h *WidgetHandler) selectSlot(_ context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		SlotID string `json:"slotId"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	return w.SelectSlot(req.SlotID)
}

func (h *WidgetHandler) setBookingOption(_ context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		Option wizard.BookingOption `json:"option"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	return w.SetBookingOption(req.Option)
}

func (h *WidgetHandler) selectSessionPack(_ context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		SessionPackID medos.FlexInt `json:"sessionPackId"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	return w.SelectSessionPack(int64(req.SessionPackID))
}

func (h *WidgetHandler) selectPackage(_ context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		PackageID medos.FlexInt `json:"packageId"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	return w.SelectNewPackage(int64(req.PackageID))
}

func (h *WidgetHandler) updatePatient(_ context.Context, w *wizard.Wizard, body []byte) error {
	var patch wizard.PatientPatch
	if err := decode(body, &patch); err != nil {
		return err
	}
	w.UpdatePatient(patch)
	return nil
}

func (h *WidgetHandler) selectPatient(_ context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		PatientID medos.FlexInt `json:"patientId"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	return w.SelectPatient(int64(req.PatientID))
}

func (h *WidgetHandler) setConsultationMode(_ context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		Mode wizard.ConsultationMode `json:"mode"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	return w.SetConsultationMode(req.Mode)
}

func (h *WidgetHandler) setPaymentMode(_ context.Context, w *wizard.Wizard, body []byte) error {
	var req struct {
		Mode wizard.PaymentMode `json:"mode"`
	}
	if err := decode(body, &req); err != nil {
		return err
	}
	return w.SetPaymentMode(req.Mode)
}

func (h *WidgetHandler) submit(ctx context.Context, w *wizard.Wizard, _ []byte) error {
	return w.Submit(ctx)
}
