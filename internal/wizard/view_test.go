package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_InitialSession(t *testing.T) {
	v := Project(NewSession(), ist)

	assert.Equal(t, "phone_verification", v.StepName)
	assert.Equal(t, "Verify Phone", v.Title)
	assert.Equal(t, OTPNotSent, v.OTPState)
	assert.False(t, v.CanGoNext)
	assert.False(t, v.CanGoBack)
	assert.Equal(t, []BookingOption{OptionNewAppointment}, v.BookingOptions)
	require.Len(t, v.Progress, 8)
	assert.Equal(t, StepCurrent, v.Progress[0].Status)
	assert.Equal(t, StepUpcoming, v.Progress[7].Status)
	assert.Nil(t, v.Summary)
}

func TestProject_Pickers(t *testing.T) {
	s := catalogueSession(t)
	s.Step = StepLocationDoctor
	require.NoError(t, applyAddress(&s, 1))

	v := Project(s, ist)
	assert.True(t, v.ShowAddressPicker)
	assert.True(t, v.ShowDoctorPicker)
	assert.False(t, v.CanGoNext, "doctor missing")
	assert.True(t, v.CanGoBack)
	assert.Equal(t, StepComplete, v.Progress[1].Status)

	require.NoError(t, applyAddress(&s, 2))
	v = Project(s, ist)
	assert.False(t, v.ShowDoctorPicker)
	assert.True(t, v.CanGoNext)
}

func TestProject_ExplorerTitleAndOptions(t *testing.T) {
	s := catalogueSession(t)
	s.Step = StepLocationDoctor
	s.ShowPackageExplorer = true
	s.UserSessionPacks = []SessionPack{{ID: 40}}
	s.AvailablePackages = []Package{{ID: 7}}

	v := Project(s, ist)
	assert.Equal(t, "Explore Packages", v.Title)
	assert.Equal(t, []BookingOption{OptionSessionPack, OptionNewAppointment, OptionExplorePackages}, v.BookingOptions)
}

func TestProject_SlotGroups(t *testing.T) {
	s := catalogueSession(t)
	s.Step = StepDateSlot
	s.Slots = []Slot{slotAt(14, 0), slotAt(9, 0), slotAt(18, 30)}
	selected := slotAt(14, 0)
	s.SelectedSlot = &selected

	v := Project(s, ist)
	require.Len(t, v.SlotGroups, 3)
	assert.Equal(t, PeriodMorning, v.SlotGroups[0].Period)
	assert.Equal(t, "09:00", v.SlotGroups[0].Slots[0].Start)
	assert.Equal(t, "09:30", v.SlotGroups[0].Slots[0].End)
	assert.True(t, v.SlotGroups[1].Slots[0].Selected)
	assert.False(t, v.SlotGroups[2].Slots[0].Selected)
	assert.True(t, v.CanGoNext)
}

func TestProject_Summary(t *testing.T) {
	s := catalogueSession(t)
	require.NoError(t, applyAddress(&s, 1))
	require.NoError(t, applyDoctor(&s, 11))
	s.Step = StepSummary
	s.SelectedDate = testDate
	slot := slotAt(17, 0)
	s.Slots = []Slot{slot}
	s.SelectedSlot = &slot
	s.Patient.Name = "Asha Rao"
	s.Phone = "98765 43210"

	v := Project(s, ist)
	require.NotNil(t, v.Summary)
	assert.Equal(t, "Dr. Rao", v.Summary.DoctorName)
	assert.Equal(t, "Downtown", v.Summary.AddressLabel)
	assert.Equal(t, "17:00 - 17:30", v.Summary.Time)
	assert.Equal(t, "+91 9876543210", v.Summary.PatientPhone)
	assert.Equal(t, "700.00", v.Summary.Charge)
	assert.False(t, v.CanGoNext, "booking happens through submit")

	s.BookingType = BookingPackagePurchase
	s.AvailablePackages = []Package{{ID: 7, Name: "Physio x5", Price: 2500}}
	s.SelectedNewPackage = 7
	v = Project(s, ist)
	assert.Equal(t, "Physio x5", v.Summary.PackageName)
	assert.Equal(t, "2500.00", v.Summary.Charge)
}
