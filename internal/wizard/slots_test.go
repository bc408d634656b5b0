package wizard

import (
	"testing"
	"time"
)

func TestPeriodOfBoundaries(t *testing.T) {
	tests := []struct {
		hour, minute int
		want         SlotPeriod
	}{
		{0, 0, PeriodMorning},
		{11, 59, PeriodMorning},
		{12, 0, PeriodAfternoon},
		{16, 59, PeriodAfternoon},
		{17, 0, PeriodEvening},
		{23, 30, PeriodEvening},
	}
	for _, tt := range tests {
		start := time.Date(2026, 3, 10, tt.hour, tt.minute, 0, 0, ist)
		if got := PeriodOf(start, ist); got != tt.want {
			t.Errorf("PeriodOf(%02d:%02d) = %s, want %s", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestPeriodOfUsesClinicZone(t *testing.T) {
	start := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	if got := PeriodOf(start, ist); got != PeriodAfternoon {
		t.Fatalf("06:30 UTC in IST = %s, want afternoon", got)
	}
	if got := PeriodOf(start, nil); got != PeriodMorning {
		t.Fatalf("06:30 UTC with nil zone = %s, want morning", got)
	}
}

func TestGroupSlotsPartitions(t *testing.T) {
	slots := []Slot{slotAt(18, 0), slotAt(9, 30), slotAt(12, 0), slotAt(9, 0), slotAt(17, 0)}
	groups := GroupSlots(slots, ist)

	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	wantOrder := []SlotPeriod{PeriodMorning, PeriodAfternoon, PeriodEvening}
	total := 0
	for i, g := range groups {
		if g.Period != wantOrder[i] {
			t.Errorf("group %d = %s, want %s", i, g.Period, wantOrder[i])
		}
		for j := 1; j < len(g.Slots); j++ {
			if g.Slots[j].Start.Before(g.Slots[j-1].Start) {
				t.Errorf("group %s not sorted", g.Period)
			}
		}
		total += len(g.Slots)
	}
	if total != len(slots) {
		t.Fatalf("grouped %d slots, want %d", total, len(slots))
	}
	if groups[0].Slots[0].ID != "s0900" {
		t.Errorf("first morning slot = %s", groups[0].Slots[0].ID)
	}
}

func TestGroupSlotsOmitsEmptyPeriods(t *testing.T) {
	groups := GroupSlots([]Slot{slotAt(19, 0)}, ist)
	if len(groups) != 1 || groups[0].Period != PeriodEvening {
		t.Fatalf("groups = %+v", groups)
	}
	if got := GroupSlots(nil, ist); len(got) != 0 {
		t.Fatalf("expected no groups, got %+v", got)
	}
}
