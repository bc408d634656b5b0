package wizard

import (
	"sort"
	"time"
)

// SlotPeriod buckets slots by the clinic-local start hour.
type SlotPeriod string

const (
	PeriodMorning   SlotPeriod = "Morning"
	PeriodAfternoon SlotPeriod = "Afternoon"
	PeriodEvening   SlotPeriod = "Evening"
)

// SlotGroup is one period with its slots in start order.
type SlotGroup struct {
	Period SlotPeriod
	Slots  []Slot
}

// PeriodOf classifies a start time: before 12 is morning, 12 to 16 afternoon
// and 17 onwards evening.
func PeriodOf(start time.Time, loc *time.Location) SlotPeriod {
	if loc == nil {
		loc = time.UTC
	}
	switch h := start.In(loc).Hour(); {
	case h < 12:
		return PeriodMorning
	case h < 17:
		return PeriodAfternoon
	default:
		return PeriodEvening
	}
}

// GroupSlots partitions slots into morning, afternoon and evening. Every slot
// lands in exactly one group. Empty groups are omitted.
func GroupSlots(slots []Slot, loc *time.Location) []SlotGroup {
	buckets := map[SlotPeriod][]Slot{}
	for _, s := range slots {
		p := PeriodOf(s.Start, loc)
		buckets[p] = append(buckets[p], s)
	}

	groups := make([]SlotGroup, 0, 3)
	for _, p := range []SlotPeriod{PeriodMorning, PeriodAfternoon, PeriodEvening} {
		bucket := buckets[p]
		if len(bucket) == 0 {
			continue
		}
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].Start.Before(bucket[j].Start) })
		groups = append(groups, SlotGroup{Period: p, Slots: bucket})
	}
	return groups
}

// validDate reports whether date is YYYY-MM-DD and not before today in loc.
func validDate(date string, now time.Time, loc *time.Location) bool {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return false
	}
	y, m, d := now.In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return !day.Before(today)
}
