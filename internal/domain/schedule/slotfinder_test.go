package schedule

import (
	"testing"
	"time"
)

func finderSchedule(t *testing.T, slots ...TimeSlot) *Schedule {
	t.Helper()
	hours, err := NewWorkingHours(mustTime(t, "10:00"), mustTime(t, "16:00"))
	if err != nil {
		t.Fatalf("working hours: %v", err)
	}
	s := New(ID{DoctorID: "doc-1", Date: "2032-01-20"}, hours)
	s.Slots = slots
	return s
}

func mustTime(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tod
}

func TestFirstAvailableSlotEmptyDay(t *testing.T) {
	s := finderSchedule(t)

	start, ok := FirstAvailableSlot(s, 30*time.Minute)
	if !ok {
		t.Fatal("expected a slot on an empty day")
	}
	if start != mustTime(t, "10:00") {
		t.Fatalf("start = %s, want 10:00", start)
	}
}

func TestFirstAvailableSlotGapBetweenSlots(t *testing.T) {
	// Slots [10:00-10:30] and [11:00-11:30]; the first 30m gap is 10:30.
	s := finderSchedule(t,
		TimeSlot{Start: mustTime(t, "10:00"), End: mustTime(t, "10:30"), AppointmentID: "a1"},
		TimeSlot{Start: mustTime(t, "11:00"), End: mustTime(t, "11:30"), AppointmentID: "a2"},
	)

	start, ok := FirstAvailableSlot(s, 30*time.Minute)
	if !ok {
		t.Fatal("expected a slot")
	}
	if start != mustTime(t, "10:30") {
		t.Fatalf("start = %s, want 10:30", start)
	}
}

func TestFirstAvailableSlotGapBeforeFirstSlot(t *testing.T) {
	s := finderSchedule(t,
		TimeSlot{Start: mustTime(t, "11:00"), End: mustTime(t, "11:30"), AppointmentID: "a1"},
	)

	start, ok := FirstAvailableSlot(s, 30*time.Minute)
	if !ok {
		t.Fatal("expected a slot")
	}
	if start != mustTime(t, "10:00") {
		t.Fatalf("start = %s, want 10:00", start)
	}
}

func TestFirstAvailableSlotExactFitQualifies(t *testing.T) {
	// The gap between the two slots is exactly the required duration.
	s := finderSchedule(t,
		TimeSlot{Start: mustTime(t, "10:00"), End: mustTime(t, "11:00"), AppointmentID: "a1"},
		TimeSlot{Start: mustTime(t, "11:30"), End: mustTime(t, "16:00"), AppointmentID: "a2"},
	)

	start, ok := FirstAvailableSlot(s, 30*time.Minute)
	if !ok {
		t.Fatal("expected the exact-fit gap to qualify")
	}
	if start != mustTime(t, "11:00") {
		t.Fatalf("start = %s, want 11:00", start)
	}
}

func TestFirstAvailableSlotTailGap(t *testing.T) {
	s := finderSchedule(t,
		TimeSlot{Start: mustTime(t, "10:00"), End: mustTime(t, "15:45"), AppointmentID: "a1"},
	)

	if _, ok := FirstAvailableSlot(s, 30*time.Minute); ok {
		t.Fatal("15m tail should not fit 30m")
	}

	start, ok := FirstAvailableSlot(s, 15*time.Minute)
	if !ok {
		t.Fatal("expected the tail gap for 15m")
	}
	if start != mustTime(t, "15:45") {
		t.Fatalf("start = %s, want 15:45", start)
	}
}

func TestFirstAvailableSlotFullDay(t *testing.T) {
	s := finderSchedule(t,
		TimeSlot{Start: mustTime(t, "10:00"), End: mustTime(t, "16:00"), AppointmentID: "a1"},
	)

	if _, ok := FirstAvailableSlot(s, 5*time.Minute); ok {
		t.Fatal("expected no slot on a fully booked day")
	}
}

func TestFirstAvailableSlotUnsortedStorage(t *testing.T) {
	// Stored order is not guaranteed; the scan must sort first.
	s := finderSchedule(t,
		TimeSlot{Start: mustTime(t, "14:00"), End: mustTime(t, "16:00"), AppointmentID: "a2"},
		TimeSlot{Start: mustTime(t, "10:00"), End: mustTime(t, "12:00"), AppointmentID: "a1"},
	)

	start, ok := FirstAvailableSlot(s, time.Hour)
	if !ok {
		t.Fatal("expected a slot")
	}
	if start != mustTime(t, "12:00") {
		t.Fatalf("start = %s, want 12:00", start)
	}
}
