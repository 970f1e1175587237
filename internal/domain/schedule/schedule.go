// Package schedule implements a doctor's per-day schedule aggregate: a single
// mutable record whose slot list is re-validated as a whole on every write.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MinSlotDuration is the minimum length of a bookable slot.
const MinSlotDuration = 5 * time.Minute

// DateLayout is the wire format for schedule dates.
const DateLayout = "2006-01-02"

// Command rejections surfaced to callers.
var (
	ErrAlreadyExists = errors.New("schedule already exists")
	ErrNotFound      = errors.New("schedule not found")
	ErrInvalidSlot   = errors.New("invalid time slot")
	ErrSlotNotFound  = errors.New("time slot not found")
	ErrNotActive     = errors.New("schedule is not accepting bookings")
)

// Status represents schedule status
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusBlocked Status = "BLOCKED"
	StatusDeleted Status = "DELETED"
)

// TimeOfDay is a clock time within one day, stored as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "15:04" formatted clock times.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// TimeOfDayFromTime extracts the clock time of a timestamp.
func TimeOfDayFromTime(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Add shifts the clock time forward by d (truncated to whole minutes).
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

// Sub returns the duration from o to t.
func (t TimeOfDay) Sub(o TimeOfDay) time.Duration {
	return time.Duration(t-o) * time.Minute
}

// Before reports whether t is earlier than o.
func (t TimeOfDay) Before(o TimeOfDay) bool { return t < o }

// After reports whether t is later than o.
func (t TimeOfDay) After(o TimeOfDay) bool { return t > o }

// On combines the clock time with a calendar day.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(t)/60, int(t)%60, 0, 0, day.Location())
}

// MarshalJSON renders the "15:04" form.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts the "15:04" form.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	parsed, err := ParseTimeOfDay(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ID identifies one doctor's schedule for one calendar day.
type ID struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
}

// NewID builds a schedule ID from a doctor and a day.
func NewID(doctorID string, day time.Time) ID {
	return ID{DoctorID: doctorID, Date: day.Format(DateLayout)}
}

// String serializes the composite key as a single token.
func (id ID) String() string { return id.DoctorID + "@" + id.Date }

// ParseID parses the "doctorId@date" token.
func ParseID(s string) (ID, error) {
	doctorID, date, ok := strings.Cut(s, "@")
	if !ok || doctorID == "" {
		return ID{}, fmt.Errorf("invalid schedule id %q", s)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return ID{}, fmt.Errorf("invalid schedule id %q: %w", s, err)
	}
	return ID{DoctorID: doctorID, Date: date}, nil
}

// Day returns the calendar day of the schedule.
func (id ID) Day() (time.Time, error) {
	return time.Parse(DateLayout, id.Date)
}

// WorkingHours is the half-open window slots must fall in: start inclusive,
// end exclusive.
type WorkingHours struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// NewWorkingHours validates that the window is non-empty.
func NewWorkingHours(start, end TimeOfDay) (WorkingHours, error) {
	if !start.Before(end) {
		return WorkingHours{}, fmt.Errorf("%w: start time must be before end time", ErrInvalidSlot)
	}
	return WorkingHours{Start: start, End: end}, nil
}

// Contains reports whether the slot lies fully within the window.
func (w WorkingHours) Contains(slot TimeSlot) bool {
	return !slot.Start.Before(w.Start) && !slot.End.After(w.End)
}

// TimeSlot is a reserved half-open interval tied to one appointment.
type TimeSlot struct {
	Start         TimeOfDay `json:"start"`
	End           TimeOfDay `json:"end"`
	AppointmentID string    `json:"appointment_id"`
}

// Overlaps uses the half-open interval intersection test.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return other.Start.Before(s.End) && other.End.After(s.Start)
}

// Schedule is one doctor's calendar day. Mutating methods return a new value;
// the caller persists it with a per-key atomic replace.
type Schedule struct {
	ID           ID           `json:"id"`
	WorkingHours WorkingHours `json:"working_hours"`
	Slots        []TimeSlot   `json:"slots"`
	Status       Status       `json:"status"`
}

// New creates an empty ACTIVE schedule.
func New(id ID, workingHours WorkingHours) *Schedule {
	return &Schedule{
		ID:           id,
		WorkingHours: workingHours,
		Slots:        []TimeSlot{},
		Status:       StatusActive,
	}
}

// validate re-checks all slot invariants over the full set.
func (s *Schedule) validate() error {
	for i, slot := range s.Slots {
		if !slot.Start.Before(slot.End) {
			return fmt.Errorf("%w: start time must be before end time", ErrInvalidSlot)
		}
		if slot.End.Sub(slot.Start) < MinSlotDuration {
			return fmt.Errorf("%w: slot duration must be at least %s", ErrInvalidSlot, MinSlotDuration)
		}
		if !s.WorkingHours.Contains(slot) {
			return fmt.Errorf("%w: slot %s-%s is outside working hours", ErrInvalidSlot, slot.Start, slot.End)
		}
		for _, other := range s.Slots[i+1:] {
			if slot.Overlaps(other) {
				return fmt.Errorf("%w: slot %s-%s overlaps another appointment", ErrInvalidSlot, slot.Start, slot.End)
			}
			if slot.AppointmentID == other.AppointmentID && slot.Start == other.Start {
				return fmt.Errorf("%w: duplicate slot for appointment %s", ErrInvalidSlot, slot.AppointmentID)
			}
		}
	}
	return nil
}

// ScheduleAppointment returns a copy with the new slot added, re-validating
// the entire slot set. The receiver is left unchanged on failure.
func (s *Schedule) ScheduleAppointment(start TimeOfDay, duration time.Duration, appointmentID string) (*Schedule, error) {
	if s.Status != StatusActive {
		return nil, ErrNotActive
	}
	next := s.withSlots(append(s.copySlots(), TimeSlot{
		Start:         start,
		End:           start.Add(duration),
		AppointmentID: appointmentID,
	}))
	if err := next.validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// RemoveTimeSlot removes the unique slot matching both appointment id and
// start time. Matching on both fields guards against removing the wrong slot
// after a reschedule race.
func (s *Schedule) RemoveTimeSlot(appointmentID string, start TimeOfDay) (*Schedule, error) {
	slots := s.copySlots()
	for i, slot := range slots {
		if slot.AppointmentID == appointmentID && slot.Start == start {
			return s.withSlots(append(slots[:i], slots[i+1:]...)), nil
		}
	}
	return nil, ErrSlotNotFound
}

// Block freezes the schedule against new bookings.
func (s *Schedule) Block() *Schedule {
	next := s.withSlots(s.copySlots())
	next.Status = StatusBlocked
	return next
}

// Delete soft-deletes the schedule; the record is retained.
func (s *Schedule) Delete() *Schedule {
	next := s.withSlots(s.copySlots())
	next.Status = StatusDeleted
	return next
}

// AppointmentIDs lists the booked appointment ids in slot order.
func (s *Schedule) AppointmentIDs() []string {
	ids := make([]string, 0, len(s.Slots))
	for _, slot := range s.Slots {
		ids = append(ids, slot.AppointmentID)
	}
	return ids
}

// SortedSlots returns the slots ordered by start time.
func (s *Schedule) SortedSlots() []TimeSlot {
	slots := s.copySlots()
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

func (s *Schedule) copySlots() []TimeSlot {
	slots := make([]TimeSlot, len(s.Slots))
	copy(slots, s.Slots)
	return slots
}

func (s *Schedule) withSlots(slots []TimeSlot) *Schedule {
	return &Schedule{ID: s.ID, WorkingHours: s.WorkingHours, Slots: slots, Status: s.Status}
}
