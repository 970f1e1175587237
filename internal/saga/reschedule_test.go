package saga_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/saga"
)

func TestRescheduleSagaMovesAcrossDoctors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	oldID := f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	newID := f.addSchedule(t, "doc-2", "2032-01-21", "10:00", "16:00")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "10:00"), "persistent cough")

	target := at(t, "2032-01-21", "14:00")
	s := f.rescheduleSaga()
	if err := s.Start(ctx, "a1", target, "doc-2"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Execute(ctx, "a1"); err != nil {
		t.Fatalf("execute: %v", err)
	}

	appt := f.appointment(t, "a1")
	if appt.Status != appointment.StatusScheduled {
		t.Fatalf("status = %s, want SCHEDULED", appt.Status)
	}
	if appt.DoctorID != "doc-2" || !appt.DateTime.Equal(target) {
		t.Fatalf("appointment not moved: %+v", appt)
	}
	if sched := f.schedule(t, newID); !hasSlot(sched, "a1", clockTime(t, "14:00")) {
		t.Fatalf("new slot not held, slots = %v", sched.Slots)
	}
	if sched := f.schedule(t, oldID); len(sched.Slots) != 0 {
		t.Fatalf("old slot not released, slots = %v", sched.Slots)
	}
}

func TestRescheduleSagaAbandonsOnSlotConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	oldID := f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	newID := f.addSchedule(t, "doc-1", "2032-01-21", "10:00", "16:00")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "10:00"), "persistent cough")
	f.bookAppointment(t, "other", "doc-1", at(t, "2032-01-21", "14:00"), "checkup")

	s := f.rescheduleSaga()
	if err := s.Run(ctx, "a1", at(t, "2032-01-21", "14:00"), "doc-1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	appt := f.appointment(t, "a1")
	if appt.Status != appointment.StatusScheduled {
		t.Fatalf("status = %s, want SCHEDULED", appt.Status)
	}
	if appt.DoctorID != "doc-1" || !appt.DateTime.Equal(at(t, "2032-01-20", "10:00")) {
		t.Fatalf("appointment changed despite conflict: %+v", appt)
	}
	if sched := f.schedule(t, oldID); len(sched.Slots) != 1 {
		t.Fatalf("old schedule slot count = %d, want 1", len(sched.Slots))
	}
	if sched := f.schedule(t, newID); len(sched.Slots) != 1 {
		t.Fatalf("new schedule slot count = %d, want 1", len(sched.Slots))
	}
}

// failingAppointments makes the update step fail while delegating everything
// else to the real service.
type failingAppointments struct {
	saga.AppointmentClient
}

func (f failingAppointments) Reschedule(ctx context.Context, id string, dateTime time.Time, doctorID string) error {
	return errors.New("store unavailable")
}

func TestRescheduleSagaReleasesNewSlotWhenUpdateFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	oldID := f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	newID := f.addSchedule(t, "doc-2", "2032-01-21", "10:00", "16:00")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "10:00"), "persistent cough")

	s := saga.NewRescheduleSaga(f.sagas, failingAppointments{f.appts}, f.scheds, saga.Config{}, nil, nil)
	if err := s.Run(ctx, "a1", at(t, "2032-01-21", "14:00"), "doc-2"); err != nil {
		t.Fatalf("run: %v", err)
	}

	appt := f.appointment(t, "a1")
	if appt.DoctorID != "doc-1" || !appt.DateTime.Equal(at(t, "2032-01-20", "10:00")) {
		t.Fatalf("appointment changed: %+v", appt)
	}
	if sched := f.schedule(t, newID); len(sched.Slots) != 0 {
		t.Fatalf("new slot not released, slots = %v", sched.Slots)
	}
	if sched := f.schedule(t, oldID); len(sched.Slots) != 1 {
		t.Fatalf("old schedule slot count = %d, want 1", len(sched.Slots))
	}
}

func TestRescheduleSagaMissingAppointment(t *testing.T) {
	f := newFixture()
	s := f.rescheduleSaga()

	err := s.Start(context.Background(), "ghost", at(t, "2032-01-21", "14:00"), "doc-2")
	if !errors.Is(err, appointment.ErrNotFound) {
		t.Fatalf("err = %v, want appointment.ErrNotFound", err)
	}
}

func TestRescheduleSagaRejectsTerminalAppointment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "10:00"), "persistent cough")
	if err := f.appts.Cancel(ctx, "a1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	err := f.rescheduleSaga().Start(ctx, "a1", at(t, "2032-01-21", "14:00"), "doc-1")
	if !errors.Is(err, appointment.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestRescheduleSagaInFlightRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "10:00"), "persistent cough")

	s := f.rescheduleSaga()
	if err := s.Start(ctx, "a1", at(t, "2032-01-21", "14:00"), "doc-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := s.Start(ctx, "a1", at(t, "2032-01-22", "14:00"), "doc-1")
	if !errors.Is(err, saga.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestRescheduleSagaRestartsAfterCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	f.addSchedule(t, "doc-2", "2032-01-21", "10:00", "16:00")
	newID := f.addSchedule(t, "doc-3", "2032-01-22", "10:00", "16:00")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "10:00"), "persistent cough")

	s := f.rescheduleSaga()
	if err := s.Run(ctx, "a1", at(t, "2032-01-21", "14:00"), "doc-2"); err != nil {
		t.Fatalf("first reschedule: %v", err)
	}
	// 09:00 is outside doc-3's hours; the saga abandons and the appointment
	// stays where it is.
	if err := s.Run(ctx, "a1", at(t, "2032-01-22", "09:00"), "doc-3"); err != nil {
		t.Fatalf("abandoned reschedule: %v", err)
	}
	if appt := f.appointment(t, "a1"); appt.DoctorID != "doc-2" {
		t.Fatalf("appointment moved despite abandoned reschedule: %+v", appt)
	}
	if err := s.Run(ctx, "a1", at(t, "2032-01-22", "11:00"), "doc-3"); err != nil {
		t.Fatalf("third reschedule: %v", err)
	}

	appt := f.appointment(t, "a1")
	if appt.DoctorID != "doc-3" || !appt.DateTime.Equal(at(t, "2032-01-22", "11:00")) {
		t.Fatalf("appointment not moved: %+v", appt)
	}
	if sched := f.schedule(t, newID); !hasSlot(sched, "a1", clockTime(t, "11:00")) {
		t.Fatalf("final slot not held, slots = %v", sched.Slots)
	}
}

func TestRescheduleSagaRestartAdmitsSingleRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	f.addSchedule(t, "doc-2", "2032-01-21", "10:00", "16:00")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "10:00"), "persistent cough")

	s := f.rescheduleSaga()
	if err := s.Run(ctx, "a1", at(t, "2032-01-21", "14:00"), "doc-2"); err != nil {
		t.Fatalf("first reschedule: %v", err)
	}

	// The first restart flips the finished saga back to its initial step;
	// a second restart before that run finishes must lose.
	if err := s.Start(ctx, "a1", at(t, "2032-01-21", "15:00"), "doc-2"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	err := s.Start(ctx, "a1", at(t, "2032-01-21", "15:30"), "doc-2")
	if !errors.Is(err, saga.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}
