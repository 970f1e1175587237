package saga_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/schedule"
	"github.com/medly/go-clinic/internal/saga"
)

func TestCascadeRelocatesAndCancels(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addDoctor("doc-1", "cardiology")
	f.addDoctor("doc-2", "cardiology")
	deletedID := f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	// doc-2's day has room for exactly one 30m appointment.
	otherID := f.addSchedule(t, "doc-2", "2032-01-20", "10:00", "10:30")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "11:00"), "chest pain when climbing stairs")
	f.bookAppointment(t, "a2", "doc-1", at(t, "2032-01-20", "11:30"), "routine checkup")

	s := f.cascadeSaga(stubClassifier{label: "high"}, stubClassifier{label: "cardiology"})
	if err := s.Start(ctx, deletedID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Execute(ctx, deletedID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	a1 := f.appointment(t, "a1")
	if a1.Status != appointment.StatusScheduled {
		t.Fatalf("a1 status = %s, want SCHEDULED", a1.Status)
	}
	if a1.DoctorID != "doc-2" || !a1.DateTime.Equal(at(t, "2032-01-20", "10:00")) {
		t.Fatalf("a1 not relocated: %+v", a1)
	}
	if sched := f.schedule(t, otherID); !hasSlot(sched, "a1", clockTime(t, "10:00")) {
		t.Fatalf("relocated slot not held, slots = %v", sched.Slots)
	}

	if a2 := f.appointment(t, "a2"); a2.Status != appointment.StatusCancelled {
		t.Fatalf("a2 status = %s, want CANCELLED", a2.Status)
	}

	if sched := f.schedule(t, deletedID); sched.Status != schedule.StatusDeleted {
		t.Fatalf("schedule status = %s, want DELETED", sched.Status)
	}
	if step := f.sagaStep(t, saga.CascadeID(deletedID)); step != saga.StepDone {
		t.Fatalf("saga step = %s, want done", step)
	}
}

func TestCascadeSpecialtyFallbackToOriginalDoctor(t *testing.T) {
	// Implausibly long classifier output falls back to the original doctor's
	// first specialty.
	ctx := context.Background()
	f := newFixture()
	f.addDoctor("doc-1", "dermatology")
	f.addDoctor("doc-2", "dermatology")
	deletedID := f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	f.addSchedule(t, "doc-2", "2032-01-20", "10:00", "16:00")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "11:00"), "itchy rash on forearm")

	garbage := stubClassifier{label: strings.Repeat("dermatology ", 10)}
	s := f.cascadeSaga(stubClassifier{label: "low"}, garbage)
	if err := s.Start(ctx, deletedID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Execute(ctx, deletedID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	a1 := f.appointment(t, "a1")
	if a1.Status != appointment.StatusScheduled || a1.DoctorID != "doc-2" {
		t.Fatalf("a1 not relocated via fallback specialty: %+v", a1)
	}
}

func TestCascadeUnrelocatableWithoutSpecialty(t *testing.T) {
	// Classifier down and the original doctor lists no specialties: the
	// appointment cannot be relocated and is cancelled.
	ctx := context.Background()
	f := newFixture()
	f.addDoctor("doc-1")
	f.addDoctor("doc-2", "cardiology")
	deletedID := f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	f.addSchedule(t, "doc-2", "2032-01-20", "10:00", "16:00")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "11:00"), "persistent cough")

	down := stubClassifier{err: errors.New("model unavailable")}
	s := f.cascadeSaga(down, down)
	if err := s.Start(ctx, deletedID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Execute(ctx, deletedID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if a1 := f.appointment(t, "a1"); a1.Status != appointment.StatusCancelled {
		t.Fatalf("a1 status = %s, want CANCELLED", a1.Status)
	}
	if sched := f.schedule(t, deletedID); sched.Status != schedule.StatusDeleted {
		t.Fatalf("schedule status = %s, want DELETED", sched.Status)
	}
}

func TestCascadeUrgencyBoundsSearchWindow(t *testing.T) {
	// The only open schedule is 10 days out: inside the 14-day routine window,
	// outside the 7-day urgent one. A failed urgency classification defaults
	// to low, so the far schedule is still reachable.
	cases := []struct {
		name      string
		urgency   saga.Classifier
		wantMoved bool
	}{
		{"high urgency misses far slot", stubClassifier{label: "high"}, false},
		{"low urgency reaches far slot", stubClassifier{label: "low"}, true},
		{"classifier failure defaults to low", stubClassifier{err: errors.New("model unavailable")}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()
			f.addDoctor("doc-1", "cardiology")
			f.addDoctor("doc-2", "cardiology")
			deletedID := f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
			f.addSchedule(t, "doc-2", "2032-01-30", "10:00", "16:00")
			f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "11:00"), "chest pain")

			s := f.cascadeSaga(tc.urgency, stubClassifier{label: "cardiology"})
			if err := s.Start(ctx, deletedID); err != nil {
				t.Fatalf("start: %v", err)
			}
			if err := s.Execute(ctx, deletedID); err != nil {
				t.Fatalf("execute: %v", err)
			}

			a1 := f.appointment(t, "a1")
			if tc.wantMoved {
				if a1.Status != appointment.StatusScheduled || a1.DoctorID != "doc-2" {
					t.Fatalf("a1 not relocated: %+v", a1)
				}
				if !a1.DateTime.Equal(at(t, "2032-01-30", "10:00")) {
					t.Fatalf("a1 date = %s, want 2032-01-30 10:00", a1.DateTime)
				}
			} else if a1.Status != appointment.StatusCancelled {
				t.Fatalf("a1 status = %s, want CANCELLED", a1.Status)
			}
		})
	}
}

func TestCascadeSkipsTerminalAppointments(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addDoctor("doc-1", "cardiology")
	deletedID := f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")
	f.bookAppointment(t, "a1", "doc-1", at(t, "2032-01-20", "11:00"), "follow-up")
	if err := f.appts.Complete(ctx, "a1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	s := f.cascadeSaga(stubClassifier{label: "low"}, stubClassifier{label: "cardiology"})
	if err := s.Start(ctx, deletedID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Execute(ctx, deletedID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if a1 := f.appointment(t, "a1"); a1.Status != appointment.StatusCompleted {
		t.Fatalf("a1 status = %s, want COMPLETED", a1.Status)
	}
	if sched := f.schedule(t, deletedID); sched.Status != schedule.StatusDeleted {
		t.Fatalf("schedule status = %s, want DELETED", sched.Status)
	}
}

func TestCascadeEmptySchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	deletedID := f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")

	s := f.cascadeSaga(stubClassifier{label: "low"}, stubClassifier{label: "cardiology"})
	if err := s.Start(ctx, deletedID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Execute(ctx, deletedID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if sched := f.schedule(t, deletedID); sched.Status != schedule.StatusDeleted {
		t.Fatalf("schedule status = %s, want DELETED", sched.Status)
	}
}

func TestCascadeAbandonsOnMissingSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := schedule.ID{DoctorID: "ghost", Date: "2032-01-20"}

	s := f.cascadeSaga(stubClassifier{label: "low"}, stubClassifier{label: "cardiology"})
	if err := s.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Execute(ctx, id); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if step := f.sagaStep(t, saga.CascadeID(id)); step != saga.StepDone {
		t.Fatalf("saga step = %s, want done", step)
	}
}

func TestCascadeDoubleStartRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	deletedID := f.addSchedule(t, "doc-1", "2032-01-20", "10:00", "16:00")

	s := f.cascadeSaga(stubClassifier{label: "low"}, stubClassifier{label: "cardiology"})
	if err := s.Start(ctx, deletedID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(ctx, deletedID); !errors.Is(err, saga.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}
