package saga_test

import (
	"context"
	"testing"
	"time"

	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/doctor"
	"github.com/medly/go-clinic/internal/domain/schedule"
	"github.com/medly/go-clinic/internal/infrastructure/memory"
	"github.com/medly/go-clinic/internal/saga"
)

// fixture wires the real appointment and schedule services over in-memory
// stores, so saga tests exercise the full command path without a database.
type fixture struct {
	sagas      *memory.SagaStore
	appts      *appointment.Service
	scheds     *schedule.Service
	schedStore *memory.ScheduleStore
	doctors    *memory.DoctorDirectory
}

func newFixture() *fixture {
	schedStore := memory.NewScheduleStore()
	return &fixture{
		sagas:      memory.NewSagaStore(),
		appts:      appointment.NewService(memory.NewAppointmentStore(), nil),
		scheds:     schedule.NewService(schedStore, nil),
		schedStore: schedStore,
		doctors:    memory.NewDoctorDirectory(),
	}
}

func at(t *testing.T, day, clock string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", day+" "+clock)
	if err != nil {
		t.Fatalf("parse %s %s: %v", day, clock, err)
	}
	return parsed
}

func clockTime(t *testing.T, clock string) schedule.TimeOfDay {
	t.Helper()
	tod, err := schedule.ParseTimeOfDay(clock)
	if err != nil {
		t.Fatalf("parse %q: %v", clock, err)
	}
	return tod
}

func (f *fixture) addSchedule(t *testing.T, doctorID, date, start, end string) schedule.ID {
	t.Helper()
	hours, err := schedule.NewWorkingHours(clockTime(t, start), clockTime(t, end))
	if err != nil {
		t.Fatalf("working hours: %v", err)
	}
	id := schedule.ID{DoctorID: doctorID, Date: date}
	if err := f.scheds.Create(context.Background(), id, hours); err != nil {
		t.Fatalf("create schedule %s: %v", id, err)
	}
	return id
}

func (f *fixture) addDoctor(id string, specialties ...string) {
	f.doctors.Add(&doctor.Doctor{ID: id, FirstName: "Test", LastName: id, Specialties: specialties})
}

// bookAppointment creates a SCHEDULED appointment holding a slot, the state a
// successful create saga leaves behind.
func (f *fixture) bookAppointment(t *testing.T, apptID, doctorID string, dateTime time.Time, issue string) {
	t.Helper()
	ctx := context.Background()
	if err := f.appts.Create(ctx, apptID, dateTime, doctorID, "pat-"+apptID, issue); err != nil {
		t.Fatalf("create appointment %s: %v", apptID, err)
	}
	id := schedule.NewID(doctorID, dateTime)
	err := f.scheds.ScheduleAppointment(ctx, id, schedule.TimeOfDayFromTime(dateTime), 30*time.Minute, apptID)
	if err != nil {
		t.Fatalf("reserve slot for %s: %v", apptID, err)
	}
	if err := f.appts.MarkScheduled(ctx, apptID); err != nil {
		t.Fatalf("mark %s scheduled: %v", apptID, err)
	}
}

func (f *fixture) appointment(t *testing.T, id string) *appointment.Appointment {
	t.Helper()
	appt, err := f.appts.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get appointment %s: %v", id, err)
	}
	return appt
}

func (f *fixture) schedule(t *testing.T, id schedule.ID) *schedule.Schedule {
	t.Helper()
	sched, err := f.scheds.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get schedule %s: %v", id, err)
	}
	return sched
}

func (f *fixture) sagaStep(t *testing.T, id string) saga.Step {
	t.Helper()
	st, err := f.sagas.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get saga %s: %v", id, err)
	}
	return st.Step
}

func (f *fixture) createSaga() *saga.CreateSaga {
	return saga.NewCreateSaga(f.sagas, f.appts, f.scheds, saga.Config{}, nil, nil)
}

func (f *fixture) rescheduleSaga() *saga.RescheduleSaga {
	return saga.NewRescheduleSaga(f.sagas, f.appts, f.scheds, saga.Config{}, nil, nil)
}

func (f *fixture) cascadeSaga(urgency, specialty saga.Classifier) *saga.CascadeSaga {
	return saga.NewCascadeSaga(f.sagas, f.appts, f.scheds, f.doctors, urgency, specialty,
		f.rescheduleSaga(), saga.Config{}, nil, nil)
}

// stubClassifier returns a fixed label or error.
type stubClassifier struct {
	label string
	err   error
}

func (c stubClassifier) Classify(ctx context.Context, issue string) (string, error) {
	return c.label, c.err
}

func hasSlot(sched *schedule.Schedule, appointmentID string, start schedule.TimeOfDay) bool {
	for _, slot := range sched.Slots {
		if slot.AppointmentID == appointmentID && slot.Start == start {
			return true
		}
	}
	return false
}
