package saga

import (
	"context"
	"time"

	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/doctor"
	"github.com/medly/go-clinic/internal/domain/schedule"
)

// AppointmentClient is the slice of the appointment service the sagas drive.
type AppointmentClient interface {
	Create(ctx context.Context, id string, dateTime time.Time, doctorID, patientID, issue string) error
	MarkScheduled(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, dateTime time.Time, doctorID string) error
	Cancel(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*appointment.Appointment, error)
}

// ScheduleClient is the slice of the schedule service the sagas drive.
type ScheduleClient interface {
	ScheduleAppointment(ctx context.Context, id schedule.ID, start schedule.TimeOfDay, duration time.Duration, appointmentID string) error
	RemoveTimeSlot(ctx context.Context, id schedule.ID, appointmentID string, start schedule.TimeOfDay) error
	Block(ctx context.Context, id schedule.ID) ([]string, error)
	SoftDelete(ctx context.Context, id schedule.ID) error
	Get(ctx context.Context, id schedule.ID) (*schedule.Schedule, error)
}

// DoctorDirectory looks up doctors for the cascade's relocation search.
type DoctorDirectory interface {
	Get(ctx context.Context, id string) (*doctor.Doctor, error)
	FindBySpecialty(ctx context.Context, specialty string) ([]doctor.Doctor, error)
}

// Classifier maps a free-text patient issue to a single label. Implementations
// may fail or return garbage; callers normalize and fall back.
type Classifier interface {
	Classify(ctx context.Context, issue string) (string, error)
}

// RescheduleRunner starts and drives a reschedule saga for one appointment.
// The cascade uses it so each relocation runs through the same compensated
// path as a user-initiated reschedule.
type RescheduleRunner interface {
	Run(ctx context.Context, appointmentID string, dateTime time.Time, doctorID string) error
}
