package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/schedule"
	"github.com/medly/go-clinic/internal/observability/metrics"
)

// KindReschedule identifies the reschedule-appointment saga.
const KindReschedule = "reschedule-appointment"

// Reschedule saga steps.
const (
	StepReserveNewSlot Step = "reserve-new-slot"
	StepUpdate         Step = "update-appointment"
	StepReleaseNewSlot Step = "release-new-slot"
	StepReleaseOldSlot Step = "release-old-slot"
)

type rescheduleData struct {
	OldDateTime time.Time `json:"old_date_time"`
	OldDoctorID string    `json:"old_doctor_id"`
	NewDateTime time.Time `json:"new_date_time"`
	NewDoctorID string    `json:"new_doctor_id"`
	Compensated bool      `json:"compensated"`
}

// RescheduleSaga moves a scheduled appointment to a new slot, possibly with
// a different doctor. Reserve-then-release ordering means the appointment
// never loses its slot: the new slot is held before the old one is freed.
// Releasing the old slot is the one uncompensated step; if it fails the
// stale slot entry is logged and left behind.
type RescheduleSaga struct {
	store        Store
	appointments AppointmentClient
	schedules    ScheduleClient
	cfg          Config
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

func NewRescheduleSaga(store Store, appointments AppointmentClient, schedules ScheduleClient, cfg Config, m *metrics.Metrics, logger *zap.Logger) *RescheduleSaga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RescheduleSaga{
		store:        store,
		appointments: appointments,
		schedules:    schedules,
		cfg:          cfg.withDefaults(),
		metrics:      m,
		logger:       logger,
	}
}

// Start snapshots the appointment's current slot and persists the initial
// saga state. It fails with appointment.ErrNotFound when the appointment
// cannot be fetched, and with ErrAlreadyRunning when a reschedule for the
// same appointment is in flight. A finished saga is restarted in place.
func (s *RescheduleSaga) Start(ctx context.Context, appointmentID string, dateTime time.Time, doctorID string) error {
	stepCtx, cancel := s.cfg.stepContext(ctx)
	appt, err := s.appointments.Get(stepCtx, appointmentID)
	cancel()
	if err != nil {
		return err
	}
	if appt.Status.Terminal() {
		return appointment.ErrInvalidTransition
	}

	st, err := newState(rescheduleSagaID(appointmentID), KindReschedule, StepReserveNewSlot, rescheduleData{
		OldDateTime: appt.DateTime,
		OldDoctorID: appt.DoctorID,
		NewDateTime: dateTime,
		NewDoctorID: doctorID,
	})
	if err != nil {
		return err
	}
	existing, err := s.store.Get(ctx, st.ID)
	switch {
	case err == nil && !existing.Terminal():
		return ErrAlreadyRunning
	case err == nil:
		// A finished saga does not block a later reschedule of the same
		// appointment; it is restarted with the new target. The swap is
		// conditional on the stored step still being terminal, so a racing
		// restart or resumed run wins at most once.
		st.CreatedAt = existing.CreatedAt
		if err := s.store.Restart(ctx, st); err != nil {
			return err
		}
	case errors.Is(err, ErrNotFound):
		if err := s.store.Create(ctx, st); err != nil {
			return err
		}
	default:
		return err
	}
	s.metrics.SagaStarted(KindReschedule)
	return nil
}

// Execute drives the saga to a terminal state. Safe to call again after a
// crash or transient failure.
func (s *RescheduleSaga) Execute(ctx context.Context, appointmentID string) error {
	st, err := s.store.Get(ctx, rescheduleSagaID(appointmentID))
	if err != nil {
		return err
	}
	if st.Kind != KindReschedule {
		return fmt.Errorf("saga %s has kind %s, want %s", st.ID, st.Kind, KindReschedule)
	}
	var data rescheduleData
	if err := json.Unmarshal(st.Data, &data); err != nil {
		return fmt.Errorf("decode saga data: %w", err)
	}

	for !st.Terminal() {
		next, err := s.runStep(ctx, appointmentID, st.Step, &data)
		if err != nil {
			return err
		}
		st.Step = next
		if err := st.setData(data); err != nil {
			return err
		}
		if err := s.store.Update(ctx, st); err != nil {
			return err
		}
	}
	if data.Compensated {
		s.metrics.SagaCompensated(KindReschedule)
	}
	s.metrics.SagaCompleted(KindReschedule)
	return nil
}

// Run starts and immediately drives the saga. Used by the cascade, where the
// caller wants the relocation outcome synchronously.
func (s *RescheduleSaga) Run(ctx context.Context, appointmentID string, dateTime time.Time, doctorID string) error {
	if err := s.Start(ctx, appointmentID, dateTime, doctorID); err != nil {
		return err
	}
	return s.Execute(ctx, appointmentID)
}

func (s *RescheduleSaga) runStep(ctx context.Context, appointmentID string, step Step, data *rescheduleData) (Step, error) {
	switch step {
	case StepReserveNewSlot:
		newID := schedule.NewID(data.NewDoctorID, data.NewDateTime)
		start := schedule.TimeOfDayFromTime(data.NewDateTime)
		stepCtx, cancel := s.cfg.stepContext(ctx)
		err := s.schedules.ScheduleAppointment(stepCtx, newID, start, s.cfg.DefaultDuration, appointmentID)
		cancel()
		if err != nil {
			// The new slot could not be taken, so the appointment stays
			// exactly where it was.
			s.logger.Warn("new slot unavailable, reschedule abandoned",
				zap.String("appointment_id", appointmentID),
				zap.String("doctor_id", data.NewDoctorID),
				zap.Error(err))
			data.Compensated = true
			return StepDone, nil
		}
		s.metrics.SlotReserved()
		return StepUpdate, nil

	case StepUpdate:
		stepCtx, cancel := s.cfg.stepContext(ctx)
		err := s.appointments.Reschedule(stepCtx, appointmentID, data.NewDateTime, data.NewDoctorID)
		cancel()
		if err != nil {
			s.logger.Warn("appointment update failed, releasing new slot",
				zap.String("appointment_id", appointmentID),
				zap.Error(err))
			return StepReleaseNewSlot, nil
		}
		return StepReleaseOldSlot, nil

	case StepReleaseNewSlot:
		if err := s.release(ctx, data.NewDoctorID, data.NewDateTime, appointmentID); err != nil {
			return "", fmt.Errorf("release new slot for appointment %s: %w", appointmentID, err)
		}
		data.Compensated = true
		return StepDone, nil

	case StepReleaseOldSlot:
		if err := s.release(ctx, data.OldDoctorID, data.OldDateTime, appointmentID); err != nil {
			s.logger.Error("failed to release old slot, stale entry remains",
				zap.String("appointment_id", appointmentID),
				zap.String("doctor_id", data.OldDoctorID),
				zap.Time("old_date_time", data.OldDateTime),
				zap.Error(err))
		}
		return StepDone, nil

	default:
		return "", fmt.Errorf("unknown step %q for saga %s", step, appointmentID)
	}
}

// release frees a held slot. A missing slot is fine: a prior attempt already
// freed it, or it was never taken.
func (s *RescheduleSaga) release(ctx context.Context, doctorID string, dateTime time.Time, appointmentID string) error {
	stepCtx, cancel := s.cfg.stepContext(ctx)
	defer cancel()
	id := schedule.NewID(doctorID, dateTime)
	err := s.schedules.RemoveTimeSlot(stepCtx, id, appointmentID, schedule.TimeOfDayFromTime(dateTime))
	if errors.Is(err, schedule.ErrSlotNotFound) || errors.Is(err, schedule.ErrNotFound) {
		return nil
	}
	if err == nil {
		s.metrics.SlotReleased()
	}
	return err
}

func rescheduleSagaID(appointmentID string) string {
	return "reschedule-" + appointmentID
}
