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

// KindCreate identifies the create-appointment saga.
const KindCreate = "create-appointment"

// Create saga steps.
const (
	StepCreateAppointment Step = "create-appointment"
	StepReserveSlot       Step = "reserve-slot"
	StepMarkScheduled     Step = "mark-scheduled"
	StepCancelAppointment Step = "cancel-appointment"
)

// CreateCommand carries the booking request into the saga.
type CreateCommand struct {
	DateTime  time.Time `json:"date_time"`
	DoctorID  string    `json:"doctor_id"`
	PatientID string    `json:"patient_id"`
	Issue     string    `json:"issue"`
}

type createData struct {
	CreateCommand
	Compensated bool `json:"compensated"`
}

// CreateSaga books an appointment: create the aggregate, reserve the doctor's
// slot, then confirm. A failed reservation compensates by cancelling the
// appointment, so no confirmed appointment ever lacks a slot.
type CreateSaga struct {
	store        Store
	appointments AppointmentClient
	schedules    ScheduleClient
	cfg          Config
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

func NewCreateSaga(store Store, appointments AppointmentClient, schedules ScheduleClient, cfg Config, m *metrics.Metrics, logger *zap.Logger) *CreateSaga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreateSaga{
		store:        store,
		appointments: appointments,
		schedules:    schedules,
		cfg:          cfg.withDefaults(),
		metrics:      m,
		logger:       logger,
	}
}

// Start persists the initial saga state. The saga id is the appointment id,
// so a second booking attempt for the same id fails with ErrAlreadyRunning
// before any effect runs.
func (s *CreateSaga) Start(ctx context.Context, appointmentID string, cmd CreateCommand) error {
	st, err := newState(appointmentID, KindCreate, StepCreateAppointment, createData{CreateCommand: cmd})
	if err != nil {
		return err
	}
	if err := s.store.Create(ctx, st); err != nil {
		return err
	}
	s.metrics.SagaStarted(KindCreate)
	return nil
}

// Execute drives the saga from its committed step to a terminal state. It is
// safe to call again after a crash or a transient failure.
func (s *CreateSaga) Execute(ctx context.Context, appointmentID string) error {
	st, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return err
	}
	if st.Kind != KindCreate {
		return fmt.Errorf("saga %s has kind %s, want %s", appointmentID, st.Kind, KindCreate)
	}
	var data createData
	if err := json.Unmarshal(st.Data, &data); err != nil {
		return fmt.Errorf("decode saga data: %w", err)
	}

	for !st.Terminal() {
		next, err := s.runStep(ctx, st.ID, st.Step, &data)
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
		s.metrics.SagaCompensated(KindCreate)
	}
	s.metrics.SagaCompleted(KindCreate)
	return nil
}

func (s *CreateSaga) runStep(ctx context.Context, id string, step Step, data *createData) (Step, error) {
	switch step {
	case StepCreateAppointment:
		stepCtx, cancel := s.cfg.stepContext(ctx)
		defer cancel()
		err := s.appointments.Create(stepCtx, id, data.DateTime, data.DoctorID, data.PatientID, data.Issue)
		if err != nil && !errors.Is(err, appointment.ErrAlreadyExists) {
			return "", fmt.Errorf("create appointment %s: %w", id, err)
		}
		if err == nil {
			s.metrics.AppointmentCreated()
		}
		return StepReserveSlot, nil

	case StepReserveSlot:
		if err := s.reserveSlot(ctx, id, data); err != nil {
			s.logger.Warn("slot reservation failed, compensating",
				zap.String("appointment_id", id),
				zap.String("doctor_id", data.DoctorID),
				zap.Error(err))
			return StepCancelAppointment, nil
		}
		s.metrics.SlotReserved()
		return StepMarkScheduled, nil

	case StepMarkScheduled:
		stepCtx, cancel := s.cfg.stepContext(ctx)
		defer cancel()
		if err := s.appointments.MarkScheduled(stepCtx, id); err != nil {
			return "", fmt.Errorf("mark appointment %s scheduled: %w", id, err)
		}
		return StepDone, nil

	case StepCancelAppointment:
		stepCtx, cancel := s.cfg.stepContext(ctx)
		defer cancel()
		if err := s.appointments.Cancel(stepCtx, id); err != nil {
			return "", fmt.Errorf("cancel appointment %s: %w", id, err)
		}
		s.metrics.AppointmentCancelled()
		data.Compensated = true
		return StepDone, nil

	default:
		return "", fmt.Errorf("unknown step %q for saga %s", step, id)
	}
}

// reserveSlot books the requested slot, retrying transient failures. Domain
// rejections (overlap, blocked schedule, missing schedule) are final and
// route to compensation. A slot already held by this appointment counts as
// reserved, which makes re-execution after a crash a no-op.
func (s *CreateSaga) reserveSlot(ctx context.Context, id string, data *createData) error {
	scheduleID := schedule.NewID(data.DoctorID, data.DateTime)
	start := schedule.TimeOfDayFromTime(data.DateTime)

	var lastErr error
	for attempt := 0; attempt <= s.cfg.SlotReserveRetries; attempt++ {
		if reserved, err := s.slotReserved(ctx, scheduleID, id, start); err == nil && reserved {
			return nil
		}
		stepCtx, cancel := s.cfg.stepContext(ctx)
		err := s.schedules.ScheduleAppointment(stepCtx, scheduleID, start, s.cfg.DefaultDuration, id)
		cancel()
		if err == nil {
			return nil
		}
		if isDomainRejection(err) {
			return err
		}
		lastErr = err
		s.logger.Warn("slot reservation attempt failed",
			zap.String("appointment_id", id),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return lastErr
}

func (s *CreateSaga) slotReserved(ctx context.Context, id schedule.ID, appointmentID string, start schedule.TimeOfDay) (bool, error) {
	stepCtx, cancel := s.cfg.stepContext(ctx)
	defer cancel()
	sched, err := s.schedules.Get(stepCtx, id)
	if err != nil {
		return false, err
	}
	for _, slot := range sched.Slots {
		if slot.AppointmentID == appointmentID && slot.Start == start {
			return true, nil
		}
	}
	return false, nil
}

func isDomainRejection(err error) bool {
	return errors.Is(err, schedule.ErrInvalidSlot) ||
		errors.Is(err, schedule.ErrNotFound) ||
		errors.Is(err, schedule.ErrNotActive)
}
