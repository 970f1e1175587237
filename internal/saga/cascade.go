package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/schedule"
	"github.com/medly/go-clinic/internal/observability/metrics"
)

// KindDeleteSchedule identifies the delete-schedule cascade saga.
const KindDeleteSchedule = "delete-schedule"

// Cascade saga steps.
const (
	StepBlockSchedule Step = "block-schedule"
	StepNextPatient   Step = "next-patient"
	StepRelocate      Step = "relocate"
	StepSoftDelete    Step = "soft-delete"
)

// Urgency labels produced by classification. Anything unrecognized
// normalizes to UrgencyLow.
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

// NormalizeUrgency maps raw classifier output to a known urgency label.
func NormalizeUrgency(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case UrgencyHigh:
		return UrgencyHigh
	case UrgencyMedium:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// CascadeID derives the saga id for deleting one doctor-day schedule, so
// concurrent delete requests for the same schedule collapse into one run.
func CascadeID(id schedule.ID) string {
	return "delete-schedule-" + id.DoctorID + "-" + id.Date
}

type cascadeData struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	// Queue holds the appointment ids still to be relocated. Current is the
	// popped head, committed before its relocation runs so a crash never
	// processes an appointment under a stale queue.
	Queue   []string `json:"queue"`
	Current string   `json:"current,omitempty"`
}

// CascadeSaga tears down a doctor-day schedule: block the schedule against
// new bookings, relocate or cancel every booked appointment, then soft-delete
// the record. Each appointment is handled independently; a failure relocating
// one never blocks the rest of the queue.
type CascadeSaga struct {
	store        Store
	appointments AppointmentClient
	schedules    ScheduleClient
	doctors      DoctorDirectory
	urgency      Classifier
	specialty    Classifier
	reschedule   RescheduleRunner
	cfg          Config
	metrics      *metrics.Metrics
	logger       *zap.Logger
	// now is stubbed in tests.
	now func() time.Time
}

func NewCascadeSaga(
	store Store,
	appointments AppointmentClient,
	schedules ScheduleClient,
	doctors DoctorDirectory,
	urgency, specialty Classifier,
	reschedule RescheduleRunner,
	cfg Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CascadeSaga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CascadeSaga{
		store:        store,
		appointments: appointments,
		schedules:    schedules,
		doctors:      doctors,
		urgency:      urgency,
		specialty:    specialty,
		reschedule:   reschedule,
		cfg:          cfg.withDefaults(),
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// Start persists the initial cascade state. The saga id is derived from the
// schedule id, so a concurrent delete of the same schedule fails with
// ErrAlreadyRunning.
func (s *CascadeSaga) Start(ctx context.Context, id schedule.ID) error {
	st, err := newState(CascadeID(id), KindDeleteSchedule, StepBlockSchedule, cascadeData{
		DoctorID: id.DoctorID,
		Date:     id.Date,
	})
	if err != nil {
		return err
	}
	if err := s.store.Create(ctx, st); err != nil {
		return err
	}
	s.metrics.SagaStarted(KindDeleteSchedule)
	return nil
}

// Execute drives the cascade to a terminal state. Safe to call again after a
// crash; the committed queue position determines where it resumes.
func (s *CascadeSaga) Execute(ctx context.Context, id schedule.ID) error {
	st, err := s.store.Get(ctx, CascadeID(id))
	if err != nil {
		return err
	}
	if st.Kind != KindDeleteSchedule {
		return fmt.Errorf("saga %s has kind %s, want %s", st.ID, st.Kind, KindDeleteSchedule)
	}
	var data cascadeData
	if err := json.Unmarshal(st.Data, &data); err != nil {
		return fmt.Errorf("decode saga data: %w", err)
	}

	for !st.Terminal() {
		next, err := s.runStep(ctx, st.Step, &data)
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
	s.metrics.SagaCompleted(KindDeleteSchedule)
	return nil
}

func (s *CascadeSaga) runStep(ctx context.Context, step Step, data *cascadeData) (Step, error) {
	scheduleID := schedule.ID{DoctorID: data.DoctorID, Date: data.Date}

	switch step {
	case StepBlockSchedule:
		stepCtx, cancel := s.cfg.stepContext(ctx)
		ids, err := s.schedules.Block(stepCtx, scheduleID)
		cancel()
		if err != nil {
			s.logger.Error("failed to block schedule, cascade abandoned",
				zap.String("schedule_id", scheduleID.String()),
				zap.Error(err))
			return StepDone, nil
		}
		data.Queue = ids
		return StepNextPatient, nil

	case StepNextPatient:
		if len(data.Queue) == 0 {
			data.Current = ""
			return StepSoftDelete, nil
		}
		data.Current = data.Queue[0]
		data.Queue = data.Queue[1:]
		return StepRelocate, nil

	case StepRelocate:
		s.relocate(ctx, data.Current)
		data.Current = ""
		return StepNextPatient, nil

	case StepSoftDelete:
		stepCtx, cancel := s.cfg.stepContext(ctx)
		err := s.schedules.SoftDelete(stepCtx, scheduleID)
		cancel()
		if err != nil {
			s.logger.Error("failed to soft-delete schedule",
				zap.String("schedule_id", scheduleID.String()),
				zap.Error(err))
		}
		return StepDone, nil

	default:
		return "", fmt.Errorf("unknown step %q for saga %s", step, CascadeID(scheduleID))
	}
}

// relocate moves one displaced appointment to another doctor, or cancels it
// when no slot can be found. Any failure along the way degrades to the
// cancellation path rather than stalling the cascade.
func (s *CascadeSaga) relocate(ctx context.Context, appointmentID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic relocating appointment",
				zap.String("appointment_id", appointmentID),
				zap.Any("panic", r))
		}
	}()

	stepCtx, cancel := s.cfg.stepContext(ctx)
	appt, err := s.appointments.Get(stepCtx, appointmentID)
	cancel()
	if err != nil {
		s.logger.Warn("skipping appointment that cannot be loaded",
			zap.String("appointment_id", appointmentID),
			zap.Error(err))
		return
	}
	if appt.Status.Terminal() {
		return
	}

	target, found := s.findRelocation(ctx, appt)
	if found {
		err := s.reschedule.Run(ctx, appointmentID, target.dateTime, target.doctorID)
		if err == nil {
			s.metrics.CascadeRelocated()
			s.logger.Info("relocated appointment",
				zap.String("appointment_id", appointmentID),
				zap.String("doctor_id", target.doctorID),
				zap.Time("date_time", target.dateTime))
			return
		}
		s.logger.Warn("relocation failed, cancelling appointment",
			zap.String("appointment_id", appointmentID),
			zap.Error(err))
	}

	s.cancel(ctx, appointmentID)
}

type relocation struct {
	dateTime time.Time
	doctorID string
}

// findRelocation searches the candidate doctors' schedules day by day for
// the first free slot within the urgency window.
func (s *CascadeSaga) findRelocation(ctx context.Context, appt *appointment.Appointment) (relocation, bool) {
	specialty, ok := s.classifySpecialty(ctx, appt)
	if !ok {
		return relocation{}, false
	}

	stepCtx, cancel := s.cfg.stepContext(ctx)
	candidates, err := s.doctors.FindBySpecialty(stepCtx, specialty)
	cancel()
	if err != nil {
		s.logger.Warn("doctor lookup failed",
			zap.String("specialty", specialty),
			zap.Error(err))
		return relocation{}, false
	}
	if len(candidates) == 0 {
		return relocation{}, false
	}

	windowDays := s.cfg.RoutineWindowDays
	if urgency := s.classifyUrgency(ctx, appt); urgency == UrgencyHigh || urgency == UrgencyMedium {
		windowDays = s.cfg.UrgentWindowDays
	}

	day := s.searchStart(appt.DateTime)
	for i := 0; i < windowDays; i++ {
		for _, doc := range candidates {
			stepCtx, cancel := s.cfg.stepContext(ctx)
			sched, err := s.schedules.Get(stepCtx, schedule.NewID(doc.ID, day))
			cancel()
			if err != nil || sched.Status != schedule.StatusActive {
				continue
			}
			if start, ok := schedule.FirstAvailableSlot(sched, s.cfg.DefaultDuration); ok {
				return relocation{dateTime: start.On(day), doctorID: doc.ID}, true
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return relocation{}, false
}

// searchStart anchors the window at the original appointment day, or today
// when that day has already passed.
func (s *CascadeSaga) searchStart(original time.Time) time.Time {
	day := truncateToDay(original)
	if today := truncateToDay(s.now().In(original.Location())); day.Before(today) {
		return today
	}
	return day
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// classifyUrgency labels the patient issue, defaulting to low on any
// classifier failure.
func (s *CascadeSaga) classifyUrgency(ctx context.Context, appt *appointment.Appointment) string {
	stepCtx, cancel := s.cfg.stepContext(ctx)
	defer cancel()
	raw, err := s.urgency.Classify(stepCtx, appt.Issue)
	if err != nil {
		s.logger.Warn("urgency classification failed, defaulting to low",
			zap.String("appointment_id", appt.ID),
			zap.Error(err))
		return UrgencyLow
	}
	return NormalizeUrgency(raw)
}

// classifySpecialty picks the specialty to search doctors by. Implausible
// classifier output falls back to the original doctor's first specialty; a
// doctor with no specialties makes the appointment unrelocatable.
func (s *CascadeSaga) classifySpecialty(ctx context.Context, appt *appointment.Appointment) (string, bool) {
	stepCtx, cancel := s.cfg.stepContext(ctx)
	raw, err := s.specialty.Classify(stepCtx, appt.Issue)
	cancel()

	specialty := strings.TrimSpace(raw)
	if err == nil && specialty != "" && len(specialty) <= s.cfg.MaxSpecialtyLength {
		return specialty, true
	}
	if err != nil {
		s.logger.Warn("specialty classification failed, falling back to original doctor",
			zap.String("appointment_id", appt.ID),
			zap.Error(err))
	}

	stepCtx, cancel = s.cfg.stepContext(ctx)
	doc, err := s.doctors.Get(stepCtx, appt.DoctorID)
	cancel()
	if err != nil {
		s.logger.Warn("original doctor lookup failed",
			zap.String("doctor_id", appt.DoctorID),
			zap.Error(err))
		return "", false
	}
	if len(doc.Specialties) == 0 {
		return "", false
	}
	return doc.Specialties[0], true
}

// cancel ends a displaced appointment that could not be relocated. Errors
// are logged and the cascade moves on.
func (s *CascadeSaga) cancel(ctx context.Context, appointmentID string) {
	stepCtx, cancel := s.cfg.stepContext(ctx)
	defer cancel()
	if err := s.appointments.Cancel(stepCtx, appointmentID); err != nil {
		s.logger.Error("failed to cancel displaced appointment",
			zap.String("appointment_id", appointmentID),
			zap.Error(err))
		return
	}
	s.metrics.CascadeCancelled()
	s.metrics.AppointmentCancelled()
	s.logger.Info("cancelled displaced appointment",
		zap.String("appointment_id", appointmentID))
}
