package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Service exposes the schedule's command handlers by schedule id. The
// aggregate is the sole writer of its key, so the read-modify-write round
// trips here are serializable per schedule even over a plain replace store.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a new command service
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Create initializes an empty schedule with fixed working hours. Working
// hours are immutable once set.
func (s *Service) Create(ctx context.Context, id ID, workingHours WorkingHours) error {
	return s.store.Create(ctx, New(id, workingHours))
}

// ScheduleAppointment reserves a slot of the given duration; the full slot
// set is re-validated and nothing is persisted on violation.
func (s *Service) ScheduleAppointment(ctx context.Context, id ID, start TimeOfDay, duration time.Duration, appointmentID string) error {
	sched, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	next, err := sched.ScheduleAppointment(start, duration, appointmentID)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, next)
}

// RemoveTimeSlot releases the slot matching both appointment id and start time.
func (s *Service) RemoveTimeSlot(ctx context.Context, id ID, appointmentID string, start TimeOfDay) error {
	sched, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	next, err := sched.RemoveTimeSlot(appointmentID, start)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, next)
}

// Block freezes the schedule and returns the booked appointment ids. Blocking
// an already blocked schedule returns the same list without error, so a
// resumed caller sees a stable snapshot.
func (s *Service) Block(ctx context.Context, id ID) ([]string, error) {
	sched, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Status == StatusBlocked {
		return sched.AppointmentIDs(), nil
	}
	next := sched.Block()
	if err := s.store.Update(ctx, next); err != nil {
		return nil, err
	}
	return next.AppointmentIDs(), nil
}

// SoftDelete marks the schedule DELETED; the row is retained.
func (s *Service) SoftDelete(ctx context.Context, id ID) error {
	sched, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, sched.Delete())
}

// Get returns the current schedule state; ErrNotFound when absent.
func (s *Service) Get(ctx context.Context, id ID) (*Schedule, error) {
	return s.store.Get(ctx, id)
}
