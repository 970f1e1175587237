package appointment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Service exposes the aggregate's command handlers by appointment id. It is
// the only writer of an appointment's log; each command is a load-decide-save
// round trip.
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

// Create starts a new appointment log in PENDING status
func (s *Service) Create(ctx context.Context, id string, dateTime time.Time, doctorID, patientID, issue string) error {
	agg, err := s.store.Load(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		agg = NewAggregate(id)
	case err != nil:
		return err
	}

	if err := agg.Create(dateTime, doctorID, patientID, issue); err != nil {
		return err
	}
	return s.store.Save(ctx, agg)
}

// AddNotes attaches doctor notes
func (s *Service) AddNotes(ctx context.Context, id, notes string) error {
	return s.execute(ctx, id, func(agg *Aggregate) error { return agg.AddNotes(notes) })
}

// AddPrescription appends a prescription line
func (s *Service) AddPrescription(ctx context.Context, id, prescription string) error {
	return s.execute(ctx, id, func(agg *Aggregate) error { return agg.AddPrescription(prescription) })
}

// MarkScheduled confirms the reserved slot
func (s *Service) MarkScheduled(ctx context.Context, id string) error {
	return s.execute(ctx, id, func(agg *Aggregate) error { return agg.MarkScheduled() })
}

// Reschedule moves the appointment to a new date/time and doctor
func (s *Service) Reschedule(ctx context.Context, id string, newDateTime time.Time, newDoctorID string) error {
	return s.execute(ctx, id, func(agg *Aggregate) error { return agg.Reschedule(newDateTime, newDoctorID) })
}

// Complete marks the visit done
func (s *Service) Complete(ctx context.Context, id string) error {
	return s.execute(ctx, id, func(agg *Aggregate) error { return agg.Complete() })
}

// Cancel cancels the appointment
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.execute(ctx, id, func(agg *Aggregate) error { return agg.Cancel() })
}

// MarkMissed records a no-show
func (s *Service) MarkMissed(ctx context.Context, id string) error {
	return s.execute(ctx, id, func(agg *Aggregate) error { return agg.MarkMissed() })
}

// Get returns the current derived state; ErrNotFound when uncreated.
func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	agg, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return agg.Snapshot(), nil
}

func (s *Service) execute(ctx context.Context, id string, cmd func(*Aggregate) error) error {
	agg, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := cmd(agg); err != nil {
		return err
	}
	return s.store.Save(ctx, agg)
}
