// Package memory provides in-memory store implementations. They back the
// saga and service tests and keep the domain packages free of database
// dependencies in unit tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/doctor"
	"github.com/medly/go-clinic/internal/domain/schedule"
	"github.com/medly/go-clinic/internal/saga"
)

// AppointmentStore keeps appointment event logs in memory.
type AppointmentStore struct {
	mu     sync.RWMutex
	events map[string][]*appointment.Event
}

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{events: make(map[string][]*appointment.Event)}
}

func (s *AppointmentStore) Load(ctx context.Context, id string) (*appointment.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events, ok := s.events[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	agg := appointment.NewAggregate(id)
	agg.LoadFromHistory(events)
	return agg, nil
}

func (s *AppointmentStore) Save(ctx context.Context, agg *appointment.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := agg.Changes()
	base := agg.Version() - len(changes)
	for i, event := range changes {
		event.Version = base + i + 1
		s.events[agg.ID()] = append(s.events[agg.ID()], event)
	}
	agg.ClearChanges()
	return nil
}

// Events returns the stored log for an appointment.
func (s *AppointmentStore) Events(id string) []*appointment.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*appointment.Event(nil), s.events[id]...)
}

// ScheduleStore keeps doctor-day schedules in memory.
type ScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]*schedule.Schedule
}

func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{schedules: make(map[string]*schedule.Schedule)}
}

func (s *ScheduleStore) Get(ctx context.Context, id schedule.ID) (*schedule.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id.String()]
	if !ok {
		return nil, schedule.ErrNotFound
	}
	return cloneSchedule(sched), nil
}

func (s *ScheduleStore) Create(ctx context.Context, sched *schedule.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sched.ID.String()
	if _, ok := s.schedules[key]; ok {
		return schedule.ErrAlreadyExists
	}
	s.schedules[key] = cloneSchedule(sched)
	return nil
}

func (s *ScheduleStore) Update(ctx context.Context, sched *schedule.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sched.ID.String()
	if _, ok := s.schedules[key]; !ok {
		return schedule.ErrNotFound
	}
	s.schedules[key] = cloneSchedule(sched)
	return nil
}

func cloneSchedule(s *schedule.Schedule) *schedule.Schedule {
	return &schedule.Schedule{
		ID:           s.ID,
		WorkingHours: s.WorkingHours,
		Slots:        append([]schedule.TimeSlot(nil), s.Slots...),
		Status:       s.Status,
	}
}

// SagaStore keeps saga state in memory.
type SagaStore struct {
	mu    sync.RWMutex
	sagas map[string]*saga.State
}

func NewSagaStore() *SagaStore {
	return &SagaStore{sagas: make(map[string]*saga.State)}
}

func (s *SagaStore) Get(ctx context.Context, id string) (*saga.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sagas[id]
	if !ok {
		return nil, saga.ErrNotFound
	}
	return cloneState(st), nil
}

func (s *SagaStore) Create(ctx context.Context, st *saga.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sagas[st.ID]; ok {
		return saga.ErrAlreadyRunning
	}
	now := time.Now().UTC()
	st.UpdatedAt = now
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	s.sagas[st.ID] = cloneState(st)
	return nil
}

func (s *SagaStore) Update(ctx context.Context, st *saga.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sagas[st.ID]; !ok {
		return saga.ErrNotFound
	}
	st.UpdatedAt = time.Now().UTC()
	s.sagas[st.ID] = cloneState(st)
	return nil
}

func (s *SagaStore) Restart(ctx context.Context, st *saga.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sagas[st.ID]
	if !ok || existing.Step != saga.StepDone {
		return saga.ErrAlreadyRunning
	}
	st.UpdatedAt = time.Now().UTC()
	s.sagas[st.ID] = cloneState(st)
	return nil
}

func cloneState(st *saga.State) *saga.State {
	clone := *st
	clone.Data = append([]byte(nil), st.Data...)
	return &clone
}

// DoctorDirectory keeps the doctor roster in memory.
type DoctorDirectory struct {
	mu      sync.RWMutex
	doctors map[string]*doctor.Doctor
}

func NewDoctorDirectory() *DoctorDirectory {
	return &DoctorDirectory{doctors: make(map[string]*doctor.Doctor)}
}

func (d *DoctorDirectory) Add(doc *doctor.Doctor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doctors[doc.ID] = doc
}

func (d *DoctorDirectory) Get(ctx context.Context, id string) (*doctor.Doctor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.doctors[id]
	if !ok {
		return nil, doctor.ErrNotFound
	}
	return doc, nil
}

func (d *DoctorDirectory) FindBySpecialty(ctx context.Context, specialty string) ([]doctor.Doctor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var matches []doctor.Doctor
	for _, doc := range d.doctors {
		for _, s := range doc.Specialties {
			if s == specialty {
				matches = append(matches, *doc)
				break
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}
