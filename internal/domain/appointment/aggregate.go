package appointment

import (
	"encoding/json"
	"errors"
	"time"
)

// Status represents appointment status
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusMissed    Status = "MISSED"
)

// Terminal reports whether no further life-cycle transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusMissed
}

// Command rejections surfaced to callers.
var (
	ErrAlreadyExists     = errors.New("appointment already exists")
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("appointment is not in a valid state for this transition")
)

// Appointment is the externally visible state of the aggregate.
type Appointment struct {
	ID            string    `json:"id"`
	DateTime      time.Time `json:"date_time"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	Issue         string    `json:"issue"`
	Notes         string    `json:"notes,omitempty"`
	Prescriptions []string  `json:"prescriptions,omitempty"`
	Status        Status    `json:"status"`
}

// Aggregate represents the appointment aggregate root
type Aggregate struct {
	id            string
	version       int
	status        Status
	dateTime      time.Time
	doctorID      string
	patientID     string
	issue         string
	notes         string
	prescriptions []string
	updatedAt     time.Time
	changes       []*Event
}

// NewAggregate creates an empty appointment aggregate
func NewAggregate(id string) *Aggregate {
	return &Aggregate{
		id:      id,
		changes: make([]*Event, 0),
	}
}

// ID returns the aggregate ID
func (a *Aggregate) ID() string { return a.id }

// Version returns the current version
func (a *Aggregate) Version() int { return a.version }

// Status returns the current status
func (a *Aggregate) Status() Status { return a.status }

// Changes returns uncommitted events
func (a *Aggregate) Changes() []*Event { return a.changes }

// ClearChanges clears uncommitted events
func (a *Aggregate) ClearChanges() { a.changes = make([]*Event, 0) }

func (a *Aggregate) exists() bool { return a.version > 0 }

// Snapshot returns the current derived state, or nil when uncreated.
func (a *Aggregate) Snapshot() *Appointment {
	if !a.exists() {
		return nil
	}
	prescriptions := make([]string, len(a.prescriptions))
	copy(prescriptions, a.prescriptions)
	return &Appointment{
		ID:            a.id,
		DateTime:      a.dateTime,
		DoctorID:      a.doctorID,
		PatientID:     a.patientID,
		Issue:         a.issue,
		Notes:         a.notes,
		Prescriptions: prescriptions,
		Status:        a.status,
	}
}

// Create initializes the appointment in PENDING status
func (a *Aggregate) Create(dateTime time.Time, doctorID, patientID, issue string) error {
	if a.exists() {
		return ErrAlreadyExists
	}
	return a.raise(EventCreated, &CreatedData{
		DateTime:  dateTime,
		DoctorID:  doctorID,
		PatientID: patientID,
		Issue:     issue,
	})
}

// AddNotes replaces the doctor notes
func (a *Aggregate) AddNotes(notes string) error {
	if !a.exists() {
		return ErrNotFound
	}
	return a.raise(EventNotesAdded, &NotesAddedData{Notes: notes})
}

// AddPrescription appends one prescription line
func (a *Aggregate) AddPrescription(prescription string) error {
	if !a.exists() {
		return ErrNotFound
	}
	return a.raise(EventPrescriptionAdded, &PrescriptionAddedData{Prescription: prescription})
}

// MarkScheduled confirms the slot reservation, moving PENDING to SCHEDULED
func (a *Aggregate) MarkScheduled() error {
	if !a.exists() {
		return ErrNotFound
	}
	return a.raise(EventScheduled, nil)
}

// Reschedule moves the appointment to a new date/time and doctor without
// changing its status. Rejected once the appointment is terminal.
func (a *Aggregate) Reschedule(newDateTime time.Time, newDoctorID string) error {
	if !a.exists() {
		return ErrNotFound
	}
	if a.status.Terminal() {
		return ErrInvalidTransition
	}
	return a.raise(EventRescheduled, &RescheduledData{DateTime: newDateTime, DoctorID: newDoctorID})
}

// Complete marks the visit as done. Only legal from SCHEDULED.
func (a *Aggregate) Complete() error {
	if !a.exists() {
		return ErrNotFound
	}
	if a.status != StatusScheduled {
		return ErrInvalidTransition
	}
	return a.raise(EventCompleted, nil)
}

// Cancel cancels the appointment. Allowed from PENDING or SCHEDULED.
func (a *Aggregate) Cancel() error {
	if !a.exists() {
		return ErrNotFound
	}
	return a.raise(EventCancelled, nil)
}

// MarkMissed records a no-show
func (a *Aggregate) MarkMissed() error {
	if !a.exists() {
		return ErrNotFound
	}
	return a.raise(EventMissed, nil)
}

func (a *Aggregate) raise(eventType EventType, data interface{}) error {
	event, err := NewEvent(a.id, eventType, data)
	if err != nil {
		return err
	}
	a.apply(event)
	a.changes = append(a.changes, event)
	return nil
}

// apply folds one event into the state. Replay must stay deterministic and
// side-effect-free; unknown payloads are ignored rather than failing the fold.
func (a *Aggregate) apply(event *Event) {
	a.version++
	a.updatedAt = event.Timestamp

	switch event.EventType {
	case EventCreated:
		var data CreatedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.status = StatusPending
		a.dateTime = data.DateTime
		a.doctorID = data.DoctorID
		a.patientID = data.PatientID
		a.issue = data.Issue
	case EventNotesAdded:
		var data NotesAddedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.notes = data.Notes
	case EventPrescriptionAdded:
		var data PrescriptionAddedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.prescriptions = append(a.prescriptions, data.Prescription)
	case EventRescheduled:
		var data RescheduledData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		a.dateTime = data.DateTime
		a.doctorID = data.DoctorID
	case EventScheduled:
		a.status = StatusScheduled
	case EventCompleted:
		a.status = StatusCompleted
	case EventCancelled:
		a.status = StatusCancelled
	case EventMissed:
		a.status = StatusMissed
	}
}

// LoadFromHistory rebuilds state from the persisted event log
func (a *Aggregate) LoadFromHistory(events []*Event) {
	for _, event := range events {
		a.apply(event)
	}
}
