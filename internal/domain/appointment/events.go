// Package appointment implements the event-sourced appointment aggregate.
package appointment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event
type EventType string

const (
	EventCreated           EventType = "appointment-created"
	EventNotesAdded        EventType = "doctor-notes-added"
	EventPrescriptionAdded EventType = "prescription-added"
	EventRescheduled       EventType = "rescheduled"
	EventScheduled         EventType = "scheduled"
	EventCompleted         EventType = "completed"
	EventCancelled         EventType = "cancelled"
	EventMissed            EventType = "missed"
)

// Event represents a domain event in the appointment log
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewEvent creates a new event
func NewEvent(aggregateID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: "Appointment",
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// CreatedData contains appointment creation details
type CreatedData struct {
	DateTime  time.Time `json:"date_time"`
	DoctorID  string    `json:"doctor_id"`
	PatientID string    `json:"patient_id"`
	Issue     string    `json:"issue"`
}

// NotesAddedData contains doctor notes
type NotesAddedData struct {
	Notes string `json:"notes"`
}

// PrescriptionAddedData contains a single prescription line
type PrescriptionAddedData struct {
	Prescription string `json:"prescription"`
}

// RescheduledData contains the new date/time and doctor
type RescheduledData struct {
	DateTime time.Time `json:"date_time"`
	DoctorID string    `json:"doctor_id"`
}
