// Package views maintains the denormalized read models. The view updater
// consumes the event topics and folds them into flat rows, so patient and
// doctor queries never replay event logs.
package views

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/schedule"
)

// AppointmentRow is the flat appointment projection.
type AppointmentRow struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	DateTime  time.Time `json:"date_time"`
	Issue     string    `json:"issue"`
	Status    string    `json:"status"`
	Version   int       `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleRow is the flat schedule projection.
type ScheduleRow struct {
	DoctorID     string              `json:"doctor_id"`
	Date         string              `json:"date"`
	WorkingStart schedule.TimeOfDay  `json:"working_start"`
	WorkingEnd   schedule.TimeOfDay  `json:"working_end"`
	Slots        []schedule.TimeSlot `json:"slots"`
	Status       schedule.Status     `json:"status"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Store persists the projections in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// ApplyAppointmentEvent folds one event into the appointment view. Events
// are applied at most once per version, so redelivered messages are no-ops.
func (s *Store) ApplyAppointmentEvent(ctx context.Context, event *appointment.Event) error {
	switch event.EventType {
	case appointment.EventCreated:
		var data appointment.CreatedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO appointment_view (id, patient_id, doctor_id, date_time, issue, status, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (id) DO NOTHING`,
			event.AggregateID, data.PatientID, data.DoctorID, data.DateTime, data.Issue,
			string(appointment.StatusPending), event.Version,
		)
		return err

	case appointment.EventRescheduled:
		var data appointment.RescheduledData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		_, err := s.pool.Exec(ctx, `
			UPDATE appointment_view
			SET date_time = $2, doctor_id = $3, version = $4, updated_at = NOW()
			WHERE id = $1 AND version < $4`,
			event.AggregateID, data.DateTime, data.DoctorID, event.Version,
		)
		return err

	case appointment.EventScheduled, appointment.EventCompleted,
		appointment.EventCancelled, appointment.EventMissed:
		_, err := s.pool.Exec(ctx, `
			UPDATE appointment_view
			SET status = $2, version = $3, updated_at = NOW()
			WHERE id = $1 AND version < $3`,
			event.AggregateID, statusFor(event.EventType), event.Version,
		)
		return err

	default:
		// Notes and prescriptions are not projected.
		return nil
	}
}

func statusFor(eventType appointment.EventType) string {
	switch eventType {
	case appointment.EventScheduled:
		return string(appointment.StatusScheduled)
	case appointment.EventCompleted:
		return string(appointment.StatusCompleted)
	case appointment.EventCancelled:
		return string(appointment.StatusCancelled)
	case appointment.EventMissed:
		return string(appointment.StatusMissed)
	default:
		return ""
	}
}

// UpsertSchedule replaces the schedule row with the latest snapshot.
func (s *Store) UpsertSchedule(ctx context.Context, sched *schedule.Schedule) error {
	slots, err := json.Marshal(sched.Slots)
	if err != nil {
		return fmt.Errorf("marshal slots: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO schedule_view (doctor_id, date, working_start, working_end, slots, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (doctor_id, date) DO UPDATE
		SET working_start = EXCLUDED.working_start,
		    working_end = EXCLUDED.working_end,
		    slots = EXCLUDED.slots,
		    status = EXCLUDED.status,
		    updated_at = NOW()`,
		sched.ID.DoctorID, sched.ID.Date,
		sched.WorkingHours.Start.String(), sched.WorkingHours.End.String(),
		slots, string(sched.Status),
	)
	return err
}

// FindByPatient lists a patient's appointments, newest first.
func (s *Store) FindByPatient(ctx context.Context, patientID string) ([]AppointmentRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, patient_id, doctor_id, date_time, issue, status, version, updated_at
		FROM appointment_view
		WHERE patient_id = $1
		ORDER BY date_time DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// FindByDoctor lists a doctor's appointments in a date range.
func (s *Store) FindByDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]AppointmentRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, patient_id, doctor_id, date_time, issue, status, version, updated_at
		FROM appointment_view
		WHERE doctor_id = $1 AND date_time >= $2 AND date_time < $3
		ORDER BY date_time ASC`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// SchedulesByDoctor lists a doctor's schedule days, most recent first.
func (s *Store) SchedulesByDoctor(ctx context.Context, doctorID string) ([]ScheduleRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doctor_id, date, working_start, working_end, slots, status, updated_at
		FROM schedule_view
		WHERE doctor_id = $1
		ORDER BY date DESC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleRow
	for rows.Next() {
		var row ScheduleRow
		var start, end, status string
		var slots []byte
		if err := rows.Scan(&row.DoctorID, &row.Date, &start, &end, &slots, &status, &row.UpdatedAt); err != nil {
			return nil, err
		}
		if row.WorkingStart, err = schedule.ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if row.WorkingEnd, err = schedule.ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(slots, &row.Slots); err != nil {
			return nil, fmt.Errorf("decode slots: %w", err)
		}
		row.Status = schedule.Status(status)
		out = append(out, row)
	}
	return out, rows.Err()
}

type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAppointments(rows pgRows) ([]AppointmentRow, error) {
	var out []AppointmentRow
	for rows.Next() {
		var row AppointmentRow
		if err := rows.Scan(&row.ID, &row.PatientID, &row.DoctorID, &row.DateTime,
			&row.Issue, &row.Status, &row.Version, &row.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
