// Package schedule provides the last-value store repository.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/infrastructure/postgres"
	"github.com/medly/go-clinic/internal/infrastructure/redpanda"
)

// Store is the persistence contract for schedules: a durable last-value store
// keyed by schedule id with per-key atomic replace.
type Store interface {
	Get(ctx context.Context, id ID) (*Schedule, error)
	Create(ctx context.Context, s *Schedule) error
	Update(ctx context.Context, s *Schedule) error
}

// Repository persists schedules in PostgreSQL, one row per (doctor, day)
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// Get retrieves a schedule; ErrNotFound when the day has no schedule.
func (r *Repository) Get(ctx context.Context, id ID) (*Schedule, error) {
	query := `
		SELECT working_start, working_end, slots, status
		FROM schedules
		WHERE doctor_id = $1 AND date = $2
	`

	s := &Schedule{ID: id}
	var workingStart, workingEnd string
	var slots []byte
	err := r.pool.QueryRow(ctx, query, id.DoctorID, id.Date).
		Scan(&workingStart, &workingEnd, &slots, &s.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", id, err)
	}

	if s.WorkingHours.Start, err = ParseTimeOfDay(workingStart); err != nil {
		return nil, err
	}
	if s.WorkingHours.End, err = ParseTimeOfDay(workingEnd); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(slots, &s.Slots); err != nil {
		return nil, fmt.Errorf("decode slots for %s: %w", id, err)
	}
	return s, nil
}

// Create inserts a new schedule; ErrAlreadyExists on key conflict.
func (r *Repository) Create(ctx context.Context, s *Schedule) error {
	slots, err := json.Marshal(s.Slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}

	query := `
		INSERT INTO schedules (doctor_id, date, working_start, working_end, slots, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID.DoctorID, s.ID.Date,
		s.WorkingHours.Start.String(), s.WorkingHours.End.String(),
		slots, s.Status,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create schedule %s: %w", s.ID, err)
	}
	return nil
}

// Update replaces the stored value and writes an outbox entry carrying the
// new snapshot, within one transaction.
func (r *Repository) Update(ctx context.Context, s *Schedule) error {
	slots, err := json.Marshal(s.Slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	snapshot, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE schedules
		SET slots = $3, status = $4, updated_at = NOW()
		WHERE doctor_id = $1 AND date = $2
	`
	tag, err := tx.Exec(ctx, query, s.ID.DoctorID, s.ID.Date, slots, s.Status)
	if err != nil {
		return fmt.Errorf("update schedule %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	err = postgres.WriteEntry(ctx, tx, &postgres.OutboxEntry{
		AggregateID:   s.ID.String(),
		AggregateType: "Schedule",
		EventType:     "schedule-updated",
		Payload:       snapshot,
		KafkaTopic:    redpanda.TopicScheduleEvents,
		KafkaKey:      s.ID.String(),
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
