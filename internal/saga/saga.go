// Package saga implements the durable orchestrations that bridge the
// appointment and schedule aggregates. Each saga is a persisted state
// machine: the step transition is committed after every effect, so a crashed
// saga resumes at its last committed step instead of restarting.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Step names a saga state-machine position. StepDone is terminal for every
// saga kind.
type Step string

// StepDone is the terminal step.
const StepDone Step = "done"

var (
	// ErrAlreadyRunning rejects a double start for an existing saga id.
	ErrAlreadyRunning = errors.New("saga already running")
	// ErrNotFound indicates no saga state exists for the id.
	ErrNotFound = errors.New("saga not found")
)

// State is one saga instance's durable record. Data carries the kind-specific
// payload, always including enough to resume idempotently.
type State struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Step      Step            `json:"step"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Terminal reports whether the saga has ended.
func (s *State) Terminal() bool { return s.Step == StepDone }

func (s *State) setData(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Data = data
	return nil
}

func newState(id, kind string, step Step, data interface{}) (*State, error) {
	st := &State{ID: id, Kind: kind, Step: step, CreatedAt: time.Now().UTC()}
	if err := st.setData(data); err != nil {
		return nil, err
	}
	return st, nil
}

// Store is the persistence contract for saga state: a durable last-value
// store keyed by saga id.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	// Create persists a fresh saga; ErrAlreadyRunning when the id exists.
	Create(ctx context.Context, st *State) error
	Update(ctx context.Context, st *State) error
	// Restart atomically replaces a finished saga with a fresh initial
	// state. ErrAlreadyRunning unless the stored step is StepDone at the
	// moment of the write, so two racing restarts admit exactly one.
	Restart(ctx context.Context, st *State) error
}

// Config holds the orchestration policy knobs. The urgency windows and
// specialty length cap are policy constants with no deeper rationale; they
// are configurable rather than hard invariants.
type Config struct {
	// DefaultDuration is the appointment slot length.
	DefaultDuration time.Duration
	// StepTimeout bounds every cross-aggregate and classifier call.
	StepTimeout time.Duration
	// SlotReserveRetries bounds transient-failure retries of slot reservation.
	SlotReserveRetries int
	// UrgentWindowDays is the relocation search window for high/medium urgency.
	UrgentWindowDays int
	// RoutineWindowDays is the relocation search window for low urgency.
	RoutineWindowDays int
	// MaxSpecialtyLength caps plausible classifier output.
	MaxSpecialtyLength int
}

// DefaultConfig returns the stock policy values.
func DefaultConfig() Config {
	return Config{
		DefaultDuration:    30 * time.Minute,
		StepTimeout:        40 * time.Second,
		SlotReserveRetries: 2,
		UrgentWindowDays:   7,
		RoutineWindowDays:  14,
		MaxSpecialtyLength: 50,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = def.DefaultDuration
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = def.StepTimeout
	}
	if c.SlotReserveRetries < 0 {
		c.SlotReserveRetries = def.SlotReserveRetries
	}
	if c.UrgentWindowDays <= 0 {
		c.UrgentWindowDays = def.UrgentWindowDays
	}
	if c.RoutineWindowDays <= 0 {
		c.RoutineWindowDays = def.RoutineWindowDays
	}
	if c.MaxSpecialtyLength <= 0 {
		c.MaxSpecialtyLength = def.MaxSpecialtyLength
	}
	return c
}

// stepContext bounds a single step effect.
func (c Config) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.StepTimeout)
}
