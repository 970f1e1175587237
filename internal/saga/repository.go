package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Repository is the PostgreSQL-backed saga store. One row per saga instance,
// updated in place as steps commit.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

func (r *Repository) Get(ctx context.Context, id string) (*State, error) {
	var st State
	err := r.pool.QueryRow(ctx,
		`SELECT id, kind, step, data, created_at, updated_at
		 FROM sagas WHERE id = $1`, id,
	).Scan(&st.ID, &st.Kind, &st.Step, &st.Data, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load saga %s: %w", id, err)
	}
	return &st, nil
}

func (r *Repository) Create(ctx context.Context, st *State) error {
	st.UpdatedAt = time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = st.UpdatedAt
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sagas (id, kind, step, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		st.ID, st.Kind, string(st.Step), st.Data, st.CreatedAt, st.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("create saga %s: %w", st.ID, err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, st *State) error {
	st.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx,
		`UPDATE sagas SET step = $2, data = $3, updated_at = $4 WHERE id = $1`,
		st.ID, string(st.Step), st.Data, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update saga %s: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Restart swaps a finished saga for a fresh run of the same id. The step
// predicate makes the swap conditional, so a concurrent restart or an
// in-flight run loses cleanly instead of racing.
func (r *Repository) Restart(ctx context.Context, st *State) error {
	st.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx,
		`UPDATE sagas SET kind = $2, step = $3, data = $4, updated_at = $5
		 WHERE id = $1 AND step = $6`,
		st.ID, st.Kind, string(st.Step), st.Data, st.UpdatedAt, string(StepDone),
	)
	if err != nil {
		return fmt.Errorf("restart saga %s: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyRunning
	}
	return nil
}
