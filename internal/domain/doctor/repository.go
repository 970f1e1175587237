// Package doctor provides the directory repository with a Redis lookup cache.
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Directory is the query contract the cascade saga depends on. An empty
// specialty match is a valid result, not an error.
type Directory interface {
	Get(ctx context.Context, id string) (*Doctor, error)
	FindBySpecialty(ctx context.Context, specialty string) ([]Doctor, error)
}

// Repository persists doctors in PostgreSQL and caches specialty lookups in
// Redis. The cache is read-through with a short TTL; directory writes
// invalidate nothing and simply age out.
type Repository struct {
	pool     *pgxpool.Pool
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewRepository creates a new repository. cache may be nil to disable caching.
func NewRepository(pool *pgxpool.Pool, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Repository{pool: pool, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Create inserts a directory entry; ErrAlreadyExists on id conflict.
func (r *Repository) Create(ctx context.Context, d *Doctor) error {
	contact, err := json.Marshal(d.Contact)
	if err != nil {
		return fmt.Errorf("encode contact: %w", err)
	}

	query := `
		INSERT INTO doctors (id, first_name, last_name, specialties, description, contact)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query, d.ID, d.FirstName, d.LastName, d.Specialties, d.Description, contact)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create doctor %s: %w", d.ID, err)
	}
	return nil
}

// Get retrieves one doctor by id
func (r *Repository) Get(ctx context.Context, id string) (*Doctor, error) {
	query := `
		SELECT id, first_name, last_name, specialties, description, contact
		FROM doctors
		WHERE id = $1
	`
	d, err := scanDoctor(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor %s: %w", id, err)
	}
	return d, nil
}

// FindBySpecialty lists doctors carrying the specialty, in stable id order.
func (r *Repository) FindBySpecialty(ctx context.Context, specialty string) ([]Doctor, error) {
	if cached, ok := r.cacheGet(ctx, specialty); ok {
		return cached, nil
	}

	query := `
		SELECT id, first_name, last_name, specialties, description, contact
		FROM doctors
		WHERE $1 = ANY(specialties)
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, specialty)
	if err != nil {
		return nil, fmt.Errorf("find doctors by specialty %q: %w", specialty, err)
	}
	defer rows.Close()

	doctors := []Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.cacheSet(ctx, specialty, doctors)
	return doctors, nil
}

func (r *Repository) cacheKey(specialty string) string {
	return "doctors:specialty:" + specialty
}

func (r *Repository) cacheGet(ctx context.Context, specialty string) ([]Doctor, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, r.cacheKey(specialty)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("doctor cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var doctors []Doctor
	if err := json.Unmarshal(data, &doctors); err != nil {
		return nil, false
	}
	return doctors, true
}

func (r *Repository) cacheSet(ctx context.Context, specialty string, doctors []Doctor) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(doctors)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, r.cacheKey(specialty), data, r.cacheTTL).Err(); err != nil {
		r.logger.Warn("doctor cache write failed", zap.Error(err))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoctor(row rowScanner) (*Doctor, error) {
	d := &Doctor{}
	var contact []byte
	if err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Specialties, &d.Description, &contact); err != nil {
		return nil, err
	}
	if len(contact) > 0 {
		if err := json.Unmarshal(contact, &d.Contact); err != nil {
			return nil, fmt.Errorf("decode contact: %w", err)
		}
	}
	return d, nil
}
