// Package circuitbreaker wraps sony/gobreaker for calls to flaky external
// services, recording every attempt on the ambient tracer and meter.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config tunes when the circuit opens and how it probes recovery.
type Config struct {
	Name string
	// MaxRequests caps probe traffic in the half-open state.
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// FailureThreshold opens the circuit on consecutive failures while
	// traffic is below MinRequests.
	FailureThreshold uint32
	// FailureRatio opens the circuit once MinRequests have been observed.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultConfig returns settings suitable for a slow model endpoint.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.6,
		MinRequests:      10,
	}
}

// CircuitBreaker shields a single downstream dependency. Callers treat a
// rejection like any other call failure and fall back.
type CircuitBreaker struct {
	cb       *gobreaker.CircuitBreaker
	name     string
	tracer   trace.Tracer
	attempts metric.Int64Counter
	rejected metric.Int64Counter
}

func New(cfg Config, logger *zap.Logger) (*CircuitBreaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CircuitBreaker{
		name:   cfg.Name,
		tracer: otel.Tracer("circuit-breaker"),
	}

	meter := otel.Meter("circuit-breaker")
	var err error
	c.attempts, err = meter.Int64Counter("circuit_breaker_attempts_total",
		metric.WithDescription("Calls attempted through the breaker"))
	if err != nil {
		return nil, fmt.Errorf("create attempts counter: %w", err)
	}
	c.rejected, err = meter.Int64Counter("circuit_breaker_rejections_total",
		metric.WithDescription("Calls rejected while the circuit is open"))
	if err != nil {
		return nil, fmt.Errorf("create rejections counter: %w", err)
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c, nil
}

// Execute runs fn through the breaker. ErrOpenState and ErrTooManyRequests
// from gobreaker surface unchanged so callers can treat them as rejection.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	ctx, span := c.tracer.Start(ctx, "circuit_breaker_execute",
		trace.WithAttributes(attribute.String("breaker_name", c.name)))
	defer span.End()

	c.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("name", c.name)))

	result, err := c.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("name", c.name)))
			span.SetAttributes(attribute.Bool("circuit_open", true))
		}
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}
