package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medly/go-clinic/pkg/circuitbreaker"
)

// BreakerClassifier shields callers from a misbehaving model endpoint. When
// the circuit is open, Classify fails fast and the caller falls back to its
// default label.
type BreakerClassifier struct {
	inner Classifier
	cb    *circuitbreaker.CircuitBreaker
}

// WithBreaker wraps a classifier in a named circuit breaker.
func WithBreaker(name string, inner Classifier, logger *zap.Logger) (*BreakerClassifier, error) {
	cb, err := circuitbreaker.New(circuitbreaker.DefaultConfig(name), logger)
	if err != nil {
		return nil, fmt.Errorf("ai: create circuit breaker %s: %w", name, err)
	}
	return &BreakerClassifier{inner: inner, cb: cb}, nil
}

func (b *BreakerClassifier) Classify(ctx context.Context, issue string) (string, error) {
	result, err := b.cb.Execute(ctx, func() (interface{}, error) {
		return b.inner.Classify(ctx, issue)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
