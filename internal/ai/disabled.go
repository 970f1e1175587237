package ai

import (
	"context"
	"errors"
)

// ErrDisabled is returned when no model endpoint is configured.
var ErrDisabled = errors.New("ai: classification disabled")

// Disabled is the classifier used when no API key is configured. Every call
// fails, which pushes callers onto their fallback labels.
type Disabled struct{}

func (Disabled) Classify(ctx context.Context, issue string) (string, error) {
	return "", ErrDisabled
}
