package provider

import (
	"context"
	"errors"
)

// ErrUnavailable marks calls rejected without reaching the model, e.g. while
// the circuit is open.
var ErrUnavailable = errors.New("model provider unavailable")

// Provider is a multimodal text generator.
type Provider interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// DescribeImage sends image with a system instruction and returns the model text.
	DescribeImage(ctx context.Context, instruction string, image []byte, mimeType string) (string, error)

	// Generate answers a text-only prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}
