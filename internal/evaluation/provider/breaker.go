package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mathtutor/internal/common/metrics"
	"mathtutor/pkg/utils/logger"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	Disabled         bool          `yaml:"disabled"`
	MinRequests      uint32        `yaml:"minRequests"`
	FailureRatio     float64       `yaml:"failureRatio"`
	OpenTimeout      time.Duration `yaml:"openTimeout"`
	HalfOpenMaxCalls uint32        `yaml:"halfOpenMaxCalls"`
}

func (c BreakerConfig) normalize() BreakerConfig {
	if c.MinRequests == 0 {
		c.MinRequests = 5
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = 1
	}
	return c
}

// BreakerProvider guards a Provider with one circuit breaker. Calls are never
// retried; an open circuit fails fast with ErrUnavailable.
type BreakerProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker[string]
}

func NewBreakerProvider(next Provider, cfg BreakerConfig, m *metrics.Metrics) *BreakerProvider {
	cfg = cfg.normalize()
	name := next.Name()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// The caller giving up says nothing about the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "model provider circuit state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerState(name, int(to))
		},
	}
	m.SetBreakerState(name, int(gobreaker.StateClosed))
	return &BreakerProvider{next: next, breaker: gobreaker.NewCircuitBreaker[string](settings)}
}

func (b *BreakerProvider) Name() string {
	return b.next.Name()
}

func (b *BreakerProvider) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerProvider) DescribeImage(ctx context.Context, instruction string, image []byte, mimeType string) (string, error) {
	return b.execute(func() (string, error) {
		return b.next.DescribeImage(ctx, instruction, image, mimeType)
	})
}

func (b *BreakerProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return b.execute(func() (string, error) {
		return b.next.Generate(ctx, prompt)
	})
}

func (b *BreakerProvider) execute(fn func() (string, error)) (string, error) {
	out, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, b.next.Name(), err)
	}
	return out, err
}
