// Package circuitbreaker wraps sony/gobreaker for outbound HTTP calls.
// Repeated failures open the breaker and callers fail fast instead of
// waiting on a dead endpoint.
package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"conveyor/internal/common/errors"
	"conveyor/internal/common/logging"
)

// Config tunes when the breaker opens and recovers.
type Config struct {
	// MaxFailures is the consecutive failure count that opens the breaker.
	MaxFailures int
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// SuccessThreshold is the consecutive successes needed to close again.
	SuccessThreshold int
}

// DefaultConfig returns the settings used for notification and trigger
// endpoints.
func DefaultConfig() Config {
	return Config{
		MaxFailures:      5,
		Timeout:          60 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker guards calls to a single remote endpoint.
type CircuitBreaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

// New creates a named breaker with the given config.
func New(name string, config Config) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(config.SuccessThreshold),
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.MaxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.GetGlobalLogger().Warn("circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()))
		},
	}
	return &CircuitBreaker{name: name, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. An open breaker returns an
// internal error immediately without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := cb.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.InternalError(fmt.Sprintf("circuit breaker %s is open", cb.name), err)
	}
	return err
}

// State reports the breaker's current state as a string.
func (cb *CircuitBreaker) State() string {
	return cb.breaker.State().String()
}
