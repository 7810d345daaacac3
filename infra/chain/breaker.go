package chain

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	corechain "github.com/kilianp07/dobi/core/chain"
	"github.com/kilianp07/dobi/core/logger"
)

func newBreaker(name string, log logger.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

// guarded runs fn through the breaker. Every failure, including a rejected
// call while the breaker is open, is reported as corechain.ErrUnavailable.
func guarded[T any](cb *gobreaker.CircuitBreaker, op string, fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %s: %v", corechain.ErrUnavailable, op, err)
		}
		return zero, fmt.Errorf("%w: %s: %w", corechain.ErrUnavailable, op, err)
	}
	return v.(T), nil
}
