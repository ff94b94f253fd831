package camilladsp

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker guards Connect. While open, Connect fails immediately with a
// *ConnectionRefusedError wrapping gobreaker.ErrOpenState, without dialing.
// Only connect attempts are counted; exchanges are never retried or blocked.
type CircuitBreaker interface {
	Execute(req func() (bool, error)) (bool, error)
	State() gobreaker.State
}

// NewGobreakerConfig returns a function that creates gobreaker circuit breakers.
// This is a helper for common use cases.
func NewGobreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(addr string) CircuitBreaker {
	return func(addr string) CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        addr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		return gobreaker.NewCircuitBreaker[bool](settings)
	}
}
