package docker

import (
	"sync/atomic"
	"time"
)

type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker stops container starts after repeated failures so a broken
// daemon or image does not get hammered by every job's retry loop.
type CircuitBreaker struct {
	state            atomic.Int32
	failures         atomic.Int32
	lastFail         atomic.Int64
	halfOpenAttempts atomic.Int32
	threshold        int32
	timeout          time.Duration
	metrics          *Metrics
}

func NewCircuitBreaker(threshold int, timeout time.Duration, metrics *Metrics) *CircuitBreaker {
	if threshold == 0 {
		threshold = 5
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		threshold: int32(threshold),
		timeout:   timeout,
		metrics:   metrics,
	}
}

func (cb *CircuitBreaker) Allow() (bool, int64) {
	token := time.Now().UnixNano()

	for {
		state := CircuitState(cb.state.Load())

		switch state {
		case CircuitClosed:
			return true, token

		case CircuitOpen:
			lastFailNano := cb.lastFail.Load()
			lastFail := time.Unix(0, lastFailNano)
			if time.Since(lastFail) <= cb.timeout {
				return false, 0
			}
			// The caller that flips the state takes the only trial slot.
			cb.halfOpenAttempts.Store(1)
			if !cb.state.CompareAndSwap(int32(CircuitOpen), int32(CircuitHalfOpen)) {
				continue
			}
			return true, token

		case CircuitHalfOpen:
			if cb.halfOpenAttempts.CompareAndSwap(0, 1) {
				return true, token
			}
			return false, 0
		}
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.failures.Store(0)
	cb.halfOpenAttempts.Store(0)
	cb.state.Store(int32(CircuitClosed))
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.failures.Add(1)
	cb.lastFail.Store(time.Now().UnixNano())

	state := CircuitState(cb.state.Load())
	if state == CircuitHalfOpen {
		cb.state.Store(int32(CircuitOpen))
	} else if cb.failures.Load() >= cb.threshold {
		if cb.state.CompareAndSwap(int32(CircuitClosed), int32(CircuitOpen)) {
			if cb.metrics != nil {
				cb.metrics.CircuitTrips.Add(1)
			}
		}
	}
}

// Do runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if allowed, _ := cb.Allow(); !allowed {
		return &CircuitOpenError{RetryAfter: cb.retryAfter()}
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

func (cb *CircuitBreaker) retryAfter() time.Duration {
	lastFail := time.Unix(0, cb.lastFail.Load())
	wait := cb.timeout - time.Since(lastFail)
	if wait < 0 {
		return 0
	}
	return wait
}

func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(cb.state.Load())
}

func (cb *CircuitBreaker) Reset() {
	cb.failures.Store(0)
	cb.halfOpenAttempts.Store(0)
	cb.state.Store(int32(CircuitClosed))
}
