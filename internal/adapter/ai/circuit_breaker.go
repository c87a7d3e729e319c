// Package ai composes generative backends: provider fallback with per-provider
// circuit breakers and a shared Redis rate limit in front of them.
package ai

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the open window ends.
	CircuitOpen
	// CircuitHalfOpen lets a probe through after the open window.
	CircuitHalfOpen
)

func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards one provider. Consecutive failures open it for
// recoveryTimeout; a rate limit opens it for an explicit cooldown.
type CircuitBreaker struct {
	mu               sync.Mutex
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time

	state     CircuitState
	failures  int
	openUntil time.Time
}

// NewCircuitBreaker creates a closed breaker for the named provider.
func NewCircuitBreaker(name string, failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a request may be attempted. An open breaker whose
// window has passed moves to half-open and admits a probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return true
	}
	if cb.now().Before(cb.openUntil) {
		return false
	}
	cb.state = CircuitHalfOpen
	return true
}

// OpenUntil returns the end of the current open window, or zero when not open.
func (cb *CircuitBreaker) OpenUntil() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return time.Time{}
	}
	return cb.openUntil
}

// RecordSuccess closes the breaker and clears the failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitClosed {
		slog.Info("circuit breaker closed", slog.String("provider", cb.name))
	}
	cb.state = CircuitClosed
	cb.failures = 0
	cb.openUntil = time.Time{}
}

// RecordFailure counts a failure. A failed half-open probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.failureThreshold {
		cb.openLocked(cb.recoveryTimeout)
		slog.Warn("circuit breaker opened after failures",
			slog.String("provider", cb.name),
			slog.Int("failure_count", cb.failures),
			slog.Int("threshold", cb.failureThreshold))
	}
}

// Trip opens the breaker for d regardless of the failure streak.
func (cb *CircuitBreaker) Trip(d time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.openLocked(d)
	slog.Warn("circuit breaker tripped", slog.String("provider", cb.name), slog.Duration("cooldown", d))
}

func (cb *CircuitBreaker) openLocked(d time.Duration) {
	cb.state = CircuitOpen
	cb.openUntil = cb.now().Add(d)
}

// State returns the current state without advancing it.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
