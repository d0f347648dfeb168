package datasource

import (
	"errors"
	"sync"
	"time"

	"github.com/pitabwire/opsdesk/internal/config"
)

// BreakerState is the state of a data source circuit breaker. The numeric
// values are exported as the opsdesk_datasource_circuit_breaker_state gauge.
type BreakerState int

const (
	// BreakerClosed lets fetches through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerHalfOpen lets probe fetches through after the open timeout.
	BreakerHalfOpen
	// BreakerOpen rejects fetches without calling the backend.
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned by Allow while the breaker rejects calls.
var ErrBreakerOpen = errors.New("datasource: circuit breaker is open")

// minErrorRateSamples is the number of calls a window needs before its error
// rate can trip the breaker.
const minErrorRateSamples = 10

// CircuitBreaker guards one backend. It opens after FailureThreshold
// consecutive failures or when the error rate in a tumbling window reaches
// ErrorRateThreshold, and closes again after SuccessThreshold consecutive
// successful probes. It is safe for concurrent use.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg config.CircuitBreakerConfig
	now func() time.Time

	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time

	windowStart    time.Time
	windowTotal    int
	windowFailures int
}

// NewCircuitBreaker creates a closed breaker. Zero thresholds fall back to
// 5 failures, 2 successes and a 30s open timeout.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) *CircuitBreaker {
	return newCircuitBreaker(cfg, time.Now)
}

func newCircuitBreaker(cfg config.CircuitBreakerConfig, now func() time.Time) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		cfg:         cfg,
		now:         now,
		state:       BreakerClosed,
		windowStart: now(),
	}
}

// Allow returns ErrBreakerOpen while the breaker is open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.currentLocked() == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

// RecordSuccess records a fetch that reached the backend and succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentLocked() {
	case BreakerClosed:
		cb.failures = 0
		cb.countLocked(false)
	case BreakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.state = BreakerClosed
			cb.failures = 0
			cb.successes = 0
			cb.resetWindowLocked()
		}
	}
}

// RecordFailure records a fetch that failed for infrastructure reasons.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentLocked() {
	case BreakerClosed:
		cb.failures++
		cb.countLocked(true)
		if cb.failures >= cb.cfg.FailureThreshold || cb.rateExceededLocked() {
			cb.tripLocked()
		}
	case BreakerHalfOpen:
		cb.tripLocked()
	}
}

// State returns the current state, moving an expired open breaker to
// half-open.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentLocked()
}

// ErrorRate returns the failure ratio and call count of the current window.
func (cb *CircuitBreaker) ErrorRate() (rate float64, total int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rollWindowLocked()
	if cb.windowTotal == 0 {
		return 0, 0
	}
	return float64(cb.windowFailures) / float64(cb.windowTotal), cb.windowTotal
}

func (cb *CircuitBreaker) currentLocked() BreakerState {
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Timeout {
		cb.state = BreakerHalfOpen
		cb.successes = 0
	}
	return cb.state
}

func (cb *CircuitBreaker) tripLocked() {
	cb.state = BreakerOpen
	cb.openedAt = cb.now()
	cb.successes = 0
	cb.resetWindowLocked()
}

func (cb *CircuitBreaker) countLocked(failed bool) {
	if cb.cfg.ErrorRateWindow <= 0 {
		return
	}
	cb.rollWindowLocked()
	cb.windowTotal++
	if failed {
		cb.windowFailures++
	}
}

func (cb *CircuitBreaker) rollWindowLocked() {
	if cb.cfg.ErrorRateWindow <= 0 {
		return
	}
	if cb.now().Sub(cb.windowStart) > cb.cfg.ErrorRateWindow {
		cb.resetWindowLocked()
	}
}

func (cb *CircuitBreaker) resetWindowLocked() {
	cb.windowStart = cb.now()
	cb.windowTotal = 0
	cb.windowFailures = 0
}

func (cb *CircuitBreaker) rateExceededLocked() bool {
	if cb.cfg.ErrorRateThreshold <= 0 || cb.cfg.ErrorRateWindow <= 0 {
		return false
	}
	if cb.windowTotal < minErrorRateSamples {
		return false
	}
	return float64(cb.windowFailures)/float64(cb.windowTotal) >= cb.cfg.ErrorRateThreshold
}
