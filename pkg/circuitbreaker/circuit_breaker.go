package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// Consecutive failures before opening the circuit
	FailureThreshold int64 `json:"failure_threshold"`

	// Consecutive half-open successes before closing the circuit
	SuccessThreshold int64 `json:"success_threshold"`

	// How long the circuit stays open before a trial request
	Timeout time.Duration `json:"timeout"`

	// Deadline applied to calls whose context has none; zero disables it
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultConfig returns default circuit breaker configuration
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
		RequestTimeout:   10 * time.Second,
	}
}

// Statistics is a snapshot of circuit breaker counters
type Statistics struct {
	TotalRequests        int64     `json:"total_requests"`
	SuccessfulRequests   int64     `json:"successful_requests"`
	FailedRequests       int64     `json:"failed_requests"`
	RejectedRequests     int64     `json:"rejected_requests"`
	ConsecutiveFailures  int64     `json:"consecutive_failures"`
	ConsecutiveSuccesses int64     `json:"consecutive_successes"`
	StateTransitions     int64     `json:"state_transitions"`
	LastFailureTime      time.Time `json:"last_failure_time"`
	LastSuccessTime      time.Time `json:"last_success_time"`
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name        string
	logger      *logrus.Entry
	config      *Config
	now         func() time.Time
	mutex       sync.Mutex
	state       State
	nextAttempt time.Time
	stats       Statistics

	onStateChange func(name string, from State, to State)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config *Config, logger *logrus.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}

	return &CircuitBreaker{
		name:   name,
		logger: logger.WithField("circuit_breaker", name),
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn unless the circuit is open. Rejected calls return an
// *OpenError without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return NewOpenError(cb.name)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && cb.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.config.RequestTimeout)
		defer cancel()
	}

	if err := fn(ctx); err != nil {
		cb.recordFailure(err)
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateOpen:
		if !cb.now().Before(cb.nextAttempt) {
			cb.setState(StateHalfOpen)
			return true
		}
		cb.stats.RejectedRequests++
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.stats.TotalRequests++
	cb.stats.SuccessfulRequests++
	cb.stats.ConsecutiveFailures = 0
	cb.stats.ConsecutiveSuccesses++
	cb.stats.LastSuccessTime = cb.now()

	if cb.state == StateHalfOpen && cb.stats.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.stats.TotalRequests++
	cb.stats.FailedRequests++
	cb.stats.ConsecutiveFailures++
	cb.stats.ConsecutiveSuccesses = 0
	cb.stats.LastFailureTime = cb.now()

	// A failed trial request reopens immediately.
	if cb.state == StateHalfOpen || cb.stats.ConsecutiveFailures >= cb.config.FailureThreshold {
		cb.setState(StateOpen)
	}

	cb.logger.WithError(err).WithFields(logrus.Fields{
		"failures": cb.stats.ConsecutiveFailures,
		"state":    cb.state.String(),
	}).Debug("Circuit breaker recorded failure")
}

// setState must be called with the mutex held
func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState

	switch newState {
	case StateOpen:
		cb.nextAttempt = cb.now().Add(cb.config.Timeout)
	case StateClosed:
		cb.stats.ConsecutiveFailures = 0
		cb.nextAttempt = time.Time{}
	case StateHalfOpen:
		cb.stats.ConsecutiveSuccesses = 0
	}
	cb.stats.StateTransitions++

	cb.logger.WithFields(logrus.Fields{
		"from_state": oldState.String(),
		"to_state":   newState.String(),
	}).Info("Circuit breaker state changed")

	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}

// GetState returns the current circuit breaker state
func (cb *CircuitBreaker) GetState() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// GetStatistics returns a copy of the counters
func (cb *CircuitBreaker) GetStatistics() Statistics {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.stats
}

// Reset closes the circuit and clears the counters
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed)
	cb.stats = Statistics{}
	cb.logger.Info("Circuit breaker reset")
}

// SetStateChangeCallback sets a callback for state changes
func (cb *CircuitBreaker) SetStateChangeCallback(callback func(name string, from State, to State)) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.onStateChange = callback
}

// SetClock replaces the time source; used by tests.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.now = now
}

// GetName returns the circuit breaker name
func (cb *CircuitBreaker) GetName() string {
	return cb.name
}

// IsOpen returns true if the circuit is open
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.GetState() == StateOpen
}
