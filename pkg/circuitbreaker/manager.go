package circuitbreaker

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager manages multiple circuit breakers
type Manager struct {
	logger        *logrus.Entry
	breakers      map[string]*CircuitBreaker
	mutex         sync.RWMutex
	defaultConfig *Config
}

// NewManager creates a new circuit breaker manager
func NewManager(logger *logrus.Logger, defaultConfig *Config) *Manager {
	if defaultConfig == nil {
		defaultConfig = DefaultConfig()
	}

	return &Manager{
		logger:        logger.WithField("component", "circuit_breaker_manager"),
		breakers:      make(map[string]*CircuitBreaker),
		defaultConfig: defaultConfig,
	}
}

// GetCircuitBreaker gets or creates the breaker called name
func (m *Manager) GetCircuitBreaker(name string) *CircuitBreaker {
	m.mutex.RLock()
	if breaker, exists := m.breakers[name]; exists {
		m.mutex.RUnlock()
		return breaker
	}
	m.mutex.RUnlock()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	breaker := NewCircuitBreaker(name, m.defaultConfig, m.logger.Logger)
	breaker.SetStateChangeCallback(m.onStateChange)
	m.breakers[name] = breaker

	m.logger.WithFields(logrus.Fields{
		"circuit_name":      name,
		"failure_threshold": m.defaultConfig.FailureThreshold,
		"timeout":           m.defaultConfig.Timeout,
	}).Debug("Created new circuit breaker")

	return breaker
}

// Execute runs fn through the breaker called name
func (m *Manager) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return m.GetCircuitBreaker(name).Execute(ctx, fn)
}

// GetAllStatistics returns statistics for all circuit breakers
func (m *Manager) GetAllStatistics() map[string]Statistics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := make(map[string]Statistics, len(m.breakers))
	for name, breaker := range m.breakers {
		stats[name] = breaker.GetStatistics()
	}
	return stats
}

// GetBreakerNames returns all circuit breaker names, sorted
func (m *Manager) GetBreakerNames() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResetAll resets every circuit breaker
func (m *Manager) ResetAll() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, breaker := range m.breakers {
		breaker.Reset()
	}
}

func (m *Manager) onStateChange(name string, from State, to State) {
	m.logger.WithFields(logrus.Fields{
		"circuit_name": name,
		"from_state":   from.String(),
		"to_state":     to.String(),
	}).Warn("Circuit breaker state changed")
}
