package circuitbreaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	cb := NewCircuitBreaker("voice", &Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
	}, logrus.New())
	cb.SetClock(clock.Now)
	return cb
}

func fail(context.Context) error    { return fmt.Errorf("redis: connection refused") }
func succeed(context.Context) error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateClosed, cb.GetState())
	require.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.False(t, called)
	assert.True(t, IsOpenError(err))
	assert.True(t, IsOpenError(fmt.Errorf("collect voice: %w", err)))
	assert.Equal(t, int64(1), cb.GetStatistics().RejectedRequests)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	require.True(t, cb.IsOpen())

	clock.Advance(31 * time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	clock.Advance(31 * time.Second)
	require.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateOpen, cb.GetState(), "failed trial reopens the circuit")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(&fakeClock{t: time.Now()})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)

	assert.Equal(t, StateClosed, cb.GetState())
	stats := cb.GetStatistics()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.FailedRequests)
	assert.Equal(t, int64(1), stats.ConsecutiveFailures)

	cb.Reset()
	assert.Equal(t, Statistics{}, cb.GetStatistics())
}

func TestBreakerAppliesRequestTimeout(t *testing.T) {
	cb := NewCircuitBreaker("text", &Config{FailureThreshold: 5, SuccessThreshold: 1, Timeout: time.Second, RequestTimeout: time.Minute}, logrus.New())

	var deadline bool
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	})
	assert.True(t, deadline)
}

func TestManagerReusesBreakers(t *testing.T) {
	m := NewManager(logrus.New(), nil)

	a := m.GetCircuitBreaker("voice")
	b := m.GetCircuitBreaker("voice")
	m.GetCircuitBreaker("behavior")

	assert.Same(t, a, b)
	assert.Equal(t, []string{"behavior", "voice"}, m.GetBreakerNames())

	require.Error(t, m.Execute(context.Background(), "voice", fail))
	assert.Equal(t, int64(1), m.GetAllStatistics()["voice"].FailedRequests)

	m.ResetAll()
	assert.Zero(t, m.GetAllStatistics()["voice"].FailedRequests)
}
