package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *fakeClock, *[]State) {
	var changes []State
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
		OnStateChange:    func(_ string, _, to State) { changes = append(changes, to) },
	})
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb.now = clock.now
	return cb, clock, &changes
}

func TestCircuitBreakerTripsAndRecovers(t *testing.T) {
	cb, clock, changes := newTestBreaker(2, time.Minute)
	fail := func() error { return errBoom }
	ok := func() error { return nil }

	assert.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	clock.advance(time.Minute)
	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, *changes)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock, _ := newTestBreaker(1, time.Second)
	_ = cb.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, cb.State())

	clock.advance(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb, _, _ := newTestBreaker(2, time.Minute)
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, cb.State())
	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastRetry(2), func() error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastRetry(5), func() error {
		calls++
		return Permanent(errBoom)
	})
	assert.Equal(t, errBoom, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}
	err := Retry(ctx, "op", cfg, func() error { return errBoom })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeDelayIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10, JitterFraction: 0.1}
	assert.Equal(t, 3*time.Second, computeDelay(4, cfg))
	d := computeDelay(1, cfg)
	assert.InDelta(t, float64(time.Second), float64(d), float64(100*time.Millisecond))
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return nil })
	require.NoError(t, err)

	err = WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)

	err = WithTimeout(context.Background(), 0, "direct", func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
}
