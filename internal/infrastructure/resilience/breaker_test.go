package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errDiskFull = errors.New("no space left on device")
	errBadInput = errors.New("invalid path")
)

func newTestBreaker(threshold uint32) (*Breaker, *time.Time) {
	now := time.Unix(1700000000, 0)
	b := New("test", Settings{
		Threshold: threshold,
		Cooldown:  time.Minute,
		IsFailure: func(err error) bool { return errors.Is(err, errDiskFull) },
	})
	b.now = func() time.Time { return now }
	return b, &now
}

func fail(err error) func() error { return func() error { return err } }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		results  []error
		expected State
	}{
		{"stays closed on successes", []error{nil, nil, nil}, StateClosed},
		{"opens after consecutive failures", []error{errDiskFull, errDiskFull, errDiskFull}, StateOpen},
		{"success resets the streak", []error{errDiskFull, errDiskFull, nil, errDiskFull, errDiskFull}, StateClosed},
		{"ignored errors do not count", []error{errBadInput, errBadInput, errBadInput, errBadInput}, StateClosed},
		{"ignored errors do not reset", []error{errDiskFull, errDiskFull, errBadInput, errDiskFull}, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(3)
			for _, res := range tt.results {
				_ = b.Do(fail(res))
			}
			assert.Equal(t, tt.expected, b.State())
		})
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(1)
	require.ErrorIs(t, b.Do(fail(errDiskFull)), errDiskFull)

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, uint32(1), b.Counts().Rejected)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	t.Run("probe success closes", func(t *testing.T) {
		b, now := newTestBreaker(1)
		_ = b.Do(fail(errDiskFull))

		*now = now.Add(time.Minute)
		assert.Equal(t, StateHalfOpen, b.State())
		require.NoError(t, b.Do(fail(nil)))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("probe failure reopens", func(t *testing.T) {
		b, now := newTestBreaker(1)
		_ = b.Do(fail(errDiskFull))

		*now = now.Add(time.Minute)
		_ = b.Do(fail(errDiskFull))
		assert.Equal(t, StateOpen, b.State())

		*now = now.Add(30 * time.Second)
		assert.ErrorIs(t, b.Do(fail(nil)), ErrCircuitOpen)
	})

	t.Run("one probe at a time", func(t *testing.T) {
		b, now := newTestBreaker(1)
		_ = b.Do(fail(errDiskFull))
		*now = now.Add(time.Minute)

		err := b.Do(func() error {
			assert.ErrorIs(t, b.Do(fail(nil)), ErrTooManyRequests)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, StateClosed, b.State())
	})
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(1)
	assert.Panics(t, func() {
		_ = b.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	b := New("writes", Settings{
		Threshold: 2,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = b.Do(fail(errDiskFull))
	_ = b.Do(fail(errDiskFull))
	assert.Equal(t, []string{"writes:closed->open"}, transitions)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
