package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())

	calls := 0
	err := s.Run(ctx, func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls)
}

func TestRunUsesBackoffAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(Options{Interval: time.Millisecond, Backoff: 60 * time.Millisecond}, zerolog.Nop())

	var stamps []time.Time
	err := s.Run(ctx, func(context.Context) error {
		stamps = append(stamps, time.Now())
		switch len(stamps) {
		case 1:
			return errors.New("rpc unavailable")
		case 2:
			return nil
		default:
			cancel()
			return nil
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 60*time.Millisecond)
	assert.Less(t, stamps[2].Sub(stamps[1]), 60*time.Millisecond)
}

func TestRunHonoursStartupDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s := New(Options{Interval: time.Millisecond, StartupDelay: time.Second}, zerolog.Nop())

	called := false
	err := s.Run(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestNewDefaultsBackoffToInterval(t *testing.T) {
	s := New(Options{Interval: time.Second}, zerolog.Nop())
	assert.Equal(t, time.Second, s.opts.Backoff)
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}
