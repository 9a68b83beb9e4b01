package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadInput(t *testing.T) {
	t.Parallel()

	noop := Step{Name: "noop", Run: func(context.Context) error { return nil }}

	_, err := New("*/15 * * * *", nil, nil)
	require.ErrorIs(t, err, ErrNoSteps)

	_, err = New("every so often", nil, nil, noop)
	require.Error(t, err)

	r, err := New("@hourly", time.UTC, nil, noop)
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestRunOnceRunsEveryStep(t *testing.T) {
	t.Parallel()

	var order []string
	boom := errors.New("boom")
	r, err := New("*/15 * * * *", time.UTC, nil,
		Step{Name: "invalidate", Run: func(context.Context) error {
			order = append(order, "invalidate")
			return boom
		}},
		Step{Name: "reload", Run: func(context.Context) error {
			order = append(order, "reload")
			return nil
		}},
	)
	require.NoError(t, err)

	err = r.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "invalidate")
	require.Equal(t, []string{"invalidate", "reload"}, order)
	require.Equal(t, 1, r.Runs())
}

func TestRunOnceStopsWhenCancelled(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	step := Step{Name: "count", Run: func(context.Context) error {
		calls.Add(1)
		return nil
	}}
	r, err := New("@daily", time.UTC, nil, step, step)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.RunOnce(ctx), context.Canceled)
	require.Zero(t, calls.Load())
}

func TestStartSchedulesNext(t *testing.T) {
	t.Parallel()

	r, err := New("@every 1h", time.UTC, nil, Step{Name: "noop", Run: func(context.Context) error { return nil }})
	require.NoError(t, err)
	require.True(t, r.Next().IsZero())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	require.WithinDuration(t, time.Now().Add(time.Hour), r.Next(), time.Minute)
}
