package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/devserver/internal/foundation/errors"
)

func TestDelayModes(t *testing.T) {
	fixed := Policy{Mode: Fixed, Initial: 100 * time.Millisecond, Max: 500 * time.Millisecond}
	require.Equal(t, 100*time.Millisecond, fixed.Delay(3))

	linear := Policy{Mode: Linear, Initial: 100 * time.Millisecond, Max: 250 * time.Millisecond}
	require.Equal(t, 200*time.Millisecond, linear.Delay(2))
	require.Equal(t, 250*time.Millisecond, linear.Delay(5))

	exp := Policy{Mode: Exponential, Initial: 100 * time.Millisecond, Max: time.Second}
	require.Equal(t, 100*time.Millisecond, exp.Delay(1))
	require.Equal(t, 400*time.Millisecond, exp.Delay(3))
	require.Equal(t, time.Second, exp.Delay(10))
	require.Zero(t, exp.Delay(0))
}

func fastPolicy(retries int) Policy {
	return Policy{Mode: Fixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: retries}
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return ferrors.NetworkError("unreachable").Retryable().Build()
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.Equal(t, 1, calls)
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Do(context.Background(), func(context.Context) error {
		calls++
		return ferrors.NetworkError("unreachable").Retryable().Build()
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	p := Policy{Mode: Fixed, Initial: time.Hour, Max: time.Hour, MaxRetries: 5}
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return ferrors.NetworkError("unreachable").Retryable().Build()
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
