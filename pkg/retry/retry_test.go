package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearBackoff(t *testing.T) {
	backoff := Linear(time.Second)
	assert.Equal(t, time.Second, backoff(1))
	assert.Equal(t, 2*time.Second, backoff(2))
	assert.Equal(t, 3*time.Second, backoff(3))
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	policy := NewPolicy(3, time.Millisecond)
	calls := 0
	err := policy.Do(context.Background(), func(context.Context, int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	var retried []int
	policy := Policy{
		Attempts: 3,
		Backoff:  Linear(time.Millisecond),
		OnRetry:  func(attempt int, _ error) { retried = append(retried, attempt) },
	}
	calls := 0
	err := policy.Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoReturnsExhaustedError(t *testing.T) {
	policy := NewPolicy(3, time.Millisecond)
	cause := errors.New("gateway down")
	calls := 0
	err := policy.Do(context.Background(), func(context.Context, int) error {
		calls++
		return cause
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, cause)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	policy := NewPolicy(5, time.Millisecond)
	cause := errors.New("invalid account")
	calls := 0
	err := policy.Do(context.Background(), func(context.Context, int) error {
		calls++
		return Permanent(cause)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, cause, err)
}

func TestDoHonoursContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := NewPolicy(3, time.Hour)
	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- policy.Do(ctx, func(context.Context, int) error {
			calls++
			return errors.New("fail")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop after cancel")
	}
	assert.Equal(t, 1, calls)
}
