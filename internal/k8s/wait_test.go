package k8s

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	cfg := PollConfig{Interval: 5 * time.Millisecond, Timeout: 100 * time.Millisecond}

	t.Run("done", func(t *testing.T) {
		calls := 0
		err := Poll(context.Background(), "counter", cfg, func(context.Context) (Observation, error) {
			calls++
			return Observation{Done: calls == 3}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("timeout keeps last observation", func(t *testing.T) {
		err := Poll(context.Background(), "state", PollConfig{Interval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond},
			func(context.Context) (Observation, error) {
				return Observation{Last: map[string]string{"state": "Offline"}}, nil
			})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTimeout))

		var timeoutErr *TimeoutError
		require.True(t, errors.As(err, &timeoutErr))
		assert.Equal(t, map[string]string{"state": "Offline"}, timeoutErr.LastObserved)
		assert.Contains(t, err.Error(), `"state":"Offline"`)
		assert.Equal(t, "timeout", PollStatus(err))
	})

	t.Run("observe error aborts", func(t *testing.T) {
		boom := errors.New("boom")
		err := Poll(context.Background(), "x", cfg, func(context.Context) (Observation, error) {
			return Observation{}, boom
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.False(t, errors.Is(err, ErrTimeout))
	})
}
