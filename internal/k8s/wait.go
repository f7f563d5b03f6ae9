package k8s

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/primaza/primazactl/internal/instrumentation"
)

// PollConfig bounds a poll loop.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Observation is one poll result. Last is kept for the timeout error.
type Observation struct {
	Done bool
	Last any
}

// ObserveFunc checks the awaited condition once. A returned error aborts
// the poll immediately.
type ObserveFunc func(ctx context.Context) (Observation, error)

// Poll calls observe immediately and then every cfg.Interval until it
// reports Done, returns an error, or cfg.Timeout passes. Expiry yields a
// *TimeoutError carrying the last observed value.
func Poll(ctx context.Context, what string, cfg PollConfig, observe ObserveFunc) error {
	var last any
	err := wait.PollUntilContextTimeout(ctx, cfg.Interval, cfg.Timeout, true, func(ctx context.Context) (bool, error) {
		obs, err := observe(ctx)
		if err != nil {
			return false, err
		}
		if obs.Last != nil {
			last = obs.Last
		}
		return obs.Done, nil
	})
	if err == nil {
		return nil
	}
	if wait.Interrupted(err) {
		return &TimeoutError{What: what, Timeout: cfg.Timeout, LastObserved: last, Err: err}
	}
	return errors.Wrapf(err, "waiting for %s", what)
}

// PollStatus maps a poll result to a metric status label.
func PollStatus(err error) string {
	if errors.Is(err, ErrTimeout) {
		return instrumentation.StatusTimeout
	}
	return instrumentation.StatusFromError(err)
}
