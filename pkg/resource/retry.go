package resource

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// RetryPolicy bounds the exponential backoff applied to idempotent reads
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy retries transient read failures for up to two minutes
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     15 * time.Second,
	MaxElapsedTime:  2 * time.Minute,
}

// clockAdapter exposes a clock.Clock as a backoff.Clock
type clockAdapter struct {
	clock clock.PassiveClock
}

func (c clockAdapter) Now() time.Time { return c.clock.Now() }

// retryTransient runs op and retries it with exponential backoff while it
// keeps failing with ErrTransient. The returned error is always classified.
// Only idempotent calls go through here; mutating calls are never repeated
// blindly.
func retryTransient(ctx context.Context, clk clock.Clock, policy RetryPolicy, logger zerolog.Logger, name string, op func() error) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(policy.InitialInterval),
		backoff.WithMaxInterval(policy.MaxInterval),
		backoff.WithMaxElapsedTime(policy.MaxElapsedTime),
		backoff.WithClockProvider(clockAdapter{clock: clk}),
	)
	b.Reset()

	for {
		err := Classify(op())
		if err == nil || !errors.Is(err, ErrTransient) {
			return err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		logger.Warn().Err(err).Str("op", name).Dur("retry_in", wait).Msg("Transient error, retrying")

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		clk.Sleep(wait)
	}
}
