package waiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
	"github.com/cuemby/greenfleet/pkg/log"
	"github.com/cuemby/greenfleet/pkg/metrics"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// Accepted bounds for WaitFor
const (
	MinRetryInterval = 1 * time.Second
	MaxRetryInterval = 60 * time.Second
	MinTimeout       = 1 * time.Second
	MaxTimeout       = 1800 * time.Second
)

var (
	// ErrParameterOutOfRange is returned before the predicate is ever called
	// when the retry interval or timeout falls outside the accepted bounds.
	ErrParameterOutOfRange = fmt.Errorf("parameter out of range: %w", errdefs.ErrInvalidArgument)

	// ErrTimeout is returned when the predicate never held within the timeout.
	ErrTimeout = fmt.Errorf("timed out: %w", context.DeadlineExceeded)
)

// Predicate is polled until it reports true. A returned error aborts the wait.
type Predicate func(ctx context.Context) (bool, error)

// Poller runs bounded, strictly sequential retry-until-true loops
type Poller struct {
	clock  clock.Clock
	logger zerolog.Logger
}

// New creates a Poller driven by clk
func New(clk clock.Clock) *Poller {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Poller{
		clock:  clk,
		logger: log.WithComponent("waiter"),
	}
}

// Clock returns the clock the poller sleeps on
func (p *Poller) Clock() clock.Clock {
	return p.clock
}

// WaitFor calls pred until it returns true, sleeping interval between
// unsuccessful calls. Once the time elapsed since the first call reaches
// timeout it fails with ErrTimeout naming the wait. Predicate errors are
// returned unchanged. Context cancellation is honored between calls only,
// never in the middle of one.
func (p *Poller) WaitFor(ctx context.Context, interval, timeout time.Duration, name string, pred Predicate) error {
	if interval < MinRetryInterval || interval > MaxRetryInterval {
		return fmt.Errorf("retry interval %v not in [%v, %v]: %w",
			interval, MinRetryInterval, MaxRetryInterval, ErrParameterOutOfRange)
	}
	if timeout < MinTimeout || timeout > MaxTimeout {
		return fmt.Errorf("timeout %v not in [%v, %v]: %w",
			timeout, MinTimeout, MaxTimeout, ErrParameterOutOfRange)
	}

	start := p.clock.Now()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		metrics.WaitIterationsTotal.Inc()
		ok, err := pred(ctx)
		if err != nil {
			return err
		}
		if ok {
			p.logger.Debug().
				Str("wait", name).
				Int("attempts", attempt).
				Dur("elapsed", p.clock.Since(start)).
				Msg("Condition met")
			return nil
		}

		elapsed := p.clock.Since(start)
		if elapsed >= timeout {
			return fmt.Errorf("waiting for %s after %v (%d attempts): %w", name, elapsed, attempt, ErrTimeout)
		}

		p.logger.Debug().
			Str("wait", name).
			Int("attempt", attempt).
			Dur("retry_in", interval).
			Msg("Condition not met")

		if err := ctx.Err(); err != nil {
			return err
		}
		p.clock.Sleep(interval)
	}
}

// IsTimeout reports whether err came from an exhausted wait
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
