package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/greenfleet/pkg/fleetapi"
	"github.com/cuemby/greenfleet/pkg/log"
	"github.com/cuemby/greenfleet/pkg/types"
	"github.com/cuemby/greenfleet/pkg/waiter"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// FleetOptions tunes the waits inside fleet create and decommission
type FleetOptions struct {
	// ReadyInterval and ReadyTimeout bound the post-create readiness wait
	ReadyInterval time.Duration
	ReadyTimeout  time.Duration

	// TerminatePause spaces out individual member terminate requests
	TerminatePause time.Duration

	// DrainInterval and DrainTimeout bound the wait for zero members
	DrainInterval time.Duration
	DrainTimeout  time.Duration

	// DeleteRetryInterval and DeleteRetryTimeout bound retries of calls
	// rejected because a scaling activity is in progress
	DeleteRetryInterval time.Duration
	DeleteRetryTimeout  time.Duration

	Retry RetryPolicy
}

// DefaultFleetOptions returns the production timings
func DefaultFleetOptions() FleetOptions {
	return FleetOptions{
		ReadyInterval:       15 * time.Second,
		ReadyTimeout:        20 * time.Minute,
		TerminatePause:      2 * time.Second,
		DrainInterval:       30 * time.Second,
		DrainTimeout:        30 * time.Minute,
		DeleteRetryInterval: 30 * time.Second,
		DeleteRetryTimeout:  30 * time.Minute,
		Retry:               DefaultRetryPolicy,
	}
}

// FleetUpdate is a partial fleet update; nil fields are left unchanged
type FleetUpdate struct {
	LaunchSpec      *types.LaunchSpecRef
	MinCapacity     *int
	MaxCapacity     *int
	DesiredCapacity *int
	HealthCheck     *types.HealthCheck
}

// FleetClient manages fleet lifecycles against the fleet manager
type FleetClient struct {
	api    fleetapi.API
	clock  clock.Clock
	poller *waiter.Poller
	opts   FleetOptions
	logger zerolog.Logger
}

// NewFleetClient creates a fleet client
func NewFleetClient(api fleetapi.API, clk clock.Clock, opts FleetOptions) *FleetClient {
	poller := waiter.New(clk)
	return &FleetClient{
		api:    api,
		clock:  poller.Clock(),
		poller: poller,
		opts:   opts,
		logger: log.WithComponent("fleet"),
	}
}

// Create creates a fleet from launchSpecName, attaches its scaling policies
// and blocks until the number of ready members equals the desired capacity.
// A failure after the fleet exists is returned as *PartialCreateError.
//
// Remote calls run to completion even when ctx is cancelled; ctx is honored
// between steps. A create that fails without a definite answer is confirmed
// with a read before it is reported as failed.
func (c *FleetClient) Create(ctx context.Context, name, launchSpecName string, cfg types.FleetConfig) error {
	logger := log.WithFleet(name)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("fleet %s: %v: %w", name, err, ErrValidation)
	}

	logger.Info().
		Str("launch_spec", launchSpecName).
		Int("min", cfg.MinCapacity).
		Int("desired", cfg.DesiredCapacity).
		Int("max", cfg.MaxCapacity).
		Strs("subnets", cfg.SubnetIDs).
		Msg("Creating fleet")

	mctx := context.WithoutCancel(ctx)
	if err := c.api.CreateFleet(mctx, createFleetInput(name, launchSpecName, cfg)); err != nil {
		if cerr := c.confirmCreate(mctx, name, Classify(err)); cerr != nil {
			return cerr
		}
	}

	for _, p := range cfg.Policies {
		if err := ctx.Err(); err != nil {
			return &PartialCreateError{Kind: types.ResourceFleet, Name: name, Step: "attaching scaling policies", Err: err}
		}
		logger.Info().Str("policy", p.Name).Msg("Attaching scaling policy")
		if err := c.api.PutScalingPolicy(mctx, scalingPolicyInput(name, p)); err != nil {
			return &PartialCreateError{
				Kind: types.ResourceFleet,
				Name: name,
				Step: fmt.Sprintf("attaching scaling policy %s", p.Name),
				Err:  Classify(err),
			}
		}
	}

	logger.Info().Msg("Waiting for members to become available")
	err := c.poller.WaitFor(ctx, c.opts.ReadyInterval, c.opts.ReadyTimeout, fmt.Sprintf("fleet %s ready", name),
		func(ctx context.Context) (bool, error) {
			f, err := c.Read(ctx, name)
			if err != nil {
				return false, err
			}
			ready := f.ReadyCount()
			logger.Info().
				Int("current", ready).
				Int("desired", cfg.DesiredCapacity).
				Msg("Checking capacity")
			return ready == cfg.DesiredCapacity, nil
		})
	if err != nil {
		return &PartialCreateError{Kind: types.ResourceFleet, Name: name, Step: "waiting for readiness", Err: err}
	}

	logger.Info().Msg("Fleet created")
	return nil
}

// confirmCreate decides the outcome of a create call that failed with
// createErr. Only an ambiguous failure is checked against the fleet manager:
// a fleet that exists is treated as created, one that cannot be read is
// reported as *PartialCreateError so the caller still cleans it up.
func (c *FleetClient) confirmCreate(ctx context.Context, name string, createErr error) error {
	if !IsAmbiguous(createErr) {
		return fmt.Errorf("creating fleet %s: %w", name, createErr)
	}

	logger := log.WithFleet(name)
	_, err := c.Read(ctx, name)
	switch {
	case err == nil:
		logger.Warn().Err(createErr).Msg("Create response lost, fleet exists")
		return nil
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("creating fleet %s: %w", name, createErr)
	default:
		logger.Warn().Err(err).Msg("Could not confirm fleet create")
		return &PartialCreateError{Kind: types.ResourceFleet, Name: name, Step: "confirming create", Err: createErr}
	}
}

// Read returns the current snapshot of a fleet, or ErrNotFound
func (c *FleetClient) Read(ctx context.Context, name string) (*types.Fleet, error) {
	var out *fleetapi.DescribeFleetsOutput
	err := retryTransient(ctx, c.clock, c.opts.Retry, c.logger, "DescribeFleets", func() error {
		var err error
		out, err = c.api.DescribeFleets(ctx, &fleetapi.DescribeFleetsInput{FleetNames: []string{name}})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading fleet %s: %w", name, err)
	}

	for _, d := range out.Fleets {
		if d.FleetName == name {
			return fleetFromDescription(d), nil
		}
	}
	return nil, fmt.Errorf("fleet %s: %w", name, ErrNotFound)
}

// List returns every fleet, draining all pages
func (c *FleetClient) List(ctx context.Context) ([]*types.Fleet, error) {
	var descs []fleetapi.FleetDescription
	err := retryTransient(ctx, c.clock, c.opts.Retry, c.logger, "DescribeFleets", func() error {
		var err error
		descs, err = fleetapi.DescribeAllFleets(ctx, c.api)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing fleets: %w", err)
	}

	fleets := make([]*types.Fleet, 0, len(descs))
	for _, d := range descs {
		fleets = append(fleets, fleetFromDescription(d))
	}
	return fleets, nil
}

// Update applies a partial update. A concurrent scaling activity is
// reported as ErrActivityInProgress and left to the caller to retry.
func (c *FleetClient) Update(ctx context.Context, name string, u FleetUpdate) error {
	if err := c.api.UpdateFleet(context.WithoutCancel(ctx), updateFleetInput(name, u)); err != nil {
		return fmt.Errorf("updating fleet %s: %w", name, Classify(err))
	}
	return nil
}

// Destroy decommissions a fleet: min capacity to zero, terminate every
// in-service member, wait for the fleet to drain and delete it. A fleet that
// no longer exists counts as destroyed.
func (c *FleetClient) Destroy(ctx context.Context, name string) error {
	logger := log.WithFleet(name)
	logger.Info().Msg("Terminating fleet")

	zero := 0
	err := c.retryInProgress(ctx, fmt.Sprintf("fleet %s min capacity 0", name), func(ctx context.Context) error {
		return c.Update(ctx, name, FleetUpdate{MinCapacity: &zero})
	})
	if errors.Is(err, ErrNotFound) {
		logger.Warn().Msg("Fleet already gone")
		return nil
	}
	if err != nil {
		return fmt.Errorf("destroying fleet %s: %w", name, err)
	}

	f, err := c.Read(ctx, name)
	if err != nil {
		return fmt.Errorf("destroying fleet %s: %w", name, err)
	}

	requested := make(map[string]bool)
	if err := c.terminateInService(ctx, f, requested); err != nil {
		return fmt.Errorf("destroying fleet %s: %w", name, err)
	}

	err = c.poller.WaitFor(ctx, c.opts.DrainInterval, c.opts.DrainTimeout, fmt.Sprintf("fleet %s drained", name),
		func(ctx context.Context) (bool, error) {
			f, err := c.Read(ctx, name)
			if err != nil {
				return false, err
			}

			logger.Info().
				Int("members", len(f.Members)).
				Int("target", 0).
				Str("states", types.FormatSummary(f.LifecycleSummary())).
				Msg("Draining fleet")
			if len(f.Members) == 0 {
				return true, nil
			}
			return false, c.terminateInService(ctx, f, requested)
		})
	if err != nil {
		return fmt.Errorf("destroying fleet %s: %w", name, err)
	}
	logger.Info().Msg("Members terminated")

	err = c.retryInProgress(ctx, fmt.Sprintf("fleet %s deleted", name), func(ctx context.Context) error {
		return c.delete(ctx, name)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("destroying fleet %s: %w", name, err)
	}

	logger.Info().Msg("Fleet terminated")
	return nil
}

func (c *FleetClient) delete(ctx context.Context, name string) error {
	if err := c.api.DeleteFleet(context.WithoutCancel(ctx), &fleetapi.DeleteFleetInput{FleetName: name}); err != nil {
		return fmt.Errorf("deleting fleet %s: %w", name, Classify(err))
	}
	return nil
}

// terminateInService requests termination of every in-service member not
// yet requested, pausing between requests. Members that cannot be
// terminated right now are left for the next pass.
func (c *FleetClient) terminateInService(ctx context.Context, f *types.Fleet, requested map[string]bool) error {
	logger := log.WithFleet(f.Name)
	first := true
	for _, m := range f.InServiceMembers() {
		if requested[m.ID] {
			continue
		}
		if !first {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.clock.Sleep(c.opts.TerminatePause)
		}
		first = false

		err := c.api.TerminateMember(context.WithoutCancel(ctx), &fleetapi.TerminateMemberInput{
			MemberId:                       m.ID,
			ShouldDecrementDesiredCapacity: true,
		})
		if err != nil {
			err = Classify(err)
			if errors.Is(err, ErrActivityInProgress) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrTransient) {
				logger.Warn().Err(err).Str("member", m.ID).Msg("Terminate request deferred")
				continue
			}
			return fmt.Errorf("terminating member %s: %w", m.ID, err)
		}
		requested[m.ID] = true
		logger.Info().Str("member", m.ID).Msg("Termination requested")
	}
	return nil
}

// retryInProgress repeats op while it fails with ErrActivityInProgress,
// bounded by the delete retry interval and timeout.
func (c *FleetClient) retryInProgress(ctx context.Context, name string, op func(context.Context) error) error {
	return c.poller.WaitFor(ctx, c.opts.DeleteRetryInterval, c.opts.DeleteRetryTimeout, name,
		func(ctx context.Context) (bool, error) {
			err := op(ctx)
			if errors.Is(err, ErrActivityInProgress) {
				c.logger.Info().Str("op", name).Dur("retry_in", c.opts.DeleteRetryInterval).Msg("Scaling activity in progress")
				return false, nil
			}
			return err == nil, err
		})
}
