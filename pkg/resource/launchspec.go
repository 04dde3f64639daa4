package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/greenfleet/pkg/fleetapi"
	"github.com/cuemby/greenfleet/pkg/log"
	"github.com/cuemby/greenfleet/pkg/types"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// LaunchSpecClient manages launch specs against the fleet manager
type LaunchSpecClient struct {
	api    fleetapi.API
	clock  clock.Clock
	retry  RetryPolicy
	logger zerolog.Logger
}

// NewLaunchSpecClient creates a launch spec client
func NewLaunchSpecClient(api fleetapi.API, clk clock.Clock, retry RetryPolicy) *LaunchSpecClient {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &LaunchSpecClient{
		api:    api,
		clock:  clk,
		retry:  retry,
		logger: log.WithComponent("launch_spec"),
	}
}

// Create creates a new launch spec and returns its name. The remote call runs
// to completion even when ctx is cancelled, and an ambiguous failure is
// confirmed with a read: a spec that exists is returned as created.
func (c *LaunchSpecClient) Create(ctx context.Context, name string, data types.LaunchSpecData) (string, error) {
	if data.ImageID == "" {
		return "", fmt.Errorf("launch spec %s: image id is required: %w", name, ErrValidation)
	}
	if data.InstanceType == "" {
		return "", fmt.Errorf("launch spec %s: instance type is required: %w", name, ErrValidation)
	}

	c.logger.Info().
		Str("launch_spec", name).
		Str("image_id", data.ImageID).
		Str("instance_type", data.InstanceType).
		Msg("Creating launch spec")

	mctx := context.WithoutCancel(ctx)
	out, err := c.api.CreateLaunchSpec(mctx, &fleetapi.CreateLaunchSpecInput{
		LaunchSpecName: name,
		LaunchSpecData: launchSpecDataToWire(data),
	})
	if err != nil {
		return c.confirmCreate(mctx, name, Classify(err))
	}

	created := out.LaunchSpec.LaunchSpecName
	if created == "" {
		created = name
	}
	c.logger.Info().Str("launch_spec", created).Msg("Launch spec created")
	return created, nil
}

func (c *LaunchSpecClient) confirmCreate(ctx context.Context, name string, createErr error) (string, error) {
	if !IsAmbiguous(createErr) {
		return "", fmt.Errorf("creating launch spec %s: %w", name, createErr)
	}

	_, err := c.Read(ctx, name, "")
	switch {
	case err == nil:
		c.logger.Warn().Err(createErr).Str("launch_spec", name).Msg("Create response lost, launch spec exists")
		return name, nil
	case errors.Is(err, ErrNotFound):
		return "", fmt.Errorf("creating launch spec %s: %w", name, createErr)
	default:
		c.logger.Warn().Err(err).Str("launch_spec", name).Msg("Could not confirm launch spec create")
		return "", &PartialCreateError{Kind: types.ResourceLaunchSpec, Name: name, Step: "confirming create", Err: createErr}
	}
}

// Read returns one version of a launch spec. An empty version selects the
// latest one.
func (c *LaunchSpecClient) Read(ctx context.Context, name, version string) (*types.LaunchSpec, error) {
	if version == "" {
		version = fleetapi.LatestVersion
	}

	var out *fleetapi.DescribeLaunchSpecVersionsOutput
	err := retryTransient(ctx, c.clock, c.retry, c.logger, "DescribeLaunchSpecVersions", func() error {
		var err error
		out, err = c.api.DescribeLaunchSpecVersions(ctx, &fleetapi.DescribeLaunchSpecVersionsInput{
			LaunchSpecName: name,
			Versions:       []string{version},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading launch spec %s: %w", name, err)
	}
	if len(out.LaunchSpecVersions) == 0 {
		return nil, fmt.Errorf("launch spec %s version %s: %w", name, version, ErrNotFound)
	}
	return launchSpecFromVersion(out.LaunchSpecVersions[0]), nil
}

// Destroy deletes a launch spec. A spec still referenced by a fleet fails
// with ErrInUse; one that no longer exists counts as destroyed.
func (c *LaunchSpecClient) Destroy(ctx context.Context, name string) error {
	c.logger.Info().Str("launch_spec", name).Msg("Destroying launch spec")

	err := c.api.DeleteLaunchSpec(context.WithoutCancel(ctx), &fleetapi.DeleteLaunchSpecInput{LaunchSpecName: name})
	if err == nil {
		c.logger.Info().Str("launch_spec", name).Msg("Launch spec destroyed")
		return nil
	}

	err = Classify(err)
	if errors.Is(err, ErrNotFound) {
		c.logger.Warn().Str("launch_spec", name).Msg("Launch spec already gone")
		return nil
	}
	return fmt.Errorf("destroying launch spec %s: %w", name, err)
}
