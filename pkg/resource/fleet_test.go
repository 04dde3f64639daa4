package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/greenfleet/pkg/fleetapi"
	"github.com/cuemby/greenfleet/pkg/fleetapi/fleetapitest"
	"github.com/cuemby/greenfleet/pkg/types"
	"github.com/cuemby/greenfleet/pkg/waiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func newFleetTest(t *testing.T) (*FleetClient, *fleetapitest.Fake, *testingclock.FakeClock) {
	t.Helper()
	api := fleetapitest.New()
	api.SeedLaunchSpec("LT-1", fleetapi.LaunchSpecData{ImageId: "img-1", InstanceType: "t3.small"})
	clk := testingclock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewFleetClient(api, clk, DefaultFleetOptions()), api, clk
}

func testFleetConfig(desired int) types.FleetConfig {
	return types.FleetConfig{
		MinCapacity:     1,
		MaxCapacity:     4,
		DesiredCapacity: desired,
		SubnetIDs:       []string{"subnet-a", "subnet-b"},
		TargetGroupARNs: []string{"tg-1"},
		HealthCheck:     types.HealthCheck{Type: "ELB", GracePeriod: 300 * time.Second},
	}
}

func seedFleet(api *fleetapitest.Fake, name string, desired int) {
	api.SeedFleet(fleetapi.FleetDescription{
		FleetName:       name,
		LaunchSpec:      &fleetapi.LaunchSpecSpecification{LaunchSpecName: "LT-1"},
		MinSize:         1,
		MaxSize:         4,
		DesiredCapacity: desired,
	})
}

func TestFleetCreateWaitsForReady(t *testing.T) {
	fc, api, clk := newFleetTest(t)
	start := clk.Now()

	cfg := testFleetConfig(2)
	cfg.Policies = []types.ScalingPolicy{{Name: "scale-out", AdjustmentType: "ChangeInCapacity", ScalingAdjustment: 1}}

	err := fc.Create(context.Background(), "ASG-2", "LT-1", cfg)
	require.NoError(t, err)

	desc, ok := api.Fleet("ASG-2")
	require.True(t, ok)
	assert.Equal(t, 2, desc.DesiredCapacity)
	assert.Equal(t, "subnet-a,subnet-b", desc.VPCZoneIdentifier)
	assert.Equal(t, 300, desc.HealthCheckGracePeriod)
	assert.Equal(t, "LT-1", desc.LaunchSpec.LaunchSpecName)

	policies := api.Policies("ASG-2")
	require.Len(t, policies, 1)
	assert.Equal(t, "scale-out", policies[0].PolicyName)

	// first read sees pending members, the second sees them ready
	assert.Len(t, api.CallsFor(fleetapitest.OpDescribeFleets), 2)
	assert.Equal(t, 15*time.Second, clk.Since(start))
}

func TestFleetCreateTimeout(t *testing.T) {
	fc, api, clk := newFleetTest(t)
	api.ReadyAfter = -1
	start := clk.Now()

	err := fc.Create(context.Background(), "ASG-2", "LT-1", testFleetConfig(1))
	require.Error(t, err)

	var partial *PartialCreateError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, "ASG-2", partial.Name)
	assert.Equal(t, types.ResourceFleet, partial.Kind)
	assert.ErrorIs(t, err, waiter.ErrTimeout)
	assert.GreaterOrEqual(t, clk.Since(start), 20*time.Minute)
}

func TestFleetCreateErrors(t *testing.T) {
	t.Run("already exists", func(t *testing.T) {
		fc, api, _ := newFleetTest(t)
		seedFleet(api, "ASG-2", 1)

		err := fc.Create(context.Background(), "ASG-2", "LT-1", testFleetConfig(1))
		assert.ErrorIs(t, err, ErrAlreadyExists)

		var partial *PartialCreateError
		assert.False(t, errors.As(err, &partial), "nothing was created")
	})

	t.Run("limit exceeded", func(t *testing.T) {
		fc, api, _ := newFleetTest(t)
		api.FailNext(fleetapitest.OpCreateFleet, fleetapi.NewAPIError(fleetapi.CodeLimitExceeded, "too many fleets"))

		err := fc.Create(context.Background(), "ASG-2", "LT-1", testFleetConfig(1))
		assert.ErrorIs(t, err, ErrLimitExceeded)
	})

	t.Run("invalid capacity", func(t *testing.T) {
		fc, api, _ := newFleetTest(t)
		cfg := testFleetConfig(1)
		cfg.MinCapacity = 3

		err := fc.Create(context.Background(), "ASG-2", "LT-1", cfg)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Empty(t, api.CallsFor(fleetapitest.OpCreateFleet))
	})

	t.Run("policy attach fails after create", func(t *testing.T) {
		fc, api, _ := newFleetTest(t)
		api.FailNext(fleetapitest.OpPutScalingPolicy, fleetapi.NewAPIError(fleetapi.CodeLimitExceeded, "too many policies"))
		cfg := testFleetConfig(1)
		cfg.Policies = []types.ScalingPolicy{{Name: "scale-out"}}

		err := fc.Create(context.Background(), "ASG-2", "LT-1", cfg)
		var partial *PartialCreateError
		require.True(t, errors.As(err, &partial))
		assert.ErrorIs(t, err, ErrLimitExceeded)

		_, exists := api.Fleet("ASG-2")
		assert.True(t, exists)
	})
}

func TestFleetCreateLostResponse(t *testing.T) {
	unavailable := fleetapi.NewAPIError(fleetapi.CodeServiceUnavailable, "try again")

	t.Run("applied create is confirmed", func(t *testing.T) {
		fc, api, _ := newFleetTest(t)
		api.LoseNext(fleetapitest.OpCreateFleet, unavailable)

		err := fc.Create(context.Background(), "ASG-2", "LT-1", testFleetConfig(1))
		require.NoError(t, err)
		assert.Len(t, api.CallsFor(fleetapitest.OpCreateFleet), 1, "creates are never repeated")

		desc, ok := api.Fleet("ASG-2")
		require.True(t, ok)
		assert.Equal(t, 1, desc.DesiredCapacity)
	})

	t.Run("create that never landed fails", func(t *testing.T) {
		fc, api, _ := newFleetTest(t)
		api.FailNext(fleetapitest.OpCreateFleet, unavailable)

		err := fc.Create(context.Background(), "ASG-2", "LT-1", testFleetConfig(1))
		assert.ErrorIs(t, err, ErrTransient)

		var partial *PartialCreateError
		assert.False(t, errors.As(err, &partial))
		assert.Empty(t, api.FleetNames())
	})

	t.Run("unconfirmed create is reported partial", func(t *testing.T) {
		fc, api, _ := newFleetTest(t)
		api.LoseNext(fleetapitest.OpCreateFleet, unavailable)
		api.FailNext(fleetapitest.OpDescribeFleets, fleetapi.NewAPIError(fleetapi.CodeServiceLinkedRoleFailure, "role missing"))

		err := fc.Create(context.Background(), "ASG-2", "LT-1", testFleetConfig(1))
		var partial *PartialCreateError
		require.True(t, errors.As(err, &partial))
		assert.Equal(t, "ASG-2", partial.Name)
		assert.ErrorIs(t, err, ErrTransient)
	})

	t.Run("cancelled during create", func(t *testing.T) {
		fc, api, _ := newFleetTest(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := fc.Create(ctx, "ASG-2", "LT-1", testFleetConfig(1))
		var partial *PartialCreateError
		require.True(t, errors.As(err, &partial), "a fleet that exists is always reported")
		assert.ErrorIs(t, err, context.Canceled)

		_, ok := api.Fleet("ASG-2")
		assert.True(t, ok)
	})
}

func TestFleetRead(t *testing.T) {
	fc, api, _ := newFleetTest(t)
	seedFleet(api, "ASG-1", 2)

	f, err := fc.Read(context.Background(), "ASG-1")
	require.NoError(t, err)
	assert.Equal(t, "ASG-1", f.Name)
	assert.Equal(t, 2, f.DesiredCapacity)
	assert.Equal(t, "LT-1", f.LaunchSpec.Name)
	assert.True(t, f.Ready())

	_, err = fc.Read(context.Background(), "ASG-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFleetReadRetriesTransient(t *testing.T) {
	fc, api, clk := newFleetTest(t)
	seedFleet(api, "ASG-1", 1)
	api.FailNext(fleetapitest.OpDescribeFleets,
		fleetapi.NewAPIError(fleetapi.CodeThrottling, "slow down"),
		errors.New("connection reset"),
	)
	start := clk.Now()

	f, err := fc.Read(context.Background(), "ASG-1")
	require.NoError(t, err)
	assert.Equal(t, "ASG-1", f.Name)
	assert.Len(t, api.CallsFor(fleetapitest.OpDescribeFleets), 3)
	assert.Greater(t, clk.Since(start), time.Duration(0))
}

func TestFleetReadPermanentErrorNotRetried(t *testing.T) {
	fc, api, _ := newFleetTest(t)
	api.FailNext(fleetapitest.OpDescribeFleets, fleetapi.NewAPIError(fleetapi.CodeValidationError, "bad name"))

	_, err := fc.Read(context.Background(), "ASG-1")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, api.CallsFor(fleetapitest.OpDescribeFleets), 1)
}

func TestFleetList(t *testing.T) {
	fc, api, _ := newFleetTest(t)
	api.PageSize = 2
	for _, name := range []string{"ASG-a", "ASG-b", "ASG-c"} {
		seedFleet(api, name, 1)
	}

	fleets, err := fc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, fleets, 3)
	assert.Equal(t, "ASG-c", fleets[2].Name)
}

func TestFleetUpdateActivityInProgress(t *testing.T) {
	fc, api, _ := newFleetTest(t)
	seedFleet(api, "ASG-1", 2)
	api.FailNext(fleetapitest.OpUpdateFleet, fleetapi.NewAPIError(fleetapi.CodeScalingActivityInProgress, "busy"))

	desired := 3
	err := fc.Update(context.Background(), "ASG-1", FleetUpdate{DesiredCapacity: &desired})
	assert.ErrorIs(t, err, ErrActivityInProgress)
	assert.Len(t, api.CallsFor(fleetapitest.OpUpdateFleet), 1, "update is never retried on its own")

	require.NoError(t, fc.Update(context.Background(), "ASG-1", FleetUpdate{DesiredCapacity: &desired}))
	desc, _ := api.Fleet("ASG-1")
	assert.Equal(t, 3, desc.DesiredCapacity)
}

func TestFleetDestroy(t *testing.T) {
	fc, api, _ := newFleetTest(t)
	seedFleet(api, "ASG-1", 2)

	require.NoError(t, fc.Destroy(context.Background(), "ASG-1"))

	_, exists := api.Fleet("ASG-1")
	assert.False(t, exists)
	assert.Len(t, api.CallsFor(fleetapitest.OpUpdateFleet), 1)
	assert.Len(t, api.CallsFor(fleetapitest.OpTerminateMember), 2)
	assert.Len(t, api.CallsFor(fleetapitest.OpDeleteFleet), 1)

	// min capacity goes to zero before any member is terminated
	calls := api.Calls()
	var order []string
	for _, c := range calls {
		if c.Op != fleetapitest.OpDescribeFleets {
			order = append(order, c.Op)
		}
	}
	assert.Equal(t, []string{
		fleetapitest.OpUpdateFleet,
		fleetapitest.OpTerminateMember,
		fleetapitest.OpTerminateMember,
		fleetapitest.OpDeleteFleet,
	}, order)
}

func TestFleetDestroyRetriesActivityInProgress(t *testing.T) {
	fc, api, _ := newFleetTest(t)
	seedFleet(api, "ASG-1", 1)
	busy := fleetapi.NewAPIError(fleetapi.CodeScalingActivityInProgress, "busy")
	api.FailNext(fleetapitest.OpUpdateFleet, busy)
	api.FailNext(fleetapitest.OpDeleteFleet, busy, busy)

	require.NoError(t, fc.Destroy(context.Background(), "ASG-1"))

	assert.Len(t, api.CallsFor(fleetapitest.OpUpdateFleet), 2)
	assert.Len(t, api.CallsFor(fleetapitest.OpDeleteFleet), 3)
	_, exists := api.Fleet("ASG-1")
	assert.False(t, exists)
}

func TestFleetDestroyDeleteRetryIsBounded(t *testing.T) {
	api := fleetapitest.New()
	api.SeedLaunchSpec("LT-1", fleetapi.LaunchSpecData{ImageId: "img-1"})
	seedFleet(api, "ASG-1", 0)
	clk := testingclock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	opts := DefaultFleetOptions()
	opts.DeleteRetryTimeout = 2 * time.Minute
	fc := NewFleetClient(api, clk, opts)

	busy := fleetapi.NewAPIError(fleetapi.CodeScalingActivityInProgress, "busy")
	for i := 0; i < 10; i++ {
		api.FailNext(fleetapitest.OpDeleteFleet, busy)
	}

	err := fc.Destroy(context.Background(), "ASG-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, waiter.ErrTimeout)
	assert.Len(t, api.CallsFor(fleetapitest.OpDeleteFleet), 5)
}

func TestFleetDestroyDefersBusyMembers(t *testing.T) {
	fc, api, _ := newFleetTest(t)
	seedFleet(api, "ASG-1", 2)
	api.FailNext(fleetapitest.OpTerminateMember, fleetapi.NewAPIError(fleetapi.CodeScalingActivityInProgress, "busy"))

	require.NoError(t, fc.Destroy(context.Background(), "ASG-1"))
	assert.Len(t, api.CallsFor(fleetapitest.OpTerminateMember), 3)
}

func TestFleetDestroyMissing(t *testing.T) {
	fc, api, _ := newFleetTest(t)

	require.NoError(t, fc.Destroy(context.Background(), "ASG-missing"))
	assert.Empty(t, api.CallsFor(fleetapitest.OpDeleteFleet))
}
