package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/greenfleet/pkg/events"
	"github.com/cuemby/greenfleet/pkg/fleetapi"
	"github.com/cuemby/greenfleet/pkg/fleetapi/fleetapitest"
	"github.com/cuemby/greenfleet/pkg/lock"
	"github.com/cuemby/greenfleet/pkg/metrics"
	"github.com/cuemby/greenfleet/pkg/paramstore"
	"github.com/cuemby/greenfleet/pkg/resource"
	"github.com/cuemby/greenfleet/pkg/target"
	"github.com/cuemby/greenfleet/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const (
	greenFleet = "ASG-web-dev-abcd1234"
	greenSpec  = "LT-web-dev-abcd1234"
)

// recorder collects destroy calls in the order they were made
type recorder struct {
	destroyed []LedgerEntry
}

type recordingFleets struct {
	FleetManager
	rec      *recorder
	onCreate func()
}

func (f *recordingFleets) Create(ctx context.Context, name, launchSpecName string, cfg types.FleetConfig) error {
	err := f.FleetManager.Create(ctx, name, launchSpecName, cfg)
	if f.onCreate != nil {
		f.onCreate()
	}
	return err
}

func (f *recordingFleets) Destroy(ctx context.Context, name string) error {
	f.rec.destroyed = append(f.rec.destroyed, LedgerEntry{Kind: types.ResourceFleet, ID: name})
	return f.FleetManager.Destroy(ctx, name)
}

type recordingSpecs struct {
	LaunchSpecManager
	rec      *recorder
	onCreate func()
}

func (s *recordingSpecs) Create(ctx context.Context, name string, data types.LaunchSpecData) (string, error) {
	created, err := s.LaunchSpecManager.Create(ctx, name, data)
	if s.onCreate != nil {
		s.onCreate()
	}
	return created, err
}

func (s *recordingSpecs) Destroy(ctx context.Context, name string) error {
	s.rec.destroyed = append(s.rec.destroyed, LedgerEntry{Kind: types.ResourceLaunchSpec, ID: name})
	return s.LaunchSpecManager.Destroy(ctx, name)
}

// failingPointer refuses to move the current fleet pointer
type failingPointer struct {
	TargetState
}

func (failingPointer) SetCurrentFleet(context.Context, string) error {
	return errors.New("parameter store unavailable")
}

type deployTest struct {
	api    *fleetapitest.Fake
	clk    *testingclock.FakeClock
	store  paramstore.Store
	params *target.Params
	fleets *recordingFleets
	specs  *recordingSpecs
	rec    *recorder
	reg    Registry
}

func newDeployTest(t *testing.T) *deployTest {
	t.Helper()

	api := fleetapitest.New()
	api.SeedLaunchSpec("LT-1", fleetapi.LaunchSpecData{ImageId: "img-1", InstanceType: "t3.small"})
	clk := testingclock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	store, err := paramstore.NewBoltStore(filepath.Join(t.TempDir(), "greenfleet.db"))
	require.NoError(t, err)
	params := target.NewParams(store, target.Scope{Namespace: "gf", Environment: "dev", Target: "web"})

	rec := &recorder{}
	fleets := &recordingFleets{FleetManager: resource.NewFleetClient(api, clk, resource.DefaultFleetOptions()), rec: rec}
	specs := &recordingSpecs{LaunchSpecManager: resource.NewLaunchSpecClient(api, clk, resource.DefaultRetryPolicy), rec: rec}

	return &deployTest{
		api:    api,
		clk:    clk,
		store:  store,
		params: params,
		fleets: fleets,
		specs:  specs,
		rec:    rec,
		reg: Registry{
			Fleets:      fleets,
			LaunchSpecs: specs,
			Lock:        lock.New(store, params.LockPath(), lock.WithOwner("test"), lock.WithClock(clk)),
			Target:      params,
			Clock:       clk,
		},
	}
}

// withAPI points both resource clients at api
func (dt *deployTest) withAPI(api fleetapi.API) {
	dt.fleets.FleetManager = resource.NewFleetClient(api, dt.clk, resource.DefaultFleetOptions())
	dt.specs.LaunchSpecManager = resource.NewLaunchSpecClient(api, dt.clk, resource.DefaultRetryPolicy)
}

// abandonedCreate applies one create and then fails it the way an HTTP
// client does when its context is cancelled with the request in flight
type abandonedCreate struct {
	*fleetapitest.Fake
	op     string
	cancel context.CancelFunc
}

func (a *abandonedCreate) CreateFleet(ctx context.Context, in *fleetapi.CreateFleetInput) error {
	if err := a.Fake.CreateFleet(ctx, in); err != nil || a.op != fleetapitest.OpCreateFleet {
		return err
	}
	a.cancel()
	return fmt.Errorf("CreateFleet: %w", context.Canceled)
}

func (a *abandonedCreate) CreateLaunchSpec(ctx context.Context, in *fleetapi.CreateLaunchSpecInput) (*fleetapi.CreateLaunchSpecOutput, error) {
	out, err := a.Fake.CreateLaunchSpec(ctx, in)
	if err != nil || a.op != fleetapitest.OpCreateLaunchSpec {
		return out, err
	}
	a.cancel()
	return nil, fmt.Errorf("CreateLaunchSpec: %w", context.Canceled)
}

func (dt *deployTest) seedBlue(t *testing.T, desired int) {
	t.Helper()
	dt.api.SeedFleet(fleetapi.FleetDescription{
		FleetName:         "ASG-1",
		LaunchSpec:        &fleetapi.LaunchSpecSpecification{LaunchSpecName: "LT-1"},
		MinSize:           1,
		MaxSize:           4,
		DesiredCapacity:   desired,
		VPCZoneIdentifier: "subnet-a",
	})
	require.NoError(t, dt.params.SetCurrentFleet(context.Background(), "ASG-1"))
}

func (dt *deployTest) recordImage(t *testing.T, id string) {
	t.Helper()
	_, err := dt.params.RecordImage(context.Background(), id)
	require.NoError(t, err)
}

func (dt *deployTest) deployer() *Deployer {
	return NewDeployer(dt.reg, WithNameSuffix(func() string { return "abcd1234" }))
}

func (dt *deployTest) pointer(t *testing.T) string {
	t.Helper()
	name, _, err := dt.params.CurrentFleet(context.Background())
	require.NoError(t, err)
	return name
}

func (dt *deployTest) assertUnlocked(t *testing.T) {
	t.Helper()
	_, err := dt.store.Get(context.Background(), dt.params.LockPath())
	assert.ErrorIs(t, err, paramstore.ErrNotFound, "lock must be released")
}

func testRequest() Request {
	return Request{
		LaunchSpec: types.LaunchSpecData{InstanceType: "t3.small", KeyPair: "deploy"},
		Fleet: types.FleetConfig{
			MinCapacity:     1,
			MaxCapacity:     2,
			DesiredCapacity: 1,
			SubnetIDs:       []string{"subnet-a", "subnet-b"},
			HealthCheck:     types.HealthCheck{Type: "ELB", GracePeriod: 300 * time.Second},
		},
	}
}

func TestDeployReplacesFleet(t *testing.T) {
	dt := newDeployTest(t)
	dt.seedBlue(t, 2)
	dt.recordImage(t, "img-999")
	succeeded := testutil.ToFloat64(metrics.DeploysTotal.WithLabelValues(string(OutcomeSucceeded)))

	res, err := dt.deployer().Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, StateDone, res.State)
	assert.False(t, res.FirstDeploy)
	assert.Equal(t, "img-999", res.ImageID)
	assert.Equal(t, "ASG-1", res.BlueFleet)
	assert.Equal(t, "LT-1", res.BlueLaunchSpec)
	assert.Equal(t, greenFleet, res.GreenFleet)
	assert.Equal(t, greenSpec, res.GreenLaunchSpec)
	assert.Empty(t, res.Orphaned)
	assert.Empty(t, res.RolledBack)
	assert.Positive(t, res.Duration)

	assert.Equal(t, greenFleet, dt.pointer(t))

	green, ok := dt.api.Fleet(greenFleet)
	require.True(t, ok)
	assert.Equal(t, 2, green.DesiredCapacity)
	assert.Equal(t, 1, green.MinSize)
	assert.Equal(t, 4, green.MaxSize)
	assert.Equal(t, greenSpec, green.LaunchSpec.LaunchSpecName)

	spec, ok := dt.api.LaunchSpec(greenSpec)
	require.True(t, ok)
	assert.Equal(t, "img-999", spec.ImageId)

	_, ok = dt.api.Fleet("ASG-1")
	assert.False(t, ok, "blue fleet must be deleted")
	_, ok = dt.api.LaunchSpec("LT-1")
	assert.False(t, ok, "blue launch spec must be deleted")

	assert.Equal(t, []LedgerEntry{
		{Kind: types.ResourceFleet, ID: "ASG-1"},
		{Kind: types.ResourceLaunchSpec, ID: "LT-1"},
	}, dt.rec.destroyed)

	dt.assertUnlocked(t)
	assert.Equal(t, succeeded+1, testutil.ToFloat64(metrics.DeploysTotal.WithLabelValues(string(OutcomeSucceeded))))
}

func TestDeployFirstDeploy(t *testing.T) {
	dt := newDeployTest(t)
	dt.recordImage(t, "img-1")

	res, err := dt.deployer().Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.True(t, res.FirstDeploy)
	assert.Empty(t, res.BlueFleet)
	assert.Equal(t, greenFleet, dt.pointer(t))

	green, ok := dt.api.Fleet(greenFleet)
	require.True(t, ok)
	assert.Equal(t, 1, green.DesiredCapacity)
	assert.Equal(t, "ELB", green.HealthCheckType)

	assert.Empty(t, dt.api.CallsFor(fleetapitest.OpDeleteFleet))
	assert.Empty(t, dt.api.CallsFor(fleetapitest.OpTerminateMember))
	assert.Empty(t, dt.rec.destroyed)
	dt.assertUnlocked(t)
}

func TestDeployImageOverride(t *testing.T) {
	dt := newDeployTest(t)
	dt.recordImage(t, "img-latest")

	req := testRequest()
	req.ImageID = "img-pinned"
	res, err := dt.deployer().Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "img-pinned", res.ImageID)
	spec, ok := dt.api.LaunchSpec(greenSpec)
	require.True(t, ok)
	assert.Equal(t, "img-pinned", spec.ImageId)
}

func TestDeployAbortsWhenLockHeld(t *testing.T) {
	dt := newDeployTest(t)
	dt.seedBlue(t, 2)
	dt.recordImage(t, "img-999")

	other := lock.New(dt.store, dt.params.LockPath(), lock.WithOwner("other"))
	require.NoError(t, other.Acquire(context.Background()))

	res, err := dt.deployer().Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrLockAlreadyHeld)
	assert.Equal(t, OutcomeAborted, res.Outcome)

	assert.Empty(t, dt.api.Calls(), "no remote call may happen without the lock")
	assert.Equal(t, "ASG-1", dt.pointer(t))

	info, err := other.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "other", info.Owner, "the holder's lock must survive")
}

func TestDeployNoImage(t *testing.T) {
	dt := newDeployTest(t)
	dt.seedBlue(t, 2)

	res, err := dt.deployer().Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoImage)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StateCreateGreen, stepErr.State)
	assert.Empty(t, stepErr.RolledBack)

	assert.Empty(t, dt.api.CallsFor(fleetapitest.OpCreateLaunchSpec))
	assert.Empty(t, dt.api.CallsFor(fleetapitest.OpCreateFleet))
	assert.Equal(t, "ASG-1", dt.pointer(t))
	dt.assertUnlocked(t)
}

func TestDeployDiscoverFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, dt *deployTest)
		wantErr error
	}{
		{
			name: "pointer names a missing fleet",
			setup: func(t *testing.T, dt *deployTest) {
				require.NoError(t, dt.params.SetCurrentFleet(context.Background(), "ASG-gone"))
			},
			wantErr: ErrInconsistentPointer,
		},
		{
			name: "current fleet scaled to zero",
			setup: func(t *testing.T, dt *deployTest) {
				dt.seedBlue(t, 0)
			},
			wantErr: ErrEmptyFleet,
		},
		{
			name: "describe rejected",
			setup: func(t *testing.T, dt *deployTest) {
				dt.seedBlue(t, 2)
				dt.api.FailNext(fleetapitest.OpDescribeFleets,
					fleetapi.NewAPIError(fleetapi.CodeServiceLinkedRoleFailure, "denied"))
			},
			wantErr: resource.ErrResource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt := newDeployTest(t)
			dt.recordImage(t, "img-999")
			tt.setup(t, dt)

			res, err := dt.deployer().Run(context.Background(), testRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, OutcomeFailed, res.Outcome)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, StateDiscoverBlue, stepErr.State)

			assert.Empty(t, dt.api.CallsFor(fleetapitest.OpCreateLaunchSpec))
			assert.Empty(t, dt.rec.destroyed)
			dt.assertUnlocked(t)
		})
	}
}

func TestDeployRollsBackEverythingCreated(t *testing.T) {
	dt := newDeployTest(t)
	dt.seedBlue(t, 2)
	dt.recordImage(t, "img-999")
	dt.api.FailNext(fleetapitest.OpPutScalingPolicy, fleetapi.NewAPIError(fleetapi.CodeValidationError, "bad policy"))

	req := testRequest()
	req.Fleet.Policies = []types.ScalingPolicy{{Name: "scale-out", AdjustmentType: "ChangeInCapacity", ScalingAdjustment: 1}}

	res, err := dt.deployer().Run(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, resource.ErrValidation)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, StateFailed, res.State)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StateCreateGreen, stepErr.State)
	assert.Empty(t, stepErr.RollbackFailed)

	// fleets before launch specs, each exactly once
	want := []LedgerEntry{
		{Kind: types.ResourceFleet, ID: greenFleet},
		{Kind: types.ResourceLaunchSpec, ID: greenSpec},
	}
	assert.Equal(t, want, dt.rec.destroyed)
	assert.Equal(t, want, res.RolledBack)

	_, ok := dt.api.Fleet(greenFleet)
	assert.False(t, ok)
	_, ok = dt.api.LaunchSpec(greenSpec)
	assert.False(t, ok)

	// blue is untouched and still current
	blue, ok := dt.api.Fleet("ASG-1")
	require.True(t, ok)
	assert.Equal(t, 2, blue.DesiredCapacity)
	assert.Equal(t, "ASG-1", dt.pointer(t))
	dt.assertUnlocked(t)
}

func TestDeployRollbackContinuesPastFailures(t *testing.T) {
	dt := newDeployTest(t)
	dt.recordImage(t, "img-999")
	dt.api.FailNext(fleetapitest.OpPutScalingPolicy, fleetapi.NewAPIError(fleetapi.CodeValidationError, "bad policy"))
	dt.api.FailNext(fleetapitest.OpDeleteLaunchSpec, fleetapi.NewAPIError(fleetapi.CodeServiceLinkedRoleFailure, "denied"))
	failed := testutil.ToFloat64(metrics.RollbackResourcesTotal.WithLabelValues(string(types.ResourceLaunchSpec), "failed"))

	req := testRequest()
	req.Fleet.Policies = []types.ScalingPolicy{{Name: "scale-out", AdjustmentType: "ChangeInCapacity", ScalingAdjustment: 1}}

	res, err := dt.deployer().Run(context.Background(), req)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, []LedgerEntry{{Kind: types.ResourceFleet, ID: greenFleet}}, stepErr.RolledBack)
	assert.Equal(t, []LedgerEntry{{Kind: types.ResourceLaunchSpec, ID: greenSpec}}, stepErr.RollbackFailed)
	assert.Contains(t, err.Error(), "rollback failed: launch_spec "+greenSpec)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	assert.Equal(t, failed+1, testutil.ToFloat64(metrics.RollbackResourcesTotal.WithLabelValues(string(types.ResourceLaunchSpec), "failed")))
	dt.assertUnlocked(t)
}

func TestDeployCancelled(t *testing.T) {
	tests := []struct {
		name      string
		cancelOn  func(dt *deployTest, cancel context.CancelFunc)
		state     State
		destroyed []LedgerEntry
	}{
		{
			name: "after launch spec",
			cancelOn: func(dt *deployTest, cancel context.CancelFunc) {
				dt.specs.onCreate = cancel
			},
			state:     StateCreateGreen,
			destroyed: []LedgerEntry{{Kind: types.ResourceLaunchSpec, ID: greenSpec}},
		},
		{
			name: "after green is ready",
			cancelOn: func(dt *deployTest, cancel context.CancelFunc) {
				dt.fleets.onCreate = cancel
			},
			state: StateAwaitGreenReady,
			destroyed: []LedgerEntry{
				{Kind: types.ResourceFleet, ID: greenFleet},
				{Kind: types.ResourceLaunchSpec, ID: greenSpec},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt := newDeployTest(t)
			dt.seedBlue(t, 2)
			dt.recordImage(t, "img-999")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tt.cancelOn(dt, cancel)

			res, err := dt.deployer().Run(ctx, testRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCancelled)
			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, OutcomeCancelled, res.Outcome)
			assert.Equal(t, StateCancelled, res.State)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.state, stepErr.State)

			assert.Equal(t, tt.destroyed, dt.rec.destroyed)
			assert.Equal(t, tt.destroyed, res.RolledBack)

			_, ok := dt.api.Fleet("ASG-1")
			assert.True(t, ok, "blue must survive a cancelled deploy")
			assert.Equal(t, "ASG-1", dt.pointer(t))
			dt.assertUnlocked(t)
		})
	}
}

func TestDeployCancelledDuringCreate(t *testing.T) {
	tests := []struct {
		name      string
		op        string
		destroyed []LedgerEntry
	}{
		{
			name:      "launch spec",
			op:        fleetapitest.OpCreateLaunchSpec,
			destroyed: []LedgerEntry{{Kind: types.ResourceLaunchSpec, ID: greenSpec}},
		},
		{
			name: "fleet",
			op:   fleetapitest.OpCreateFleet,
			destroyed: []LedgerEntry{
				{Kind: types.ResourceFleet, ID: greenFleet},
				{Kind: types.ResourceLaunchSpec, ID: greenSpec},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt := newDeployTest(t)
			dt.seedBlue(t, 2)
			dt.recordImage(t, "img-999")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			dt.withAPI(&abandonedCreate{Fake: dt.api, op: tt.op, cancel: cancel})

			res, err := dt.deployer().Run(ctx, testRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCancelled)
			assert.Equal(t, OutcomeCancelled, res.Outcome)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, StateCreateGreen, stepErr.State)
			assert.Empty(t, stepErr.RollbackFailed)

			assert.Equal(t, tt.destroyed, dt.rec.destroyed)
			assert.Equal(t, tt.destroyed, res.RolledBack)
			assert.Equal(t, []string{"ASG-1"}, dt.api.FleetNames(), "green fleet must not outlive the run")
			assert.Equal(t, []string{"LT-1"}, dt.api.LaunchSpecNames(), "green launch spec must not outlive the run")
			assert.Equal(t, "ASG-1", dt.pointer(t))
			dt.assertUnlocked(t)
		})
	}
}

func TestDeployRollsBackUnconfirmedLaunchSpec(t *testing.T) {
	dt := newDeployTest(t)
	dt.seedBlue(t, 1)
	dt.recordImage(t, "img-999")
	dt.api.LoseNext(fleetapitest.OpCreateLaunchSpec, fleetapi.NewAPIError(fleetapi.CodeServiceUnavailable, "try again"))
	dt.api.FailNext(fleetapitest.OpDescribeLaunchSpecVersions,
		fleetapi.NewAPIError(fleetapi.CodeServiceLinkedRoleFailure, "role missing"))

	res, err := dt.deployer().Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	var partial *resource.PartialCreateError
	assert.ErrorAs(t, err, &partial)
	assert.Equal(t, []LedgerEntry{{Kind: types.ResourceLaunchSpec, ID: greenSpec}}, dt.rec.destroyed)
	assert.Equal(t, []string{"LT-1"}, dt.api.LaunchSpecNames())
	assert.Empty(t, dt.api.CallsFor(fleetapitest.OpCreateFleet))
}

func TestDeployBlueLaunchSpecInUse(t *testing.T) {
	dt := newDeployTest(t)
	dt.seedBlue(t, 1)
	dt.recordImage(t, "img-999")
	dt.api.SeedFleet(fleetapi.FleetDescription{
		FleetName:       "ASG-other",
		LaunchSpec:      &fleetapi.LaunchSpecSpecification{LaunchSpecName: "LT-1"},
		MinSize:         1,
		MaxSize:         1,
		DesiredCapacity: 1,
	})

	res, err := dt.deployer().Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, []LedgerEntry{{Kind: types.ResourceLaunchSpec, ID: "LT-1"}}, res.Orphaned)
	assert.Equal(t, greenFleet, dt.pointer(t))

	_, ok := dt.api.LaunchSpec("LT-1")
	assert.True(t, ok)
	_, ok = dt.api.Fleet("ASG-1")
	assert.False(t, ok)
}

func TestDeployBlueDestroyFailureLeavesOrphans(t *testing.T) {
	dt := newDeployTest(t)
	dt.seedBlue(t, 1)
	dt.recordImage(t, "img-999")
	dt.api.FailNext(fleetapitest.OpDeleteFleet, fleetapi.NewAPIError(fleetapi.CodeServiceLinkedRoleFailure, "denied"))

	res, err := dt.deployer().Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, []LedgerEntry{
		{Kind: types.ResourceFleet, ID: "ASG-1"},
		{Kind: types.ResourceLaunchSpec, ID: "LT-1"},
	}, res.Orphaned)
	assert.Empty(t, res.RolledBack, "green is live and must never be rolled back")

	_, ok := dt.api.Fleet(greenFleet)
	assert.True(t, ok)
	assert.Equal(t, greenFleet, dt.pointer(t))
}

func TestDeployPointerWriteFailure(t *testing.T) {
	dt := newDeployTest(t)
	dt.seedBlue(t, 1)
	dt.recordImage(t, "img-999")
	dt.reg.Target = failingPointer{TargetState: dt.params}

	res, err := dt.deployer().Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StateDone, stepErr.State)

	// green already serves; nothing is rolled back
	_, ok := dt.api.Fleet(greenFleet)
	assert.True(t, ok)
	assert.Equal(t, greenFleet, res.GreenFleet)
	assert.Empty(t, res.RolledBack)
	dt.assertUnlocked(t)
}

func TestStepErrorMessage(t *testing.T) {
	err := &StepError{
		State:          StateAwaitGreenReady,
		Err:            errors.New("timed out"),
		RolledBack:     []LedgerEntry{{Kind: types.ResourceFleet, ID: "ASG-2"}},
		RollbackFailed: []LedgerEntry{{Kind: types.ResourceLaunchSpec, ID: "LT-2"}},
	}
	assert.Equal(t,
		"deploy failed at AWAIT_GREEN_READY: timed out (rolled back: fleet ASG-2) (rollback failed: launch_spec LT-2)",
		err.Error())
}

func TestDeployPublishesProgress(t *testing.T) {
	dt := newDeployTest(t)
	dt.seedBlue(t, 1)
	dt.recordImage(t, "img-999")

	broker := events.NewBroker()
	sub := broker.Subscribe()
	broker.Start()

	d := NewDeployer(dt.reg, WithNameSuffix(func() string { return "abcd1234" }), WithEvents(broker))
	_, err := d.Run(context.Background(), testRequest())
	require.NoError(t, err)
	broker.Stop()
	broker.Unsubscribe(sub)

	var states, created, destroyed []string
	var finished *events.Event
	for ev := range sub {
		switch ev.Type {
		case events.EventStateChanged:
			states = append(states, ev.Metadata["to"])
		case events.EventResourceCreated:
			created = append(created, ev.Metadata["id"])
		case events.EventResourceDestroyed:
			destroyed = append(destroyed, ev.Metadata["id"])
		case events.EventDeployFinished:
			finished = ev
		}
	}

	assert.Equal(t, []string{
		string(StateInit), string(StateDiscoverBlue), string(StateCreateGreen),
		string(StateAwaitGreenReady), string(StateTerminateBlue), string(StateDone),
	}, states)
	assert.Equal(t, []string{greenSpec, greenFleet}, created)
	assert.Equal(t, []string{"ASG-1", "LT-1"}, destroyed)
	require.NotNil(t, finished)
	assert.Equal(t, string(OutcomeSucceeded), finished.Message)
}
