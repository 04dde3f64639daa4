package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/greenfleet/pkg/events"
	"github.com/cuemby/greenfleet/pkg/lock"
	"github.com/cuemby/greenfleet/pkg/log"
	"github.com/cuemby/greenfleet/pkg/metrics"
	"github.com/cuemby/greenfleet/pkg/resource"
	"github.com/cuemby/greenfleet/pkg/types"
	"github.com/cuemby/greenfleet/pkg/waiter"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

var (
	// ErrNoImage means the target has never been built
	ErrNoImage = errors.New("no image recorded for target")

	// ErrInconsistentPointer means the current fleet pointer names a fleet
	// that does not exist
	ErrInconsistentPointer = errors.New("current fleet pointer names a missing fleet")

	// ErrEmptyFleet means the current fleet has no desired capacity to replace
	ErrEmptyFleet = errors.New("current fleet has desired capacity 0")

	// ErrCancelled marks a run stopped by the operator
	ErrCancelled = errors.New("deploy cancelled")
)

// State is a step of the blue/green state machine
type State string

const (
	StateInit            State = "INIT"
	StateDiscoverBlue    State = "DISCOVER_BLUE"
	StateCreateGreen     State = "CREATE_GREEN"
	StateAwaitGreenReady State = "AWAIT_GREEN_READY"
	StateTerminateBlue   State = "TERMINATE_BLUE"
	StateDone            State = "DONE"
	StateRollback        State = "ROLLBACK"
	StateFailed          State = "FAILED"
	StateCancelled       State = "CANCELLED"
)

// Outcome is how a run ended
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeAborted means the lock was held by another run; nothing was touched
	OutcomeAborted Outcome = "aborted"
)

// StepError reports the step a run failed at and what was compensated
type StepError struct {
	State          State
	Err            error
	RolledBack     []LedgerEntry
	RollbackFailed []LedgerEntry
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("deploy failed at %s: %v", e.State, e.Err)
	if len(e.RolledBack) > 0 {
		msg += fmt.Sprintf(" (rolled back: %s)", formatEntries(e.RolledBack))
	}
	if len(e.RollbackFailed) > 0 {
		msg += fmt.Sprintf(" (rollback failed: %s)", formatEntries(e.RollbackFailed))
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Request describes what to deploy
type Request struct {
	// ImageID overrides the most recent entry of the image ledger
	ImageID string
	// LaunchSpec is the declared sizing and credentials; ImageID is filled in
	LaunchSpec types.LaunchSpecData
	// Fleet is the declared sizing, placement and health-check settings
	Fleet types.FleetConfig
}

// Result summarises a run
type Result struct {
	Outcome         Outcome
	State           State
	FirstDeploy     bool
	ImageID         string
	BlueFleet       string
	BlueLaunchSpec  string
	GreenFleet      string
	GreenLaunchSpec string
	RolledBack      []LedgerEntry
	Orphaned        []LedgerEntry
	Duration        time.Duration
}

// Option configures a Deployer
type Option func(*Deployer)

// WithNameSuffix overrides the random suffix used in generated names
func WithNameSuffix(fn func() string) Option {
	return func(d *Deployer) { d.suffix = fn }
}

// WithEvents publishes progress events to p
func WithEvents(p events.Publisher) Option {
	return func(d *Deployer) {
		if p != nil {
			d.events = p
		}
	}
}

// Deployer runs blue/green fleet replacements
type Deployer struct {
	reg    Registry
	clock  clock.PassiveClock
	suffix func() string
	events events.Publisher
}

// NewDeployer creates a deployer over reg
func NewDeployer(reg Registry, opts ...Option) *Deployer {
	d := &Deployer{
		reg:    reg,
		clock:  reg.Clock,
		suffix: func() string { return uuid.NewString()[:8] },
		events: (*events.Broker)(nil),
	}
	if d.clock == nil {
		d.clock = clock.RealClock{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// run carries the state of one Run call
type run struct {
	d      *Deployer
	ctx    context.Context
	req    Request
	res    *Result
	ledger *Ledger
	logger zerolog.Logger
	blue   *types.Fleet
}

// Run performs one deploy. It holds the target's lock for the whole run and
// releases it on every exit path. Any failure from CREATE_GREEN onwards, and
// operator cancellation, rolls back every resource the run created before
// returning. The returned error is nil only when Outcome is succeeded.
func (d *Deployer) Run(ctx context.Context, req Request) (*Result, error) {
	scope := d.reg.Target.Scope()
	r := &run{
		d:      d,
		ctx:    ctx,
		req:    req,
		res:    &Result{},
		ledger: NewLedger(),
		logger: log.WithTarget(scope.Environment, scope.Target),
	}

	start := d.clock.Now()
	err := r.execute()
	r.res.Duration = d.clock.Since(start)

	metrics.DeploysTotal.WithLabelValues(string(r.res.Outcome)).Inc()
	metrics.DeployDuration.Observe(r.res.Duration.Seconds())

	event := r.logger.Info()
	if err != nil {
		event = r.logger.Error().Err(err)
	}
	event.
		Str("outcome", string(r.res.Outcome)).
		Str("state", string(r.res.State)).
		Str("green_fleet", r.res.GreenFleet).
		Dur("duration", r.res.Duration).
		Msg("Deploy finished")
	d.events.Publish(&events.Event{
		Type:    events.EventDeployFinished,
		Message: string(r.res.Outcome),
		Metadata: map[string]string{
			"state":       string(r.res.State),
			"green_fleet": r.res.GreenFleet,
		},
	})

	return r.res, err
}

func (r *run) execute() error {
	r.enter(StateInit)
	if err := r.d.reg.Lock.Acquire(r.ctx); err != nil {
		switch {
		case errors.Is(err, lock.ErrLockAlreadyHeld):
			r.res.Outcome = OutcomeAborted
			r.logger.Warn().Err(err).Msg("Another deploy holds the lock, aborting")
		case r.ctx.Err() != nil:
			r.res.Outcome = OutcomeCancelled
			err = errors.Join(ErrCancelled, err)
		default:
			r.res.Outcome = OutcomeFailed
		}
		return &StepError{State: StateInit, Err: err}
	}
	defer func() {
		if err := r.d.reg.Lock.Release(context.WithoutCancel(r.ctx)); err != nil {
			r.logger.Error().Err(err).Msg("Failed to release lock")
		}
	}()

	if err := r.discoverBlue(); err != nil {
		return r.fail(StateDiscoverBlue, err)
	}
	if err := r.checkpoint(); err != nil {
		return r.fail(StateDiscoverBlue, err)
	}

	if state, err := r.createGreen(); err != nil {
		return r.fail(state, err)
	}

	r.enter(StateAwaitGreenReady)
	r.logger.Info().Str("green_fleet", r.res.GreenFleet).Msg("Green fleet is ready")
	if err := r.checkpoint(); err != nil {
		return r.fail(StateAwaitGreenReady, err)
	}

	cancelled := false
	if !r.res.FirstDeploy {
		cancelled = r.terminateBlue()
	}

	return r.done(cancelled)
}

func (r *run) enter(state State) {
	r.logger.Info().
		Str("from", string(r.res.State)).
		Str("to", string(state)).
		Msg("State transition")
	r.d.events.Publish(&events.Event{
		Type:     events.EventStateChanged,
		Message:  fmt.Sprintf("%s -> %s", r.res.State, state),
		Metadata: map[string]string{"from": string(r.res.State), "to": string(state)},
	})
	r.res.State = state
}

// created records a new resource in the ledger
func (r *run) created(kind types.ResourceKind, id string) {
	r.ledger.Append(kind, id)
	r.publishResource(events.EventResourceCreated, kind, id)
}

func (r *run) publishResource(t events.EventType, kind types.ResourceKind, id string) {
	r.d.events.Publish(&events.Event{
		Type:     t,
		Message:  LedgerEntry{Kind: kind, ID: id}.String(),
		Metadata: map[string]string{"kind": string(kind), "id": id},
	})
}

// checkpoint reports operator cancellation between steps
func (r *run) checkpoint() error {
	return r.ctx.Err()
}

func (r *run) discoverBlue() error {
	r.enter(StateDiscoverBlue)

	name, ok, err := r.d.reg.Target.CurrentFleet(r.ctx)
	if err != nil {
		return err
	}
	if !ok {
		r.res.FirstDeploy = true
		r.logger.Info().Msg("No current fleet recorded, first deploy")
		return nil
	}

	blue, err := r.d.reg.Fleets.Read(r.ctx, name)
	if errors.Is(err, resource.ErrNotFound) {
		return fmt.Errorf("fleet %s: %w", name, ErrInconsistentPointer)
	}
	if err != nil {
		return err
	}
	if blue.DesiredCapacity <= 0 {
		return fmt.Errorf("fleet %s: %w", name, ErrEmptyFleet)
	}

	r.blue = blue
	r.res.BlueFleet = blue.Name
	r.res.BlueLaunchSpec = blue.LaunchSpec.Name
	r.logger.Info().
		Str("blue_fleet", blue.Name).
		Str("blue_launch_spec", blue.LaunchSpec.Name).
		Int("min", blue.MinCapacity).
		Int("desired", blue.DesiredCapacity).
		Int("max", blue.MaxCapacity).
		Msg("Current fleet")
	return nil
}

// createGreen returns the state to report a failure at
func (r *run) createGreen() (State, error) {
	r.enter(StateCreateGreen)
	scope := r.d.reg.Target.Scope()

	imageID := r.req.ImageID
	if imageID == "" {
		latest, ok, err := r.d.reg.Target.LatestImage(r.ctx)
		if err != nil {
			return StateCreateGreen, err
		}
		if !ok {
			return StateCreateGreen, fmt.Errorf("%s: build the target before deploying it: %w", scope, ErrNoImage)
		}
		imageID = latest
	}
	r.res.ImageID = imageID

	suffix := r.d.suffix()
	lsName := fmt.Sprintf("LT-%s-%s-%s", scope.Target, scope.Environment, suffix)
	fleetName := fmt.Sprintf("ASG-%s-%s-%s", scope.Target, scope.Environment, suffix)

	data := r.req.LaunchSpec
	data.ImageID = imageID
	created, err := r.d.reg.LaunchSpecs.Create(r.ctx, lsName, data)
	var partial *resource.PartialCreateError
	if errors.As(err, &partial) {
		r.created(partial.Kind, partial.Name)
		r.res.GreenLaunchSpec = partial.Name
		return StateCreateGreen, err
	}
	if err != nil {
		return StateCreateGreen, err
	}
	r.created(types.ResourceLaunchSpec, created)
	r.res.GreenLaunchSpec = created

	if err := r.checkpoint(); err != nil {
		return StateCreateGreen, err
	}

	cfg := r.greenConfig()
	r.logger.Info().
		Str("green_fleet", fleetName).
		Str("image_id", imageID).
		Int("min", cfg.MinCapacity).
		Int("desired", cfg.DesiredCapacity).
		Int("max", cfg.MaxCapacity).
		Msg("Creating green fleet")

	err = r.d.reg.Fleets.Create(r.ctx, fleetName, created, cfg)
	if errors.As(err, &partial) {
		r.created(types.ResourceFleet, partial.Name)
		r.res.GreenFleet = partial.Name
		if waiter.IsTimeout(partial.Err) {
			return StateAwaitGreenReady, err
		}
		return StateCreateGreen, err
	}
	if err != nil {
		return StateCreateGreen, err
	}
	r.created(types.ResourceFleet, fleetName)
	r.res.GreenFleet = fleetName
	return StateCreateGreen, nil
}

// greenConfig sizes the green fleet like the blue one, or at one member on
// a first deploy. Declared placement wins; blue's fills any gaps.
func (r *run) greenConfig() types.FleetConfig {
	cfg := r.req.Fleet
	if r.blue == nil {
		return cfg.WithDesired(1)
	}

	cfg.MinCapacity = r.blue.MinCapacity
	cfg.MaxCapacity = r.blue.MaxCapacity
	if len(cfg.SubnetIDs) == 0 {
		cfg.SubnetIDs = r.blue.SubnetIDs
	}
	if len(cfg.AvailabilityZones) == 0 {
		cfg.AvailabilityZones = r.blue.AvailabilityZones
	}
	if len(cfg.TargetGroupARNs) == 0 {
		cfg.TargetGroupARNs = r.blue.TargetGroupARNs
	}
	if cfg.HealthCheck.Type == "" {
		cfg.HealthCheck = r.blue.HealthCheck
	}
	return cfg.WithDesired(r.blue.DesiredCapacity)
}

// terminateBlue decommissions the previous fleet and its launch spec. The
// green fleet is live by now, so failures only leave orphans behind and
// never roll anything back. It reports whether the operator cancelled.
func (r *run) terminateBlue() bool {
	r.enter(StateTerminateBlue)
	if r.ctx.Err() != nil {
		r.orphan(types.ResourceFleet, r.blue.Name, r.ctx.Err())
		r.orphan(types.ResourceLaunchSpec, r.blue.LaunchSpec.Name, r.ctx.Err())
		return true
	}

	if err := r.d.reg.Fleets.Destroy(r.ctx, r.blue.Name); err != nil {
		r.orphan(types.ResourceFleet, r.blue.Name, err)
		r.orphan(types.ResourceLaunchSpec, r.blue.LaunchSpec.Name, err)
		return r.ctx.Err() != nil
	}
	r.publishResource(events.EventResourceDestroyed, types.ResourceFleet, r.blue.Name)

	if r.blue.LaunchSpec.Name == "" {
		return r.ctx.Err() != nil
	}
	if r.ctx.Err() != nil {
		r.orphan(types.ResourceLaunchSpec, r.blue.LaunchSpec.Name, r.ctx.Err())
		return true
	}
	if err := r.d.reg.LaunchSpecs.Destroy(r.ctx, r.blue.LaunchSpec.Name); err != nil {
		if errors.Is(err, resource.ErrInUse) {
			r.logger.Warn().Str("launch_spec", r.blue.LaunchSpec.Name).Msg("Launch spec still in use")
		}
		r.orphan(types.ResourceLaunchSpec, r.blue.LaunchSpec.Name, err)
		return r.ctx.Err() != nil
	}
	r.publishResource(events.EventResourceDestroyed, types.ResourceLaunchSpec, r.blue.LaunchSpec.Name)
	return r.ctx.Err() != nil
}

func (r *run) orphan(kind types.ResourceKind, id string, err error) {
	if id == "" {
		return
	}
	r.res.Orphaned = append(r.res.Orphaned, LedgerEntry{Kind: kind, ID: id})
	r.publishResource(events.EventResourceOrphaned, kind, id)
	r.logger.Warn().Err(err).Str("kind", string(kind)).Str("id", id).Msg("Resource left orphaned")
}

// done records the green fleet as current. The pointer is written even if
// the operator cancelled during TERMINATE_BLUE, since green is what serves.
func (r *run) done(cancelled bool) error {
	r.enter(StateDone)

	if err := r.d.reg.Target.SetCurrentFleet(context.WithoutCancel(r.ctx), r.res.GreenFleet); err != nil {
		r.res.Outcome = OutcomeFailed
		r.logger.Error().
			Err(err).
			Str("green_fleet", r.res.GreenFleet).
			Msg("Green fleet is live but could not be recorded as current; record it by hand")
		return &StepError{State: StateDone, Err: err}
	}
	r.ledger.Clear()

	if cancelled {
		r.res.Outcome = OutcomeCancelled
		r.res.State = StateCancelled
		return &StepError{State: StateTerminateBlue, Err: errors.Join(ErrCancelled, context.Cause(r.ctx))}
	}

	r.res.Outcome = OutcomeSucceeded
	r.logger.Info().Str("green_fleet", r.res.GreenFleet).Msg("Current fleet updated")
	return nil
}

// fail rolls back the ledger and reports the failed or cancelled outcome
func (r *run) fail(state State, err error) error {
	r.logger.Error().Err(err).Str("state", string(state)).Msg("Deploy step failed")

	cancelled := r.ctx.Err() != nil || errors.Is(err, context.Canceled)
	rolledBack, failed := r.rollback()
	r.res.RolledBack = rolledBack

	stepErr := &StepError{State: state, Err: err, RolledBack: rolledBack, RollbackFailed: failed}
	if cancelled {
		r.res.Outcome = OutcomeCancelled
		r.res.State = StateCancelled
		if !errors.Is(err, ErrCancelled) {
			stepErr.Err = errors.Join(ErrCancelled, err)
		}
		return stepErr
	}

	r.res.Outcome = OutcomeFailed
	r.res.State = StateFailed
	return stepErr
}

// rollback destroys every ledger entry, fleets first, then launch specs.
// Each destroy is best-effort and runs even if the operator cancelled.
func (r *run) rollback() (rolledBack, failed []LedgerEntry) {
	r.enter(StateRollback)
	entries := r.ledger.RollbackOrder()
	if len(entries) == 0 {
		r.logger.Info().Msg("Nothing to roll back")
		return nil, nil
	}

	ctx := context.WithoutCancel(r.ctx)
	for _, e := range entries {
		var err error
		switch e.Kind {
		case types.ResourceFleet:
			err = r.d.reg.Fleets.Destroy(ctx, e.ID)
		case types.ResourceLaunchSpec:
			err = r.d.reg.LaunchSpecs.Destroy(ctx, e.ID)
		}

		if err != nil {
			metrics.RollbackResourcesTotal.WithLabelValues(string(e.Kind), "failed").Inc()
			r.logger.Error().Err(err).Str("kind", string(e.Kind)).Str("id", e.ID).Msg("Rollback destroy failed")
			failed = append(failed, e)
			continue
		}
		metrics.RollbackResourcesTotal.WithLabelValues(string(e.Kind), "destroyed").Inc()
		r.logger.Info().Str("kind", string(e.Kind)).Str("id", e.ID).Msg("Rolled back")
		r.publishResource(events.EventResourceDestroyed, e.Kind, e.ID)
		rolledBack = append(rolledBack, e)
	}

	r.ledger.Clear()
	return rolledBack, failed
}
