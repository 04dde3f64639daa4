package deploy

import (
	"context"

	"github.com/cuemby/greenfleet/pkg/target"
	"github.com/cuemby/greenfleet/pkg/types"
	"k8s.io/utils/clock"
)

// FleetManager is the fleet lifecycle the controller drives. Create must not
// abandon a remote call when ctx is cancelled, and must report a fleet it
// may have left behind as *resource.PartialCreateError.
type FleetManager interface {
	Create(ctx context.Context, name, launchSpecName string, cfg types.FleetConfig) error
	Read(ctx context.Context, name string) (*types.Fleet, error)
	Destroy(ctx context.Context, name string) error
}

// LaunchSpecManager is the launch spec lifecycle the controller drives,
// held to the same create contract as FleetManager
type LaunchSpecManager interface {
	Create(ctx context.Context, name string, data types.LaunchSpecData) (string, error)
	Destroy(ctx context.Context, name string) error
}

// Locker is the deploy lock
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// TargetState is the state persisted for the target being deployed
type TargetState interface {
	Scope() target.Scope
	CurrentFleet(ctx context.Context) (string, bool, error)
	SetCurrentFleet(ctx context.Context, name string) error
	LatestImage(ctx context.Context) (string, bool, error)
}

// Registry holds every client a run needs. It is built once per run by the
// caller and passed in explicitly.
type Registry struct {
	Fleets      FleetManager
	LaunchSpecs LaunchSpecManager
	Lock        Locker
	Target      TargetState
	Clock       clock.PassiveClock
}
