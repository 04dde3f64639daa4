/*
Package resource drives the lifecycle of fleets and launch specs against the
remote fleet manager.

Two clients share one error taxonomy:

	FleetClient        Create / Read / List / Update / Destroy
	LaunchSpecClient   Create / Read / Destroy

Both translate between pkg/types and the fleet manager's wire names
(pkg/fleetapi) on every call, and classify every remote failure with
Classify:

	fleet manager code              sentinel               errdefs category
	NotFound                        ErrNotFound            NotFound
	AlreadyExists                   ErrAlreadyExists       AlreadyExists
	LimitExceeded                   ErrLimitExceeded       ResourceExhausted
	ScalingActivityInProgress       ErrActivityInProgress  Conflict
	ResourceInUse                   ErrInUse               FailedPrecondition
	ValidationError                 ErrValidation          InvalidArgument
	Throttling, contention, 5xx     ErrTransient           Unavailable
	no response at all              ErrTransient           Unavailable
	anything else                   ErrResource            Unknown

# Retries

Idempotent reads retry ErrTransient with exponential backoff
(cenkalti/backoff, two minutes at most). Mutating calls are never retried
blindly; the only exception is ErrActivityInProgress inside Destroy, which
is retried every 30 seconds for at most 30 minutes via pkg/waiter.

# Create

Fleet create blocks until the number of ready members (healthy and
in-service) equals the desired capacity, polling every 15 seconds for up to
20 minutes. If the fleet exists but a later step fails (scaling policy
attach, readiness wait) the error is a *PartialCreateError so the caller
can still compensate for the fleet.

# Destroy

Fleet decommission is a sequence, not a call:

	1. min capacity -> 0
	2. terminate each in-service member (decrementing desired), 2s apart
	3. poll every 30s, logging a lifecycle summary, until no members remain
	4. delete, retrying while a scaling activity is in progress

A fleet or launch spec that is already gone counts as destroyed. Launch spec
destroy reports ErrInUse while a fleet still references the launch spec.
*/
package resource
