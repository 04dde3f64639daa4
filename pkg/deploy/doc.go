/*
Package deploy implements the blue/green fleet replacement controller.

A deploy never mutates the running fleet. It builds a complete replacement
(green) next to the current one (blue), waits until green is fully ready,
decommissions blue and only then moves the target's current-fleet pointer.

# State Machine

	INIT ──► DISCOVER_BLUE ──► CREATE_GREEN ──► AWAIT_GREEN_READY ──► TERMINATE_BLUE ──► DONE
	  │            │                 │                  │                    │
	  │ lock held  │ error           └──── error or cancel ──► ROLLBACK ──► FAILED / CANCELLED
	  ▼            ▼                                                         │
	aborted      FAILED                                          errors leave blue orphaned,
	                                                             green is never rolled back

	INIT               acquire the target lock; a held lock aborts with no side effects
	DISCOVER_BLUE      read the pointer and the fleet it names; no pointer means first deploy
	CREATE_GREEN       resolve the image, create a launch spec and a fleet sized like blue
	AWAIT_GREEN_READY  fleet create returns once ready == desired
	TERMINATE_BLUE     decommission blue, then delete its launch spec
	DONE               write green as the current fleet

# Rollback

Every resource a run creates is appended to an in-memory Ledger the moment
the create call succeeds. On failure or cancellation before TERMINATE_BLUE,
every entry is destroyed: fleets first, then launch specs, each in creation
order. Rollback runs even after the caller's context is cancelled, and one
failed destroy does not stop the others. Nothing is ever destroyed twice.

# Dependencies

The controller only sees the small interfaces in registry.go. The CLI wires
them to resource.FleetClient, resource.LaunchSpecClient, lock.Lock and
target.Params; tests wrap the same types to observe calls.

# Usage

	d := deploy.NewDeployer(deploy.Registry{
		Fleets:      fleets,
		LaunchSpecs: launchSpecs,
		Lock:        lock.New(store, params.LockPath()),
		Target:      params,
	})

	res, err := d.Run(ctx, deploy.Request{LaunchSpec: data, Fleet: cfg})
	if err != nil {
		log.Errorf("deploy "+string(res.Outcome), err)
	}
*/
package deploy
