/*
Package waiter provides the bounded convergence poller used wherever
greenfleet must wait for remote state to settle: fleet readiness after
create, member drain during decommission, and retried deletes while a
scaling activity is still running.

# Contract

	err := poller.WaitFor(ctx, 15*time.Second, 20*time.Minute, "fleet ready", pred)

  - interval must be within [1s, 60s] and timeout within [1s, 1800s];
    anything else fails with ErrParameterOutOfRange before pred runs
  - pred is invoked first, then once per interval; it is never run
    concurrently with itself
  - an error from pred is returned as-is
  - when pred still reports false after timeout has elapsed since the
    first call, WaitFor fails with ErrTimeout

A predicate that never succeeds therefore fails after an elapsed time in
[timeout, timeout+interval).

Time comes from a k8s.io/utils/clock.Clock so tests can drive the loop with
a FakeClock instead of sleeping.
*/
package waiter
