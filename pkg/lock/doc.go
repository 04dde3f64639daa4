/*
Package lock implements the per-target deploy lock.

A lock is a single token, "owner=<id>,timestamp=<epoch>", stored at
/{namespace}/{env}/{target}/deploy/lock. Acquire writes a fresh token with
the store's create-if-absent operation and fails with ErrLockAlreadyHeld
when any token is already there; nothing else provides exclusion. Release
deletes the token only if this Lock instance created it, so a process that
lost the race can call Release unconditionally. ReleaseForce removes
whatever is stored and exists for administrative recovery after a crashed
run.

	l := lock.New(store, params.LockPath())
	if err := l.Acquire(ctx); err != nil {
		return err // ErrLockAlreadyHeld: another deploy is running
	}
	defer l.Release(context.WithoutCancel(ctx))
*/
package lock
