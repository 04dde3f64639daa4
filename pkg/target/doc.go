// Package target holds the state greenfleet persists per deploy target:
// the lock path, the current fleet pointer and the recent image ledger, each
// behind an explicit accessor on Params and a fixed key path under
// /{namespace}/{env}/{target}.
package target
