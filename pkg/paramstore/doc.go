/*
Package paramstore provides the key/value parameter store greenfleet keeps
its per-target state in: the deploy lock, the current fleet pointer and the
recent image ledger.

The Store contract is small: Get, Create, Put, Delete and List over
slash-separated names, with ErrNotFound and ErrAlreadyExists as the only
signals callers branch on. Create is create-if-absent in one atomic step;
the deploy lock relies on nothing else for mutual exclusion.

BoltStore implements Store on a single BoltDB file with one bucket,
"parameters", holding JSON-encoded Parameter values keyed by name. The file
is opened per operation, so concurrent greenfleet processes on one host
serialise on bbolt's file lock only for the length of a transaction.
*/
package paramstore
