// Package remote defines the platform surface the recovery protocol runs
// against and its concrete adapters.
//
// The Store interface covers three concerns: a write-only secret store, the
// branch ref namespace of a repository (whose atomic create-or-reject
// semantics back the distributed lock), and a dispatchable remote job.
// GitHub is the production adapter; MemoryStore is a race-safe in-process
// implementation used by tests across the module. WithRetry decorates any
// Store with bounded retries on errors marked Transient.
package remote
