// Package store defines the keyed record store behind both admission budgets.
// The engines never assume a specific persistence technology; any KV or
// document backend that can do a version-conditional single-key write can be
// substituted for the in-memory implementation.
package store

import "context"

// Record is a stored value with its write version. Versions start at 1 and
// increase by 1 on every successful write to the key.
//
// Values must be treated as immutable once stored: readers copy before
// modifying, writers store fresh values. The optimistic-concurrency contract
// depends on it.
type Record struct {
	Value   any
	Version int64
}

// VersionAbsent is the expected version for create-only writes: the
// CompareAndPut succeeds only if no record exists under the key.
const VersionAbsent int64 = 0

// Store is a keyed record store with per-key optimistic concurrency.
// All mutations touch exactly one key; no cross-key transactions exist.
//
// Implementations must be safe for concurrent use and must return domain
// errors: CodeConflict from CompareAndPut on a version mismatch, and
// CodeUnavailable when the backend cannot be reached.
type Store interface {
	// Get returns the record for key, or nil if absent.
	Get(ctx context.Context, key string) (*Record, error)

	// Put writes value unconditionally, replacing any existing record.
	// Used by the advisory rate limiter, which tolerates racy overwrites.
	Put(ctx context.Context, key string, value any) error

	// CompareAndPut writes value only if the record's current version equals
	// expectedVersion (VersionAbsent for create-only). Returns CodeConflict
	// if the record changed since it was read. This is the primitive the
	// quota ledger's read-modify-write loop is built on.
	CompareAndPut(ctx context.Context, key string, value any, expectedVersion int64) error

	// Delete removes the record for key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}
