package domain

import "errors"

// Error taxonomy shared by the stores, schedulers, and cache. Callers match
// with errors.Is; repositories translate driver-specific errors into these
// sentinels at the boundary so nothing above them sees gorm or redis errors.
var (
	// ErrConflict signals a duplicate external id. Expected under concurrent
	// enrichment workers and treated as success by the migration path.
	ErrConflict = errors.New("duplicate external id")

	// ErrNotFound signals a missing record.
	ErrNotFound = errors.New("record not found")

	// ErrTransientSource signals a network or rate-limit failure from an
	// external collaborator. Retried on the next scheduled cycle, never in a
	// tight loop within one cycle.
	ErrTransientSource = errors.New("transient source error")

	// ErrEnrichmentFailed signals malformed or empty output from the
	// enrichment call. The item stays in the buffer for retry.
	ErrEnrichmentFailed = errors.New("enrichment failed")

	// ErrStoreUnavailable signals that the backing datastore is down.
	// Schedulers suspend their current cycle and report unhealthy.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCacheMiss signals a key absent from a cache tier. Internal to the
	// cache read path; Get never surfaces it to callers.
	ErrCacheMiss = errors.New("cache miss")
)
