package persistence

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// IDistributionPersistence defines the storage behind the distribution engine.
// All implementations must be thread-safe; mutable state only changes through the
// conditional (compare-and-swap) writes so that concurrent redemptions of the same
// claim key cannot both succeed, even across processes sharing a backend.
//
// The interface supports:
// - Distribution event records (insert-once, status updates, lookup, listing)
// - Claim state with versioned conditional writes
// - Vesting allocation units with multi-unit conditional writes
// - Lifecycle management (close, health check)
type IDistributionPersistence interface {
	// Distribution Events

	// InsertDistributionEvent stores a new event.
	// Returns ErrAlreadyExists if an event with the same ID is present.
	InsertDistributionEvent(event *types.DistributionEvent) error

	// SaveDistributionEvent overwrites an existing event (used for status changes).
	// Returns ErrNotFound if the event does not exist.
	SaveDistributionEvent(event *types.DistributionEvent) error

	// LoadDistributionEvent retrieves an event by ID.
	// Returns nil if the event doesn't exist, error only on storage failure.
	LoadDistributionEvent(eventID common.Hash) (*types.DistributionEvent, error)

	// ListDistributionEvents returns all events sorted by creation time, then ID.
	// Returns empty slice if no events exist.
	ListDistributionEvents() ([]*types.DistributionEvent, error)

	// Claim State

	// LoadClaimState retrieves the state of a claim key.
	// Returns nil if the key was never written, error only on storage failure.
	LoadClaimState(key string) (*types.ClaimState, error)

	// CompareAndSwapClaimState writes state only if the stored version equals
	// expectedVersion (0 meaning "never written"). The caller sets state.Version.
	// Returns ErrVersionConflict when the stored version differs.
	CompareAndSwapClaimState(expectedVersion uint64, state *types.ClaimState) error

	// Allocation Units

	// LoadAllocationUnit retrieves a unit by ID.
	// Returns nil if the unit doesn't exist, error only on storage failure.
	LoadAllocationUnit(id string) (*types.AllocationUnit, error)

	// CompareAndSwapAllocationUnits applies all updates atomically, or none of them
	// if any stored version differs from its ExpectedVersion.
	// Returns ErrVersionConflict on mismatch.
	CompareAndSwapAllocationUnits(updates []UnitUpdate) error

	// ListAllocationUnits returns every unit sorted by creation time, then ID.
	ListAllocationUnits() ([]*types.AllocationUnit, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
