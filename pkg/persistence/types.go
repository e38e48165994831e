package persistence

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

var (
	ErrVersionConflict = errors.New("version conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrClosed          = errors.New("persistence layer is closed")
)

// UnitUpdate is one element of a multi-unit conditional write.
type UnitUpdate struct {
	// ExpectedVersion is the version the stored unit must have (0 = must not exist)
	ExpectedVersion uint64
	// Unit is the new value; its Version field is written as given
	Unit *types.AllocationUnit
}

// ValidateClaimState rejects writes that cannot be stored.
func ValidateClaimState(expectedVersion uint64, state *types.ClaimState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil ClaimState")
	}
	if state.Key == "" {
		return fmt.Errorf("claim state key cannot be empty")
	}
	if state.Version <= expectedVersion {
		return fmt.Errorf("claim state version %d must advance past %d", state.Version, expectedVersion)
	}
	return nil
}

// ValidateUnitUpdates rejects batches that cannot be stored.
func ValidateUnitUpdates(updates []UnitUpdate) error {
	if len(updates) == 0 {
		return fmt.Errorf("no allocation unit updates given")
	}
	seen := make(map[string]struct{}, len(updates))
	for i, u := range updates {
		if u.Unit == nil {
			return fmt.Errorf("update %d has nil AllocationUnit", i)
		}
		if u.Unit.ID == "" {
			return fmt.Errorf("update %d has empty allocation unit id", i)
		}
		if u.Unit.Version <= u.ExpectedVersion {
			return fmt.Errorf("allocation unit %s version %d must advance past %d", u.Unit.ID, u.Unit.Version, u.ExpectedVersion)
		}
		if _, dup := seen[u.Unit.ID]; dup {
			return fmt.Errorf("allocation unit %s updated twice in one batch", u.Unit.ID)
		}
		seen[u.Unit.ID] = struct{}{}
	}
	return nil
}

// SortDistributionEvents orders events by creation time, then ID.
func SortDistributionEvents(events []*types.DistributionEvent) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt < events[j].CreatedAt
		}
		return events[i].EventID.Hex() < events[j].EventID.Hex()
	})
}

// SortAllocationUnits orders units by creation time, then ID.
func SortAllocationUnits(units []*types.AllocationUnit) {
	sort.Slice(units, func(i, j int) bool {
		if units[i].CreatedAt != units[j].CreatedAt {
			return units[i].CreatedAt < units[j].CreatedAt
		}
		return units[i].ID < units[j].ID
	})
}
