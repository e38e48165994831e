package distributor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vaultlabs/merkle-distributor-go/pkg/allocation"
	"github.com/vaultlabs/merkle-distributor-go/pkg/leaf"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/registry"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

func unitLockKey(unitID string) string {
	return "unit:" + unitID
}

// MintAllocation turns a vesting-allocation entry into an allocation unit owned by
// rec.To. Each entry mints at most once.
func (d *Distributor) MintAllocation(ctx context.Context, eventID common.Hash, rec *leaf.AllocationRecord, proof [][32]byte) (*types.AllocationUnit, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidProof)
	}
	event, err := d.redeemableEvent(ctx, eventID, types.LeafKindVestingAllocation)
	if err != nil {
		return nil, err
	}
	if err := d.verifyRecord(event, rec, proof); err != nil {
		return nil, err
	}

	r := &redemption{
		event:           event,
		claimKey:        types.MintClaimKey(eventID, rec.MerkleID),
		claimedErr:      ErrAlreadyMinted,
		account:         rec.To,
		receivingAmount: rec.TotalAlloc,
	}

	unlock := d.locks.Lock(r.claimKey)
	defer unlock()

	reserved, err := d.reserveClaim(r)
	if err != nil {
		return nil, err
	}

	slots := len(event.Schedule)
	unit := &types.AllocationUnit{
		ID:                uuid.New().String(),
		EventID:           eventID,
		MerkleID:          rec.MerkleID,
		Owner:             rec.To,
		TotalAlloc:        rec.TotalAlloc,
		SlotClaimed:       make([]bool, slots),
		SlotClaimedAmount: make([]uint64, slots),
		Status:            types.AllocationStatusActive,
		CreatedAt:         d.now().Unix(),
		Version:           1,
	}
	if err := d.store.CompareAndSwapAllocationUnits([]persistence.UnitUpdate{{Unit: unit}}); err != nil {
		d.releaseClaim(reserved)
		return nil, fmt.Errorf("failed to store allocation unit: %w", err)
	}

	d.logger.Sugar().Infow("Allocation minted",
		"event_id", eventID.Hex(),
		"merkle_id", rec.MerkleID,
		"unit_id", unit.ID,
		"owner", rec.To.Hex(),
		"total_alloc", rec.TotalAlloc,
	)
	return unit, nil
}

// ClaimAllocation pays out one vesting slot of a unit to its owner.
func (d *Distributor) ClaimAllocation(ctx context.Context, unitID string, caller common.Address, slot int) (*types.Receipt, error) {
	unlock := d.locks.Lock(unitLockKey(unitID))
	defer unlock()

	unit, event, err := d.ownedUnit(ctx, unitID, caller)
	if err != nil {
		return nil, err
	}

	if slot < 0 || slot >= len(event.Schedule) || slot >= len(unit.SlotClaimed) {
		return nil, fmt.Errorf("%w: slot %d of %d", ErrScheduleNotAvailable, slot, len(event.Schedule))
	}
	tranche := event.Schedule[slot]
	if now := d.now().Unix(); now < tranche.Timestamp {
		return nil, fmt.Errorf("%w: slot %d unlocks at %d, now %d", ErrScheduleNotAvailable, slot, tranche.Timestamp, now)
	}
	if unit.SlotClaimed[slot] {
		return nil, fmt.Errorf("%w: unit %s slot %d", ErrAlreadyClaimed, unitID, slot)
	}

	amount := allocation.SlotAmount(unit.TotalAlloc, tranche.PercentBasisPoints)

	claimed := unit.Clone()
	claimed.SlotClaimed[slot] = true
	claimed.SlotClaimedAmount[slot] = amount
	claimed.Version = unit.Version + 1
	if err := d.store.CompareAndSwapAllocationUnits([]persistence.UnitUpdate{{ExpectedVersion: unit.Version, Unit: claimed}}); err != nil {
		if errors.Is(err, persistence.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: unit %s", ErrClaimConflict, unitID)
		}
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}

	legs := d.feeLegs(unit.Owner)
	if amount > 0 {
		legs = append(legs, leg{
			name:   "receiving",
			token:  event.ReceivingToken,
			from:   event.Vault,
			to:     unit.Owner,
			amount: amount,
		})
	}
	if err := d.settle(ctx, legs); err != nil {
		if errors.Is(err, ErrSettlementIncomplete) {
			d.logger.Sugar().Errorw("Keeping slot claimed after incomplete reversal", "unit_id", unitID, "slot", slot, "error", err)
			return nil, err
		}
		released := unit.Clone()
		released.Version = claimed.Version + 1
		if rbErr := d.store.CompareAndSwapAllocationUnits([]persistence.UnitUpdate{{ExpectedVersion: claimed.Version, Unit: released}}); rbErr != nil {
			d.logger.Sugar().Errorw("Failed to release slot reservation", "unit_id", unitID, "slot", slot, "error", rbErr)
		}
		return nil, err
	}

	claimKey := fmt.Sprintf("%s:slot:%d", unitID, slot)
	receipt := d.newReceipt(event, claimKey, unit.Owner, amount, 0)
	d.logger.Sugar().Infow("Allocation slot claimed",
		"unit_id", unitID,
		"slot", slot,
		"amount", amount,
		"owner", unit.Owner.Hex(),
		"receipt_id", receipt.ID,
	)
	return receipt, nil
}

// SplitAllocation replaces a unit with two children. The first child receives
// rateBasisPoints of the allocation, rounded down, and the second the remainder.
func (d *Distributor) SplitAllocation(ctx context.Context, unitID string, caller common.Address, rateBasisPoints uint64) (*types.AllocationUnit, *types.AllocationUnit, error) {
	unlock := d.locks.Lock(unitLockKey(unitID))
	defer unlock()

	unit, event, err := d.ownedUnit(ctx, unitID, caller)
	if err != nil {
		return nil, nil, err
	}

	parent := unit.Clone()
	bounds := allocation.RateBounds{Min: event.MinSplitRate, Max: event.MaxSplitRate}
	a, b, err := allocation.Split(parent, rateBasisPoints, bounds, d.now().Unix())
	if err != nil {
		return nil, nil, err
	}
	parent.Version = unit.Version + 1
	a.Version = 1
	b.Version = 1

	updates := []persistence.UnitUpdate{
		{ExpectedVersion: unit.Version, Unit: parent},
		{Unit: a},
		{Unit: b},
	}
	if err := d.store.CompareAndSwapAllocationUnits(updates); err != nil {
		if errors.Is(err, persistence.ErrVersionConflict) {
			return nil, nil, fmt.Errorf("%w: unit %s", ErrClaimConflict, unitID)
		}
		return nil, nil, fmt.Errorf("failed to store split: %w", err)
	}

	d.logger.Sugar().Infow("Allocation split",
		"unit_id", unitID,
		"rate_bps", rateBasisPoints,
		"child_a", a.ID,
		"child_a_total", a.TotalAlloc,
		"child_b", b.ID,
		"child_b_total", b.TotalAlloc,
	)
	return a, b, nil
}

// GetAllocation returns a unit in any status.
func (d *Distributor) GetAllocation(ctx context.Context, unitID string) (*types.AllocationUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unit, err := d.store.LoadAllocationUnit(unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation unit: %w", err)
	}
	if unit == nil {
		return nil, fmt.Errorf("%w: unit %s not found", ErrInvalidAllocation, unitID)
	}
	return unit, nil
}

// ListAllocations returns the units minted from eventID, in creation order.
func (d *Distributor) ListAllocations(ctx context.Context, eventID common.Hash) ([]*types.AllocationUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	units, err := d.store.ListAllocationUnits()
	if err != nil {
		return nil, fmt.Errorf("failed to list allocation units: %w", err)
	}
	out := make([]*types.AllocationUnit, 0, len(units))
	for _, u := range units {
		if u.EventID == eventID {
			out = append(out, u)
		}
	}
	return out, nil
}

// ownedUnit loads an active unit owned by caller together with its active event.
func (d *Distributor) ownedUnit(ctx context.Context, unitID string, caller common.Address) (*types.AllocationUnit, *types.DistributionEvent, error) {
	unit, err := d.store.LoadAllocationUnit(unitID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load allocation unit: %w", err)
	}
	if !unit.IsActive() {
		return nil, nil, fmt.Errorf("%w: unit %s", ErrInvalidAllocation, unitID)
	}
	if unit.Owner != caller {
		return nil, nil, fmt.Errorf("%w: %s does not own unit %s", ErrUnauthorized, caller.Hex(), unitID)
	}

	event, err := d.registry.GetDistributionEvent(ctx, unit.EventID)
	if err != nil {
		if errors.Is(err, registry.ErrEventNotFound) {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return nil, nil, err
	}
	if !event.IsActive() {
		return nil, nil, fmt.Errorf("%w: event %s is %s", ErrInvalidEvent, event.EventID.Hex(), event.Status)
	}
	return unit, event, nil
}
