// Package allocation holds the pure arithmetic behind vesting units: how much a slot
// is worth and how a unit divides into two.
package allocation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

var ErrInvalidRate = errors.New("invalid rate")

// RateBounds is the inclusive range of split rates, in basis points, a distribution
// accepts.
type RateBounds struct {
	Min uint64
	Max uint64
}

// Contains reports whether rate is inside the bounds and not above 100%.
func (b RateBounds) Contains(rate uint64) bool {
	return rate >= b.Min && rate <= b.Max && rate <= types.BasisPoints
}

// MulDiv computes floor(a*b/d) with a 256-bit intermediate. It panics on d == 0.
func MulDiv(a, b, d uint64) uint64 {
	if d == 0 {
		panic("allocation: division by zero")
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	return product.Div(product, uint256.NewInt(d)).Uint64()
}

// SlotAmount is the share of total that a tranche of percentBasisPoints unlocks.
func SlotAmount(total, percentBasisPoints uint64) uint64 {
	return MulDiv(total, percentBasisPoints, types.BasisPoints)
}

// Split divides parent into two new units. Child A receives floor(total*rate/10000)
// and child B the remainder; each slot's claimed amount is divided the same way so
// that both totals are conserved exactly. Claimed flags are inherited by both
// children. The parent is marked invalidated and linked to its children; persisting
// the three units is the caller's job.
func Split(parent *types.AllocationUnit, rate uint64, bounds RateBounds, now int64) (*types.AllocationUnit, *types.AllocationUnit, error) {
	if parent == nil {
		return nil, nil, fmt.Errorf("cannot split nil allocation unit")
	}
	if !parent.IsActive() {
		return nil, nil, fmt.Errorf("allocation unit %s is not active", parent.ID)
	}
	if !bounds.Contains(rate) {
		return nil, nil, fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidRate, rate, bounds.Min, bounds.Max)
	}

	a := newChild(parent, now)
	b := newChild(parent, now)

	a.TotalAlloc = MulDiv(parent.TotalAlloc, rate, types.BasisPoints)
	b.TotalAlloc = parent.TotalAlloc - a.TotalAlloc

	for slot, claimed := range parent.SlotClaimedAmount {
		a.SlotClaimedAmount[slot] = MulDiv(claimed, rate, types.BasisPoints)
		b.SlotClaimedAmount[slot] = claimed - a.SlotClaimedAmount[slot]
	}

	parent.Status = types.AllocationStatusInvalidated
	parent.ChildIDs = []string{a.ID, b.ID}

	return a, b, nil
}

func newChild(parent *types.AllocationUnit, now int64) *types.AllocationUnit {
	return &types.AllocationUnit{
		ID:                uuid.New().String(),
		EventID:           parent.EventID,
		MerkleID:          parent.MerkleID,
		Owner:             parent.Owner,
		SlotClaimed:       append([]bool(nil), parent.SlotClaimed...),
		SlotClaimedAmount: make([]uint64, len(parent.SlotClaimedAmount)),
		Status:            types.AllocationStatusActive,
		ParentID:          parent.ID,
		CreatedAt:         now,
	}
}
