package distributor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultlabs/merkle-distributor-go/pkg/leaf"
	"github.com/vaultlabs/merkle-distributor-go/pkg/transfer"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

var testSchedule = types.VestingSchedule{
	{Timestamp: unlockAt, PercentBasisPoints: 1000},
	{Timestamp: unlockAt + 1000, PercentBasisPoints: 5000},
	{Timestamp: unlockAt + 2000, PercentBasisPoints: 4000},
}

func vestingRecords() []leaf.Record {
	return []leaf.Record{
		&leaf.AllocationRecord{Index: 0, To: alice, MerkleID: 1, TotalAlloc: 1000},
		&leaf.AllocationRecord{Index: 1, To: bob, MerkleID: 2, TotalAlloc: 3333},
	}
}

func (f *fixture) createVestingEvent(minRate, maxRate uint64) (*types.DistributionEvent, []leaf.Record, [][][32]byte) {
	f.t.Helper()
	records := vestingRecords()
	eventID, tree := f.createEvent("0x0a", types.LeafKindVestingAllocation, records, func(e *types.DistributionEvent) {
		e.Schedule = testSchedule
		e.MinSplitRate = minRate
		e.MaxSplitRate = maxRate
	})
	event, err := f.registry.GetDistributionEvent(f.ctx, eventID)
	require.NoError(f.t, err)

	proofs := make([][][32]byte, len(records))
	for i := range records {
		proofs[i] = f.proof(tree, i)
	}
	return event, records, proofs
}

func TestMintAllocation(t *testing.T) {
	f := newFixture(t)
	event, records, proofs := f.createVestingEvent(0, types.BasisPoints)
	rec := records[0].(*leaf.AllocationRecord)

	unit, err := f.dist.MintAllocation(f.ctx, event.EventID, rec, proofs[0])
	require.NoError(t, err)
	assert.NotEmpty(t, unit.ID)
	assert.Equal(t, alice, unit.Owner)
	assert.Equal(t, uint64(1000), unit.TotalAlloc)
	assert.Equal(t, []bool{false, false, false}, unit.SlotClaimed)
	assert.Zero(t, unit.ClaimedAlloc())
	assert.True(t, unit.IsActive())

	_, err = f.dist.MintAllocation(f.ctx, event.EventID, rec, proofs[0])
	require.ErrorIs(t, err, ErrAlreadyMinted)

	inflated := *rec
	inflated.TotalAlloc = 1001
	_, err = f.dist.MintAllocation(f.ctx, event.EventID, &inflated, proofs[0])
	require.ErrorIs(t, err, ErrInvalidProof)

	stored, err := f.dist.GetAllocation(f.ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, unit, stored)

	units, err := f.dist.ListAllocations(f.ctx, event.EventID)
	require.NoError(t, err)
	require.Len(t, units, 1)

	_, err = f.dist.GetAllocation(f.ctx, "missing")
	require.ErrorIs(t, err, ErrInvalidAllocation)
}

func TestClaimAllocation(t *testing.T) {
	f := newFixture(t)
	event, records, proofs := f.createVestingEvent(0, types.BasisPoints)
	unit, err := f.dist.MintAllocation(f.ctx, event.EventID, records[0].(*leaf.AllocationRecord), proofs[0])
	require.NoError(t, err)

	receipt, err := f.dist.ClaimAllocation(f.ctx, unit.ID, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), receipt.ReceivingAmount)
	assert.Equal(t, uint64(100), f.ledger.BalanceOf(receivingToken, alice))

	_, err = f.dist.ClaimAllocation(f.ctx, unit.ID, alice, 0)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	// a slot before its unlock time is unavailable, not locked
	f.clock.Set(unlockAt + 999)
	_, err = f.dist.ClaimAllocation(f.ctx, unit.ID, alice, 1)
	require.ErrorIs(t, err, ErrScheduleNotAvailable)

	_, err = f.dist.ClaimAllocation(f.ctx, unit.ID, alice, 3)
	require.ErrorIs(t, err, ErrScheduleNotAvailable)
	_, err = f.dist.ClaimAllocation(f.ctx, unit.ID, alice, -1)
	require.ErrorIs(t, err, ErrScheduleNotAvailable)

	_, err = f.dist.ClaimAllocation(f.ctx, unit.ID, bob, 0)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.dist.ClaimAllocation(f.ctx, "missing", alice, 0)
	require.ErrorIs(t, err, ErrInvalidAllocation)

	// unlocks at exactly the tranche timestamp
	f.clock.Set(unlockAt + 1000)
	receipt, err = f.dist.ClaimAllocation(f.ctx, unit.ID, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), receipt.ReceivingAmount)

	f.clock.Set(unlockAt + 2000)
	_, err = f.dist.ClaimAllocation(f.ctx, unit.ID, alice, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), f.ledger.BalanceOf(receivingToken, alice))

	stored, err := f.dist.GetAllocation(f.ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, stored.SlotClaimed)
	assert.Equal(t, []uint64{100, 500, 400}, stored.SlotClaimedAmount)
	assert.Equal(t, uint64(1000), stored.ClaimedAlloc())
}

func TestClaimAllocationReleasesSlotOnFailedTransfer(t *testing.T) {
	f := newFixture(t)
	event, records, proofs := f.createVestingEvent(0, types.BasisPoints)
	unit, err := f.dist.MintAllocation(f.ctx, event.EventID, records[0].(*leaf.AllocationRecord), proofs[0])
	require.NoError(t, err)

	require.NoError(t, f.ledger.Transfer(f.ctx, receivingToken, vault, treasury, f.ledger.BalanceOf(receivingToken, vault)))

	_, err = f.dist.ClaimAllocation(f.ctx, unit.ID, alice, 0)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	stored, err := f.dist.GetAllocation(f.ctx, unit.ID)
	require.NoError(t, err)
	assert.False(t, stored.SlotClaimed[0])
	assert.Zero(t, stored.ClaimedAlloc())

	require.NoError(t, f.ledger.Mint(receivingToken, vault, 100))
	_, err = f.dist.ClaimAllocation(f.ctx, unit.ID, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), f.ledger.BalanceOf(receivingToken, alice))
}

func TestClaimAllocationKeepsSlotOnIncompleteReversal(t *testing.T) {
	f := newFixture(t)
	event, records, proofs := f.createVestingEvent(0, types.BasisPoints)
	unit, err := f.dist.MintAllocation(f.ctx, event.EventID, records[0].(*leaf.AllocationRecord), proofs[0])
	require.NoError(t, err)

	require.NoError(t, f.ledger.Transfer(f.ctx, receivingToken, vault, treasury, f.ledger.BalanceOf(receivingToken, vault)))
	require.NoError(t, f.ledger.Mint(transfer.NativeToken, alice, 10))

	// the fee is paid but cannot be refunded once the receiving leg fails
	dist := f.withTransferer(&frozenTransferer{Transferer: f.ledger, frozen: feeSink}, WithFee(10, feeSink))
	_, err = dist.ClaimAllocation(f.ctx, unit.ID, alice, 0)
	require.ErrorIs(t, err, ErrSettlementIncomplete)
	assert.Equal(t, uint64(10), f.ledger.BalanceOf(transfer.NativeToken, feeSink))

	stored, err := dist.GetAllocation(f.ctx, unit.ID)
	require.NoError(t, err)
	assert.True(t, stored.SlotClaimed[0])

	require.NoError(t, f.ledger.Mint(receivingToken, vault, 100))
	_, err = dist.ClaimAllocation(f.ctx, unit.ID, alice, 0)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Zero(t, f.ledger.BalanceOf(receivingToken, alice))
}

func TestSplitAllocation(t *testing.T) {
	f := newFixture(t)
	event, records, proofs := f.createVestingEvent(0, types.BasisPoints)
	parent, err := f.dist.MintAllocation(f.ctx, event.EventID, records[0].(*leaf.AllocationRecord), proofs[0])
	require.NoError(t, err)

	_, err = f.dist.ClaimAllocation(f.ctx, parent.ID, alice, 0)
	require.NoError(t, err)

	_, _, err = f.dist.SplitAllocation(f.ctx, parent.ID, alice, types.BasisPoints+1)
	require.ErrorIs(t, err, ErrInvalidRate)

	_, _, err = f.dist.SplitAllocation(f.ctx, parent.ID, bob, 2500)
	require.ErrorIs(t, err, ErrUnauthorized)

	a, b, err := f.dist.SplitAllocation(f.ctx, parent.ID, alice, 2500)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), a.TotalAlloc)
	assert.Equal(t, uint64(750), b.TotalAlloc)
	assert.Equal(t, []uint64{25, 0, 0}, a.SlotClaimedAmount)
	assert.Equal(t, []uint64{75, 0, 0}, b.SlotClaimedAmount)
	assert.Equal(t, []bool{true, false, false}, a.SlotClaimed)
	assert.Equal(t, []bool{true, false, false}, b.SlotClaimed)
	assert.Equal(t, parent.ID, a.ParentID)
	assert.Equal(t, alice, b.Owner)

	stored, err := f.dist.GetAllocation(f.ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AllocationStatusInvalidated, stored.Status)
	assert.Equal(t, []string{a.ID, b.ID}, stored.ChildIDs)

	_, err = f.dist.ClaimAllocation(f.ctx, parent.ID, alice, 1)
	require.ErrorIs(t, err, ErrInvalidAllocation)
	_, _, err = f.dist.SplitAllocation(f.ctx, parent.ID, alice, 5000)
	require.ErrorIs(t, err, ErrInvalidAllocation)

	// claimed flags carry over to the children
	_, err = f.dist.ClaimAllocation(f.ctx, a.ID, alice, 0)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	f.clock.Set(unlockAt + 1000)
	receipt, err := f.dist.ClaimAllocation(f.ctx, a.ID, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(125), receipt.ReceivingAmount)
	receipt, err = f.dist.ClaimAllocation(f.ctx, b.ID, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(375), receipt.ReceivingAmount)
}

func TestSplitAllocationConservesOddTotals(t *testing.T) {
	f := newFixture(t)
	event, records, proofs := f.createVestingEvent(0, types.BasisPoints)
	unit, err := f.dist.MintAllocation(f.ctx, event.EventID, records[1].(*leaf.AllocationRecord), proofs[1])
	require.NoError(t, err)

	_, err = f.dist.ClaimAllocation(f.ctx, unit.ID, bob, 0)
	require.NoError(t, err)

	a, b, err := f.dist.SplitAllocation(f.ctx, unit.ID, bob, 3333)
	require.NoError(t, err)
	assert.Equal(t, unit.TotalAlloc, a.TotalAlloc+b.TotalAlloc)

	stored, err := f.dist.GetAllocation(f.ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ClaimedAlloc(), a.ClaimedAlloc()+b.ClaimedAlloc())
}

func TestSplitAllocationRateBounds(t *testing.T) {
	f := newFixture(t)
	event, records, proofs := f.createVestingEvent(1000, 9000)
	unit, err := f.dist.MintAllocation(f.ctx, event.EventID, records[0].(*leaf.AllocationRecord), proofs[0])
	require.NoError(t, err)

	for _, rate := range []uint64{0, 999, 9001, types.BasisPoints} {
		_, _, err := f.dist.SplitAllocation(f.ctx, unit.ID, alice, rate)
		require.ErrorIs(t, err, ErrInvalidRate, "rate %d", rate)
	}

	_, _, err = f.dist.SplitAllocation(f.ctx, unit.ID, alice, 1000)
	require.NoError(t, err)
}

func TestVestingOnDisabledEvent(t *testing.T) {
	f := newFixture(t)
	event, records, proofs := f.createVestingEvent(0, types.BasisPoints)
	unit, err := f.dist.MintAllocation(f.ctx, event.EventID, records[0].(*leaf.AllocationRecord), proofs[0])
	require.NoError(t, err)

	require.NoError(t, f.registry.SetEventStatus(f.ctx, event.EventID, false))

	_, err = f.dist.ClaimAllocation(f.ctx, unit.ID, alice, 0)
	require.ErrorIs(t, err, ErrInvalidEvent)
	_, err = f.dist.MintAllocation(f.ctx, event.EventID, records[1].(*leaf.AllocationRecord), proofs[1])
	require.ErrorIs(t, err, ErrInvalidEvent)
}
