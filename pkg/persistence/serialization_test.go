package persistence

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// TestMarshalUnmarshalDistributionEvent_RoundTrip checks that hex-encoded hashes and
// the vesting schedule survive JSON storage
func TestMarshalUnmarshalDistributionEvent_RoundTrip(t *testing.T) {
	original := &types.DistributionEvent{
		EventID:        common.HexToHash("0xabc"),
		Kind:           types.LeafKindVestingAllocation,
		HashName:       "keccak256",
		MerkleRoot:     common.HexToHash("0xdef"),
		ReceivingToken: common.HexToAddress("0x01"),
		Status:         types.EventStatusActive,
		Schedule:       types.VestingSchedule{{Timestamp: 10, PercentBasisPoints: 1000}, {Timestamp: 20, PercentBasisPoints: 9000}},
		MinSplitRate:   3000,
		MaxSplitRate:   7000,
		CreatedAt:      99,
	}

	data, err := MarshalDistributionEvent(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), original.EventID.Hex())

	restored, err := UnmarshalDistributionEvent(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestMarshal_NilInput(t *testing.T) {
	_, err := MarshalDistributionEvent(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil DistributionEvent")

	_, err = MarshalClaimState(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil ClaimState")

	_, err = MarshalAllocationUnit(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil AllocationUnit")
}

func TestUnmarshal_InvalidInput(t *testing.T) {
	_, err := UnmarshalClaimState(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty data")

	_, err = UnmarshalAllocationUnit([]byte(`{"total_alloc": "not a number"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestValidateUnitUpdates(t *testing.T) {
	unit := func(id string, version uint64) *types.AllocationUnit {
		return &types.AllocationUnit{ID: id, Version: version}
	}

	require.NoError(t, ValidateUnitUpdates([]UnitUpdate{{ExpectedVersion: 0, Unit: unit("a", 1)}}))
	require.Error(t, ValidateUnitUpdates(nil))
	require.Error(t, ValidateUnitUpdates([]UnitUpdate{{Unit: nil}}))
	require.Error(t, ValidateUnitUpdates([]UnitUpdate{{ExpectedVersion: 2, Unit: unit("a", 2)}}))
	require.Error(t, ValidateUnitUpdates([]UnitUpdate{{Unit: unit("a", 1)}, {Unit: unit("a", 1)}}))
}

func TestValidateClaimState(t *testing.T) {
	require.NoError(t, ValidateClaimState(0, &types.ClaimState{Key: "k", Version: 1}))
	require.Error(t, ValidateClaimState(0, nil))
	require.Error(t, ValidateClaimState(0, &types.ClaimState{Version: 1}))
	require.Error(t, ValidateClaimState(1, &types.ClaimState{Key: "k", Version: 1}))
}
