package allocation

import (
	"math"
	mrand "math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

var defaultBounds = RateBounds{Min: 3000, Max: 7000}

func newUnit(total uint64, claimed ...uint64) *types.AllocationUnit {
	flags := make([]bool, len(claimed))
	for i, c := range claimed {
		flags[i] = c > 0
	}
	return &types.AllocationUnit{
		ID:                "parent",
		EventID:           common.HexToHash("0x01"),
		MerkleID:          1,
		Owner:             common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TotalAlloc:        total,
		SlotClaimed:       flags,
		SlotClaimedAmount: append([]uint64(nil), claimed...),
		Status:            types.AllocationStatusActive,
	}
}

func TestSlotAmount(t *testing.T) {
	testCases := []struct {
		name     string
		total    uint64
		percent  uint64
		expected uint64
	}{
		{"Ten percent", 1000, 1000, 100},
		{"Forty percent", 1000, 4000, 400},
		{"Rounds down", 999, 3333, 332},
		{"Full", 12345, 10000, 12345},
		{"Zero percent", 1000, 0, 0},
		{"No overflow at max", math.MaxUint64, 10000, math.MaxUint64},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SlotAmount(tc.total, tc.percent))
		})
	}
}

func TestSplit(t *testing.T) {
	parent := newUnit(1000, 100, 0, 0, 0)

	a, b, err := Split(parent, 5000, defaultBounds, 42)
	require.NoError(t, err)

	assert.Equal(t, uint64(500), a.TotalAlloc)
	assert.Equal(t, uint64(500), b.TotalAlloc)
	assert.Equal(t, uint64(50), a.ClaimedAlloc())
	assert.Equal(t, uint64(50), b.ClaimedAlloc())
	assert.Equal(t, []bool{true, false, false, false}, a.SlotClaimed)
	assert.Equal(t, []bool{true, false, false, false}, b.SlotClaimed)

	assert.Equal(t, types.AllocationStatusInvalidated, parent.Status)
	assert.Equal(t, []string{a.ID, b.ID}, parent.ChildIDs)
	assert.Equal(t, "parent", a.ParentID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, a.IsActive())
	assert.Equal(t, int64(42), b.CreatedAt)
}

func TestSplitRateBounds(t *testing.T) {
	testCases := []struct {
		name    string
		rate    uint64
		wantErr bool
	}{
		{"Below minimum", 2999, true},
		{"At minimum", 3000, false},
		{"At maximum", 7000, false},
		{"Above maximum", 7001, true},
		{"Above 100 percent", 10001, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parent := newUnit(1000, 0)
			a, b, err := Split(parent, tc.rate, defaultBounds, 0)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidRate)
				require.Nil(t, a)
				require.Nil(t, b)
				require.True(t, parent.IsActive(), "parent must stay active on failure")
				return
			}
			require.NoError(t, err)
			require.Equal(t, parent.TotalAlloc, a.TotalAlloc+b.TotalAlloc)
		})
	}

	t.Run("Wide bounds still cap at 100 percent", func(t *testing.T) {
		_, _, err := Split(newUnit(1000, 0), 10001, RateBounds{Min: 0, Max: math.MaxUint64}, 0)
		require.ErrorIs(t, err, ErrInvalidRate)
	})
}

func TestSplitInactiveParent(t *testing.T) {
	parent := newUnit(1000, 0)
	parent.Status = types.AllocationStatusInvalidated
	_, _, err := Split(parent, 5000, defaultBounds, 0)
	require.Error(t, err)

	_, _, err = Split(nil, 5000, defaultBounds, 0)
	require.Error(t, err)
}

// TestSplitConservation checks that totals and per-slot claimed amounts are conserved
// exactly for random inputs.
func TestSplitConservation(t *testing.T) {
	rng := mrand.New(mrand.NewSource(7))
	bounds := RateBounds{Min: 0, Max: types.BasisPoints}

	for trial := 0; trial < 500; trial++ {
		total := rng.Uint64() >> uint(rng.Intn(64))
		slots := 1 + rng.Intn(6)
		claimed := make([]uint64, slots)
		for i := range claimed {
			if total > 0 {
				claimed[i] = rng.Uint64() % (total/uint64(slots) + 1)
			}
		}
		parent := newUnit(total, claimed...)
		parentClaimed := parent.ClaimedAlloc()
		rate := uint64(rng.Intn(int(types.BasisPoints) + 1))

		a, b, err := Split(parent, rate, bounds, 0)
		require.NoError(t, err)

		require.Equal(t, total, a.TotalAlloc+b.TotalAlloc, "trial %d total", trial)
		require.Equal(t, parentClaimed, a.ClaimedAlloc()+b.ClaimedAlloc(), "trial %d claimed", trial)
		for s := range claimed {
			require.Equal(t, claimed[s], a.SlotClaimedAmount[s]+b.SlotClaimedAmount[s], "trial %d slot %d", trial, s)
		}
	}
}
