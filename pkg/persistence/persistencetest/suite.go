// Package persistencetest holds the behavioural checks every IDistributionPersistence
// backend must pass.
package persistencetest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// Factory returns a fresh, empty backend. Backends that share external state (redis)
// must isolate each call, e.g. with a unique key prefix.
type Factory func(t *testing.T) persistence.IDistributionPersistence

// Run executes the full suite against the backend produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("Events", func(t *testing.T) { testEvents(t, newBackend(t)) })
	t.Run("ClaimCompareAndSwap", func(t *testing.T) { testClaimCAS(t, newBackend(t)) })
	t.Run("ConcurrentClaims", func(t *testing.T) { testConcurrentClaims(t, newBackend(t)) })
	t.Run("AllocationUnits", func(t *testing.T) { testAllocationUnits(t, newBackend(t)) })
	t.Run("Close", func(t *testing.T) { testClose(t, newBackend(t)) })
}

// NewEvent returns a valid flat-distribution event with a random ID.
func NewEvent(createdAt int64) *types.DistributionEvent {
	id := uuid.New()
	return &types.DistributionEvent{
		EventID:        common.BytesToHash(id[:]),
		Kind:           types.LeafKindFlat,
		HashName:       "keccak256",
		MerkleRoot:     common.HexToHash("0x1234"),
		ReceivingToken: common.HexToAddress("0xaaaa"),
		Status:         types.EventStatusActive,
		CreatedAt:      createdAt,
	}
}

func testEvents(t *testing.T, p persistence.IDistributionPersistence) {
	defer func() { _ = p.Close() }()

	first := NewEvent(10)
	second := NewEvent(20)

	require.NoError(t, p.InsertDistributionEvent(second))
	require.NoError(t, p.InsertDistributionEvent(first))

	err := p.InsertDistributionEvent(first)
	require.ErrorIs(t, err, persistence.ErrAlreadyExists)

	loaded, err := p.LoadDistributionEvent(first.EventID)
	require.NoError(t, err)
	assert.Equal(t, first, loaded)

	missing, err := p.LoadDistributionEvent(common.HexToHash("0xdead"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	first.Status = types.EventStatusDisabled
	require.NoError(t, p.SaveDistributionEvent(first))
	loaded, err = p.LoadDistributionEvent(first.EventID)
	require.NoError(t, err)
	assert.Equal(t, types.EventStatusDisabled, loaded.Status)

	err = p.SaveDistributionEvent(NewEvent(30))
	require.ErrorIs(t, err, persistence.ErrNotFound)

	events, err := p.ListDistributionEvents()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.EventID, events[0].EventID)
	assert.Equal(t, second.EventID, events[1].EventID)
}

func testClaimCAS(t *testing.T, p persistence.IDistributionPersistence) {
	defer func() { _ = p.Close() }()

	key := "claim:" + uuid.New().String()

	state, err := p.LoadClaimState(key)
	require.NoError(t, err)
	assert.Nil(t, state)

	claimed := &types.ClaimState{Key: key, Claimed: true, Amount: 5, Version: 1}
	require.NoError(t, p.CompareAndSwapClaimState(0, claimed))

	err = p.CompareAndSwapClaimState(0, &types.ClaimState{Key: key, Claimed: true, Version: 1})
	require.ErrorIs(t, err, persistence.ErrVersionConflict)

	state, err = p.LoadClaimState(key)
	require.NoError(t, err)
	assert.Equal(t, claimed, state)

	released := &types.ClaimState{Key: key, Claimed: false, Version: 2}
	require.NoError(t, p.CompareAndSwapClaimState(1, released))

	state, err = p.LoadClaimState(key)
	require.NoError(t, err)
	assert.False(t, state.Claimed)
	assert.Equal(t, uint64(2), state.Version)
}

func testConcurrentClaims(t *testing.T, p persistence.IDistributionPersistence) {
	defer func() { _ = p.Close() }()

	key := "race:" + uuid.New().String()
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := p.CompareAndSwapClaimState(0, &types.ClaimState{Key: key, Claimed: true, Amount: uint64(i), Version: 1})
			if err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func testAllocationUnits(t *testing.T, p persistence.IDistributionPersistence) {
	defer func() { _ = p.Close() }()

	parent := newUnit("parent-"+uuid.New().String(), 1)
	require.NoError(t, p.CompareAndSwapAllocationUnits([]persistence.UnitUpdate{{ExpectedVersion: 0, Unit: parent}}))

	loaded, err := p.LoadAllocationUnit(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, parent, loaded)

	missing, err := p.LoadAllocationUnit("missing-" + uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, missing)

	childA := newUnit("a-"+uuid.New().String(), 2)
	childB := newUnit("b-"+uuid.New().String(), 3)
	invalidated := parent.Clone()
	invalidated.Status = types.AllocationStatusInvalidated
	invalidated.Version = 2

	// A stale parent version must reject the whole batch
	staleParent := invalidated.Clone()
	staleParent.Version = 6
	stale := []persistence.UnitUpdate{
		{ExpectedVersion: 0, Unit: childA},
		{ExpectedVersion: 5, Unit: staleParent},
	}
	require.ErrorIs(t, p.CompareAndSwapAllocationUnits(stale), persistence.ErrVersionConflict)
	missing, err = p.LoadAllocationUnit(childA.ID)
	require.NoError(t, err)
	assert.Nil(t, missing, "no unit of a rejected batch may be written")
	loaded, err = p.LoadAllocationUnit(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, parent, loaded, "a rejected batch must leave the parent untouched")

	batch := []persistence.UnitUpdate{
		{ExpectedVersion: 1, Unit: invalidated},
		{ExpectedVersion: 0, Unit: childA},
		{ExpectedVersion: 0, Unit: childB},
	}
	require.NoError(t, p.CompareAndSwapAllocationUnits(batch))

	loaded, err = p.LoadAllocationUnit(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AllocationStatusInvalidated, loaded.Status)

	units, err := p.ListAllocationUnits()
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, parent.ID, units[0].ID)
	assert.Equal(t, childA.ID, units[1].ID)
	assert.Equal(t, childB.ID, units[2].ID)
}

func testClose(t *testing.T, p persistence.IDistributionPersistence) {
	require.NoError(t, p.HealthCheck())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close must be idempotent")

	require.Error(t, p.HealthCheck())
	_, err := p.LoadDistributionEvent(common.HexToHash("0x01"))
	require.Error(t, err)
	require.Error(t, p.CompareAndSwapClaimState(0, &types.ClaimState{Key: "k", Version: 1}))
}

func newUnit(id string, createdAt int64) *types.AllocationUnit {
	return &types.AllocationUnit{
		ID:                id,
		EventID:           common.HexToHash("0x01"),
		MerkleID:          7,
		Owner:             common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TotalAlloc:        1000,
		SlotClaimed:       []bool{true, false},
		SlotClaimedAmount: []uint64{100, 0},
		Status:            types.AllocationStatusActive,
		CreatedAt:         createdAt,
		Version:           1,
	}
}

// MustUniquePrefix returns a key prefix unique to the calling test.
func MustUniquePrefix(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("test-%s:", uuid.New().String())
}
