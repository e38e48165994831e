package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence/memory"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

func newEvent() *types.DistributionEvent {
	return &types.DistributionEvent{
		EventID:    common.HexToHash("0x01"),
		Kind:       types.LeafKindFlat,
		MerkleRoot: common.HexToHash("0xfeed"),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	c := NewPersistentClient(memory.NewMemoryPersistence(nil), zap.NewNop())

	require.NoError(t, c.CreateDistributionEvent(ctx, newEvent()))

	event, err := c.GetDistributionEvent(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, types.EventStatusActive, event.Status)
	require.Equal(t, hasher.DefaultName, event.HashName)
	require.NotZero(t, event.CreatedAt)

	err = c.CreateDistributionEvent(ctx, newEvent())
	require.ErrorIs(t, err, ErrEventExists)

	_, err = c.GetDistributionEvent(ctx, common.HexToHash("0x02"))
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	c := NewPersistentClient(memory.NewMemoryPersistence(nil), zap.NewNop())

	testCases := []struct {
		name   string
		mutate func(e *types.DistributionEvent)
	}{
		{"Zero id", func(e *types.DistributionEvent) { e.EventID = common.Hash{} }},
		{"Zero root", func(e *types.DistributionEvent) { e.MerkleRoot = common.Hash{} }},
		{"Unknown kind", func(e *types.DistributionEvent) { e.Kind = "bogus" }},
		{"Unknown hasher", func(e *types.DistributionEvent) { e.HashName = "md5" }},
		{"Vesting without schedule", func(e *types.DistributionEvent) { e.Kind = types.LeafKindVestingAllocation }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEvent()
			tc.mutate(e)
			require.Error(t, c.CreateDistributionEvent(ctx, e))
		})
	}
}

func TestSetEventStatus(t *testing.T) {
	ctx := context.Background()
	c := NewPersistentClient(memory.NewMemoryPersistence(nil), zap.NewNop())
	require.NoError(t, c.CreateDistributionEvent(ctx, newEvent()))

	require.NoError(t, c.SetEventStatus(ctx, common.HexToHash("0x01"), false))
	event, err := c.GetDistributionEvent(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.False(t, event.IsActive())

	require.NoError(t, c.SetEventStatus(ctx, common.HexToHash("0x01"), true))
	event, err = c.GetDistributionEvent(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.True(t, event.IsActive())

	require.ErrorIs(t, c.SetEventStatus(ctx, common.HexToHash("0x09"), true), ErrEventNotFound)

	events, err := c.ListDistributionEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestDefaultHashName(t *testing.T) {
	ctx := context.Background()
	c := NewPersistentClient(memory.NewMemoryPersistence(nil), zap.NewNop())

	require.Error(t, c.SetDefaultHashName("md5"))
	require.NoError(t, c.SetDefaultHashName(hasher.NameSHA256))
	require.NoError(t, c.CreateDistributionEvent(ctx, newEvent()))

	event, err := c.GetDistributionEvent(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, hasher.NameSHA256, event.HashName)
}
