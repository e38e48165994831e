package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence/persistencetest"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

func TestMemoryPersistence_Suite(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.IDistributionPersistence {
		return NewMemoryPersistence(nil)
	})
}

func TestMemoryPersistence_DeepCopy(t *testing.T) {
	mp := NewMemoryPersistence(nil)
	defer func() { _ = mp.Close() }()

	event := persistencetest.NewEvent(1)
	event.Schedule = types.VestingSchedule{{Timestamp: 1, PercentBasisPoints: 1}}
	require.NoError(t, mp.InsertDistributionEvent(event))

	// Mutating the caller's copy must not leak into storage
	event.Schedule[0].Timestamp = 99
	event.Status = types.EventStatusDisabled

	loaded, err := mp.LoadDistributionEvent(event.EventID)
	require.NoError(t, err)
	require.Equal(t, int64(1), loaded.Schedule[0].Timestamp)
	require.Equal(t, types.EventStatusActive, loaded.Status)

	// Mutating a loaded copy must not leak either
	loaded.Schedule[0].Timestamp = 50
	again, err := mp.LoadDistributionEvent(event.EventID)
	require.NoError(t, err)
	require.Equal(t, int64(1), again.Schedule[0].Timestamp)
}
