package memory

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// MemoryPersistence is an in-memory implementation of IDistributionPersistence.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	events map[common.Hash]*types.DistributionEvent
	claims map[string]*types.ClaimState
	units  map[string]*types.AllocationUnit

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Logs a warning since state does not survive a restart.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	if logger != nil {
		logger.Sugar().Warnw("Using in-memory persistence - ALL CLAIM STATE WILL BE LOST ON RESTART",
			"hint", "set DIST_PERSISTENCE_TYPE=badger or redis for production")
	}

	return &MemoryPersistence{
		events: make(map[common.Hash]*types.DistributionEvent),
		claims: make(map[string]*types.ClaimState),
		units:  make(map[string]*types.AllocationUnit),
	}
}

// InsertDistributionEvent stores a new event.
func (m *MemoryPersistence) InsertDistributionEvent(event *types.DistributionEvent) error {
	if event == nil {
		return fmt.Errorf("cannot save nil DistributionEvent")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	if _, exists := m.events[event.EventID]; exists {
		return fmt.Errorf("event %s: %w", event.EventID.Hex(), persistence.ErrAlreadyExists)
	}

	m.events[event.EventID] = copyEvent(event)
	return nil
}

// SaveDistributionEvent overwrites an existing event.
func (m *MemoryPersistence) SaveDistributionEvent(event *types.DistributionEvent) error {
	if event == nil {
		return fmt.Errorf("cannot save nil DistributionEvent")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	if _, exists := m.events[event.EventID]; !exists {
		return fmt.Errorf("event %s: %w", event.EventID.Hex(), persistence.ErrNotFound)
	}

	m.events[event.EventID] = copyEvent(event)
	return nil
}

// LoadDistributionEvent retrieves an event by ID.
func (m *MemoryPersistence) LoadDistributionEvent(eventID common.Hash) (*types.DistributionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	event, exists := m.events[eventID]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return copyEvent(event), nil
}

// ListDistributionEvents returns all events sorted by creation time.
func (m *MemoryPersistence) ListDistributionEvents() ([]*types.DistributionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	result := make([]*types.DistributionEvent, 0, len(m.events))
	for _, event := range m.events {
		result = append(result, copyEvent(event))
	}
	persistence.SortDistributionEvents(result)

	return result, nil
}

// LoadClaimState retrieves the state of a claim key.
func (m *MemoryPersistence) LoadClaimState(key string) (*types.ClaimState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	state, exists := m.claims[key]
	if !exists {
		return nil, nil
	}

	c := *state
	return &c, nil
}

// CompareAndSwapClaimState writes state if the stored version matches.
func (m *MemoryPersistence) CompareAndSwapClaimState(expectedVersion uint64, state *types.ClaimState) error {
	if err := persistence.ValidateClaimState(expectedVersion, state); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	var current uint64
	if existing, ok := m.claims[state.Key]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return fmt.Errorf("claim %s at version %d, expected %d: %w", state.Key, current, expectedVersion, persistence.ErrVersionConflict)
	}

	c := *state
	m.claims[state.Key] = &c
	return nil
}

// LoadAllocationUnit retrieves a unit by ID.
func (m *MemoryPersistence) LoadAllocationUnit(id string) (*types.AllocationUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	unit, exists := m.units[id]
	if !exists {
		return nil, nil
	}

	return unit.Clone(), nil
}

// CompareAndSwapAllocationUnits applies all updates or none.
func (m *MemoryPersistence) CompareAndSwapAllocationUnits(updates []persistence.UnitUpdate) error {
	if err := persistence.ValidateUnitUpdates(updates); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	for _, u := range updates {
		var current uint64
		if existing, ok := m.units[u.Unit.ID]; ok {
			current = existing.Version
		}
		if current != u.ExpectedVersion {
			return fmt.Errorf("allocation unit %s at version %d, expected %d: %w", u.Unit.ID, current, u.ExpectedVersion, persistence.ErrVersionConflict)
		}
	}

	for _, u := range updates {
		m.units[u.Unit.ID] = u.Unit.Clone()
	}
	return nil
}

// ListAllocationUnits returns every unit sorted by creation time.
func (m *MemoryPersistence) ListAllocationUnits() ([]*types.AllocationUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	result := make([]*types.AllocationUnit, 0, len(m.units))
	for _, unit := range m.units {
		result = append(result, unit.Clone())
	}
	persistence.SortAllocationUnits(result)

	return result, nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}

func copyEvent(event *types.DistributionEvent) *types.DistributionEvent {
	c := *event
	c.Schedule = append(types.VestingSchedule(nil), event.Schedule...)
	return &c
}
