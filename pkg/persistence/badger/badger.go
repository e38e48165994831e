package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// Key prefixes for namespacing
const (
	keyPrefixEvent       = "event:"
	keyPrefixClaim       = "claim:"
	keyPrefixUnit        = "unit:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerPersistence is a durable persistence implementation using Badger.
// Conditional writes run inside badger transactions; a commit that loses an
// optimistic-concurrency race surfaces as persistence.ErrVersionConflict.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func eventKey(id common.Hash) []byte { return []byte(keyPrefixEvent + id.Hex()) }
func claimKey(key string) []byte     { return []byte(keyPrefixClaim + key) }
func unitKey(id string) []byte       { return []byte(keyPrefixUnit + id) }

// getValue copies the value under key, returning nil when the key is absent.
func getValue(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var data []byte
	err = item.Value(func(val []byte) error {
		data = append([]byte{}, val...) // Copy value
		return nil
	})
	return data, err
}

func (b *BadgerPersistence) view(key []byte) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, key)
		return err
	})
	return data, err
}

// update runs fn in a read-write transaction and maps commit conflicts to
// persistence.ErrVersionConflict.
func (b *BadgerPersistence) update(fn func(txn *badgerdb.Txn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	err := b.db.Update(fn)
	if errors.Is(err, badgerdb.ErrConflict) {
		return fmt.Errorf("concurrent transaction committed first: %w", persistence.ErrVersionConflict)
	}
	return err
}

func (b *BadgerPersistence) scanPrefix(prefix string, each func(val []byte) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(each); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertDistributionEvent stores a new event
func (b *BadgerPersistence) InsertDistributionEvent(event *types.DistributionEvent) error {
	data, err := persistence.MarshalDistributionEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal DistributionEvent: %w", err)
	}

	return b.update(func(txn *badgerdb.Txn) error {
		existing, err := getValue(txn, eventKey(event.EventID))
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("event %s: %w", event.EventID.Hex(), persistence.ErrAlreadyExists)
		}
		return txn.Set(eventKey(event.EventID), data)
	})
}

// SaveDistributionEvent overwrites an existing event
func (b *BadgerPersistence) SaveDistributionEvent(event *types.DistributionEvent) error {
	data, err := persistence.MarshalDistributionEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal DistributionEvent: %w", err)
	}

	return b.update(func(txn *badgerdb.Txn) error {
		existing, err := getValue(txn, eventKey(event.EventID))
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("event %s: %w", event.EventID.Hex(), persistence.ErrNotFound)
		}
		return txn.Set(eventKey(event.EventID), data)
	})
}

// LoadDistributionEvent retrieves an event
func (b *BadgerPersistence) LoadDistributionEvent(eventID common.Hash) (*types.DistributionEvent, error) {
	data, err := b.view(eventKey(eventID))
	if err != nil {
		return nil, fmt.Errorf("failed to load DistributionEvent: %w", err)
	}
	if data == nil {
		return nil, nil // Not found
	}
	return persistence.UnmarshalDistributionEvent(data)
}

// ListDistributionEvents returns all events sorted by creation time
func (b *BadgerPersistence) ListDistributionEvents() ([]*types.DistributionEvent, error) {
	events := make([]*types.DistributionEvent, 0)
	err := b.scanPrefix(keyPrefixEvent, func(val []byte) error {
		event, err := persistence.UnmarshalDistributionEvent(val)
		if err != nil {
			return err
		}
		events = append(events, event)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list DistributionEvents: %w", err)
	}

	persistence.SortDistributionEvents(events)
	return events, nil
}

// LoadClaimState retrieves the state of a claim key
func (b *BadgerPersistence) LoadClaimState(key string) (*types.ClaimState, error) {
	data, err := b.view(claimKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to load ClaimState: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalClaimState(data)
}

// CompareAndSwapClaimState writes state if the stored version matches
func (b *BadgerPersistence) CompareAndSwapClaimState(expectedVersion uint64, state *types.ClaimState) error {
	if err := persistence.ValidateClaimState(expectedVersion, state); err != nil {
		return err
	}
	data, err := persistence.MarshalClaimState(state)
	if err != nil {
		return err
	}

	return b.update(func(txn *badgerdb.Txn) error {
		current, err := b.claimVersion(txn, state.Key)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return fmt.Errorf("claim %s at version %d, expected %d: %w", state.Key, current, expectedVersion, persistence.ErrVersionConflict)
		}
		return txn.Set(claimKey(state.Key), data)
	})
}

func (b *BadgerPersistence) claimVersion(txn *badgerdb.Txn, key string) (uint64, error) {
	data, err := getValue(txn, claimKey(key))
	if err != nil || data == nil {
		return 0, err
	}
	existing, err := persistence.UnmarshalClaimState(data)
	if err != nil {
		return 0, err
	}
	return existing.Version, nil
}

// LoadAllocationUnit retrieves a unit by ID
func (b *BadgerPersistence) LoadAllocationUnit(id string) (*types.AllocationUnit, error) {
	data, err := b.view(unitKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load AllocationUnit: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalAllocationUnit(data)
}

// CompareAndSwapAllocationUnits applies all updates in a single transaction
func (b *BadgerPersistence) CompareAndSwapAllocationUnits(updates []persistence.UnitUpdate) error {
	if err := persistence.ValidateUnitUpdates(updates); err != nil {
		return err
	}

	encoded := make([][]byte, len(updates))
	for i, u := range updates {
		data, err := persistence.MarshalAllocationUnit(u.Unit)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	return b.update(func(txn *badgerdb.Txn) error {
		for _, u := range updates {
			var current uint64
			data, err := getValue(txn, unitKey(u.Unit.ID))
			if err != nil {
				return err
			}
			if data != nil {
				existing, err := persistence.UnmarshalAllocationUnit(data)
				if err != nil {
					return err
				}
				current = existing.Version
			}
			if current != u.ExpectedVersion {
				return fmt.Errorf("allocation unit %s at version %d, expected %d: %w", u.Unit.ID, current, u.ExpectedVersion, persistence.ErrVersionConflict)
			}
		}
		for i, u := range updates {
			if err := txn.Set(unitKey(u.Unit.ID), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListAllocationUnits returns every unit sorted by creation time
func (b *BadgerPersistence) ListAllocationUnits() ([]*types.AllocationUnit, error) {
	units := make([]*types.AllocationUnit, 0)
	err := b.scanPrefix(keyPrefixUnit, func(val []byte) error {
		unit, err := persistence.UnmarshalAllocationUnit(val)
		if err != nil {
			return err
		}
		units = append(units, unit)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list AllocationUnits: %w", err)
	}

	persistence.SortAllocationUnits(units)
	return units, nil
}

// Close cleanly shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	// Stop GC goroutine
	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		return nil
	})
}
