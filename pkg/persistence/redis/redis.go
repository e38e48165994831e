package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixEvent       = "dist:event:"
	keyPrefixClaim       = "dist:claim:"
	keyPrefixUnit        = "dist:unit:"
	keySchemaVersion     = "dist:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Key sets for listing operations (Redis doesn't support prefix iteration natively)
	keySetEvents = "dist:events:index"
	keySetUnits  = "dist:units:index"

	// maxTxRetries bounds how often an event write is retried after losing a WATCH race
	maxTxRetries = 3
)

// RedisPersistence is a persistence implementation using Redis, suitable for running
// several distributor processes against shared claim state. Conditional writes use
// WATCH/MULTI/EXEC optimistic transactions.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups),
	// e.g. "myapp:" gives keys like "myapp:dist:claim:...".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if errors.Is(err, redis.Nil) {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

func (r *RedisPersistence) checkOpen() error {
	if r.closed {
		return persistence.ErrClosed
	}
	return nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// getBytes returns nil when the key is absent.
func getBytes(ctx context.Context, c getter, key string) ([]byte, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// watch runs fn as an optimistic transaction over keys. Losing the race on a watched
// key surfaces as persistence.ErrVersionConflict.
func (r *RedisPersistence) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("watched keys kept changing: %w", persistence.ErrVersionConflict)
}

// InsertDistributionEvent stores a new event
func (r *RedisPersistence) InsertDistributionEvent(event *types.DistributionEvent) error {
	data, err := persistence.MarshalDistributionEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal DistributionEvent: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	ctx := context.Background()
	key := r.prefixKey(keyPrefixEvent + event.EventID.Hex())

	return r.watch(ctx, func(tx *redis.Tx) error {
		existing, err := getBytes(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("event %s: %w", event.EventID.Hex(), persistence.ErrAlreadyExists)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, r.prefixKey(keySetEvents), event.EventID.Hex())
			return nil
		})
		return err
	}, key)
}

// SaveDistributionEvent overwrites an existing event
func (r *RedisPersistence) SaveDistributionEvent(event *types.DistributionEvent) error {
	data, err := persistence.MarshalDistributionEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal DistributionEvent: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	ctx := context.Background()
	key := r.prefixKey(keyPrefixEvent + event.EventID.Hex())

	return r.watch(ctx, func(tx *redis.Tx) error {
		existing, err := getBytes(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("event %s: %w", event.EventID.Hex(), persistence.ErrNotFound)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

// LoadDistributionEvent retrieves an event
func (r *RedisPersistence) LoadDistributionEvent(eventID common.Hash) (*types.DistributionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	data, err := getBytes(context.Background(), r.client, r.prefixKey(keyPrefixEvent+eventID.Hex()))
	if err != nil {
		return nil, fmt.Errorf("failed to load DistributionEvent: %w", err)
	}
	if data == nil {
		return nil, nil // Not found
	}
	return persistence.UnmarshalDistributionEvent(data)
}

// ListDistributionEvents returns all events sorted by creation time
func (r *RedisPersistence) ListDistributionEvents() ([]*types.DistributionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	values, err := r.loadIndexed(context.Background(), keySetEvents, keyPrefixEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to list DistributionEvents: %w", err)
	}

	events := make([]*types.DistributionEvent, 0, len(values))
	for _, data := range values {
		event, err := persistence.UnmarshalDistributionEvent(data)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	persistence.SortDistributionEvents(events)
	return events, nil
}

// loadIndexed fetches every value whose id is a member of the given index set.
func (r *RedisPersistence) loadIndexed(ctx context.Context, indexKey, valuePrefix string) ([][]byte, error) {
	ids, err := r.client.SMembers(ctx, r.prefixKey(indexKey)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return [][]byte{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.prefixKey(valuePrefix + id)
	}

	raw, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	values := make([][]byte, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue // index entry without a value
		}
		values = append(values, []byte(s))
	}
	return values, nil
}

// LoadClaimState retrieves the state of a claim key
func (r *RedisPersistence) LoadClaimState(key string) (*types.ClaimState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	data, err := getBytes(context.Background(), r.client, r.prefixKey(keyPrefixClaim+key))
	if err != nil {
		return nil, fmt.Errorf("failed to load ClaimState: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalClaimState(data)
}

// CompareAndSwapClaimState writes state if the stored version matches
func (r *RedisPersistence) CompareAndSwapClaimState(expectedVersion uint64, state *types.ClaimState) error {
	if err := persistence.ValidateClaimState(expectedVersion, state); err != nil {
		return err
	}
	data, err := persistence.MarshalClaimState(state)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	ctx := context.Background()
	key := r.prefixKey(keyPrefixClaim + state.Key)

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		var current uint64
		existing, err := getBytes(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			cs, err := persistence.UnmarshalClaimState(existing)
			if err != nil {
				return err
			}
			current = cs.Version
		}
		if current != expectedVersion {
			return fmt.Errorf("claim %s at version %d, expected %d: %w", state.Key, current, expectedVersion, persistence.ErrVersionConflict)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	// The only watched key is the claim itself, so a failed EXEC means another
	// writer moved the version
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("claim %s changed concurrently: %w", state.Key, persistence.ErrVersionConflict)
	}
	return err
}

// LoadAllocationUnit retrieves a unit by ID
func (r *RedisPersistence) LoadAllocationUnit(id string) (*types.AllocationUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	data, err := getBytes(context.Background(), r.client, r.prefixKey(keyPrefixUnit+id))
	if err != nil {
		return nil, fmt.Errorf("failed to load AllocationUnit: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalAllocationUnit(data)
}

// CompareAndSwapAllocationUnits applies all updates in one MULTI/EXEC block
func (r *RedisPersistence) CompareAndSwapAllocationUnits(updates []persistence.UnitUpdate) error {
	if err := persistence.ValidateUnitUpdates(updates); err != nil {
		return err
	}

	keys := make([]string, len(updates))
	encoded := make([][]byte, len(updates))
	for i, u := range updates {
		data, err := persistence.MarshalAllocationUnit(u.Unit)
		if err != nil {
			return err
		}
		keys[i] = r.prefixKey(keyPrefixUnit + u.Unit.ID)
		encoded[i] = data
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	ctx := context.Background()
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		for i, u := range updates {
			var current uint64
			existing, err := getBytes(ctx, tx, keys[i])
			if err != nil {
				return err
			}
			if existing != nil {
				unit, err := persistence.UnmarshalAllocationUnit(existing)
				if err != nil {
					return err
				}
				current = unit.Version
			}
			if current != u.ExpectedVersion {
				return fmt.Errorf("allocation unit %s at version %d, expected %d: %w", u.Unit.ID, current, u.ExpectedVersion, persistence.ErrVersionConflict)
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, u := range updates {
				pipe.Set(ctx, keys[i], encoded[i], 0)
				pipe.SAdd(ctx, r.prefixKey(keySetUnits), u.Unit.ID)
			}
			return nil
		})
		return err
	}, keys...)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("allocation units changed concurrently: %w", persistence.ErrVersionConflict)
	}
	return err
}

// ListAllocationUnits returns every unit sorted by creation time
func (r *RedisPersistence) ListAllocationUnits() ([]*types.AllocationUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	values, err := r.loadIndexed(context.Background(), keySetUnits, keyPrefixUnit)
	if err != nil {
		return nil, fmt.Errorf("failed to list AllocationUnits: %w", err)
	}

	units := make([]*types.AllocationUnit, 0, len(values))
	for _, data := range values {
		unit, err := persistence.UnmarshalAllocationUnit(data)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}

	persistence.SortAllocationUnits(units)
	return units, nil
}

// Close cleanly shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil // Already closed, idempotent
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
