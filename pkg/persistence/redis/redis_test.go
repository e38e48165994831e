package redis

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultlabs/merkle-distributor-go/pkg/logger"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence/persistencetest"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test if Redis is not available. Every call gets its own key
// prefix so tests never see each other's data.
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: persistencetest.MustUniquePrefix(t),
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}

	return rp
}

func TestRedisPersistence_Suite(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.IDistributionPersistence {
		return requireRedis(t)
	})
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
	require.Contains(t, err.Error(), "address cannot be empty")
}

func TestRedisPersistence_PrefixKey(t *testing.T) {
	rp := &RedisPersistence{keyPrefix: "tenant:"}
	require.Equal(t, "tenant:dist:claim:abc", rp.prefixKey(keyPrefixClaim+"abc"))

	rp = &RedisPersistence{}
	require.Equal(t, "dist:claim:abc", rp.prefixKey(keyPrefixClaim+"abc"))
}
