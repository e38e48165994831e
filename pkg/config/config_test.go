package config

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *DistributorConfig {
	return &DistributorConfig{
		Port:            DefaultPort,
		PersistenceType: PersistenceTypeMemory,
		HashName:        "keccak256",
		RedeemRateLimit: 10,
		RedeemBurst:     DefaultRedeemBurst,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.HashName = ""
	cfg.RedeemRateLimit = 0
	cfg.RedeemBurst = 0
	assert.NoError(t, cfg.Validate(), "empty hasher falls back to the default and zero rate disables limiting")
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *DistributorConfig)
		field  string
	}{
		{"port", func(c *DistributorConfig) { c.Port = 0 }, "port"},
		{"persistence type", func(c *DistributorConfig) { c.PersistenceType = "postgres" }, "persistenceType"},
		{"badger path", func(c *DistributorConfig) { c.PersistenceType = PersistenceTypeBadger }, "badgerPath"},
		{"redis address", func(c *DistributorConfig) { c.PersistenceType = PersistenceTypeRedis }, "redisAddress"},
		{"hasher", func(c *DistributorConfig) { c.HashName = "md5" }, "hashName"},
		{"fee without recipient", func(c *DistributorConfig) { c.Fee = 1 }, "feeRecipient"},
		{"fee recipient format", func(c *DistributorConfig) { c.Fee = 1; c.FeeRecipient = "0x1234" }, "feeRecipient"},
		{"short secret", func(c *DistributorConfig) { c.AdminJWTSecret = "short" }, "adminJWTSecret"},
		{"secret and jwks", func(c *DistributorConfig) {
			c.AdminJWTSecret = strings.Repeat("s", MinAdminSecretLength)
			c.AdminJWKSURL = "https://auth.example.com/.well-known/jwks.json"
		}, "adminJWKSURL"},
		{"jwks url", func(c *DistributorConfig) { c.AdminJWKSURL = "not a url" }, "adminJWKSURL"},
		{"negative rate", func(c *DistributorConfig) { c.RedeemRateLimit = -1 }, "redeemRateLimit"},
		{"burst", func(c *DistributorConfig) { c.RedeemBurst = 0 }, "redeemBurst"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 70000
	cfg.HashName = "md5"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "hashName")
}

func TestSecretIsRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.AdminJWTSecret = "hunter2"

	err := cfg.Validate()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestFeeRecipientAddress(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, common.Address{}, cfg.FeeRecipientAddress())

	cfg.FeeRecipient = "0x00000000000000000000000000000000000000fe"
	assert.Equal(t, common.HexToAddress("0xfe"), cfg.FeeRecipientAddress())
}

func TestAdminEnabled(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.AdminEnabled())

	cfg.AdminJWKSURL = "https://auth.example.com/jwks"
	assert.True(t, cfg.AdminEnabled())
}
