package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
)

// Environment variable names for distributor configuration
const (
	EnvDistPort            = "DIST_PORT"
	EnvDistPersistence     = "DIST_PERSISTENCE"
	EnvDistBadgerPath      = "DIST_BADGER_PATH"
	EnvDistRedisAddress    = "DIST_REDIS_ADDRESS"
	EnvDistRedisPassword   = "DIST_REDIS_PASSWORD"
	EnvDistRedisDB         = "DIST_REDIS_DB"
	EnvDistRedisPrefix     = "DIST_REDIS_PREFIX"
	EnvDistHashName        = "DIST_HASH_NAME"
	EnvDistFee             = "DIST_FEE"
	EnvDistFeeRecipient    = "DIST_FEE_RECIPIENT"
	EnvDistAdminJWTSecret  = "DIST_ADMIN_JWT_SECRET"
	EnvDistAdminJWKSURL    = "DIST_ADMIN_JWKS_URL"
	EnvDistAdminIssuer     = "DIST_ADMIN_ISSUER"
	EnvDistRedeemRateLimit = "DIST_REDEEM_RATE_LIMIT"
	EnvDistRedeemBurst     = "DIST_REDEEM_BURST"
	EnvDistVerbose         = "DIST_VERBOSE"
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// Defaults applied by the CLI when a flag is not set.
const (
	DefaultPort        = 8000
	DefaultRedisPrefix = "distributor:"
	DefaultRedeemBurst = 20

	// MinAdminSecretLength matches the HS256 key size.
	MinAdminSecretLength = 32
)

// DistributorConfig represents the complete configuration for a distributor server
type DistributorConfig struct {
	Port int `json:"port"`

	// Persistence
	PersistenceType PersistenceType `json:"persistence_type"`
	BadgerPath      string          `json:"badger_path,omitempty"`
	RedisAddress    string          `json:"redis_address,omitempty"`
	RedisPassword   string          `json:"-"`
	RedisDB         int             `json:"redis_db,omitempty"`
	RedisPrefix     string          `json:"redis_prefix,omitempty"`

	// Default hasher for events that do not name one
	HashName string `json:"hash_name"`

	// Native-token fee charged on every redemption and slot claim
	Fee          uint64 `json:"fee"`
	FeeRecipient string `json:"fee_recipient,omitempty"`

	// Admin authentication. At most one of secret and JWKS URL may be set; with
	// neither, admin routes are refused.
	AdminJWTSecret string `json:"-"`
	AdminJWKSURL   string `json:"admin_jwks_url,omitempty"`
	AdminIssuer    string `json:"admin_issuer,omitempty"`

	// Requests per second across redemption routes; zero disables limiting
	RedeemRateLimit float64 `json:"redeem_rate_limit"`
	RedeemBurst     int     `json:"redeem_burst"`

	Debug bool `json:"debug"`
}

// Validate validates the distributor configuration
func (c *DistributorConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}

	switch c.PersistenceType {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if c.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("badgerPath"), "badgerPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if c.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redisAddress is required for redis persistence"))
		}
		if c.RedisDB < 0 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redisDB"), c.RedisDB, "redisDB cannot be negative"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("persistenceType"), c.PersistenceType,
			[]string{PersistenceTypeMemory.String(), PersistenceTypeBadger.String(), PersistenceTypeRedis.String()}))
	}

	if _, err := hasher.ByName(c.HashName); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("hashName"), c.HashName, hasher.Names()))
	}

	if c.Fee > 0 {
		if c.FeeRecipient == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("feeRecipient"), "feeRecipient is required when a fee is set"))
		} else if !common.IsHexAddress(c.FeeRecipient) {
			allErrors = append(allErrors, field.Invalid(field.NewPath("feeRecipient"), c.FeeRecipient, "invalid address format"))
		}
	}

	if c.AdminJWTSecret != "" && c.AdminJWKSURL != "" {
		allErrors = append(allErrors, field.Forbidden(field.NewPath("adminJWKSURL"), "adminJWTSecret and adminJWKSURL are mutually exclusive"))
	}
	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < MinAdminSecretLength {
		allErrors = append(allErrors, field.Invalid(field.NewPath("adminJWTSecret"), "<redacted>",
			fmt.Sprintf("adminJWTSecret must be at least %d bytes", MinAdminSecretLength)))
	}
	if c.AdminJWKSURL != "" {
		if u, err := url.Parse(c.AdminJWKSURL); err != nil || u.Host == "" || !strings.HasPrefix(u.Scheme, "http") {
			allErrors = append(allErrors, field.Invalid(field.NewPath("adminJWKSURL"), c.AdminJWKSURL, "must be an http(s) URL"))
		}
	}

	if c.RedeemRateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("redeemRateLimit"), c.RedeemRateLimit, "redeemRateLimit cannot be negative"))
	}
	if c.RedeemRateLimit > 0 && c.RedeemBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("redeemBurst"), c.RedeemBurst, "redeemBurst must be at least 1 when rate limiting"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// FeeRecipientAddress returns the parsed fee recipient, or the zero address when unset.
func (c *DistributorConfig) FeeRecipientAddress() common.Address {
	if c.FeeRecipient == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.FeeRecipient)
}

// AdminEnabled reports whether any admin token verifier is configured.
func (c *DistributorConfig) AdminEnabled() bool {
	return c.AdminJWTSecret != "" || c.AdminJWKSURL != ""
}

// GetSupportedPersistenceTypesString returns supported backends for CLI help
func GetSupportedPersistenceTypesString() string {
	return strings.Join([]string{
		PersistenceTypeMemory.String(),
		PersistenceTypeBadger.String(),
		PersistenceTypeRedis.String(),
	}, ", ")
}
