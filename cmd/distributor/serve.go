package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/auth"
	"github.com/vaultlabs/merkle-distributor-go/pkg/collection/inMemoryCollection"
	"github.com/vaultlabs/merkle-distributor-go/pkg/config"
	"github.com/vaultlabs/merkle-distributor-go/pkg/distributor"
	"github.com/vaultlabs/merkle-distributor-go/pkg/logger"
	"github.com/vaultlabs/merkle-distributor-go/pkg/node"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence/badger"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence/memory"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence/redis"
	"github.com/vaultlabs/merkle-distributor-go/pkg/registry"
	"github.com/vaultlabs/merkle-distributor-go/pkg/transfer/inMemoryLedger"
)

const jwksRefreshInterval = 15 * time.Minute

func runServe(c *cli.Context) error {
	// Create logger
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseDistributorConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := newPersistence(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}
	// once started, the node owns the store and closes it in Stop
	started := false
	defer func() {
		if started {
			return
		}
		if closeErr := store.Close(); closeErr != nil {
			l.Sugar().Errorw("Failed to close persistence", "error", closeErr)
		}
	}()

	reg := registry.NewPersistentClient(store, l)
	if err := reg.SetDefaultHashName(cfg.HashName); err != nil {
		return fmt.Errorf("invalid default hasher: %w", err)
	}

	ledger := inMemoryLedger.NewInMemoryLedger(l)
	if err := seedBalances(ledger, c.StringSlice("fund")); err != nil {
		return err
	}
	nfts := inMemoryCollection.NewInMemoryCollection()
	if err := seedOwners(nfts, c.StringSlice("nft")); err != nil {
		return err
	}

	var opts []distributor.Option
	if cfg.Fee > 0 {
		opts = append(opts, distributor.WithFee(cfg.Fee, cfg.FeeRecipientAddress()))
	}
	d := distributor.NewDistributor(reg, store, ledger, nfts, l, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := newTokenVerifier(ctx, cfg, l)
	if err != nil {
		return err
	}

	deps := node.Dependencies{
		Distributor: d,
		Registry:    reg,
		Store:       store,
	}
	// only set when configured so the interfaces stay nil. Admin and caller
	// tokens share the key set and differ by audience.
	if verifier != nil {
		deps.AdminVerifier = verifier
		deps.CallerVerifier = verifier
	}

	n, err := node.NewNode(node.Config{
		Port:            cfg.Port,
		RedeemRateLimit: cfg.RedeemRateLimit,
		RedeemBurst:     cfg.RedeemBurst,
		Logger:          l,
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	l.Sugar().Infow("Starting distributor",
		"port", cfg.Port,
		"persistence", cfg.PersistenceType,
		"hash", cfg.HashName,
		"fee", cfg.Fee,
		"admin_enabled", cfg.AdminEnabled(),
	)
	if err := n.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	started = true

	<-ctx.Done()
	l.Sugar().Info("Shutting down distributor")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Duration("shutdown-timeout"))
	defer cancel()
	return n.Stop(shutdownCtx)
}

func newPersistence(cfg *config.DistributorConfig, l *zap.Logger) (persistence.IDistributionPersistence, error) {
	switch cfg.PersistenceType {
	case config.PersistenceTypeBadger:
		return badger.NewBadgerPersistence(cfg.BadgerPath, l)
	case config.PersistenceTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
		}, l)
	default:
		return memory.NewMemoryPersistence(l), nil
	}
}

// newTokenVerifier builds the verifier for admin and caller tokens, or nil when
// neither a secret nor a JWKS URL is configured.
func newTokenVerifier(ctx context.Context, cfg *config.DistributorConfig, l *zap.Logger) (*auth.TokenVerifier, error) {
	switch {
	case cfg.AdminJWTSecret != "":
		v, err := auth.NewHMACVerifier([]byte(cfg.AdminJWTSecret), cfg.AdminIssuer, l)
		if err != nil {
			return nil, fmt.Errorf("failed to create token verifier: %w", err)
		}
		return v, nil
	case cfg.AdminJWKSURL != "":
		v, err := auth.NewJWKSVerifier(ctx, cfg.AdminJWKSURL, jwksRefreshInterval, cfg.AdminIssuer, l)
		if err != nil {
			return nil, fmt.Errorf("failed to create token verifier: %w", err)
		}
		return v, nil
	default:
		return nil, nil
	}
}

// seedBalances parses token:account:amount triples.
func seedBalances(ledger *inMemoryLedger.InMemoryLedger, entries []string) error {
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
			return fmt.Errorf("invalid --fund value %q, want token:account:amount", entry)
		}
		amount, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --fund amount %q: %w", parts[2], err)
		}
		if err := ledger.Mint(common.HexToAddress(parts[0]), common.HexToAddress(parts[1]), amount); err != nil {
			return fmt.Errorf("failed to fund %s: %w", parts[1], err)
		}
	}
	return nil
}

// seedOwners parses collection:tokenID:owner triples.
func seedOwners(nfts *inMemoryCollection.InMemoryCollection, entries []string) error {
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[2]) {
			return fmt.Errorf("invalid --nft value %q, want collection:tokenID:owner", entry)
		}
		tokenID, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --nft token id %q: %w", parts[1], err)
		}
		nfts.SetOwner(common.HexToAddress(parts[0]), tokenID, common.HexToAddress(parts[2]))
	}
	return nil
}
