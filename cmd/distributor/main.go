package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vaultlabs/merkle-distributor-go/pkg/config"
	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
)

func main() {
	app := &cli.App{
		Name:  "distributor",
		Usage: "Merkle distribution engine",
		Description: `Builds Merkle distribution trees from whitelists and serves redemptions against them.

Tree tooling works offline on whitelist and tree files. The serve command runs the
redemption node; the event commands administer a running node.`,
		Version: "1.0.0",
		Commands: []*cli.Command{
			serveCommand(),
			treeCommand(),
			eventCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the redemption node",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvDistPort},
			},
			&cli.StringFlag{
				Name:    "persistence",
				Value:   config.PersistenceTypeMemory.String(),
				Usage:   fmt.Sprintf("Persistence backend: %s", config.GetSupportedPersistenceTypesString()),
				EnvVars: []string{config.EnvDistPersistence},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Usage:   "Data directory for badger persistence",
				EnvVars: []string{config.EnvDistBadgerPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis host:port for redis persistence",
				EnvVars: []string{config.EnvDistRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvDistRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvDistRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-prefix",
				Value:   config.DefaultRedisPrefix,
				Usage:   "Prefix for every redis key",
				EnvVars: []string{config.EnvDistRedisPrefix},
			},
			&cli.StringFlag{
				Name:    "hash",
				Value:   hasher.DefaultName,
				Usage:   fmt.Sprintf("Hasher recorded for events that do not name one: %v", hasher.Names()),
				EnvVars: []string{config.EnvDistHashName},
			},
			&cli.Uint64Flag{
				Name:    "fee",
				Usage:   "Native-token fee charged per redemption and slot claim",
				EnvVars: []string{config.EnvDistFee},
			},
			&cli.StringFlag{
				Name:    "fee-recipient",
				Usage:   "Address receiving fees",
				EnvVars: []string{config.EnvDistFeeRecipient},
			},
			&cli.StringFlag{
				Name:    "admin-jwt-secret",
				Usage:   "HS256 secret for admin tokens",
				EnvVars: []string{config.EnvDistAdminJWTSecret},
			},
			&cli.StringFlag{
				Name:    "admin-jwks-url",
				Usage:   "JWKS endpoint for admin tokens",
				EnvVars: []string{config.EnvDistAdminJWKSURL},
			},
			&cli.StringFlag{
				Name:    "admin-issuer",
				Usage:   "Required issuer of admin tokens",
				EnvVars: []string{config.EnvDistAdminIssuer},
			},
			&cli.Float64Flag{
				Name:    "redeem-rate-limit",
				Value:   50,
				Usage:   "Redemption requests per second (0 disables limiting)",
				EnvVars: []string{config.EnvDistRedeemRateLimit},
			},
			&cli.IntFlag{
				Name:    "redeem-burst",
				Value:   config.DefaultRedeemBurst,
				Usage:   "Redemption burst size",
				EnvVars: []string{config.EnvDistRedeemBurst},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvDistVerbose},
			},
			&cli.StringSliceFlag{
				Name:  "fund",
				Usage: "Seed a ledger balance as token:account:amount (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "nft",
				Usage: "Seed an NFT owner as collection:tokenID:owner (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Value: 15 * time.Second,
				Usage: "Time allowed for in-flight requests on shutdown",
			},
		},
		Action: runServe,
	}
}

func parseDistributorConfig(c *cli.Context) *config.DistributorConfig {
	return &config.DistributorConfig{
		Port:            c.Int("port"),
		PersistenceType: config.PersistenceType(c.String("persistence")),
		BadgerPath:      c.String("badger-path"),
		RedisAddress:    c.String("redis-address"),
		RedisPassword:   c.String("redis-password"),
		RedisDB:         c.Int("redis-db"),
		RedisPrefix:     c.String("redis-prefix"),
		HashName:        c.String("hash"),
		Fee:             c.Uint64("fee"),
		FeeRecipient:    c.String("fee-recipient"),
		AdminJWTSecret:  c.String("admin-jwt-secret"),
		AdminJWKSURL:    c.String("admin-jwks-url"),
		AdminIssuer:     c.String("admin-issuer"),
		RedeemRateLimit: c.Float64("redeem-rate-limit"),
		RedeemBurst:     c.Int("redeem-burst"),
		Debug:           c.Bool("verbose"),
	}
}
