package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/vaultlabs/merkle-distributor-go/pkg/auth"
	"github.com/vaultlabs/merkle-distributor-go/pkg/clients/distributorClient"
	"github.com/vaultlabs/merkle-distributor-go/pkg/config"
	"github.com/vaultlabs/merkle-distributor-go/pkg/logger"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
	"github.com/vaultlabs/merkle-distributor-go/pkg/whitelist"
)

const requestTimeout = 30 * time.Second

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint an HS256 admin token, or a caller token with --caller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "secret",
				Usage:    "Shared admin secret",
				EnvVars:  []string{config.EnvDistAdminJWTSecret},
				Required: true,
			},
			&cli.StringFlag{
				Name:  "subject",
				Value: "operator",
				Usage: "Token subject",
			},
			&cli.StringFlag{
				Name:  "caller",
				Usage: "Issue a caller token for this address instead of an admin token",
			},
			&cli.StringFlag{
				Name:    "issuer",
				Usage:   "Token issuer",
				EnvVars: []string{config.EnvDistAdminIssuer},
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Value: time.Hour,
				Usage: "Token lifetime",
			},
		},
		Action: func(c *cli.Context) error {
			secret := []byte(c.String("secret"))
			var (
				token string
				err   error
			)
			if caller := c.String("caller"); caller != "" {
				if !common.IsHexAddress(caller) {
					return fmt.Errorf("invalid --caller address %q", caller)
				}
				token, err = auth.NewCallerToken(secret, common.HexToAddress(caller), c.String("issuer"), c.Duration("ttl"))
			} else {
				token, err = auth.NewHMACToken(secret, c.String("subject"), c.String("issuer"), c.Duration("ttl"))
			}
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

func eventCommand() *cli.Command {
	return &cli.Command{
		Name:  "event",
		Usage: "Administer distribution events on a running node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Value: fmt.Sprintf("http://localhost:%d", config.DefaultPort),
				Usage: "Node base URL",
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Admin bearer token",
				EnvVars: []string{"DIST_ADMIN_TOKEN"},
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Register an event committing to a tree file's root",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tree", Usage: "Tree file written by tree build", Required: true},
					&cli.StringFlag{Name: "id", Usage: "Event ID (32-byte hex)", Required: true},
					&cli.StringFlag{Name: "receiving-token", Usage: "Token paid out to claimants", Required: true},
					&cli.StringFlag{Name: "sending-token", Usage: "Token paid in by claimants"},
					&cli.StringFlag{Name: "vault", Usage: "Account funding the receiving legs", Required: true},
					&cli.StringFlag{Name: "treasury", Usage: "Account collecting the sending legs"},
					&cli.StringFlag{Name: "schedule", Usage: "Vesting schedule JSON file (vesting events only)"},
					&cli.Uint64Flag{Name: "min-split-rate", Usage: "Lowest split rate in basis points"},
					&cli.Uint64Flag{Name: "max-split-rate", Value: types.BasisPoints, Usage: "Highest split rate in basis points"},
				},
				Action: createEventCommand,
			},
			{
				Name:      "status",
				Usage:     "Enable or disable an event",
				ArgsUsage: "<event-id> <active|disabled>",
				Action:    setEventStatusCommand,
			},
			{
				Name:   "list",
				Usage:  "List registered events",
				Action: listEventsCommand,
			},
		},
	}
}

func createClient(c *cli.Context) (*distributorClient.Client, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return distributorClient.NewClient(&distributorClient.ClientConfig{
		BaseURL:    c.String("server"),
		AdminToken: c.String("token"),
		Logger:     l,
	})
}

func createEventCommand(c *cli.Context) error {
	tf, err := whitelist.LoadTreeFile(c.String("tree"))
	if err != nil {
		return err
	}
	for _, name := range []string{"receiving-token", "sending-token", "vault", "treasury"} {
		if v := c.String(name); v != "" && !common.IsHexAddress(v) {
			return fmt.Errorf("invalid --%s address %q", name, v)
		}
	}

	req := &types.CreateEventRequest{
		EventID:        common.HexToHash(c.String("id")),
		Kind:           tf.Kind,
		HashName:       tf.HashName,
		MerkleRoot:     tf.Root,
		ReceivingToken: common.HexToAddress(c.String("receiving-token")),
		SendingToken:   common.HexToAddress(c.String("sending-token")),
		Vault:          common.HexToAddress(c.String("vault")),
		Treasury:       common.HexToAddress(c.String("treasury")),
	}
	if tf.Kind == types.LeafKindVestingAllocation {
		path := c.String("schedule")
		if path == "" {
			return fmt.Errorf("--schedule is required for vesting events")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read schedule %s", path)
		}
		if err := json.Unmarshal(data, &req.Schedule); err != nil {
			return errors.Wrapf(err, "failed to parse schedule %s", path)
		}
		req.MinSplitRate = c.Uint64("min-split-rate")
		req.MaxSplitRate = c.Uint64("max-split-rate")
	}

	client, err := createClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	event, err := client.CreateEvent(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(event)
}

func setEventStatusCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("requires 2 arguments: event status <event-id> <active|disabled>")
	}
	var active bool
	switch c.Args().Get(1) {
	case "active":
		active = true
	case "disabled":
	default:
		return fmt.Errorf("status must be active or disabled, got %q", c.Args().Get(1))
	}

	client, err := createClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	event, err := client.SetEventStatus(ctx, common.HexToHash(c.Args().Get(0)), active)
	if err != nil {
		return err
	}
	return printJSON(event)
}

func listEventsCommand(c *cli.Context) error {
	client, err := createClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()

	events, err := client.ListEvents(ctx)
	if err != nil {
		return err
	}
	return printJSON(events)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal output")
	}
	fmt.Println(string(out))
	return nil
}
