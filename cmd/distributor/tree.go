package main

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
	"github.com/vaultlabs/merkle-distributor-go/pkg/util"
	"github.com/vaultlabs/merkle-distributor-go/pkg/whitelist"
)

func treeCommand() *cli.Command {
	treeFlag := &cli.StringFlag{
		Name:     "tree",
		Usage:    "Tree file written by tree build",
		Required: true,
	}
	indexFlag := &cli.UintFlag{
		Name:     "index",
		Usage:    "Whitelist entry index",
		Required: true,
	}

	return &cli.Command{
		Name:  "tree",
		Usage: "Build distribution trees and proofs from whitelists",
		Subcommands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Build a tree file from a whitelist",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "whitelist",
						Aliases:  []string{"w"},
						Usage:    "Whitelist JSON file",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Output tree file",
						Required: true,
					},
				},
				Action: buildTreeCommand,
			},
			{
				Name:   "proof",
				Usage:  "Print the proof for one entry",
				Flags:  []cli.Flag{treeFlag, indexFlag, &cli.BoolFlag{Name: "calldata", Usage: "Also print the ABI-encoded bytes32[] proof"}},
				Action: proofCommand,
			},
			{
				Name:   "verify",
				Usage:  "Check that an entry's proof folds up to the tree root",
				Flags:  []cli.Flag{treeFlag, indexFlag},
				Action: verifyCommand,
			},
		},
	}
}

func buildTreeCommand(c *cli.Context) error {
	wl, err := whitelist.LoadFile(c.String("whitelist"))
	if err != nil {
		return err
	}
	tf, err := wl.Export()
	if err != nil {
		return errors.Wrap(err, "failed to export tree")
	}
	if err := tf.WriteFile(c.String("out")); err != nil {
		return err
	}

	fmt.Printf("Kind:     %s\n", tf.Kind)
	fmt.Printf("Hasher:   %s\n", tf.HashName)
	fmt.Printf("Entries:  %d\n", len(tf.Entries))
	fmt.Printf("Capacity: %d\n", tf.Capacity)
	fmt.Printf("Root:     %s\n", tf.Root.Hex())
	return nil
}

func proofCommand(c *cli.Context) error {
	tf, err := whitelist.LoadTreeFile(c.String("tree"))
	if err != nil {
		return err
	}
	entry, err := tf.Entry(uint32(c.Uint("index")))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal entry")
	}
	fmt.Println("Merkle root:", tf.Root.Hex())
	fmt.Println("Merkle proof:", string(out))

	if c.Bool("calldata") {
		calldata, err := util.EncodeProof(types.ProofFromHashes(entry.Proof))
		if err != nil {
			return errors.Wrap(err, "failed to encode proof")
		}
		fmt.Println("Calldata:", hexutil.Encode(calldata))
	}
	return nil
}

func verifyCommand(c *cli.Context) error {
	tf, err := whitelist.LoadTreeFile(c.String("tree"))
	if err != nil {
		return err
	}
	index := uint32(c.Uint("index"))
	ok, err := tf.Verify(index)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("entry %d does not verify against root %s", index, tf.Root.Hex())
	}
	fmt.Printf("Entry %d verifies against root %s\n", index, tf.Root.Hex())
	return nil
}
