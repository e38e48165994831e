package main

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/collection/inMemoryCollection"
	"github.com/vaultlabs/merkle-distributor-go/pkg/config"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence/badger"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence/memory"
	"github.com/vaultlabs/merkle-distributor-go/pkg/transfer/inMemoryLedger"
)

func TestSeedBalances(t *testing.T) {
	ledger := inMemoryLedger.NewInMemoryLedger(zap.NewNop())
	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	vault := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	require.NoError(t, seedBalances(ledger, []string{token.Hex() + ":" + vault.Hex() + ":500"}))
	require.Equal(t, uint64(500), ledger.BalanceOf(token, vault))

	require.Error(t, seedBalances(ledger, []string{"nope"}))
	require.Error(t, seedBalances(ledger, []string{token.Hex() + ":" + vault.Hex() + ":-1"}))
}

func TestSeedOwners(t *testing.T) {
	nfts := inMemoryCollection.NewInMemoryCollection()
	coll := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	owner := common.HexToAddress("0x00000000000000000000000000000000000000dd")

	require.NoError(t, seedOwners(nfts, []string{coll.Hex() + ":7:" + owner.Hex()}))
	got, err := nfts.OwnerOf(context.Background(), coll, 7)
	require.NoError(t, err)
	require.Equal(t, owner, got)

	require.Error(t, seedOwners(nfts, []string{coll.Hex() + ":x:" + owner.Hex()}))
}

func TestNewPersistenceDefaultsToMemory(t *testing.T) {
	store, err := newPersistence(&config.DistributorConfig{PersistenceType: config.PersistenceTypeMemory}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &memory.MemoryPersistence{}, store)
	require.NoError(t, store.Close())
}

func TestNewTokenVerifier(t *testing.T) {
	v, err := newTokenVerifier(context.Background(), &config.DistributorConfig{}, zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = newTokenVerifier(context.Background(), &config.DistributorConfig{
		AdminJWTSecret: "0123456789abcdef0123456789abcdef",
	}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, v)
}

func TestServeClosesStoreOnStartupFailure(t *testing.T) {
	dir := t.TempDir()
	app := &cli.App{Name: "distributor", Commands: []*cli.Command{serveCommand()}}

	err := app.Run([]string{"distributor", "serve", "--persistence", "badger", "--badger-path", dir, "--fund", "nope"})
	require.ErrorContains(t, err, "invalid --fund value")

	// badger holds a directory lock until closed
	store, err := badger.NewBadgerPersistence(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())
}
