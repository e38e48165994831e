package whitelist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
	"github.com/vaultlabs/merkle-distributor-go/pkg/leaf"
	"github.com/vaultlabs/merkle-distributor-go/pkg/merkle"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

const flatWhitelist = `{
  "kind": "flat",
  "entries": [
    {"unlock_timestamp": 0, "recipient": "0x1111111111111111111111111111111111111111", "receiving_amount": 1000000, "sending_amount": 0},
    {"unlock_timestamp": 0, "recipient": "0x2222222222222222222222222222222222222222", "receiving_amount": 2000000, "sending_amount": 0},
    {"unlock_timestamp": 0, "recipient": "0x3333333333333333333333333333333333333333", "receiving_amount": 3000000, "sending_amount": 0}
  ]
}`

func TestParseFlatWhitelist(t *testing.T) {
	wl, err := Parse([]byte(flatWhitelist))
	require.NoError(t, err)

	records, err := wl.Records()
	require.NoError(t, err)
	require.Len(t, records, 3)

	second, ok := records[1].(*leaf.FlatRecord)
	require.True(t, ok)
	assert.Equal(t, uint32(1), second.Index)
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), second.Recipient)
	assert.Equal(t, uint64(2000000), second.ReceivingAmount)

	h, err := wl.Hasher()
	require.NoError(t, err)
	assert.Equal(t, hasher.NameKeccak256, h.Name())
}

func TestParseRejections(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"unknown kind":   `{"kind": "airdrop", "entries": [{}]}`,
		"no entries":     `{"kind": "flat", "entries": []}`,
		"unknown hasher": `{"kind": "flat", "hash_name": "md5", "entries": [{}]}`,
		"unknown field":  `{"kind": "flat", "entries": [], "root": "0x00"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidWhitelist)
		})
	}
}

func TestRecordsRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"zero recipient": `{"kind": "flat", "entries": [{"recipient": "0x0000000000000000000000000000000000000000", "receiving_amount": 1}]}`,
		"unknown field":  `{"kind": "flat", "entries": [{"recipient": "0x1111111111111111111111111111111111111111", "amount": 1}]}`,
		"short account":  `{"kind": "compact", "entries": [{"account": "0x0102", "receiving_amount": 1}]}`,
		"duplicate merkle id": `{"kind": "vesting-allocation", "entries": [
			{"to": "0x1111111111111111111111111111111111111111", "merkle_id": 7, "total_alloc": 10},
			{"to": "0x2222222222222222222222222222222222222222", "merkle_id": 7, "total_alloc": 20}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			wl, err := Parse([]byte(body))
			require.NoError(t, err)
			_, err = wl.Records()
			assert.ErrorIs(t, err, ErrInvalidWhitelist)
		})
	}
}

func TestHolderWhitelistCarriesMode(t *testing.T) {
	wl, err := Parse([]byte(`{
		"kind": "any-token-in-collection",
		"hash_name": "sha256",
		"entries": [{"collection": "0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa", "token_id": 0, "receiving_amount": 5}]
	}`))
	require.NoError(t, err)

	records, err := wl.Records()
	require.NoError(t, err)
	rec, ok := records[0].(*leaf.HolderRecord)
	require.True(t, ok)
	assert.Equal(t, types.LeafKindAnyTokenInCollection, rec.Mode)
	assert.Equal(t, types.LeafKindAnyTokenInCollection, rec.Kind())
}

func TestCompactWhitelist(t *testing.T) {
	wl, err := Parse([]byte(`{
		"kind": "compact",
		"entries": [{"account": "0x0101010101010101010101010101010101010101010101010101010101010101", "receiving_amount": 9, "sending_amount": 1}]
	}`))
	require.NoError(t, err)

	records, err := wl.Records()
	require.NoError(t, err)
	rec, ok := records[0].(*leaf.CompactRecord)
	require.True(t, ok)
	assert.Len(t, rec.Account, leaf.CompactAccountLength)
	assert.Equal(t, uint64(9), rec.ReceivingAmount)
}

func TestExportMatchesTree(t *testing.T) {
	wl, err := Parse([]byte(flatWhitelist))
	require.NoError(t, err)

	tree, records, err := wl.Build()
	require.NoError(t, err)

	tf, err := wl.Export()
	require.NoError(t, err)
	assert.Equal(t, common.Hash(tree.Root), tf.Root)
	assert.Equal(t, 4, tf.Capacity)
	assert.Equal(t, hasher.NameKeccak256, tf.HashName)
	require.Len(t, tf.Entries, len(records))

	for i, entry := range tf.Entries {
		leafHash, err := leaf.Hash(records[i], hasher.Default())
		require.NoError(t, err)
		assert.Equal(t, common.Hash(leafHash), entry.Leaf)
		assert.Len(t, entry.Proof, 2)
		assert.True(t, merkle.VerifyHashes(leafHash, types.ProofFromHashes(entry.Proof), tree.Root, hasher.Default()))

		ok, err := tf.Verify(uint32(i))
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err = tf.Entry(3)
	assert.Error(t, err)
}

func TestTreeFileRoundTripOnDisk(t *testing.T) {
	dir := t.TempDir()
	wlPath := filepath.Join(dir, "whitelist.json")
	require.NoError(t, os.WriteFile(wlPath, []byte(flatWhitelist), 0644))

	wl, err := LoadFile(wlPath)
	require.NoError(t, err)
	tf, err := wl.Export()
	require.NoError(t, err)

	treePath := filepath.Join(dir, "tree.json")
	require.NoError(t, tf.WriteFile(treePath))

	loaded, err := LoadTreeFile(treePath)
	require.NoError(t, err)
	assert.Equal(t, tf.Root, loaded.Root)
	assert.Equal(t, tf.Entries[2].Proof, loaded.Entries[2].Proof)

	// flipping a proof hash must break verification
	loaded.Entries[2].Proof[0][0] ^= 0xff
	ok, err := loaded.Verify(2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read whitelist")
}
