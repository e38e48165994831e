package whitelist

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
	"github.com/vaultlabs/merkle-distributor-go/pkg/merkle"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// TreeFile is the published form of a distribution tree. Claimants look up their entry
// and submit its proof together with the record fields.
type TreeFile struct {
	Kind     types.LeafKind `json:"kind"`
	HashName string         `json:"hash_name"`
	Root     common.Hash    `json:"root"`
	Capacity int            `json:"capacity"`
	Entries  []TreeEntry    `json:"entries"`
}

// TreeEntry pairs a whitelist entry with its leaf hash and inclusion proof.
type TreeEntry struct {
	Index  uint32          `json:"index"`
	Leaf   common.Hash     `json:"leaf"`
	Proof  []common.Hash   `json:"proof"`
	Record json.RawMessage `json:"record"`
}

// Export builds the whitelist's tree and renders every entry's proof.
func (w *Whitelist) Export() (*TreeFile, error) {
	tree, _, err := w.Build()
	if err != nil {
		return nil, err
	}

	tf := &TreeFile{
		Kind:     w.Kind,
		HashName: tree.Hasher().Name(),
		Root:     common.Hash(tree.Root),
		Capacity: tree.Capacity(),
		Entries:  make([]TreeEntry, len(w.Entries)),
	}
	for i := range w.Entries {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to generate proof for entry %d", i)
		}
		tf.Entries[i] = TreeEntry{
			Index:  uint32(i),
			Leaf:   common.Hash(proof.Leaf),
			Proof:  types.ProofToHashes(proof.Hashes()),
			Record: w.Entries[i],
		}
	}
	return tf, nil
}

// WriteFile stores the tree as indented JSON.
func (tf *TreeFile) WriteFile(path string) error {
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal tree")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write tree %s", path)
	}
	return nil
}

// LoadTreeFile reads a tree written by WriteFile.
func LoadTreeFile(path string) (*TreeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tree %s", path)
	}
	var tf TreeFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tree %s", path)
	}
	return &tf, nil
}

// Entry returns the entry at index.
func (tf *TreeFile) Entry(index uint32) (*TreeEntry, error) {
	if int(index) >= len(tf.Entries) {
		return nil, fmt.Errorf("entry %d out of range (tree has %d entries)", index, len(tf.Entries))
	}
	return &tf.Entries[index], nil
}

// Verify checks that the entry at index still folds up to the published root.
func (tf *TreeFile) Verify(index uint32) (bool, error) {
	entry, err := tf.Entry(index)
	if err != nil {
		return false, err
	}
	h, err := hasher.ByName(tf.HashName)
	if err != nil {
		return false, err
	}
	return merkle.VerifyHashes(entry.Leaf, types.ProofFromHashes(entry.Proof), tf.Root, h), nil
}
