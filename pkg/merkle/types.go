package merkle

import "github.com/vaultlabs/merkle-distributor-go/pkg/hasher"

// MerkleNode is a single hash in the tree, tagged with its position.
// Level 0 holds the leaves and the root sits at level Height-1.
type MerkleNode struct {
	Level uint8    `json:"level"`
	Index uint32   `json:"index"`
	Hash  [32]byte `json:"hash"`
}

// MerkleTree is a sorted-pair binary merkle tree over a leaf list padded with zero
// hashes up to the next power of two. It is immutable once built and safe for
// concurrent reads.
type MerkleTree struct {
	// Leaves contains the real (unpadded) leaf hashes in table order
	Leaves [][32]byte

	// Root is the merkle root hash
	Root [32]byte

	// levels stores all tree levels for proof generation
	// levels[0] = padded leaves, levels[len-1] = root
	levels [][]MerkleNode

	hasher hasher.Hasher
}

// MerkleProof represents a proof that a leaf is included in the tree.
type MerkleProof struct {
	// LeafIndex is the table position of the leaf
	LeafIndex int

	// Leaf is the hash of the leaf being proven
	Leaf [32]byte

	// Proof contains the sibling nodes from leaf level to the level below the root
	Proof []MerkleNode
}

// Hashes returns the proof as the plain hash list that is sent over the wire.
func (p *MerkleProof) Hashes() [][32]byte {
	if p == nil {
		return nil
	}
	out := make([][32]byte, len(p.Proof))
	for i, n := range p.Proof {
		out[i] = n.Hash
	}
	return out
}
