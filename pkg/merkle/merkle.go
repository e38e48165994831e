package merkle

import (
	"bytes"
	"fmt"
	"math"
	"math/bits"

	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
	"github.com/vaultlabs/merkle-distributor-go/pkg/leaf"
)

// Capacity returns the padded leaf count for n leaves: the smallest power of two that
// is at least n.
func Capacity(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// BuildMerkleTree creates a sorted-pair merkle tree from leaf hashes.
//
// The leaf list is right-padded with zero hashes to Capacity(len(leaves)). Each parent
// is h(min(left, right) || max(left, right)) under unsigned byte-wise comparison, so
// proofs can be checked without knowing the leaf position. A single leaf is its own
// root. A nil hasher selects the default keccak256 hasher.
func BuildMerkleTree(leaves [][32]byte, h hasher.Hasher) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build merkle tree from empty leaf list")
	}
	if uint64(len(leaves)) > math.MaxUint32 {
		return nil, fmt.Errorf("cannot build merkle tree from %d leaves", len(leaves))
	}
	if h == nil {
		h = hasher.Default()
	}

	capacity := Capacity(len(leaves))

	// Copy so the caller's slice is never aliased
	realLeaves := make([][32]byte, len(leaves))
	copy(realLeaves, leaves)

	base := make([]MerkleNode, capacity)
	for i := range base {
		base[i] = MerkleNode{Level: 0, Index: uint32(i)}
		if i < len(realLeaves) {
			base[i].Hash = realLeaves[i]
		}
	}

	levels := make([][]MerkleNode, 0, bits.Len(uint(capacity)))
	levels = append(levels, base)

	currentLevel := base
	for len(currentLevel) > 1 {
		nextLevel := make([]MerkleNode, len(currentLevel)/2)
		level := currentLevel[0].Level + 1

		for i := 0; i < len(currentLevel); i += 2 {
			nextLevel[i/2] = MerkleNode{
				Level: level,
				Index: uint32(i / 2),
				Hash:  hashPair(h, currentLevel[i].Hash, currentLevel[i+1].Hash),
			}
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &MerkleTree{
		Leaves: realLeaves,
		Root:   currentLevel[0].Hash,
		levels: levels,
		hasher: h,
	}, nil
}

// BuildFromRecords hashes records with the leaf encoder and builds the tree.
func BuildFromRecords(records []leaf.Record, h hasher.Hasher) (*MerkleTree, error) {
	if h == nil {
		h = hasher.Default()
	}
	leaves, err := leaf.HashAll(records, h)
	if err != nil {
		return nil, fmt.Errorf("failed to hash records: %w", err)
	}
	return BuildMerkleTree(leaves, h)
}

// Height is the number of levels including the leaf level and the root.
func (mt *MerkleTree) Height() int {
	return len(mt.levels)
}

// Capacity is the padded leaf count.
func (mt *MerkleTree) Capacity() int {
	return len(mt.levels[0])
}

// LeafCount is the number of real leaves.
func (mt *MerkleTree) LeafCount() int {
	return len(mt.Leaves)
}

// RootNode returns the root as a node.
func (mt *MerkleTree) RootNode() MerkleNode {
	return mt.levels[len(mt.levels)-1][0]
}

// Hasher returns the hash function the tree was built with.
func (mt *MerkleTree) Hasher() hasher.Hasher {
	return mt.hasher
}

// Node returns the node at the given level and index.
func (mt *MerkleTree) Node(level, index int) (MerkleNode, error) {
	if level < 0 || level >= len(mt.levels) {
		return MerkleNode{}, fmt.Errorf("level %d out of bounds (tree height %d)", level, len(mt.levels))
	}
	if index < 0 || index >= len(mt.levels[level]) {
		return MerkleNode{}, fmt.Errorf("index %d out of bounds (level %d has %d nodes)", index, level, len(mt.levels[level]))
	}
	return mt.levels[level][index], nil
}

// Nodes returns every node of the tree, level by level from the leaves up.
func (mt *MerkleTree) Nodes() []MerkleNode {
	total := 0
	for _, level := range mt.levels {
		total += len(level)
	}
	out := make([]MerkleNode, 0, total)
	for _, level := range mt.levels {
		out = append(out, level...)
	}
	return out
}

// GenerateProof creates a merkle proof for the leaf at the given index.
// The proof holds exactly Height()-1 sibling nodes ordered from the leaf level up.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	if leafIndex < 0 || leafIndex >= len(mt.Leaves) {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves)", leafIndex, len(mt.Leaves))
	}

	proof := make([]MerkleNode, 0, len(mt.levels)-1)
	index := leafIndex

	for level := 0; level < len(mt.levels)-1; level++ {
		proof = append(proof, mt.levels[level][index^1])
		index /= 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.Leaves[leafIndex],
		Proof:     proof,
	}, nil
}

// ComputeRoot folds a proof onto a leaf with the sorted-pair rule.
func ComputeRoot(leafHash [32]byte, proof [][32]byte, h hasher.Hasher) [32]byte {
	if h == nil {
		h = hasher.Default()
	}
	current := leafHash
	for _, sibling := range proof {
		current = hashPair(h, current, sibling)
	}
	return current
}

// VerifyHashes reports whether leafHash and proof recompute root.
func VerifyHashes(leafHash [32]byte, proof [][32]byte, root [32]byte, h hasher.Hasher) bool {
	return ComputeRoot(leafHash, proof, h) == root
}

// VerifyProof verifies that a leaf is included in the merkle tree with the given root.
func VerifyProof(proof *MerkleProof, root [32]byte, h hasher.Hasher) bool {
	if proof == nil {
		return false
	}
	return VerifyHashes(proof.Leaf, proof.Hashes(), root, h)
}

// hashPair computes h(min(a, b) || max(a, b)).
func hashPair(h hasher.Hasher, a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return h.Hash(a[:], b[:])
}
