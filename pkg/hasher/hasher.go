// Package hasher provides the 32-byte hash functions used to build and verify
// distribution trees. A distribution is committed with exactly one hasher and the
// hasher's name travels with the distribution event so that proofs are always checked
// with the function that produced the root.
package hasher

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
	merkletree "github.com/wealdtech/go-merkletree/v2"
	"github.com/wealdtech/go-merkletree/v2/blake2b"
	"golang.org/x/crypto/sha3"
)

const (
	NameKeccak256 = "keccak256"
	NameSHA256    = "sha256"
	NameSHA3256   = "sha3-256"
	NameBlake2b   = "blake2b"
	NameMiMCBN254 = "mimc-bn254"
)

// DefaultName is the hasher used when a distribution does not name one.
const DefaultName = NameKeccak256

var ErrUnknownHasher = errors.New("unknown hasher")

// Hasher computes a 32-byte digest over the concatenation of its inputs.
// Implementations must be deterministic and safe for concurrent use.
type Hasher interface {
	Hash(data ...[]byte) [32]byte
	Name() string
}

// Keccak256 is the contract-compatible hasher.
type Keccak256 struct{}

func (Keccak256) Hash(data ...[]byte) [32]byte {
	return crypto.Keccak256Hash(data...)
}

func (Keccak256) Name() string { return NameKeccak256 }

// SHA256 is the general purpose hasher.
type SHA256 struct{}

func (SHA256) Hash(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (SHA256) Name() string { return NameSHA256 }

// SHA3256 is FIPS-202 SHA3-256 (not to be confused with legacy keccak256).
type SHA3256 struct{}

func (SHA3256) Hash(data ...[]byte) [32]byte {
	h := sha3.New256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (SHA3256) Name() string { return NameSHA3256 }

// hashTypeAdapter lets any go-merkletree hash type serve as a Hasher.
type hashTypeAdapter struct {
	name string
	ht   merkletree.HashType
}

// FromHashType wraps a go-merkletree HashType. The hash type must produce 32-byte
// digests.
func FromHashType(name string, ht merkletree.HashType) (Hasher, error) {
	if ht == nil {
		return nil, fmt.Errorf("hash type cannot be nil")
	}
	if ht.HashLength() != 32 {
		return nil, fmt.Errorf("hash type %s produces %d byte digests, expected 32", name, ht.HashLength())
	}
	return &hashTypeAdapter{name: name, ht: ht}, nil
}

func (a *hashTypeAdapter) Hash(data ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], a.ht.Hash(data...))
	return out
}

func (a *hashTypeAdapter) Name() string { return a.name }

type constructor func() (Hasher, error)

var registry = map[string]constructor{
	NameKeccak256: func() (Hasher, error) { return Keccak256{}, nil },
	NameSHA256:    func() (Hasher, error) { return SHA256{}, nil },
	NameSHA3256:   func() (Hasher, error) { return SHA3256{}, nil },
	NameBlake2b: func() (Hasher, error) {
		return FromHashType(NameBlake2b, blake2b.New())
	},
	NameMiMCBN254: func() (Hasher, error) { return MiMCBN254{}, nil },
}

// ByName resolves a hasher by its registered name. An empty name resolves to the
// default hasher.
func ByName(name string) (Hasher, error) {
	if name == "" {
		name = DefaultName
	}
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHasher, name)
	}
	return ctor()
}

// Names lists every registered hasher name in lexical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the contract-compatible keccak256 hasher.
func Default() Hasher {
	return Keccak256{}
}
