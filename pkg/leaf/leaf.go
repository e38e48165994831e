// Package leaf turns allocation records into the canonical byte strings that are hashed
// into distribution trees.
//
// Every leaf kind has exactly one layout. The EVM layouts follow solidity's
// abi.encodePacked: uint256 fields are 32-byte big-endian words, addresses are 20 raw
// bytes and strings are their raw bytes. The compact layout is fixed-width little-endian
// and is meant for chains with 32-byte accounts.
package leaf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

var ErrInvalidRecord = errors.New("invalid leaf record")

const (
	tagSpecific   = "specific"
	tagCollection = "collection"

	// CompactAccountLength is the only account width accepted by the compact layout.
	CompactAccountLength = 32
	// CompactLength is the encoded size of a compact leaf.
	CompactLength = 2 + CompactAccountLength + 8 + 8
)

// Record is an allocation table row of a particular leaf kind.
type Record interface {
	Kind() types.LeafKind
	LeafIndex() uint32
}

// FlatRecord grants ReceivingAmount to Recipient once UnlockTimestamp has passed, in
// exchange for SendingAmount.
type FlatRecord struct {
	Index           uint32         `json:"index"`
	UnlockTimestamp int64          `json:"unlock_timestamp"`
	Recipient       common.Address `json:"recipient"`
	ReceivingAmount uint64         `json:"receiving_amount"`
	SendingAmount   uint64         `json:"sending_amount"`
}

func (r *FlatRecord) Kind() types.LeafKind { return types.LeafKindFlat }
func (r *FlatRecord) LeafIndex() uint32    { return r.Index }

// HolderRecord is redeemed by whoever holds an NFT. With Mode set to
// LeafKindSpecificToken only the holder of TokenID may redeem. With
// LeafKindAnyTokenInCollection any token of Collection qualifies and TokenID is the
// whitelist's placeholder value.
type HolderRecord struct {
	Mode            types.LeafKind `json:"mode"`
	Index           uint32         `json:"index"`
	UnlockTimestamp int64          `json:"unlock_timestamp"`
	Collection      common.Address `json:"collection"`
	TokenID         uint64         `json:"token_id"`
	ReceivingAmount uint64         `json:"receiving_amount"`
	SendingAmount   uint64         `json:"sending_amount"`
}

func (r *HolderRecord) Kind() types.LeafKind { return r.Mode }
func (r *HolderRecord) LeafIndex() uint32    { return r.Index }

// AllocationRecord entitles To to mint one vesting unit worth TotalAlloc. Index only
// places the record in the tree and is not part of the encoding.
type AllocationRecord struct {
	Index      uint32         `json:"index"`
	To         common.Address `json:"to"`
	MerkleID   uint64         `json:"merkle_id"`
	TotalAlloc uint64         `json:"total_alloc"`
}

func (r *AllocationRecord) Kind() types.LeafKind { return types.LeafKindVestingAllocation }
func (r *AllocationRecord) LeafIndex() uint32    { return r.Index }

// CompactRecord is the flat record for 32-byte account chains. It has no unlock time.
type CompactRecord struct {
	Index           uint32 `json:"index"`
	Account         []byte `json:"account"`
	ReceivingAmount uint64 `json:"receiving_amount"`
	SendingAmount   uint64 `json:"sending_amount"`
}

func (r *CompactRecord) Kind() types.LeafKind { return types.LeafKindCompact }
func (r *CompactRecord) LeafIndex() uint32    { return r.Index }

// Encode produces the canonical bytes of a record.
func Encode(r Record) ([]byte, error) {
	switch rec := r.(type) {
	case *FlatRecord:
		return encodeFlat(rec)
	case *HolderRecord:
		return encodeHolder(rec)
	case *AllocationRecord:
		return encodeAllocation(rec)
	case *CompactRecord:
		return encodeCompact(rec)
	case nil:
		return nil, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	default:
		return nil, fmt.Errorf("%w: unsupported record type %T", ErrInvalidRecord, r)
	}
}

// Hash encodes a record and hashes it into a tree leaf.
func Hash(r Record, h hasher.Hasher) ([32]byte, error) {
	data, err := Encode(r)
	if err != nil {
		return [32]byte{}, err
	}
	return h.Hash(data), nil
}

// HashAll hashes records in order. The i-th record must carry index i.
func HashAll(records []Record, h hasher.Hasher) ([][32]byte, error) {
	leaves := make([][32]byte, len(records))
	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("%w: nil record at position %d", ErrInvalidRecord, i)
		}
		if r.LeafIndex() != uint32(i) {
			return nil, fmt.Errorf("%w: record at position %d carries index %d", ErrInvalidRecord, i, r.LeafIndex())
		}
		leafHash, err := Hash(r, h)
		if err != nil {
			return nil, fmt.Errorf("failed to hash record %d: %w", i, err)
		}
		leaves[i] = leafHash
	}
	return leaves, nil
}

func encodeFlat(r *FlatRecord) ([]byte, error) {
	if r.Recipient == (common.Address{}) {
		return nil, fmt.Errorf("%w: recipient cannot be the zero address", ErrInvalidRecord)
	}
	unlock, err := timestampWord(r.UnlockTimestamp)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 32*4+common.AddressLength)
	out = appendWord(out, uint64(r.Index))
	out = append(out, unlock[:]...)
	out = append(out, r.Recipient.Bytes()...)
	out = appendWord(out, r.ReceivingAmount)
	out = appendWord(out, r.SendingAmount)
	return out, nil
}

func encodeHolder(r *HolderRecord) ([]byte, error) {
	var tag string
	switch r.Mode {
	case types.LeafKindSpecificToken:
		tag = tagSpecific
	case types.LeafKindAnyTokenInCollection:
		tag = tagCollection
	default:
		return nil, fmt.Errorf("%w: holder record mode %q", ErrInvalidRecord, r.Mode)
	}
	if r.Collection == (common.Address{}) {
		return nil, fmt.Errorf("%w: collection cannot be the zero address", ErrInvalidRecord)
	}
	unlock, err := timestampWord(r.UnlockTimestamp)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(tag)+32*5+common.AddressLength)
	out = append(out, tag...)
	out = appendWord(out, uint64(r.Index))
	out = append(out, unlock[:]...)
	out = append(out, r.Collection.Bytes()...)
	out = appendWord(out, r.TokenID)
	out = appendWord(out, r.ReceivingAmount)
	out = appendWord(out, r.SendingAmount)
	return out, nil
}

func encodeAllocation(r *AllocationRecord) ([]byte, error) {
	if r.To == (common.Address{}) {
		return nil, fmt.Errorf("%w: recipient cannot be the zero address", ErrInvalidRecord)
	}

	out := make([]byte, 0, common.AddressLength+32*2)
	out = append(out, r.To.Bytes()...)
	out = appendWord(out, r.MerkleID)
	out = appendWord(out, r.TotalAlloc)
	return out, nil
}

func encodeCompact(r *CompactRecord) ([]byte, error) {
	if r.Index > math.MaxUint16 {
		return nil, fmt.Errorf("%w: compact index %d exceeds %d", ErrInvalidRecord, r.Index, math.MaxUint16)
	}
	if len(r.Account) != CompactAccountLength {
		return nil, fmt.Errorf("%w: compact account must be %d bytes, got %d", ErrInvalidRecord, CompactAccountLength, len(r.Account))
	}

	out := make([]byte, 0, CompactLength)
	out = binary.LittleEndian.AppendUint16(out, uint16(r.Index))
	out = append(out, r.Account...)
	out = binary.LittleEndian.AppendUint64(out, r.ReceivingAmount)
	out = binary.LittleEndian.AppendUint64(out, r.SendingAmount)
	return out, nil
}

func appendWord(out []byte, v uint64) []byte {
	word := uint256.NewInt(v).Bytes32()
	return append(out, word[:]...)
}

func timestampWord(ts int64) ([32]byte, error) {
	if ts < 0 {
		return [32]byte{}, fmt.Errorf("%w: negative unlock timestamp %d", ErrInvalidRecord, ts)
	}
	return uint256.NewInt(uint64(ts)).Bytes32(), nil
}
