// Package whitelist reads allocation tables from JSON and turns them into distribution
// trees that can be published alongside an event.
//
// A whitelist names its leaf kind once and lists entries in table order. Entry i becomes
// leaf i, so entries never carry their own index.
package whitelist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
	"github.com/vaultlabs/merkle-distributor-go/pkg/leaf"
	"github.com/vaultlabs/merkle-distributor-go/pkg/merkle"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

var ErrInvalidWhitelist = errors.New("invalid whitelist")

// Whitelist is the on-disk allocation table.
type Whitelist struct {
	Kind     types.LeafKind    `json:"kind"`
	HashName string            `json:"hash_name,omitempty"`
	Entries  []json.RawMessage `json:"entries"`
}

type flatEntry struct {
	UnlockTimestamp int64          `json:"unlock_timestamp"`
	Recipient       common.Address `json:"recipient"`
	ReceivingAmount uint64         `json:"receiving_amount"`
	SendingAmount   uint64         `json:"sending_amount"`
}

type holderEntry struct {
	UnlockTimestamp int64          `json:"unlock_timestamp"`
	Collection      common.Address `json:"collection"`
	TokenID         uint64         `json:"token_id"`
	ReceivingAmount uint64         `json:"receiving_amount"`
	SendingAmount   uint64         `json:"sending_amount"`
}

type allocationEntry struct {
	To         common.Address `json:"to"`
	MerkleID   uint64         `json:"merkle_id"`
	TotalAlloc uint64         `json:"total_alloc"`
}

type compactEntry struct {
	Account         hexutil.Bytes `json:"account"`
	ReceivingAmount uint64        `json:"receiving_amount"`
	SendingAmount   uint64        `json:"sending_amount"`
}

// LoadFile reads and parses a whitelist file.
func LoadFile(path string) (*Whitelist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read whitelist %s", path)
	}
	wl, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse whitelist %s", path)
	}
	return wl, nil
}

// Parse decodes a whitelist and checks its header. Entries are decoded lazily by
// Records.
func Parse(data []byte) (*Whitelist, error) {
	var wl Whitelist
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWhitelist, err)
	}
	if !wl.Kind.Valid() {
		return nil, fmt.Errorf("%w: unsupported kind %q", ErrInvalidWhitelist, wl.Kind)
	}
	if len(wl.Entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidWhitelist)
	}
	if _, err := hasher.ByName(wl.HashName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWhitelist, err)
	}
	return &wl, nil
}

// Hasher resolves the whitelist's hash function, defaulting to keccak256.
func (w *Whitelist) Hasher() (hasher.Hasher, error) {
	return hasher.ByName(w.HashName)
}

// Records decodes every entry into the leaf record of the whitelist's kind.
func (w *Whitelist) Records() ([]leaf.Record, error) {
	records := make([]leaf.Record, len(w.Entries))
	mintIDs := make(map[uint64]int)

	for i, raw := range w.Entries {
		index := uint32(i)
		var rec leaf.Record

		switch w.Kind {
		case types.LeafKindFlat:
			var e flatEntry
			if err := decodeEntry(raw, &e); err != nil {
				return nil, entryError(i, err)
			}
			rec = &leaf.FlatRecord{
				Index:           index,
				UnlockTimestamp: e.UnlockTimestamp,
				Recipient:       e.Recipient,
				ReceivingAmount: e.ReceivingAmount,
				SendingAmount:   e.SendingAmount,
			}
		case types.LeafKindSpecificToken, types.LeafKindAnyTokenInCollection:
			var e holderEntry
			if err := decodeEntry(raw, &e); err != nil {
				return nil, entryError(i, err)
			}
			rec = &leaf.HolderRecord{
				Mode:            w.Kind,
				Index:           index,
				UnlockTimestamp: e.UnlockTimestamp,
				Collection:      e.Collection,
				TokenID:         e.TokenID,
				ReceivingAmount: e.ReceivingAmount,
				SendingAmount:   e.SendingAmount,
			}
		case types.LeafKindVestingAllocation:
			var e allocationEntry
			if err := decodeEntry(raw, &e); err != nil {
				return nil, entryError(i, err)
			}
			// mint claims are keyed by merkle id, so a repeated id could never be minted twice
			if prev, ok := mintIDs[e.MerkleID]; ok {
				return nil, entryError(i, fmt.Errorf("merkle id %d already used by entry %d", e.MerkleID, prev))
			}
			mintIDs[e.MerkleID] = i
			rec = &leaf.AllocationRecord{
				Index:      index,
				To:         e.To,
				MerkleID:   e.MerkleID,
				TotalAlloc: e.TotalAlloc,
			}
		case types.LeafKindCompact:
			var e compactEntry
			if err := decodeEntry(raw, &e); err != nil {
				return nil, entryError(i, err)
			}
			rec = &leaf.CompactRecord{
				Index:           index,
				Account:         []byte(e.Account),
				ReceivingAmount: e.ReceivingAmount,
				SendingAmount:   e.SendingAmount,
			}
		default:
			return nil, fmt.Errorf("%w: unsupported kind %q", ErrInvalidWhitelist, w.Kind)
		}

		if _, err := leaf.Encode(rec); err != nil {
			return nil, entryError(i, err)
		}
		records[i] = rec
	}
	return records, nil
}

// Build decodes the whitelist and builds its tree.
func (w *Whitelist) Build() (*merkle.MerkleTree, []leaf.Record, error) {
	h, err := w.Hasher()
	if err != nil {
		return nil, nil, err
	}
	records, err := w.Records()
	if err != nil {
		return nil, nil, err
	}
	tree, err := merkle.BuildFromRecords(records, h)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build tree")
	}
	return tree, records, nil
}

func decodeEntry(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func entryError(i int, err error) error {
	return fmt.Errorf("%w: entry %d: %v", ErrInvalidWhitelist, i, err)
}
