package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BasisPoints is the denominator for every percentage and rate (10000 = 100%).
const BasisPoints uint64 = 10000

// LeafKind selects the byte layout of a distribution's leaves and the redemption rules
// that apply to it. It is fixed when the distribution event is created.
type LeafKind string

const (
	LeafKindFlat                 LeafKind = "flat"
	LeafKindSpecificToken        LeafKind = "specific-token"
	LeafKindAnyTokenInCollection LeafKind = "any-token-in-collection"
	LeafKindVestingAllocation    LeafKind = "vesting-allocation"
	LeafKindCompact              LeafKind = "compact"
)

func (k LeafKind) String() string {
	return string(k)
}

// Valid reports whether k is a known leaf kind.
func (k LeafKind) Valid() bool {
	switch k {
	case LeafKindFlat, LeafKindSpecificToken, LeafKindAnyTokenInCollection, LeafKindVestingAllocation, LeafKindCompact:
		return true
	}
	return false
}

// IsHolderKind reports whether leaves of this kind are redeemed by NFT holders.
func (k LeafKind) IsHolderKind() bool {
	return k == LeafKindSpecificToken || k == LeafKindAnyTokenInCollection
}

type EventStatus string

const (
	EventStatusActive   EventStatus = "active"
	EventStatusDisabled EventStatus = "disabled"
)

func (s EventStatus) String() string {
	return string(s)
}

// Tranche is one vesting slot: PercentBasisPoints of the allocation becomes claimable
// at Timestamp.
type Tranche struct {
	Timestamp          int64  `json:"timestamp"`
	PercentBasisPoints uint64 `json:"percent_bps"`
}

// VestingSchedule is an ordered list of tranches. Percentages are not required to sum
// to BasisPoints.
type VestingSchedule []Tranche

// Validate checks that timestamps strictly increase and that no single tranche exceeds
// 100%.
func (s VestingSchedule) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("vesting schedule cannot be empty")
	}
	for i, t := range s {
		if t.PercentBasisPoints > BasisPoints {
			return fmt.Errorf("tranche %d percent %d exceeds %d basis points", i, t.PercentBasisPoints, BasisPoints)
		}
		if i > 0 && t.Timestamp <= s[i-1].Timestamp {
			return fmt.Errorf("tranche %d timestamp %d is not after tranche %d timestamp %d", i, t.Timestamp, i-1, s[i-1].Timestamp)
		}
	}
	return nil
}

// DistributionEvent is the registry record committing a distribution to a Merkle root.
// Everything except Status is immutable once created.
type DistributionEvent struct {
	EventID        common.Hash     `json:"event_id"`
	Kind           LeafKind        `json:"kind"`
	HashName       string          `json:"hash_name"`
	MerkleRoot     common.Hash     `json:"merkle_root"`
	ReceivingToken common.Address  `json:"receiving_token"`
	SendingToken   common.Address  `json:"sending_token"`
	Vault          common.Address  `json:"vault"`    // source of receiving legs
	Treasury       common.Address  `json:"treasury"` // destination of sending legs
	Status         EventStatus     `json:"status"`
	Schedule       VestingSchedule `json:"schedule,omitempty"`
	MinSplitRate   uint64          `json:"min_split_rate,omitempty"`
	MaxSplitRate   uint64          `json:"max_split_rate,omitempty"`
	CreatedAt      int64           `json:"created_at"`
}

// IsActive reports whether the event accepts redemptions.
func (e *DistributionEvent) IsActive() bool {
	return e != nil && e.Status == EventStatusActive
}

// Validate checks the static shape of an event before it is registered.
func (e *DistributionEvent) Validate() error {
	if e.EventID == (common.Hash{}) {
		return fmt.Errorf("event id cannot be zero")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unsupported leaf kind: %q", e.Kind)
	}
	if e.MerkleRoot == (common.Hash{}) {
		return fmt.Errorf("merkle root cannot be zero")
	}
	if e.Kind == LeafKindVestingAllocation {
		if err := e.Schedule.Validate(); err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}
		if e.MinSplitRate > e.MaxSplitRate || e.MaxSplitRate > BasisPoints {
			return fmt.Errorf("invalid split rate bounds [%d, %d]", e.MinSplitRate, e.MaxSplitRate)
		}
	}
	return nil
}

// ClaimState records whether a claim key has been consumed. Version increases on
// every write and drives compare-and-swap updates in the persistence layer.
type ClaimState struct {
	Key       string         `json:"key"`
	Claimed   bool           `json:"claimed"`
	Claimant  common.Address `json:"claimant"`
	Amount    uint64         `json:"amount"`
	ClaimedAt int64          `json:"claimed_at"`
	Version   uint64         `json:"version"`
}

type AllocationStatus string

const (
	AllocationStatusActive      AllocationStatus = "active"
	AllocationStatusInvalidated AllocationStatus = "invalidated"
)

// AllocationUnit is a transferable vesting instrument minted from a vesting-allocation
// leaf. Splitting a unit invalidates it and produces two children.
type AllocationUnit struct {
	ID                string           `json:"id"`
	EventID           common.Hash      `json:"event_id"`
	MerkleID          uint64           `json:"merkle_id"`
	Owner             common.Address   `json:"owner"`
	TotalAlloc        uint64           `json:"total_alloc"`
	SlotClaimed       []bool           `json:"slot_claimed"`
	SlotClaimedAmount []uint64         `json:"slot_claimed_amount"`
	Status            AllocationStatus `json:"status"`
	ParentID          string           `json:"parent_id,omitempty"`
	ChildIDs          []string         `json:"child_ids,omitempty"`
	CreatedAt         int64            `json:"created_at"`
	Version           uint64           `json:"version"`
}

// ClaimedAlloc is the total amount already claimed across all slots.
func (u *AllocationUnit) ClaimedAlloc() uint64 {
	var total uint64
	for _, amt := range u.SlotClaimedAmount {
		total += amt
	}
	return total
}

// IsActive reports whether the unit can still be claimed against or split.
func (u *AllocationUnit) IsActive() bool {
	return u != nil && u.Status == AllocationStatusActive
}

// Clone returns a deep copy of the unit.
func (u *AllocationUnit) Clone() *AllocationUnit {
	if u == nil {
		return nil
	}
	c := *u
	c.SlotClaimed = append([]bool(nil), u.SlotClaimed...)
	c.SlotClaimedAmount = append([]uint64(nil), u.SlotClaimedAmount...)
	c.ChildIDs = append([]string(nil), u.ChildIDs...)
	return &c
}

// Receipt describes a completed redemption or slot claim.
type Receipt struct {
	ID              string         `json:"id"`
	EventID         common.Hash    `json:"event_id"`
	ClaimKey        string         `json:"claim_key"`
	Recipient       common.Address `json:"recipient"`
	ReceivingToken  common.Address `json:"receiving_token"`
	ReceivingAmount uint64         `json:"receiving_amount"`
	SendingToken    common.Address `json:"sending_token"`
	SendingAmount   uint64         `json:"sending_amount"`
	Fee             uint64         `json:"fee"`
	Timestamp       int64          `json:"timestamp"`
}

// FlatClaimKey is the claim key for flat, compact and specific-token redemptions.
func FlatClaimKey(eventID common.Hash, index uint32) string {
	return fmt.Sprintf("%s:%d", eventID.Hex(), index)
}

// CollectionClaimKey is the claim key for any-token-in-collection redemptions. A
// whitelist entry can be redeemed once per distinct held token.
func CollectionClaimKey(eventID common.Hash, index uint32, collection common.Address, tokenID uint64) string {
	return fmt.Sprintf("%s:%d:%s:%d", eventID.Hex(), index, collection.Hex(), tokenID)
}

// MintClaimKey is the claim key guarding a single mint per vesting leaf.
func MintClaimKey(eventID common.Hash, merkleID uint64) string {
	return fmt.Sprintf("%s:mint:%d", eventID.Hex(), merkleID)
}
