package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CreateEventRequest registers a distribution event (admin only).
type CreateEventRequest struct {
	EventID        common.Hash     `json:"event_id"`
	Kind           LeafKind        `json:"kind"`
	HashName       string          `json:"hash_name,omitempty"`
	MerkleRoot     common.Hash     `json:"merkle_root"`
	ReceivingToken common.Address  `json:"receiving_token"`
	SendingToken   common.Address  `json:"sending_token"`
	Vault          common.Address  `json:"vault"`
	Treasury       common.Address  `json:"treasury"`
	Schedule       VestingSchedule `json:"schedule,omitempty"`
	MinSplitRate   uint64          `json:"min_split_rate,omitempty"`
	MaxSplitRate   uint64          `json:"max_split_rate,omitempty"`
}

// ToEvent converts the request into an unregistered event.
func (r *CreateEventRequest) ToEvent() *DistributionEvent {
	return &DistributionEvent{
		EventID:        r.EventID,
		Kind:           r.Kind,
		HashName:       r.HashName,
		MerkleRoot:     r.MerkleRoot,
		ReceivingToken: r.ReceivingToken,
		SendingToken:   r.SendingToken,
		Vault:          r.Vault,
		Treasury:       r.Treasury,
		Schedule:       r.Schedule,
		MinSplitRate:   r.MinSplitRate,
		MaxSplitRate:   r.MaxSplitRate,
	}
}

// SetEventStatusRequest enables or disables an event (admin only).
type SetEventStatusRequest struct {
	Active bool `json:"active"`
}

// RedeemFlatRequest is the body of POST /redeem/flat.
type RedeemFlatRequest struct {
	EventID         common.Hash    `json:"event_id"`
	Index           uint32         `json:"index"`
	UnlockTimestamp int64          `json:"unlock_timestamp"`
	Recipient       common.Address `json:"recipient"`
	ReceivingAmount uint64         `json:"receiving_amount"`
	SendingAmount   uint64         `json:"sending_amount"`
	Proof           []common.Hash  `json:"proof"`
}

// RedeemCompactRequest is the body of POST /redeem/compact.
type RedeemCompactRequest struct {
	EventID         common.Hash   `json:"event_id"`
	Index           uint32        `json:"index"`
	Account         hexutil.Bytes `json:"account"`
	ReceivingAmount uint64        `json:"receiving_amount"`
	SendingAmount   uint64        `json:"sending_amount"`
	Proof           []common.Hash `json:"proof"`
}

// RedeemHolderRequest is the body of POST /redeem/specific and POST
// /redeem/collection. HeldTokenID is only read for collection redemptions.
type RedeemHolderRequest struct {
	EventID         common.Hash    `json:"event_id"`
	Holder          common.Address `json:"holder"`
	Index           uint32         `json:"index"`
	UnlockTimestamp int64          `json:"unlock_timestamp"`
	Collection      common.Address `json:"collection"`
	TokenID         uint64         `json:"token_id"`
	HeldTokenID     uint64         `json:"held_token_id,omitempty"`
	ReceivingAmount uint64         `json:"receiving_amount"`
	SendingAmount   uint64         `json:"sending_amount"`
	Proof           []common.Hash  `json:"proof"`
}

// MintAllocationRequest is the body of POST /allocations/mint.
type MintAllocationRequest struct {
	EventID    common.Hash    `json:"event_id"`
	Index      uint32         `json:"index"`
	To         common.Address `json:"to"`
	MerkleID   uint64         `json:"merkle_id"`
	TotalAlloc uint64         `json:"total_alloc"`
	Proof      []common.Hash  `json:"proof"`
}

// ClaimAllocationRequest is the body of POST /allocations/{id}/claim. The caller
// is the subject of the request's bearer token.
type ClaimAllocationRequest struct {
	Slot int `json:"slot"`
}

// SplitAllocationRequest is the body of POST /allocations/{id}/split. The caller
// is the subject of the request's bearer token.
type SplitAllocationRequest struct {
	RateBasisPoints uint64 `json:"rate_bps"`
}

type SplitAllocationResponse struct {
	Children [2]*AllocationUnit `json:"children"`
}

// VerifyProofRequest checks a leaf hash against a root without touching any state.
type VerifyProofRequest struct {
	Leaf     common.Hash   `json:"leaf"`
	Proof    []common.Hash `json:"proof"`
	Root     common.Hash   `json:"root"`
	HashName string        `json:"hash_name,omitempty"`
}

type VerifyProofResponse struct {
	Valid        bool        `json:"valid"`
	ComputedRoot common.Hash `json:"computed_root"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ProofFromHashes converts a wire proof into raw hashes.
func ProofFromHashes(hashes []common.Hash) [][32]byte {
	proof := make([][32]byte, len(hashes))
	for i, h := range hashes {
		proof[i] = h
	}
	return proof
}

// ProofToHashes converts raw proof hashes into their wire form.
func ProofToHashes(proof [][32]byte) []common.Hash {
	hashes := make([]common.Hash, len(proof))
	for i, p := range proof {
		hashes[i] = p
	}
	return hashes
}
