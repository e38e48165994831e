// Package distributor is the redemption engine. It checks inclusion proofs against the
// registered distribution roots, enforces unlock times and NFT ownership, records
// every consumed claim key through the persistence layer and drives the token
// transfers that settle a redemption.
package distributor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/collection"
	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
	"github.com/vaultlabs/merkle-distributor-go/pkg/leaf"
	"github.com/vaultlabs/merkle-distributor-go/pkg/merkle"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/registry"
	"github.com/vaultlabs/merkle-distributor-go/pkg/transfer"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// Distributor settles redemptions against registered distribution events.
type Distributor struct {
	registry   registry.Client
	store      persistence.IDistributionPersistence
	transferer transfer.Transferer
	ownership  collection.OwnershipOracle
	logger     *zap.Logger

	fee          uint64
	feeRecipient common.Address

	locks *keyedMutex
	now   func() time.Time
}

type Option func(*Distributor)

// WithClock replaces the wall clock used for unlock checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Distributor) {
		d.now = now
	}
}

// WithFee charges amount of the native token, paid to recipient, on every redemption
// and slot claim. A zero amount disables the fee.
func WithFee(amount uint64, recipient common.Address) Option {
	return func(d *Distributor) {
		d.fee = amount
		d.feeRecipient = recipient
	}
}

// NewDistributor wires the engine to its collaborators. ownership may be nil when no
// holder-gated distribution is served.
func NewDistributor(
	reg registry.Client,
	store persistence.IDistributionPersistence,
	transferer transfer.Transferer,
	ownership collection.OwnershipOracle,
	logger *zap.Logger,
	opts ...Option,
) *Distributor {
	d := &Distributor{
		registry:   reg,
		store:      store,
		transferer: transferer,
		ownership:  ownership,
		logger:     logger,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CompactAccountAddress is the ledger address that settles a compact record's
// 32-byte account: the last 20 bytes of its keccak256 hash.
func CompactAccountAddress(account []byte) common.Address {
	return common.BytesToAddress(crypto.Keccak256(account))
}

// RedeemFlat redeems a flat whitelist entry for its recipient.
func (d *Distributor) RedeemFlat(ctx context.Context, eventID common.Hash, rec *leaf.FlatRecord, proof [][32]byte) (*types.Receipt, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidProof)
	}
	event, err := d.redeemableEvent(ctx, eventID, types.LeafKindFlat)
	if err != nil {
		return nil, err
	}
	if err := d.verifyRecord(event, rec, proof); err != nil {
		return nil, err
	}
	if err := d.checkUnlocked(rec.UnlockTimestamp); err != nil {
		return nil, err
	}

	return d.redeem(ctx, &redemption{
		event:           event,
		claimKey:        types.FlatClaimKey(eventID, rec.Index),
		claimedErr:      ErrRedeemed,
		account:         rec.Recipient,
		receivingAmount: rec.ReceivingAmount,
		sendingAmount:   rec.SendingAmount,
	})
}

// RedeemCompact redeems a compact whitelist entry. Funds settle to the account's
// ledger address, see CompactAccountAddress.
func (d *Distributor) RedeemCompact(ctx context.Context, eventID common.Hash, rec *leaf.CompactRecord, proof [][32]byte) (*types.Receipt, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidProof)
	}
	event, err := d.redeemableEvent(ctx, eventID, types.LeafKindCompact)
	if err != nil {
		return nil, err
	}
	if err := d.verifyRecord(event, rec, proof); err != nil {
		return nil, err
	}

	return d.redeem(ctx, &redemption{
		event:           event,
		claimKey:        types.FlatClaimKey(eventID, rec.Index),
		claimedErr:      ErrRedeemed,
		account:         CompactAccountAddress(rec.Account),
		receivingAmount: rec.ReceivingAmount,
		sendingAmount:   rec.SendingAmount,
	})
}

// RedeemForSpecificTokenHolder redeems an entry that names one NFT. holder must own
// that token now.
func (d *Distributor) RedeemForSpecificTokenHolder(ctx context.Context, eventID common.Hash, holder common.Address, rec *leaf.HolderRecord, proof [][32]byte) (*types.Receipt, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidProof)
	}
	event, err := d.redeemableEvent(ctx, eventID, types.LeafKindSpecificToken)
	if err != nil {
		return nil, err
	}
	if rec.Mode != types.LeafKindSpecificToken {
		return nil, fmt.Errorf("%w: record mode %s", ErrInvalidProof, rec.Mode)
	}
	if err := d.verifyRecord(event, rec, proof); err != nil {
		return nil, err
	}
	if err := d.checkUnlocked(rec.UnlockTimestamp); err != nil {
		return nil, err
	}
	if err := d.checkOwner(ctx, rec.Collection, rec.TokenID, holder); err != nil {
		return nil, err
	}

	return d.redeem(ctx, &redemption{
		event:           event,
		claimKey:        types.FlatClaimKey(eventID, rec.Index),
		claimedErr:      ErrRedeemed,
		account:         holder,
		receivingAmount: rec.ReceivingAmount,
		sendingAmount:   rec.SendingAmount,
	})
}

// RedeemForCollectionHolder redeems an entry open to any token of a collection.
// heldTokenID is the token holder presents; each entry can be redeemed once per
// distinct held token.
func (d *Distributor) RedeemForCollectionHolder(ctx context.Context, eventID common.Hash, holder common.Address, rec *leaf.HolderRecord, heldTokenID uint64, proof [][32]byte) (*types.Receipt, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidProof)
	}
	event, err := d.redeemableEvent(ctx, eventID, types.LeafKindAnyTokenInCollection)
	if err != nil {
		return nil, err
	}
	if rec.Mode != types.LeafKindAnyTokenInCollection {
		return nil, fmt.Errorf("%w: record mode %s", ErrInvalidProof, rec.Mode)
	}
	if err := d.verifyRecord(event, rec, proof); err != nil {
		return nil, err
	}
	if err := d.checkUnlocked(rec.UnlockTimestamp); err != nil {
		return nil, err
	}
	if err := d.checkOwner(ctx, rec.Collection, heldTokenID, holder); err != nil {
		return nil, err
	}

	return d.redeem(ctx, &redemption{
		event:           event,
		claimKey:        types.CollectionClaimKey(eventID, rec.Index, rec.Collection, heldTokenID),
		claimedErr:      ErrTokenClaimed,
		account:         holder,
		receivingAmount: rec.ReceivingAmount,
		sendingAmount:   rec.SendingAmount,
	})
}

// VerifyRecord reports whether rec and proof resolve to eventID's root. It performs
// no state or time checks.
func (d *Distributor) VerifyRecord(ctx context.Context, eventID common.Hash, rec leaf.Record, proof [][32]byte) (bool, error) {
	event, err := d.registry.GetDistributionEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, registry.ErrEventNotFound) {
			return false, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return false, err
	}
	if err := d.verifyRecord(event, rec, proof); err != nil {
		if errors.Is(err, ErrInvalidProof) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsClaimed reports whether a claim key has been consumed.
func (d *Distributor) IsClaimed(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	state, err := d.store.LoadClaimState(key)
	if err != nil {
		return false, fmt.Errorf("failed to load claim state: %w", err)
	}
	return state != nil && state.Claimed, nil
}

// redeemableEvent loads an event that is active and of the expected kind.
func (d *Distributor) redeemableEvent(ctx context.Context, eventID common.Hash, kind types.LeafKind) (*types.DistributionEvent, error) {
	event, err := d.registry.GetDistributionEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, registry.ErrEventNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return nil, err
	}
	if !event.IsActive() {
		return nil, fmt.Errorf("%w: event %s is %s", ErrInvalidEvent, eventID.Hex(), event.Status)
	}
	if event.Kind != kind {
		return nil, fmt.Errorf("%w: event %s holds %s leaves, not %s", ErrInvalidProof, eventID.Hex(), event.Kind, kind)
	}
	return event, nil
}

func (d *Distributor) verifyRecord(event *types.DistributionEvent, rec leaf.Record, proof [][32]byte) error {
	h, err := hasher.ByName(event.HashName)
	if err != nil {
		return fmt.Errorf("event %s: %w", event.EventID.Hex(), err)
	}
	leafHash, err := leaf.Hash(rec, h)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !merkle.VerifyHashes(leafHash, proof, event.MerkleRoot, h) {
		return fmt.Errorf("%w: leaf %d does not resolve to root %s", ErrInvalidProof, rec.LeafIndex(), event.MerkleRoot.Hex())
	}
	return nil
}

func (d *Distributor) checkUnlocked(unlockTimestamp int64) error {
	if now := d.now().Unix(); now < unlockTimestamp {
		return fmt.Errorf("%w: unlocks at %d, now %d", ErrScheduleLocked, unlockTimestamp, now)
	}
	return nil
}

func (d *Distributor) checkOwner(ctx context.Context, coll common.Address, tokenID uint64, holder common.Address) error {
	if d.ownership == nil {
		return fmt.Errorf("%w: no ownership oracle configured", ErrInvalidCollection)
	}
	owner, err := d.ownership.OwnerOf(ctx, coll, tokenID)
	switch {
	case errors.Is(err, collection.ErrUnknownCollection):
		return fmt.Errorf("%w: %s", ErrInvalidCollection, coll.Hex())
	case errors.Is(err, collection.ErrUnknownToken):
		return fmt.Errorf("%w: token %d of %s has no owner", ErrInvalidOwner, tokenID, coll.Hex())
	case err != nil:
		return fmt.Errorf("failed to resolve owner of token %d: %w", tokenID, err)
	}
	if owner != holder {
		return fmt.Errorf("%w: %s does not hold token %d of %s", ErrInvalidOwner, holder.Hex(), tokenID, coll.Hex())
	}
	return nil
}

func (d *Distributor) newReceipt(event *types.DistributionEvent, claimKey string, recipient common.Address, receiving, sending uint64) *types.Receipt {
	return &types.Receipt{
		ID:              uuid.New().String(),
		EventID:         event.EventID,
		ClaimKey:        claimKey,
		Recipient:       recipient,
		ReceivingToken:  event.ReceivingToken,
		ReceivingAmount: receiving,
		SendingToken:    event.SendingToken,
		SendingAmount:   sending,
		Fee:             d.fee,
		Timestamp:       d.now().Unix(),
	}
}
