package distributor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/transfer"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// redemption is a verified claim waiting to be reserved and settled.
type redemption struct {
	event           *types.DistributionEvent
	claimKey        string
	claimedErr      error
	account         common.Address
	receivingAmount uint64
	sendingAmount   uint64
}

// leg is one transfer of a settlement.
type leg struct {
	name   string
	token  common.Address
	from   common.Address
	to     common.Address
	amount uint64
}

// redeem reserves the claim key, settles the transfers and releases the reservation
// again if settlement fails and every completed leg was reversed.
func (d *Distributor) redeem(ctx context.Context, r *redemption) (*types.Receipt, error) {
	unlock := d.locks.Lock(r.claimKey)
	defer unlock()

	reserved, err := d.reserveClaim(r)
	if err != nil {
		return nil, err
	}

	legs := d.redemptionLegs(r)
	if err := d.settle(ctx, legs); err != nil {
		if errors.Is(err, ErrSettlementIncomplete) {
			d.logger.Sugar().Errorw("Keeping claim reserved after incomplete reversal",
				"event_id", r.event.EventID.Hex(),
				"claim_key", r.claimKey,
				"recipient", r.account.Hex(),
				"error", err,
			)
			return nil, err
		}
		d.releaseClaim(reserved)
		return nil, err
	}

	receipt := d.newReceipt(r.event, r.claimKey, r.account, r.receivingAmount, r.sendingAmount)
	d.logger.Sugar().Infow("Redeemed",
		"event_id", r.event.EventID.Hex(),
		"claim_key", r.claimKey,
		"recipient", r.account.Hex(),
		"receiving_amount", r.receivingAmount,
		"sending_amount", r.sendingAmount,
		"receipt_id", receipt.ID,
	)
	return receipt, nil
}

// reserveClaim marks the claim key consumed with a conditional write.
func (d *Distributor) reserveClaim(r *redemption) (*types.ClaimState, error) {
	current, err := d.store.LoadClaimState(r.claimKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim state: %w", err)
	}

	var version uint64
	if current != nil {
		if current.Claimed {
			return nil, fmt.Errorf("%w: %s", r.claimedErr, r.claimKey)
		}
		version = current.Version
	}

	reserved := &types.ClaimState{
		Key:       r.claimKey,
		Claimed:   true,
		Claimant:  r.account,
		Amount:    r.receivingAmount,
		ClaimedAt: d.now().Unix(),
		Version:   version + 1,
	}
	if err := d.store.CompareAndSwapClaimState(version, reserved); err != nil {
		if !errors.Is(err, persistence.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to reserve claim: %w", err)
		}
		// Another process wrote the key between our load and write.
		latest, loadErr := d.store.LoadClaimState(r.claimKey)
		if loadErr == nil && latest != nil && latest.Claimed {
			return nil, fmt.Errorf("%w: %s", r.claimedErr, r.claimKey)
		}
		return nil, fmt.Errorf("%w: %s", ErrClaimConflict, r.claimKey)
	}
	return reserved, nil
}

// releaseClaim rolls a reservation back after a failed settlement.
func (d *Distributor) releaseClaim(reserved *types.ClaimState) {
	released := &types.ClaimState{
		Key:     reserved.Key,
		Claimed: false,
		Version: reserved.Version + 1,
	}
	if err := d.store.CompareAndSwapClaimState(reserved.Version, released); err != nil {
		d.logger.Sugar().Errorw("Failed to release claim reservation",
			"claim_key", reserved.Key,
			"error", err,
		)
	}
}

func (d *Distributor) redemptionLegs(r *redemption) []leg {
	legs := d.feeLegs(r.account)
	if r.sendingAmount > 0 {
		legs = append(legs, leg{
			name:   "sending",
			token:  r.event.SendingToken,
			from:   r.account,
			to:     r.event.Treasury,
			amount: r.sendingAmount,
		})
	}
	if r.receivingAmount > 0 {
		legs = append(legs, leg{
			name:   "receiving",
			token:  r.event.ReceivingToken,
			from:   r.event.Vault,
			to:     r.account,
			amount: r.receivingAmount,
		})
	}
	return legs
}

func (d *Distributor) feeLegs(payer common.Address) []leg {
	if d.fee == 0 {
		return nil
	}
	return []leg{{
		name:   "fee",
		token:  transfer.NativeToken,
		from:   payer,
		to:     d.feeRecipient,
		amount: d.fee,
	}}
}

// settle executes legs in order. When one fails the completed legs are reversed, most
// recent first, and the failure is returned. If a reversal fails too the error also
// matches ErrSettlementIncomplete.
func (d *Distributor) settle(ctx context.Context, legs []leg) error {
	for i, l := range legs {
		err := d.transferer.Transfer(ctx, l.token, l.from, l.to, l.amount)
		if err == nil {
			continue
		}

		var failure error
		if l.name == "fee" && errors.Is(err, transfer.ErrInsufficientBalance) {
			failure = fmt.Errorf("%w: %v", ErrInsufficientFee, err)
		} else {
			failure = fmt.Errorf("%s transfer of %d failed: %w", l.name, l.amount, err)
		}
		if revErr := d.reverse(legs[:i]); revErr != nil {
			return fmt.Errorf("%w: %w: %v", ErrSettlementIncomplete, failure, revErr)
		}
		return failure
	}
	return nil
}

// reverse undoes done, most recent first. Every leg is attempted; the returned
// error joins the reversals that failed.
func (d *Distributor) reverse(done []leg) error {
	// the request context may already be cancelled, compensation must still run
	ctx := context.Background()
	var failed []error
	for i := len(done) - 1; i >= 0; i-- {
		l := done[i]
		if err := d.transferer.Transfer(ctx, l.token, l.to, l.from, l.amount); err != nil {
			d.logger.Error("Failed to reverse transfer leg",
				zap.String("leg", l.name),
				zap.String("token", l.token.Hex()),
				zap.String("from", l.to.Hex()),
				zap.String("to", l.from.Hex()),
				zap.Uint64("amount", l.amount),
				zap.Error(err),
			)
			failed = append(failed, fmt.Errorf("reverse %s leg: %w", l.name, err))
		}
	}
	return errors.Join(failed...)
}
