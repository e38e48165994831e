package distributor

import (
	"errors"

	"github.com/vaultlabs/merkle-distributor-go/pkg/allocation"
	"github.com/vaultlabs/merkle-distributor-go/pkg/transfer"
)

// Redemption failures. Callers match them with errors.Is; returned errors carry
// additional context.
var (
	ErrInvalidEvent         = errors.New("invalid event")
	ErrInvalidProof         = errors.New("invalid proof")
	ErrScheduleLocked       = errors.New("schedule locked")
	ErrScheduleNotAvailable = errors.New("schedule not available")
	ErrRedeemed             = errors.New("event is redeemed")
	ErrTokenClaimed         = errors.New("token is claimed")
	ErrAlreadyMinted        = errors.New("allocation already minted")
	ErrAlreadyClaimed       = errors.New("already claimed")
	ErrInvalidAllocation    = errors.New("invalid allocation")
	ErrInvalidOwner         = errors.New("invalid owner")
	ErrInvalidCollection    = errors.New("invalid collection")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInsufficientFee      = errors.New("insufficient fee")
	ErrClaimConflict        = errors.New("claim modified concurrently, retry")
	// ErrSettlementIncomplete marks a failed settlement whose completed legs could
	// not all be reversed. The claim stays reserved for manual reconciliation.
	ErrSettlementIncomplete = errors.New("settlement failed and was not fully reversed")

	ErrInvalidRate         = allocation.ErrInvalidRate
	ErrInsufficientBalance = transfer.ErrInsufficientBalance
)
