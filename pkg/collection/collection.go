// Package collection answers NFT ownership questions for holder-gated distributions.
package collection

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownToken      = errors.New("unknown token")
)

// OwnershipOracle resolves the current owner of an NFT.
type OwnershipOracle interface {
	// OwnerOf returns the owner of tokenID in collection. It returns
	// ErrUnknownCollection when the collection is not tracked and ErrUnknownToken when
	// the token has no owner.
	OwnerOf(ctx context.Context, collection common.Address, tokenID uint64) (common.Address, error)
}
