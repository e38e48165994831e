// Package transfer is the boundary between the distribution engine and whatever moves
// funds. The engine only needs a single primitive.
package transfer

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the sentinel token address for the chain's native currency.
var NativeToken = common.Address{}

var ErrInsufficientBalance = errors.New("insufficient balance")

// Transferer moves amount of token from one account to another. Implementations must
// either move the full amount or nothing.
type Transferer interface {
	Transfer(ctx context.Context, token, from, to common.Address, amount uint64) error
}

// IsNative reports whether token is the native-currency sentinel.
func IsNative(token common.Address) bool {
	return token == NativeToken
}
