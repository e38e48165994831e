package inMemoryLedger

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/transfer"
)

// InMemoryLedger is a balance table implementing transfer.Transferer, used by the
// standalone server and by tests.
type InMemoryLedger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]uint64
	logger   *zap.Logger
}

var _ transfer.Transferer = (*InMemoryLedger)(nil)

func NewInMemoryLedger(logger *zap.Logger) *InMemoryLedger {
	return &InMemoryLedger{
		balances: make(map[common.Address]map[common.Address]uint64),
		logger:   logger,
	}
}

// Mint credits amount of token to account.
func (l *InMemoryLedger) Mint(token, account common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	accounts := l.accounts(token)
	if accounts[account] > math.MaxUint64-amount {
		return fmt.Errorf("minting %d would overflow balance of %s", amount, account.Hex())
	}
	accounts[account] += amount
	return nil
}

// BalanceOf returns account's balance of token.
func (l *InMemoryLedger) BalanceOf(token, account common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balances[token][account]
}

func (l *InMemoryLedger) Transfer(ctx context.Context, token, from, to common.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	accounts := l.accounts(token)
	if accounts[from] < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", transfer.ErrInsufficientBalance, from.Hex(), accounts[from], token.Hex(), amount)
	}
	if from != to && accounts[to] > math.MaxUint64-amount {
		return fmt.Errorf("transfer of %d would overflow balance of %s", amount, to.Hex())
	}

	accounts[from] -= amount
	accounts[to] += amount

	l.logger.Sugar().Debugw("Ledger transfer",
		"token", token.Hex(),
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", amount,
	)
	return nil
}

// accounts must be called with the lock held.
func (l *InMemoryLedger) accounts(token common.Address) map[common.Address]uint64 {
	accounts, ok := l.balances[token]
	if !ok {
		accounts = make(map[common.Address]uint64)
		l.balances[token] = accounts
	}
	return accounts
}
