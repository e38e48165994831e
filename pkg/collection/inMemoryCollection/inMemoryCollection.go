package inMemoryCollection

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultlabs/merkle-distributor-go/pkg/collection"
)

// InMemoryCollection tracks NFT owners in memory.
type InMemoryCollection struct {
	mu     sync.RWMutex
	owners map[common.Address]map[uint64]common.Address
}

var _ collection.OwnershipOracle = (*InMemoryCollection)(nil)

func NewInMemoryCollection() *InMemoryCollection {
	return &InMemoryCollection{
		owners: make(map[common.Address]map[uint64]common.Address),
	}
}

// Register starts tracking a collection with no tokens.
func (c *InMemoryCollection) Register(coll common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.owners[coll]; !ok {
		c.owners[coll] = make(map[uint64]common.Address)
	}
}

// SetOwner records owner as the holder of tokenID, registering the collection if needed.
func (c *InMemoryCollection) SetOwner(coll common.Address, tokenID uint64, owner common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tokens, ok := c.owners[coll]
	if !ok {
		tokens = make(map[uint64]common.Address)
		c.owners[coll] = tokens
	}
	tokens[tokenID] = owner
}

func (c *InMemoryCollection) OwnerOf(ctx context.Context, coll common.Address, tokenID uint64) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	tokens, ok := c.owners[coll]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", collection.ErrUnknownCollection, coll.Hex())
	}
	owner, ok := tokens[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s #%d", collection.ErrUnknownToken, coll.Hex(), tokenID)
	}
	return owner, nil
}
