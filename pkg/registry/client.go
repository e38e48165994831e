// Package registry records distribution events: which Merkle root, leaf kind and hasher
// a distribution was committed with, and whether it still accepts redemptions.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

var (
	ErrEventExists   = errors.New("event already exists")
	ErrEventNotFound = errors.New("event not found")
)

// Client defines the interface for distribution registry operations
type Client interface {
	// GetDistributionEvent returns the event, or ErrEventNotFound.
	GetDistributionEvent(ctx context.Context, eventID common.Hash) (*types.DistributionEvent, error)

	// CreateDistributionEvent registers a new event. The event is stored active.
	// Returns ErrEventExists if the ID is taken.
	CreateDistributionEvent(ctx context.Context, event *types.DistributionEvent) error

	// SetEventStatus enables or disables redemptions for an event.
	SetEventStatus(ctx context.Context, eventID common.Hash, active bool) error

	// ListDistributionEvents returns every registered event.
	ListDistributionEvents(ctx context.Context) ([]*types.DistributionEvent, error)
}

// PersistentClient is a Client backed by the distribution persistence layer.
type PersistentClient struct {
	store       persistence.IDistributionPersistence
	logger      *zap.Logger
	now         func() time.Time
	defaultHash string
}

// NewPersistentClient creates a registry client over store.
func NewPersistentClient(store persistence.IDistributionPersistence, logger *zap.Logger) *PersistentClient {
	return &PersistentClient{
		store:       store,
		logger:      logger,
		now:         time.Now,
		defaultHash: hasher.DefaultName,
	}
}

// SetDefaultHashName sets the hasher recorded for events created without one.
func (c *PersistentClient) SetDefaultHashName(name string) error {
	if name == "" {
		name = hasher.DefaultName
	}
	if _, err := hasher.ByName(name); err != nil {
		return err
	}
	c.defaultHash = name
	return nil
}

func (c *PersistentClient) GetDistributionEvent(ctx context.Context, eventID common.Hash) (*types.DistributionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	event, err := c.store.LoadDistributionEvent(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", eventID.Hex(), err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID.Hex())
	}
	return event, nil
}

func (c *PersistentClient) CreateDistributionEvent(ctx context.Context, event *types.DistributionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.HashName == "" {
		event.HashName = c.defaultHash
	}
	if _, err := hasher.ByName(event.HashName); err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	event.Status = types.EventStatusActive
	if event.CreatedAt == 0 {
		event.CreatedAt = c.now().Unix()
	}

	if err := c.store.InsertDistributionEvent(event); err != nil {
		if errors.Is(err, persistence.ErrAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrEventExists, event.EventID.Hex())
		}
		return fmt.Errorf("failed to store event: %w", err)
	}

	c.logger.Sugar().Infow("Distribution event created",
		"event_id", event.EventID.Hex(),
		"kind", event.Kind,
		"hash", event.HashName,
		"merkle_root", event.MerkleRoot.Hex(),
	)
	return nil
}

func (c *PersistentClient) SetEventStatus(ctx context.Context, eventID common.Hash, active bool) error {
	event, err := c.GetDistributionEvent(ctx, eventID)
	if err != nil {
		return err
	}

	status := types.EventStatusDisabled
	if active {
		status = types.EventStatusActive
	}
	if event.Status == status {
		return nil
	}
	event.Status = status

	if err := c.store.SaveDistributionEvent(event); err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}

	c.logger.Sugar().Infow("Distribution event status changed", "event_id", eventID.Hex(), "status", status)
	return nil
}

func (c *PersistentClient) ListDistributionEvents(ctx context.Context) ([]*types.DistributionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.store.ListDistributionEvents()
}
