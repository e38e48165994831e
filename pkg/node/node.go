// Package node runs the distributor as a network service: it owns the engine, the
// registry and the persistence backend and exposes them over HTTP.
package node

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vaultlabs/merkle-distributor-go/pkg/auth"
	"github.com/vaultlabs/merkle-distributor-go/pkg/distributor"
	"github.com/vaultlabs/merkle-distributor-go/pkg/logger"
	"github.com/vaultlabs/merkle-distributor-go/pkg/persistence"
	"github.com/vaultlabs/merkle-distributor-go/pkg/registry"
)

// Node is a running distributor service.
type Node struct {
	Port int

	// Dependencies
	distributor    *distributor.Distributor
	registry       registry.Client
	store          persistence.IDistributionPersistence
	adminVerifier  auth.Verifier
	callerVerifier auth.CallerVerifier
	redeemLimiter  *rate.Limiter
	server         *Server
	logger         *zap.Logger
}

// Config holds node configuration
type Config struct {
	Port int
	// RedeemRateLimit caps redemption requests per second across all callers.
	// Zero disables limiting.
	RedeemRateLimit float64
	RedeemBurst     int
	Logger          *zap.Logger // Optional logger, will create default if nil
}

// Dependencies are the components a node serves.
type Dependencies struct {
	Distributor *distributor.Distributor
	Registry    registry.Client
	Store       persistence.IDistributionPersistence
	// AdminVerifier guards event administration. When nil the admin endpoints
	// refuse every request.
	AdminVerifier auth.Verifier
	// CallerVerifier binds allocation claims and splits to the address in a
	// caller token. When nil those endpoints refuse every request.
	CallerVerifier auth.CallerVerifier
}

// NewNode creates a new node instance with dependency injection
func NewNode(cfg Config, deps Dependencies) (*Node, error) {
	if deps.Distributor == nil || deps.Registry == nil || deps.Store == nil {
		return nil, fmt.Errorf("distributor, registry and store are required")
	}

	nodeLogger := cfg.Logger
	if nodeLogger == nil {
		var err error
		nodeLogger, err = logger.NewLogger(&logger.LoggerConfig{Debug: false})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	n := &Node{
		Port:           cfg.Port,
		distributor:    deps.Distributor,
		registry:       deps.Registry,
		store:          deps.Store,
		adminVerifier:  deps.AdminVerifier,
		callerVerifier: deps.CallerVerifier,
		logger:         nodeLogger,
	}
	if cfg.RedeemRateLimit > 0 {
		burst := cfg.RedeemBurst
		if burst < 1 {
			burst = 1
		}
		n.redeemLimiter = rate.NewLimiter(rate.Limit(cfg.RedeemRateLimit), burst)
	}
	if n.adminVerifier == nil {
		nodeLogger.Sugar().Warnw("No admin verifier configured, event administration is disabled")
	}
	if n.callerVerifier == nil {
		nodeLogger.Sugar().Warnw("No caller verifier configured, allocation claims and splits are disabled")
	}

	n.server = NewServer(n, cfg.Port)
	return n, nil
}

// Start starts the node's HTTP server
func (n *Node) Start() error {
	if err := n.store.HealthCheck(); err != nil {
		return fmt.Errorf("persistence is not healthy: %w", err)
	}
	return n.server.Start()
}

// Stop drains in-flight requests and closes the persistence backend.
func (n *Node) Stop(ctx context.Context) error {
	serverErr := n.server.Stop(ctx)
	if err := n.store.Close(); err != nil {
		n.logger.Sugar().Errorw("Failed to close persistence", "error", err)
	}
	return serverErr
}

// Server returns the node's HTTP server.
func (n *Node) Server() *Server {
	return n.server
}
