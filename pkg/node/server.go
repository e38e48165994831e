package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

/*
Server exposes the distributor over HTTP. Bodies are JSON; hashes, addresses and
byte strings are 0x-prefixed hex and amounts are JSON numbers.

Administration (Authorization: Bearer <admin JWT>):
  POST /events               register a distribution event
  POST /events/{id}/status   enable or disable redemptions

Redemption (rate limited):
  POST /redeem/flat          flat whitelist entry, paid to its recipient
  POST /redeem/compact       compact entry, paid to the account's ledger address
  POST /redeem/specific      entry bound to one NFT, paid to its holder
  POST /redeem/collection    entry open to any token of a collection

Vesting:
  POST /allocations/mint          mint a unit from a vesting-allocation entry
  POST /allocations/{id}/claim    claim one unlocked slot (caller token)
  POST /allocations/{id}/split    split a unit into two by rate (caller token)
  GET  /allocations/{id}

Queries:
  GET  /events
  GET  /events/{id}
  GET  /events/{id}/allocations
  GET  /claims/{key}
  POST /proofs/verify        stateless proof check
  GET  /health
*/

const (
	readHeaderTimeout = 10 * time.Second
	maxBodyBytes      = 1 << 20
)

// Server handles HTTP requests for the node
type Server struct {
	node       *Node
	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(node *Node, port int) *Server {
	s := &Server{
		node: node,
	}

	mux := http.NewServeMux()

	// Event administration
	mux.HandleFunc("POST /events", s.requireAdmin(s.handleCreateEvent))
	mux.HandleFunc("POST /events/{id}/status", s.requireAdmin(s.handleSetEventStatus))
	mux.HandleFunc("GET /events", s.handleListEvents)
	mux.HandleFunc("GET /events/{id}", s.handleGetEvent)
	mux.HandleFunc("GET /events/{id}/allocations", s.handleListAllocations)

	// Redemption endpoints
	mux.HandleFunc("POST /redeem/flat", s.rateLimited(s.handleRedeemFlat))
	mux.HandleFunc("POST /redeem/compact", s.rateLimited(s.handleRedeemCompact))
	mux.HandleFunc("POST /redeem/specific", s.rateLimited(s.handleRedeemSpecific))
	mux.HandleFunc("POST /redeem/collection", s.rateLimited(s.handleRedeemCollection))

	// Vesting allocations
	mux.HandleFunc("POST /allocations/mint", s.rateLimited(s.handleMintAllocation))
	mux.HandleFunc("POST /allocations/{id}/claim", s.rateLimited(s.requireCaller(s.handleClaimAllocation)))
	mux.HandleFunc("POST /allocations/{id}/split", s.requireCaller(s.handleSplitAllocation))
	mux.HandleFunc("GET /allocations/{id}", s.handleGetAllocation)

	mux.HandleFunc("GET /claims/{key}", s.handleGetClaim)
	mux.HandleFunc("POST /proofs/verify", s.handleVerifyProof)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.node.logger.Sugar().Infow("Starting HTTP server", "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.node.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
