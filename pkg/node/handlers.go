package node

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
	"github.com/vaultlabs/merkle-distributor-go/pkg/leaf"
	"github.com/vaultlabs/merkle-distributor-go/pkg/merkle"
	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// requireAdmin rejects requests without a valid admin bearer token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.node.adminVerifier == nil {
			s.writeError(w, http.StatusForbidden, "admin_disabled", "event administration is not enabled on this node")
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := s.node.adminVerifier.VerifyAdminToken(r.Context(), token)
		if err != nil {
			s.node.logger.Sugar().Warnw("Rejected admin request", "path", r.URL.Path, "error", err)
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
			return
		}

		s.node.logger.Sugar().Debugw("Admin request", "path", r.URL.Path, "subject", claims.Subject)
		next(w, r)
	}
}

// callerHandlerFunc serves a request on behalf of a verified caller address.
type callerHandlerFunc func(w http.ResponseWriter, r *http.Request, caller common.Address)

// requireCaller resolves the caller from a caller bearer token. Allocation
// ownership checks run against that address only.
func (s *Server) requireCaller(next callerHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.node.callerVerifier == nil {
			s.writeError(w, http.StatusForbidden, "caller_auth_disabled", "allocation management is not enabled on this node")
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		caller, err := s.node.callerVerifier.VerifyCallerToken(r.Context(), token)
		if err != nil {
			s.node.logger.Sugar().Warnw("Rejected caller request", "path", r.URL.Path, "error", err)
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "invalid caller token")
			return
		}

		next(w, r, caller)
	}
}

// rateLimited answers 429 once the node's redemption budget is spent.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.node.redeemLimiter != nil && !s.node.redeemLimiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req types.CreateEventRequest
	if !s.decode(w, r, &req) {
		return
	}

	event := req.ToEvent()
	if err := s.node.registry.CreateDistributionEvent(r.Context(), event); err != nil {
		if status, code := statusForError(err); status != http.StatusInternalServerError {
			s.writeError(w, status, code, err.Error())
			return
		}
		// validation failures surface as plain errors from the registry
		s.writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, event)
}

func (s *Server) handleSetEventStatus(w http.ResponseWriter, r *http.Request) {
	eventID, ok := s.pathHash(w, r)
	if !ok {
		return
	}
	var req types.SetEventStatusRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.node.registry.SetEventStatus(r.Context(), eventID, req.Active); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	event, err := s.node.registry.GetDistributionEvent(r.Context(), eventID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.node.registry.ListDistributionEvents(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := s.pathHash(w, r)
	if !ok {
		return
	}
	event, err := s.node.registry.GetDistributionEvent(r.Context(), eventID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	eventID, ok := s.pathHash(w, r)
	if !ok {
		return
	}
	units, err := s.node.distributor.ListAllocations(r.Context(), eventID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, units)
}

func (s *Server) handleRedeemFlat(w http.ResponseWriter, r *http.Request) {
	var req types.RedeemFlatRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec := &leaf.FlatRecord{
		Index:           req.Index,
		UnlockTimestamp: req.UnlockTimestamp,
		Recipient:       req.Recipient,
		ReceivingAmount: req.ReceivingAmount,
		SendingAmount:   req.SendingAmount,
	}
	receipt, err := s.node.distributor.RedeemFlat(r.Context(), req.EventID, rec, types.ProofFromHashes(req.Proof))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleRedeemCompact(w http.ResponseWriter, r *http.Request) {
	var req types.RedeemCompactRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec := &leaf.CompactRecord{
		Index:           req.Index,
		Account:         req.Account,
		ReceivingAmount: req.ReceivingAmount,
		SendingAmount:   req.SendingAmount,
	}
	receipt, err := s.node.distributor.RedeemCompact(r.Context(), req.EventID, rec, types.ProofFromHashes(req.Proof))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleRedeemSpecific(w http.ResponseWriter, r *http.Request) {
	var req types.RedeemHolderRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec := holderRecord(types.LeafKindSpecificToken, &req)
	receipt, err := s.node.distributor.RedeemForSpecificTokenHolder(r.Context(), req.EventID, req.Holder, rec, types.ProofFromHashes(req.Proof))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleRedeemCollection(w http.ResponseWriter, r *http.Request) {
	var req types.RedeemHolderRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec := holderRecord(types.LeafKindAnyTokenInCollection, &req)
	receipt, err := s.node.distributor.RedeemForCollectionHolder(r.Context(), req.EventID, req.Holder, rec, req.HeldTokenID, types.ProofFromHashes(req.Proof))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

func holderRecord(mode types.LeafKind, req *types.RedeemHolderRequest) *leaf.HolderRecord {
	return &leaf.HolderRecord{
		Mode:            mode,
		Index:           req.Index,
		UnlockTimestamp: req.UnlockTimestamp,
		Collection:      req.Collection,
		TokenID:         req.TokenID,
		ReceivingAmount: req.ReceivingAmount,
		SendingAmount:   req.SendingAmount,
	}
}

func (s *Server) handleMintAllocation(w http.ResponseWriter, r *http.Request) {
	var req types.MintAllocationRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec := &leaf.AllocationRecord{
		Index:      req.Index,
		To:         req.To,
		MerkleID:   req.MerkleID,
		TotalAlloc: req.TotalAlloc,
	}
	unit, err := s.node.distributor.MintAllocation(r.Context(), req.EventID, rec, types.ProofFromHashes(req.Proof))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, unit)
}

func (s *Server) handleClaimAllocation(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req types.ClaimAllocationRequest
	if !s.decode(w, r, &req) {
		return
	}

	receipt, err := s.node.distributor.ClaimAllocation(r.Context(), r.PathValue("id"), caller, req.Slot)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleSplitAllocation(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req types.SplitAllocationRequest
	if !s.decode(w, r, &req) {
		return
	}

	a, b, err := s.node.distributor.SplitAllocation(r.Context(), r.PathValue("id"), caller, req.RateBasisPoints)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, types.SplitAllocationResponse{Children: [2]*types.AllocationUnit{a, b}})
}

func (s *Server) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	unit, err := s.node.distributor.GetAllocation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, unit)
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	claimed, err := s.node.distributor.IsClaimed(r.Context(), key)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"key": key, "claimed": claimed})
}

func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyProofRequest
	if !s.decode(w, r, &req) {
		return
	}

	h, err := hasher.ByName(req.HashName)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	proof := types.ProofFromHashes(req.Proof)
	computed := merkle.ComputeRoot(req.Leaf, proof, h)
	s.writeJSON(w, http.StatusOK, types.VerifyProofResponse{
		Valid:        computed == req.Root,
		ComputedRoot: computed,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.node.store.HealthCheck(); err != nil {
		s.node.logger.Sugar().Warnw("Health check failed", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
}

// decode parses the JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("Failed to parse request: %v", err))
		return false
	}
	return true
}

func (s *Server) pathHash(w http.ResponseWriter, r *http.Request) (common.Hash, bool) {
	raw := r.PathValue("id")
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		s.writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("event id %q is not a 0x-prefixed 32-byte hash", raw))
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		s.node.logger.Sugar().Errorw("Request failed", "path", r.URL.Path, "error", err)
		s.writeError(w, status, code, "internal error")
		return
	}
	s.node.logger.Sugar().Debugw("Request rejected", "path", r.URL.Path, "status", status, "error", err)
	s.writeError(w, status, code, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, types.ErrorResponse{Error: message, Code: code})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.node.logger.Sugar().Errorw("Failed to encode response", "error", err)
	}
}
