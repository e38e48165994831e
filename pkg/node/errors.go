package node

import (
	"context"
	"errors"
	"net/http"

	"github.com/vaultlabs/merkle-distributor-go/pkg/auth"
	"github.com/vaultlabs/merkle-distributor-go/pkg/distributor"
	"github.com/vaultlabs/merkle-distributor-go/pkg/hasher"
	"github.com/vaultlabs/merkle-distributor-go/pkg/leaf"
	"github.com/vaultlabs/merkle-distributor-go/pkg/registry"
)

// errorStatus maps engine errors to an HTTP status and a stable error code.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{distributor.ErrSettlementIncomplete, http.StatusInternalServerError, "settlement_incomplete"},
	{distributor.ErrInvalidProof, http.StatusBadRequest, "invalid_proof"},
	{distributor.ErrInvalidRate, http.StatusBadRequest, "invalid_rate"},
	{distributor.ErrInvalidCollection, http.StatusBadRequest, "invalid_collection"},
	{distributor.ErrInsufficientFee, http.StatusBadRequest, "insufficient_fee"},
	{distributor.ErrInsufficientBalance, http.StatusBadRequest, "insufficient_balance"},
	{leaf.ErrInvalidRecord, http.StatusBadRequest, "invalid_record"},
	{hasher.ErrUnknownHasher, http.StatusBadRequest, "unknown_hasher"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
	{auth.ErrInvalidCallerToken, http.StatusUnauthorized, "unauthorized"},
	{distributor.ErrUnauthorized, http.StatusForbidden, "not_owner"},
	{distributor.ErrInvalidOwner, http.StatusForbidden, "invalid_owner"},
	{distributor.ErrInvalidEvent, http.StatusNotFound, "invalid_event"},
	{registry.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
	{distributor.ErrInvalidAllocation, http.StatusNotFound, "invalid_allocation"},
	{distributor.ErrRedeemed, http.StatusConflict, "redeemed"},
	{distributor.ErrTokenClaimed, http.StatusConflict, "token_claimed"},
	{distributor.ErrAlreadyMinted, http.StatusConflict, "already_minted"},
	{distributor.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{distributor.ErrClaimConflict, http.StatusConflict, "claim_conflict"},
	{registry.ErrEventExists, http.StatusConflict, "event_exists"},
	{distributor.ErrScheduleLocked, http.StatusLocked, "schedule_locked"},
	{distributor.ErrScheduleNotAvailable, http.StatusLocked, "schedule_not_available"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// statusForError returns the response status and code for err.
func statusForError(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}
