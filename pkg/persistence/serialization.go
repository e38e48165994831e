package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

func marshalRecord[T any](name string, v *T) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot marshal nil %s", name)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s to JSON: %w", name, err)
	}

	return data, nil
}

func unmarshalRecord[T any](name string, data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to %s: %w", name, err)
	}

	return &v, nil
}

// MarshalDistributionEvent serializes a DistributionEvent to JSON bytes.
func MarshalDistributionEvent(ev *types.DistributionEvent) ([]byte, error) {
	return marshalRecord("DistributionEvent", ev)
}

// UnmarshalDistributionEvent deserializes a DistributionEvent from JSON bytes.
func UnmarshalDistributionEvent(data []byte) (*types.DistributionEvent, error) {
	return unmarshalRecord[types.DistributionEvent]("DistributionEvent", data)
}

// MarshalClaimState serializes a ClaimState to JSON bytes.
func MarshalClaimState(cs *types.ClaimState) ([]byte, error) {
	return marshalRecord("ClaimState", cs)
}

// UnmarshalClaimState deserializes a ClaimState from JSON bytes.
func UnmarshalClaimState(data []byte) (*types.ClaimState, error) {
	return unmarshalRecord[types.ClaimState]("ClaimState", data)
}

// MarshalAllocationUnit serializes an AllocationUnit to JSON bytes.
func MarshalAllocationUnit(u *types.AllocationUnit) ([]byte, error) {
	return marshalRecord("AllocationUnit", u)
}

// UnmarshalAllocationUnit deserializes an AllocationUnit from JSON bytes.
func UnmarshalAllocationUnit(data []byte) (*types.AllocationUnit, error) {
	return unmarshalRecord[types.AllocationUnit]("AllocationUnit", data)
}
