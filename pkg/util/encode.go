package util

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var proofArguments = func() abi.Arguments {
	proofType, err := abi.NewType("bytes32[]", "", nil)
	if err != nil {
		panic(fmt.Sprintf("invalid bytes32[] abi type: %v", err))
	}
	return abi.Arguments{{Type: proofType}}
}()

// EncodeProof ABI-encodes a proof as a single bytes32[] argument, the form contract
// redemption calls take.
func EncodeProof(proof [][32]byte) ([]byte, error) {
	if proof == nil {
		proof = [][32]byte{}
	}
	encoded, err := proofArguments.Pack(proof)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

// DecodeProof reverses EncodeProof.
func DecodeProof(data []byte) ([][32]byte, error) {
	out, err := proofArguments.Unpack(data)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("expected 1 value, got %d", len(out))
	}
	proof, ok := out[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected proof type %T", out[0])
	}
	return proof, nil
}
