package hasher

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// MiMCBN254 is the zk-friendly MiMC hash over the BN254 scalar field.
//
// The concatenated input is split into 32-byte big-endian blocks, the last one zero
// padded on the right, and every block is reduced modulo the field order before it is
// absorbed.
type MiMCBN254 struct{}

func (MiMCBN254) Hash(data ...[]byte) [32]byte {
	total := 0
	for _, d := range data {
		total += len(d)
	}
	buf := make([]byte, 0, total)
	for _, d := range data {
		buf = append(buf, d...)
	}
	if rem := len(buf) % fr.Bytes; rem != 0 || len(buf) == 0 {
		buf = append(buf, make([]byte, fr.Bytes-rem)...)
	}

	h := mimc.NewMiMC()
	for i := 0; i < len(buf); i += fr.Bytes {
		var e fr.Element
		e.SetBytes(buf[i : i+fr.Bytes])
		block := e.Bytes()
		// block is reduced so the write cannot fail
		_, _ = h.Write(block[:])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (MiMCBN254) Name() string { return NameMiMCBN254 }
