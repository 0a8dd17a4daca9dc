package common

import (
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/mimc"
)

// MiMC is the hash the proof system side of the ledger speaks. Commitments
// and nullifiers handed to us by wallets and the prover are MiMC outputs over
// BLS12-381 scalars, so the reference derivations used by genesis tooling and
// tests have to match.

// MiMCHash absorbs each input as a reduced field element and returns the
// digest as a Hash.
func MiMCHash(inputs ...[]byte) Hash {
	h := mimc.NewMiMC()
	for _, in := range inputs {
		var e fr.Element
		e.SetBytes(in)
		b := e.Bytes()
		h.Write(b[:])
	}
	return BytesToHash(h.Sum(nil))
}

// MiMCHashUint64 absorbs a uint64 alongside byte inputs, used for value
// commitments.
func MiMCHashUint64(val uint64, inputs ...[]byte) Hash {
	all := make([][]byte, 0, len(inputs)+1)
	all = append(all, Uint64ToBytes(val))
	all = append(all, inputs...)
	return MiMCHash(all...)
}
