package lottery

import "math/big"

// absorb XORs a revealed secret into the round accumulator. XOR is
// order-independent, so the final value does not depend on reveal order.
func (r *Round) absorb(secret Hash) {
	r.Accumulator = r.Accumulator.Xor(secret)
}

// WinnerSeed mixes the participant accumulator with external entropy that
// nobody could know while reveals were still open.
func WinnerSeed(accumulator, entropy Hash) Hash {
	return Keccak256(accumulator[:], entropy[:])
}

// WinningIndex reduces seed modulo the candidate count.
func WinningIndex(seed Hash, candidates uint64) uint64 {
	if candidates == 0 {
		return 0
	}
	idx := new(big.Int).Mod(seed.Big(), new(big.Int).SetUint64(candidates))
	return idx.Uint64()
}
