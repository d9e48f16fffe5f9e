package lottery

import (
	"context"
	"crypto/rand"
)

// EntropyFunc adapts a function to EntropySource
type EntropyFunc func(ctx context.Context, roundID uint64) (Hash, error)

// Entropy calls f
func (f EntropyFunc) Entropy(ctx context.Context, roundID uint64) (Hash, error) {
	return f(ctx, roundID)
}

// CryptoEntropy draws from crypto/rand at payout time. The value does not
// exist until FindWinner runs, so no participant can anticipate it during
// the reveal phase.
type CryptoEntropy struct{}

// Entropy returns 32 fresh random bytes
func (CryptoEntropy) Entropy(ctx context.Context, _ uint64) (Hash, error) {
	if err := ctx.Err(); err != nil {
		return Hash{}, err
	}
	var h Hash
	if _, err := rand.Read(h[:]); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// StaticEntropy always returns the same value; useful for replaying a payout.
type StaticEntropy Hash

// Entropy returns the fixed value
func (s StaticEntropy) Entropy(context.Context, uint64) (Hash, error) { return Hash(s), nil }
