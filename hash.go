package lottery

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// HashLength is the width in bytes of secrets, commitments and the accumulator
const HashLength = 32

// Hash is a 256-bit value. Secrets, commitments, the XOR accumulator and
// external entropy all share this width.
type Hash [HashLength]byte

// Account identifies a participant or the operator.
type Account string

// Keccak256 hashes the concatenation of data with legacy Keccak-256.
func Keccak256(data ...[]byte) Hash {
	var out Hash
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	h.Sum(out[:0])
	return out
}

// CommitmentFor returns the commitment a participant submits with BuyTicket
// for the given secret.
func CommitmentFor(secret Hash) Hash { return Keccak256(secret[:]) }

// NewSecret draws a fresh secret from crypto/rand.
func NewSecret() (Hash, error) {
	var s Hash
	if _, err := rand.Read(s[:]); err != nil {
		return Hash{}, fmt.Errorf("failed to draw secret: %w", err)
	}
	return s, nil
}

// IsZero reports whether h is all zero bytes.
func (h Hash) IsZero() bool { return h == Hash{} }

// Xor returns h XOR o.
func (h Hash) Xor(o Hash) Hash {
	var out Hash
	for i := range h {
		out[i] = h[i] ^ o[i]
	}
	return out
}

// Big interprets h as a big-endian unsigned integer.
func (h Hash) Big() *big.Int { return new(big.Int).SetBytes(h[:]) }

// Hex returns the 0x-prefixed hex encoding of h.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// MarshalText encodes h as 0x-prefixed hex.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

// UnmarshalText decodes 0x-prefixed (or bare) hex of exactly HashLength bytes.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash parses a 0x-prefixed or bare hex string.
func HexToHash(s string) (Hash, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash hex %q: %w", s, err)
	}
	if len(raw) != HashLength {
		return Hash{}, fmt.Errorf("invalid hash length %d, want %d", len(raw), HashLength)
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// roundScopedKey derives keccak(account ‖ roundID) so each round's
// per-account records live under a distinct key.
func roundScopedKey(account Account, roundID uint64) string {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], roundID)
	return hex.EncodeToString(Keccak256([]byte(account), id[:]).Bytes())
}

// Bytes returns h as a slice.
func (h Hash) Bytes() []byte { return h[:] }
