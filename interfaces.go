package lottery

import (
	"context"
	"time"
)

// Lottery defines the public operation surface of a commit-reveal lottery
type Lottery interface {
	// Activate opens a new round; operator only, while inactive
	Activate(ctx context.Context, caller Account, params RoundParams) (*RoundActivated, error)

	// BuyTicket pays for whole tickets during Sale and registers the caller's commitment
	BuyTicket(ctx context.Context, caller Account, payment uint64, commitment Hash) (*Purchase, error)

	// Reveal discloses the caller's secret during Reveal
	Reveal(ctx context.Context, caller Account, secret Hash) (*RevealReceipt, error)

	// FindWinner selects the winner and settles the round during Payout
	FindWinner(ctx context.Context, caller Account) (*RoundWon, error)

	// Reclaim erases a past round's ticket and commitment records for account
	Reclaim(ctx context.Context, caller Account, roundID uint64, account Account) error

	// TicketBalance returns account's ticket count in the active round
	TicketBalance(ctx context.Context, account Account) (uint64, error)

	// Commitment returns account's commitment in the active round
	Commitment(ctx context.Context, account Account) (Hash, error)

	// Revealed reports whether account has revealed in the active round
	Revealed(ctx context.Context, account Account) (bool, error)

	// RoundInfo returns a snapshot of the current round
	RoundInfo(ctx context.Context) (*RoundInfo, error)

	// CreditBalance returns the value custody has credited to account
	CreditBalance(ctx context.Context, account Account) (uint64, error)
}

// Mutation is a single write in an atomic batch. Delete removes Key.
type Mutation struct {
	Key    string
	Value  []byte
	Delete bool
}

// Store is the durable keyed state the engine runs against
type Store interface {
	// Get returns the value under key and whether it exists
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Apply writes every mutation or none of them
	Apply(ctx context.Context, mutations []Mutation) error
}

// Locker serializes operations across processes sharing a store
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, lockValue string, expireTime time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error)
}

// EntropySource supplies a value no participant can know before the reveal
// phase closes, such as the digest of a block produced after the deadline.
type EntropySource interface {
	Entropy(ctx context.Context, roundID uint64) (Hash, error)
}

// EventPublisher delivers round events after they are committed
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Clock reports the current time; it is read once per operation
type Clock func() time.Time

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}
