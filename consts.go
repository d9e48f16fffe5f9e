package lottery

import "time"

const (
	// DefaultLockTimeout is the default timeout for acquiring the round lock
	DefaultLockTimeout = 30 * time.Second

	// DefaultRetryAttempts is the default number of retry attempts
	DefaultRetryAttempts = 3

	// DefaultRetryInterval is the default interval between retry attempts
	DefaultRetryInterval = 100 * time.Millisecond

	// DefaultLockExpiration is the default expiration time for locks
	DefaultLockExpiration = 30 * time.Second

	// MaxRetryAttempts is the maximum number of retry attempts allowed
	MaxRetryAttempts = 10

	// MinLockTimeout is the minimum lock timeout allowed
	MinLockTimeout = 1 * time.Second

	// MaxLockTimeout is the maximum lock timeout allowed
	MaxLockTimeout = 5 * time.Minute

	// LockKeyPrefix is the prefix for Redis lock keys
	LockKeyPrefix = "lottery:lock:"

	// RoundLockKey is the lock every operation holds while it runs
	RoundLockKey = "round"
)

// Store key layout. Every key is additionally prefixed with the configured namespace.
const (
	DefaultNamespace = "lottery:"

	roundKey   = "round"
	escrowKey  = "escrow"
	poolKey    = "pool"
	ticketKey  = "ticket:"
	commitKey  = "commit:"
	creditKey  = "credit:"
	firstRound = uint64(1)
)

const (
	// DefaultEventChannel is the Redis channel round events are published on
	DefaultEventChannel = "lottery:events"

	// DefaultStoreRetryMaxDelay caps the exponential backoff between store retries
	DefaultStoreRetryMaxDelay = 5 * time.Second
)

const (
	// DefaultCircuitBreakerName is the default name for Circuit Breaker
	DefaultCircuitBreakerName = "fair-lottery"

	// DefaultCircuitBreakerMaxRequests is the default max requests
	DefaultCircuitBreakerMaxRequests = 3

	// DefaultCircuitBreakerInterval is the default interval
	DefaultCircuitBreakerInterval = 60 * time.Second

	// DefaultCircuitBreakerTimeout is the default timeout
	DefaultCircuitBreakerTimeout = 30 * time.Second

	// DefaultCircuitBreakerFailureRatio is the default failure ratio
	DefaultCircuitBreakerFailureRatio = 0.6

	// DefaultCircuitBreakerMinRequests is the default min requests
	DefaultCircuitBreakerMinRequests = 3

	// DefaultCircuitBreakerOnStateChange is the default on state change
	DefaultCircuitBreakerOnStateChange = true
)

const (
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPassword     = ""
	DefaultRedisDB           = 0
	DefaultRedisPoolSize     = 50
	DefaultRedisMinIdleConns = 10
	DefaultRedisMaxRetries   = 3
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisPoolTimeout  = 4 * time.Second
)

const (
	DefaultTicketPrice       = uint64(100)
	DefaultCommissionDivisor = uint64(10)
	DefaultSaleDuration      = 24 * time.Hour
	DefaultRevealDuration    = 24 * time.Hour
)
