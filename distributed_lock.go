package lottery

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Engines sharing one Redis store serialize every operation on a single
// round lock:
// - Lock Acquisition: Redis SET NX, polled until the lock timeout
// - Lock Release: Lua compare-and-delete so only the owner can release

const (
	// releaseLockScript ensures only the lock owner can release the lock.
	// Without it an engine whose lock expired could delete the lock another
	// engine acquired afterwards.
	releaseLockScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

// DistributedLockManager manages Redis distributed locks
type DistributedLockManager struct {
	redisClient   *redis.Client
	lockTimeout   time.Duration
	retryAttempts int
	retryInterval time.Duration

	performanceMonitor *PerformanceMonitor
}

// NewLockManager creates a new distributed lock manager
func NewLockManager(redisClient *redis.Client, lockTimeout time.Duration) *DistributedLockManager {
	return NewLockManagerWithRetry(redisClient, lockTimeout, DefaultRetryAttempts, DefaultRetryInterval)
}

// NewLockManagerWithRetry creates a new distributed lock manager with custom retry settings
func NewLockManagerWithRetry(
	redisClient *redis.Client, lockTimeout time.Duration, retryAttempts int, retryInterval time.Duration,
) *DistributedLockManager {
	return &DistributedLockManager{
		redisClient:   redisClient,
		lockTimeout:   lockTimeout,
		retryAttempts: retryAttempts,
		retryInterval: retryInterval,

		performanceMonitor: NewPerformanceMonitor(),
	}
}

// NewLockManagerFromConfig creates a lock manager from the lock section of the config
func NewLockManagerFromConfig(redisClient *redis.Client, config *LockConfig) *DistributedLockManager {
	if config == nil {
		config = DefaultLockConfig()
	}
	return NewLockManagerWithRetry(redisClient, config.Timeout, config.RetryAttempts, config.RetryInterval)
}

// AcquireLock polls SET NX until the lock is taken or lockTimeout elapses.
// Redis errors are retried up to retryAttempts times in a row.
func (m *DistributedLockManager) AcquireLock(ctx context.Context, lockKey, lockValue string, expireTime time.Duration) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameter.WithDetails("lock key and value are required")
	}
	if expireTime <= 0 {
		expireTime = DefaultLockExpiration
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	fullLockKey := LockKeyPrefix + lockKey
	startTime := time.Now()
	consecutiveErrors := 0

	for {
		acquired, err := m.redisClient.SetNX(timeoutCtx, fullLockKey, lockValue, expireTime).Result()
		switch {
		case err != nil:
			m.performanceMonitor.RecordStoreError()
			consecutiveErrors++
			if consecutiveErrors > m.retryAttempts {
				m.performanceMonitor.RecordLockAcquisition(false, time.Since(startTime))
				return false, ErrLockAcquisitionFailed.WithCause(err)
			}
		case acquired:
			m.performanceMonitor.RecordLockAcquisition(true, time.Since(startTime))
			return true, nil
		default:
			consecutiveErrors = 0
		}

		select {
		case <-timeoutCtx.Done():
			m.performanceMonitor.RecordLockAcquisition(false, time.Since(startTime))
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, ErrLockAcquisitionFailed.WithDetails("lock timeout " + m.lockTimeout.String())
		case <-time.After(m.retryInterval):
		}
	}
}

// TryAcquireLock attempts to acquire a lock without retries (single attempt)
func (m *DistributedLockManager) TryAcquireLock(ctx context.Context, lockKey, lockValue string, expireTime time.Duration) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameter.WithDetails("lock key and value are required")
	}
	if expireTime <= 0 {
		expireTime = DefaultLockExpiration
	}

	acquired, err := m.redisClient.SetNX(ctx, LockKeyPrefix+lockKey, lockValue, expireTime).Result()
	if err != nil {
		m.performanceMonitor.RecordStoreError()
		return false, ErrLockAcquisitionFailed.WithCause(err)
	}
	return acquired, nil
}

// ReleaseLock releases the lock if lockValue still owns it
func (m *DistributedLockManager) ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error) {
	if lockKey == "" || lockValue == "" {
		return false, ErrInvalidParameter.WithDetails("lock key and value are required")
	}

	fullLockKey := LockKeyPrefix + lockKey

	var lastErr error
	for attempt := 0; attempt <= m.retryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		result, err := m.redisClient.Eval(ctx, releaseLockScript, []string{fullLockKey}, lockValue).Int64()
		if err != nil {
			lastErr = err
			m.performanceMonitor.RecordStoreError()
			time.Sleep(m.retryInterval)
			continue
		}

		m.performanceMonitor.RecordLockRelease()
		// 0 means the lock expired or belongs to someone else - no need to retry
		return result == 1, nil
	}

	return false, ErrLockReleaseFailure.WithCause(lastErr)
}

// GetPerformanceMetrics 获取性能指标
func (m *DistributedLockManager) GetPerformanceMetrics() PerformanceMetrics {
	return m.performanceMonitor.GetMetrics()
}

// SetPerformanceMonitor 设置性能监控器
func (m *DistributedLockManager) SetPerformanceMonitor(monitor *PerformanceMonitor) {
	if monitor != nil {
		m.performanceMonitor = monitor
	}
}
