package lottery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps the lottery state in Redis. Each operation's batch is
// applied inside MULTI/EXEC so other clients see all of it or none.
type RedisStore struct {
	redisClient    *redis.Client
	logger         Logger
	retryAttempts  int
	retryBaseDelay time.Duration

	performanceMonitor *PerformanceMonitor
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(redisClient *redis.Client, logger Logger) *RedisStore {
	return NewRedisStoreWithRetry(redisClient, logger, DefaultRetryAttempts, DefaultRetryInterval)
}

// NewRedisStoreWithRetry creates a Redis-backed store with custom retry settings for reads
func NewRedisStoreWithRetry(redisClient *redis.Client, logger Logger, retryAttempts int, retryDelay time.Duration) *RedisStore {
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &RedisStore{
		redisClient:    redisClient,
		logger:         logger,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryDelay,

		performanceMonitor: NewPerformanceMonitor(),
	}
}

// SetPerformanceMonitor shares a monitor with the engine
func (s *RedisStore) SetPerformanceMonitor(monitor *PerformanceMonitor) {
	if monitor != nil {
		s.performanceMonitor = monitor
	}
}

// Get reads key, retrying transient failures with exponential backoff
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := s.executeWithRetry(ctx, "get", func() error {
		v, err := s.redisClient.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			data, found = nil, false
			return nil
		}
		if err != nil {
			return err
		}
		data, found = v, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, found, nil
}

// Apply writes the batch in one MULTI/EXEC. It is not retried: a failed EXEC
// is reported to the engine, which aborts the operation.
func (s *RedisStore) Apply(ctx context.Context, mutations []Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range mutations {
			if m.Delete {
				pipe.Del(ctx, m.Key)
				continue
			}
			pipe.Set(ctx, m.Key, m.Value, 0)
		}
		return nil
	})
	if err != nil {
		s.performanceMonitor.RecordStoreError()
		s.logger.Error("Redis batch of %d mutations failed: %v", len(mutations), err)
		return fmt.Errorf("redis apply failed: %w", err)
	}

	s.logger.Debug("Redis batch of %d mutations applied", len(mutations))
	return nil
}

// executeWithRetry executes a Redis operation with retry logic using exponential backoff
func (s *RedisStore) executeWithRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	startTime := time.Now()

	for attempt := 0; attempt <= s.retryAttempts; attempt++ {
		if attempt > 0 {
			// baseDelay * 2^(attempt-1), capped
			delay := time.Duration(1<<(attempt-1)) * s.retryBaseDelay
			if delay > DefaultStoreRetryMaxDelay {
				delay = DefaultStoreRetryMaxDelay
			}

			s.logger.Debug("Retrying %s operation (attempt %d/%d) after %v, total elapsed: %v",
				operation, attempt, s.retryAttempts, delay, time.Since(startTime))

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry for %s operation after %v: %w",
					operation, time.Since(startTime), ctx.Err())
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				s.logger.Info("Redis %s succeeded after %d retries", operation, attempt)
			}
			return nil
		}

		lastErr = err
		s.performanceMonitor.RecordStoreError()

		if !IsRetryableError(err) {
			s.logger.Debug("Non-retriable error for %s operation: %v", operation, err)
			break
		}
	}

	return fmt.Errorf("%s operation failed after %v: %w", operation, time.Since(startTime), lastErr)
}
