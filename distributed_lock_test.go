package lottery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLockKey = LockKeyPrefix + RoundLockKey

func TestDistributedLockManager_AcquireLock(t *testing.T) {
	ctx := context.Background()

	t.Run("直接获取", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		defer db.Close()
		lm := NewLockManagerWithRetry(db, time.Second, 2, time.Millisecond)

		mock.ExpectSetNX(testLockKey, "owner-1", 5*time.Second).SetVal(true)

		acquired, err := lm.AcquireLock(ctx, RoundLockKey, "owner-1", 5*time.Second)
		require.NoError(t, err)
		assert.True(t, acquired)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, int64(1), lm.GetPerformanceMetrics().LockAcquisitions)
	})

	t.Run("锁被占用时轮询", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		defer db.Close()
		lm := NewLockManagerWithRetry(db, time.Second, 2, time.Millisecond)

		mock.ExpectSetNX(testLockKey, "owner-2", 5*time.Second).SetVal(false)
		mock.ExpectSetNX(testLockKey, "owner-2", 5*time.Second).SetVal(false)
		mock.ExpectSetNX(testLockKey, "owner-2", 5*time.Second).SetVal(true)

		acquired, err := lm.AcquireLock(ctx, RoundLockKey, "owner-2", 5*time.Second)
		require.NoError(t, err)
		assert.True(t, acquired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("连续错误超过重试次数", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		defer db.Close()
		lm := NewLockManagerWithRetry(db, time.Second, 1, time.Millisecond)

		mock.ExpectSetNX(testLockKey, "owner-3", DefaultLockExpiration).SetErr(errors.New("connection refused"))
		mock.ExpectSetNX(testLockKey, "owner-3", DefaultLockExpiration).SetErr(errors.New("connection refused"))

		// 过期时间为 0 时使用默认值
		acquired, err := lm.AcquireLock(ctx, RoundLockKey, "owner-3", 0)
		assert.False(t, acquired)
		assert.ErrorIs(t, err, ErrLockAcquisitionFailed)
		assert.True(t, IsRetryableError(err))
		assert.NoError(t, mock.ExpectationsWereMet())

		metrics := lm.GetPerformanceMetrics()
		assert.Equal(t, int64(1), metrics.LockFailures)
		assert.Equal(t, int64(2), metrics.StoreErrors)
	})

	t.Run("参数无效", func(t *testing.T) {
		db, _ := redismock.NewClientMock()
		defer db.Close()
		lm := NewLockManager(db, time.Second)

		_, err := lm.AcquireLock(ctx, "", "v", time.Second)
		assert.ErrorIs(t, err, ErrInvalidParameter)
		_, err = lm.AcquireLock(ctx, RoundLockKey, "", time.Second)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestDistributedLockManager_TryAcquireLock(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	defer db.Close()
	lm := NewLockManagerFromConfig(db, nil)

	mock.ExpectSetNX(testLockKey, "owner", time.Second).SetVal(false)
	mock.ExpectSetNX(testLockKey, "owner", time.Second).SetErr(errors.New("i/o timeout"))

	acquired, err := lm.TryAcquireLock(ctx, RoundLockKey, "owner", time.Second)
	require.NoError(t, err)
	assert.False(t, acquired)

	_, err = lm.TryAcquireLock(ctx, RoundLockKey, "owner", time.Second)
	assert.ErrorIs(t, err, ErrLockAcquisitionFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributedLockManager_ReleaseLock(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		mockSetup   func(mock redismock.ClientMock)
		wantRelease bool
		errorType   error
	}{
		{
			name: "owner releases",
			mockSetup: func(mock redismock.ClientMock) {
				mock.ExpectEval(releaseLockScript, []string{testLockKey}, "owner").SetVal(int64(1))
			},
			wantRelease: true,
		},
		{
			name: "lock expired or taken over",
			mockSetup: func(mock redismock.ClientMock) {
				mock.ExpectEval(releaseLockScript, []string{testLockKey}, "owner").SetVal(int64(0))
			},
			wantRelease: false,
		},
		{
			name: "transient error then success",
			mockSetup: func(mock redismock.ClientMock) {
				mock.ExpectEval(releaseLockScript, []string{testLockKey}, "owner").SetErr(errors.New("connection reset"))
				mock.ExpectEval(releaseLockScript, []string{testLockKey}, "owner").SetVal(int64(1))
			},
			wantRelease: true,
		},
		{
			name: "retries exhausted",
			mockSetup: func(mock redismock.ClientMock) {
				mock.ExpectEval(releaseLockScript, []string{testLockKey}, "owner").SetErr(errors.New("connection reset"))
				mock.ExpectEval(releaseLockScript, []string{testLockKey}, "owner").SetErr(errors.New("connection reset"))
			},
			errorType: ErrLockReleaseFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			defer db.Close()
			lm := NewLockManagerWithRetry(db, time.Second, 1, time.Millisecond)
			tt.mockSetup(mock)

			released, err := lm.ReleaseLock(ctx, RoundLockKey, "owner")
			if tt.errorType != nil {
				assert.ErrorIs(t, err, tt.errorType)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRelease, released)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("上下文已取消", func(t *testing.T) {
		db, _ := redismock.NewClientMock()
		defer db.Close()
		lm := NewLockManager(db, time.Second)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := lm.ReleaseLock(cancelled, RoundLockKey, "owner")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDistributedLockManager_EngineIntegration(t *testing.T) {
	rdb := setupTestRedisClient(t)
	ctx := context.Background()

	lm := NewLockManagerWithRetry(rdb, 200*time.Millisecond, 1, 10*time.Millisecond)

	acquired, err := lm.AcquireLock(ctx, RoundLockKey, "holder", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// 锁被其他持有者占用时, 引擎操作超时失败
	h := newTestHarness(t, nil)
	h.engine.SetLocker(lm, time.Second)
	_, err = h.engine.Activate(ctx, testOperator, testParams)
	assert.ErrorIs(t, err, ErrLockAcquisitionFailed)

	released, err := lm.ReleaseLock(ctx, RoundLockKey, "holder")
	require.NoError(t, err)
	assert.True(t, released)

	_, err = h.engine.Activate(ctx, testOperator, testParams)
	assert.NoError(t, err)
}
