package lottery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLottery answers RoundInfo with a fixed error and counts calls.
type stubLottery struct {
	Lottery
	err   error
	calls int
}

func (s *stubLottery) RoundInfo(context.Context) (*RoundInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &RoundInfo{RoundID: 1}, nil
}

func testBreakerConfig() *CircuitBreakerConfig {
	config := DefaultCircuitBreakerConfig()
	config.Name = "test"
	config.MinRequests = 3
	config.FailureRatio = 0.6
	config.Timeout = time.Minute
	return config
}

func TestCircuitBreakerLottery(t *testing.T) {
	ctx := context.Background()

	t.Run("基础设施错误触发熔断", func(t *testing.T) {
		stub := &stubLottery{err: ErrStoreFailure.WithCause(errors.New("connection refused"))}
		cb := NewCircuitBreakerLottery(stub, testBreakerConfig(), NewSilentLogger())

		for range 3 {
			_, err := cb.RoundInfo(ctx)
			assert.ErrorIs(t, err, ErrStoreFailure)
		}
		assert.Equal(t, gobreaker.StateOpen, cb.State())

		_, err := cb.RoundInfo(ctx)
		assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
		assert.True(t, IsRetryableError(err))
		assert.Equal(t, 3, stub.calls)
	})

	t.Run("业务拒绝不触发熔断", func(t *testing.T) {
		stub := &stubLottery{err: ErrWrongPhase}
		cb := NewCircuitBreakerLottery(stub, testBreakerConfig(), NewSilentLogger())

		for range 10 {
			_, err := cb.RoundInfo(ctx)
			assert.ErrorIs(t, err, ErrWrongPhase)
		}
		assert.Equal(t, gobreaker.StateClosed, cb.State())
		assert.Equal(t, 10, stub.calls)
	})

	t.Run("禁用时透传", func(t *testing.T) {
		config := testBreakerConfig()
		config.Enabled = false
		stub := &stubLottery{err: ErrStoreFailure}
		cb := NewCircuitBreakerLottery(stub, config, nil)

		for range 10 {
			_, err := cb.RoundInfo(ctx)
			assert.ErrorIs(t, err, ErrStoreFailure)
		}
		assert.Equal(t, gobreaker.StateClosed, cb.State())
		assert.Equal(t, 10, stub.calls)
	})

	t.Run("包装完整的引擎", func(t *testing.T) {
		h := newTestHarness(t, nil)
		cb := NewCircuitBreakerLottery(h.engine, nil, nil)

		event, err := cb.Activate(ctx, testOperator, testParams)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), event.RoundID)

		purchase, err := cb.BuyTicket(ctx, alice, 300, CommitmentFor(secretOf("alice")))
		require.NoError(t, err)
		assert.Equal(t, uint64(3), purchase.Tickets)

		balance, err := cb.TicketBalance(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), balance)

		commitment, err := cb.Commitment(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, CommitmentFor(secretOf("alice")), commitment)

		h.clock.Advance(time.Hour)
		_, err = cb.Reveal(ctx, alice, secretOf("alice"))
		require.NoError(t, err)
		revealed, err := cb.Revealed(ctx, alice)
		require.NoError(t, err)
		assert.True(t, revealed)

		h.clock.Advance(time.Hour)
		won, err := cb.FindWinner(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, alice, won.Winner)

		credit, err := cb.CreditBalance(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(270), credit)

		require.NoError(t, cb.Reclaim(ctx, bob, 1, alice))
		assert.ErrorIs(t, cb.Reclaim(ctx, bob, 2, alice), ErrInvalidParameter)
		assert.Equal(t, gobreaker.StateClosed, cb.State())
	})
}
