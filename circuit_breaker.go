package lottery

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
)

// CircuitBreakerLottery 带熔断器的抽奖
// Only infrastructure failures count against the breaker; precondition
// rejections such as WrongPhase are ordinary answers.
type CircuitBreakerLottery struct {
	lottery Lottery

	breaker *gobreaker.CircuitBreaker
	logger  Logger
	config  *CircuitBreakerConfig
}

// NewCircuitBreakerLottery 创建带熔断器的抽奖
func NewCircuitBreakerLottery(lottery Lottery, config *CircuitBreakerConfig, logger Logger) *CircuitBreakerLottery {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}
	if !config.Enabled {
		// 熔断器未启用, 返回透传的包装器
		return &CircuitBreakerLottery{lottery: lottery, logger: logger, config: config}
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 当请求数达到最小要求且失败率超过阈值时触发熔断
			return counts.Requests >= config.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsBusinessError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if config.OnStateChange {
				logger.Info("Circuit breaker '%s' state changed from %s to %s", name, from, to)
			}
		},
	}

	return &CircuitBreakerLottery{
		lottery: lottery,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
		config:  config,
	}
}

// State returns the breaker state; closed when the breaker is disabled
func (c *CircuitBreakerLottery) State() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

// executeWithBreaker 使用熔断器执行操作
func executeWithBreaker[T any](c *CircuitBreakerLottery, operation func() (T, error)) (T, error) {
	if c.breaker == nil {
		return operation()
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return operation()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) {
			return zero, ErrCircuitBreakerOpen.WithDetails("circuit breaker is open, requests are being rejected")
		}
		if errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, ErrCircuitBreakerOpen.WithDetails("too many requests, circuit breaker is half-open")
		}
		return zero, err
	}

	return result.(T), nil
}

// Activate 开启轮次
func (c *CircuitBreakerLottery) Activate(ctx context.Context, caller Account, params RoundParams) (*RoundActivated, error) {
	return executeWithBreaker(c, func() (*RoundActivated, error) {
		return c.lottery.Activate(ctx, caller, params)
	})
}

// BuyTicket 购票
func (c *CircuitBreakerLottery) BuyTicket(ctx context.Context, caller Account, payment uint64, commitment Hash) (*Purchase, error) {
	return executeWithBreaker(c, func() (*Purchase, error) {
		return c.lottery.BuyTicket(ctx, caller, payment, commitment)
	})
}

// Reveal 揭示秘密
func (c *CircuitBreakerLottery) Reveal(ctx context.Context, caller Account, secret Hash) (*RevealReceipt, error) {
	return executeWithBreaker(c, func() (*RevealReceipt, error) {
		return c.lottery.Reveal(ctx, caller, secret)
	})
}

// FindWinner 开奖
func (c *CircuitBreakerLottery) FindWinner(ctx context.Context, caller Account) (*RoundWon, error) {
	return executeWithBreaker(c, func() (*RoundWon, error) {
		return c.lottery.FindWinner(ctx, caller)
	})
}

// Reclaim 清理过期记录
func (c *CircuitBreakerLottery) Reclaim(ctx context.Context, caller Account, roundID uint64, account Account) error {
	_, err := executeWithBreaker(c, func() (struct{}, error) {
		return struct{}{}, c.lottery.Reclaim(ctx, caller, roundID, account)
	})
	return err
}

// TicketBalance 查询票数
func (c *CircuitBreakerLottery) TicketBalance(ctx context.Context, account Account) (uint64, error) {
	return executeWithBreaker(c, func() (uint64, error) {
		return c.lottery.TicketBalance(ctx, account)
	})
}

// Commitment 查询承诺
func (c *CircuitBreakerLottery) Commitment(ctx context.Context, account Account) (Hash, error) {
	return executeWithBreaker(c, func() (Hash, error) {
		return c.lottery.Commitment(ctx, account)
	})
}

// Revealed 查询是否已揭示
func (c *CircuitBreakerLottery) Revealed(ctx context.Context, account Account) (bool, error) {
	return executeWithBreaker(c, func() (bool, error) {
		return c.lottery.Revealed(ctx, account)
	})
}

// RoundInfo 查询轮次信息
func (c *CircuitBreakerLottery) RoundInfo(ctx context.Context) (*RoundInfo, error) {
	return executeWithBreaker(c, func() (*RoundInfo, error) {
		return c.lottery.RoundInfo(ctx)
	})
}

// CreditBalance 查询余额
func (c *CircuitBreakerLottery) CreditBalance(ctx context.Context, account Account) (uint64, error) {
	return executeWithBreaker(c, func() (uint64, error) {
		return c.lottery.CreditBalance(ctx, account)
	})
}

var _ Lottery = (*CircuitBreakerLottery)(nil)
