package lottery

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 错误代码常量
const (
	// 系统级错误 (1000-1999)
	ErrCodeSystem             ErrorCode = "LOTTERY_1000"
	ErrCodeStoreFailure       ErrorCode = "LOTTERY_1001"
	ErrCodeConfigInvalid      ErrorCode = "LOTTERY_1004"
	ErrCodeEntropyUnavailable ErrorCode = "LOTTERY_1006"
	ErrCodeSerialization      ErrorCode = "LOTTERY_1007"

	// 业务级错误 (2000-2999)
	ErrCodeInvalidParameter    ErrorCode = "LOTTERY_2000"
	ErrCodeWrongPhase          ErrorCode = "LOTTERY_2001"
	ErrCodeInsufficientPayment ErrorCode = "LOTTERY_2002"
	ErrCodeAlreadyRevealed     ErrorCode = "LOTTERY_2003"
	ErrCodeCommitmentMismatch  ErrorCode = "LOTTERY_2004"
	ErrCodeNoTickets           ErrorCode = "LOTTERY_2005"
	ErrCodeNoCandidates        ErrorCode = "LOTTERY_2006"

	// 记账错误 (2900-2999)
	ErrCodeAccountingInvariant ErrorCode = "LOTTERY_2900"

	// 锁相关错误 (3000-3999)
	ErrCodeLockAcquisitionFailed ErrorCode = "LOTTERY_3000"
	ErrCodeLockReleaseFailure    ErrorCode = "LOTTERY_3002"

	// 安全相关错误 (4000-4999)
	ErrCodeUnauthorized ErrorCode = "LOTTERY_4000"

	// 限流相关错误 (5000-5999)
	ErrCodeCircuitBreakerOpen ErrorCode = "LOTTERY_5002"
)

// ErrorSeverity 错误严重程度
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
)

// LotteryError 增强的错误类型
type LotteryError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	Severity   ErrorSeverity  `json:"severity"`
	Timestamp  time.Time      `json:"timestamp"`
	Operation  string         `json:"operation,omitempty"`
	StackTrace string         `json:"stack_trace,omitempty"`
	Cause      error          `json:"-"`
	Retryable  bool           `json:"retryable"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Error 实现 error 接口
func (e *LotteryError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *LotteryError) Unwrap() error { return e.Cause }

// Is 实现 errors.Is 接口, 按错误代码比较
func (e *LotteryError) Is(target error) bool {
	if t, ok := target.(*LotteryError); ok {
		return e.Code == t.Code
	}
	return false
}

// clone returns a shallow copy so the predefined sentinels are never mutated.
func (e *LotteryError) clone() *LotteryError {
	c := *e
	c.Timestamp = time.Now()
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// WithCause 添加原因错误
func (e *LotteryError) WithCause(cause error) *LotteryError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithDetails 添加详细信息
func (e *LotteryError) WithDetails(details string) *LotteryError {
	c := e.clone()
	c.Details = details
	return c
}

// WithOperation 添加操作信息
func (e *LotteryError) WithOperation(operation string) *LotteryError {
	c := e.clone()
	c.Operation = operation
	return c
}

// WithMetadata 添加元数据
func (e *LotteryError) WithMetadata(key string, value any) *LotteryError {
	c := e.clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
	return c
}

// WithStackTrace 添加堆栈跟踪
func (e *LotteryError) WithStackTrace() *LotteryError {
	c := e.clone()
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	c.StackTrace = string(buf[:n])
	return c
}

// NewError 创建新的错误
func NewError(code ErrorCode, message string) *LotteryError {
	return &LotteryError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
	}
}

// NewRetryableError 创建可重试的错误
func NewRetryableError(code ErrorCode, message string) *LotteryError {
	err := NewError(code, message)
	err.Retryable = true
	return err
}

// NewCriticalError 创建严重错误
func NewCriticalError(code ErrorCode, message string) *LotteryError {
	err := NewError(code, message)
	err.Severity = SeverityCritical
	return err
}

// 预定义的错误实例
var (
	// 系统级错误
	ErrSystemError        = NewCriticalError(ErrCodeSystem, "system error occurred")
	ErrStoreFailure       = NewRetryableError(ErrCodeStoreFailure, "state store operation failed")
	ErrConfigInvalid      = NewCriticalError(ErrCodeConfigInvalid, "configuration is invalid")
	ErrEntropyUnavailable = NewRetryableError(ErrCodeEntropyUnavailable, "external entropy unavailable")
	ErrSerialization      = NewError(ErrCodeSerialization, "state record could not be encoded or decoded")

	// 业务级错误
	ErrUnauthorized        = NewError(ErrCodeUnauthorized, "caller lacks the required role")
	ErrWrongPhase          = NewError(ErrCodeWrongPhase, "operation not allowed in the current phase")
	ErrInvalidParameter    = NewError(ErrCodeInvalidParameter, "invalid round parameter")
	ErrInsufficientPayment = NewError(ErrCodeInsufficientPayment, "payment does not cover a single ticket")
	ErrAlreadyRevealed     = NewError(ErrCodeAlreadyRevealed, "commitment already revealed")
	ErrCommitmentMismatch  = NewError(ErrCodeCommitmentMismatch, "secret does not match stored commitment")
	ErrNoTickets           = NewError(ErrCodeNoTickets, "caller holds no tickets in this round")
	ErrNoCandidates        = NewError(ErrCodeNoCandidates, "candidate pool is empty")

	// 记账错误, 表示逻辑缺陷, 必须中止
	ErrAccountingInvariantViolated = NewCriticalError(ErrCodeAccountingInvariant, "escrow accounting invariant violated")

	// 锁相关错误
	ErrLockAcquisitionFailed = NewRetryableError(ErrCodeLockAcquisitionFailed, "failed to acquire round lock")
	ErrLockReleaseFailure    = NewError(ErrCodeLockReleaseFailure, "failed to release round lock")

	// 限流相关错误
	ErrCircuitBreakerOpen = NewRetryableError(ErrCodeCircuitBreakerOpen, "circuit breaker is open")
)

// businessCodes are the precondition failures a caller can trigger by calling
// at the wrong time or with the wrong arguments.
var businessCodes = map[ErrorCode]struct{}{
	ErrCodeUnauthorized:        {},
	ErrCodeWrongPhase:          {},
	ErrCodeInvalidParameter:    {},
	ErrCodeInsufficientPayment: {},
	ErrCodeAlreadyRevealed:     {},
	ErrCodeCommitmentMismatch:  {},
	ErrCodeNoTickets:           {},
	ErrCodeNoCandidates:        {},
}

// IsBusinessError reports whether err is a precondition rejection rather
// than an infrastructure failure.
func IsBusinessError(err error) bool {
	var lotteryErr *LotteryError
	if !errors.As(err, &lotteryErr) {
		return false
	}
	_, ok := businessCodes[lotteryErr.Code]
	return ok
}

// IsRetryableError 检查是否为可重试错误
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var lotteryErr *LotteryError
	if errors.As(err, &lotteryErr) {
		return lotteryErr.Retryable
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"network is unreachable",
		"temporary failure",
		"server closed",
		"broken pipe",
		"i/o timeout",
		"dial tcp",
		"read tcp",
		"write tcp",
		"connection timed out",
		"no route to host",
		"host is down",
		"connection aborted",
		"operation timed out",
		"redis: connection pool timeout",
		"context deadline exceeded",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
