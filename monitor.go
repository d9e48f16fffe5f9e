package lottery

import (
	"sync"
	"sync/atomic"
	"time"
)

// Operation names used in logs and metrics
const (
	OpActivate   = "Activate"
	OpBuyTicket  = "BuyTicket"
	OpReveal     = "Reveal"
	OpFindWinner = "FindWinner"
	OpReclaim    = "Reclaim"
	OpRead       = "Read"
)

// PerformanceMetrics 性能指标收集器
type PerformanceMetrics struct {
	// 业务操作统计
	Activations int64 `json:"activations"`  // 开启轮次次数
	Purchases   int64 `json:"purchases"`    // 成功购票次数
	TicketsSold int64 `json:"tickets_sold"` // 售出票数
	Reveals     int64 `json:"reveals"`      // 成功揭示次数
	Payouts     int64 `json:"payouts"`      // 开奖次数
	Reclaims    int64 `json:"reclaims"`     // 清理次数

	// 失败统计
	RejectedOperations int64 `json:"rejected_operations"` // 前置条件拒绝次数
	FailedOperations   int64 `json:"failed_operations"`   // 基础设施失败次数

	// 锁操作统计
	LockAcquisitions    int64 `json:"lock_acquisitions"`     // 锁获取次数
	LockAcquisitionTime int64 `json:"lock_acquisition_time"` // 锁获取总时间(纳秒)
	LockReleases        int64 `json:"lock_releases"`         // 锁释放次数
	LockFailures        int64 `json:"lock_failures"`         // 锁获取失败次数

	// 性能统计
	TotalOperations    int64 `json:"total_operations"`     // 总操作次数
	TotalOperationTime int64 `json:"total_operation_time"` // 总操作时间(纳秒)

	// 存储统计
	StoreErrors int64 `json:"store_errors"` // 存储错误数

	// 时间戳
	StartTime      int64 `json:"start_time"`       // 开始时间
	LastUpdateTime int64 `json:"last_update_time"` // 最后更新时间
}

// GetAverageOperationTime 获取平均操作时间
func (pm *PerformanceMetrics) GetAverageOperationTime() time.Duration {
	total := atomic.LoadInt64(&pm.TotalOperations)
	if total == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&pm.TotalOperationTime) / total)
}

// GetAverageLockTime 获取平均锁获取时间
func (pm *PerformanceMetrics) GetAverageLockTime() time.Duration {
	acquisitions := atomic.LoadInt64(&pm.LockAcquisitions)
	if acquisitions == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&pm.LockAcquisitionTime) / acquisitions)
}

// GetRejectionRate 获取被拒绝操作的比例(百分比)
func (pm *PerformanceMetrics) GetRejectionRate() float64 {
	total := atomic.LoadInt64(&pm.TotalOperations)
	if total == 0 {
		return 0.0
	}
	return float64(atomic.LoadInt64(&pm.RejectedOperations)) / float64(total) * 100.0
}

// Reset 重置性能指标
func (pm *PerformanceMetrics) Reset() {
	for _, counter := range []*int64{
		&pm.Activations, &pm.Purchases, &pm.TicketsSold, &pm.Reveals, &pm.Payouts, &pm.Reclaims,
		&pm.RejectedOperations, &pm.FailedOperations,
		&pm.LockAcquisitions, &pm.LockAcquisitionTime, &pm.LockReleases, &pm.LockFailures,
		&pm.TotalOperations, &pm.TotalOperationTime, &pm.StoreErrors,
	} {
		atomic.StoreInt64(counter, 0)
	}
	now := time.Now().UnixNano()
	atomic.StoreInt64(&pm.StartTime, now)
	atomic.StoreInt64(&pm.LastUpdateTime, now)
}

// ================================================================================

// PerformanceMonitor 性能监控器
type PerformanceMonitor struct {
	metrics *PerformanceMetrics
	mu      sync.RWMutex
	enabled bool
}

// NewPerformanceMonitor 创建新的性能监控器
func NewPerformanceMonitor() *PerformanceMonitor {
	pm := &PerformanceMonitor{
		metrics: &PerformanceMetrics{},
		enabled: true,
	}
	pm.metrics.Reset()
	return pm
}

// Enable 启用性能监控
func (pm *PerformanceMonitor) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.enabled = true
}

// Disable 禁用性能监控
func (pm *PerformanceMonitor) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.enabled = false
}

// IsEnabled 检查是否启用了性能监控
func (pm *PerformanceMonitor) IsEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.enabled
}

func (pm *PerformanceMonitor) touch() {
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordOperation 记录一次操作的结果
func (pm *PerformanceMonitor) RecordOperation(op string, err error, duration time.Duration) {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.TotalOperations, 1)
	atomic.AddInt64(&pm.metrics.TotalOperationTime, int64(duration))

	switch {
	case err == nil:
		switch op {
		case OpActivate:
			atomic.AddInt64(&pm.metrics.Activations, 1)
		case OpBuyTicket:
			atomic.AddInt64(&pm.metrics.Purchases, 1)
		case OpReveal:
			atomic.AddInt64(&pm.metrics.Reveals, 1)
		case OpFindWinner:
			atomic.AddInt64(&pm.metrics.Payouts, 1)
		case OpReclaim:
			atomic.AddInt64(&pm.metrics.Reclaims, 1)
		}
	case IsBusinessError(err):
		atomic.AddInt64(&pm.metrics.RejectedOperations, 1)
	default:
		atomic.AddInt64(&pm.metrics.FailedOperations, 1)
	}

	pm.touch()
}

// RecordTicketsSold 记录售出票数
func (pm *PerformanceMonitor) RecordTicketsSold(tickets uint64) {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.TicketsSold, int64(tickets))
	pm.touch()
}

// RecordLockAcquisition 记录锁获取操作
func (pm *PerformanceMonitor) RecordLockAcquisition(success bool, duration time.Duration) {
	if !pm.IsEnabled() {
		return
	}

	if success {
		atomic.AddInt64(&pm.metrics.LockAcquisitions, 1)
		atomic.AddInt64(&pm.metrics.LockAcquisitionTime, int64(duration))
	} else {
		atomic.AddInt64(&pm.metrics.LockFailures, 1)
	}

	pm.touch()
}

// RecordLockRelease 记录锁释放操作
func (pm *PerformanceMonitor) RecordLockRelease() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.LockReleases, 1)
	pm.touch()
}

// RecordStoreError 记录存储错误
func (pm *PerformanceMonitor) RecordStoreError() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.StoreErrors, 1)
	pm.touch()
}

// GetMetrics 获取性能指标的副本
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	m := pm.metrics
	return PerformanceMetrics{
		Activations:         atomic.LoadInt64(&m.Activations),
		Purchases:           atomic.LoadInt64(&m.Purchases),
		TicketsSold:         atomic.LoadInt64(&m.TicketsSold),
		Reveals:             atomic.LoadInt64(&m.Reveals),
		Payouts:             atomic.LoadInt64(&m.Payouts),
		Reclaims:            atomic.LoadInt64(&m.Reclaims),
		RejectedOperations:  atomic.LoadInt64(&m.RejectedOperations),
		FailedOperations:    atomic.LoadInt64(&m.FailedOperations),
		LockAcquisitions:    atomic.LoadInt64(&m.LockAcquisitions),
		LockAcquisitionTime: atomic.LoadInt64(&m.LockAcquisitionTime),
		LockReleases:        atomic.LoadInt64(&m.LockReleases),
		LockFailures:        atomic.LoadInt64(&m.LockFailures),
		TotalOperations:     atomic.LoadInt64(&m.TotalOperations),
		TotalOperationTime:  atomic.LoadInt64(&m.TotalOperationTime),
		StoreErrors:         atomic.LoadInt64(&m.StoreErrors),
		StartTime:           atomic.LoadInt64(&m.StartTime),
		LastUpdateTime:      atomic.LoadInt64(&m.LastUpdateTime),
	}
}

// ResetMetrics 重置性能指标
func (pm *PerformanceMonitor) ResetMetrics() { pm.metrics.Reset() }
