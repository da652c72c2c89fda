package throttle

import (
	"time"
)

// ============================================================================
//                              InboundWindow
// ============================================================================

// InboundWindow 入站速率窗口
//
// 非并发安全，只由连接的输入 goroutine 使用。
type InboundWindow struct {
	perSecond int
	perTen    int

	ring []time.Time
	head int // 下一个写入位置
	n    int
}

// NewInboundWindow 创建入站速率窗口
func NewInboundWindow(cfg Config) *InboundWindow {
	size := max(cfg.PerSecond, cfg.PerTenSeconds)
	return &InboundWindow{
		perSecond: cfg.PerSecond,
		perTen:    cfg.PerTenSeconds,
		ring:      make([]time.Time, size),
	}
}

// Record 记录一个帧的到达时间，返回是否超限
func (w *InboundWindow) Record(now time.Time) bool {
	violated := w.withinPrevious(w.perSecond, now, time.Second) ||
		w.withinPrevious(w.perTen, now, 10*time.Second)

	w.ring[w.head] = now
	w.head = (w.head + 1) % len(w.ring)
	if w.n < len(w.ring) {
		w.n++
	}
	return violated
}

// withinPrevious 之前第 k 个帧是否落在 window 内
func (w *InboundWindow) withinPrevious(k int, now time.Time, window time.Duration) bool {
	if k <= 0 || k > w.n {
		return false
	}
	idx := (w.head - k + len(w.ring)) % len(w.ring)
	return now.Sub(w.ring[idx]) < window
}

// ============================================================================
//                              InboundPacer
// ============================================================================

// InboundPacer 入站帧间隔控制
type InboundPacer struct {
	gap   time.Duration
	sleep time.Duration
	last  time.Time
}

// NewInboundPacer 创建入站帧间隔控制
func NewInboundPacer(cfg Config) *InboundPacer {
	return &InboundPacer{gap: cfg.PacingGap, sleep: cfg.PacingSleep}
}

// Next 记录帧到达，返回需要等待的时长
func (p *InboundPacer) Next(now time.Time) time.Duration {
	var wait time.Duration
	if !p.last.IsZero() && now.Sub(p.last) < p.gap {
		wait = p.sleep
	}
	p.last = now
	return wait
}
