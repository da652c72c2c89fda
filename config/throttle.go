package config

import (
	"fmt"
	"time"
)

// ThrottleConfig 限流配置
//
// 入站按滑动窗口计数，出站在距上次发送过近时把消息合并为 Bundle。
type ThrottleConfig struct {
	// PerSecond 每秒允许的入站消息数
	PerSecond int `json:"per_second"`

	// PerTenSeconds 每 10 秒允许的入站消息数
	PerTenSeconds int `json:"per_ten_seconds"`

	// PacingGap 相邻入站帧的最小间隔
	PacingGap Duration `json:"pacing_gap"`

	// PacingSleep 入站帧过近时的等待时间
	PacingSleep Duration `json:"pacing_sleep"`

	// SendThrottleTrigger 距上次发送不足该时长时进入合并路径
	SendThrottleTrigger Duration `json:"send_throttle_trigger"`

	// SendThrottleSleep Bundle 调度延迟
	SendThrottleSleep Duration `json:"send_throttle_sleep"`

	// MaxBundleSize 单个 Bundle 的最大字节数
	MaxBundleSize int `json:"max_bundle_size"`
}

// DefaultThrottleConfig 返回默认限流配置
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		PerSecond:           200,
		PerTenSeconds:       1000,
		PacingGap:           Duration(10 * time.Millisecond),
		PacingSleep:         Duration(20 * time.Millisecond),
		SendThrottleTrigger: Duration(20 * time.Millisecond),
		SendThrottleSleep:   Duration(50 * time.Millisecond),
		MaxBundleSize:       maxFrameSize * 9 / 10,
	}
}

// Validate 验证限流配置
func (c ThrottleConfig) Validate() error {
	if c.PerSecond <= 0 || c.PerTenSeconds <= 0 {
		return fmt.Errorf("%w: message limits must be positive", ErrInvalidThrottle)
	}
	if c.PacingGap < 0 || c.PacingSleep < 0 || c.SendThrottleTrigger < 0 || c.SendThrottleSleep < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidThrottle)
	}
	if c.MaxBundleSize <= 0 || c.MaxBundleSize > maxFrameSize {
		return fmt.Errorf("%w: max bundle size must be in (0, %d]", ErrInvalidThrottle, maxFrameSize)
	}
	return nil
}
