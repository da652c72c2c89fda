package throttle

import (
	"errors"
	"time"

	"github.com/dep2p/go-onionp2p/config"
	"github.com/dep2p/go-onionp2p/internal/core/codec"
)

// ============================================================================
//                              配置
// ============================================================================

// Config 限流配置
type Config struct {
	// PerSecond 每秒允许的入站帧数
	PerSecond int

	// PerTenSeconds 每 10 秒允许的入站帧数
	PerTenSeconds int

	// PacingGap 相邻入站帧的最小间隔
	PacingGap time.Duration

	// PacingSleep 相邻入站帧过近时的等待时间
	PacingSleep time.Duration

	// SendThrottleTrigger 距上次发送不足该时长时进入出站合并路径
	SendThrottleTrigger time.Duration

	// SendThrottleSleep Bundle 调度延迟，以及不支持 Bundle 时的发送等待
	SendThrottleSleep time.Duration

	// MaxBundleSize 单个 Bundle 的最大字节数
	MaxBundleSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PerSecond:           200,
		PerTenSeconds:       1000,
		PacingGap:           10 * time.Millisecond,
		PacingSleep:         20 * time.Millisecond,
		SendThrottleTrigger: 20 * time.Millisecond,
		SendThrottleSleep:   50 * time.Millisecond,
		MaxBundleSize:       codec.MaxFrameSize * 9 / 10,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.PerSecond <= 0 || c.PerTenSeconds <= 0 {
		return errors.New("throttle: message limits must be positive")
	}
	if c.PacingGap < 0 || c.PacingSleep < 0 || c.SendThrottleTrigger < 0 || c.SendThrottleSleep < 0 {
		return errors.New("throttle: durations must not be negative")
	}
	if c.MaxBundleSize <= 0 || c.MaxBundleSize > codec.MaxFrameSize {
		return errors.New("throttle: max bundle size must be in (0, max frame size]")
	}
	return nil
}

// ConfigFromUnified 从统一配置创建限流配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	t := cfg.Throttle
	return Config{
		PerSecond:           t.PerSecond,
		PerTenSeconds:       t.PerTenSeconds,
		PacingGap:           t.PacingGap.Duration(),
		PacingSleep:         t.PacingSleep.Duration(),
		SendThrottleTrigger: t.SendThrottleTrigger.Duration(),
		SendThrottleSleep:   t.SendThrottleSleep.Duration(),
		MaxBundleSize:       t.MaxBundleSize,
	}
}
