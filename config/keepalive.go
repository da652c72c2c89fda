package config

import (
	"fmt"
	"time"
)

// KeepAliveConfig 心跳配置
type KeepAliveConfig struct {
	// Enabled 是否主动发送心跳；关闭时仍会应答 Ping
	Enabled bool `json:"enabled"`

	// Interval 检查间隔，空闲超过 Interval/2 的连接会收到 Ping
	Interval Duration `json:"interval"`
}

// DefaultKeepAliveConfig 返回默认心跳配置
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Enabled:  true,
		Interval: Duration(30 * time.Second),
	}
}

// Validate 验证心跳配置
func (c KeepAliveConfig) Validate() error {
	if c.Enabled && c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidKeepAlive)
	}
	return nil
}

// EventLoopConfig 事件循环配置
type EventLoopConfig struct {
	// HighWater 输入 goroutine 开始阻塞的队列长度
	HighWater int `json:"high_water"`

	// DrainTimeout 关闭时等待队列排空的上限
	DrainTimeout Duration `json:"drain_timeout"`
}

// DefaultEventLoopConfig 返回默认事件循环配置
func DefaultEventLoopConfig() EventLoopConfig {
	return EventLoopConfig{
		HighWater:    1024,
		DrainTimeout: Duration(500 * time.Millisecond),
	}
}

// Validate 验证事件循环配置
func (c EventLoopConfig) Validate() error {
	if c.HighWater <= 0 || c.DrainTimeout <= 0 {
		return fmt.Errorf("%w: high water and drain timeout must be positive", ErrInvalidEventLoop)
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否收集指标
	Enabled bool `json:"enabled"`

	// ListenAddr 命令行工具暴露 /metrics 的地址，空表示不暴露
	ListenAddr string `json:"listen_addr,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true}
}
