package node

import (
	"fmt"
	"time"

	"github.com/dep2p/go-onionp2p/config"
)

// Config 节点配置
type Config struct {
	// MaxConnections 同时打开的连接上限，0 表示不限制
	MaxConnections int

	// AcceptRate 每秒接受的入站连接数，<= 0 表示不限速
	AcceptRate float64

	// AcceptBurst 入站连接突发上限
	AcceptBurst int

	// AcceptBackoff Accept 出现临时错误后的等待
	AcceptBackoff time.Duration

	// DialTimeout 出站拨号超时
	DialTimeout time.Duration

	// ShutdownTimeout 连接与传输层关闭的总等待上限
	ShutdownTimeout time.Duration

	// AnnounceAddress 新建出站连接后先发送本节点地址
	AnnounceAddress bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxConnections:  100,
		AcceptRate:      20,
		AcceptBurst:     10,
		AcceptBackoff:   50 * time.Millisecond,
		DialTimeout:     2 * time.Minute,
		ShutdownTimeout: 5 * time.Second,
		AnnounceAddress: true,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.MaxConnections < 0 {
		return fmt.Errorf("%w: max connections %d", ErrInvalidConfig, c.MaxConnections)
	}
	if c.AcceptRate > 0 && c.AcceptBurst <= 0 {
		return fmt.Errorf("%w: accept burst must be positive when rate is limited", ErrInvalidConfig)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial timeout must be positive", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// ConfigFromUnified 从统一配置创建节点配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	out.MaxConnections = cfg.Network.MaxConnections
	out.AcceptRate = cfg.Network.AcceptRate
	out.AcceptBurst = cfg.Network.AcceptBurst
	out.DialTimeout = cfg.Network.DialTimeout.Duration()
	out.ShutdownTimeout = cfg.Network.ShutdownTimeout.Duration()
	return out
}
