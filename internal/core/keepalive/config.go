package keepalive

import (
	"time"

	"github.com/dep2p/go-onionp2p/config"
)

// Config 心跳配置
type Config struct {
	// Enabled 是否主动发送 Ping；关闭时仍应答对端的 Ping
	Enabled bool

	// Interval 检查间隔，空闲超过 Interval/2 的连接会收到 Ping
	Interval time.Duration

	// MessageVersion 心跳消息的协议版本标签
	MessageVersion string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Interval:       30 * time.Second,
		MessageVersion: "1",
	}
}

// ConfigFromUnified 从统一配置创建心跳配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	out.Enabled = cfg.KeepAlive.Enabled
	out.Interval = cfg.KeepAlive.Interval.Duration()
	out.MessageVersion = cfg.Connection.MessageVersion
	return out
}
