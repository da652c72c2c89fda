package localhost

import (
	"time"

	"github.com/dep2p/go-onionp2p/config"
)

// Config 本地模拟传输配置
type Config struct {
	// Port 监听端口，0 表示由系统分配
	Port int

	// ReadyDelay 模拟守护进程就绪的延迟
	ReadyDelay time.Duration

	// PublishDelay 模拟隐藏服务发布的延迟
	PublishDelay time.Duration

	// DialTimeout 拨号超时
	DialTimeout time.Duration

	// KeepAlive TCP keep-alive 周期
	KeepAlive time.Duration

	// ShutdownWait 关闭时等待 serve 返回的上限
	ShutdownWait time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Port:         9999,
		ReadyDelay:   500 * time.Millisecond,
		PublishDelay: 500 * time.Millisecond,
		DialTimeout:  30 * time.Second,
		KeepAlive:    15 * time.Second,
		ShutdownWait: time.Second,
	}
}

// ConfigFromUnified 从统一配置创建本地模拟传输配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	out.Port = cfg.Network.ServicePort
	out.ReadyDelay = cfg.Network.Localhost.ReadyDelay.Duration()
	out.PublishDelay = cfg.Network.Localhost.PublishDelay.Duration()
	out.DialTimeout = cfg.Network.DialTimeout.Duration()
	return out
}
