package onion

import (
	"time"

	"github.com/dep2p/go-onionp2p/config"
)

// Config 洋葱传输配置
type Config struct {
	// ServicePort 隐藏服务对外端口
	ServicePort int

	// LocalPort 隐藏服务转发到的本地端口，0 表示由系统分配
	LocalPort int

	// HiddenServiceDir 工作目录
	HiddenServiceDir string

	// StreamIsolation 每次拨号使用独立 SOCKS 身份
	StreamIsolation bool

	// ExecutablePath tor 可执行文件，空表示从 PATH 查找
	ExecutablePath string

	// Bridges 自定义网桥
	Bridges []string

	// MaxRestartAttempts 启动失败后的最大重试次数
	MaxRestartAttempts int

	// KeyBackups 私钥滚动备份保留份数
	KeyBackups int

	// StartTimeout 单次启动（守护进程 + 发布）的超时
	StartTimeout time.Duration

	// RetryDelay 两次启动尝试之间的间隔
	RetryDelay time.Duration

	// ShutdownWait 关闭时等待 serve 返回的上限
	ShutdownWait time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ServicePort:        9999,
		HiddenServiceDir:   "tor",
		MaxRestartAttempts: 5,
		KeyBackups:         20,
		StartTimeout:       3 * time.Minute,
		RetryDelay:         2 * time.Second,
		ShutdownWait:       time.Second,
	}
}

// ConfigFromUnified 从统一配置创建洋葱传输配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	n := cfg.Network
	out.ServicePort = n.ServicePort
	out.HiddenServiceDir = n.Onion.HiddenServiceDir
	out.StreamIsolation = n.Onion.StreamIsolation
	out.ExecutablePath = n.Onion.ExecutablePath
	out.Bridges = append([]string(nil), n.Onion.Bridges...)
	out.MaxRestartAttempts = n.Onion.MaxRestartAttempts
	out.KeyBackups = n.Onion.KeyBackups
	out.StartTimeout = n.Onion.StartTimeout.Duration()
	return out
}
