package config

import (
	"fmt"
	"time"
)

// 传输模式
const (
	// ModeOnion 通过洋葱网络隐藏服务通信
	ModeOnion = "onion"

	// ModeLocalhost 本地回环模拟，用于开发与测试
	ModeLocalhost = "localhost"
)

// NetworkConfig 网络配置
type NetworkConfig struct {
	// Mode 传输模式：onion 或 localhost
	Mode string `json:"mode"`

	// ServicePort 对外服务端口
	ServicePort int `json:"service_port"`

	// MaxConnections 同时打开的连接上限，0 表示不限制
	MaxConnections int `json:"max_connections"`

	// AcceptRate 每秒接受的入站连接数
	AcceptRate float64 `json:"accept_rate"`

	// AcceptBurst 入站连接突发上限
	AcceptBurst int `json:"accept_burst"`

	// DialTimeout 出站拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// ShutdownTimeout 节点与传输层关闭的总等待上限
	ShutdownTimeout Duration `json:"shutdown_timeout"`

	// BannedPeers 初始封禁的对端地址（host:port）
	BannedPeers []string `json:"banned_peers,omitempty"`

	// BanCacheSize 封禁判定缓存条目数
	BanCacheSize int `json:"ban_cache_size"`

	// BanCacheTTL 封禁判定缓存时长
	BanCacheTTL Duration `json:"ban_cache_ttl"`

	// Onion 洋葱网络传输配置
	Onion OnionConfig `json:"onion"`

	// Localhost 本地模拟传输配置
	Localhost LocalhostConfig `json:"localhost"`
}

// OnionConfig 洋葱网络传输配置
type OnionConfig struct {
	// HiddenServiceDir 工作目录，保存隐藏服务私钥与守护进程数据
	HiddenServiceDir string `json:"hidden_service_dir"`

	// StreamIsolation 每次拨号使用独立的 SOCKS 身份
	StreamIsolation bool `json:"stream_isolation"`

	// ExecutablePath 守护进程可执行文件，空表示从 PATH 查找
	ExecutablePath string `json:"executable_path,omitempty"`

	// Bridges 自定义网桥
	Bridges []string `json:"bridges,omitempty"`

	// MaxRestartAttempts 启动失败的最大重试次数
	MaxRestartAttempts int `json:"max_restart_attempts"`

	// KeyBackups 私钥文件保留的滚动备份数
	KeyBackups int `json:"key_backups"`

	// StartTimeout 守护进程启动与隐藏服务发布的超时
	StartTimeout Duration `json:"start_timeout"`
}

// LocalhostConfig 本地模拟传输配置
type LocalhostConfig struct {
	// ReadyDelay 模拟守护进程就绪的延迟
	ReadyDelay Duration `json:"ready_delay"`

	// PublishDelay 模拟隐藏服务发布的延迟
	PublishDelay Duration `json:"publish_delay"`
}

// DefaultNetworkConfig 返回默认网络配置
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Mode:            ModeOnion,
		ServicePort:     9999,
		MaxConnections:  100,
		AcceptRate:      20,
		AcceptBurst:     10,
		DialTimeout:     Duration(2 * time.Minute), // 洋葱线路建立较慢
		ShutdownTimeout: Duration(5 * time.Second),
		BanCacheSize:    1024,
		BanCacheTTL:     Duration(time.Minute),
		Onion: OnionConfig{
			HiddenServiceDir:   "tor",
			StreamIsolation:    false,
			MaxRestartAttempts: 5,
			KeyBackups:         20,
			StartTimeout:       Duration(3 * time.Minute),
		},
		Localhost: LocalhostConfig{
			ReadyDelay:   Duration(500 * time.Millisecond),
			PublishDelay: Duration(500 * time.Millisecond),
		},
	}
}

// Validate 验证网络配置
func (c NetworkConfig) Validate() error {
	if c.Mode != ModeOnion && c.Mode != ModeLocalhost {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidNetwork, c.Mode)
	}
	minPort := 1
	if c.Mode == ModeLocalhost {
		// 本地模拟时 0 表示由系统分配
		minPort = 0
	}
	if c.ServicePort < minPort || c.ServicePort > 65535 {
		return fmt.Errorf("%w: service port %d out of range", ErrInvalidNetwork, c.ServicePort)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("%w: max connections must not be negative", ErrInvalidNetwork)
	}
	if c.AcceptRate <= 0 || c.AcceptBurst <= 0 {
		return fmt.Errorf("%w: accept rate and burst must be positive", ErrInvalidNetwork)
	}
	if c.DialTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidNetwork)
	}
	if c.Mode == ModeOnion {
		if c.Onion.HiddenServiceDir == "" {
			return fmt.Errorf("%w: hidden service dir is required", ErrInvalidNetwork)
		}
		if c.Onion.MaxRestartAttempts < 0 || c.Onion.KeyBackups < 0 {
			return fmt.Errorf("%w: restart attempts and key backups must not be negative", ErrInvalidNetwork)
		}
	}
	if c.Localhost.ReadyDelay < 0 || c.Localhost.PublishDelay < 0 {
		return fmt.Errorf("%w: localhost delays must not be negative", ErrInvalidNetwork)
	}
	return nil
}
