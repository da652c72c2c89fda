// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 加载和保存。各组件通过 xxxFromUnified 辅助函数
// 把统一配置转换为自身配置。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Network.Mode = config.ModeLocalhost
//	cfg.Network.ServicePort = 9999
//
//	// 从文件加载
//	cfg, err := config.LoadFile("onionp2p.json")
package config

// Config 是 onionp2p 的完整配置结构
//
// 配置按照功能模块组织：
//   - Network: 传输模式、端口、连接上限、封禁列表
//   - Connection: 单连接的消息大小、版本与超时
//   - Throttle: 入站限流与出站合并
//   - KeepAlive: 心跳
//   - EventLoop: 回调事件循环
//   - Metrics: Prometheus 指标
type Config struct {
	// Network 网络与传输配置
	Network NetworkConfig `json:"network"`

	// Connection 连接配置
	Connection ConnectionConfig `json:"connection"`

	// Throttle 限流配置
	Throttle ThrottleConfig `json:"throttle"`

	// KeepAlive 心跳配置
	KeepAlive KeepAliveConfig `json:"keep_alive"`

	// EventLoop 事件循环配置
	EventLoop EventLoopConfig `json:"event_loop"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Network:    DefaultNetworkConfig(),
		Connection: DefaultConnectionConfig(),
		Throttle:   DefaultThrottleConfig(),
		KeepAlive:  DefaultKeepAliveConfig(),
		EventLoop:  DefaultEventLoopConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if err := c.Network.Validate(); err != nil {
		return err
	}
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	if err := c.Throttle.Validate(); err != nil {
		return err
	}
	if err := c.KeepAlive.Validate(); err != nil {
		return err
	}
	return c.EventLoop.Validate()
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Network.BannedPeers = append([]string(nil), c.Network.BannedPeers...)
	out.Network.Onion.Bridges = append([]string(nil), c.Network.Onion.Bridges...)
	out.Connection.MandatoryCapabilities = append([]string(nil), c.Connection.MandatoryCapabilities...)
	return &out
}
