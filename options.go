package onionp2p

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-onionp2p/config"
	"github.com/dep2p/go-onionp2p/internal/core/gater"
	"github.com/dep2p/go-onionp2p/internal/core/transport/onion"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// config 统一配置，选项在其上覆盖
	config *config.Config

	// banPredicate 额外的封禁判定
	banPredicate gater.Predicate

	// registerer 指标注册器，nil 时使用独立的注册表
	registerer prometheus.Registerer

	// clock 时钟，测试时注入模拟时钟
	clock clock.Clock

	// daemonFactory 洋葱网络守护进程工厂
	daemonFactory onion.DaemonFactory

	// messageTypes 接受的应用载荷类型，空表示接受全部
	messageTypes []string

	// userFxOptions 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整的统一配置
//
// 应放在其他选项之前，后续选项在其副本上覆盖。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: config", ErrNilOption)
		}
		o.config = cfg.Clone()
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载统一配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              传输
// ════════════════════════════════════════════════════════════════════════════

// WithMode 设置传输模式（config.ModeOnion 或 config.ModeLocalhost）
func WithMode(mode string) Option {
	return func(o *options) error {
		switch mode {
		case config.ModeOnion, config.ModeLocalhost:
			o.config.Network.Mode = mode
			return nil
		default:
			return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
		}
	}
}

// WithServicePort 设置对外服务端口
//
// 本地模拟模式下 0 表示由系统分配。
func WithServicePort(port int) Option {
	return func(o *options) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: %d", types.ErrInvalidPort, port)
		}
		o.config.Network.ServicePort = port
		return nil
	}
}

// WithHiddenServiceDir 设置洋葱网络工作目录
func WithHiddenServiceDir(dir string) Option {
	return func(o *options) error {
		o.config.Network.Onion.HiddenServiceDir = dir
		return nil
	}
}

// WithStreamIsolation 设置每次拨号是否使用独立的 SOCKS 身份
func WithStreamIsolation(enable bool) Option {
	return func(o *options) error {
		o.config.Network.Onion.StreamIsolation = enable
		return nil
	}
}

// WithBridges 设置洋葱网络自定义网桥
func WithBridges(bridges ...string) Option {
	return func(o *options) error {
		o.config.Network.Onion.Bridges = append([]string(nil), bridges...)
		return nil
	}
}

// WithDaemonFactory 替换洋葱网络守护进程的启动方式
func WithDaemonFactory(f onion.DaemonFactory) Option {
	return func(o *options) error {
		if f == nil {
			return fmt.Errorf("%w: daemon factory", ErrNilOption)
		}
		o.daemonFactory = f
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              封禁
// ════════════════════════════════════════════════════════════════════════════

// WithBanPredicate 设置对端封禁判定
//
// 与配置中的 BannedPeers 叠加，任一命中即视为封禁。
func WithBanPredicate(p func(addr types.NodeAddress) bool) Option {
	return func(o *options) error {
		if p == nil {
			return fmt.Errorf("%w: ban predicate", ErrNilOption)
		}
		o.banPredicate = p
		return nil
	}
}

// WithBannedPeers 追加初始封禁的对端地址
func WithBannedPeers(addrs ...types.NodeAddress) Option {
	return func(o *options) error {
		for _, a := range addrs {
			if err := a.Validate(); err != nil {
				return err
			}
			o.config.Network.BannedPeers = append(o.config.Network.BannedPeers, a.String())
		}
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              其他
// ════════════════════════════════════════════════════════════════════════════

// WithMessageTypes 限定接受的应用载荷类型
//
// 收到未登记类型的载荷时按 INVALID_CLASS 处理。未设置时接受全部类型。
func WithMessageTypes(names ...string) Option {
	return func(o *options) error {
		o.messageTypes = append(o.messageTypes, names...)
		return nil
	}
}

// WithKeepAlive 设置是否主动发送心跳
func WithKeepAlive(enable bool) Option {
	return func(o *options) error {
		o.config.KeepAlive.Enabled = enable
		return nil
	}
}

// WithMetricsRegisterer 设置指标注册器
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		o.config.Metrics.Enabled = reg != nil
		return nil
	}
}

// WithClock 注入时钟
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithFxOptions 追加用户自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
