package onionp2p

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-onionp2p/config"
	"github.com/dep2p/go-onionp2p/internal/core/connection"
	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/internal/core/gater"
	"github.com/dep2p/go-onionp2p/internal/core/keepalive"
	"github.com/dep2p/go-onionp2p/internal/core/metrics"
	"github.com/dep2p/go-onionp2p/internal/core/node"
	"github.com/dep2p/go-onionp2p/internal/core/transport/localhost"
	"github.com/dep2p/go-onionp2p/internal/core/transport/onion"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
)

var fxLogger = log.Logger("onionp2p/fx")

// stopMargin fx 停止超时在节点关闭超时之外的余量
const stopMargin = 5 * time.Second

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 事件循环、指标、封禁过滤
//  2. 连接工厂
//  3. 传输层（按模式选择洋葱网络或本地模拟）
//  4. 网络节点、心跳
func buildFxApp(o *options, n *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证与转换
	// ════════════════════════════════════════════════════════════════════════
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	connCfg, err := connection.ConfigFromUnified(cfg)
	if err != nil {
		return nil, err
	}
	gaterCfg, err := gater.ConfigFromUnified(cfg)
	if err != nil {
		return nil, err
	}
	loopCfg := eventloop.ConfigFromUnified(cfg)
	nodeCfg := node.ConfigFromUnified(cfg)
	keepAliveCfg := keepalive.ConfigFromUnified(cfg)

	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Supply(&loopCfg, &connCfg, &gaterCfg, &nodeCfg, &keepAliveCfg),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 可选注入
	// ════════════════════════════════════════════════════════════════════════
	if o.clock != nil {
		modules = append(modules, fx.Provide(func() clock.Clock { return o.clock }))
	}
	if o.banPredicate != nil {
		modules = append(modules, fx.Supply(o.banPredicate))
	}
	if len(o.messageTypes) > 0 {
		modules = append(modules, fx.Supply(envelope.NewRegistry(o.messageTypes...)))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 基础组件
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		eventloop.Module(),
		gater.Module(),
	)
	if cfg.Metrics.Enabled {
		metricsCfg := metrics.ConfigFromUnified(cfg)
		modules = append(modules, fx.Supply(&metricsCfg), metrics.Module)
		if o.registerer != nil {
			modules = append(modules, fx.Provide(func() prometheus.Registerer { return o.registerer }))
		}
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 连接与传输
	// ════════════════════════════════════════════════════════════════════════
	tr, err := newTransport(o)
	if err != nil {
		return nil, err
	}
	modules = append(modules,
		connection.Module(),
		fx.Provide(func() interfaces.Transport { return tr }),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 5. 网络节点与心跳
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		node.Module(),
		keepalive.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 6. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 7. 组件注入与 Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Populate(&n.node, &n.gater),
		fx.StopTimeout(nodeCfg.ShutdownTimeout+stopMargin),
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	fxLogger.Debug("组装 Fx 应用", "mode", cfg.Network.Mode, "metrics", cfg.Metrics.Enabled)
	return fx.New(modules...), nil
}

// newTransport 按模式创建传输层
func newTransport(o *options) (interfaces.Transport, error) {
	cfg := o.config
	switch cfg.Network.Mode {
	case config.ModeOnion:
		return onion.New(onion.ConfigFromUnified(cfg), onion.Deps{
			Factory: o.daemonFactory,
			Clock:   o.clock,
		}), nil
	case config.ModeLocalhost:
		return localhost.New(localhost.ConfigFromUnified(cfg), o.clock), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Network.Mode)
	}
}
