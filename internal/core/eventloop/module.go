package eventloop

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-onionp2p/config"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Params 依赖参数
type Params struct {
	fx.In

	Config *Config     `optional:"true"`
	Clock  clock.Clock `optional:"true"`
	LC     fx.Lifecycle
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("eventloop",
		fx.Provide(ProvideLoop),
	)
}

// ProvideLoop 提供事件循环并注册生命周期
//
// 事件循环最先启动、最后停止（fx 按依赖逆序执行 OnStop）。
func ProvideLoop(p Params) *Loop {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	l := New(cfg, p.Clock)
	p.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			l.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			return l.Close()
		},
	})
	return l
}

// ConfigFromUnified 从统一配置创建事件循环配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		HighWater:    cfg.EventLoop.HighWater,
		DrainTimeout: cfg.EventLoop.DrainTimeout.Duration(),
	}
}
