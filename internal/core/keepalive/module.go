package keepalive

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/internal/core/node"
)

// ============================================================================
//                              模块定义
// ============================================================================

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *Config     `optional:"true"`
	Node   *node.Node
	Loop   *eventloop.Loop
	Clock  clock.Clock `optional:"true"`
}

// ProvideService 提供心跳服务
func ProvideService(input ModuleInput) (*Service, error) {
	cfg := DefaultConfig()
	if input.Config != nil {
		cfg = *input.Config
	}
	return NewService(cfg, input.Node, input.Loop, input.Clock)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("keepalive",
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC      fx.Lifecycle
	Service *Service
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("心跳模块启动")
			return input.Service.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			logger.Info("心跳模块停止")
			return input.Service.Stop()
		},
	})
}
