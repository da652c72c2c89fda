package node

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-onionp2p/internal/core/connection"
	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Params 依赖参数
type Params struct {
	fx.In

	Config    *Config `optional:"true"`
	Transport interfaces.Transport
	Factory   *connection.Factory
	Loop      *eventloop.Loop
	LC        fx.Lifecycle
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("node",
		fx.Provide(ProvideNode),
	)
}

// ProvideNode 提供节点并注册生命周期
//
// OnStop 在事件循环的 OnStop 之前执行，节点关闭时已排空事件循环。
func ProvideNode(p Params) (*Node, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	n, err := New(cfg, p.Transport, p.Factory, p.Loop)
	if err != nil {
		return nil, err
	}
	p.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return n.Start()
		},
		OnStop: func(_ context.Context) error {
			return n.Close()
		},
	})
	return n, nil
}
