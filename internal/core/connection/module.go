package connection

import (
	"net"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/internal/core/metrics"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// ============================================================================
//                              Factory
// ============================================================================

// Factory 以固定的配置与依赖创建连接
type Factory struct {
	cfg  Config
	deps Deps
}

// NewFactory 创建连接工厂
func NewFactory(cfg Config, deps Deps) (*Factory, error) {
	if deps.Loop == nil {
		return nil, ErrNilLoop
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Factory{cfg: cfg, deps: deps}, nil
}

// Config 返回连接配置
func (f *Factory) Config() Config { return f.cfg }

// New 创建连接，返回的连接尚未启动
func (f *Factory) New(nc net.Conn, dir types.Direction, peer types.NodeAddress, listener Listener) (*Connection, error) {
	return New(nc, dir, peer, listener, f.cfg, f.deps)
}

// ============================================================================
// Fx 模块
// ============================================================================

// Params 依赖参数
type Params struct {
	fx.In

	Config   *Config                  `optional:"true"`
	Loop     *eventloop.Loop
	Filter   interfaces.NetworkFilter `optional:"true"`
	Registry *envelope.Registry       `optional:"true"`
	Metrics  *metrics.Metrics         `optional:"true"`
	Clock    clock.Clock              `optional:"true"`
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("connection",
		fx.Provide(ProvideFactory),
	)
}

// ProvideFactory 提供连接工厂
func ProvideFactory(p Params) (*Factory, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	return NewFactory(cfg, Deps{
		Loop:     p.Loop,
		Filter:   p.Filter,
		Registry: p.Registry,
		Metrics:  p.Metrics,
		Clock:    p.Clock,
	})
}
