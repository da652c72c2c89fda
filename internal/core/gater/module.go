package gater

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-onionp2p/config"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// Params 依赖参数
type Params struct {
	fx.In

	Config    *Config   `optional:"true"`
	Predicate Predicate `optional:"true"`
}

// Result 模块输出
type Result struct {
	fx.Out

	Gater  *Gater
	Filter interfaces.NetworkFilter
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("gater",
		fx.Provide(ProvideGater),
	)
}

// ProvideGater 提供封禁过滤器
func ProvideGater(p Params) Result {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	g := New(cfg)
	if p.Predicate != nil {
		g.SetPredicate(p.Predicate)
	}
	return Result{Gater: g, Filter: g}
}

// ConfigFromUnified 从统一配置创建门控配置
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	out := DefaultConfig()
	if cfg == nil {
		return out, nil
	}
	for _, s := range cfg.Network.BannedPeers {
		addr, err := types.ParseNodeAddress(s)
		if err != nil {
			return Config{}, fmt.Errorf("banned peer %q: %w", s, err)
		}
		out.Banned = append(out.Banned, addr)
	}
	if cfg.Network.BanCacheSize > 0 {
		out.CacheSize = cfg.Network.BanCacheSize
	}
	if cfg.Network.BanCacheTTL > 0 {
		out.CacheTTL = cfg.Network.BanCacheTTL.Duration()
	}
	return out, nil
}
