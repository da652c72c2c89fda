// Package gater 实现对端封禁过滤（NetworkFilter）
//
// 封禁来源有两个：显式封禁的地址集合，以及应用注入的判定函数
// （例如由签名的过滤器消息驱动）。判定函数的结果带 TTL 缓存，
// 输入循环对每一帧都会查询封禁状态，缓存避免反复调用应用代码。
package gater

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

var logger = log.Logger("core/gater")

// Predicate 应用提供的封禁判定
type Predicate func(addr types.NodeAddress) bool

// Config 门控配置
type Config struct {
	// Banned 初始封禁列表
	Banned []types.NodeAddress

	// CacheSize 判定结果缓存条目数
	CacheSize int

	// CacheTTL 判定结果缓存时长
	CacheTTL time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		CacheSize: 1024,
		CacheTTL:  time.Minute,
	}
}

// Gater 对端封禁过滤器
type Gater struct {
	mu        sync.RWMutex
	banned    map[types.NodeAddress]struct{}
	predicate Predicate

	cache *expirable.LRU[types.NodeAddress, bool]

	// 统计
	intercepted atomic.Int64
}

var _ interfaces.NetworkFilter = (*Gater)(nil)

// New 创建过滤器
func New(cfg Config) *Gater {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	g := &Gater{
		banned: make(map[types.NodeAddress]struct{}, len(cfg.Banned)),
		cache:  expirable.NewLRU[types.NodeAddress, bool](cfg.CacheSize, nil, cfg.CacheTTL),
	}
	for _, addr := range cfg.Banned {
		g.banned[addr] = struct{}{}
	}
	return g
}

// SetPredicate 设置应用判定函数，清空缓存
func (g *Gater) SetPredicate(p Predicate) {
	g.mu.Lock()
	g.predicate = p
	g.mu.Unlock()
	g.cache.Purge()
}

// Ban 封禁地址
func (g *Gater) Ban(addr types.NodeAddress) {
	g.mu.Lock()
	g.banned[addr] = struct{}{}
	g.mu.Unlock()
	g.cache.Remove(addr)
	logger.Info("封禁对端", "addr", addr.ShortString())
}

// Unban 解除封禁
func (g *Gater) Unban(addr types.NodeAddress) {
	g.mu.Lock()
	delete(g.banned, addr)
	g.mu.Unlock()
	g.cache.Remove(addr)
}

// Banned 返回显式封禁列表
func (g *Gater) Banned() []types.NodeAddress {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.NodeAddress, 0, len(g.banned))
	for addr := range g.banned {
		out = append(out, addr)
	}
	return out
}

// IsPeerBanned 对端地址是否被封禁
func (g *Gater) IsPeerBanned(addr types.NodeAddress) bool {
	if addr.IsZero() {
		return false
	}
	banned := g.check(addr)
	if banned {
		g.intercepted.Add(1)
	}
	return banned
}

// Intercepted 返回命中封禁的次数
func (g *Gater) Intercepted() int64 {
	return g.intercepted.Load()
}

func (g *Gater) check(addr types.NodeAddress) bool {
	g.mu.RLock()
	_, explicit := g.banned[addr]
	predicate := g.predicate
	g.mu.RUnlock()

	if explicit {
		return true
	}
	if predicate == nil {
		return false
	}
	if v, ok := g.cache.Get(addr); ok {
		return v
	}
	v := predicate(addr)
	g.cache.Add(addr, v)
	return v
}
