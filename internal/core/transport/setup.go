package transport

import (
	"sync/atomic"

	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
)

var logger = log.Logger("core/transport")

// ============================================================================
//                              Phase
// ============================================================================

// Phase 启动阶段
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseReady
	PhasePublished
	PhaseFailed
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseReady:
		return "ready"
	case PhasePublished:
		return "published"
	case PhaseFailed:
		return "failed"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              Progress
// ============================================================================

// Progress 记录启动阶段并通知监听器
//
// 监听器可以为 nil。进入 PhaseStopped 后不再发出任何通知。
type Progress struct {
	name     string
	listener interfaces.SetupListener
	phase    atomic.Int32
}

// NewProgress 创建启动进度
func NewProgress(name string, l interfaces.SetupListener) *Progress {
	p := &Progress{name: name, listener: l}
	p.phase.Store(int32(PhaseStarting))
	return p
}

// Phase 当前阶段
func (p *Progress) Phase() Phase {
	return Phase(p.phase.Load())
}

// advance 切换阶段，已停止时返回 false
func (p *Progress) advance(to Phase) bool {
	for {
		cur := p.phase.Load()
		if Phase(cur) == PhaseStopped {
			return false
		}
		if p.phase.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// Ready 守护进程就绪
func (p *Progress) Ready() {
	if !p.advance(PhaseReady) {
		return
	}
	logger.Info("匿名网络节点就绪", "transport", p.name)
	if p.listener != nil {
		p.listener.OnTorNodeReady()
	}
}

// Published 隐藏服务已发布
func (p *Progress) Published() {
	if !p.advance(PhasePublished) {
		return
	}
	logger.Info("隐藏服务已发布", "transport", p.name)
	if p.listener != nil {
		p.listener.OnHiddenServicePublished()
	}
}

// RequestBridges 启动失败但仍可重试
func (p *Progress) RequestBridges() {
	if p.Phase() == PhaseStopped {
		return
	}
	logger.Warn("启动失败，请求自定义网桥", "transport", p.name)
	if p.listener != nil {
		p.listener.OnRequestCustomBridges()
	}
}

// Failed 启动最终失败
func (p *Progress) Failed(err error) {
	if !p.advance(PhaseFailed) {
		return
	}
	logger.Error("传输层启动失败", "transport", p.name, "err", err)
	if p.listener != nil {
		p.listener.OnSetupFailed(err)
	}
}

// Stop 进入停止阶段，之后的通知全部忽略
func (p *Progress) Stop() {
	p.phase.Store(int32(PhaseStopped))
}
