// Package keepalive 实现连接心跳
//
// 应答每个 Ping；每个检查周期向空闲超过半个周期的连接发送带随机 nonce 的 Ping，
// 收到匹配的 Pong 后记录往返时间。心跳消息不更新连接的最后活跃时间。
// 所有回调都在事件循环上执行。
package keepalive

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

var logger = log.Logger("core/keepalive")

var (
	// ErrServiceClosed 服务已关闭
	ErrServiceClosed = errors.New("keepalive service closed")

	// ErrNilHost 未提供节点
	ErrNilHost = errors.New("nil host")

	// ErrNilLoop 未提供事件循环
	ErrNilLoop = errors.New("nil event loop")
)

// Host 心跳服务依赖的节点能力
type Host interface {
	AddMessageListener(l interfaces.MessageListener) interfaces.ListenerHandle
	AddConnectionListener(l interfaces.ConnectionListener) interfaces.ListenerHandle
	Connections() []interfaces.Connection
}

// rttRecorder 可记录往返时间的连接
type rttRecorder interface {
	SetRoundTripTime(rtt time.Duration)
}

type pendingPing struct {
	nonce  int32
	sentAt time.Time
}

// ============================================================================
//                              Service 实现
// ============================================================================

// Service 心跳服务
type Service struct {
	cfg   Config
	host  Host
	loop  *eventloop.Loop
	clock clock.Clock

	mu      sync.Mutex
	pending map[string]pendingPing
	lastRTT map[string]time.Duration
	handles []interfaces.ListenerHandle

	running atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService 创建心跳服务
func NewService(cfg Config, host Host, loop *eventloop.Loop, clk clock.Clock) (*Service, error) {
	if host == nil {
		return nil, ErrNilHost
	}
	if loop == nil {
		return nil, ErrNilLoop
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		cfg:     cfg,
		host:    host,
		loop:    loop,
		clock:   clk,
		pending: make(map[string]pendingPing),
		lastRTT: make(map[string]time.Duration),
	}, nil
}

// Start 注册监听器并启动检查循环
func (s *Service) Start(_ context.Context) error {
	if s.closed.Load() {
		return ErrServiceClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	s.handles = append(s.handles,
		s.host.AddMessageListener(s),
		s.host.AddConnectionListener(s),
	)
	s.mu.Unlock()

	if !s.cfg.Enabled || s.cfg.Interval <= 0 {
		logger.Info("主动心跳已关闭，只应答 Ping")
		return nil
	}

	// OnStart 的 ctx 在返回后取消，检查循环使用独立的 ctx
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.tickLoop(ctx)
	logger.Info("心跳服务已启动", "interval", s.cfg.Interval)
	return nil
}

// Stop 停止检查循环并注销监听器
func (s *Service) Stop() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.pending = make(map[string]pendingPing)
	s.mu.Unlock()
	for _, h := range handles {
		h.Remove()
	}
	logger.Info("心跳服务已停止")
	return nil
}

func (s *Service) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clock.Ticker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.loop.Execute(s.pingIdle)
		}
	}
}

// pingIdle 向空闲连接发送 Ping，在事件循环上执行
func (s *Service) pingIdle() {
	if s.closed.Load() {
		return
	}
	now := s.clock.Now()
	idleAfter := s.cfg.Interval / 2
	for _, conn := range s.host.Connections() {
		if conn.IsStopped() {
			continue
		}
		if now.Sub(conn.Statistic().LastActivity) < idleAfter {
			continue
		}

		nonce := rand.Int32()
		s.mu.Lock()
		if prev, ok := s.pending[conn.UID()]; ok {
			logger.Debug("上一次 Ping 未收到应答",
				"uid", log.TruncateID(conn.UID(), 8),
				"since", now.Sub(prev.sentAt))
		}
		s.pending[conn.UID()] = pendingPing{nonce: nonce, sentAt: now}
		last := s.lastRTT[conn.UID()]
		s.mu.Unlock()

		ping := envelope.New(s.cfg.MessageVersion, &envelope.Ping{
			Nonce:             nonce,
			LastRoundTripTime: int32(last.Milliseconds()),
		})
		// 发送可能因限流睡眠，不占用事件循环
		go conn.SendMessage(ping)
	}
}

// ============================================================================
//                              监听器
// ============================================================================

// OnMessage 实现 interfaces.MessageListener
func (s *Service) OnMessage(env *envelope.Envelope, conn interfaces.Connection) {
	switch m := env.Message.(type) {
	case *envelope.Ping:
		pong := envelope.New(s.cfg.MessageVersion, &envelope.Pong{RequestNonce: m.Nonce})
		go conn.SendMessage(pong)
	case *envelope.Pong:
		s.onPong(m, conn)
	}
}

func (s *Service) onPong(m *envelope.Pong, conn interfaces.Connection) {
	s.mu.Lock()
	p, ok := s.pending[conn.UID()]
	if !ok || p.nonce != m.RequestNonce {
		s.mu.Unlock()
		logger.Debug("收到不匹配的 Pong", "uid", log.TruncateID(conn.UID(), 8), "nonce", m.RequestNonce)
		return
	}
	delete(s.pending, conn.UID())
	rtt := s.clock.Since(p.sentAt)
	s.lastRTT[conn.UID()] = rtt
	s.mu.Unlock()

	if r, ok := conn.(rttRecorder); ok {
		r.SetRoundTripTime(rtt)
	}
	logger.Debug("收到 Pong", "uid", log.TruncateID(conn.UID(), 8), "rtt", rtt)
}

// OnMessageSent 实现 interfaces.MessageListener
func (s *Service) OnMessageSent(*envelope.Envelope, interfaces.Connection) {}

// OnConnection 实现 interfaces.ConnectionListener
func (s *Service) OnConnection(interfaces.Connection) {}

// OnDisconnect 实现 interfaces.ConnectionListener
func (s *Service) OnDisconnect(_ types.CloseConnectionReason, conn interfaces.Connection) {
	s.mu.Lock()
	delete(s.pending, conn.UID())
	delete(s.lastRTT, conn.UID())
	s.mu.Unlock()
}

// Outstanding 返回尚未收到应答的 Ping 数
func (s *Service) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
