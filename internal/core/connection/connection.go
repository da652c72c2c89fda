package connection

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-onionp2p/internal/core/codec"
	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/internal/core/metrics"
	"github.com/dep2p/go-onionp2p/internal/core/statistic"
	"github.com/dep2p/go-onionp2p/internal/core/throttle"
	"github.com/dep2p/go-onionp2p/internal/core/violation"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

var logger = log.Logger("core/connection")

// 确保实现了接口
var _ interfaces.Connection = (*Connection)(nil)

// Listener 连接回调的接收方
//
// 实现 interfaces.PeerAddressListener 时，入站连接得知对端地址后会额外回调。
type Listener interface {
	interfaces.MessageListener
	interfaces.ConnectionListener
}

// Deps 连接依赖
type Deps struct {
	// Loop 投递所有监听器回调的事件循环（必需）
	Loop *eventloop.Loop

	// Filter 封禁过滤，可为 nil
	Filter interfaces.NetworkFilter

	// Registry 已知载荷类型，nil 表示接受全部
	Registry *envelope.Registry

	// Metrics 指标，可为 nil
	Metrics *metrics.Metrics

	// Clock 限流使用的时钟，nil 时使用真实时钟
	Clock clock.Clock
}

// ============================================================================
//                              Connection
// ============================================================================

// Connection 与单个对端的帧消息连接
type Connection struct {
	uid       string
	conn      net.Conn
	direction types.Direction
	cfg       Config

	loop     *eventloop.Loop
	listener Listener
	filter   interfaces.NetworkFilter
	registry *envelope.Registry
	metrics  *metrics.Metrics
	clock    clock.Clock

	// 输入侧，只由输入 goroutine 使用
	reader *codec.Reader
	window *throttle.InboundWindow
	pacer  *throttle.InboundPacer

	// 输出侧
	writeMu  sync.Mutex
	governor *throttle.Governor

	// closing 关闭开始后置位，之后的普通写出直接放弃
	closing atomic.Bool
	// writeBroken 某帧只写出了一部分，流已错位，不再写 CloseConnection
	writeBroken atomic.Bool

	stat   *statistic.Statistic
	ledger *violation.Ledger

	state   atomic.Int32
	stopped atomic.Bool

	peerMu   sync.RWMutex
	peerAddr types.NodeAddress
	hasPeer  bool

	caps atomic.Pointer[types.Capabilities]

	capMu        sync.Mutex
	capListeners map[uint64]interfaces.CapabilitiesListener
	nextCapID    uint64

	startOnce sync.Once
	closeOnce sync.Once
	reason    atomic.Int32
	hasReason atomic.Bool

	inputDone chan struct{}
	done      chan struct{}

	// disconnected 只在事件循环上读写，OnDisconnect 之后的回调全部跳过
	disconnected bool
}

// New 创建连接
//
// peer 为出站连接拨号时的对端地址，入站连接传零值。
// 连接创建后处于 handshaking 状态，调用 Start 开始收发。
func New(nc net.Conn, dir types.Direction, peer types.NodeAddress, listener Listener, cfg Config, deps Deps) (*Connection, error) {
	if nc == nil {
		return nil, ErrNilConn
	}
	if deps.Loop == nil {
		return nil, ErrNilLoop
	}
	if listener == nil {
		return nil, ErrNilListener
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	c := &Connection{
		uid:          uuid.NewString(),
		conn:         nc,
		direction:    dir,
		cfg:          cfg,
		loop:         deps.Loop,
		listener:     listener,
		filter:       deps.Filter,
		registry:     deps.Registry,
		metrics:      deps.Metrics,
		clock:        clk,
		reader:       codec.NewReader(nc, cfg.MaxPermittedMessageSize),
		window:       throttle.NewInboundWindow(cfg.Throttle),
		pacer:        throttle.NewInboundPacer(cfg.Throttle),
		stat:         statistic.New(clk),
		ledger:       violation.NewLedger(),
		capListeners: make(map[uint64]interfaces.CapabilitiesListener),
		inputDone:    make(chan struct{}),
		done:         make(chan struct{}),
	}
	if !peer.IsZero() {
		c.peerAddr = peer
		c.hasPeer = true
	}
	c.governor = throttle.NewGovernor(cfg.Throttle, clk, c.writeEnvelope, c.supportsBundle, throttle.Hooks{
		OnBundleFlushed: c.metrics.BundleFlushed,
		OnFlushError:    c.handleError,
	})
	c.state.Store(int32(types.StateHandshaking))
	return c, nil
}

// Start 启动输入 goroutine 并投递 OnConnection
func (c *Connection) Start() {
	c.startOnce.Do(func() {
		if !c.state.CompareAndSwap(int32(types.StateHandshaking), int32(types.StateRunning)) {
			close(c.inputDone)
			return
		}
		c.metrics.ConnectionOpened(c.direction)
		c.loop.Execute(func() {
			if c.disconnected {
				return
			}
			c.listener.OnConnection(c)
		})
		logger.Debug("连接已启动", "uid", log.TruncateID(c.uid, 8), "direction", c.direction, "remote", c.conn.RemoteAddr())
		go c.readLoop()
	})
}

// ============================================================================
//                              访问器
// ============================================================================

// UID 连接唯一标识
func (c *Connection) UID() string { return c.uid }

// Direction 连接方向
func (c *Connection) Direction() types.Direction { return c.direction }

// RemoteAddr 底层套接字的远端地址
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// PeerAddress 对端节点地址
func (c *Connection) PeerAddress() (types.NodeAddress, bool) {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	return c.peerAddr, c.hasPeer
}

// Capabilities 对端最近一次声明的能力
func (c *Connection) Capabilities() types.Capabilities {
	if p := c.caps.Load(); p != nil {
		return *p
	}
	return types.Capabilities{}
}

// State 当前状态
func (c *Connection) State() types.ConnectionState {
	return types.ConnectionState(c.state.Load())
}

// IsStopped 是否已停止收发
func (c *Connection) IsStopped() bool { return c.stopped.Load() }

// CloseReason 关闭原因
func (c *Connection) CloseReason() (types.CloseConnectionReason, bool) {
	if !c.hasReason.Load() {
		return 0, false
	}
	return types.CloseConnectionReason(c.reason.Load()), true
}

// Statistic 统计快照
func (c *Connection) Statistic() types.StatisticSnapshot { return c.stat.Snapshot() }

// RuleViolations 违例计数快照
func (c *Connection) RuleViolations() map[types.RuleViolation]int { return c.ledger.Snapshot() }

// SetRoundTripTime 记录心跳往返时间
func (c *Connection) SetRoundTripTime(rtt time.Duration) { c.stat.SetRoundTripTime(rtt) }

// Done 连接完全关闭（OnDisconnect 已投递）后关闭
func (c *Connection) Done() <-chan struct{} { return c.done }

// String 返回连接描述
func (c *Connection) String() string {
	peer, _ := c.PeerAddress()
	return fmt.Sprintf("Connection{uid=%s, peer=%s, direction=%s, state=%s}",
		log.TruncateID(c.uid, 8), peer, c.direction, c.State())
}

// ============================================================================
//                              能力
// ============================================================================

type capabilitiesHandle struct {
	c    *Connection
	id   uint64
	once sync.Once
}

// Remove 注销监听器
func (h *capabilitiesHandle) Remove() {
	h.once.Do(func() {
		h.c.capMu.Lock()
		delete(h.c.capListeners, h.id)
		h.c.capMu.Unlock()
	})
}

// AddCapabilitiesListener 注册能力变化监听器
func (c *Connection) AddCapabilitiesListener(l interfaces.CapabilitiesListener) interfaces.ListenerHandle {
	c.capMu.Lock()
	defer c.capMu.Unlock()
	c.nextCapID++
	id := c.nextCapID
	if c.capListeners != nil {
		c.capListeners[id] = l
	}
	return &capabilitiesHandle{c: c, id: id}
}

func (c *Connection) capabilitiesListeners() []interfaces.CapabilitiesListener {
	c.capMu.Lock()
	defer c.capMu.Unlock()
	out := make([]interfaces.CapabilitiesListener, 0, len(c.capListeners))
	ids := make([]uint64, 0, len(c.capListeners))
	for id := range c.capListeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		out = append(out, c.capListeners[id])
	}
	return out
}

func (c *Connection) clearCapabilitiesListeners() {
	c.capMu.Lock()
	c.capListeners = nil
	c.capMu.Unlock()
}

// supportsBundle 对端是否支持 Bundle
func (c *Connection) supportsBundle() bool {
	return c.Capabilities().Contains(types.CapBundleOfEnvelopes)
}

// updateCapabilities 处理对端声明的能力集合
//
// 返回 false 表示对端缺少强制能力，连接已开始关闭。
func (c *Connection) updateCapabilities(caps types.Capabilities) bool {
	if caps.IsEmpty() || c.Capabilities().Equal(caps) {
		return true
	}
	if !caps.HasMandatory(c.cfg.MandatoryCapabilities) {
		logger.Warn("对端缺少强制能力，关闭连接",
			"uid", log.TruncateID(c.uid, 8),
			"capabilities", caps.String(),
			"mandatory", c.cfg.MandatoryCapabilities.String())
		c.ShutDown(types.CloseMandatoryCapabilitiesNotSupported, nil)
		return false
	}

	c.caps.Store(&caps)
	listeners := c.capabilitiesListeners()
	if len(listeners) == 0 {
		return true
	}
	c.loop.ExecuteWait(func() {
		if c.disconnected {
			return
		}
		for _, l := range listeners {
			l.OnCapabilitiesChanged(caps)
		}
	})
	return true
}

// ============================================================================
//                              对端地址
// ============================================================================

// peerBanned 已知对端地址是否被封禁
func (c *Connection) peerBanned() bool {
	if c.filter == nil {
		return false
	}
	addr, ok := c.PeerAddress()
	return ok && c.filter.IsPeerBanned(addr)
}

// checkSenderAddress 校验消息声明的发送方地址
//
// 返回是否投递该消息，以及输入循环是否继续。
func (c *Connection) checkSenderAddress(addr types.NodeAddress) (dispatch, keepReading bool) {
	if addr.IsZero() || addr.Validate() != nil {
		escalated := c.reportViolation(types.ViolationInvalidDataType)
		return false, !escalated
	}

	c.peerMu.Lock()
	existing, had := c.peerAddr, c.hasPeer
	if !had {
		c.peerAddr = addr
		c.hasPeer = true
	}
	c.peerMu.Unlock()

	if had && existing != addr {
		logger.Warn("发送方地址与连接的对端地址不一致",
			"uid", log.TruncateID(c.uid, 8),
			"peer", existing.String(),
			"claimed", addr.String())
		c.ShutDown(types.CloseRuleViolation, nil)
		return false, false
	}
	if !had {
		logger.Debug("得知对端地址", "uid", log.TruncateID(c.uid, 8), "peer", addr.String())
		if pl, ok := c.listener.(interfaces.PeerAddressListener); ok {
			c.loop.ExecuteWait(func() {
				if c.disconnected {
					return
				}
				pl.OnPeerAddressSet(addr, c)
			})
		}
	}

	if c.filter != nil && c.filter.IsPeerBanned(addr) {
		escalated := c.reportViolation(types.ViolationPeerBanned)
		return false, !escalated
	}
	return true, true
}

// ============================================================================
//                              违例
// ============================================================================

// reportViolation 记录一次违例，达到容忍度时关闭连接并返回 true
func (c *Connection) reportViolation(kind types.RuleViolation) bool {
	count, escalated := c.ledger.Report(kind)
	c.metrics.RuleViolation(kind)
	if !escalated {
		logger.Warn("对端违反规则",
			"uid", log.TruncateID(c.uid, 8),
			"violation", kind.String(),
			"count", count,
			"tolerance", kind.Tolerance())
		return false
	}

	peer, _ := c.PeerAddress()
	logger.Warn("违例次数达到容忍度，关闭连接",
		"uid", log.TruncateID(c.uid, 8),
		"peer", peer.String(),
		"violation", kind.String(),
		"count", count)
	c.ShutDown(kind.CloseReason(), nil)
	return true
}

// handleError 处理 I/O 错误，已停止时静默忽略
func (c *Connection) handleError(err error) {
	if c.stopped.Load() || c.closing.Load() || errors.Is(err, throttle.ErrStopped) {
		return
	}
	reason := classifyError(err)
	switch reason {
	case types.CloseReset, types.CloseSocketClosed, types.CloseSocketTimeout, types.CloseNoProtoEnv:
		logger.Info("连接 I/O 结束", "uid", log.TruncateID(c.uid, 8), "reason", reason.String(), "err", err)
	default:
		logger.Warn("连接 I/O 异常", "uid", log.TruncateID(c.uid, 8), "reason", reason.String(), "err", err)
	}
	c.ShutDown(reason, nil)
}
