package connection

import (
	"errors"
	"time"

	"github.com/dep2p/go-onionp2p/internal/core/codec"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// ============================================================================
//                              输入循环
// ============================================================================

// readLoop 输入 goroutine
func (c *Connection) readLoop() {
	defer close(c.inputDone)

	for {
		if c.stopped.Load() || c.State() != types.StateRunning {
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			c.handleError(err)
			return
		}

		data, frameBytes, err := c.reader.ReadFrame()
		if err != nil {
			var tooLarge *codec.FrameTooLargeError
			if errors.As(err, &tooLarge) {
				// 帧边界已无法恢复，记录一次违例后直接关闭
				logger.Warn("对端声明的帧长度超过上限",
					"uid", log.TruncateID(c.uid, 8),
					"declared", tooLarge.Declared,
					"limit", tooLarge.Limit)
				if !c.reportViolation(types.ViolationMaxMsgSizeExceeded) {
					c.ShutDown(types.CloseMaxMsgSizeExceeded, nil)
				}
				return
			}
			c.handleError(err)
			return
		}

		if !c.handleFrame(data, frameBytes) {
			return
		}
	}
}

// handleFrame 按顺序检查并投递一帧，返回输入循环是否继续
//
// 未达容忍度的违例只丢弃当前帧。
func (c *Connection) handleFrame(data []byte, frameBytes int) bool {
	if c.peerBanned() {
		return !c.reportViolation(types.ViolationPeerBanned)
	}

	if wait := c.pacer.Next(c.clock.Now()); wait > 0 {
		c.clock.Sleep(wait)
	}

	c.stat.AddReceivedBytes(frameBytes)
	env, err := envelope.Unmarshal(data)
	if err == nil {
		err = c.registry.Check(env)
	}
	if err != nil {
		logger.Debug("无法解析入站帧", "uid", log.TruncateID(c.uid, 8), "bytes", frameBytes, "err", err)
		return !c.reportViolation(decodeViolation(err))
	}
	c.stat.AddReceivedMessage(env)
	c.metrics.MessageReceived(env.TypeName(), frameBytes)

	limit := c.cfg.PermittedMessageSize
	if env.AllowsExtendedSize() {
		limit = c.cfg.MaxPermittedMessageSize
	}
	if len(data) > limit {
		logger.Warn("入站消息超过大小上限",
			"uid", log.TruncateID(c.uid, 8),
			"type", env.TypeName(),
			"size", len(data),
			"limit", limit)
		return !c.reportViolation(types.ViolationMaxMsgSizeExceeded)
	}

	if c.invalidHashSize(env) {
		logger.Warn("持久化载荷哈希长度错误", "uid", log.TruncateID(c.uid, 8), "type", env.TypeName())
		return !c.reportViolation(types.ViolationMaxMsgSizeExceeded)
	}

	if c.window.Record(c.clock.Now()) {
		return !c.reportViolation(types.ViolationThrottleLimitExceeded)
	}

	if env.MessageVersion != c.cfg.MessageVersion {
		logger.Warn("协议版本不匹配",
			"uid", log.TruncateID(c.uid, 8),
			"remote", env.MessageVersion,
			"local", c.cfg.MessageVersion)
		return !c.reportViolation(types.ViolationWrongNetworkID)
	}

	return c.deliver(env)
}

// invalidHashSize 持久化载荷（含 Bundle 成员）的哈希长度是否错误
func (c *Connection) invalidHashSize(env *envelope.Envelope) bool {
	if inner, ok := env.AsBundle(); ok {
		for _, e := range inner {
			if c.invalidHashSize(e) {
				return true
			}
		}
		return false
	}
	hash, ok := env.PersistableHash()
	return ok && len(hash) != c.cfg.PersistableHashSize
}

// deliver 处理能力、关闭请求、活跃时间与发送方地址，然后投递
func (c *Connection) deliver(env *envelope.Envelope) bool {
	inner, isBundle := env.AsBundle()
	if !isBundle {
		dispatch, keepReading := c.inspect(env)
		if dispatch {
			c.dispatch(env)
		}
		return keepReading
	}

	c.stat.UpdateLastActivity()
	seen := make(map[string]struct{})
	for _, e := range flatten(inner) {
		dispatch, keepReading := c.inspect(e)
		if !keepReading {
			return false
		}
		if !dispatch {
			continue
		}
		if hash, ok := e.PersistableHash(); ok {
			if _, dup := seen[string(hash)]; dup {
				logger.Debug("忽略 Bundle 中重复的持久化载荷", "uid", log.TruncateID(c.uid, 8), "type", e.TypeName())
				continue
			}
			seen[string(hash)] = struct{}{}
		}
		c.dispatch(e)
	}
	return true
}

// inspect 处理单条消息的结构特征，返回是否投递以及输入循环是否继续
func (c *Connection) inspect(env *envelope.Envelope) (dispatch, keepReading bool) {
	if caps, ok := env.AdvertisedCapabilities(); ok {
		if !c.updateCapabilities(caps) {
			return false, false
		}
	}

	if reason, ok := env.CloseReason(); ok {
		c.onCloseRequested(reason)
		return false, false
	}

	if !env.IsKeepAlive() {
		c.stat.UpdateLastActivity()
	}

	if addr, ok := env.SenderAddress(); ok {
		return c.checkSenderAddress(addr)
	}
	return true, true
}

// onCloseRequested 对端请求关闭
func (c *Connection) onCloseRequested(reason string) {
	peer, _ := c.PeerAddress()
	if reason == types.ClosePeerBanned.String() {
		logger.Warn("对端因封禁关闭连接", "uid", log.TruncateID(c.uid, 8), "peer", peer.String())
		c.shutDown(types.ClosePeerBanned, false, nil)
		return
	}
	logger.Debug("对端请求关闭连接", "uid", log.TruncateID(c.uid, 8), "peer", peer.String(), "reason", reason)
	c.shutDown(types.CloseRequestedByPeer, false, nil)
}

// dispatch 把消息投递到事件循环，队列满时阻塞
func (c *Connection) dispatch(env *envelope.Envelope) {
	c.loop.ExecuteWait(func() {
		if c.disconnected {
			return
		}
		c.listener.OnMessage(env, c)
	})
}

// flatten 按顺序展开嵌套的 Bundle
func flatten(envs []*envelope.Envelope) []*envelope.Envelope {
	out := make([]*envelope.Envelope, 0, len(envs))
	for _, e := range envs {
		if inner, ok := e.AsBundle(); ok {
			out = append(out, flatten(inner)...)
			continue
		}
		out = append(out, e)
	}
	return out
}
