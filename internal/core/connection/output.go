package connection

import (
	"errors"
	"time"

	"github.com/dep2p/go-onionp2p/internal/core/codec"
	"github.com/dep2p/go-onionp2p/internal/core/throttle"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// ============================================================================
//                              发送
// ============================================================================

// SendMessage 发送消息
//
// 已停止时静默丢弃；对端被封禁时记录 PEER_BANNED；
// 对端不具备消息所需能力时丢弃（Bundle 按成员过滤）。
// 距上次发送过近时进入合并路径，消息可能稍后才写出。
func (c *Connection) SendMessage(env *envelope.Envelope) {
	if env == nil || env.Message == nil {
		return
	}
	if c.stopped.Load() {
		logger.Debug("连接已停止，丢弃消息", "uid", log.TruncateID(c.uid, 8), "type", env.TypeName())
		return
	}
	if c.peerBanned() {
		c.reportViolation(types.ViolationPeerBanned)
		return
	}

	env, ok := c.filterByCapabilities(env)
	if !ok {
		logger.Debug("对端不支持消息所需能力，丢弃", "uid", log.TruncateID(c.uid, 8), "type", env.TypeName())
		return
	}

	if err := c.governor.Send(env, env.Size()); err != nil {
		if errors.Is(err, throttle.ErrStopped) {
			return
		}
		c.handleError(err)
	}
}

// filterByCapabilities 按对端能力过滤消息
func (c *Connection) filterByCapabilities(env *envelope.Envelope) (*envelope.Envelope, bool) {
	caps := c.Capabilities()
	inner, isBundle := env.AsBundle()
	if !isBundle {
		if required, ok := env.RequiredCapabilities(); ok && !caps.ContainsAll(required) {
			return env, false
		}
		return env, true
	}

	kept := make([]*envelope.Envelope, 0, len(inner))
	for _, e := range inner {
		if required, ok := e.RequiredCapabilities(); ok && !caps.ContainsAll(required) {
			continue
		}
		kept = append(kept, e)
	}
	switch {
	case len(kept) == 0:
		return env, false
	case len(kept) == len(inner):
		return env, true
	default:
		return envelope.New(env.MessageVersion, &envelope.Bundle{Envelopes: kept}), true
	}
}

// writeEnvelope 编码并写出一帧，logical 为该帧承载的原始消息
//
// 由 Governor 调用。关闭开始后返回 throttle.ErrStopped。
func (c *Connection) writeEnvelope(frame *envelope.Envelope, logical []*envelope.Envelope) error {
	return c.writeFrame(frame, logical, false)
}

// writeFrame 写出一帧
//
// closeMsg 为 true 时写期限为 CloseDrain，且不受 closing 限制。
// close 先置位 closing 再收紧期限；这里先设期限再检查 closing，
// 两者交错时较短的期限总会生效。
func (c *Connection) writeFrame(frame *envelope.Envelope, logical []*envelope.Envelope, closeMsg bool) error {
	data, err := codec.Encode(frame)
	if err != nil {
		return err
	}

	timeout := c.cfg.WriteTimeout
	if closeMsg {
		timeout = c.cfg.CloseDrain
	}

	c.writeMu.Lock()
	if closeMsg && c.writeBroken.Load() {
		err = errWriteBroken
	} else {
		err = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err == nil && !closeMsg && c.closing.Load() {
			err = throttle.ErrStopped
		}
	}
	if err == nil {
		var n int
		n, err = c.conn.Write(data)
		if err != nil && n > 0 {
			c.writeBroken.Store(true)
		}
	}
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	c.stat.AddSentBytes(len(data))
	c.metrics.BytesSent(len(data))
	for _, env := range logical {
		c.stat.AddSentMessage(env)
		c.metrics.MessageSent(env.TypeName())
		c.loop.Execute(func() {
			if c.disconnected {
				return
			}
			c.listener.OnMessageSent(env, c)
		})
	}
	return nil
}
