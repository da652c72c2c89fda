package connection

import (
	"time"

	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// ============================================================================
//                              关闭
// ============================================================================

// ShutDown 以指定原因关闭连接
//
// 可以重复调用，只有第一次的原因生效。onComplete 在 OnDisconnect 之后
// 于事件循环上调用；重复调用传入的 onComplete 同样会在关闭完成后调用。
func (c *Connection) ShutDown(reason types.CloseConnectionReason, onComplete func()) {
	c.shutDown(reason, reason.SendCloseMessage(), onComplete)
}

func (c *Connection) shutDown(reason types.CloseConnectionReason, sendClose bool, onComplete func()) {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.reason.Store(int32(reason))
		c.hasReason.Store(true)
		c.state.Store(int32(types.StateShuttingDown))

		peer, _ := c.PeerAddress()
		logger.Debug("关闭连接",
			"uid", log.TruncateID(c.uid, 8),
			"peer", peer.String(),
			"reason", reason.String(),
			"sendClose", sendClose)
		go c.close(reason, sendClose, onComplete)
	})
	if first || onComplete == nil {
		return
	}

	logger.Debug("连接已在关闭中", "uid", log.TruncateID(c.uid, 8), "reason", reason.String())
	go func() {
		<-c.done
		if !c.loop.Execute(onComplete) {
			onComplete()
		}
	}()
}

// close 关闭流程，运行在独立 goroutine
//
// 阻塞中的写出最迟在 CloseDrain 后因期限返回，关闭耗时不受 WriteTimeout 影响。
func (c *Connection) close(reason types.CloseConnectionReason, sendClose bool, onComplete func()) {
	c.closing.Store(true)
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.CloseDrain)); err != nil {
		logger.Debug("设置关闭写期限失败", "uid", log.TruncateID(c.uid, 8), "err", err)
	}
	c.governor.Stop()

	if sendClose {
		c.writeCloseMessage(reason)
		c.stopped.Store(true)
		time.Sleep(c.cfg.CloseDrain)
	}
	c.stopped.Store(true)

	if err := c.conn.Close(); err != nil {
		logger.Debug("关闭套接字出错", "uid", log.TruncateID(c.uid, 8), "err", err)
	}

	join := time.NewTimer(c.cfg.InputJoinTimeout)
	select {
	case <-c.inputDone:
		join.Stop()
	case <-join.C:
		logger.Warn("输入 goroutine 未在限定时间内退出", "uid", log.TruncateID(c.uid, 8))
	}

	c.clearCapabilitiesListeners()
	c.state.Store(int32(types.StateClosed))
	c.metrics.ConnectionClosed(c.direction, reason)

	posted := c.loop.Execute(func() {
		defer close(c.done)
		c.disconnected = true
		c.listener.OnDisconnect(reason, c)
	})
	if !posted {
		// 事件循环已关闭，监听器不再接收回调
		close(c.done)
		if onComplete != nil {
			onComplete()
		}
		return
	}
	if onComplete != nil {
		c.loop.Execute(onComplete)
	}
	logger.Debug("连接关闭完成", "uid", log.TruncateID(c.uid, 8), "reason", reason.String())
}

// writeCloseMessage 直接写出 CloseConnection，绕过合并路径
//
// 原因为 RULE_VIOLATION 时写入最近一次升级的违例名称。
func (c *Connection) writeCloseMessage(reason types.CloseConnectionReason) {
	name := reason.String()
	if reason == types.CloseRuleViolation {
		if v, ok := c.ledger.Last(); ok {
			name = v.String()
		}
	}
	env := envelope.New(c.cfg.MessageVersion, &envelope.CloseConnection{Reason: name})
	if err := c.writeFrame(env, []*envelope.Envelope{env}, true); err != nil {
		logger.Debug("发送 CloseConnection 失败", "uid", log.TruncateID(c.uid, 8), "err", err)
	}
}
