package node

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-onionp2p/internal/core/connection"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

// ============================================================================
//                              关闭
// ============================================================================

// ShutDown 异步关闭节点，完成后调用 done
func (n *Node) ShutDown(done func()) {
	go func() {
		if err := n.Close(); err != nil {
			logger.Warn("节点关闭出错", "err", err)
		}
		if done != nil {
			done()
		}
	}()
}

// Close 关闭节点并阻塞到完成
//
// 所有连接以 APP_SHUT_DOWN 并发关闭，同时关闭传输层；
// 两者都完成或达到 ShutdownTimeout 后排空事件循环。可重复调用。
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		n.closeErr = n.close()
	})
	return n.closeErr
}

func (n *Node) close() error {
	start := time.Now()
	n.closed.Store(true)
	n.cancel()

	var err error
	n.mu.Lock()
	ln := n.listener
	conns := make([]*connection.Connection, 0, len(n.conns))
	for _, c := range n.conns {
		conns = append(conns, c)
	}
	n.mu.Unlock()

	if ln != nil {
		err = multierr.Append(err, ln.Close())
	}
	logger.Info("关闭网络节点", "connections", len(conns))

	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.ShutdownTimeout)
	defer cancel()

	nodeDone := make(chan struct{})
	go func() {
		defer close(nodeDone)
		_ = closeConnections(ctx, conns)
	}()

	transportDone := make(chan struct{})
	n.transport.ShutDown(func() { close(transportDone) })

	timer := time.NewTimer(n.cfg.ShutdownTimeout)
	defer timer.Stop()
	for nodeDone != nil || transportDone != nil {
		select {
		case <-nodeDone:
			nodeDone = nil
		case <-transportDone:
			transportDone = nil
		case <-timer.C:
			logger.Warn("节点关闭超时",
				"timeout", n.cfg.ShutdownTimeout,
				"connectionsDone", nodeDone == nil,
				"transportDone", transportDone == nil)
			err = multierr.Append(err, ErrShutdownTimeout)
			nodeDone, transportDone = nil, nil
		}
	}
	cancel()

	err = multierr.Append(err, n.loop.Close())
	logger.Info("网络节点已关闭", "elapsed", time.Since(start))
	return err
}

// closeConnections 并发关闭连接，等待全部完成或 ctx 结束
func closeConnections(ctx context.Context, conns []*connection.Connection) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range conns {
		g.Go(func() error {
			c.ShutDown(types.CloseAppShutDown, nil)
			select {
			case <-c.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}
