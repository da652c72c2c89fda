package interfaces

import (
	"context"
	"net"

	"golang.org/x/net/proxy"

	"github.com/dep2p/go-onionp2p/pkg/types"
)

// Transport 匿名传输层
//
// 两种实现：洋葱网络（隐藏服务 + SOCKS5 出站）与本地模拟（直连 TCP）。
type Transport interface {
	// Start 异步启动
	//
	// 启动进度通过 listener 报告；监听套接字就绪后调用 serve，
	// serve 负责运行 accept 循环并在监听器关闭时返回。
	Start(listener SetupListener, serve func(net.Listener))

	// Connect 打开到对端的出站套接字
	Connect(ctx context.Context, addr types.NodeAddress) (net.Conn, error)

	// SocksProxy 返回 SOCKS5 代理拨号器，本地模拟返回 nil
	SocksProxy() proxy.Dialer

	// NodeAddress 本节点地址，隐藏服务发布前返回 false
	NodeAddress() (types.NodeAddress, bool)

	// ShutDown 关闭传输层，完成后调用 done
	ShutDown(done func())
}
