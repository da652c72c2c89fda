package connection

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-onionp2p/internal/core/codec"
	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

const (
	testType = "test.Message"
	waitFor  = 5 * time.Second
	tick     = 5 * time.Millisecond
)

func init() {
	log.Discard()
}

// ============================================================================
//                              recorder
// ============================================================================

type recorder struct {
	mu          sync.Mutex
	connected   int
	messages    []*envelope.Envelope
	sent        []*envelope.Envelope
	disconnects []types.CloseConnectionReason
	peers       []types.NodeAddress
}

var (
	_ Listener                       = (*recorder)(nil)
	_ interfaces.PeerAddressListener = (*recorder)(nil)
)

func (r *recorder) OnConnection(interfaces.Connection) {
	r.mu.Lock()
	r.connected++
	r.mu.Unlock()
}

func (r *recorder) OnDisconnect(reason types.CloseConnectionReason, _ interfaces.Connection) {
	r.mu.Lock()
	r.disconnects = append(r.disconnects, reason)
	r.mu.Unlock()
}

func (r *recorder) OnMessage(env *envelope.Envelope, _ interfaces.Connection) {
	r.mu.Lock()
	r.messages = append(r.messages, env)
	r.mu.Unlock()
}

func (r *recorder) OnMessageSent(env *envelope.Envelope, _ interfaces.Connection) {
	r.mu.Lock()
	r.sent = append(r.sent, env)
	r.mu.Unlock()
}

func (r *recorder) OnPeerAddressSet(addr types.NodeAddress, _ interfaces.Connection) {
	r.mu.Lock()
	r.peers = append(r.peers, addr)
	r.mu.Unlock()
}

func (r *recorder) Messages() []*envelope.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*envelope.Envelope(nil), r.messages...)
}

func (r *recorder) Sent() []*envelope.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*envelope.Envelope(nil), r.sent...)
}

func (r *recorder) Disconnects() []types.CloseConnectionReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.CloseConnectionReason(nil), r.disconnects...)
}

func (r *recorder) Peers() []types.NodeAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.NodeAddress(nil), r.peers...)
}

// payloadData 返回收到的载荷数据
func (r *recorder) payloadData() []string {
	var out []string
	for _, env := range r.Messages() {
		if p, ok := env.Message.(*envelope.Payload); ok {
			out = append(out, string(p.Data))
		}
	}
	return out
}

// waitDisconnect 等待 OnDisconnect 并返回原因
func (r *recorder) waitDisconnect(t *testing.T) types.CloseConnectionReason {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.Disconnects()) > 0 }, waitFor, tick)
	return r.Disconnects()[0]
}

// ============================================================================
//                              环境
// ============================================================================

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CloseDrain = 20 * time.Millisecond
	return cfg
}

func newLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	l := eventloop.New(eventloop.DefaultConfig(), nil)
	l.Start()
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// tcpPair 返回一对回环 TCP 套接字
func tcpPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-accepted
	require.NotNil(t, server)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

// rawPeer 直接读写帧的对端，用于构造异常输入
type rawPeer struct {
	conn   net.Conn
	reader *codec.Reader
}

func (p *rawPeer) send(t *testing.T, env *envelope.Envelope) {
	t.Helper()
	_, err := codec.WriteFrame(p.conn, env)
	require.NoError(t, err)
}

func (p *rawPeer) write(t *testing.T, b []byte) {
	t.Helper()
	_, err := p.conn.Write(b)
	require.NoError(t, err)
}

// readClose 读取直到收到 CloseConnection，返回其原因
func (p *rawPeer) readClose(t *testing.T) string {
	t.Helper()
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		env, _, err := p.reader.ReadEnvelope()
		require.NoError(t, err)
		if reason, ok := env.CloseReason(); ok {
			return reason
		}
	}
}

// inbound 创建一个由 rawPeer 驱动的入站连接
func inbound(t *testing.T, cfg Config, deps Deps) (*Connection, *recorder, *rawPeer) {
	t.Helper()
	client, server := tcpPair(t)
	if deps.Loop == nil {
		deps.Loop = newLoop(t)
	}
	rec := &recorder{}
	c, err := New(server, types.DirInbound, types.NodeAddress{}, rec, cfg, deps)
	require.NoError(t, err)
	c.Start()
	t.Cleanup(func() { c.ShutDown(types.CloseAppShutDown, nil) })
	return c, rec, &rawPeer{conn: client, reader: codec.NewReader(client, 0)}
}

// connected 创建一对互连的连接
func connected(t *testing.T, cfg Config) (a *Connection, recA *recorder, b *Connection, recB *recorder) {
	t.Helper()
	client, server := tcpPair(t)
	loop := newLoop(t)
	recA, recB = &recorder{}, &recorder{}

	var err error
	a, err = New(client, types.DirOutbound, types.NewNodeAddress("bob.onion", 9999), recA, cfg, Deps{Loop: loop})
	require.NoError(t, err)
	b, err = New(server, types.DirInbound, types.NodeAddress{}, recB, cfg, Deps{Loop: loop})
	require.NoError(t, err)
	a.Start()
	b.Start()
	t.Cleanup(func() {
		a.ShutDown(types.CloseAppShutDown, nil)
		b.ShutDown(types.CloseAppShutDown, nil)
	})
	return a, recA, b, recB
}

func payload(data string) *envelope.Envelope {
	return envelope.New(DefaultMessageVersion, &envelope.Payload{Type: testType, Data: []byte(data)})
}

func capabilities(caps ...types.Capability) *envelope.Envelope {
	return envelope.New(DefaultMessageVersion, &envelope.SupportedCapabilities{Capabilities: types.NewCapabilities(caps...)})
}

func senderAddress(addr types.NodeAddress) *envelope.Envelope {
	return envelope.New(DefaultMessageVersion, &envelope.SenderNodeAddress{Address: addr})
}

// payloadOfSize 构造序列化后恰好 size 字节的载荷
func payloadOfSize(t *testing.T, size int) *envelope.Envelope {
	t.Helper()
	for n := size; n > size-64 && n >= 0; n-- {
		env := envelope.New(DefaultMessageVersion, &envelope.Payload{Type: testType, Data: make([]byte, n)})
		if env.Size() == size {
			return env
		}
	}
	t.Fatalf("cannot build payload of size %d", size)
	return nil
}
