package node

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-onionp2p/internal/core/codec"
	"github.com/dep2p/go-onionp2p/internal/core/connection"
	"github.com/dep2p/go-onionp2p/internal/core/eventloop"
	"github.com/dep2p/go-onionp2p/internal/core/transport/localhost"
	"github.com/dep2p/go-onionp2p/internal/core/transport/transporttest"
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

type disconnect struct {
	uid    string
	reason types.CloseConnectionReason
}

// recorder 记录节点级回调
type recorder struct {
	mu          sync.Mutex
	connected   []string
	disconnects []disconnect
	messages    []*envelope.Envelope
	conns       []interfaces.Connection
}

var (
	_ interfaces.MessageListener    = (*recorder)(nil)
	_ interfaces.ConnectionListener = (*recorder)(nil)
)

func (r *recorder) OnConnection(conn interfaces.Connection) {
	r.mu.Lock()
	r.connected = append(r.connected, conn.UID())
	r.mu.Unlock()
}

func (r *recorder) OnDisconnect(reason types.CloseConnectionReason, conn interfaces.Connection) {
	r.mu.Lock()
	r.disconnects = append(r.disconnects, disconnect{uid: conn.UID(), reason: reason})
	r.mu.Unlock()
}

func (r *recorder) OnMessage(env *envelope.Envelope, conn interfaces.Connection) {
	r.mu.Lock()
	r.messages = append(r.messages, env)
	r.conns = append(r.conns, conn)
	r.mu.Unlock()
}

func (r *recorder) OnMessageSent(*envelope.Envelope, interfaces.Connection) {}

func (r *recorder) Connected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.connected...)
}

func (r *recorder) Disconnects() []disconnect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]disconnect(nil), r.disconnects...)
}

// payloads 返回收到的载荷数据及其所在连接
func (r *recorder) payloads() ([]string, []interfaces.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		data  []string
		conns []interfaces.Connection
	)
	for i, env := range r.messages {
		if p, ok := env.Message.(*envelope.Payload); ok {
			data = append(data, string(p.Data))
			conns = append(conns, r.conns[i])
		}
	}
	return data, conns
}

func (r *recorder) hasDisconnect(reason types.CloseConnectionReason) bool {
	for _, d := range r.Disconnects() {
		if d.reason == reason {
			return true
		}
	}
	return false
}

// ============================================================================
//                              环境
// ============================================================================

type testNode struct {
	*Node
	loop  *eventloop.Loop
	rec   *recorder
	setup *transporttest.SetupRecorder
}

func (tn *testNode) addr(t *testing.T) types.NodeAddress {
	t.Helper()
	addr, ok := tn.NodeAddress()
	require.True(t, ok)
	return addr
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AcceptRate = 0
	return cfg
}

func newLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	l := eventloop.New(eventloop.DefaultConfig(), nil)
	l.Start()
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func newFactory(t *testing.T, loop *eventloop.Loop) *connection.Factory {
	t.Helper()
	cfg := connection.DefaultConfig()
	cfg.CloseDrain = 20 * time.Millisecond
	f, err := connection.NewFactory(cfg, connection.Deps{Loop: loop})
	require.NoError(t, err)
	return f
}

func newLocalhost() *localhost.Transport {
	cfg := localhost.DefaultConfig()
	cfg.Port = 0
	cfg.ReadyDelay = 0
	cfg.PublishDelay = 0
	return localhost.New(cfg, nil)
}

// startNode 在本地回环上启动节点并等待地址发布
func startNode(t *testing.T, cfg Config) *testNode {
	t.Helper()
	loop := newLoop(t)
	n, err := New(cfg, newLocalhost(), newFactory(t, loop), loop)
	require.NoError(t, err)

	tn := &testNode{Node: n, loop: loop, rec: &recorder{}, setup: &transporttest.SetupRecorder{}}
	n.AddMessageListener(tn.rec)
	n.AddConnectionListener(tn.rec)
	n.AddSetupListener(tn.setup)
	require.NoError(t, n.Start())
	t.Cleanup(func() { _ = n.Close() })

	require.Eventually(t, func() bool { return tn.setup.Has(transporttest.EventPublished) }, waitFor, tick)
	return tn
}

func payload(data string) *envelope.Envelope {
	return envelope.New(connection.DefaultMessageVersion, &envelope.Payload{Type: testType, Data: []byte(data)})
}

// rawDial 绕过节点直接连接，并声明发送方地址
func rawDial(t *testing.T, to, claimed types.NodeAddress) net.Conn {
	t.Helper()
	nc, err := net.Dial("tcp", types.NewNodeAddress("127.0.0.1", to.Port).HostPort())
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	if !claimed.IsZero() {
		env := envelope.New(connection.DefaultMessageVersion, &envelope.SenderNodeAddress{Address: claimed})
		_, err = codec.WriteFrame(nc, env)
		require.NoError(t, err)
	}
	return nc
}
