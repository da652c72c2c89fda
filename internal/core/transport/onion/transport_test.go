package onion

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-onionp2p/config"
	"github.com/dep2p/go-onionp2p/internal/core/transport"
	"github.com/dep2p/go-onionp2p/internal/core/transport/transporttest"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

func TestTransport_Publish(t *testing.T) {
	daemon := &fakeDaemon{}
	cfg := testConfig(t)
	tr := newTransport(t, cfg, &factory{daemon: daemon})
	rec := &transporttest.SetupRecorder{}
	accepted := make(chan net.Conn, 1)

	tr.Start(rec, acceptAll(accepted))
	require.Eventually(t, func() bool { return rec.Has(transporttest.EventPublished) }, waitFor, tick)
	assert.Equal(t, []string{transporttest.EventReady, transporttest.EventPublished}, rec.Events())

	addr, ok := tr.NodeAddress()
	require.True(t, ok)
	assert.Equal(t, types.NewNodeAddress(fakeID+".onion", 9999), addr)
	assert.NotNil(t, tr.SocksProxy())

	reqs := daemon.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 9999, reqs[0].ServicePort)
	assert.Equal(t, 0, reqs[0].LocalPort)

	// 私钥已持久化，再次加载得到同一把
	key, err := loadOrCreateKey(keyPath(cfg.HiddenServiceDir), nil)
	require.NoError(t, err)
	assert.Equal(t, reqs[0].Key, key)

	conn, err := tr.Connect(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()
	requireAccepted(t, accepted)
}

func TestTransport_ConnectRejectsClearnet(t *testing.T) {
	tr := newTransport(t, testConfig(t), &factory{daemon: &fakeDaemon{}})

	_, err := tr.Connect(context.Background(), types.NewNodeAddress("example.com", 80))
	assert.ErrorIs(t, err, transport.ErrNotOnion)

	_, err = tr.Connect(context.Background(), types.NewNodeAddress(fakeID+".onion", 9999))
	assert.ErrorIs(t, err, transport.ErrNotReady)
}

func TestTransport_StreamIsolation(t *testing.T) {
	daemon := &fakeDaemon{}
	cfg := testConfig(t)
	cfg.StreamIsolation = true
	tr := newTransport(t, cfg, &factory{daemon: daemon})
	rec := &transporttest.SetupRecorder{}
	accepted := make(chan net.Conn, 2)

	tr.Start(rec, acceptAll(accepted))
	require.Eventually(t, func() bool { return rec.Has(transporttest.EventPublished) }, waitFor, tick)
	addr, _ := tr.NodeAddress()

	for range 2 {
		conn, err := tr.Connect(context.Background(), addr)
		require.NoError(t, err)
		conn.Close()
		requireAccepted(t, accepted)
	}

	auths := daemon.Auths()
	require.Len(t, auths, 3) // 共享拨号器 + 两次隔离拨号
	assert.Nil(t, auths[0])
	require.NotNil(t, auths[1])
	require.NotNil(t, auths[2])
	assert.Len(t, auths[1].User, 64)
	assert.NotEqual(t, auths[1].User, auths[2].User)
}

func TestTransport_RetryThenPublish(t *testing.T) {
	f := &factory{daemon: &fakeDaemon{}, failures: 2, err: errBootstrap}
	tr := newTransport(t, testConfig(t), f)
	rec := &transporttest.SetupRecorder{}

	tr.Start(rec, nil)
	require.Eventually(t, func() bool { return rec.Has(transporttest.EventPublished) }, waitFor, tick)

	assert.Equal(t, 2, rec.Count(transporttest.EventBridges))
	assert.False(t, rec.Has(transporttest.EventFailed))
	assert.Equal(t, 3, tr.Attempts())
}

func TestTransport_SixthFailureGivesUp(t *testing.T) {
	f := &factory{daemon: &fakeDaemon{}, failures: 100, err: errBootstrap}
	tr := newTransport(t, testConfig(t), f)
	rec := &transporttest.SetupRecorder{}

	tr.Start(rec, nil)
	require.Eventually(t, func() bool { return rec.Has(transporttest.EventFailed) }, waitFor, tick)

	assert.Equal(t, 5, rec.Count(transporttest.EventBridges))
	assert.Equal(t, 6, tr.Attempts())
	assert.ErrorIs(t, rec.Err(), transport.ErrSetupFailed)
	assert.False(t, rec.Has(transporttest.EventPublished))
}

func TestTransport_UnreachableFailsImmediately(t *testing.T) {
	f := &factory{daemon: &fakeDaemon{}, failures: 1, err: fmt.Errorf("%w: tor not found", ErrDaemonUnreachable)}
	tr := newTransport(t, testConfig(t), f)
	rec := &transporttest.SetupRecorder{}

	tr.Start(rec, nil)
	require.Eventually(t, func() bool { return rec.Has(transporttest.EventFailed) }, waitFor, tick)

	assert.Equal(t, 0, rec.Count(transporttest.EventBridges))
	assert.Equal(t, 1, tr.Attempts())
}

func TestTransport_ShutDownReleasesDaemon(t *testing.T) {
	daemon := &fakeDaemon{}
	pool := &DaemonPool{}
	tr := New(testConfig(t), Deps{Pool: pool, Factory: (&factory{daemon: daemon}).start})
	rec := &transporttest.SetupRecorder{}

	tr.Start(rec, acceptAll(make(chan net.Conn, 1)))
	require.Eventually(t, func() bool { return rec.Has(transporttest.EventPublished) }, waitFor, tick)
	assert.Equal(t, 1, pool.Refs())

	shutDown(t, tr)
	assert.Equal(t, 0, pool.Refs())
	assert.True(t, daemon.closed.Load())

	_, err := tr.Connect(context.Background(), types.NewNodeAddress(fakeID+".onion", 9999))
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestTransport_StartBacksUpKey(t *testing.T) {
	cfg := testConfig(t)
	path := keyPath(cfg.HiddenServiceDir)
	_, err := loadOrCreateKey(path, nil)
	require.NoError(t, err)

	tr := newTransport(t, cfg, &factory{daemon: &fakeDaemon{}})
	tr.Start(nil, nil)

	entries, err := os.ReadDir(filepath.Join(filepath.Dir(path), backupDirName))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Network.ServicePort = 8002
	cfg.Network.Onion.StreamIsolation = true
	cfg.Network.Onion.Bridges = []string{"obfs4 1.2.3.4:443"}

	oc := ConfigFromUnified(cfg)
	assert.Equal(t, 8002, oc.ServicePort)
	assert.True(t, oc.StreamIsolation)
	assert.Equal(t, []string{"obfs4 1.2.3.4:443"}, oc.Bridges)
	assert.Equal(t, 5, oc.MaxRestartAttempts)
	assert.Equal(t, 20, oc.KeyBackups)
	assert.Equal(t, 3*time.Minute, oc.StartTimeout)

	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))
}
