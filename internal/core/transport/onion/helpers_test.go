package onion

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"

	"github.com/dep2p/go-onionp2p/pkg/lib/log"
)

func init() {
	log.Discard()
}

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
	fakeID  = "abcdefghijklmnopqrstuvwxyz234567abcdefghijklmnopqrstuvwx"
)

var errBootstrap = errors.New("bootstrap failed")

// fakeDaemon 在回环地址上模拟隐藏服务，所有拨号都转到该监听器
type fakeDaemon struct {
	mu       sync.Mutex
	ln       net.Listener
	requests []PublishRequest
	auths    []*proxy.Auth
	closed   atomic.Bool
}

func (d *fakeDaemon) Publish(_ context.Context, req PublishRequest) (net.Listener, string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", err
	}
	d.mu.Lock()
	d.ln = ln
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	return ln, fakeID, nil
}

func (d *fakeDaemon) Dialer(_ context.Context, auth *proxy.Auth) (proxy.Dialer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.auths = append(d.auths, auth)
	return &fakeDialer{daemon: d}, nil
}

func (d *fakeDaemon) Close() error {
	d.closed.Store(true)
	return nil
}

func (d *fakeDaemon) Auths() []*proxy.Auth {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*proxy.Auth(nil), d.auths...)
}

func (d *fakeDaemon) Requests() []PublishRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]PublishRequest(nil), d.requests...)
}

type fakeDialer struct {
	daemon *fakeDaemon
}

func (f *fakeDialer) Dial(network, _ string) (net.Conn, error) {
	f.daemon.mu.Lock()
	ln := f.daemon.ln
	f.daemon.mu.Unlock()
	if ln == nil {
		return nil, errors.New("no hidden service")
	}
	return net.Dial(network, ln.Addr().String())
}

// factory 前 failures 次返回 err，之后返回 daemon
type factory struct {
	daemon   *fakeDaemon
	failures int
	err      error
	calls    atomic.Int32
}

func (f *factory) start(context.Context, Config) (Daemon, error) {
	n := int(f.calls.Add(1))
	if n <= f.failures {
		return nil, f.err
	}
	return f.daemon, nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HiddenServiceDir = t.TempDir()
	cfg.RetryDelay = 0
	return cfg
}

func newTransport(t *testing.T, cfg Config, f *factory) *Transport {
	t.Helper()
	tr := New(cfg, Deps{Pool: &DaemonPool{}, Factory: f.start})
	t.Cleanup(func() { shutDown(t, tr) })
	return tr
}

func shutDown(t *testing.T, tr *Transport) {
	t.Helper()
	done := make(chan struct{})
	tr.ShutDown(func() { close(done) })
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("shutdown did not complete")
	}
}

// acceptAll 运行 accept 循环
func acceptAll(accepted chan<- net.Conn) func(net.Listener) {
	return func(ln net.Listener) {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}
}

func requireAccepted(t *testing.T, accepted <-chan net.Conn) {
	t.Helper()
	select {
	case c := <-accepted:
		_ = c.Close()
	case <-time.After(waitFor):
		require.FailNow(t, "inbound connection not accepted")
	}
}
