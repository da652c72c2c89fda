package onion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cretz/bine/tor"
	tored25519 "github.com/cretz/bine/torutil/ed25519"
	"golang.org/x/net/proxy"
)

// bineDaemon 由 bine 管理的本机 tor 进程
type bineDaemon struct {
	tor *tor.Tor
}

var _ Daemon = (*bineDaemon)(nil)

// StartTor 启动本机 tor 进程，是默认的 DaemonFactory
func StartTor(ctx context.Context, cfg Config) (Daemon, error) {
	dataDir := filepath.Join(cfg.HiddenServiceDir, "data")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	var args []string
	if len(cfg.Bridges) > 0 {
		args = append(args, "--UseBridges", "1")
		for _, b := range cfg.Bridges {
			args = append(args, "--Bridge", b)
		}
	}

	t, err := tor.Start(ctx, &tor.StartConf{
		ExePath:       cfg.ExecutablePath,
		DataDir:       dataDir,
		ExtraArgs:     args,
		EnableNetwork: true,
	})
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrDaemonUnreachable, err)
		}
		return nil, fmt.Errorf("start tor: %w", err)
	}
	return &bineDaemon{tor: t}, nil
}

func (d *bineDaemon) Publish(ctx context.Context, req PublishRequest) (net.Listener, string, error) {
	svc, err := d.tor.Listen(ctx, &tor.ListenConf{
		LocalPort:   req.LocalPort,
		RemotePorts: []int{req.ServicePort},
		Version3:    true,
		Key:         tored25519.FromCryptoPrivateKey(req.Key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("publish hidden service: %w", err)
	}
	return svc, svc.ID, nil
}

func (d *bineDaemon) Dialer(ctx context.Context, auth *proxy.Auth) (proxy.Dialer, error) {
	dl, err := d.tor.Dialer(ctx, &tor.DialConf{ProxyAuth: auth})
	if err != nil {
		return nil, fmt.Errorf("socks dialer: %w", err)
	}
	return dl, nil
}

func (d *bineDaemon) Close() error {
	return d.tor.Close()
}
