// Package main 提供 onionp2p 命令行入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	onionp2p "github.com/dep2p/go-onionp2p"
	"github.com/dep2p/go-onionp2p/config"
	"github.com/dep2p/go-onionp2p/pkg/interfaces"
	"github.com/dep2p/go-onionp2p/pkg/lib/log"
	"github.com/dep2p/go-onionp2p/pkg/lib/proto/envelope"
	"github.com/dep2p/go-onionp2p/pkg/types"
)

var logger = log.Logger("onionp2p/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：运行时覆盖 / 快速测试
//   JSON 配置文件：持久化配置 / 长期运行
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 运行时参数
	// ─────────────────────────────────────────────────────────────────────
	configFile = flag.String("config", "", "配置文件路径（JSON）")
	mode       = flag.String("mode", "", "传输模式 (onion/localhost)")
	port       = flag.Int("port", 0, "对外服务端口")
	hsDir      = flag.String("hs-dir", "", "洋葱网络工作目录")
	isolation  = flag.Bool("isolation", false, "每次拨号使用独立的 SOCKS 身份")

	// ─────────────────────────────────────────────────────────────────────
	// 演示：启动后向对端发送一条消息
	// ─────────────────────────────────────────────────────────────────────
	peer    = flag.String("peer", "", "发送目标地址（host:port）")
	message = flag.String("message", "hello", "发送的文本")

	// ─────────────────────────────────────────────────────────────────────
	// 观测
	// ─────────────────────────────────────────────────────────────────────
	metricsAddr = flag.String("metrics", "", "/metrics 监听地址（如 127.0.0.1:9100）")
	logFile     = flag.String("log", "", "日志文件路径")
	logJSON     = flag.Bool("log-json", false, "以 JSON 格式输出日志")

	// ─────────────────────────────────────────────────────────────────────
	// 信息显示
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
)

// textType 演示消息的载荷类型
const textType = "onionp2p.Text"

// publishTimeout 等待地址发布的上限
const publishTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(onionp2p.VersionInfo())
		return nil
	}

	closeLog, err := setupLogging()
	if err != nil {
		fmt.Fprintf(os.Stderr, "警告: %v\n", err)
		fmt.Fprintln(os.Stderr, "将继续使用控制台输出日志")
	}
	defer closeLog()

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	opts := []onionp2p.Option{onionp2p.WithConfig(cfg)}
	var stopMetrics func()
	if cfg.Metrics.ListenAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, onionp2p.WithMetricsRegisterer(reg))
		stopMetrics = serveMetrics(cfg.Metrics.ListenAddr, reg)
	}

	logger.Info("启动 onionp2p 节点", "version", onionp2p.Version, "commit", onionp2p.GitCommit, "buildDate", onionp2p.BuildDate)
	n, err := onionp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}
	n.AddMessageListener(interfaces.MessageListenerFunc(printMessage))
	n.AddConnectionListener(connectionPrinter{})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("正在启动节点...")
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, publishTimeout)
	err = n.WaitPublished(waitCtx)
	waitCancel()
	if err != nil {
		_ = n.Close()
		return fmt.Errorf("地址发布失败: %w", err)
	}
	addr, _ := n.NodeAddress()
	fmt.Printf("节点地址: %s\n", addr)

	if *peer != "" {
		if err := sendText(ctx, n, *peer, *message); err != nil {
			logger.Warn("发送演示消息失败", "peer", *peer, "err", err)
		}
	}

	fmt.Println("节点已启动，按 Ctrl+C 退出")
	<-ctx.Done()

	fmt.Println("\n正在关闭节点...")
	done := make(chan struct{})
	n.ShutDown(func() { close(done) })
	<-done
	if stopMetrics != nil {
		stopMetrics()
	}
	return nil
}

// buildConfig 构建配置
//
// 优先级（从高到低）：命令行参数 > 环境变量 > 配置文件 > 默认值
func buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if *mode != "" {
		cfg.Network.Mode = *mode
	}
	if isFlagSet("port") {
		cfg.Network.ServicePort = *port
	}
	if *hsDir != "" {
		cfg.Network.Onion.HiddenServiceDir = *hsDir
	}
	if isFlagSet("isolation") {
		cfg.Network.Onion.StreamIsolation = *isolation
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddr = *metricsAddr
	}
	cfg.Metrics.Enabled = cfg.Metrics.ListenAddr != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sendText 向对端发送一条文本载荷
func sendText(ctx context.Context, n *onionp2p.Node, to, text string) error {
	addr, err := types.ParseNodeAddress(to)
	if err != nil {
		return err
	}
	env := n.NewEnvelope(&envelope.Payload{Type: textType, Data: []byte(text)})
	conn, err := n.Send(ctx, addr, env)
	if err != nil {
		return err
	}
	logger.Info("演示消息已提交", "peer", addr.String(), "uid", log.TruncateID(conn.UID(), 8))
	return nil
}

// serveMetrics 启动 /metrics，返回关闭函数
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("指标服务启动", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("指标服务异常退出", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// setupLogging 设置日志输出，返回释放函数
func setupLogging() (func(), error) {
	path := *logFile
	if path == "" {
		path = getLogFileFromEnv()
	}
	if path == "" {
		if *logJSON {
			log.SetOutput(os.Stderr, true)
		}
		return func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return func() {}, fmt.Errorf("创建日志目录失败: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // G304: 用户指定的日志路径
	if err != nil {
		return func() {}, fmt.Errorf("打开日志文件失败: %w", err)
	}
	log.SetOutput(file, *logJSON)
	return func() { _ = file.Close() }, nil
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// ════════════════════════════════════════════════════════════════════════════
//                              输出
// ════════════════════════════════════════════════════════════════════════════

func printMessage(env *envelope.Envelope, conn interfaces.Connection) {
	p, ok := env.Message.(*envelope.Payload)
	if !ok {
		return
	}
	from := "未知"
	if addr, ok := conn.PeerAddress(); ok {
		from = addr.ShortString()
	}
	fmt.Printf("[%s] %s: %s\n", from, p.Type, p.Data)
}

type connectionPrinter struct{}

func (connectionPrinter) OnConnection(conn interfaces.Connection) {
	fmt.Printf("+ 连接 %s (%s)\n", log.TruncateID(conn.UID(), 8), conn.Direction())
}

func (connectionPrinter) OnDisconnect(reason types.CloseConnectionReason, conn interfaces.Connection) {
	fmt.Printf("- 断开 %s: %s\n", log.TruncateID(conn.UID(), 8), reason)
}
