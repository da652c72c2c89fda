package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/dep2p/go-onionp2p/config"
)

// ============================================================================
//                              环境变量（CLI 专用）
// ============================================================================

const (
	envPrefix           = "ONIONP2P_"
	envMode             = "MODE"
	envServicePort      = "SERVICE_PORT"
	envHiddenServiceDir = "HIDDEN_SERVICE_DIR"
	envStreamIsolation  = "STREAM_ISOLATION"
	envBridges          = "BRIDGES"
	envBannedPeers      = "BANNED_PEERS"
	envMetricsAddr      = "METRICS_ADDR"
	envLogFile          = "LOG_FILE"
)

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// 支持的环境变量（均使用 ONIONP2P_ 前缀）：
//   - ONIONP2P_MODE: 传输模式（onion/localhost）
//   - ONIONP2P_SERVICE_PORT: 对外服务端口
//   - ONIONP2P_HIDDEN_SERVICE_DIR: 洋葱网络工作目录
//   - ONIONP2P_STREAM_ISOLATION: 流隔离
//   - ONIONP2P_BRIDGES: 自定义网桥（逗号分隔）
//   - ONIONP2P_BANNED_PEERS: 封禁的对端（逗号分隔）
//   - ONIONP2P_METRICS_ADDR: /metrics 监听地址
func applyEnvOverrides(cfg *config.Config) {
	if v := getenv(envMode); v != "" {
		cfg.Network.Mode = v
	}

	if v := getenv(envServicePort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Network.ServicePort = port
		} else {
			logger.Warn("忽略无效的端口环境变量", "value", v)
		}
	}

	if v := getenv(envHiddenServiceDir); v != "" {
		cfg.Network.Onion.HiddenServiceDir = v
	}

	if v := getenv(envStreamIsolation); v != "" {
		cfg.Network.Onion.StreamIsolation = parseBool(v)
	}

	if v := getenv(envBridges); v != "" {
		cfg.Network.Onion.Bridges = splitAndTrim(v, ",")
	}

	if v := getenv(envBannedPeers); v != "" {
		cfg.Network.BannedPeers = append(cfg.Network.BannedPeers, splitAndTrim(v, ",")...)
	}

	if v := getenv(envMetricsAddr); v != "" {
		cfg.Metrics.ListenAddr = v
	}
}

// getLogFileFromEnv 从环境变量获取日志文件路径
func getLogFileFromEnv() string {
	return getenv(envLogFile)
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

// ============================================================================
//                              辅助函数
// ============================================================================

// parseBool 解析布尔值字符串
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
