package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// OnionSuffix 洋葱地址后缀
const OnionSuffix = ".onion"

// LocalhostHost 本地模拟网络使用的主机名
const LocalhostHost = "localhost"

// ============================================================================
//                              NodeAddress - 节点地址
// ============================================================================

// NodeAddress 节点地址
//
// 洋葱网络下 Host 为 "<base32>.onion"，本地模拟网络下为 "localhost"。
// 相等性由 Host 与 Port 共同决定，可直接作为 map 键使用。
type NodeAddress struct {
	// Host 主机名
	Host string

	// Port TCP 端口
	Port int
}

// NewNodeAddress 创建节点地址
func NewNodeAddress(host string, port int) NodeAddress {
	return NodeAddress{Host: host, Port: port}
}

// ParseNodeAddress 解析 "host:port" 形式的地址
func ParseNodeAddress(s string) (NodeAddress, error) {
	if s == "" {
		return NodeAddress{}, ErrEmptyAddress
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("%w: %s", ErrInvalidAddress, s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("%w: %s", ErrInvalidPort, portStr)
	}
	addr := NodeAddress{Host: host, Port: port}
	if err := addr.Validate(); err != nil {
		return NodeAddress{}, err
	}
	return addr, nil
}

// Validate 校验地址
func (a NodeAddress) Validate() error {
	if a.Host == "" {
		return ErrEmptyAddress
	}
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, a.Port)
	}
	return nil
}

// IsZero 是否为空地址
func (a NodeAddress) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// IsOnion 是否为洋葱地址
func (a NodeAddress) IsOnion() bool {
	return strings.HasSuffix(a.Host, OnionSuffix)
}

// HostPort 返回可用于拨号的 "host:port"
func (a NodeAddress) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// String 返回 "host:port"
func (a NodeAddress) String() string {
	if a.IsZero() {
		return "<none>"
	}
	return a.HostPort()
}

// ShortString 返回便于日志阅读的缩写形式
func (a NodeAddress) ShortString() string {
	if !a.IsOnion() || len(a.Host) <= 16+len(OnionSuffix) {
		return a.String()
	}
	return a.Host[:10] + "..." + OnionSuffix + ":" + strconv.Itoa(a.Port)
}
