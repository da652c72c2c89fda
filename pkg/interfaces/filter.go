package interfaces

import "github.com/dep2p/go-onionp2p/pkg/types"

// NetworkFilter 对端封禁过滤
type NetworkFilter interface {
	// IsPeerBanned 对端地址是否被封禁
	IsPeerBanned(addr types.NodeAddress) bool
}
