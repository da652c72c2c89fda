// Package types 定义 onionp2p 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - node_address.go  - NodeAddress 节点地址（onion 或 localhost）
//   - enums.go         - Direction, ConnectionState
//   - capability.go    - Capability 能力标签与 Capabilities 能力集合
//   - close_reason.go  - CloseConnectionReason 关闭原因
//   - rule_violation.go - RuleViolation 规则违例类型与容忍度
//   - stats.go         - StatisticSnapshot 连接统计快照
//   - errors.go        - 公共错误定义
package types
