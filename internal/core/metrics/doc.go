// Package metrics 提供连接层的 Prometheus 指标
//
// 指标注册在注入的 prometheus.Registerer 上，不使用全局注册表，
// 同一进程可以运行多个节点而不冲突。
//
// 所有方法对 nil *Metrics 安全，禁用指标时组件直接持有 nil。
//
// # 指标
//
//	onionp2p_messages_received_total{type}
//	onionp2p_messages_sent_total{type}
//	onionp2p_bytes_received_total
//	onionp2p_bytes_sent_total
//	onionp2p_rule_violations_total{kind}
//	onionp2p_disconnects_total{reason}
//	onionp2p_bundles_flushed_total
//	onionp2p_bundled_envelopes_total
//	onionp2p_connections{direction}
package metrics
