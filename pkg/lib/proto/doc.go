// Package proto 定义 onionp2p 的网络协议消息（wire format）
//
// # 子包
//
//   - envelope: 点对点连接层的 Envelope 标记联合及其编解码
//
// # 与 pkg/types 的区别
//
// pkg/lib/proto 定义网络协议消息（wire format），
// pkg/types 定义 Go 内部数据结构（内存结构）。
// 字段编号一经发布不可修改，否则会破坏与已部署节点的互通。
package proto
