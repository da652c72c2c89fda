// Package codec 实现 Envelope 的长度前缀帧编解码
//
// 帧格式与 protobuf writeDelimitedTo 兼容：
//
//	[uvarint length][envelope bytes]
//
// 读取端在分配缓冲区之前检查声明长度，超过上限的帧直接拒绝，
// 攻击者无法通过伪造长度迫使本端分配大块内存。
//
// # 错误语义
//
//   - ErrNullFrame：帧边界处读到 EOF（对端未发送任何帧即关闭）
//   - io.ErrUnexpectedEOF：帧内部读到 EOF
//   - ErrCorrupted：长度前缀无法解析
//   - *FrameTooLargeError（errors.Is ErrFrameTooLarge）：声明长度超限
package codec
