// Package connection 实现与单个对端之间的帧消息连接
//
// 每个连接由一个输入 goroutine 负责阻塞读取，按固定顺序执行
// 封禁检查、帧间隔控制、统计、大小与哈希检查、入站速率窗口、
// 协议版本、能力协商、关闭请求、活跃时间与发送方地址校验，
// 最后把消息投递到事件循环。Bundle 在投递前展开。
//
// 发送经由 throttle.Governor：距上次发送过近且对端支持 Bundle 时合并，
// 否则等待后直接写出。所有写入由输出互斥锁串行化。
//
// 生命周期：
//
//	handshaking → running → shutting-down → closed
//
// 关闭时如原因需要，先直接写出 CloseConnection，等待一小段时间让对端读到，
// 再关闭套接字、停止合并调度、等待输入 goroutine 退出，
// 最后在事件循环上恰好一次地投递 OnDisconnect。
package connection
