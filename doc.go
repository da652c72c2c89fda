// Package onionp2p 提供基于洋葱网络隐藏服务的点对点连接层
//
// 每个节点通过匿名传输层（洋葱网络或本地回环模拟）发布一个节点地址，
// 与对端之间以长度前缀的帧交换版本化消息。连接层负责：
//
//   - 帧编解码与消息大小上限（普通 200KB，特权类型 10MB）
//   - 入站限流与违例计数，达到容忍度后以对应原因关闭连接
//   - 对端能力协商与按能力过滤发送
//   - 发送合并（Bundle）
//   - 带关闭原因的优雅关闭
//   - 心跳与往返时间统计
//
// # 快速开始
//
//	node, err := onionp2p.New(
//	    onionp2p.WithMode(config.ModeLocalhost),
//	    onionp2p.WithServicePort(9999),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	node.AddMessageListener(interfaces.MessageListenerFunc(onMessage))
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	if err := node.WaitPublished(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	_, err = node.Send(ctx, peer, env)
//
// # 回调线程
//
// 所有监听器回调都在同一个事件循环 goroutine 上执行，实现方不得阻塞。
//
// # 文件组织
//
//   - node.go     - Node 门面与生命周期
//   - options.go  - 配置选项
//   - fx.go       - 内部模块组装
//   - errors.go   - 错误定义
//   - version.go  - 版本信息
package onionp2p
