// Package transport 提供匿名传输层的公共部件
//
// 两种 interfaces.Transport 实现位于子包：
//
//   - onion: 洋葱网络隐藏服务，出站经 SOCKS5 代理
//   - localhost: 本地回环模拟，启动阶段带人为延迟
//
// 本包只放两者共用的东西：启动进度上报（Progress）以及错误定义。
//
// # 启动顺序
//
//	Start ──► OnTorNodeReady ──► 监听套接字就绪 ──► OnHiddenServicePublished ──► serve(listener)
//	   │
//	   └──► 失败：OnRequestCustomBridges（可重试） / OnSetupFailed（最终）
//
// # 并发安全
//
// 启动在传输层自己的 goroutine 上进行，监听器回调直接在该 goroutine 上调用；
// 需要切回事件循环的调用方（节点）自行投递。
package transport
