// Package onion 实现基于洋葱网络隐藏服务的传输层
//
// # 启动
//
// Start 在独立 goroutine 上完成：
//
//  1. 对隐藏服务私钥文件做滚动备份（保留 KeyBackups 份）
//  2. 从 DaemonPool 获取守护进程（进程内单例，引用计数）
//  3. OnTorNodeReady
//  4. 加载或生成 ed25519 私钥，发布 v3 隐藏服务
//     （本地端口 + 对外服务端口），本节点地址为 <id>.onion:<服务端口>
//  5. OnHiddenServicePublished，然后在隐藏服务监听器上运行 serve
//
// 失败时重试：前 MaxRestartAttempts 次失败各发出一次
// OnRequestCustomBridges，再失败发出 OnSetupFailed。
// 守护进程不可达（例如找不到可执行文件）直接 OnSetupFailed。
//
// # 出站
//
// 只允许 .onion 对端，经守护进程的 SOCKS5 代理拨号。
// 开启流隔离时每次拨号使用新的随机 SOCKS 身份，使不同连接走不同线路。
//
// # 守护进程
//
// 默认使用 github.com/cretz/bine/tor 启动本机 tor 可执行文件。
// 测试或嵌入场景可以通过 Deps.Factory 注入其它 Daemon 实现。
package onion
