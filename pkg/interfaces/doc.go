// Package interfaces 定义 onionp2p 的公共接口
//
// 一个接口文件对应一组协作契约：
//   - connection.go - Connection 单个对端连接
//   - listener.go   - 事件循环上投递的各类监听器
//   - transport.go  - 匿名传输层（洋葱网络或本地模拟）
//   - filter.go     - 对端封禁过滤
//
// 所有监听器回调都在同一个事件循环 goroutine 上执行，实现方不得阻塞。
package interfaces
