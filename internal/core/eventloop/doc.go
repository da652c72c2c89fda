// Package eventloop 实现单 goroutine 事件循环
//
// 所有监听器回调都投递到同一个事件循环上按 FIFO 顺序执行，
// 监听器因此无需加锁，也永远不会在 I/O goroutine 上被调用。
//
// # 反压
//
// 队列本身不设上限：事件循环内部投递的任务（Execute）从不阻塞，
// 避免回调中再投递任务时死锁。连接的输入 goroutine 使用 ExecuteWait，
// 当队列长度达到高水位时阻塞，直到事件循环消化积压，
// 从而把反压传导到对端的 TCP 窗口。
//
// # 异常隔离
//
// 任务中的 panic 在事件循环边界被恢复并记录，不影响后续任务。
package eventloop
