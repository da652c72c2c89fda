// Package throttle 实现连接的入站与出站限流
//
// # 入站
//
// InboundWindow 记录最近 PerTenSeconds 个帧的到达时间。新帧到达时，
// 如果 1 秒内已有 PerSecond 个帧，或 10 秒内已有 PerTenSeconds 个帧，
// 即判定为速率违例。因此每秒恰好 PerSecond 个帧是被接受的。
//
// InboundPacer 对间隔小于 PacingGap 的相邻帧施加 PacingSleep 的等待，
// 由输入 goroutine 执行，从而自然地对对端施加反压。
//
// # 出站
//
// Governor 在距上次发送不足 SendThrottleTrigger 时进入合并路径：
// 对端支持 BUNDLE_OF_ENVELOPES 时，消息被追加到队尾的待发 Bundle，
// 队列为空或追加后超过 MaxBundleSize 时新建 Bundle 并在
// lastSend + SendThrottleSleep 调度发送；对端不支持时，发送方等待
// SendThrottleSleep 后直接写出。
//
// 待发 Bundle 按 FIFO 顺序写出，只含一个成员的 Bundle 去掉外层直接发送。
// 任何直接写出之前都会先同步写出仍在排队的 Bundle，保证线上顺序与调用顺序一致。
package throttle
