// Package node 实现网络节点
//
// 节点持有服务端监听器与连接注册表：
//   - 接受循环把每个入站套接字包装为对端地址为空的入站连接，接受速率受令牌桶限制
//   - Send 按对端地址复用已注册连接，没有时经传输层拨号创建出站连接
//   - 所有监听器回调在事件循环上扇出
//   - 同一对端地址至多一个连接，入站连接暴露出重复地址时关闭较新的一个
//
// 关闭流程：所有连接以 APP_SHUT_DOWN 并发关闭，同时关闭传输层，
// 两者都完成或超时（默认 5s）后排空事件循环。
package node
