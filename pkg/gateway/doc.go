// Package gateway 提供 etcd v3 HTTP/JSON 网关的客户端引擎。
//
// 与基于 gRPC 的 clientv3 不同，gateway 通过 etcd 的 JSON 网关
// （grpc-gateway 暴露的 /v3/kv/*、/v3/watch 等 HTTP 端点）访问集群，
// 适用于无法使用 gRPC 的受限环境（代理、边缘节点、Unix Socket 转发）。
//
// 核心能力：
//   - 多端点轮转与被动健康检查（按端点标识全进程共享）
//   - 请求分发与跨端点重试（瞬时故障吸收，预算受控）
//   - 凭据认证与 single-flight Token 刷新（并发调用共享一次往返）
//   - Watch 流式解码（分块 JSON 记录重组、事件批量化）
//   - KV/Txn/Lease 操作与可插拔值序列化、透明键前缀
//
// # 并发模型
//
// Client 是并发安全的，可以被多个 goroutine 同时使用。
// 轮转游标、Token 缓存与健康计数为共享可变状态，内部已做同步；
// 近似公平的轮转与近似熔断是有意的设计选择，不追求严格原子性。
//
// # Watch 恢复
//
// Watch 失败后不自动重连。调用方应记录最近观察到的 revision，
// 在收到错误后自行决定是否以该 revision 重新发起 Watch。
package gateway
