// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xobs: 统一观测抽象（跨度 + 请求指标），OpenTelemetry 后端
//
// 设计原则：
//   - 遵循 OpenTelemetry 语义规范
//   - 核心调用路径只依赖 Observer 接口，后端在装配时注入
package observability
