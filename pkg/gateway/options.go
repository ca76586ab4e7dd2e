package gateway

import (
	"log/slog"
	"net/http"

	"github.com/omeyang/etcdgw/pkg/observability/xobs"
)

// Option 定义 Client 的可选配置。
type Option func(*clientOptions)

// clientOptions 汇集 New 时的可选注入项。
type clientOptions struct {
	logger     *slog.Logger
	observer   xobs.Observer
	serializer Serializer
	transport  http.RoundTripper
	breaker    *BreakerConfig
}

// defaultClientOptions 返回默认选项。
func defaultClientOptions() *clientOptions {
	return &clientOptions{
		logger:     slog.Default(),
		serializer: RawSerializer{},
	}
}

// WithLogger 指定结构化日志器，默认使用 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 注入观测实现，记录每次网关调用的指标与追踪跨度。
// 默认不观测。
func WithObserver(observer xobs.Observer) Option {
	return func(o *clientOptions) {
		o.observer = observer
	}
}

// WithSerializer 指定值序列化器，默认 RawSerializer（值原样透传）。
// 需要存取结构化对象时可注入 JSONSerializer。
func WithSerializer(s Serializer) Option {
	return func(o *clientOptions) {
		if s != nil {
			o.serializer = s
		}
	}
}

// WithTransport 替换底层 HTTP 传输，主要供测试注入桩传输使用。
// 设置后 Unix Socket 与 TLS 配置不再生效，由传输自身负责。
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transport = rt
	}
}

// WithBreaker 在客户端整体外再包一层熔断器。
// 与端点级健康摘除互补：健康摘除负责换路，熔断负责在
// 集群整体不可用时快速失败，避免每次调用都耗尽重试预算。
func WithBreaker(cfg BreakerConfig) Option {
	return func(o *clientOptions) {
		c := cfg
		o.breaker = &c
	}
}
