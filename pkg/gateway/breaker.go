package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// 熔断默认参数。
const (
	defaultBreakerFailures    = 5
	defaultBreakerTimeout     = 30 * time.Second
	defaultBreakerMaxRequests = 1
)

// BreakerConfig 配置客户端级熔断器。
//
// 熔断器作用于整个客户端而非单个端点：端点级的失败摘除由
// 健康跟踪器负责，熔断器只在所有尝试都失败（集群整体故障）
// 时打开，让调用方快速失败而不是反复耗尽重试预算。
type BreakerConfig struct {
	// Name 熔断器名称，用于日志标识。默认 "etcdgw"。
	Name string `json:"name" yaml:"name"`
	// ConsecutiveFailures 连续失败多少次后打开熔断。默认 5。
	ConsecutiveFailures uint32 `json:"consecutiveFailures" yaml:"consecutiveFailures"`
	// Timeout Open 状态持续时长，到期进入 HalfOpen 试探。默认 30s。
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// MaxRequests HalfOpen 状态允许的试探请求数。默认 1。
	MaxRequests uint32 `json:"maxRequests" yaml:"maxRequests"`
}

// applyDefaults 返回填充默认值后的副本。
func (c BreakerConfig) applyDefaults() BreakerConfig {
	if c.Name == "" {
		c.Name = "etcdgw"
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = defaultBreakerFailures
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultBreakerTimeout
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = defaultBreakerMaxRequests
	}
	return c
}

// clientBreaker 基于 gobreaker 的客户端级熔断包装。
type clientBreaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

// newClientBreaker 按配置构建熔断器。
//
// 成功判定：应用层错误（4xx、比较失败等）视为成功——网关是
// 可达且在正常工作的，只是请求本身不被接受；只有传输错误、
// 5xx 和全端点不可用才计入失败。
func newClientBreaker(cfg BreakerConfig, logger *slog.Logger) *clientBreaker {
	cfg = cfg.applyDefaults()
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return !isBreakerFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &clientBreaker{cb: gobreaker.NewCircuitBreaker[any](st)}
}

// exec 在熔断保护下执行 fn。
// Open 状态下直接返回 gobreaker.ErrOpenState，不发生网络调用。
func (b *clientBreaker) exec(ctx context.Context, fn func() error) error {
	if b == nil {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// isBreakerFailure 判断错误是否应计入熔断失败。
func isBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoHealthyEndpoint) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// 重试预算耗尽后透出的最后一个错误若仍可重试，
	// 说明是传输层或 5xx 级别的故障。
	return IsRetryable(err)
}
