package gateway

import (
	"errors"
	"fmt"
)

// =============================================================================
// 配置与参数错误
// =============================================================================

var (
	// ErrNilConfig 配置为空。
	ErrNilConfig = errors.New("gateway: config is nil")

	// ErrNoEndpoints 未配置网关端点。
	ErrNoEndpoints = errors.New("gateway: no endpoints configured")

	// ErrInvalidEndpoint 端点格式无效。
	// 有效格式为 "host:port" 或 "scheme://host:port"。
	ErrInvalidEndpoint = errors.New("gateway: invalid endpoint format")

	// ErrEmptyKey 键名为空。
	ErrEmptyKey = errors.New("gateway: key is empty")

	// ErrEmptyCompare 事务的 compare 列表为空。
	ErrEmptyCompare = errors.New("gateway: txn compare list is empty")

	// ErrInvalidTimeout 超时配置无效。
	ErrInvalidTimeout = errors.New("gateway: invalid timeout")
)

// =============================================================================
// 运行时错误
// =============================================================================

var (
	// ErrNoHealthyEndpoint 所有端点均不健康。
	// 此错误对当前调用是终态，不会在重试预算内继续尝试。
	ErrNoHealthyEndpoint = errors.New("gateway: no healthy endpoint available")

	// ErrClientClosed 客户端已关闭。
	ErrClientClosed = errors.New("gateway: client is closed")

	// ErrAuthFailed 认证请求失败或响应中无 Token。
	// 同一刷新周期内的所有等待者收到相同的此错误；下一周期重新尝试。
	ErrAuthFailed = errors.New("gateway: authentication failed")

	// ErrNoCredentials 未配置认证凭据却发起了需要认证的请求。
	ErrNoCredentials = errors.New("gateway: credentials not configured")

	// ErrStreamDecode Watch 流解码失败（JSON 损坏或服务端流内错误记录）。
	// 收到此错误后流不可复用，调用方必须关闭并按需重建 Watch。
	ErrStreamDecode = errors.New("gateway: watch stream decode failed")

	// ErrWatchClosed Watch 流已被调用方关闭。
	// 这是正常取消，不应作为故障上报。
	ErrWatchClosed = errors.New("gateway: watch stream closed")
)

// IsNoHealthyEndpoint 检查错误是否为无健康端点。
func IsNoHealthyEndpoint(err error) bool {
	return errors.Is(err, ErrNoHealthyEndpoint)
}

// IsWatchClosed 检查错误是否为 Watch 正常取消。
func IsWatchClosed(err error) bool {
	return errors.Is(err, ErrWatchClosed)
}

// =============================================================================
// 可重试分类
// =============================================================================

// RetryableError 可重试错误接口。
// 分发器的重试循环据此判断失败是否值得换端点再试。
type RetryableError interface {
	error
	Retryable() bool
}

// TemporaryError 临时性错误（传输层失败，应换端点重试）。
type TemporaryError struct {
	Err error
}

// NewTemporaryError 创建临时性错误。
func NewTemporaryError(err error) *TemporaryError {
	return &TemporaryError{Err: err}
}

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "temporary error"
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error { return e.Err }

// Retryable 临时性错误总是可重试。
func (e *TemporaryError) Retryable() bool { return true }

// APIError 网关返回的应用层错误（HTTP 状态 >= 300）。
//
// 状态 >= 500 视为端点故障，可换端点重试并计入健康统计；
// [300,500) 为客户端错误或重定向，原样返回调用方，不重试。
type APIError struct {
	// Status HTTP 状态码。
	Status int

	// Code 网关响应体中的 gRPC 错误码（如有）。
	Code int

	// Message 网关响应体中的错误消息（如有）。
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway: api error: status=%d code=%d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway: api error: status=%d", e.Status)
}

// Retryable 状态 >= 500 可重试，其余不可。
func (e *APIError) Retryable() bool { return e.Status >= 500 }

// NewAPIError 创建 API 错误。
func NewAPIError(status, code int, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// IsRetryable 检查错误是否可重试。
// 规则：
//   - nil：视为成功，不重试
//   - ErrNoHealthyEndpoint：终态，不重试
//   - 实现 RetryableError 接口：按 Retryable() 判断
//   - 其他错误：默认不可重试（参数错误、认证失败等应立即暴露）
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoHealthyEndpoint) {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}
