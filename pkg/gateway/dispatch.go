package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/omeyang/etcdgw/pkg/observability/xobs"
)

// maxErrorBodyBytes 错误响应体读取上限，防止异常网关返回超大 body。
const maxErrorBodyBytes = 4 << 10

// request 描述一次待分发的网关请求。
type request struct {
	method string
	path   string
	body   any

	// auth 为 true 时在发送前附加 Token（凭据已配置的前提下）。
	auth bool
	// stream 为 true 时走无超时的流式 HTTP 客户端，响应体交由调用方消费。
	stream bool
	// noReuse 为 true 时禁用连接复用（认证请求使用）。
	noReuse bool
	// bare 为 true 时跳过 API 前缀（/version 等网关根路径接口）。
	bare bool
}

// sendFunc 统一的请求发送签名，authManager 经此回调分发器，避免循环引用。
type sendFunc func(ctx context.Context, req *request, out any) error

// wireErrorBody 网关非 2xx 响应的错误体（grpc-gateway JSON 映射）。
type wireErrorBody struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// dispatcher 负责端点选取、认证附加、发送与失败重试的完整编排。
//
// 重试预算 = 端点数 × maxFails + 1：最坏情况下允许把每个端点
// 打到熔断阈值，再多一次机会命中刚恢复的端点；之后在途错误
// 不再消耗网络往返（Choose 直接返回 ErrNoHealthyEndpoint，不可重试）。
type dispatcher struct {
	balancer *balancer
	health   *healthTracker
	auth     *authManager

	// unary 带全局超时；stream 无超时（watch 长连接），二者共享传输层。
	unary  *http.Client
	stream *http.Client

	headers  map[string]string
	timeout  time.Duration
	retryOn  bool
	maxFails int

	logger   *slog.Logger
	observer xobs.Observer
}

// budget 返回本次分发允许的总尝试次数。
func (d *dispatcher) budget() int {
	if !d.retryOn {
		return 1
	}
	return len(d.balancer.endpoints)*d.maxFails + 1
}

// send 发送单次请求并把 2xx 响应体解码到 out（out 为 nil 时丢弃响应体）。
//
// 重试语义：仅传输错误与 5xx 可重试；4xx、认证失败、
// ErrNoHealthyEndpoint 与 context 取消立即终止。重试间不退避——
// 每次尝试都会轮转到下一个端点，立刻换路比原地等待更有意义。
func (d *dispatcher) send(ctx context.Context, req *request, out any) error {
	ctx, span := xobs.Start(ctx, d.observer, xobs.SpanOptions{
		Component: "etcdgw",
		Operation: req.path,
		Kind:      xobs.KindClient,
	})

	err := retry.New(
		retry.Attempts(uint(d.budget())),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
	).Do(func() error {
		return d.attempt(ctx, req, out)
	})

	span.End(xobs.Result{Err: err})
	return err
}

// openStream 打开流式请求，返回响应与所选端点。
// 端点随响应一并返回：流建立后的中途失败由消费方上报健康状态。
// 调用方负责关闭 resp.Body。
func (d *dispatcher) openStream(ctx context.Context, req *request) (*http.Response, *Endpoint, error) {
	var (
		resp *http.Response
		ep   *Endpoint
	)
	err := retry.New(
		retry.Attempts(uint(d.budget())),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
	).Do(func() error {
		var err error
		resp, ep, err = d.attemptStream(ctx, req)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return resp, ep, nil
}

// attempt 执行一次完整的单播尝试：选端点、取 Token、发送、分类结果。
func (d *dispatcher) attempt(ctx context.Context, req *request, out any) error {
	resp, ep, err := d.roundTrip(ctx, req, d.unary)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := d.classify(resp, ep); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// 2xx 但响应体不可解码：换端点重试不会改变结果。
		return fmt.Errorf("gateway: decode response for %s: %w", req.path, err)
	}
	return nil
}

// attemptStream 执行一次流式尝试，只校验状态行，响应体留给调用方。
func (d *dispatcher) attemptStream(ctx context.Context, req *request) (*http.Response, *Endpoint, error) {
	resp, ep, err := d.roundTrip(ctx, req, d.stream)
	if err != nil {
		return nil, nil, err
	}
	if err := d.classify(resp, ep); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		_ = resp.Body.Close()
		return nil, nil, err
	}
	return resp, ep, nil
}

// roundTrip 构造 HTTP 请求并经指定客户端发出，传输层失败上报健康状态。
func (d *dispatcher) roundTrip(ctx context.Context, req *request, hc *http.Client) (*http.Response, *Endpoint, error) {
	ep, err := d.balancer.Choose()
	if err != nil {
		return nil, nil, err
	}

	var token string
	if req.auth && d.auth.enabled() {
		token, err = d.auth.EnsureToken(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return nil, nil, fmt.Errorf("gateway: encode request for %s: %w", req.path, err)
		}
		body = bytes.NewReader(buf)
	}

	url := ep.URL(req.path)
	if req.bare {
		url = ep.BareURL(req.path)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, url, body)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway: build request for %s: %w", req.path, err)
	}
	for k, v := range d.headers {
		httpReq.Header.Set(k, v)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		// JSON 网关的 Authorization 携带裸 Token，无 Bearer 方案前缀。
		httpReq.Header.Set("Authorization", token)
	}
	httpReq.Close = req.noReuse

	resp, err := hc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		d.health.ReportFailure(ep.Host)
		d.logger.Warn("endpoint round trip failed",
			slog.String("endpoint", ep.Host),
			slog.String("path", req.path),
			slog.String("error", err.Error()),
		)
		return nil, nil, NewTemporaryError(fmt.Errorf("gateway: %s %s: %w", req.method, req.path, err))
	}
	return resp, ep, nil
}

// classify 按状态码分类响应：2xx 通过，5xx 上报并可重试，4xx 不可重试。
func (d *dispatcher) classify(resp *http.Response, ep *Endpoint) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var wireErr wireErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	_ = json.Unmarshal(raw, &wireErr)
	msg := wireErr.Message
	if msg == "" {
		msg = wireErr.Error
	}
	if msg == "" {
		msg = string(bytes.TrimSpace(raw))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		d.health.ReportFailure(ep.Host)
		d.logger.Warn("endpoint returned server error",
			slog.String("endpoint", ep.Host),
			slog.Int("status", resp.StatusCode),
			slog.String("message", msg),
		)
	}
	return NewAPIError(resp.StatusCode, wireErr.Code, msg)
}
