package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pathVersion 版本接口路径，挂在网关根而非 API 前缀下。
const pathVersion = "/version"

// 传输层连接参数。
const (
	dialTimeout     = 3 * time.Second
	keepAlivePeriod = 30 * time.Second
	maxIdleConns    = 32
)

// Client etcd JSON 网关客户端。
//
// 并发安全：构造完成后所有方法可被任意 goroutine 并发调用。
// 同一进程内多个 Client 实例共享端点健康状态——一个实例探测到
// 的故障端点，其他实例同样跳过。
type Client struct {
	cfg    *Config
	id     string
	logger *slog.Logger

	codec      *codec
	health     *healthTracker
	balancer   *balancer
	auth       *authManager
	dispatcher *dispatcher
	breaker    *clientBreaker

	transport *http.Transport

	closeOnce sync.Once
	closed    chan struct{}
}

// New 按配置构造客户端。
// 配置错误（空端点、非法地址、凭据不完整）在此阶段返回，
// 不留到首次请求时暴露。
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.applyDefaults()

	if (cfg.Username == "") != (cfg.Password == "") {
		return nil, ErrNoCredentials
	}

	o := defaultClientOptions()
	for _, opt := range opts {
		opt(o)
	}

	endpoints, err := parseEndpoints(cfg.Endpoints, cfg.APIPrefix)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := o.logger.With(slog.String("etcdgw_client", id))

	c := &Client{
		cfg:    cfg,
		id:     id,
		logger: logger,
		codec:  &codec{prefix: cfg.KeyPrefix, serializer: o.serializer},
		health: newHealthTracker(cfg.Health),
		closed: make(chan struct{}),
	}
	c.balancer = newBalancer(endpoints, c.health, cfg.StartCursor)

	rt := o.transport
	if rt == nil {
		transport, err := c.buildTransport()
		if err != nil {
			return nil, err
		}
		c.transport = transport
		rt = transport
	}
	// 单播与流式共用传输层（连接池），区别仅在客户端超时：
	// 流式请求不能被整体超时截断。
	unary := &http.Client{Transport: rt, Timeout: cfg.Timeout}
	stream := &http.Client{Transport: rt}

	c.auth = newAuthManager(cfg.Username, cfg.Password, cfg.Timeout, logger)
	c.dispatcher = &dispatcher{
		balancer: c.balancer,
		health:   c.health,
		auth:     c.auth,
		unary:    unary,
		stream:   stream,
		headers:  filterHeaders(cfg.Headers, logger),
		timeout:  cfg.Timeout,
		retryOn:  cfg.Health.RetryEnabled,
		maxFails: cfg.Health.MaxFails,
		logger:   logger,
		observer: o.observer,
	}
	c.auth.send = c.dispatcher.send

	if o.breaker != nil {
		c.breaker = newClientBreaker(*o.breaker, logger)
	}

	logger.Info("gateway client created",
		slog.Int("endpoints", len(endpoints)),
		slog.Bool("auth", c.auth.enabled()),
		slog.Bool("retry", cfg.Health.RetryEnabled),
	)
	return c, nil
}

// buildTransport 构建传输层，处理 TLS 与 Unix Socket 转发。
func (c *Client) buildTransport() (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: keepAlivePeriod,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     90 * time.Second,
	}
	if c.cfg.UnixSocket != "" {
		socket := c.cfg.UnixSocket
		// 所有端点经同一 Socket 转发，地址仅保留给 Host 头
		// 与健康统计使用。
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socket)
		}
	}
	if c.cfg.TLS != nil {
		tlsConfig, err := c.cfg.TLS.BuildTLSConfig()
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}
	return transport, nil
}

// filterHeaders 剔除禁用请求头，返回规整后的副本。
func filterHeaders(headers map[string]string, logger *slog.Logger) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if _, banned := headerDenylist[strings.ToLower(k)]; banned {
			logger.Warn("static header dropped", slog.String("header", k))
			continue
		}
		out[k] = v
	}
	return out
}

// do 统一的单播入口：关闭检查、熔断保护、分发。
func (c *Client) do(ctx context.Context, req *request, out any) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	return c.breaker.exec(ctx, func() error {
		return c.dispatcher.send(ctx, req, out)
	})
}

// Close 关闭客户端并释放空闲连接。幂等。
// 已打开的 Watch 流不受影响，由各自的 ctx 或 Close 终止。
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.transport != nil {
			c.transport.CloseIdleConnections()
		}
		c.logger.Info("gateway client closed")
	})
	return nil
}

// Endpoints 返回配置的端点地址列表。
func (c *Client) Endpoints() []string {
	return append([]string(nil), c.cfg.Endpoints...)
}

// VersionInfo 网关版本信息。
type VersionInfo struct {
	Server  string `json:"etcdserver"`
	Cluster string `json:"etcdcluster"`
}

// Version 查询网关版本。
// /version 挂在网关根路径且无需认证，可用作连通性探测。
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	err := c.do(ctx, &request{method: http.MethodGet, path: pathVersion, bare: true}, &info)
	if err != nil {
		return nil, err
	}
	if info.Server == "" {
		return nil, fmt.Errorf("gateway: version response missing etcdserver field")
	}
	return &info, nil
}
