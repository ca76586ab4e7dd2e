package gateway

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint 网关端点，构造后不可变。
// Host（原始 host:port 字符串）同时作为健康统计的标识键，
// 多个客户端实例引用相同 Host 时共享健康状态。
type Endpoint struct {
	// Scheme 协议，"http" 或 "https"。
	Scheme string

	// Host 原始 host:port 字符串，健康统计键。
	Host string

	// baseURL 形如 "https://host:port"，不含 API 前缀。
	baseURL string

	// prefix 预计算的完整请求路径前缀：baseURL + API 前缀。
	prefix string
}

// URL 返回操作路径的完整请求地址（含 API 前缀）。
func (e *Endpoint) URL(path string) string {
	return e.prefix + path
}

// BareURL 返回不含 API 前缀的请求地址。
// 仅 /version 等网关根路径端点使用。
func (e *Endpoint) BareURL(path string) string {
	return e.baseURL + path
}

// parseEndpoint 解析单个端点地址。
// 接受 "host:port" 与 "scheme://host:port" 两种形式，缺省协议为 http。
func parseEndpoint(addr, apiPrefix string) (Endpoint, error) {
	raw := strings.TrimSpace(addr)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty address", ErrInvalidEndpoint)
	}

	scheme := "http"
	hostport := raw
	if before, after, found := strings.Cut(raw, "://"); found {
		scheme = strings.ToLower(before)
		hostport = after
	}
	if scheme != "http" && scheme != "https" {
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q in %q", ErrInvalidEndpoint, scheme, addr)
	}
	if hostport == "" || strings.Contains(hostport, "/") {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, addr)
	}
	// 借助 net/url 校验 host:port 合法性（兼容 IPv6 字面量 [::1]:2379）
	u, err := url.Parse(scheme + "://" + hostport)
	if err != nil || u.Host == "" || u.Host != hostport {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, addr)
	}
	if u.Port() == "" {
		return Endpoint{}, fmt.Errorf("%w: %q missing port", ErrInvalidEndpoint, addr)
	}

	base := scheme + "://" + hostport
	return Endpoint{
		Scheme:  scheme,
		Host:    hostport,
		baseURL: base,
		prefix:  base + apiPrefix,
	}, nil
}

// parseEndpoints 解析全部端点地址，任何一个非法即整体失败。
// 返回的切片保持配置顺序，轮转游标按此顺序推进。
func parseEndpoints(addrs []string, apiPrefix string) ([]Endpoint, error) {
	if len(addrs) == 0 {
		return nil, ErrNoEndpoints
	}
	eps := make([]Endpoint, 0, len(addrs))
	for i, addr := range addrs {
		ep, err := parseEndpoint(addr, apiPrefix)
		if err != nil {
			return nil, fmt.Errorf("endpoint[%d]: %w", i, err)
		}
		eps = append(eps, ep)
	}
	return eps, nil
}
