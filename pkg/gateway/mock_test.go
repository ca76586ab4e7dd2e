package gateway

// 本文件提供测试用的桩传输与响应构造辅助。
// 不使用真实网络：RoundTripper 层拦截请求，按测试场景返回固定
// 响应，同时记录请求流水供断言使用。

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// roundTripFunc 函数式 RoundTripper。
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// stubTransport 记录请求流水的桩传输。
type stubTransport struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	handler  func(*http.Request) (*http.Response, error)
}

func newStubTransport(handler func(*http.Request) (*http.Response, error)) *stubTransport {
	return &stubTransport{handler: handler}
}

func (s *stubTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	body := ""
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		body = string(data)
	}

	s.mu.Lock()
	s.requests = append(s.requests, r)
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()

	return s.handler(r)
}

// count 返回已记录的请求数。
func (s *stubTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// countPath 返回指定路径的请求数。
func (s *stubTransport) countPath(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.URL.Path == path {
			n++
		}
	}
	return n
}

// lastRequest 返回最后一个请求。
func (s *stubTransport) lastRequest() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

// lastBody 返回最后一个请求体。
func (s *stubTransport) lastBody() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bodies) == 0 {
		return ""
	}
	return s.bodies[len(s.bodies)-1]
}

// jsonResponse 构造 JSON 响应。
func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// uniqueEndpoints 生成带测试名前缀的唯一端点地址。
// 健康状态表是进程级共享的，端点名唯一化避免测试间互相污染。
func uniqueEndpoints(t *testing.T, n int) []string {
	t.Helper()
	name := strings.ToLower(strings.ReplaceAll(t.Name(), "/", "-"))
	eps := make([]string, 0, n)
	hosts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		host := fmt.Sprintf("%s-ep%d:2379", name, i)
		eps = append(eps, host)
		hosts = append(hosts, host)
	}
	t.Cleanup(func() { resetHealth(hosts...) })
	return eps
}

// newTestClient 构造注入桩传输的客户端。
func newTestClient(t *testing.T, cfg *Config, transport http.RoundTripper, opts ...Option) *Client {
	t.Helper()
	opts = append(opts, WithTransport(transport))
	client, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// testConfig 返回固定游标种子的测试配置。
func testConfig(endpoints []string) *Config {
	seed := uint64(0)
	cfg := DefaultConfig()
	cfg.Endpoints = endpoints
	cfg.Timeout = 2 * time.Second
	cfg.StartCursor = &seed
	return cfg
}

// b64 base64 编码辅助。
func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// rangeResponseJSON 构造 /kv/range 响应体。
func rangeResponseJSON(revision int64, kvs ...[2]string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`{"header":{"revision":"%d"},"kvs":[`, revision))
	for i, kv := range kvs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(fmt.Sprintf(
			`{"key":"%s","value":"%s","create_revision":"1","mod_revision":"%d","version":"1"}`,
			b64(kv[0]), b64(kv[1]), revision))
	}
	sb.WriteString(fmt.Sprintf(`],"count":"%d"}`, len(kvs)))
	return sb.String()
}
