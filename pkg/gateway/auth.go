package gateway

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Token 新鲜度窗口。
// 基准时长低于 etcd simple-token 的默认 5 分钟有效期，
// 每次刷新附加随机抖动，打散多个客户端实例的刷新时刻。
const (
	tokenFreshBase      = 4 * time.Minute
	tokenFreshJitterMax = 30 * time.Second
)

// pathAuthenticate 认证端点路径。
const pathAuthenticate = "/auth/authenticate"

// authManager 管理共享 Bearer Token 的获取与刷新。
//
// 并发模型：新鲜 Token 走快路径直接返回，无 I/O；
// 过期后所有并发调用经 singleflight 汇聚为一次认证往返，
// 同一刷新周期的所有等待者收到相同的结果（共享成功或共享失败）。
// 失败不缓存，下一次调用开启新的刷新周期。
type authManager struct {
	username string
	password string
	timeout  time.Duration
	logger   *slog.Logger

	// send 认证请求的发送通道（分发器注入，避免包内循环依赖）。
	send sendFunc

	sf singleflight.Group

	mu       sync.Mutex
	token    string
	obtained time.Time
	window   time.Duration // 本周期的新鲜度窗口（基准 + 抖动）
}

// newAuthManager 创建认证管理器。
func newAuthManager(username, password string, timeout time.Duration, logger *slog.Logger) *authManager {
	return &authManager{
		username: username,
		password: password,
		timeout:  timeout,
		logger:   logger,
		window:   tokenFreshBase,
	}
}

// enabled 是否配置了凭据。
func (m *authManager) enabled() bool {
	return m != nil && m.username != ""
}

// EnsureToken 返回一个新鲜的 Bearer Token。
//
// 缓存 Token 仍在新鲜度窗口内时直接返回，不发生任何网络调用；
// 否则：已有刷新在途时阻塞等待其结果（受调用方 ctx 约束），
// 无在途刷新时本调用成为刷新者，发起一次认证往返。
func (m *authManager) EnsureToken(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}

	// DoChan 在独立 goroutine 中执行刷新，等待者可先于刷新完成
	// 因自身超时退出，不影响刷新结果写入缓存。
	ch := m.sf.DoChan("refresh", func() (any, error) {
		// 刷新者可能因等待锁而晚于并发刷新成功者进入，再查一次缓存。
		if token, ok := m.cached(); ok {
			return token, nil
		}
		return m.refresh()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		token, ok := res.Val.(string)
		if !ok || token == "" {
			return "", ErrAuthFailed
		}
		return token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// cached 返回缓存 Token（若仍新鲜）。
func (m *authManager) cached() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" && time.Since(m.obtained) < m.window {
		return m.token, true
	}
	return "", false
}

// refresh 执行一次认证往返并更新缓存。
//
// 认证请求本身关闭 auth（避免递归进入 EnsureToken），并禁用连接复用：
// 网关侧刚签发的 Token 不应从带有旧认证状态的 keep-alive 连接上返回。
// 使用独立于调用方的超时 context——刷新结果由所有等待者共享，
// 不应随某一个调用方的取消而中断。
func (m *authManager) refresh() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var resp wireAuthResponse
	req := &request{
		method:  http.MethodPost,
		path:    pathAuthenticate,
		body:    &wireAuthRequest{Name: m.username, Password: m.password},
		auth:    false,
		noReuse: true,
	}
	if err := m.send(ctx, req, &resp); err != nil {
		m.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: empty token in response", ErrAuthFailed)
	}

	m.mu.Lock()
	m.token = resp.Token
	m.obtained = time.Now()
	m.window = tokenFreshBase + freshJitter()
	m.mu.Unlock()

	m.logger.Debug("token refreshed",
		slog.Duration("fresh_window", m.window),
	)
	return resp.Token, nil
}

// invalidate 丢弃缓存 Token，下一次调用触发刷新。仅测试使用。
func (m *authManager) invalidate() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

// freshJitter 生成 [0, tokenFreshJitterMax) 的随机抖动。
// crypto/rand 失败时返回零抖动（安全默认值）。
func freshJitter() time.Duration {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	n := binary.LittleEndian.Uint64(buf[:])
	return time.Duration(n % uint64(tokenFreshJitterMax))
}
