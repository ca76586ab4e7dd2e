package gateway

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// 默认配置值。
const (
	// DefaultTimeout 默认请求超时。
	DefaultTimeout = 5 * time.Second

	// DefaultLeaseTTL 默认租约时长（秒）。
	DefaultLeaseTTL = 60

	// DefaultAPIPrefix 默认 API 路径前缀。
	// etcd v3.4+ 的 JSON 网关挂载在 /v3 下。
	DefaultAPIPrefix = "/v3"
)

// headerDenylist 静态附加请求头的禁用列表。
// 这些头要么由分发器注入（authorization），要么属于传输层框架，
// 放行会破坏 HTTP 连接语义或覆盖凭据。
var headerDenylist = map[string]struct{}{
	"authorization":     {},
	"content-length":    {},
	"transfer-encoding": {},
	"connection":        {},
	"upgrade":           {},
}

// Config 网关客户端配置。
// 支持 JSON/YAML 反序列化，推荐从 DefaultConfig() 出发按需覆盖。
type Config struct {
	// Endpoints 网关端点列表，必填。
	// 格式："host:port" 或 "scheme://host:port"，缺省协议为 http。
	Endpoints []string `json:"endpoints" yaml:"endpoints"`

	// Timeout 单次请求超时。零值时使用默认值 5 秒。
	// Watch 流不受此超时约束。
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// LeaseTTL 默认租约时长（秒）。零值时使用默认值 60。
	LeaseTTL int64 `json:"leaseTTL" yaml:"leaseTTL"`

	// APIPrefix API 路径前缀，默认 "/v3"。
	// 老版本网关使用 "/v3beta" 或 "/v3alpha" 时在此覆盖。
	APIPrefix string `json:"apiPrefix" yaml:"apiPrefix"`

	// KeyPrefix 逻辑键前缀。
	// 所有操作的键在编码前自动拼接此前缀，解码后自动剥离，
	// 调用方工作在虚拟命名空间内。
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`

	// Username 认证用户名（可选）。与 Password 一起启用 Bearer Token 认证。
	Username string `json:"username" yaml:"username"`

	// Password 认证密码（可选）。
	Password string `json:"password" yaml:"password"`

	// Headers 附加到每个请求的静态请求头。
	// 禁用列表（authorization、content-length、transfer-encoding、
	// connection、upgrade）内的键会在构造时被剔除并记录告警。
	Headers map[string]string `json:"headers" yaml:"headers"`

	// UnixSocket 本地 Socket 转发路径（可选）。
	// 设置后所有端点连接经由该 Unix Socket 建立，
	// 端点地址仅用于 Host 头与健康统计。
	UnixSocket string `json:"unixSocket" yaml:"unixSocket"`

	// StartCursor 轮转游标种子（可选）。
	// 缺省时随机化，显式设置可获得确定的端点访问顺序（主要用于测试）。
	StartCursor *uint64 `json:"startCursor" yaml:"startCursor"`

	// Health 被动健康检查配置。
	Health HealthConfig `json:"health" yaml:"health"`

	// TLS TLS 配置。nil 时按端点协议使用默认验证。
	TLS *TLSConfig `json:"tls" yaml:"tls"`
}

// TLSConfig TLS 配置。
type TLSConfig struct {
	// InsecureSkipVerify 跳过证书验证，仅用于开发/测试环境。
	InsecureSkipVerify bool `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`

	// RootCAFile CA 证书文件路径。
	RootCAFile string `json:"rootCAFile" yaml:"rootCAFile"`

	// CertFile 客户端证书文件路径。
	CertFile string `json:"certFile" yaml:"certFile"`

	// KeyFile 客户端密钥文件路径。
	KeyFile string `json:"keyFile" yaml:"keyFile"`

	// ServerName TLS 握手使用的服务器名覆盖（SNI）。
	ServerName string `json:"serverName" yaml:"serverName"`
}

// DefaultConfig 返回带有推荐默认值的配置。
//
// 默认值：
//   - Timeout: 5 秒
//   - LeaseTTL: 60 秒
//   - APIPrefix: "/v3"
//   - Health: 启用，MaxFails 3，FailTimeout 10 秒，启用跨端点重试
func DefaultConfig() *Config {
	return &Config{
		Timeout:   DefaultTimeout,
		LeaseTTL:  DefaultLeaseTTL,
		APIPrefix: DefaultAPIPrefix,
		Health: HealthConfig{
			Enabled:      true,
			MaxFails:     defaultMaxFails,
			FailTimeout:  defaultFailTimeout,
			RetryEnabled: true,
		},
	}
}

// Validate 验证配置有效性。
// 端点格式错误在此阶段 fail-fast 暴露，而非运行期请求失败。
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if len(c.Endpoints) == 0 {
		return ErrNoEndpoints
	}
	for i, ep := range c.Endpoints {
		if _, err := parseEndpoint(ep, ""); err != nil {
			return fmt.Errorf("endpoint[%d]: %w", i, err)
		}
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// applyDefaults 应用默认值，返回新的配置（不修改原配置）。
func (c *Config) applyDefaults() *Config {
	cfg := c.Clone()
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LeaseTTL == 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = DefaultAPIPrefix
	}
	if cfg.Health.MaxFails <= 0 {
		cfg.Health.MaxFails = defaultMaxFails
	}
	if cfg.Health.FailTimeout <= 0 {
		cfg.Health.FailTimeout = defaultFailTimeout
	}
	return cfg
}

// Clone 创建配置的深拷贝。
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.TLS != nil {
		tlsCopy := *c.TLS
		clone.TLS = &tlsCopy
	}
	if c.Headers != nil {
		clone.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			clone.Headers[k] = v
		}
	}
	if c.StartCursor != nil {
		cur := *c.StartCursor
		clone.StartCursor = &cur
	}
	clone.Endpoints = append([]string(nil), c.Endpoints...)
	return &clone
}

// BuildTLSConfig 构建 crypto/tls 配置。
func (c *TLSConfig) BuildTLSConfig() (*tls.Config, error) {
	if c == nil {
		return nil, nil
	}

	//nolint:gosec // G402: InsecureSkipVerify 由用户配置控制，doc.go 中有安全警告
	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.ServerName,
	}

	if c.RootCAFile != "" {
		caCert, err := os.ReadFile(c.RootCAFile)
		if err != nil {
			return nil, fmt.Errorf("gateway: read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("gateway: parse CA certificate failed")
		}
		tlsConfig.RootCAs = pool
	}

	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("gateway: load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
