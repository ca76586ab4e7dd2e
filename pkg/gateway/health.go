package gateway

import (
	"sync"
	"time"
)

// HealthConfig 被动健康检查配置。
// 健康状态完全由请求结果推导，无主动探测。
type HealthConfig struct {
	// Enabled 是否启用健康检查。
	// 关闭时所有端点恒为健康，失败也不记录。
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MaxFails 窗口内连续失败阈值，达到后端点标记为不健康。
	// 零值时使用默认值 3。
	MaxFails int `json:"maxFails" yaml:"maxFails"`

	// FailTimeout 失败统计窗口。窗口过后端点重新可用，计数清零。
	// 零值时使用默认值 10 秒。
	FailTimeout time.Duration `json:"failTimeout" yaml:"failTimeout"`

	// RetryEnabled 是否启用跨端点重试。
	// 关闭时每个逻辑请求只尝试一次。
	RetryEnabled bool `json:"retryEnabled" yaml:"retryEnabled"`
}

// 默认健康检查配置值。
const (
	defaultMaxFails    = 3
	defaultFailTimeout = 10 * time.Second
)

// healthRecord 单个端点的失败簿记。
type healthRecord struct {
	fails    int
	lastFail time.Time
}

// healthRegistry 进程级共享的健康状态表，按端点 Host 键索引。
// 设计决策: 表是包级全局而非每客户端一份——健康是端点的物理属性，
// 与哪个逻辑客户端观察到故障无关。多个客户端指向同一端点时，
// 任一客户端观察到的故障对所有客户端生效。记录创建后不删除，
// 端点数量有限，常驻内存可接受。
var healthRegistry = struct {
	mu      sync.Mutex
	records map[string]*healthRecord
}{records: make(map[string]*healthRecord)}

// healthTracker 被动熔断器，持有配置并读写共享健康表。
type healthTracker struct {
	cfg HealthConfig
}

// newHealthTracker 创建健康跟踪器并补全默认值。
func newHealthTracker(cfg HealthConfig) *healthTracker {
	if cfg.MaxFails <= 0 {
		cfg.MaxFails = defaultMaxFails
	}
	if cfg.FailTimeout <= 0 {
		cfg.FailTimeout = defaultFailTimeout
	}
	return &healthTracker{cfg: cfg}
}

// ReportFailure 记录一次端点失败。
// 距上次失败超过窗口时先清零计数，实现按窗口统计。
func (t *healthTracker) ReportFailure(key string) {
	if !t.cfg.Enabled {
		return
	}
	now := time.Now()

	healthRegistry.mu.Lock()
	defer healthRegistry.mu.Unlock()

	rec, ok := healthRegistry.records[key]
	if !ok {
		rec = &healthRecord{}
		healthRegistry.records[key] = rec
	}
	if now.Sub(rec.lastFail) > t.cfg.FailTimeout {
		rec.fails = 0
	}
	rec.fails++
	rec.lastFail = now
}

// IsHealthy 判断端点当前是否健康。
// 失败计数达到阈值后端点不健康；窗口过后重新视为健康并清零计数。
func (t *healthTracker) IsHealthy(key string) bool {
	if !t.cfg.Enabled {
		return true
	}

	healthRegistry.mu.Lock()
	defer healthRegistry.mu.Unlock()

	rec, ok := healthRegistry.records[key]
	if !ok || rec.fails < t.cfg.MaxFails {
		return true
	}
	if time.Since(rec.lastFail) > t.cfg.FailTimeout {
		rec.fails = 0
		return true
	}
	return false
}

// resetHealth 清空指定端点的健康记录，仅测试使用。
func resetHealth(keys ...string) {
	healthRegistry.mu.Lock()
	defer healthRegistry.mu.Unlock()
	for _, key := range keys {
		delete(healthRegistry.records, key)
	}
}
